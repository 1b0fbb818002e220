package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/kinematics/l5evaluate"
	"github.com/banshee-data/motion.report/internal/kinematics/loader"
	"github.com/banshee-data/motion.report/internal/kinematics/pipeline"
	"github.com/banshee-data/motion.report/internal/testutil"
	"github.com/banshee-data/motion.report/internal/version"
)

const raiseExerciseJSON = `{
  "name": "front raise",
  "description": "raise the left arm forward",
  "angles": {
    "start": {"left_shoulder": {"flexion_extension": {"angle": [0, 20], "priority": "HIGH"}}},
    "end": {"left_shoulder": {"flexion_extension": {"angle": [80, 100], "priority": "HIGH"}}}
  }
}`

func raiseRequest(t *testing.T, reps int) []byte {
	t.Helper()
	poses := testutil.FrontRaisePoses(testutil.RaiseSignal(reps, 100))
	doc := loader.SequenceDocument{
		Name:       "take1",
		BodyParts:  testutil.BodyParts(),
		Timestamps: make([]float64, len(poses)),
		Positions:  make([][][]float64, len(poses)),
	}
	for i, p := range poses {
		doc.Timestamps[i] = float64(i) / 30
		for _, v := range p.Frame() {
			doc.Positions[i] = append(doc.Positions[i], []float64{v.X, v.Y, v.Z})
		}
	}
	var ex loader.ExerciseDocument
	require.NoError(t, json.Unmarshal([]byte(raiseExerciseJSON), &ex))

	body, err := json.Marshal(AnalyzeRequest{Sequence: doc, Exercise: ex})
	require.NoError(t, err)
	return body
}

func newTestServer(t *testing.T, withDB bool) (*Server, *db.DB) {
	t.Helper()
	var store *db.DB
	if withDB {
		var err error
		store, err = db.NewDB(filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
	}
	return NewServer(store, config.MustLoadDefaultConfig()), store
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

func TestCreateAndBrowseAnalysis(t *testing.T) {
	s, _ := newTestServer(t, true)
	mux := s.ServeMux()

	rec := do(t, mux, http.MethodPost, "/api/analyses", raiseRequest(t, 2))
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)

	var created pipeline.AnalysisResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "front raise", created.Exercise)
	assert.Equal(t, "take1", created.Sequence)
	require.Len(t, created.Repetitions, 2)

	rec = do(t, mux, http.MethodGet, "/api/analyses", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var runs []db.AnalysisRun
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, created.ID, runs[0].ID)
	assert.Equal(t, 2, runs[0].Repetitions)

	rec = do(t, mux, http.MethodGet, "/api/analyses/"+created.ID, nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var fetched pipeline.AnalysisResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&fetched))
	require.Len(t, fetched.Repetitions, 2)
	assert.Equal(t, created.Repetitions[1].Repetition, fetched.Repetitions[1].Repetition)

	rec = do(t, mux, http.MethodGet, "/api/analyses/"+created.ID+"/results?rep=1", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var results []l5evaluate.EvaluationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&results))
	r := created.Repetitions[1].Repetition
	// One record per frame of the repetition for the single target signal.
	assert.Len(t, results, r.End-r.Start+1)
	for _, er := range results {
		assert.GreaterOrEqual(t, er.Frame, r.Start)
		assert.LessOrEqual(t, er.Frame, r.End)
	}

	rec = do(t, mux, http.MethodDelete, "/api/analyses/"+created.ID, nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNoContent)
	rec = do(t, mux, http.MethodGet, "/api/analyses/"+created.ID, nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
	assert.Contains(t, decodeError(t, rec), "not found")
}

func TestCreateAnalysisWithoutDatabase(t *testing.T) {
	s, _ := newTestServer(t, false)
	mux := s.ServeMux()

	rec := do(t, mux, http.MethodPost, "/api/analyses", raiseRequest(t, 2))
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)

	for _, path := range []string{"/api/analyses", "/api/analyses/x", "/api/analyses/x/results"} {
		rec = do(t, mux, http.MethodGet, path, nil)
		testutil.AssertStatusCode(t, rec.Code, http.StatusServiceUnavailable)
	}
}

func TestCreateAnalysisRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t, false)
	mux := s.ServeMux()

	tests := []struct {
		name    string
		body    string
		status  int
		wantErr string
	}{
		{"malformed", `{"sequence": `, http.StatusBadRequest, ""},
		{"unknown field", `{"sequence": {}, "exercise": {}, "extra": 1}`, http.StatusBadRequest, "extra"},
		{"no body parts", `{"sequence": {"name": "s"}, "exercise": {}}`, http.StatusBadRequest, "invalid sequence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, http.MethodPost, "/api/analyses", []byte(tt.body))
			testutil.AssertStatusCode(t, rec.Code, tt.status)
			assert.Contains(t, decodeError(t, rec), tt.wantErr)
		})
	}

	t.Run("invalid exercise", func(t *testing.T) {
		var req AnalyzeRequest
		require.NoError(t, json.Unmarshal(raiseRequest(t, 2), &req))
		req.Exercise.Name = ""
		body, err := json.Marshal(req)
		require.NoError(t, err)
		rec := do(t, mux, http.MethodPost, "/api/analyses", body)
		testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
		assert.Contains(t, decodeError(t, rec), "invalid exercise")
	})

	t.Run("analysis failure", func(t *testing.T) {
		var req AnalyzeRequest
		require.NoError(t, json.Unmarshal(raiseRequest(t, 2), &req))
		// Fewer frames than the smoothing window cannot be segmented.
		req.Sequence.Positions = req.Sequence.Positions[:10]
		req.Sequence.Timestamps = req.Sequence.Timestamps[:10]
		body, err := json.Marshal(req)
		require.NoError(t, err)
		rec := do(t, mux, http.MethodPost, "/api/analyses", body)
		testutil.AssertStatusCode(t, rec.Code, http.StatusUnprocessableEntity)
		assert.Contains(t, decodeError(t, rec), "analysis failed")
	})
}

func TestListAnalysesLimit(t *testing.T) {
	s, _ := newTestServer(t, true)
	mux := s.ServeMux()
	body := raiseRequest(t, 2)
	for i := 0; i < 3; i++ {
		testutil.AssertStatusCode(t, do(t, mux, http.MethodPost, "/api/analyses", body).Code, http.StatusCreated)
	}

	rec := do(t, mux, http.MethodGet, "/api/analyses?limit=2", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var runs []db.AnalysisRun
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	assert.Len(t, runs, 2)

	for _, bad := range []string{"0", "-1", "abc"} {
		rec = do(t, mux, http.MethodGet, "/api/analyses?limit="+bad, nil)
		testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	}
	rec = do(t, mux, http.MethodGet, "/api/analyses/x/results?rep=-2", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	rec = do(t, mux, http.MethodGet, "/api/analyses/missing/results", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
	rec = do(t, mux, http.MethodDelete, "/api/analyses/missing", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestAngleChart(t *testing.T) {
	s, store := newTestServer(t, true)
	mux := s.ServeMux()

	rec := do(t, mux, http.MethodPost, "/api/charts/angles", raiseRequest(t, 2))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
	html := rec.Body.String()
	assert.Contains(t, html, "left_shoulder")
	assert.Contains(t, html, "turn 2")

	// Charting does not store the run.
	runs, err := store.ListAnalyses(t.Context(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestConfigAndVersion(t *testing.T) {
	s, _ := newTestServer(t, false)
	mux := s.ServeMux()

	rec := do(t, mux, http.MethodGet, "/api/config", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var cfg config.TuningConfig
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cfg))
	assert.Equal(t, config.MustLoadDefaultConfig().GetSmoothingWindow(), cfg.GetSmoothingWindow())

	rec = do(t, mux, http.MethodGet, "/api/version", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var info version.Info
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, version.Version, info.Version)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, true)
	mux := s.ServeMux()

	for _, tc := range []struct{ method, path string }{
		{http.MethodPut, "/api/analyses"},
		{http.MethodPost, "/api/analyses/x"},
		{http.MethodPost, "/api/analyses/x/results"},
		{http.MethodGet, "/api/charts/angles"},
		{http.MethodPost, "/api/config"},
		{http.MethodPost, "/api/version"},
	} {
		rec := do(t, mux, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestLoggingMiddlewareKeepsStatus(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := do(t, h, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	assert.Contains(t, statusCodeColor(200), colorBoldGreen)
	assert.Contains(t, statusCodeColor(302), colorYellow)
	assert.Contains(t, statusCodeColor(500), colorBoldRed)
	assert.Equal(t, "100", statusCodeColor(100))
}

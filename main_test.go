package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion.report/internal/httputil"
	"github.com/banshee-data/motion.report/internal/kinematics/loader"
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

// writeInputs writes a two repetition front raise and its exercise to dir.
func writeInputs(t *testing.T, dir string) (seqPath, exPath string) {
	t.Helper()
	poses := testutil.FrontRaisePoses(testutil.RaiseSignal(2, 100))
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
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	seqPath = filepath.Join(dir, "take1.json")
	exPath = filepath.Join(dir, "front_raise.json")
	require.NoError(t, os.WriteFile(seqPath, data, 0644))
	require.NoError(t, os.WriteFile(exPath, []byte(raiseExerciseJSON), 0644))
	return seqPath, exPath
}

func TestAnalyzeStoresAndReports(t *testing.T) {
	dir := t.TempDir()
	seqPath, exPath := writeInputs(t, dir)
	dbPath := filepath.Join(dir, "runs.db")
	jsonPath := filepath.Join(dir, "result.json")
	reportDir := filepath.Join(dir, "report")

	var out bytes.Buffer
	err := run(context.Background(), []string{"analyze",
		"-sequence", seqPath, "-exercise", exPath,
		"-db", dbPath, "-json", jsonPath, "-report-dir", reportDir,
	}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "front raise: take1, 201 frames")
	assert.Contains(t, out.String(), "2 repetition(s)")
	assert.Contains(t, out.String(), "rep 2: frames")

	var report struct {
		ID          string            `json:"id"`
		Repetitions []json.RawMessage `json:"repetitions"`
		Results     []json.RawMessage `json:"results"`
	}
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Len(t, report.Repetitions, 2)
	assert.NotEmpty(t, report.Results)

	assert.FileExists(t, filepath.Join(reportDir, "take1_angles.html"))
	assert.FileExists(t, filepath.Join(reportDir, "take1_left_shoulder_flexion_extension.png"))

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"list", "-db", dbPath, "-tz", "Asia/Tokyo"}, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "EXERCISE")
	assert.Contains(t, lines[1], report.ID)
	assert.Contains(t, lines[1], "JST")
	assert.Contains(t, lines[1], "take1")
}

func TestAnalyzeRequiresInputs(t *testing.T) {
	err := run(context.Background(), []string{"analyze", "-sequence", "x.json"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-exercise are required")

	dir := t.TempDir()
	seqPath, _ := writeInputs(t, dir)
	err = run(context.Background(), []string{"analyze", "-sequence", seqPath, "-exercise", filepath.Join(dir, "missing.json")}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestSubmit(t *testing.T) {
	dir := t.TempDir()
	seqPath, exPath := writeInputs(t, dir)

	client := httputil.NewMockHTTPClient().AddResponse(http.StatusCreated, `{
		"id": "run-1", "exercise": "front raise", "sequence": "take1", "frames": 201, "duration": 6.67,
		"repetitions": [{"repetition": {"start": 0, "turn": 50, "end": 100}, "summary": {"duration": 3.33, "in_range_ratio": 0.5}}]
	}`)

	var out bytes.Buffer
	err := runSubmit([]string{"-server", "http://motion.test/", "-sequence", seqPath, "-exercise", exPath}, &out, client)
	require.NoError(t, err)

	require.Equal(t, 1, client.RequestCount())
	req := client.Requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "http://motion.test/api/analyses", req.URL.String())

	var body struct {
		Sequence loader.SequenceDocument `json:"sequence"`
		Exercise loader.ExerciseDocument `json:"exercise"`
	}
	require.NoError(t, json.Unmarshal([]byte(client.Bodies[0]), &body))
	assert.Equal(t, "take1", body.Sequence.Name)
	assert.Len(t, body.Sequence.Positions, 201)
	assert.Equal(t, "front raise", body.Exercise.Name)

	assert.Contains(t, out.String(), "analysis run-1, 1 repetition(s)")
	assert.Contains(t, out.String(), "rep 1: frames 0-100 (turn 50), 3.33s, 50.0% in range")
}

func TestSubmitServerError(t *testing.T) {
	dir := t.TempDir()
	seqPath, exPath := writeInputs(t, dir)

	client := httputil.NewMockHTTPClient().
		AddResponse(http.StatusUnprocessableEntity, `{"error": "analysis failed: sequence too short"}`)
	err := runSubmit([]string{"-sequence", seqPath, "-exercise", exPath}, &bytes.Buffer{}, client)
	require.Error(t, err)

	var statusErr *httputil.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	assert.Equal(t, "analysis failed: sequence too short", statusErr.Message)
	assert.Equal(t, "http://localhost:8080/api/analyses", client.Requests[0].URL.String())
}

func TestListRejectsUnknownTimezone(t *testing.T) {
	err := run(context.Background(), []string{"list", "-db", filepath.Join(t.TempDir(), "x.db"), "-tz", "Mars/Olympus"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timezone")
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "m.db")
	assert.NoError(t, run(context.Background(), []string{"migrate", "-db", dbPath, "up"}, &bytes.Buffer{}))
	assert.Error(t, run(context.Background(), []string{"migrate", "-db", dbPath, "sideways"}, &bytes.Buffer{}))
}

func TestVersionAndUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"version"}, &out))
	assert.Equal(t, version.Get().String()+"\n", out.String())

	err := run(context.Background(), []string{"frobnicate"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")

	assert.Error(t, run(context.Background(), nil, &out))
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// An already cancelled context shuts the server down straight away.
	err := runServe(ctx, []string{"-listen", "127.0.0.1:0", "-db", ""})
	assert.NoError(t, err)
}

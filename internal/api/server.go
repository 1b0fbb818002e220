// Package api serves analyses over HTTP: submitting a sequence with its
// exercise, browsing stored runs and rendering angle charts.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/httputil"
	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
	"github.com/banshee-data/motion.report/internal/kinematics/loader"
	"github.com/banshee-data/motion.report/internal/kinematics/monitor"
	"github.com/banshee-data/motion.report/internal/kinematics/pipeline"
	"github.com/banshee-data/motion.report/internal/version"
)

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// DefaultListLimit caps GET /api/analyses without a limit parameter.
const DefaultListLimit = 50

// AnalyzeRequest is the body of POST /api/analyses and POST
// /api/charts/angles.
type AnalyzeRequest struct {
	Sequence loader.SequenceDocument `json:"sequence"`
	Exercise loader.ExerciseDocument `json:"exercise"`
}

// Server handles the analysis API. The database is optional; without one
// analyses are computed and returned but not stored.
type Server struct {
	db       *db.DB
	cfg      *config.TuningConfig
	analyzer *pipeline.Analyzer
}

// NewServer returns a Server analysing with cfg. store may be nil.
func NewServer(store *db.DB, cfg *config.TuningConfig) *Server {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Server{db: store, cfg: cfg, analyzer: pipeline.NewAnalyzer(cfg)}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes. Database admin routes are mounted when
// a database is configured.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/analyses", s.handleAnalyses)
	mux.HandleFunc("/api/analyses/{id}", s.handleAnalysis)
	mux.HandleFunc("/api/analyses/{id}/results", s.handleResults)
	mux.HandleFunc("/api/charts/angles", s.handleAngleChart)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/version", s.showVersion)
	if s.db != nil {
		s.db.AttachAdminRoutes(mux)
	}
	return mux
}

// decodeAnalyzeRequest reads and converts the request documents. Errors
// are already written to w.
func (s *Server) decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request) (*l1sequence.Sequence, *exercise.Exercise, bool) {
	var req AnalyzeRequest
	if err := httputil.DecodeJSON(w, r, &req, loader.MaxFileSize); err != nil {
		httputil.BadRequest(w, err.Error())
		return nil, nil, false
	}
	seq, err := req.Sequence.Sequence(loader.Options{DefaultUnit: s.cfg.GetPositionUnit()})
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid sequence: %v", err))
		return nil, nil, false
	}
	ex, err := req.Exercise.Exercise()
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid exercise: %v", err))
		return nil, nil, false
	}
	return seq, ex, true
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) (*pipeline.AnalysisResult, bool) {
	seq, ex, ok := s.decodeAnalyzeRequest(w, r)
	if !ok {
		return nil, false
	}
	res, err := s.analyzer.Analyze(r.Context(), seq, ex)
	if err != nil {
		httputil.Unprocessable(w, fmt.Sprintf("analysis failed: %v", err))
		return nil, false
	}
	return res, true
}

func (s *Server) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createAnalysis(w, r)
	case http.MethodGet:
		s.listAnalyses(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) createAnalysis(w http.ResponseWriter, r *http.Request) {
	res, ok := s.analyze(w, r)
	if !ok {
		return
	}
	if s.db != nil {
		if err := s.db.SaveAnalysis(r.Context(), res); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to store analysis: %v", err))
			return
		}
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "no database configured")
		return false
	}
	return true
}

func (s *Server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	limit := DefaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = v
	}
	runs, err := s.db.ListAnalyses(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to list analyses: %v", err))
		return
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireDB(w) {
		return
	}
	id := r.PathValue("id")

	if r.Method == http.MethodDelete {
		if err := s.db.DeleteAnalysis(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	res, err := s.db.GetAnalysis(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, res)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.requireDB(w) {
		return
	}
	rep := -1
	if v := r.URL.Query().Get("rep"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "Invalid 'rep' parameter")
			return
		}
		rep = n
	}
	results, err := s.db.ListEvaluationResults(r.Context(), r.PathValue("id"), rep)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, results)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}

// handleAngleChart renders an ad-hoc analysis as an HTML chart page. The
// run is not stored.
func (s *Server) handleAngleChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	res, ok := s.analyze(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := monitor.RenderAngleChart(&buf, nil, res); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.cfg)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}

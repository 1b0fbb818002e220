package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/motion.report/internal/api"
	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/httputil"
	"github.com/banshee-data/motion.report/internal/kinematics/l5evaluate"
	"github.com/banshee-data/motion.report/internal/kinematics/loader"
	"github.com/banshee-data/motion.report/internal/kinematics/monitor"
	"github.com/banshee-data/motion.report/internal/kinematics/pipeline"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/security"
	"github.com/banshee-data/motion.report/internal/units"
)

// analysisReport is the -json output of analyze: the run plus every frame
// record.
type analysisReport struct {
	*pipeline.AnalysisResult
	Results []l5evaluate.EvaluationResult `json:"results"`
}

// loadConfig reads path, or returns built-in defaults when path is empty.
func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

func runAnalyze(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	seqPath := fs.String("sequence", "", "Sequence JSON file (required)")
	exPath := fs.String("exercise", "", "Exercise JSON file (required)")
	cfgPath := fs.String("config", "", "Tuning config JSON file (default: built-in values)")
	dbPath := fs.String("db", "", "Store the run in this database")
	reportDir := fs.String("report-dir", "", "Write HTML and PNG angle charts to this directory")
	jsonPath := fs.String("json", "", "Write the full result, with frame records, to this file")
	debug := fs.Bool("debug", false, "Log per-signal diagnostics to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *seqPath == "" || *exPath == "" {
		fs.Usage()
		return fmt.Errorf("-sequence and -exercise are required")
	}
	if *debug {
		monitoring.SetDebugLogger(os.Stderr)
		defer monitoring.SetDebugLogger(nil)
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	seq, err := loader.LoadSequenceFile(*seqPath, loader.Options{DefaultUnit: cfg.GetPositionUnit()})
	if err != nil {
		return err
	}
	ex, err := loader.LoadExerciseFile(*exPath)
	if err != nil {
		return err
	}

	res, err := pipeline.NewAnalyzer(cfg).Analyze(ctx, seq, ex)
	if err != nil {
		return err
	}
	printSummary(out, res)

	if *dbPath != "" {
		store, err := db.NewDB(*dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		if err := store.SaveAnalysis(ctx, res); err != nil {
			return err
		}
		log.Printf("stored analysis %s in %s", res.ID, *dbPath)
	}

	if *jsonPath != "" {
		if err := writeReportJSON(*jsonPath, res); err != nil {
			return err
		}
	}

	if *reportDir != "" {
		if _, err := monitor.NewAnglePlotter().SavePlots(*reportDir, nil, res); err != nil {
			return err
		}
		if err := writeChartHTML(*reportDir, res); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(out io.Writer, res *pipeline.AnalysisResult) {
	fmt.Fprintf(out, "%s: %s, %d frames over %.2fs\n", res.Exercise, res.Sequence, res.Frames, res.Duration)
	fmt.Fprintf(out, "analysis %s, %d repetition(s)\n", res.ID, len(res.Repetitions))
	for i, rep := range res.Repetitions {
		r, s := rep.Repetition, rep.Summary
		fmt.Fprintf(out, "  rep %d: frames %d-%d (turn %d), %.2fs, %.1f%% in range\n",
			i+1, r.Start, r.End, r.Turn, s.Duration, 100*s.InRangeRatio)
	}
}

func writeReportJSON(path string, res *pipeline.AnalysisResult) error {
	if err := security.ValidateExportPath(path); err != nil {
		return fmt.Errorf("invalid json output path: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(analysisReport{AnalysisResult: res, Results: res.Results()}); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeChartHTML(dir string, res *pipeline.AnalysisResult) error {
	path := filepath.Join(dir, security.SanitizeFilename(res.Sequence)+"_angles.html")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := monitor.RenderAngleChart(f, nil, res); err != nil {
		return err
	}
	log.Printf("wrote angle chart to %s", path)
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", defaultListen, "Listen address")
	dbPath := fs.String("db", defaultDBFile, "Database file; empty disables storage")
	cfgPath := fs.String("config", "", "Tuning config JSON file (default: built-in values)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen == "" {
		return fmt.Errorf("listen address is required")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}

	var store *db.DB
	if *dbPath != "" {
		store, err = db.NewDB(*dbPath)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer store.Close()
	}

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(api.NewServer(store, cfg).ServeMux()),
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		wg.Wait()
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return nil
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", defaultDBFile, "Path to database file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return db.RunMigrateCommand(fs.Args(), *dbPath)
}

// runSubmit posts a sequence and exercise to a running server. A nil
// client uses http.DefaultClient.
func runSubmit(args []string, out io.Writer, client httputil.HTTPClient) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	server := fs.String("server", "http://localhost"+defaultListen, "Server base URL")
	seqPath := fs.String("sequence", "", "Sequence JSON file (required)")
	exPath := fs.String("exercise", "", "Exercise JSON file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *seqPath == "" || *exPath == "" {
		fs.Usage()
		return fmt.Errorf("-sequence and -exercise are required")
	}
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}

	seqDoc, err := loader.LoadSequenceDocument(*seqPath)
	if err != nil {
		return err
	}
	exDoc, err := loader.LoadExerciseDocument(*exPath)
	if err != nil {
		return err
	}

	var res pipeline.AnalysisResult
	url := strings.TrimRight(*server, "/") + "/api/analyses"
	if err := httputil.DoJSON(client, http.MethodPost, url, api.AnalyzeRequest{Sequence: *seqDoc, Exercise: *exDoc}, &res); err != nil {
		return fmt.Errorf("failed to submit analysis: %w", err)
	}
	printSummary(out, &res)
	return nil
}

func runList(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	dbPath := fs.String("db", defaultDBFile, "Path to database file")
	tz := fs.String("tz", "UTC", "Timezone for displayed times")
	limit := fs.Int("limit", api.DefaultListLimit, "Maximum runs to list; 0 lists all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !units.IsTimezoneValid(*tz) {
		return fmt.Errorf("invalid timezone %q", *tz)
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	runs, err := store.ListAnalyses(ctx, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tEXERCISE\tSEQUENCE\tFRAMES\tREPS")
	for _, run := range runs {
		created, err := units.ConvertTime(run.CreatedAt, *tz)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n", run.ID, created.Format("2006-01-02 15:04:05 MST"),
			run.Exercise, run.Sequence, run.Frames, run.Repetitions)
	}
	return tw.Flush()
}

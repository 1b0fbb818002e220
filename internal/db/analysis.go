package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
	"github.com/banshee-data/motion.report/internal/kinematics/l5evaluate"
	"github.com/banshee-data/motion.report/internal/kinematics/pipeline"
)

// timeLayout sorts lexically in the same order as the instants it encodes.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when a requested analysis run does not exist.
var ErrNotFound = errors.New("not found")

// AnalysisRun is the stored header of one analysis run.
type AnalysisRun struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	Version     string            `json:"version"`
	Exercise    string            `json:"exercise"`
	Sequence    string            `json:"sequence"`
	Frames      int               `json:"frames"`
	Duration    float64           `json:"duration"`
	ElapsedMS   int64             `json:"elapsed_ms"`
	Prioritized []exercise.Signal `json:"prioritized"`
	Repetitions int               `json:"repetitions"`
}

// SaveAnalysis stores a run with its repetitions and every evaluation
// record in one transaction. Untracked angles are stored as NULL.
func (db *DB) SaveAnalysis(ctx context.Context, res *pipeline.AnalysisResult) error {
	if res == nil || res.ID == "" {
		return fmt.Errorf("analysis result has no id")
	}
	prioritized, err := json.Marshal(res.Prioritized)
	if err != nil {
		return fmt.Errorf("failed to encode prioritized signals: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analysis_runs (
			run_id, created_at, version, exercise, sequence,
			frames, duration_s, elapsed_ms, prioritized_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.CreatedAt.UTC().Format(timeLayout), res.Version, res.Exercise, res.Sequence,
		res.Frames, res.Duration, res.ElapsedMS, string(prioritized),
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis run: %w", err)
	}

	repStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO repetitions (
			run_id, rep_index, start_frame, turn_frame, end_frame,
			duration_s, in_range_ratio, summary_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare repetition insert: %w", err)
	}
	defer repStmt.Close()

	resStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO evaluation_results (
			run_id, rep_index, frame, joint, movement, angle,
			target_min, target_max, target_state, result
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer resStmt.Close()

	for i, rep := range res.Repetitions {
		summary, err := json.Marshal(rep.Summary)
		if err != nil {
			return fmt.Errorf("failed to encode summary of repetition %d: %w", i, err)
		}
		r := rep.Repetition
		if _, err := repStmt.ExecContext(ctx, res.ID, i, r.Start, r.Turn, r.End,
			rep.Summary.Duration, rep.Summary.InRangeRatio, string(summary)); err != nil {
			return fmt.Errorf("failed to insert repetition %d: %w", i, err)
		}

		for _, er := range rep.Results {
			var angle sql.NullFloat64
			if !math.IsNaN(er.Angle) {
				angle = sql.NullFloat64{Float64: er.Angle, Valid: true}
			}
			if _, err := resStmt.ExecContext(ctx, res.ID, i, er.Frame, string(er.Joint), er.Movement.String(),
				angle, er.TargetMin, er.TargetMax, er.TargetState.String(), er.Result.String()); err != nil {
				return fmt.Errorf("failed to insert result for repetition %d frame %d: %w", i, er.Frame, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analysis %s: %w", res.ID, err)
	}
	return nil
}

const runColumns = `
	r.run_id, r.created_at, r.version, r.exercise, r.sequence,
	r.frames, r.duration_s, r.elapsed_ms, r.prioritized_json,
	(SELECT COUNT(*) FROM repetitions p WHERE p.run_id = r.run_id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*AnalysisRun, error) {
	var (
		run         AnalysisRun
		createdAt   string
		prioritized string
	)
	if err := row.Scan(&run.ID, &createdAt, &run.Version, &run.Exercise, &run.Sequence,
		&run.Frames, &run.Duration, &run.ElapsedMS, &prioritized, &run.Repetitions); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
	}
	run.CreatedAt = t
	if err := json.Unmarshal([]byte(prioritized), &run.Prioritized); err != nil {
		return nil, fmt.Errorf("failed to decode prioritized signals: %w", err)
	}
	return &run, nil
}

// ListAnalyses returns stored runs, newest first. A non-positive limit
// returns every run.
func (db *DB) ListAnalyses(ctx context.Context, limit int) ([]AnalysisRun, error) {
	query := `SELECT ` + runColumns + ` FROM analysis_runs r ORDER BY r.created_at DESC, r.run_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	runs := []AnalysisRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetAnalysis loads a run with its repetitions and summaries. Frame
// records are not loaded; use ListEvaluationResults for those.
func (db *DB) GetAnalysis(ctx context.Context, id string) (*pipeline.AnalysisResult, error) {
	run, err := scanRun(db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM analysis_runs r WHERE r.run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis %s: %w", id, err)
	}

	res := &pipeline.AnalysisResult{
		ID:          run.ID,
		CreatedAt:   run.CreatedAt,
		Version:     run.Version,
		Exercise:    run.Exercise,
		Sequence:    run.Sequence,
		Frames:      run.Frames,
		Duration:    run.Duration,
		ElapsedMS:   run.ElapsedMS,
		Prioritized: run.Prioritized,
		Repetitions: []l5evaluate.RepetitionEvaluation{},
	}

	rows, err := db.QueryContext(ctx, `
		SELECT start_frame, turn_frame, end_frame, summary_json
		FROM repetitions WHERE run_id = ? ORDER BY rep_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query repetitions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rep     l5evaluate.RepetitionEvaluation
			summary string
		)
		if err := rows.Scan(&rep.Repetition.Start, &rep.Repetition.Turn, &rep.Repetition.End, &summary); err != nil {
			return nil, fmt.Errorf("failed to scan repetition: %w", err)
		}
		if err := json.Unmarshal([]byte(summary), &rep.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode repetition summary: %w", err)
		}
		res.Repetitions = append(res.Repetitions, rep)
	}
	return res, rows.Err()
}

// ListEvaluationResults returns the frame records of one repetition, or of
// every repetition when rep is negative. Rows come back in frame order.
func (db *DB) ListEvaluationResults(ctx context.Context, id string, rep int) ([]l5evaluate.EvaluationResult, error) {
	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) > 0 FROM analysis_runs WHERE run_id = ?`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check analysis %s: %w", id, err)
	}
	if !exists {
		return nil, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}

	query := `
		SELECT frame, joint, movement, angle, target_min, target_max, target_state, result
		FROM evaluation_results WHERE run_id = ?`
	args := []any{id}
	if rep >= 0 {
		query += ` AND rep_index = ?`
		args = append(args, rep)
	}
	query += ` ORDER BY rep_index, frame, rowid`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluation results: %w", err)
	}
	defer rows.Close()

	results := []l5evaluate.EvaluationResult{}
	for rows.Next() {
		var (
			r                      l5evaluate.EvaluationResult
			joint, movement, state string
			result                 string
			angle                  sql.NullFloat64
		)
		if err := rows.Scan(&r.Frame, &joint, &movement, &angle, &r.TargetMin, &r.TargetMax, &state, &result); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation result: %w", err)
		}
		r.Joint = exercise.Joint(joint)
		if r.Movement, err = exercise.ParseMovement(movement); err != nil {
			return nil, err
		}
		if r.TargetState, err = exercise.ParseTargetState(state); err != nil {
			return nil, err
		}
		if r.Result, err = l5evaluate.ParseResultState(result); err != nil {
			return nil, err
		}
		r.Angle = math.NaN()
		if angle.Valid {
			r.Angle = angle.Float64
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteAnalysis removes a run; repetitions and records cascade.
func (db *DB) DeleteAnalysis(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM analysis_runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	return nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the analysis tuning parameters. The schema matches
// the /api/config endpoint so the same JSON can be used for startup
// configuration and inspection.
type TuningConfig struct {
	// Smoothing and extrema params
	SmoothingWindow *int `json:"smoothing_window,omitempty"`
	PolyOrder       *int `json:"poly_order,omitempty"`
	ExtremaOrder    *int `json:"extrema_order,omitempty"`

	// Confirmation params
	ConfirmationWindow *int `json:"confirmation_window,omitempty"`
	MinAgreement       *int `json:"min_agreement,omitempty"` // 0 means n-1 signals

	// Boundary injection params
	StartFrameMinDist *int     `json:"start_frame_min_dist,omitempty"`
	EndFrameMinDist   *int     `json:"end_frame_min_dist,omitempty"`
	BoundaryTolerance *float64 `json:"boundary_tolerance,omitempty"`

	// Evaluation params
	EvaluationTolerance *float64 `json:"evaluation_tolerance,omitempty"`
	SingularityDelta    *float64 `json:"singularity_delta,omitempty"`
	ParallelTolerance   *float64 `json:"parallel_tolerance,omitempty"`

	// Input params
	PositionUnit *string `json:"position_unit,omitempty"` // "m", "cm" or "mm"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a config with every field set to the value
// its getter falls back to.
func DefaultTuningConfig() *TuningConfig {
	c := EmptyTuningConfig()
	return &TuningConfig{
		SmoothingWindow:     ptrInt(c.GetSmoothingWindow()),
		PolyOrder:           ptrInt(c.GetPolyOrder()),
		ExtremaOrder:        ptrInt(c.GetExtremaOrder()),
		ConfirmationWindow:  ptrInt(c.GetConfirmationWindow()),
		MinAgreement:        ptrInt(c.GetMinAgreement()),
		StartFrameMinDist:   ptrInt(c.GetStartFrameMinDist()),
		EndFrameMinDist:     ptrInt(c.GetEndFrameMinDist()),
		BoundaryTolerance:   ptrFloat64(c.GetBoundaryTolerance()),
		EvaluationTolerance: ptrFloat64(c.GetEvaluationTolerance()),
		SingularityDelta:    ptrFloat64(c.GetSingularityDelta()),
		ParallelTolerance:   ptrFloat64(c.GetParallelTolerance()),
		PositionUnit:        ptrString(c.GetPositionUnit()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/kinematics/pipeline/
		"../../../../" + DefaultConfigPath,    // deeper packages
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	window := c.GetSmoothingWindow()
	if window < 1 || window%2 == 0 {
		return fmt.Errorf("smoothing_window must be a positive odd number, got %d", window)
	}
	if order := c.GetPolyOrder(); order < 0 || order >= window {
		return fmt.Errorf("poly_order must be in [0, %d), got %d", window, order)
	}
	if v := c.GetExtremaOrder(); v < 1 {
		return fmt.Errorf("extrema_order must be positive, got %d", v)
	}
	if v := c.GetConfirmationWindow(); v < 1 {
		return fmt.Errorf("confirmation_window must be positive, got %d", v)
	}
	if v := c.GetMinAgreement(); v < 0 {
		return fmt.Errorf("min_agreement must be non-negative, got %d", v)
	}
	if v := c.GetStartFrameMinDist(); v < 0 {
		return fmt.Errorf("start_frame_min_dist must be non-negative, got %d", v)
	}
	if v := c.GetEndFrameMinDist(); v < 0 {
		return fmt.Errorf("end_frame_min_dist must be non-negative, got %d", v)
	}
	if v := c.GetBoundaryTolerance(); v < 0 {
		return fmt.Errorf("boundary_tolerance must be non-negative, got %f", v)
	}
	if v := c.GetEvaluationTolerance(); v < 0 {
		return fmt.Errorf("evaluation_tolerance must be non-negative, got %f", v)
	}
	if v := c.GetSingularityDelta(); v < 0 || v > 90 {
		return fmt.Errorf("singularity_delta must be between 0 and 90, got %f", v)
	}
	if v := c.GetParallelTolerance(); v <= 0 {
		return fmt.Errorf("parallel_tolerance must be positive, got %g", v)
	}
	switch u := c.GetPositionUnit(); u {
	case "m", "cm", "mm":
	default:
		return fmt.Errorf("position_unit must be one of m, cm, mm, got %q", u)
	}
	return nil
}

// GetSmoothingWindow returns the smoothing_window value or the default.
func (c *TuningConfig) GetSmoothingWindow() int {
	if c.SmoothingWindow == nil {
		return 51
	}
	return *c.SmoothingWindow
}

// GetPolyOrder returns the poly_order value or the default.
func (c *TuningConfig) GetPolyOrder() int {
	if c.PolyOrder == nil {
		return 3
	}
	return *c.PolyOrder
}

// GetExtremaOrder returns the extrema_order value or the default.
func (c *TuningConfig) GetExtremaOrder() int {
	if c.ExtremaOrder == nil {
		return 10
	}
	return *c.ExtremaOrder
}

// GetConfirmationWindow returns the confirmation_window value or the default.
func (c *TuningConfig) GetConfirmationWindow() int {
	if c.ConfirmationWindow == nil {
		return 30
	}
	return *c.ConfirmationWindow
}

// GetMinAgreement returns the min_agreement value or the default.
func (c *TuningConfig) GetMinAgreement() int {
	if c.MinAgreement == nil {
		return 0
	}
	return *c.MinAgreement
}

// GetStartFrameMinDist returns the start_frame_min_dist value or the default.
func (c *TuningConfig) GetStartFrameMinDist() int {
	if c.StartFrameMinDist == nil {
		return 10
	}
	return *c.StartFrameMinDist
}

// GetEndFrameMinDist returns the end_frame_min_dist value or the default.
func (c *TuningConfig) GetEndFrameMinDist() int {
	if c.EndFrameMinDist == nil {
		return 10
	}
	return *c.EndFrameMinDist
}

// GetBoundaryTolerance returns the boundary_tolerance value or the default.
func (c *TuningConfig) GetBoundaryTolerance() float64 {
	if c.BoundaryTolerance == nil {
		return 10.0
	}
	return *c.BoundaryTolerance
}

// GetEvaluationTolerance returns the evaluation_tolerance value or the default.
func (c *TuningConfig) GetEvaluationTolerance() float64 {
	if c.EvaluationTolerance == nil {
		return 10.0
	}
	return *c.EvaluationTolerance
}

// GetSingularityDelta returns the singularity_delta value or the default.
func (c *TuningConfig) GetSingularityDelta() float64 {
	if c.SingularityDelta == nil {
		return 20.0
	}
	return *c.SingularityDelta
}

// GetParallelTolerance returns the parallel_tolerance value or the default.
func (c *TuningConfig) GetParallelTolerance() float64 {
	if c.ParallelTolerance == nil {
		return 1e-6
	}
	return *c.ParallelTolerance
}

// GetPositionUnit returns the position_unit value or the default.
func (c *TuningConfig) GetPositionUnit() string {
	if c.PositionUnit == nil || *c.PositionUnit == "" {
		return "m"
	}
	return *c.PositionUnit
}

package l4segment

import "github.com/banshee-data/motion.report/internal/config"

// DefaultParamsFromFile returns segmentation params loaded from the
// canonical tuning defaults file (config/tuning.defaults.json).
// Panics if the file cannot be found; intended for tests and binaries
// that have already validated config availability.
func DefaultParamsFromFile() Params {
	return ParamsFromTuning(config.MustLoadDefaultConfig())
}

// ParamsFromTuning builds segmentation params from a loaded TuningConfig.
func ParamsFromTuning(cfg *config.TuningConfig) Params {
	return Params{
		SmoothingWindow:   cfg.GetSmoothingWindow(),
		PolyOrder:         cfg.GetPolyOrder(),
		ExtremaOrder:      cfg.GetExtremaOrder(),
		StartFrameMinDist: cfg.GetStartFrameMinDist(),
		EndFrameMinDist:   cfg.GetEndFrameMinDist(),
		BoundaryTolerance: cfg.GetBoundaryTolerance(),
		WindowSize:        cfg.GetConfirmationWindow(),
		MinAgreement:      cfg.GetMinAgreement(),
	}
}

// Package l4segment owns Layer 4 (Segmentation) of the kinematics data
// model.
//
// Responsibilities: Savitzky–Golay smoothing of joint-angle signals,
// local-extrema extraction, and repetition segmentation. Segmentation runs
// in two passes: pass 1 collects per-signal start and turn candidates, pass
// 2 confirms candidates that co-occur across signals inside a sliding
// window and pairs them into (start, turn, end) triples.
// Key types: Segmenter, Params, Repetition.
//
// Dependency rule: L4 may depend on L1-L3, but never on L5+.
package l4segment

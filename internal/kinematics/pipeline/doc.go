// Package pipeline chains the kinematics layers into one analysis run.
//
// Responsibilities: computing joint angles when a sequence carries none,
// applying the ball-joint range convention for the exercise, segmenting,
// evaluating and summarising, and stamping the run with an ID, version and
// time.
// Key types: Analyzer, AnalysisResult.
//
// Dependency rule: pipeline may depend on every kinematics layer; the layer
// packages never depend on pipeline. Consumers of a finished run (monitor,
// db, api) import it.
package pipeline

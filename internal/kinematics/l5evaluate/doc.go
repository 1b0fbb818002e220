// Package l5evaluate owns Layer 5 (Evaluation) of the kinematics data model.
//
// Responsibilities: classifying observed joint angles against an exercise's
// START and END target ranges, per frame of each repetition, and
// summarising repetitions.
// Key types: ExerciseEvaluator, EvaluationResult, RepetitionSummary.
//
// Dependency rule: L5 may depend on L1-L4.
package l5evaluate

// Package monitor renders finished analysis runs for people: interactive
// HTML joint-angle charts (go-echarts) and static PNG plots (gonum/plot).
// Both mark the start, turn and end frame of every repetition.
//
// Dependency rule: monitor reads pipeline results and the kinematics types
// they carry; it never runs an analysis itself.
package monitor

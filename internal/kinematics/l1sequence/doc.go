// Package l1sequence owns Layer 1 (Sequence) of the kinematics data model.
//
// Responsibilities: holding per-frame landmark positions, timestamps and
// joint angles, the body-part registry, sensor-dropout filtering, slicing
// and merging.
// Key types: Sequence, AngleType.
//
// Dependency rule: L1 depends on nothing else in internal/kinematics.
// No geometry or angle computation happens here.
package l1sequence

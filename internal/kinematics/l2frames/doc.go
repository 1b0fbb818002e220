// Package l2frames owns Layer 2 (Frames) of the kinematics data model.
//
// Responsibilities: building an orthonormal joint-local coordinate frame
// from three landmarks and the 4×4 homogeneous transform that re-expresses
// a frame's landmarks in it.
// Key types: Builder, Frame.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2frames

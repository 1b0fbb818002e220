// Package l3angles owns Layer 3 (Angles) of the kinematics data model.
//
// Responsibilities: medical joint angles per frame. Ball joints (shoulders,
// hips) are decomposed from spherical coordinates in a joint-local frame;
// hinge joints (elbows, knees) use a three-point angle. A RangeConvention
// then corrects ball-joint angles in place.
// Key types: Engine, JointRangeConvention.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4+.
package l3angles

package l5evaluate

import (
	"errors"
	"fmt"

	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
)

// ErrInconsistentEvaluation is returned when an angle fits none of the
// classification branches, which only happens for NaN input.
var ErrInconsistentEvaluation = errors.New("inconsistent evaluation")

// ResultState is the outcome of comparing an angle to its target.
type ResultState int

const (
	None ResultState = iota
	InTargetRange
	TargetExceeded
	TargetUndercut
)

var resultNames = map[ResultState]string{
	None:           "NONE",
	InTargetRange:  "IN_TARGET_RANGE",
	TargetExceeded: "TARGET_EXCEEDED",
	TargetUndercut: "TARGET_UNDERCUT",
}

func (r ResultState) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("result_state(%d)", int(r))
}

// MarshalText encodes the state name.
func (r ResultState) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText decodes a state name.
func (r *ResultState) UnmarshalText(b []byte) error {
	v, err := ParseResultState(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseResultState is the inverse of String.
func ParseResultState(s string) (ResultState, error) {
	for k, v := range resultNames {
		if v == s {
			return k, nil
		}
	}
	return None, fmt.Errorf("unknown result state %q", s)
}

// Intent is the direction of movement from the START to the END posture.
type Intent int

const (
	Zero Intent = iota
	Flexion
	Extension
)

// IntentOf compares the upper bounds of the END and START ranges.
func IntentOf(startRange, endRange exercise.Range) Intent {
	switch {
	case endRange.Max > startRange.Max:
		return Flexion
	case endRange.Max < startRange.Max:
		return Extension
	}
	return Zero
}

// Classify compares angle with [targetMin-tolerance, targetMax+tolerance].
// For flexion intent an angle below the window undercuts the target and
// one above exceeds it; for extension and zero intent the mapping is
// reversed. state names the posture the window belongs to and is only used
// in error reports.
func Classify(angle float64, state exercise.TargetState, startRange, endRange exercise.Range, targetMin, targetMax, tolerance float64) (ResultState, error) {
	flexion := IntentOf(startRange, endRange) == Flexion
	switch {
	case angle < targetMin-tolerance:
		if flexion {
			return TargetUndercut, nil
		}
		return TargetExceeded, nil
	case angle > targetMax+tolerance:
		if flexion {
			return TargetExceeded, nil
		}
		return TargetUndercut, nil
	case angle >= targetMin-tolerance && angle <= targetMax+tolerance:
		return InTargetRange, nil
	}
	return None, fmt.Errorf("%w: angle %v against %s target [%v, %v]", ErrInconsistentEvaluation, angle, state, targetMin, targetMax)
}

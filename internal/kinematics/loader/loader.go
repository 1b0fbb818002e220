package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motion.report/internal/kinematics/exercise"
	"github.com/banshee-data/motion.report/internal/kinematics/l1sequence"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/security"
	"github.com/banshee-data/motion.report/internal/units"
)

// MaxFileSize bounds sequence and exercise files.
const MaxFileSize = 64 * 1024 * 1024 // 64MB

// ErrInvalidCoordinates is returned when a landmark position does not hold
// exactly three values.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Options controls sequence decoding.
type Options struct {
	// DefaultUnit applies when the document has no "unit" field.
	DefaultUnit string
}

// SequenceDocument is the on-disk sequence schema.
type SequenceDocument struct {
	Name       string         `json:"name"`
	Unit       string         `json:"unit,omitempty"`
	BodyParts  map[string]int `json:"body_parts"`
	Timestamps []float64      `json:"timestamps"`
	Positions  [][][]float64  `json:"positions"`
	// JointAngles is optional; null entries are untracked.
	JointAngles [][][]*float64 `json:"joint_angles,omitempty"`
}

// TargetDocument is one leaf of the exercise angle table.
type TargetDocument struct {
	Angle    []float64       `json:"angle"`
	Priority json.RawMessage `json:"priority"`
}

// ExerciseDocument is the on-disk exercise schema:
// angles[state][joint][movement] = {angle: [a, b], priority}.
type ExerciseDocument struct {
	Name        string                                          `json:"name"`
	Description string                                          `json:"description"`
	Angles      map[string]map[string]map[string]TargetDocument `json:"angles"`
}

// ReadSequence decodes a sequence document and converts positions to
// metres.
func ReadSequence(r io.Reader, opts Options) (*l1sequence.Sequence, error) {
	var doc SequenceDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode sequence JSON: %w", err)
	}
	return doc.Sequence(opts)
}

// Sequence converts the document into a Sequence.
func (doc *SequenceDocument) Sequence(opts Options) (*l1sequence.Sequence, error) {
	unit := doc.Unit
	if unit == "" {
		unit = opts.DefaultUnit
	}
	if unit == "" {
		unit = units.M
	}
	if !units.IsValid(unit) {
		return nil, fmt.Errorf("sequence %q: unknown unit %q (valid: %s)", doc.Name, unit, units.GetValidUnitsString())
	}
	if len(doc.BodyParts) == 0 {
		return nil, fmt.Errorf("sequence %q: no body_parts", doc.Name)
	}
	scale := units.MetresPer(unit)

	partNames := make(map[int]string, len(doc.BodyParts))
	for name, idx := range doc.BodyParts {
		partNames[idx] = name
	}
	positions := make([][]r3.Vec, len(doc.Positions))
	for i, frame := range doc.Positions {
		positions[i] = make([]r3.Vec, len(frame))
		for j, p := range frame {
			if len(p) != 3 {
				part, ok := partNames[j]
				if !ok {
					part = strconv.Itoa(j)
				}
				return nil, fmt.Errorf("%w: sequence %q: frame %d part %s has %d values, want 3", ErrInvalidCoordinates, doc.Name, i, part, len(p))
			}
			positions[i][j] = r3.Vec{X: p[0] * scale, Y: p[1] * scale, Z: p[2] * scale}
		}
	}

	var angles [][]l1sequence.Angles
	if doc.JointAngles != nil {
		angles = make([][]l1sequence.Angles, len(doc.JointAngles))
		for i, frame := range doc.JointAngles {
			angles[i] = make([]l1sequence.Angles, len(frame))
			for j, part := range frame {
				if len(part) > int(l1sequence.NumAngleTypes) {
					return nil, fmt.Errorf("sequence %q: frame %d part %d has %d angle types, max %d", doc.Name, i, j, len(part), l1sequence.NumAngleTypes)
				}
				for k := range angles[i][j] {
					angles[i][j][k] = l1sequence.Untracked
					if k < len(part) && part[k] != nil {
						angles[i][j][k] = *part[k]
					}
				}
			}
		}
	}

	seq, err := l1sequence.NewWithAngles(doc.Name, doc.BodyParts, positions, doc.Timestamps, angles)
	if err != nil {
		return nil, err
	}
	if dropped := len(doc.Positions) - seq.Len(); dropped > 0 {
		monitoring.Logf("[Loader] sequence %q: dropped %d all-zero frames", doc.Name, dropped)
	}
	return seq, nil
}

// ReadExercise decodes an exercise document.
func ReadExercise(r io.Reader) (*exercise.Exercise, error) {
	var doc ExerciseDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode exercise JSON: %v", exercise.ErrInvalidExerciseDefinition, err)
	}
	return doc.Exercise()
}

// Exercise converts the document into a validated Exercise. Errors name
// the offending key path.
func (doc *ExerciseDocument) Exercise() (*exercise.Exercise, error) {
	if strings.TrimSpace(doc.Name) == "" {
		return nil, fmt.Errorf("%w: missing name", exercise.ErrInvalidExerciseDefinition)
	}
	if len(doc.Angles) == 0 {
		return nil, fmt.Errorf("%w: exercise %q: missing angles", exercise.ErrInvalidExerciseDefinition, doc.Name)
	}

	targets := make(map[exercise.TargetKey]exercise.Target)
	for stateName, joints := range doc.Angles {
		state, err := exercise.ParseTargetState(stateName)
		if err != nil {
			return nil, fmt.Errorf("exercise %q: angles.%s: %w", doc.Name, stateName, err)
		}
		for jointName, movements := range joints {
			joint := exercise.Joint(jointName)
			if !joint.Valid() {
				return nil, fmt.Errorf("%w: exercise %q: angles.%s.%s: unknown joint", exercise.ErrInvalidExerciseDefinition, doc.Name, stateName, jointName)
			}
			for movementName, t := range movements {
				path := fmt.Sprintf("angles.%s.%s.%s", stateName, jointName, movementName)
				movement, err := exercise.ParseMovement(movementName)
				if err != nil {
					return nil, fmt.Errorf("exercise %q: %s: %w", doc.Name, path, err)
				}
				if len(t.Angle) != 2 {
					return nil, fmt.Errorf("%w: exercise %q: %s.angle must have 2 values, got %d", exercise.ErrInvalidExerciseDefinition, doc.Name, path, len(t.Angle))
				}
				prio, err := parsePriority(t.Priority)
				if err != nil {
					return nil, fmt.Errorf("exercise %q: %s.priority: %w", doc.Name, path, err)
				}
				targets[exercise.TargetKey{Joint: joint, Movement: movement, State: state}] = exercise.Target{
					Range:    exercise.NewRange(t.Angle[0], t.Angle[1]),
					Priority: prio,
				}
			}
		}
	}
	return exercise.New(doc.Name, doc.Description, targets)
}

// parsePriority accepts "HIGH"/"MEDIUM"/"LOW" or one of their numeric
// weights.
func parsePriority(raw json.RawMessage) (exercise.Priority, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: missing priority", exercise.ErrInvalidExerciseDefinition)
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return exercise.ParsePriority(name)
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: priority %s is neither a name nor a number", exercise.ErrInvalidExerciseDefinition, raw)
	}
	switch p := exercise.Priority(v); p {
	case exercise.High, exercise.Medium, exercise.Low:
		return p, nil
	}
	return 0, fmt.Errorf("%w: priority %v is not 1.0, 0.5 or 0.0", exercise.ErrInvalidExerciseDefinition, v)
}

// openChecked opens a .json input of at most MaxFileSize bytes.
func openChecked(path string) (*os.File, error) {
	return security.OpenInputFile(path, ".json", MaxFileSize)
}

// LoadSequenceDocument reads the raw sequence document at path. An unnamed
// sequence takes the file's base name.
func LoadSequenceDocument(path string) (*SequenceDocument, error) {
	f, err := openChecked(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var doc SequenceDocument
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode sequence %s: %w", path, err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	return &doc, nil
}

// LoadSequenceFile reads a sequence document from path and converts it.
func LoadSequenceFile(path string, opts Options) (*l1sequence.Sequence, error) {
	doc, err := LoadSequenceDocument(path)
	if err != nil {
		return nil, err
	}
	return doc.Sequence(opts)
}

// LoadExerciseDocument reads the raw exercise document at path without
// validating it.
func LoadExerciseDocument(path string) (*ExerciseDocument, error) {
	f, err := openChecked(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var doc ExerciseDocument
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode exercise %s: %v", exercise.ErrInvalidExerciseDefinition, path, err)
	}
	return &doc, nil
}

// LoadExerciseFile reads an exercise document from path.
func LoadExerciseFile(path string) (*exercise.Exercise, error) {
	doc, err := LoadExerciseDocument(path)
	if err != nil {
		return nil, err
	}
	ex, err := doc.Exercise()
	if err != nil {
		return nil, fmt.Errorf("failed to load exercise %s: %w", path, err)
	}
	return ex, nil
}

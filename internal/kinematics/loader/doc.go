// Package loader decodes motion sequences and exercise definitions from
// JSON.
//
// Responsibilities: schema decoding, unit conversion of landmark positions
// to metres, and translating the nested exercise target document into the
// typed exercise table.
// Key functions: ReadSequence, ReadExercise, LoadSequenceFile,
// LoadExerciseFile.
//
// Dependency rule: loader may depend on L1 and exercise, never on the
// computation layers (L2-L5). The core never imports loader.
package loader

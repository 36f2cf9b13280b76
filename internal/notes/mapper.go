package notes

import (
	"fmt"
	"math"
)

// noteNames is the chromatic pitch-class table, index 0 is C.
var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Tuning anchors equal temperament to a reference pitch.
type Tuning struct {
	ReferenceHz    float64 // Frequency of the reference pitch (A4 = 440 by default)
	ReferenceIndex int     // Semitone index assigned to the reference pitch (MIDI 69 for A4)
}

// StandardTuning is A4 = 440 Hz at MIDI index 69.
var StandardTuning = Tuning{ReferenceHz: 440.0, ReferenceIndex: 69}

// Validate checks that the reference pitch is usable.
func (t Tuning) Validate() error {
	if math.IsNaN(t.ReferenceHz) || math.IsInf(t.ReferenceHz, 0) || t.ReferenceHz <= 0 {
		return fmt.Errorf("reference frequency must be a positive number, got %v", t.ReferenceHz)
	}
	return nil
}

// Frequency returns the exact equal-tempered frequency for a semitone index.
func (t Tuning) Frequency(index int) float64 {
	return t.ReferenceHz * math.Pow(2, float64(index-t.ReferenceIndex)/12)
}

// Label identifies a note by name and semitone index.
type Label struct {
	Name   string // Pitch class, e.g. "A#"
	Octave int
	Index  int // MIDI-style semitone index
}

// String returns the name with its octave, e.g. "A4" or "C#-1".
func (l Label) String() string {
	return fmt.Sprintf("%s%d", l.Name, l.Octave)
}

// MapFrequency converts a frequency to the nearest equal-tempered note.
//
// Non-positive (and NaN) frequencies are the detector's way of saying the
// frame is unvoiced, so the second return value is false and no label exists.
// Ties between two semitones round away from zero (math.Round).
func MapFrequency(freq float64, tuning Tuning) (Label, bool) {
	if !(freq > 0) || math.IsInf(freq, 0) {
		return Label{}, false
	}

	offset := 12 * math.Log2(freq/tuning.ReferenceHz)
	index := roundIndex(float64(tuning.ReferenceIndex) + offset)

	return LabelForIndex(index), true
}

// roundIndex rounds half away from zero, so 69.5 -> 70 and -0.5 -> -1.
func roundIndex(semitones float64) int {
	return int(math.Round(semitones))
}

// LabelForIndex builds the label for a semitone index. Negative indices wrap
// into the pitch-class table and floor into negative octaves.
func LabelForIndex(index int) Label {
	class := ((index % 12) + 12) % 12
	octave := floorDiv(index, 12) - 1
	return Label{
		Name:   noteNames[class],
		Octave: octave,
		Index:  index,
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Package pitch turns audio files into pitch curves.
//
// Two detectors are provided: crepe, a neural tracker run as a Python
// script, and a Go-native YIN estimator used when crepe is unavailable.
package pitch

import (
	"context"

	"github.com/dygy/melody-grep/internal/notes"
)

// Detector produces a time-ordered pitch curve for an audio file.
type Detector interface {
	Detect(ctx context.Context, audioPath string) ([]notes.PitchFrame, error)
	Name() string
}

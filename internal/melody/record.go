// Package melody defines the persisted melody track produced by an extraction.
package melody

import (
	"math"
	"time"

	"github.com/dygy/melody-grep/internal/notes"
)

// Note is one persisted note of a melody track.
type Note struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Note       string  `json:"note"`
	Frequency  float64 `json:"frequency"`
	Confidence float64 `json:"confidence"`
}

// Record is the result of one successful extraction.
type Record struct {
	SongCode    string    `json:"song_code"`
	SongTitle   string    `json:"song_title,omitempty"`
	Duration    float64   `json:"duration"`
	Notes       []Note    `json:"notes"`
	TotalNotes  int       `json:"total_notes"`
	ProcessedAt time.Time `json:"processed_at"`
}

// NewRecord rounds segments to their persisted precision and assembles a record.
// Duration is the time of the last pitch frame, not the end of the last note.
func NewRecord(songCode, songTitle string, duration float64, segments []notes.Segment, processedAt time.Time) *Record {
	out := make([]Note, 0, len(segments))
	for _, s := range segments {
		out = append(out, Note{
			Start:      Round(s.Start, 3),
			End:        Round(s.End, 3),
			Note:       s.Note,
			Frequency:  Round(s.Frequency, 1),
			Confidence: Round(s.Confidence, 2),
		})
	}

	return &Record{
		SongCode:    songCode,
		SongTitle:   songTitle,
		Duration:    Round(duration, 2),
		Notes:       out,
		TotalNotes:  len(out),
		ProcessedAt: processedAt,
	}
}

// Round rounds v to the given number of decimal places, halves away from zero.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

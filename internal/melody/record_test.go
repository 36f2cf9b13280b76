package melody

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dygy/melody-grep/internal/notes"
)

func TestNewRecordRoundsForPersistence(t *testing.T) {
	segments := []notes.Segment{
		{Start: 0.12345, End: 0.45678, Note: "A4", Frequency: 440.26, Confidence: 0.876},
		{Start: 1.0, End: 1.5, Note: "C5", Frequency: 523.25, Confidence: 0.8},
	}
	processed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rec := NewRecord("SONG1", "Title", 12.3456, segments, processed)

	if rec.TotalNotes != 2 || len(rec.Notes) != 2 {
		t.Fatalf("total notes = %d, len = %d", rec.TotalNotes, len(rec.Notes))
	}
	first := rec.Notes[0]
	if first.Start != 0.123 || first.End != 0.457 {
		t.Errorf("span = [%v, %v], want [0.123, 0.457]", first.Start, first.End)
	}
	if first.Frequency != 440.3 {
		t.Errorf("frequency = %v, want 440.3", first.Frequency)
	}
	if first.Confidence != 0.88 {
		t.Errorf("confidence = %v, want 0.88", first.Confidence)
	}
	if rec.Duration != 12.35 {
		t.Errorf("duration = %v, want 12.35", rec.Duration)
	}
}

func TestRecordJSONShape(t *testing.T) {
	rec := NewRecord("SONG1", "", 0, nil, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"song_code":"SONG1"`, `"notes":[]`, `"total_notes":0`, `"duration":0`, `"processed_at":"2026-01-02T03:04:05Z"`} {
		if !strings.Contains(s, want) {
			t.Errorf("json %s missing %s", s, want)
		}
	}
	if strings.Contains(s, "song_title") {
		t.Errorf("empty title should be omitted: %s", s)
	}
}

package notes

import (
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"testing"
)

func frames(triples ...[3]float64) []PitchFrame {
	out := make([]PitchFrame, len(triples))
	for i, tr := range triples {
		out[i] = PitchFrame{Time: tr[0], Frequency: tr[1], Confidence: tr[2]}
	}
	return out
}

func TestSegmentBoundaryScenario(t *testing.T) {
	input := frames(
		[3]float64{0.0, 440.0, 0.9},
		[3]float64{0.1, 440.0, 0.9},
		[3]float64{0.2, 0, 0.0},
		[3]float64{0.3, 523.25, 0.8},
		[3]float64{0.4, 523.25, 0.8},
	)

	got := SegmentFrames(input, Params{MinDuration: 0.05, MinConfidence: 0.5, Tuning: StandardTuning})
	if len(got) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(got), got)
	}

	want := []struct {
		start, end float64
		note       string
		freq       float64
	}{
		{0.0, 0.2, "A4", 440.0},
		{0.3, 0.4, "C5", 523.25},
	}
	for i, w := range want {
		s := got[i]
		if s.Start != w.start || s.End != w.end {
			t.Errorf("segment %d span = [%v, %v), want [%v, %v)", i, s.Start, s.End, w.start, w.end)
		}
		if s.Note != w.note {
			t.Errorf("segment %d note = %q, want %q", i, s.Note, w.note)
		}
		if s.Frequency != w.freq {
			t.Errorf("segment %d frequency = %v, want %v", i, s.Frequency, w.freq)
		}
	}
	if math.Abs(got[0].Confidence-0.9) > 1e-9 || math.Abs(got[1].Confidence-0.8) > 1e-9 {
		t.Errorf("confidences = %v, %v", got[0].Confidence, got[1].Confidence)
	}
}

func TestSegmentEmptyInput(t *testing.T) {
	got := SegmentFrames(nil, DefaultParams())
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	if d := Duration(nil); d != 0 {
		t.Errorf("Duration(nil) = %v, want 0", d)
	}
}

func TestSegmentShortRunDiscarded(t *testing.T) {
	// A single B4 frame sandwiched between A4 frames lasts 0.01s.
	input := frames(
		[3]float64{0.00, 440, 0.9},
		[3]float64{0.01, 440, 0.9},
		[3]float64{0.10, 440, 0.9},
		[3]float64{0.11, 493.88, 0.9},
		[3]float64{0.12, 440, 0.9},
		[3]float64{0.30, 440, 0.9},
	)

	got := SegmentFrames(input, DefaultParams())
	for _, s := range got {
		if s.Note == "B4" {
			t.Fatalf("short B4 run should have been discarded: %+v", got)
		}
	}
	if len(got) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(got), got)
	}
	if got[0].End != 0.11 || got[1].Start != 0.12 || got[1].End != 0.30 {
		t.Errorf("unexpected spans: %+v", got)
	}
}

func TestSegmentLowConfidenceActsAsSilence(t *testing.T) {
	input := frames(
		[3]float64{0.0, 440, 0.9},
		[3]float64{0.1, 440, 0.9},
		[3]float64{0.2, 440, 0.3},
		[3]float64{0.3, 440, 0.9},
		[3]float64{0.4, 440, 0.9},
	)

	got := SegmentFrames(input, DefaultParams())
	if len(got) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(got), got)
	}
	if got[0].End != 0.2 || got[1].Start != 0.3 {
		t.Errorf("low-confidence frame should split the note: %+v", got)
	}
}

func TestSegmentRejectFrameNeverOpensRun(t *testing.T) {
	input := frames(
		[3]float64{0.0, 0, 0.9},
		[3]float64{0.5, 440, 0.1},
		[3]float64{1.0, -5, 1.0},
	)
	if got := SegmentFrames(input, DefaultParams()); len(got) != 0 {
		t.Fatalf("expected no segments, got %+v", got)
	}
}

func TestSegmentMedianAndMean(t *testing.T) {
	// All within A4, one outlier frequency frame that still maps to A4.
	input := frames(
		[3]float64{0.0, 438, 0.6},
		[3]float64{0.1, 440, 0.8},
		[3]float64{0.2, 452, 1.0},
		[3]float64{0.3, 441, 0.6},
	)
	got := SegmentFrames(input, DefaultParams())
	if len(got) != 1 {
		t.Fatalf("got %d segments, want 1", len(got))
	}
	if got[0].Frequency != 440.5 {
		t.Errorf("median = %v, want 440.5", got[0].Frequency)
	}
	if math.Abs(got[0].Confidence-0.75) > 1e-9 {
		t.Errorf("mean = %v, want 0.75", got[0].Confidence)
	}
	if got[0].End != 0.3 {
		t.Errorf("final segment should end at last frame time, got %v", got[0].End)
	}
}

func TestSegmentSingleTrailingFrameWithZeroMinDuration(t *testing.T) {
	input := frames(
		[3]float64{0.0, 440, 0.9},
		[3]float64{0.1, 523.25, 0.9},
	)
	got := SegmentFrames(input, Params{MinDuration: 0, MinConfidence: 0.5, Tuning: StandardTuning})
	if len(got) != 1 || got[0].Note != "A4" {
		t.Fatalf("expected only the A4 segment, got %+v", got)
	}
}

func TestSegmentInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	params := DefaultParams()

	for trial := 0; trial < 50; trial++ {
		input := randomCurve(rng, 400)
		got := SegmentFrames(input, params)

		for i, s := range got {
			if s.End <= s.Start {
				t.Fatalf("trial %d: segment %d has end <= start: %+v", trial, i, s)
			}
			if s.End-s.Start < params.MinDuration {
				t.Fatalf("trial %d: segment %d shorter than min duration: %+v", trial, i, s)
			}
			if i > 0 && got[i-1].End > s.Start {
				t.Fatalf("trial %d: segments %d and %d overlap", trial, i-1, i)
			}
		}

		again := SegmentFrames(input, params)
		if !reflect.DeepEqual(got, again) {
			t.Fatalf("trial %d: segmentation is not deterministic", trial)
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", again) {
			t.Fatalf("trial %d: formatted output differs", trial)
		}
	}
}

func TestNewSegmenterValidates(t *testing.T) {
	bad := []Params{
		{MinDuration: -0.1, MinConfidence: 0.5, Tuning: StandardTuning},
		{MinDuration: 0.05, MinConfidence: 1.5, Tuning: StandardTuning},
		{MinDuration: 0.05, MinConfidence: -0.01, Tuning: StandardTuning},
		{MinDuration: 0.05, MinConfidence: 0.5, Tuning: Tuning{ReferenceHz: 0, ReferenceIndex: 69}},
	}
	for _, p := range bad {
		if _, err := NewSegmenter(p); err == nil {
			t.Errorf("NewSegmenter(%+v) should fail", p)
		}
	}

	seg, err := NewSegmenter(DefaultParams())
	if err != nil {
		t.Fatalf("NewSegmenter(default): %v", err)
	}
	if got := seg.Segment(nil); len(got) != 0 {
		t.Errorf("expected empty output, got %+v", got)
	}
}

// randomCurve builds a jittery sung-like pitch curve with gaps and glitches.
func randomCurve(rng *rand.Rand, n int) []PitchFrame {
	out := make([]PitchFrame, 0, n)
	t := 0.0
	index := 60
	for i := 0; i < n; i++ {
		t += 0.01 * float64(rng.Intn(3))
		if rng.Float64() < 0.05 {
			index += rng.Intn(5) - 2
		}
		freq := StandardTuning.Frequency(index) * (1 + (rng.Float64()-0.5)*0.02)
		conf := rng.Float64()
		if rng.Float64() < 0.1 {
			freq = 0
		}
		out = append(out, PitchFrame{Time: t, Frequency: freq, Confidence: conf})
	}
	return out
}

package notes

import (
	"fmt"
	"math"
	"sort"
)

// Default segmentation thresholds.
const (
	DefaultMinDuration   = 0.05
	DefaultMinConfidence = 0.5
)

// PitchFrame is one sample of a pitch curve.
type PitchFrame struct {
	Time       float64 `json:"time"`       // Seconds, non-decreasing across a curve
	Frequency  float64 `json:"frequency"`  // Hz, <= 0 when unvoiced
	Confidence float64 `json:"confidence"` // 0..1
}

// Segment is a maximal run of frames that share a note label.
type Segment struct {
	Start      float64 // Seconds, inclusive
	End        float64 // Seconds, exclusive
	Note       string
	Index      int     // Semitone index of Note
	Frequency  float64 // Median frequency of the run
	Confidence float64 // Mean confidence of the run
}

// Duration returns End - Start.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Params controls segmentation.
type Params struct {
	MinDuration   float64 // Runs shorter than this are dropped
	MinConfidence float64 // Frames below this are treated as unvoiced
	Tuning        Tuning
}

// DefaultParams returns the stock thresholds with standard tuning.
func DefaultParams() Params {
	return Params{
		MinDuration:   DefaultMinDuration,
		MinConfidence: DefaultMinConfidence,
		Tuning:        StandardTuning,
	}
}

// Validate rejects thresholds that cannot produce a meaningful segmentation.
func (p Params) Validate() error {
	if math.IsNaN(p.MinDuration) || p.MinDuration < 0 {
		return fmt.Errorf("min duration must be >= 0, got %v", p.MinDuration)
	}
	if math.IsNaN(p.MinConfidence) || p.MinConfidence < 0 || p.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be within [0, 1], got %v", p.MinConfidence)
	}
	if err := p.Tuning.Validate(); err != nil {
		return err
	}
	return nil
}

// run is the note currently being accumulated.
type run struct {
	label       Label
	start       float64
	frequencies []float64
	confidences []float64
}

// Segmenter groups pitch frames into note segments.
type Segmenter struct {
	params Params
}

// NewSegmenter creates a segmenter after validating params.
func NewSegmenter(params Params) (*Segmenter, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Segmenter{params: params}, nil
}

// Params returns the segmenter's configuration.
func (s *Segmenter) Params() Params {
	return s.params
}

// Segment runs a single pass over frames and returns the note segments in
// start order. Frames are expected in non-decreasing time order.
func (s *Segmenter) Segment(frames []PitchFrame) []Segment {
	return segmentFrames(frames, s.params)
}

// SegmentFrames is a convenience wrapper that segments without constructing
// a Segmenter. Params are not validated.
func SegmentFrames(frames []PitchFrame, params Params) []Segment {
	return segmentFrames(frames, params)
}

func segmentFrames(frames []PitchFrame, params Params) []Segment {
	segments := []Segment{}
	if len(frames) == 0 {
		return segments
	}

	var current *run

	closeRun := func(boundary float64) {
		if current == nil {
			return
		}
		// End must stay strictly after Start even when MinDuration is 0.
		if boundary > current.start && boundary-current.start >= params.MinDuration {
			segments = append(segments, Segment{
				Start:      current.start,
				End:        boundary,
				Note:       current.label.String(),
				Index:      current.label.Index,
				Frequency:  median(current.frequencies),
				Confidence: mean(current.confidences),
			})
		}
		current = nil
	}

	for _, frame := range frames {
		if frame.Confidence < params.MinConfidence || !(frame.Frequency > 0) {
			closeRun(frame.Time)
			continue
		}

		label, ok := MapFrequency(frame.Frequency, params.Tuning)
		if !ok {
			closeRun(frame.Time)
			continue
		}

		if current != nil && current.label.String() == label.String() {
			current.frequencies = append(current.frequencies, frame.Frequency)
			current.confidences = append(current.confidences, frame.Confidence)
			continue
		}

		closeRun(frame.Time)
		current = &run{
			label:       label,
			start:       frame.Time,
			frequencies: []float64{frame.Frequency},
			confidences: []float64{frame.Confidence},
		}
	}

	// No following frame supplies a boundary, so the last timestamp does.
	closeRun(frames[len(frames)-1].Time)

	return segments
}

// Duration returns the time of the last frame, or 0 for an empty curve.
func Duration(frames []PitchFrame) float64 {
	if len(frames) == 0 {
		return 0
	}
	return frames[len(frames)-1].Time
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

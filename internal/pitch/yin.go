package pitch

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"path/filepath"
	"strings"

	"github.com/mjibson/go-dsp/fft"

	"github.com/dygy/melody-grep/internal/audio"
	apperrors "github.com/dygy/melody-grep/internal/errors"
	"github.com/dygy/melody-grep/internal/notes"
)

// YINOptions configures the YIN estimator.
type YINOptions struct {
	Threshold float64 // CMNDF dip threshold, typically 0.1 to 0.2
	FrameSize int     // samples per analysis frame
	HopSize   int     // samples between frame starts
	MinHz     float64
	MaxHz     float64
}

// DefaultYINOptions matches a C2..C7 vocal range at 22.05 kHz.
func DefaultYINOptions() YINOptions {
	return YINOptions{
		Threshold: 0.15,
		FrameSize: 2048,
		HopSize:   512,
		MinHz:     65.41,
		MaxHz:     2093.0,
	}
}

// Validate checks the options for internal consistency.
func (o YINOptions) Validate() error {
	switch {
	case o.Threshold <= 0 || o.Threshold >= 1:
		return fmt.Errorf("yin threshold must be in (0,1), got %v", o.Threshold)
	case o.FrameSize < 64:
		return fmt.Errorf("yin frame size must be at least 64, got %d", o.FrameSize)
	case o.HopSize <= 0:
		return fmt.Errorf("yin hop size must be positive, got %d", o.HopSize)
	case o.MinHz <= 0 || o.MaxHz <= o.MinHz:
		return fmt.Errorf("yin range %v..%v Hz is invalid", o.MinHz, o.MaxHz)
	}
	return nil
}

// YINDetector estimates pitch in Go. Input is first normalized to mono PCM
// WAV with ffmpeg when a converter is configured.
type YINDetector struct {
	converter *audio.Converter
	opts      YINOptions
}

// NewYINDetector creates a YIN detector. converter may be nil when inputs are
// already mono PCM WAV.
func NewYINDetector(converter *audio.Converter, opts YINOptions) *YINDetector {
	return &YINDetector{converter: converter, opts: opts}
}

// Name implements Detector.
func (d *YINDetector) Name() string { return "yin" }

// Detect implements Detector.
func (d *YINDetector) Detect(ctx context.Context, audioPath string) ([]notes.PitchFrame, error) {
	if err := d.opts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidConfig, err)
	}

	wavPath := audioPath
	if d.converter != nil {
		wavPath = strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".mono.wav"
		if err := d.converter.ToMonoWAV(ctx, audioPath, wavPath); err != nil {
			return nil, err
		}
	}

	samples, err := audio.ReadWAV(wavPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Analyze(samples, d.opts), nil
}

// Analyze runs YIN over every full frame of samples. Frames without a
// periodic dip below the threshold are reported with frequency 0.
func Analyze(samples *audio.Samples, opts YINOptions) []notes.PitchFrame {
	w := opts.FrameSize
	half := w / 2
	sr := float64(samples.SampleRate)
	if sr <= 0 || len(samples.Data) < w {
		return []notes.PitchFrame{}
	}

	tauMin := max(int(math.Floor(sr/opts.MaxHz)), 2)
	tauMax := min(int(math.Ceil(sr/opts.MinHz)), half-1)
	if tauMin >= tauMax {
		return []notes.PitchFrame{}
	}

	size := nextPow2(w)
	diff := make([]float64, half)
	cmnd := make([]float64, half)
	frames := make([]notes.PitchFrame, 0, (len(samples.Data)-w)/opts.HopSize+1)

	for start := 0; start+w <= len(samples.Data); start += opts.HopSize {
		frame := samples.Data[start : start+w]
		t := float64(start) / sr

		if !difference(frame, size, diff) {
			frames = append(frames, notes.PitchFrame{Time: t})
			continue
		}
		cumulativeMeanNormalized(diff, cmnd)

		tau, dip := pickPeriod(cmnd, tauMin, tauMax, opts.Threshold)
		conf := clamp01(1 - dip)
		if tau < 0 {
			frames = append(frames, notes.PitchFrame{Time: t, Confidence: conf})
			continue
		}
		frames = append(frames, notes.PitchFrame{
			Time:       t,
			Frequency:  sr / parabolic(cmnd, tau),
			Confidence: conf,
		})
	}
	return frames
}

// difference fills d with the YIN difference function of frame, using an
// FFT cross-correlation for the lag product term. It reports false for
// silent frames.
func difference(frame []float64, size int, d []float64) bool {
	half := len(d)

	head := make([]float64, size)
	copy(head, frame[:half])
	full := make([]float64, size)
	copy(full, frame)

	a := fft.FFTReal(head)
	b := fft.FFTReal(full)
	for i := range a {
		a[i] = cmplx.Conj(a[i]) * b[i]
	}
	corr := fft.IFFT(a)

	// Prefix sums of squares give the energy of every window in O(1).
	sq := make([]float64, len(frame)+1)
	for i, v := range frame {
		sq[i+1] = sq[i] + v*v
	}
	e0 := sq[half]
	if e0 < 1e-10 {
		return false
	}

	for tau := 0; tau < half; tau++ {
		et := sq[tau+half] - sq[tau]
		v := e0 + et - 2*real(corr[tau])
		if v < 0 {
			v = 0
		}
		d[tau] = v
	}
	return true
}

func cumulativeMeanNormalized(d, out []float64) {
	out[0] = 1
	var running float64
	for tau := 1; tau < len(d); tau++ {
		running += d[tau]
		if running == 0 {
			out[tau] = 1
			continue
		}
		out[tau] = d[tau] * float64(tau) / running
	}
}

// pickPeriod returns the first local minimum under threshold in
// [tauMin, tauMax], or -1 with the global minimum value when none qualifies.
func pickPeriod(cmnd []float64, tauMin, tauMax int, threshold float64) (int, float64) {
	best := math.Inf(1)
	for tau := tauMin; tau <= tauMax; tau++ {
		if cmnd[tau] < threshold {
			for tau+1 <= tauMax && cmnd[tau+1] < cmnd[tau] {
				tau++
			}
			return tau, cmnd[tau]
		}
		best = min(best, cmnd[tau])
	}
	return -1, best
}

// parabolic refines tau by fitting a parabola through its neighbours.
func parabolic(y []float64, tau int) float64 {
	if tau <= 0 || tau >= len(y)-1 {
		return float64(tau)
	}
	s0, s1, s2 := y[tau-1], y[tau], y[tau+1]
	denom := 2 * (2*s1 - s2 - s0)
	if denom == 0 {
		return float64(tau)
	}
	return float64(tau) + (s2-s0)/denom
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	apperrors "github.com/dygy/melody-grep/internal/errors"
)

// Samples is decoded PCM audio mixed down to mono in the range [-1, 1].
type Samples struct {
	Data       []float64
	SampleRate int
}

// Duration returns the length of the audio in seconds.
func (s *Samples) Duration() float64 {
	if s.SampleRate == 0 {
		return 0
	}
	return float64(len(s.Data)) / float64(s.SampleRate)
}

// ReadWAV decodes a PCM WAV file and averages its channels into mono.
func ReadWAV(path string) (*Samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrFileNotFound, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a PCM WAV file", apperrors.ErrCorruptedFile, path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", apperrors.ErrCorruptedFile, path, err)
	}

	return toMono(buf, int(decoder.BitDepth)), nil
}

func toMono(buf *audio.IntBuffer, bitDepth int) *Samples {
	channels := 1
	sampleRate := 0
	if buf.Format != nil {
		channels = max(buf.Format.NumChannels, 1)
		sampleRate = buf.Format.SampleRate
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))

	frames := len(buf.Data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch])
		}
		out[i] = sum / float64(channels) * scale
	}
	return &Samples{Data: out, SampleRate: sampleRate}
}

// WriteWAV encodes mono samples as 16-bit PCM.
func WriteWAV(path string, s *Samples) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	data := make([]int, len(s.Data))
	for i, v := range s.Data {
		v = min(max(v, -1), 1)
		data[i] = int(v * 32767)
	}

	enc := wav.NewEncoder(f, s.SampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: s.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return f.Close()
}

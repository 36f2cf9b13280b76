package audio

import (
	"context"
	"fmt"
	"strconv"

	apperrors "github.com/dygy/melody-grep/internal/errors"
	"github.com/dygy/melody-grep/internal/exec"
)

// Converter normalizes arbitrary audio into mono 16-bit PCM WAV.
type Converter struct {
	runner     *exec.Runner
	sampleRate int
}

// NewConverter creates a converter targeting sampleRate Hz.
func NewConverter(runner *exec.Runner, sampleRate int) *Converter {
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	return &Converter{runner: runner, sampleRate: sampleRate}
}

// SampleRate returns the output sample rate.
func (c *Converter) SampleRate() int {
	return c.sampleRate
}

// ToMonoWAV converts inputPath to outputPath with ffmpeg.
func (c *Converter) ToMonoWAV(ctx context.Context, inputPath, outputPath string) error {
	if err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("%w: ffmpeg", apperrors.ErrToolNotInstalled)
	}
	result, err := c.runner.Run(ctx, "ffmpeg",
		"-y",
		"-v", "error",
		"-i", inputPath,
		"-ac", "1",
		"-ar", strconv.Itoa(c.sampleRate),
		"-c:a", "pcm_s16le",
		outputPath,
	)
	if err != nil {
		exitCode, stderr := 0, ""
		if result != nil {
			exitCode, stderr = result.ExitCode, lastLines(result.Stderr, 3)
		}
		return apperrors.NewProcessError("ffmpeg", apperrors.StageConversion, exitCode, stderr, err)
	}
	return nil
}

package pitch

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/dygy/melody-grep/internal/errors"
	"github.com/dygy/melody-grep/internal/exec"
	"github.com/dygy/melody-grep/internal/notes"
)

const crepeScript = "detect_pitch.py"

// CrepeOptions configures the crepe script.
type CrepeOptions struct {
	ModelCapacity string // tiny, small, medium, large, full
	StepMS        int
	Viterbi       bool
}

// CrepeDetector runs crepe through the bundled Python script.
type CrepeDetector struct {
	runner *exec.Runner
	opts   CrepeOptions
}

// NewCrepeDetector creates a crepe-backed detector.
func NewCrepeDetector(runner *exec.Runner, opts CrepeOptions) *CrepeDetector {
	if opts.ModelCapacity == "" {
		opts.ModelCapacity = "medium"
	}
	if opts.StepMS <= 0 {
		opts.StepMS = 10
	}
	return &CrepeDetector{runner: runner, opts: opts}
}

// Name implements Detector.
func (d *CrepeDetector) Name() string { return "crepe" }

// Detect runs crepe and reads back the JSON curve it writes next to the input.
func (d *CrepeDetector) Detect(ctx context.Context, audioPath string) ([]notes.PitchFrame, error) {
	outPath := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".f0.json"

	args := []string{
		audioPath, outPath,
		"--model", d.opts.ModelCapacity,
		"--step", strconv.Itoa(d.opts.StepMS),
	}
	if d.opts.Viterbi {
		args = append(args, "--viterbi")
	}

	if err := d.runner.CheckPythonDependency(ctx, "crepe"); err != nil {
		return nil, apperrors.NewProcessError("crepe", apperrors.StageDetection, 0, "", err)
	}

	result, err := d.runner.RunScript(ctx, crepeScript, args...)
	if err != nil {
		exitCode, stderr := 0, ""
		if result != nil {
			exitCode, stderr = result.ExitCode, strings.TrimSpace(result.Stderr)
		}
		return nil, apperrors.NewProcessError("crepe", apperrors.StageDetection, exitCode, stderr, err)
	}

	frames, err := LoadCurve(outPath)
	if err != nil {
		return nil, apperrors.NewProcessError("crepe", apperrors.StageDetection, 0, "", fmt.Errorf("read crepe output: %w", err))
	}
	return frames, nil
}

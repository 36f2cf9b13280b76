package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/dygy/melody-grep/internal/errors"
	"github.com/dygy/melody-grep/internal/exec"
)

// VocalSeparator isolates the vocal stem with Demucs.
type VocalSeparator struct {
	runner *exec.Runner
	model  string
}

// NewVocalSeparator creates a separator that runs the given Demucs model.
func NewVocalSeparator(runner *exec.Runner, model string) *VocalSeparator {
	return &VocalSeparator{runner: runner, model: model}
}

// Model returns the Demucs model name.
func (s *VocalSeparator) Model() string {
	return s.model
}

// Separate runs a two-stem split and returns the path of the vocals file.
func (s *VocalSeparator) Separate(ctx context.Context, inputPath, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create stems dir: %w", err)
	}

	result, err := s.runner.RunModule(ctx, "demucs",
		"--two-stems", "vocals",
		"-n", s.model,
		"-o", outputDir,
		inputPath,
	)
	if err != nil {
		exitCode, stderr := 0, ""
		if result != nil {
			exitCode, stderr = result.ExitCode, lastLines(result.Stderr, 5)
		}
		return "", apperrors.NewProcessError("demucs", apperrors.StageSeparation, exitCode, stderr, err)
	}

	path, err := findVocals(outputDir, s.model, inputPath)
	if err != nil {
		return "", apperrors.NewProcessError("demucs", apperrors.StageSeparation, 0, "", err)
	}
	return path, nil
}

// findVocals locates <outputDir>/<model>/<track>/vocals.*, falling back to
// any file with "vocals" in its name below outputDir.
func findVocals(outputDir, model, inputPath string) (string, error) {
	track := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	trackDir := filepath.Join(outputDir, model, track)
	for _, name := range []string{"vocals.wav", "vocals.mp3", "vocals.flac"} {
		candidate := filepath.Join(trackDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	var found string
	walkErr := filepath.WalkDir(outputDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || found != "" {
			return err
		}
		name := strings.ToLower(d.Name())
		if !d.IsDir() && strings.Contains(name, "vocals") && !strings.Contains(name, "no_vocals") {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("search stems: %w", walkErr)
	}
	if found == "" {
		return "", fmt.Errorf("%w in %s", apperrors.ErrNoVocals, outputDir)
	}
	return found, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

package pipeline

import (
	"log/slog"

	"github.com/dygy/melody-grep/internal/audio"
	"github.com/dygy/melody-grep/internal/config"
	"github.com/dygy/melody-grep/internal/exec"
	"github.com/dygy/melody-grep/internal/pitch"
)

// FromConfig builds a coordinator backed by yt-dlp, Demucs, crepe and YIN.
func FromConfig(cfg *config.Config, logger *slog.Logger) *Coordinator {
	runner := exec.NewRunner(cfg.Paths.PythonPath, cfg.Paths.ScriptsDir)

	var separators []Separator
	for _, model := range []string{cfg.Separation.Model, cfg.Separation.FallbackModel} {
		if model != "" {
			separators = append(separators, audio.NewVocalSeparator(runner, model))
		}
	}

	var detectors []pitch.Detector
	if cfg.Pitch.CrepeEnabled {
		detectors = append(detectors, pitch.NewCrepeDetector(runner, pitch.CrepeOptions{
			ModelCapacity: cfg.Pitch.CrepeModelCapacity,
			StepMS:        cfg.Pitch.CrepeStepMS,
			Viterbi:       cfg.Pitch.CrepeViterbi,
		}))
	}
	detectors = append(detectors, pitch.NewYINDetector(
		audio.NewConverter(runner, cfg.Pitch.SampleRate),
		pitch.YINOptions{
			Threshold: cfg.Pitch.YINThreshold,
			FrameSize: cfg.Pitch.YINFrameSize,
			HopSize:   cfg.Pitch.YINHopSize,
			MinHz:     cfg.Pitch.MinHz,
			MaxHz:     cfg.Pitch.MaxHz,
		},
	))

	pcfg := Config{
		WorkDir:           cfg.Paths.WorkDir,
		Params:            cfg.SegmentationParams(),
		SeparationEnabled: cfg.Separation.Enabled,
		DownloadTimeout:   cfg.DownloadTimeout(),
		SeparationTimeout: cfg.SeparationTimeout(),
		DetectionTimeout:  cfg.PitchTimeout(),
	}

	return NewCoordinator(pcfg,
		audio.NewYouTubeDownloader(cfg.Download.AudioFormat),
		separators,
		detectors,
		WithLogger(logger),
	)
}

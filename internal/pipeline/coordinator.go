package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dygy/melody-grep/internal/audio"
	apperrors "github.com/dygy/melody-grep/internal/errors"
	"github.com/dygy/melody-grep/internal/melody"
	"github.com/dygy/melody-grep/internal/notes"
	"github.com/dygy/melody-grep/internal/pitch"
	"github.com/dygy/melody-grep/internal/progress"
	"github.com/dygy/melody-grep/internal/workspace"
)

// songCodePattern restricts song codes to names that are safe as file names.
var songCodePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Downloader fetches remote audio into a directory.
type Downloader interface {
	Download(ctx context.Context, sourceURL, outputDir string) (string, error)
}

// Separator isolates the vocal stem of an audio file.
type Separator interface {
	Separate(ctx context.Context, inputPath, outputDir string) (string, error)
	Model() string
}

// Config holds pipeline configuration
type Config struct {
	WorkDir           string
	Params            notes.Params
	SeparationEnabled bool
	DownloadTimeout   time.Duration
	SeparationTimeout time.Duration
	DetectionTimeout  time.Duration
}

// DefaultConfig returns default pipeline configuration
func DefaultConfig() Config {
	return Config{
		Params:            notes.DefaultParams(),
		SeparationEnabled: true,
		DownloadTimeout:   5 * time.Minute,
		SeparationTimeout: 10 * time.Minute,
		DetectionTimeout:  10 * time.Minute,
	}
}

// Request identifies the audio to extract and the song it belongs to.
// Exactly one of URL and InputPath is set.
type Request struct {
	URL       string
	InputPath string
	SongCode  string
	SongTitle string
}

// ValidSongCode reports whether code can name a stored melody.
func ValidSongCode(code string) bool {
	return songCodePattern.MatchString(code) && code != "." && code != ".."
}

// Validate checks the request without touching the network.
func (r Request) Validate() error {
	if !ValidSongCode(r.SongCode) {
		return fmt.Errorf("%w: song code %q must match %s", apperrors.ErrInvalidConfig, r.SongCode, songCodePattern)
	}
	switch {
	case r.URL != "" && r.InputPath != "":
		return fmt.Errorf("%w: set either a URL or an input file, not both", apperrors.ErrInvalidConfig)
	case r.URL != "":
		return audio.ValidateURL(r.URL)
	case r.InputPath != "":
		_, err := audio.ValidateInput(r.InputPath)
		return err
	}
	return fmt.Errorf("%w: a URL or input file is required", apperrors.ErrInvalidConfig)
}

// Coordinator runs download, vocal separation, pitch detection and note
// segmentation for one song at a time. It holds no per-job state and may be
// shared between goroutines.
type Coordinator struct {
	cfg        Config
	downloader Downloader
	separators []Separator
	detectors  []pitch.Detector
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the processed_at clock.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator wires a coordinator. Separators and detectors are tried in
// the order given; the original audio is always the final separation fallback.
func NewCoordinator(cfg Config, downloader Downloader, separators []Separator, detectors []pitch.Detector, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:        cfg,
		downloader: downloader,
		separators: separators,
		detectors:  detectors,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "pipeline")
	return c
}

// Config returns the coordinator configuration.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Extract runs the full pipeline. Progress is reported to obs (which may be
// nil) with non-decreasing percentages. The job workspace is removed on
// every return path.
func (c *Coordinator) Extract(ctx context.Context, req Request, obs progress.Observer) (*melody.Record, error) {
	if obs == nil {
		obs = progress.Nop
	}
	obs = progress.Monotonic(obs)

	if err := c.cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidConfig, err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(c.detectors) == 0 {
		return nil, fmt.Errorf("%w: no pitch detectors configured", apperrors.ErrInvalidConfig)
	}

	logger := c.logger.With("song_code", req.SongCode)
	emit := func(stage progress.Stage, percent int, msg string, warning bool) {
		obs.Observe(progress.Event{
			SongCode: req.SongCode,
			Stage:    stage,
			Percent:  percent,
			Message:  msg,
			Warning:  warning,
			At:       c.now(),
		})
	}

	ws, err := workspace.Create(c.cfg.WorkDir, req.SongCode)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			logger.Warn("workspace cleanup failed", "dir", ws.Dir, "error", err)
		}
	}()

	started := c.now()
	logger.Info("extraction started", "url", req.URL, "input", req.InputPath)

	// 1. Obtain audio
	emit(progress.StageDownload, progress.PercentStarted, "", false)
	audioPath, err := c.obtainAudio(ctx, req, ws)
	if err != nil {
		return nil, err
	}
	emit(progress.StageDownload, progress.PercentDownloaded, "Audio ready: "+filepath.Base(audioPath), false)

	// 2. Vocal separation, degrading to the original mix
	emit(progress.StageSeparate, progress.PercentSeparating, "", false)
	vocalsPath, used, err := FirstSuccess(ctx, c.separationStrategies(audioPath, ws), func(name string, err error) {
		logFallback(ctx, logger, "vocal separation failed, trying next strategy", "strategy", name, err)
		emit(progress.StageSeparate, progress.PercentSeparating, fmt.Sprintf("%s failed, falling back", name), true)
	})
	if err != nil {
		return nil, err
	}
	emit(progress.StageSeparate, progress.PercentSeparated, "Vocals from "+used, false)

	// 3. Pitch detection
	emit(progress.StageDetect, progress.PercentDetecting, "", false)
	frames, detector, err := FirstSuccess(ctx, c.detectionStrategies(vocalsPath), func(name string, err error) {
		logFallback(ctx, logger, "pitch detector failed, trying next", "detector", name, err)
		emit(progress.StageDetect, progress.PercentDetecting, fmt.Sprintf("%s failed, falling back", name), true)
	})
	if err != nil {
		return nil, fmt.Errorf("pitch detection: %w", err)
	}
	if len(frames) == 0 {
		return nil, apperrors.ErrNoPitchFrames
	}
	emit(progress.StageDetect, progress.PercentDetected, fmt.Sprintf("%d frames from %s", len(frames), detector), false)

	// 4. Segmentation
	segments := notes.SegmentFrames(frames, c.cfg.Params)
	record := melody.NewRecord(req.SongCode, req.SongTitle, notes.Duration(frames), segments, c.now())
	emit(progress.StageSegment, progress.PercentDone, fmt.Sprintf("%d notes", record.TotalNotes), false)

	logger.Info("extraction complete",
		"notes", record.TotalNotes,
		"detector", detector,
		"separation", used,
		"duration", time.Since(started).Round(time.Millisecond),
	)
	return record, nil
}

func (c *Coordinator) obtainAudio(ctx context.Context, req Request, ws *workspace.Workspace) (string, error) {
	if req.InputPath != "" {
		ext := strings.ToLower(filepath.Ext(req.InputPath))
		return ws.CopyFile(req.InputPath, "input"+ext)
	}
	if c.downloader == nil {
		return "", fmt.Errorf("%w: no downloader configured", apperrors.ErrInvalidConfig)
	}
	dctx, cancel := withTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()
	path, err := c.downloader.Download(dctx, req.URL, ws.DownloadDir())
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	return path, nil
}

func (c *Coordinator) separationStrategies(audioPath string, ws *workspace.Workspace) []Strategy[string] {
	var strategies []Strategy[string]
	if c.cfg.SeparationEnabled {
		for _, sep := range c.separators {
			strategies = append(strategies, Strategy[string]{
				Name: "demucs:" + sep.Model(),
				Run: func(ctx context.Context) (string, error) {
					ctx, cancel := withTimeout(ctx, c.cfg.SeparationTimeout)
					defer cancel()
					return sep.Separate(ctx, audioPath, filepath.Join(ws.StemsDir(), sep.Model()))
				},
			})
		}
	}
	return append(strategies, Strategy[string]{
		Name: "original",
		Run:  func(context.Context) (string, error) { return audioPath, nil },
	})
}

func (c *Coordinator) detectionStrategies(audioPath string) []Strategy[[]notes.PitchFrame] {
	strategies := make([]Strategy[[]notes.PitchFrame], 0, len(c.detectors))
	for _, d := range c.detectors {
		strategies = append(strategies, Strategy[[]notes.PitchFrame]{
			Name: d.Name(),
			Run: func(ctx context.Context) ([]notes.PitchFrame, error) {
				ctx, cancel := withTimeout(ctx, c.cfg.DetectionTimeout)
				defer cancel()
				return d.Detect(ctx, audioPath)
			},
		})
	}
	return strategies
}

// logFallback logs a failed strategy. Failures with a planned fallback are
// warnings; anything else is an error even though the chain continues.
func logFallback(ctx context.Context, logger *slog.Logger, msg, key, name string, err error) {
	level := slog.LevelWarn
	if !apperrors.IsRecoverable(err) {
		level = slog.LevelError
	}
	logger.Log(ctx, level, msg, key, name, "error", err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

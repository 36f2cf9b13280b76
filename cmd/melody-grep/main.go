package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dygy/melody-grep/internal/audio"
	"github.com/dygy/melody-grep/internal/cache"
	"github.com/dygy/melody-grep/internal/config"
	"github.com/dygy/melody-grep/internal/jobs"
	"github.com/dygy/melody-grep/internal/logging"
	"github.com/dygy/melody-grep/internal/melody"
	"github.com/dygy/melody-grep/internal/notes"
	"github.com/dygy/melody-grep/internal/pipeline"
	"github.com/dygy/melody-grep/internal/pitch"
	"github.com/dygy/melody-grep/internal/progress"
	"github.com/dygy/melody-grep/internal/server"
)

var (
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "melody-grep",
	Short: "Extract the vocal melody of a song as timed notes",
	Long: `melody-grep turns a song into a karaoke melody track: a list of
notes with start and end times, frequency and confidence.

Pipeline: audio → vocal separation → pitch detection → note segmentation`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var extractCmd = &cobra.Command{
	Use:   "extract <url-or-file>",
	Short: "Extract the melody from a YouTube URL or audio file",
	Long: `Extract the vocal melody from a YouTube video or a local audio file
and store it in the melody cache.

Examples:
  melody-grep extract "https://youtube.com/watch?v=..."
  melody-grep extract song.mp3 --song-code SONG001 --title "My Song"
  melody-grep extract song.wav -o melody.json --min-duration 0.08`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the melody extraction HTTP API",
	Long: `Start the HTTP API used by karaoke clients to request extractions,
poll their status and fetch finished melodies.

Example:
  melody-grep serve --port 8000`,
	RunE: runServe,
}

var segmentCmd = &cobra.Command{
	Use:   "segment <curve.json|curve.csv>",
	Short: "Segment an existing pitch curve into notes",
	Long: `Run note segmentation on a pitch curve produced elsewhere. The curve
may be a JSON array of {time, frequency, confidence} objects, a columnar
JSON object, or a CSV file with time,frequency,confidence columns.

Example:
  melody-grep segment vocals.f0.csv --min-confidence 0.6`,
	Args: cobra.ExactArgs(1),
	RunE: runSegment,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	RunE:  runConfigInit,
}

var (
	// shared flags
	configPath string
	verbose    bool

	// extract flags
	songCode      string
	songTitle     string
	outputPath    string
	minDuration   float64
	minConfidence float64
	noSeparation  bool
	force         bool

	// serve flags
	port int

	// segment flags
	segmentCode string

	// config init flags
	overwrite bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ~/.config/melody-grep/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(segmentCmd)
	rootCmd.AddCommand(melodyCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	// Extract command flags
	extractCmd.Flags().StringVar(&songCode, "song-code", "", "Song code to store the melody under (default: derived from input)")
	extractCmd.Flags().StringVarP(&songTitle, "title", "t", "", "Song title")
	extractCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Also write the melody JSON to this file")
	extractCmd.Flags().Float64Var(&minDuration, "min-duration", 0, "Minimum note duration in seconds (overrides segmentation.min_duration)")
	extractCmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "Minimum frame confidence 0..1 (overrides segmentation.min_confidence)")
	extractCmd.Flags().BoolVar(&noSeparation, "no-separation", false, "Skip vocal separation and analyze the full mix")
	extractCmd.Flags().BoolVar(&force, "force", false, "Extract again even if the melody is cached")

	// Serve command flags
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides server.port)")

	// Segment command flags
	segmentCmd.Flags().StringVar(&segmentCode, "song-code", "", "Song code for the output record (default: file name)")
	segmentCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the melody JSON to this file (default: stdout)")
	segmentCmd.Flags().Float64Var(&minDuration, "min-duration", 0, "Minimum note duration in seconds (overrides segmentation.min_duration)")
	segmentCmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "Minimum frame confidence 0..1 (overrides segmentation.min_confidence)")

	// Config init flags
	configInitCmd.Flags().BoolVar(&overwrite, "force", false, "Overwrite an existing config file")
}

// loadConfig reads the config file and applies the flags set on cmd. Explicit
// flag values are validated like config values, so a bad override fails.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("min-duration") {
		cfg.Segmentation.MinDuration = minDuration
	}
	if flags.Changed("min-confidence") {
		cfg.Segmentation.MinConfidence = minConfidence
	}
	if flags.Changed("no-separation") && noSeparation {
		cfg.Separation.Enabled = false
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore opens the SQLite job database when configured, in memory otherwise.
func openStore(cfg *config.Config) (jobs.Store, error) {
	if cfg.Paths.JobsDB == "" {
		return jobs.NewMemoryStore(), nil
	}
	return jobs.OpenSQLite(cfg.Paths.JobsDB)
}

// reportingExtractor copies pipeline progress to a CLI observer.
type reportingExtractor struct {
	jobs.Extractor
	obs progress.Observer
}

func (r reportingExtractor) Extract(ctx context.Context, req pipeline.Request, obs progress.Observer) (*melody.Record, error) {
	return r.Extractor.Extract(ctx, req, progress.Multi(obs, r.obs))
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	// Pipeline logs stay quiet unless asked for; the reporter shows progress.
	logLevel := "warn"
	if verbose {
		logLevel = "debug"
	}
	logger, err := logging.New(logging.Options{Level: logLevel, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}

	req, err := buildRequest(args[0])
	if err != nil {
		return err
	}

	melodies, err := cache.New(cfg.Paths.CacheDir)
	if err != nil {
		return err
	}

	reporter := progress.NewReporter(os.Stderr, verbose)

	if !force && melodies.Exists(req.SongCode) {
		record, err := melodies.Get(req.SongCode)
		if err == nil {
			reporter.StageComplete("Using cached melody for %s (use --force to extract again)", req.SongCode)
			return emitRecord(record, reporter)
		}
		logger.Warn("cached melody unreadable, extracting again", "song_code", req.SongCode, "error", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractor := reportingExtractor{Extractor: pipeline.FromConfig(cfg, logger), obs: reporter}
	manager := jobs.NewManager(store, melodies, extractor, logger)

	record, err := manager.Run(ctx, req)
	if err != nil {
		if errors.Is(err, jobs.ErrAlreadyProcessing) {
			return fmt.Errorf("%s is already being extracted by another process", req.SongCode)
		}
		reporter.Error(err)
		return err
	}
	return emitRecord(record, reporter)
}

// buildRequest turns the positional argument into an extraction request.
func buildRequest(input string) (pipeline.Request, error) {
	req := pipeline.Request{SongCode: songCode, SongTitle: songTitle}

	if audio.IsURL(input) {
		req.URL = input
		if req.SongCode == "" {
			req.SongCode = cache.SongCodeForURL(input)
		}
	} else {
		abs, err := filepath.Abs(input)
		if err != nil {
			return req, fmt.Errorf("resolve input: %w", err)
		}
		req.InputPath = abs
		if req.SongCode == "" {
			code, err := cache.SongCodeForFile(abs)
			if err != nil {
				return req, err
			}
			req.SongCode = code
		}
	}

	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// emitRecord writes the melody to --output or stdout.
func emitRecord(record *melody.Record, reporter *progress.Reporter) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode melody: %w", err)
	}
	data = append(data, '\n')

	if outputPath == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return err
		}
		if reporter != nil {
			reporter.Done(record.TotalNotes, "")
		}
		return nil
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if reporter != nil {
		reporter.Done(record.TotalNotes, outputPath)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	melodies, err := cache.New(cfg.Paths.CacheDir)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	manager := jobs.NewManager(store, melodies, pipeline.FromConfig(cfg, logger), logger)

	n, err := manager.FailInterrupted(context.Background(), "interrupted by server restart")
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Warn("marked interrupted jobs as failed", "count", n)
	}

	srv := server.New(server.Config{
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}, manager, logger)

	return srv.Run(context.Background())
}

func runSegment(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	frames, err := pitch.LoadCurve(args[0])
	if err != nil {
		return err
	}

	segmenter, err := notes.NewSegmenter(cfg.SegmentationParams())
	if err != nil {
		return err
	}

	code := segmentCode
	if code == "" {
		base := filepath.Base(args[0])
		code = base[:len(base)-len(filepath.Ext(base))]
	}

	record := melody.NewRecord(code, "", notes.Duration(frames), segmenter.Segment(frames), time.Now().UTC())
	if verbose {
		fmt.Fprintf(os.Stderr, "%d frames → %d notes\n", len(frames), record.TotalNotes)
	}
	return emitRecord(record, nil)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultConfigPath()
		if err != nil {
			return err
		}
	}
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}
	if err := config.CreateSample(path); err != nil {
		return err
	}
	fmt.Printf("Wrote sample config to %s\n", path)
	return nil
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dygy/melody-grep/internal/notes"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory locations.
type Paths struct {
	CacheDir   string `toml:"cache_dir"`
	WorkDir    string `toml:"work_dir"`
	ScriptsDir string `toml:"scripts_dir"`
	JobsDB     string `toml:"jobs_db"` // Empty keeps job status in memory
	PythonPath string `toml:"python_path"`
}

// Server contains HTTP listener settings.
type Server struct {
	Port                int `toml:"port"`
	ReadTimeoutSeconds  int `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int `toml:"write_timeout_seconds"`
}

// Segmentation contains note segmentation thresholds and tuning.
type Segmentation struct {
	MinDuration    float64 `toml:"min_duration"`
	MinConfidence  float64 `toml:"min_confidence"`
	ReferenceHz    float64 `toml:"reference_hz"`
	ReferenceIndex int     `toml:"reference_index"`
}

// Separation contains vocal separation settings.
type Separation struct {
	Enabled        bool   `toml:"enabled"`
	Model          string `toml:"model"`
	FallbackModel  string `toml:"fallback_model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Pitch contains pitch detector settings.
type Pitch struct {
	CrepeEnabled       bool    `toml:"crepe_enabled"`
	CrepeModelCapacity string  `toml:"crepe_model_capacity"`
	CrepeStepMS        int     `toml:"crepe_step_ms"`
	CrepeViterbi       bool    `toml:"crepe_viterbi"`
	YINThreshold       float64 `toml:"yin_threshold"`
	YINFrameSize       int     `toml:"yin_frame_size"`
	YINHopSize         int     `toml:"yin_hop_size"`
	SampleRate         int     `toml:"sample_rate"`
	MinHz              float64 `toml:"min_hz"`
	MaxHz              float64 `toml:"max_hz"`
	TimeoutSeconds     int     `toml:"timeout_seconds"`
}

// Download contains audio download settings.
type Download struct {
	AudioFormat    string `toml:"audio_format"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for melody-grep.
//
// Configuration sections by subsystem:
//   - Paths: cache, workspace, python scripts, job database
//   - Server: HTTP listener
//   - Segmentation: note thresholds and tuning reference
//   - Separation: Demucs vocal isolation
//   - Pitch: crepe and YIN detectors
//   - Download: yt-dlp settings
//   - Logging: log format and level
type Config struct {
	Paths        Paths        `toml:"paths"`
	Server       Server       `toml:"server"`
	Segmentation Segmentation `toml:"segmentation"`
	Separation   Separation   `toml:"separation"`
	Pitch        Pitch        `toml:"pitch"`
	Download     Download     `toml:"download"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/melody-grep/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error; defaults are used instead.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("melody-grep.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the cache and work directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Paths.JobsDB != "" {
		if err := os.MkdirAll(filepath.Dir(c.Paths.JobsDB), 0o755); err != nil {
			return fmt.Errorf("create jobs db directory: %w", err)
		}
	}
	return nil
}

// SegmentationParams converts the segmentation section into segmenter params.
func (c *Config) SegmentationParams() notes.Params {
	return notes.Params{
		MinDuration:   c.Segmentation.MinDuration,
		MinConfidence: c.Segmentation.MinConfidence,
		Tuning: notes.Tuning{
			ReferenceHz:    c.Segmentation.ReferenceHz,
			ReferenceIndex: c.Segmentation.ReferenceIndex,
		},
	}
}

// SeparationTimeout returns the vocal separation timeout.
func (c *Config) SeparationTimeout() time.Duration {
	return time.Duration(c.Separation.TimeoutSeconds) * time.Second
}

// PitchTimeout returns the pitch detection timeout.
func (c *Config) PitchTimeout() time.Duration {
	return time.Duration(c.Pitch.TimeoutSeconds) * time.Second
}

// DownloadTimeout returns the download timeout.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Download.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

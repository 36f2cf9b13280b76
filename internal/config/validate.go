package config

import (
	"errors"
	"fmt"

	apperrors "github.com/dygy/melody-grep/internal/errors"
)

// Validate ensures the configuration is usable. Every error wraps
// apperrors.ErrInvalidConfig.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validatePaths,
		c.validateServer,
		c.validateSegmentation,
		c.validateSeparation,
		c.validatePitch,
		c.validateDownload,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrInvalidConfig, err)
		}
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.CacheDir == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeoutSeconds < 0 || c.Server.WriteTimeoutSeconds < 0 {
		return errors.New("server timeouts must be >= 0")
	}
	return nil
}

func (c *Config) validateSegmentation() error {
	if err := c.SegmentationParams().Validate(); err != nil {
		return fmt.Errorf("segmentation: %w", err)
	}
	return nil
}

func (c *Config) validateSeparation() error {
	if !c.Separation.Enabled {
		return nil
	}
	if c.Separation.Model == "" {
		return errors.New("separation.model must be set when separation.enabled is true")
	}
	if c.Separation.TimeoutSeconds <= 0 {
		return errors.New("separation.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePitch() error {
	p := c.Pitch
	switch p.CrepeModelCapacity {
	case "tiny", "small", "medium", "large", "full":
	default:
		return fmt.Errorf("pitch.crepe_model_capacity: unsupported value %q", p.CrepeModelCapacity)
	}
	if p.CrepeStepMS <= 0 {
		return errors.New("pitch.crepe_step_ms must be positive")
	}
	if p.YINThreshold <= 0 || p.YINThreshold >= 1 {
		return errors.New("pitch.yin_threshold must be within (0, 1)")
	}
	if p.YINFrameSize <= 0 || p.YINHopSize <= 0 {
		return errors.New("pitch.yin_frame_size and pitch.yin_hop_size must be positive")
	}
	if p.SampleRate <= 0 {
		return errors.New("pitch.sample_rate must be positive")
	}
	if p.MinHz <= 0 || p.MaxHz <= p.MinHz {
		return errors.New("pitch.min_hz must be positive and below pitch.max_hz")
	}
	if p.MaxHz >= float64(p.SampleRate)/2 {
		return errors.New("pitch.max_hz must be below the Nyquist frequency")
	}
	if p.TimeoutSeconds <= 0 {
		return errors.New("pitch.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateDownload() error {
	switch c.Download.AudioFormat {
	case "wav", "mp3":
	default:
		return fmt.Errorf("download.audio_format: unsupported value %q", c.Download.AudioFormat)
	}
	if c.Download.TimeoutSeconds <= 0 {
		return errors.New("download.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

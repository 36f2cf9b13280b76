package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.CacheDir, err = expandPath(strings.TrimSpace(c.Paths.CacheDir)); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(strings.TrimSpace(c.Paths.WorkDir)); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.ScriptsDir, err = expandPath(strings.TrimSpace(c.Paths.ScriptsDir)); err != nil {
		return fmt.Errorf("paths.scripts_dir: %w", err)
	}
	if c.Paths.JobsDB, err = expandPath(strings.TrimSpace(c.Paths.JobsDB)); err != nil {
		return fmt.Errorf("paths.jobs_db: %w", err)
	}
	c.Paths.PythonPath = strings.TrimSpace(c.Paths.PythonPath)

	c.Separation.Model = strings.TrimSpace(c.Separation.Model)
	c.Separation.FallbackModel = strings.TrimSpace(c.Separation.FallbackModel)
	c.Pitch.CrepeModelCapacity = strings.ToLower(strings.TrimSpace(c.Pitch.CrepeModelCapacity))
	c.Download.AudioFormat = strings.ToLower(strings.TrimSpace(c.Download.AudioFormat))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeLogging()
	return nil
}

// normalizePaths expands path fields and derives the input/output/thumb
// directories from media_root when they are not set explicitly.
func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.MediaRoot, err = expandPath(c.Paths.MediaRoot); err != nil {
		return fmt.Errorf("paths.media_root: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	if strings.TrimSpace(c.Paths.InputDir) == "" {
		c.Paths.InputDir = filepath.Join(c.Paths.MediaRoot, "input")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = filepath.Join(c.Paths.MediaRoot, "output")
	}
	if strings.TrimSpace(c.Paths.ThumbDir) == "" {
		c.Paths.ThumbDir = filepath.Join(c.Paths.MediaRoot, "thumb")
	}
	if c.Paths.InputDir, err = expandPath(c.Paths.InputDir); err != nil {
		return fmt.Errorf("paths.input_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.ThumbDir, err = expandPath(c.Paths.ThumbDir); err != nil {
		return fmt.Errorf("paths.thumb_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	if strings.TrimSpace(c.Pipeline.FFmpegBinary) == "" {
		c.Pipeline.FFmpegBinary = defaultFFmpegBinary
	}
	if strings.TrimSpace(c.Pipeline.WatermarkText) == "" {
		c.Pipeline.WatermarkText = defaultWatermarkText
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

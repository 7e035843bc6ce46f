package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	MediaRoot string `toml:"media_root"`
	InputDir  string `toml:"input_dir"`
	OutputDir string `toml:"output_dir"`
	ThumbDir  string `toml:"thumb_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Quota contains admission-control limits.
type Quota struct {
	MaxActiveTasksPerUser int `toml:"max_active_tasks_per_user"`
}

// Pipeline contains orchestration tuning. StageTimeoutSeconds bounds a
// single external tool invocation.
type Pipeline struct {
	Workers             int    `toml:"workers"`
	MaxAttempts         int    `toml:"max_attempts"`
	RetryBackoffSeconds int    `toml:"retry_backoff_seconds"`
	RetryBackoffMax     int    `toml:"retry_backoff_max_seconds"`
	StageTimeoutSeconds int    `toml:"stage_timeout_seconds"`
	FFmpegBinary        string `toml:"ffmpeg_binary"`
	WatermarkText       string `toml:"watermark_text"`
}

// Storage contains object storage settings. Uploads are best-effort: a task
// never fails because storage is unreachable.
type Storage struct {
	Enabled       bool   `toml:"enabled"`
	Endpoint      string `toml:"endpoint"`
	Region        string `toml:"region"`
	Bucket        string `toml:"bucket"`
	AccessKey     string `toml:"access_key"`
	SecretKey     string `toml:"secret_key"`
	PublicBaseURL string `toml:"public_base_url"`
}

// Redis contains the optional execution-state mirror settings.
type Redis struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	DB      int    `toml:"db"`
}

// Kafka contains the optional lifecycle event producer settings.
type Kafka struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// Maintenance contains settings for the periodic sweep and report jobs.
type Maintenance struct {
	CleanupMaxAgeHours    int `toml:"cleanup_max_age_hours"`
	SweepIntervalMinutes  int `toml:"sweep_interval_minutes"`
	ReportIntervalMinutes int `toml:"report_interval_minutes"`
}

// Status contains live status stream tuning.
type Status struct {
	TickIntervalMillis int `toml:"tick_interval_millis"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mediapress.
//
// Configuration sections by subsystem:
//   - Paths: media directories, log directory, API bind address
//   - Quota: per-user active-task admission limit
//   - Pipeline: worker pool size, retry/backoff policy, tool timeouts
//   - Storage: S3-compatible object storage for published outputs
//   - Redis: optional execution-state mirror
//   - Kafka: optional lifecycle event stream
//   - Maintenance: file-age sweep and status report cadence
//   - Status: live status stream tick interval
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Quota       Quota       `toml:"quota"`
	Pipeline    Pipeline    `toml:"pipeline"`
	Storage     Storage     `toml:"storage"`
	Redis       Redis       `toml:"redis"`
	Kafka       Kafka       `toml:"kafka"`
	Maintenance Maintenance `toml:"maintenance"`
	Status      Status      `toml:"status"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mediapress/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. A missing file yields
// defaults rather than an error.
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
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to the target path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.InputDir, c.Paths.OutputDir, c.Paths.ThumbDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MediaDirs returns the directories covered by the file-age sweep.
func (c *Config) MediaDirs() []string {
	return []string{c.Paths.InputDir, c.Paths.OutputDir, c.Paths.ThumbDir}
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

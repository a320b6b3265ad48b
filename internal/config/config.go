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
	WorkDir  string `toml:"work_dir"`
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Store contains configuration for the job status store.
type Store struct {
	TTLHours               int `toml:"ttl_hours"`
	SweepIntervalMinutes   int `toml:"sweep_interval_minutes"`
	StaleProcessingMinutes int `toml:"stale_processing_minutes"`
}

// Queue contains configuration for job dispatch.
type Queue struct {
	Driver  string `toml:"driver"` // memory or amqp
	AMQPURL string `toml:"amqp_url"`
	Name    string `toml:"name"`
	Workers int    `toml:"workers"`
}

// Fetch contains configuration for source downloads.
type Fetch struct {
	MaxSizeMiB          int      `toml:"max_size_mib"`
	TimeoutSeconds      int      `toml:"timeout_seconds"`
	AllowedContentTypes []string `toml:"allowed_content_types"`
}

// Pipeline contains configuration for local ffmpeg stages.
type Pipeline struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	// SubtitleFailurePolicy decides what a failed subtitle burn does to the
	// job: "fail" aborts it, "continue" keeps the pre-subtitle artifact.
	SubtitleFailurePolicy string  `toml:"subtitle_failure_policy"`
	MusicBitrate          string  `toml:"music_bitrate"`
	CircleScale           float64 `toml:"circle_scale"`
	OverlayMargin         int     `toml:"overlay_margin"`
}

// Storage contains configuration for the S3-compatible object store.
type Storage struct {
	Endpoint          string `toml:"endpoint"`
	Region            string `toml:"region"`
	Bucket            string `toml:"bucket"`
	AccessKey         string `toml:"access_key"`
	SecretKey         string `toml:"secret_key"`
	UsePathStyle      bool   `toml:"use_path_style"`
	PresignTTLMinutes int    `toml:"presign_ttl_minutes"`
}

// Montage contains configuration for the remote montage microservice.
type Montage struct {
	// Delegate routes circle-overlay and overlay jobs to the remote montage
	// service instead of the local compositor.
	Delegate            bool   `toml:"delegate"`
	BaseURL             string `toml:"base_url"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	MaxAttempts         int    `toml:"max_attempts"`
}

// Motion contains configuration for the remote AI motion provider.
type Motion struct {
	BaseURL         string `toml:"base_url"`
	APIKey          string `toml:"api_key"`
	Model           string `toml:"model"`
	CallbackBaseURL string `toml:"callback_base_url"`
}

// Config encapsulates all configuration values for montaged.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Logging  Logging  `toml:"logging"`
	Store    Store    `toml:"store"`
	Queue    Queue    `toml:"queue"`
	Fetch    Fetch    `toml:"fetch"`
	Pipeline Pipeline `toml:"pipeline"`
	Storage  Storage  `toml:"storage"`
	Montage  Montage  `toml:"montage"`
	Motion   Motion   `toml:"motion"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/montage/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. A missing file is not
// an error; defaults apply.
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

	cfg.applyEnv()

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
		if _, err := os.Stat(expanded); err != nil {
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

func (c *Config) normalize() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return err
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Queue.Driver = strings.ToLower(strings.TrimSpace(c.Queue.Driver))
	c.Pipeline.SubtitleFailurePolicy = strings.ToLower(strings.TrimSpace(c.Pipeline.SubtitleFailurePolicy))
	c.Montage.BaseURL = strings.TrimRight(strings.TrimSpace(c.Montage.BaseURL), "/")
	c.Motion.BaseURL = strings.TrimRight(strings.TrimSpace(c.Motion.BaseURL), "/")
	c.Motion.CallbackBaseURL = strings.TrimRight(strings.TrimSpace(c.Motion.CallbackBaseURL), "/")
	return nil
}

// EnsureDirectories creates the directories montaged needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.DataDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the path of the job store database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "jobs.db")
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// ExpandPath expands a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}

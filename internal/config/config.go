package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete printcam configuration.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, and finally environment variables. The environment always wins, so a
// containerized deployment can run without any config file at all.
type Config struct {
	LogLevel         string       `yaml:"log_level"`
	ShutdownTimeoutS int          `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	HTTP             HTTPConfig   `yaml:"http"`
	Camera           CameraConfig `yaml:"camera"`
	Push             PushConfig   `yaml:"push"`
}

// HTTPConfig contains HTTP server settings
type HTTPConfig struct {
	Addr string `yaml:"addr"` // listen address, e.g. ":8000"
}

// CameraConfig contains camera capture settings
type CameraConfig struct {
	Device      string `yaml:"device"`       // V4L2 device path, e.g. /dev/video0
	Width       int    `yaml:"width"`        // target frame width
	Height      int    `yaml:"height"`       // target frame height
	FPS         int    `yaml:"fps"`          // target frame rate
	JPEGQuality int    `yaml:"jpeg_quality"` // 0-100
	Pipeline    string `yaml:"pipeline"`     // optional GStreamer pipeline descriptor override
}

// PushConfig contains settings for the periodic snapshot upload.
// Leaving URL or Token empty disables the push worker for the process
// lifetime; that is a supported configuration, not an error.
type PushConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Fingerprint string `yaml:"fingerprint"` // client-identifying header, generated if empty
	IntervalS   int    `yaml:"interval_s"`  // seconds between uploads
}

// Default returns the built-in configuration defaults
func Default() *Config {
	return &Config{
		LogLevel:         "info",
		ShutdownTimeoutS: 5,
		HTTP:             HTTPConfig{Addr: ":8000"},
		Camera: CameraConfig{
			Device:      "/dev/video0",
			Width:       1280,
			Height:      720,
			FPS:         15,
			JPEGQuality: 80,
		},
		Push: PushConfig{IntervalS: 5},
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (if path is non-empty), then environment variables on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides config fields from environment variables.
// Unset variables leave the current value untouched.
func (c *Config) applyEnv() error {
	envStr("LOG_LEVEL", &c.LogLevel)
	envStr("HTTP_ADDR", &c.HTTP.Addr)
	envStr("CAM_DEVICE", &c.Camera.Device)
	envStr("GST_PIPE", &c.Camera.Pipeline)
	envStr("PUSH_URL", &c.Push.URL)
	envStr("PUSH_TOKEN", &c.Push.Token)
	envStr("PUSH_FINGERPRINT", &c.Push.Fingerprint)

	for _, v := range []struct {
		name string
		dst  *int
	}{
		{"CAM_WIDTH", &c.Camera.Width},
		{"CAM_HEIGHT", &c.Camera.Height},
		{"CAM_FPS", &c.Camera.FPS},
		{"CAM_JPEG_QUALITY", &c.Camera.JPEGQuality},
		{"PUSH_EVERY", &c.Push.IntervalS},
		{"SHUTDOWN_TIMEOUT_S", &c.ShutdownTimeoutS},
	} {
		if err := envInt(v.name, v.dst); err != nil {
			return err
		}
	}

	return nil
}

func envStr(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok {
		*dst = v
	}
}

func envInt(name string, dst *int) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s must be an integer, got %q", name, v)
	}
	*dst = n
	return nil
}

// ShutdownTimeout returns the graceful shutdown timeout as a duration
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// Level maps the configured log level string to a slog level
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Enabled reports whether the push destination is fully configured.
// Missing credentials disable the worker rather than erroring.
func (p PushConfig) Enabled() bool {
	return p.URL != "" && p.Token != ""
}

// Interval returns the push interval as a duration
func (p PushConfig) Interval() time.Duration {
	return time.Duration(p.IntervalS) * time.Second
}

package config

import "fmt"

// Validate checks the configuration for values the service cannot run with.
// Called once at startup; a validation error is fatal.
func Validate(cfg *Config) error {
	if cfg.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}

	if cfg.Camera.Device == "" && cfg.Camera.Pipeline == "" {
		return fmt.Errorf("camera.device or camera.pipeline is required")
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		return fmt.Errorf("camera resolution %dx%d is invalid", cfg.Camera.Width, cfg.Camera.Height)
	}
	if cfg.Camera.FPS < 1 || cfg.Camera.FPS > 60 {
		return fmt.Errorf("camera.fps %d is invalid (must be 1-60)", cfg.Camera.FPS)
	}
	if cfg.Camera.JPEGQuality < 0 || cfg.Camera.JPEGQuality > 100 {
		return fmt.Errorf("camera.jpeg_quality %d is invalid (must be 0-100)", cfg.Camera.JPEGQuality)
	}

	if cfg.Push.Enabled() && cfg.Push.IntervalS < 1 {
		return fmt.Errorf("push.interval_s %d is invalid (must be >= 1)", cfg.Push.IntervalS)
	}

	if cfg.ShutdownTimeoutS < 1 {
		return fmt.Errorf("shutdown_timeout_s %d is invalid (must be >= 1)", cfg.ShutdownTimeoutS)
	}

	return nil
}

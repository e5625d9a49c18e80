// Package capture opens the video device and produces decoded frames.
//
// Two backends are supported. The primary backend runs a GStreamer
// pipeline described by a launch string and pulls raw RGBA frames from an
// appsink. If the pipeline cannot be built or started (GStreamer missing,
// descriptor invalid, device busy), the adapter falls back to reading the
// device directly over V4L2 with MJPG/YUYV decoding in-process.
//
// Sessions are never repaired: on any read failure the caller closes the
// session and opens a new one.
package capture

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
)

// Session is a live handle to an opened device. Owned by a single
// goroutine; ReadFrame blocks until a frame arrives or the session fails.
// Close unblocks a pending ReadFrame and is safe to call from another
// goroutine (used to interrupt the blocking read on shutdown).
type Session interface {
	ReadFrame() (image.Image, error)
	Close() error
	Backend() string
}

// Config contains capture settings. Width/height/FPS are advisory hints
// for the fallback backend; the device may ignore them.
type Config struct {
	Device   string
	Width    int
	Height   int
	FPS      int
	Pipeline string // explicit pipeline descriptor; derived from Device/FPS when empty
}

// ErrDeviceUnavailable is returned when neither backend could open the device
var ErrDeviceUnavailable = errors.New("capture: no backend could open the device")

// Backend open functions, swappable in tests
var (
	openPrimary  = openGStreamer
	openFallback = openV4L2
)

// Open attempts the GStreamer pipeline backend first, then direct V4L2.
// Idempotent: a failed attempt retains no resources.
func Open(cfg Config) (Session, error) {
	sess, perr := openPrimary(cfg)
	if perr == nil {
		return sess, nil
	}
	slog.Warn("capture: gstreamer backend unavailable, trying direct v4l2",
		"device", cfg.Device,
		"error", perr,
	)

	sess, ferr := openFallback(cfg)
	if ferr == nil {
		return sess, nil
	}

	return nil, fmt.Errorf("%w (gstreamer: %v; v4l2: %v)", ErrDeviceUnavailable, perr, ferr)
}

// DefaultPipeline builds the default capture graph for a device: MJPG off
// the camera, decoded and converted to RGBA for the appsink. The appsink
// keeps only the newest buffer so a slow consumer never grows a queue.
func DefaultPipeline(device string, fps int) string {
	return fmt.Sprintf(
		"v4l2src device=%s ! image/jpeg,framerate=%d/1 ! jpegdec ! videoconvert ! "+
			"video/x-raw,format=RGBA ! appsink name=sink max-buffers=1 drop=true sync=false",
		device, fps,
	)
}

func (c Config) pipeline() string {
	if c.Pipeline != "" {
		return c.Pipeline
	}
	return DefaultPipeline(c.Device, c.FPS)
}

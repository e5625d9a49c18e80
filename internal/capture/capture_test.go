package capture

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"testing"

	"github.com/blackjack/webcam"
)

type fakeSession struct {
	backend string
}

func (s *fakeSession) ReadFrame() (image.Image, error) { return nil, errors.New("not implemented") }
func (s *fakeSession) Close() error                    { return nil }
func (s *fakeSession) Backend() string                 { return s.backend }

// swapBackends replaces the backend open functions for the duration of a test
func swapBackends(t *testing.T, primary, fallback func(Config) (Session, error)) {
	t.Helper()
	oldPrimary, oldFallback := openPrimary, openFallback
	openPrimary, openFallback = primary, fallback
	t.Cleanup(func() {
		openPrimary, openFallback = oldPrimary, oldFallback
	})
}

func TestOpenPrefersPrimary(t *testing.T) {
	fallbackCalled := false
	swapBackends(t,
		func(Config) (Session, error) { return &fakeSession{backend: "primary"}, nil },
		func(Config) (Session, error) { fallbackCalled = true; return nil, errors.New("nope") },
	)

	sess, err := Open(Config{Device: "/dev/video0"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if sess.Backend() != "primary" {
		t.Errorf("Backend() = %q, want primary", sess.Backend())
	}
	if fallbackCalled {
		t.Error("fallback backend was tried although primary succeeded")
	}
}

func TestOpenFallsBack(t *testing.T) {
	swapBackends(t,
		func(Config) (Session, error) { return nil, errors.New("gstreamer missing") },
		func(Config) (Session, error) { return &fakeSession{backend: "fallback"}, nil },
	)

	sess, err := Open(Config{Device: "/dev/video0"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if sess.Backend() != "fallback" {
		t.Errorf("Backend() = %q, want fallback", sess.Backend())
	}
}

func TestOpenBothFail(t *testing.T) {
	swapBackends(t,
		func(Config) (Session, error) { return nil, errors.New("gstreamer missing") },
		func(Config) (Session, error) { return nil, errors.New("device busy") },
	)

	_, err := Open(Config{Device: "/dev/video0"})
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Open() error = %v, want ErrDeviceUnavailable", err)
	}
	// Both backend failures must survive in the message for diagnostics
	if !strings.Contains(err.Error(), "gstreamer missing") || !strings.Contains(err.Error(), "device busy") {
		t.Errorf("error %q does not carry both backend failures", err)
	}
}

func TestDefaultPipeline(t *testing.T) {
	desc := DefaultPipeline("/dev/video3", 12)

	for _, want := range []string{
		"v4l2src device=/dev/video3",
		"framerate=12/1",
		"appsink name=sink",
		"format=RGBA",
	} {
		if !strings.Contains(desc, want) {
			t.Errorf("DefaultPipeline() = %q, missing %q", desc, want)
		}
	}
}

func TestConfigPipelineOverride(t *testing.T) {
	explicit := "videotestsrc ! appsink name=sink"
	cfg := Config{Device: "/dev/video0", FPS: 15, Pipeline: explicit}
	if got := cfg.pipeline(); got != explicit {
		t.Errorf("pipeline() = %q, want explicit descriptor", got)
	}

	cfg.Pipeline = ""
	if got := cfg.pipeline(); !strings.Contains(got, "v4l2src") {
		t.Errorf("pipeline() = %q, want derived default", got)
	}
}

func TestPickFormat(t *testing.T) {
	tests := []struct {
		name    string
		formats map[webcam.PixelFormat]string
		want    webcam.PixelFormat
	}{
		{
			name:    "prefers MJPG",
			formats: map[webcam.PixelFormat]string{fourccMJPG: "MJPG", fourccYUYV: "YUYV"},
			want:    fourccMJPG,
		},
		{
			name:    "falls back to YUYV",
			formats: map[webcam.PixelFormat]string{fourccYUYV: "YUYV"},
			want:    fourccYUYV,
		},
		{
			name:    "nothing usable",
			formats: map[webcam.PixelFormat]string{webcam.PixelFormat(0x32315559): "YU12"},
			want:    0,
		},
		{
			name:    "empty",
			formats: nil,
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pickFormat(tt.formats); got != tt.want {
				t.Errorf("pickFormat() = %#x, want %#x", uint32(got), uint32(tt.want))
			}
		})
	}
}

func TestYUYVToRGBA(t *testing.T) {
	// 2x2 neutral-chroma frame: Y=128, U=V=128 decodes to mid gray
	data := []byte{
		128, 128, 128, 128,
		128, 128, 128, 128,
	}
	img, err := yuyvToRGBA(data, 2, 2)
	if err != nil {
		t.Fatalf("yuyvToRGBA() error = %v", err)
	}
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Fatalf("bounds = %v, want 2x2", img.Bounds())
	}
	for i := 0; i < len(img.Pix); i += 4 {
		r, g, b, a := img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]
		if r != 128 || g != 128 || b != 128 {
			t.Errorf("pixel %d = (%d,%d,%d), want mid gray", i/4, r, g, b)
		}
		if a != 0xFF {
			t.Errorf("pixel %d alpha = %d, want 255", i/4, a)
		}
	}
}

func TestYUYVToRGBAShortData(t *testing.T) {
	if _, err := yuyvToRGBA([]byte{1, 2, 3}, 4, 4); err == nil {
		t.Error("yuyvToRGBA() accepted a truncated frame")
	}
}

func TestFourccString(t *testing.T) {
	if got := fourccString(fourccMJPG); got != "MJPG" {
		t.Errorf("fourccString(MJPG) = %q", got)
	}
	if got := fourccString(fourccYUYV); got != "YUYV" {
		t.Errorf("fourccString(YUYV) = %q", got)
	}
}

func ExampleDefaultPipeline() {
	fmt.Println(DefaultPipeline("/dev/video0", 15))
	// Output: v4l2src device=/dev/video0 ! image/jpeg,framerate=15/1 ! jpegdec ! videoconvert ! video/x-raw,format=RGBA ! appsink name=sink max-buffers=1 drop=true sync=false
}

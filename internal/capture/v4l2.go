package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"sync/atomic"

	"github.com/blackjack/webcam"
)

// V4L2 FOURCC codes, little-endian
const (
	fourccMJPG = webcam.PixelFormat(0x47504A4D) // 'MJPG'
	fourccYUYV = webcam.PixelFormat(0x56595559) // 'YUYV'
)

// waitTimeoutS is the per-read frame wait in seconds. A timeout is treated
// as a read failure, which makes the caller reopen the device.
const waitTimeoutS = 5

// v4l2Session reads frames straight from the device node. Used when the
// GStreamer backend is unavailable. Format, resolution and framerate are
// advisory hints; the session keeps whatever the driver negotiated.
type v4l2Session struct {
	cam    *webcam.Webcam
	format webcam.PixelFormat
	width  int
	height int
	closed atomic.Bool
}

func openV4L2(cfg Config) (Session, error) {
	cam, err := webcam.Open(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("capture: v4l2 open %s: %w", cfg.Device, err)
	}

	format := pickFormat(cam.GetSupportedFormats())
	if format == 0 {
		cam.Close()
		return nil, fmt.Errorf("capture: %s offers neither MJPG nor YUYV", cfg.Device)
	}

	negotiated, w, h, err := cam.SetImageFormat(format, uint32(cfg.Width), uint32(cfg.Height))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("capture: v4l2 set format: %w", err)
	}
	if negotiated != fourccMJPG && negotiated != fourccYUYV {
		cam.Close()
		return nil, fmt.Errorf("capture: device negotiated unsupported pixel format %#08x", uint32(negotiated))
	}
	if int(w) != cfg.Width || int(h) != cfg.Height {
		slog.Debug("capture: device adjusted resolution hint",
			"requested", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
			"negotiated", fmt.Sprintf("%dx%d", w, h),
		)
	}

	if cfg.FPS > 0 {
		if err := cam.SetFramerate(float32(cfg.FPS)); err != nil {
			// Advisory only
			slog.Debug("capture: device ignored framerate hint", "fps", cfg.FPS, "error", err)
		}
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("capture: v4l2 start streaming: %w", err)
	}

	slog.Info("capture: v4l2 session opened",
		"device", cfg.Device,
		"format", fourccString(negotiated),
		"resolution", fmt.Sprintf("%dx%d", w, h),
	)

	return &v4l2Session{
		cam:    cam,
		format: negotiated,
		width:  int(w),
		height: int(h),
	}, nil
}

// pickFormat prefers MJPG over YUYV; returns 0 if neither is offered
func pickFormat(formats map[webcam.PixelFormat]string) webcam.PixelFormat {
	if _, ok := formats[fourccMJPG]; ok {
		return fourccMJPG
	}
	if _, ok := formats[fourccYUYV]; ok {
		return fourccYUYV
	}
	return 0
}

func (s *v4l2Session) ReadFrame() (image.Image, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("capture: session closed")
	}
	if err := s.cam.WaitForFrame(waitTimeoutS); err != nil {
		return nil, fmt.Errorf("capture: v4l2 wait for frame: %w", err)
	}

	raw, err := s.cam.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("capture: v4l2 read frame: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("capture: v4l2 returned empty frame")
	}

	switch s.format {
	case fourccMJPG:
		img, err := jpeg.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("capture: mjpg frame decode: %w", err)
		}
		return img, nil
	case fourccYUYV:
		return yuyvToRGBA(raw, s.width, s.height)
	default:
		return nil, fmt.Errorf("capture: unsupported pixel format %#08x", uint32(s.format))
	}
}

// Close releases the device. Safe to call twice: the acquisition loop
// closes on teardown and the shutdown hook closes to unblock a pending read.
func (s *v4l2Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.cam.StopStreaming(); err != nil {
		slog.Debug("capture: v4l2 stop streaming", "error", err)
	}
	return s.cam.Close()
}

func (s *v4l2Session) Backend() string { return "v4l2" }

// yuyvToRGBA converts a packed YUYV 4:2:2 frame to RGBA. Two pixels share
// one chroma pair per 4-byte group.
func yuyvToRGBA(data []byte, width, height int) (*image.RGBA, error) {
	need := width * height * 2
	if len(data) < need {
		return nil, fmt.Errorf("capture: short YUYV frame: got %d bytes, need %d", len(data), need)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i+3 < need; i += 4 {
		y0, u, y1, v := data[i], data[i+1], data[i+2], data[i+3]
		off := i * 2 // 4 source bytes become 2 RGBA pixels

		r, g, b := color.YCbCrToRGB(y0, u, v)
		img.Pix[off+0], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = r, g, b, 0xFF

		r, g, b = color.YCbCrToRGB(y1, u, v)
		img.Pix[off+4], img.Pix[off+5], img.Pix[off+6], img.Pix[off+7] = r, g, b, 0xFF
	}
	return img, nil
}

// fourccString renders a FOURCC code as its four ASCII characters
func fourccString(f webcam.PixelFormat) string {
	v := uint32(f)
	return string([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

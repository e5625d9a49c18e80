package capture

import (
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// startupWindow bounds how long we watch the pipeline bus for a startup
// error before declaring the open successful.
const startupWindow = 3 * time.Second

// gstSession reads frames from a GStreamer pipeline ending in an appsink.
// The pipeline must produce video/x-raw,format=RGBA so buffers map
// directly onto image.RGBA without conversion.
type gstSession struct {
	pipeline *gst.Pipeline
	sink     *app.Sink
	closed   atomic.Bool
}

// openGStreamer builds and starts the pipeline described by cfg.
// Returns an error if GStreamer is unavailable, the descriptor is invalid,
// the descriptor has no appsink named "sink", or the pipeline reports an
// error while starting.
func openGStreamer(cfg Config) (Session, error) {
	// Safe to call multiple times
	gst.Init(nil)

	desc := cfg.pipeline()
	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return nil, fmt.Errorf("capture: failed to build pipeline: %w", err)
	}

	elem, err := pipeline.GetElementByName("sink")
	if err != nil || elem == nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("capture: pipeline has no appsink named \"sink\": %q", desc)
	}
	sink := app.SinkFromElement(elem)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("capture: failed to start pipeline: %w", err)
	}

	// Watch the bus until the pipeline reaches PLAYING or fails. Some
	// sources take a moment to negotiate; no news inside the window counts
	// as success.
	bus := pipeline.GetPipelineBus()
	deadline := time.Now().Add(startupWindow)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			pipeline.SetState(gst.StateNull)
			return nil, fmt.Errorf("capture: pipeline failed to start: %s", gerr.Error())
		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				if _, newState := msg.ParseStateChanged(); newState == gst.StatePlaying {
					slog.Debug("capture: pipeline reached PLAYING state")
					return &gstSession{pipeline: pipeline, sink: sink}, nil
				}
			}
		}
	}

	slog.Debug("capture: pipeline startup window elapsed without error, assuming live")
	return &gstSession{pipeline: pipeline, sink: sink}, nil
}

// ReadFrame pulls the next sample from the appsink. Blocks until a frame
// arrives; returns an error if the pipeline stopped or the sample is
// malformed.
func (s *gstSession) ReadFrame() (image.Image, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("capture: session closed")
	}

	sample := s.sink.PullSample()
	if sample == nil {
		return nil, fmt.Errorf("capture: sample pull failed (EOS or pipeline stopped)")
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil, fmt.Errorf("capture: sample carries no buffer")
	}

	width, height, err := sampleDimensions(sample)
	if err != nil {
		return nil, err
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) < width*height*4 {
		buffer.Unmap()
		return nil, fmt.Errorf("capture: short buffer: got %d bytes for %dx%d RGBA", len(data), width, height)
	}

	// Copy out: GStreamer reuses the buffer after Unmap
	pix := make([]byte, width*height*4)
	copy(pix, data)
	buffer.Unmap()

	return &image.RGBA{
		Pix:    pix,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// Close tears the pipeline down. Unblocks a pending ReadFrame because the
// appsink returns nil samples once the pipeline leaves PLAYING.
func (s *gstSession) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("capture: failed to stop pipeline: %w", err)
	}
	return nil
}

func (s *gstSession) Backend() string { return "gstreamer" }

// sampleDimensions reads width/height from the sample caps
func sampleDimensions(sample *gst.Sample) (int, int, error) {
	caps := sample.GetCaps()
	if caps == nil {
		return 0, 0, fmt.Errorf("capture: sample carries no caps")
	}
	structure := caps.GetStructureAt(0)
	if structure == nil {
		return 0, 0, fmt.Errorf("capture: sample caps are empty")
	}

	wv, err := structure.GetValue("width")
	if err != nil {
		return 0, 0, fmt.Errorf("capture: caps missing width: %w", err)
	}
	hv, err := structure.GetValue("height")
	if err != nil {
		return 0, 0, fmt.Errorf("capture: caps missing height: %w", err)
	}

	width, ok := wv.(int)
	if !ok {
		return 0, 0, fmt.Errorf("capture: caps width has unexpected type %T", wv)
	}
	height, ok := hv.(int)
	if !ok {
		return 0, 0, fmt.Errorf("capture: caps height has unexpected type %T", hv)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("capture: caps report empty frame %dx%d", width, height)
	}

	return width, height, nil
}

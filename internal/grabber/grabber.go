// Package grabber runs the frame acquisition loop: open the device, read
// frames, resize and JPEG-encode them, and publish the result into the
// frame store. It is the single writer of the store.
//
// The loop is a two-state machine, disconnected and streaming. A failed
// open keeps it disconnected and retries after a backoff. A read failure
// while streaming tears the session down and reopens it; an encode failure
// only skips the frame and keeps the session. Neither is ever fatal to the
// process.
package grabber

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/visiona/printcam/internal/capture"
	"github.com/visiona/printcam/internal/encode"
	"github.com/visiona/printcam/internal/framestore"
)

const (
	defaultOpenBackoff = 1 * time.Second
	defaultReadBackoff = 500 * time.Millisecond
)

// Config contains acquisition loop settings
type Config struct {
	Capture     capture.Config
	JPEGQuality int
	OpenBackoff time.Duration // delay before retrying a failed open (default 1s)
	ReadBackoff time.Duration // delay before reopening after a read failure (default 500ms)
}

// Grabber drives the capture session and publishes encoded frames
type Grabber struct {
	cfg   Config
	store *framestore.Store
	enc   *encode.Encoder
	open  func(capture.Config) (capture.Session, error)

	// Counters (atomic)
	frames         uint64
	readFailures   uint64
	reopens        uint64
	encodeFailures uint64

	mu        sync.RWMutex
	backend   string
	connected bool
}

// New creates a grabber writing into store
func New(cfg Config, store *framestore.Store) *Grabber {
	if cfg.OpenBackoff <= 0 {
		cfg.OpenBackoff = defaultOpenBackoff
	}
	if cfg.ReadBackoff <= 0 {
		cfg.ReadBackoff = defaultReadBackoff
	}
	return &Grabber{
		cfg:   cfg,
		store: store,
		enc:   encode.New(cfg.Capture.Width, cfg.Capture.Height, cfg.JPEGQuality),
		open:  capture.Open,
	}
}

// FrameInterval derives the per-frame interval from the target FPS, with a
// floor of 5 FPS so low configured rates never stretch the interval past
// 200ms. Shared with the stream multiplexer cadence.
func FrameInterval(fps int) time.Duration {
	if fps < 5 {
		fps = 5
	}
	return time.Second / time.Duration(fps)
}

// Run drives the acquisition loop until ctx is cancelled. Blocking device
// reads are interrupted on cancellation by closing the session.
func (g *Grabber) Run(ctx context.Context) {
	// Sleeping half the frame interval after each publish throttles CPU
	// without starving the store.
	pause := FrameInterval(g.cfg.Capture.FPS) / 2

	slog.Info("grabber: starting acquisition loop",
		"device", g.cfg.Capture.Device,
		"target_fps", g.cfg.Capture.FPS,
		"jpeg_quality", g.cfg.JPEGQuality,
	)

	reopenPending := false
	for ctx.Err() == nil {
		sess, err := g.open(g.cfg.Capture)
		if err != nil {
			slog.Warn("grabber: camera unavailable, retrying",
				"error", err,
				"backoff", g.cfg.OpenBackoff,
			)
			if !sleep(ctx, g.cfg.OpenBackoff) {
				break
			}
			continue
		}
		// Count the reopen only once the replacement open has succeeded
		if reopenPending {
			atomic.AddUint64(&g.reopens, 1)
			reopenPending = false
		}

		g.setConnected(sess.Backend())
		slog.Info("grabber: camera connected", "backend", sess.Backend())

		g.stream(ctx, sess, pause)
		g.setDisconnected()

		if ctx.Err() != nil {
			break
		}
		// stream only returns on cancellation or a read failure; the next
		// successful open completes the reopen cycle
		reopenPending = true
		if !sleep(ctx, g.cfg.ReadBackoff) {
			break
		}
	}

	slog.Info("grabber: acquisition loop stopped",
		"frames", atomic.LoadUint64(&g.frames),
		"reopens", atomic.LoadUint64(&g.reopens),
	)
}

// stream reads frames from sess until a read failure or cancellation.
// The session is always closed before returning.
func (g *Grabber) stream(ctx context.Context, sess capture.Session, pause time.Duration) {
	// Unblock a pending ReadFrame when ctx is cancelled
	stop := context.AfterFunc(ctx, func() { sess.Close() })
	defer stop()
	defer sess.Close()

	for {
		if ctx.Err() != nil {
			return
		}

		img, err := sess.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			atomic.AddUint64(&g.readFailures, 1)
			slog.Warn("grabber: frame read failed, reopening device",
				"backend", sess.Backend(),
				"error", err,
			)
			return
		}

		data, err := g.enc.Encode(img)
		if err != nil {
			// Skip the frame but keep the session
			atomic.AddUint64(&g.encodeFailures, 1)
			slog.Warn("grabber: frame encode failed, skipping", "error", err)
			continue
		}

		g.store.Publish(data)
		atomic.AddUint64(&g.frames, 1)

		if !sleep(ctx, pause) {
			return
		}
	}
}

func (g *Grabber) setConnected(backend string) {
	g.mu.Lock()
	g.backend = backend
	g.connected = true
	g.mu.Unlock()
}

func (g *Grabber) setDisconnected() {
	g.mu.Lock()
	g.backend = ""
	g.connected = false
	g.mu.Unlock()
}

// Stats contains acquisition loop statistics
type Stats struct {
	Connected      bool   `json:"connected"`
	Backend        string `json:"backend,omitempty"`
	Frames         uint64 `json:"frames"`
	ReadFailures   uint64 `json:"read_failures"`
	Reopens        uint64 `json:"reopens"` // completed reopen cycles
	EncodeFailures uint64 `json:"encode_failures"`
}

// Stats returns current loop statistics
func (g *Grabber) Stats() Stats {
	g.mu.RLock()
	backend, connected := g.backend, g.connected
	g.mu.RUnlock()

	return Stats{
		Connected:      connected,
		Backend:        backend,
		Frames:         atomic.LoadUint64(&g.frames),
		ReadFailures:   atomic.LoadUint64(&g.readFailures),
		Reopens:        atomic.LoadUint64(&g.reopens),
		EncodeFailures: atomic.LoadUint64(&g.encodeFailures),
	}
}

// sleep waits for d or until ctx is cancelled; reports whether the full
// delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Package push periodically uploads the current frame to an external
// ingestion endpoint. Upload failures are logged and swallowed; the next
// scheduled iteration is the retry.
package push

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/visiona/printcam/internal/framestore"
)

const defaultTimeout = 10 * time.Second

// Config contains push worker settings
type Config struct {
	URL         string
	Token       string
	Fingerprint string        // client-identifying header; generated when empty
	Interval    time.Duration // delay between uploads
	Timeout     time.Duration // per-upload HTTP timeout (default 10s)
}

// Worker uploads the latest frame on a fixed interval. A nil *Worker is a
// disabled worker: Run returns immediately and Stats reports disabled.
type Worker struct {
	cfg    Config
	store  *framestore.Store
	client *http.Client

	pushes   uint64
	failures uint64

	mu          sync.RWMutex
	lastSuccess time.Time
}

// New creates a push worker, or returns nil if the destination is not
// fully configured. The check happens exactly once, here; missing
// credentials are a deliberate feature-disable, not an error.
func New(cfg Config, store *framestore.Store) *Worker {
	if cfg.URL == "" || cfg.Token == "" {
		slog.Info("push: destination not configured, worker disabled")
		return nil
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = uuid.NewString()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	slog.Info("push: worker enabled",
		"url", cfg.URL,
		"interval", cfg.Interval,
		"fingerprint", cfg.Fingerprint,
	)

	return &Worker{
		cfg:    cfg,
		store:  store,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Run uploads frames until ctx is cancelled. The first upload happens one
// interval after start, never immediately.
func (w *Worker) Run(ctx context.Context) {
	if w == nil {
		return
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("push: worker stopped",
				"pushes", atomic.LoadUint64(&w.pushes),
				"failures", atomic.LoadUint64(&w.failures),
			)
			return
		case <-ticker.C:
			w.pushOnce(ctx)
		}
	}
}

// pushOnce uploads the current frame. Skips silently if no frame has been
// published yet. Any failure is logged and counted, never escalated.
func (w *Worker) pushOnce(ctx context.Context) {
	frame, ok := w.store.Read()
	if !ok {
		return
	}

	req, err := w.buildRequest(ctx, frame)
	if err != nil {
		atomic.AddUint64(&w.failures, 1)
		slog.Warn("push: failed to build upload request", "error", err)
		return
	}

	resp, err := w.client.Do(req)
	if err != nil {
		atomic.AddUint64(&w.failures, 1)
		slog.Warn("push: upload failed", "url", w.cfg.URL, "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		atomic.AddUint64(&w.failures, 1)
		slog.Warn("push: upload rejected", "url", w.cfg.URL, "status", resp.StatusCode)
		return
	}

	atomic.AddUint64(&w.pushes, 1)
	w.mu.Lock()
	w.lastSuccess = time.Now()
	w.mu.Unlock()

	slog.Debug("push: frame uploaded", "bytes", len(frame), "status", resp.StatusCode)
}

// buildRequest wraps the frame in a multipart body: one file part named
// "image" with filename "snapshot.jpg" and MIME type image/jpeg.
func (w *Worker) buildRequest(ctx context.Context, frame []byte) (*http.Request, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="image"; filename="snapshot.jpg"`},
		"Content-Type":        {"image/jpeg"},
	})
	if err != nil {
		return nil, fmt.Errorf("push: create multipart part: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return nil, fmt.Errorf("push: write frame: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("push: finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, &body)
	if err != nil {
		return nil, fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.cfg.Token)
	req.Header.Set("Fingerprint", w.cfg.Fingerprint)

	return req, nil
}

// Stats contains push worker statistics
type Stats struct {
	Enabled     bool      `json:"enabled"`
	Pushes      uint64    `json:"pushes"`
	Failures    uint64    `json:"failures"`
	LastSuccess time.Time `json:"last_success,omitempty"`
}

// Stats returns current worker statistics; safe on a nil (disabled) worker
func (w *Worker) Stats() Stats {
	if w == nil {
		return Stats{}
	}
	w.mu.RLock()
	last := w.lastSuccess
	w.mu.RUnlock()

	return Stats{
		Enabled:     true,
		Pushes:      atomic.LoadUint64(&w.pushes),
		Failures:    atomic.LoadUint64(&w.failures),
		LastSuccess: last,
	}
}

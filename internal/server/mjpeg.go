package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/visiona/printcam/internal/grabber"
)

// handleMJPEG serves the live stream as multipart/x-mixed-replace. Each
// connected client runs in its own handler goroutine with its own cadence
// ticker; clients never block each other and never touch the store beyond
// reads. The stream ends when the client disconnects or the process shuts
// down (both surface as request context cancellation).
func (s *Server) handleMJPEG(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	clientID := uuid.NewString()
	atomic.AddInt64(&s.streamClients, 1)
	defer atomic.AddInt64(&s.streamClients, -1)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	slog.Info("server: stream client connected",
		"client_id", clientID,
		"remote", r.RemoteAddr,
	)

	ticker := time.NewTicker(grabber.FrameInterval(s.cfg.FPS))
	defer ticker.Stop()

	segments := 0
	for {
		select {
		case <-r.Context().Done():
			slog.Info("server: stream client disconnected",
				"client_id", clientID,
				"segments", segments,
			)
			return
		case <-ticker.C:
			frame, ok := s.store.Read()
			if !ok {
				// Nothing published yet; skip the tick rather than emit
				// an empty segment
				continue
			}
			if err := writeSegment(w, frame); err != nil {
				slog.Debug("server: stream write failed",
					"client_id", clientID,
					"error", err,
				)
				return
			}
			flusher.Flush()
			segments++
		}
	}
}

// writeSegment emits one multipart segment: boundary, part headers with the
// exact byte length, the frame, and a trailing CRLF.
func writeSegment(w io.Writer, frame []byte) error {
	if _, err := fmt.Fprintf(w,
		"--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
		len(frame),
	); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

func (s *Server) clientCount() int64 {
	return atomic.LoadInt64(&s.streamClients)
}

// Package server exposes the HTTP surface: single snapshot, multipart
// live stream, health and status endpoints, and the landing page.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/visiona/printcam/internal/framestore"
	"github.com/visiona/printcam/internal/grabber"
	"github.com/visiona/printcam/internal/push"
)

// Config contains HTTP server settings
type Config struct {
	Addr string
	FPS  int // drives the stream emission cadence
}

// Server serves the consumer-facing HTTP surface. All handlers are
// read-only consumers of the frame store.
type Server struct {
	cfg     Config
	store   *framestore.Store
	grab    *grabber.Grabber
	pusher  *push.Worker
	started time.Time

	httpSrv       *http.Server
	streamClients int64 // atomic; currently connected /mjpeg clients
}

// New creates a server reading from store. grab and pusher are only
// consulted for the status endpoint; pusher may be nil.
func New(cfg Config, store *framestore.Store, grab *grabber.Grabber, pusher *push.Worker) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		grab:    grab,
		pusher:  pusher,
		started: time.Now(),
	}
}

// Handler returns the full route tree with CORS applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot.jpg", s.handleSnapshot)
	mux.HandleFunc("/mjpeg", s.handleMJPEG)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/", s.handleIndex)
	return withCORS(mux)
}

// Start binds the listen address and serves in the background. A bind
// failure is returned to the caller and is fatal; request contexts derive
// from ctx so in-flight streams observe process shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: /mjpeg writes for the lifetime of the connection
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	slog.Info("server: listening",
		"addr", s.cfg.Addr,
		"endpoints", []string{"/", "/snapshot.jpg", "/mjpeg", "/health", "/status"},
	)

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("server: serve failed", "error", err)
		}
	}()

	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// handleSnapshot serves the current frame, or 503 with an empty body if
// nothing has been published yet.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	frame, ok := s.store.Read()
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(frame)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// statusResponse aggregates component statistics for operators
type statusResponse struct {
	Status        string           `json:"status"` // "healthy" or "degraded"
	UptimeSeconds int64            `json:"uptime_seconds"`
	StreamClients int64            `json:"stream_clients"`
	Capture       grabber.Stats    `json:"capture"`
	Frame         framestore.Stats `json:"frame"`
	Push          push.Stats       `json:"push"`
}

// handleStatus reports capture/store/push statistics. Degraded means the
// camera is currently disconnected or no frame exists yet.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		StreamClients: s.clientCount(),
		Capture:       s.grab.Stats(),
		Frame:         s.store.Stats(),
		Push:          s.pusher.Stats(),
	}
	if !resp.Capture.Connected || !resp.Frame.HasFrame {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

// withCORS answers preflight requests with 204 and stamps permissive CORS
// headers on everything else.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const indexHTML = `<!DOCTYPE html>
<html>
  <head>
    <title>Printer Cam</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
  </head>
  <body style="margin:0;background:#111;color:#eee;font-family:sans-serif;">
    <div style="max-width:900px;margin:1rem auto;padding:0 1rem;">
      <h2>Live</h2>
      <img src="/mjpeg" style="width:100%;height:auto;display:block;border-radius:8px" />
      <p><a href="/snapshot.jpg" style="color:#8cf">Snapshot</a></p>
    </div>
  </body>
</html>
`

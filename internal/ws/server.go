package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/foreach/photobooth/internal/config"
	"github.com/foreach/photobooth/internal/control"
	"github.com/foreach/photobooth/internal/metrics"
	"github.com/foreach/photobooth/internal/session"
	"github.com/foreach/photobooth/internal/stats"
)

// TokenHeader carries the auth token on HTTP and websocket requests.
const TokenHeader = "X-Photobooth-Token"

const maxTriggerBody = 4 << 10

// TriggerRequest is the JSON body accepted by POST /api/trigger and by
// websocket clients.
type TriggerRequest struct {
	Name string    `json:"name"`
	Args []float64 `json:"args,omitempty"`
}

// HostStats describes the machine running the booth.
type HostStats struct {
	CPUPercent     float64 `json:"cpuPercent"`
	MemUsedPercent float64 `json:"memUsedPercent"`
	Goroutines     int     `json:"goroutines"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status       string               `json:"status"`
	Phase        session.Phase        `json:"phase"`
	Camera       *CameraHealthPayload `json:"camera,omitempty"`
	Uptime       string               `json:"uptime"`
	WSClients    int                  `json:"wsClients"`
	QueueDepth   int                  `json:"queueDepth"`
	QueueDropped uint64               `json:"queueDropped"`
	Host         *HostStats           `json:"host,omitempty"`
}

type Server struct {
	config          *config.Config
	store           *session.Store
	broadcaster     *Broadcaster
	queue           *control.Queue
	embeddedHandler http.Handler
	allowedOrigins  map[string]bool
	allowedHosts    map[string]bool
	authToken       string
	tracker         *stats.Tracker
	health          func() CameraHealthPayload
	startedAt       time.Time
	log             *slog.Logger
}

func NewServer(cfg *config.Config, store *session.Store, broadcaster *Broadcaster, queue *control.Queue, embeddedHandler http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		config:          cfg,
		store:           store,
		broadcaster:     broadcaster,
		queue:           queue,
		embeddedHandler: embeddedHandler,
		allowedOrigins:  make(map[string]bool),
		allowedHosts:    make(map[string]bool),
		authToken:       cfg.Server.AuthToken,
		startedAt:       time.Now(),
		log:             log,
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// SetStatsTracker configures the tracker behind /api/stats. Must be called
// before SetupRoutes.
func (s *Server) SetStatsTracker(tracker *stats.Tracker) {
	s.tracker = tracker
}

// SetHealthSource configures where /api/health reads camera health from.
func (s *Server) SetHealthSource(fn func() CameraHealthPayload) {
	s.health = fn
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/trigger", s.handleTrigger)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/frame", s.handleFrame)
	mux.Handle("/metrics", promhttp.Handler())

	if s.embeddedHandler != nil {
		mux.Handle("/", s.embeddedHandler)
	}
}

// Handler returns the routed mux wrapped with security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		s.log.Warn("ws client rejected", "remote", r.RemoteAddr, "error", err)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}
	s.log.Info("ws client connected", "remote", r.RemoteAddr)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.log.Info("ws client disconnected", "remote", r.RemoteAddr)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.handleClientMessage(c, data)
		}
	}()
}

// handleClientMessage queues a trigger sent over the websocket. Failures are
// reported to the sending client only.
func (s *Server) handleClientMessage(c *client, data []byte) {
	var req TriggerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.replyError(c, "malformed trigger: "+err.Error())
		return
	}
	if _, err := s.enqueue(req, "ws"); err != nil {
		s.replyError(c, err.Error())
	}
}

func (s *Server) replyError(c *client, message string) {
	s.broadcaster.sendTo(c, WSMessage{Type: MsgError, Payload: ErrorPayload{Message: message}})
}

var errQueueFull = errors.New("trigger queue full")

// enqueue validates req and pushes it onto the trigger queue.
func (s *Server) enqueue(req TriggerRequest, via string) (control.Trigger, error) {
	t, err := control.Parse(req.Name, req.Args...)
	if err != nil {
		metrics.Triggers.WithLabelValues("unknown", metrics.ResultMalformed).Inc()
		return control.Trigger{}, err
	}
	if !s.queue.Push(t) {
		s.log.Warn("trigger dropped, queue full", "trigger", t.String(), "via", via)
		return t, errQueueFull
	}
	s.log.Debug("trigger queued", "trigger", t.String(), "via", via)
	return t, nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Get())
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TriggerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTriggerBody)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	t, err := s.enqueue(req, "http")
	switch {
	case errors.Is(err, errQueueFull):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		writeJSON(w, http.StatusAccepted, TriggerRequest{Name: t.Name, Args: t.Args})
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.tracker == nil {
		http.Error(w, "stats not available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.Stats())
}

// handleHealth reports 503 only when the camera has failed.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	resp := HealthResponse{
		Status:       "ok",
		Phase:        s.store.Get().Phase,
		Uptime:       time.Since(s.startedAt).Round(time.Second).String(),
		WSClients:    s.broadcaster.ClientCount(),
		QueueDepth:   s.queue.Len(),
		QueueDropped: s.queue.Dropped(),
		Host:         hostStats(),
	}
	code := http.StatusOK
	if s.health != nil {
		h := s.health()
		resp.Camera = &h
		switch h.Status {
		case StatusDegraded:
			resp.Status = "degraded"
		case StatusFailed:
			resp.Status = "failed"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

func hostStats() *HostStats {
	hs := &HostStats{Goroutines: runtime.NumGoroutine()}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		hs.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		hs.MemUsedPercent = vm.UsedPercent
	}
	return hs
}

// handleFrame serves the current output frame as a JPEG.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	f := s.store.Frame()
	if f == nil || f.Image == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if err := jpeg.Encode(w, f.Image, &jpeg.Options{Quality: 80}); err != nil {
		s.log.Debug("frame encode failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get(TokenHeader) == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host
	if host == r.Host {
		return true
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	switch strings.Trim(host, "[]") {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ListenAndServe serves handler until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, host string, port int, handler http.Handler, log *slog.Logger) error {
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Package web serves the host manager's HTTP control API and metrics.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/streamhosts/pkg/host"
	"github.com/streamhosts/pkg/hostmgr"
	"github.com/streamhosts/pkg/logging"
)

// Controller is the part of the host manager the API drives.
type Controller interface {
	GetHosts() []*host.Host
	Host(id string) (*host.Host, bool)
	AddHost(ctx context.Context, address string) bool
	DeleteHost(id string) bool
	Wake(ctx context.Context, id string) bool
	Subscribe(l hostmgr.HostListener) func()
}

// Options configures a Server. Zero values use the defaults.
type Options struct {
	TelemetryPath string
	// WakeRate is wake requests per second allowed per host
	WakeRate  float64
	WakeBurst int
	// RequestTimeout bounds add and wake calls
	RequestTimeout time.Duration
}

// Server serves the API
type Server struct {
	ctrl     Controller
	gatherer prometheus.Gatherer
	opts     Options
	mux      *http.ServeMux
	events   *hub

	limitersLock sync.Mutex
	limiters     map[string]*rate.Limiter
}

// NewServer builds the handler tree. Close releases the event feed.
func NewServer(ctrl Controller, gatherer prometheus.Gatherer, opts Options) *Server {
	if opts.TelemetryPath == "" {
		opts.TelemetryPath = "/metrics"
	}
	if opts.WakeRate <= 0 {
		opts.WakeRate = 0.5
	}
	if opts.WakeBurst <= 0 {
		opts.WakeBurst = 2
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}

	s := &Server{
		ctrl:     ctrl,
		gatherer: gatherer,
		opts:     opts,
		mux:      http.NewServeMux(),
		limiters: make(map[string]*rate.Limiter),
	}
	s.events = newHub(ctrl)

	s.mux.Handle(opts.TelemetryPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.HandleFunc("GET /api/hosts", s.handleListHosts)
	s.mux.HandleFunc("POST /api/hosts", s.handleAddHost)
	s.mux.HandleFunc("GET /api/hosts/{id}", s.handleGetHost)
	s.mux.HandleFunc("DELETE /api/hosts/{id}", s.handleDeleteHost)
	s.mux.HandleFunc("POST /api/hosts/{id}/wake", s.handleWake)
	s.mux.HandleFunc("GET /api/events", s.events.serveWS)
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html>
<head><title>Stream Hosts</title></head>
<body>
<h1>Stream Hosts</h1>
<p><a href="/api/hosts">Hosts</a></p>
<p><a href="` + opts.TelemetryPath + `">Metrics</a></p>
</body>
</html>`))
	})
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Close disconnects event subscribers
func (s *Server) Close() {
	s.events.close()
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Logf("[listen] web addr=%s metrics=%s health=/healthz api=/api/hosts", addr, s.opts.TelemetryPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type addRequest struct {
	Address string `json:"address"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debugf("[web] write response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func (s *Server) handleListHosts(w http.ResponseWriter, r *http.Request) {
	hosts := s.ctrl.GetHosts()
	out := make([]host.Info, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, h.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetHost(w http.ResponseWriter, r *http.Request) {
	h, ok := s.ctrl.Host(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown host")
		return
	}
	writeJSON(w, http.StatusOK, h.Snapshot())
}

func (s *Server) handleAddHost(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Address = strings.TrimSpace(req.Address)
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()
	if !s.ctrl.AddHost(ctx, req.Address) {
		writeError(w, http.StatusBadGateway, "host did not answer")
		return
	}
	logging.Logf("[web] added addr=%s remote=%s", req.Address, r.RemoteAddr)

	hosts := s.ctrl.GetHosts()
	out := make([]host.Info, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, h.Snapshot())
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleDeleteHost(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.ctrl.DeleteHost(id) {
		writeError(w, http.StatusNotFound, "unknown host")
		return
	}
	s.dropLimiter(id)
	logging.Logf("[web] deleted id=%s remote=%s", id, r.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.ctrl.Host(id); !ok {
		writeError(w, http.StatusNotFound, "unknown host")
		return
	}
	if !s.limiter(id).Allow() {
		writeError(w, http.StatusTooManyRequests, "wake rate limit exceeded")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()
	if !s.ctrl.Wake(ctx, id) {
		writeError(w, http.StatusBadGateway, "no wake packet could be sent")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (s *Server) limiter(id string) *rate.Limiter {
	s.limitersLock.Lock()
	defer s.limitersLock.Unlock()

	l, ok := s.limiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.opts.WakeRate), s.opts.WakeBurst)
		s.limiters[id] = l
	}
	return l
}

func (s *Server) dropLimiter(id string) {
	s.limitersLock.Lock()
	defer s.limitersLock.Unlock()
	delete(s.limiters, id)
}

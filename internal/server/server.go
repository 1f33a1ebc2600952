// Package server exposes the small internal HTTP surface: a health probe,
// the ranked attention list, and Prometheus metrics. It is meant for
// operators and internal dashboards, not for the public internet.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"freightflow/internal/attention"
	"freightflow/internal/logging"
	"freightflow/internal/types"
)

// WorkLister is the slice of persistence the server needs.
type WorkLister interface {
	ListShipmentWork(ctx context.Context) ([]types.ShipmentWork, error)
}

// Options configures the HTTP surface.
type Options struct {
	// APIKey guards every endpoint except /healthz. Empty means locked:
	// all guarded requests fail unless BypassAuth is set.
	APIKey     string
	BypassAuth bool
	Addr       string
}

// Server serves the internal endpoints.
type Server struct {
	opts     Options
	store    WorkLister
	engine   *attention.Engine
	registry *prometheus.Registry
	now      func() time.Time
}

// New builds the server. registry may be nil when metrics are not exposed.
func New(opts Options, store WorkLister, engine *attention.Engine, registry *prometheus.Registry) *Server {
	return &Server{
		opts:     opts,
		store:    store,
		engine:   engine,
		registry: registry,
		now:      time.Now,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/attention", s.authed(http.HandlerFunc(s.handleAttention)))
	if s.registry != nil {
		mux.Handle("/metrics", s.authed(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}
	return mux
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	log := logging.L(logging.CategoryServer)
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Infow("http server listening", "addr", s.opts.Addr, "auth_bypassed", s.opts.BypassAuth)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errc:
		return err
	}
}

// authed enforces the bearer / X-API-Key credential.
func (s *Server) authed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.BypassAuth {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("X-API-Key")
		if got == "" {
			got = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if s.opts.APIKey == "" ||
			subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.APIKey)) != 1 {
			logging.L(logging.CategoryServer).Warnw("unauthorized request",
				"path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// attentionResponse is the /attention payload.
type attentionResponse struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Shipments   int                    `json:"shipments"`
	Entries     []types.AttentionEntry `json:"entries"`
}

func (s *Server) handleAttention(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	work, err := s.store.ListShipmentWork(r.Context())
	if err != nil {
		logging.L(logging.CategoryServer).Errorw("attention listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	now := s.now()
	entries := s.engine.Rank(work, now)
	if entries == nil {
		entries = []types.AttentionEntry{}
	}
	writeJSON(w, http.StatusOK, attentionResponse{
		GeneratedAt: now.UTC(),
		Shipments:   len(work),
		Entries:     entries,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

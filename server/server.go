// Package server hosts parley's HTTP surface: provider webhooks, the live
// session API, the websocket feed, metrics and health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/bosley/parley/transcript"
)

const (
	defaultAddr     = ":5000"
	shutdownTimeout = 10 * time.Second
	readTimeout     = 30 * time.Second
)

// Routes mounts additional handlers, such as the telephony webhooks.
type Routes interface {
	Register(router *mux.Router)
}

// Config for the HTTP listener. TLS is used when both files are set.
type Config struct {
	Addr     string
	CertFile string
	KeyFile  string
}

// Deps are the handlers the server exposes. Nil entries are not mounted.
type Deps struct {
	Webhooks Routes
	Store    transcript.Store
	Feed     http.Handler
	Metrics  http.Handler
}

// Server is the HTTP front of a running pipeline.
type Server struct {
	config Config
	deps   Deps
	router *mux.Router
}

// New builds the router.
func New(cfg Config, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	s := &Server{config: cfg, deps: deps, router: mux.NewRouter()}

	if deps.Webhooks != nil {
		deps.Webhooks.Register(s.router)
	}
	if deps.Store != nil {
		s.router.HandleFunc("/api/sessions", s.handleListSessions).Methods("GET")
		s.router.HandleFunc("/api/sessions/{sessionID}", s.handleGetSession).Methods("GET")
	}
	if deps.Feed != nil {
		s.router.Handle("/ws", deps.Feed)
		s.router.Handle("/ws/{sessionID}", deps.Feed)
	}
	if deps.Metrics != nil {
		s.router.Handle("/metrics", deps.Metrics).Methods("GET")
	}
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: readTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.config.Addr, "tls", s.tls())
		var err error
		if s.tls() {
			err = srv.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Debug("HTTP server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) tls() bool {
	return s.config.CertFile != "" && s.config.KeyFile != ""
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListSessions returns every live or recently ended session
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.deps.Store.List(r.Context())
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("active") == "true" {
		active := snaps[:0]
		for _, snap := range snaps {
			if !snap.Ended {
				active = append(active, snap)
			}
		}
		snaps = active
	}
	if snaps == nil {
		snaps = []transcript.Snapshot{}
	}

	slog.Debug("Sending session list", "numSessions", len(snaps))
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]

	snap, err := s.deps.Store.Get(r.Context(), sessionID)
	switch {
	case errors.Is(err, transcript.ErrNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	case errors.Is(err, transcript.ErrInvalidID):
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	case err != nil:
		slog.Error("Failed to load session", "error", err, "sessionID", sessionID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

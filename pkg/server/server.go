// Package server exposes a chat session over a websocket, for clients that
// want the streaming transcript without the terminal UI.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nstogner/motifchat/pkg/chat"
	"github.com/nstogner/motifchat/pkg/models"
)

// SessionFactory creates the session for a new connection. The server
// closes it when the connection ends.
type SessionFactory func(ctx context.Context) (*chat.Session, error)

// Options configure a Server.
type Options struct {
	NewSession SessionFactory
	// Models answers GET /api/models. Optional.
	Models models.Provider
	Names  chat.Names
	Logger *slog.Logger
}

// Server serves the websocket chat endpoint and a small JSON API.
type Server struct {
	newSession SessionFactory
	models     models.Provider
	names      chat.Names
	log        *slog.Logger

	mu  sync.Mutex
	srv *http.Server
}

// New creates a new Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		newSession: opts.NewSession,
		models:     opts.Models,
		names:      opts.Names,
		log:        opts.Logger,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/models", s.handleListModels)
	mux.HandleFunc("/ws", s.handleChatWebSocket)
	return s.corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()
	s.log.Info("Starting web server", "addr", addr)
	return srv.ListenAndServe()
}

// Shutdown stops accepting connections and waits for handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if s.models == nil {
		s.jsonResponse(w, http.StatusNotImplemented, map[string]string{"error": "no provider configured"})
		return
	}
	names, err := s.models.List(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusBadGateway, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, names)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Debug("Failed to write response", "error", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	s.log.Error("API Error", "error", err)
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}

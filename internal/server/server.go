// Package server is the read API: it serves ranked story snapshots of the
// most recent READY digest over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"newscrunch/internal/config"
	"newscrunch/internal/logger"
	"newscrunch/internal/persistence"
)

// Server is the HTTP read API.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	assembler  *Assembler
	cfg        config.Server
	log        *slog.Logger
	refreshCh  chan struct{}
}

// New creates the read API server over the store.
func New(store persistence.Store, cfg config.Server) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		assembler: NewAssembler(store),
		cfg:       cfg,
		log:       logger.Get(),
		refreshCh: make(chan struct{}, 1),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.cfg.CORS.Enabled {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/status", s.handleStatus)
	s.router.Get("/stories", s.handleStories)
	s.router.Get("/story/{id}", s.handleStory)
	s.router.Post("/refresh", s.handleRefresh)
}

// Start refreshes the snapshot once, launches the background refresher and
// serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.assembler.Refresh(ctx); err != nil {
		logger.Error("Initial snapshot refresh failed", err)
	}
	go s.refreshLoop(ctx)

	s.log.Info("Starting read API", "addr", s.httpServer.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// refreshLoop polls the store on the configured interval and on explicit
// refresh requests.
func (s *Server) refreshLoop(ctx context.Context) {
	interval := s.cfg.RefreshInterval
	if interval <= 0 {
		interval = 600 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.refreshCh:
		}
		if err := s.assembler.Refresh(ctx); err != nil {
			logger.Error("Snapshot refresh failed", err)
		}
	}
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	digestID, ready, stories, builtAt := s.assembler.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"digest_id": digestID,
		"ready":     ready,
		"stories":   stories,
		"built_at":  builtAt,
	})
}

func (s *Server) handleStories(w http.ResponseWriter, r *http.Request) {
	stories := s.assembler.Stories()
	if stories == nil {
		stories = []StoryView{}
	}
	writeJSON(w, http.StatusOK, stories)
}

func (s *Server) handleStory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "story id must be an integer"})
		return
	}
	story, ok := s.assembler.Story(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "story not found"})
		return
	}
	writeJSON(w, http.StatusOK, story)
}

// handleRefresh rebuilds the snapshot immediately. A failed rebuild keeps
// the previous snapshot serving.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.assembler.Refresh(r.Context()); err != nil {
		logger.Error("Explicit refresh failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	_, _, stories, _ := s.assembler.Status()
	writeJSON(w, http.StatusOK, map[string]any{"status": "refreshed", "stories": stories})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", err)
	}
}

// Package server provides the HTTP server for the fixtureplay UI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/fixtureplay/internal/connection"
	"github.com/ayusman/fixtureplay/internal/plugin"
	"github.com/ayusman/fixtureplay/internal/protocol"
	"github.com/ayusman/fixtureplay/internal/rendererurl"
	"github.com/ayusman/fixtureplay/internal/server/api"
)

const shutdownTimeout = 5 * time.Second

// Config holds the server configuration. Nil handlers leave their routes
// unregistered.
type Config struct {
	StaticDir string
	// Renderers is the websocket endpoint renderers connect to.
	Renderers http.Handler
	// Connected reports whether a renderer has an open websocket.
	Connected func(protocol.RendererID) bool
	Manager   *connection.Manager
	Registry  *plugin.Registry
	// Metrics serves /metrics.
	Metrics http.Handler
	// Health serves /live and /ready.
	Health       http.Handler
	RendererURLs rendererurl.URLs
	Mode         rendererurl.Mode
	Logger       *zap.Logger
}

// Server represents the HTTP server for the fixtureplay UI.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	log    *zap.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    log.Named("server"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Renderers != nil {
		s.mux.Handle("/renderer", s.config.Renderers)
	}

	if s.config.Manager != nil {
		renderers := api.NewRendererHandler(s.config.Manager, s.config.Connected)
		s.mux.Handle("/api/renderers", renderers)
		s.mux.Handle("/api/renderers/", renderers)
	}

	if s.config.Registry != nil {
		selection := api.NewSelectionHandler(s.config.Registry)
		s.mux.Handle("/api/select", selection)
		s.mux.Handle("/api/unselect", selection)
		s.mux.Handle("/api/fixture-state", selection)
		s.mux.Handle("/api/slots/", api.NewSlotHandler(s.config.Registry))
		s.mux.Handle("/api/bookmarks", api.NewBookmarkHandler(s.config.Registry))
		s.mux.Handle("/api/renderer-url", api.NewRendererURLHandler(s.config.Registry, s.config.RendererURLs, s.config.Mode))
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics)
	}

	if s.config.Health != nil {
		s.mux.Handle("/live", s.config.Health)
		s.mux.Handle("/ready", s.config.Health)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Manager != nil {
		response["renderers"] = s.config.Manager.Len()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Run serves on addr until ctx is done, then shuts down gracefully. It
// returns nil after a clean shutdown.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

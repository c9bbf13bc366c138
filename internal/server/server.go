// Package server provides the HTTP API for the fanout invocation worker.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nchandak/fanout/internal/metrics"
	"github.com/nchandak/fanout/internal/plugin"
	"github.com/nchandak/fanout/internal/server/api"
	"github.com/nchandak/fanout/internal/store"
)

// Config holds the server configuration.
type Config struct {
	Store   *store.Store
	Plugins *plugin.Manager
	Metrics *metrics.Metrics
	Events  *EventsHandler
}

// Server represents the HTTP server for the fanout daemon.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		invocationsHandler := api.NewInvocationsHandler(s.config.Store)
		s.mux.Handle("/api/invocations", invocationsHandler)
		s.mux.Handle("/api/invocations/", invocationsHandler)
	}

	if s.config.Plugins != nil {
		pluginsHandler := api.NewPluginsHandler(s.config.Plugins)
		s.mux.Handle("/api/plugins", pluginsHandler)
		s.mux.Handle("/api/plugins/", pluginsHandler)
	}

	if s.config.Events != nil {
		s.mux.Handle("/api/events", s.config.Events)
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics.Handler())
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

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}

	if s.config.Store != nil {
		if counts, err := s.config.Store.Invocations().Counts(); err == nil {
			queue := make(map[string]int, len(counts))
			for status, n := range counts {
				queue[string(status)] = n
			}
			response["queue"] = queue
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

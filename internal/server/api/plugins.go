package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nchandak/fanout/internal/plugin"
)

// PluginsHandler handles HTTP requests for plugin resources.
type PluginsHandler struct {
	manager *plugin.Manager
}

// NewPluginsHandler creates a new PluginsHandler with the given manager.
func NewPluginsHandler(m *plugin.Manager) *PluginsHandler {
	return &PluginsHandler{manager: m}
}

type pluginResponse struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Actions     []string `json:"actions"`
}

type listPluginsResponse struct {
	Plugins []pluginResponse `json:"plugins"`
}

// ServeHTTP implements the http.Handler interface and routes requests to
// appropriate methods.
func (h *PluginsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/plugins, /api/plugins/reload
	path := strings.TrimPrefix(r.URL.Path, "/api/plugins")
	path = strings.TrimPrefix(path, "/")

	switch {
	case path == "" && r.Method == http.MethodGet:
		h.list(w, r)
	case path == "reload" && r.Method == http.MethodPost:
		h.reload(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// list handles GET /api/plugins.
func (h *PluginsHandler) list(w http.ResponseWriter, r *http.Request) {
	plugins := h.manager.List()

	response := listPluginsResponse{Plugins: make([]pluginResponse, 0, len(plugins))}
	for _, p := range plugins {
		response.Plugins = append(response.Plugins, pluginResponse{
			Name:        p.Manifest.Name,
			Version:     p.Manifest.Version,
			Description: p.Manifest.Description,
			Actions:     p.Manifest.Actions,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// reload handles POST /api/plugins/reload, rescanning the plugin directory.
func (h *PluginsHandler) reload(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Discover(); err != nil {
		writeError(w, http.StatusInternalServerError, "plugin discovery failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"plugins": len(h.manager.List())})
}

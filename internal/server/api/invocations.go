// Package api provides HTTP API handlers for the fanout invocation worker.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nchandak/fanout/internal/invocation"
	"github.com/nchandak/fanout/internal/store"
)

const defaultListLimit = 100

// InvocationsHandler handles HTTP requests for invocation resources.
type InvocationsHandler struct {
	store *store.Store
}

// NewInvocationsHandler creates a new InvocationsHandler with the given store.
func NewInvocationsHandler(s *store.Store) *InvocationsHandler {
	return &InvocationsHandler{store: s}
}

// ServeHTTP implements the http.Handler interface and routes requests to
// appropriate methods.
func (h *InvocationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/invocations, /api/invocations/{id},
	// /api/invocations/{id}/result
	path := strings.TrimPrefix(r.URL.Path, "/api/invocations")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.enqueue(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if id, ok := strings.CutSuffix(path, "/result"); ok {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.getResult(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.get(w, r, path)
}

// Request and response types

type enqueueRequest struct {
	ID      string          `json:"id"`
	Plugin  string          `json:"plugin"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
	Config  json.RawMessage `json:"config"`
}

type enqueueResponse struct {
	IDs []string `json:"ids"`
}

type listInvocationsResponse struct {
	Invocations []*invocation.Invocation `json:"invocations"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// enqueue handles POST /api/invocations. The body is either a single
// invocation object or an array of them. A client-supplied ID makes the
// enqueue idempotent; without one a UUID is assigned.
func (h *InvocationsHandler) enqueue(w http.ResponseWriter, r *http.Request) {
	body, err := decodeEnqueueBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty batch")
		return
	}

	invs := make([]*invocation.Invocation, 0, len(body))
	for _, req := range body {
		if req.Plugin == "" || req.Action == "" {
			writeError(w, http.StatusBadRequest, "plugin and action are required")
			return
		}
		id := req.ID
		if id == "" {
			id = uuid.New().String()
		}
		invs = append(invs, &invocation.Invocation{
			ID:         id,
			PluginName: req.Plugin,
			Action:     req.Action,
			Payload:    req.Payload,
			Config:     req.Config,
		})
	}

	ids := make([]string, 0, len(invs))
	for _, inv := range invs {
		if err := h.store.Invocations().Enqueue(inv); err != nil {
			// A client-supplied ID that already exists violates the primary key.
			writeError(w, http.StatusConflict, "invocation already enqueued: "+inv.ID)
			return
		}
		ids = append(ids, inv.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(enqueueResponse{IDs: ids})
}

// decodeEnqueueBody accepts either one invocation object or an array.
func decodeEnqueueBody(r *http.Request) ([]enqueueRequest, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var batch []enqueueRequest
		if err := json.Unmarshal(raw, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	}

	var one enqueueRequest
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []enqueueRequest{one}, nil
}

// list handles GET /api/invocations with optional status and limit query
// parameters.
func (h *InvocationsHandler) list(w http.ResponseWriter, r *http.Request) {
	status := invocation.Status(r.URL.Query().Get("status"))
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	invs, err := h.store.Invocations().List(status, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list invocations")
		return
	}
	if invs == nil {
		invs = []*invocation.Invocation{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(listInvocationsResponse{Invocations: invs})
}

// get handles GET /api/invocations/{id}.
func (h *InvocationsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	inv, err := h.store.Invocations().Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "invocation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get invocation")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inv)
}

// getResult handles GET /api/invocations/{id}/result.
func (h *InvocationsHandler) getResult(w http.ResponseWriter, r *http.Request, id string) {
	res, err := h.store.Invocations().GetResult(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "result not available")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get result")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

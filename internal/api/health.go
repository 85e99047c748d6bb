package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HealthHandler reports store reachability.
type HealthHandler struct {
	*Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(base *Handler) *HealthHandler {
	return &HealthHandler{Handler: base}
}

// RegisterHealth registers the health route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}

// Health pings the store and reports the schema version.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.engine.Ping(ctx); err != nil {
		Error(w, http.StatusServiceUnavailable, "UNAVAILABLE", "database unreachable: "+err.Error())
		return
	}
	version, err := h.engine.SchemaVersion(ctx)
	if err != nil {
		Error(w, http.StatusServiceUnavailable, "UNAVAILABLE", "schema version unavailable: "+err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]any{"status": "ok", "schema_version": version})
}

package api

import (
	"net/http"
	"time"

	"github.com/notecore/notecore/internal/api/respond"
	"github.com/notecore/notecore/internal/store"
)

// HealthHandler reports service and store health.
type HealthHandler struct {
	store store.Store
}

func NewHealthHandler(st store.Store) *HealthHandler {
	return &HealthHandler{store: st}
}

type healthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// CheckHealth handles GET /api/health.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Time: time.Now().UTC()})
}

// CheckStoreHealth handles GET /api/health/db.
func (h *HealthHandler) CheckStoreHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HealthPing(r.Context()); err != nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	respond.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Time: time.Now().UTC()})
}

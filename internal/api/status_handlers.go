package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"sesame-tx/internal/attack"
	"sesame-tx/internal/config"
	"sesame-tx/internal/models"
	"sesame-tx/internal/store"
)

// Version is the service version reported by the status endpoint.
const Version = "1.2.0"

// StatusHandler handles system status API endpoints
type StatusHandler struct {
	engine    *attack.Engine
	store     *store.Store
	cfg       *config.Config
	startedAt time.Time
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(engine *attack.Engine, st *store.Store, cfg *config.Config) *StatusHandler {
	return &StatusHandler{
		engine:    engine,
		store:     st,
		cfg:       cfg,
		startedAt: time.Now(),
	}
}

// RegisterRoutes registers the status routes
func (h *StatusHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/status", h.getStatus).Methods("GET")
	r.HandleFunc("/api/health", h.getHealth).Methods("GET")
}

// getStatus returns the overall system status
func (h *StatusHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getStatus").Logger()

	status := models.SystemStatus{
		Status:       "ok",
		Version:      Version,
		StartedAt:    h.startedAt,
		AttackActive: h.engine.IsRunning(),
		RadioBackend: h.cfg.Radio.Backend,
		TargetCount:  len(h.engine.Targets()),
	}

	if size, err := h.store.Size(); err == nil {
		status.DatabaseSize = size
	} else {
		logger.Warn().Err(err).Msg("Failed to determine database size")
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		logger.Error().Err(err).Msg("Failed to encode status")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// getHealth is a minimal liveness probe
func (h *StatusHandler) getHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Package api provides the HTTP handlers for the sesame-tx REST API: attack
// control, target catalog queries, saved codes, and system status.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"sesame-tx/internal/attack"
	"sesame-tx/internal/catalog"
	"sesame-tx/internal/models"
	"sesame-tx/internal/store"
)

// AttackHandler handles attack-control API endpoints
type AttackHandler struct {
	engine *attack.Engine
	store  *store.Store
}

// NewAttackHandler creates a new attack handler
func NewAttackHandler(engine *attack.Engine, st *store.Store) *AttackHandler {
	return &AttackHandler{
		engine: engine,
		store:  st,
	}
}

// RegisterRoutes registers the attack routes
func (h *AttackHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/attack", h.startAttack).Methods("POST")
	r.HandleFunc("/api/attack/stop", h.stopAttack).Methods("POST")
	r.HandleFunc("/api/attack/status", h.getStatus).Methods("GET")
	r.HandleFunc("/api/runs", h.getRuns).Methods("GET")
}

// startAttack launches an attack run
func (h *AttackHandler) startAttack(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "startAttack").Logger()

	var params models.AttackParameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		logger.Error().Err(err).Msg("Failed to parse attack parameters")
		http.Error(w, "Invalid attack parameters", http.StatusBadRequest)
		return
	}

	if params.Mode == "" {
		params.Mode = attack.ModeDeBruijn.String()
	}
	mode, err := attack.ParseMode(params.Mode)
	if err != nil {
		logger.Warn().Str("mode", params.Mode).Msg("Unknown attack mode requested")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger.Info().
		Int("targetIndex", params.TargetIndex).
		Str("mode", mode.String()).
		Msg("Attack requested")

	if err := h.engine.Start(params.TargetIndex, mode); err != nil {
		switch {
		case errors.Is(err, attack.ErrAlreadyRunning):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, store.ErrNoSavedCode),
			errors.Is(err, attack.ErrInvalidSelection),
			errors.Is(err, catalog.ErrKeyspaceTooLarge):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			logger.Error().Err(err).Msg("Failed to start attack")
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(h.engine.Progress())
}

// stopAttack cancels the active run, optionally persisting the oldest
// buffered code first
func (h *AttackHandler) stopAttack(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "stopAttack").Logger()

	var params models.StopParameters
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			logger.Error().Err(err).Msg("Failed to parse stop parameters")
			http.Error(w, "Invalid stop parameters", http.StatusBadRequest)
			return
		}
	}

	if !h.engine.IsRunning() {
		http.Error(w, "No attack in progress", http.StatusConflict)
		return
	}

	if params.Save {
		logger.Info().Msg("Save-and-stop requested")
		h.engine.RequestSaveAndStop()
	} else {
		logger.Info().Msg("Cancel requested")
		h.engine.RequestCancel()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Stop requested",
		"save":    params.Save,
	})
}

// getStatus returns the progress snapshot of the current or last run
func (h *AttackHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.engine.Progress()); err != nil {
		log.Error().Err(err).Msg("Failed to encode attack status")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// getRuns returns recent attack run history
func (h *AttackHandler) getRuns(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getRuns").Logger()

	limit := 10
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsedLimit, err := strconv.Atoi(limitParam)
		if err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	runs, err := h.store.RecentRuns(limit)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to retrieve runs")
		http.Error(w, "Failed to retrieve runs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(runs); err != nil {
		logger.Error().Err(err).Msg("Failed to encode runs")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

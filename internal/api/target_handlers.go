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

// TargetHandler handles target catalog and saved-code API endpoints
type TargetHandler struct {
	engine *attack.Engine
	store  *store.Store
}

// NewTargetHandler creates a new target handler
func NewTargetHandler(engine *attack.Engine, st *store.Store) *TargetHandler {
	return &TargetHandler{
		engine: engine,
		store:  st,
	}
}

// RegisterRoutes registers the target routes
func (h *TargetHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/targets", h.getTargets).Methods("GET")
	r.HandleFunc("/api/targets/{index}", h.getTarget).Methods("GET")
	r.HandleFunc("/api/codes", h.getSavedCodes).Methods("GET")
	r.HandleFunc("/api/codes/{target}", h.deleteSavedCode).Methods("DELETE")
}

// targetInfo builds the API view of one catalog entry
func (h *TargetHandler) targetInfo(index int) models.TargetInfo {
	targets := h.engine.Targets()
	t := &targets[index]

	info := models.TargetInfo{
		Index:          index,
		Name:           t.Name,
		Encoding:       t.Encoding,
		Meta:           t.Meta != catalog.MetaNone,
		UserSelectable: t.UserSelectable,
	}
	if t.Meta == catalog.MetaNone {
		info.FrequencyHz = t.FrequencyHz
		info.AlphabetSize = t.AlphabetSize
		info.DigitCount = t.DigitCount
		info.BitLengthPerDigit = t.BitLengthPerDigit
		if size, err := t.KeyspaceSize(); err == nil {
			info.KeyspaceSize = size
		}
		if _, err := h.store.LoadCode(t.Name); err == nil {
			info.HasSavedCode = true
		}
	}
	return info
}

// getTargets returns the full target catalog
func (h *TargetHandler) getTargets(w http.ResponseWriter, r *http.Request) {
	targets := h.engine.Targets()

	// Internal brute profiles are listed only on request; operators normally
	// pick from the selectable entries.
	all := r.URL.Query().Get("all") == "true"

	infos := make([]models.TargetInfo, 0, len(targets))
	for i := range targets {
		if !all && !targets[i].UserSelectable {
			continue
		}
		infos = append(infos, h.targetInfo(i))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		log.Error().Err(err).Msg("Failed to encode targets")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// getTarget returns one catalog entry by index
func (h *TargetHandler) getTarget(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getTarget").Logger()

	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	if err != nil || index < 0 || index >= len(h.engine.Targets()) {
		logger.Warn().Str("index", vars["index"]).Msg("Invalid target index")
		http.Error(w, "Invalid target index", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.targetInfo(index)); err != nil {
		logger.Error().Err(err).Msg("Failed to encode target")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// getSavedCodes returns every persisted working code
func (h *TargetHandler) getSavedCodes(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getSavedCodes").Logger()

	codes, err := h.store.ListCodes()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to retrieve saved codes")
		http.Error(w, "Failed to retrieve saved codes", http.StatusInternalServerError)
		return
	}
	if codes == nil {
		codes = []*models.SavedCode{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(codes); err != nil {
		logger.Error().Err(err).Msg("Failed to encode saved codes")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// deleteSavedCode forgets the persisted code for one target
func (h *TargetHandler) deleteSavedCode(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "deleteSavedCode").Logger()

	vars := mux.Vars(r)
	targetName := vars["target"]

	if _, err := h.store.LoadCode(targetName); err != nil {
		if errors.Is(err, store.ErrNoSavedCode) {
			http.Error(w, "No saved code for target", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Str("target", targetName).Msg("Failed to look up saved code")
		http.Error(w, "Failed to look up saved code", http.StatusInternalServerError)
		return
	}

	if err := h.store.DeleteCode(targetName); err != nil {
		logger.Error().Err(err).Str("target", targetName).Msg("Failed to delete saved code")
		http.Error(w, "Failed to delete saved code", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/fortuna/janus/internal/evidence"
	"github.com/fortuna/janus/internal/franchise"
	"github.com/fortuna/janus/internal/store"
	"github.com/fortuna/janus/internal/store/repository"
	"github.com/gorilla/mux"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	db         *store.Database
	franchises *franchise.Index
	players    *repository.PlayerRepository
	facts      *repository.FactRepository
}

// NewHandler creates a new handler
func NewHandler(db *store.Database, franchises *franchise.Index) *Handler {
	return &Handler{
		db:         db,
		franchises: franchises,
		players:    repository.NewPlayerRepository(db),
		facts:      repository.NewFactRepository(db),
	}
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "janus",
		"version": "1.0.0",
	})
}

// GetFactSeasons returns the seasons of a fact table that still carry
// unresolved rows.
func (h *Handler) GetFactSeasons(w http.ResponseWriter, r *http.Request) {
	table := store.FactTable(r.URL.Query().Get("table"))
	if !table.Valid() {
		respondError(w, http.StatusBadRequest, "Unknown or missing table parameter", nil)
		return
	}

	seasons, err := h.facts.ListSeasons(r.Context(), table)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch seasons", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"table":   table,
		"seasons": seasons,
	})
}

// GetUnresolvedGroups previews the unresolved (team, name) groups a run
// would classify for one table and season.
func (h *Handler) GetUnresolvedGroups(w http.ResponseWriter, r *http.Request) {
	table := store.FactTable(r.URL.Query().Get("table"))
	if !table.Valid() {
		respondError(w, http.StatusBadRequest, "Unknown or missing table parameter", nil)
		return
	}

	season, err := strconv.Atoi(r.URL.Query().Get("season"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season parameter", err)
		return
	}

	groups, err := h.facts.ListUnresolvedGroups(r.Context(), table, season)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch groups", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"table":  table,
		"season": season,
		"count":  len(groups),
		"groups": groups,
	})
}

// GetPlayer returns one identity record
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	playerID, err := strconv.Atoi(vars["playerID"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid player ID", err)
		return
	}

	player, err := h.players.GetByID(r.Context(), playerID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Player not found", err)
		return
	}

	respondJSON(w, http.StatusOK, player)
}

// GetFranchises returns all franchises
func (h *Handler) GetFranchises(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.franchises.Franchises())
}

// ResolveFranchise probes the alias index: which franchise owns a team
// code in a season.
func (h *Handler) ResolveFranchise(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "Missing code parameter", nil)
		return
	}

	season, err := strconv.Atoi(r.URL.Query().Get("season"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season parameter", err)
		return
	}

	franchiseID, err := h.franchises.Resolve(code, season)
	if err != nil {
		if errors.Is(err, franchise.ErrUnknownCode) || errors.Is(err, franchise.ErrNotFound) {
			respondError(w, http.StatusNotFound, "No franchise owns this code in this season", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to resolve franchise", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"code":         franchise.NormalizeCode(code),
		"season":       season,
		"franchise_id": franchiseID,
	})
}

// GetTeamFamily returns the historical code family used for candidate
// generation.
func (h *Handler) GetTeamFamily(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "Missing code parameter", nil)
		return
	}

	season, err := strconv.Atoi(r.URL.Query().Get("season"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season parameter", err)
		return
	}

	family, err := h.franchises.Family(code, season)
	if err != nil {
		if errors.Is(err, franchise.ErrUnknownCode) || errors.Is(err, franchise.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Code has no family in this season", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to expand family", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"code":   franchise.NormalizeCode(code),
		"season": season,
		"family": family,
	})
}

// VerifyEvidence parses a saved snapshot file and reports whether it
// mentions the named player. path is resolved on the server's filesystem.
func (h *Handler) VerifyEvidence(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	name := r.URL.Query().Get("name")
	if path == "" || name == "" {
		respondError(w, http.StatusBadRequest, "Missing path or name parameter", nil)
		return
	}

	snap, err := evidence.ParseFile(path)
	if err != nil {
		respondError(w, http.StatusNotFound, "Failed to parse snapshot", err)
		return
	}

	supported, entries := snap.Supports(name)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"path":      path,
		"name":      name,
		"supported": supported,
		"entries":   entries,
	})
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}

	if err != nil {
		response["details"] = err.Error()
	}

	json.NewEncoder(w).Encode(response)
}

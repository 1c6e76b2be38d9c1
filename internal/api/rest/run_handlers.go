package rest

import (
	"encoding/json"
	"net/http"

	"github.com/fortuna/janus/internal/resolution"
	"github.com/gorilla/mux"
)

// RunHandler exposes resolution run operations.
type RunHandler struct {
	service *resolution.Service
}

// NewRunHandler constructs a RunHandler.
func NewRunHandler(service *resolution.Service) *RunHandler {
	return &RunHandler{service: service}
}

// HandleRunRequest handles POST /api/v1/resolution
func (h *RunHandler) HandleRunRequest(w http.ResponseWriter, r *http.Request) {
	var req resolution.Request
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	run, err := h.service.Enqueue(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to enqueue resolution run", err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"message": "Resolution run queued",
		"run":     runPayload(run),
	})
}

// HandleRunStatus handles GET /api/v1/resolution/status
func (h *RunHandler) HandleRunStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch status", err)
		return
	}

	respondJSON(w, http.StatusOK, buildStatusPayload(summary))
}

// HandleGetRun handles GET /api/v1/resolution/runs/{runID}
func (h *RunHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.GetRun(r.Context(), mux.Vars(r)["runID"])
	if err != nil {
		respondError(w, http.StatusNotFound, "Run not found", err)
		return
	}

	respondJSON(w, http.StatusOK, runPayload(run))
}

// HandleAppliedReport handles GET /api/v1/resolution/runs/{runID}/applied
func (h *RunHandler) HandleAppliedReport(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runID"]
	entries, err := h.service.AppliedReport(r.Context(), runID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Failed to fetch applied report", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  runID,
		"count":   len(entries),
		"applied": entries,
	})
}

// HandleUnresolvedReport handles GET /api/v1/resolution/runs/{runID}/unresolved
func (h *RunHandler) HandleUnresolvedReport(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runID"]
	outcomes, err := h.service.UnresolvedReport(r.Context(), runID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Failed to fetch unresolved report", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":     runID,
		"count":      len(outcomes),
		"unresolved": outcomes,
	})
}

func buildStatusPayload(summary *resolution.StatusSummary) map[string]interface{} {
	response := map[string]interface{}{
		"status":  "idle",
		"message": "No active runs",
		"history": []map[string]interface{}{},
	}

	if summary.ActiveRun != nil {
		response["status"] = summary.ActiveRun.Status
		if summary.ActiveRun.StatusMessage.Valid {
			response["message"] = summary.ActiveRun.StatusMessage.String
		}
		response["active_run"] = runPayload(summary.ActiveRun)
	}

	history := make([]map[string]interface{}, 0, len(summary.History))
	for _, run := range summary.History {
		history = append(history, runPayload(run))
	}

	response["history"] = history
	return response
}

func runPayload(run *resolution.Run) map[string]interface{} {
	if run == nil {
		return nil
	}

	payload := map[string]interface{}{
		"run_id":            run.RunID,
		"tables":            run.Tables,
		"dry_run":           run.DryRun,
		"status":            run.Status,
		"progress_current":  run.ProgressCurrent,
		"progress_total":    run.ProgressTotal,
		"applied_groups":    run.AppliedGroups,
		"unresolved_groups": run.UnresolvedGroups,
		"updated_rows":      run.UpdatedRows,
		"created_at":        run.CreatedAt,
		"updated_at":        run.UpdatedAt,
	}

	if len(run.Seasons) > 0 {
		payload["seasons"] = run.Seasons
	}
	if run.StatusMessage.Valid {
		payload["status_message"] = run.StatusMessage.String
	}
	if run.AppliedCSV.Valid {
		payload["applied_csv"] = run.AppliedCSV.String
	}
	if run.UnresolvedCSV.Valid {
		payload["unresolved_csv"] = run.UnresolvedCSV.String
	}
	if run.StartedAt.Valid {
		payload["started_at"] = run.StartedAt.Time
	}
	if run.CompletedAt.Valid {
		payload["completed_at"] = run.CompletedAt.Time
	}
	if run.LastError.Valid {
		payload["last_error"] = run.LastError.String
	}

	return payload
}

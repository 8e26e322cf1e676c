package rest

import (
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/fortuna/touchline/internal/backfill"
	"github.com/gorilla/mux"
)

const jobEventLimit = 50

// HandleBackfillRequest handles POST /api/v1/backfill
func (h *Handler) HandleBackfillRequest(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backfill == nil {
		respondError(w, http.StatusServiceUnavailable, "backfill is not configured", errUnavailable)
		return
	}

	var req backfill.Request
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validateRequest(r.Context(), &req); err != nil {
		respondFailure(w, "Invalid request", err)
		return
	}

	job, err := h.deps.Backfill.Enqueue(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to enqueue backfill job", err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job": job,
	})
}

// HandleBackfillStatus handles GET /api/v1/backfill/status
func (h *Handler) HandleBackfillStatus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backfill == nil {
		respondError(w, http.StatusServiceUnavailable, "backfill is not configured", errUnavailable)
		return
	}

	summary, err := h.deps.Backfill.GetStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch status", err)
		return
	}

	respondJSON(w, http.StatusOK, buildStatusPayload(summary))
}

// HandleBackfillJob handles GET /api/v1/backfill/jobs/{jobID}
func (h *Handler) HandleBackfillJob(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backfill == nil {
		respondError(w, http.StatusServiceUnavailable, "backfill is not configured", errUnavailable)
		return
	}

	jobID, err := strconv.ParseInt(mux.Vars(r)["jobID"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID", err)
		return
	}

	job, events, err := h.deps.Backfill.GetJob(r.Context(), jobID, jobEventLimit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch job", err)
		return
	}
	if job == nil {
		respondError(w, http.StatusNotFound, "Job not found", nil)
		return
	}
	if events == nil {
		events = []*backfill.Event{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"job":    job,
		"events": events,
	})
}

func buildStatusPayload(summary *backfill.StatusSummary) map[string]interface{} {
	response := map[string]interface{}{
		"status":  "idle",
		"message": "No active jobs",
		"history": []*backfill.Job{},
	}

	if summary.ActiveJob != nil {
		response["status"] = summary.ActiveJob.Status
		if summary.ActiveJob.StatusMessage != nil {
			response["message"] = *summary.ActiveJob.StatusMessage
		}
		response["active_job"] = summary.ActiveJob
	}
	if len(summary.History) > 0 {
		response["history"] = summary.History
	}
	return response
}

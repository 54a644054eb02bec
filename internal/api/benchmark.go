package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/spendlens/spendlens/internal/benchmark/jobs"
)

type createBenchmarkJobRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Database    string `json:"database"`
	DataKey     string `json:"data_key"`
}

type benchmarkJobResponse struct {
	JobID       string    `json:"job_id"`
	WorkspaceID string    `json:"workspace_id"`
	Database    string    `json:"database"`
	DataKey     string    `json:"data_key"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func handleCreateBenchmarkJob(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Jobs == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "BENCHMARK_NOT_CONFIGURED", "benchmark job store is not configured", false, nil)
		return
	}

	var request createBenchmarkJobRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid benchmark job request body", false, map[string]any{"details": err.Error()})
		return
	}

	workspaceID := strings.TrimSpace(request.WorkspaceID)
	database := strings.TrimSpace(request.Database)
	dataKey := strings.TrimSpace(request.DataKey)
	if workspaceID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "WORKSPACE_REQUIRED", "workspace_id is required", false, nil)
		return
	}
	if database == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "DATABASE_REQUIRED", "database is required", false, nil)
		return
	}
	if dataKey == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "DATA_KEY_REQUIRED", "data_key is required", false, nil)
		return
	}

	job, err := deps.Jobs.Create(r.Context(), workspaceID, database, dataKey)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "JOB_CREATE_FAILED", "failed to create benchmark job", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

func handleGetBenchmarkJob(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Jobs == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "BENCHMARK_NOT_CONFIGURED", "benchmark job store is not configured", false, nil)
		return
	}

	jobID := strings.TrimSpace(r.PathValue("job"))
	if jobID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "JOB_ID_REQUIRED", "job id is required", false, nil)
		return
	}

	job, err := deps.Jobs.Get(r.Context(), jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "JOB_NOT_FOUND", "benchmark job was not found", false, map[string]any{"job_id": jobID})
		return
	}
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "JOB_LOOKUP_FAILED", "failed to load benchmark job", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func toJobResponse(job jobs.Job) benchmarkJobResponse {
	return benchmarkJobResponse{
		JobID:       job.ID,
		WorkspaceID: job.WorkspaceID,
		Database:    job.Database,
		DataKey:     job.DataKey,
		Status:      job.Status,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spendlens/spendlens/internal/benchmark/jobs"
)

type fakeJobStore struct {
	created jobs.Job
	get     map[string]jobs.Job
	err     error
}

func (f *fakeJobStore) Create(ctx context.Context, workspaceID, database, dataKey string) (jobs.Job, error) {
	if f.err != nil {
		return jobs.Job{}, f.err
	}
	f.created = jobs.Job{
		ID:          "job-1",
		WorkspaceID: workspaceID,
		Database:    database,
		DataKey:     dataKey,
		Status:      jobs.StatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	return f.created, nil
}

func (f *fakeJobStore) Get(ctx context.Context, jobID string) (jobs.Job, error) {
	job, ok := f.get[jobID]
	if !ok {
		return jobs.Job{}, jobs.ErrNotFound
	}
	return job, nil
}

func TestHandleCreateBenchmarkJob(t *testing.T) {
	store := &fakeJobStore{}
	handler := NewHandler(testConfig(t), Dependencies{Jobs: store})

	body := `{"workspace_id": "valves", "database": "ACME_DWH", "data_key": "scraped/valves/dataset.csv"}`
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/benchmark/jobs", strings.NewReader(body)))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var response benchmarkJobResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.JobID != "job-1" || response.Status != jobs.StatusPending {
		t.Fatalf("response = %+v", response)
	}
	if store.created.DataKey != "scraped/valves/dataset.csv" {
		t.Fatalf("DataKey = %q", store.created.DataKey)
	}
}

func TestHandleCreateBenchmarkJobValidates(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing workspace", `{"database": "D", "data_key": "k"}`},
		{"missing database", `{"workspace_id": "w", "data_key": "k"}`},
		{"missing data key", `{"workspace_id": "w", "database": "D"}`},
		{"unknown field", `{"workspace_id": "w", "database": "D", "data_key": "k", "extra": 1}`},
	}
	handler := NewHandler(testConfig(t), Dependencies{Jobs: &fakeJobStore{}})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/benchmark/jobs", strings.NewReader(tt.body)))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestHandleGetBenchmarkJob(t *testing.T) {
	store := &fakeJobStore{get: map[string]jobs.Job{
		"job-7": {
			ID:          "job-7",
			WorkspaceID: "valves",
			Database:    "ACME_DWH",
			DataKey:     "scraped/valves/dataset.csv",
			Status:      jobs.StatusFailed,
			Error:       "download scraped dataset: object not found",
		},
	}}
	handler := NewHandler(testConfig(t), Dependencies{Jobs: store})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/benchmark/jobs/job-7", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var response benchmarkJobResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Status != jobs.StatusFailed || response.Error == "" {
		t.Fatalf("response = %+v", response)
	}
}

func TestHandleGetBenchmarkJobNotFound(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Jobs: &fakeJobStore{}})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/benchmark/jobs/missing", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

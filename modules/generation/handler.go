package generation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"scenergy-server/modules/jobstore"
)

type Handler struct {
	queue *Queue
}

func NewHandler(queue *Queue) *Handler {
	return &Handler{queue: queue}
}

// RegisterRoutes mounts the generation endpoints on the router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/generation/enqueue", h.Enqueue).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/generation/jobs", h.ListJobs).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/api/generation/jobs/{jobId}", h.GetJob).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/api/generation/jobs/{jobId}/cancel", h.CancelJob).Methods(http.MethodPost, http.MethodOptions)
}

// Enqueue accepts a generation request and returns the job id plus the
// expected image ids without waiting for generation.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ClientID == "" || req.SessionID == "" {
		http.Error(w, "Missing required fields: clientId, sessionId", http.StatusBadRequest)
		return
	}

	result, err := h.queue.Enqueue(r.Context(), req)
	if err != nil {
		http.Error(w, "Failed to enqueue job: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"jobId":            result.JobID,
		"expectedImageIds": result.ExpectedImageIDs,
		"status":           StatusPending,
	})
}

// GetJob returns the current snapshot of one job.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	job, err := h.queue.Get(r.Context(), jobID)
	if errors.Is(err, jobstore.ErrNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load job: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

// ListJobs returns all jobs, newest first. An optional sessionId query
// parameter narrows the listing to one session.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	var (
		jobs []*Job
		err  error
	)
	if sessionID := r.URL.Query().Get("sessionId"); sessionID != "" {
		jobs, err = h.queue.ListBySession(r.Context(), sessionID)
	} else {
		jobs, err = h.queue.List(r.Context())
	}
	if err != nil {
		http.Error(w, "Failed to list jobs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// CancelJob aborts an in-flight job. Variants already uploaded survive as a
// partial completed result.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	if !h.queue.Cancel(jobID) {
		http.Error(w, "Job is not running", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"jobId":  jobID,
		"status": "cancelling",
	})
}

package video

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the video endpoints on the router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/video/enqueue", h.Enqueue).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/video/jobs/{jobId}", h.GetJob).Methods(http.MethodGet, http.MethodOptions)
}

// Enqueue submits a render and returns the operation id for polling. With
// "await": true it blocks until the provider finishes and returns the final
// operation state instead.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req VideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ImageURL == "" || req.Prompt == "" {
		http.Error(w, "Missing required fields: imageUrl, prompt", http.StatusBadRequest)
		return
	}
	if req.Duration != 0 && (req.Duration < 5 || req.Duration > 10) {
		http.Error(w, "Duration must be between 5 and 10 seconds", http.StatusBadRequest)
		return
	}

	operationID, err := h.service.Submit(r.Context(), &req)
	if err != nil {
		http.Error(w, "Failed to submit video job: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if req.Await {
		op, err := h.service.Await(r.Context(), operationID)
		if err != nil {
			http.Error(w, "Video generation did not finish: "+err.Error(), http.StatusGatewayTimeout)
			return
		}
		json.NewEncoder(w).Encode(op)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{
		"jobId":  operationID,
		"status": "pending",
	})
}

// GetJob returns the current state of one render operation.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	op, err := h.service.Poll(r.Context(), jobID)
	if err != nil {
		http.Error(w, "Failed to poll operation: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(op)
}

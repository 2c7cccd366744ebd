package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/marketpulse-labs/sentiment-backend/middleware"
	"github.com/marketpulse-labs/sentiment-backend/utils"
)

/*
HandleGetJobStatus retrieves the status of an async backfill job.

Query Parameters:
  - job_id: The ID of the job to check.

Example:

	GET /api/backfill/jobs?job_id=job_1234567890_abc123

Response:
  - 200 OK: Job status information.
  - 400 Bad Request: Missing job_id parameter.
  - 404 Not Found: Job not found.
*/
func (h *Handler) HandleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = utils.GenerateRequestID()
		w.Header().Set("X-Request-ID", requestID)
	}

	// Get job ID from query params
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		middleware.RespondBadRequest(w, fmt.Errorf("job_id parameter is missing"), requestID)
		return
	}

	middleware.Logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"job_id":     jobID,
		"action":     "get_job_status",
	}).Info("Processing job status request")

	// Get job status from async processor
	jobStatus, exists := h.AsyncProcessor.GetJobStatus(jobID)
	if !exists {
		middleware.RespondNotFound(w, fmt.Errorf("job not found"), requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(jobStatus)
}

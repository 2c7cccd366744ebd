package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketpulse-labs/sentiment-backend/backfill"
	"github.com/marketpulse-labs/sentiment-backend/middleware"
	"github.com/marketpulse-labs/sentiment-backend/types"
	"github.com/marketpulse-labs/sentiment-backend/utils"
)

const dateLayout = "2006-01-02"

// parseBackfillRequest validates the shared backfill parameters from either
// query string or form values.
func (h *Handler) parseBackfillRequest(r *http.Request) (backfill.Request, error) {
	get := func(name string) string {
		if value := r.URL.Query().Get(name); value != "" {
			return value
		}
		return r.FormValue(name)
	}

	symbol := strings.ToUpper(strings.TrimSpace(get("symbol")))
	if symbol == "" {
		return backfill.Request{}, fmt.Errorf("symbol parameter is missing")
	}

	startRaw, endRaw := get("startDate"), get("endDate")
	if startRaw == "" || endRaw == "" {
		return backfill.Request{}, fmt.Errorf("startDate and endDate parameters are required")
	}

	start, err := time.ParseInLocation(dateLayout, startRaw, h.Location)
	if err != nil {
		return backfill.Request{}, fmt.Errorf("invalid startDate %q: expected YYYY-MM-DD", startRaw)
	}
	end, err := time.ParseInLocation(dateLayout, endRaw, h.Location)
	if err != nil {
		return backfill.Request{}, fmt.Errorf("invalid endDate %q: expected YYYY-MM-DD", endRaw)
	}
	if end.Before(start) {
		return backfill.Request{}, fmt.Errorf("endDate must not precede startDate")
	}

	mode := types.ModeDaily
	if get("forceHourly") == "true" {
		// Hourly granularity is only meaningful within a single day.
		if !start.Equal(end) {
			return backfill.Request{}, fmt.Errorf("forceHourly requires startDate and endDate to match")
		}
		mode = types.ModeHourly
	}

	ingestionType := types.IngestAll
	if raw := get("type"); raw != "" {
		ingestionType = types.IngestionType(raw)
		if !ingestionType.Valid() {
			return backfill.Request{}, fmt.Errorf("invalid type %q: expected messages, analytics, or all", raw)
		}
	}

	return backfill.Request{
		Symbol:        symbol,
		StartDate:     start,
		EndDate:       end,
		Mode:          mode,
		IngestionType: ingestionType,
		Force:         get("force") == "true",
	}, nil
}

/*
HandleBackfill runs one synchronous backfill invocation and returns the
terminal summary.

Query Parameters:
  - symbol: Instrument symbol (required).
  - startDate, endDate: ISO dates bounding the scan (required).
  - forceHourly: Switch to hourly granularity; requires startDate == endDate.
  - type: messages, analytics, or all (default all).
  - force: Reprocess units that already have records.

Example:

	POST /api/backfill?symbol=AAPL&startDate=2025-03-10&endDate=2025-03-14

Response:
  - 200 OK: Terminal backfill summary.
  - 400 Bad Request: Invalid parameters.
  - 500 Internal Server Error: Gap scan failed.
*/
func (h *Handler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = utils.GenerateRequestID()
		w.Header().Set("X-Request-ID", requestID)
	}

	req, err := h.parseBackfillRequest(r)
	if err != nil {
		middleware.RespondBadRequest(w, err, requestID)
		return
	}

	middleware.Logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"symbol":     req.Symbol,
		"mode":       req.Mode,
		"type":       req.IngestionType,
		"action":     "backfill",
	}).Info("Processing backfill request")

	summary, err := h.Runner.Run(r.Context(), req, nil)
	if err != nil {
		middleware.RespondInternalError(w, err, requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(summary)
}

// ndjsonEmitter writes one JSON line per event and flushes immediately so
// clients see progress while the connection is held open.
type ndjsonEmitter struct {
	encoder *json.Encoder
	flusher http.Flusher
}

func (e *ndjsonEmitter) Emit(event types.ProgressEvent) {
	e.encoder.Encode(event)
	e.flusher.Flush()
}

/*
HandleBackfillStream runs a backfill while streaming NDJSON progress events
over the held connection. Closing the connection cancels the run before the
next unit.

Query Parameters: same as HandleBackfill.

Example:

	GET /api/backfill/stream?symbol=AAPL&startDate=2025-03-10&endDate=2025-03-14

Response:
  - 200 OK: application/x-ndjson event stream ending with a complete event.
  - 400 Bad Request: Invalid parameters.
*/
func (h *Handler) HandleBackfillStream(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = utils.GenerateRequestID()
		w.Header().Set("X-Request-ID", requestID)
	}

	req, err := h.parseBackfillRequest(r)
	if err != nil {
		middleware.RespondBadRequest(w, err, requestID)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.RespondInternalError(w, fmt.Errorf("streaming unsupported by connection"), requestID)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	emitter := &ndjsonEmitter{encoder: json.NewEncoder(w), flusher: flusher}

	// The request context cancels the run when the client disconnects.
	if _, err := h.Runner.Run(r.Context(), req, emitter); err != nil {
		emitter.Emit(types.ProgressEvent{
			Type:   types.EventError,
			Symbol: req.Symbol,
			Mode:   req.Mode,
			Reason: err.Error(),
		})
	}
}

/*
HandleBackfillAsync submits a backfill to the background worker pool.

Query Parameters: same as HandleBackfill.

Response:
  - 202 Accepted: Job submitted, body carries job_id.
  - 400 Bad Request: Invalid parameters.
  - 503 Service Unavailable: Worker queue under backpressure.
*/
func (h *Handler) HandleBackfillAsync(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = utils.GenerateRequestID()
		w.Header().Set("X-Request-ID", requestID)
	}

	req, err := h.parseBackfillRequest(r)
	if err != nil {
		middleware.RespondBadRequest(w, err, requestID)
		return
	}

	jobID, err := h.AsyncProcessor.SubmitJob(req, requestID)
	if err != nil {
		middleware.RespondServiceUnavailable(w, err, requestID)
		return
	}

	middleware.Logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"job_id":     jobID,
		"symbol":     req.Symbol,
	}).Info("Backfill job submitted")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"job_id": jobID,
		"status": "pending",
	})
}

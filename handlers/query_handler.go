/*
Package handlers contains the core HTTP handlers for proxying social data
queries and triggering sentiment backfills.

Key Functions:
  - HandleQuery: Cache-fronted proxy for upstream query actions.
  - HandleBackfill: Synchronous backfill trigger returning a terminal summary.
  - HandleBackfillStream: NDJSON progress stream over a held connection.

Usage:

	Import the package and register handlers in your router:
	  router.HandleFunc("/api/social/{action}", handler.HandleQuery).Methods("GET", "POST")
	  router.HandleFunc("/api/backfill", handler.HandleBackfill).Methods("POST")
*/
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/marketpulse-labs/sentiment-backend/cache"
	"github.com/marketpulse-labs/sentiment-backend/middleware"
	"github.com/marketpulse-labs/sentiment-backend/upstream"
	"github.com/marketpulse-labs/sentiment-backend/utils"
)

// maxAnalyzeBodySize bounds the analyze request body
const maxAnalyzeBodySize = 1 << 20

/*
HandleQuery proxies one upstream query action, serving repeat requests from
cache within the action's TTL.

Path Parameters:
  - action: One of messages, symbols, stats, analytics, sentiment, trending,
    analyze.

Example:

	GET /api/social/trending
	GET /api/social/messages?symbol=AAPL&limit=50
	POST /api/social/analyze

Response:
  - 200 OK: Upstream payload, X-Cache header set to HIT or MISS.
  - 400 Bad Request: Unknown action or missing required parameter.
  - 502 Bad Gateway: Upstream unreachable or returned a non-JSON body.
  - Other: Genuine upstream application errors pass through.
*/
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = utils.GenerateRequestID()
		w.Header().Set("X-Request-ID", requestID)
	}

	action, err := upstream.ParseAction(mux.Vars(r)["action"])
	if err != nil {
		middleware.RespondBadRequest(w, err, requestID)
		return
	}

	if action == upstream.ActionAnalyze {
		h.handleAnalyze(w, r, requestID)
		return
	}

	if r.Method != http.MethodGet {
		middleware.RespondBadRequest(w, fmt.Errorf("action %q only supports GET", action), requestID)
		return
	}

	params := make(map[string]string)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}

	key := cache.Fingerprint(string(action), params)

	if payload, found := h.CacheManager.Get(r.Context(), string(action), key); found {
		w.Header().Set("X-Cache", "HIT")
		writeJSONPayload(w, payload)
		return
	}

	payload, err := h.Gateway.Call(r.Context(), action, params)
	if err != nil {
		h.respondUpstreamError(w, action, err, requestID)
		return
	}

	payload = sanitizePayload(payload, h.Logger)
	h.CacheManager.Put(r.Context(), string(action), params["symbol"], key, payload)

	h.Logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"action":     action,
		"symbol":     params["symbol"],
	}).Info("Upstream query served")

	w.Header().Set("X-Cache", "MISS")
	writeJSONPayload(w, payload)
}

// handleAnalyze forwards an analyze request body verbatim, never cached
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request, requestID string) {
	if r.Method != http.MethodPost {
		middleware.RespondBadRequest(w, fmt.Errorf("analyze only supports POST"), requestID)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxAnalyzeBodySize))
	if err != nil {
		middleware.RespondBadRequest(w, fmt.Errorf("reading request body: %v", err), requestID)
		return
	}

	payload, err := h.Gateway.Post(r.Context(), upstream.ActionAnalyze, body)
	if err != nil {
		h.respondUpstreamError(w, upstream.ActionAnalyze, err, requestID)
		return
	}

	writeJSONPayload(w, sanitizePayload(payload, h.Logger))
}

// respondUpstreamError maps gateway failures onto HTTP responses. Unusable
// upstream responses become 502 regardless of the transport status, while
// genuine upstream application errors pass through.
func (h *Handler) respondUpstreamError(w http.ResponseWriter, action upstream.Action, err error, requestID string) {
	h.Logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"action":     action,
	}).WithError(err).Warn("Upstream query failed")

	var statusErr *upstream.StatusError
	switch {
	case errors.Is(err, upstream.ErrMissingParam):
		middleware.RespondBadRequest(w, err, requestID)
	case errors.Is(err, upstream.ErrInvalidJSON):
		middleware.RespondUpstreamInvalidJSON(w, err, requestID)
	case errors.Is(err, upstream.ErrUnavailable):
		middleware.RespondUpstreamUnavailable(w, err, requestID)
	case errors.As(err, &statusErr):
		middleware.RespondUpstreamStatus(w, statusErr.Status, requestID)
	default:
		middleware.RespondInternalError(w, err, requestID)
	}
}

// sanitizePayload strips control characters from a decoded payload, leaving
// the raw bytes untouched when nothing needed cleaning.
func sanitizePayload(payload json.RawMessage, logger *logrus.Logger) json.RawMessage {
	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return payload
	}

	cleaned, changed := utils.SanitizeJSON(decoded)
	if !changed {
		return payload
	}

	encoded, err := json.Marshal(cleaned)
	if err != nil {
		logger.WithError(err).Warn("Failed to re-encode sanitized payload")
		return payload
	}
	return encoded
}

func writeJSONPayload(w http.ResponseWriter, payload json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

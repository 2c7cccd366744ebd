/*
Package upstream proxies the rate-limited social-data provider.

The gateway maps internal action names to upstream endpoints, applies
per-action default date windows, validates that the response body is real
JSON rather than an HTML error page served with a 200, and surfaces typed
failures so callers can distinguish an unusable upstream from a genuine
application error.
*/
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marketpulse-labs/sentiment-backend/monitoring"
	"github.com/sirupsen/logrus"
)

// Action identifies an internal upstream operation
type Action string

const (
	ActionMessages  Action = "messages"
	ActionSymbols   Action = "symbols"
	ActionStats     Action = "stats"
	ActionAnalytics Action = "analytics"
	ActionSentiment Action = "sentiment"
	ActionTrending  Action = "trending"
	ActionAnalyze   Action = "analyze"
)

// Typed failures. ErrUnavailable and ErrInvalidJSON are always surfaced as a
// gateway error (502) regardless of the upstream transport status.
var (
	ErrUnavailable  = errors.New("upstream returned a non-JSON response")
	ErrInvalidJSON  = errors.New("upstream body is not valid JSON")
	ErrMissingParam = errors.New("missing required parameter")
)

// StatusError is a genuine upstream application error whose status passes
// through to the caller.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	if e.Status == http.StatusTooManyRequests {
		return "Rate limited"
	}
	return "Service error"
}

// maxBodySize bounds upstream response reads
const maxBodySize = 10 << 20

// endpointSpec describes one upstream endpoint
type endpointSpec struct {
	Path              string
	Method            string
	Required          []string
	Optional          []string
	DefaultWindowDays int // applied when start/end are absent
}

var endpoints = map[Action]endpointSpec{
	ActionMessages: {
		Path:              "/v2/messages",
		Method:            http.MethodGet,
		Required:          []string{"symbol"},
		Optional:          []string{"limit", "start", "end", "cursor_created_at", "cursor_id"},
		DefaultWindowDays: 7,
	},
	ActionSymbols: {
		Path:     "/v2/symbols",
		Method:   http.MethodGet,
		Optional: []string{"symbol"},
	},
	ActionStats: {
		Path:     "/v2/stats",
		Method:   http.MethodGet,
		Optional: []string{"symbol"},
	},
	ActionAnalytics: {
		Path:              "/v2/analytics",
		Method:            http.MethodGet,
		Required:          []string{"type", "symbol"},
		Optional:          []string{"start", "end"},
		DefaultWindowDays: 30,
	},
	ActionSentiment: {
		Path:     "/v2/sentiment",
		Method:   http.MethodGet,
		Optional: []string{"symbol"},
	},
	ActionTrending: {
		Path:   "/v2/trending",
		Method: http.MethodGet,
	},
	ActionAnalyze: {
		Path:   "/v2/analyze",
		Method: http.MethodPost,
	},
}

// ParseAction validates an action name from a request path
func ParseAction(s string) (Action, error) {
	action := Action(s)
	if _, ok := endpoints[action]; !ok {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return action, nil
}

// IsQueryAction reports whether the action is a GET-style read that may be
// served from cache.
func IsQueryAction(action Action) bool {
	spec, ok := endpoints[action]
	return ok && spec.Method == http.MethodGet
}

// Message is one raw social message returned by the provider
type Message struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Sentiment string    `json:"sentiment"` // bullish, bearish, or neutral
	CreatedAt time.Time `json:"created_at"`
}

// messagesEnvelope is the wire shape of a messages response
type messagesEnvelope struct {
	Messages []Message `json:"messages"`
}

// Gateway translates internal actions into upstream HTTP calls
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialProvider
	logger     *logrus.Logger
	now        func() time.Time
}

// NewGateway creates a gateway for the given provider base URL
func NewGateway(baseURL string, creds CredentialProvider, logger *logrus.Logger, timeout time.Duration) *Gateway {
	return &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		creds:      creds,
		logger:     logger,
		now:        time.Now,
	}
}

// Call performs a GET-style query action. Unknown parameters are dropped,
// required parameters are enforced, and missing date ranges default to the
// action's rolling window.
func (g *Gateway) Call(ctx context.Context, action Action, params map[string]string) (json.RawMessage, error) {
	spec, ok := endpoints[action]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	if spec.Method != http.MethodGet {
		return nil, fmt.Errorf("action %q is not a query action", action)
	}

	query := url.Values{}
	for _, name := range spec.Required {
		value := params[name]
		if value == "" {
			return nil, fmt.Errorf("%w: action %q requires %q", ErrMissingParam, action, name)
		}
		query.Set(name, value)
	}
	for _, name := range spec.Optional {
		if value := params[name]; value != "" {
			query.Set(name, value)
		}
	}

	// Default rolling date window per action.
	if spec.DefaultWindowDays > 0 {
		if query.Get("start") == "" {
			query.Set("start", g.now().AddDate(0, 0, -spec.DefaultWindowDays).Format("2006-01-02"))
		}
		if query.Get("end") == "" {
			query.Set("end", g.now().Format("2006-01-02"))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+spec.Path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	return g.do(req, action)
}

// Post performs a POST action, forwarding the body verbatim
func (g *Gateway) Post(ctx context.Context, action Action, body []byte) (json.RawMessage, error) {
	spec, ok := endpoints[action]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	if spec.Method != http.MethodPost {
		return nil, fmt.Errorf("action %q is not a POST action", action)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+spec.Path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return g.do(req, action)
}

// FetchMessages retrieves the raw messages for a symbol within exact time
// boundaries, used by the backfill orchestrator.
func (g *Gateway) FetchMessages(ctx context.Context, symbol string, start, end time.Time, limit int) ([]Message, error) {
	params := map[string]string{
		"symbol": symbol,
		"start":  start.UTC().Format(time.RFC3339),
		"end":    end.UTC().Format(time.RFC3339),
		"limit":  fmt.Sprintf("%d", limit),
	}

	payload, err := g.Call(ctx, ActionMessages, params)
	if err != nil {
		return nil, err
	}

	var envelope messagesEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decoding messages envelope: %v", ErrInvalidJSON, err)
	}

	return envelope.Messages, nil
}

// do executes the request and validates the response shape
func (g *Gateway) do(req *http.Request, action Action) (json.RawMessage, error) {
	if g.creds != nil {
		token, err := g.creds.Token(req.Context())
		if err != nil {
			return nil, fmt.Errorf("fetching upstream credential: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		monitoring.RecordUpstreamCall(string(action), "transport_error", time.Since(start).Seconds(), -1)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		monitoring.RecordUpstreamCall(string(action), "transport_error", time.Since(start).Seconds(), -1)
		return nil, fmt.Errorf("%w: reading body: %v", ErrUnavailable, err)
	}

	duration := time.Since(start).Seconds()

	// An HTML error page served with any status, including 200, is an
	// unusable upstream, not an application error.
	if looksLikeHTML(resp.Header.Get("Content-Type"), body) {
		monitoring.RecordUpstreamCall(string(action), "unavailable", duration, -1)
		g.logger.WithFields(logrus.Fields{
			"action":       action,
			"status":       resp.StatusCode,
			"content_type": resp.Header.Get("Content-Type"),
		}).Error("Upstream returned non-JSON body")
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		monitoring.RecordUpstreamCall(string(action), fmt.Sprintf("%d", resp.StatusCode), duration, -1)
		g.logger.WithFields(logrus.Fields{
			"action": action,
			"status": resp.StatusCode,
		}).Warn("Upstream application error")
		return nil, &StatusError{Status: resp.StatusCode}
	}

	if !json.Valid(body) {
		monitoring.RecordUpstreamCall(string(action), "invalid_json", duration, -1)
		return nil, fmt.Errorf("%w: status %d", ErrInvalidJSON, resp.StatusCode)
	}

	monitoring.RecordUpstreamCall(string(action), "success", duration, -1)
	return json.RawMessage(body), nil
}

// looksLikeHTML detects HTML/error-page bodies regardless of declared type
func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(contentType, "text/html") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return bytes.HasPrefix(trimmed, []byte("<"))
}

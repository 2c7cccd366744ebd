// Package analysis wraps the external text-analysis service that derives
// narrative and emotion signals from batches of raw social messages. The
// service is a black box; this package only shapes the request and carries
// the response payloads through to storage.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Result carries the analysis payloads for one batch of messages. The
// payloads are stored verbatim; their internal structure belongs to the
// analysis service.
type Result struct {
	Narrative json.RawMessage `json:"narrative"`
	Emotion   json.RawMessage `json:"emotion"`
}

// Analyzer produces narrative and emotion signals for a message batch
type Analyzer interface {
	Analyze(ctx context.Context, symbol string, texts []string) (*Result, error)
}

// analyzeRequest is the wire shape sent to the analysis service
type analyzeRequest struct {
	Symbol string   `json:"symbol"`
	Texts  []string `json:"texts"`
}

// Client is an HTTP-backed Analyzer
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates an analysis client for the given service URL
func NewClient(baseURL, apiKey string, logger *logrus.Logger, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Analyze submits a batch of message texts and returns the derived signals
func (c *Client) Analyze(ctx context.Context, symbol string, texts []string) (*Result, error) {
	body, err := json.Marshal(analyzeRequest{Symbol: symbol, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("encoding analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling analysis service: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("reading analysis response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WithFields(logrus.Fields{
			"symbol": symbol,
			"status": resp.StatusCode,
		}).Warn("Analysis service returned an error")
		return nil, fmt.Errorf("analysis service returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decoding analysis response: %w", err)
	}

	return &result, nil
}

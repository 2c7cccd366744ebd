/*
Package handlers provides HTTP handlers with dependency injection support.

This package defines the Handler struct that contains all service dependencies,
eliminating global variables and enabling better testability and separation of concerns.
*/
package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketpulse-labs/sentiment-backend/backfill"
	"github.com/marketpulse-labs/sentiment-backend/types"
	"github.com/marketpulse-labs/sentiment-backend/upstream"
)

// CacheManagerInterface defines the cache operations handlers rely on
type CacheManagerInterface interface {
	Get(ctx context.Context, action, key string) (json.RawMessage, bool)
	Put(ctx context.Context, action, symbol, key string, payload json.RawMessage)
}

// UpstreamGatewayInterface defines the upstream proxy operations
type UpstreamGatewayInterface interface {
	Call(ctx context.Context, action upstream.Action, params map[string]string) (json.RawMessage, error)
	Post(ctx context.Context, action upstream.Action, body []byte) (json.RawMessage, error)
}

// BackfillRunnerInterface runs one backfill invocation
type BackfillRunnerInterface interface {
	Run(ctx context.Context, req backfill.Request, emitter backfill.Emitter) (*types.BackfillSummary, error)
}

// AsyncProcessorInterface defines the interface for async backfill processing
type AsyncProcessorInterface interface {
	SubmitJob(req backfill.Request, requestID string) (string, error)
	GetJobStatus(jobID string) (*types.BackfillJobStatus, bool)
}

// Handler contains all service dependencies for HTTP handlers
type Handler struct {
	Gateway        UpstreamGatewayInterface
	CacheManager   CacheManagerInterface
	Runner         BackfillRunnerInterface
	AsyncProcessor AsyncProcessorInterface
	Location       *time.Location
	Logger         *logrus.Logger
}

// AsyncConfig sizes the background processor behind the async backfill endpoint
type AsyncConfig struct {
	Workers         int
	QueueSize       int
	Backpressure    bool
	RejectThreshold float64
	WaitTimeout     time.Duration
}

// DefaultAsyncConfig returns the processor sizing used when nothing is configured
func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{
		Workers:         2,
		QueueSize:       20,
		Backpressure:    true,
		RejectThreshold: 0.8,
		WaitTimeout:     5 * time.Second,
	}
}

// NewHandler creates a new handler instance with injected dependencies
func NewHandler(gateway UpstreamGatewayInterface, cacheManager CacheManagerInterface, runner BackfillRunnerInterface, location *time.Location, logger *logrus.Logger, asyncConfig AsyncConfig) *Handler {
	asyncProcessor := NewAsyncProcessor(
		asyncConfig.Workers,
		asyncConfig.QueueSize,
		asyncConfig.Backpressure,
		asyncConfig.RejectThreshold,
		asyncConfig.WaitTimeout,
		logger,
		runner,
	)
	return &Handler{
		Gateway:        gateway,
		CacheManager:   cacheManager,
		Runner:         runner,
		AsyncProcessor: asyncProcessor,
		Location:       location,
		Logger:         logger,
	}
}

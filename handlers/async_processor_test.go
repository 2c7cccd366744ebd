package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketpulse-labs/sentiment-backend/backfill"
	"github.com/marketpulse-labs/sentiment-backend/types"
)

// stubRunner completes instantly with a fixed summary
type stubRunner struct {
	summary *types.BackfillSummary
	err     error
	delay   time.Duration
}

func (s *stubRunner) Run(ctx context.Context, req backfill.Request, emitter backfill.Emitter) (*types.BackfillSummary, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.summary, s.err
}

func asyncTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testBackfillRequest() backfill.Request {
	return backfill.Request{
		Symbol:        "AAPL",
		StartDate:     time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Mode:          types.ModeDaily,
		IngestionType: types.IngestAll,
	}
}

func TestNewAsyncProcessor(t *testing.T) {
	runner := &stubRunner{summary: &types.BackfillSummary{Symbol: "AAPL"}}
	processor := NewAsyncProcessor(2, 10, true, 0.8, 5*time.Second, asyncTestLogger(), runner)
	defer processor.Stop()

	assert.NotNil(t, processor)
}

func TestNewHandlerUsesAsyncConfig(t *testing.T) {
	runner := &stubRunner{summary: &types.BackfillSummary{Symbol: "AAPL"}}
	handler := NewHandler(nil, nil, runner, time.UTC, asyncTestLogger(), AsyncConfig{
		Workers:         1,
		QueueSize:       3,
		Backpressure:    false,
		RejectThreshold: 0.5,
		WaitTimeout:     time.Second,
	})

	processor, ok := handler.AsyncProcessor.(*AsyncProcessor)
	require.True(t, ok)
	defer processor.Stop()

	assert.Equal(t, 3, cap(processor.jobs))
	assert.Equal(t, 3, processor.queueSize)
	assert.False(t, processor.backpressureEnabled)
	assert.Equal(t, 0.5, processor.rejectThreshold)
	assert.Equal(t, time.Second, processor.waitTimeout)
}

func TestAsyncProcessorSubmitJob(t *testing.T) {
	runner := &stubRunner{summary: &types.BackfillSummary{Symbol: "AAPL"}}
	processor := NewAsyncProcessor(1, 5, true, 0.8, 5*time.Second, asyncTestLogger(), runner)
	defer processor.Stop()

	jobID, err := processor.SubmitJob(testBackfillRequest(), "test-request-123")

	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
	assert.True(t, len(jobID) > 10)
}

func TestAsyncProcessorJobCompletes(t *testing.T) {
	runner := &stubRunner{summary: &types.BackfillSummary{
		Symbol:         "AAPL",
		Mode:           types.ModeDaily,
		ProcessedDates: []string{"2025-03-10"},
	}}
	processor := NewAsyncProcessor(1, 5, true, 0.8, 5*time.Second, asyncTestLogger(), runner)
	defer processor.Stop()

	jobID, err := processor.SubmitJob(testBackfillRequest(), "test-request-123")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, exists := processor.GetJobStatus(jobID)
		return exists && status.Status == "completed"
	}, 3*time.Second, 10*time.Millisecond)

	status, _ := processor.GetJobStatus(jobID)
	require.NotNil(t, status.Summary)
	assert.Equal(t, []string{"2025-03-10"}, status.Summary.ProcessedDates)
	assert.NotNil(t, status.CompletedAt)
}

func TestAsyncProcessorJobFailure(t *testing.T) {
	runner := &stubRunner{err: assert.AnError}
	processor := NewAsyncProcessor(1, 5, true, 0.8, 5*time.Second, asyncTestLogger(), runner)
	defer processor.Stop()

	jobID, err := processor.SubmitJob(testBackfillRequest(), "test-request-123")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, exists := processor.GetJobStatus(jobID)
		return exists && status.Status == "failed"
	}, 3*time.Second, 10*time.Millisecond)

	status, _ := processor.GetJobStatus(jobID)
	assert.NotEmpty(t, status.Error)
}

func TestAsyncProcessorGetJobStatusNotFound(t *testing.T) {
	runner := &stubRunner{summary: &types.BackfillSummary{}}
	processor := NewAsyncProcessor(1, 5, true, 0.8, 5*time.Second, asyncTestLogger(), runner)
	defer processor.Stop()

	status, exists := processor.GetJobStatus("non-existent-job")
	assert.False(t, exists)
	assert.Nil(t, status)
}

func TestAsyncProcessorStop(t *testing.T) {
	runner := &stubRunner{summary: &types.BackfillSummary{Symbol: "AAPL"}}
	processor := NewAsyncProcessor(1, 5, true, 0.8, 5*time.Second, asyncTestLogger(), runner)

	jobID, err := processor.SubmitJob(testBackfillRequest(), "test-request-123")
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		processor.Stop()
	})

	// Job status remains readable after shutdown.
	status, exists := processor.GetJobStatus(jobID)
	assert.True(t, exists)
	assert.NotNil(t, status)
}

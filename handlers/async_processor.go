package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketpulse-labs/sentiment-backend/backfill"
	"github.com/marketpulse-labs/sentiment-backend/monitoring"
	"github.com/marketpulse-labs/sentiment-backend/types"
)

// AsyncJob represents a background backfill job
type AsyncJob struct {
	ID        string
	Request   backfill.Request
	RequestID string
	CreatedAt time.Time
}

// AsyncJobResult represents the result of an async backfill job
type AsyncJobResult struct {
	JobID       string
	Summary     *types.BackfillSummary
	Error       error
	ProcessedAt time.Time
	Duration    time.Duration
}

// AsyncProcessor handles background backfill processing
type AsyncProcessor struct {
	jobs        chan AsyncJob
	results     chan AsyncJobResult
	quit        chan bool
	workerWg    sync.WaitGroup
	resultWg    sync.WaitGroup
	jobStatus   map[string]*types.BackfillJobStatus
	statusMutex sync.RWMutex
	logger      *logrus.Logger
	runner      BackfillRunnerInterface
	// Backpressure configuration
	backpressureEnabled bool
	rejectThreshold     float64
	waitTimeout         time.Duration
	queueSize           int
}

// NewAsyncProcessor creates a new async processor with the given parameters
func NewAsyncProcessor(workers, queueSize int, backpressureEnabled bool, rejectThreshold float64, waitTimeout time.Duration, logger *logrus.Logger, runner BackfillRunnerInterface) *AsyncProcessor {
	processor := &AsyncProcessor{
		jobs:                make(chan AsyncJob, queueSize),
		results:             make(chan AsyncJobResult, queueSize),
		quit:                make(chan bool),
		jobStatus:           make(map[string]*types.BackfillJobStatus),
		logger:              logger,
		runner:              runner,
		backpressureEnabled: backpressureEnabled,
		rejectThreshold:     rejectThreshold,
		waitTimeout:         waitTimeout,
		queueSize:           queueSize,
	}

	// Update active workers metric
	monitoring.UpdateActiveWorkers(workers)

	// Start workers
	for i := 0; i < workers; i++ {
		processor.workerWg.Add(1)
		go processor.worker(i)
	}

	// Start result processor
	processor.resultWg.Add(1)
	go processor.resultProcessor()

	// Start cleanup goroutine
	go processor.cleanupOldJobs()

	return processor
}

// SubmitJob submits a new backfill job for async processing with backpressure
func (ap *AsyncProcessor) SubmitJob(req backfill.Request, requestID string) (string, error) {
	jobID := fmt.Sprintf("job_%d_%s", time.Now().UnixNano(), requestID)

	job := AsyncJob{
		ID:        jobID,
		Request:   req,
		RequestID: requestID,
		CreatedAt: time.Now(),
	}

	// Initialize job status
	ap.statusMutex.Lock()
	ap.jobStatus[jobID] = &types.BackfillJobStatus{
		JobID:     jobID,
		Symbol:    req.Symbol,
		Status:    "pending",
		CreatedAt: job.CreatedAt,
	}
	ap.statusMutex.Unlock()

	// Apply backpressure if enabled
	if ap.backpressureEnabled {
		currentLoad := float64(len(ap.jobs)) / float64(ap.queueSize)
		if currentLoad >= ap.rejectThreshold {
			ap.logger.WithFields(logrus.Fields{
				"symbol":           req.Symbol,
				"current_load":     fmt.Sprintf("%.2f", currentLoad),
				"reject_threshold": fmt.Sprintf("%.2f", ap.rejectThreshold),
				"queue_size":       len(ap.jobs),
				"max_queue_size":   ap.queueSize,
			}).Warn("Rejecting job due to backpressure - queue near capacity")
			return "", fmt.Errorf("async processor queue under backpressure (load: %.2f%%)", currentLoad*100)
		}
	}

	select {
	case ap.jobs <- job:
		// Update queue size metric
		monitoring.UpdateAsyncQueueSize(len(ap.jobs))

		ap.logger.WithFields(logrus.Fields{
			"job_id":     jobID,
			"symbol":     req.Symbol,
			"request_id": requestID,
			"queue_load": fmt.Sprintf("%.2f", float64(len(ap.jobs))/float64(ap.queueSize)),
		}).Info("Job submitted for async processing")
		return jobID, nil
	case <-time.After(ap.waitTimeout):
		ap.logger.WithFields(logrus.Fields{
			"symbol":         req.Symbol,
			"wait_timeout":   ap.waitTimeout.String(),
			"queue_size":     len(ap.jobs),
			"max_queue_size": ap.queueSize,
		}).Warn("Job submission timed out due to queue pressure")
		return "", fmt.Errorf("async processor queue timeout after %v", ap.waitTimeout)
	}
}

// GetJobStatus retrieves the status of a job
func (ap *AsyncProcessor) GetJobStatus(jobID string) (*types.BackfillJobStatus, bool) {
	ap.statusMutex.RLock()
	defer ap.statusMutex.RUnlock()

	status, exists := ap.jobStatus[jobID]
	return status, exists
}

// worker processes jobs in the background
func (ap *AsyncProcessor) worker(workerID int) {
	defer ap.workerWg.Done()

	ap.logger.WithField("worker_id", workerID).Info("Async worker started")

	for {
		select {
		case job := <-ap.jobs:
			// Update queue size metric
			monitoring.UpdateAsyncQueueSize(len(ap.jobs))
			ap.processJob(workerID, job)
		case <-ap.quit:
			ap.logger.WithField("worker_id", workerID).Info("Async worker stopping")
			return
		}
	}
}

// processJob runs a single backfill job
func (ap *AsyncProcessor) processJob(workerID int, job AsyncJob) {
	startTime := time.Now()

	ap.updateJobStatus(job.ID, "processing", "", nil, 0)

	ap.logger.WithFields(logrus.Fields{
		"worker_id":  workerID,
		"job_id":     job.ID,
		"symbol":     job.Request.Symbol,
		"mode":       job.Request.Mode,
		"request_id": job.RequestID,
	}).Info("Processing async backfill job")

	// Jobs outlive the submitting request, so they run on a fresh context.
	summary, err := ap.runner.Run(context.Background(), job.Request, nil)

	ap.results <- AsyncJobResult{
		JobID:       job.ID,
		Summary:     summary,
		Error:       err,
		ProcessedAt: time.Now(),
		Duration:    time.Since(startTime),
	}

	if err == nil {
		ap.logger.WithFields(logrus.Fields{
			"worker_id":   workerID,
			"job_id":      job.ID,
			"symbol":      job.Request.Symbol,
			"processed":   summary.Processed(),
			"duration_ms": time.Since(startTime).Milliseconds(),
		}).Info("Async backfill job completed")
	}
}

// resultProcessor processes job results
func (ap *AsyncProcessor) resultProcessor() {
	defer ap.resultWg.Done()

	for result := range ap.results {
		status := "completed"
		errorMsg := ""

		if result.Error != nil {
			status = "failed"
			errorMsg = result.Error.Error()
		}

		ap.updateJobStatus(result.JobID, status, errorMsg, result.Summary, result.Duration.Milliseconds())

		ap.logger.WithFields(logrus.Fields{
			"job_id":      result.JobID,
			"status":      status,
			"duration_ms": result.Duration.Milliseconds(),
		}).Info("Async job result processed")
	}
}

// updateJobStatus updates the status of a job
func (ap *AsyncProcessor) updateJobStatus(jobID, status, errorMsg string, summary *types.BackfillSummary, durationMs int64) {
	ap.statusMutex.Lock()
	defer ap.statusMutex.Unlock()

	if jobStatus, exists := ap.jobStatus[jobID]; exists {
		jobStatus.Status = status
		jobStatus.Error = errorMsg
		jobStatus.Summary = summary
		jobStatus.DurationMs = durationMs
		if status == "completed" || status == "failed" {
			now := time.Now()
			jobStatus.CompletedAt = &now
		}
	}
}

// cleanupOldJobs removes old job statuses
func (ap *AsyncProcessor) cleanupOldJobs() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		ap.statusMutex.Lock()
		cutoff := time.Now().Add(-24 * time.Hour)
		removed := 0

		for jobID, jobStatus := range ap.jobStatus {
			if jobStatus.CreatedAt.Before(cutoff) {
				delete(ap.jobStatus, jobID)
				removed++
			}
		}

		ap.statusMutex.Unlock()

		if removed > 0 {
			ap.logger.WithField("removed_count", removed).Info("Cleaned up old async job statuses")
		}
	}
}

// Stop gracefully shuts down the async processor. Workers drain first so no
// result is sent on a closed channel.
func (ap *AsyncProcessor) Stop() {
	ap.logger.Info("Stopping async processor")
	close(ap.quit)
	ap.workerWg.Wait()
	close(ap.results)
	ap.resultWg.Wait()
	ap.logger.Info("Async processor stopped")
}

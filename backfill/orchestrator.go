// Package backfill drives historical ingestion runs. An orchestrator scans
// the requested range for time units, reports already-recorded ones as
// skipped, processes a bounded slice of the rest against the upstream
// provider and the analysis service, persists derived records, and reports
// progress through an emitter so both synchronous and streaming callers
// share one state machine.
package backfill

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/marketpulse-labs/sentiment-backend/analysis"
	"github.com/marketpulse-labs/sentiment-backend/monitoring"
	"github.com/marketpulse-labs/sentiment-backend/store"
	"github.com/marketpulse-labs/sentiment-backend/types"
	"github.com/marketpulse-labs/sentiment-backend/upstream"
)

// Per-invocation slice bounds. A request covering more units than this
// processes the oldest slice and reports hasMore so the caller re-invokes.
const (
	MaxDailyUnits  = 3
	MaxHourlyUnits = 5
)

// Minimum message counts below which a unit is skipped as insufficient
const (
	DailyMessageThreshold  = 10
	HourlyMessageThreshold = 5
)

// interUnitDelay paces upstream traffic between units
const interUnitDelay = 400 * time.Millisecond

// fetchLimit caps messages requested per unit
const fetchLimit = 1000

// Request describes one backfill invocation
type Request struct {
	Symbol        string
	StartDate     time.Time
	EndDate       time.Time
	Mode          types.Mode
	IngestionType types.IngestionType
	Force         bool
}

// Emitter receives progress events as the orchestrator advances
type Emitter interface {
	Emit(event types.ProgressEvent)
}

// nopEmitter discards events for callers that only want the summary
type nopEmitter struct{}

func (nopEmitter) Emit(types.ProgressEvent) {}

// UnitScanner enumerates time units, marking those already recorded
type UnitScanner interface {
	ScanDailyUnits(ctx context.Context, symbol string, start, end time.Time, families []types.Family, force bool) ([]types.TimeUnit, error)
	ScanHourlyUnits(ctx context.Context, symbol string, start, end time.Time, families []types.Family, force bool) ([]types.TimeUnit, error)
}

// MessageFetcher retrieves raw messages for a time window
type MessageFetcher interface {
	FetchMessages(ctx context.Context, symbol string, start, end time.Time, limit int) ([]upstream.Message, error)
}

// RecordWriter persists derived records
type RecordWriter interface {
	UpsertSentiment(ctx context.Context, record *store.SentimentRecord) error
	UpsertNarrative(ctx context.Context, record *store.NarrativeRecord) error
	UpsertEmotion(ctx context.Context, record *store.EmotionRecord) error
}

// Orchestrator runs backfill invocations
type Orchestrator struct {
	scanner  UnitScanner
	fetcher  MessageFetcher
	analyzer analysis.Analyzer
	writer   RecordWriter
	logger   *logrus.Logger
	location *time.Location
	limiter  *rate.Limiter
	now      func() time.Time
}

// NewOrchestrator wires an orchestrator from its collaborators
func NewOrchestrator(scanner UnitScanner, fetcher MessageFetcher, analyzer analysis.Analyzer, writer RecordWriter, location *time.Location, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		scanner:  scanner,
		fetcher:  fetcher,
		analyzer: analyzer,
		writer:   writer,
		logger:   logger,
		location: location,
		limiter:  rate.NewLimiter(rate.Every(interUnitDelay), 1),
		now:      time.Now,
	}
}

// Run executes one backfill invocation and returns the terminal summary.
// Unit failures are recorded and the loop continues; only scan-phase errors
// abort the run. A nil emitter is allowed.
func (o *Orchestrator) Run(ctx context.Context, req Request, emitter Emitter) (*types.BackfillSummary, error) {
	if emitter == nil {
		emitter = nopEmitter{}
	}

	families := requestedFamilies(req.IngestionType)

	units, err := o.scan(ctx, req, families)
	if err != nil {
		monitoring.RecordBackfillJob("scan_failed")
		return nil, err
	}

	maxUnits := MaxDailyUnits
	if req.Mode == types.ModeHourly {
		maxUnits = MaxHourlyUnits
	}

	// Already-recorded units are reported as skipped without upstream
	// traffic, so only units that need fetching count against the bound.
	var selected []types.TimeUnit
	remaining := 0
	toFetch := 0
	for _, unit := range units {
		if unit.Exists {
			selected = append(selected, unit)
			continue
		}
		if toFetch < maxUnits {
			selected = append(selected, unit)
			toFetch++
		} else {
			remaining++
		}
	}
	units = selected

	summary := &types.BackfillSummary{
		Symbol:         req.Symbol,
		Mode:           req.Mode,
		SkippedDates:   []string{},
		Errors:         []types.UnitError{},
		HasMore:        remaining > 0,
		RemainingDates: remaining,
	}

	state := &progressState{
		emitter: emitter,
		symbol:  req.Symbol,
		mode:    req.Mode,
		total:   len(units),
	}
	state.emit(types.EventStart, "", "")

	o.logger.WithFields(logrus.Fields{
		"symbol":    req.Symbol,
		"mode":      req.Mode,
		"type":      req.IngestionType,
		"units":     len(units),
		"remaining": remaining,
	}).Info("Backfill started")

	for _, unit := range units {
		// Cancellation stops before the next unit, never mid-unit.
		select {
		case <-ctx.Done():
			summary.Cancelled = true
			summary.Errors = append(summary.Errors, types.UnitError{
				Unit:   unit.Label(),
				Reason: "cancelled by user",
			})
			monitoring.RecordBackfillJob("cancelled")
			o.logger.WithField("symbol", req.Symbol).Warn("Backfill cancelled")
			return summary, nil
		default:
		}

		var outcome, reason string
		unitStart := time.Now()
		if unit.Exists {
			// Nothing to fetch; report the unit without pacing.
			state.emit(types.EventProgress, unit.Label(), "")
			outcome, reason = "skipped", "already exists"
		} else {
			if err := o.limiter.Wait(ctx); err != nil {
				summary.Cancelled = true
				summary.Errors = append(summary.Errors, types.UnitError{
					Unit:   unit.Label(),
					Reason: "cancelled by user",
				})
				monitoring.RecordBackfillJob("cancelled")
				return summary, nil
			}

			state.emit(types.EventProgress, unit.Label(), "")
			outcome, reason = o.processUnit(ctx, req, unit, summary)
		}
		monitoring.RecordBackfillUnit(string(req.Mode), outcome, time.Since(unitStart).Seconds())

		switch outcome {
		case "created":
			state.created++
			state.processed++
			if unit.IsHourly() {
				summary.ProcessedHours = append(summary.ProcessedHours, unit.Label())
			} else {
				summary.ProcessedDates = append(summary.ProcessedDates, unit.Label())
			}
			state.emit(types.EventCreated, unit.Label(), "")
		case "skipped":
			state.skipped++
			state.processed++
			summary.SkippedDates = append(summary.SkippedDates, unit.Label())
			state.emit(types.EventSkipped, unit.Label(), reason)
		case "failed":
			state.failed++
			state.processed++
			summary.Errors = append(summary.Errors, types.UnitError{Unit: unit.Label(), Reason: reason})
			state.emit(types.EventError, unit.Label(), reason)
		}
	}

	monitoring.RecordBackfillJob("completed")
	o.logger.WithFields(logrus.Fields{
		"symbol":    req.Symbol,
		"processed": summary.Processed(),
		"skipped":   len(summary.SkippedDates),
		"errors":    len(summary.Errors),
		"has_more":  summary.HasMore,
	}).Info("Backfill finished")

	state.emitComplete(summary)
	return summary, nil
}

// scan enumerates the units in range for the requested mode
func (o *Orchestrator) scan(ctx context.Context, req Request, families []types.Family) ([]types.TimeUnit, error) {
	if req.Mode == types.ModeHourly {
		return o.scanner.ScanHourlyUnits(ctx, req.Symbol, req.StartDate, req.EndDate, families, req.Force)
	}
	return o.scanner.ScanDailyUnits(ctx, req.Symbol, req.StartDate, req.EndDate, families, req.Force)
}

// processUnit handles one time unit end to end. It returns the outcome
// (created, skipped, failed) and a reason for non-created outcomes.
func (o *Orchestrator) processUnit(ctx context.Context, req Request, unit types.TimeUnit, summary *types.BackfillSummary) (string, string) {
	windowStart, windowEnd := o.unitWindow(unit)

	messages, err := o.fetcher.FetchMessages(ctx, unit.Symbol, windowStart, windowEnd, fetchLimit)
	if err != nil {
		o.logger.WithFields(logrus.Fields{
			"symbol": unit.Symbol,
			"unit":   unit.Label(),
		}).WithError(err).Warn("Unit fetch failed")
		return "failed", err.Error()
	}

	threshold := DailyMessageThreshold
	periodType := "daily"
	if unit.IsHourly() {
		threshold = HourlyMessageThreshold
		periodType = "hourly"
	}
	if len(messages) < threshold {
		return "skipped", "insufficient data"
	}

	recordedAt := o.recordedAt(unit)

	if req.IngestionType.IncludesMessages() {
		record := buildSentimentRecord(unit.Symbol, recordedAt, periodType, messages, o.now())
		if err := o.writer.UpsertSentiment(ctx, record); err != nil {
			return "failed", err.Error()
		}
		summary.SentimentRecords++
	}

	if req.IngestionType.IncludesAnalytics() {
		texts := make([]string, 0, len(messages))
		for _, message := range messages {
			texts = append(texts, message.Body)
		}

		result, err := o.analyzer.Analyze(ctx, unit.Symbol, texts)
		if err != nil {
			return "failed", err.Error()
		}

		now := o.now()
		if err := o.writer.UpsertNarrative(ctx, &store.NarrativeRecord{
			Symbol:     unit.Symbol,
			RecordedAt: recordedAt,
			PeriodType: periodType,
			Payload:    result.Narrative,
			CreatedAt:  now,
		}); err != nil {
			return "failed", err.Error()
		}
		summary.NarrativeRecords++

		if err := o.writer.UpsertEmotion(ctx, &store.EmotionRecord{
			Symbol:     unit.Symbol,
			RecordedAt: recordedAt,
			PeriodType: periodType,
			Payload:    result.Emotion,
			CreatedAt:  now,
		}); err != nil {
			return "failed", err.Error()
		}
		summary.EmotionRecords++
	}

	return "created", ""
}

// unitWindow returns the half-open fetch boundaries of a unit
func (o *Orchestrator) unitWindow(unit types.TimeUnit) (time.Time, time.Time) {
	if unit.IsHourly() {
		start := time.Date(unit.Date.Year(), unit.Date.Month(), unit.Date.Day(), unit.Hour, 0, 0, 0, o.location)
		return start, start.Add(time.Hour)
	}
	start := time.Date(unit.Date.Year(), unit.Date.Month(), unit.Date.Day(), 0, 0, 0, 0, o.location)
	return start, start.AddDate(0, 0, 1)
}

// recordedAt returns the canonical timestamp a unit's records carry: minute
// 30 of the hour for hourly units, 23:59:59 for daily units, both on the
// market-local clock.
func (o *Orchestrator) recordedAt(unit types.TimeUnit) time.Time {
	if unit.IsHourly() {
		return time.Date(unit.Date.Year(), unit.Date.Month(), unit.Date.Day(), unit.Hour, 30, 0, 0, o.location)
	}
	return time.Date(unit.Date.Year(), unit.Date.Month(), unit.Date.Day(), 23, 59, 59, 0, o.location)
}

// buildSentimentRecord aggregates message labels into a scored record
func buildSentimentRecord(symbol string, recordedAt time.Time, periodType string, messages []upstream.Message, now time.Time) *store.SentimentRecord {
	var bullish, bearish, neutral int
	for _, message := range messages {
		switch message.Sentiment {
		case "bullish":
			bullish++
		case "bearish":
			bearish++
		default:
			neutral++
		}
	}

	return &store.SentimentRecord{
		Symbol:        symbol,
		RecordedAt:    recordedAt,
		PeriodType:    periodType,
		Score:         SentimentScore(bullish, bearish, len(messages)),
		BullishCount:  bullish,
		BearishCount:  bearish,
		NeutralCount:  neutral,
		TotalMessages: len(messages),
		CreatedAt:     now,
	}
}

// SentimentScore maps bullish/bearish counts onto a 0-100 scale where 50 is
// neutral. An empty period scores 50.
func SentimentScore(bullish, bearish, total int) int {
	if total == 0 {
		return 50
	}
	ratio := float64(bullish-bearish) / float64(total)
	return int(math.Round((ratio + 1) * 50))
}

// requestedFamilies maps an ingestion type to the record families it writes
func requestedFamilies(ingestionType types.IngestionType) []types.Family {
	var families []types.Family
	if ingestionType.IncludesMessages() {
		families = append(families, types.FamilySentiment)
	}
	if ingestionType.IncludesAnalytics() {
		families = append(families, types.FamilyNarrative, types.FamilyEmotion)
	}
	return families
}

// progressState tracks cumulative counters for emitted events
type progressState struct {
	emitter   Emitter
	symbol    string
	mode      types.Mode
	total     int
	processed int
	created   int
	skipped   int
	failed    int
}

func (s *progressState) emit(eventType, currentUnit, reason string) {
	s.emitter.Emit(types.ProgressEvent{
		Type:        eventType,
		Symbol:      s.symbol,
		Mode:        s.mode,
		CurrentUnit: currentUnit,
		Reason:      reason,
		Processed:   s.processed,
		Total:       s.total,
		Created:     s.created,
		Skipped:     s.skipped,
		Failed:      s.failed,
	})
}

func (s *progressState) emitComplete(summary *types.BackfillSummary) {
	s.emitter.Emit(types.ProgressEvent{
		Type:      types.EventComplete,
		Symbol:    s.symbol,
		Mode:      s.mode,
		Processed: s.processed,
		Total:     s.total,
		Created:   s.created,
		Skipped:   s.skipped,
		Failed:    s.failed,
		Summary:   summary,
	})
}

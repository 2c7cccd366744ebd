// Package types contains shared types used across the sentiment backend
package types

import (
	"fmt"
	"time"
)

// Mode selects the backfill granularity
type Mode string

const (
	ModeDaily  Mode = "daily"
	ModeHourly Mode = "hourly"
)

// IngestionType selects which record families a backfill produces
type IngestionType string

const (
	IngestMessages  IngestionType = "messages"
	IngestAnalytics IngestionType = "analytics"
	IngestAll       IngestionType = "all"
)

// IncludesMessages reports whether sentiment aggregates should be computed
func (t IngestionType) IncludesMessages() bool {
	return t == IngestMessages || t == IngestAll
}

// IncludesAnalytics reports whether narrative/emotion extraction should run
func (t IngestionType) IncludesAnalytics() bool {
	return t == IngestAnalytics || t == IngestAll
}

// Valid reports whether the ingestion type is one of the known values
func (t IngestionType) Valid() bool {
	return t == IngestMessages || t == IngestAnalytics || t == IngestAll
}

// Family identifies a derived-record family
type Family string

const (
	FamilySentiment Family = "sentiment"
	FamilyNarrative Family = "narrative"
	FamilyEmotion   Family = "emotion"
)

// TimeUnit is one atomic slice of backfill work: a weekday in daily mode, or
// an hour of a single day in hourly mode (Hour is -1 for daily units).
type TimeUnit struct {
	Symbol string
	Date   time.Time // midnight, market-local clock
	Hour   int
	// Exists marks a unit whose records are already persisted for every
	// requested family; such units are reported as skipped, not reprocessed.
	Exists bool
}

// IsHourly reports whether the unit is an hourly granule
func (u TimeUnit) IsHourly() bool {
	return u.Hour >= 0
}

// Label returns the unit identifier used in summaries and progress events
func (u TimeUnit) Label() string {
	if u.IsHourly() {
		return fmt.Sprintf("%s %02d:00", u.Date.Format("2006-01-02"), u.Hour)
	}
	return u.Date.Format("2006-01-02")
}

// Progress event types emitted over a streaming backfill connection
const (
	EventStart    = "start"
	EventProgress = "progress"
	EventCreated  = "created"
	EventSkipped  = "skipped"
	EventError    = "error"
	EventComplete = "complete"
)

// ProgressEvent carries cumulative counters so a client can render a progress
// bar from the latest event alone, without replaying history.
type ProgressEvent struct {
	Type        string           `json:"type"`
	Symbol      string           `json:"symbol"`
	Mode        Mode             `json:"mode"`
	CurrentUnit string           `json:"current_unit,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	Processed   int              `json:"processed"`
	Total       int              `json:"total"`
	Created     int              `json:"created"`
	Skipped     int              `json:"skipped"`
	Failed      int              `json:"failed"`
	Summary     *BackfillSummary `json:"summary,omitempty"`
}

// UnitError records a single unit's failure with a human-readable reason
type UnitError struct {
	Unit   string `json:"unit"`
	Reason string `json:"reason"`
}

// BackfillSummary is the terminal result of one backfill invocation
type BackfillSummary struct {
	Symbol           string      `json:"symbol"`
	Mode             Mode        `json:"mode"`
	ProcessedDates   []string    `json:"processedDates,omitempty"`
	ProcessedHours   []string    `json:"processedHours,omitempty"`
	SentimentRecords int         `json:"sentimentRecords"`
	NarrativeRecords int         `json:"narrativeRecords"`
	EmotionRecords   int         `json:"emotionRecords"`
	SkippedDates     []string    `json:"skippedDates"`
	Errors           []UnitError `json:"errors"`
	HasMore          bool        `json:"hasMore"`
	RemainingDates   int         `json:"remainingDates"`
	Cancelled        bool        `json:"cancelled,omitempty"`
}

// Processed returns the count of successfully processed units
func (s *BackfillSummary) Processed() int {
	return len(s.ProcessedDates) + len(s.ProcessedHours)
}

// BackfillJobStatus represents the status of an async backfill job
type BackfillJobStatus struct {
	JobID       string           `json:"job_id"`
	Symbol      string           `json:"symbol"`
	Status      string           `json:"status"` // pending, processing, completed, failed
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Error       string           `json:"error,omitempty"`
	Summary     *BackfillSummary `json:"summary,omitempty"`
	DurationMs  int64            `json:"duration_ms,omitempty"`
}

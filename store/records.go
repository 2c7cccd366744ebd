// Package store persists derived sentiment, narrative, and emotion records
// in Google Cloud Datastore. Record identity is the (symbol, recordedAt)
// pair encoded into the entity key, so re-running a backfill over the same
// window upserts rather than duplicates.
package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/sirupsen/logrus"

	"github.com/marketpulse-labs/sentiment-backend/monitoring"
	"github.com/marketpulse-labs/sentiment-backend/types"
)

// Datastore kinds per record family
const (
	KindSentiment = "SentimentRecord"
	KindNarrative = "NarrativeRecord"
	KindEmotion   = "EmotionRecord"
)

var familyKinds = map[types.Family]string{
	types.FamilySentiment: KindSentiment,
	types.FamilyNarrative: KindNarrative,
	types.FamilyEmotion:   KindEmotion,
}

// SentimentRecord is an aggregated message-count record for one period
type SentimentRecord struct {
	Symbol        string    `datastore:"symbol"`
	RecordedAt    time.Time `datastore:"recorded_at"`
	PeriodType    string    `datastore:"period_type"` // daily or hourly
	Score         int       `datastore:"score"`
	BullishCount  int       `datastore:"bullish_count"`
	BearishCount  int       `datastore:"bearish_count"`
	NeutralCount  int       `datastore:"neutral_count"`
	TotalMessages int       `datastore:"total_messages"`
	CreatedAt     time.Time `datastore:"created_at"`
}

// NarrativeRecord carries the opaque narrative payload for one period
type NarrativeRecord struct {
	Symbol     string    `datastore:"symbol"`
	RecordedAt time.Time `datastore:"recorded_at"`
	PeriodType string    `datastore:"period_type"`
	Payload    []byte    `datastore:"payload,noindex"`
	CreatedAt  time.Time `datastore:"created_at"`
}

// EmotionRecord carries the opaque emotion payload for one period
type EmotionRecord struct {
	Symbol     string    `datastore:"symbol"`
	RecordedAt time.Time `datastore:"recorded_at"`
	PeriodType string    `datastore:"period_type"`
	Payload    []byte    `datastore:"payload,noindex"`
	CreatedAt  time.Time `datastore:"created_at"`
}

// DatastoreClientInterface is the slice of the Datastore client the record
// store needs, kept narrow so tests can substitute a fake.
type DatastoreClientInterface interface {
	Put(ctx context.Context, key *datastore.Key, src interface{}) (*datastore.Key, error)
	GetAll(ctx context.Context, q *datastore.Query, dst interface{}) ([]*datastore.Key, error)
}

// RecordStore reads and writes derived records
type RecordStore struct {
	client DatastoreClientInterface
	logger *logrus.Logger
}

// NewRecordStore creates a Datastore-backed record store
func NewRecordStore(client DatastoreClientInterface, logger *logrus.Logger) *RecordStore {
	return &RecordStore{client: client, logger: logger}
}

// recordKey builds the idempotent entity key for a record
func recordKey(kind, symbol string, recordedAt time.Time) *datastore.Key {
	return datastore.NameKey(kind, fmt.Sprintf("%s|%d", symbol, recordedAt.Unix()), nil)
}

// UpsertSentiment writes an aggregated sentiment record
func (s *RecordStore) UpsertSentiment(ctx context.Context, record *SentimentRecord) error {
	return s.put(ctx, KindSentiment, record.Symbol, record.RecordedAt, record)
}

// UpsertNarrative writes a narrative record
func (s *RecordStore) UpsertNarrative(ctx context.Context, record *NarrativeRecord) error {
	return s.put(ctx, KindNarrative, record.Symbol, record.RecordedAt, record)
}

// UpsertEmotion writes an emotion record
func (s *RecordStore) UpsertEmotion(ctx context.Context, record *EmotionRecord) error {
	return s.put(ctx, KindEmotion, record.Symbol, record.RecordedAt, record)
}

func (s *RecordStore) put(ctx context.Context, kind, symbol string, recordedAt time.Time, src interface{}) error {
	start := time.Now()
	_, err := s.client.Put(ctx, recordKey(kind, symbol, recordedAt), src)
	if err != nil {
		monitoring.RecordStoreOperation("put", "error", time.Since(start).Seconds())
		s.logger.WithFields(logrus.Fields{
			"kind":   kind,
			"symbol": symbol,
		}).WithError(err).Error("Failed to write record")
		return fmt.Errorf("writing %s for %s: %w", kind, symbol, err)
	}
	monitoring.RecordStoreOperation("put", "success", time.Since(start).Seconds())
	return nil
}

// HasDailyRecords reports whether every requested family already has a daily
// record for the given market-local date.
func (s *RecordStore) HasDailyRecords(ctx context.Context, symbol string, date time.Time, families []types.Family) (bool, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return s.hasAll(ctx, symbol, "daily", dayStart, dayStart.AddDate(0, 0, 1), families)
}

// HasHourlyRecords reports whether every requested family already has an
// hourly record for the given market-local date and hour.
func (s *RecordStore) HasHourlyRecords(ctx context.Context, symbol string, date time.Time, hour int, families []types.Family) (bool, error) {
	hourStart := time.Date(date.Year(), date.Month(), date.Day(), hour, 0, 0, 0, date.Location())
	return s.hasAll(ctx, symbol, "hourly", hourStart, hourStart.Add(time.Hour), families)
}

// hasAll is true only when every family has at least one record in the range
func (s *RecordStore) hasAll(ctx context.Context, symbol, periodType string, rangeStart, rangeEnd time.Time, families []types.Family) (bool, error) {
	for _, family := range families {
		kind, ok := familyKinds[family]
		if !ok {
			return false, fmt.Errorf("unknown record family %q", family)
		}

		start := time.Now()
		query := datastore.NewQuery(kind).
			FilterField("symbol", "=", symbol).
			FilterField("period_type", "=", periodType).
			FilterField("recorded_at", ">=", rangeStart).
			FilterField("recorded_at", "<", rangeEnd).
			KeysOnly().
			Limit(1)

		keys, err := s.client.GetAll(ctx, query, nil)
		if err != nil {
			monitoring.RecordStoreOperation("exists", "error", time.Since(start).Seconds())
			return false, fmt.Errorf("checking %s existence for %s: %w", kind, symbol, err)
		}
		monitoring.RecordStoreOperation("exists", "success", time.Since(start).Seconds())

		if len(keys) == 0 {
			return false, nil
		}
	}
	return true, nil
}

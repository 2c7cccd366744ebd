// Package gapscan enumerates the time units a backfill covers. It walks the
// requested date range on the market-local clock, skips weekends and future
// periods, and consults the record store to mark units whose derived records
// already exist so the caller can report them instead of refetching.
package gapscan

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketpulse-labs/sentiment-backend/types"
)

// Trading-hours window on the market-local clock, inclusive
const (
	TradingHourStart = 9
	TradingHourEnd   = 16
)

// DefaultMarketOffsetHours is the fixed UTC offset of the market clock.
// The offset is deliberately fixed rather than DST-aware; a record that
// lands an hour off around a DST transition is acceptable for this data.
const DefaultMarketOffsetHours = -5

// MarketLocation builds the fixed-offset market time zone
func MarketLocation(offsetHours int) *time.Location {
	return time.FixedZone("Market", offsetHours*3600)
}

// RecordChecker answers whether derived records already exist for a period
type RecordChecker interface {
	HasDailyRecords(ctx context.Context, symbol string, date time.Time, families []types.Family) (bool, error)
	HasHourlyRecords(ctx context.Context, symbol string, date time.Time, hour int, families []types.Family) (bool, error)
}

// Scanner enumerates backfill time units for a symbol
type Scanner struct {
	checker  RecordChecker
	location *time.Location
	logger   *logrus.Logger
	now      func() time.Time
}

// NewScanner creates a scanner on the given market clock
func NewScanner(checker RecordChecker, location *time.Location, logger *logrus.Logger) *Scanner {
	return &Scanner{
		checker:  checker,
		location: location,
		logger:   logger,
		now:      time.Now,
	}
}

// ScanDailyUnits returns the weekday units in [start, end], each marked with
// whether records already exist for every requested family. With force set,
// existence checks are bypassed and every unit comes back unmarked.
func (s *Scanner) ScanDailyUnits(ctx context.Context, symbol string, start, end time.Time, families []types.Family, force bool) ([]types.TimeUnit, error) {
	today := s.localMidnight(s.now())
	var units []types.TimeUnit

	for date := s.localMidnight(start); !date.After(s.localMidnight(end)); date = date.AddDate(0, 0, 1) {
		if isWeekend(date) || date.After(today) {
			continue
		}

		exists := false
		if !force {
			var err error
			exists, err = s.checker.HasDailyRecords(ctx, symbol, date, families)
			if err != nil {
				return nil, err
			}
		}

		units = append(units, types.TimeUnit{Symbol: symbol, Date: date, Hour: -1, Exists: exists})
	}

	s.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"mode":   types.ModeDaily,
		"units":  len(units),
	}).Debug("Gap scan complete")

	return units, nil
}

// ScanHourlyUnits returns the trading-hour units in [start, end], each marked
// with whether records already exist for every requested family. Hours later
// than the current market-local hour are excluded.
func (s *Scanner) ScanHourlyUnits(ctx context.Context, symbol string, start, end time.Time, families []types.Family, force bool) ([]types.TimeUnit, error) {
	now := s.now().In(s.location)
	today := s.localMidnight(now)
	var units []types.TimeUnit

	for date := s.localMidnight(start); !date.After(s.localMidnight(end)); date = date.AddDate(0, 0, 1) {
		if isWeekend(date) || date.After(today) {
			continue
		}

		for hour := TradingHourStart; hour <= TradingHourEnd; hour++ {
			if date.Equal(today) && hour > now.Hour() {
				break
			}

			exists := false
			if !force {
				var err error
				exists, err = s.checker.HasHourlyRecords(ctx, symbol, date, hour, families)
				if err != nil {
					return nil, err
				}
			}

			units = append(units, types.TimeUnit{Symbol: symbol, Date: date, Hour: hour, Exists: exists})
		}
	}

	s.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"mode":   types.ModeHourly,
		"units":  len(units),
	}).Debug("Gap scan complete")

	return units, nil
}

// localMidnight normalizes a time to market-local midnight
func (s *Scanner) localMidnight(t time.Time) time.Time {
	local := t.In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/marketpulse-labs/sentiment-backend/monitoring"
	"github.com/sirupsen/logrus"
)

// DefaultTTLs returns the per-action cache TTLs. A TTL of zero means the
// action is never cached and the cache is never consulted for it.
func DefaultTTLs() map[string]time.Duration {
	return map[string]time.Duration{
		"trending":  60 * time.Second,
		"stats":     30 * time.Second,
		"sentiment": 30 * time.Second,
		"messages":  30 * time.Second,
		"symbols":   300 * time.Second,
		"analytics": 120 * time.Second,
		"analyze":   0,
	}
}

// Manager fronts a Cache with per-action TTLs, fingerprint construction, and
// hit/miss accounting. Caching is best-effort throughout: a failed write is
// logged and swallowed so it can never fail the surrounding request.
type Manager struct {
	cache            Cache
	logger           *logrus.Logger
	ttls             map[string]time.Duration
	sweepProbability float64
}

// NewManager creates a cache manager. sweepProbability is the chance, per
// read, of kicking off an opportunistic background sweep in addition to the
// implementation's own fixed-interval sweeper.
func NewManager(cache Cache, logger *logrus.Logger, ttls map[string]time.Duration, sweepProbability float64) *Manager {
	if ttls == nil {
		ttls = DefaultTTLs()
	}
	return &Manager{
		cache:            cache,
		logger:           logger,
		ttls:             ttls,
		sweepProbability: sweepProbability,
	}
}

// TTL returns the configured TTL for an action (zero for uncached actions)
func (m *Manager) TTL(action string) time.Duration {
	return m.ttls[action]
}

// Cacheable reports whether responses for the action may be cached
func (m *Manager) Cacheable(action string) bool {
	return m.ttls[action] > 0
}

// Fingerprint builds the deterministic cache key for an action and its
// parameters. Empty-valued parameters are excluded and the rest are sorted,
// so parameter order never produces distinct keys.
func Fingerprint(action string, params map[string]string) string {
	parts := make([]string, 0, len(params))
	for key, value := range params {
		if value == "" {
			continue
		}
		parts = append(parts, key+"="+value)
	}
	sort.Strings(parts)

	sum := sha256.Sum256([]byte(action + "|" + strings.Join(parts, "&")))
	return fmt.Sprintf("%x", sum)
}

// Get retrieves a cached payload for a query action. Returns a miss for
// uncached actions without touching the cache.
func (m *Manager) Get(ctx context.Context, action, key string) (json.RawMessage, bool) {
	if !m.Cacheable(action) {
		return nil, false
	}

	m.maybeSweep()

	payload, found := m.cache.Get(ctx, key)
	if found {
		monitoring.RecordCacheHit(action)
		m.logger.WithFields(logrus.Fields{
			"action": action,
			"key":    key,
		}).Debug("Cache hit for upstream query")
	} else {
		monitoring.RecordCacheMiss(action)
		m.logger.WithFields(logrus.Fields{
			"action": action,
			"key":    key,
		}).Debug("Cache miss for upstream query")
	}

	return payload, found
}

// Put stores a payload under the action's TTL. Failures are logged and
// swallowed; uncached actions are a no-op.
func (m *Manager) Put(ctx context.Context, action, symbol, key string, payload json.RawMessage) {
	ttl := m.ttls[action]
	if ttl <= 0 {
		return
	}

	now := time.Now()
	entry := &Entry{
		Key:       key,
		Action:    action,
		Symbol:    symbol,
		Payload:   payload,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	if err := m.cache.Set(ctx, entry); err != nil {
		m.logger.WithFields(logrus.Fields{
			"action": action,
			"key":    key,
			"error":  err.Error(),
		}).Warn("Failed to cache upstream response")
	}
}

// Invalidate removes a cached payload by key
func (m *Manager) Invalidate(ctx context.Context, key string) error {
	return m.cache.Delete(ctx, key)
}

// Sweep removes expired entries immediately
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	removed, err := m.cache.Sweep(ctx)
	if removed > 0 {
		monitoring.RecordCacheSweep(removed)
	}
	return removed, err
}

// ClearAll clears all cached data
func (m *Manager) ClearAll(ctx context.Context) error {
	err := m.cache.Clear(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Failed to clear cache")
		return err
	}

	m.logger.Info("Cache cleared successfully")
	return nil
}

// maybeSweep kicks off an opportunistic non-blocking sweep for a small
// fraction of reads. The fixed-interval sweeper remains the primary path.
func (m *Manager) maybeSweep() {
	if m.sweepProbability <= 0 || rand.Float64() >= m.sweepProbability {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if removed, err := m.Sweep(ctx); err != nil {
			m.logger.WithError(err).Debug("Opportunistic cache sweep failed")
		} else if removed > 0 {
			m.logger.WithField("removed", removed).Debug("Opportunistic cache sweep removed expired entries")
		}
	}()
}

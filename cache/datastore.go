package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/sirupsen/logrus"
)

// cacheEntryKind is the Datastore kind for persisted cache entries
const cacheEntryKind = "CacheEntry"

// deleteBatchSize bounds DeleteMulti calls during sweeps
const deleteBatchSize = 500

// DatastoreClientInterface defines the Datastore operations the cache needs
type DatastoreClientInterface interface {
	Get(ctx context.Context, key *datastore.Key, dst interface{}) error
	Put(ctx context.Context, key *datastore.Key, src interface{}) (*datastore.Key, error)
	Delete(ctx context.Context, key *datastore.Key) error
	GetAll(ctx context.Context, q *datastore.Query, dst interface{}) ([]*datastore.Key, error)
	DeleteMulti(ctx context.Context, keys []*datastore.Key) error
}

// cacheEntity is the persisted representation of an Entry
type cacheEntity struct {
	Action    string    `datastore:"action"`
	Symbol    string    `datastore:"symbol"`
	Payload   []byte    `datastore:"payload,noindex"`
	ExpiresAt time.Time `datastore:"expires_at"`
	CreatedAt time.Time `datastore:"created_at"`
}

// DatastoreCache implements Cache backed by a Datastore kind keyed by the
// request fingerprint, so cached payloads are shared across instances.
type DatastoreCache struct {
	client DatastoreClientInterface
	logger *logrus.Logger
}

// NewDatastoreCache creates a Datastore-backed cache
func NewDatastoreCache(client DatastoreClientInterface, logger *logrus.Logger) *DatastoreCache {
	return &DatastoreCache{
		client: client,
		logger: logger,
	}
}

// Get retrieves a payload by fingerprint. Expired entries are deleted lazily
// and reported as a miss.
func (c *DatastoreCache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	var entity cacheEntity
	dsKey := datastore.NameKey(cacheEntryKind, key, nil)

	if err := c.client.Get(ctx, dsKey, &entity); err != nil {
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			c.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
		}
		return nil, false
	}

	if time.Now().After(entity.ExpiresAt) {
		// Lazy expiry: best-effort delete, always a miss.
		if err := c.client.Delete(ctx, dsKey); err != nil {
			c.logger.WithError(err).WithField("key", key).Debug("Failed to delete expired cache entry")
		}
		return nil, false
	}

	return entity.Payload, true
}

// Set stores an entry keyed by its fingerprint
func (c *DatastoreCache) Set(ctx context.Context, entry *Entry) error {
	entity := cacheEntity{
		Action:    entry.Action,
		Symbol:    entry.Symbol,
		Payload:   entry.Payload,
		ExpiresAt: entry.ExpiresAt,
		CreatedAt: entry.CreatedAt,
	}

	_, err := c.client.Put(ctx, datastore.NameKey(cacheEntryKind, entry.Key, nil), &entity)
	return err
}

// Delete removes an entry by fingerprint
func (c *DatastoreCache) Delete(ctx context.Context, key string) error {
	return c.client.Delete(ctx, datastore.NameKey(cacheEntryKind, key, nil))
}

// Sweep bulk-deletes expired entries and returns the number removed
func (c *DatastoreCache) Sweep(ctx context.Context) (int, error) {
	query := datastore.NewQuery(cacheEntryKind).
		FilterField("expires_at", "<", time.Now()).
		KeysOnly()

	keys, err := c.client.GetAll(ctx, query, nil)
	if err != nil {
		return 0, err
	}

	removed := 0
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.client.DeleteMulti(ctx, keys[start:end]); err != nil {
			return removed, err
		}
		removed += end - start
	}

	return removed, nil
}

// Clear removes every cache entry
func (c *DatastoreCache) Clear(ctx context.Context) error {
	query := datastore.NewQuery(cacheEntryKind).KeysOnly()
	keys, err := c.client.GetAll(ctx, query, nil)
	if err != nil {
		return err
	}

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.client.DeleteMulti(ctx, keys[start:end]); err != nil {
			return err
		}
	}
	return nil
}

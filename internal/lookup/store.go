package lookup

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DBPair is the read/write connection pair the cache store needs.
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// CacheStore persists response bodies in the response_cache table so lookups
// survive restarts.
type CacheStore struct {
	reader *sql.DB
	writer *sql.DB
	logger hclog.Logger
}

// NewCacheStore creates a store over the given database pair.
func NewCacheStore(dbPair DBPair, logger hclog.Logger) *CacheStore {
	if logger == nil {
		logger = hclog.Default()
	}
	return &CacheStore{
		reader: dbPair.Reader(),
		writer: dbPair.Writer(),
		logger: logger.Named("cache-store"),
	}
}

// Get returns the stored entry for key, if any.
func (s *CacheStore) Get(key string) (Entry, bool, error) {
	var (
		payload    []byte
		fetchedAt  int64
		ttlSeconds int64
	)
	err := s.reader.QueryRow(`
		SELECT payload, fetched_at, ttl_seconds
		FROM response_cache
		WHERE cache_key = ?
	`, key).Scan(&payload, &fetchedAt, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get cache entry: %w", err)
	}

	return Entry{
		Payload:   payload,
		FetchedAt: time.UnixMilli(fetchedAt),
		TTL:       time.Duration(ttlSeconds) * time.Second,
	}, true, nil
}

// Put upserts the entry for key. Last writer wins.
func (s *CacheStore) Put(channel, key string, entry Entry) error {
	ttl := entry.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	_, err := s.writer.Exec(`
		INSERT INTO response_cache (cache_key, channel, payload, fetched_at, ttl_seconds, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			channel = excluded.channel,
			payload = excluded.payload,
			fetched_at = excluded.fetched_at,
			ttl_seconds = excluded.ttl_seconds,
			expires_at = excluded.expires_at
	`, key, channel, entry.Payload, entry.FetchedAt.UnixMilli(), int64(ttl/time.Second), entry.FetchedAt.Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// PruneExpired deletes rows whose stored TTL has elapsed.
func (s *CacheStore) PruneExpired(now time.Time) (int64, error) {
	result, err := s.writer.Exec(`DELETE FROM response_cache WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the number of rows, optionally limited to one channel.
func (s *CacheStore) Count(channel string) (int, error) {
	var count int
	var err error
	if channel == "" {
		err = s.reader.QueryRow(`SELECT COUNT(*) FROM response_cache`).Scan(&count)
	} else {
		err = s.reader.QueryRow(`SELECT COUNT(*) FROM response_cache WHERE channel = ?`, channel).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return count, nil
}

// ForChannel adapts the store to the Cache interface for one channel.
// Storage errors are logged and treated as misses.
func (s *CacheStore) ForChannel(channel string) Cache {
	return &storeCache{store: s, channel: channel}
}

type storeCache struct {
	store   *CacheStore
	channel string
}

func (c *storeCache) Get(key string) (Entry, bool) {
	entry, ok, err := c.store.Get(key)
	if err != nil {
		c.store.logger.Warn("cache read failed", "channel", c.channel, "error", err)
		return Entry{}, false
	}
	return entry, ok
}

func (c *storeCache) Put(key string, entry Entry) {
	if err := c.store.Put(c.channel, key, entry); err != nil {
		c.store.logger.Warn("cache write failed", "channel", c.channel, "error", err)
	}
}

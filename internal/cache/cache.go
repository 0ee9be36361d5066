// Package cache provides per-source time-boxed storage for read-mostly
// remote data. Reads never take the state lock; stale reads are an accepted
// tradeoff for availability. Mutating paths bypass the cache entirely.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/TarunvirBains/ao-no-out7ook/internal/models"

	_ "modernc.org/sqlite"
)

// Default freshness windows per source.
const (
	TTLItem     = 5 * time.Minute
	TTLTimer    = 30 * time.Second
	TTLCalendar = 5 * time.Minute
	TTLSchema   = 12 * time.Hour
)

// Cache is a SQLite-backed entry store keyed by (source, key). Entries are
// replaced wholesale on refresh, never partially mutated, and the cache
// accepts last-write-wins overwrites since entries are independent and
// disposable.
type Cache struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

// Open opens (or creates) the cache database at the given path.
func Open(dbPath string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all access through Go's connection pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		source     TEXT NOT NULL,
		key        TEXT NOT NULL,
		payload    BLOB NOT NULL,
		fetched_at INTEGER NOT NULL,
		PRIMARY KEY (source, key)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create entries table: %w", err)
	}

	return &Cache{db: db, now: time.Now, logger: logger}, nil
}

// SetNow overrides the clock, for tests.
func (c *Cache) SetNow(now func() time.Time) { c.now = now }

// Close closes the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

// Result wraps a cache lookup outcome.
type Result struct {
	// Stale is true when fetch failed and a previous entry was served.
	Stale bool
	// Age is how old the served payload is.
	Age time.Duration
}

// GetOrRefresh returns the cached payload for (source, key) if its age is
// within ttl; otherwise it calls fetch, stores the result, and returns it.
// When fetch fails and a previous entry exists, that entry is returned with
// Stale set instead of propagating the error. dest must be a pointer.
func (c *Cache) GetOrRefresh(ctx context.Context, source models.Source, key string, ttl time.Duration, dest any, fetch func(ctx context.Context) (any, error)) (Result, error) {
	now := c.now()

	payload, fetchedAt, found := c.lookup(ctx, source, key)
	if found && now.Sub(fetchedAt) <= ttl {
		if err := json.Unmarshal(payload, dest); err == nil {
			return Result{Age: now.Sub(fetchedAt)}, nil
		}
		// Undecodable entry is treated as a miss and refetched.
		c.logger.Warn("discarding undecodable cache entry", "source", source, "key", key)
	}

	fresh, err := fetch(ctx)
	if err != nil {
		if found {
			if uerr := json.Unmarshal(payload, dest); uerr == nil {
				c.logger.Warn("serving stale cache entry after fetch failure",
					"source", source, "key", key, "age", now.Sub(fetchedAt), "error", err)
				return Result{Stale: true, Age: now.Sub(fetchedAt)}, nil
			}
		}
		return Result{}, err
	}

	encoded, err := json.Marshal(fresh)
	if err != nil {
		return Result{}, fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.store(ctx, source, key, encoded, now); err != nil {
		// A cache write failure never fails the read path.
		c.logger.Warn("cache write failed", "source", source, "key", key, "error", err)
	}
	if err := json.Unmarshal(encoded, dest); err != nil {
		return Result{}, fmt.Errorf("decode fetched value: %w", err)
	}
	return Result{}, nil
}

// Invalidate removes entries for the given keys under source. With no keys
// it drops every entry for the source.
func (c *Cache) Invalidate(ctx context.Context, source models.Source, keys ...string) error {
	if len(keys) == 0 {
		_, err := c.db.ExecContext(ctx, `DELETE FROM entries WHERE source = ?`, string(source))
		return err
	}
	for _, key := range keys {
		if _, err := c.db.ExecContext(ctx,
			`DELETE FROM entries WHERE source = ? AND key = ?`, string(source), key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) lookup(ctx context.Context, source models.Source, key string) ([]byte, time.Time, bool) {
	var payload []byte
	var fetchedUnix int64
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM entries WHERE source = ? AND key = ?`,
		string(source), key).Scan(&payload, &fetchedUnix)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Warn("cache lookup failed", "source", source, "key", key, "error", err)
		}
		return nil, time.Time{}, false
	}
	return payload, time.Unix(fetchedUnix, 0), true
}

func (c *Cache) store(ctx context.Context, source models.Source, key string, payload []byte, at time.Time) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO entries (source, key, payload, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source, key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		string(source), key, payload, at.Unix())
	return err
}

// Package bundlecache keeps downloaded AssistNow bundles in a local SQLite
// database so repeated runs within the validity window skip the network.
package bundlecache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get when there is no fresh entry for a key.
var ErrNotFound = errors.New("bundlecache: not found")

// Options tunes a Cache.
type Options struct {
	// MaxAge is how long an entry stays fresh. Zero keeps entries forever.
	MaxAge time.Duration
	Now    func() time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	db     *sql.DB
	maxAge time.Duration
	now    func() time.Time
	mu     sync.Mutex
}

// Entry is one stored bundle.
type Entry struct {
	Key       string
	Data      []byte
	FetchedAt time.Time
}

// Open opens or creates the cache database at path.
func Open(path string, opts Options) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS bundles (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		fetched_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	c := &Cache{db: db, maxAge: opts.MaxAge, now: opts.Now}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Put stores data under key, replacing any previous entry.
func (c *Cache) Put(key string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("saving bundle %q: empty data", key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO bundles (key, data, fetched_at) VALUES (?, ?, ?)",
		key, data, c.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving bundle: %w", err)
	}
	return nil
}

// Get returns the entry for key if it is younger than MaxAge.
func (c *Cache) Get(key string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		data []byte
		ts   int64
	)
	err := c.db.QueryRow("SELECT data, fetched_at FROM bundles WHERE key = ?", key).Scan(&data, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("querying bundle: %w", err)
	}
	e := Entry{Key: key, Data: data, FetchedAt: time.Unix(0, ts)}
	if c.expired(e.FetchedAt) {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Prune deletes entries older than MaxAge and reports how many went.
func (c *Cache) Prune() (int64, error) {
	if c.maxAge <= 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.maxAge).UnixNano()
	res, err := c.db.Exec("DELETE FROM bundles WHERE fetched_at <= ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning bundles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning bundles: %w", err)
	}
	return n, nil
}

func (c *Cache) expired(at time.Time) bool {
	return c.maxAge > 0 && c.now().Sub(at) >= c.maxAge
}

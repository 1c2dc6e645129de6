package bundlecache

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func openTemp(t *testing.T, maxAge time.Duration) (*Cache, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	path := filepath.Join(t.TempDir(), "sub", "bundles.db")
	cache, err := Open(path, Options{MaxAge: maxAge, Now: c.Now})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache, c
}

func TestCache_PutGet(t *testing.T) {
	cache, _ := openTemp(t, time.Hour)
	if _, err := cache.Get("online"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get empty err=%v", err)
	}
	want := []byte{0xB5, 0x62, 0x13, 0x00}
	if err := cache.Put("online", want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	e, err := cache.Get("online")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(e.Data, want) {
		t.Fatalf("data=% x", e.Data)
	}
	if !e.FetchedAt.Equal(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("fetched_at=%v", e.FetchedAt)
	}
}

func TestCache_Replace(t *testing.T) {
	cache, _ := openTemp(t, 0)
	if err := cache.Put("k", []byte{1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := cache.Put("k", []byte{2, 3}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	e, err := cache.Get("k")
	if err != nil || !bytes.Equal(e.Data, []byte{2, 3}) {
		t.Fatalf("data=%v err=%v", e.Data, err)
	}
}

func TestCache_Expiry(t *testing.T) {
	cache, c := openTemp(t, 2*time.Hour)
	if err := cache.Put("old", []byte{1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	c.now = c.now.Add(time.Hour)
	if err := cache.Put("new", []byte{2}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	c.now = c.now.Add(59 * time.Minute)
	if _, err := cache.Get("old"); err != nil {
		t.Fatalf("old still fresh: %v", err)
	}
	c.now = c.now.Add(time.Minute)
	if _, err := cache.Get("old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old expired err=%v", err)
	}

	n, err := cache.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned=%d want 1", n)
	}
	if _, err := cache.Get("new"); err != nil {
		t.Fatalf("new: %v", err)
	}
}

func TestCache_RejectsEmpty(t *testing.T) {
	cache, _ := openTemp(t, 0)
	if err := cache.Put("k", nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCache_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundles.db")
	c1, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c1.Put("k", []byte{7}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	c2, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()
	e, err := c2.Get("k")
	if err != nil || !bytes.Equal(e.Data, []byte{7}) {
		t.Fatalf("data=%v err=%v", e.Data, err)
	}
}

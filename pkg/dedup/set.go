// Package dedup keeps short-lived markers that suppress duplicate enqueues of the
// same discovered link within one process. A marker is only a hint: losing it
// costs a redundant queue message, never correctness.
package dedup

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/allegro/bigcache/v3"

	"sitemirror/pkg/config"
	"sitemirror/pkg/parse"
	"sitemirror/pkg/utils"
)

var present = []byte{1}

// Set is a bounded, time-limited set of marker keys
type Set struct {
	mu    sync.Mutex
	cache *bigcache.BigCache
}

// New creates a Set. Markers expire after cfg.LifeWindow; the cache never grows past
// cfg.HardMaxCacheSizeMB, evicting the oldest markers first.
func New(ctx context.Context, cfg config.DedupConfig) (*Set, error) {
	cacheConfig := bigcache.Config{
		Shards:             64,
		LifeWindow:         cfg.LifeWindow,
		CleanWindow:        cfg.LifeWindow / 2,
		MaxEntriesInWindow: cfg.MaxEntries,
		MaxEntrySize:       256,
		HardMaxCacheSize:   cfg.HardMaxCacheSizeMB,
	}
	cache, err := bigcache.New(ctx, cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: dedup cache: %w", utils.ErrDependency, err)
	}
	return &Set{cache: cache}, nil
}

// Key builds the marker key for enqueuing path at depth within a crawl run.
// Paths that map to the same stored object share a key.
func Key(path string, depth int, crawlID string) string {
	return parse.DedupPath(path) + "-" + strconv.Itoa(depth) + "-" + crawlID
}

// Mark records key and reports whether it was newly added
func (s *Set) Mark(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.cache.Get(key); err == nil {
		return false
	}
	// A failed Set only means a later duplicate enqueue
	_ = s.cache.Set(key, present)
	return true
}

// Forget removes key so a later attempt may enqueue it again
func (s *Set) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.cache.Delete(key)
}

// Len returns the number of live markers
func (s *Set) Len() int {
	return s.cache.Len()
}

// Close releases the cache
func (s *Set) Close() error {
	return s.cache.Close()
}

package detect

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cooldownKey matches the original's `track_id -> {class_name: last_emit}`
// but flattens it to `(track_id, class_name)` so the whole table can be
// bounded by a single LRU rather than an unbounded map of maps — a
// runaway tracker producing distinct ids indefinitely cannot leak
// memory past maxTrackedObjects, generalizing the dedup idiom used for
// NVR event keys.
type cooldownKey struct {
	trackID   int64
	className string
}

func (k cooldownKey) String() string {
	return fmt.Sprintf("%d|%s", k.trackID, k.className)
}

// cooldownTable enforces the per-(track_id, class_name) emission gap.
type cooldownTable struct {
	mu    sync.Mutex
	cache *lru.Cache[cooldownKey, time.Time]
}

func newCooldownTable(maxEntries int) *cooldownTable {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	c, _ := lru.New[cooldownKey, time.Time](maxEntries)
	return &cooldownTable{cache: c}
}

// allow reports whether an emission for this key is permitted right
// now given cooldown, and if so records the new last-emit time.
// Single-threaded per detection worker, but guarded anyway since the
// cleanup sweep runs on its own goroutine.
func (t *cooldownTable) allow(trackID int64, className string, cooldown time.Duration, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := cooldownKey{trackID, className}
	last, ok := t.cache.Get(key)
	if ok && now.Sub(last) < cooldown {
		return false
	}
	t.cache.Add(key, now)
	return true
}

// sweep evicts entries whose last-emit time is older than maxAge,
// mirroring the original cleanup_thread's "inactive for cleanup_interval"
// check, and returns how many entries were evicted.
func (t *cooldownTable) sweep(maxAge time.Duration, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for _, key := range t.cache.Keys() {
		last, ok := t.cache.Peek(key)
		if !ok {
			continue
		}
		if now.Sub(last) > maxAge {
			t.cache.Remove(key)
			removed++
		}
	}
	return removed
}

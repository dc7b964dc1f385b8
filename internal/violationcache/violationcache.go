// Package violationcache holds, per camera, the set of object-class
// ids currently active for violation detection.
package violationcache

import (
	"context"
	"log"
	"sync"
	"time"
)

// Loader is the narrow repository dependency this cache needs.
type Loader interface {
	ListActiveViolationConfig(ctx context.Context) (map[int64][]int64, error)
}

type snapshot struct {
	byCamera map[int64]map[int64]struct{}
	loaded   time.Time
}

// Cache is the active-violation cache: per camera, the set of object
// class ids currently enabled for violation detection.
type Cache struct {
	loader Loader
	mu     sync.RWMutex
	snap   *snapshot
}

func New(loader Loader) *Cache {
	return &Cache{
		loader: loader,
		snap:   &snapshot{byCamera: map[int64]map[int64]struct{}{}},
	}
}

func (c *Cache) Refresh(ctx context.Context) error {
	raw, err := c.loader.ListActiveViolationConfig(ctx)
	if err != nil {
		log.Printf("[VIOLATIONCACHE] refresh failed: %v", err)
		return err
	}

	next := &snapshot{byCamera: make(map[int64]map[int64]struct{}, len(raw)), loaded: time.Now()}
	for cctvID, classIDs := range raw {
		set := make(map[int64]struct{}, len(classIDs))
		for _, id := range classIDs {
			set[id] = struct{}{}
		}
		next.byCamera[cctvID] = set
	}

	c.mu.Lock()
	c.snap = next
	c.mu.Unlock()
	return nil
}

// IsActive reports whether classID is an active violation class for
// cctvID.
func (c *Cache) IsActive(cctvID, classID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.snap.byCamera[cctvID]
	if !ok {
		return false
	}
	_, active := set[classID]
	return active
}

// NonEmpty reports whether the camera has any active violation class
// at all — one of the preconditions for running full detection mode.
func (c *Cache) NonEmpty(cctvID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.snap.byCamera[cctvID]
	return ok && len(set) > 0
}

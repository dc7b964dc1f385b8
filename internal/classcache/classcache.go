// Package classcache holds an in-memory, periodically-refreshed copy
// of the object_class table so the detection hot path never touches
// the database per frame.
package classcache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/technosupport/ppe-guard/internal/data"
)

const defaultTTL = 30 * time.Second

// Loader is the narrow repository dependency this cache needs.
type Loader interface {
	ListObjectClasses(ctx context.Context) ([]data.ObjectClass, error)
}

type snapshot struct {
	byName map[string]data.ObjectClass
	byID   map[int64]data.ObjectClass
	loaded time.Time
}

// Cache is the class-metadata cache. Refresh swaps the whole
// snapshot atomically; readers never block a concurrent refresh and
// never see a partially-updated map.
type Cache struct {
	loader Loader
	ttl    time.Duration

	mu   sync.RWMutex
	snap *snapshot
}

func New(loader Loader) *Cache {
	return &Cache{
		loader: loader,
		ttl:    defaultTTL,
		snap:   &snapshot{byName: map[string]data.ObjectClass{}, byID: map[int64]data.ObjectClass{}},
	}
}

// Refresh reloads the table, replacing the snapshot on success. A
// failed refresh keeps serving the previous snapshot.
func (c *Cache) Refresh(ctx context.Context) error {
	classes, err := c.loader.ListObjectClasses(ctx)
	if err != nil {
		log.Printf("[CLASSCACHE] refresh failed: %v", err)
		return err
	}

	next := &snapshot{
		byName: make(map[string]data.ObjectClass, len(classes)),
		byID:   make(map[int64]data.ObjectClass, len(classes)),
		loaded: time.Now(),
	}
	for _, cl := range classes {
		if cl.ColorR == 0 && cl.ColorG == 0 && cl.ColorB == 0 {
			cl.ColorR, cl.ColorG, cl.ColorB = 255, 255, 255
		}
		next.byName[cl.Name] = cl
		next.byID[cl.ID] = cl
	}

	c.mu.Lock()
	c.snap = next
	c.mu.Unlock()
	return nil
}

// ensureFresh refreshes synchronously when the TTL has elapsed. Called
// from every read path, so a detection worker runs it several times
// per frame; the check itself stays cheap (a single RLock + time
// comparison).
func (c *Cache) ensureFresh(ctx context.Context) {
	c.mu.RLock()
	stale := time.Since(c.snap.loaded) > c.ttl
	c.mu.RUnlock()
	if stale {
		_ = c.Refresh(ctx)
	}
}

func (c *Cache) LookupByName(ctx context.Context, name string) (data.ObjectClass, bool) {
	c.ensureFresh(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	cl, ok := c.snap.byName[name]
	return cl, ok
}

func (c *Cache) IsViolation(ctx context.Context, name string) bool {
	cl, ok := c.LookupByName(ctx, name)
	return ok && cl.IsViolation
}

func (c *Cache) Color(ctx context.Context, name string) (r, g, b int) {
	cl, ok := c.LookupByName(ctx, name)
	if !ok {
		return 255, 255, 255
	}
	return cl.ColorR, cl.ColorG, cl.ColorB
}

// NameByID resolves a class id back to its name, used by reporting
// code that only has ids on hand (e.g. ViolationEvent.ViolationID).
func (c *Cache) NameByID(ctx context.Context, id int64) (string, bool) {
	c.ensureFresh(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	cl, ok := c.snap.byID[id]
	if !ok {
		return "", false
	}
	return cl.Name, true
}

// ClassName resolves an id to its display name, falling back to a
// numeric placeholder for an id no longer present in the snapshot.
func (c *Cache) ClassName(ctx context.Context, id int64) string {
	name, ok := c.NameByID(ctx, id)
	if !ok {
		return fmt.Sprintf("class %d", id)
	}
	return name
}

func (c *Cache) PairOf(ctx context.Context, id int64) (int64, bool) {
	c.ensureFresh(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	cl, ok := c.snap.byID[id]
	if !ok || cl.PairID == nil {
		return 0, false
	}
	return *cl.PairID, true
}

// Package cameracache holds the enabled-camera snapshot the fleet
// supervisor and detection workers read from, refreshed from the
// database on a fixed interval plus on-demand pokes from CRUD
// handlers and NATS notifications (see internal/supervisor).
package cameracache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/technosupport/ppe-guard/internal/data"
	"github.com/technosupport/ppe-guard/internal/evidence"
)

// Loader is the narrow repository dependency this cache needs.
type Loader interface {
	ListEnabledCameras(ctx context.Context) ([]*data.CCTVCamera, error)
}

// AreaFetcher resolves an AreaRef filename to its stored ROI JSON
// bytes, the second of the two accepted area storage shapes.
type AreaFetcher interface {
	Download(ctx context.Context, relativePath string) ([]byte, error)
}

type snapshot struct {
	byID   map[int64]*data.CCTVCamera
	loaded time.Time
}

// Cache is the camera-config cache: a point-in-time snapshot of every
// enabled camera, its ROI, and its resolved area reference.
type Cache struct {
	loader Loader
	areas  AreaFetcher
	mu     sync.RWMutex
	snap   *snapshot
}

func New(loader Loader, areas AreaFetcher) *Cache {
	return &Cache{
		loader: loader,
		areas:  areas,
		snap:   &snapshot{byID: map[int64]*data.CCTVCamera{}},
	}
}

// Refresh loads every enabled camera and resolves any filename-shaped
// ROI reference against the evidence store. A camera whose ROI cannot
// be resolved still gets a snapshot entry (with an empty ROIConfig) so
// it starts in stream-only mode rather than being dropped entirely.
func (c *Cache) Refresh(ctx context.Context) error {
	cams, err := c.loader.ListEnabledCameras(ctx)
	if err != nil {
		log.Printf("[CAMERACACHE] refresh failed: %v", err)
		return err
	}

	next := &snapshot{byID: make(map[int64]*data.CCTVCamera, len(cams)), loaded: time.Now()}
	for _, cam := range cams {
		if cam.AreaRef != "" && c.areas != nil {
			raw, derr := c.areas.Download(ctx, cam.AreaRef)
			if derr != nil {
				log.Printf("[CAMERACACHE] camera %d: area file %q unresolved: %v", cam.ID, cam.AreaRef, derr)
			} else if roi, perr := data.ParseROI(raw); perr == nil {
				cam.ROI = roi
			} else {
				log.Printf("[CAMERACACHE] camera %d: area file %q parse failed: %v", cam.ID, cam.AreaRef, perr)
			}
		}
		next.byID[cam.ID] = cam
	}

	c.mu.Lock()
	c.snap = next
	c.mu.Unlock()
	return nil
}

func (c *Cache) Get(id int64) (*data.CCTVCamera, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cam, ok := c.snap.byID[id]
	return cam, ok
}

// All returns every cached enabled camera, snapshotted into a new
// slice so callers can range over it without holding the lock.
func (c *Cache) All() []*data.CCTVCamera {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*data.CCTVCamera, 0, len(c.snap.byID))
	for _, cam := range c.snap.byID {
		out = append(out, cam)
	}
	return out
}

// CameraName resolves an id to its display name, falling back to a
// numeric placeholder for an id that has since left the cache —
// recap rows should still render rather than fail for a removed camera.
func (c *Cache) CameraName(id int64) string {
	cam, ok := c.Get(id)
	if !ok {
		return fmt.Sprintf("camera %d", id)
	}
	return cam.Name
}

var _ AreaFetcher = (*evidence.Store)(nil)

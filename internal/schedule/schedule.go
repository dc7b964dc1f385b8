// Package schedule evaluates whether a camera's weekly activation
// window is open right now, against the deployment timezone held by
// internal/config.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/technosupport/ppe-guard/internal/data"
)

// Loader is the narrow data dependency this evaluator needs.
type Loader interface {
	ListSchedules(ctx context.Context) ([]data.CameraSchedule, error)
}

// Clock resolves "now" in the deployment's configured timezone.
// Generalizes config.Store.Location so tests can substitute a fixed zone.
type Clock interface {
	Location() *time.Location
}

type window struct {
	start, end time.Duration // offset since local midnight
}

type snapshot struct {
	byCameraDay map[int64]map[int]([]window)
	loaded      time.Time
}

// Evaluator holds the latest schedule snapshot behind a swapped
// pointer, refreshed on the same lazy-TTL-on-read discipline as
// internal/classcache.
type Evaluator struct {
	mu    sync.RWMutex
	snap  *snapshot
	load  Loader
	clock Clock
	ttl   time.Duration
}

func New(load Loader, clock Clock) *Evaluator {
	return &Evaluator{
		load:  load,
		clock: clock,
		ttl:   30 * time.Second,
		snap:  &snapshot{byCameraDay: map[int64]map[int]([]window){}},
	}
}

// Refresh reloads every schedule row and rebuilds the snapshot. Rows
// with is_active=false are dropped: a disabled window never opens.
func (e *Evaluator) Refresh(ctx context.Context) error {
	rows, err := e.load.ListSchedules(ctx)
	if err != nil {
		return err
	}

	next := &snapshot{byCameraDay: map[int64]map[int][]window{}, loaded: time.Now()}
	for _, r := range rows {
		if !r.IsActive {
			continue
		}
		byDay, ok := next.byCameraDay[r.CCTVID]
		if !ok {
			byDay = map[int][]window{}
			next.byCameraDay[r.CCTVID] = byDay
		}
		byDay[r.DayOfWeek] = append(byDay[r.DayOfWeek], window{
			start: timeOfDay(r.StartTime),
			end:   timeOfDay(r.EndTime),
		})
	}

	e.mu.Lock()
	e.snap = next
	e.mu.Unlock()
	return nil
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

func (e *Evaluator) ensureFresh(ctx context.Context) {
	e.mu.RLock()
	stale := time.Since(e.snap.loaded) > e.ttl
	e.mu.RUnlock()
	if stale {
		_ = e.Refresh(ctx)
	}
}

// IsActiveNow reports whether cctvID has a schedule window open at the
// current moment in the deployment timezone. A camera with no rows at
// all is treated as always-on, matching the original's "no schedule
// configured means detection never pauses" default.
func (e *Evaluator) IsActiveNow(cctvID int64) bool {
	e.ensureFresh(context.Background())

	e.mu.RLock()
	defer e.mu.RUnlock()

	byDay, ok := e.snap.byCameraDay[cctvID]
	if !ok {
		return true
	}

	now := time.Now().In(e.clock.Location())
	day := int(now.Weekday())
	elapsed := timeOfDay(now)

	for _, w := range byDay[day] {
		if w.start <= w.end {
			if elapsed >= w.start && elapsed <= w.end {
				return true
			}
			continue
		}
		// Midnight-crossing windows are pre-split into two rows by the
		// data layer, so start<=end always holds here in practice; this
		// branch is a defensive fallback only.
		if elapsed >= w.start || elapsed <= w.end {
			return true
		}
	}
	return false
}

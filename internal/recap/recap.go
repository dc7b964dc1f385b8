// Package recap runs the minute-wake maintenance coordinator: daily
// rollup materialization, retention-based deletion, and weekly/monthly
// recap email dispatch. A Redis lock elects a single leader across
// replicas so the dispatch actions run exactly once per fleet.
package recap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ppe-guard/internal/data"
	"github.com/technosupport/ppe-guard/internal/evidence"
	"github.com/technosupport/ppe-guard/internal/metrics"
	"github.com/technosupport/ppe-guard/internal/notify"
)

const retentionDays = 32

// Store is the narrow data dependency this coordinator needs.
type Store interface {
	ListEnabledCameras(ctx context.Context) ([]*data.CCTVCamera, error)
	ListViolationEventsBetween(ctx context.Context, cctvIDs []int64, start, end time.Time) ([]data.ViolationEvent, error)
	RecomputeDailyRollup(ctx context.Context, cctvID, violationID int64, day time.Time, count int) error
	DeleteViolationsBefore(ctx context.Context, cutoff time.Time) ([]data.ViolationEvent, error)
}

// NameLookup resolves ids to display names for recap rows.
type NameLookup interface {
	CameraName(id int64) string
	ClassName(ctx context.Context, id int64) string
}

// Converger is the fleet supervisor's convergence trigger — recap
// calls this on every minute tick, same as the supervisor's own timer,
// so a coordinator-only deployment still drives convergence.
type Converger interface {
	Converge(ctx context.Context)
}

// RefreshAller refreshes every ambient cache (here: classcache) on the
// 10-minute cadence this coordinator also owns.
type RefreshAller interface {
	Refresh(ctx context.Context) error
}

// Coordinator runs the once-a-minute maintenance dispatch. It also
// drives fleet convergence and the class-cache refresh on the cadence
// spec'd alongside it, so a single coordinator replica is enough to
// keep the whole fleet converged even if every other replica is only
// serving capture/detect traffic.
type Coordinator struct {
	store     Store
	names     NameLookup
	notifier  *notify.Service
	evidence  *evidence.Store
	redis     *redis.Client
	location  *time.Location
	converger Converger
	classes   RefreshAller

	lastDailyRollupHour int
	lastRetentionDay    int
	lastWeeklyRecapDay  int
	lastMonthlyRecapDay int
	lastClassRefresh    time.Time
}

func New(store Store, names NameLookup, notifier *notify.Service, ev *evidence.Store, redisClient *redis.Client,
	location *time.Location, converger Converger, classes RefreshAller) *Coordinator {
	return &Coordinator{
		store: store, names: names, notifier: notifier, evidence: ev, redis: redisClient, location: location,
		converger: converger, classes: classes,
		lastDailyRollupHour: -1, lastRetentionDay: -1, lastWeeklyRecapDay: -1, lastMonthlyRecapDay: -1,
	}
}

// Run wakes every minute until ctx is canceled, attempting to acquire
// leadership before running any dispatch action.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

const lockKey = "ppe-guard:recap:leader"
const lockTTL = 50 * time.Second

// acquireLeadership is a SetNX-with-expiry lock: a single SETNX
// suffices here since there is nothing to increment, just a holder to
// elect.
func (c *Coordinator) acquireLeadership(ctx context.Context, holder string) bool {
	if c.redis == nil {
		return true
	}
	ok, err := c.redis.SetNX(ctx, lockKey, holder, lockTTL).Result()
	if err != nil {
		log.Printf("[RECAP] leadership check failed: %v", err)
		return false
	}
	return ok
}

func (c *Coordinator) tick(ctx context.Context) {
	now := time.Now()
	if c.location != nil {
		now = now.In(c.location)
	}

	if !c.acquireLeadership(ctx, fmt.Sprintf("pid-%d", time.Now().UnixNano())) {
		return
	}

	if c.converger != nil {
		c.converger.Converge(ctx)
	}
	if c.classes != nil && now.Sub(c.lastClassRefresh) >= 10*time.Minute {
		c.lastClassRefresh = now
		if err := c.classes.Refresh(ctx); err != nil {
			log.Printf("[RECAP] class cache refresh failed: %v", err)
		}
	}

	if now.Minute() == 0 && now.Hour() != c.lastDailyRollupHour {
		c.lastDailyRollupHour = now.Hour()
		c.materializeDailyRollup(ctx, now)
	}

	if now.Hour() == 0 && now.Minute() == 5 && now.Day() != c.lastRetentionDay {
		c.lastRetentionDay = now.Day()
		c.enforceRetention(ctx, now)
	}

	if now.Hour() == 7 && now.Minute() == 30 {
		if now.Day() == 1 && now.Day() != c.lastMonthlyRecapDay {
			c.lastMonthlyRecapDay = now.Day()
			c.dispatchMonthlyRecap(ctx, now)
		} else if now.Weekday() == time.Monday && now.Day() != 1 && now.YearDay() != c.lastWeeklyRecapDay {
			c.lastWeeklyRecapDay = now.YearDay()
			c.dispatchWeeklyRecap(ctx, now)
		}
	}
}

func (c *Coordinator) materializeDailyRollup(ctx context.Context, now time.Time) {
	cams, err := c.store.ListEnabledCameras(ctx)
	if err != nil {
		log.Printf("[RECAP] list cameras for rollup failed: %v", err)
		return
	}
	ids := cameraIDs(cams)
	if len(ids) == 0 {
		return
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	events, err := c.store.ListViolationEventsBetween(ctx, ids, dayStart, now)
	if err != nil {
		log.Printf("[RECAP] list events for rollup failed: %v", err)
		return
	}

	type key struct{ cctvID, violationID int64 }
	counts := map[key]int{}
	for _, e := range events {
		counts[key{e.CCTVID, e.ViolationID}]++
	}
	for k, n := range counts {
		if err := c.store.RecomputeDailyRollup(ctx, k.cctvID, k.violationID, dayStart, n); err != nil {
			log.Printf("[RECAP] rollup materialize failed for camera %d class %d: %v", k.cctvID, k.violationID, err)
		}
	}
	log.Printf("[RECAP] materialized daily rollup: %d camera/class pairs", len(counts))
}

func (c *Coordinator) enforceRetention(ctx context.Context, now time.Time) {
	cutoff := now.AddDate(0, 0, -retentionDays)
	deleted, err := c.store.DeleteViolationsBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[RECAP] retention delete failed: %v", err)
		return
	}
	for _, v := range deleted {
		if c.evidence != nil && v.ImageURL != "" {
			if err := c.evidence.Delete(ctx, v.ImageURL); err != nil {
				log.Printf("[RECAP] evidence delete failed for %s: %v", v.ImageURL, err)
			}
		}
	}
	log.Printf("[RECAP] retention: deleted %d violations older than %s", len(deleted), cutoff.Format("2006-01-02"))
}

func (c *Coordinator) dispatchWeeklyRecap(ctx context.Context, now time.Time) {
	thisMonday := mostRecentMonday(now)
	lastMonday := thisMonday.AddDate(0, 0, -7)
	c.dispatchRecap(ctx, "weekly", "Weekly PPE violation recap", lastMonday, thisMonday)
}

func (c *Coordinator) dispatchMonthlyRecap(ctx context.Context, now time.Time) {
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	lastMonth := thisMonth.AddDate(0, -1, 0)
	c.dispatchRecap(ctx, "monthly", "Monthly PPE violation recap", lastMonth, thisMonth)
}

func (c *Coordinator) dispatchRecap(ctx context.Context, period, title string, start, end time.Time) {
	cams, err := c.store.ListEnabledCameras(ctx)
	if err != nil {
		log.Printf("[RECAP] list cameras for %s failed: %v", title, err)
		metrics.RecapRunsTotal.WithLabelValues(period, "error").Inc()
		return
	}
	ids := cameraIDs(cams)
	events, err := c.store.ListViolationEventsBetween(ctx, ids, start, end)
	if err != nil {
		log.Printf("[RECAP] list events for %s failed: %v", title, err)
		metrics.RecapRunsTotal.WithLabelValues(period, "error").Inc()
		return
	}

	rows := notify.AggregateByCameraClass(events, c.names.CameraName, func(id int64) string {
		return c.names.ClassName(ctx, id)
	})

	pdf, err := notify.BuildRecapPDF(title, start, end, rows)
	if err != nil {
		log.Printf("[RECAP] build %s PDF failed: %v", title, err)
		metrics.RecapRunsTotal.WithLabelValues(period, "error").Inc()
		return
	}

	if c.notifier != nil {
		c.notifier.NotifyRecap(ctx, ids, title, pdf)
	}
	metrics.RecapRunsTotal.WithLabelValues(period, "success").Inc()
	log.Printf("[RECAP] dispatched %s covering %s to %s (%d rows)", title, start.Format("2006-01-02"), end.Format("2006-01-02"), len(rows))
}

func mostRecentMonday(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offset := (int(day.Weekday()) + 6) % 7 // days since Monday
	return day.AddDate(0, 0, -offset)
}

func cameraIDs(cams []*data.CCTVCamera) []int64 {
	ids := make([]int64, len(cams))
	for i, c := range cams {
		ids[i] = c.ID
	}
	return ids
}

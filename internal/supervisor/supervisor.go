// Package supervisor owns the fleet of per-camera pipelines: starting
// a capture+detect worker pair when a camera becomes enabled, tearing
// it down when it is disabled or removed, and restarting it when its
// connection settings change. Convergence runs on a minute timer and
// on NATS-delivered change notifications.
package supervisor

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/technosupport/ppe-guard/internal/capture"
	"github.com/technosupport/ppe-guard/internal/data"
	"github.com/technosupport/ppe-guard/internal/detect"
	"github.com/technosupport/ppe-guard/internal/metrics"
)

// CameraSource is the narrow cameracache dependency.
type CameraSource interface {
	All() []*data.CCTVCamera
	Get(id int64) (*data.CCTVCamera, bool)
}

// Refresher is implemented by every cache this supervisor keeps fresh
// on a change notification (cameracache, classcache, violationcache,
// the schedule evaluator).
type Refresher interface {
	Refresh(ctx context.Context) error
}

type runningCamera struct {
	cancel     context.CancelFunc
	connString string // host|port|token — restart trigger if it changes
	slots      *capture.Slots
}

// Config bundles the per-camera worker knobs forwarded to
// capture.Config/detect.Config.
type Config struct {
	FrameSkip          int
	QueueSize          int
	CooldownSeconds    int
	CleanupIntervalSec int
	MaxTrackedObjects  int
	ConvergeInterval   time.Duration
}

// Supervisor is the fleet-level convergence loop.
type Supervisor struct {
	cameras    CameraSource
	classes    detect.ClassLookup
	active     detect.ViolationLookup
	schedule   detect.ScheduleLookup
	detector   *detect.Detector
	sink       detect.Sink
	refreshers []Refresher
	cfg        Config

	nats *nats.Conn

	mu      sync.Mutex
	running map[int64]*runningCamera
}

func New(cameras CameraSource, classes detect.ClassLookup, active detect.ViolationLookup,
	schedule detect.ScheduleLookup, detector *detect.Detector, sink detect.Sink,
	refreshers []Refresher, natsConn *nats.Conn, cfg Config) *Supervisor {
	if cfg.ConvergeInterval <= 0 {
		cfg.ConvergeInterval = 60 * time.Second
	}
	return &Supervisor{
		cameras: cameras, classes: classes, active: active, schedule: schedule,
		detector: detector, sink: sink, refreshers: refreshers, nats: natsConn, cfg: cfg,
		running: map[int64]*runningCamera{},
	}
}

// Run refreshes every cache, converges once, then drives the minute
// ticker and NATS subscriptions until ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) {
	s.refreshAll(ctx)
	s.Converge(ctx)

	if s.nats != nil {
		s.subscribeChanges(ctx)
	}

	ticker := time.NewTicker(s.cfg.ConvergeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return
		case <-ticker.C:
			s.refreshAll(ctx)
			s.Converge(ctx)
		}
	}
}

func (s *Supervisor) refreshAll(ctx context.Context) {
	for _, r := range s.refreshers {
		if err := r.Refresh(ctx); err != nil {
			log.Printf("[SUPERVISOR] cache refresh failed: %v", err)
		}
	}
}

// subscribeChanges reacts to external CRUD mutations (out of this
// service's scope) publishing on the fleet's change subjects.
func (s *Supervisor) subscribeChanges(ctx context.Context) {
	subjects := []string{"vms.camera.changed", "vms.schedule.changed", "vms.violation_config.changed"}
	for _, subj := range subjects {
		subj := subj
		if _, err := s.nats.Subscribe(subj, func(msg *nats.Msg) {
			log.Printf("[SUPERVISOR] change notification on %s, converging", subj)
			s.refreshAll(ctx)
			s.Converge(ctx)
		}); err != nil {
			log.Printf("[SUPERVISOR] subscribe %s failed: %v", subj, err)
		}
	}
}

// Converge starts workers for newly-enabled/changed cameras and stops
// workers for cameras no longer present or no longer enabled. Exported
// so internal/recap's coordinator can trigger convergence on its own
// minute tick alongside the supervisor's own ticker.
func (s *Supervisor) Converge(ctx context.Context) {
	cams := s.cameras.All()
	seen := make(map[int64]bool, len(cams))

	for _, cam := range cams {
		seen[cam.ID] = true
		conn := connString(cam)

		s.mu.Lock()
		running, ok := s.running[cam.ID]
		s.mu.Unlock()

		if ok && running.connString == conn {
			continue
		}
		if ok {
			s.stopCamera(cam.ID)
		}
		s.startCamera(ctx, cam)
	}

	s.mu.Lock()
	var stale []int64
	for id := range s.running {
		if !seen[id] {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.stopCamera(id)
	}

	s.mu.Lock()
	metrics.CamerasActive.Set(float64(len(s.running)))
	s.mu.Unlock()
}

func connString(cam *data.CCTVCamera) string {
	return cam.IPAddress + "|" + strconv.Itoa(cam.Port) + "|" + cam.Token
}

func (s *Supervisor) startCamera(ctx context.Context, cam *data.CCTVCamera) {
	camCtx, cancel := context.WithCancel(ctx)

	slots := capture.NewSlots()
	slots.SeedInitializing()

	capCfg := capture.Config{
		CCTVID: cam.ID, Name: cam.Name, Host: cam.IPAddress, Port: cam.Port, Token: cam.Token,
		FrameSkip: s.cfg.FrameSkip, QueueSize: s.cfg.QueueSize,
	}
	capWorker := capture.NewWorker(capCfg, slots)

	camResolver := func() (*data.CCTVCamera, bool) { return s.cameras.Get(cam.ID) }
	detectWorker := detect.NewWorker(cam.ID, camResolver, s.classes, s.active, s.schedule,
		s.detector, s.sink, slots, capWorker.Queue(), detect.Config{
			CooldownSeconds:    s.cfg.CooldownSeconds,
			CleanupIntervalSec: s.cfg.CleanupIntervalSec,
			MaxTrackedObjects:  s.cfg.MaxTrackedObjects,
		})

	go capWorker.Run(camCtx)
	go detectWorker.Run(camCtx)

	s.mu.Lock()
	s.running[cam.ID] = &runningCamera{cancel: cancel, connString: connString(cam), slots: slots}
	s.mu.Unlock()

	log.Printf("[SUPERVISOR] started pipeline for camera %d (%s)", cam.ID, cam.Name)
}

// Slots implements internal/preview.Source: the preview handler reads
// the raw/annotated frame slots of whichever camera worker is
// currently running for cctvID.
func (s *Supervisor) Slots(cctvID int64) (*capture.Slots, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	running, ok := s.running[cctvID]
	if !ok {
		return nil, false
	}
	return running.slots, true
}

func (s *Supervisor) stopCamera(id int64) {
	s.mu.Lock()
	running, ok := s.running[id]
	if ok {
		delete(s.running, id)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	running.cancel()
	log.Printf("[SUPERVISOR] stopped pipeline for camera %d", id)
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.stopCamera(id)
	}
}

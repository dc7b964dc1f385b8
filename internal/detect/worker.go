// Package detect implements the per-camera detection worker: consumes
// frames off a camera's capture queue, decides between full-detection
// and stream-only mode, runs inference+tracking in full mode, and
// hands violating detections off to the violation processor.
package detect

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"log"
	"strconv"
	"time"

	"github.com/technosupport/ppe-guard/internal/capture"
	"github.com/technosupport/ppe-guard/internal/data"
	"github.com/technosupport/ppe-guard/internal/metrics"
	"github.com/technosupport/ppe-guard/internal/overlay"
	"github.com/technosupport/ppe-guard/internal/tracker"
)

// ViolationEvent is handed off to the violation processor for
// asynchronous crop/upload/notify handling; never blocks this worker.
type ViolationEvent struct {
	CCTVID     int64
	Frame      image.Image
	Box        tracker.Box
	ClassName  string
	Confidence float64
	TrackID    int64
}

// ClassLookup is the narrow classcache dependency this worker needs.
type ClassLookup interface {
	LookupByName(ctx context.Context, name string) (data.ObjectClass, bool)
	Color(ctx context.Context, name string) (r, g, b int)
}

// ViolationLookup is the narrow violationcache dependency.
type ViolationLookup interface {
	IsActive(cctvID, classID int64) bool
	NonEmpty(cctvID int64) bool
}

// ScheduleLookup decides whether full detection should run right now.
type ScheduleLookup interface {
	IsActiveNow(cctvID int64) bool
}

// Sink receives violation events for asynchronous processing.
type Sink interface {
	Submit(ev ViolationEvent)
}

// Config bundles the operator-tunable knobs this worker consults.
type Config struct {
	CooldownSeconds    int
	CleanupIntervalSec int
	MaxTrackedObjects  int
}

// Worker runs one camera's full detect pipeline.
type Worker struct {
	cctvID   int64
	camera   func() (*data.CCTVCamera, bool)
	classes  ClassLookup
	active   ViolationLookup
	schedule ScheduleLookup
	detector *Detector
	sink     Sink
	slots    *capture.Slots
	queue    <-chan []byte
	cfg      Config

	tr       *tracker.Tracker
	cooldown *cooldownTable
}

// NewWorker wires a detection worker. camera resolves the current
// cached config for cctvID on every tick, so a hot-reload of ROI or
// violation selections is picked up without restarting the worker.
// Mode is decided per frame; the supervisor restarts a worker only
// when the camera's connection settings change.
func NewWorker(cctvID int64, camera func() (*data.CCTVCamera, bool), classes ClassLookup, active ViolationLookup, schedule ScheduleLookup, detector *Detector, sink Sink, slots *capture.Slots, queue <-chan []byte, cfg Config) *Worker {
	return &Worker{
		cctvID: cctvID, camera: camera, classes: classes, active: active,
		schedule: schedule, detector: detector, sink: sink, slots: slots,
		queue: queue, cfg: cfg,
		tr:       tracker.New(),
		cooldown: newCooldownTable(cfg.MaxTrackedObjects),
	}
}

// Run drives the per-frame pipeline until ctx is canceled. Also starts
// the cooldown-table cleanup ticker that garbage-collects stale track state.
func (w *Worker) Run(ctx context.Context) {
	interval := time.Duration(w.cfg.CleanupIntervalSec) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	go w.cleanupLoop(ctx, interval)

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-w.queue:
			if !ok {
				return
			}
			w.processFrame(ctx, frame)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (w *Worker) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := w.cooldown.sweep(interval, time.Now())
			if removed > 0 {
				log.Printf("[CLEANUP %d] evicted %d stale track entries", w.cctvID, removed)
			}
		}
	}
}

func (w *Worker) processFrame(ctx context.Context, jpegBytes []byte) {
	cam, ok := w.camera()
	if !ok {
		return
	}

	img, err := jpeg.Decode(bytes.NewReader(jpegBytes))
	if err != nil {
		log.Printf("[DETECT %d] frame decode failed: %v", w.cctvID, err)
		return
	}
	canvas := overlay.ToRGBA(img)
	frameW, frameH := canvas.Bounds().Dx(), canvas.Bounds().Dy()

	scaleX, scaleY := 1.0, 1.0
	if cam.ROI.ImageWidth > 0 {
		scaleX = float64(frameW) / float64(cam.ROI.ImageWidth)
	}
	if cam.ROI.ImageHeight > 0 {
		scaleY = float64(frameH) / float64(cam.ROI.ImageHeight)
	}
	for _, r := range cam.ROI.Items {
		pts := scaledPoints(r.Points, scaleX, scaleY)
		overlay.Polyline(canvas, toOverlayPoints(pts), overlay.White, r.Type == "polygon")
	}

	full, reason := w.decideMode(cam)
	if !full {
		capture.StreamOnlyBanner(canvas, reason)
		w.publish(canvas)
		return
	}

	inferStart := time.Now()
	dets, err := w.detector.DetectImage(img)
	metrics.InferenceLatency.WithLabelValues(w.cameraLabel()).Observe(float64(time.Since(inferStart).Milliseconds()))
	if err != nil {
		log.Printf("[DETECT %d] inference failed: %v", w.cctvID, err)
		w.publish(canvas)
		return
	}

	tracked := w.tr.Update(dets)
	now := time.Now()
	cooldown := time.Duration(w.cfg.CooldownSeconds) * time.Second

	for _, t := range tracked {
		r, g, b := w.classes.Color(ctx, t.ClassName)
		boxColor := overlay.White
		boxColor.R, boxColor.G, boxColor.B = uint8(r), uint8(g), uint8(b)

		x1, y1 := int(t.Box.X1), int(t.Box.Y1)
		w2, h2 := int(t.Box.X2-t.Box.X1), int(t.Box.Y2-t.Box.Y1)
		overlay.Box(canvas, x1, y1, w2, h2, boxColor, 2)
		overlay.Label(canvas, x1, y1-15, overlay.DetectionLabel(t.ClassName, t.Confidence), boxColor)

		class, ok := w.classes.LookupByName(ctx, t.ClassName)
		if !ok || !class.IsViolation || !w.active.IsActive(w.cctvID, class.ID) {
			continue
		}

		center := point{(t.Box.X1 + t.Box.X2) / 2, (t.Box.Y1 + t.Box.Y2) / 2}
		region, inRegion := firstContaining(cam.ROI, frameW, frameH, center)
		if !inRegion || !regionAllows(region, class.ID) {
			continue
		}

		if !w.cooldown.allow(t.TrackID, t.ClassName, cooldown, now) {
			continue
		}

		w.sink.Submit(ViolationEvent{
			CCTVID: w.cctvID, Frame: img, Box: t.Box,
			ClassName: t.ClassName, Confidence: t.Confidence, TrackID: t.TrackID,
		})
		metrics.ViolationsEmittedTotal.WithLabelValues(w.cameraLabel(), t.ClassName).Inc()
	}

	w.publish(canvas)
}

// decideMode decides full-detection vs stream-only: full mode requires
// a configured ROI, a non-empty active-violation set, and a schedule
// window currently open.
func (w *Worker) decideMode(cam *data.CCTVCamera) (full bool, reason string) {
	if len(cam.ROI.Items) == 0 {
		return false, "no ROI configured"
	}
	if !w.active.NonEmpty(w.cctvID) {
		return false, "all classes disabled"
	}
	if !w.schedule.IsActiveNow(w.cctvID) {
		return false, "out of schedule"
	}
	return true, ""
}

func (w *Worker) publish(canvas *image.RGBA) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 80}); err != nil {
		log.Printf("[DETECT %d] annotated encode failed: %v", w.cctvID, err)
		return
	}
	w.slots.Annotated.Set(buf.Bytes())
}

func (w *Worker) cameraLabel() string { return strconv.FormatInt(w.cctvID, 10) }

func toOverlayPoints(pts []point) []overlay.Point {
	out := make([]overlay.Point, len(pts))
	for i, p := range pts {
		out[i] = overlay.Point{X: p.X, Y: p.Y}
	}
	return out
}

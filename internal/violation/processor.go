// Package violation turns a qualifying detection into a persisted
// incident: crop the frame around the box, frame it as a captioned
// polaroid, upload the JPEG, write the database row and daily rollup,
// and hand off to notification — all off the detection worker's hot
// path.
package violation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/technosupport/ppe-guard/internal/data"
	"github.com/technosupport/ppe-guard/internal/detect"
	"github.com/technosupport/ppe-guard/internal/metrics"
	"github.com/technosupport/ppe-guard/internal/overlay"
)

// Store is the narrow data dependency this processor needs.
type Store interface {
	InsertViolationEvent(ctx context.Context, cctvID int64, className string, imageURL string) (int64, error)
	UpsertDailyRollup(ctx context.Context, cctvID, violationID int64, day time.Time) error
}

// Uploader is the narrow evidence-store dependency.
type Uploader interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) error
	CreateSignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// Notifier receives fully-persisted violation events for
// email/recipient dispatch; implemented by internal/notify.
type Notifier interface {
	NotifyViolation(ctx context.Context, cctvID int64, className string, imageURL string, when time.Time)
}

// ClassLookup resolves a class name to its id for the daily rollup key.
type ClassLookup interface {
	LookupByName(ctx context.Context, name string) (data.ObjectClass, bool)
}

// Config bundles the operator-tunable knobs.
type Config struct {
	QueueSize int
	Workers   int
	// PaddingPercent expands the detection box by this fraction of its
	// own width/height in each axis before cropping, clamped to frame
	// bounds — e.g. 0.5 grows a box by 50% on every side.
	PaddingPercent float64
	SignedURLTTL   time.Duration
	ObjectPrefix   string
}

// Processor drains a bounded queue of detect.ViolationEvent with a
// fixed worker pool, the same semaphore-bounded fan-out shape the
// NVR event poller uses for per-NVR polling.
type Processor struct {
	store    Store
	upload   Uploader
	notifier Notifier
	classes  ClassLookup
	cfg      Config

	queue chan detect.ViolationEvent
	wg    sync.WaitGroup
}

func New(store Store, upload Uploader, notifier Notifier, classes ClassLookup, cfg Config) *Processor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PaddingPercent <= 0 {
		cfg.PaddingPercent = 0.5
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 7 * 24 * time.Hour
	}
	return &Processor{
		store: store, upload: upload, notifier: notifier, classes: classes, cfg: cfg,
		queue: make(chan detect.ViolationEvent, cfg.QueueSize),
	}
}

// Submit implements detect.Sink: non-blocking, drops and logs on a
// saturated queue rather than ever stalling the detection worker.
func (p *Processor) Submit(ev detect.ViolationEvent) {
	select {
	case p.queue <- ev:
	default:
		log.Printf("[VIOLATION %d] queue full, dropping event for track %d class %s", ev.CCTVID, ev.TrackID, ev.ClassName)
		metrics.ViolationsDroppedTotal.Inc()
	}
}

// Run starts the worker pool and blocks until ctx is canceled and
// every in-flight event has drained.
func (p *Processor) Run(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	<-ctx.Done()
	close(p.queue)
	p.wg.Wait()
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for ev := range p.queue {
		p.process(ctx, ev)
	}
}

func (p *Processor) process(ctx context.Context, ev detect.ViolationEvent) {
	now := time.Now()

	polaroid := buildPolaroid(ev, p.cfg.PaddingPercent, now)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, polaroid, &jpeg.Options{Quality: 90}); err != nil {
		log.Printf("[VIOLATION %d] encode failed: %v", ev.CCTVID, err)
		return
	}

	objectName := fmt.Sprintf("%s%d/%d_%d.jpg", p.cfg.ObjectPrefix, ev.CCTVID, now.Unix(), ev.TrackID)
	if err := p.upload.Upload(ctx, objectName, buf.Bytes(), "image/jpeg"); err != nil {
		log.Printf("[VIOLATION %d] upload failed: %v", ev.CCTVID, err)
		metrics.EvidenceUploadFailuresTotal.WithLabelValues(strconv.FormatInt(ev.CCTVID, 10)).Inc()
		return
	}

	if _, err := p.store.InsertViolationEvent(ctx, ev.CCTVID, ev.ClassName, objectName); err != nil {
		log.Printf("[VIOLATION %d] insert failed: %v", ev.CCTVID, err)
		return
	}

	if class, ok := p.classes.LookupByName(ctx, ev.ClassName); ok {
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if err := p.store.UpsertDailyRollup(ctx, ev.CCTVID, class.ID, day); err != nil {
			log.Printf("[VIOLATION %d] rollup upsert failed: %v", ev.CCTVID, err)
		}
	}

	url, err := p.upload.CreateSignedURL(ctx, objectName, p.cfg.SignedURLTTL)
	if err != nil {
		log.Printf("[VIOLATION %d] sign url failed: %v", ev.CCTVID, err)
		url = objectName
	}

	if p.notifier != nil {
		p.notifier.NotifyViolation(ctx, ev.CCTVID, ev.ClassName, url, now)
	}
}

// buildPolaroid crops the frame around box with padding, then pads the
// crop into a white-bordered frame with a caption strip beneath it —
// the same visual shape the original's reporting tool used for
// forwarded evidence images, reimplemented on the standard image
// package plus internal/overlay's text drawing instead of a Python
// imaging library. The caption is a single line holding the class name
// and the timestamp; the camera's location is not written on it.
func buildPolaroid(ev detect.ViolationEvent, paddingPercent float64, when time.Time) *image.RGBA {
	frame := ev.Frame
	b := frame.Bounds()

	padX := int(float64(ev.Box.X2-ev.Box.X1) * paddingPercent)
	padY := int(float64(ev.Box.Y2-ev.Box.Y1) * paddingPercent)

	x1 := clampInt(int(ev.Box.X1)-padX, b.Min.X, b.Max.X)
	y1 := clampInt(int(ev.Box.Y1)-padY, b.Min.Y, b.Max.Y)
	x2 := clampInt(int(ev.Box.X2)+padX, b.Min.X, b.Max.X)
	y2 := clampInt(int(ev.Box.Y2)+padY, b.Min.Y, b.Max.Y)
	if x2 <= x1 || y2 <= y1 {
		x1, y1, x2, y2 = b.Min.X, b.Min.Y, b.Max.X, b.Max.Y
	}

	cropW, cropH := x2-x1, y2-y1
	const border = 16
	const captionHeight = 40

	canvas := image.NewRGBA(image.Rect(0, 0, cropW+2*border, cropH+2*border+captionHeight))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: overlay.White}, image.Point{}, draw.Src)

	draw.Draw(canvas,
		image.Rect(border, border, border+cropW, border+cropH),
		frame, image.Point{X: x1, Y: y1}, draw.Src)

	caption := fmt.Sprintf("%s  %s", ev.ClassName, when.Format("2006-01-02 15:04:05"))
	overlay.TextLine(canvas, border, border+cropH+24, caption, overlay.Black)

	return canvas
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

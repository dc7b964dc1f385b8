package violation

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/technosupport/ppe-guard/internal/data"
	"github.com/technosupport/ppe-guard/internal/detect"
	"github.com/technosupport/ppe-guard/internal/tracker"
)

type fakeStore struct {
	mu      sync.Mutex
	inserts []string
	rollups int
}

func (f *fakeStore) InsertViolationEvent(ctx context.Context, cctvID int64, className string, imageURL string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, imageURL)
	return 1, nil
}

func (f *fakeStore) UpsertDailyRollup(ctx context.Context, cctvID, violationID int64, day time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollups++
	return nil
}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeUploader) Upload(ctx context.Context, objectName string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[objectName] = data
	return nil
}

func (f *fakeUploader) CreateSignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	return "https://evidence/" + objectName, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeNotifier) NotifyViolation(ctx context.Context, cctvID int64, className string, imageURL string, when time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

type fakeClassLookup struct{}

func (fakeClassLookup) LookupByName(ctx context.Context, name string) (data.ObjectClass, bool) {
	return data.ObjectClass{ID: 7, Name: name}, true
}

func testFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{10, 20, 30, 255})
		}
	}
	return img
}

func TestBuildPolaroid_PadsBoxByPercentageClampedToBounds(t *testing.T) {
	ev := detect.ViolationEvent{
		CCTVID:    1,
		TrackID:   5,
		ClassName: "no_helmet",
		Frame:     testFrame(),
		Box:       tracker.Box{X1: 90, Y1: 90, X2: 110, Y2: 110},
	}

	canvas := buildPolaroid(ev, 0.5, time.Now())

	// Box is 20x20; 0.5 padding adds 10px each side -> 40x40 crop, plus
	// the fixed 16px border on each side and the caption strip below.
	expectedW := 40 + 2*16
	assert.Equal(t, expectedW, canvas.Bounds().Dx())
}

func TestBuildPolaroid_FallsBackToFullFrameWhenBoxDegenerate(t *testing.T) {
	ev := detect.ViolationEvent{
		Frame: testFrame(),
		Box:   tracker.Box{X1: 50, Y1: 50, X2: 50, Y2: 50},
	}
	canvas := buildPolaroid(ev, 0.5, time.Now())
	assert.Equal(t, 200+2*16, canvas.Bounds().Dx())
}

func TestClampInt(t *testing.T) {
	assert.Equal(t, 0, clampInt(-5, 0, 10))
	assert.Equal(t, 10, clampInt(50, 0, 10))
	assert.Equal(t, 5, clampInt(5, 0, 10))
}

func TestProcessor_SubmitDropsOnSaturatedQueue(t *testing.T) {
	store, upload, notifier := &fakeStore{}, &fakeUploader{}, &fakeNotifier{}
	p := New(store, upload, notifier, fakeClassLookup{}, Config{QueueSize: 1, Workers: 0})

	ev := detect.ViolationEvent{CCTVID: 1, ClassName: "no_helmet", Frame: testFrame()}
	p.Submit(ev)
	// With no workers draining, a second submit should be dropped rather
	// than block the caller.
	p.Submit(ev)
	assert.Len(t, p.queue, 1)
}

func TestProcessor_RunProcessesQueuedEvents(t *testing.T) {
	store, upload, notifier := &fakeStore{}, &fakeUploader{}, &fakeNotifier{}
	p := New(store, upload, notifier, fakeClassLookup{}, Config{QueueSize: 4, Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.Submit(detect.ViolationEvent{CCTVID: 1, TrackID: 1, ClassName: "no_helmet", Frame: testFrame(), Box: tracker.Box{X1: 0, Y1: 0, X2: 20, Y2: 20}})

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.inserts) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	notifier.mu.Lock()
	assert.Equal(t, 1, notifier.calls)
	notifier.mu.Unlock()
}

// Package capture implements the per-camera stream acquisition worker
// (reconnect-with-backoff over an ffmpeg subprocess) and the shared
// frame-slot type the detection worker and preview handler both read.
package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"github.com/technosupport/ppe-guard/internal/overlay"
)

// FrameSlot is a single mutex-guarded (jpeg bytes, wall timestamp)
// pair. Two of these exist per camera — raw and annotated — so the
// preview fan-out never blocks the hot capture/detect path.
type FrameSlot struct {
	mu   sync.RWMutex
	data []byte
	ts   time.Time
}

func (s *FrameSlot) Set(data []byte) {
	s.mu.Lock()
	s.data = data
	s.ts = time.Now()
	s.mu.Unlock()
}

// Get returns a copy of the held bytes and their timestamp. Copying
// (rather than returning the slice) means the caller can hold the
// result across a network write without re-acquiring the lock.
func (s *FrameSlot) Get() ([]byte, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, s.ts
}

// Slots bundles the two frame slots a camera's workers publish into
// and its preview handler reads from.
type Slots struct {
	Raw       *FrameSlot
	Annotated *FrameSlot
}

func NewSlots() *Slots {
	return &Slots{Raw: &FrameSlot{}, Annotated: &FrameSlot{}}
}

// SeedInitializing fills both slots with an "Initializing..." frame,
// called the moment a per-camera supervisor starts new workers.
func (s *Slots) SeedInitializing() {
	frame := placeholderFrame("Initializing...", color.RGBA{255, 255, 0, 255})
	s.Raw.Set(frame)
	s.Annotated.Set(frame)
}

// placeholderFrame renders a fixed-size black frame with one line of
// centered-ish text, used for every placeholder variant below.
func placeholderFrame(text string, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	black := color.RGBA{0, 0, 0, 255}
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			img.Set(x, y, black)
		}
	}
	overlay.Label(img, 10, 30, text, c)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil
	}
	return buf.Bytes()
}

// PlaceholderStreamFailed is published when the first open fails on
// both the primary and the fallback URL.
func PlaceholderStreamFailed() []byte {
	return placeholderFrame("Stream Failed", color.RGBA{255, 0, 0, 255})
}

// PlaceholderReconnecting is published between a lost connection and a
// successful reconnect ("Stream Lost" in the original).
func PlaceholderReconnecting() []byte {
	return placeholderFrame("Stream Lost", color.RGBA{255, 0, 0, 255})
}

// PlaceholderFailedPermanently is published when the bounded reconnect
// loop exhausts its attempts — distinct from PlaceholderReconnecting
// per the original's two-placeholder behavior.
func PlaceholderFailedPermanently() []byte {
	return placeholderFrame("Stream connection failed permanently", color.RGBA{255, 0, 0, 255})
}

// PlaceholderFreeze is the preview fan-out's "camera freeze" fallback
// when neither frame slot has been updated recently.
func PlaceholderFreeze() []byte {
	return placeholderFrame("Camera Freeze", color.RGBA{128, 128, 128, 255})
}

func bannerText(reason string) string {
	return fmt.Sprintf("Stream-only: %s", reason)
}

// StreamOnlyBanner renders the overlay banner the detection worker
// draws on the canvas when running in stream-only mode.
func StreamOnlyBanner(img *image.RGBA, reason string) {
	overlay.Label(img, 10, 30, bannerText(reason), color.RGBA{255, 255, 0, 255})
}

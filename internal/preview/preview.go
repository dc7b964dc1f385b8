// Package preview serves the live MJPEG fan-out: one multipart HTTP
// response per client, fed from whichever frame slot is freshest for
// the requested camera. Grounded on the stream-level ServeHTTP found
// alongside ffmpeg-backed MJPEG capture in the wider corpus, adapted
// from a broadcast-channel-per-client model to a pull-on-tick read of
// internal/capture's shared frame slots.
package preview

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ppe-guard/internal/capture"
)

const (
	annotatedFreshFor = 5 * time.Second
	rawFreshFor       = 10 * time.Second
	tickInterval      = 150 * time.Millisecond
)

// Source resolves a camera id to the frame slots its capture/detect
// worker pair publishes into.
type Source interface {
	Slots(cctvID int64) (*capture.Slots, bool)
}

// Handler serves GET /api/video-feed?id={cctv_id}.
type Handler struct {
	source Source
}

func New(source Source) *Handler {
	return &Handler{source: source}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/video-feed", h.ServeHTTP)
}

// ServeHTTP streams multipart/x-mixed-replace frames until the client
// disconnects. Frame selection, each tick: an annotated frame younger
// than annotatedFreshFor wins; otherwise a raw frame younger than
// rawFreshFor; otherwise the camera-freeze placeholder. No frame is
// ever mixed with another — each write is a single, complete one.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Query().Get("id")
	var cctvID int64
	if _, err := fmt.Sscanf(idStr, "%d", &cctvID); err != nil || cctvID == 0 {
		http.Error(w, "id query parameter required", http.StatusBadRequest)
		return
	}

	slots, ok := h.source.Slots(cctvID)
	if !ok {
		http.Error(w, fmt.Sprintf("camera %d not active", cctvID), http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			frame := h.selectFrame(slots)
			if frame == nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, "\r\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) selectFrame(slots *capture.Slots) []byte {
	now := time.Now()

	annotated, annTS := slots.Annotated.Get()
	if len(annotated) > 0 && now.Sub(annTS) <= annotatedFreshFor {
		return annotated
	}

	raw, rawTS := slots.Raw.Get()
	if len(raw) > 0 && now.Sub(rawTS) <= rawFreshFor {
		return raw
	}

	return capture.PlaceholderFreeze()
}

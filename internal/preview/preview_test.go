package preview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/technosupport/ppe-guard/internal/capture"
)

type stubSource struct {
	slots map[int64]*capture.Slots
}

func (s *stubSource) Slots(cctvID int64) (*capture.Slots, bool) {
	slots, ok := s.slots[cctvID]
	return slots, ok
}

func TestServeHTTP_MissingIDReturnsBadRequest(t *testing.T) {
	h := New(&stubSource{})
	req := httptest.NewRequest(http.MethodGet, "/video-feed", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeHTTP_UnknownCameraReturnsNotFound(t *testing.T) {
	h := New(&stubSource{slots: map[int64]*capture.Slots{}})
	req := httptest.NewRequest(http.MethodGet, "/video-feed?id=99", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeHTTP_StreamsAtLeastOneFrame(t *testing.T) {
	slots := capture.NewSlots()
	slots.Raw.Set([]byte("raw-jpeg-bytes"))
	h := New(&stubSource{slots: map[int64]*capture.Slots{1: slots}})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/video-feed?id=1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "--frame")
	assert.Contains(t, body, "raw-jpeg-bytes")
	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", rec.Header().Get("Content-Type"))
}

func TestSelectFrame_PrefersFreshAnnotatedOverRaw(t *testing.T) {
	h := New(&stubSource{})
	slots := capture.NewSlots()
	slots.Raw.Set([]byte("raw"))
	slots.Annotated.Set([]byte("annotated"))

	frame := h.selectFrame(slots)
	assert.Equal(t, "annotated", string(frame))
}

func TestSelectFrame_FallsBackToFreezeWhenNothingFresh(t *testing.T) {
	h := New(&stubSource{})
	slots := capture.NewSlots()

	frame := h.selectFrame(slots)
	assert.Equal(t, capture.PlaceholderFreeze(), frame)
}

package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func box(x1, y1, x2, y2 float64) Box { return Box{X1: x1, Y1: y1, X2: x2, Y2: y2} }

func TestTracker_AssignsNewIDsOnFirstFrame(t *testing.T) {
	tr := New()
	out := tr.Update([]Detection{
		{Box: box(0, 0, 10, 10), ClassName: "helmet"},
		{Box: box(50, 50, 60, 60), ClassName: "no_helmet"},
	})

	assert.Len(t, out, 2)
	assert.NotEqual(t, out[0].TrackID, out[1].TrackID)
}

func TestTracker_ContinuesSameTrackAcrossFrames(t *testing.T) {
	tr := New()
	first := tr.Update([]Detection{{Box: box(0, 0, 10, 10), ClassName: "helmet"}})
	id := first[0].TrackID

	// A small shift, still high IOU, should keep the same track id.
	second := tr.Update([]Detection{{Box: box(1, 1, 11, 11), ClassName: "helmet"}})
	assert.Equal(t, id, second[0].TrackID)
}

func TestTracker_LowIOUStartsNewTrack(t *testing.T) {
	tr := New()
	first := tr.Update([]Detection{{Box: box(0, 0, 10, 10), ClassName: "helmet"}})
	id := first[0].TrackID

	// Jumping far away shares no overlap, so a new id is assigned.
	second := tr.Update([]Detection{{Box: box(500, 500, 520, 520), ClassName: "helmet"}})
	assert.NotEqual(t, id, second[0].TrackID)
}

func TestTracker_DropsTrackAfterTooManyMissedFrames(t *testing.T) {
	tr := New()
	first := tr.Update([]Detection{{Box: box(0, 0, 10, 10), ClassName: "helmet"}})
	id := first[0].TrackID

	for i := 0; i < maxMissedFrames+1; i++ {
		tr.Update(nil)
	}

	// Detection reappears at the same location; since the track aged
	// out it should get a fresh id rather than the original.
	again := tr.Update([]Detection{{Box: box(0, 0, 10, 10), ClassName: "helmet"}})
	assert.NotEqual(t, id, again[0].TrackID)
}

func TestIOU(t *testing.T) {
	a := box(0, 0, 10, 10)
	b := box(5, 5, 15, 15)
	assert.InDelta(t, 25.0/175.0, iou(a, b), 0.001)

	disjoint := box(100, 100, 110, 110)
	assert.Equal(t, 0.0, iou(a, disjoint))
}

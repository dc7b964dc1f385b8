// Package tracker implements a small IOU-matching persistent tracker
// — a ByteTrack-lite — assigning stable track ids to detections across
// frames. No Go implementation of ByteTrack exists anywhere in the
// retrieved corpus, so this is a deliberately minimal standard-library
// greedy IOU matcher rather than a port of the full algorithm.
package tracker

// Box is an axis-aligned detection box in frame pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 float64
}

func (b Box) area() float64 {
	w := b.X2 - b.X1
	h := b.Y2 - b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func iou(a, b Box) float64 {
	ix1, iy1 := max(a.X1, b.X1), max(a.Y1, b.Y1)
	ix2, iy2 := min(a.X2, b.X2), min(a.Y2, b.Y2)
	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := a.area() + b.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Detection is one raw detector output before a track id is assigned.
type Detection struct {
	Box        Box
	ClassName  string
	Confidence float64
}

// Tracked is a detection with its assigned persistent track id.
type Tracked struct {
	Detection
	TrackID int64
}

const (
	iouMatchThreshold = 0.3
	maxMissedFrames   = 30
)

type track struct {
	id     int64
	box    Box
	missed int
}

// Tracker maintains live tracks across successive calls to Update. It
// is owned by a single detection worker; callers never share a
// Tracker instance across goroutines.
type Tracker struct {
	tracks []*track
	nextID int64
}

func New() *Tracker {
	return &Tracker{nextID: 1}
}

// Update matches this frame's detections against existing tracks by
// greedy best-IOU assignment, ages out unmatched tracks, and returns
// each detection paired with its track id (new or continued).
func (t *Tracker) Update(dets []Detection) []Tracked {
	matched := make([]bool, len(dets))
	usedTrack := make(map[int]bool)
	out := make([]Tracked, len(dets))

	for ti, tr := range t.tracks {
		bestJ, bestIOU := -1, iouMatchThreshold
		for j, d := range dets {
			if matched[j] {
				continue
			}
			score := iou(tr.box, d.Box)
			if score > bestIOU {
				bestIOU, bestJ = score, j
			}
		}
		if bestJ >= 0 {
			matched[bestJ] = true
			usedTrack[ti] = true
			tr.box = dets[bestJ].Box
			tr.missed = 0
			out[bestJ] = Tracked{Detection: dets[bestJ], TrackID: tr.id}
		}
	}

	for j, d := range dets {
		if matched[j] {
			continue
		}
		nt := &track{id: t.nextID, box: d.Box}
		t.nextID++
		t.tracks = append(t.tracks, nt)
		usedTrack[len(t.tracks)-1] = true
		out[j] = Tracked{Detection: d, TrackID: nt.id}
	}

	var kept []*track
	for ti, tr := range t.tracks {
		if !usedTrack[ti] {
			tr.missed++
		}
		if tr.missed <= maxMissedFrames {
			kept = append(kept, tr)
		}
	}
	t.tracks = kept

	return out
}

package detect

import "github.com/technosupport/ppe-guard/internal/data"

// scaledPoints applies the (frame/roi) scale factors to a region's
// native-pixel-space points, recomputed once per frame since the ROI
// was drawn against whatever resolution the operator's browser used.
func scaledPoints(pts [][2]float64, scaleX, scaleY float64) []point {
	out := make([]point, len(pts))
	for i, p := range pts {
		out[i] = point{p[0] * scaleX, p[1] * scaleY}
	}
	return out
}

type point struct{ X, Y float64 }

// containsPoint is a standard ray-casting point-in-polygon test. Line
// regions never "contain" a point — they exist for overlay/tripwire
// display only, not containment.
func containsPoint(region data.Region, pts []point, p point) bool {
	if region.Type != "polygon" || len(pts) < 3 {
		return false
	}
	inside := false
	for i, j := 0, len(pts)-1; i < len(pts); j, i = i, i+1 {
		pi, pj := pts[i], pts[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}

// firstContaining returns the first region (in declared order) whose
// polygon contains center, scaled from the ROI's native resolution to
// the current frame. Returns ok=false if no region contains it.
func firstContaining(roi data.ROIConfig, frameW, frameH int, center point) (data.Region, bool) {
	scaleX, scaleY := 1.0, 1.0
	if roi.ImageWidth > 0 {
		scaleX = float64(frameW) / float64(roi.ImageWidth)
	}
	if roi.ImageHeight > 0 {
		scaleY = float64(frameH) / float64(roi.ImageHeight)
	}

	for _, r := range roi.Items {
		pts := scaledPoints(r.Points, scaleX, scaleY)
		if containsPoint(r, pts, center) {
			return r, true
		}
	}
	return data.Region{}, false
}

// regionAllows reports whether classID is permitted inside r: an
// empty AllowedViolations set means "any active violation counts".
func regionAllows(r data.Region, classID int64) bool {
	if len(r.AllowedViolations) == 0 {
		return true
	}
	for _, id := range r.AllowedViolations {
		if id == classID {
			return true
		}
	}
	return false
}

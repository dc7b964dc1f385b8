package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/technosupport/ppe-guard/internal/data"
)

func TestScaledPoints(t *testing.T) {
	pts := [][2]float64{{10, 20}, {30, 40}}
	out := scaledPoints(pts, 2.0, 0.5)
	assert.Equal(t, []point{{X: 20, Y: 10}, {X: 60, Y: 20}}, out)
}

func TestContainsPoint_InsideAndOutsideSquare(t *testing.T) {
	square := data.Region{Type: "polygon"}
	pts := []point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}

	assert.True(t, containsPoint(square, pts, point{X: 5, Y: 5}))
	assert.False(t, containsPoint(square, pts, point{X: 50, Y: 50}))
}

func TestContainsPoint_LineRegionNeverContains(t *testing.T) {
	line := data.Region{Type: "line"}
	pts := []point{{X: 0, Y: 0}, {X: 10, Y: 10}}
	assert.False(t, containsPoint(line, pts, point{X: 5, Y: 5}))
}

func TestFirstContaining_ScalesFromROIResolutionToFrame(t *testing.T) {
	roi := data.ROIConfig{
		ImageWidth: 100, ImageHeight: 100,
		Items: []data.Region{
			{Type: "polygon", Points: [][2]float64{{0, 0}, {50, 0}, {50, 50}, {0, 50}}},
		},
	}

	// Frame is double the ROI's native resolution, so the region's
	// bottom-right corner lands at (100,100) in frame space.
	region, ok := firstContaining(roi, 200, 200, point{X: 90, Y: 90})
	assert.True(t, ok)
	assert.Equal(t, roi.Items[0].Type, region.Type)

	_, ok = firstContaining(roi, 200, 200, point{X: 150, Y: 150})
	assert.False(t, ok)
}

func TestFirstContaining_NoRegionsReturnsNotOK(t *testing.T) {
	_, ok := firstContaining(data.ROIConfig{}, 100, 100, point{X: 1, Y: 1})
	assert.False(t, ok)
}

func TestRegionAllows_EmptyAllowListAllowsAny(t *testing.T) {
	r := data.Region{}
	assert.True(t, regionAllows(r, 42))
}

func TestRegionAllows_RestrictsToListedClasses(t *testing.T) {
	r := data.Region{AllowedViolations: []int64{1, 2}}
	assert.True(t, regionAllows(r, 1))
	assert.False(t, regionAllows(r, 3))
}

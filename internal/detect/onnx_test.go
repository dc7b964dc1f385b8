package detect

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/technosupport/ppe-guard/internal/tracker"
)

func TestLetterbox_FillsPaddingWithNeutralGray(t *testing.T) {
	// A wide image (320x160) letterboxed into a square is padded
	// top/bottom, leaving the corner pixels at the neutral 0.5 fill.
	img := image.NewRGBA(image.Rect(0, 0, 320, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}

	dst := make([]float32, 3*8*8)
	letterbox(img, dst, 8)

	// Top-left corner of an 8x8 canvas for a 320x160 source scales to
	// ow=8, oh=4, offY=2 — so row 0 is still padding.
	assert.Equal(t, float32(0.5), dst[0])
}

func TestDecodeYOLOOutput_FiltersBelowConfidenceAndPicksBestClass(t *testing.T) {
	classNames := []string{"helmet", "no_helmet"}
	n := 2 // two candidate boxes
	raw := make([]float32, (4+len(classNames))*n)

	// box 0: center (10,10) size (4,4), class "no_helmet" at 0.9
	raw[0*n+0] = 10
	raw[1*n+0] = 10
	raw[2*n+0] = 4
	raw[3*n+0] = 4
	raw[4*n+0] = 0.1 // helmet score
	raw[5*n+0] = 0.9 // no_helmet score

	// box 1: low confidence everywhere, should be dropped
	raw[0*n+1] = 50
	raw[1*n+1] = 50
	raw[2*n+1] = 4
	raw[3*n+1] = 4
	raw[4*n+1] = 0.05
	raw[5*n+1] = 0.05

	dets := decodeYOLOOutput(raw, classNames, 0.5)
	assert.Len(t, dets, 1)
	assert.Equal(t, "no_helmet", dets[0].ClassName)
	assert.InDelta(t, 0.9, dets[0].Confidence, 0.001)
	assert.InDelta(t, 8, dets[0].Box.X1, 0.001)
	assert.InDelta(t, 12, dets[0].Box.X2, 0.001)
}

func TestDecodeYOLOOutput_NoClassesReturnsNil(t *testing.T) {
	assert.Nil(t, decodeYOLOOutput([]float32{1, 2, 3}, nil, 0.5))
}

func TestNonMaxSuppress_DropsOverlappingSameClassBox(t *testing.T) {
	dets := []tracker.Detection{
		{Box: tracker.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, ClassName: "no_helmet", Confidence: 0.9},
		{Box: tracker.Box{X1: 1, Y1: 1, X2: 11, Y2: 11}, ClassName: "no_helmet", Confidence: 0.8},
		{Box: tracker.Box{X1: 100, Y1: 100, X2: 110, Y2: 110}, ClassName: "no_helmet", Confidence: 0.7},
	}
	kept := nonMaxSuppress(dets, 0.45)
	assert.Len(t, kept, 2)
}

func TestNonMaxSuppress_KeepsOverlappingDifferentClasses(t *testing.T) {
	dets := []tracker.Detection{
		{Box: tracker.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, ClassName: "helmet"},
		{Box: tracker.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, ClassName: "no_helmet"},
	}
	kept := nonMaxSuppress(dets, 0.45)
	assert.Len(t, kept, 2)
}

func TestBoxIOU(t *testing.T) {
	a := tracker.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
	b := tracker.Box{X1: 5, Y1: 5, X2: 15, Y2: 15}
	assert.InDelta(t, 25.0/175.0, boxIOU(a, b), 0.001)

	disjoint := tracker.Box{X1: 100, Y1: 100, X2: 110, Y2: 110}
	assert.Equal(t, 0.0, boxIOU(a, disjoint))
}

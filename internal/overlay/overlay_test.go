package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToRGBA(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 4))
	out := ToRGBA(src)
	assert.Equal(t, src.Bounds(), out.Bounds())
}

func TestPolylineDrawsWithinBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	red := color.RGBA{255, 0, 0, 255}
	Polyline(img, []Point{{X: 1, Y: 1}, {X: 8, Y: 1}, {X: 8, Y: 8}}, red, true)

	assert.Equal(t, red, img.At(1, 1))
	assert.Equal(t, red, img.At(8, 1))
}

func TestPolylineIgnoresFewerThanTwoPoints(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	Polyline(img, []Point{{X: 1, Y: 1}}, color.RGBA{255, 0, 0, 255}, false)

	blank := color.RGBA{0, 0, 0, 0}
	assert.Equal(t, blank, img.At(1, 1))
}

func TestBoxStaysWithinBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	green := color.RGBA{0, 255, 0, 255}
	// A box larger than the canvas should not panic.
	Box(img, 5, 5, 100, 100, green, 2)

	assert.Equal(t, green, img.At(5, 5))
}

func TestDetectionLabel(t *testing.T) {
	assert.Equal(t, "no-helmet 0.87", DetectionLabel("no-helmet", 0.87))
}

func TestLabelClampsNegativeOrigin(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	// Should not panic for an origin above/left of the canvas.
	Label(img, -5, -5, "hi", Black)
}

// Package overlay draws ROI polylines, detection boxes, text labels,
// and the evidence "polaroid" strip onto decoded frames. Drawing
// primitives are adapted from the MJPEG stream overlay code
// (drawBox/drawLabel) generalized to polylines and multi-line banners.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ToRGBA copies any decoded image into a fresh *image.RGBA canvas so
// drawing operations never mutate the decoder's backing image.
func ToRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, src, b.Min, draw.Src)
	return rgba
}

// Point is a scaled (x,y) in frame pixel space.
type Point struct{ X, Y float64 }

// Polyline draws a connected, non-closed set of line segments through
// pts, closing polygon back to the first point when closed is true.
func Polyline(img *image.RGBA, pts []Point, c color.RGBA, closed bool) {
	if len(pts) < 2 {
		return
	}
	for i := 0; i < len(pts)-1; i++ {
		line(img, pts[i], pts[i+1], c)
	}
	if closed {
		line(img, pts[len(pts)-1], pts[0], c)
	}
}

// line draws a single segment with Bresenham's algorithm.
func line(img *image.RGBA, a, b Point, c color.RGBA) {
	x0, y0 := int(a.X), int(a.Y)
	x1, y1 := int(b.X), int(b.Y)
	bounds := img.Bounds()

	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		if x0 >= bounds.Min.X && x0 < bounds.Max.X && y0 >= bounds.Min.Y && y0 < bounds.Max.Y {
			img.Set(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Box draws a rectangle outline of the given thickness.
func Box(img *image.RGBA, x, y, w, h int, c color.RGBA, thickness int) {
	bounds := img.Bounds()
	for t := 0; t < thickness; t++ {
		for i := x; i < x+w && i < bounds.Max.X; i++ {
			setIf(img, bounds, i, y+t, c)
			setIf(img, bounds, i, y+h-t, c)
		}
		for j := y; j < y+h && j < bounds.Max.Y; j++ {
			setIf(img, bounds, x+t, j, c)
			setIf(img, bounds, x+w-t, j, c)
		}
	}
}

func setIf(img *image.RGBA, bounds image.Rectangle, x, y int, c color.RGBA) {
	if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
		img.Set(x, y, c)
	}
}

// Label draws text with a translucent background box, used for both
// detection box labels ("class conf") and the stream-only banner.
func Label(img *image.RGBA, x, y int, text string, c color.RGBA) {
	if y < 10 {
		y = 10
	}
	if x < 0 {
		x = 0
	}

	bg := color.RGBA{0, 0, 0, 180}
	textWidth := len(text) * 7
	bounds := img.Bounds()
	for dy := -2; dy < 12; dy++ {
		for dx := -2; dx < textWidth+2; dx++ {
			setIf(img, bounds, x+dx, y+dy, bg)
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(text)
}

// DetectionLabel formats a "class conf" label, e.g. "no-helmet 0.87".
func DetectionLabel(className string, confidence float64) string {
	return fmt.Sprintf("%s %.2f", className, confidence)
}

// Black and White are convenience colors for the polaroid strip text
// and background, matching the "small black sans-serif on white" spec.
var (
	Black = color.RGBA{0, 0, 0, 255}
	White = color.RGBA{255, 255, 255, 255}
)

// TextLine draws one line of plain text at (x,y) using the default
// bitmap face, used for the polaroid strip's caption line.
func TextLine(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

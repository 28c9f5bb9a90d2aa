package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Font defines the text style of target labels and stats drawn on debug
// frames
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// Pad is the background padding around label text
	Pad int
	// Baseline is the gap kept under the text baseline
	Baseline int
}

// DefaultFont returns the label style used by the tracking overlays
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		Pad:       4,
		Baseline:  6,
	}
}

// Label measures the text and returns the filled background rectangle and
// text origin for a label sitting above the anchor point, the anchor
// being a target outline's top left corner
func (f Font) Label(anchor image.Point, text string) (image.Rectangle, image.Point) {

	size := gocv.GetTextSize(text, f.Face, f.Scale, f.Thickness)

	rect := image.Rect(anchor.X-f.Pad,
		anchor.Y-size.Y-f.Pad-f.Baseline,
		anchor.X+size.X+f.Pad, anchor.Y)

	return rect, image.Pt(anchor.X, anchor.Y-f.Baseline)
}

// Draw renders the text at the given origin in the label style
func (f Font) Draw(img *gocv.Mat, text string, origin image.Point) {
	gocv.PutTextWithParams(img, text, origin, f.Face, f.Scale, f.Color,
		f.Thickness, f.LineType, false)
}

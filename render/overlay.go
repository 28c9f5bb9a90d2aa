// Package render draws detection and tracking results onto video frames
// for debug views and streaming demos.
package render

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r3"

	planartrack "github.com/vantagecv/go-planartrack"
)

// boxLabel records the details of a text label drawn after all outlines
// so labels stay the top most layer
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// TargetOutlines renders the corner outline of every observed target with
// a label of its identity and confidence
func TargetOutlines(img *gocv.Mat, observations []planartrack.Observation,
	font Font, lineThickness int) {

	// keep a record of all labels for later rendering
	boxLabels := make([]boxLabel, 0)

	for i, obs := range observations {

		useClr := trackColors[i%len(trackColors)]

		drawQuad(img, obs.Corners, useClr, lineThickness)

		text := fmt.Sprintf("%s %.2f", obs.Target, obs.Confidence)

		anchor := image.Pt(int(obs.Corners[0].X), int(obs.Corners[0].Y))
		rect, textPos := font.Label(anchor, text)

		boxLabels = append(boxLabels, boxLabel{
			rect:    rect,
			clr:     useClr,
			text:    text,
			textPos: textPos,
		})
	}

	// draw all precalculated labels so they are the top most layer on the
	// image and don't get overlapped by outlines
	for _, box := range boxLabels {
		gocv.Rectangle(img, box.rect, box.clr, -1)
		font.Draw(img, box.text, box.textPos)
	}
}

// drawQuad draws the four edges of a target outline
func drawQuad(img *gocv.Mat, q planartrack.Quad, clr color.RGBA,
	thickness int) {

	for i := 0; i < 4; i++ {
		a := q[i]
		b := q[(i+1)%4]

		gocv.Line(img, image.Pt(int(a.X), int(a.Y)),
			image.Pt(int(b.X), int(b.Y)), clr, thickness)
	}
}

// TrackGizmos projects a coordinate axis gizmo at every tracked target's
// pose.  Axis length is in meters, the camera pose maps world space back
// into the rendered camera's view
func TrackGizmos(img *gocv.Mat, snapshots []planartrack.TrackSnapshot,
	cameraPose planartrack.Pose, intr planartrack.Intrinsics,
	axisLength float64, lineThickness int) {

	worldToCamera := cameraPose.Inverse()

	for _, snap := range snapshots {

		if snap.Status != planartrack.StatusTracked {
			continue
		}

		origin := snap.Pose.Translation

		axes := [3]r3.Vec{
			snap.Pose.TransformPoint(r3.Vec{X: axisLength}),
			snap.Pose.TransformPoint(r3.Vec{Y: axisLength}),
			snap.Pose.TransformPoint(r3.Vec{Z: axisLength}),
		}

		originPx, ok := project(worldToCamera, intr, origin)

		if !ok {
			continue
		}

		for i, axis := range axes {

			tipPx, ok := project(worldToCamera, intr, axis)

			if !ok {
				continue
			}

			gocv.Line(img, originPx, tipPx, axisColors[i], lineThickness)
		}

		gocv.Circle(img, originPx, 3, TrackColor(snap.TrackID), -1)
	}
}

// project maps a world point into pixel coordinates through the camera
func project(worldToCamera planartrack.Pose, intr planartrack.Intrinsics,
	p r3.Vec) (image.Point, bool) {

	cam := worldToCamera.TransformPoint(p)

	px, ok := intr.Project(cam)

	if !ok {
		return image.Point{}, false
	}

	return image.Pt(int(px.X), int(px.Y)), true
}

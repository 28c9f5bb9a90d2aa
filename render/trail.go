package render

import (
	"image/color"

	"gocv.io/x/gocv"

	planartrack "github.com/vantagecv/go-planartrack"
	"github.com/vantagecv/go-planartrack/tracker"
)

// TrailStyle defines the parameters used for rendering the trail style
type TrailStyle struct {
	// LineSame defines if the color of the trail line should be the
	// same color as that of the target outline.  If set to false then use
	// the color specified at LineColor
	LineSame      bool
	LineColor     color.RGBA
	LineThickness int
	// CircleSame defines if the color of the endpoint circle should be the
	// same color as that of the target outline.  If set to false then use
	// the color specified at CircleColor
	CircleSame   bool
	CircleColor  color.RGBA
	CircleRadius int
}

// DefaultTrailStyle returns default trail style settings
func DefaultTrailStyle() TrailStyle {
	return TrailStyle{
		LineSame:      false,
		LineColor:     Yellow,
		LineThickness: 1,
		CircleSame:    true,
		CircleColor:   Pink,
		CircleRadius:  3,
	}
}

// Trail draws each track's world space motion history projected into the
// camera view
func Trail(img *gocv.Mat, snapshots []planartrack.TrackSnapshot,
	trail *tracker.PoseTrail, cameraPose planartrack.Pose,
	intr planartrack.Intrinsics, style TrailStyle) {

	worldToCamera := cameraPose.Inverse()

	for _, snap := range snapshots {

		objClr := TrackColor(snap.TrackID)

		// determine style colors to use
		lineClr := objClr
		circleClr := objClr

		if !style.LineSame {
			lineClr = style.LineColor
		}

		if !style.CircleSame {
			circleClr = style.CircleColor
		}

		points := trail.Points(snap.TrackID)

		if len(points) <= 2 {
			continue
		}

		for i := 1; i < len(points); i++ {

			a, okA := project(worldToCamera, intr, points[i-1])
			b, okB := project(worldToCamera, intr, points[i])

			if !okA || !okB {
				continue
			}

			// draw line segment of trail
			gocv.Line(img, a, b, lineClr, style.LineThickness)

			if i == len(points)-1 {
				// mark the current position
				gocv.Circle(img, b, style.CircleRadius, circleClr, -1)
			}
		}
	}
}

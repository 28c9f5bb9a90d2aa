package detect

import (
	"image"
	"math"

	clipper "github.com/ctessum/go.clipper"

	planartrack "github.com/vantagecv/go-planartrack"
)

// clipperScale converts subpixel coordinates to the integer domain the
// clipper library works in
const clipperScale = 100.0

// approxQuad reduces a closed contour to four corner points using
// Douglas-Peucker simplification.  The epsilon tolerance is relative to
// the contour length.  Returns false when the contour does not reduce to
// a quadrilateral
func approxQuad(c contour, epsilonRate float64) (planartrack.Quad, bool) {

	if len(c) < 4 {
		return planartrack.Quad{}, false
	}

	eps := epsilonRate * float64(len(c))

	// split the closed curve at the two most distant points so each half
	// is an open chain the simplification can recurse on
	a := farthestFrom(c, 0)
	b := farthestFrom(c, a)

	if a == b {
		return planartrack.Quad{}, false
	}

	if a > b {
		a, b = b, a
	}

	chain1 := c[a : b+1]

	chain2 := make([]image.Point, 0, len(c)-(b-a)+1)
	chain2 = append(chain2, c[b:]...)
	chain2 = append(chain2, c[:a+1]...)

	corners := []image.Point{c[a]}
	corners = dpSimplify(chain1, eps, corners)
	corners = append(corners, c[b])
	corners = dpSimplify(chain2, eps, corners)

	// prune nearly collinear points left over from noisy boundaries
	for len(corners) > 4 {

		dropIdx := -1
		dropDist := eps * 2

		for i := range corners {
			prev := corners[(i+len(corners)-1)%len(corners)]
			next := corners[(i+1)%len(corners)]

			d := perpDistance(corners[i], prev, next)

			if d < dropDist {
				dropDist = d
				dropIdx = i
			}
		}

		if dropIdx < 0 {
			break
		}

		corners = append(corners[:dropIdx], corners[dropIdx+1:]...)
	}

	if len(corners) != 4 {
		return planartrack.Quad{}, false
	}

	var q planartrack.Quad

	for i, p := range corners {
		q[i] = planartrack.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}

	return orderClockwise(q), true
}

// farthestFrom returns the contour index with the largest distance to the
// point at index from
func farthestFrom(c contour, from int) int {

	best := from
	bestDist := -1.0

	for i := range c {
		dx := float64(c[i].X - c[from].X)
		dy := float64(c[i].Y - c[from].Y)
		d := dx*dx + dy*dy

		if d > bestDist {
			bestDist = d
			best = i
		}
	}

	return best
}

// dpSimplify appends the Douglas-Peucker kept interior points of an open
// chain to out.  The chain endpoints themselves are not appended
func dpSimplify(chain []image.Point, eps float64, out []image.Point) []image.Point {

	if len(chain) < 3 {
		return out
	}

	first := chain[0]
	last := chain[len(chain)-1]

	splitIdx := -1
	splitDist := eps

	for i := 1; i < len(chain)-1; i++ {
		d := perpDistance(chain[i], first, last)

		if d > splitDist {
			splitDist = d
			splitIdx = i
		}
	}

	if splitIdx < 0 {
		return out
	}

	out = dpSimplify(chain[:splitIdx+1], eps, out)
	out = append(out, chain[splitIdx])
	out = dpSimplify(chain[splitIdx:], eps, out)

	return out
}

// perpDistance returns the perpendicular distance of point p from the
// line through a and b
func perpDistance(p, a, b image.Point) float64 {

	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)

	length := math.Sqrt(dx*dx + dy*dy)

	if length == 0 {
		dx = float64(p.X - a.X)
		dy = float64(p.Y - a.Y)
		return math.Sqrt(dx*dx + dy*dy)
	}

	return math.Abs(dy*float64(p.X-a.X)-dx*float64(p.Y-a.Y)) / length
}

// orderClockwise ensures the quad corners run clockwise on screen with
// the y axis pointing down
func orderClockwise(q planartrack.Quad) planartrack.Quad {

	var acc float32

	for i := range q {
		j := (i + 1) % 4
		acc += q[i].X*q[j].Y - q[j].X*q[i].Y
	}

	// positive shoelace sum is clockwise in image coordinates
	if acc < 0 {
		q[1], q[3] = q[3], q[1]
	}

	return q
}

// expandQuad offsets the quad outline outwards by a distance derived from
// its area, perimeter and the given ratio.  This recovers border pixels
// swallowed by aggressive thresholding on low contrast frames.  The
// original quad is returned when the offset result is not a quadrilateral
func expandQuad(q planartrack.Quad, ratio float64) planartrack.Quad {

	perimeter := float64(q.Perimeter())

	if perimeter == 0 {
		return q
	}

	distance := float64(q.Area()) * ratio / perimeter

	// convert the corners to a clipper path
	var path clipper.Path

	for _, p := range q {
		path = append(path, &clipper.IntPoint{
			X: clipper.CInt(math.Round(float64(p.X) * clipperScale)),
			Y: clipper.CInt(math.Round(float64(p.Y) * clipperScale)),
		})
	}

	// create a ClipperOffset object and add the path
	co := clipper.NewClipperOffset()
	co.AddPath(path, clipper.JtMiter, clipper.EtClosedPolygon)

	// execute the offset operation
	solution := co.Execute(distance * clipperScale)

	if len(solution) != 1 || len(solution[0]) != 4 {
		return q
	}

	// the offset polygon may start at a different corner, map each point
	// back to the nearest original corner to keep the ordering stable
	var out planartrack.Quad

	for _, pt := range solution[0] {

		p := planartrack.Point2f{
			X: float32(float64(pt.X) / clipperScale),
			Y: float32(float64(pt.Y) / clipperScale),
		}

		nearest := 0
		nearestDist := float32(math.MaxFloat32)

		for i := range q {
			if d := p.Dist(q[i]); d < nearestDist {
				nearestDist = d
				nearest = i
			}
		}

		out[nearest] = p
	}

	return out
}

// refineCorners recomputes the quad corners as the intersections of least
// squares lines fitted to the contour points along each edge.  Contour
// points close to a corner are excluded from the fits.  The original quad
// is returned when an edge has too few supporting points or two fitted
// lines are nearly parallel
func refineCorners(q planartrack.Quad, c contour) planartrack.Quad {

	type fitAcc struct {
		n        int
		sx, sy   float64
		sxx, syy float64
		sxy      float64
	}

	var fits [4]fitAcc

	for _, p := range c {

		px := float64(p.X)
		py := float64(p.Y)

		// assign the point to the nearest edge unless it sits in the
		// corner exclusion zone
		edge := -1
		edgeDist := 3.0

		for i := 0; i < 4; i++ {
			a := q[i]
			b := q[(i+1)%4]

			edgeLen := float64(a.Dist(b))

			if edgeLen == 0 {
				continue
			}

			// projection parameter along the edge
			t := ((px-float64(a.X))*float64(b.X-a.X) +
				(py-float64(a.Y))*float64(b.Y-a.Y)) / (edgeLen * edgeLen)

			if t < 0.15 || t > 0.85 {
				continue
			}

			d := perpDistance(p, image.Point{X: int(a.X), Y: int(a.Y)},
				image.Point{X: int(b.X), Y: int(b.Y)})

			if d < edgeDist {
				edgeDist = d
				edge = i
			}
		}

		if edge < 0 {
			continue
		}

		f := &fits[edge]
		f.n++
		f.sx += px
		f.sy += py
		f.sxx += px * px
		f.syy += py * py
		f.sxy += px * py
	}

	// total least squares line per edge: a point on the line and its
	// direction from the dominant eigenvector of the point covariance
	type line struct {
		px, py, dx, dy float64
	}

	var lines [4]line

	for i := range fits {

		f := fits[i]

		if f.n < 8 {
			return q
		}

		mx := f.sx / float64(f.n)
		my := f.sy / float64(f.n)

		cxx := f.sxx/float64(f.n) - mx*mx
		cyy := f.syy/float64(f.n) - my*my
		cxy := f.sxy/float64(f.n) - mx*my

		theta := 0.5 * math.Atan2(2*cxy, cxx-cyy)

		lines[i] = line{
			px: mx,
			py: my,
			dx: math.Cos(theta),
			dy: math.Sin(theta),
		}
	}

	var out planartrack.Quad

	for i := 0; i < 4; i++ {

		// corner i sits at the intersection of edge i-1 and edge i
		l1 := lines[(i+3)%4]
		l2 := lines[i]

		det := l1.dx*l2.dy - l1.dy*l2.dx

		if math.Abs(det) < 1e-6 {
			return q
		}

		t := ((l2.px-l1.px)*l2.dy - (l2.py-l1.py)*l2.dx) / det

		out[i] = planartrack.Point2f{
			X: float32(l1.px + t*l1.dx),
			Y: float32(l1.py + t*l1.dy),
		}
	}

	return out
}

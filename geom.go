package planartrack

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Point2f represents a subpixel image coordinate
type Point2f struct {
	X, Y float32
}

// Dist returns the euclidean distance to another point
func (p Point2f) Dist(other Point2f) float32 {
	dx := float64(p.X - other.X)
	dy := float64(p.Y - other.Y)
	return float32(math.Sqrt(dx*dx + dy*dy))
}

// Quad represents the four corners of a planar target in image coordinates.
// Corners are stored in clockwise order (image coordinates, y axis down)
// starting from the target's top left corner
type Quad [4]Point2f

// Center returns the center point of the quad
func (q Quad) Center() Point2f {
	var cx, cy float32

	for _, p := range q {
		cx += p.X
		cy += p.Y
	}

	return Point2f{X: cx / 4, Y: cy / 4}
}

// Perimeter returns the length of the quad outline
func (q Quad) Perimeter() float32 {
	var sum float32

	for i := range q {
		sum += q[i].Dist(q[(i+1)%4])
	}

	return sum
}

// Area returns the enclosed area of the quad using the shoelace formula
func (q Quad) Area() float32 {

	var acc float32

	for i := range q {
		j := (i + 1) % 4
		acc += q[i].X*q[j].Y - q[j].X*q[i].Y
	}

	return float32(math.Abs(float64(acc))) / 2
}

// IsConvex reports whether the quad is convex, ie: all cross products of
// consecutive edges share the same sign
func (q Quad) IsConvex() bool {

	var pos, neg bool

	for i := range q {
		a := q[i]
		b := q[(i+1)%4]
		c := q[(i+2)%4]

		cross := (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)

		if cross > 0 {
			pos = true
		} else if cross < 0 {
			neg = true
		}
	}

	return !(pos && neg)
}

// MinEdge returns the length of the shortest quad edge
func (q Quad) MinEdge() float32 {

	minVal := q[0].Dist(q[1])

	for i := 1; i < 4; i++ {
		d := q[i].Dist(q[(i+1)%4])

		if d < minVal {
			minVal = d
		}
	}

	return minVal
}

// Homography is a 3x3 planar projective transform in row major order
type Homography [9]float64

// IdentityHomography returns the identity transform
func IdentityHomography() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// ApplyXY transforms the point (x, y) and returns the projected coordinates
func (h Homography) ApplyXY(x, y float64) (float64, float64) {

	w := h[6]*x + h[7]*y + h[8]

	if w == 0 {
		return 0, 0
	}

	return (h[0]*x + h[1]*y + h[2]) / w, (h[3]*x + h[4]*y + h[5]) / w
}

// Apply transforms a point through the homography
func (h Homography) Apply(p Point2f) Point2f {
	x, y := h.ApplyXY(float64(p.X), float64(p.Y))
	return Point2f{X: float32(x), Y: float32(y)}
}

// Mul composes two homographies, the result applies other first and then h
func (h Homography) Mul(other Homography) Homography {

	var res Homography

	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			var sum float64

			for k := 0; k < 3; k++ {
				sum += h[r*3+k] * other[k*3+c]
			}

			res[r*3+c] = sum
		}
	}

	return res
}

// Inverse returns the inverse transform
func (h Homography) Inverse() (Homography, error) {

	m := mat.NewDense(3, 3, h[:])

	var inv mat.Dense

	if err := inv.Inverse(m); err != nil {
		return Homography{}, errors.New("homography is singular")
	}

	var res Homography
	copy(res[:], inv.RawMatrix().Data)

	return res, nil
}

// HomographyFromQuad computes the exact homography mapping the four src
// corners onto the four dst corners by solving the 8x8 linear system of
// the direct linear transform
func HomographyFromQuad(src, dst Quad) (Homography, error) {

	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		x := float64(src[i].X)
		y := float64(src[i].Y)
		u := float64(dst[i].X)
		v := float64(dst[i].Y)

		a.SetRow(i*2, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		a.SetRow(i*2+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})

		b.SetVec(i*2, u)
		b.SetVec(i*2+1, v)
	}

	var sol mat.VecDense

	if err := sol.SolveVec(a, b); err != nil {
		return Homography{}, errors.New("degenerate point configuration")
	}

	var h Homography

	for i := 0; i < 8; i++ {
		h[i] = sol.AtVec(i)
	}

	h[8] = 1

	return h, nil
}

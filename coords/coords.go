// Package coords implements the affine transformations of PDF user space.
package coords

import (
	"errors"
	"math"
)

// Matrix is [a b c d e f], mapping (x, y) to (ax+cy+e, bx+dy+f).
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

func Scale(sx, sy float64) Matrix { return Matrix{sx, 0, 0, sy, 0, 0} }

// Rotate turns counterclockwise by angle radians.
func Rotate(angle float64) Matrix {
	c, s := math.Cos(angle), math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// Multiply returns m followed by o, the matrix cm would produce for m when
// o is the current transformation.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

var ErrSingular = errors.New("matrix singular")

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, ErrSingular
	}
	return Matrix{
		m[3] / det, -m[1] / det,
		-m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det, (m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

// Rect is the axis aligned box with corners (LLX, LLY) and (URX, URY).
type Rect struct{ LLX, LLY, URX, URY float64 }

// Place returns the matrix that maps the unit square onto r, the way an
// image XObject is placed.
func Place(r Rect) Matrix {
	return Scale(r.URX-r.LLX, r.URY-r.LLY).Multiply(Translate(r.LLX, r.LLY))
}

// Bounds returns the bounding box of r after transformation by m.
func (m Matrix) Bounds(r Rect) Rect {
	pts := [4]Point{
		m.Transform(Point{r.LLX, r.LLY}),
		m.Transform(Point{r.URX, r.LLY}),
		m.Transform(Point{r.LLX, r.URY}),
		m.Transform(Point{r.URX, r.URY}),
	}
	out := Rect{pts[0].X, pts[0].Y, pts[0].X, pts[0].Y}
	for _, p := range pts[1:] {
		out.LLX = math.Min(out.LLX, p.X)
		out.LLY = math.Min(out.LLY, p.Y)
		out.URX = math.Max(out.URX, p.X)
		out.URY = math.Max(out.URY, p.Y)
	}
	return out
}

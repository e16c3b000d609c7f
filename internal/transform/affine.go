// Package transform resolves body poses into shape-to-ground affine transforms.
package transform

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Affine is a rigid 2D transform: p' = Rot*p + Offset.
type Affine struct {
	Offset mgl64.Vec2 `json:"offset"`
	Rot    mgl64.Mat2 `json:"rot"`
}

// Identity returns the transform that leaves every point in place.
func Identity() Affine {
	return Affine{Rot: mgl64.Ident2()}
}

// Make builds the transform that rotates by theta and then translates by (x, y).
func Make(x, y, theta float64) Affine {
	return Affine{
		Offset: mgl64.Vec2{x, y},
		Rot:    mgl64.Rotate2D(theta),
	}
}

// Append returns the transform that applies t first and next second, i.e. next∘t.
// The order is significant.
func Append(t, next Affine) Affine {
	return Affine{
		Offset: next.Rot.Mul2x1(t.Offset).Add(next.Offset),
		Rot:    next.Rot.Mul2(t.Rot),
	}
}

// Apply maps a point through the transform.
func (a Affine) Apply(x, y float64) (float64, float64) {
	p := a.Rot.Mul2x1(mgl64.Vec2{x, y}).Add(a.Offset)
	return p.X(), p.Y()
}

// Angle returns the rotation carried by the transform, in radians.
func (a Affine) Angle() float64 {
	return math.Atan2(a.Rot.At(1, 0), a.Rot.At(0, 0))
}

// ApproxEqual compares two transforms component-wise within eps.
func (a Affine) ApproxEqual(b Affine, eps float64) bool {
	return a.Offset.ApproxEqualThreshold(b.Offset, eps) && a.Rot.ApproxEqualThreshold(b.Rot, eps)
}

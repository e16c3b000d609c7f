package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kinereplay/backend/internal/models"
)

// Mapper converts user coordinates to canvas pixels. The axis with the smaller
// scale sets a common scale for both, the viewport is centred on the canvas
// and the y axis is flipped.
type Mapper struct {
	scale  float64
	cx, cy float64 // viewport centre, user units
	halfW  float64
	halfH  float64
}

// NewMapper fits the viewport into a width×height canvas.
func NewMapper(v models.Viewport, width, height int) Mapper {
	w, h := float64(width), float64(height)
	return Mapper{
		scale: math.Min(w/(v.XMax-v.XMin), h/(v.YMax-v.YMin)),
		cx:    (v.XMin + v.XMax) / 2,
		cy:    (v.YMin + v.YMax) / 2,
		halfW: w / 2,
		halfH: h / 2,
	}
}

// ToPixel maps a user point to canvas pixels.
func (m Mapper) ToPixel(x, y float64) mgl64.Vec2 {
	return mgl64.Vec2{
		m.halfW + (x-m.cx)*m.scale,
		m.halfH - (y-m.cy)*m.scale,
	}
}

// Length maps a user distance to pixels.
func (m Mapper) Length(d float64) float64 { return d * m.scale }

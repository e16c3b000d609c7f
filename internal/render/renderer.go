// Package render turns a resolved scene into primitive drawing calls on a
// pixel canvas.
package render

import "github.com/go-gl/mathgl/mgl64"

// Anchor says which point of a text box sits at the given position.
type Anchor int

const (
	AnchorTopLeft Anchor = iota
	AnchorTop
	AnchorTopRight
	AnchorLeft
	AnchorCenter
	AnchorRight
	AnchorBottomLeft
	AnchorBottom
	AnchorBottomRight
)

// Renderer is a drawing backend. All coordinates are canvas pixels with the
// origin at the top left and y growing downward. Colors are in [0, 1].
type Renderer interface {
	// Start begins a frame and clears the canvas.
	Start()
	// Finish presents the frame.
	Finish()

	SetColor(r, g, b float64)
	SetLineWidth(w float64)

	Line(x1, y1, x2, y2 float64)
	RectFilled(x1, y1, x2, y2 float64)
	RectOutline(x1, y1, x2, y2 float64)
	CircleFilled(cx, cy, radius float64)
	CircleOutline(cx, cy, radius float64)
	// PolygonFilled fills the closed polygon through pts.
	PolygonFilled(pts []mgl64.Vec2)
	// PolygonOutline strokes the open polyline through pts.
	PolygonOutline(pts []mgl64.Vec2)
	Text(s string, x, y float64, anchor Anchor)

	CanvasSize() (width, height int)
}

// NormalizeRect orders two corners into (left, top, right, bottom).
func NormalizeRect(x1, y1, x2, y2 float64) (float64, float64, float64, float64) {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return x1, y1, x2, y2
}

// AnchorOrigin returns the top-left corner of a w×h text box anchored at (x, y).
func AnchorOrigin(a Anchor, x, y, w, h float64) (float64, float64) {
	switch a {
	case AnchorTop, AnchorCenter, AnchorBottom:
		x -= w / 2
	case AnchorTopRight, AnchorRight, AnchorBottomRight:
		x -= w
	}
	switch a {
	case AnchorLeft, AnchorCenter, AnchorRight:
		y -= h / 2
	case AnchorBottomLeft, AnchorBottom, AnchorBottomRight:
		y -= h
	}
	return x, y
}

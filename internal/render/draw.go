package render

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kinereplay/backend/internal/models"
	"github.com/kinereplay/backend/internal/scene"
)

const (
	springCoils     = 8
	springLead      = 0.1 // fraction of the length drawn straight at each end
	springAmplitude = 0.08
	hashTicks       = 10
	csAxisFraction  = 0.05 // axis length relative to viewport width
	minSpringPixels = 3
	labelPad        = 2
)

var (
	axisXColor = models.Color{R: 1}
	axisYColor = models.Color{G: 1}
	textColor  = models.Color{R: 1, G: 1, B: 1}
)

// DrawScene draws the scene's current resolved state as one frame. A
// non-empty status is printed in the top-left corner.
func DrawScene(r Renderer, s *scene.Scene, status string) {
	w, h := r.CanvasSize()
	m := NewMapper(s.Viewport(), w, h)

	r.Start()
	for _, g := range s.Grounds() {
		drawGround(r, m, g)
	}
	for _, c := range s.Connectors() {
		drawConnector(r, m, s, c)
	}
	for handle := 0; handle < s.Len(); handle++ {
		drawBody(r, m, s, handle)
	}
	if status != "" {
		setColor(r, textColor)
		r.Text(status, labelPad, labelPad, AnchorTopLeft)
	}
	r.Finish()
}

// Status formats the standard status line.
func Status(t float64, index, count int, paused bool) string {
	line := fmt.Sprintf("t=%.3f  frame %d/%d", t, index+1, count)
	if paused {
		line += "  [paused]"
	}
	return line
}

func setColor(r Renderer, c models.Color) {
	r.SetColor(c.R, c.G, c.B)
}

func applyStyle(r Renderer, st models.Style) {
	setColor(r, st.Color)
	r.SetLineWidth(st.LineWidth)
}

func drawGround(r Renderer, m Mapper, g models.Ground) {
	applyStyle(r, g.Style)
	p1 := m.ToPixel(g.P1.X, g.P1.Y)
	p2 := m.ToPixel(g.P2.X, g.P2.Y)
	seg := p2.Sub(p1)
	length := seg.Len()
	if length == 0 {
		return
	}
	dir := seg.Mul(1 / length)
	// Pixel y grows downward, so this normal points to the user-space right
	// of p1->p2, i.e. "below" a left-to-right ground.
	normal := mgl64.Vec2{-dir.Y(), dir.X()}

	switch g.Kind {
	case models.GroundHash:
		r.Line(p1.X(), p1.Y(), p2.X(), p2.Y())
		tick := length / hashTicks
		for i := 0; i <= hashTicks; i++ {
			a := p1.Add(dir.Mul(tick * float64(i)))
			b := a.Add(normal.Mul(tick)).Sub(dir.Mul(tick))
			r.Line(a.X(), a.Y(), b.X(), b.Y())
		}
	case models.GroundPin:
		mid := p1.Add(seg.Mul(0.5))
		apex := mid.Sub(normal.Mul(length / 2))
		tri := []mgl64.Vec2{p1, p2, apex}
		if g.Style.Filled {
			r.PolygonFilled(tri)
		} else {
			r.PolygonOutline(append(tri, p1))
		}
		r.CircleOutline(apex.X(), apex.Y(), length/8)
	default:
		r.Line(p1.X(), p1.Y(), p2.X(), p2.Y())
	}
}

func drawConnector(r Renderer, m Mapper, s *scene.Scene, c models.Connector) {
	applyStyle(r, c.Style)
	ax, ay := s.ToGround(c.Ends[0].Body, c.Ends[0].X, c.Ends[0].Y)
	bx, by := s.ToGround(c.Ends[1].Body, c.Ends[1].X, c.Ends[1].Y)
	a := m.ToPixel(ax, ay)
	b := m.ToPixel(bx, by)

	if c.Kind != models.ConnectorSpring {
		r.Line(a.X(), a.Y(), b.X(), b.Y())
		return
	}
	r.PolygonOutline(springPath(a, b))
}

// springPath returns a zigzag polyline from a to b with straight leads.
func springPath(a, b mgl64.Vec2) []mgl64.Vec2 {
	seg := b.Sub(a)
	length := seg.Len()
	if length < minSpringPixels {
		return []mgl64.Vec2{a, b}
	}
	dir := seg.Mul(1 / length)
	normal := mgl64.Vec2{-dir.Y(), dir.X()}
	amp := math.Max(length*springAmplitude, 2)

	start := a.Add(seg.Mul(springLead))
	body := seg.Mul(1 - 2*springLead)
	pts := []mgl64.Vec2{a, start}
	n := springCoils * 2
	for i := 1; i < n; i++ {
		p := start.Add(body.Mul(float64(i) / float64(n)))
		side := 1.0
		if i%2 == 0 {
			side = -1
		}
		pts = append(pts, p.Add(normal.Mul(side*amp)))
	}
	return append(pts, start.Add(body), b)
}

func drawBody(r Renderer, m Mapper, s *scene.Scene, handle int) {
	body := s.Body(handle)
	t := s.Transform(handle)
	applyStyle(r, body.Style)

	toPixel := func(x, y float64) mgl64.Vec2 {
		gx, gy := t.Apply(x, y)
		return m.ToPixel(gx, gy)
	}
	origin := toPixel(0, 0)

	switch body.Kind {
	case models.BodyBall:
		radius := m.Length(body.Radius)
		if body.Style.Filled {
			r.CircleFilled(origin.X(), origin.Y(), radius)
		} else {
			r.CircleOutline(origin.X(), origin.Y(), radius)
			rim := toPixel(body.Radius, 0)
			r.Line(origin.X(), origin.Y(), rim.X(), rim.Y())
		}
	case models.BodyBlock:
		hw, hh := body.Width/2, body.Height/2
		corners := []mgl64.Vec2{
			toPixel(-hw, -hh),
			toPixel(hw, -hh),
			toPixel(hw, hh),
			toPixel(-hw, hh),
		}
		polygon(r, corners, body.Style.Filled)
	case models.BodyPolygon:
		pts := make([]mgl64.Vec2, len(body.Nodes))
		for i, n := range body.Nodes {
			pts[i] = toPixel(n.X, n.Y)
		}
		polygon(r, pts, body.Style.Filled)
	}

	if body.Style.ShowCS {
		axis := s.Viewport().XMax - s.Viewport().XMin
		axis *= csAxisFraction
		r.SetLineWidth(1)
		xEnd := toPixel(axis, 0)
		yEnd := toPixel(0, axis)
		setColor(r, axisXColor)
		r.Line(origin.X(), origin.Y(), xEnd.X(), xEnd.Y())
		setColor(r, axisYColor)
		r.Line(origin.X(), origin.Y(), yEnd.X(), yEnd.Y())
	}

	if label := bodyLabel(body); label != "" {
		setColor(r, textColor)
		r.Text(label, origin.X()+labelPad, origin.Y()-labelPad, AnchorBottomLeft)
	}
}

func polygon(r Renderer, pts []mgl64.Vec2, filled bool) {
	if filled && len(pts) > 2 {
		r.PolygonFilled(pts)
		return
	}
	if len(pts) > 2 {
		pts = append(pts, pts[0])
	}
	r.PolygonOutline(pts)
}

func bodyLabel(b *models.Body) string {
	switch {
	case b.Style.ShowName && b.Style.ShowID:
		return fmt.Sprintf("%s #%d", b.Name, b.ID)
	case b.Style.ShowName:
		return b.Name
	case b.Style.ShowID:
		return fmt.Sprintf("#%d", b.ID)
	}
	return ""
}

// Package term draws scenes on a terminal through tcell. Each character cell
// holds two vertically stacked pixels drawn with the upper half block.
package term

import (
	"math"
	"sort"

	"github.com/gdamore/tcell/v2"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/kinereplay/backend/internal/render"
)

const halfBlock = '▀'

type label struct {
	text     string
	col, row int
	color    tcell.Color
}

// Renderer implements render.Renderer on a tcell screen.
type Renderer struct {
	screen     tcell.Screen
	background tcell.Color

	width, height int // pixels
	pixels        []tcell.Color
	labels        []label

	color     tcell.Color
	lineWidth int
}

var _ render.Renderer = (*Renderer)(nil)

// New creates a renderer on an initialised screen.
func New(screen tcell.Screen) *Renderer {
	return &Renderer{
		screen:     screen,
		background: tcell.ColorBlack,
		color:      tcell.ColorWhite,
		lineWidth:  1,
	}
}

// CanvasSize reports the pixel canvas, two pixels per cell row.
func (r *Renderer) CanvasSize() (int, int) {
	cols, rows := r.screen.Size()
	return cols, rows * 2
}

// Start resizes the pixel buffer to the screen and clears it.
func (r *Renderer) Start() {
	r.width, r.height = r.CanvasSize()
	if n := r.width * r.height; cap(r.pixels) < n {
		r.pixels = make([]tcell.Color, n)
	} else {
		r.pixels = r.pixels[:n]
	}
	for i := range r.pixels {
		r.pixels[i] = r.background
	}
	r.labels = r.labels[:0]
}

// Finish copies the pixel buffer to the screen, overlays text and shows it.
func (r *Renderer) Finish() {
	rows := r.height / 2
	for row := 0; row < rows; row++ {
		for col := 0; col < r.width; col++ {
			top := r.pixels[(2*row)*r.width+col]
			bottom := r.pixels[(2*row+1)*r.width+col]
			style := tcell.StyleDefault.Foreground(top).Background(bottom)
			r.screen.SetContent(col, row, halfBlock, nil, style)
		}
	}
	for _, l := range r.labels {
		col := l.col
		for _, ch := range l.text {
			if col >= 0 && col < r.width && l.row >= 0 && l.row < rows {
				bg := r.pixels[(2*l.row+1)*r.width+col]
				r.screen.SetContent(col, l.row, ch, nil, tcell.StyleDefault.Foreground(l.color).Background(bg))
			}
			col++
		}
	}
	r.screen.Show()
}

// Pixel returns the color of a canvas pixel from the current frame.
func (r *Renderer) Pixel(x, y int) tcell.Color {
	if x < 0 || y < 0 || x >= r.width || y >= r.height {
		return tcell.ColorDefault
	}
	return r.pixels[y*r.width+x]
}

// SetColor selects the drawing color.
func (r *Renderer) SetColor(red, green, blue float64) {
	r.color = tcell.NewRGBColor(channel(red), channel(green), channel(blue))
}

func channel(f float64) int32 {
	if f > 1 {
		f = 1
	}
	if f < 0 {
		f = 0
	}
	return int32(255 * f)
}

// SetLineWidth sets the stroke width in pixels, at least 1.
func (r *Renderer) SetLineWidth(w float64) {
	r.lineWidth = int(w)
	if r.lineWidth < 1 {
		r.lineWidth = 1
	}
}

func (r *Renderer) plot(x, y int) {
	if x < 0 || y < 0 || x >= r.width || y >= r.height {
		return
	}
	r.pixels[y*r.width+x] = r.color
}

// stroke plots a square brush of the current line width centred on (x, y).
func (r *Renderer) stroke(x, y int) {
	if r.lineWidth == 1 {
		r.plot(x, y)
		return
	}
	lo := -(r.lineWidth - 1) / 2
	hi := lo + r.lineWidth
	for dy := lo; dy < hi; dy++ {
		for dx := lo; dx < hi; dx++ {
			r.plot(x+dx, y+dy)
		}
	}
}

func round(f float64) int { return int(math.Round(f)) }

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// clipLine clips a segment to the canvas grown by the brush size using the
// Liang-Barsky algorithm. It reports false when nothing is visible.
func (r *Renderer) clipLine(x1, y1, x2, y2 float64) (float64, float64, float64, float64, bool) {
	if !finite(x1, y1, x2, y2) {
		return 0, 0, 0, 0, false
	}
	m := float64(r.lineWidth)
	xmin, ymin := -m, -m
	xmax, ymax := float64(r.width-1)+m, float64(r.height-1)+m

	dx, dy := x2-x1, y2-y1
	t0, t1 := 0.0, 1.0
	for _, e := range [4][2]float64{
		{-dx, x1 - xmin},
		{dx, xmax - x1},
		{-dy, y1 - ymin},
		{dy, ymax - y1},
	} {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return 0, 0, 0, 0, false
			}
			t0 = math.Max(t0, t)
		} else {
			if t < t0 {
				return 0, 0, 0, 0, false
			}
			t1 = math.Min(t1, t)
		}
	}
	if t1 < 1 {
		x2, y2 = x1+t1*dx, y1+t1*dy
	}
	if t0 > 0 {
		x1, y1 = x1+t0*dx, y1+t0*dy
	}
	return x1, y1, x2, y2, true
}

// Line draws with Bresenham's algorithm over the visible part of the segment.
func (r *Renderer) Line(x1, y1, x2, y2 float64) {
	x1, y1, x2, y2, ok := r.clipLine(x1, y1, x2, y2)
	if !ok {
		return
	}
	x0, y0 := round(x1), round(y1)
	xe, ye := round(x2), round(y2)

	dx := abs(xe - x0)
	dy := -abs(ye - y0)
	sx, sy := 1, 1
	if x0 > xe {
		sx = -1
	}
	if y0 > ye {
		sy = -1
	}
	err := dx + dy
	for {
		r.stroke(x0, y0)
		if x0 == xe && y0 == ye {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// RectFilled fills the rectangle spanned by two corners.
func (r *Renderer) RectFilled(x1, y1, x2, y2 float64) {
	if !finite(x1, y1, x2, y2) {
		return
	}
	left, top, right, bottom := render.NormalizeRect(x1, y1, x2, y2)
	left, top = math.Max(left, 0), math.Max(top, 0)
	right, bottom = math.Min(right, float64(r.width-1)), math.Min(bottom, float64(r.height-1))
	for y := round(top); y <= round(bottom); y++ {
		for x := round(left); x <= round(right); x++ {
			r.plot(x, y)
		}
	}
}

// RectOutline strokes the rectangle spanned by two corners.
func (r *Renderer) RectOutline(x1, y1, x2, y2 float64) {
	left, top, right, bottom := render.NormalizeRect(x1, y1, x2, y2)
	r.Line(left, top, right, top)
	r.Line(right, top, right, bottom)
	r.Line(right, bottom, left, bottom)
	r.Line(left, bottom, left, top)
}

// CircleFilled fills a disc row by row.
func (r *Renderer) CircleFilled(cx, cy, radius float64) {
	if !r.circleVisible(cx, cy, radius) {
		return
	}
	x0, y0, rad := round(cx), round(cy), round(radius)
	for dy := max(-rad, -y0); dy <= rad && y0+dy < r.height; dy++ {
		half := int(math.Sqrt(float64(rad*rad - dy*dy)))
		for dx := max(-half, -x0); dx <= half && x0+dx < r.width; dx++ {
			r.plot(x0+dx, y0+dy)
		}
	}
}

// circleVisible reports whether a circle's bounding box meets the canvas.
func (r *Renderer) circleVisible(cx, cy, radius float64) bool {
	if !finite(cx, cy, radius) {
		return false
	}
	m := radius + float64(r.lineWidth)
	return cx+m >= 0 && cy+m >= 0 && cx-m <= float64(r.width) && cy-m <= float64(r.height)
}

// CircleOutline draws a circle with the midpoint algorithm.
func (r *Renderer) CircleOutline(cx, cy, radius float64) {
	if !r.circleVisible(cx, cy, radius) {
		return
	}
	x0, y0 := round(cx), round(cy)
	x, y := round(radius), 0
	err := 1 - x
	for x >= y {
		for _, p := range [8][2]int{
			{x, y}, {y, x}, {-y, x}, {-x, y},
			{-x, -y}, {-y, -x}, {y, -x}, {x, -y},
		} {
			r.stroke(x0+p[0], y0+p[1])
		}
		y++
		if err < 0 {
			err += 2*y + 1
		} else {
			x--
			err += 2*(y-x) + 1
		}
	}
}

// PolygonFilled fills using even-odd scanlines sampled at pixel centres.
func (r *Renderer) PolygonFilled(pts []mgl64.Vec2) {
	if len(pts) < 3 {
		r.PolygonOutline(pts)
		return
	}
	for _, p := range pts {
		if !finite(p.X(), p.Y()) {
			return
		}
	}
	minY, maxY := pts[0].Y(), pts[0].Y()
	for _, p := range pts[1:] {
		minY = math.Min(minY, p.Y())
		maxY = math.Max(maxY, p.Y())
	}
	// Only scanlines and spans on the canvas are walked.
	minY = math.Max(math.Floor(minY), 0)
	maxY = math.Min(math.Ceil(maxY), float64(r.height-1))

	var xs []float64
	for y := int(minY); float64(y) <= maxY; y++ {
		sy := float64(y) + 0.5
		xs = xs[:0]
		for i := range pts {
			a, b := pts[i], pts[(i+1)%len(pts)]
			if (a.Y() <= sy) == (b.Y() <= sy) {
				continue
			}
			xs = append(xs, a.X()+(sy-a.Y())*(b.X()-a.X())/(b.Y()-a.Y()))
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			lo := math.Max(math.Ceil(xs[i]-0.5), 0)
			hi := math.Min(xs[i+1]-0.5, float64(r.width-1))
			for x := int(lo); float64(x) <= hi; x++ {
				r.plot(x, y)
			}
		}
	}
}

// PolygonOutline strokes the open polyline through pts.
func (r *Renderer) PolygonOutline(pts []mgl64.Vec2) {
	for i := 0; i+1 < len(pts); i++ {
		r.Line(pts[i].X(), pts[i].Y(), pts[i+1].X(), pts[i+1].Y())
	}
}

// Text queues a label; it is drawn over the pixels on Finish. One character
// is one pixel wide and two pixels tall.
func (r *Renderer) Text(s string, x, y float64, anchor render.Anchor) {
	w := float64(len([]rune(s)))
	left, top := render.AnchorOrigin(anchor, x, y, w, 2)
	r.labels = append(r.labels, label{
		text:  s,
		col:   round(left),
		row:   int(math.Floor(top / 2)),
		color: r.color,
	})
}

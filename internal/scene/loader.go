package scene

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"github.com/kinereplay/backend/internal/models"
)

// node is the raw element tree of a scene document.
type node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []node     `xml:",any"`
}

// Loader turns a scene document into a Scene.
type Loader struct {
	Limits  Limits
	Palette *Palette
}

// NewLoader creates a loader with default limits and the built-in colors.
func NewLoader() *Loader {
	return &Loader{Limits: DefaultLimits()}
}

// LoadFile parses a scene document from disk.
func (l *Loader) LoadFile(filePath string) (*Scene, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return l.Load(file)
}

// Load parses a scene document. Problems are reported as a ConfigParseError,
// ResourceLimitError or CycleError. Parent and attachment ids must name
// bodies declared earlier in the document; a reference to a later body that
// leads back to the referring body is a cycle.
func (l *Loader) Load(r io.Reader) (*Scene, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var root node
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, &models.ConfigParseError{Reason: fmt.Sprintf("malformed document: %v", err)}
	}

	b := NewBuilder(l.Limits)
	xyLinks, thetaLinks := scanParentLinks(root)

	attrs := l.attrs(root)
	var v models.Viewport
	def := models.DefaultViewport()
	if v.XMin, err = attrs.FloatOr("x_min", def.XMin); err != nil {
		return nil, err
	}
	if v.XMax, err = attrs.FloatOr("x_max", def.XMax); err != nil {
		return nil, err
	}
	if v.YMin, err = attrs.FloatOr("y_min", def.YMin); err != nil {
		return nil, err
	}
	if v.YMax, err = attrs.FloatOr("y_max", def.YMax); err != nil {
		return nil, err
	}
	b.SetViewport(v)

	for _, child := range root.Children {
		switch child.XMLName.Local {
		case "ball", "block", "polygon":
			err = l.loadBody(b, child, xyLinks, thetaLinks)
		case "connector":
			err = l.loadConnector(b, child)
		case "ground":
			err = l.loadGround(b, child)
		case "input_format":
			err = l.loadInputFormat(b, child)
		default:
			err = &models.ConfigParseError{Element: child.XMLName.Local, Reason: "unknown element"}
		}
		if err != nil {
			return nil, err
		}
	}

	return b.Build()
}

func (l *Loader) attrs(n node) *Attrs {
	return NewAttrs(n.XMLName.Local, n.Attrs, l.Palette)
}

// parentHandle resolves an optional parent id attribute. Absent or 0 means ground.
func (l *Loader) parentHandle(b *Builder, a *Attrs, name string) (int, error) {
	id, err := a.IntOr(name, 0)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return models.NoParent, nil
	}
	h, ok := b.Handle(id)
	if !ok {
		return 0, &models.ConfigParseError{
			Element:   a.element,
			Attribute: name,
			Reason:    fmt.Sprintf("body %d is not declared before this element", id),
		}
	}
	return h, nil
}

// parentLinks maps body ids to the raw parent id declared for them.
type parentLinks map[int]int

// scanParentLinks reads every body's id and parent ids ahead of the build.
// Malformed values are skipped here and reported when the body is loaded.
func scanParentLinks(root node) (xy, theta parentLinks) {
	xy, theta = parentLinks{}, parentLinks{}
	maxID := 0
	for _, child := range root.Children {
		switch child.XMLName.Local {
		case "ball", "block", "polygon":
		default:
			continue
		}
		a := NewAttrs(child.XMLName.Local, child.Attrs, nil)
		id, err := a.IntOr("id", maxID+1)
		if err != nil {
			continue
		}
		if id > maxID {
			maxID = id
		}
		if p, err := a.IntOr("xy_parent_id", 0); err == nil {
			xy[id] = p
		}
		if p, err := a.IntOr("theta_parent_id", 0); err == nil {
			theta[id] = p
		}
	}
	return xy, theta
}

// loop returns the chain self -> target -> ... -> self when following target's
// parents leads back to self, or nil.
func (links parentLinks) loop(self, target int) []int {
	chain := []int{self}
	id := target
	for steps := 0; id != 0 && steps <= len(links); steps++ {
		chain = append(chain, id)
		if id == self {
			return chain
		}
		next, ok := links[id]
		if !ok {
			return nil
		}
		id = next
	}
	return nil
}

// bodyParent resolves a body's parent attribute, reporting a reference that
// closes a loop as a CycleError.
func (l *Loader) bodyParent(b *Builder, a *Attrs, name, relation string, self int, links parentLinks) (int, error) {
	id, err := a.IntOr(name, 0)
	if err != nil {
		return 0, err
	}
	if _, declared := b.Handle(id); id != 0 && !declared {
		if chain := links.loop(self, id); chain != nil {
			return 0, &models.CycleError{Relation: relation, Chain: chain}
		}
	}
	return l.parentHandle(b, a, name)
}

func (l *Loader) loadStyle(a *Attrs, filledDefault bool) (models.Style, error) {
	var s models.Style
	var err error
	if s.Color, err = a.ColorOr("color", l.Palette.Default()); err != nil {
		return s, err
	}
	if s.LineWidth, err = a.FloatOr("line_width", 1); err != nil {
		return s, err
	}
	if s.Filled, err = a.BoolOr("filled", filledDefault); err != nil {
		return s, err
	}
	if s.ShowCS, err = a.BoolOr("show_cs", false); err != nil {
		return s, err
	}
	if s.ShowName, err = a.BoolOr("show_name", false); err != nil {
		return s, err
	}
	if s.ShowID, err = a.BoolOr("show_id", false); err != nil {
		return s, err
	}
	return s, nil
}

func (l *Loader) loadBody(b *Builder, n node, xyLinks, thetaLinks parentLinks) error {
	a := l.attrs(n)
	body := models.Body{Kind: models.BodyKind(n.XMLName.Local)}

	var err error
	if a.Has("id") {
		if body.ID, err = a.Int("id"); err != nil {
			return err
		}
	} else {
		body.ID = b.NextID()
	}
	body.Name = a.StringOr("name", "")

	if body.XYParent, err = l.bodyParent(b, a, "xy_parent_id", "xy_parent", body.ID, xyLinks); err != nil {
		return err
	}
	if body.ThetaParent, err = l.bodyParent(b, a, "theta_parent_id", "theta_parent", body.ID, thetaLinks); err != nil {
		return err
	}
	if body.Style, err = l.loadStyle(a, false); err != nil {
		return err
	}

	if body.Pose.X, err = a.FloatOr("x", 0); err != nil {
		return err
	}
	if body.Pose.Y, err = a.FloatOr("y", 0); err != nil {
		return err
	}
	if body.Pose.Theta, err = a.FloatOr("theta", 0); err != nil {
		return err
	}
	if body.Offset.X, err = a.FloatOr("x_offset", 0); err != nil {
		return err
	}
	if body.Offset.Y, err = a.FloatOr("y_offset", 0); err != nil {
		return err
	}
	if body.Offset.Theta, err = a.FloatOr("theta_offset", 0); err != nil {
		return err
	}

	switch body.Kind {
	case models.BodyBall:
		if body.Radius, err = a.Float("radius"); err != nil {
			return err
		}
	case models.BodyBlock:
		if body.Width, err = a.Float("width"); err != nil {
			return err
		}
		if body.Height, err = a.Float("height"); err != nil {
			return err
		}
	case models.BodyPolygon:
		for _, child := range n.Children {
			if child.XMLName.Local != "node" {
				return &models.ConfigParseError{Element: child.XMLName.Local, Reason: "polygon children must be <node>"}
			}
			na := l.attrs(child)
			var p models.Point
			if p.X, err = na.Float("x"); err != nil {
				return err
			}
			if p.Y, err = na.Float("y"); err != nil {
				return err
			}
			body.Nodes = append(body.Nodes, p)
		}
	}

	_, err = b.AddBody(body)
	return err
}

func (l *Loader) loadConnector(b *Builder, n node) error {
	a := l.attrs(n)
	var c models.Connector

	kind, err := a.EnumOr("type", string(models.ConnectorLine), string(models.ConnectorLine), string(models.ConnectorSpring))
	if err != nil {
		return err
	}
	c.Kind = models.ConnectorKind(kind)
	if c.Style, err = l.loadStyle(a, false); err != nil {
		return err
	}

	ends := 0
	for _, child := range n.Children {
		if child.XMLName.Local != "attach" {
			return &models.ConfigParseError{Element: child.XMLName.Local, Reason: "connector children must be <attach>"}
		}
		if ends == 2 {
			return &models.ConfigParseError{Element: "connector", Reason: "exactly two <attach> elements required"}
		}
		ca := l.attrs(child)
		end := &c.Ends[ends]
		if end.Body, err = l.parentHandle(b, ca, "id"); err != nil {
			return err
		}
		if end.X, err = ca.FloatOr("x", 0); err != nil {
			return err
		}
		if end.Y, err = ca.FloatOr("y", 0); err != nil {
			return err
		}
		ends++
	}
	if ends != 2 {
		return &models.ConfigParseError{Element: "connector", Reason: "exactly two <attach> elements required"}
	}
	return b.AddConnector(c)
}

func (l *Loader) loadGround(b *Builder, n node) error {
	a := l.attrs(n)
	var g models.Ground

	kind, err := a.EnumOr("type", string(models.GroundLine), string(models.GroundLine), string(models.GroundHash), string(models.GroundPin))
	if err != nil {
		return err
	}
	g.Kind = models.GroundKind(kind)
	if g.ID, err = a.IntOr("id", 0); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{{"x1", &g.P1.X}, {"y1", &g.P1.Y}, {"x2", &g.P2.X}, {"y2", &g.P2.Y}} {
		if *f.dst, err = a.Float(f.name); err != nil {
			return err
		}
	}
	if g.Style, err = l.loadStyle(a, false); err != nil {
		return err
	}
	return b.AddGround(g)
}

func (l *Loader) loadInputFormat(b *Builder, n node) error {
	a := l.attrs(n)
	dt, err := a.FloatOr("dt", 1)
	if err != nil {
		return err
	}
	b.SetTimeStep(dt)

	for _, child := range n.Children {
		if child.XMLName.Local != "map" {
			return &models.ConfigParseError{Element: child.XMLName.Local, Reason: "input_format children must be <map>"}
		}
		ma := l.attrs(child)
		var e models.InputMapEntry
		if e.Column, err = ma.Int("column"); err != nil {
			return err
		}
		target, err := ma.Enum("type", string(models.TargetTime), string(models.TargetBody))
		if err != nil {
			return err
		}
		e.Target = models.InputTarget(target)

		if e.Target == models.TargetBody {
			id, err := ma.Int("id")
			if err != nil {
				return err
			}
			h, ok := b.Handle(id)
			if !ok {
				return &models.ConfigParseError{Element: "map", Attribute: "id", Reason: fmt.Sprintf("body %d is not declared before this element", id)}
			}
			e.Body = h
			field, err := ma.Enum("field", string(models.FieldX), string(models.FieldY), string(models.FieldTheta))
			if err != nil {
				return err
			}
			e.Field = models.PoseField(field)
		}
		if err := b.AddInput(e); err != nil {
			return err
		}
	}
	return nil
}

package scene

import (
	"fmt"

	"github.com/kinereplay/backend/internal/models"
	"github.com/kinereplay/backend/internal/transform"
)

// Limits caps the size of each scene collection.
type Limits struct {
	MaxBodies     int
	MaxConnectors int
	MaxGrounds    int
	MaxInputs     int
}

// DefaultLimits returns the ceilings used when the application config sets none.
func DefaultLimits() Limits {
	return Limits{
		MaxBodies:     1024,
		MaxConnectors: 1024,
		MaxGrounds:    256,
		MaxInputs:     256,
	}
}

// Builder accumulates scene entities and freezes them into a Scene.
type Builder struct {
	limits     Limits
	bodies     []models.Body
	index      map[int]int
	maxID      int
	connectors []models.Connector
	grounds    []models.Ground
	inputMap   []models.InputMapEntry
	viewport   models.Viewport
	timeStep   float64
}

// NewBuilder creates an empty builder with the given limits.
func NewBuilder(limits Limits) *Builder {
	return &Builder{
		limits:   limits,
		index:    make(map[int]int),
		viewport: models.DefaultViewport(),
		timeStep: 1,
	}
}

// NextID returns the id assigned to a body declared without one.
func (b *Builder) NextID() int {
	return b.maxID + 1
}

// Handle returns the handle of an already added body.
func (b *Builder) Handle(id int) (int, bool) {
	h, ok := b.index[id]
	return h, ok
}

// AddBody appends a body and returns its handle. Parent handles must refer
// to bodies already added or be NoParent; use SetParents to link later.
func (b *Builder) AddBody(body models.Body) (int, error) {
	if len(b.bodies) >= b.limits.MaxBodies {
		return 0, &models.ResourceLimitError{Resource: "bodies", Limit: b.limits.MaxBodies}
	}
	if body.ID == 0 {
		return 0, &models.ConfigParseError{Element: string(body.Kind), Attribute: "id", Reason: "id 0 is reserved for the ground"}
	}
	if _, dup := b.index[body.ID]; dup {
		return 0, &models.ConfigParseError{Element: string(body.Kind), Attribute: "id", Reason: fmt.Sprintf("duplicate id %d", body.ID)}
	}
	if err := checkShape(&body); err != nil {
		return 0, err
	}

	h := len(b.bodies)
	b.bodies = append(b.bodies, body)
	b.index[body.ID] = h
	if body.ID > b.maxID {
		b.maxID = body.ID
	}
	return h, nil
}

// SetParents relinks a body. Cycles are rejected by Build.
func (b *Builder) SetParents(handle, xyParent, thetaParent int) {
	b.bodies[handle].XYParent = xyParent
	b.bodies[handle].ThetaParent = thetaParent
}

// AddConnector appends a connector.
func (b *Builder) AddConnector(c models.Connector) error {
	if len(b.connectors) >= b.limits.MaxConnectors {
		return &models.ResourceLimitError{Resource: "connectors", Limit: b.limits.MaxConnectors}
	}
	b.connectors = append(b.connectors, c)
	return nil
}

// AddGround appends a ground decoration.
func (b *Builder) AddGround(g models.Ground) error {
	if len(b.grounds) >= b.limits.MaxGrounds {
		return &models.ResourceLimitError{Resource: "grounds", Limit: b.limits.MaxGrounds}
	}
	b.grounds = append(b.grounds, g)
	return nil
}

// AddInput appends an input map entry.
func (b *Builder) AddInput(e models.InputMapEntry) error {
	if len(b.inputMap) >= b.limits.MaxInputs {
		return &models.ResourceLimitError{Resource: "input map entries", Limit: b.limits.MaxInputs}
	}
	b.inputMap = append(b.inputMap, e)
	return nil
}

// SetViewport sets the user-coordinate window.
func (b *Builder) SetViewport(v models.Viewport) {
	b.viewport = v
}

// SetTimeStep sets the implicit frame spacing.
func (b *Builder) SetTimeStep(dt float64) {
	b.timeStep = dt
}

// Build validates the accumulated entities and freezes them into a Scene.
func (b *Builder) Build() (*Scene, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	s := &Scene{
		bodies:     b.bodies,
		index:      b.index,
		connectors: b.connectors,
		grounds:    b.grounds,
		inputMap:   b.inputMap,
		viewport:   b.viewport,
		timeStep:   b.timeStep,
		resolved:   make([]transform.Affine, len(b.bodies)),
	}
	s.resolver = transform.NewResolver(s)
	for i := range s.resolved {
		s.resolved[i] = transform.Identity()
	}

	// The builder must not alias a frozen scene.
	*b = *NewBuilder(b.limits)
	return s, nil
}

func (b *Builder) validate() error {
	n := len(b.bodies)
	inRange := func(h int) bool { return h == models.NoParent || (h >= 0 && h < n) }

	for _, body := range b.bodies {
		if !inRange(body.XYParent) || !inRange(body.ThetaParent) {
			return &models.ConfigParseError{Element: string(body.Kind), Reason: fmt.Sprintf("body %d has a dangling parent", body.ID)}
		}
	}
	if err := b.checkAcyclic("xy_parent", func(body *models.Body) int { return body.XYParent }); err != nil {
		return err
	}
	if err := b.checkAcyclic("theta_parent", func(body *models.Body) int { return body.ThetaParent }); err != nil {
		return err
	}

	for _, c := range b.connectors {
		for _, end := range c.Ends {
			if !inRange(end.Body) {
				return &models.ConfigParseError{Element: "connector", Reason: "attachment references an unknown body"}
			}
		}
	}

	timeEntries := 0
	for _, e := range b.inputMap {
		if e.Column < 1 {
			return &models.ConfigParseError{Element: "map", Attribute: "column", Reason: "columns are 1-based"}
		}
		switch e.Target {
		case models.TargetTime:
			timeEntries++
			if timeEntries > 1 {
				return &models.ConfigParseError{Element: "map", Reason: "more than one time column"}
			}
		case models.TargetBody:
			if e.Body < 0 || e.Body >= n {
				return &models.ConfigParseError{Element: "map", Attribute: "id", Reason: "unknown body"}
			}
			switch e.Field {
			case models.FieldX, models.FieldY, models.FieldTheta:
			default:
				return &models.ConfigParseError{Element: "map", Attribute: "field", Reason: fmt.Sprintf("unknown field %q", e.Field)}
			}
		default:
			return &models.ConfigParseError{Element: "map", Attribute: "type", Reason: fmt.Sprintf("unknown target %q", e.Target)}
		}
	}

	v := b.viewport
	if !(v.XMax > v.XMin) || !(v.YMax > v.YMin) {
		return &models.ConfigParseError{Element: "scene", Reason: "empty viewport"}
	}
	if !(b.timeStep > 0) {
		return &models.ConfigParseError{Element: "input_format", Attribute: "dt", Reason: "must be positive"}
	}
	return nil
}

// checkAcyclic runs a three-colour walk over one parent relation. Each body
// is finished once, so the whole check is linear in the body count.
func (b *Builder) checkAcyclic(relation string, parent func(*models.Body) int) error {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make([]uint8, len(b.bodies))

	for start := range b.bodies {
		var path []int
		h := start
		for h != models.NoParent && state[h] == unvisited {
			state[h] = onPath
			path = append(path, h)
			h = parent(&b.bodies[h])
		}
		if h != models.NoParent && state[h] == onPath {
			chain := make([]int, 0, len(path)+1)
			for i := len(path) - 1; i >= 0; i-- {
				chain = append(chain, b.bodies[path[i]].ID)
				if path[i] == h {
					break
				}
			}
			// Report in walking order, closing the loop.
			for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
				chain[i], chain[j] = chain[j], chain[i]
			}
			chain = append(chain, b.bodies[h].ID)
			return &models.CycleError{Relation: relation, Chain: chain}
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return nil
}

func checkShape(body *models.Body) error {
	el := string(body.Kind)
	switch body.Kind {
	case models.BodyBall:
		if !(body.Radius > 0) {
			return &models.ConfigParseError{Element: el, Attribute: "radius", Reason: "must be positive"}
		}
	case models.BodyBlock:
		if !(body.Width > 0) || !(body.Height > 0) {
			return &models.ConfigParseError{Element: el, Reason: "width and height must be positive"}
		}
	case models.BodyPolygon:
		if len(body.Nodes) < 2 {
			return &models.ConfigParseError{Element: el, Reason: fmt.Sprintf("polygon needs at least 2 nodes, got %d", len(body.Nodes))}
		}
	default:
		return &models.ConfigParseError{Element: el, Reason: "unknown body kind"}
	}
	return nil
}

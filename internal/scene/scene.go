// Package scene holds the replay's scene model: bodies, connectors, grounds,
// the input map, and the derived per-body transforms.
package scene

import (
	"github.com/kinereplay/backend/internal/models"
	"github.com/kinereplay/backend/internal/transform"
)

// Scene is an owned, frozen-topology scene. Only pose fields, the clock and
// the derived transforms change after Build.
type Scene struct {
	bodies     []models.Body
	index      map[int]int // body id -> handle
	connectors []models.Connector
	grounds    []models.Ground
	inputMap   []models.InputMapEntry
	viewport   models.Viewport
	timeStep   float64

	// Clock is the replay time of the frame currently applied.
	Clock float64

	resolved []transform.Affine
	resolver *transform.Resolver
}

// Len returns the number of bodies.
func (s *Scene) Len() int { return len(s.bodies) }

// Body returns the body with the given handle.
func (s *Scene) Body(handle int) *models.Body { return &s.bodies[handle] }

// Handle returns the handle of the body with the given id.
func (s *Scene) Handle(id int) (int, bool) {
	h, ok := s.index[id]
	return h, ok
}

// Connectors returns the scene's connectors.
func (s *Scene) Connectors() []models.Connector { return s.connectors }

// Grounds returns the scene's ground decorations.
func (s *Scene) Grounds() []models.Ground { return s.grounds }

// InputMap returns the column bindings in declaration order.
func (s *Scene) InputMap() []models.InputMapEntry { return s.inputMap }

// Viewport returns the user-coordinate window.
func (s *Scene) Viewport() models.Viewport { return s.viewport }

// TimeStep returns the frame spacing used when the data has no time column.
func (s *Scene) TimeStep() float64 { return s.timeStep }

// SetField writes one pose field of a body.
func (s *Scene) SetField(handle int, field models.PoseField, v float64) {
	p := &s.bodies[handle].Pose
	switch field {
	case models.FieldX:
		p.X = v
	case models.FieldY:
		p.Y = v
	case models.FieldTheta:
		p.Theta = v
	default:
		panic("scene: unknown pose field " + string(field))
	}
}

// Resolve recomputes every body's shape-to-ground transform.
func (s *Scene) Resolve() error {
	return s.resolver.ResolveAll(s.resolved)
}

// Transform returns the last resolved shape-to-ground transform of a body.
func (s *Scene) Transform(handle int) transform.Affine {
	return s.resolved[handle]
}

// Transforms returns the resolved transforms indexed by handle. The slice is
// overwritten by the next Resolve.
func (s *Scene) Transforms() []transform.Affine {
	return s.resolved
}

// ToGround maps a point in a body's shape frame into the ground frame.
// NoParent means the point is already in the ground frame.
func (s *Scene) ToGround(handle int, x, y float64) (float64, float64) {
	if handle == models.NoParent {
		return x, y
	}
	return s.resolved[handle].Apply(x, y)
}

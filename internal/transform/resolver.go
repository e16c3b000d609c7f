package transform

import (
	"github.com/kinereplay/backend/internal/models"
)

// BodyTable is the read view of a scene the resolver walks.
type BodyTable interface {
	Len() int
	Body(handle int) *models.Body
}

// Resolver computes shape-to-ground transforms from the current poses of a body table.
type Resolver struct {
	bodies BodyTable
}

// NewResolver creates a resolver over the given body table.
func NewResolver(bodies BodyTable) *Resolver {
	return &Resolver{bodies: bodies}
}

// ThetaToGround sums the heading of the body and of every theta ancestor.
// It returns 0 for NoParent. The shape offset phi is not included.
func (r *Resolver) ThetaToGround(handle int) (float64, error) {
	var sum float64
	steps := 0
	for h := handle; h != models.NoParent; h = r.bodies.Body(h).ThetaParent {
		if steps > r.bodies.Len() {
			return 0, r.cycle("theta_parent", handle, func(b *models.Body) int { return b.ThetaParent })
		}
		sum += r.bodies.Body(h).Pose.Theta
		steps++
	}
	return sum, nil
}

// ShapeToGround maps the body's shape frame into the ground frame.
//
// The xy chain is walked from the body outward. Each link contributes its own
// translation, rotated by its heading plus the rotation inherited through its
// theta parent, minus what its xy parent has already accounted for.
func (r *Resolver) ShapeToGround(handle int) (Affine, error) {
	b := r.bodies.Body(handle)
	t := Make(b.Offset.X, b.Offset.Y, b.Offset.Theta)

	steps := 0
	for h := handle; h != models.NoParent; h = r.bodies.Body(h).XYParent {
		if steps > r.bodies.Len() {
			return Affine{}, r.cycle("xy_parent", handle, func(b *models.Body) int { return b.XYParent })
		}
		link := r.bodies.Body(h)

		inherited, err := r.ThetaToGround(link.ThetaParent)
		if err != nil {
			return Affine{}, err
		}
		accounted, err := r.ThetaToGround(link.XYParent)
		if err != nil {
			return Affine{}, err
		}

		t = Append(t, Make(link.Pose.X, link.Pose.Y, link.Pose.Theta+inherited-accounted))
		steps++
	}
	return t, nil
}

// ResolveAll resolves every body into dst, which must have one slot per body.
func (r *Resolver) ResolveAll(dst []Affine) error {
	for h := 0; h < r.bodies.Len(); h++ {
		t, err := r.ShapeToGround(h)
		if err != nil {
			return err
		}
		dst[h] = t
	}
	return nil
}

// cycle rebuilds the offending chain for the error message.
func (r *Resolver) cycle(relation string, start int, next func(*models.Body) int) error {
	seen := make(map[int]bool)
	var chain []int
	for h := start; h != models.NoParent; h = next(r.bodies.Body(h)) {
		chain = append(chain, r.bodies.Body(h).ID)
		if seen[h] {
			break
		}
		seen[h] = true
	}
	return &models.CycleError{Relation: relation, Chain: chain}
}

// Package playback drives a scene from a frozen frame store: it owns the
// active frame index and pause state and applies frames on tick, seek and step.
package playback

import (
	"errors"
	"fmt"
	"math"

	"github.com/kinereplay/backend/internal/frames"
	"github.com/kinereplay/backend/internal/models"
	"github.com/kinereplay/backend/internal/scene"
)

// State is the controller's run state.
type State int

const (
	Playing State = iota
	Paused
)

func (s State) String() string {
	if s == Paused {
		return "paused"
	}
	return "playing"
}

// ErrNotPaused is returned by Seek while the controller is playing.
var ErrNotPaused = errors.New("playback: seek is only allowed while paused")

// Observer receives a snapshot after every applied frame.
type Observer func(Snapshot)

// Controller applies frames to a scene. It is not safe for concurrent use;
// callers serialize every operation.
type Controller struct {
	scene    *scene.Scene
	store    *frames.Store
	active   int
	state    State
	observer Observer
}

// NewController creates a controller positioned on the first frame, playing.
func NewController(s *scene.Scene, store *frames.Store) *Controller {
	if store.Len() == 0 {
		panic("playback: empty frame store")
	}
	return &Controller{scene: s, store: store}
}

// SetObserver registers the frame observer, replacing any previous one.
func (c *Controller) SetObserver(o Observer) { c.observer = o }

// Scene returns the driven scene.
func (c *Controller) Scene() *scene.Scene { return c.scene }

// Active returns the active frame index.
func (c *Controller) Active() int { return c.active }

// State returns the run state.
func (c *Controller) State() State { return c.state }

// Len returns the number of frames.
func (c *Controller) Len() int { return c.store.Len() }

// Span returns the replay time range [min, max] used for seeking.
func (c *Controller) Span() (float64, float64) {
	if c.store.HasTime() {
		return c.store.MinTime(), c.store.MaxTime()
	}
	return 0, float64(c.store.Len()) * c.scene.TimeStep()
}

// Refresh applies the active frame without moving.
func (c *Controller) Refresh() {
	c.apply(c.active)
}

// Tick applies the active frame and advances, wrapping to the first frame
// after the last. It does nothing while paused.
func (c *Controller) Tick() {
	if c.state != Playing {
		return
	}
	c.apply(c.active)
	c.active++
	if c.active >= c.store.Len() {
		c.active = 0
	}
}

// Seek moves to the frame nearest target and applies it.
func (c *Controller) Seek(target float64) error {
	if c.state != Paused {
		return ErrNotPaused
	}
	if c.store.HasTime() {
		c.active = c.seekExplicit(target)
	} else {
		c.active = c.seekImplicit(target)
	}
	c.apply(c.active)
	return nil
}

// seekExplicit walks from the active frame toward target and stops at the
// first step that does not reduce the time difference.
func (c *Controller) seekExplicit(target float64) int {
	i := c.active
	delta := math.Abs(c.store.Time(i) - target)
	dir := -1
	if target > c.store.Time(i) {
		dir = 1
	}
	for {
		next := i + dir
		if next < 0 || next >= c.store.Len() {
			return i
		}
		d := math.Abs(c.store.Time(next) - target)
		if d >= delta {
			return i
		}
		i, delta = next, d
	}
}

func (c *Controller) seekImplicit(target float64) int {
	n := c.store.Len()
	tmin, tmax := c.Span()
	if tmax <= tmin {
		return 0
	}
	return c.clamp(int(math.Round((target - tmin) / (tmax - tmin) * float64(n))))
}

// Step moves delta frames, clamped to the valid range, and applies the frame.
func (c *Controller) Step(delta int) {
	// Saturate so active+delta cannot overflow.
	if n := c.store.Len(); delta > n {
		delta = n
	} else if delta < -n {
		delta = -n
	}
	c.active = c.clamp(c.active + delta)
	c.apply(c.active)
}

// StepToStart moves to the first frame.
func (c *Controller) StepToStart() {
	c.active = 0
	c.apply(c.active)
}

// StepToEnd moves to the last frame.
func (c *Controller) StepToEnd() {
	c.active = c.store.Len() - 1
	c.apply(c.active)
}

// Pause stops ticking.
func (c *Controller) Pause() { c.state = Paused }

// Resume restarts ticking.
func (c *Controller) Resume() { c.state = Playing }

// TogglePause flips between playing and paused.
func (c *Controller) TogglePause() {
	if c.state == Playing {
		c.state = Paused
	} else {
		c.state = Playing
	}
}

func (c *Controller) clamp(i int) int {
	if i < 0 {
		return 0
	}
	if last := c.store.Len() - 1; i > last {
		return last
	}
	return i
}

// apply writes frame i into the scene, resolves transforms and notifies.
// Configuration and data were validated before playback, so a resolver
// failure here is a defect and panics.
func (c *Controller) apply(i int) {
	f := c.store.Frame(i)
	for _, slot := range c.store.Layout().Slots {
		v := f.Value(slot.Index)
		if slot.Entry.Target == models.TargetTime {
			c.scene.Clock = v
			continue
		}
		c.scene.SetField(slot.Entry.Body, slot.Entry.Field, v)
	}
	if !c.store.HasTime() {
		c.scene.Clock = float64(i) * c.scene.TimeStep()
	}

	if err := c.scene.Resolve(); err != nil {
		panic(fmt.Errorf("playback: frame %d: %w", i, err))
	}

	if c.observer != nil {
		c.observer(c.snapshot(i))
	}
}

package playback

import (
	"errors"
	"math"
	"testing"

	"github.com/kinereplay/backend/internal/frames"
	"github.com/kinereplay/backend/internal/models"
	"github.com/kinereplay/backend/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFixture builds a two-body scene (B rides on A) and a store whose frames
// carry the given times; A's x equals the frame index.
func newFixture(t *testing.T, times []float64) (*scene.Scene, *frames.Store) {
	t.Helper()

	b := scene.NewBuilder(scene.DefaultLimits())
	a, err := b.AddBody(models.Body{ID: 1, Kind: models.BodyBall, Radius: 1, XYParent: models.NoParent, ThetaParent: models.NoParent})
	require.NoError(t, err)
	_, err = b.AddBody(models.Body{ID: 2, Kind: models.BodyBall, Radius: 1, XYParent: a, ThetaParent: models.NoParent, Pose: models.Pose{Y: 1}})
	require.NoError(t, err)

	entries := []models.InputMapEntry{{Column: 2, Target: models.TargetBody, Body: a, Field: models.FieldX}}
	if times != nil {
		entries = append([]models.InputMapEntry{{Column: 1, Target: models.TargetTime}}, entries...)
	}
	for _, e := range entries {
		require.NoError(t, b.AddInput(e))
	}
	b.SetTimeStep(0.5)

	s, err := b.Build()
	require.NoError(t, err)

	store := frames.NewStore(frames.NewLayout(entries))
	n := len(times)
	if times == nil {
		n = 10
	}
	for i := 0; i < n; i++ {
		if times != nil {
			store.Append([]float64{times[i], float64(i)})
		} else {
			store.Append([]float64{float64(i)})
		}
	}
	store.Freeze()
	return s, store
}

func TestTickAppliesAndWraps(t *testing.T) {
	s, store := newFixture(t, []float64{0, 1, 2})
	c := NewController(s, store)
	assert.Equal(t, Playing, c.State())

	var seen []int
	c.SetObserver(func(snap Snapshot) { seen = append(seen, snap.Index) })

	c.Tick()
	assert.Equal(t, 1, c.Active())
	assert.Equal(t, 0.0, s.Clock)

	c.Tick()
	c.Tick()
	assert.Equal(t, 0, c.Active(), "index wraps after the last frame")
	assert.Equal(t, 2.0, s.Clock)
	assert.Equal(t, []int{0, 1, 2}, seen)

	x, y := s.ToGround(1, 0, 0)
	assert.InDelta(t, 2.0, x, 1e-12)
	assert.InDelta(t, 1.0, y, 1e-12)
}

func TestTickIgnoredWhilePaused(t *testing.T) {
	s, store := newFixture(t, []float64{0, 1, 2})
	c := NewController(s, store)
	c.Pause()

	called := false
	c.SetObserver(func(Snapshot) { called = true })
	c.Tick()
	assert.Equal(t, 0, c.Active())
	assert.False(t, called)
}

func TestSeekExplicit(t *testing.T) {
	s, store := newFixture(t, []float64{0, 1, 2, 3, 5, 8})
	c := NewController(s, store)

	assert.True(t, errors.Is(c.Seek(3.4), ErrNotPaused))
	assert.Equal(t, 0, c.Active())

	c.Pause()
	require.NoError(t, c.Seek(3.4))
	assert.Equal(t, 3, c.Active())
	assert.Equal(t, 3.0, s.Clock)

	require.NoError(t, c.Seek(100))
	assert.Equal(t, 5, c.Active(), "stops at the last frame")

	require.NoError(t, c.Seek(4.5))
	assert.Equal(t, 4, c.Active(), "walks backward toward the target")

	require.NoError(t, c.Seek(-3))
	assert.Equal(t, 0, c.Active())
}

func TestSeekExplicitStopsOnPlateau(t *testing.T) {
	s, store := newFixture(t, []float64{0, 1, 1, 1, 2})
	c := NewController(s, store)
	c.Pause()

	require.NoError(t, c.Seek(1.9))
	assert.Equal(t, 1, c.Active(), "equal delta ends the walk")
}

func TestSeekImplicit(t *testing.T) {
	s, store := newFixture(t, nil)
	c := NewController(s, store)
	c.Pause()

	tmin, tmax := c.Span()
	assert.Equal(t, 0.0, tmin)
	assert.Equal(t, 5.0, tmax)

	require.NoError(t, c.Seek(1.6))
	assert.Equal(t, 3, c.Active())
	assert.InDelta(t, 1.5, s.Clock, 1e-12)

	require.NoError(t, c.Seek(99))
	assert.Equal(t, 9, c.Active())

	require.NoError(t, c.Seek(-1))
	assert.Equal(t, 0, c.Active())
}

func TestStep(t *testing.T) {
	s, store := newFixture(t, nil)
	c := NewController(s, store)

	c.Step(10)
	assert.Equal(t, 9, c.Active(), "clamped to last frame")
	assert.Equal(t, 9.0, s.Body(0).Pose.X)

	c.Step(-1)
	assert.Equal(t, 8, c.Active())

	c.StepToStart()
	assert.Equal(t, 0, c.Active())
	c.Step(-10)
	assert.Equal(t, 0, c.Active())

	c.StepToEnd()
	assert.Equal(t, 9, c.Active())
	assert.InDelta(t, 4.5, s.Clock, 1e-12)
}

func TestStepSaturates(t *testing.T) {
	s, store := newFixture(t, nil)
	c := NewController(s, store)

	c.Step(3)
	c.Step(math.MaxInt)
	assert.Equal(t, 9, c.Active())
	c.Step(math.MinInt)
	assert.Equal(t, 0, c.Active())
}

func TestPauseResume(t *testing.T) {
	s, store := newFixture(t, nil)
	c := NewController(s, store)

	c.TogglePause()
	assert.Equal(t, Paused, c.State())
	c.TogglePause()
	assert.Equal(t, Playing, c.State())
	c.Pause()
	c.Pause()
	assert.Equal(t, "paused", c.State().String())
	c.Resume()
	assert.Equal(t, Playing, c.State())
}

func TestQueueDrain(t *testing.T) {
	s, store := newFixture(t, []float64{0, 1, 2, 3, 5, 8})
	c := NewController(s, store)

	var q Queue
	q.Push(Tick())
	q.Push(Seek(5)) // rejected, still playing
	q.Push(Pause())
	q.Push(Seek(5))
	q.Push(Step(-1))
	q.Push(Tick()) // ignored, paused
	assert.Equal(t, 6, q.Len())

	err := q.Drain(c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotPaused))
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 3, c.Active())
	assert.Equal(t, Paused, c.State())

	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestSnapshot(t *testing.T) {
	s, store := newFixture(t, []float64{0, 1, 2})
	c := NewController(s, store)
	c.Step(2)

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.Index)
	assert.Equal(t, 3, snap.FrameCount)
	assert.Equal(t, 2.0, snap.Time)
	assert.False(t, snap.Paused)
	require.Len(t, snap.Bodies, 2)
	assert.Equal(t, 2, snap.Bodies[1].ID)
	assert.InDelta(t, 2.0, snap.Bodies[1].X, 1e-12)
	assert.InDelta(t, 1.0, snap.Bodies[1].Y, 1e-12)
	assert.InDelta(t, 0.0, math.Abs(snap.Bodies[1].Theta), 1e-12)
}

func TestResolverFailurePanics(t *testing.T) {
	s, store := newFixture(t, []float64{0, 1})
	c := NewController(s, store)
	s.Body(0).XYParent = 0 // corrupt topology after build

	assert.Panics(t, func() { c.Step(1) })
}

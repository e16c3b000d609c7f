package playback

// BodyPose is a body's resolved shape frame expressed in the ground frame.
type BodyPose struct {
	ID    int     `json:"id" msgpack:"id"`
	X     float64 `json:"x" msgpack:"x"`
	Y     float64 `json:"y" msgpack:"y"`
	Theta float64 `json:"theta" msgpack:"theta"`
}

// Snapshot is a self-contained copy of the scene state after a frame was applied.
type Snapshot struct {
	Index      int        `json:"index" msgpack:"index"`
	FrameCount int        `json:"frameCount" msgpack:"frameCount"`
	Time       float64    `json:"time" msgpack:"time"`
	Paused     bool       `json:"paused" msgpack:"paused"`
	Bodies     []BodyPose `json:"bodies" msgpack:"bodies"`
}

// Snapshot captures the current scene state at the active frame without
// applying anything.
func (c *Controller) Snapshot() Snapshot {
	return c.snapshot(c.active)
}

func (c *Controller) snapshot(i int) Snapshot {
	s := c.scene
	snap := Snapshot{
		Index:      i,
		FrameCount: c.store.Len(),
		Time:       s.Clock,
		Paused:     c.state == Paused,
		Bodies:     make([]BodyPose, s.Len()),
	}
	for h, t := range s.Transforms() {
		snap.Bodies[h] = BodyPose{
			ID:    s.Body(h).ID,
			X:     t.Offset.X(),
			Y:     t.Offset.Y(),
			Theta: t.Angle(),
		}
	}
	return snap
}

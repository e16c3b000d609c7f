package models

// InputTarget says where a data column is written during playback.
type InputTarget string

const (
	TargetTime InputTarget = "time"
	TargetBody InputTarget = "body"
)

// PoseField names one of the three per-frame pose fields of a body.
type PoseField string

const (
	FieldX     PoseField = "x"
	FieldY     PoseField = "y"
	FieldTheta PoseField = "theta"
)

// InputMapEntry binds a 1-based text column to the global clock or a body field.
type InputMapEntry struct {
	Column int         `json:"column"`
	Target InputTarget `json:"target"`
	Body   int         `json:"body,omitempty"` // handle, only for TargetBody
	Field  PoseField   `json:"field,omitempty"`
}

// IsTime reports whether the entry feeds the global clock.
func (e InputMapEntry) IsTime() bool {
	return e.Target == TargetTime
}

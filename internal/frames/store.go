// Package frames ingests whitespace-delimited data lines into an ordered,
// immutable sequence of fixed-width frames.
package frames

import (
	"fmt"
	"math"

	"github.com/kinereplay/backend/internal/models"
)

// FieldWidth is the packed size of one frame field in bytes.
const FieldWidth = 8

// growthFactor is how much the backing storage grows when full.
const growthFactor = 3

// Slot binds an input-map entry to its position inside a frame.
type Slot struct {
	Entry  models.InputMapEntry
	Index  int // field position within the frame
	Offset int // byte offset, Index * FieldWidth
}

// Layout is the fixed field assignment shared by every frame of a store.
type Layout struct {
	Slots    []Slot
	TimeSlot int // -1 when the data has no time column
}

// NewLayout assigns sequential offsets in input-map order.
func NewLayout(entries []models.InputMapEntry) *Layout {
	l := &Layout{Slots: make([]Slot, len(entries)), TimeSlot: -1}
	for i, e := range entries {
		l.Slots[i] = Slot{Entry: e, Index: i, Offset: i * FieldWidth}
		if e.IsTime() && l.TimeSlot < 0 {
			l.TimeSlot = i
		}
	}
	return l
}

// Width returns the number of fields per frame.
func (l *Layout) Width() int { return len(l.Slots) }

// BytesPerFrame returns the packed size of one frame.
func (l *Layout) BytesPerFrame() int { return len(l.Slots) * FieldWidth }

// HasTime reports whether frames carry an explicit time field.
func (l *Layout) HasTime() bool { return l.TimeSlot >= 0 }

// Frame is a read-only view of one record.
type Frame struct {
	values []float64
}

// Value returns the field stored in the given slot.
func (f Frame) Value(slot int) float64 { return f.values[slot] }

// Len returns the number of fields.
func (f Frame) Len() int { return len(f.values) }

// Store is an append-only sequence of frames packed into one buffer.
type Store struct {
	layout  *Layout
	data    []float64
	count   int
	minTime float64
	maxTime float64
	frozen  bool
}

// NewStore creates an empty store for the given layout.
func NewStore(layout *Layout) *Store {
	return &Store{layout: layout}
}

// Layout returns the store's field layout.
func (s *Store) Layout() *Layout { return s.layout }

// Len returns the number of frames.
func (s *Store) Len() int { return s.count }

// Frame returns the frame at index i.
func (s *Store) Frame(i int) Frame {
	w := s.layout.Width()
	return Frame{values: s.data[i*w : (i+1)*w : (i+1)*w]}
}

// HasTime reports whether frames carry an explicit time field.
func (s *Store) HasTime() bool { return s.layout.HasTime() }

// Time returns the explicit time of frame i. It panics without a time column.
func (s *Store) Time(i int) float64 {
	if !s.layout.HasTime() {
		panic("frames: store has no time column")
	}
	return s.data[i*s.layout.Width()+s.layout.TimeSlot]
}

// MinTime returns the time of the first frame.
func (s *Store) MinTime() float64 { return s.minTime }

// MaxTime returns the largest time seen, which is the time of the last frame.
func (s *Store) MaxTime() float64 { return s.maxTime }

// Freeze makes the store read-only.
func (s *Store) Freeze() { s.frozen = true }

// Frozen reports whether Freeze has been called.
func (s *Store) Frozen() bool { return s.frozen }

// CheckTime reports whether a frame at time t may follow the stored frames.
// Times must be finite and non-decreasing.
func (s *Store) CheckTime(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return fmt.Errorf("time %g is not finite", t)
	}
	if s.count > 0 && t < s.maxTime {
		return fmt.Errorf("non-monotonic timestamp %g after %g", t, s.maxTime)
	}
	return nil
}

// Append copies one frame's values into the store. The caller has already
// checked time ordering with CheckTime.
func (s *Store) Append(values []float64) {
	if s.frozen {
		panic("frames: append to frozen store")
	}
	w := s.layout.Width()
	if len(values) != w {
		panic("frames: frame width does not match layout")
	}

	if need := len(s.data) + w; need > cap(s.data) {
		newCap := cap(s.data) * growthFactor
		if newCap < need {
			newCap = need * 4
		}
		grown := make([]float64, len(s.data), newCap)
		copy(grown, s.data)
		s.data = grown
	}
	s.data = append(s.data, values...)

	if s.layout.HasTime() {
		t := values[s.layout.TimeSlot]
		if s.count == 0 {
			s.minTime = t
		}
		s.maxTime = t
	}
	s.count++
}

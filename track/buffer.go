package track

import (
	"maps"
	"slices"

	"github.com/gogpu/renderpass/hub"
)

// BufferTransition is a buffer state change the backend must perform.
type BufferTransition struct {
	ID  hub.ID
	Old BufferUse
	New BufferUse
}

// BufferTracker tracks buffer usages within one scope.
type BufferTracker struct {
	units map[hub.ID]*unit[BufferUse]
}

// NewBufferTracker creates an empty tracker.
func NewBufferTracker() *BufferTracker {
	return &BufferTracker{units: make(map[hub.ID]*unit[BufferUse])}
}

// Len returns the number of tracked buffers.
func (t *BufferTracker) Len() int { return len(t.units) }

// IDs returns the tracked buffers in ascending order.
func (t *BufferTracker) IDs() []hub.ID {
	return slices.Sorted(maps.Keys(t.units))
}

// UseExtend records that id is used as u within the scope.
func (t *BufferTracker) UseExtend(id hub.ID, u BufferUse) error {
	st, ok := t.units[id]
	if !ok {
		t.units[id] = &unit[BufferUse]{last: u}
		return nil
	}
	if old, ok := st.extend(u); !ok {
		return conflict("buffer", id, old, u)
	}
	return nil
}

// Query returns the usage id was last recorded with.
func (t *BufferTracker) Query(id hub.ID) (BufferUse, bool) {
	st, ok := t.units[id]
	if !ok {
		return 0, false
	}
	return st.last, true
}

// Prepend declares the usage id is in before the scope starts.
func (t *BufferTracker) Prepend(id hub.ID, u BufferUse) error {
	st, ok := t.units[id]
	if !ok {
		st = &unit[BufferUse]{last: u}
		t.units[id] = st
	}
	if old, ok := st.prepend(u); !ok {
		return conflict("buffer", id, old, u)
	}
	return nil
}

// MergeExtend folds a nested scope into t in extend mode.
func (t *BufferTracker) MergeExtend(other *BufferTracker) error {
	for _, id := range other.IDs() {
		o := other.units[id]
		st, ok := t.units[id]
		if !ok {
			cp := *o
			t.units[id] = &cp
			continue
		}
		next := o.port()
		if old, ok := st.extend(next); !ok {
			return conflict("buffer", id, old, next)
		}
		if next != o.last {
			if old, ok := st.extend(o.last); !ok {
				return conflict("buffer", id, old, o.last)
			}
		}
	}
	return nil
}

// MergeReplace folds a finished scope into t and returns the transitions
// needed to bring every buffer from t's state into the scope's initial state.
// Buffers seen for the first time need no transition.
func (t *BufferTracker) MergeReplace(other *BufferTracker) []BufferTransition {
	var out []BufferTransition
	for _, id := range other.IDs() {
		o := other.units[id]
		st, ok := t.units[id]
		if !ok {
			t.units[id] = &unit[BufferUse]{last: o.last, first: o.port(), hasFirst: true}
			continue
		}
		if old, next, need := st.replace(*o); need {
			out = append(out, BufferTransition{ID: id, Old: old, New: next})
		}
	}
	return out
}

package track

import (
	"cmp"
	"maps"
	"slices"

	"github.com/gogpu/renderpass/hub"
)

// TextureTransition is a state change of a contiguous run of array layers
// within one mip level.
type TextureTransition struct {
	ID    hub.ID
	Range SubresourceRange
	Old   TextureUse
	New   TextureUse
}

type textureState struct {
	aspects Aspects
	cells   map[Subresource]*unit[TextureUse]
}

// TextureTracker tracks texture usages per subresource within one scope.
type TextureTracker struct {
	states map[hub.ID]*textureState
}

// NewTextureTracker creates an empty tracker.
func NewTextureTracker() *TextureTracker {
	return &TextureTracker{states: make(map[hub.ID]*textureState)}
}

// Len returns the number of tracked textures.
func (t *TextureTracker) Len() int { return len(t.states) }

// IDs returns the tracked textures in ascending order.
func (t *TextureTracker) IDs() []hub.ID {
	return slices.Sorted(maps.Keys(t.states))
}

func (t *TextureTracker) state(id hub.ID, aspects Aspects) *textureState {
	st, ok := t.states[id]
	if !ok {
		st = &textureState{cells: make(map[Subresource]*unit[TextureUse])}
		t.states[id] = st
	}
	st.aspects |= aspects
	return st
}

// UseExtend records that every cell of r is used as u within the scope.
func (t *TextureTracker) UseExtend(id hub.ID, r SubresourceRange, u TextureUse) error {
	st := t.state(id, r.Aspects)
	var err error
	r.each(func(s Subresource) bool {
		c, ok := st.cells[s]
		if !ok {
			st.cells[s] = &unit[TextureUse]{last: u}
			return true
		}
		if old, ok := c.extend(u); !ok {
			err = conflict("texture", id, old, u)
			return false
		}
		return true
	})
	return err
}

// ChangeExtend sets the end-of-scope usage of r. It follows the same rules
// as UseExtend; it exists for attachments whose usage is decided once the
// pass is over.
func (t *TextureTracker) ChangeExtend(id hub.ID, r SubresourceRange, u TextureUse) error {
	return t.UseExtend(id, r, u)
}

// Prepend declares the usage r is in before the scope starts.
func (t *TextureTracker) Prepend(id hub.ID, r SubresourceRange, u TextureUse) error {
	st := t.state(id, r.Aspects)
	var err error
	r.each(func(s Subresource) bool {
		c, ok := st.cells[s]
		if !ok {
			c = &unit[TextureUse]{last: u}
			st.cells[s] = c
		}
		if old, ok := c.prepend(u); !ok {
			err = conflict("texture", id, old, u)
			return false
		}
		return true
	})
	return err
}

// Query returns the usage shared by every cell of r. It reports false when
// a cell is untracked or the cells disagree.
func (t *TextureTracker) Query(id hub.ID, r SubresourceRange) (TextureUse, bool) {
	st, ok := t.states[id]
	if !ok {
		return 0, false
	}
	var (
		result TextureUse
		found  bool
		same   = true
	)
	r.each(func(s Subresource) bool {
		c, ok := st.cells[s]
		if !ok {
			same = false
			return false
		}
		if found && c.last != result {
			same = false
			return false
		}
		result, found = c.last, true
		return true
	})
	if !same || !found {
		return 0, false
	}
	return result, true
}

// MergeExtend folds a nested scope into t in extend mode.
func (t *TextureTracker) MergeExtend(other *TextureTracker) error {
	for _, id := range other.IDs() {
		ost := other.states[id]
		st := t.state(id, ost.aspects)
		for _, s := range sortedCells(ost.cells) {
			o := ost.cells[s]
			c, ok := st.cells[s]
			if !ok {
				cp := *o
				st.cells[s] = &cp
				continue
			}
			next := o.port()
			if old, ok := c.extend(next); !ok {
				return conflict("texture", id, old, next)
			}
			if next != o.last {
				if old, ok := c.extend(o.last); !ok {
					return conflict("texture", id, old, o.last)
				}
			}
		}
	}
	return nil
}

// MergeReplace folds a finished scope into t and returns the required
// transitions, coalescing adjacent layers of a mip level that share the
// same old and new usage.
func (t *TextureTracker) MergeReplace(other *TextureTracker) []TextureTransition {
	var out []TextureTransition
	for _, id := range other.IDs() {
		ost := other.states[id]
		st := t.state(id, ost.aspects)
		for _, s := range sortedCells(ost.cells) {
			o := ost.cells[s]
			c, ok := st.cells[s]
			if !ok {
				st.cells[s] = &unit[TextureUse]{last: o.last, first: o.port(), hasFirst: true}
				continue
			}
			old, next, need := c.replace(*o)
			if !need {
				continue
			}
			if n := len(out); n > 0 {
				prev := &out[n-1]
				r := prev.Range
				if prev.ID == id && prev.Old == old && prev.New == next &&
					r.BaseMipLevel == s.MipLevel && r.BaseArrayLayer+r.LayerCount == s.ArrayLayer {
					prev.Range.LayerCount++
					continue
				}
			}
			out = append(out, TextureTransition{
				ID: id,
				Range: SubresourceRange{
					Aspects:        ost.aspects,
					BaseMipLevel:   s.MipLevel,
					MipLevelCount:  1,
					BaseArrayLayer: s.ArrayLayer,
					LayerCount:     1,
				},
				Old: old,
				New: next,
			})
		}
	}
	return out
}

func sortedCells(cells map[Subresource]*unit[TextureUse]) []Subresource {
	return slices.SortedFunc(maps.Keys(cells), func(a, b Subresource) int {
		if c := cmp.Compare(a.MipLevel, b.MipLevel); c != 0 {
			return c
		}
		return cmp.Compare(a.ArrayLayer, b.ArrayLayer)
	})
}

package track

import (
	"maps"
	"slices"

	"github.com/gogpu/renderpass/hub"
)

// IDSet tracks objects that carry no usage state (views, bind groups,
// pipelines, bundles). It only keeps them referenced by the scope.
type IDSet struct {
	ids map[hub.ID]struct{}
}

// NewIDSet creates an empty set.
func NewIDSet() *IDSet { return &IDSet{ids: make(map[hub.ID]struct{})} }

// Add records id and reports whether it was new.
func (s *IDSet) Add(id hub.ID) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Contains reports whether id is recorded.
func (s *IDSet) Contains(id hub.ID) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of recorded IDs.
func (s *IDSet) Len() int { return len(s.ids) }

// IDs returns the recorded IDs in ascending order.
func (s *IDSet) IDs() []hub.ID { return slices.Sorted(maps.Keys(s.ids)) }

// Merge adds every ID of other.
func (s *IDSet) Merge(other *IDSet) {
	for id := range other.ids {
		s.ids[id] = struct{}{}
	}
}

// Set groups the trackers of one scope: a render pass, a bundle, a bind
// group or a whole command buffer.
type Set struct {
	Buffers    *BufferTracker
	Textures   *TextureTracker
	Views      *IDSet
	BindGroups *IDSet
	Pipelines  *IDSet
	Bundles    *IDSet
}

// NewSet creates an empty tracker set.
func NewSet() *Set {
	return &Set{
		Buffers:    NewBufferTracker(),
		Textures:   NewTextureTracker(),
		Views:      NewIDSet(),
		BindGroups: NewIDSet(),
		Pipelines:  NewIDSet(),
		Bundles:    NewIDSet(),
	}
}

// MergeExtend folds a nested scope (a bind group or a bundle) into s.
func (s *Set) MergeExtend(other *Set) error {
	if err := s.Buffers.MergeExtend(other.Buffers); err != nil {
		return err
	}
	if err := s.Textures.MergeExtend(other.Textures); err != nil {
		return err
	}
	s.Views.Merge(other.Views)
	s.BindGroups.Merge(other.BindGroups)
	s.Pipelines.Merge(other.Pipelines)
	s.Bundles.Merge(other.Bundles)
	return nil
}

// Transitions is the barrier list produced by MergeReplace.
type Transitions struct {
	Buffers  []BufferTransition
	Textures []TextureTransition
}

// Empty reports whether no barrier is needed.
func (t Transitions) Empty() bool { return len(t.Buffers) == 0 && len(t.Textures) == 0 }

// MergeReplace folds a finished pass into the command buffer scope s and
// returns the transitions that must run before the pass.
func (s *Set) MergeReplace(pass *Set) Transitions {
	tr := Transitions{
		Buffers:  s.Buffers.MergeReplace(pass.Buffers),
		Textures: s.Textures.MergeReplace(pass.Textures),
	}
	s.Views.Merge(pass.Views)
	s.BindGroups.Merge(pass.BindGroups)
	s.Pipelines.Merge(pass.Pipelines)
	s.Bundles.Merge(pass.Bundles)
	return tr
}

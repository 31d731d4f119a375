// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package binder tracks the bind groups bound in a pass against the bind
// group layouts the current pipeline expects.
//
// Slots are compatible from 0 up to the first slot whose bound group does
// not match the expected layout. Only compatible slots are issued to the
// backend; a later pipeline or bind group change that restores
// compatibility re-issues the slots that became usable.
package binder

import (
	"slices"

	"github.com/gogpu/renderpass/hub"
)

type entry struct {
	expected hub.ID // expected bind group layout, zero if none

	group   hub.ID // provided bind group, zero if none
	layout  hub.ID // layout of the provided group
	offsets []uint32
}

func (e *entry) valid() bool {
	if e.expected.IsZero() {
		return true
	}
	return !e.group.IsZero() && e.layout == e.expected
}

// actual returns the bound group if it matches the expected layout.
func (e *entry) actual() (hub.ID, bool) {
	if e.expected.IsZero() || e.group.IsZero() || e.layout != e.expected {
		return 0, false
	}
	return e.group, true
}

// ChangeKind is the effect of a new expected layout on one slot.
type ChangeKind uint8

const (
	// Unchanged means the slot already expected this layout.
	Unchanged ChangeKind = iota
	// Match means the bound group fits the new layout and must be re-issued.
	Match
	// Mismatch means the slot is empty or holds a group of another layout.
	Mismatch
)

// LayoutChange reports the effect of ExpectLayout.
type LayoutChange struct {
	Kind    ChangeKind
	Group   hub.ID
	Offsets []uint32
}

// Binding is a bind group and its dynamic offsets to issue at Index.
type Binding struct {
	Index   int
	Group   hub.ID
	Offsets []uint32
}

// Binder holds one entry per bind group slot.
type Binder struct {
	// PipelineLayout is the layout of the bound pipeline, zero if none.
	PipelineLayout hub.ID
	entries        []entry
}

// New creates a binder with maxBindGroups slots.
func New(maxBindGroups int) *Binder {
	return &Binder{entries: make([]entry, maxBindGroups)}
}

// Len returns the number of slots.
func (b *Binder) Len() int { return len(b.entries) }

// Reset forgets the pipeline layout and every bound group.
func (b *Binder) Reset() {
	b.PipelineLayout = 0
	clear(b.entries)
}

// ResetExpectations drops the expected layouts of slots n and above.
func (b *Binder) ResetExpectations(n int) {
	for i := n; i < len(b.entries); i++ {
		b.entries[i].expected = 0
	}
}

// ExpectLayout sets the layout slot i must be bound with.
func (b *Binder) ExpectLayout(i int, layout hub.ID) LayoutChange {
	e := &b.entries[i]
	if e.expected == layout {
		return LayoutChange{Kind: Unchanged}
	}
	e.expected = layout
	if !e.group.IsZero() && e.layout == layout {
		return LayoutChange{Kind: Match, Group: e.group, Offsets: e.offsets}
	}
	return LayoutChange{Kind: Mismatch}
}

// SetPipelineLayout switches to a pipeline layout with the given bind group
// layouts and returns the already bound groups that must be re-issued. It
// returns nil when the layout did not change.
func (b *Binder) SetPipelineLayout(layout hub.ID, groupLayouts []hub.ID) []Binding {
	if b.PipelineLayout == layout {
		return nil
	}
	b.PipelineLayout = layout
	b.ResetExpectations(len(groupLayouts))

	var out []Binding
	compatible := true
	for i, bgl := range groupLayouts {
		if i >= len(b.entries) {
			break
		}
		switch ch := b.ExpectLayout(i, bgl); ch.Kind {
		case Match:
			if compatible {
				out = append(out, Binding{Index: i, Group: ch.Group, Offsets: ch.Offsets})
			}
		case Mismatch:
			compatible = false
		}
	}
	return out
}

// Provide binds group (created with layout) at slot index. When the slot
// lies within the compatible prefix it returns the bindings to issue: the
// group itself followed by any later slots that became compatible. ok is
// false when nothing must be issued yet.
func (b *Binder) Provide(index int, group, layout hub.ID, offsets []uint32) (bindings []Binding, ok bool) {
	e := &b.entries[index]
	if e.group == group && slices.Equal(e.offsets, offsets) {
		return nil, false
	}
	wasCompatible := !e.group.IsZero() && e.expected == e.layout
	e.group = group
	e.layout = layout
	e.offsets = slices.Clone(offsets)

	n := b.compatibleCount()
	if index >= n || b.PipelineLayout.IsZero() {
		return nil, false
	}
	end := len(b.entries)
	if wasCompatible {
		end = index + 1
	}
	end = min(end, n)

	bindings = append(bindings, Binding{Index: index, Group: group, Offsets: e.offsets})
	for i := index + 1; i < end; i++ {
		g, ok := b.entries[i].actual()
		if !ok {
			break
		}
		bindings = append(bindings, Binding{Index: i, Group: g, Offsets: b.entries[i].offsets})
	}
	return bindings, true
}

// InvalidMask has bit i set when slot i expects a layout it is not bound
// with.
func (b *Binder) InvalidMask() uint32 {
	var mask uint32
	for i := range b.entries {
		if !b.entries[i].valid() {
			mask |= 1 << i
		}
	}
	return mask
}

func (b *Binder) compatibleCount() int {
	for i := range b.entries {
		if !b.entries[i].valid() {
			return i
		}
	}
	return len(b.entries)
}

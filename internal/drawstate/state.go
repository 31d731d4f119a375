// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package drawstate is the validation state machine of a render pass. It
// records what is bound and gates every draw on it.
package drawstate

import (
	"math"
	"math/bits"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/internal/binder"
)

// OptionalState tracks a value that the pipeline may require.
type OptionalState uint8

const (
	Unused OptionalState = iota
	Required
	Set
)

func (s OptionalState) String() string {
	switch s {
	case Unused:
		return "Unused"
	case Required:
		return "Required"
	case Set:
		return "Set"
	default:
		return "OptionalState(?)"
	}
}

// Require moves Unused to Required when need is true. It never moves a
// state backwards.
func (s *OptionalState) Require(need bool) {
	if need && *s == Unused {
		*s = Required
	}
}

// IndexState is the bound index buffer.
type IndexState struct {
	Buffer hub.ID
	Offset uint64
	End    uint64
	Format gputypes.IndexFormat
	Limit  uint32
}

// Bound reports whether an index buffer is bound.
func (s *IndexState) Bound() bool { return !s.Buffer.IsZero() }

// Bind records buf over the byte range [offset, end) and recomputes the
// limit.
func (s *IndexState) Bind(buf hub.ID, offset, end uint64) {
	s.Buffer = buf
	s.Offset = offset
	s.End = end
	s.UpdateLimit()
}

// UpdateLimit derives the element count from the bound range and format.
func (s *IndexState) UpdateLimit() {
	if !s.Bound() {
		s.Limit = 0
		return
	}
	shift := 1
	if s.Format == gputypes.IndexFormatUint32 {
		shift = 2
	}
	s.Limit = clamp32((s.End - s.Offset) >> shift)
}

// Reset unbinds the index buffer. The format stays with the pipeline.
func (s *IndexState) Reset() {
	s.Buffer = 0
	s.Offset = 0
	s.End = 0
	s.Limit = 0
}

// VertexBuffer is one vertex buffer slot. Placeholder slots below the
// highest bound slot are not Bound and never limit a draw.
type VertexBuffer struct {
	TotalSize uint64
	Stride    uint64
	StepMode  gputypes.VertexStepMode
	Bound     bool
}

// VertexLayout is the stride and step mode a pipeline declares for a slot.
type VertexLayout struct {
	Stride   uint64
	StepMode gputypes.VertexStepMode
}

// VertexState holds the vertex buffer slots and the derived limits.
type VertexState struct {
	Inputs        []VertexBuffer
	VertexLimit   uint32
	InstanceLimit uint32

	layouts []VertexLayout // of the bound pipeline
}

// Bind sets the size of slot, growing the slot list with zero-stride
// placeholders. A new slot takes the stride of the bound pipeline.
func (s *VertexState) Bind(slot int, size uint64) {
	for len(s.Inputs) <= slot {
		vb := VertexBuffer{StepMode: gputypes.VertexStepModeVertex}
		if i := len(s.Inputs); i < len(s.layouts) {
			vb.Stride = s.layouts[i].Stride
			vb.StepMode = s.layouts[i].StepMode
		}
		s.Inputs = append(s.Inputs, vb)
	}
	s.Inputs[slot].TotalSize = size
	s.Inputs[slot].Bound = true
	s.UpdateLimits()
}

// SetLayouts applies the strides of a new pipeline. Slots the pipeline
// does not use get a zero stride.
func (s *VertexState) SetLayouts(layouts []VertexLayout) {
	s.layouts = append(s.layouts[:0], layouts...)
	for i := range s.Inputs {
		if i < len(layouts) {
			s.Inputs[i].Stride = layouts[i].Stride
			s.Inputs[i].StepMode = layouts[i].StepMode
		} else {
			s.Inputs[i].Stride = 0
			s.Inputs[i].StepMode = gputypes.VertexStepModeVertex
		}
	}
	s.UpdateLimits()
}

// UpdateLimits recomputes both limits as the minimum over bound slots
// with a non-zero stride.
func (s *VertexState) UpdateLimits() {
	s.VertexLimit = math.MaxUint32
	s.InstanceLimit = math.MaxUint32
	for _, vb := range s.Inputs {
		if !vb.Bound || vb.Stride == 0 {
			continue
		}
		limit := clamp32(vb.TotalSize / vb.Stride)
		if vb.StepMode == gputypes.VertexStepModeInstance {
			s.InstanceLimit = min(s.InstanceLimit, limit)
		} else {
			s.VertexLimit = min(s.VertexLimit, limit)
		}
	}
}

// Reset drops every slot and zeroes the limits.
func (s *VertexState) Reset() {
	s.Inputs = s.Inputs[:0]
	s.layouts = s.layouts[:0]
	s.VertexLimit = 0
	s.InstanceLimit = 0
}

// State is the full validation state of one pass.
type State struct {
	Binder           *binder.Binder
	BlendColor       OptionalState
	StencilReference OptionalState
	Pipeline         OptionalState
	Index            IndexState
	Vertex           VertexState

	debugDepth int
}

// New returns the state of a pass that has just begun: a pipeline is
// required and nothing is bound.
func New(maxBindGroups int) *State {
	return &State{
		Binder:   binder.New(maxBindGroups),
		Pipeline: Required,
		Index:    IndexState{Format: gputypes.IndexFormatUint16},
	}
}

// IsReady reports whether a draw may be issued.
func (s *State) IsReady() error {
	if mask := s.Binder.InvalidMask(); mask != 0 {
		return &DrawError{Kind: IncompatibleBindGroup, Index: uint32(bits.TrailingZeros32(mask))}
	}
	if s.Pipeline == Required {
		return &DrawError{Kind: MissingPipeline}
	}
	if s.BlendColor == Required {
		return &DrawError{Kind: MissingBlendColor}
	}
	if s.StencilReference == Required {
		return &DrawError{Kind: MissingStencilReference}
	}
	return nil
}

// CheckDraw validates a non-indexed draw against the vertex and instance
// limits.
func (s *State) CheckDraw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if err := s.IsReady(); err != nil {
		return err
	}
	if last := uint64(firstVertex) + uint64(vertexCount); last > uint64(s.Vertex.VertexLimit) {
		return &LimitError{Kind: VertexLimit, Last: last, Limit: s.Vertex.VertexLimit}
	}
	return s.checkInstances(instanceCount, firstInstance)
}

// CheckDrawIndexed validates an indexed draw against the index and
// instance limits.
func (s *State) CheckDrawIndexed(indexCount, instanceCount, firstIndex, firstInstance uint32) error {
	if err := s.IsReady(); err != nil {
		return err
	}
	if last := uint64(firstIndex) + uint64(indexCount); last > uint64(s.Index.Limit) {
		return &LimitError{Kind: IndexLimit, Last: last, Limit: s.Index.Limit}
	}
	return s.checkInstances(instanceCount, firstInstance)
}

func (s *State) checkInstances(instanceCount, firstInstance uint32) error {
	if last := uint64(firstInstance) + uint64(instanceCount); last > uint64(s.Vertex.InstanceLimit) {
		return &LimitError{Kind: InstanceLimit, Last: last, Limit: s.Vertex.InstanceLimit}
	}
	return nil
}

// PushDebugGroup opens a debug group.
func (s *State) PushDebugGroup() { s.debugDepth++ }

// PopDebugGroup closes the innermost debug group.
func (s *State) PopDebugGroup() error {
	if s.debugDepth == 0 {
		return ErrDebugUnderflow
	}
	s.debugDepth--
	return nil
}

// DebugDepth returns the number of open debug groups.
func (s *State) DebugDepth() int { return s.debugDepth }

// ResetBundle forgets everything a render bundle may have changed on the
// backend: pipeline, bind groups, index and vertex buffers.
func (s *State) ResetBundle() {
	s.Binder.Reset()
	s.Pipeline = Required
	s.Index.Reset()
	s.Vertex.Reset()
}

func clamp32(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

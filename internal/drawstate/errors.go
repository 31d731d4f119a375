// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package drawstate

import (
	"errors"
	"fmt"
)

// ErrNotReady is matched by every *DrawError.
var ErrNotReady = errors.New("renderpass: draw state not ready")

// ErrLimitExceeded is matched by every *LimitError.
var ErrLimitExceeded = errors.New("renderpass: draw exceeds bound buffer limit")

// ErrDebugUnderflow is returned when a debug group is popped with none open.
var ErrDebugUnderflow = errors.New("renderpass: pop debug group without matching push")

// DrawErrorKind names the readiness check that failed.
type DrawErrorKind uint8

const (
	MissingPipeline DrawErrorKind = iota + 1
	MissingBlendColor
	MissingStencilReference
	IncompatibleBindGroup
)

func (k DrawErrorKind) String() string {
	switch k {
	case MissingPipeline:
		return "pipeline must be set"
	case MissingBlendColor:
		return "blend color is required by the pipeline but was not set"
	case MissingStencilReference:
		return "stencil reference is required by the pipeline but was not set"
	case IncompatibleBindGroup:
		return "bind group is incompatible with the pipeline layout"
	default:
		return fmt.Sprintf("DrawErrorKind(%d)", uint8(k))
	}
}

// DrawError reports why a draw was rejected. Index is the first
// incompatible bind group slot for IncompatibleBindGroup.
type DrawError struct {
	Kind  DrawErrorKind
	Index uint32
}

func (e *DrawError) Error() string {
	if e.Kind == IncompatibleBindGroup {
		return fmt.Sprintf("renderpass: %s (slot %d)", e.Kind, e.Index)
	}
	return "renderpass: " + e.Kind.String()
}

func (e *DrawError) Is(target error) bool { return target == ErrNotReady }

// LimitKind names the limit a draw ran past.
type LimitKind uint8

const (
	VertexLimit LimitKind = iota + 1
	InstanceLimit
	IndexLimit
)

func (k LimitKind) String() string {
	switch k {
	case VertexLimit:
		return "vertex"
	case InstanceLimit:
		return "instance"
	case IndexLimit:
		return "index"
	default:
		return fmt.Sprintf("LimitKind(%d)", uint8(k))
	}
}

// LimitError reports a draw reading past the bound buffers. Last is
// first + count, which may exceed 32 bits.
type LimitError struct {
	Kind  LimitKind
	Last  uint64
	Limit uint32
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("renderpass: %s %d extends beyond limit %d", e.Kind, e.Last, e.Limit)
}

func (e *LimitError) Is(target error) bool { return target == ErrLimitExceeded }

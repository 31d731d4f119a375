package renderpass

import (
	"errors"
	"fmt"

	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/internal/drawstate"
	"github.com/gogpu/renderpass/pass"
)

// Command encoder errors.
var (
	// ErrEncoderInvalid is returned by every operation on a command encoder
	// after a fatal error. It wraps the original cause.
	ErrEncoderInvalid = errors.New("renderpass: command encoder is invalid")

	// ErrEncoderFinished is returned when recording into a finished encoder.
	ErrEncoderFinished = errors.New("renderpass: command encoder is finished")

	// ErrPassOpen is returned when a second pass begins before the first ends.
	ErrPassOpen = errors.New("renderpass: a render pass is already being recorded")

	// ErrDeviceMismatch is returned when objects of different devices meet.
	ErrDeviceMismatch = errors.New("renderpass: object belongs to another device")
)

// Validation errors.
var (
	ErrMissingUsage           = errors.New("renderpass: resource lacks the required usage")
	ErrIncompatiblePipeline   = errors.New("renderpass: pipeline is incompatible with the pass")
	ErrIncompatibleBundle     = errors.New("renderpass: render bundle is incompatible with the pass")
	ErrDepthStencilReadOnly   = errors.New("renderpass: pipeline writes depth or stencil in a read-only pass")
	ErrBindGroupIndex         = errors.New("renderpass: bind group index out of range")
	ErrVertexSlot             = errors.New("renderpass: vertex buffer slot out of range")
	ErrDynamicOffsetCount     = errors.New("renderpass: wrong number of dynamic offsets")
	ErrDynamicOffsetAlignment = errors.New("renderpass: dynamic offset is not aligned")
	ErrIndirectAlignment      = errors.New("renderpass: indirect offset is not a multiple of 4")
	ErrBufferRange            = errors.New("renderpass: buffer range out of bounds")
	ErrInvalidViewport        = errors.New("renderpass: invalid viewport")
	ErrInvalidScissor         = errors.New("renderpass: scissor rect exceeds the render target")
	ErrBundleCommand          = errors.New("renderpass: command is not allowed in a render bundle")
	ErrUnbalancedDebugGroups  = errors.New("renderpass: debug groups are not balanced")
	ErrInvalidDescriptor      = errors.New("renderpass: invalid descriptor")
)

// Draw state errors, matched with errors.As.
type (
	// DrawError reports a draw issued before the pass was ready.
	DrawError = drawstate.DrawError
	// LimitError reports a draw reading past its bound buffers.
	LimitError = drawstate.LimitError
)

// Draw state sentinels.
var (
	ErrNotReady       = drawstate.ErrNotReady
	ErrLimitExceeded  = drawstate.ErrLimitExceeded
	ErrDebugUnderflow = drawstate.ErrDebugUnderflow
)

// DrawError kinds.
const (
	MissingPipeline         = drawstate.MissingPipeline
	MissingBlendColor       = drawstate.MissingBlendColor
	MissingStencilReference = drawstate.MissingStencilReference
	IncompatibleBindGroup   = drawstate.IncompatibleBindGroup
)

// MissingUsageError reports a resource used for something it was not
// created for.
type MissingUsageError struct {
	Kind string // "buffer" or "texture"
	ID   hub.ID
	Want string
	Have string
}

func (e *MissingUsageError) Error() string {
	return fmt.Sprintf("renderpass: %s %s needs usage %s, has %s", e.Kind, e.ID, e.Want, e.Have)
}

func (e *MissingUsageError) Is(target error) bool { return target == ErrMissingUsage }

// IncompatiblePipelineError reports a pipeline built for other attachments.
type IncompatiblePipelineError struct {
	Pipeline hub.ID
	Pass     pass.Context
	Expected pass.Context
}

func (e *IncompatiblePipelineError) Error() string {
	return fmt.Sprintf("renderpass: pipeline %s expects %+v, pass has %+v", e.Pipeline, e.Expected, e.Pass)
}

func (e *IncompatiblePipelineError) Is(target error) bool { return target == ErrIncompatiblePipeline }

// IncompatibleBundleError reports a render bundle recorded for other
// attachments.
type IncompatibleBundleError struct {
	Bundle   hub.ID
	Pass     pass.Context
	Expected pass.Context
}

func (e *IncompatibleBundleError) Error() string {
	return fmt.Sprintf("renderpass: bundle %s expects %+v, pass has %+v", e.Bundle, e.Expected, e.Pass)
}

func (e *IncompatibleBundleError) Is(target error) bool { return target == ErrIncompatibleBundle }

// CommandError locates a failure in a command stream.
type CommandError struct {
	Index int    // position in the stream
	Op    string // command name
	Err   error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Package command defines the render pass command set and its binary
// stream encoding.
//
// A stream is a sequence of fixed-size records, each a one-byte type tag,
// three reserved bytes and a fixed payload, terminated by exactly one End
// record. SetBindGroup and the debug label commands are followed by a
// variable-length trailer whose length is stored in the record itself.
//
// Streams may come from untrusted callers, so the Decoder checks every
// record and trailer against the end of the buffer and reports overruns as
// a FramingError instead of reading past it.
//
// # Example
//
//	enc := command.NewEncoder(encoderID)
//	_ = enc.Append(command.SetPipeline{Pipeline: pipe})
//	_ = enc.Append(command.Draw{VertexCount: 3, InstanceCount: 1})
//	data, owner, _ := enc.Finish()
//
//	cmds, err := command.Decode(data)
package command

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/hub"
)

// CommandType identifies a command. Its value is the record tag on the wire.
// Tags are grouped by high nibble: 0x1_ state, 0x2_ draws, 0x3_ debug,
// 0x4_ bundles.
type CommandType uint8

const (
	CmdSetBindGroup        CommandType = 0x10
	CmdSetPipeline         CommandType = 0x11
	CmdSetIndexBuffer      CommandType = 0x12
	CmdSetVertexBuffer     CommandType = 0x13
	CmdSetBlendColor       CommandType = 0x14
	CmdSetStencilReference CommandType = 0x15
	CmdSetViewport         CommandType = 0x16
	CmdSetScissor          CommandType = 0x17

	CmdDraw                CommandType = 0x20
	CmdDrawIndexed         CommandType = 0x21
	CmdDrawIndirect        CommandType = 0x22
	CmdDrawIndexedIndirect CommandType = 0x23

	CmdPushDebugGroup    CommandType = 0x30
	CmdPopDebugGroup     CommandType = 0x31
	CmdInsertDebugMarker CommandType = 0x32

	CmdExecuteBundle CommandType = 0x40

	CmdEnd CommandType = 0xFF
)

// String returns the command name.
func (c CommandType) String() string {
	switch c {
	case CmdSetBindGroup:
		return "SetBindGroup"
	case CmdSetPipeline:
		return "SetPipeline"
	case CmdSetIndexBuffer:
		return "SetIndexBuffer"
	case CmdSetVertexBuffer:
		return "SetVertexBuffer"
	case CmdSetBlendColor:
		return "SetBlendColor"
	case CmdSetStencilReference:
		return "SetStencilReference"
	case CmdSetViewport:
		return "SetViewport"
	case CmdSetScissor:
		return "SetScissor"
	case CmdDraw:
		return "Draw"
	case CmdDrawIndexed:
		return "DrawIndexed"
	case CmdDrawIndirect:
		return "DrawIndirect"
	case CmdDrawIndexedIndirect:
		return "DrawIndexedIndirect"
	case CmdPushDebugGroup:
		return "PushDebugGroup"
	case CmdPopDebugGroup:
		return "PopDebugGroup"
	case CmdInsertDebugMarker:
		return "InsertDebugMarker"
	case CmdExecuteBundle:
		return "ExecuteBundle"
	case CmdEnd:
		return "End"
	default:
		return "Unknown"
	}
}

// WholeSize as a buffer binding size means "to the end of the buffer".
const WholeSize = ^uint64(0)

// Command is implemented by every command record.
type Command interface {
	// Type returns the CommandType for this command.
	Type() CommandType
}

// SetBindGroup binds a bind group at Index with its dynamic offsets.
type SetBindGroup struct {
	Index     uint8
	BindGroup hub.ID
	Offsets   []uint32
}

// SetPipeline binds a render pipeline.
type SetPipeline struct {
	Pipeline hub.ID
}

// SetIndexBuffer binds Size bytes of Buffer starting at Offset as the index
// buffer. Size may be WholeSize.
type SetIndexBuffer struct {
	Buffer hub.ID
	Offset uint64
	Size   uint64
}

// SetVertexBuffer binds a vertex buffer to Slot. Size may be WholeSize.
type SetVertexBuffer struct {
	Slot   uint32
	Buffer hub.ID
	Offset uint64
	Size   uint64
}

// SetBlendColor sets the blend constant.
type SetBlendColor struct {
	Color gputypes.Color
}

// SetStencilReference sets the stencil reference value.
type SetStencilReference struct {
	Reference uint32
}

// SetViewport sets the viewport rectangle and depth range.
type SetViewport struct {
	X, Y, W, H         float32
	MinDepth, MaxDepth float32
}

// SetScissor sets the scissor rectangle.
type SetScissor struct {
	X, Y, W, H uint32
}

// Draw issues a non-indexed draw.
type Draw struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// DrawIndexed issues an indexed draw.
type DrawIndexed struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

// DrawIndirect issues a draw whose arguments live in Buffer at Offset.
type DrawIndirect struct {
	Buffer hub.ID
	Offset uint64
}

// DrawIndexedIndirect issues an indexed draw whose arguments live in Buffer.
type DrawIndexedIndirect struct {
	Buffer hub.ID
	Offset uint64
}

// PushDebugGroup opens a labeled debug scope.
type PushDebugGroup struct {
	Color uint32
	Label string
}

// PopDebugGroup closes the innermost debug scope.
type PopDebugGroup struct{}

// InsertDebugMarker inserts a single labeled marker.
type InsertDebugMarker struct {
	Color uint32
	Label string
}

// ExecuteBundle replays a finished render bundle.
type ExecuteBundle struct {
	Bundle hub.ID
}

// End terminates a stream.
type End struct{}

func (SetBindGroup) Type() CommandType        { return CmdSetBindGroup }
func (SetPipeline) Type() CommandType         { return CmdSetPipeline }
func (SetIndexBuffer) Type() CommandType      { return CmdSetIndexBuffer }
func (SetVertexBuffer) Type() CommandType     { return CmdSetVertexBuffer }
func (SetBlendColor) Type() CommandType       { return CmdSetBlendColor }
func (SetStencilReference) Type() CommandType { return CmdSetStencilReference }
func (SetViewport) Type() CommandType         { return CmdSetViewport }
func (SetScissor) Type() CommandType          { return CmdSetScissor }
func (Draw) Type() CommandType                { return CmdDraw }
func (DrawIndexed) Type() CommandType         { return CmdDrawIndexed }
func (DrawIndirect) Type() CommandType        { return CmdDrawIndirect }
func (DrawIndexedIndirect) Type() CommandType { return CmdDrawIndexedIndirect }
func (PushDebugGroup) Type() CommandType      { return CmdPushDebugGroup }
func (PopDebugGroup) Type() CommandType       { return CmdPopDebugGroup }
func (InsertDebugMarker) Type() CommandType   { return CmdInsertDebugMarker }
func (ExecuteBundle) Type() CommandType       { return CmdExecuteBundle }
func (End) Type() CommandType                 { return CmdEnd }

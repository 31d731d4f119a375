package renderpass

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/backend"
	"github.com/gogpu/renderpass/command"
	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/internal/drawstate"
	"github.com/gogpu/renderpass/pass"
	"github.com/gogpu/renderpass/resource"
)

// RenderBundleDescriptor fixes the attachments a bundle can be executed
// with.
type RenderBundleDescriptor struct {
	Label              string
	ColorFormats       []gputypes.TextureFormat
	DepthStencilFormat gputypes.TextureFormat
	SampleCount        uint32 // 0 means 1
}

// RenderBundleEncoder records a reusable list of draw commands. It takes
// the same commands as a RenderPass except viewport, scissor, blend color,
// stencil reference and nested bundles, which stay with the pass.
type RenderBundleEncoder struct {
	hub     *Hub
	device  hub.ID
	context pass.Context
	label   string
	cmds    []command.Command
	err     error
	done    bool
}

// DeviceCreateRenderBundleEncoder starts recording a bundle.
func (h *Hub) DeviceCreateRenderBundleEncoder(device hub.ID, desc *RenderBundleDescriptor) (*RenderBundleEncoder, error) {
	if _, err := h.devices.Get(device); err != nil {
		return nil, fmt.Errorf("create render bundle encoder: %w", err)
	}
	if len(desc.ColorFormats) == 0 && desc.DepthStencilFormat == gputypes.TextureFormatUndefined {
		return nil, fmt.Errorf("create render bundle encoder %q: %w: no attachment formats", desc.Label, ErrInvalidDescriptor)
	}
	if len(desc.ColorFormats) > pass.MaxColorTargets {
		return nil, fmt.Errorf("create render bundle encoder %q: %w: %d color formats", desc.Label, ErrInvalidDescriptor, len(desc.ColorFormats))
	}
	return &RenderBundleEncoder{
		hub:     h,
		device:  device,
		context: pass.NewContext(desc.ColorFormats, nil, desc.DepthStencilFormat, max(desc.SampleCount, 1)),
		label:   desc.Label,
	}, nil
}

func (e *RenderBundleEncoder) record(c command.Command) {
	if e.err == nil && !e.done {
		e.cmds = append(e.cmds, c)
	}
}

// SetBindGroup binds group at index with its dynamic offsets.
func (e *RenderBundleEncoder) SetBindGroup(index uint32, group hub.ID, offsets ...uint32) {
	if index > 0xFF || len(offsets) > command.MaxDynamicOffsets {
		if e.err == nil {
			e.err = fmt.Errorf("%w: index %d with %d offsets", ErrBindGroupIndex, index, len(offsets))
		}
		return
	}
	e.record(command.SetBindGroup{Index: uint8(index), BindGroup: group, Offsets: append([]uint32(nil), offsets...)})
}

// SetPipeline binds a render pipeline.
func (e *RenderBundleEncoder) SetPipeline(pipeline hub.ID) {
	e.record(command.SetPipeline{Pipeline: pipeline})
}

// SetIndexBuffer binds the index buffer.
func (e *RenderBundleEncoder) SetIndexBuffer(buffer hub.ID, offset, size uint64) {
	e.record(command.SetIndexBuffer{Buffer: buffer, Offset: offset, Size: size})
}

// SetVertexBuffer binds a vertex buffer to slot.
func (e *RenderBundleEncoder) SetVertexBuffer(slot uint32, buffer hub.ID, offset, size uint64) {
	e.record(command.SetVertexBuffer{Slot: slot, Buffer: buffer, Offset: offset, Size: size})
}

// Draw issues a non-indexed draw.
func (e *RenderBundleEncoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	e.record(command.Draw{VertexCount: vertexCount, InstanceCount: instanceCount, FirstVertex: firstVertex, FirstInstance: firstInstance})
}

// DrawIndexed issues an indexed draw.
func (e *RenderBundleEncoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	e.record(command.DrawIndexed{
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		BaseVertex:    baseVertex,
		FirstInstance: firstInstance,
	})
}

// DrawIndirect draws with arguments read from buffer.
func (e *RenderBundleEncoder) DrawIndirect(buffer hub.ID, offset uint64) {
	e.record(command.DrawIndirect{Buffer: buffer, Offset: offset})
}

// DrawIndexedIndirect draws indexed with arguments read from buffer.
func (e *RenderBundleEncoder) DrawIndexedIndirect(buffer hub.ID, offset uint64) {
	e.record(command.DrawIndexedIndirect{Buffer: buffer, Offset: offset})
}

// PushDebugGroup opens a debug group. Groups must be closed within the
// bundle.
func (e *RenderBundleEncoder) PushDebugGroup(label string, color uint32) {
	e.record(command.PushDebugGroup{Color: color, Label: label})
}

// PopDebugGroup closes the innermost debug group.
func (e *RenderBundleEncoder) PopDebugGroup() { e.record(command.PopDebugGroup{}) }

// InsertDebugMarker inserts a labeled marker.
func (e *RenderBundleEncoder) InsertDebugMarker(label string, color uint32) {
	e.record(command.InsertDebugMarker{Color: color, Label: label})
}

// Record appends an already built command. It is how decoded streams are
// turned into bundles.
func (e *RenderBundleEncoder) Record(c command.Command) {
	if _, ok := c.(command.End); ok {
		return
	}
	e.record(c)
}

// Finish validates the recorded commands and registers the bundle.
//
// Blend color and stencil reference are taken as set: the pass executing
// the bundle provides them and is checked when the bundle runs.
func (e *RenderBundleEncoder) Finish(label string) (hub.ID, error) {
	if e.done {
		return 0, fmt.Errorf("finish render bundle %q: %w", label, command.ErrEncoderFinished)
	}
	e.done = true
	if label == "" {
		label = e.label
	}
	if e.err != nil {
		return 0, fmt.Errorf("finish render bundle %q: %w", label, e.err)
	}
	if t := e.hub.Trace(); t != nil {
		t.recordRenderBundle(e.device, label, e.context, e.cmds)
	}

	b, err := e.hub.validateBundle(e.device, e.context, e.cmds)
	if err != nil {
		return 0, fmt.Errorf("finish render bundle %q: %w", label, err)
	}
	b.Label = label
	id := e.hub.bundles.Register(b)
	Logger().Debug("render bundle created", "id", id, "label", label, "commands", len(b.Commands))
	return id, nil
}

func (h *Hub) validateBundle(device hub.ID, ctx pass.Context, cmds []command.Command) (*resource.RenderBundle, error) {
	if _, err := h.devices.Get(device); err != nil {
		return nil, err
	}
	g := h.readResources()
	defer g.release()

	x := h.newExecutor(g, device, discard{}, ctx)
	x.bundle = true
	x.state.BlendColor = drawstate.Set
	x.state.StencilReference = drawstate.Set
	for i, c := range cmds {
		if err := x.step(c); err != nil {
			return nil, &CommandError{Index: i, Op: c.Type().String(), Err: err}
		}
	}
	if n := x.state.DebugDepth(); n != 0 {
		return nil, fmt.Errorf("%w: %d groups left open", ErrUnbalancedDebugGroups, n)
	}
	return &resource.RenderBundle{
		Device:   device,
		Context:  ctx,
		Commands: append([]command.Command(nil), cmds...),
		Used:     x.used,
	}, nil
}

// discard is the command sink bundles are validated against.
type discard struct{}

func (discard) BeginRenderPass(*backend.PassBegin) error                              { return nil }
func (discard) EndRenderPass()                                                        {}
func (discard) BindPipeline(backend.RenderPipeline)                                   {}
func (discard) BindGroup(backend.PipelineLayout, uint32, backend.BindGroup, []uint32) {}
func (discard) BindIndexBuffer(backend.Buffer, uint64, gputypes.IndexFormat)          {}
func (discard) BindVertexBuffer(uint32, backend.Buffer, uint64)                       {}
func (discard) SetViewport(_, _, _, _, _, _ float32)                                  {}
func (discard) SetScissor(_, _, _, _ uint32)                                          {}
func (discard) SetBlendConstants(gputypes.Color)                                      {}
func (discard) SetStencilReference(uint32)                                            {}
func (discard) Draw(_, _, _, _ uint32)                                                {}
func (discard) DrawIndexed(uint32, uint32, uint32, int32, uint32)                     {}
func (discard) DrawIndirect(backend.Buffer, uint64)                                   {}
func (discard) DrawIndexedIndirect(backend.Buffer, uint64)                            {}
func (discard) PushDebugGroup(string, uint32)                                         {}
func (discard) PopDebugGroup()                                                        {}
func (discard) InsertDebugMarker(string, uint32)                                      {}
func (discard) TransitionBuffers([]backend.BufferBarrier)                             {}
func (discard) TransitionTextures([]backend.TextureBarrier)                           {}
func (discard) Finish() error                                                         { return nil }
func (discard) Discard()                                                              {}

package renderpass

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/command"
	"github.com/gogpu/renderpass/hub"
)

// RenderPassColorAttachment is a color target of a pass.
type RenderPassColorAttachment struct {
	View hub.ID
	// ResolveTarget receives the resolved samples of a multisampled View;
	// zero when the attachment does not resolve.
	ResolveTarget hub.ID
	LoadOp        gputypes.LoadOp
	StoreOp       gputypes.StoreOp
	ClearColor    gputypes.Color
}

// RenderPassDepthStencilAttachment is the depth-stencil target of a pass.
// A read-only aspect must use LoadOpLoad and StoreOpStore.
type RenderPassDepthStencilAttachment struct {
	View hub.ID

	DepthLoadOp   gputypes.LoadOp
	DepthStoreOp  gputypes.StoreOp
	ClearDepth    float32
	DepthReadOnly bool

	StencilLoadOp   gputypes.LoadOp
	StencilStoreOp  gputypes.StoreOp
	ClearStencil    uint32
	StencilReadOnly bool
}

// RenderPassDescriptor describes the attachments of a pass.
type RenderPassDescriptor struct {
	Label                  string
	ColorAttachments       []RenderPassColorAttachment
	DepthStencilAttachment *RenderPassDepthStencilAttachment
}

// RenderPass records the commands of one pass. Nothing is validated until
// End, which runs the recorded stream on the encoder.
//
// Recording errors are sticky: the first one is kept and returned by End.
// RenderPass is not safe for concurrent use.
type RenderPass struct {
	hub     *Hub
	encoder hub.ID
	desc    RenderPassDescriptor
	stream  *command.Encoder
	err     error
	ended   bool
}

// CommandEncoderBeginRenderPass starts recording a pass on encoder.
func (h *Hub) CommandEncoderBeginRenderPass(encoder hub.ID, desc *RenderPassDescriptor) (*RenderPass, error) {
	encoders := h.encoders.Write()
	defer encoders.Release()

	enc, err := encoders.Get(encoder)
	if err != nil {
		return nil, fmt.Errorf("begin render pass: %w", err)
	}
	if err := enc.usable(); err != nil {
		return nil, fmt.Errorf("begin render pass %q: %w", desc.Label, err)
	}
	if enc.passOpen {
		return nil, fmt.Errorf("begin render pass %q: %w", desc.Label, ErrPassOpen)
	}
	enc.passOpen = true

	rp := &RenderPass{
		hub:     h,
		encoder: encoder,
		desc:    *desc,
		stream:  command.NewEncoder(encoder),
	}
	rp.desc.ColorAttachments = append([]RenderPassColorAttachment(nil), desc.ColorAttachments...)
	if ds := desc.DepthStencilAttachment; ds != nil {
		dsCopy := *ds
		rp.desc.DepthStencilAttachment = &dsCopy
	}
	return rp, nil
}

func (p *RenderPass) append(c command.Command) {
	if p.err != nil {
		return
	}
	if p.ended {
		p.err = command.ErrEncoderFinished
		return
	}
	p.err = p.stream.Append(c)
}

// SetBindGroup binds group at index with its dynamic offsets.
func (p *RenderPass) SetBindGroup(index uint32, group hub.ID, offsets ...uint32) {
	if index > 0xFF {
		if p.err == nil {
			p.err = fmt.Errorf("%w: %d", ErrBindGroupIndex, index)
		}
		return
	}
	p.append(command.SetBindGroup{Index: uint8(index), BindGroup: group, Offsets: offsets})
}

// SetPipeline binds a render pipeline.
func (p *RenderPass) SetPipeline(pipeline hub.ID) {
	p.append(command.SetPipeline{Pipeline: pipeline})
}

// SetIndexBuffer binds size bytes of buffer at offset as the index buffer.
// size may be command.WholeSize.
func (p *RenderPass) SetIndexBuffer(buffer hub.ID, offset, size uint64) {
	p.append(command.SetIndexBuffer{Buffer: buffer, Offset: offset, Size: size})
}

// SetVertexBuffer binds a vertex buffer to slot.
func (p *RenderPass) SetVertexBuffer(slot uint32, buffer hub.ID, offset, size uint64) {
	p.append(command.SetVertexBuffer{Slot: slot, Buffer: buffer, Offset: offset, Size: size})
}

// SetBlendColor sets the blend constant.
func (p *RenderPass) SetBlendColor(c gputypes.Color) {
	p.append(command.SetBlendColor{Color: c})
}

// SetStencilReference sets the stencil reference value.
func (p *RenderPass) SetStencilReference(ref uint32) {
	p.append(command.SetStencilReference{Reference: ref})
}

// SetViewport sets the viewport and its depth range.
func (p *RenderPass) SetViewport(x, y, w, h, minDepth, maxDepth float32) {
	p.append(command.SetViewport{X: x, Y: y, W: w, H: h, MinDepth: minDepth, MaxDepth: maxDepth})
}

// SetScissorRect restricts drawing to a rectangle.
func (p *RenderPass) SetScissorRect(x, y, w, h uint32) {
	p.append(command.SetScissor{X: x, Y: y, W: w, H: h})
}

// Draw issues a non-indexed draw.
func (p *RenderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.append(command.Draw{
		VertexCount:   vertexCount,
		InstanceCount: instanceCount,
		FirstVertex:   firstVertex,
		FirstInstance: firstInstance,
	})
}

// DrawIndexed issues an indexed draw.
func (p *RenderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.append(command.DrawIndexed{
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		BaseVertex:    baseVertex,
		FirstInstance: firstInstance,
	})
}

// DrawIndirect draws with arguments read from buffer at offset.
func (p *RenderPass) DrawIndirect(buffer hub.ID, offset uint64) {
	p.append(command.DrawIndirect{Buffer: buffer, Offset: offset})
}

// DrawIndexedIndirect draws indexed with arguments read from buffer.
func (p *RenderPass) DrawIndexedIndirect(buffer hub.ID, offset uint64) {
	p.append(command.DrawIndexedIndirect{Buffer: buffer, Offset: offset})
}

// PushDebugGroup opens a labeled debug group.
func (p *RenderPass) PushDebugGroup(label string, color uint32) {
	p.append(command.PushDebugGroup{Color: color, Label: label})
}

// PopDebugGroup closes the innermost debug group.
func (p *RenderPass) PopDebugGroup() {
	p.append(command.PopDebugGroup{})
}

// InsertDebugMarker inserts a labeled marker.
func (p *RenderPass) InsertDebugMarker(label string, color uint32) {
	p.append(command.InsertDebugMarker{Color: color, Label: label})
}

// ExecuteBundles replays render bundles in order.
func (p *RenderPass) ExecuteBundles(bundles ...hub.ID) {
	for _, b := range bundles {
		p.append(command.ExecuteBundle{Bundle: b})
	}
}

// Len returns the number of commands recorded so far.
func (p *RenderPass) Len() int { return p.stream.Len() }

// End seals the stream and runs it on the encoder. A recording error
// invalidates the encoder the same way a validation error does.
func (p *RenderPass) End() error {
	if p.ended {
		return fmt.Errorf("end render pass %q: %w", p.desc.Label, command.ErrEncoderFinished)
	}
	p.ended = true
	if p.err != nil {
		p.hub.abortPass(p.encoder, p.err)
		return fmt.Errorf("end render pass %q: %w", p.desc.Label, p.err)
	}
	data, _, err := p.stream.Finish()
	if err != nil {
		p.hub.abortPass(p.encoder, err)
		return fmt.Errorf("end render pass %q: %w", p.desc.Label, err)
	}
	return p.hub.CommandEncoderRunRenderPass(p.encoder, &p.desc, data)
}

// abortPass closes the open pass of encoder and invalidates it.
func (h *Hub) abortPass(encoder hub.ID, err error) {
	encoders := h.encoders.Write()
	defer encoders.Release()
	if enc, e := encoders.Get(encoder); e == nil {
		enc.passOpen = false
		enc.invalidate(err)
	}
}

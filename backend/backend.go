package backend

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/pass"
	"github.com/gogpu/renderpass/track"
)

// Opaque native handles.
type (
	Buffer         = any
	Texture        = any
	TextureView    = any
	BindGroup      = any
	PipelineLayout = any
	RenderPipeline = any
	RenderPass     = any
	Framebuffer    = any
)

// Device creates the backend objects a pass needs.
type Device interface {
	// CreateRenderPass builds a render pass object for key. The result is
	// cached per device and reused by every pass with an equal key.
	CreateRenderPass(key pass.RenderPassKey) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)

	// CreateFramebuffer binds views to rp. views are ordered colors,
	// resolves, then depth-stencil.
	CreateFramebuffer(rp RenderPass, views []TextureView, extent gputypes.Extent3D) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	// CreateCommandBuffer returns a command buffer in the recording state.
	CreateCommandBuffer(label string) (CommandBuffer, error)
}

// PassBegin describes a render pass to begin.
type PassBegin struct {
	Label       string
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Key         pass.RenderPassKey
	// Views are in framebuffer order: colors, resolves, depth-stencil.
	Views  []TextureView
	Extent gputypes.Extent3D
	// ClearValues has one entry per cleared color, then one for the
	// depth-stencil attachment if either aspect clears.
	ClearValues []pass.ClearValue
}

// BufferBarrier transitions a buffer between usages.
type BufferBarrier struct {
	Buffer Buffer
	Old    track.BufferUse
	New    track.BufferUse
}

// TextureBarrier transitions a subresource range between usages.
type TextureBarrier struct {
	Texture Texture
	Range   track.SubresourceRange
	Old     track.TextureUse
	New     track.TextureUse
}

// CommandBuffer records commands. Calls between BeginRenderPass and
// EndRenderPass belong to the pass.
type CommandBuffer interface {
	BeginRenderPass(desc *PassBegin) error
	EndRenderPass()

	BindPipeline(p RenderPipeline)
	BindGroup(layout PipelineLayout, index uint32, group BindGroup, offsets []uint32)
	BindIndexBuffer(buf Buffer, offset uint64, format gputypes.IndexFormat)
	BindVertexBuffer(slot uint32, buf Buffer, offset uint64)

	SetViewport(x, y, width, height, minDepth, maxDepth float32)
	SetScissor(x, y, width, height uint32)
	SetBlendConstants(color gputypes.Color)
	SetStencilReference(ref uint32)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
	DrawIndirect(buf Buffer, offset uint64)
	DrawIndexedIndirect(buf Buffer, offset uint64)

	PushDebugGroup(label string, color uint32)
	PopDebugGroup()
	InsertDebugMarker(label string, color uint32)

	TransitionBuffers(barriers []BufferBarrier)
	TransitionTextures(barriers []TextureBarrier)

	// Finish seals the command buffer. No calls may follow.
	Finish() error
	// Discard abandons recording.
	Discard()
}

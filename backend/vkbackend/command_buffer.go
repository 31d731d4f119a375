// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vkbackend

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/gogpu/renderpass/backend"
	"github.com/gogpu/renderpass/pass"
)

// Indirect draw records are tightly packed.
const (
	drawIndirectStride        = 16
	drawIndexedIndirectStride = 20
)

// CommandBuffer records into a primary vk.CommandBuffer.
type CommandBuffer struct {
	device *Device
	label  string
	logger *slog.Logger

	// Handle is the Vulkan command buffer. It is ready for submission
	// after Finish and must be released with Release afterwards.
	Handle vk.CommandBuffer

	inPass bool
	err    error
}

// Err returns the first error seen while recording.
func (cb *CommandBuffer) Err() error { return cb.err }

func (cb *CommandBuffer) fail(err error) {
	if cb.err == nil {
		cb.err = err
	}
}

func (cb *CommandBuffer) BeginRenderPass(desc *backend.PassBegin) error {
	if cb.inPass {
		return errors.New("vkbackend: render pass already open")
	}
	rp, ok := desc.RenderPass.(*RenderPass)
	if !ok {
		return fmt.Errorf("%w: render pass is %T", ErrHandle, desc.RenderPass)
	}
	fb, ok := desc.Framebuffer.(*Framebuffer)
	if !ok {
		return fmt.Errorf("%w: framebuffer is %T", ErrHandle, desc.Framebuffer)
	}

	clears := clearValues(desc.Key, desc.ClearValues)
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.Handle,
		Framebuffer: fb.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: desc.Extent.Width, Height: desc.Extent.Height},
		},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}
	vk.CmdBeginRenderPass(cb.Handle, &beginInfo, vk.SubpassContentsInline)
	cb.inPass = true
	return nil
}

func (cb *CommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(cb.Handle)
	cb.inPass = false
}

func (cb *CommandBuffer) BindPipeline(p backend.RenderPipeline) {
	pipeline, ok := p.(vk.Pipeline)
	if !ok {
		cb.fail(fmt.Errorf("%w: pipeline is %T", ErrHandle, p))
		return
	}
	vk.CmdBindPipeline(cb.Handle, vk.PipelineBindPointGraphics, pipeline)
}

func (cb *CommandBuffer) BindGroup(layout backend.PipelineLayout, index uint32, group backend.BindGroup, offsets []uint32) {
	pl, ok := layout.(vk.PipelineLayout)
	if !ok {
		cb.fail(fmt.Errorf("%w: pipeline layout is %T", ErrHandle, layout))
		return
	}
	set, ok := group.(vk.DescriptorSet)
	if !ok {
		cb.fail(fmt.Errorf("%w: bind group is %T", ErrHandle, group))
		return
	}
	vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointGraphics, pl, index,
		1, []vk.DescriptorSet{set}, uint32(len(offsets)), offsets)
}

func (cb *CommandBuffer) BindIndexBuffer(buf backend.Buffer, offset uint64, format gputypes.IndexFormat) {
	b, ok := buf.(vk.Buffer)
	if !ok {
		cb.fail(fmt.Errorf("%w: index buffer is %T", ErrHandle, buf))
		return
	}
	vk.CmdBindIndexBuffer(cb.Handle, b, vk.DeviceSize(offset), IndexType(format))
}

func (cb *CommandBuffer) BindVertexBuffer(slot uint32, buf backend.Buffer, offset uint64) {
	b, ok := buf.(vk.Buffer)
	if !ok {
		cb.fail(fmt.Errorf("%w: vertex buffer is %T", ErrHandle, buf))
		return
	}
	vk.CmdBindVertexBuffers(cb.Handle, slot, 1, []vk.Buffer{b}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (cb *CommandBuffer) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	vk.CmdSetViewport(cb.Handle, 0, 1, []vk.Viewport{{
		X:        x,
		Y:        y,
		Width:    width,
		Height:   height,
		MinDepth: minDepth,
		MaxDepth: maxDepth,
	}})
}

func (cb *CommandBuffer) SetScissor(x, y, width, height uint32) {
	vk.CmdSetScissor(cb.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: int32(x), Y: int32(y)},
		Extent: vk.Extent2D{Width: width, Height: height},
	}})
}

func (cb *CommandBuffer) SetBlendConstants(color gputypes.Color) {
	constants := [4]float32{float32(color.R), float32(color.G), float32(color.B), float32(color.A)}
	vk.CmdSetBlendConstants(cb.Handle, &constants)
}

func (cb *CommandBuffer) SetStencilReference(ref uint32) {
	vk.CmdSetStencilReference(cb.Handle, vk.StencilFaceFlags(vk.StencilFrontAndBack), ref)
}

func (cb *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(cb.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	vk.CmdDrawIndexed(cb.Handle, indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (cb *CommandBuffer) DrawIndirect(buf backend.Buffer, offset uint64) {
	b, ok := buf.(vk.Buffer)
	if !ok {
		cb.fail(fmt.Errorf("%w: indirect buffer is %T", ErrHandle, buf))
		return
	}
	vk.CmdDrawIndirect(cb.Handle, b, vk.DeviceSize(offset), 1, drawIndirectStride)
}

func (cb *CommandBuffer) DrawIndexedIndirect(buf backend.Buffer, offset uint64) {
	b, ok := buf.(vk.Buffer)
	if !ok {
		cb.fail(fmt.Errorf("%w: indirect buffer is %T", ErrHandle, buf))
		return
	}
	vk.CmdDrawIndexedIndirect(cb.Handle, b, vk.DeviceSize(offset), 1, drawIndexedIndirectStride)
}

// Debug labels need VK_EXT_debug_utils, which this backend does not load.
func (cb *CommandBuffer) PushDebugGroup(label string, _ uint32) {
	cb.logger.Debug("vkbackend: debug group", "label", label, "buffer", cb.label)
}

func (cb *CommandBuffer) PopDebugGroup() {}

func (cb *CommandBuffer) InsertDebugMarker(label string, _ uint32) {
	cb.logger.Debug("vkbackend: debug marker", "label", label, "buffer", cb.label)
}

// TransitionBuffers records one pipeline barrier covering every buffer.
func (cb *CommandBuffer) TransitionBuffers(barriers []backend.BufferBarrier) {
	if len(barriers) == 0 {
		return
	}
	src, dst, out, err := bufferBarriers(barriers)
	if err != nil {
		cb.fail(err)
		return
	}
	vk.CmdPipelineBarrier(cb.Handle, src, dst, vk.DependencyFlags(0),
		0, nil, uint32(len(out)), out, 0, nil)
}

// TransitionTextures records one pipeline barrier covering every image,
// moving each between the layouts its usages require.
func (cb *CommandBuffer) TransitionTextures(barriers []backend.TextureBarrier) {
	if len(barriers) == 0 {
		return
	}
	src, dst, out, err := imageBarriers(barriers)
	if err != nil {
		cb.fail(err)
		return
	}
	vk.CmdPipelineBarrier(cb.Handle, src, dst, vk.DependencyFlags(0),
		0, nil, 0, nil, uint32(len(out)), out)
}

// bufferBarriers batches buffer transitions into one barrier set. The
// stage masks are the union over every transition.
func bufferBarriers(barriers []backend.BufferBarrier) (src, dst vk.PipelineStageFlags, out []vk.BufferMemoryBarrier, err error) {
	out = make([]vk.BufferMemoryBarrier, 0, len(barriers))
	for _, b := range barriers {
		buf, ok := b.Buffer.(vk.Buffer)
		if !ok {
			return 0, 0, nil, fmt.Errorf("%w: barrier buffer is %T", ErrHandle, b.Buffer)
		}
		from, to := BufferAccess(b.Old), BufferAccess(b.New)
		src |= from.stages(true)
		dst |= to.stages(false)
		out = append(out, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       from.Mask,
			DstAccessMask:       to.Mask,
			SrcQueueFamilyIndex: queueFamilyIgnored,
			DstQueueFamilyIndex: queueFamilyIgnored,
			Buffer:              buf,
			Size:                vk.DeviceSize(vk.WholeSize),
		})
	}
	return src, dst, out, nil
}

// imageBarriers batches texture transitions into one barrier set.
func imageBarriers(barriers []backend.TextureBarrier) (src, dst vk.PipelineStageFlags, out []vk.ImageMemoryBarrier, err error) {
	out = make([]vk.ImageMemoryBarrier, 0, len(barriers))
	for _, b := range barriers {
		img, ok := b.Texture.(vk.Image)
		if !ok {
			return 0, 0, nil, fmt.Errorf("%w: barrier texture is %T", ErrHandle, b.Texture)
		}
		from, to := TextureAccess(b.Old, b.Range.Aspects), TextureAccess(b.New, b.Range.Aspects)
		src |= from.stages(true)
		dst |= to.stages(false)
		out = append(out, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       from.Mask,
			DstAccessMask:       to.Mask,
			OldLayout:           ImageLayout(pass.LayoutFor(b.Old, b.Range.Aspects)),
			NewLayout:           ImageLayout(pass.LayoutFor(b.New, b.Range.Aspects)),
			SrcQueueFamilyIndex: queueFamilyIgnored,
			DstQueueFamilyIndex: queueFamilyIgnored,
			Image:               img,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     AspectMask(b.Range.Aspects),
				BaseMipLevel:   b.Range.BaseMipLevel,
				LevelCount:     b.Range.MipLevelCount,
				BaseArrayLayer: b.Range.BaseArrayLayer,
				LayerCount:     b.Range.LayerCount,
			},
		})
	}
	return src, dst, out, nil
}

// Finish ends recording. A handle error seen while recording frees the
// command buffer and is returned instead.
func (cb *CommandBuffer) Finish() error {
	if cb.inPass {
		return errors.New("vkbackend: finish inside a render pass")
	}
	if cb.err != nil {
		cb.Discard()
		return cb.err
	}
	if err := NewError(vk.EndCommandBuffer(cb.Handle)); err != nil {
		return fmt.Errorf("vkbackend: end command buffer: %w", err)
	}
	return nil
}

func (cb *CommandBuffer) Discard() {
	if cb.Handle == nil {
		return
	}
	if cb.inPass {
		vk.CmdEndRenderPass(cb.Handle)
		cb.inPass = false
	}
	cb.Release()
}

// Release returns the command buffer to its pool.
func (cb *CommandBuffer) Release() {
	if cb.Handle == nil {
		return
	}
	cb.device.free(cb.Handle)
	cb.Handle = nil
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halbackend

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/renderpass/backend"
	"github.com/gogpu/renderpass/pass"
	"github.com/gogpu/renderpass/track"
)

// Dynamic state and debug commands not every HAL implementation exposes.
// Calls the encoder does not support are counted in Skipped.
type (
	viewportSetter interface {
		SetViewport(x, y, width, height, minDepth, maxDepth float32)
	}
	scissorSetter interface {
		SetScissorRect(x, y, width, height uint32)
	}
	blendConstantSetter interface {
		SetBlendConstant(color *gputypes.Color)
	}
	stencilReferenceSetter interface {
		SetStencilReference(reference uint32)
	}
	indirectDrawer interface {
		DrawIndirect(buffer hal.Buffer, offset uint64)
	}
	indexedIndirectDrawer interface {
		DrawIndexedIndirect(buffer hal.Buffer, offset uint64)
	}
	debugGrouper interface {
		PushDebugGroup(label string)
		PopDebugGroup()
	}
	debugMarker interface {
		InsertDebugMarker(label string)
	}
)

var errNoPass = errors.New("halbackend: no render pass open")

// CommandBuffer records into a hal.CommandEncoder.
type CommandBuffer struct {
	encoder hal.CommandEncoder
	pass    hal.RenderPassEncoder
	label   string
	logger  *slog.Logger

	raw hal.CommandBuffer
	err error

	// Skipped counts calls the HAL encoder has no method for.
	Skipped int
}

// Raw returns the finished HAL command buffer, or nil before Finish.
func (cb *CommandBuffer) Raw() hal.CommandBuffer { return cb.raw }

// Err returns the first handle error seen while recording. Finish
// returns it too.
func (cb *CommandBuffer) Err() error { return cb.err }

func (cb *CommandBuffer) fail(err error) {
	if cb.err == nil {
		cb.err = err
	}
}

func (cb *CommandBuffer) skip(op string) {
	cb.Skipped++
	cb.logger.Debug("halbackend: command not supported by encoder", "op", op, "label", cb.label)
}

// BeginRenderPass describes the pass inline from the key and the
// framebuffer views.
func (cb *CommandBuffer) BeginRenderPass(desc *backend.PassBegin) error {
	if cb.pass != nil {
		return fmt.Errorf("halbackend: render pass already open")
	}
	fb, ok := desc.Framebuffer.(*Framebuffer)
	if !ok {
		return fmt.Errorf("%w: framebuffer is %T", ErrHandle, desc.Framebuffer)
	}
	rpDesc, err := passDescriptor(desc.Label, desc.Key, fb.Views, desc.ClearValues)
	if err != nil {
		return err
	}
	cb.pass = cb.encoder.BeginRenderPass(rpDesc)
	return nil
}

// passDescriptor builds a hal.RenderPassDescriptor. views follow the
// key's attachment order and clears hold one value per cleared color, then
// one for the depth-stencil attachment.
func passDescriptor(label string, key pass.RenderPassKey, views []hal.TextureView, clears []pass.ClearValue) (*hal.RenderPassDescriptor, error) {
	if len(views) != key.AttachmentCount() {
		return nil, fmt.Errorf("halbackend: %d views for %d attachments", len(views), key.AttachmentCount())
	}
	next := func() pass.ClearValue {
		if len(clears) == 0 {
			return pass.ClearValue{}
		}
		c := clears[0]
		clears = clears[1:]
		return c
	}

	desc := &hal.RenderPassDescriptor{Label: label}
	n := int(key.NumColors)
	resolve := n
	for i := range n {
		at := key.Colors[i]
		ca := hal.RenderPassColorAttachment{
			View:    views[i],
			LoadOp:  loadOp(at.Ops.Load),
			StoreOp: storeOp(at.Ops.Store),
		}
		if at.Ops.Load == pass.LoadClear {
			ca.ClearValue = next().Color
		}
		if key.HasResolve(i) {
			ca.ResolveTarget = views[resolve]
			resolve++
		}
		desc.ColorAttachments = append(desc.ColorAttachments, ca)
	}

	if key.HasDepthStencil {
		ds := key.DepthStencil
		dsa := &hal.RenderPassDepthStencilAttachment{
			View:           views[len(views)-1],
			DepthLoadOp:    loadOp(ds.Ops.Load),
			DepthStoreOp:   storeOp(ds.Ops.Store),
			StencilLoadOp:  loadOp(ds.StencilOps.Load),
			StencilStoreOp: storeOp(ds.StencilOps.Store),
		}
		if ds.Ops.Load == pass.LoadClear || ds.StencilOps.Load == pass.LoadClear {
			c := next()
			dsa.DepthClearValue = c.Depth
			dsa.StencilClearValue = c.Stencil
		}
		desc.DepthStencilAttachment = dsa
	}
	return desc, nil
}

// loadOp maps a backend load op. DontCare clears, which is never slower
// than loading.
func loadOp(op pass.LoadOp) gputypes.LoadOp {
	if op == pass.LoadLoad {
		return gputypes.LoadOpLoad
	}
	return gputypes.LoadOpClear
}

func storeOp(op pass.StoreOp) gputypes.StoreOp {
	if op == pass.StoreStore {
		return gputypes.StoreOpStore
	}
	return gputypes.StoreOpDiscard
}

func (cb *CommandBuffer) EndRenderPass() {
	if cb.pass == nil {
		cb.fail(errNoPass)
		return
	}
	cb.pass.End()
	cb.pass = nil
}

func (cb *CommandBuffer) BindPipeline(p backend.RenderPipeline) {
	hp, ok := p.(hal.RenderPipeline)
	if !ok || cb.pass == nil {
		cb.fail(fmt.Errorf("%w: pipeline is %T", ErrHandle, p))
		return
	}
	cb.pass.SetPipeline(hp)
}

func (cb *CommandBuffer) BindGroup(_ backend.PipelineLayout, index uint32, group backend.BindGroup, offsets []uint32) {
	bg, ok := group.(hal.BindGroup)
	if !ok || cb.pass == nil {
		cb.fail(fmt.Errorf("%w: bind group is %T", ErrHandle, group))
		return
	}
	cb.pass.SetBindGroup(index, bg, offsets)
}

func (cb *CommandBuffer) BindIndexBuffer(buf backend.Buffer, offset uint64, format gputypes.IndexFormat) {
	hb, ok := buf.(hal.Buffer)
	if !ok || cb.pass == nil {
		cb.fail(fmt.Errorf("%w: index buffer is %T", ErrHandle, buf))
		return
	}
	cb.pass.SetIndexBuffer(hb, format, offset)
}

func (cb *CommandBuffer) BindVertexBuffer(slot uint32, buf backend.Buffer, offset uint64) {
	hb, ok := buf.(hal.Buffer)
	if !ok || cb.pass == nil {
		cb.fail(fmt.Errorf("%w: vertex buffer is %T", ErrHandle, buf))
		return
	}
	cb.pass.SetVertexBuffer(slot, hb, offset)
}

func (cb *CommandBuffer) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	if s, ok := cb.pass.(viewportSetter); ok {
		s.SetViewport(x, y, width, height, minDepth, maxDepth)
		return
	}
	cb.skip("SetViewport")
}

func (cb *CommandBuffer) SetScissor(x, y, width, height uint32) {
	if s, ok := cb.pass.(scissorSetter); ok {
		s.SetScissorRect(x, y, width, height)
		return
	}
	cb.skip("SetScissor")
}

func (cb *CommandBuffer) SetBlendConstants(color gputypes.Color) {
	if s, ok := cb.pass.(blendConstantSetter); ok {
		s.SetBlendConstant(&color)
		return
	}
	cb.skip("SetBlendConstants")
}

func (cb *CommandBuffer) SetStencilReference(ref uint32) {
	if s, ok := cb.pass.(stencilReferenceSetter); ok {
		s.SetStencilReference(ref)
		return
	}
	cb.skip("SetStencilReference")
}

func (cb *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if cb.pass == nil {
		cb.fail(errNoPass)
		return
	}
	cb.pass.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	if cb.pass == nil {
		cb.fail(errNoPass)
		return
	}
	cb.pass.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (cb *CommandBuffer) DrawIndirect(buf backend.Buffer, offset uint64) {
	hb, ok := buf.(hal.Buffer)
	if !ok {
		cb.fail(fmt.Errorf("%w: indirect buffer is %T", ErrHandle, buf))
		return
	}
	if d, ok := cb.pass.(indirectDrawer); ok {
		d.DrawIndirect(hb, offset)
		return
	}
	cb.skip("DrawIndirect")
}

func (cb *CommandBuffer) DrawIndexedIndirect(buf backend.Buffer, offset uint64) {
	hb, ok := buf.(hal.Buffer)
	if !ok {
		cb.fail(fmt.Errorf("%w: indirect buffer is %T", ErrHandle, buf))
		return
	}
	if d, ok := cb.pass.(indexedIndirectDrawer); ok {
		d.DrawIndexedIndirect(hb, offset)
		return
	}
	cb.skip("DrawIndexedIndirect")
}

// debugTarget is the open pass, or the encoder between passes.
func (cb *CommandBuffer) debugTarget() any {
	if cb.pass != nil {
		return cb.pass
	}
	return cb.encoder
}

func (cb *CommandBuffer) PushDebugGroup(label string, _ uint32) {
	if g, ok := cb.debugTarget().(debugGrouper); ok {
		g.PushDebugGroup(label)
		return
	}
	cb.skip("PushDebugGroup")
}

func (cb *CommandBuffer) PopDebugGroup() {
	if g, ok := cb.debugTarget().(debugGrouper); ok {
		g.PopDebugGroup()
		return
	}
	cb.skip("PopDebugGroup")
}

func (cb *CommandBuffer) InsertDebugMarker(label string, _ uint32) {
	if m, ok := cb.debugTarget().(debugMarker); ok {
		m.InsertDebugMarker(label)
		return
	}
	cb.skip("InsertDebugMarker")
}

func (cb *CommandBuffer) TransitionBuffers(barriers []backend.BufferBarrier) {
	out := make([]hal.BufferBarrier, 0, len(barriers))
	for _, b := range barriers {
		hb, ok := b.Buffer.(hal.Buffer)
		if !ok {
			cb.fail(fmt.Errorf("%w: barrier buffer is %T", ErrHandle, b.Buffer))
			return
		}
		out = append(out, hal.BufferBarrier{
			Buffer: hb,
			Usage: hal.BufferUsageTransition{
				OldUsage: BufferUsage(b.Old),
				NewUsage: BufferUsage(b.New),
			},
		})
	}
	if len(out) > 0 {
		cb.encoder.TransitionBuffers(out)
	}
}

func (cb *CommandBuffer) TransitionTextures(barriers []backend.TextureBarrier) {
	out := make([]hal.TextureBarrier, 0, len(barriers))
	for _, b := range barriers {
		ht, ok := b.Texture.(hal.Texture)
		if !ok {
			cb.fail(fmt.Errorf("%w: barrier texture is %T", ErrHandle, b.Texture))
			return
		}
		out = append(out, hal.TextureBarrier{
			Texture: ht,
			Usage: hal.TextureUsageTransition{
				OldUsage: TextureUsage(b.Old),
				NewUsage: TextureUsage(b.New),
			},
		})
	}
	if len(out) > 0 {
		cb.encoder.TransitionTextures(out)
	}
}

// Finish ends encoding. A handle error seen while recording discards the
// encoder and is returned instead.
func (cb *CommandBuffer) Finish() error {
	if cb.pass != nil {
		return fmt.Errorf("halbackend: finish inside a render pass")
	}
	if cb.err != nil {
		cb.encoder.DiscardEncoding()
		return cb.err
	}
	raw, err := cb.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("halbackend: end encoding: %w", err)
	}
	cb.raw = raw
	if cb.Skipped > 0 {
		cb.logger.Debug("halbackend: commands skipped", "label", cb.label, "count", cb.Skipped)
	}
	return nil
}

func (cb *CommandBuffer) Discard() {
	if cb.pass != nil {
		cb.pass.End()
		cb.pass = nil
	}
	cb.encoder.DiscardEncoding()
}

// BufferUsage maps a tracked buffer usage to WebGPU usage flags.
func BufferUsage(u track.BufferUse) gputypes.BufferUsage {
	var out gputypes.BufferUsage
	pairs := []struct {
		use track.BufferUse
		to  gputypes.BufferUsage
	}{
		{track.BufferUseMapRead, gputypes.BufferUsageMapRead},
		{track.BufferUseMapWrite, gputypes.BufferUsageMapWrite},
		{track.BufferUseCopySrc, gputypes.BufferUsageCopySrc},
		{track.BufferUseCopyDst, gputypes.BufferUsageCopyDst},
		{track.BufferUseIndex, gputypes.BufferUsageIndex},
		{track.BufferUseVertex, gputypes.BufferUsageVertex},
		{track.BufferUseUniform, gputypes.BufferUsageUniform},
		{track.BufferUseStorageLoad | track.BufferUseStorageStore, gputypes.BufferUsageStorage},
		{track.BufferUseIndirect, gputypes.BufferUsageIndirect},
	}
	for _, p := range pairs {
		if u&p.use != 0 {
			out |= p.to
		}
	}
	return out
}

// TextureUsage maps a tracked texture usage to WebGPU usage flags.
func TextureUsage(u track.TextureUse) gputypes.TextureUsage {
	var out gputypes.TextureUsage
	if u&track.TextureUseCopySrc != 0 {
		out |= gputypes.TextureUsageCopySrc
	}
	if u&track.TextureUseCopyDst != 0 {
		out |= gputypes.TextureUsageCopyDst
	}
	if u&track.TextureUseSampled != 0 {
		out |= gputypes.TextureUsageTextureBinding
	}
	if u&(track.TextureUseAttachmentRead|track.TextureUseAttachmentWrite) != 0 {
		out |= gputypes.TextureUsageRenderAttachment
	}
	if u&(track.TextureUseStorageLoad|track.TextureUseStorageStore) != 0 {
		out |= gputypes.TextureUsageStorageBinding
	}
	return out
}

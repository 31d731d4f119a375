package renderpass

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/backend"
	"github.com/gogpu/renderpass/command"
	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/internal/binder"
	"github.com/gogpu/renderpass/internal/drawstate"
	"github.com/gogpu/renderpass/pass"
	"github.com/gogpu/renderpass/resource"
	"github.com/gogpu/renderpass/track"
)

// Sizes of the argument blocks read by indirect draws.
const (
	drawIndirectSize        = 16
	drawIndexedIndirectSize = 20
)

// CommandEncoderRunRenderPass decodes stream, validates every command
// against the pass described by desc and records it into a new backend
// command buffer of the encoder.
//
// Any error discards the pass and invalidates the encoder.
func (h *Hub) CommandEncoderRunRenderPass(encoder hub.ID, desc *RenderPassDescriptor, stream []byte) error {
	devices := h.devices.Read()
	defer devices.Release()
	encoders := h.encoders.Write()
	defer encoders.Release()

	enc, err := encoders.Get(encoder)
	if err != nil {
		return fmt.Errorf("run render pass %q: %w", desc.Label, err)
	}
	enc.passOpen = false
	if err := enc.usable(); err != nil {
		return fmt.Errorf("run render pass %q: %w", desc.Label, err)
	}

	cmds, err := command.Decode(stream)
	if err != nil {
		enc.invalidate(err)
		return fmt.Errorf("run render pass %q: %w", desc.Label, err)
	}
	if t := h.Trace(); t != nil {
		t.recordRenderPass(encoder, desc, cmds)
	}

	d, err := devices.Get(enc.device)
	if err != nil {
		enc.invalidate(err)
		return fmt.Errorf("run render pass %q: %w", desc.Label, err)
	}

	g := h.readResources()
	defer g.release()

	if err := h.runPass(d, enc, g, desc, cmds); err != nil {
		enc.invalidate(err)
		Logger().Warn("render pass failed", "encoder", encoder, "label", desc.Label, "err", err)
		return fmt.Errorf("run render pass %q: %w", desc.Label, err)
	}
	return nil
}

// attachmentView resolves a view for use as an attachment.
func (h *Hub) attachmentView(g *guards, device, id hub.ID) (*resource.TextureView, error) {
	v, err := g.views.Get(id)
	if err != nil {
		return nil, err
	}
	if err := checkDevice("texture view", id, v.Device, device); err != nil {
		return nil, err
	}
	if !v.Surface.IsZero() {
		if _, err := g.surfaces.Get(v.Surface); err != nil {
			return nil, err
		}
		return v, nil
	}
	t, err := g.textures.Get(v.Texture)
	if err != nil {
		return nil, err
	}
	if err := checkTextureUsage(v.Texture, t, gputypes.TextureUsageRenderAttachment); err != nil {
		return nil, err
	}
	return v, nil
}

// passDescriptor resolves the attachments of desc.
func (h *Hub) passDescriptor(g *guards, device hub.ID, desc *RenderPassDescriptor) (pass.Descriptor, map[hub.ID]*resource.TextureView, error) {
	var pd pass.Descriptor
	views := make(map[hub.ID]*resource.TextureView)
	resolve := func(id hub.ID) (pass.View, error) {
		v, err := h.attachmentView(g, device, id)
		if err != nil {
			return pass.View{}, err
		}
		views[id] = v
		return v.PassView(id), nil
	}

	for i, at := range desc.ColorAttachments {
		view, err := resolve(at.View)
		if err != nil {
			return pd, nil, fmt.Errorf("color attachment %d: %w", i, err)
		}
		ca := pass.ColorAttachment{View: view, LoadOp: at.LoadOp, StoreOp: at.StoreOp, ClearColor: at.ClearColor}
		if !at.ResolveTarget.IsZero() {
			rv, err := resolve(at.ResolveTarget)
			if err != nil {
				return pd, nil, fmt.Errorf("resolve target %d: %w", i, err)
			}
			ca.Resolve = &rv
		}
		pd.Colors = append(pd.Colors, ca)
	}
	if ds := desc.DepthStencilAttachment; ds != nil {
		view, err := resolve(ds.View)
		if err != nil {
			return pd, nil, fmt.Errorf("depth-stencil attachment: %w", err)
		}
		pd.DepthStencil = &pass.DepthStencilAttachment{
			View:            view,
			DepthLoadOp:     ds.DepthLoadOp,
			DepthStoreOp:    ds.DepthStoreOp,
			ClearDepth:      ds.ClearDepth,
			DepthReadOnly:   ds.DepthReadOnly,
			StencilLoadOp:   ds.StencilLoadOp,
			StencilStoreOp:  ds.StencilStoreOp,
			ClearStencil:    ds.ClearStencil,
			StencilReadOnly: ds.StencilReadOnly,
		}
	}
	return pd, views, nil
}

func (h *Hub) runPass(d *Device, enc *CommandEncoder, g *guards, desc *RenderPassDescriptor, cmds []command.Command) error {
	pd, views, err := h.passDescriptor(g, enc.device, desc)
	if err != nil {
		return err
	}
	out, err := pass.Build(pd, enc.used.Textures, pass.Options{
		SampleCountMask: h.cfg.Limits.SampleCountMask,
		UsedSurface:     enc.surface,
	})
	if err != nil {
		return err
	}

	rp, err := d.renderPass(out.Key)
	if err != nil {
		return err
	}
	ids := out.FramebufferKey.Views()
	rawViews := make([]backend.TextureView, len(ids))
	for i, id := range ids {
		rawViews[i] = views[id].Raw
	}
	var fb backend.Framebuffer
	if out.Surface.IsZero() {
		fb, err = d.framebuffer(rp, out.FramebufferKey, rawViews)
	} else {
		// Surface images change every frame, so their framebuffers live
		// until the surface is presented instead of in the cache.
		fb, err = d.raw.CreateFramebuffer(rp, rawViews, out.Extent)
		if err == nil {
			enc.surface = out.Surface
			enc.surfaceFramebuffers = append(enc.surfaceFramebuffers, fb)
		}
	}
	if err != nil {
		return err
	}

	raw, err := d.raw.CreateCommandBuffer(desc.Label)
	if err != nil {
		return fmt.Errorf("create command buffer: %w", err)
	}
	if err := raw.BeginRenderPass(&backend.PassBegin{
		Label:       desc.Label,
		RenderPass:  rp,
		Framebuffer: fb,
		Key:         out.Key,
		Views:       rawViews,
		Extent:      out.Extent,
		ClearValues: out.ClearValues,
	}); err != nil {
		raw.Discard()
		return fmt.Errorf("begin render pass: %w", err)
	}
	raw.SetScissor(0, 0, out.Extent.Width, out.Extent.Height)
	raw.SetViewport(0, 0, float32(out.Extent.Width), float32(out.Extent.Height), 0, 1)

	x := h.newExecutor(g, enc.device, raw, out.Context)
	x.extent = out.Extent
	x.dsReadOnly = out.DepthStencilReadOnly
	for id := range views {
		x.used.Views.Add(id)
	}

	for i, c := range cmds {
		if _, ok := c.(command.End); ok {
			break
		}
		if err := x.step(c); err != nil {
			raw.Discard()
			return &CommandError{Index: i, Op: c.Type().String(), Err: err}
		}
	}
	if n := x.state.DebugDepth(); n != 0 {
		Logger().Warn("render pass ended with open debug groups", "label", desc.Label, "open", n)
	}

	if err := h.endPass(x, enc, out); err != nil {
		raw.Discard()
		return err
	}
	return nil
}

// endPass closes the backend pass, folds the pass usages into the encoder
// and records the barriers the pass needs at the end of the previous
// command buffer.
func (h *Hub) endPass(x *executor, enc *CommandEncoder, out *pass.Output) error {
	x.raw.EndRenderPass()

	for _, at := range out.Attachments {
		t, err := x.g.textures.Get(at.Texture)
		if err != nil {
			return err
		}
		if err := checkTextureUsage(at.Texture, t, gputypes.TextureUsageRenderAttachment); err != nil {
			return err
		}
		if err := x.used.Textures.ChangeExtend(at.Texture, at.Range, at.NewUse); err != nil {
			return err
		}
		// The render pass performs the transition out of the previous
		// usage itself.
		if at.HasPrevious {
			if err := x.used.Textures.Prepend(at.Texture, at.Range, at.PreviousUse); err != nil {
				return err
			}
		}
	}

	transitions := enc.used.MergeReplace(x.used)
	prev := enc.last()
	if err := insertBarriers(prev, x.g, transitions); err != nil {
		return err
	}
	if err := prev.Finish(); err != nil {
		return fmt.Errorf("finish command buffer: %w", err)
	}
	enc.raws = append(enc.raws, x.raw)
	Logger().Debug("render pass recorded",
		"encoder", enc.Label,
		"buffer_barriers", len(transitions.Buffers),
		"texture_barriers", len(transitions.Textures),
		"command_buffers", len(enc.raws))
	return nil
}

func insertBarriers(raw backend.CommandBuffer, g *guards, tr track.Transitions) error {
	if len(tr.Buffers) > 0 {
		bufs := make([]backend.BufferBarrier, 0, len(tr.Buffers))
		for _, t := range tr.Buffers {
			b, err := g.buffers.Get(t.ID)
			if err != nil {
				return err
			}
			bufs = append(bufs, backend.BufferBarrier{Buffer: b.Raw, Old: t.Old, New: t.New})
		}
		raw.TransitionBuffers(bufs)
	}
	if len(tr.Textures) > 0 {
		texs := make([]backend.TextureBarrier, 0, len(tr.Textures))
		for _, t := range tr.Textures {
			tex, err := g.textures.Get(t.ID)
			if err != nil {
				return err
			}
			texs = append(texs, backend.TextureBarrier{Texture: tex.Raw, Range: t.Range, Old: t.Old, New: t.New})
		}
		raw.TransitionTextures(texs)
	}
	return nil
}

// executor interprets commands against one pass or bundle.
type executor struct {
	h      *Hub
	g      *guards
	device hub.ID
	raw    backend.CommandBuffer

	state   *drawstate.State
	used    *track.Set
	context pass.Context
	extent  gputypes.Extent3D

	dsReadOnly bool
	// bundle is set while validating a render bundle being finished.
	bundle bool
}

func (h *Hub) newExecutor(g *guards, device hub.ID, raw backend.CommandBuffer, ctx pass.Context) *executor {
	return &executor{
		h:       h,
		g:       g,
		device:  device,
		raw:     raw,
		state:   drawstate.New(h.cfg.Limits.MaxBindGroups),
		used:    track.NewSet(),
		context: ctx,
	}
}

func (x *executor) step(cmd command.Command) error {
	switch c := cmd.(type) {
	case command.SetBindGroup:
		return x.setBindGroup(c)
	case command.SetPipeline:
		return x.setPipeline(c.Pipeline)
	case command.SetIndexBuffer:
		return x.setIndexBuffer(c)
	case command.SetVertexBuffer:
		return x.setVertexBuffer(c)
	case command.SetBlendColor:
		if x.bundle {
			return ErrBundleCommand
		}
		x.state.BlendColor = drawstate.Set
		x.raw.SetBlendConstants(c.Color)
	case command.SetStencilReference:
		if x.bundle {
			return ErrBundleCommand
		}
		x.state.StencilReference = drawstate.Set
		x.raw.SetStencilReference(c.Reference)
	case command.SetViewport:
		if x.bundle {
			return ErrBundleCommand
		}
		if c.W < 0 || c.H < 0 || c.MinDepth < 0 || c.MaxDepth > 1 || c.MinDepth > c.MaxDepth {
			return fmt.Errorf("%w: %vx%v depth [%v, %v]", ErrInvalidViewport, c.W, c.H, c.MinDepth, c.MaxDepth)
		}
		x.raw.SetViewport(c.X, c.Y, c.W, c.H, c.MinDepth, c.MaxDepth)
	case command.SetScissor:
		if x.bundle {
			return ErrBundleCommand
		}
		if uint64(c.X)+uint64(c.W) > uint64(x.extent.Width) || uint64(c.Y)+uint64(c.H) > uint64(x.extent.Height) {
			return fmt.Errorf("%w: (%d,%d %dx%d) in %dx%d", ErrInvalidScissor, c.X, c.Y, c.W, c.H, x.extent.Width, x.extent.Height)
		}
		x.raw.SetScissor(c.X, c.Y, c.W, c.H)
	case command.Draw:
		if err := x.state.CheckDraw(c.VertexCount, c.InstanceCount, c.FirstVertex, c.FirstInstance); err != nil {
			return err
		}
		x.raw.Draw(c.VertexCount, c.InstanceCount, c.FirstVertex, c.FirstInstance)
	case command.DrawIndexed:
		if err := x.state.CheckDrawIndexed(c.IndexCount, c.InstanceCount, c.FirstIndex, c.FirstInstance); err != nil {
			return err
		}
		x.raw.DrawIndexed(c.IndexCount, c.InstanceCount, c.FirstIndex, c.BaseVertex, c.FirstInstance)
	case command.DrawIndirect:
		buf, err := x.indirect(c.Buffer, c.Offset, drawIndirectSize)
		if err != nil {
			return err
		}
		x.raw.DrawIndirect(buf.Raw, c.Offset)
	case command.DrawIndexedIndirect:
		buf, err := x.indirect(c.Buffer, c.Offset, drawIndexedIndirectSize)
		if err != nil {
			return err
		}
		x.raw.DrawIndexedIndirect(buf.Raw, c.Offset)
	case command.PushDebugGroup:
		x.state.PushDebugGroup()
		x.raw.PushDebugGroup(c.Label, c.Color)
	case command.PopDebugGroup:
		if err := x.state.PopDebugGroup(); err != nil {
			return err
		}
		x.raw.PopDebugGroup()
	case command.InsertDebugMarker:
		x.raw.InsertDebugMarker(c.Label, c.Color)
	case command.ExecuteBundle:
		if x.bundle {
			return ErrBundleCommand
		}
		return x.executeBundle(c.Bundle)
	case command.End:
	default:
		return fmt.Errorf("unknown command %T", cmd)
	}
	return nil
}

func (x *executor) buffer(id hub.ID, need gputypes.BufferUsage, use track.BufferUse) (*resource.Buffer, error) {
	buf, err := x.g.buffers.Get(id)
	if err != nil {
		return nil, err
	}
	if err := checkDevice("buffer", id, buf.Device, x.device); err != nil {
		return nil, err
	}
	if err := checkBufferUsage(id, buf, need); err != nil {
		return nil, err
	}
	if err := x.used.Buffers.UseExtend(id, use); err != nil {
		return nil, err
	}
	return buf, nil
}

// bufferEnd returns the end of [offset, offset+size) within buf, where
// size may be command.WholeSize.
func bufferEnd(id hub.ID, buf *resource.Buffer, offset, size uint64) (uint64, error) {
	end := offset + size
	if size == command.WholeSize {
		end = buf.Size
	}
	if offset > buf.Size || end < offset || end > buf.Size {
		return 0, fmt.Errorf("%w: buffer %s [%d, %d) of %d bytes", ErrBufferRange, id, offset, end, buf.Size)
	}
	return end, nil
}

func (x *executor) setBindGroup(c command.SetBindGroup) error {
	if int(c.Index) >= x.state.Binder.Len() {
		return fmt.Errorf("%w: %d >= %d", ErrBindGroupIndex, c.Index, x.state.Binder.Len())
	}
	bg, err := x.g.bindGroups.Get(c.BindGroup)
	if err != nil {
		return err
	}
	if err := checkDevice("bind group", c.BindGroup, bg.Device, x.device); err != nil {
		return err
	}
	if len(c.Offsets) != bg.DynamicCount {
		return fmt.Errorf("%w: bind group %s takes %d, got %d", ErrDynamicOffsetCount, c.BindGroup, bg.DynamicCount, len(c.Offsets))
	}
	for i, off := range c.Offsets {
		if off%BindBufferAlignment != 0 {
			return fmt.Errorf("%w: offset %d is %d, not a multiple of %d", ErrDynamicOffsetAlignment, i, off, BindBufferAlignment)
		}
	}

	x.used.BindGroups.Add(c.BindGroup)
	if err := x.used.MergeExtend(bg.Used); err != nil {
		return err
	}
	bindings, ok := x.state.Binder.Provide(int(c.Index), c.BindGroup, bg.Layout, c.Offsets)
	if !ok {
		return nil
	}
	pl, err := x.g.pipelineLayouts.Get(x.state.Binder.PipelineLayout)
	if err != nil {
		return err
	}
	return x.bindGroups(pl, bindings)
}

func (x *executor) bindGroups(pl *resource.PipelineLayout, bindings []binder.Binding) error {
	for _, b := range bindings {
		group, err := x.g.bindGroups.Get(b.Group)
		if err != nil {
			return err
		}
		x.raw.BindGroup(pl.Raw, uint32(b.Index), group.Raw, b.Offsets)
	}
	return nil
}

func (x *executor) setPipeline(id hub.ID) error {
	p, err := x.g.pipelines.Get(id)
	if err != nil {
		return err
	}
	if err := checkDevice("render pipeline", id, p.Device, x.device); err != nil {
		return err
	}
	if !x.context.Compatible(p.Context) {
		return &IncompatiblePipelineError{Pipeline: id, Pass: x.context, Expected: p.Context}
	}
	if x.dsReadOnly && !p.Flags.Has(resource.PipelineDepthStencilReadOnly) {
		return fmt.Errorf("%w: pipeline %s", ErrDepthStencilReadOnly, id)
	}
	x.used.Pipelines.Add(id)

	x.state.Pipeline = drawstate.Set
	x.state.BlendColor.Require(p.Flags.Has(resource.PipelineBlendColor))
	x.state.StencilReference.Require(p.Flags.Has(resource.PipelineStencilReference))
	x.raw.BindPipeline(p.Raw)

	pl, err := x.g.pipelineLayouts.Get(p.Layout)
	if err != nil {
		return err
	}
	if err := x.bindGroups(pl, x.state.Binder.SetPipelineLayout(p.Layout, pl.BindGroupLayouts)); err != nil {
		return err
	}

	if idx := &x.state.Index; idx.Format != p.IndexFormat {
		idx.Format = p.IndexFormat
		idx.UpdateLimit()
		if idx.Bound() {
			buf, err := x.g.buffers.Get(idx.Buffer)
			if err != nil {
				return err
			}
			x.raw.BindIndexBuffer(buf.Raw, idx.Offset, idx.Format)
		}
	}

	layouts := make([]drawstate.VertexLayout, len(p.VertexBuffers))
	for i, vb := range p.VertexBuffers {
		layouts[i] = drawstate.VertexLayout{Stride: vb.ArrayStride, StepMode: vb.StepMode}
	}
	x.state.Vertex.SetLayouts(layouts)
	return nil
}

func (x *executor) setIndexBuffer(c command.SetIndexBuffer) error {
	buf, err := x.buffer(c.Buffer, gputypes.BufferUsageIndex, track.BufferUseIndex)
	if err != nil {
		return err
	}
	end, err := bufferEnd(c.Buffer, buf, c.Offset, c.Size)
	if err != nil {
		return err
	}
	x.state.Index.Bind(c.Buffer, c.Offset, end)
	x.raw.BindIndexBuffer(buf.Raw, c.Offset, x.state.Index.Format)
	return nil
}

func (x *executor) setVertexBuffer(c command.SetVertexBuffer) error {
	if limit := x.h.cfg.Limits.MaxVertexBuffers; int64(c.Slot) >= int64(limit) {
		return fmt.Errorf("%w: %d >= %d", ErrVertexSlot, c.Slot, limit)
	}
	buf, err := x.buffer(c.Buffer, gputypes.BufferUsageVertex, track.BufferUseVertex)
	if err != nil {
		return err
	}
	end, err := bufferEnd(c.Buffer, buf, c.Offset, c.Size)
	if err != nil {
		return err
	}
	x.state.Vertex.Bind(int(c.Slot), end-c.Offset)
	x.raw.BindVertexBuffer(c.Slot, buf.Raw, c.Offset)
	return nil
}

// indirect validates an indirect draw reading size bytes at offset.
func (x *executor) indirect(id hub.ID, offset, size uint64) (*resource.Buffer, error) {
	if err := x.state.IsReady(); err != nil {
		return nil, err
	}
	if offset%4 != 0 {
		return nil, fmt.Errorf("%w: %d", ErrIndirectAlignment, offset)
	}
	buf, err := x.buffer(id, gputypes.BufferUsageIndirect, track.BufferUseIndirect)
	if err != nil {
		return nil, err
	}
	if _, err := bufferEnd(id, buf, offset, size); err != nil {
		return nil, err
	}
	return buf, nil
}

// executeBundle replays a bundle. The bundle binds its own pipeline and
// resources, so afterwards nothing bound before it can be relied on.
func (x *executor) executeBundle(id hub.ID) error {
	b, err := x.g.bundles.Get(id)
	if err != nil {
		return err
	}
	if err := checkDevice("render bundle", id, b.Device, x.device); err != nil {
		return err
	}
	if !x.context.Compatible(b.Context) {
		return &IncompatibleBundleError{Bundle: id, Pass: x.context, Expected: b.Context}
	}

	sub := x.h.newExecutor(x.g, x.device, x.raw, x.context)
	sub.extent = x.extent
	sub.dsReadOnly = x.dsReadOnly
	sub.state.BlendColor = x.state.BlendColor
	sub.state.StencilReference = x.state.StencilReference
	for i, c := range b.Commands {
		if err := sub.step(c); err != nil {
			return fmt.Errorf("render bundle %s: %w", id, &CommandError{Index: i, Op: c.Type().String(), Err: err})
		}
	}

	x.used.Bundles.Add(id)
	if err := x.used.MergeExtend(b.Used); err != nil {
		return err
	}
	x.state.ResetBundle()
	return nil
}

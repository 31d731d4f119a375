package renderpass

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/renderpass/backend/noop"
	"github.com/gogpu/renderpass/command"
	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/internal/drawstate"
	"github.com/gogpu/renderpass/pass"
	"github.com/gogpu/renderpass/resource"
	"github.com/gogpu/renderpass/track"
)

func vertexLayouts(strides ...uint64) func(*RenderPipelineDescriptor) {
	return func(d *RenderPipelineDescriptor) {
		for _, s := range strides {
			d.VertexBuffers = append(d.VertexBuffers, resource.VertexBufferLayout{
				ArrayStride: s,
				StepMode:    gputypes.VertexStepModeVertex,
			})
		}
	}
}

func TestRunRenderPassRecordsCommands(t *testing.T) {
	f := newFixture(t)
	pipeline := f.pipeline(vertexLayouts(16))
	vb := f.buffer(64, gputypes.BufferUsageVertex)

	enc := f.encoder()
	err := f.run(enc, f.colorPass(f.colorView, gputypes.LoadOpClear), func(p *RenderPass) {
		p.SetPipeline(pipeline)
		p.SetVertexBuffer(0, vb, 0, command.WholeSize)
		p.PushDebugGroup("quad", 0)
		p.Draw(4, 1, 0, 0)
		p.PopDebugGroup()
	})
	require.NoError(t, err)

	cb, raws := f.finish(enc)
	require.Len(t, raws, 2)
	assert.Empty(t, raws[0].Calls)
	assert.True(t, raws[0].Finished)
	assert.Equal(t, []string{
		"BeginRenderPass", "SetScissor", "SetViewport",
		"BindPipeline", "BindVertexBuffer",
		"PushDebugGroup", "Draw", "PopDebugGroup",
		"EndRenderPass",
	}, raws[1].Ops())
	assert.True(t, raws[1].Finished)

	assert.True(t, cb.Used.Pipelines.Contains(pipeline))
	assert.True(t, cb.Used.Views.Contains(f.colorView))
	use, ok := cb.Used.Buffers.Query(vb)
	require.True(t, ok)
	assert.Equal(t, track.BufferUseVertex, use)
}

func TestRunRenderPassDrawErrors(t *testing.T) {
	f := newFixture(t)
	bgl, group := f.uniformGroup(false)
	withGroup := f.pipelineLayout(bgl)

	plain := f.pipeline(nil)
	blend := f.pipeline(func(d *RenderPipelineDescriptor) {
		d.ColorTargets[0].BlendConstant = true
	})
	grouped := f.pipeline(func(d *RenderPipelineDescriptor) { d.Layout = withGroup })

	tests := []struct {
		name   string
		record func(p *RenderPass)
		kind   drawstate.DrawErrorKind
		index  uint32
	}{
		{"no pipeline", func(p *RenderPass) {
			p.Draw(3, 1, 0, 0)
		}, MissingPipeline, 0},
		{"no blend color", func(p *RenderPass) {
			p.SetPipeline(blend)
			p.Draw(3, 1, 0, 0)
		}, MissingBlendColor, 0},
		{"blend color set", func(p *RenderPass) {
			p.SetBlendColor(gputypes.Color{R: 1})
			p.SetPipeline(blend)
			p.Draw(3, 1, 0, 0)
		}, 0, 0},
		{"missing bind group", func(p *RenderPass) {
			p.SetPipeline(grouped)
			p.Draw(3, 1, 0, 0)
		}, IncompatibleBindGroup, 0},
		{"bind group set", func(p *RenderPass) {
			p.SetBindGroup(0, group)
			p.SetPipeline(grouped)
			p.Draw(3, 1, 0, 0)
		}, 0, 0},
		{"pipeline only", func(p *RenderPass) {
			p.SetPipeline(plain)
			p.Draw(3, 1, 0, 0)
		}, 0, 0},
		{"indirect before pipeline", func(p *RenderPass) {
			p.DrawIndirect(f.buffer(64, gputypes.BufferUsageIndirect), 0)
		}, MissingPipeline, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := f.encoder()
			err := f.run(enc, f.colorPass(f.colorView, gputypes.LoadOpLoad), tt.record)
			if tt.kind == 0 {
				require.NoError(t, err)
				return
			}
			var de *DrawError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.kind, de.Kind)
			assert.Equal(t, tt.index, de.Index)
			assert.ErrorIs(t, err, ErrNotReady)
		})
	}
}

func TestRunRenderPassStencilReference(t *testing.T) {
	f := newFixture(t)
	_, depth := f.texture(gputypes.TextureFormatDepth24PlusStencil8, 1, gputypes.TextureUsageRenderAttachment)
	pipeline := f.pipeline(func(d *RenderPipelineDescriptor) {
		d.DepthStencil = &DepthStencilState{
			Format:            gputypes.TextureFormatDepth24PlusStencil8,
			DepthWriteEnabled: true,
			StencilReference:  true,
		}
	})
	desc := func() *RenderPassDescriptor {
		d := f.colorPass(f.colorView, gputypes.LoadOpClear)
		d.DepthStencilAttachment = &RenderPassDepthStencilAttachment{
			View:           depth,
			DepthLoadOp:    gputypes.LoadOpClear,
			DepthStoreOp:   gputypes.StoreOpStore,
			ClearDepth:     1,
			StencilLoadOp:  gputypes.LoadOpClear,
			StencilStoreOp: gputypes.StoreOpStore,
		}
		return d
	}

	err := f.run(f.encoder(), desc(), func(p *RenderPass) {
		p.SetPipeline(pipeline)
		p.Draw(3, 1, 0, 0)
	})
	var de *DrawError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, MissingStencilReference, de.Kind)

	enc := f.encoder()
	require.NoError(t, f.run(enc, desc(), func(p *RenderPass) {
		p.SetStencilReference(7)
		p.SetPipeline(pipeline)
		p.Draw(3, 1, 0, 0)
	}))
	_, raws := f.finish(enc)
	assert.Equal(t, 1, raws[1].Count("SetStencilReference"))
}

func TestRunRenderPassLimits(t *testing.T) {
	f := newFixture(t)
	vb := f.buffer(64, gputypes.BufferUsageVertex)
	ib16 := f.buffer(16, gputypes.BufferUsageIndex)
	ib15 := f.buffer(15, gputypes.BufferUsageIndex)
	pipeline := f.pipeline(vertexLayouts(16))
	pipeline32 := f.pipeline(func(d *RenderPipelineDescriptor) {
		d.IndexFormat = gputypes.IndexFormatUint32
	})

	tests := []struct {
		name   string
		record func(p *RenderPass)
		kind   drawstate.LimitKind
		last   uint64
		limit  uint32
	}{
		{"vertices within buffer", func(p *RenderPass) {
			p.SetPipeline(pipeline)
			p.SetVertexBuffer(0, vb, 0, command.WholeSize)
			p.Draw(4, 1, 0, 0)
		}, 0, 0, 0},
		{"vertices past buffer", func(p *RenderPass) {
			p.SetPipeline(pipeline)
			p.SetVertexBuffer(0, vb, 0, command.WholeSize)
			p.Draw(4, 1, 1, 0)
		}, drawstate.VertexLimit, 5, 4},
		{"vertex buffer offset", func(p *RenderPass) {
			p.SetPipeline(pipeline)
			p.SetVertexBuffer(0, vb, 32, command.WholeSize)
			p.Draw(3, 1, 0, 0)
		}, drawstate.VertexLimit, 3, 2},
		{"uint32 indices 16 bytes", func(p *RenderPass) {
			p.SetPipeline(pipeline32)
			p.SetIndexBuffer(ib16, 0, command.WholeSize)
			p.DrawIndexed(4, 1, 0, 0, 0)
		}, 0, 0, 0},
		{"uint32 indices 15 bytes", func(p *RenderPass) {
			p.SetPipeline(pipeline32)
			p.SetIndexBuffer(ib15, 0, command.WholeSize)
			p.DrawIndexed(4, 1, 0, 0, 0)
		}, drawstate.IndexLimit, 4, 3},
		{"uint16 indices", func(p *RenderPass) {
			p.SetIndexBuffer(ib16, 0, command.WholeSize)
			p.SetPipeline(pipeline)
			p.SetVertexBuffer(0, vb, 0, command.WholeSize)
			p.DrawIndexed(8, 1, 0, 0, 0)
		}, 0, 0, 0},
		{"format follows pipeline", func(p *RenderPass) {
			p.SetIndexBuffer(ib16, 0, command.WholeSize)
			p.SetPipeline(pipeline32)
			p.DrawIndexed(5, 1, 0, 0, 0)
		}, drawstate.IndexLimit, 5, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.run(f.encoder(), f.colorPass(f.colorView, gputypes.LoadOpLoad), tt.record)
			if tt.kind == 0 {
				require.NoError(t, err)
				return
			}
			var le *LimitError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.kind, le.Kind)
			assert.Equal(t, tt.last, le.Last)
			assert.Equal(t, tt.limit, le.Limit)
			assert.ErrorIs(t, err, ErrLimitExceeded)
		})
	}
}

func TestRunRenderPassIndexFormatRebind(t *testing.T) {
	f := newFixture(t)
	ib := f.buffer(64, gputypes.BufferUsageIndex)
	p16 := f.pipeline(nil)
	p32 := f.pipeline(func(d *RenderPipelineDescriptor) { d.IndexFormat = gputypes.IndexFormatUint32 })

	enc := f.encoder()
	require.NoError(t, f.run(enc, f.colorPass(f.colorView, gputypes.LoadOpLoad), func(p *RenderPass) {
		p.SetIndexBuffer(ib, 0, command.WholeSize)
		p.SetPipeline(p16)
		p.SetPipeline(p32)
		p.SetPipeline(p32)
		p.DrawIndexed(16, 1, 0, 0, 0)
	}))
	_, raws := f.finish(enc)

	var formats []any
	for _, c := range raws[1].Calls {
		if c.Op == "BindIndexBuffer" {
			formats = append(formats, c.Args[2])
		}
	}
	assert.Equal(t, []any{gputypes.IndexFormatUint16, gputypes.IndexFormatUint32}, formats)
}

func TestRunRenderPassVertexSlots(t *testing.T) {
	f := newFixture(t)
	vb := f.buffer(64, gputypes.BufferUsageVertex)
	instances := f.buffer(64, gputypes.BufferUsageVertex)
	pipeline := f.pipeline(nil)

	enc := f.encoder()
	require.NoError(t, f.run(enc, f.colorPass(f.colorView, gputypes.LoadOpLoad), func(p *RenderPass) {
		p.SetPipeline(pipeline)
		// Slots 0-2 become placeholders that do not limit the draw.
		p.SetVertexBuffer(3, vb, 0, command.WholeSize)
		p.Draw(1000, 1, 0, 0)
	}))
	_, raws := f.finish(enc)
	assert.Equal(t, 1, raws[1].Count("BindVertexBuffer"))

	strided := f.pipeline(vertexLayouts(16, 16, 16, 16))
	perInstance := f.pipeline(func(d *RenderPipelineDescriptor) {
		vertexLayouts(16)(d)
		d.VertexBuffers = append(d.VertexBuffers, resource.VertexBufferLayout{
			ArrayStride: 32,
			StepMode:    gputypes.VertexStepModeInstance,
		})
	})

	tests := []struct {
		name   string
		record func(p *RenderPass)
		kind   drawstate.LimitKind
		last   uint64
		limit  uint32
	}{
		{"placeholders under strided pipeline", func(p *RenderPass) {
			p.SetPipeline(strided)
			p.SetVertexBuffer(3, vb, 0, command.WholeSize)
			p.Draw(4, 1, 0, 0)
		}, 0, 0, 0},
		{"placeholders before strided pipeline", func(p *RenderPass) {
			p.SetVertexBuffer(3, vb, 0, command.WholeSize)
			p.SetPipeline(strided)
			p.Draw(4, 1, 0, 0)
		}, 0, 0, 0},
		{"one vertex past the slot", func(p *RenderPass) {
			p.SetPipeline(strided)
			p.SetVertexBuffer(3, vb, 0, command.WholeSize)
			p.Draw(5, 1, 0, 0)
		}, drawstate.VertexLimit, 5, 4},
		{"smallest bound slot wins", func(p *RenderPass) {
			p.SetPipeline(strided)
			p.SetVertexBuffer(3, vb, 0, command.WholeSize)
			p.SetVertexBuffer(1, vb, 0, 32)
			p.Draw(3, 1, 0, 0)
		}, drawstate.VertexLimit, 3, 2},
		{"instances within slot", func(p *RenderPass) {
			p.SetPipeline(perInstance)
			p.SetVertexBuffer(0, vb, 0, command.WholeSize)
			p.SetVertexBuffer(1, instances, 0, command.WholeSize)
			p.Draw(4, 2, 0, 0)
		}, 0, 0, 0},
		{"instances past slot", func(p *RenderPass) {
			p.SetPipeline(perInstance)
			p.SetVertexBuffer(0, vb, 0, command.WholeSize)
			p.SetVertexBuffer(1, instances, 0, command.WholeSize)
			p.Draw(4, 2, 0, 1)
		}, drawstate.InstanceLimit, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.run(f.encoder(), f.colorPass(f.colorView, gputypes.LoadOpLoad), tt.record)
			if tt.kind == 0 {
				require.NoError(t, err)
				return
			}
			var le *LimitError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.kind, le.Kind)
			assert.Equal(t, tt.last, le.Last)
			assert.Equal(t, tt.limit, le.Limit)
		})
	}

	err := f.run(f.encoder(), f.colorPass(f.colorView, gputypes.LoadOpLoad), func(p *RenderPass) {
		p.SetVertexBuffer(8, vb, 0, command.WholeSize)
	})
	assert.ErrorIs(t, err, ErrVertexSlot)

	err = f.run(f.encoder(), f.colorPass(f.colorView, gputypes.LoadOpLoad), func(p *RenderPass) {
		p.SetVertexBuffer(0, vb, 48, 32)
	})
	assert.ErrorIs(t, err, ErrBufferRange)
}

func TestRunRenderPassBindGroups(t *testing.T) {
	f := newFixture(t)
	bgl, group := f.uniformGroup(false)
	dynLayout, dynGroup := f.uniformGroup(true)
	pipeline := f.pipeline(func(d *RenderPipelineDescriptor) { d.Layout = f.pipelineLayout(bgl, dynLayout) })

	t.Run("rebound after pipeline", func(t *testing.T) {
		enc := f.encoder()
		require.NoError(t, f.run(enc, f.colorPass(f.colorView, gputypes.LoadOpLoad), func(p *RenderPass) {
			p.SetBindGroup(0, group)
			p.SetBindGroup(1, dynGroup, 256)
			p.SetPipeline(pipeline)
			p.Draw(3, 1, 0, 0)
		}))
		_, raws := f.finish(enc)
		var bound []string
		for _, c := range raws[1].Calls {
			switch c.Op {
			case "BindPipeline", "BindGroup", "Draw":
				bound = append(bound, c.Op)
			}
		}
		assert.Equal(t, []string{"BindPipeline", "BindGroup", "BindGroup", "Draw"}, bound)
	})

	t.Run("offsets per call", func(t *testing.T) {
		enc := f.encoder()
		require.NoError(t, f.run(enc, f.colorPass(f.colorView, gputypes.LoadOpLoad), func(p *RenderPass) {
			p.SetPipeline(pipeline)
			p.SetBindGroup(0, group)
			p.SetBindGroup(1, dynGroup, 0)
			p.Draw(3, 1, 0, 0)
			p.SetBindGroup(1, dynGroup, 256)
			p.Draw(3, 1, 0, 0)
		}))
		_, raws := f.finish(enc)
		var offsets [][]uint32
		for _, c := range raws[1].Calls {
			if c.Op == "BindGroup" && c.Args[0] == uint32(1) {
				offsets = append(offsets, c.Args[2].([]uint32))
			}
		}
		assert.Equal(t, [][]uint32{{0}, {256}}, offsets)
	})

	tests := []struct {
		name   string
		record func(p *RenderPass)
		want   error
	}{
		{"missing offset", func(p *RenderPass) { p.SetBindGroup(1, dynGroup) }, ErrDynamicOffsetCount},
		{"extra offset", func(p *RenderPass) { p.SetBindGroup(0, group, 0) }, ErrDynamicOffsetCount},
		{"unaligned offset", func(p *RenderPass) { p.SetBindGroup(1, dynGroup, 100) }, ErrDynamicOffsetAlignment},
		{"index past limit", func(p *RenderPass) { p.SetBindGroup(4, group) }, ErrBindGroupIndex},
		{"index past u8", func(p *RenderPass) { p.SetBindGroup(300, group) }, ErrBindGroupIndex},
		{"stale group", func(p *RenderPass) { p.SetBindGroup(0, hub.NewID(99, 1)) }, hub.ErrInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := f.encoder()
			err := f.run(enc, f.colorPass(f.colorView, gputypes.LoadOpLoad), tt.record)
			assert.ErrorIs(t, err, tt.want)

			_, err = f.h.CommandEncoderFinish(enc)
			assert.ErrorIs(t, err, ErrEncoderInvalid)
		})
	}
}

func TestRunRenderPassStateCommands(t *testing.T) {
	f := newFixture(t)
	indirect := f.buffer(64, gputypes.BufferUsageIndirect)
	vertexOnly := f.buffer(64, gputypes.BufferUsageVertex)
	pipeline := f.pipeline(nil)

	tests := []struct {
		name   string
		record func(p *RenderPass)
		want   error
	}{
		{"viewport", func(p *RenderPass) { p.SetViewport(0, 0, 32, 32, 0, 1) }, nil},
		{"negative viewport", func(p *RenderPass) { p.SetViewport(0, 0, -1, 32, 0, 1) }, ErrInvalidViewport},
		{"viewport depth", func(p *RenderPass) { p.SetViewport(0, 0, 32, 32, 0.5, 1.5) }, ErrInvalidViewport},
		{"inverted depth", func(p *RenderPass) { p.SetViewport(0, 0, 32, 32, 0.8, 0.2) }, ErrInvalidViewport},
		{"scissor", func(p *RenderPass) { p.SetScissorRect(32, 32, 32, 32) }, nil},
		{"scissor past target", func(p *RenderPass) { p.SetScissorRect(32, 32, 33, 32) }, ErrInvalidScissor},
		{"debug underflow", func(p *RenderPass) {
			p.PushDebugGroup("a", 0)
			p.PopDebugGroup()
			p.PopDebugGroup()
		}, ErrDebugUnderflow},
		{"open debug group", func(p *RenderPass) { p.PushDebugGroup("a", 0) }, nil},
		{"indirect", func(p *RenderPass) {
			p.SetPipeline(pipeline)
			p.DrawIndirect(indirect, 48)
			p.DrawIndexedIndirect(indirect, 44)
		}, nil},
		{"indirect alignment", func(p *RenderPass) {
			p.SetPipeline(pipeline)
			p.DrawIndirect(indirect, 2)
		}, ErrIndirectAlignment},
		{"indirect range", func(p *RenderPass) {
			p.SetPipeline(pipeline)
			p.DrawIndexedIndirect(indirect, 48)
		}, ErrBufferRange},
		{"indirect usage", func(p *RenderPass) {
			p.SetPipeline(pipeline)
			p.DrawIndirect(vertexOnly, 0)
		}, ErrMissingUsage},
		{"index usage", func(p *RenderPass) {
			p.SetIndexBuffer(vertexOnly, 0, command.WholeSize)
		}, ErrMissingUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.run(f.encoder(), f.colorPass(f.colorView, gputypes.LoadOpLoad), tt.record)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRunRenderPassCommandError(t *testing.T) {
	f := newFixture(t)
	enc := f.encoder()
	err := f.run(enc, f.colorPass(f.colorView, gputypes.LoadOpLoad), func(p *RenderPass) {
		p.InsertDebugMarker("start", 0)
		p.PopDebugGroup()
	})

	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Index)
	assert.Equal(t, "PopDebugGroup", ce.Op)
	assert.ErrorIs(t, err, ErrDebugUnderflow)

	_, err = f.h.CommandEncoderBeginRenderPass(enc, f.colorPass(f.colorView, gputypes.LoadOpLoad))
	assert.ErrorIs(t, err, ErrEncoderInvalid)
	assert.ErrorIs(t, err, ErrDebugUnderflow)
}

func TestRunRenderPassUsageConflict(t *testing.T) {
	f := newFixture(t)
	buf := f.buffer(256, gputypes.BufferUsageStorage|gputypes.BufferUsageIndex)
	bgl, err := f.h.DeviceCreateBindGroupLayout(f.device, &BindGroupLayoutDescriptor{
		Entries: []resource.BindGroupLayoutEntry{{Binding: 0, Type: resource.BindingStorageBuffer}},
	})
	require.NoError(t, err)
	group, err := f.h.DeviceCreateBindGroup(f.device, &BindGroupDescriptor{
		Raw:     "raw-storage",
		Layout:  bgl,
		Entries: []BindGroupEntry{{Binding: 0, Buffer: buf, Size: command.WholeSize}},
	})
	require.NoError(t, err)

	err = f.run(f.encoder(), f.colorPass(f.colorView, gputypes.LoadOpLoad), func(p *RenderPass) {
		p.SetBindGroup(0, group)
		p.SetIndexBuffer(buf, 0, command.WholeSize)
	})
	assert.ErrorIs(t, err, track.ErrUsageConflict)
}

func TestRunRenderPassPipelineCompatibility(t *testing.T) {
	f := newFixture(t)
	_, depth := f.texture(gputypes.TextureFormatDepth32Float, 1, gputypes.TextureUsageRenderAttachment)

	rgba := f.pipeline(func(d *RenderPipelineDescriptor) {
		d.ColorTargets[0].Format = gputypes.TextureFormatRGBA8Unorm
	})
	writer := f.pipeline(func(d *RenderPipelineDescriptor) {
		d.DepthStencil = &DepthStencilState{Format: gputypes.TextureFormatDepth32Float, DepthWriteEnabled: true}
	})
	reader := f.pipeline(func(d *RenderPipelineDescriptor) {
		d.DepthStencil = &DepthStencilState{Format: gputypes.TextureFormatDepth32Float}
	})
	readOnlyPass := func() *RenderPassDescriptor {
		d := f.colorPass(f.colorView, gputypes.LoadOpLoad)
		d.DepthStencilAttachment = &RenderPassDepthStencilAttachment{
			View:          depth,
			DepthLoadOp:   gputypes.LoadOpLoad,
			DepthStoreOp:  gputypes.StoreOpStore,
			DepthReadOnly: true,
		}
		return d
	}

	err := f.run(f.encoder(), f.colorPass(f.colorView, gputypes.LoadOpLoad), func(p *RenderPass) {
		p.SetPipeline(rgba)
	})
	var ipe *IncompatiblePipelineError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, rgba, ipe.Pipeline)
	assert.ErrorIs(t, err, ErrIncompatiblePipeline)

	err = f.run(f.encoder(), readOnlyPass(), func(p *RenderPass) { p.SetPipeline(writer) })
	assert.ErrorIs(t, err, ErrDepthStencilReadOnly)

	err = f.run(f.encoder(), readOnlyPass(), func(p *RenderPass) {
		p.SetPipeline(reader)
		p.Draw(3, 1, 0, 0)
	})
	assert.NoError(t, err)

	clearing := readOnlyPass()
	clearing.DepthStencilAttachment.DepthLoadOp = gputypes.LoadOpClear
	err = f.run(f.encoder(), clearing, nil)
	assert.ErrorIs(t, err, pass.ErrReadOnlyOps)
}

func TestRunRenderPassAttachmentErrors(t *testing.T) {
	f := newFixture(t)
	_, sampledOnly := f.texture(gputypes.TextureFormatBGRA8Unorm, 1, gputypes.TextureUsageTextureBinding)

	other := f.h.DeviceCreate(noop.NewDevice(), "other")
	otherTex, err := f.h.DeviceCreateTexture(other, &TextureDescriptor{
		Raw:    "raw-other",
		Format: gputypes.TextureFormatBGRA8Unorm,
		Size:   gputypes.Extent3D{Width: 64, Height: 64},
		Usage:  gputypes.TextureUsageRenderAttachment,
	})
	require.NoError(t, err)
	otherView, err := f.h.TextureCreateView(otherTex, &TextureViewDescriptor{Raw: "raw-other-view"})
	require.NoError(t, err)

	tests := []struct {
		name string
		desc *RenderPassDescriptor
		want error
	}{
		{"missing usage", f.colorPass(sampledOnly, gputypes.LoadOpLoad), ErrMissingUsage},
		{"other device", f.colorPass(otherView, gputypes.LoadOpLoad), ErrDeviceMismatch},
		{"no attachments", &RenderPassDescriptor{Label: "empty"}, pass.ErrNoAttachments},
		{"unknown view", f.colorPass(hub.NewID(42, 1), gputypes.LoadOpLoad), hub.ErrInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := f.encoder()
			assert.ErrorIs(t, f.run(enc, tt.desc, nil), tt.want)
			_, err := f.h.CommandEncoderFinish(enc)
			assert.ErrorIs(t, err, ErrEncoderInvalid)
		})
	}
}

func TestRunRenderPassBarriers(t *testing.T) {
	f := newFixture(t)
	target, targetView := f.texture(gputypes.TextureFormatBGRA8Unorm, 1,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding)

	bgl, err := f.h.DeviceCreateBindGroupLayout(f.device, &BindGroupLayoutDescriptor{
		Entries: []resource.BindGroupLayoutEntry{{Binding: 0, Type: resource.BindingSampledTexture}},
	})
	require.NoError(t, err)
	sampled, err := f.h.DeviceCreateBindGroup(f.device, &BindGroupDescriptor{
		Raw:     "raw-sampled",
		Layout:  bgl,
		Entries: []BindGroupEntry{{Binding: 0, TextureView: targetView}},
	})
	require.NoError(t, err)

	enc := f.encoder()
	require.NoError(t, f.run(enc, f.colorPass(targetView, gputypes.LoadOpClear), nil))
	require.NoError(t, f.run(enc, f.colorPass(f.colorView, gputypes.LoadOpClear), func(p *RenderPass) {
		p.SetBindGroup(0, sampled)
	}))
	cb, raws := f.finish(enc)
	require.Len(t, raws, 3)

	assert.Empty(t, raws[0].TextureBarriers)
	require.Len(t, raws[1].TextureBarriers, 1)
	b := raws[1].TextureBarriers[0]
	assert.Equal(t, track.TextureUseAttachmentWrite, b.Old)
	assert.Equal(t, track.TextureUseSampled, b.New)
	assert.Equal(t, "TransitionTextures", raws[1].Ops()[len(raws[1].Calls)-1])
	assert.Empty(t, raws[2].TextureBarriers)

	whole := track.SubresourceRange{Aspects: track.AspectColor, MipLevelCount: 1, LayerCount: 1}
	use, ok := cb.Used.Textures.Query(target, whole)
	require.True(t, ok)
	assert.Equal(t, track.TextureUseSampled, use)
}

func TestRunRenderPassCaches(t *testing.T) {
	f := newFixture(t)
	_, second := f.texture(gputypes.TextureFormatBGRA8Unorm, 1, gputypes.TextureUsageRenderAttachment)

	for range 3 {
		enc := f.encoder()
		require.NoError(t, f.run(enc, f.colorPass(f.colorView, gputypes.LoadOpClear), nil))
		f.finish(enc)
	}
	stats, err := f.h.DeviceCacheStats(f.device)
	require.NoError(t, err)
	assert.Equal(t, CacheStats{
		RenderPasses: 1, RenderPassHits: 2, RenderPassMisses: 1,
		Framebuffers: 1, FramebufferHits: 2, FramebufferMisses: 1,
	}, stats)

	// A different load op needs a new render pass but not a new
	// framebuffer; a different view needs a new framebuffer only.
	enc := f.encoder()
	require.NoError(t, f.run(enc, f.colorPass(f.colorView, gputypes.LoadOpLoad), nil))
	require.NoError(t, f.run(enc, f.colorPass(second, gputypes.LoadOpLoad), nil))
	f.finish(enc)

	stats, err = f.h.DeviceCacheStats(f.device)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RenderPasses)
	assert.Equal(t, 2, stats.Framebuffers)
	rps, fbs, _, _ := f.raw.Stats()
	assert.Equal(t, 2, rps)
	assert.Equal(t, 2, fbs)

	require.NoError(t, f.h.DeviceDestroy(f.device))
	assert.Zero(t, f.raw.Live())
}

func TestRunRenderPassBackendFailure(t *testing.T) {
	f := newFixture(t)
	f.raw.FailOn("CreateFramebuffer")

	enc := f.encoder()
	err := f.run(enc, f.colorPass(f.colorView, gputypes.LoadOpClear), nil)
	assert.ErrorIs(t, err, noop.ErrInjected)

	_, err = f.h.CommandEncoderFinish(enc)
	assert.True(t, errors.Is(err, ErrEncoderInvalid))
}

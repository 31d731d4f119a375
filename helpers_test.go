package renderpass

import (
	"fmt"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/renderpass/backend/noop"
	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/resource"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h, err := NewHub(Config{Label: t.Name()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// fixture is a hub with one noop device and a 64x64 color target.
type fixture struct {
	t      *testing.T
	h      *Hub
	raw    *noop.Device
	device hub.ID

	color     hub.ID
	colorView hub.ID
	layout    hub.ID // empty pipeline layout
	n         int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, h: newTestHub(t), raw: noop.NewDevice()}
	f.device = f.h.DeviceCreate(f.raw, "test")
	f.color, f.colorView = f.texture(gputypes.TextureFormatBGRA8Unorm, 1, gputypes.TextureUsageRenderAttachment)
	f.layout = f.pipelineLayout()
	return f
}

func (f *fixture) name(kind string) string {
	f.n++
	return fmt.Sprintf("%s%d", kind, f.n)
}

func (f *fixture) texture(format gputypes.TextureFormat, samples uint32, usage gputypes.TextureUsage) (tex, view hub.ID) {
	f.t.Helper()
	tex, err := f.h.DeviceCreateTexture(f.device, &TextureDescriptor{
		Label:       f.name("tex"),
		Raw:         f.name("raw-tex"),
		Format:      format,
		Size:        gputypes.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: 1},
		SampleCount: samples,
		Usage:       usage,
	})
	require.NoError(f.t, err)
	view, err = f.h.TextureCreateView(tex, &TextureViewDescriptor{Label: f.name("view"), Raw: f.name("raw-view")})
	require.NoError(f.t, err)
	return tex, view
}

func (f *fixture) buffer(size uint64, usage gputypes.BufferUsage) hub.ID {
	f.t.Helper()
	id, err := f.h.DeviceCreateBuffer(f.device, &BufferDescriptor{
		Label: f.name("buf"),
		Raw:   f.name("raw-buf"),
		Size:  size,
		Usage: usage,
	})
	require.NoError(f.t, err)
	return id
}

func (f *fixture) pipelineLayout(groups ...hub.ID) hub.ID {
	f.t.Helper()
	id, err := f.h.DeviceCreatePipelineLayout(f.device, &PipelineLayoutDescriptor{
		Label:            f.name("pl"),
		Raw:              f.name("raw-pl"),
		BindGroupLayouts: groups,
	})
	require.NoError(f.t, err)
	return id
}

// pipeline creates a pipeline rendering to the fixture's color target.
func (f *fixture) pipeline(edit func(*RenderPipelineDescriptor)) hub.ID {
	f.t.Helper()
	desc := &RenderPipelineDescriptor{
		Label:        f.name("pipeline"),
		Raw:          f.name("raw-pipeline"),
		Layout:       f.layout,
		ColorTargets: []ColorTargetState{{Format: gputypes.TextureFormatBGRA8Unorm}},
	}
	if edit != nil {
		edit(desc)
	}
	id, err := f.h.DeviceCreateRenderPipeline(f.device, desc)
	require.NoError(f.t, err)
	return id
}

// uniformGroup creates a bind group layout with one uniform binding and a
// bind group for it.
func (f *fixture) uniformGroup(dynamic bool) (layout, group hub.ID) {
	f.t.Helper()
	layout, err := f.h.DeviceCreateBindGroupLayout(f.device, &BindGroupLayoutDescriptor{
		Label:   f.name("bgl"),
		Entries: []resource.BindGroupLayoutEntry{{Binding: 0, Type: resource.BindingUniformBuffer, HasDynamicOffset: dynamic}},
	})
	require.NoError(f.t, err)
	buf := f.buffer(1024, gputypes.BufferUsageUniform)
	group, err = f.h.DeviceCreateBindGroup(f.device, &BindGroupDescriptor{
		Label:   f.name("bg"),
		Raw:     f.name("raw-bg"),
		Layout:  layout,
		Entries: []BindGroupEntry{{Binding: 0, Buffer: buf, Size: 256}},
	})
	require.NoError(f.t, err)
	return layout, group
}

func (f *fixture) encoder() hub.ID {
	f.t.Helper()
	id, err := f.h.DeviceCreateCommandEncoder(f.device, f.name("encoder"))
	require.NoError(f.t, err)
	return id
}

func (f *fixture) colorPass(view hub.ID, load gputypes.LoadOp) *RenderPassDescriptor {
	return &RenderPassDescriptor{
		Label: f.name("pass"),
		ColorAttachments: []RenderPassColorAttachment{{
			View:    view,
			LoadOp:  load,
			StoreOp: gputypes.StoreOpStore,
		}},
	}
}

// run records a pass on enc with record and ends it.
func (f *fixture) run(enc hub.ID, desc *RenderPassDescriptor, record func(p *RenderPass)) error {
	f.t.Helper()
	p, err := f.h.CommandEncoderBeginRenderPass(enc, desc)
	require.NoError(f.t, err)
	if record != nil {
		record(p)
	}
	return p.End()
}

// finish finishes enc and returns its noop command buffers.
func (f *fixture) finish(enc hub.ID) (*CommandBuffer, []*noop.CommandBuffer) {
	f.t.Helper()
	cb, err := f.h.CommandEncoderFinish(enc)
	require.NoError(f.t, err)
	raws := make([]*noop.CommandBuffer, len(cb.Raws))
	for i, r := range cb.Raws {
		raws[i] = r.(*noop.CommandBuffer)
	}
	return cb, raws
}

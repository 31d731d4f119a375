package renderpass

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/backend"
	"github.com/gogpu/renderpass/command"
	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/pass"
	"github.com/gogpu/renderpass/resource"
	"github.com/gogpu/renderpass/track"
)

// BufferDescriptor describes a buffer created by the backend.
type BufferDescriptor struct {
	Label string
	Raw   backend.Buffer
	Size  uint64
	Usage gputypes.BufferUsage
}

// TextureDescriptor describes a texture created by the backend.
type TextureDescriptor struct {
	Label         string
	Raw           backend.Texture
	Format        gputypes.TextureFormat
	Size          gputypes.Extent3D
	MipLevelCount uint32 // 0 means 1
	SampleCount   uint32 // 0 means 1
	Usage         gputypes.TextureUsage
}

// TextureViewDescriptor selects part of a texture. Zero counts extend to
// the end of the texture.
type TextureViewDescriptor struct {
	Label          string
	Raw            backend.TextureView
	Format         gputypes.TextureFormat // Undefined means the texture format
	BaseMipLevel   uint32
	MipLevelCount  uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

// BindGroupLayoutDescriptor lists the bindings of a layout.
type BindGroupLayoutDescriptor struct {
	Label   string
	Entries []resource.BindGroupLayoutEntry
}

// PipelineLayoutDescriptor lists the bind group layouts of a pipeline.
type PipelineLayoutDescriptor struct {
	Label            string
	Raw              backend.PipelineLayout
	BindGroupLayouts []hub.ID
}

// BindGroupEntry binds one resource. Buffer bindings set Buffer, Offset
// and Size (command.WholeSize for the rest of the buffer); texture
// bindings set TextureView; samplers set neither.
type BindGroupEntry struct {
	Binding     uint32
	Buffer      hub.ID
	Offset      uint64
	Size        uint64
	TextureView hub.ID
}

// BindGroupDescriptor describes a bind group.
type BindGroupDescriptor struct {
	Label   string
	Raw     backend.BindGroup
	Layout  hub.ID
	Entries []BindGroupEntry
}

// ColorTargetState is one color output of a pipeline.
type ColorTargetState struct {
	Format gputypes.TextureFormat
	// BlendConstant is set when the blend factors read the blend color.
	BlendConstant bool
}

// DepthStencilState is the depth-stencil output of a pipeline.
type DepthStencilState struct {
	Format            gputypes.TextureFormat
	DepthWriteEnabled bool
	StencilWriteMask  uint32
	// StencilReference is set when a stencil test or op uses the reference.
	StencilReference bool
}

// RenderPipelineDescriptor describes a compiled pipeline.
type RenderPipelineDescriptor struct {
	Label         string
	Raw           backend.RenderPipeline
	Layout        hub.ID
	ColorTargets  []ColorTargetState
	DepthStencil  *DepthStencilState
	SampleCount   uint32               // 0 means 1
	IndexFormat   gputypes.IndexFormat // Undefined means Uint16
	VertexBuffers []resource.VertexBufferLayout
}

// DeviceCreateBuffer registers a buffer.
func (h *Hub) DeviceCreateBuffer(device hub.ID, desc *BufferDescriptor) (hub.ID, error) {
	if _, err := h.devices.Get(device); err != nil {
		return 0, fmt.Errorf("create buffer: %w", err)
	}
	return h.buffers.Register(&resource.Buffer{
		Label:  desc.Label,
		Raw:    desc.Raw,
		Device: device,
		Size:   desc.Size,
		Usage:  desc.Usage,
	}), nil
}

// DeviceCreateTexture registers a texture.
func (h *Hub) DeviceCreateTexture(device hub.ID, desc *TextureDescriptor) (hub.ID, error) {
	if _, err := h.devices.Get(device); err != nil {
		return 0, fmt.Errorf("create texture: %w", err)
	}
	if desc.Size.Width == 0 || desc.Size.Height == 0 {
		return 0, fmt.Errorf("create texture %q: %w: empty size", desc.Label, ErrInvalidDescriptor)
	}
	size := desc.Size
	size.DepthOrArrayLayers = max(size.DepthOrArrayLayers, 1)
	return h.textures.Register(&resource.Texture{
		Label:         desc.Label,
		Raw:           desc.Raw,
		Device:        device,
		Format:        desc.Format,
		Size:          size,
		MipLevelCount: max(desc.MipLevelCount, 1),
		SampleCount:   max(desc.SampleCount, 1),
		Usage:         desc.Usage,
	}), nil
}

// TextureCreateView registers a view of a texture.
func (h *Hub) TextureCreateView(texture hub.ID, desc *TextureViewDescriptor) (hub.ID, error) {
	t, err := h.textures.Get(texture)
	if err != nil {
		return 0, fmt.Errorf("create view: %w", err)
	}
	full := t.FullRange()
	mips := desc.MipLevelCount
	if mips == 0 && desc.BaseMipLevel < full.MipLevelCount {
		mips = full.MipLevelCount - desc.BaseMipLevel
	}
	layers := desc.LayerCount
	if layers == 0 && desc.BaseArrayLayer < full.LayerCount {
		layers = full.LayerCount - desc.BaseArrayLayer
	}
	if mips == 0 || uint64(desc.BaseMipLevel)+uint64(mips) > uint64(full.MipLevelCount) ||
		layers == 0 || uint64(desc.BaseArrayLayer)+uint64(layers) > uint64(full.LayerCount) {
		return 0, fmt.Errorf("create view %q: %w: range outside texture %s", desc.Label, ErrInvalidDescriptor, texture)
	}
	format := desc.Format
	if format == gputypes.TextureFormatUndefined {
		format = t.Format
	}
	return h.views.Register(&resource.TextureView{
		Label:   desc.Label,
		Raw:     desc.Raw,
		Device:  t.Device,
		Texture: texture,
		Format:  format,
		Samples: t.SampleCount,
		Extent: gputypes.Extent3D{
			Width:              max(t.Size.Width>>desc.BaseMipLevel, 1),
			Height:             max(t.Size.Height>>desc.BaseMipLevel, 1),
			DepthOrArrayLayers: 1,
		},
		Range: track.SubresourceRange{
			Aspects:        full.Aspects,
			BaseMipLevel:   desc.BaseMipLevel,
			MipLevelCount:  mips,
			BaseArrayLayer: desc.BaseArrayLayer,
			LayerCount:     layers,
		},
	}), nil
}

// DeviceCreateBindGroupLayout registers a bind group layout.
func (h *Hub) DeviceCreateBindGroupLayout(device hub.ID, desc *BindGroupLayoutDescriptor) (hub.ID, error) {
	if _, err := h.devices.Get(device); err != nil {
		return 0, fmt.Errorf("create bind group layout: %w", err)
	}
	seen := make(map[uint32]bool, len(desc.Entries))
	dynamic := 0
	for _, e := range desc.Entries {
		if seen[e.Binding] {
			return 0, fmt.Errorf("create bind group layout %q: %w: binding %d repeated", desc.Label, ErrInvalidDescriptor, e.Binding)
		}
		seen[e.Binding] = true
		if e.HasDynamicOffset {
			if !e.Type.IsBuffer() {
				return 0, fmt.Errorf("create bind group layout %q: %w: dynamic offset on %s binding %d",
					desc.Label, ErrInvalidDescriptor, e.Type, e.Binding)
			}
			dynamic++
		}
	}
	if dynamic > h.cfg.Limits.MaxDynamicOffsets {
		return 0, fmt.Errorf("create bind group layout %q: %w: %d dynamic bindings > %d",
			desc.Label, ErrInvalidDescriptor, dynamic, h.cfg.Limits.MaxDynamicOffsets)
	}
	return h.bindGroupLayouts.Register(&resource.BindGroupLayout{
		Label:        desc.Label,
		Device:       device,
		Entries:      append([]resource.BindGroupLayoutEntry(nil), desc.Entries...),
		DynamicCount: dynamic,
	}), nil
}

// DeviceCreatePipelineLayout registers a pipeline layout.
func (h *Hub) DeviceCreatePipelineLayout(device hub.ID, desc *PipelineLayoutDescriptor) (hub.ID, error) {
	if _, err := h.devices.Get(device); err != nil {
		return 0, fmt.Errorf("create pipeline layout: %w", err)
	}
	if len(desc.BindGroupLayouts) > h.cfg.Limits.MaxBindGroups {
		return 0, fmt.Errorf("create pipeline layout %q: %w: %d > %d",
			desc.Label, ErrBindGroupIndex, len(desc.BindGroupLayouts), h.cfg.Limits.MaxBindGroups)
	}
	g := h.bindGroupLayouts.Read()
	defer g.Release()
	for _, id := range desc.BindGroupLayouts {
		bgl, err := g.Get(id)
		if err != nil {
			return 0, fmt.Errorf("create pipeline layout %q: %w", desc.Label, err)
		}
		if err := checkDevice("bind group layout", id, bgl.Device, device); err != nil {
			return 0, err
		}
	}
	return h.pipelineLayouts.Register(&resource.PipelineLayout{
		Label:            desc.Label,
		Raw:              desc.Raw,
		Device:           device,
		BindGroupLayouts: append([]hub.ID(nil), desc.BindGroupLayouts...),
	}), nil
}

// DeviceCreateBindGroup validates the entries against the layout and
// records the usage of every bound resource.
func (h *Hub) DeviceCreateBindGroup(device hub.ID, desc *BindGroupDescriptor) (hub.ID, error) {
	bg, err := h.buildBindGroup(device, desc)
	if err != nil {
		return 0, fmt.Errorf("create bind group %q: %w", desc.Label, err)
	}
	return h.bindGroups.Register(bg), nil
}

func (h *Hub) buildBindGroup(device hub.ID, desc *BindGroupDescriptor) (*resource.BindGroup, error) {
	if _, err := h.devices.Get(device); err != nil {
		return nil, err
	}
	layouts := h.bindGroupLayouts.Read()
	defer layouts.Release()
	buffers := h.buffers.Read()
	defer buffers.Release()
	textures := h.textures.Read()
	defer textures.Release()
	views := h.views.Read()
	defer views.Release()

	layout, err := layouts.Get(desc.Layout)
	if err != nil {
		return nil, err
	}
	if err := checkDevice("bind group layout", desc.Layout, layout.Device, device); err != nil {
		return nil, err
	}
	if len(desc.Entries) != len(layout.Entries) {
		return nil, fmt.Errorf("%w: %d entries, layout has %d", ErrInvalidDescriptor, len(desc.Entries), len(layout.Entries))
	}
	byBinding := make(map[uint32]BindGroupEntry, len(desc.Entries))
	for _, e := range desc.Entries {
		byBinding[e.Binding] = e
	}

	used := track.NewSet()
	for _, le := range layout.Entries {
		e, ok := byBinding[le.Binding]
		if !ok {
			return nil, fmt.Errorf("%w: binding %d missing", ErrInvalidDescriptor, le.Binding)
		}
		switch {
		case le.Type.IsBuffer():
			buf, err := buffers.Get(e.Buffer)
			if err != nil {
				return nil, fmt.Errorf("binding %d: %w", le.Binding, err)
			}
			need, use := gputypes.BufferUsageStorage, track.BufferUseStorageStore
			switch le.Type {
			case resource.BindingUniformBuffer:
				need, use = gputypes.BufferUsageUniform, track.BufferUseUniform
			case resource.BindingReadOnlyStorageBuffer:
				use = track.BufferUseStorageLoad
			}
			if err := checkBufferUsage(e.Buffer, buf, need); err != nil {
				return nil, fmt.Errorf("binding %d: %w", le.Binding, err)
			}
			end := e.Offset + e.Size
			if e.Size == command.WholeSize {
				end = buf.Size
			}
			if e.Offset > buf.Size || end < e.Offset || end > buf.Size {
				return nil, fmt.Errorf("binding %d: %w: [%d, %d) of %d bytes", le.Binding, ErrBufferRange, e.Offset, end, buf.Size)
			}
			if err := used.Buffers.UseExtend(e.Buffer, use); err != nil {
				return nil, fmt.Errorf("binding %d: %w", le.Binding, err)
			}
		case le.Type.IsTexture():
			view, err := views.Get(e.TextureView)
			if err != nil {
				return nil, fmt.Errorf("binding %d: %w", le.Binding, err)
			}
			if view.Texture.IsZero() {
				return nil, fmt.Errorf("binding %d: %w: surface images can only be attachments", le.Binding, ErrInvalidDescriptor)
			}
			tex, err := textures.Get(view.Texture)
			if err != nil {
				return nil, fmt.Errorf("binding %d: %w", le.Binding, err)
			}
			need, use := gputypes.TextureUsageStorageBinding, track.TextureUseStorageStore
			switch le.Type {
			case resource.BindingSampledTexture:
				need, use = gputypes.TextureUsageTextureBinding, track.TextureUseSampled
			case resource.BindingReadOnlyStorageTexture:
				use = track.TextureUseStorageLoad
			}
			if err := checkTextureUsage(view.Texture, tex, need); err != nil {
				return nil, fmt.Errorf("binding %d: %w", le.Binding, err)
			}
			used.Views.Add(e.TextureView)
			if err := used.Textures.UseExtend(view.Texture, view.Range, use); err != nil {
				return nil, fmt.Errorf("binding %d: %w", le.Binding, err)
			}
		}
	}
	return &resource.BindGroup{
		Label:        desc.Label,
		Raw:          desc.Raw,
		Device:       device,
		Layout:       desc.Layout,
		DynamicCount: layout.DynamicCount,
		Used:         used,
	}, nil
}

// DeviceCreateRenderPipeline registers a render pipeline.
func (h *Hub) DeviceCreateRenderPipeline(device hub.ID, desc *RenderPipelineDescriptor) (hub.ID, error) {
	if _, err := h.devices.Get(device); err != nil {
		return 0, fmt.Errorf("create render pipeline: %w", err)
	}
	pl, err := h.pipelineLayouts.Get(desc.Layout)
	if err != nil {
		return 0, fmt.Errorf("create render pipeline %q: %w", desc.Label, err)
	}
	if err := checkDevice("pipeline layout", desc.Layout, pl.Device, device); err != nil {
		return 0, err
	}
	if len(desc.ColorTargets) > pass.MaxColorTargets {
		return 0, fmt.Errorf("create render pipeline %q: %w: %d color targets", desc.Label, ErrInvalidDescriptor, len(desc.ColorTargets))
	}
	if len(desc.VertexBuffers) > h.cfg.Limits.MaxVertexBuffers {
		return 0, fmt.Errorf("create render pipeline %q: %w: %d vertex buffers", desc.Label, ErrVertexSlot, len(desc.VertexBuffers))
	}

	var flags resource.PipelineFlags
	colors := make([]gputypes.TextureFormat, len(desc.ColorTargets))
	for i, ct := range desc.ColorTargets {
		colors[i] = ct.Format
		if ct.BlendConstant {
			flags |= resource.PipelineBlendColor
		}
	}
	dsFormat := gputypes.TextureFormatUndefined
	if ds := desc.DepthStencil; ds != nil {
		dsFormat = ds.Format
		if ds.StencilReference {
			flags |= resource.PipelineStencilReference
		}
		if !ds.DepthWriteEnabled && ds.StencilWriteMask == 0 {
			flags |= resource.PipelineDepthStencilReadOnly
		}
	}
	indexFormat := desc.IndexFormat
	if indexFormat != gputypes.IndexFormatUint32 {
		indexFormat = gputypes.IndexFormatUint16
	}

	return h.pipelines.Register(&resource.RenderPipeline{
		Label:         desc.Label,
		Raw:           desc.Raw,
		Device:        device,
		Layout:        desc.Layout,
		Context:       pass.NewContext(colors, nil, dsFormat, max(desc.SampleCount, 1)),
		Flags:         flags,
		IndexFormat:   indexFormat,
		VertexBuffers: append([]resource.VertexBufferLayout(nil), desc.VertexBuffers...),
	}), nil
}

func destroy[T any](r *hub.Registry[T], id hub.ID) error {
	if _, err := r.Unregister(id); err != nil {
		return fmt.Errorf("destroy %s: %w", r.Kind(), err)
	}
	return nil
}

// BufferDestroy unregisters a buffer.
func (h *Hub) BufferDestroy(id hub.ID) error { return destroy(h.buffers, id) }

// TextureDestroy unregisters a texture.
func (h *Hub) TextureDestroy(id hub.ID) error { return destroy(h.textures, id) }

// TextureViewDestroy unregisters a texture view.
func (h *Hub) TextureViewDestroy(id hub.ID) error { return destroy(h.views, id) }

// BindGroupLayoutDestroy unregisters a bind group layout.
func (h *Hub) BindGroupLayoutDestroy(id hub.ID) error { return destroy(h.bindGroupLayouts, id) }

// PipelineLayoutDestroy unregisters a pipeline layout.
func (h *Hub) PipelineLayoutDestroy(id hub.ID) error { return destroy(h.pipelineLayouts, id) }

// BindGroupDestroy unregisters a bind group.
func (h *Hub) BindGroupDestroy(id hub.ID) error { return destroy(h.bindGroups, id) }

// RenderPipelineDestroy unregisters a render pipeline.
func (h *Hub) RenderPipelineDestroy(id hub.ID) error { return destroy(h.pipelines, id) }

// RenderBundleDestroy unregisters a render bundle.
func (h *Hub) RenderBundleDestroy(id hub.ID) error { return destroy(h.bundles, id) }

func checkBufferUsage(id hub.ID, b *resource.Buffer, need gputypes.BufferUsage) error {
	if b.Usage&need != need {
		return &MissingUsageError{Kind: "buffer", ID: id, Want: bufferUsageString(need), Have: bufferUsageString(b.Usage)}
	}
	return nil
}

func checkTextureUsage(id hub.ID, t *resource.Texture, need gputypes.TextureUsage) error {
	if t.Usage&need != need {
		return &MissingUsageError{Kind: "texture", ID: id, Want: textureUsageString(need), Have: textureUsageString(t.Usage)}
	}
	return nil
}

var bufferUsageNames = []struct {
	flag gputypes.BufferUsage
	name string
}{
	{gputypes.BufferUsageMapRead, "MapRead"},
	{gputypes.BufferUsageMapWrite, "MapWrite"},
	{gputypes.BufferUsageCopySrc, "CopySrc"},
	{gputypes.BufferUsageCopyDst, "CopyDst"},
	{gputypes.BufferUsageIndex, "Index"},
	{gputypes.BufferUsageVertex, "Vertex"},
	{gputypes.BufferUsageUniform, "Uniform"},
	{gputypes.BufferUsageStorage, "Storage"},
	{gputypes.BufferUsageIndirect, "Indirect"},
}

func bufferUsageString(u gputypes.BufferUsage) string {
	var parts []string
	for _, n := range bufferUsageNames {
		if u&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "|")
}

var textureUsageNames = []struct {
	flag gputypes.TextureUsage
	name string
}{
	{gputypes.TextureUsageCopySrc, "CopySrc"},
	{gputypes.TextureUsageCopyDst, "CopyDst"},
	{gputypes.TextureUsageTextureBinding, "TextureBinding"},
	{gputypes.TextureUsageStorageBinding, "StorageBinding"},
	{gputypes.TextureUsageRenderAttachment, "RenderAttachment"},
}

func textureUsageString(u gputypes.TextureUsage) string {
	var parts []string
	for _, n := range textureUsageNames {
		if u&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "|")
}

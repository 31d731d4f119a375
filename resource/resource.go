// Package resource defines the objects held in the hub registries.
//
// Every object keeps its backend handle in Raw and refers to other objects
// by hub.ID. Objects are immutable once registered.
package resource

import (
	"strconv"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/backend"
	"github.com/gogpu/renderpass/command"
	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/pass"
	"github.com/gogpu/renderpass/track"
)

// Buffer is a GPU buffer.
type Buffer struct {
	Label  string
	Raw    backend.Buffer
	Device hub.ID
	Size   uint64
	Usage  gputypes.BufferUsage
}

// Texture is a GPU texture.
type Texture struct {
	Label         string
	Raw           backend.Texture
	Device        hub.ID
	Format        gputypes.TextureFormat
	Size          gputypes.Extent3D
	MipLevelCount uint32
	SampleCount   uint32
	Usage         gputypes.TextureUsage
}

// FullRange returns the subresource range covering the whole texture.
func (t *Texture) FullRange() track.SubresourceRange {
	return track.SubresourceRange{
		Aspects:       pass.FormatAspects(t.Format),
		MipLevelCount: max(t.MipLevelCount, 1),
		LayerCount:    max(t.Size.DepthOrArrayLayers, 1),
	}
}

// TextureView is a view of a texture or of a surface image. Exactly one
// of Texture and Surface is set.
type TextureView struct {
	Label   string
	Raw     backend.TextureView
	Device  hub.ID
	Texture hub.ID
	Surface hub.ID
	Format  gputypes.TextureFormat
	Samples uint32
	Extent  gputypes.Extent3D
	Range   track.SubresourceRange
}

// PassView converts v, registered as id, to the form the pass builder
// takes.
func (v *TextureView) PassView(id hub.ID) pass.View {
	return pass.View{
		ID:      id,
		Texture: v.Texture,
		Surface: v.Surface,
		Format:  v.Format,
		Samples: v.Samples,
		Extent:  v.Extent,
		Range:   v.Range,
	}
}

// BindingType is the kind of resource a binding holds.
type BindingType uint8

const (
	BindingUniformBuffer BindingType = iota + 1
	BindingStorageBuffer
	BindingReadOnlyStorageBuffer
	BindingSampler
	BindingSampledTexture
	BindingReadOnlyStorageTexture
	BindingWriteOnlyStorageTexture
)

var bindingTypeNames = [...]string{
	BindingUniformBuffer:           "uniform-buffer",
	BindingStorageBuffer:           "storage-buffer",
	BindingReadOnlyStorageBuffer:   "readonly-storage-buffer",
	BindingSampler:                 "sampler",
	BindingSampledTexture:          "sampled-texture",
	BindingReadOnlyStorageTexture:  "readonly-storage-texture",
	BindingWriteOnlyStorageTexture: "writeonly-storage-texture",
}

func (t BindingType) String() string {
	if int(t) < len(bindingTypeNames) && bindingTypeNames[t] != "" {
		return bindingTypeNames[t]
	}
	return "BindingType(" + strconv.Itoa(int(t)) + ")"
}

// IsBuffer reports whether the binding holds a buffer.
func (t BindingType) IsBuffer() bool {
	return t == BindingUniformBuffer || t == BindingStorageBuffer || t == BindingReadOnlyStorageBuffer
}

// IsTexture reports whether the binding holds a texture view.
func (t BindingType) IsTexture() bool {
	return t == BindingSampledTexture || t == BindingReadOnlyStorageTexture || t == BindingWriteOnlyStorageTexture
}

// BindGroupLayoutEntry is one binding of a bind group layout.
type BindGroupLayoutEntry struct {
	Binding          uint32
	Type             BindingType
	HasDynamicOffset bool
}

// BindGroupLayout describes the bindings of a bind group.
type BindGroupLayout struct {
	Label   string
	Device  hub.ID
	Entries []BindGroupLayoutEntry
	// DynamicCount is the number of bindings with a dynamic offset.
	DynamicCount int
}

// PipelineLayout is the ordered list of bind group layouts of a pipeline.
type PipelineLayout struct {
	Label            string
	Raw              backend.PipelineLayout
	Device           hub.ID
	BindGroupLayouts []hub.ID
}

// BindGroup is a set of resources bound together. Used records every
// resource it references with the usage it binds them for.
type BindGroup struct {
	Label        string
	Raw          backend.BindGroup
	Device       hub.ID
	Layout       hub.ID
	DynamicCount int
	Used         *track.Set
}

// PipelineFlags are the dynamic states a render pipeline depends on.
type PipelineFlags uint8

const (
	// PipelineBlendColor means the pipeline blends with the constant color.
	PipelineBlendColor PipelineFlags = 1 << iota
	// PipelineStencilReference means the pipeline tests against the
	// stencil reference.
	PipelineStencilReference
	// PipelineDepthStencilReadOnly means the pipeline writes neither depth
	// nor stencil.
	PipelineDepthStencilReadOnly
)

// Has reports whether all bits of f2 are set in f.
func (f PipelineFlags) Has(f2 PipelineFlags) bool { return f&f2 == f2 }

// VertexBufferLayout is the stride and step mode of one vertex buffer slot.
type VertexBufferLayout struct {
	ArrayStride uint64
	StepMode    gputypes.VertexStepMode
}

// RenderPipeline is a compiled render pipeline.
type RenderPipeline struct {
	Label  string
	Raw    backend.RenderPipeline
	Device hub.ID
	Layout hub.ID
	// Context is the attachment formats and sample count the pipeline
	// renders to.
	Context       pass.Context
	Flags         PipelineFlags
	IndexFormat   gputypes.IndexFormat
	VertexBuffers []VertexBufferLayout
}

// RenderBundle is a validated, reusable command list.
type RenderBundle struct {
	Label    string
	Device   hub.ID
	Context  pass.Context
	Commands []command.Command
	Used     *track.Set
}

// Surface is a presentable target. Its current image is rendered through a
// TextureView whose Surface field names it.
type Surface struct {
	Label  string
	Device hub.ID
	Format gputypes.TextureFormat
	Width  uint32
	Height uint32
}

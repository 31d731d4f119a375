// Package track records how a command scope uses buffers and textures and
// reconciles those usages with an enclosing scope.
//
// A scope is in "extend" mode while it is being recorded: read-only usages
// of a resource accumulate into one combined usage, and a writing usage is
// only allowed to repeat itself. Anything else is a usage conflict. When a
// finished scope is merged into its command buffer the tracker switches to
// "replace" mode and reports the transitions the backend must perform.
package track

import "strings"

// BufferUse is the set of ways a buffer is used inside a scope.
type BufferUse uint32

const (
	BufferUseMapRead BufferUse = 1 << iota
	BufferUseMapWrite
	BufferUseCopySrc
	BufferUseCopyDst
	BufferUseIndex
	BufferUseVertex
	BufferUseUniform
	BufferUseStorageLoad
	BufferUseStorageStore
	BufferUseIndirect

	// BufferUseReadAll combines every read-only usage.
	BufferUseReadAll = BufferUseMapRead | BufferUseCopySrc | BufferUseIndex | BufferUseVertex |
		BufferUseUniform | BufferUseStorageLoad | BufferUseIndirect
	// BufferUseWriteAll combines every writing usage.
	BufferUseWriteAll = BufferUseMapWrite | BufferUseCopyDst | BufferUseStorageStore
	// BufferUseOrdered are the usages that need no barrier when repeated.
	BufferUseOrdered = BufferUseReadAll | BufferUseMapWrite | BufferUseCopyDst
)

var bufferUseNames = []string{
	"MapRead", "MapWrite", "CopySrc", "CopyDst", "Index",
	"Vertex", "Uniform", "StorageLoad", "StorageStore", "Indirect",
}

func (u BufferUse) String() string { return flagString(uint32(u), bufferUseNames) }

func (u BufferUse) ordered() bool { return u&^BufferUseOrdered == 0 }
func (u BufferUse) writes() bool  { return u&BufferUseWriteAll != 0 }

// TextureUse is the set of ways a texture subresource is used inside a scope.
type TextureUse uint32

const (
	TextureUseCopySrc TextureUse = 1 << iota
	TextureUseCopyDst
	TextureUseSampled
	TextureUseAttachmentRead
	TextureUseAttachmentWrite
	TextureUseStorageLoad
	TextureUseStorageStore

	TextureUseReadAll  = TextureUseCopySrc | TextureUseSampled | TextureUseAttachmentRead | TextureUseStorageLoad
	TextureUseWriteAll = TextureUseCopyDst | TextureUseAttachmentWrite | TextureUseStorageStore
	TextureUseOrdered  = TextureUseReadAll | TextureUseCopyDst | TextureUseAttachmentWrite
)

var textureUseNames = []string{
	"CopySrc", "CopyDst", "Sampled", "AttachmentRead",
	"AttachmentWrite", "StorageLoad", "StorageStore",
}

func (u TextureUse) String() string { return flagString(uint32(u), textureUseNames) }

func (u TextureUse) ordered() bool { return u&^TextureUseOrdered == 0 }
func (u TextureUse) writes() bool  { return u&TextureUseWriteAll != 0 }

func flagString(v uint32, names []string) string {
	if v == 0 {
		return "None"
	}
	var parts []string
	for i, name := range names {
		if v&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// use is the constraint shared by BufferUse and TextureUse.
type use interface {
	~uint32
	ordered() bool
	writes() bool
	String() string
}

// Aspects selects the planes of a texture a view covers.
type Aspects uint8

const (
	AspectColor Aspects = 1 << iota
	AspectDepth
	AspectStencil
)

func (a Aspects) String() string {
	return flagString(uint32(a), []string{"Color", "Depth", "Stencil"})
}

// SubresourceRange selects mip levels and array layers of a texture.
type SubresourceRange struct {
	Aspects        Aspects
	BaseMipLevel   uint32
	MipLevelCount  uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

// Subresource is a single mip level / array layer cell.
type Subresource struct {
	MipLevel   uint32
	ArrayLayer uint32
}

// each calls fn for every cell of the range in mip-major order.
func (r SubresourceRange) each(fn func(Subresource) bool) {
	for m := r.BaseMipLevel; m < r.BaseMipLevel+r.MipLevelCount; m++ {
		for l := r.BaseArrayLayer; l < r.BaseArrayLayer+r.LayerCount; l++ {
			if !fn(Subresource{MipLevel: m, ArrayLayer: l}) {
				return
			}
		}
	}
}

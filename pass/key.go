package pass

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/hub"
)

// MaxColorTargets is the number of color attachments a pass may have.
const MaxColorTargets = 4

// Attachment describes one attachment of a backend render pass object.
type Attachment struct {
	Format     gputypes.TextureFormat
	Samples    uint32
	Ops        Ops
	StencilOps Ops
	Layouts    LayoutTransition
}

// RenderPassKey identifies a backend render pass object. Structurally equal
// keys describe interchangeable render passes, so the key is used directly
// as a cache key.
type RenderPassKey struct {
	Colors    [MaxColorTargets]Attachment
	NumColors uint8

	// Resolves is indexed by color attachment; ResolveMask has bit i set when
	// color attachment i resolves.
	Resolves    [MaxColorTargets]Attachment
	ResolveMask uint8

	DepthStencil    Attachment
	HasDepthStencil bool

	// DepthStencilLayout is the layout the depth-stencil attachment is used
	// in during the pass.
	DepthStencilLayout ImageLayout
}

// HasResolve reports whether color attachment i resolves.
func (k RenderPassKey) HasResolve(i int) bool { return k.ResolveMask&(1<<i) != 0 }

// AttachmentCount returns the number of attachments the backend object
// carries: colors, then resolves, then the depth-stencil attachment.
func (k RenderPassKey) AttachmentCount() int {
	n := int(k.NumColors)
	for i := range int(k.NumColors) {
		if k.HasResolve(i) {
			n++
		}
	}
	if k.HasDepthStencil {
		n++
	}
	return n
}

// FramebufferKey identifies a backend framebuffer. Unlike RenderPassKey it
// names the concrete views, because a framebuffer binds actual images.
type FramebufferKey struct {
	Colors       [MaxColorTargets]hub.ID
	NumColors    uint8
	Resolves     [MaxColorTargets]hub.ID
	DepthStencil hub.ID
	Extent       gputypes.Extent3D
}

// Views returns the attachment views in backend attachment order.
func (k FramebufferKey) Views() []hub.ID {
	views := make([]hub.ID, 0, 2*MaxColorTargets+1)
	views = append(views, k.Colors[:k.NumColors]...)
	for _, r := range k.Resolves[:k.NumColors] {
		if !r.IsZero() {
			views = append(views, r)
		}
	}
	if !k.DepthStencil.IsZero() {
		views = append(views, k.DepthStencil)
	}
	return views
}

// Context is the pass-context: the attachment formats and sample count a
// pipeline or bundle must match to be used in a pass.
type Context struct {
	Colors       [MaxColorTargets]gputypes.TextureFormat
	NumColors    uint8
	Resolves     [MaxColorTargets]gputypes.TextureFormat
	NumResolves  uint8
	DepthStencil gputypes.TextureFormat
	SampleCount  uint32
}

// NewContext builds a pass-context from attachment formats.
// depthStencil is TextureFormatUndefined when there is no such attachment.
func NewContext(colors []gputypes.TextureFormat, resolves []gputypes.TextureFormat, depthStencil gputypes.TextureFormat, samples uint32) Context {
	c := Context{DepthStencil: depthStencil, SampleCount: samples}
	c.NumColors = uint8(copy(c.Colors[:], colors))
	c.NumResolves = uint8(copy(c.Resolves[:], resolves))
	return c
}

// Compatible reports whether something recorded against other can run in a
// pass with context c. Resolve targets do not affect compatibility.
func (c Context) Compatible(other Context) bool {
	return c.Colors == other.Colors &&
		c.NumColors == other.NumColors &&
		c.DepthStencil == other.DepthStencil &&
		c.SampleCount == other.SampleCount
}

// Package pass validates render pass attachments and derives the keys used
// to cache backend render pass and framebuffer objects.
package pass

import (
	"fmt"
	"math/bits"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/track"
)

// View is a resolved texture view as the builder needs it.
type View struct {
	ID hub.ID
	// Texture is the source texture; zero for surface images.
	Texture hub.ID
	// Surface is the owning surface of a presentable image; zero otherwise.
	Surface hub.ID
	Format  gputypes.TextureFormat
	Samples uint32
	Extent  gputypes.Extent3D
	Range   track.SubresourceRange
}

// ColorAttachment is a color target of a pass.
type ColorAttachment struct {
	View       View
	Resolve    *View
	LoadOp     gputypes.LoadOp
	StoreOp    gputypes.StoreOp
	ClearColor gputypes.Color
}

// DepthStencilAttachment is the depth-stencil target of a pass. The depth
// and stencil aspects carry independent ops and read-only flags.
type DepthStencilAttachment struct {
	View View

	DepthLoadOp   gputypes.LoadOp
	DepthStoreOp  gputypes.StoreOp
	ClearDepth    float32
	DepthReadOnly bool

	StencilLoadOp   gputypes.LoadOp
	StencilStoreOp  gputypes.StoreOp
	ClearStencil    uint32
	StencilReadOnly bool
}

// Descriptor lists the attachments of a pass.
type Descriptor struct {
	Colors       []ColorAttachment
	DepthStencil *DepthStencilAttachment
}

// UsageQuerier reports the usage a texture range is in before the pass.
// *track.TextureTracker implements it.
type UsageQuerier interface {
	Query(id hub.ID, r track.SubresourceRange) (track.TextureUse, bool)
}

// Options carries the device and command buffer facts the builder checks
// against.
type Options struct {
	// SampleCountMask is the OR of the supported sample counts, each a
	// power of two.
	SampleCountMask uint32
	// UsedSurface is the surface an earlier pass of the same command buffer
	// rendered to, or zero.
	UsedSurface hub.ID
}

// OutputAttachment records how a pass leaves one attachment texture. It is
// consumed once when the pass ends.
type OutputAttachment struct {
	Texture     hub.ID
	Range       track.SubresourceRange
	PreviousUse track.TextureUse
	HasPrevious bool
	NewUse      track.TextureUse
}

// ClearValue is the clear value of one cleared attachment.
type ClearValue struct {
	Color        gputypes.Color
	Depth        float32
	Stencil      uint32
	DepthStencil bool
}

// Output is everything derived from a validated Descriptor.
type Output struct {
	Key            RenderPassKey
	FramebufferKey FramebufferKey
	Context        Context
	Extent         gputypes.Extent3D
	// DepthStencilReadOnly is false when there is no depth-stencil attachment.
	DepthStencilReadOnly bool
	Attachments          []OutputAttachment
	ClearValues          []ClearValue
	// Surface is the surface whose image this pass renders to, or zero.
	Surface hub.ID
}

type builder struct {
	prev      UsageQuerier
	opts      Options
	out       *Output
	hasExtent bool
}

// Build validates desc and derives the pass keys, context, layout
// transitions and output attachments. prev holds the usages recorded by the
// enclosing command buffer before this pass.
func Build(desc Descriptor, prev UsageQuerier, opts Options) (*Output, error) {
	if len(desc.Colors) == 0 && desc.DepthStencil == nil {
		return nil, ErrNoAttachments
	}
	if len(desc.Colors) > MaxColorTargets {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyColorAttachments, len(desc.Colors), MaxColorTargets)
	}

	b := &builder{prev: prev, opts: opts, out: &Output{}}
	out := b.out

	samples := uint32(1)
	switch {
	case len(desc.Colors) > 0:
		samples = desc.Colors[0].View.Samples
	case desc.DepthStencil != nil:
		samples = desc.DepthStencil.View.Samples
	}
	if bits.OnesCount32(samples) != 1 || samples&opts.SampleCountMask == 0 {
		return nil, &SampleCountError{Attachment: "pass", Reason: SamplesUnsupported, Got: samples, Want: opts.SampleCountMask}
	}

	if ds := desc.DepthStencil; ds != nil {
		if err := b.depthStencil(ds, samples); err != nil {
			return nil, err
		}
	}

	var colorFormats, resolveFormats []gputypes.TextureFormat
	for i := range desc.Colors {
		at := &desc.Colors[i]
		if err := b.color(i, at, samples); err != nil {
			return nil, err
		}
		colorFormats = append(colorFormats, at.View.Format)
	}
	for i := range desc.Colors {
		at := &desc.Colors[i]
		if at.Resolve == nil {
			continue
		}
		if err := b.resolve(i, at); err != nil {
			return nil, err
		}
		resolveFormats = append(resolveFormats, at.Resolve.Format)
	}

	dsFormat := gputypes.TextureFormatUndefined
	if desc.DepthStencil != nil {
		dsFormat = desc.DepthStencil.View.Format
	}
	out.Context = NewContext(colorFormats, resolveFormats, dsFormat, samples)
	out.FramebufferKey.Extent = out.Extent
	out.ClearValues = clearValues(desc)
	return out, nil
}

func (b *builder) extent(name string, v *View) error {
	if !b.hasExtent {
		b.out.Extent = v.Extent
		b.hasExtent = true
		return nil
	}
	if v.Extent != b.out.Extent {
		return &ExtentMismatchError{Attachment: name, Want: b.out.Extent, Got: v.Extent}
	}
	return nil
}

// surface records the surface a color or resolve view belongs to.
func (b *builder) surface(v *View) error {
	if v.Surface.IsZero() {
		return nil
	}
	if !b.opts.UsedSurface.IsZero() && b.opts.UsedSurface != v.Surface {
		return fmt.Errorf("%w: command buffer already renders to surface %s", ErrMultipleSurfaces, b.opts.UsedSurface)
	}
	if !b.out.Surface.IsZero() && b.out.Surface != v.Surface {
		return fmt.Errorf("%w: surfaces %s and %s", ErrMultipleSurfaces, b.out.Surface, v.Surface)
	}
	b.out.Surface = v.Surface
	return nil
}

// transition queries the usage of v before the pass, records the output
// attachment and returns the resulting layout transition.
func (b *builder) transition(v *View, newUse track.TextureUse, aspects track.Aspects) LayoutTransition {
	prev, ok := b.prev.Query(v.Texture, v.Range)
	b.out.Attachments = append(b.out.Attachments, OutputAttachment{
		Texture:     v.Texture,
		Range:       v.Range,
		PreviousUse: prev,
		HasPrevious: ok,
		NewUse:      newUse,
	})
	lt := LayoutTransition{New: LayoutFor(newUse, aspects)}
	lt.Old = lt.New
	if ok {
		lt.Old = LayoutFor(prev, aspects)
	}
	return lt
}

func (b *builder) depthStencil(ds *DepthStencilAttachment, samples uint32) error {
	v := &ds.View
	if err := b.extent("depth-stencil", v); err != nil {
		return err
	}
	if !v.Surface.IsZero() {
		return ErrSurfaceDepthStencil
	}
	aspects := v.Range.Aspects & (track.AspectDepth | track.AspectStencil)
	if aspects == 0 {
		return ErrNotDepthStencil
	}
	if v.Samples != samples {
		return &SampleCountError{Attachment: "depth-stencil", Reason: SamplesMismatch, Got: v.Samples, Want: samples}
	}

	readOnly, err := depthStencilReadOnly(ds, aspects)
	if err != nil {
		return err
	}
	b.out.DepthStencilReadOnly = readOnly

	var depthOps, stencilOps Ops
	if aspects&track.AspectDepth != 0 {
		if depthOps, err = mapOps(ds.DepthLoadOp, ds.DepthStoreOp); err != nil {
			return fmt.Errorf("depth-stencil depth ops: %w", err)
		}
	}
	if aspects&track.AspectStencil != 0 {
		if stencilOps, err = mapOps(ds.StencilLoadOp, ds.StencilStoreOp); err != nil {
			return fmt.Errorf("depth-stencil stencil ops: %w", err)
		}
	}

	newUse := track.TextureUseAttachmentWrite
	if readOnly {
		newUse = track.TextureUseAttachmentRead
	}
	lt := b.transition(v, newUse, aspects)

	key := &b.out.Key
	key.HasDepthStencil = true
	key.DepthStencilLayout = lt.New
	key.DepthStencil = Attachment{
		Format:     v.Format,
		Samples:    v.Samples,
		Ops:        depthOps,
		StencilOps: stencilOps,
		Layouts:    lt,
	}
	b.out.FramebufferKey.DepthStencil = v.ID
	return nil
}

// depthStencilReadOnly decides whether the attachment is read-only: every
// aspect the format has must be requested read-only. Requesting read-only
// with ops other than Load/Store is an error.
func depthStencilReadOnly(ds *DepthStencilAttachment, aspects track.Aspects) (bool, error) {
	readOnly := true
	if aspects&track.AspectDepth != 0 {
		if ds.DepthReadOnly {
			if ds.DepthLoadOp != gputypes.LoadOpLoad || ds.DepthStoreOp != gputypes.StoreOpStore {
				return false, &ReadOnlyOpsError{Aspect: "depth", Load: ds.DepthLoadOp, Store: ds.DepthStoreOp}
			}
		} else {
			readOnly = false
		}
	}
	if aspects&track.AspectStencil != 0 {
		if ds.StencilReadOnly {
			if ds.StencilLoadOp != gputypes.LoadOpLoad || ds.StencilStoreOp != gputypes.StoreOpStore {
				return false, &ReadOnlyOpsError{Aspect: "stencil", Load: ds.StencilLoadOp, Store: ds.StencilStoreOp}
			}
		} else {
			readOnly = false
		}
	}
	return readOnly, nil
}

func (b *builder) color(i int, at *ColorAttachment, samples uint32) error {
	name := fmt.Sprintf("color[%d]", i)
	v := &at.View
	if err := b.extent(name, v); err != nil {
		return err
	}
	if v.Range.Aspects&track.AspectColor == 0 {
		return fmt.Errorf("%s: %w", name, ErrNotColor)
	}
	if v.Samples != samples {
		return &SampleCountError{Attachment: name, Reason: SamplesMismatch, Got: v.Samples, Want: samples}
	}
	ops, err := mapOps(at.LoadOp, at.StoreOp)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	var lt LayoutTransition
	if v.Surface.IsZero() {
		lt = b.transition(v, track.TextureUseAttachmentWrite, track.AspectColor)
	} else {
		if err := b.surface(v); err != nil {
			return err
		}
		lt = LayoutTransition{Old: LayoutPresent, New: LayoutPresent}
		if at.LoadOp == gputypes.LoadOpClear {
			lt.Old = LayoutUndefined
		}
	}

	key := &b.out.Key
	key.Colors[i] = Attachment{Format: v.Format, Samples: v.Samples, Ops: ops, Layouts: lt}
	key.NumColors = uint8(i + 1)
	fb := &b.out.FramebufferKey
	fb.Colors[i] = v.ID
	fb.NumColors = uint8(i + 1)
	return nil
}

func (b *builder) resolve(i int, at *ColorAttachment) error {
	name := fmt.Sprintf("resolve[%d]", i)
	v := at.Resolve
	if err := b.extent(name, v); err != nil {
		return err
	}
	if v.Range.Aspects&track.AspectColor == 0 {
		return fmt.Errorf("%s: %w", name, ErrNotColor)
	}
	if v.Samples != 1 {
		return &SampleCountError{Attachment: name, Reason: ResolveMultisampled, Got: v.Samples, Want: 1}
	}
	if at.View.Samples == 1 {
		return &SampleCountError{Attachment: fmt.Sprintf("color[%d]", i), Reason: ResolveSourceSingleSampled, Got: 1}
	}

	var lt LayoutTransition
	if v.Surface.IsZero() {
		lt = b.transition(v, track.TextureUseAttachmentWrite, track.AspectColor)
	} else {
		if err := b.surface(v); err != nil {
			return err
		}
		lt = LayoutTransition{Old: LayoutUndefined, New: LayoutPresent}
	}

	key := &b.out.Key
	key.Resolves[i] = Attachment{
		Format:  v.Format,
		Samples: v.Samples,
		Ops:     Ops{Load: LoadDontCare, Store: StoreStore},
		Layouts: lt,
	}
	key.ResolveMask |= 1 << i
	b.out.FramebufferKey.Resolves[i] = v.ID
	return nil
}

func clearValues(desc Descriptor) []ClearValue {
	var out []ClearValue
	for _, at := range desc.Colors {
		if at.LoadOp == gputypes.LoadOpClear {
			out = append(out, ClearValue{Color: at.ClearColor})
		}
	}
	if ds := desc.DepthStencil; ds != nil {
		if ds.DepthLoadOp == gputypes.LoadOpClear || ds.StencilLoadOp == gputypes.LoadOpClear {
			out = append(out, ClearValue{Depth: ds.ClearDepth, Stencil: ds.ClearStencil, DepthStencil: true})
		}
	}
	return out
}

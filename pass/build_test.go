package pass

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/track"
)

const allSamples = 1 | 4

var extent = gputypes.Extent3D{Width: 64, Height: 32, DepthOrArrayLayers: 1}

func colorView(idx uint32, samples uint32) View {
	return View{
		ID:      hub.NewID(idx, 1),
		Texture: hub.NewID(100+idx, 1),
		Format:  gputypes.TextureFormatRGBA8Unorm,
		Samples: samples,
		Extent:  extent,
		Range:   track.SubresourceRange{Aspects: track.AspectColor, MipLevelCount: 1, LayerCount: 1},
	}
}

func depthView(idx uint32) View {
	return View{
		ID:      hub.NewID(idx, 1),
		Texture: hub.NewID(100+idx, 1),
		Format:  gputypes.TextureFormatDepth24PlusStencil8,
		Samples: 1,
		Extent:  extent,
		Range: track.SubresourceRange{
			Aspects: track.AspectDepth | track.AspectStencil, MipLevelCount: 1, LayerCount: 1,
		},
	}
}

func surfaceView(idx uint32, surface hub.ID) View {
	v := colorView(idx, 1)
	v.Texture = 0
	v.Surface = surface
	v.Format = gputypes.TextureFormatBGRA8Unorm
	return v
}

func clearColor(v View) ColorAttachment {
	return ColorAttachment{View: v, LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore}
}

func readOnlyDepth(v View) *DepthStencilAttachment {
	return &DepthStencilAttachment{
		View:            v,
		DepthLoadOp:     gputypes.LoadOpLoad,
		DepthStoreOp:    gputypes.StoreOpStore,
		DepthReadOnly:   true,
		StencilLoadOp:   gputypes.LoadOpLoad,
		StencilStoreOp:  gputypes.StoreOpStore,
		StencilReadOnly: true,
	}
}

func build(t *testing.T, desc Descriptor) (*Output, error) {
	t.Helper()
	return Build(desc, track.NewTextureTracker(), Options{SampleCountMask: allSamples})
}

func TestBuildSingleColor(t *testing.T) {
	out, err := build(t, Descriptor{Colors: []ColorAttachment{clearColor(colorView(1, 1))}})
	require.NoError(t, err)

	assert.Equal(t, extent, out.Extent)
	assert.Equal(t, uint8(1), out.Key.NumColors)
	assert.Equal(t, LayoutTransition{Old: LayoutColorAttachment, New: LayoutColorAttachment}, out.Key.Colors[0].Layouts)
	assert.Equal(t, Ops{Load: LoadClear, Store: StoreStore}, out.Key.Colors[0].Ops)
	assert.False(t, out.DepthStencilReadOnly)
	require.Len(t, out.Attachments, 1)
	assert.False(t, out.Attachments[0].HasPrevious)
	assert.Equal(t, track.TextureUseAttachmentWrite, out.Attachments[0].NewUse)
	assert.Len(t, out.ClearValues, 1)
	assert.Equal(t, []hub.ID{hub.NewID(1, 1)}, out.FramebufferKey.Views())
	assert.Equal(t, 1, out.Key.AttachmentCount())
}

func TestBuildUsesPreviousUsage(t *testing.T) {
	v := colorView(1, 1)
	prev := track.NewTextureTracker()
	require.NoError(t, prev.UseExtend(v.Texture, v.Range, track.TextureUseSampled))

	out, err := Build(Descriptor{Colors: []ColorAttachment{clearColor(v)}}, prev, Options{SampleCountMask: 1})
	require.NoError(t, err)
	assert.Equal(t, LayoutShaderReadOnly, out.Key.Colors[0].Layouts.Old)
	assert.Equal(t, LayoutColorAttachment, out.Key.Colors[0].Layouts.New)
	assert.True(t, out.Attachments[0].HasPrevious)
	assert.Equal(t, track.TextureUseSampled, out.Attachments[0].PreviousUse)
}

func TestBuildKeysAreStructural(t *testing.T) {
	a, err := build(t, Descriptor{Colors: []ColorAttachment{clearColor(colorView(1, 1))}})
	require.NoError(t, err)
	b, err := build(t, Descriptor{Colors: []ColorAttachment{clearColor(colorView(1, 1))}})
	require.NoError(t, err)
	assert.Equal(t, a.Key, b.Key)
	assert.Equal(t, a.FramebufferKey, b.FramebufferKey)

	// same formats, different view: same pass, different framebuffer
	c, err := build(t, Descriptor{Colors: []ColorAttachment{clearColor(colorView(2, 1))}})
	require.NoError(t, err)
	assert.Equal(t, a.Key, c.Key)
	assert.NotEqual(t, a.FramebufferKey, c.FramebufferKey)

	load := clearColor(colorView(1, 1))
	load.LoadOp = gputypes.LoadOpLoad
	d, err := build(t, Descriptor{Colors: []ColorAttachment{load}})
	require.NoError(t, err)
	assert.NotEqual(t, a.Key, d.Key)
	assert.Empty(t, d.ClearValues)
}

func TestBuildErrors(t *testing.T) {
	small := colorView(2, 1)
	small.Extent.Width = 16

	multi := clearColor(colorView(1, 4))
	resolveMulti := colorView(2, 4)
	multi.Resolve = &resolveMulti

	single := clearColor(colorView(1, 1))
	resolve := colorView(2, 1)
	single.Resolve = &resolve

	clearRO := readOnlyDepth(depthView(5))
	clearRO.DepthLoadOp = gputypes.LoadOpClear

	discardStencilRO := readOnlyDepth(depthView(5))
	discardStencilRO.StencilStoreOp = gputypes.StoreOpDiscard

	surfDS := readOnlyDepth(depthView(5))
	surfDS.View.Surface = hub.NewID(1, 1)

	tests := []struct {
		name string
		desc Descriptor
		want error
	}{
		{"empty", Descriptor{}, ErrNoAttachments},
		{"too many colors", Descriptor{Colors: make([]ColorAttachment, 5)}, ErrTooManyColorAttachments},
		{"extent", Descriptor{Colors: []ColorAttachment{clearColor(colorView(1, 1)), clearColor(small)}}, ErrExtentMismatch},
		{"sample mismatch", Descriptor{Colors: []ColorAttachment{clearColor(colorView(1, 1)), clearColor(colorView(2, 4))}}, ErrSampleCount},
		{"unsupported samples", Descriptor{Colors: []ColorAttachment{clearColor(colorView(1, 2))}}, ErrSampleCount},
		{"multisampled resolve", Descriptor{Colors: []ColorAttachment{multi}}, ErrSampleCount},
		{"single-sampled source", Descriptor{Colors: []ColorAttachment{single}}, ErrSampleCount},
		{"read-only depth with clear", Descriptor{DepthStencil: clearRO}, ErrReadOnlyOps},
		{"read-only stencil with discard", Descriptor{DepthStencil: discardStencilRO}, ErrReadOnlyOps},
		{"surface depth", Descriptor{DepthStencil: surfDS}, ErrSurfaceDepthStencil},
		{"depth as color", Descriptor{Colors: []ColorAttachment{clearColor(depthView(5))}}, ErrNotColor},
		{"color as depth", Descriptor{DepthStencil: readOnlyDepth(colorView(1, 1))}, ErrNotDepthStencil},
		{"bad op", Descriptor{Colors: []ColorAttachment{{
			View: colorView(1, 1), LoadOp: gputypes.LoadOp(0xFF), StoreOp: gputypes.StoreOpStore,
		}}}, ErrInvalidOp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := build(t, tt.desc)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuildReadOnlyDepth(t *testing.T) {
	out, err := build(t, Descriptor{
		Colors:       []ColorAttachment{clearColor(colorView(1, 1))},
		DepthStencil: readOnlyDepth(depthView(5)),
	})
	require.NoError(t, err)
	assert.True(t, out.DepthStencilReadOnly)
	assert.Equal(t, LayoutDepthStencilReadOnly, out.Key.DepthStencilLayout)
	assert.Equal(t, track.TextureUseAttachmentRead, out.Attachments[0].NewUse)
	assert.Len(t, out.ClearValues, 1, "loading depth-stencil adds no clear value")

	// only one aspect read-only: the attachment is writable
	ds := readOnlyDepth(depthView(5))
	ds.StencilReadOnly = false
	ds.StencilLoadOp = gputypes.LoadOpClear
	out, err = build(t, Descriptor{DepthStencil: ds})
	require.NoError(t, err)
	assert.False(t, out.DepthStencilReadOnly)
	assert.Equal(t, LayoutDepthStencilAttachment, out.Key.DepthStencilLayout)
	require.Len(t, out.ClearValues, 1)
	assert.True(t, out.ClearValues[0].DepthStencil)
}

func TestBuildResolve(t *testing.T) {
	at := clearColor(colorView(1, 4))
	r := colorView(2, 1)
	at.Resolve = &r
	out, err := build(t, Descriptor{Colors: []ColorAttachment{at}})
	require.NoError(t, err)

	assert.True(t, out.Key.HasResolve(0))
	assert.Equal(t, Ops{Load: LoadDontCare, Store: StoreStore}, out.Key.Resolves[0].Ops)
	assert.Equal(t, 2, out.Key.AttachmentCount())
	assert.Equal(t, []hub.ID{hub.NewID(1, 1), hub.NewID(2, 1)}, out.FramebufferKey.Views())
	assert.Equal(t, uint8(1), out.Context.NumResolves)
	assert.Equal(t, uint32(4), out.Context.SampleCount)
}

func TestBuildSurface(t *testing.T) {
	surf := hub.NewID(1, 1)
	out, err := build(t, Descriptor{Colors: []ColorAttachment{clearColor(surfaceView(1, surf))}})
	require.NoError(t, err)
	assert.Equal(t, surf, out.Surface)
	assert.Equal(t, LayoutTransition{Old: LayoutUndefined, New: LayoutPresent}, out.Key.Colors[0].Layouts)
	assert.Empty(t, out.Attachments, "surface images are not tracked")

	load := clearColor(surfaceView(1, surf))
	load.LoadOp = gputypes.LoadOpLoad
	out, err = build(t, Descriptor{Colors: []ColorAttachment{load}})
	require.NoError(t, err)
	assert.Equal(t, LayoutTransition{Old: LayoutPresent, New: LayoutPresent}, out.Key.Colors[0].Layouts)

	two := Descriptor{Colors: []ColorAttachment{
		clearColor(surfaceView(1, surf)),
		clearColor(surfaceView(2, hub.NewID(2, 1))),
	}}
	_, err = build(t, two)
	assert.ErrorIs(t, err, ErrMultipleSurfaces)

	_, err = Build(Descriptor{Colors: []ColorAttachment{clearColor(surfaceView(1, surf))}},
		track.NewTextureTracker(), Options{SampleCountMask: 1, UsedSurface: hub.NewID(2, 1)})
	assert.ErrorIs(t, err, ErrMultipleSurfaces)
}

func TestContextCompatible(t *testing.T) {
	a := NewContext([]gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm}, nil, gputypes.TextureFormatUndefined, 1)
	b := NewContext([]gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm}, nil, gputypes.TextureFormatUndefined, 1)
	c := NewContext([]gputypes.TextureFormat{gputypes.TextureFormatBGRA8Unorm}, nil, gputypes.TextureFormatUndefined, 1)
	d := NewContext([]gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm}, nil, gputypes.TextureFormatUndefined, 4)
	assert.True(t, a.Compatible(b))
	assert.False(t, a.Compatible(c))
	assert.False(t, a.Compatible(d))

	msaa := NewContext([]gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm}, nil, gputypes.TextureFormatUndefined, 4)
	resolved := NewContext([]gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm},
		[]gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm}, gputypes.TextureFormatUndefined, 4)
	assert.True(t, resolved.Compatible(msaa), "resolve targets are ignored")
}

func TestLayoutFor(t *testing.T) {
	tests := []struct {
		use     track.TextureUse
		aspects track.Aspects
		want    ImageLayout
	}{
		{0, track.AspectColor, LayoutUndefined},
		{track.TextureUseCopySrc, track.AspectColor, LayoutTransferSrc},
		{track.TextureUseCopyDst, track.AspectColor, LayoutTransferDst},
		{track.TextureUseSampled, track.AspectColor, LayoutShaderReadOnly},
		{track.TextureUseAttachmentWrite, track.AspectColor, LayoutColorAttachment},
		{track.TextureUseAttachmentWrite, track.AspectDepth, LayoutDepthStencilAttachment},
		{track.TextureUseAttachmentRead, track.AspectDepth | track.AspectStencil, LayoutDepthStencilReadOnly},
		{track.TextureUseStorageStore, track.AspectColor, LayoutGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, LayoutFor(tt.use, tt.aspects))
		})
	}
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vkbackend

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/gogpu/renderpass/backend"
	"github.com/gogpu/renderpass/pass"
	"github.com/gogpu/renderpass/track"
)

func TestFactoryNeedsDevice(t *testing.T) {
	_, err := backend.Open(backend.BackendVulkan)
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("Open(vulkan) error = %v, want ErrNoDevice", err)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   gputypes.TextureFormat
		want vk.Format
	}{
		{gputypes.TextureFormatRGBA8Unorm, vk.FormatR8g8b8a8Unorm},
		{gputypes.TextureFormatBGRA8Unorm, vk.FormatB8g8r8a8Unorm},
		{gputypes.TextureFormatR8Unorm, vk.FormatR8Unorm},
		{gputypes.TextureFormatDepth24PlusStencil8, vk.FormatD24UnormS8Uint},
		{gputypes.TextureFormatDepth32Float, vk.FormatD32Sfloat},
	}
	for _, tt := range tests {
		got, err := Format(tt.in)
		if err != nil {
			t.Errorf("Format(%v) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Format(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := Format(gputypes.TextureFormatUndefined); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Format(Undefined) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestSampleCount(t *testing.T) {
	for n, want := range map[uint32]vk.SampleCountFlagBits{1: vk.SampleCount1Bit, 4: vk.SampleCount4Bit} {
		got, err := SampleCount(n)
		if err != nil || got != want {
			t.Errorf("SampleCount(%d) = %v, %v; want %v", n, got, err, want)
		}
	}
	if _, err := SampleCount(3); err == nil {
		t.Error("SampleCount(3) should fail")
	}
}

func TestImageLayout(t *testing.T) {
	tests := []struct {
		in   pass.ImageLayout
		want vk.ImageLayout
	}{
		{pass.LayoutUndefined, vk.ImageLayoutUndefined},
		{pass.LayoutColorAttachment, vk.ImageLayoutColorAttachmentOptimal},
		{pass.LayoutDepthStencilAttachment, vk.ImageLayoutDepthStencilAttachmentOptimal},
		{pass.LayoutShaderReadOnly, vk.ImageLayoutShaderReadOnlyOptimal},
		{pass.LayoutTransferDst, vk.ImageLayoutTransferDstOptimal},
		{pass.LayoutPresent, vk.ImageLayoutPresentSrc},
	}
	for _, tt := range tests {
		if got := ImageLayout(tt.in); got != tt.want {
			t.Errorf("ImageLayout(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIndexType(t *testing.T) {
	if got := IndexType(gputypes.IndexFormatUint32); got != vk.IndexTypeUint32 {
		t.Errorf("IndexType(Uint32) = %v", got)
	}
	if got := IndexType(gputypes.IndexFormatUint16); got != vk.IndexTypeUint16 {
		t.Errorf("IndexType(Uint16) = %v", got)
	}
}

func TestAccess(t *testing.T) {
	vertex := BufferAccess(track.BufferUseVertex | track.BufferUseIndex)
	wantMask := vk.AccessFlags(vk.AccessVertexAttributeReadBit | vk.AccessIndexReadBit)
	if vertex.Mask != wantMask {
		t.Errorf("vertex|index mask = %#x, want %#x", vertex.Mask, wantMask)
	}
	if vertex.Stages != vk.PipelineStageFlags(vk.PipelineStageVertexInputBit) {
		t.Errorf("vertex|index stages = %#x", vertex.Stages)
	}

	color := TextureAccess(track.TextureUseAttachmentWrite, track.AspectColor)
	if color.Mask&vk.AccessFlags(vk.AccessColorAttachmentWriteBit) == 0 {
		t.Errorf("color write mask = %#x, want color attachment write", color.Mask)
	}
	if color.Stages != vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) {
		t.Errorf("color write stages = %#x", color.Stages)
	}

	depth := TextureAccess(track.TextureUseAttachmentRead, track.AspectDepth|track.AspectStencil)
	if depth.Mask != vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) {
		t.Errorf("depth read mask = %#x", depth.Mask)
	}

	var none Access
	if none.stages(true) != vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit) {
		t.Error("empty source stages should be top-of-pipe")
	}
	if none.stages(false) != vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit) {
		t.Error("empty destination stages should be bottom-of-pipe")
	}

	mask := AspectMask(track.AspectDepth | track.AspectStencil)
	if mask != vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit) {
		t.Errorf("AspectMask(depth|stencil) = %#x", mask)
	}
}

func msaaKey() pass.RenderPassKey {
	var key pass.RenderPassKey
	key.Colors[0] = pass.Attachment{
		Format:  gputypes.TextureFormatBGRA8Unorm,
		Samples: 4,
		Ops:     pass.Ops{Load: pass.LoadClear, Store: pass.StoreDontCare},
		Layouts: pass.LayoutTransition{Old: pass.LayoutUndefined, New: pass.LayoutColorAttachment},
	}
	key.Colors[1] = pass.Attachment{
		Format:  gputypes.TextureFormatRGBA8Unorm,
		Samples: 4,
		Ops:     pass.Ops{Load: pass.LoadLoad, Store: pass.StoreStore},
		Layouts: pass.LayoutTransition{Old: pass.LayoutColorAttachment, New: pass.LayoutColorAttachment},
	}
	key.NumColors = 2
	key.Resolves[0] = pass.Attachment{
		Format:  gputypes.TextureFormatBGRA8Unorm,
		Samples: 1,
		Layouts: pass.LayoutTransition{Old: pass.LayoutUndefined, New: pass.LayoutPresent},
	}
	key.ResolveMask = 1
	key.HasDepthStencil = true
	key.DepthStencil = pass.Attachment{
		Format:     gputypes.TextureFormatDepth24PlusStencil8,
		Samples:    4,
		Ops:        pass.Ops{Load: pass.LoadLoad, Store: pass.StoreStore},
		StencilOps: pass.Ops{Load: pass.LoadClear, Store: pass.StoreStore},
		Layouts:    pass.LayoutTransition{Old: pass.LayoutDepthStencilAttachment, New: pass.LayoutDepthStencilAttachment},
	}
	key.DepthStencilLayout = pass.LayoutDepthStencilAttachment
	return key
}

func TestDescribeRenderPass(t *testing.T) {
	info, err := describeRenderPass(msaaKey())
	if err != nil {
		t.Fatalf("describeRenderPass error = %v", err)
	}
	if len(info.attachments) != 4 {
		t.Fatalf("attachments = %d, want 4", len(info.attachments))
	}

	c0 := info.attachments[0]
	if c0.Format != vk.FormatB8g8r8a8Unorm || c0.Samples != vk.SampleCount4Bit {
		t.Errorf("color 0 = %v/%v", c0.Format, c0.Samples)
	}
	if c0.LoadOp != vk.AttachmentLoadOpClear || c0.StoreOp != vk.AttachmentStoreOpDontCare {
		t.Errorf("color 0 ops = %v/%v", c0.LoadOp, c0.StoreOp)
	}
	if c0.StencilLoadOp != vk.AttachmentLoadOpDontCare {
		t.Errorf("color 0 stencil load = %v, want DontCare", c0.StencilLoadOp)
	}

	resolve := info.attachments[2]
	if resolve.Samples != vk.SampleCount1Bit || resolve.FinalLayout != vk.ImageLayoutPresentSrc {
		t.Errorf("resolve = %v/%v", resolve.Samples, resolve.FinalLayout)
	}
	if len(info.resolves) != 2 {
		t.Fatalf("resolve refs = %d, want one per color", len(info.resolves))
	}
	if info.resolves[0].Attachment != 2 || info.resolves[1].Attachment != attachmentUnused {
		t.Errorf("resolve refs = %+v", info.resolves)
	}

	if info.depth == nil || info.depth.Attachment != 3 {
		t.Fatalf("depth ref = %+v, want attachment 3", info.depth)
	}
	if info.depth.Layout != vk.ImageLayoutDepthStencilAttachmentOptimal {
		t.Errorf("depth layout = %v", info.depth.Layout)
	}
	ds := info.attachments[3]
	if ds.LoadOp != vk.AttachmentLoadOpLoad || ds.StencilLoadOp != vk.AttachmentLoadOpClear {
		t.Errorf("depth-stencil ops = %v/%v", ds.LoadOp, ds.StencilLoadOp)
	}

	var bad pass.RenderPassKey
	bad.Colors[0] = pass.Attachment{Format: gputypes.TextureFormatUndefined, Samples: 1}
	bad.NumColors = 1
	if _, err := describeRenderPass(bad); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("describeRenderPass(undefined) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestClearValues(t *testing.T) {
	key := msaaKey()
	clears := []pass.ClearValue{
		{Color: gputypes.Color{R: 1, A: 1}},
		{Depth: 1, Stencil: 3, DepthStencil: true},
	}
	out := clearValues(key, clears)
	if len(out) != key.AttachmentCount() {
		t.Fatalf("clear values = %d, want %d", len(out), key.AttachmentCount())
	}
	if out[0] != vk.NewClearValue([]float32{1, 0, 0, 1}) {
		t.Error("color 0 clear value mismatch")
	}
	var zero vk.ClearValue
	if out[1] != zero || out[2] != zero {
		t.Error("loaded color and resolve should have no clear value")
	}
	if out[3] != vk.NewClearDepthStencil(1, 3) {
		t.Error("depth-stencil clear value mismatch")
	}
}

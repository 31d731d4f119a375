// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vkbackend

import (
	"fmt"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/gogpu/renderpass/pass"
	"github.com/gogpu/renderpass/track"
)

// attachmentUnused marks an absent resolve attachment (VK_ATTACHMENT_UNUSED).
const attachmentUnused = ^uint32(0)

// queueFamilyIgnored leaves barrier ownership unchanged (VK_QUEUE_FAMILY_IGNORED).
const queueFamilyIgnored = ^uint32(0)

var formats = map[gputypes.TextureFormat]vk.Format{
	gputypes.TextureFormatR8Unorm:              vk.FormatR8Unorm,
	gputypes.TextureFormatRGBA8Unorm:           vk.FormatR8g8b8a8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb:       vk.FormatR8g8b8a8Srgb,
	gputypes.TextureFormatBGRA8Unorm:           vk.FormatB8g8r8a8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb:       vk.FormatB8g8r8a8Srgb,
	gputypes.TextureFormatRGBA16Float:          vk.FormatR16g16b16a16Sfloat,
	gputypes.TextureFormatRGBA32Float:          vk.FormatR32g32b32a32Sfloat,
	gputypes.TextureFormatDepth16Unorm:         vk.FormatD16Unorm,
	gputypes.TextureFormatDepth24Plus:          vk.FormatD32Sfloat,
	gputypes.TextureFormatDepth32Float:         vk.FormatD32Sfloat,
	gputypes.TextureFormatDepth24PlusStencil8:  vk.FormatD24UnormS8Uint,
	gputypes.TextureFormatDepth32FloatStencil8: vk.FormatD32SfloatS8Uint,
	gputypes.TextureFormatStencil8:             vk.FormatS8Uint,
}

// Format maps a texture format to its Vulkan format.
func Format(f gputypes.TextureFormat) (vk.Format, error) {
	if vf, ok := formats[f]; ok {
		return vf, nil
	}
	return vk.FormatUndefined, fmt.Errorf("%w: %v", ErrUnsupportedFormat, f)
}

// SampleCount maps a sample count to its flag bit.
func SampleCount(n uint32) (vk.SampleCountFlagBits, error) {
	switch n {
	case 1:
		return vk.SampleCount1Bit, nil
	case 2:
		return vk.SampleCount2Bit, nil
	case 4:
		return vk.SampleCount4Bit, nil
	case 8:
		return vk.SampleCount8Bit, nil
	case 16:
		return vk.SampleCount16Bit, nil
	case 32:
		return vk.SampleCount32Bit, nil
	default:
		return 0, fmt.Errorf("vkbackend: unsupported sample count %d", n)
	}
}

func loadOp(op pass.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case pass.LoadLoad:
		return vk.AttachmentLoadOpLoad
	case pass.LoadClear:
		return vk.AttachmentLoadOpClear
	default:
		return vk.AttachmentLoadOpDontCare
	}
}

func storeOp(op pass.StoreOp) vk.AttachmentStoreOp {
	if op == pass.StoreStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

// ImageLayout maps a pass layout to a Vulkan image layout.
func ImageLayout(l pass.ImageLayout) vk.ImageLayout {
	switch l {
	case pass.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case pass.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case pass.LayoutDepthStencilAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case pass.LayoutDepthStencilReadOnly:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case pass.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case pass.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case pass.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case pass.LayoutPresent:
		return vk.ImageLayoutPresentSrc
	default:
		return vk.ImageLayoutUndefined
	}
}

// IndexType maps an index format. Undefined formats fall back to 16 bit.
func IndexType(f gputypes.IndexFormat) vk.IndexType {
	if f == gputypes.IndexFormatUint32 {
		return vk.IndexTypeUint32
	}
	return vk.IndexTypeUint16
}

// AspectMask maps tracked aspects to image aspect flags.
func AspectMask(a track.Aspects) vk.ImageAspectFlags {
	var mask vk.ImageAspectFlags
	if a&track.AspectColor != 0 {
		mask |= vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	if a&track.AspectDepth != 0 {
		mask |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if a&track.AspectStencil != 0 {
		mask |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return mask
}

// Access is the memory access and pipeline stages of a usage.
type Access struct {
	Mask   vk.AccessFlags
	Stages vk.PipelineStageFlags
}

func (a *Access) add(mask vk.AccessFlagBits, stages ...vk.PipelineStageFlagBits) {
	a.Mask |= vk.AccessFlags(mask)
	for _, s := range stages {
		a.Stages |= vk.PipelineStageFlags(s)
	}
}

// stages returns the stage mask, substituting top-of-pipe for an empty
// source or bottom-of-pipe for an empty destination.
func (a Access) stages(src bool) vk.PipelineStageFlags {
	if a.Stages != 0 {
		return a.Stages
	}
	if src {
		return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
}

const shaderStages = vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit

// BufferAccess returns the access a buffer usage performs.
func BufferAccess(u track.BufferUse) Access {
	var a Access
	if u&(track.BufferUseMapRead|track.BufferUseMapWrite) != 0 {
		a.add(vk.AccessHostReadBit|vk.AccessHostWriteBit, vk.PipelineStageHostBit)
	}
	if u&track.BufferUseCopySrc != 0 {
		a.add(vk.AccessTransferReadBit, vk.PipelineStageTransferBit)
	}
	if u&track.BufferUseCopyDst != 0 {
		a.add(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit)
	}
	if u&track.BufferUseIndex != 0 {
		a.add(vk.AccessIndexReadBit, vk.PipelineStageVertexInputBit)
	}
	if u&track.BufferUseVertex != 0 {
		a.add(vk.AccessVertexAttributeReadBit, vk.PipelineStageVertexInputBit)
	}
	if u&track.BufferUseUniform != 0 {
		a.add(vk.AccessUniformReadBit, shaderStages)
	}
	if u&track.BufferUseStorageLoad != 0 {
		a.add(vk.AccessShaderReadBit, shaderStages)
	}
	if u&track.BufferUseStorageStore != 0 {
		a.add(vk.AccessShaderWriteBit, shaderStages)
	}
	if u&track.BufferUseIndirect != 0 {
		a.add(vk.AccessIndirectCommandReadBit, vk.PipelineStageDrawIndirectBit)
	}
	return a
}

// TextureAccess returns the access a texture usage performs on the given
// aspects.
func TextureAccess(u track.TextureUse, aspects track.Aspects) Access {
	depth := aspects&(track.AspectDepth|track.AspectStencil) != 0
	var a Access
	if u&track.TextureUseCopySrc != 0 {
		a.add(vk.AccessTransferReadBit, vk.PipelineStageTransferBit)
	}
	if u&track.TextureUseCopyDst != 0 {
		a.add(vk.AccessTransferWriteBit, vk.PipelineStageTransferBit)
	}
	if u&(track.TextureUseSampled|track.TextureUseStorageLoad) != 0 {
		a.add(vk.AccessShaderReadBit, shaderStages)
	}
	if u&track.TextureUseStorageStore != 0 {
		a.add(vk.AccessShaderWriteBit, shaderStages)
	}
	if u&track.TextureUseAttachmentRead != 0 {
		if depth {
			a.add(vk.AccessDepthStencilAttachmentReadBit,
				vk.PipelineStageEarlyFragmentTestsBit, vk.PipelineStageLateFragmentTestsBit)
		} else {
			a.add(vk.AccessColorAttachmentReadBit, vk.PipelineStageColorAttachmentOutputBit)
		}
	}
	if u&track.TextureUseAttachmentWrite != 0 {
		if depth {
			a.add(vk.AccessDepthStencilAttachmentReadBit|vk.AccessDepthStencilAttachmentWriteBit,
				vk.PipelineStageEarlyFragmentTestsBit, vk.PipelineStageLateFragmentTestsBit)
		} else {
			a.add(vk.AccessColorAttachmentReadBit|vk.AccessColorAttachmentWriteBit,
				vk.PipelineStageColorAttachmentOutputBit)
		}
	}
	return a
}

// renderPassInfo is the attachment and subpass layout of a render pass,
// built from a key without touching the driver.
type renderPassInfo struct {
	attachments []vk.AttachmentDescription
	colors      []vk.AttachmentReference
	resolves    []vk.AttachmentReference
	depth       *vk.AttachmentReference
}

func attachmentDescription(at pass.Attachment, stencil pass.Ops) (vk.AttachmentDescription, error) {
	format, err := Format(at.Format)
	if err != nil {
		return vk.AttachmentDescription{}, err
	}
	samples, err := SampleCount(at.Samples)
	if err != nil {
		return vk.AttachmentDescription{}, err
	}
	return vk.AttachmentDescription{
		Format:         format,
		Samples:        samples,
		LoadOp:         loadOp(at.Ops.Load),
		StoreOp:        storeOp(at.Ops.Store),
		StencilLoadOp:  loadOp(stencil.Load),
		StencilStoreOp: storeOp(stencil.Store),
		InitialLayout:  ImageLayout(at.Layouts.Old),
		FinalLayout:    ImageLayout(at.Layouts.New),
	}, nil
}

// describeRenderPass lays attachments out as colors, resolves, then
// depth-stencil, matching the framebuffer view order.
func describeRenderPass(key pass.RenderPassKey) (*renderPassInfo, error) {
	info := &renderPassInfo{}
	n := int(key.NumColors)
	for i := range n {
		desc, err := attachmentDescription(key.Colors[i], pass.OpsDontCare)
		if err != nil {
			return nil, fmt.Errorf("color attachment %d: %w", i, err)
		}
		info.colors = append(info.colors, vk.AttachmentReference{
			Attachment: uint32(len(info.attachments)),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
		info.attachments = append(info.attachments, desc)
	}

	if key.ResolveMask != 0 {
		for i := range n {
			if !key.HasResolve(i) {
				info.resolves = append(info.resolves, vk.AttachmentReference{Attachment: attachmentUnused})
				continue
			}
			desc, err := attachmentDescription(key.Resolves[i], pass.OpsDontCare)
			if err != nil {
				return nil, fmt.Errorf("resolve attachment %d: %w", i, err)
			}
			info.resolves = append(info.resolves, vk.AttachmentReference{
				Attachment: uint32(len(info.attachments)),
				Layout:     vk.ImageLayoutColorAttachmentOptimal,
			})
			info.attachments = append(info.attachments, desc)
		}
	}

	if key.HasDepthStencil {
		desc, err := attachmentDescription(key.DepthStencil, key.DepthStencil.StencilOps)
		if err != nil {
			return nil, fmt.Errorf("depth-stencil attachment: %w", err)
		}
		info.depth = &vk.AttachmentReference{
			Attachment: uint32(len(info.attachments)),
			Layout:     ImageLayout(key.DepthStencilLayout),
		}
		info.attachments = append(info.attachments, desc)
	}
	return info, nil
}

// clearValues expands the cleared attachments' values into one entry per
// attachment, as VkRenderPassBeginInfo indexes them by attachment.
func clearValues(key pass.RenderPassKey, clears []pass.ClearValue) []vk.ClearValue {
	next := func() pass.ClearValue {
		if len(clears) == 0 {
			return pass.ClearValue{}
		}
		c := clears[0]
		clears = clears[1:]
		return c
	}
	out := make([]vk.ClearValue, key.AttachmentCount())
	n := int(key.NumColors)
	for i := range n {
		if key.Colors[i].Ops.Load == pass.LoadClear {
			c := next().Color
			out[i] = vk.NewClearValue([]float32{float32(c.R), float32(c.G), float32(c.B), float32(c.A)})
		}
	}
	if key.HasDepthStencil {
		ds := key.DepthStencil
		if ds.Ops.Load == pass.LoadClear || ds.StencilOps.Load == pass.LoadClear {
			c := next()
			out[len(out)-1] = vk.NewClearDepthStencil(c.Depth, c.Stencil)
		}
	}
	return out
}

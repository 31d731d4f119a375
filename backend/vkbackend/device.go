// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package vkbackend records render passes into Vulkan command buffers
// through github.com/goki/vulkan.
//
// The package does not create instances or devices. The application opens
// a logical device and command pool and wraps them with NewDevice; the
// registered factory reports ErrNoDevice so backend.Default moves on.
//
// Native handles stored in the registries must be Vulkan objects:
// vk.Buffer, vk.Image, vk.ImageView, vk.DescriptorSet, vk.PipelineLayout
// and vk.Pipeline.
package vkbackend

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/gogpu/renderpass/backend"
	"github.com/gogpu/renderpass/pass"
)

func init() {
	backend.Register(backend.BackendVulkan, func() (backend.Device, error) {
		return nil, ErrNoDevice
	})
}

var (
	// ErrNoDevice is returned by the registered factory: a Vulkan device
	// must come from the application.
	ErrNoDevice = errors.New("vkbackend: no Vulkan device; wrap one with NewDevice")

	// ErrUnsupportedFormat is returned for texture formats with no Vulkan
	// equivalent.
	ErrUnsupportedFormat = errors.New("vkbackend: unsupported texture format")

	// ErrHandle is returned when a native handle is not the Vulkan object
	// the call expects.
	ErrHandle = errors.New("vkbackend: unexpected handle type")
)

// NewError converts a failed vk.Result into an error.
func NewError(ret vk.Result) error {
	if ret != vk.Success {
		return fmt.Errorf("vulkan error: %s (%d)", vk.Error(ret).Error(), ret)
	}
	return nil
}

// RenderPass is a Vulkan render pass and the key it was built from.
type RenderPass struct {
	Handle vk.RenderPass
	Key    pass.RenderPassKey
}

// Framebuffer is a Vulkan framebuffer.
type Framebuffer struct {
	Handle     vk.Framebuffer
	RenderPass *RenderPass
	Extent     gputypes.Extent3D
}

// Device wraps a logical device and the command pool command buffers are
// allocated from.
//
// Device is safe for concurrent use as long as the pool is only used
// through it.
type Device struct {
	mu     sync.Mutex
	dev    vk.Device
	pool   vk.CommandPool
	logger *slog.Logger
}

// NewDevice wraps dev. Command buffers are allocated from pool.
func NewDevice(dev vk.Device, pool vk.CommandPool) *Device {
	return &Device{dev: dev, pool: pool, logger: slog.New(slog.DiscardHandler)}
}

// SetLogger sets the logger used for skipped commands.
func (d *Device) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	d.logger = l
}

func (d *Device) CreateRenderPass(key pass.RenderPassKey) (backend.RenderPass, error) {
	info, err := describeRenderPass(key)
	if err != nil {
		return nil, err
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    uint32(len(info.colors)),
		PColorAttachments:       info.colors,
		PResolveAttachments:     info.resolves,
		PDepthStencilAttachment: info.depth,
	}
	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(info.attachments)),
		PAttachments:    info.attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	var rp vk.RenderPass
	if err := NewError(vk.CreateRenderPass(d.dev, &createInfo, nil, &rp)); err != nil {
		return nil, fmt.Errorf("vkbackend: create render pass: %w", err)
	}
	return &RenderPass{Handle: rp, Key: key}, nil
}

func (d *Device) DestroyRenderPass(rp backend.RenderPass) {
	if r, ok := rp.(*RenderPass); ok && r.Handle != nil {
		vk.DestroyRenderPass(d.dev, r.Handle, nil)
		r.Handle = nil
	}
}

func (d *Device) CreateFramebuffer(rp backend.RenderPass, views []backend.TextureView, extent gputypes.Extent3D) (backend.Framebuffer, error) {
	r, ok := rp.(*RenderPass)
	if !ok {
		return nil, fmt.Errorf("%w: render pass is %T", ErrHandle, rp)
	}
	attachments := make([]vk.ImageView, len(views))
	for i, v := range views {
		iv, ok := v.(vk.ImageView)
		if !ok {
			return nil, fmt.Errorf("%w: view %d is %T", ErrHandle, i, v)
		}
		attachments[i] = iv
	}
	layers := max(extent.DepthOrArrayLayers, 1)

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      r.Handle,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          layers,
	}
	var fb vk.Framebuffer
	if err := NewError(vk.CreateFramebuffer(d.dev, &createInfo, nil, &fb)); err != nil {
		return nil, fmt.Errorf("vkbackend: create framebuffer: %w", err)
	}
	return &Framebuffer{Handle: fb, RenderPass: r, Extent: extent}, nil
}

func (d *Device) DestroyFramebuffer(fb backend.Framebuffer) {
	if f, ok := fb.(*Framebuffer); ok && f.Handle != nil {
		vk.DestroyFramebuffer(d.dev, f.Handle, nil)
		f.Handle = nil
	}
}

// CreateCommandBuffer allocates a primary command buffer and begins it for
// one-time submission.
func (d *Device) CreateCommandBuffer(label string) (backend.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cmds := make([]vk.CommandBuffer, 1)
	if err := NewError(vk.AllocateCommandBuffers(d.dev, &allocInfo, cmds)); err != nil {
		return nil, fmt.Errorf("vkbackend: allocate command buffer: %w", err)
	}
	cmd := cmds[0]

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := NewError(vk.BeginCommandBuffer(cmd, &beginInfo)); err != nil {
		vk.FreeCommandBuffers(d.dev, d.pool, 1, cmds)
		return nil, fmt.Errorf("vkbackend: begin command buffer: %w", err)
	}
	return &CommandBuffer{device: d, Handle: cmd, label: label, logger: d.logger}, nil
}

func (d *Device) free(cmd vk.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vk.FreeCommandBuffers(d.dev, d.pool, 1, []vk.CommandBuffer{cmd})
}

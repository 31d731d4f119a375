// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package halbackend records render passes into github.com/gogpu/wgpu/hal
// command encoders.
//
// The HAL has no render pass or framebuffer objects; passes are described
// inline when they begin. The Device still hands out RenderPass and
// Framebuffer values so the executor's caches work unchanged: a RenderPass
// carries the attachment layout and a Framebuffer carries the views.
//
// Native handles stored in the registries must be HAL objects:
// hal.Buffer, hal.Texture, hal.TextureView, hal.BindGroup and
// hal.RenderPipeline.
package halbackend

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/renderpass/backend"
	"github.com/gogpu/renderpass/pass"
)

func init() {
	backend.Register(backend.BackendHAL, func() (backend.Device, error) {
		return Open(gputypes.BackendVulkan)
	})
}

// Errors returned by the HAL backend.
var (
	// ErrNoAdapter is returned when the HAL instance exposes no adapter.
	ErrNoAdapter = errors.New("halbackend: no GPU adapters found")

	// ErrUnavailable is returned when the requested HAL API is not
	// compiled in.
	ErrUnavailable = errors.New("halbackend: API not available")

	// ErrHandle is returned when a native handle is not the HAL object the
	// call expects.
	ErrHandle = errors.New("halbackend: unexpected handle type")
)

// RenderPass is the attachment layout of a pass.
type RenderPass struct {
	Key pass.RenderPassKey
}

// Framebuffer binds views to a RenderPass. Views are in backend attachment
// order: colors, resolves, then depth-stencil.
type Framebuffer struct {
	RenderPass *RenderPass
	Views      []hal.TextureView
	Extent     gputypes.Extent3D
}

// Device adapts a hal.Device to backend.Device.
//
// Device is safe for concurrent use.
type Device struct {
	mu       sync.Mutex
	dev      hal.Device
	instance hal.Instance
	logger   *slog.Logger
	closed   bool
}

// NewDevice wraps an open HAL device. The caller keeps ownership of dev.
func NewDevice(dev hal.Device) *Device {
	return &Device{dev: dev, logger: slog.New(slog.DiscardHandler)}
}

// Open creates an instance of the HAL API, picks the first discrete or
// integrated adapter and opens a device on it. Close releases both.
func Open(api gputypes.Backend) (*Device, error) {
	halAPI, ok := hal.GetBackend(api)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, api)
	}
	instance, err := halAPI.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("halbackend: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halbackend: open device: %w", err)
	}
	d := NewDevice(openDev.Device)
	d.instance = instance
	return d, nil
}

// Raw returns the wrapped HAL device.
func (d *Device) Raw() hal.Device { return d.dev }

// SetLogger sets the logger used for per-pass diagnostics.
func (d *Device) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	d.logger = l
}

func (d *Device) log() *slog.Logger {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.logger
}

// Close destroys the device and instance if Open created them. A device
// from NewDevice is left to its owner.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.instance == nil {
		return
	}
	d.closed = true
	d.dev.Destroy()
	d.instance.Destroy()
}

func (d *Device) CreateRenderPass(key pass.RenderPassKey) (backend.RenderPass, error) {
	if key.NumColors == 0 && !key.HasDepthStencil {
		return nil, fmt.Errorf("halbackend: render pass without attachments")
	}
	return &RenderPass{Key: key}, nil
}

// DestroyRenderPass is a no-op; the HAL owns no render pass object.
func (d *Device) DestroyRenderPass(backend.RenderPass) {}

func (d *Device) CreateFramebuffer(rp backend.RenderPass, views []backend.TextureView, extent gputypes.Extent3D) (backend.Framebuffer, error) {
	r, ok := rp.(*RenderPass)
	if !ok {
		return nil, fmt.Errorf("%w: render pass is %T", ErrHandle, rp)
	}
	if want := r.Key.AttachmentCount(); len(views) != want {
		return nil, fmt.Errorf("halbackend: framebuffer has %d views, render pass needs %d", len(views), want)
	}
	fb := &Framebuffer{RenderPass: r, Views: make([]hal.TextureView, len(views)), Extent: extent}
	for i, v := range views {
		hv, ok := v.(hal.TextureView)
		if !ok {
			return nil, fmt.Errorf("%w: view %d is %T", ErrHandle, i, v)
		}
		fb.Views[i] = hv
	}
	return fb, nil
}

// DestroyFramebuffer is a no-op; views stay owned by their textures.
func (d *Device) DestroyFramebuffer(backend.Framebuffer) {}

func (d *Device) CreateCommandBuffer(label string) (backend.CommandBuffer, error) {
	encoder, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("halbackend: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("halbackend: begin encoding: %w", err)
	}
	return &CommandBuffer{encoder: encoder, label: label, logger: d.log()}, nil
}

// FreeCommandBuffer releases a command buffer returned by
// CommandBuffer.Raw after it has been submitted.
func (d *Device) FreeCommandBuffer(cb hal.CommandBuffer) {
	d.dev.FreeCommandBuffer(cb)
}

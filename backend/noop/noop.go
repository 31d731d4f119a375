// Package noop provides a backend that executes nothing and records every
// call. It backs the package tests and the passcheck tool.
package noop

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/backend"
	"github.com/gogpu/renderpass/pass"
)

func init() {
	backend.Register(backend.BackendNoop, func() (backend.Device, error) {
		return NewDevice(), nil
	})
}

// ErrInjected is returned by calls configured to fail with FailOn.
var ErrInjected = errors.New("noop: injected failure")

// RenderPass is the render pass object of the noop backend.
type RenderPass struct {
	Key pass.RenderPassKey
	id  int
}

// Framebuffer is the framebuffer object of the noop backend.
type Framebuffer struct {
	RenderPass *RenderPass
	Views      []backend.TextureView
	Extent     gputypes.Extent3D
	id         int
}

// Device counts created and destroyed objects.
//
// Device is safe for concurrent use.
type Device struct {
	mu     sync.Mutex
	nextID int
	live   map[any]struct{}
	fail   map[string]bool

	RenderPassesCreated   int
	FramebuffersCreated   int
	CommandBuffersCreated int
	Destroyed             int
}

// NewDevice creates an empty device.
func NewDevice() *Device {
	return &Device{live: make(map[any]struct{}), fail: make(map[string]bool)}
}

// FailOn makes the named device method return ErrInjected.
func (d *Device) FailOn(method string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[method] = true
}

// Live returns the number of render passes and framebuffers not yet
// destroyed.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// Stats returns the creation counters.
func (d *Device) Stats() (renderPasses, framebuffers, commandBuffers, destroyed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.RenderPassesCreated, d.FramebuffersCreated, d.CommandBuffersCreated, d.Destroyed
}

func (d *Device) CreateRenderPass(key pass.RenderPassKey) (backend.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail["CreateRenderPass"] {
		return nil, ErrInjected
	}
	d.nextID++
	rp := &RenderPass{Key: key, id: d.nextID}
	d.live[rp] = struct{}{}
	d.RenderPassesCreated++
	return rp, nil
}

func (d *Device) DestroyRenderPass(rp backend.RenderPass) { d.destroy(rp) }

func (d *Device) CreateFramebuffer(rp backend.RenderPass, views []backend.TextureView, extent gputypes.Extent3D) (backend.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail["CreateFramebuffer"] {
		return nil, ErrInjected
	}
	r, ok := rp.(*RenderPass)
	if !ok {
		return nil, fmt.Errorf("noop: render pass is %T", rp)
	}
	d.nextID++
	fb := &Framebuffer{RenderPass: r, Views: views, Extent: extent, id: d.nextID}
	d.live[fb] = struct{}{}
	d.FramebuffersCreated++
	return fb, nil
}

func (d *Device) DestroyFramebuffer(fb backend.Framebuffer) { d.destroy(fb) }

func (d *Device) destroy(obj any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[obj]; ok {
		delete(d.live, obj)
		d.Destroyed++
	}
}

func (d *Device) CreateCommandBuffer(label string) (backend.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail["CreateCommandBuffer"] {
		return nil, ErrInjected
	}
	d.CommandBuffersCreated++
	return &CommandBuffer{Label: label}, nil
}

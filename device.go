package renderpass

import (
	"fmt"
	"sync"

	"github.com/gogpu/renderpass/backend"
	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/internal/cache"
	"github.com/gogpu/renderpass/pass"
)

// Device is a backend device with its render pass and framebuffer caches.
type Device struct {
	Label string

	raw          backend.Device
	renderPasses *cache.Cache[pass.RenderPassKey, backend.RenderPass]
	framebuffers *cache.Cache[pass.FramebufferKey, backend.Framebuffer]

	mu sync.Mutex
	// pending holds surface framebuffers of finished command buffers until
	// their surface is presented.
	pending map[hub.ID][]backend.Framebuffer
}

// Raw returns the backend device.
func (d *Device) Raw() backend.Device { return d.raw }

// renderPass returns the cached backend render pass for key.
func (d *Device) renderPass(key pass.RenderPassKey) (backend.RenderPass, error) {
	rp, hit, err := d.renderPasses.GetOrCreate(key, d.raw.CreateRenderPass)
	if err != nil {
		return nil, fmt.Errorf("create render pass: %w", err)
	}
	Logger().Debug("render pass cache", "device", d.Label, "hit", hit, "attachments", key.AttachmentCount())
	return rp, nil
}

// framebuffer returns the cached framebuffer for key, creating it over
// views on a miss.
func (d *Device) framebuffer(rp backend.RenderPass, key pass.FramebufferKey, views []backend.TextureView) (backend.Framebuffer, error) {
	fb, hit, err := d.framebuffers.GetOrCreate(key, func(k pass.FramebufferKey) (backend.Framebuffer, error) {
		return d.raw.CreateFramebuffer(rp, views, k.Extent)
	})
	if err != nil {
		return nil, fmt.Errorf("create framebuffer: %w", err)
	}
	Logger().Debug("framebuffer cache", "device", d.Label, "hit", hit)
	return fb, nil
}

func (d *Device) addPending(surface hub.ID, fbs []backend.Framebuffer) {
	if len(fbs) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[surface] = append(d.pending[surface], fbs...)
}

// present destroys the framebuffers waiting on surface.
func (d *Device) present(surface hub.ID) int {
	d.mu.Lock()
	fbs := d.pending[surface]
	delete(d.pending, surface)
	d.mu.Unlock()

	for _, fb := range fbs {
		d.raw.DestroyFramebuffer(fb)
	}
	return len(fbs)
}

// destroy releases every cached and pending object.
func (d *Device) destroy() {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[hub.ID][]backend.Framebuffer)
	d.mu.Unlock()

	for surface, fbs := range pending {
		Logger().Warn("surface framebuffers destroyed before present",
			"device", d.Label, "surface", surface, "count", len(fbs))
		for _, fb := range fbs {
			d.raw.DestroyFramebuffer(fb)
		}
	}
	d.framebuffers.Drain(func(_ pass.FramebufferKey, fb backend.Framebuffer) {
		d.raw.DestroyFramebuffer(fb)
	})
	d.renderPasses.Drain(func(_ pass.RenderPassKey, rp backend.RenderPass) {
		d.raw.DestroyRenderPass(rp)
	})
}

// CacheStats describes the caches of a device.
type CacheStats struct {
	RenderPasses      int
	RenderPassHits    uint64
	RenderPassMisses  uint64
	Framebuffers      int
	FramebufferHits   uint64
	FramebufferMisses uint64
}

// DeviceCreate registers a backend device.
func (h *Hub) DeviceCreate(raw backend.Device, label string) hub.ID {
	d := &Device{
		Label:        label,
		raw:          raw,
		renderPasses: cache.New[pass.RenderPassKey, backend.RenderPass](),
		framebuffers: cache.New[pass.FramebufferKey, backend.Framebuffer](),
		pending:      make(map[hub.ID][]backend.Framebuffer),
	}
	trackDevice(raw)
	id := h.devices.Register(d)
	Logger().Info("device created", "id", id, "label", label)
	return id
}

// DeviceDestroy unregisters a device and destroys its cached objects.
// Objects created on it stay registered but can no longer be used.
func (h *Hub) DeviceDestroy(id hub.ID) error {
	d, err := h.devices.Unregister(id)
	if err != nil {
		return fmt.Errorf("destroy device: %w", err)
	}
	d.destroy()
	untrackDevice(d.raw)
	Logger().Info("device destroyed", "id", id, "label", d.Label)
	return nil
}

// DeviceCacheStats reports the cache sizes and hit counts of a device.
func (h *Hub) DeviceCacheStats(id hub.ID) (CacheStats, error) {
	d, err := h.devices.Get(id)
	if err != nil {
		return CacheStats{}, err
	}
	rp, fb := d.renderPasses.Stats(), d.framebuffers.Stats()
	return CacheStats{
		RenderPasses:      rp.Len,
		RenderPassHits:    rp.Hits,
		RenderPassMisses:  rp.Misses,
		Framebuffers:      fb.Len,
		FramebufferHits:   fb.Hits,
		FramebufferMisses: fb.Misses,
	}, nil
}

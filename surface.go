package renderpass

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/backend"
	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/resource"
	"github.com/gogpu/renderpass/track"
)

// SurfaceDescriptor describes a presentable surface.
type SurfaceDescriptor struct {
	Label string
	// Provider supplies the surface format when Format is undefined.
	Provider gpucontext.DeviceProvider
	Format   gputypes.TextureFormat
	Width    uint32
	Height   uint32
}

// DeviceCreateSurface registers a surface on device.
func (h *Hub) DeviceCreateSurface(device hub.ID, desc *SurfaceDescriptor) (hub.ID, error) {
	if _, err := h.devices.Get(device); err != nil {
		return 0, fmt.Errorf("create surface: %w", err)
	}
	format := desc.Format
	if format == gputypes.TextureFormatUndefined && desc.Provider != nil {
		format = desc.Provider.SurfaceFormat()
	}
	if format == gputypes.TextureFormatUndefined {
		return 0, fmt.Errorf("create surface %q: %w: no format", desc.Label, ErrInvalidDescriptor)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return 0, fmt.Errorf("create surface %q: %w: empty size", desc.Label, ErrInvalidDescriptor)
	}
	id := h.surfaces.Register(&resource.Surface{
		Label:  desc.Label,
		Device: device,
		Format: format,
		Width:  desc.Width,
		Height: desc.Height,
	})
	Logger().Debug("surface created", "id", id, "label", desc.Label, "format", format)
	return id, nil
}

// SurfaceGetCurrentTextureView registers raw, the backend view of the
// image acquired from the surface, as the surface's current view. The view
// stays valid until SurfacePresent.
func (h *Hub) SurfaceGetCurrentTextureView(surface hub.ID, raw backend.TextureView) (hub.ID, error) {
	s, err := h.surfaces.Get(surface)
	if err != nil {
		return 0, fmt.Errorf("get current texture: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.surfaceViews[surface]; ok {
		return 0, fmt.Errorf("get current texture of surface %s: %w: view %s not presented", surface, ErrInvalidDescriptor, old)
	}
	id := h.views.Register(&resource.TextureView{
		Label:   s.Label,
		Raw:     raw,
		Device:  s.Device,
		Surface: surface,
		Format:  s.Format,
		Samples: 1,
		Extent:  gputypes.Extent3D{Width: s.Width, Height: s.Height, DepthOrArrayLayers: 1},
		Range: track.SubresourceRange{
			Aspects:       track.AspectColor,
			MipLevelCount: 1,
			LayerCount:    1,
		},
	})
	h.surfaceViews[surface] = id
	return id, nil
}

// SurfacePresent retires the current image of surface: its view is
// unregistered and the framebuffers rendered to it are destroyed.
func (h *Hub) SurfacePresent(surface hub.ID) error {
	devices := h.devices.Read()
	defer devices.Release()

	s, err := h.surfaces.Get(surface)
	if err != nil {
		return fmt.Errorf("present: %w", err)
	}
	h.mu.Lock()
	view, ok := h.surfaceViews[surface]
	delete(h.surfaceViews, surface)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("present surface %s: %w: no current texture", surface, ErrInvalidDescriptor)
	}
	if _, err := h.views.Unregister(view); err != nil {
		return fmt.Errorf("present surface %s: %w", surface, err)
	}

	d, err := devices.Get(s.Device)
	if err != nil {
		return fmt.Errorf("present surface %s: %w", surface, err)
	}
	n := d.present(surface)
	Logger().Debug("surface presented", "id", surface, "framebuffers", n)
	return nil
}

// SurfaceDestroy unregisters a surface.
func (h *Hub) SurfaceDestroy(surface hub.ID) error {
	h.mu.Lock()
	view, ok := h.surfaceViews[surface]
	delete(h.surfaceViews, surface)
	h.mu.Unlock()
	if ok {
		_, _ = h.views.Unregister(view)
	}
	if d, err := h.surfaceDevice(surface); err == nil {
		d.present(surface)
	}
	return destroy(h.surfaces, surface)
}

func (h *Hub) surfaceDevice(surface hub.ID) (*Device, error) {
	s, err := h.surfaces.Get(surface)
	if err != nil {
		return nil, err
	}
	return h.devices.Get(s.Device)
}

package renderpass

import (
	"fmt"
	"sync"

	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/resource"
)

// Hub owns the registries of every object a pass can reference.
//
// Registries are locked in one global order: devices, command encoders,
// render bundles, pipeline layouts, bind group layouts, bind groups,
// render pipelines, buffers, textures, texture views, surfaces. Any
// operation holding several of them takes them in that order.
//
// Hub is safe for concurrent use.
type Hub struct {
	cfg Config

	devices          *hub.Registry[*Device]
	encoders         *hub.Registry[*CommandEncoder]
	bundles          *hub.Registry[*resource.RenderBundle]
	pipelineLayouts  *hub.Registry[*resource.PipelineLayout]
	bindGroupLayouts *hub.Registry[*resource.BindGroupLayout]
	bindGroups       *hub.Registry[*resource.BindGroup]
	pipelines        *hub.Registry[*resource.RenderPipeline]
	buffers          *hub.Registry[*resource.Buffer]
	textures         *hub.Registry[*resource.Texture]
	views            *hub.Registry[*resource.TextureView]
	surfaces         *hub.Registry[*resource.Surface]

	mu           sync.Mutex
	trace        *Trace
	surfaceViews map[hub.ID]hub.ID // surface -> current image view
}

// NewHub creates a hub. A zero Limits in cfg is replaced by DefaultLimits.
func NewHub(cfg Config) (*Hub, error) {
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	if err := cfg.Limits.Validate(); err != nil {
		return nil, err
	}
	h := &Hub{
		cfg:              cfg,
		devices:          hub.NewRegistry[*Device]("device"),
		encoders:         hub.NewRegistry[*CommandEncoder]("command encoder"),
		bundles:          hub.NewRegistry[*resource.RenderBundle]("render bundle"),
		pipelineLayouts:  hub.NewRegistry[*resource.PipelineLayout]("pipeline layout"),
		bindGroupLayouts: hub.NewRegistry[*resource.BindGroupLayout]("bind group layout"),
		bindGroups:       hub.NewRegistry[*resource.BindGroup]("bind group"),
		pipelines:        hub.NewRegistry[*resource.RenderPipeline]("render pipeline"),
		buffers:          hub.NewRegistry[*resource.Buffer]("buffer"),
		textures:         hub.NewRegistry[*resource.Texture]("texture"),
		views:            hub.NewRegistry[*resource.TextureView]("texture view"),
		surfaces:         hub.NewRegistry[*resource.Surface]("surface"),
		surfaceViews:     make(map[hub.ID]hub.ID),
	}
	if cfg.Trace != "" {
		h.trace = NewTrace(cfg.Label)
	}
	return h, nil
}

// Config returns the hub configuration.
func (h *Hub) Config() Config { return h.cfg }

// SetTrace starts recording into t; nil stops tracing.
func (h *Hub) SetTrace(t *Trace) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trace = t
}

// Trace returns the active trace, or nil.
func (h *Hub) Trace() *Trace {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.trace
}

// Close writes the trace log to Config.Trace when one is configured.
func (h *Hub) Close() error {
	t := h.Trace()
	if t == nil || h.cfg.Trace == "" {
		return nil
	}
	if err := t.Save(h.cfg.Trace); err != nil {
		return fmt.Errorf("close hub: %w", err)
	}
	return nil
}

// guards holds the read locks a pass keeps for its whole duration.
type guards struct {
	bundles          *hub.ReadGuard[*resource.RenderBundle]
	pipelineLayouts  *hub.ReadGuard[*resource.PipelineLayout]
	bindGroupLayouts *hub.ReadGuard[*resource.BindGroupLayout]
	bindGroups       *hub.ReadGuard[*resource.BindGroup]
	pipelines        *hub.ReadGuard[*resource.RenderPipeline]
	buffers          *hub.ReadGuard[*resource.Buffer]
	textures         *hub.ReadGuard[*resource.Texture]
	views            *hub.ReadGuard[*resource.TextureView]
	surfaces         *hub.ReadGuard[*resource.Surface]
}

// readResources takes the resource read locks in registry order. The
// caller must already hold any device or encoder lock it needs.
func (h *Hub) readResources() *guards {
	return &guards{
		bundles:          h.bundles.Read(),
		pipelineLayouts:  h.pipelineLayouts.Read(),
		bindGroupLayouts: h.bindGroupLayouts.Read(),
		bindGroups:       h.bindGroups.Read(),
		pipelines:        h.pipelines.Read(),
		buffers:          h.buffers.Read(),
		textures:         h.textures.Read(),
		views:            h.views.Read(),
		surfaces:         h.surfaces.Read(),
	}
}

// release drops the locks in reverse order.
func (g *guards) release() {
	g.surfaces.Release()
	g.views.Release()
	g.textures.Release()
	g.buffers.Release()
	g.pipelines.Release()
	g.bindGroups.Release()
	g.bindGroupLayouts.Release()
	g.pipelineLayouts.Release()
	g.bundles.Release()
}

func checkDevice(kind string, id, owner, want hub.ID) error {
	if owner != want {
		return fmt.Errorf("%w: %s %s belongs to device %s, not %s", ErrDeviceMismatch, kind, id, owner, want)
	}
	return nil
}

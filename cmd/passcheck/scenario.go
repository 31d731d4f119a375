package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/renderpass"
	"github.com/gogpu/renderpass/backend"
	"github.com/gogpu/renderpass/backend/noop"
	"github.com/gogpu/renderpass/command"
	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/resource"
)

// Scenario is a TOML description of resources and the passes that use them.
// Resources are referred to by name.
type Scenario struct {
	Config           renderpass.Config     `toml:"config"`
	Buffers          []BufferDecl          `toml:"buffer"`
	Textures         []TextureDecl         `toml:"texture"`
	BindGroupLayouts []BindGroupLayoutDecl `toml:"bind_group_layout"`
	PipelineLayouts  []PipelineLayoutDecl  `toml:"pipeline_layout"`
	BindGroups       []BindGroupDecl       `toml:"bind_group"`
	Pipelines        []PipelineDecl        `toml:"pipeline"`
	Bundles          []BundleDecl          `toml:"bundle"`
	Passes           []PassDecl            `toml:"pass"`
}

type BufferDecl struct {
	Name  string   `toml:"name"`
	Size  uint64   `toml:"size"`
	Usage []string `toml:"usage"`
}

// TextureDecl creates a 2D texture and a full view with the same name.
type TextureDecl struct {
	Name    string   `toml:"name"`
	Format  string   `toml:"format"`
	Width   uint32   `toml:"width"`
	Height  uint32   `toml:"height"`
	Layers  uint32   `toml:"layers"`
	Mips    uint32   `toml:"mips"`
	Samples uint32   `toml:"samples"`
	Usage   []string `toml:"usage"`
}

type BindGroupLayoutDecl struct {
	Name    string            `toml:"name"`
	Entries []LayoutEntryDecl `toml:"entries"`
}

type LayoutEntryDecl struct {
	Binding uint32 `toml:"binding"`
	Type    string `toml:"type"`
	Dynamic bool   `toml:"dynamic"`
}

type PipelineLayoutDecl struct {
	Name             string   `toml:"name"`
	BindGroupLayouts []string `toml:"bind_group_layouts"`
}

type BindGroupDecl struct {
	Name    string           `toml:"name"`
	Layout  string           `toml:"layout"`
	Entries []GroupEntryDecl `toml:"entries"`
}

// GroupEntryDecl binds Buffer or Texture; a zero Size binds the rest of
// the buffer.
type GroupEntryDecl struct {
	Binding uint32 `toml:"binding"`
	Buffer  string `toml:"buffer"`
	Offset  uint64 `toml:"offset"`
	Size    uint64 `toml:"size"`
	Texture string `toml:"texture"`
}

type PipelineDecl struct {
	Name             string   `toml:"name"`
	Layout           string   `toml:"layout"`
	Colors           []string `toml:"colors"`
	BlendConstant    bool     `toml:"blend_constant"`
	DepthStencil     string   `toml:"depth_stencil"`
	DepthWrite       bool     `toml:"depth_write"`
	StencilWriteMask uint32   `toml:"stencil_write_mask"`
	StencilReference bool     `toml:"stencil_reference"`
	Samples          uint32   `toml:"samples"`
	IndexFormat      string   `toml:"index_format"`
	VertexStrides    []uint64 `toml:"vertex_strides"`
}

type BundleDecl struct {
	Name         string   `toml:"name"`
	Colors       []string `toml:"colors"`
	DepthStencil string   `toml:"depth_stencil"`
	Samples      uint32   `toml:"samples"`
	Commands     []string `toml:"commands"`
}

type PassDecl struct {
	Label        string            `toml:"label"`
	Colors       []ColorTargetDecl `toml:"colors"`
	DepthStencil *DepthTargetDecl  `toml:"depth_stencil"`
	Commands     []string          `toml:"commands"`
	// ExpectError, when set, must appear in the pass error.
	ExpectError string `toml:"expect_error"`
}

type ColorTargetDecl struct {
	View    string     `toml:"view"`
	Resolve string     `toml:"resolve"`
	Load    string     `toml:"load"`
	Store   string     `toml:"store"`
	Clear   [4]float64 `toml:"clear"`
}

type DepthTargetDecl struct {
	View            string  `toml:"view"`
	DepthLoad       string  `toml:"depth_load"`
	DepthStore      string  `toml:"depth_store"`
	ClearDepth      float32 `toml:"clear_depth"`
	DepthReadOnly   bool    `toml:"depth_read_only"`
	StencilLoad     string  `toml:"stencil_load"`
	StencilStore    string  `toml:"stencil_store"`
	ClearStencil    uint32  `toml:"clear_stencil"`
	StencilReadOnly bool    `toml:"stencil_read_only"`
}

// ParseScenario decodes a scenario. Unknown keys are errors; missing
// config keys keep their defaults.
func ParseScenario(data []byte) (*Scenario, error) {
	s := &Scenario{Config: renderpass.DefaultConfig()}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(s); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("scenario: line %d column %d: %v", row, col, derr)
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			return nil, fmt.Errorf("scenario: unknown keys:\n%s", serr.String())
		}
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if err := s.Config.Limits.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadScenario reads and parses a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// PassResult is the outcome of one pass.
type PassResult struct {
	Label  string
	Err    error
	Stream []byte
	// Ops are the backend calls of the pass, when it succeeded.
	Ops []string
	// OK reports whether the outcome matched ExpectError.
	OK bool
}

// Report is the outcome of a scenario run.
type Report struct {
	Passes []PassResult
	Cache  renderpass.CacheStats
}

// Failed counts the passes whose outcome did not match their expectation.
func (r *Report) Failed() int {
	n := 0
	for _, p := range r.Passes {
		if !p.OK {
			n++
		}
	}
	return n
}

// runner holds the hub and the name tables of one run.
type runner struct {
	h      *renderpass.Hub
	device hub.ID
	names  map[string]map[string]hub.ID
}

func (r *runner) define(kind, name string, id hub.ID) error {
	if name == "" {
		return fmt.Errorf("%s without a name", kind)
	}
	if r.names[kind] == nil {
		r.names[kind] = make(map[string]hub.ID)
	}
	if _, dup := r.names[kind][name]; dup {
		return fmt.Errorf("duplicate %s %q", kind, name)
	}
	r.names[kind][name] = id
	return nil
}

func (r *runner) lookup(kind, name string) (hub.ID, error) {
	id, ok := r.names[kind][name]
	if !ok {
		return 0, fmt.Errorf("unknown %s %q", kind, name)
	}
	return id, nil
}

// Run creates every resource of s on a new hub backed by raw and runs the
// passes in order, each on its own command encoder. Setup errors abort the
// run; pass errors are reported per pass. The trace log is written when
// s.Config.Trace is set.
func Run(s *Scenario, raw backend.Device) (rep *Report, err error) {
	h, err := renderpass.NewHub(s.Config)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := h.Close(); err == nil {
			err = cerr
		}
	}()

	r := &runner{h: h, device: h.DeviceCreate(raw, s.Config.Label), names: make(map[string]map[string]hub.ID)}
	if err := r.setup(s); err != nil {
		return nil, err
	}

	rep = &Report{}
	for i := range s.Passes {
		rep.Passes = append(rep.Passes, r.runPass(&s.Passes[i]))
	}
	rep.Cache, err = h.DeviceCacheStats(r.device)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (r *runner) setup(s *Scenario) error {
	for _, b := range s.Buffers {
		usage, err := bufferUsage(b.Usage)
		if err != nil {
			return fmt.Errorf("buffer %q: %w", b.Name, err)
		}
		id, err := r.h.DeviceCreateBuffer(r.device, &renderpass.BufferDescriptor{
			Label: b.Name, Raw: "buffer:" + b.Name, Size: b.Size, Usage: usage,
		})
		if err != nil {
			return err
		}
		if err := r.define("buffer", b.Name, id); err != nil {
			return err
		}
	}

	for _, t := range s.Textures {
		if err := r.createTexture(t); err != nil {
			return fmt.Errorf("texture %q: %w", t.Name, err)
		}
	}

	for _, l := range s.BindGroupLayouts {
		desc := &renderpass.BindGroupLayoutDescriptor{Label: l.Name}
		for _, e := range l.Entries {
			typ, err := bindingType(e.Type)
			if err != nil {
				return fmt.Errorf("bind group layout %q: %w", l.Name, err)
			}
			desc.Entries = append(desc.Entries, resource.BindGroupLayoutEntry{
				Binding: e.Binding, Type: typ, HasDynamicOffset: e.Dynamic,
			})
		}
		id, err := r.h.DeviceCreateBindGroupLayout(r.device, desc)
		if err != nil {
			return err
		}
		if err := r.define("bind group layout", l.Name, id); err != nil {
			return err
		}
	}

	for _, l := range s.PipelineLayouts {
		desc := &renderpass.PipelineLayoutDescriptor{Label: l.Name, Raw: "pipeline-layout:" + l.Name}
		for _, name := range l.BindGroupLayouts {
			id, err := r.lookup("bind group layout", name)
			if err != nil {
				return fmt.Errorf("pipeline layout %q: %w", l.Name, err)
			}
			desc.BindGroupLayouts = append(desc.BindGroupLayouts, id)
		}
		id, err := r.h.DeviceCreatePipelineLayout(r.device, desc)
		if err != nil {
			return err
		}
		if err := r.define("pipeline layout", l.Name, id); err != nil {
			return err
		}
	}

	for _, g := range s.BindGroups {
		if err := r.createBindGroup(g); err != nil {
			return fmt.Errorf("bind group %q: %w", g.Name, err)
		}
	}

	for _, p := range s.Pipelines {
		if err := r.createPipeline(p); err != nil {
			return fmt.Errorf("pipeline %q: %w", p.Name, err)
		}
	}

	for _, b := range s.Bundles {
		if err := r.createBundle(b); err != nil {
			return fmt.Errorf("bundle %q: %w", b.Name, err)
		}
	}
	return nil
}

func (r *runner) createTexture(t TextureDecl) error {
	format, err := textureFormat(t.Format)
	if err != nil {
		return err
	}
	usage, err := textureUsage(t.Usage)
	if err != nil {
		return err
	}
	tex, err := r.h.DeviceCreateTexture(r.device, &renderpass.TextureDescriptor{
		Label:         t.Name,
		Raw:           "texture:" + t.Name,
		Format:        format,
		Size:          gputypes.Extent3D{Width: t.Width, Height: t.Height, DepthOrArrayLayers: max(t.Layers, 1)},
		MipLevelCount: t.Mips,
		SampleCount:   t.Samples,
		Usage:         usage,
	})
	if err != nil {
		return err
	}
	view, err := r.h.TextureCreateView(tex, &renderpass.TextureViewDescriptor{
		Label: t.Name, Raw: "view:" + t.Name,
	})
	if err != nil {
		return err
	}
	if err := r.define("texture", t.Name, tex); err != nil {
		return err
	}
	return r.define("view", t.Name, view)
}

func (r *runner) createBindGroup(g BindGroupDecl) error {
	layout, err := r.lookup("bind group layout", g.Layout)
	if err != nil {
		return err
	}
	desc := &renderpass.BindGroupDescriptor{Label: g.Name, Raw: "bind-group:" + g.Name, Layout: layout}
	for _, e := range g.Entries {
		entry := renderpass.BindGroupEntry{Binding: e.Binding, Offset: e.Offset, Size: e.Size}
		if e.Size == 0 {
			entry.Size = command.WholeSize
		}
		if e.Buffer != "" {
			if entry.Buffer, err = r.lookup("buffer", e.Buffer); err != nil {
				return err
			}
		}
		if e.Texture != "" {
			if entry.TextureView, err = r.lookup("view", e.Texture); err != nil {
				return err
			}
		}
		desc.Entries = append(desc.Entries, entry)
	}
	id, err := r.h.DeviceCreateBindGroup(r.device, desc)
	if err != nil {
		return err
	}
	return r.define("bind group", g.Name, id)
}

func (r *runner) createPipeline(p PipelineDecl) error {
	layout, err := r.lookup("pipeline layout", p.Layout)
	if err != nil {
		return err
	}
	desc := &renderpass.RenderPipelineDescriptor{
		Label:       p.Name,
		Raw:         "pipeline:" + p.Name,
		Layout:      layout,
		SampleCount: p.Samples,
	}
	for _, c := range p.Colors {
		format, err := textureFormat(c)
		if err != nil {
			return err
		}
		desc.ColorTargets = append(desc.ColorTargets, renderpass.ColorTargetState{Format: format, BlendConstant: p.BlendConstant})
	}
	if p.DepthStencil != "" {
		format, err := textureFormat(p.DepthStencil)
		if err != nil {
			return err
		}
		desc.DepthStencil = &renderpass.DepthStencilState{
			Format:            format,
			DepthWriteEnabled: p.DepthWrite,
			StencilWriteMask:  p.StencilWriteMask,
			StencilReference:  p.StencilReference,
		}
	}
	if desc.IndexFormat, err = indexFormat(p.IndexFormat); err != nil {
		return err
	}
	for _, stride := range p.VertexStrides {
		desc.VertexBuffers = append(desc.VertexBuffers, resource.VertexBufferLayout{
			ArrayStride: stride, StepMode: gputypes.VertexStepModeVertex,
		})
	}
	id, err := r.h.DeviceCreateRenderPipeline(r.device, desc)
	if err != nil {
		return err
	}
	return r.define("pipeline", p.Name, id)
}

func (r *runner) createBundle(b BundleDecl) error {
	desc := &renderpass.RenderBundleDescriptor{Label: b.Name, SampleCount: b.Samples}
	for _, c := range b.Colors {
		format, err := textureFormat(c)
		if err != nil {
			return err
		}
		desc.ColorFormats = append(desc.ColorFormats, format)
	}
	if b.DepthStencil != "" {
		format, err := textureFormat(b.DepthStencil)
		if err != nil {
			return err
		}
		desc.DepthStencilFormat = format
	}
	enc, err := r.h.DeviceCreateRenderBundleEncoder(r.device, desc)
	if err != nil {
		return err
	}
	for i, line := range b.Commands {
		c, err := parseCommand(line, r.lookup)
		if err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
		enc.Record(c)
	}
	id, err := enc.Finish(b.Name)
	if err != nil {
		return err
	}
	return r.define("bundle", b.Name, id)
}

func (r *runner) runPass(p *PassDecl) PassResult {
	res := PassResult{Label: p.Label}
	res.Err = r.encodePass(p, &res)
	switch {
	case p.ExpectError == "":
		res.OK = res.Err == nil
	case res.Err != nil:
		res.OK = strings.Contains(res.Err.Error(), p.ExpectError)
	}
	return res
}

func (r *runner) encodePass(p *PassDecl, res *PassResult) error {
	desc, err := r.passDescriptor(p)
	if err != nil {
		return err
	}
	cmds := make([]command.Command, 0, len(p.Commands))
	for i, line := range p.Commands {
		c, err := parseCommand(line, r.lookup)
		if err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
		cmds = append(cmds, c)
	}

	enc, err := r.h.DeviceCreateCommandEncoder(r.device, p.Label)
	if err != nil {
		return err
	}
	defer func() { _ = r.h.CommandEncoderDestroy(enc) }()

	if res.Stream, err = command.EncodeAll(enc, cmds); err != nil {
		return err
	}
	if err := r.h.CommandEncoderRunRenderPass(enc, desc, res.Stream); err != nil {
		return err
	}
	cb, err := r.h.CommandEncoderFinish(enc)
	if err != nil {
		return err
	}
	for _, raw := range cb.Raws {
		if rec, ok := raw.(*noop.CommandBuffer); ok {
			res.Ops = append(res.Ops, rec.Ops()...)
		}
	}
	return nil
}

func (r *runner) passDescriptor(p *PassDecl) (*renderpass.RenderPassDescriptor, error) {
	desc := &renderpass.RenderPassDescriptor{Label: p.Label}
	for _, c := range p.Colors {
		view, err := r.lookup("view", c.View)
		if err != nil {
			return nil, err
		}
		at := renderpass.RenderPassColorAttachment{
			View:       view,
			ClearColor: gputypes.Color{R: c.Clear[0], G: c.Clear[1], B: c.Clear[2], A: c.Clear[3]},
		}
		if c.Resolve != "" {
			if at.ResolveTarget, err = r.lookup("view", c.Resolve); err != nil {
				return nil, err
			}
		}
		if at.LoadOp, err = loadOp(c.Load); err != nil {
			return nil, err
		}
		if at.StoreOp, err = storeOp(c.Store); err != nil {
			return nil, err
		}
		desc.ColorAttachments = append(desc.ColorAttachments, at)
	}

	if ds := p.DepthStencil; ds != nil {
		view, err := r.lookup("view", ds.View)
		if err != nil {
			return nil, err
		}
		at := &renderpass.RenderPassDepthStencilAttachment{
			View:            view,
			ClearDepth:      ds.ClearDepth,
			DepthReadOnly:   ds.DepthReadOnly,
			ClearStencil:    ds.ClearStencil,
			StencilReadOnly: ds.StencilReadOnly,
		}
		if at.DepthLoadOp, err = loadOp(ds.DepthLoad); err != nil {
			return nil, err
		}
		if at.DepthStoreOp, err = storeOp(ds.DepthStore); err != nil {
			return nil, err
		}
		if at.StencilLoadOp, err = loadOp(ds.StencilLoad); err != nil {
			return nil, err
		}
		if at.StencilStoreOp, err = storeOp(ds.StencilStore); err != nil {
			return nil, err
		}
		desc.DepthStencilAttachment = at
	}
	return desc, nil
}

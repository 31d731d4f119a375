package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/command"
	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/resource"
)

var textureFormats = map[string]gputypes.TextureFormat{
	"r8unorm":               gputypes.TextureFormatR8Unorm,
	"rgba8unorm":            gputypes.TextureFormatRGBA8Unorm,
	"rgba8unorm-srgb":       gputypes.TextureFormatRGBA8UnormSrgb,
	"bgra8unorm":            gputypes.TextureFormatBGRA8Unorm,
	"bgra8unorm-srgb":       gputypes.TextureFormatBGRA8UnormSrgb,
	"rgba16float":           gputypes.TextureFormatRGBA16Float,
	"rgba32float":           gputypes.TextureFormatRGBA32Float,
	"depth16unorm":          gputypes.TextureFormatDepth16Unorm,
	"depth24plus":           gputypes.TextureFormatDepth24Plus,
	"depth24plus-stencil8":  gputypes.TextureFormatDepth24PlusStencil8,
	"depth32float":          gputypes.TextureFormatDepth32Float,
	"depth32float-stencil8": gputypes.TextureFormatDepth32FloatStencil8,
	"stencil8":              gputypes.TextureFormatStencil8,
}

var bufferUsages = map[string]gputypes.BufferUsage{
	"map_read":  gputypes.BufferUsageMapRead,
	"map_write": gputypes.BufferUsageMapWrite,
	"copy_src":  gputypes.BufferUsageCopySrc,
	"copy_dst":  gputypes.BufferUsageCopyDst,
	"index":     gputypes.BufferUsageIndex,
	"vertex":    gputypes.BufferUsageVertex,
	"uniform":   gputypes.BufferUsageUniform,
	"storage":   gputypes.BufferUsageStorage,
	"indirect":  gputypes.BufferUsageIndirect,
}

var textureUsages = map[string]gputypes.TextureUsage{
	"copy_src":          gputypes.TextureUsageCopySrc,
	"copy_dst":          gputypes.TextureUsageCopyDst,
	"texture_binding":   gputypes.TextureUsageTextureBinding,
	"storage_binding":   gputypes.TextureUsageStorageBinding,
	"render_attachment": gputypes.TextureUsageRenderAttachment,
}

func textureFormat(name string) (gputypes.TextureFormat, error) {
	f, ok := textureFormats[strings.ToLower(name)]
	if !ok {
		return gputypes.TextureFormatUndefined, fmt.Errorf("unknown texture format %q", name)
	}
	return f, nil
}

func bufferUsage(names []string) (gputypes.BufferUsage, error) {
	var u gputypes.BufferUsage
	for _, n := range names {
		bit, ok := bufferUsages[n]
		if !ok {
			return 0, fmt.Errorf("unknown buffer usage %q", n)
		}
		u |= bit
	}
	return u, nil
}

func textureUsage(names []string) (gputypes.TextureUsage, error) {
	var u gputypes.TextureUsage
	for _, n := range names {
		bit, ok := textureUsages[n]
		if !ok {
			return 0, fmt.Errorf("unknown texture usage %q", n)
		}
		u |= bit
	}
	return u, nil
}

func bindingType(name string) (resource.BindingType, error) {
	for t := resource.BindingUniformBuffer; t <= resource.BindingWriteOnlyStorageTexture; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown binding type %q", name)
}

// indexFormat defaults to uint16.
func indexFormat(name string) (gputypes.IndexFormat, error) {
	switch name {
	case "", "uint16":
		return gputypes.IndexFormatUint16, nil
	case "uint32":
		return gputypes.IndexFormatUint32, nil
	}
	return 0, fmt.Errorf("unknown index format %q", name)
}

// loadOp defaults to clear.
func loadOp(name string) (gputypes.LoadOp, error) {
	switch name {
	case "", "clear":
		return gputypes.LoadOpClear, nil
	case "load":
		return gputypes.LoadOpLoad, nil
	}
	return 0, fmt.Errorf("unknown load op %q", name)
}

// storeOp defaults to store.
func storeOp(name string) (gputypes.StoreOp, error) {
	switch name {
	case "", "store":
		return gputypes.StoreOpStore, nil
	case "discard":
		return gputypes.StoreOpDiscard, nil
	}
	return 0, fmt.Errorf("unknown store op %q", name)
}

// lookupFunc resolves a resource name of the given kind.
type lookupFunc func(kind, name string) (hub.ID, error)

// parseCommand parses one scenario command line: an op name followed by
// space separated arguments. Trailing numeric arguments may be omitted;
// counts default to one and offsets to zero. Debug labels take the rest of
// the line.
func parseCommand(line string, lookup lookupFunc) (command.Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	a := args{op: fields[0], rest: fields[1:], lookup: lookup}

	var c command.Command
	switch a.op {
	case "set_pipeline":
		c = command.SetPipeline{Pipeline: a.id("pipeline")}
	case "set_bind_group":
		sbg := command.SetBindGroup{Index: uint8(a.uint(-1)), BindGroup: a.id("bind group")}
		for len(a.rest) > 0 && a.err == nil {
			sbg.Offsets = append(sbg.Offsets, uint32(a.uint(-1)))
		}
		c = sbg
	case "set_index_buffer":
		c = command.SetIndexBuffer{Buffer: a.id("buffer"), Offset: a.uint64(0), Size: a.size()}
	case "set_vertex_buffer":
		c = command.SetVertexBuffer{Slot: uint32(a.uint(-1)), Buffer: a.id("buffer"), Offset: a.uint64(0), Size: a.size()}
	case "set_blend_color":
		c = command.SetBlendColor{Color: gputypes.Color{R: a.float(), G: a.float(), B: a.float(), A: a.float()}}
	case "set_stencil_reference":
		c = command.SetStencilReference{Reference: uint32(a.uint(-1))}
	case "set_viewport":
		c = command.SetViewport{
			X: float32(a.float()), Y: float32(a.float()), W: float32(a.float()), H: float32(a.float()),
			MinDepth: float32(a.float()), MaxDepth: float32(a.float()),
		}
	case "set_scissor":
		c = command.SetScissor{X: uint32(a.uint(-1)), Y: uint32(a.uint(-1)), W: uint32(a.uint(-1)), H: uint32(a.uint(-1))}
	case "draw":
		c = command.Draw{
			VertexCount:   uint32(a.uint(-1)),
			InstanceCount: uint32(a.uint(1)),
			FirstVertex:   uint32(a.uint(0)),
			FirstInstance: uint32(a.uint(0)),
		}
	case "draw_indexed":
		c = command.DrawIndexed{
			IndexCount:    uint32(a.uint(-1)),
			InstanceCount: uint32(a.uint(1)),
			FirstIndex:    uint32(a.uint(0)),
			BaseVertex:    int32(a.int(0)),
			FirstInstance: uint32(a.uint(0)),
		}
	case "draw_indirect":
		c = command.DrawIndirect{Buffer: a.id("buffer"), Offset: a.uint64(0)}
	case "draw_indexed_indirect":
		c = command.DrawIndexedIndirect{Buffer: a.id("buffer"), Offset: a.uint64(0)}
	case "push_debug_group":
		c = command.PushDebugGroup{Label: a.label()}
	case "pop_debug_group":
		c = command.PopDebugGroup{}
	case "insert_debug_marker":
		c = command.InsertDebugMarker{Label: a.label()}
	case "execute_bundle":
		c = command.ExecuteBundle{Bundle: a.id("bundle")}
	default:
		return nil, fmt.Errorf("unknown command %q", a.op)
	}
	if a.err == nil && len(a.rest) > 0 {
		a.err = fmt.Errorf("%s: unexpected argument %q", a.op, a.rest[0])
	}
	if a.err != nil {
		return nil, a.err
	}
	return c, nil
}

// args consumes the arguments of one command. The first error sticks.
type args struct {
	op     string
	rest   []string
	lookup lookupFunc
	err    error
}

func (a *args) next() (string, bool) {
	if a.err != nil || len(a.rest) == 0 {
		return "", false
	}
	s := a.rest[0]
	a.rest = a.rest[1:]
	return s, true
}

func (a *args) missing(what string) {
	if a.err == nil {
		a.err = fmt.Errorf("%s: missing %s", a.op, what)
	}
}

func (a *args) id(kind string) hub.ID {
	s, ok := a.next()
	if !ok {
		a.missing(kind)
		return 0
	}
	id, err := a.lookup(kind, s)
	if err != nil {
		a.err = fmt.Errorf("%s: %w", a.op, err)
	}
	return id
}

// uint parses the next argument; def < 0 makes it required.
func (a *args) uint(def int64) uint64 {
	s, ok := a.next()
	if !ok {
		if def < 0 {
			a.missing("argument")
		}
		return uint64(max(def, 0))
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		a.err = fmt.Errorf("%s: %w", a.op, err)
	}
	return v
}

func (a *args) uint64(def uint64) uint64 {
	s, ok := a.next()
	if !ok {
		return def
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		a.err = fmt.Errorf("%s: %w", a.op, err)
	}
	return v
}

// size parses an optional byte count; "whole" or nothing means the rest
// of the buffer.
func (a *args) size() uint64 {
	s, ok := a.next()
	if !ok || s == "whole" {
		return command.WholeSize
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		a.err = fmt.Errorf("%s: %w", a.op, err)
	}
	return v
}

func (a *args) int(def int64) int64 {
	s, ok := a.next()
	if !ok {
		return def
	}
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		a.err = fmt.Errorf("%s: %w", a.op, err)
	}
	return v
}

func (a *args) float() float64 {
	s, ok := a.next()
	if !ok {
		a.missing("argument")
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		a.err = fmt.Errorf("%s: %w", a.op, err)
	}
	return v
}

func (a *args) label() string {
	if a.err != nil {
		return ""
	}
	s := strings.Join(a.rest, " ")
	a.rest = nil
	return s
}

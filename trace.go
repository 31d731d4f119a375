package renderpass

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/renderpass/command"
	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/pass"
)

// Trace action kinds.
const (
	ActionRunRenderPass      = "run_render_pass"
	ActionCreateRenderBundle = "create_render_bundle"
)

// Trace records the passes and bundles submitted to a hub so a session can
// be inspected or replayed offline. Commands are stored as decoded, with
// the dynamic offsets of every SetBindGroup moved to DynamicOffsets in
// stream order.
//
// Trace is safe for concurrent use.
type Trace struct {
	id      uuid.UUID
	label   string
	started time.Time

	mu      sync.Mutex
	actions []Action
}

// Action is one traced operation.
type Action struct {
	Kind    string `yaml:"kind"`
	Encoder uint64 `yaml:"encoder,omitempty"`
	Device  uint64 `yaml:"device,omitempty"`
	Label   string `yaml:"label,omitempty"`

	TargetColors       []TraceColorTarget       `yaml:"target_colors,omitempty"`
	TargetDepthStencil *TraceDepthStencilTarget `yaml:"target_depth_stencil,omitempty"`
	Context            *TraceContext            `yaml:"context,omitempty"`

	Commands       []TraceCommand `yaml:"commands"`
	DynamicOffsets []uint32       `yaml:"dynamic_offsets,omitempty"`
}

// TraceColorTarget is a traced color attachment.
type TraceColorTarget struct {
	View          uint64     `yaml:"view"`
	ResolveTarget uint64     `yaml:"resolve_target,omitempty"`
	LoadOp        string     `yaml:"load_op"`
	StoreOp       string     `yaml:"store_op"`
	ClearColor    [4]float64 `yaml:"clear_color,flow"`
}

// TraceDepthStencilTarget is a traced depth-stencil attachment.
type TraceDepthStencilTarget struct {
	View            uint64  `yaml:"view"`
	DepthLoadOp     string  `yaml:"depth_load_op"`
	DepthStoreOp    string  `yaml:"depth_store_op"`
	ClearDepth      float32 `yaml:"clear_depth"`
	DepthReadOnly   bool    `yaml:"depth_read_only,omitempty"`
	StencilLoadOp   string  `yaml:"stencil_load_op"`
	StencilStoreOp  string  `yaml:"stencil_store_op"`
	ClearStencil    uint32  `yaml:"clear_stencil"`
	StencilReadOnly bool    `yaml:"stencil_read_only,omitempty"`
}

// TraceContext is the pass-context of a traced bundle.
type TraceContext struct {
	Colors       []string `yaml:"colors,flow"`
	DepthStencil string   `yaml:"depth_stencil,omitempty"`
	SampleCount  uint32   `yaml:"sample_count"`
}

// TraceCommand is one traced command. Args holds the command fields and
// is omitted for commands without any.
type TraceCommand struct {
	Op   string          `yaml:"op"`
	Args command.Command `yaml:"args,omitempty"`
}

type traceFile struct {
	ID      string    `yaml:"id"`
	Label   string    `yaml:"label,omitempty"`
	Version string    `yaml:"version"`
	Started time.Time `yaml:"started"`
	Actions []Action  `yaml:"actions"`
}

// NewTrace starts an empty trace with a fresh identity.
func NewTrace(label string) *Trace {
	t := &Trace{id: uuid.New(), label: label, started: time.Now().UTC()}
	Logger().Info("tracing started", "trace", t.id, "label", label)
	return t
}

// ID returns the identity of the trace.
func (t *Trace) ID() uuid.UUID { return t.id }

// Actions returns a copy of the recorded actions.
func (t *Trace) Actions() []Action {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Action(nil), t.actions...)
}

func (t *Trace) add(a Action) {
	t.mu.Lock()
	t.actions = append(t.actions, a)
	t.mu.Unlock()
}

func traceCommands(cmds []command.Command) ([]TraceCommand, []uint32) {
	var offsets []uint32
	out := make([]TraceCommand, 0, len(cmds))
	for _, c := range cmds {
		if sbg, ok := c.(command.SetBindGroup); ok {
			offsets = append(offsets, sbg.Offsets...)
			sbg.Offsets = nil
			c = sbg
		}
		tc := TraceCommand{Op: c.Type().String(), Args: c}
		switch c.(type) {
		case command.PopDebugGroup, command.End:
			tc.Args = nil
		}
		out = append(out, tc)
	}
	return out, offsets
}

func (t *Trace) recordRenderPass(encoder hub.ID, desc *RenderPassDescriptor, cmds []command.Command) {
	a := Action{Kind: ActionRunRenderPass, Encoder: uint64(encoder), Label: desc.Label}
	for _, at := range desc.ColorAttachments {
		a.TargetColors = append(a.TargetColors, TraceColorTarget{
			View:          uint64(at.View),
			ResolveTarget: uint64(at.ResolveTarget),
			LoadOp:        at.LoadOp.String(),
			StoreOp:       at.StoreOp.String(),
			ClearColor:    [4]float64{at.ClearColor.R, at.ClearColor.G, at.ClearColor.B, at.ClearColor.A},
		})
	}
	if ds := desc.DepthStencilAttachment; ds != nil {
		a.TargetDepthStencil = &TraceDepthStencilTarget{
			View:            uint64(ds.View),
			DepthLoadOp:     ds.DepthLoadOp.String(),
			DepthStoreOp:    ds.DepthStoreOp.String(),
			ClearDepth:      ds.ClearDepth,
			DepthReadOnly:   ds.DepthReadOnly,
			StencilLoadOp:   ds.StencilLoadOp.String(),
			StencilStoreOp:  ds.StencilStoreOp.String(),
			ClearStencil:    ds.ClearStencil,
			StencilReadOnly: ds.StencilReadOnly,
		}
	}
	a.Commands, a.DynamicOffsets = traceCommands(cmds)
	t.add(a)
}

func (t *Trace) recordRenderBundle(device hub.ID, label string, ctx pass.Context, cmds []command.Command) {
	tc := &TraceContext{SampleCount: ctx.SampleCount}
	for _, f := range ctx.Colors[:ctx.NumColors] {
		tc.Colors = append(tc.Colors, f.String())
	}
	if ctx.DepthStencil != 0 {
		tc.DepthStencil = ctx.DepthStencil.String()
	}
	a := Action{Kind: ActionCreateRenderBundle, Device: uint64(device), Label: label, Context: tc}
	a.Commands, a.DynamicOffsets = traceCommands(cmds)
	t.add(a)
}

// Encode writes the trace as a YAML document.
func (t *Trace) Encode(w io.Writer) error {
	f := traceFile{
		ID:      t.id.String(),
		Label:   t.label,
		Version: Version,
		Started: t.started,
		Actions: t.Actions(),
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&f); err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	return enc.Close()
}

// Save writes the trace to path, replacing any existing file.
func (t *Trace) Save(path string) error {
	var buf bytes.Buffer
	if err := t.Encode(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("save trace: %w", err)
	}
	Logger().Info("trace saved", "trace", t.id, "path", path, "actions", len(t.Actions()))
	return nil
}

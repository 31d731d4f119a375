package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/renderpass/backend/noop"
	"github.com/gogpu/renderpass/command"
	"github.com/gogpu/renderpass/hub"
)

func TestRunTriangleScenario(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "triangle.toml"))
	require.NoError(t, err)
	assert.Equal(t, "triangle", s.Config.Label)
	assert.Equal(t, 4, s.Config.Limits.MaxBindGroups)

	rep, err := Run(s, noop.NewDevice())
	require.NoError(t, err)
	require.Len(t, rep.Passes, 4)
	assert.Zero(t, rep.Failed())

	tri := rep.Passes[0]
	require.NoError(t, tri.Err)
	assert.Equal(t, "BeginRenderPass", tri.Ops[0])
	assert.Contains(t, tri.Ops, "PushDebugGroup")
	assert.Contains(t, tri.Ops, "Draw")
	assert.Equal(t, "EndRenderPass", tri.Ops[len(tri.Ops)-1])

	bundled := rep.Passes[1]
	require.NoError(t, bundled.Err)
	assert.Contains(t, bundled.Ops, "Draw")

	assert.ErrorContains(t, rep.Passes[2].Err, "pipeline must be set")
	assert.Empty(t, rep.Passes[2].Ops)
	assert.ErrorContains(t, rep.Passes[3].Err, "not aligned")

	// The loading passes share one render pass object.
	assert.Positive(t, rep.Cache.RenderPassHits)
}

func TestRunWritesTrace(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "triangle.toml"))
	require.NoError(t, err)
	s.Config.Trace = filepath.Join(t.TempDir(), "trace.yaml")

	_, err = Run(s, noop.NewDevice())
	require.NoError(t, err)
	data, err := os.ReadFile(s.Config.Trace)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_render_pass")
}

func TestParseScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown key", "colour = 1\n", "unknown keys"},
		{"bad syntax", "[[pass]\n", "line 1"},
		{"bad limits", "[config.limits]\nmax_bind_groups = 0\n", "max_bind_groups"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestSetupErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "unknown format",
			src:  "[[texture]]\nname = \"t\"\nformat = \"rgb565\"\nwidth = 4\nheight = 4\n",
			want: `unknown texture format "rgb565"`,
		},
		{
			name: "unknown usage",
			src:  "[[buffer]]\nname = \"b\"\nsize = 4\nusage = [\"vertx\"]\n",
			want: `unknown buffer usage "vertx"`,
		},
		{
			name: "duplicate name",
			src:  "[[buffer]]\nname = \"b\"\nsize = 4\n[[buffer]]\nname = \"b\"\nsize = 4\n",
			want: `duplicate buffer "b"`,
		},
		{
			name: "missing layout",
			src:  "[[pipeline]]\nname = \"p\"\nlayout = \"none\"\ncolors = [\"rgba8unorm\"]\n",
			want: `unknown pipeline layout "none"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseScenario([]byte(tt.src))
			require.NoError(t, err)
			_, err = Run(s, noop.NewDevice())
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseCommand(t *testing.T) {
	ids := map[string]hub.ID{"pipeline/tri": 1, "buffer/vb": 2, "bind group/g": 3, "bundle/b": 4}
	lookup := func(kind, name string) (hub.ID, error) {
		if id, ok := ids[kind+"/"+name]; ok {
			return id, nil
		}
		return 0, assert.AnError
	}

	tests := []struct {
		line string
		want command.Command
	}{
		{"set_pipeline tri", command.SetPipeline{Pipeline: 1}},
		{"set_bind_group 1 g 256 512", command.SetBindGroup{Index: 1, BindGroup: 3, Offsets: []uint32{256, 512}}},
		{"set_bind_group 0 g", command.SetBindGroup{BindGroup: 3}},
		{"set_index_buffer vb", command.SetIndexBuffer{Buffer: 2, Size: command.WholeSize}},
		{"set_vertex_buffer 1 vb 16 64", command.SetVertexBuffer{Slot: 1, Buffer: 2, Offset: 16, Size: 64}},
		{"set_blend_color 1 0.5 0 1", command.SetBlendColor{Color: gputypes.Color{R: 1, G: 0.5, A: 1}}},
		{"set_viewport 0 0 32 16 0 1", command.SetViewport{W: 32, H: 16, MaxDepth: 1}},
		{"set_scissor 1 2 3 4", command.SetScissor{X: 1, Y: 2, W: 3, H: 4}},
		{"draw 3", command.Draw{VertexCount: 3, InstanceCount: 1}},
		{"draw_indexed 6 2 0 -1", command.DrawIndexed{IndexCount: 6, InstanceCount: 2, BaseVertex: -1}},
		{"draw_indirect vb 0x10", command.DrawIndirect{Buffer: 2, Offset: 16}},
		{"push_debug_group shadow pass", command.PushDebugGroup{Label: "shadow pass"}},
		{"pop_debug_group", command.PopDebugGroup{}},
		{"execute_bundle b", command.ExecuteBundle{Bundle: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line, lookup)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, line := range []string{"", "draw", "draw x", "draw 3 1 0 0 9", "set_pipeline ghost", "teleport 1"} {
		_, err := parseCommand(line, lookup)
		assert.Error(t, err, "parseCommand(%q)", line)
	}
}

func TestDumpAndDecode(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "triangle.toml"))
	require.NoError(t, err)
	rep, err := Run(s, noop.NewDevice())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "stream.bin")
	require.NoError(t, dumpStreams(path, rep))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printStreams(&out, data))
	text := out.String()
	assert.Equal(t, len(rep.Passes), strings.Count(text, "stream "))
	assert.Contains(t, text, "ExecuteBundle")

	err = printStreams(&out, data[:len(data)-1])
	assert.ErrorIs(t, err, command.ErrFraming)
}

func TestBackendsCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"backends"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "noop     ok")
	assert.Contains(t, out.String(), "vulkan   unavailable")
}

package renderpass

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Config
		err  bool
	}{
		{name: "empty", data: "", want: DefaultConfig()},
		{
			name: "overrides",
			data: `
label = "bench"
trace = "out.yaml"

[limits]
max_bind_groups = 8
sample_count_mask = 0x0f
`,
			want: Config{
				Label: "bench",
				Trace: "out.yaml",
				Limits: Limits{
					MaxBindGroups:     8,
					MaxVertexBuffers:  8,
					MaxDynamicOffsets: 8,
					SampleCountMask:   0x0f,
				},
			},
		},
		{name: "unknown key", data: "colour = 1\n", err: true},
		{name: "syntax", data: "label = \n", err: true},
		{name: "no single sample", data: "[limits]\nsample_count_mask = 4\n", err: true},
		{name: "too many groups", data: "[limits]\nmax_bind_groups = 33\n", err: true},
		{name: "too many offsets", data: "[limits]\nmax_dynamic_offsets = 256\n", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tt.data))
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.SampleCountMask = 1 | 2 | 4 | 8
	data, err := cfg.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "renderpass.toml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
	assert.Equal(t, []uint32{1, 2, 4, 8}, got.Limits.SampleCounts())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewHubRejectsBadLimits(t *testing.T) {
	_, err := NewHub(Config{Limits: Limits{MaxBindGroups: 0, MaxVertexBuffers: 1, SampleCountMask: 1}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	h, err := NewHub(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultLimits(), h.Config().Limits)
}

package renderpass

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/renderpass/command"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("renderpass: invalid config")

// BindBufferAlignment is the required alignment of dynamic offsets.
const BindBufferAlignment = 256

// Limits are the device limits the executor validates against.
type Limits struct {
	// MaxBindGroups is the number of bind group slots of a pass.
	MaxBindGroups int `toml:"max_bind_groups"`
	// MaxVertexBuffers is the number of vertex buffer slots of a pass.
	MaxVertexBuffers int `toml:"max_vertex_buffers"`
	// MaxDynamicOffsets bounds the dynamic bindings of one bind group layout.
	MaxDynamicOffsets int `toml:"max_dynamic_offsets"`
	// SampleCountMask is the OR of the supported attachment sample counts.
	SampleCountMask uint32 `toml:"sample_count_mask"`
}

// DefaultLimits returns limits every backend supports.
func DefaultLimits() Limits {
	return Limits{
		MaxBindGroups:     4,
		MaxVertexBuffers:  8,
		MaxDynamicOffsets: 8,
		SampleCountMask:   1 | 4,
	}
}

// Validate checks that the limits are usable.
func (l Limits) Validate() error {
	switch {
	case l.MaxBindGroups < 1 || l.MaxBindGroups > 32:
		return fmt.Errorf("%w: max_bind_groups %d not in [1, 32]", ErrInvalidConfig, l.MaxBindGroups)
	case l.MaxVertexBuffers < 1 || l.MaxVertexBuffers > 32:
		return fmt.Errorf("%w: max_vertex_buffers %d not in [1, 32]", ErrInvalidConfig, l.MaxVertexBuffers)
	case l.MaxDynamicOffsets < 0 || l.MaxDynamicOffsets > command.MaxDynamicOffsets:
		return fmt.Errorf("%w: max_dynamic_offsets %d not in [0, %d]", ErrInvalidConfig, l.MaxDynamicOffsets, command.MaxDynamicOffsets)
	case l.SampleCountMask&1 == 0:
		return fmt.Errorf("%w: sample_count_mask %#x must include 1", ErrInvalidConfig, l.SampleCountMask)
	case l.SampleCountMask&^0x7f != 0:
		return fmt.Errorf("%w: sample_count_mask %#x has counts above 64", ErrInvalidConfig, l.SampleCountMask)
	}
	return nil
}

// SampleCounts lists the supported sample counts in increasing order.
func (l Limits) SampleCounts() []uint32 {
	var out []uint32
	for m := l.SampleCountMask; m != 0; m &= m - 1 {
		out = append(out, 1<<bits.TrailingZeros32(m))
	}
	return out
}

// Config configures a Hub.
type Config struct {
	Label  string `toml:"label"`
	Limits Limits `toml:"limits"`
	// Trace, when set, is the path the hub writes its trace log to on Close.
	Trace string `toml:"trace"`
}

// DefaultConfig returns the configuration NewHub uses for a zero Config.
func DefaultConfig() Config {
	return Config{Label: "renderpass", Limits: DefaultLimits()}
}

// ParseConfig decodes a TOML configuration. Keys it does not know are
// errors. Missing keys keep their DefaultConfig values.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Config{}, fmt.Errorf("%w: line %d column %d: %v", ErrInvalidConfig, row, col, derr)
		}
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Limits.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a TOML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Marshal encodes the configuration as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

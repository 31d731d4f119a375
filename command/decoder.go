package command

import (
	"io"
	"math"
	"unicode/utf8"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/hub"
)

// Decoder reads commands from an encoded stream in order.
//
// Every read is bounds-checked against the real length of the buffer, so a
// Decoder never panics on arbitrary input.
type Decoder struct {
	data []byte
	pos  int
	done bool
}

// NewDecoder creates a decoder over data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Reset restarts decoding over data.
func (d *Decoder) Reset(data []byte) {
	d.data = data
	d.pos = 0
	d.done = false
}

// Offset returns the byte offset of the next record.
func (d *Decoder) Offset() int { return d.pos }

// Next decodes the next command. After End has been returned, Next returns
// io.EOF. A stream that ends without End, or carries bytes after it, yields
// a FramingError.
func (d *Decoder) Next() (Command, error) {
	if d.done {
		return nil, io.EOF
	}
	start := d.pos
	if start == len(d.data) {
		return nil, &FramingError{Kind: MissingEnd, Offset: start}
	}
	if have := len(d.data) - start; have < RecordSize {
		return nil, &FramingError{Kind: TruncatedRecord, Offset: start, Need: RecordSize, Have: have}
	}
	tag := CommandType(d.data[start])
	p := d.data[start+headerSize : start+RecordSize]
	d.pos = start + RecordSize

	switch tag {
	case CmdSetBindGroup:
		n := int(p[1])
		raw, err := d.trailer(4 * n)
		if err != nil {
			return nil, err
		}
		var offsets []uint32
		if n > 0 {
			offsets = make([]uint32, n)
			for i := range offsets {
				offsets[i] = le.Uint32(raw[4*i:])
			}
		}
		return SetBindGroup{Index: p[0], BindGroup: hub.ID(le.Uint64(p[4:])), Offsets: offsets}, nil
	case CmdSetPipeline:
		return SetPipeline{Pipeline: hub.ID(le.Uint64(p))}, nil
	case CmdSetIndexBuffer:
		return SetIndexBuffer{
			Buffer: hub.ID(le.Uint64(p)),
			Offset: le.Uint64(p[8:]),
			Size:   le.Uint64(p[16:]),
		}, nil
	case CmdSetVertexBuffer:
		return SetVertexBuffer{
			Slot:   le.Uint32(p),
			Buffer: hub.ID(le.Uint64(p[4:])),
			Offset: le.Uint64(p[12:]),
			Size:   le.Uint64(p[20:]),
		}, nil
	case CmdSetBlendColor:
		return SetBlendColor{Color: gputypes.Color{
			R: math.Float64frombits(le.Uint64(p)),
			G: math.Float64frombits(le.Uint64(p[8:])),
			B: math.Float64frombits(le.Uint64(p[16:])),
			A: math.Float64frombits(le.Uint64(p[24:])),
		}}, nil
	case CmdSetStencilReference:
		return SetStencilReference{Reference: le.Uint32(p)}, nil
	case CmdSetViewport:
		f := func(i int) float32 { return math.Float32frombits(le.Uint32(p[4*i:])) }
		return SetViewport{X: f(0), Y: f(1), W: f(2), H: f(3), MinDepth: f(4), MaxDepth: f(5)}, nil
	case CmdSetScissor:
		return SetScissor{X: le.Uint32(p), Y: le.Uint32(p[4:]), W: le.Uint32(p[8:]), H: le.Uint32(p[12:])}, nil
	case CmdDraw:
		return Draw{
			VertexCount:   le.Uint32(p),
			InstanceCount: le.Uint32(p[4:]),
			FirstVertex:   le.Uint32(p[8:]),
			FirstInstance: le.Uint32(p[12:]),
		}, nil
	case CmdDrawIndexed:
		return DrawIndexed{
			IndexCount:    le.Uint32(p),
			InstanceCount: le.Uint32(p[4:]),
			FirstIndex:    le.Uint32(p[8:]),
			BaseVertex:    int32(le.Uint32(p[12:])),
			FirstInstance: le.Uint32(p[16:]),
		}, nil
	case CmdDrawIndirect:
		return DrawIndirect{Buffer: hub.ID(le.Uint64(p)), Offset: le.Uint64(p[8:])}, nil
	case CmdDrawIndexedIndirect:
		return DrawIndexedIndirect{Buffer: hub.ID(le.Uint64(p)), Offset: le.Uint64(p[8:])}, nil
	case CmdPushDebugGroup:
		color, label, err := d.label(p)
		if err != nil {
			return nil, err
		}
		return PushDebugGroup{Color: color, Label: label}, nil
	case CmdPopDebugGroup:
		return PopDebugGroup{}, nil
	case CmdInsertDebugMarker:
		color, label, err := d.label(p)
		if err != nil {
			return nil, err
		}
		return InsertDebugMarker{Color: color, Label: label}, nil
	case CmdExecuteBundle:
		return ExecuteBundle{Bundle: hub.ID(le.Uint64(p))}, nil
	case CmdEnd:
		d.done = true
		if d.pos != len(d.data) {
			return nil, &FramingError{Kind: TrailingData, Offset: d.pos}
		}
		return End{}, nil
	default:
		d.pos = start
		return nil, &FramingError{Kind: UnknownTag, Offset: start, Tag: byte(tag)}
	}
}

// trailer consumes n bytes following the current record.
func (d *Decoder) trailer(n int) ([]byte, error) {
	if have := len(d.data) - d.pos; n > have {
		return nil, &FramingError{Kind: TrailerOverrun, Offset: d.pos, Need: n, Have: have}
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) label(p []byte) (uint32, string, error) {
	color := le.Uint32(p)
	n := le.Uint32(p[4:])
	if uint64(n) > uint64(len(d.data)-d.pos) {
		return 0, "", &FramingError{Kind: TrailerOverrun, Offset: d.pos, Need: int(n), Have: len(d.data) - d.pos}
	}
	start := d.pos
	raw, err := d.trailer(int(n))
	if err != nil {
		return 0, "", err
	}
	if !utf8.Valid(raw) {
		return 0, "", &FramingError{Kind: InvalidLabel, Offset: start}
	}
	return color, string(raw), nil
}

// Decode decodes a whole stream. The result ends with End.
func Decode(data []byte) ([]Command, error) {
	d := NewDecoder(data)
	var cmds []Command
	for {
		c, err := d.Next()
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
		if _, ok := c.(End); ok {
			return cmds, nil
		}
	}
}

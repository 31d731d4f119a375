package command

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/gogpu/renderpass/hub"
)

const (
	headerSize  = 4
	payloadSize = 32

	// RecordSize is the size in bytes of every record, trailers excluded.
	RecordSize = headerSize + payloadSize

	// MaxDynamicOffsets is the largest offset count a SetBindGroup record
	// can carry.
	MaxDynamicOffsets = math.MaxUint8
)

var le = binary.LittleEndian

// Encoder appends commands to a stream owned by a command encoder.
//
// Encoder is not safe for concurrent use.
type Encoder struct {
	owner    hub.ID
	buf      []byte
	count    int
	finished bool
}

// NewEncoder starts an empty stream for owner.
func NewEncoder(owner hub.ID) *Encoder {
	return &Encoder{owner: owner, buf: make([]byte, 0, 16*RecordSize)}
}

// Reset discards the stream and starts a new one for owner, keeping the
// allocated buffer.
func (e *Encoder) Reset(owner hub.ID) {
	e.owner = owner
	e.buf = e.buf[:0]
	e.count = 0
	e.finished = false
}

// Owner returns the owning command encoder.
func (e *Encoder) Owner() hub.ID { return e.owner }

// Len returns the number of commands appended so far.
func (e *Encoder) Len() int { return e.count }

// Size returns the encoded size in bytes.
func (e *Encoder) Size() int { return len(e.buf) }

// record appends a zeroed record for tag and returns its payload.
func (e *Encoder) record(tag CommandType) []byte {
	start := len(e.buf)
	e.buf = append(e.buf, make([]byte, RecordSize)...)
	e.buf[start] = byte(tag)
	e.count++
	return e.buf[start+headerSize : start+RecordSize]
}

// Append encodes c and its trailer at the end of the stream.
func (e *Encoder) Append(c Command) error {
	if e.finished {
		return ErrEncoderFinished
	}
	switch c := c.(type) {
	case SetBindGroup:
		if len(c.Offsets) > MaxDynamicOffsets {
			return fmt.Errorf("%w: %d > %d", ErrTooManyOffsets, len(c.Offsets), MaxDynamicOffsets)
		}
		p := e.record(CmdSetBindGroup)
		p[0] = c.Index
		p[1] = uint8(len(c.Offsets))
		le.PutUint64(p[4:], uint64(c.BindGroup))
		for _, off := range c.Offsets {
			e.buf = le.AppendUint32(e.buf, off)
		}
	case SetPipeline:
		p := e.record(CmdSetPipeline)
		le.PutUint64(p, uint64(c.Pipeline))
	case SetIndexBuffer:
		p := e.record(CmdSetIndexBuffer)
		le.PutUint64(p, uint64(c.Buffer))
		le.PutUint64(p[8:], c.Offset)
		le.PutUint64(p[16:], c.Size)
	case SetVertexBuffer:
		p := e.record(CmdSetVertexBuffer)
		le.PutUint32(p, c.Slot)
		le.PutUint64(p[4:], uint64(c.Buffer))
		le.PutUint64(p[12:], c.Offset)
		le.PutUint64(p[20:], c.Size)
	case SetBlendColor:
		p := e.record(CmdSetBlendColor)
		le.PutUint64(p, math.Float64bits(c.Color.R))
		le.PutUint64(p[8:], math.Float64bits(c.Color.G))
		le.PutUint64(p[16:], math.Float64bits(c.Color.B))
		le.PutUint64(p[24:], math.Float64bits(c.Color.A))
	case SetStencilReference:
		p := e.record(CmdSetStencilReference)
		le.PutUint32(p, c.Reference)
	case SetViewport:
		p := e.record(CmdSetViewport)
		for i, f := range [6]float32{c.X, c.Y, c.W, c.H, c.MinDepth, c.MaxDepth} {
			le.PutUint32(p[4*i:], math.Float32bits(f))
		}
	case SetScissor:
		p := e.record(CmdSetScissor)
		putUint32s(p, c.X, c.Y, c.W, c.H)
	case Draw:
		p := e.record(CmdDraw)
		putUint32s(p, c.VertexCount, c.InstanceCount, c.FirstVertex, c.FirstInstance)
	case DrawIndexed:
		p := e.record(CmdDrawIndexed)
		putUint32s(p, c.IndexCount, c.InstanceCount, c.FirstIndex, uint32(c.BaseVertex), c.FirstInstance)
	case DrawIndirect:
		p := e.record(CmdDrawIndirect)
		le.PutUint64(p, uint64(c.Buffer))
		le.PutUint64(p[8:], c.Offset)
	case DrawIndexedIndirect:
		p := e.record(CmdDrawIndexedIndirect)
		le.PutUint64(p, uint64(c.Buffer))
		le.PutUint64(p[8:], c.Offset)
	case PushDebugGroup:
		return e.label(CmdPushDebugGroup, c.Color, c.Label)
	case PopDebugGroup:
		e.record(CmdPopDebugGroup)
	case InsertDebugMarker:
		return e.label(CmdInsertDebugMarker, c.Color, c.Label)
	case ExecuteBundle:
		p := e.record(CmdExecuteBundle)
		le.PutUint64(p, uint64(c.Bundle))
	case End:
		return ErrExplicitEnd
	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, c)
	}
	return nil
}

func (e *Encoder) label(tag CommandType, color uint32, label string) error {
	if !utf8.ValidString(label) {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	p := e.record(tag)
	le.PutUint32(p, color)
	le.PutUint32(p[4:], uint32(len(label)))
	e.buf = append(e.buf, label...)
	return nil
}

// Finish writes the End record and returns the stream and its owner.
// The Encoder must be Reset before it is used again.
func (e *Encoder) Finish() ([]byte, hub.ID, error) {
	if e.finished {
		return nil, e.owner, ErrEncoderFinished
	}
	e.record(CmdEnd)
	e.finished = true
	return e.buf, e.owner, nil
}

// EncodeAll encodes cmds into a finished stream. A trailing End in cmds is
// accepted and dropped.
func EncodeAll(owner hub.ID, cmds []Command) ([]byte, error) {
	enc := NewEncoder(owner)
	for i, c := range cmds {
		if _, ok := c.(End); ok && i == len(cmds)-1 {
			break
		}
		if err := enc.Append(c); err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
	}
	data, _, err := enc.Finish()
	return data, err
}

func putUint32s(p []byte, vs ...uint32) {
	for i, v := range vs {
		le.PutUint32(p[4*i:], v)
	}
}

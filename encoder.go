package renderpass

import (
	"fmt"

	"github.com/gogpu/renderpass/backend"
	"github.com/gogpu/renderpass/hub"
	"github.com/gogpu/renderpass/track"
)

// CommandEncoder collects render passes into backend command buffers.
//
// Each pass gets its own backend command buffer. The barriers a pass needs
// are recorded at the end of the command buffer before it, so an encoder
// always holds one command buffer more than it has passes.
type CommandEncoder struct {
	Label string

	device hub.ID
	raws   []backend.CommandBuffer
	used   *track.Set

	// surface is the surface rendered to by an earlier pass, or zero.
	surface             hub.ID
	surfaceFramebuffers []backend.Framebuffer

	err      error
	finished bool
	passOpen bool
}

// Device returns the owning device.
func (e *CommandEncoder) Device() hub.ID { return e.device }

// Used returns the resource usages recorded so far.
func (e *CommandEncoder) Used() *track.Set { return e.used }

// Err returns the error that invalidated the encoder, or nil.
func (e *CommandEncoder) Err() error { return e.err }

func (e *CommandEncoder) usable() error {
	switch {
	case e.err != nil:
		return fmt.Errorf("%w: %w", ErrEncoderInvalid, e.err)
	case e.finished:
		return ErrEncoderFinished
	}
	return nil
}

// invalidate marks the encoder unusable. Later operations report err.
func (e *CommandEncoder) invalidate(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *CommandEncoder) last() backend.CommandBuffer { return e.raws[len(e.raws)-1] }

// CommandBuffer is the result of a finished encoder, ready for submission.
type CommandBuffer struct {
	Label  string
	Device hub.ID
	// Raws are the backend command buffers in submission order.
	Raws []backend.CommandBuffer
	// Used holds the final usage of every resource the commands touch.
	Used *track.Set
	// Surface is the surface this command buffer renders to, or zero.
	Surface hub.ID
}

// DeviceCreateCommandEncoder starts a new encoder on device.
func (h *Hub) DeviceCreateCommandEncoder(device hub.ID, label string) (hub.ID, error) {
	d, err := h.devices.Get(device)
	if err != nil {
		return 0, fmt.Errorf("create command encoder: %w", err)
	}
	raw, err := d.raw.CreateCommandBuffer(label)
	if err != nil {
		return 0, fmt.Errorf("create command encoder %q: %w", label, err)
	}
	id := h.encoders.Register(&CommandEncoder{
		Label:  label,
		device: device,
		raws:   []backend.CommandBuffer{raw},
		used:   track.NewSet(),
	})
	Logger().Debug("command encoder created", "id", id, "label", label, "device", device)
	return id, nil
}

// CommandEncoderFinish seals the encoder and returns its command buffer.
// The encoder is unregistered whether or not it succeeds.
func (h *Hub) CommandEncoderFinish(id hub.ID) (*CommandBuffer, error) {
	devices := h.devices.Read()
	defer devices.Release()

	enc, err := h.encoders.Unregister(id)
	if err != nil {
		return nil, fmt.Errorf("finish command encoder: %w", err)
	}
	d, err := devices.Get(enc.device)
	if err != nil {
		enc.abandon(nil)
		return nil, fmt.Errorf("finish command encoder %q: %w", enc.Label, err)
	}
	if err := enc.usable(); err != nil {
		enc.abandon(d)
		return nil, fmt.Errorf("finish command encoder %q: %w", enc.Label, err)
	}
	if enc.passOpen {
		enc.abandon(d)
		return nil, fmt.Errorf("finish command encoder %q: %w", enc.Label, ErrPassOpen)
	}
	if err := enc.last().Finish(); err != nil {
		enc.abandon(d)
		return nil, fmt.Errorf("finish command encoder %q: %w", enc.Label, err)
	}
	enc.finished = true
	d.addPending(enc.surface, enc.surfaceFramebuffers)
	enc.surfaceFramebuffers = nil

	Logger().Debug("command encoder finished", "id", id, "label", enc.Label, "command_buffers", len(enc.raws))
	return &CommandBuffer{
		Label:   enc.Label,
		Device:  enc.device,
		Raws:    enc.raws,
		Used:    enc.used,
		Surface: enc.surface,
	}, nil
}

// CommandEncoderDestroy abandons an encoder and everything recorded in it.
func (h *Hub) CommandEncoderDestroy(id hub.ID) error {
	devices := h.devices.Read()
	defer devices.Release()

	enc, err := h.encoders.Unregister(id)
	if err != nil {
		return fmt.Errorf("destroy command encoder: %w", err)
	}
	d, _ := devices.Get(enc.device)
	enc.abandon(d)
	return nil
}

// abandon discards every backend command buffer and destroys the surface
// framebuffers. d is nil when the device is already gone.
func (e *CommandEncoder) abandon(d *Device) {
	if !e.finished {
		for _, raw := range e.raws {
			raw.Discard()
		}
		e.finished = true
	}
	if d != nil {
		for _, fb := range e.surfaceFramebuffers {
			d.raw.DestroyFramebuffer(fb)
		}
	}
	e.surfaceFramebuffers = nil
}

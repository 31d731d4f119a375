// Package renderpass records and validates render passes for a cross-backend
// GPU API.
//
// # Overview
//
// A render pass is recorded as a compact binary command stream (package
// command). When the pass ends, the stream is interpreted against the
// resources registered in a Hub: every command is validated before anything
// reaches the backend device, resource usages are tracked for hazards, and
// the backend render pass and framebuffer objects are cached per device.
//
// # Quick Start
//
//	h, _ := renderpass.NewHub(renderpass.DefaultConfig())
//	dev := h.DeviceCreate(backendDevice, "main")
//	enc, _ := h.DeviceCreateCommandEncoder(dev, "frame")
//
//	rp, _ := h.CommandEncoderBeginRenderPass(enc, &renderpass.RenderPassDescriptor{
//	    ColorAttachments: []renderpass.ColorAttachment{{
//	        View:    view,
//	        LoadOp:  gputypes.LoadOpClear,
//	        StoreOp: gputypes.StoreOpStore,
//	    }},
//	})
//	rp.SetPipeline(pipeline)
//	rp.SetVertexBuffer(0, vertices, 0, command.WholeSize)
//	rp.Draw(3, 1, 0, 0)
//	if err := rp.End(); err != nil {
//	    // the command encoder is now invalid
//	}
//	cmdBuf, _ := h.CommandEncoderFinish(enc)
//
// # Architecture
//
// The module is organized into:
//   - command: the binary command stream codec
//   - pass: attachment validation, pass keys and pass contexts
//   - track: resource usage tracking and barrier derivation
//   - hub: generational IDs and locked registries
//   - resource: the objects held in the registries
//   - backend: the device contract, with noop, hal and vulkan backends
//   - renderpass (this package): devices, command encoders, the pass
//     executor, render bundles and tracing
//
// # Errors
//
// Every error returned while a pass runs is fatal to its command encoder.
// Later operations on the encoder return ErrEncoderInvalid wrapping the
// original cause.
package renderpass

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)

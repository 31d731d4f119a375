// Package backend defines the device contract the render pass executor
// records into.
//
// A backend wraps a graphics API. The executor validates everything before
// calling it, so implementations do not repeat any checks; they translate
// each call into the API's own command recording.
//
// Handles are opaque to the executor. Each backend stores its own native
// objects in them and type-asserts them back.
//
// # Backend Registration
//
// Backends register a Factory from init(); importing a backend package
// makes it available by name:
//
//	import _ "github.com/gogpu/renderpass/backend/noop"
//
//	dev, err := backend.Open(backend.BackendNoop)
//
// Default opens the first backend that works, preferring Vulkan, then the
// wgpu HAL, then the recording no-op backend.
//
// # Available Backends
//
//   - noop: records every call; used by tests and the passcheck tool
//   - hal: github.com/gogpu/wgpu/hal command encoders
//   - vulkan: raw Vulkan through github.com/goki/vulkan
package backend

// Package cache provides the memo map behind the per-device render pass and
// framebuffer caches.
//
//	passes := cache.New[pass.RenderPassKey, backend.RenderPass]()
//	rp, hit, err := passes.GetOrCreate(key, func(k pass.RenderPassKey) (backend.RenderPass, error) {
//	    return dev.CreateRenderPass(k)
//	})
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache

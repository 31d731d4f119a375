package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Backend names.
const (
	BackendNoop   = "noop"
	BackendHAL    = "hal"
	BackendVulkan = "vulkan"
)

// ErrBackendNotAvailable is returned when no registered backend can be
// opened.
var ErrBackendNotAvailable = errors.New("backend: no backend available")

// Factory opens a device on a backend.
type Factory func() (Device, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for Default (first that opens wins).
	backendPriority = []string{BackendVulkan, BackendHAL, BackendNoop}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the sorted names of registered backends.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open opens a device on the named backend.
func Open(name string) (Device, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q not registered", ErrBackendNotAvailable, name)
	}
	dev, err := factory()
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", name, err)
	}
	return dev, nil
}

// Default opens the first backend in priority order that succeeds, and
// returns its name.
func Default() (string, Device, error) {
	registryMu.RLock()
	names := make([]string, 0, len(backends))
	for _, name := range backendPriority {
		if _, ok := backends[name]; ok {
			names = append(names, name)
		}
	}
	registryMu.RUnlock()

	var errs []error
	for _, name := range names {
		dev, err := Open(name)
		if err == nil {
			return name, dev, nil
		}
		errs = append(errs, err)
	}
	return "", nil, errors.Join(append([]error{ErrBackendNotAvailable}, errs...)...)
}

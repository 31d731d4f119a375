package backend_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/renderpass/backend"
	"github.com/gogpu/renderpass/backend/noop"
)

func TestRegistryNoopRegistered(t *testing.T) {
	// The noop backend registers itself via init().
	if !backend.IsRegistered(backend.BackendNoop) {
		t.Fatal("noop backend should be auto-registered")
	}
	if !slices.Contains(backend.Available(), backend.BackendNoop) {
		t.Errorf("Available() = %v, want it to contain %q", backend.Available(), backend.BackendNoop)
	}

	dev, err := backend.Open(backend.BackendNoop)
	if err != nil {
		t.Fatalf("Open(noop) error = %v", err)
	}
	if _, ok := dev.(*noop.Device); !ok {
		t.Errorf("Open(noop) returned %T, want *noop.Device", dev)
	}
}

func TestRegistryOpenUnknown(t *testing.T) {
	_, err := backend.Open("metal")
	if !errors.Is(err, backend.ErrBackendNotAvailable) {
		t.Errorf("Open(metal) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestRegistryDefaultFallsBack(t *testing.T) {
	injected := errors.New("no driver")
	backend.Register(backend.BackendVulkan, func() (backend.Device, error) { return nil, injected })
	t.Cleanup(func() { backend.Unregister(backend.BackendVulkan) })

	name, dev, err := backend.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if name == backend.BackendVulkan || dev == nil {
		t.Errorf("Default() = %q, %v; want a working backend", name, dev)
	}

	_, err = backend.Open(backend.BackendVulkan)
	if !errors.Is(err, injected) {
		t.Errorf("Open(vulkan) error = %v, want %v", err, injected)
	}
}

func TestRegistryRegisterReplaces(t *testing.T) {
	const name = "test-replace"
	calls := 0
	backend.Register(name, func() (backend.Device, error) { calls = 1; return noop.NewDevice(), nil })
	backend.Register(name, func() (backend.Device, error) { calls = 2; return noop.NewDevice(), nil })
	t.Cleanup(func() { backend.Unregister(name) })

	if _, err := backend.Open(name); err != nil {
		t.Fatalf("Open(%s) error = %v", name, err)
	}
	if calls != 2 {
		t.Errorf("factory called = %d, want the second registration", calls)
	}

	backend.Unregister(name)
	if backend.IsRegistered(name) {
		t.Errorf("IsRegistered(%s) = true after Unregister", name)
	}
}

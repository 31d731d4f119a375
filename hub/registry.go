package hub

import "sync"

type slot[T any] struct {
	value T
	epoch uint32
	live  bool
}

// Registry is a typed arena of objects addressed by generational IDs.
//
// Registry is safe for concurrent use. Long operations that must observe a
// consistent view take the read guard with Read and keep it until done.
type Registry[T any] struct {
	mu    sync.RWMutex
	kind  string
	slots []slot[T]
	free  []uint32
}

// NewRegistry creates an empty registry. kind names the object type in errors.
func NewRegistry[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind}
}

// Kind returns the object type name.
func (r *Registry[T]) Kind() string { return r.kind }

// Register stores v and returns its new ID.
func (r *Registry[T]) Register(v T) ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		s := &r.slots[idx]
		s.epoch++
		s.value = v
		s.live = true
		return NewID(idx, s.epoch)
	}
	r.slots = append(r.slots, slot[T]{value: v, epoch: 1, live: true})
	return NewID(uint32(len(r.slots)-1), 1)
}

// Unregister removes the object and returns it. The slot's epoch is bumped
// on reuse so stale IDs stop resolving.
func (r *Registry[T]) Unregister(id ID) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookup(id)
	if err != nil {
		var zero T
		return zero, err
	}
	v := s.value
	var zero T
	s.value = zero
	s.live = false
	r.free = append(r.free, id.Index())
	return v, nil
}

// Get resolves id under a short read lock.
func (r *Registry[T]) Get(id ID) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.lookup(id)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.value, nil
}

// Len returns the number of live objects.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots) - len(r.free)
}

// Read acquires the registry read guard. The guard must be released with
// Release; lookups through it take no further locks.
func (r *Registry[T]) Read() *ReadGuard[T] {
	r.mu.RLock()
	return &ReadGuard[T]{r: r}
}

// Write acquires the registry write guard.
func (r *Registry[T]) Write() *WriteGuard[T] {
	r.mu.Lock()
	return &WriteGuard[T]{r: r}
}

func (r *Registry[T]) lookup(id ID) (*slot[T], error) {
	idx := id.Index()
	if id.IsZero() || int(idx) >= len(r.slots) {
		return nil, &InvalidIDError{Kind: r.kind, ID: id}
	}
	s := &r.slots[idx]
	if !s.live || s.epoch != id.Epoch() {
		return nil, &InvalidIDError{Kind: r.kind, ID: id}
	}
	return s, nil
}

// ReadGuard is a held read lock on a Registry.
type ReadGuard[T any] struct {
	r        *Registry[T]
	released bool
}

// Get resolves id without locking.
func (g *ReadGuard[T]) Get(id ID) (T, error) {
	s, err := g.r.lookup(id)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.value, nil
}

// Release drops the read lock. Calling it twice is a no-op.
func (g *ReadGuard[T]) Release() {
	if g.released {
		return
	}
	g.released = true
	g.r.mu.RUnlock()
}

// WriteGuard is a held write lock on a Registry.
type WriteGuard[T any] struct {
	r        *Registry[T]
	released bool
}

// Get resolves id without locking.
func (g *WriteGuard[T]) Get(id ID) (T, error) {
	s, err := g.r.lookup(id)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.value, nil
}

// Set replaces the value stored for a live id.
func (g *WriteGuard[T]) Set(id ID, v T) error {
	s, err := g.r.lookup(id)
	if err != nil {
		return err
	}
	s.value = v
	return nil
}

// Release drops the write lock. Calling it twice is a no-op.
func (g *WriteGuard[T]) Release() {
	if g.released {
		return
	}
	g.released = true
	g.r.mu.Unlock()
}

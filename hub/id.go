// Package hub provides generational handles and the registries that own
// every object referenced from a command stream.
//
// An ID packs a slot index (low 32 bits) and an epoch (high 32 bits). Epochs
// start at 1, so the zero ID never refers to a live object and can be used
// as "absent" in command records.
package hub

import (
	"errors"
	"fmt"
)

// ID is a generational handle into a Registry.
type ID uint64

// NewID builds an ID from its parts.
func NewID(index, epoch uint32) ID {
	return ID(uint64(epoch)<<32 | uint64(index))
}

// Index returns the slot index.
func (id ID) Index() uint32 { return uint32(id) }

// Epoch returns the generation of the slot the ID was issued for.
func (id ID) Epoch() uint32 { return uint32(id >> 32) }

// IsZero reports whether id is the absent handle.
func (id ID) IsZero() bool { return id == 0 }

// String returns a compact "index:epoch" form used in logs and errors.
func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Index(), id.Epoch())
}

// ErrInvalidID is the sentinel matched by every InvalidIDError.
var ErrInvalidID = errors.New("hub: invalid id")

// InvalidIDError reports a handle that does not resolve in its registry.
type InvalidIDError struct {
	Kind string
	ID   ID
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("hub: invalid %s id %s", e.Kind, e.ID)
}

// Is makes errors.Is(err, ErrInvalidID) work.
func (e *InvalidIDError) Is(target error) bool { return target == ErrInvalidID }

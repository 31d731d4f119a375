package track

import (
	"errors"
	"fmt"

	"github.com/gogpu/renderpass/hub"
)

// ErrUsageConflict is the sentinel matched by every UsageConflictError.
var ErrUsageConflict = errors.New("track: usage conflict")

// UsageConflictError reports two usages of one resource that cannot share a
// scope, or a prepend that contradicts an already recorded initial usage.
type UsageConflictError struct {
	Kind string // "buffer" or "texture"
	ID   hub.ID
	Old  string
	New  string
}

func (e *UsageConflictError) Error() string {
	return fmt.Sprintf("track: %s %s used as %s conflicts with %s", e.Kind, e.ID, e.New, e.Old)
}

// Is makes errors.Is(err, ErrUsageConflict) work.
func (e *UsageConflictError) Is(target error) bool { return target == ErrUsageConflict }

func conflict[U use](kind string, id hub.ID, old, next U) error {
	return &UsageConflictError{Kind: kind, ID: id, Old: old.String(), New: next.String()}
}

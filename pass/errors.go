package pass

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// Descriptor errors.
var (
	// ErrNoAttachments is returned for a pass without any attachment.
	ErrNoAttachments = errors.New("pass: render pass has no attachments")

	// ErrTooManyColorAttachments is returned for more than MaxColorTargets colors.
	ErrTooManyColorAttachments = errors.New("pass: too many color attachments")

	// ErrInvalidOp is returned for a load or store op outside the supported set.
	ErrInvalidOp = errors.New("pass: invalid load/store op")

	// ErrSurfaceDepthStencil is returned when a surface image is used as the
	// depth-stencil attachment.
	ErrSurfaceDepthStencil = errors.New("pass: surface image cannot be a depth-stencil attachment")

	// ErrMultipleSurfaces is returned when a pass, or the command buffer it
	// belongs to, references images of two different surfaces.
	ErrMultipleSurfaces = errors.New("pass: more than one surface image in use")

	// ErrNotDepthStencil is returned when the depth-stencil attachment has
	// neither a depth nor a stencil aspect.
	ErrNotDepthStencil = errors.New("pass: depth-stencil attachment has no depth or stencil aspect")

	// ErrNotColor is returned when a color attachment or resolve target is a
	// depth or stencil view.
	ErrNotColor = errors.New("pass: color attachment is not a color view")

	// ErrExtentMismatch is matched by every ExtentMismatchError.
	ErrExtentMismatch = errors.New("pass: attachment extent mismatch")

	// ErrSampleCount is matched by every SampleCountError.
	ErrSampleCount = errors.New("pass: invalid sample count")

	// ErrReadOnlyOps is matched by every ReadOnlyOpsError.
	ErrReadOnlyOps = errors.New("pass: read-only aspect with writing ops")
)

// ExtentMismatchError reports an attachment whose size differs from the
// first attachment of the pass.
type ExtentMismatchError struct {
	Attachment string
	Want       gputypes.Extent3D
	Got        gputypes.Extent3D
}

func (e *ExtentMismatchError) Error() string {
	return fmt.Sprintf("pass: %s extent %dx%dx%d does not match %dx%dx%d", e.Attachment,
		e.Got.Width, e.Got.Height, e.Got.DepthOrArrayLayers,
		e.Want.Width, e.Want.Height, e.Want.DepthOrArrayLayers)
}

func (e *ExtentMismatchError) Is(target error) bool { return target == ErrExtentMismatch }

// SampleCountReason tells which sample count rule was broken.
type SampleCountReason uint8

const (
	// SamplesMismatch means attachments disagree on the sample count.
	SamplesMismatch SampleCountReason = iota
	// SamplesUnsupported means the device cannot render with the count.
	SamplesUnsupported
	// ResolveMultisampled means a resolve target is multisampled.
	ResolveMultisampled
	// ResolveSourceSingleSampled means a resolving attachment is single-sampled.
	ResolveSourceSingleSampled
)

func (r SampleCountReason) String() string {
	switch r {
	case SamplesMismatch:
		return "sample counts differ"
	case SamplesUnsupported:
		return "sample count not supported by the device"
	case ResolveMultisampled:
		return "resolve target must be single-sampled"
	case ResolveSourceSingleSampled:
		return "attachment with a resolve target must be multisampled"
	default:
		return "unknown"
	}
}

// SampleCountError reports a sample count rule violation.
type SampleCountError struct {
	Attachment string
	Reason     SampleCountReason
	Want       uint32
	Got        uint32
}

func (e *SampleCountError) Error() string {
	return fmt.Sprintf("pass: %s: %s (got %d, want %d)", e.Attachment, e.Reason, e.Got, e.Want)
}

func (e *SampleCountError) Is(target error) bool { return target == ErrSampleCount }

// ReadOnlyOpsError reports a depth or stencil aspect requested read-only
// while its ops would modify it.
type ReadOnlyOpsError struct {
	Aspect string
	Load   gputypes.LoadOp
	Store  gputypes.StoreOp
}

func (e *ReadOnlyOpsError) Error() string {
	return fmt.Sprintf("pass: read-only %s aspect requires Load/Store ops", e.Aspect)
}

func (e *ReadOnlyOpsError) Is(target error) bool { return target == ErrReadOnlyOps }

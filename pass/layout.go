package pass

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/track"
)

// ImageLayout is the backend memory layout an attachment is kept in.
type ImageLayout uint8

const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresent
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "Undefined"
	case LayoutGeneral:
		return "General"
	case LayoutColorAttachment:
		return "ColorAttachment"
	case LayoutDepthStencilAttachment:
		return "DepthStencilAttachment"
	case LayoutDepthStencilReadOnly:
		return "DepthStencilReadOnly"
	case LayoutShaderReadOnly:
		return "ShaderReadOnly"
	case LayoutTransferSrc:
		return "TransferSrc"
	case LayoutTransferDst:
		return "TransferDst"
	case LayoutPresent:
		return "Present"
	default:
		return "Unknown"
	}
}

// LayoutFor maps a texture usage to the layout it requires. Mixed usages
// fall back to General.
func LayoutFor(u track.TextureUse, aspects track.Aspects) ImageLayout {
	depth := aspects&(track.AspectDepth|track.AspectStencil) != 0
	switch u {
	case 0:
		return LayoutUndefined
	case track.TextureUseCopySrc:
		return LayoutTransferSrc
	case track.TextureUseCopyDst:
		return LayoutTransferDst
	case track.TextureUseSampled:
		if depth {
			return LayoutDepthStencilReadOnly
		}
		return LayoutShaderReadOnly
	case track.TextureUseAttachmentRead:
		if depth {
			return LayoutDepthStencilReadOnly
		}
		return LayoutShaderReadOnly
	case track.TextureUseAttachmentWrite:
		if depth {
			return LayoutDepthStencilAttachment
		}
		return LayoutColorAttachment
	case track.TextureUseAttachmentRead | track.TextureUseSampled:
		if depth {
			return LayoutDepthStencilReadOnly
		}
		return LayoutGeneral
	default:
		return LayoutGeneral
	}
}

// LayoutTransition is the layout an attachment enters the pass in and the
// layout it is left in.
type LayoutTransition struct {
	Old ImageLayout
	New ImageLayout
}

// LoadOp is an attachment load operation as seen by the backend.
type LoadOp uint8

const (
	LoadDontCare LoadOp = iota
	LoadLoad
	LoadClear
)

func (o LoadOp) String() string {
	switch o {
	case LoadLoad:
		return "Load"
	case LoadClear:
		return "Clear"
	default:
		return "DontCare"
	}
}

// StoreOp is an attachment store operation as seen by the backend.
type StoreOp uint8

const (
	StoreDontCare StoreOp = iota
	StoreStore
)

func (o StoreOp) String() string {
	if o == StoreStore {
		return "Store"
	}
	return "DontCare"
}

// Ops pairs a load and a store operation.
type Ops struct {
	Load  LoadOp
	Store StoreOp
}

// OpsDontCare discards the attachment on both ends.
var OpsDontCare = Ops{}

func mapOps(load gputypes.LoadOp, store gputypes.StoreOp) (Ops, error) {
	var ops Ops
	switch load {
	case gputypes.LoadOpClear:
		ops.Load = LoadClear
	case gputypes.LoadOpLoad:
		ops.Load = LoadLoad
	default:
		return ops, ErrInvalidOp
	}
	switch store {
	case gputypes.StoreOpStore:
		ops.Store = StoreStore
	case gputypes.StoreOpDiscard:
		ops.Store = StoreDontCare
	default:
		return ops, ErrInvalidOp
	}
	return ops, nil
}

// FormatAspects returns the planes a texture format carries.
func FormatAspects(f gputypes.TextureFormat) track.Aspects {
	switch f {
	case gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth32FloatStencil8:
		return track.AspectDepth | track.AspectStencil
	case gputypes.TextureFormatDepth16Unorm, gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth32Float:
		return track.AspectDepth
	case gputypes.TextureFormatStencil8:
		return track.AspectStencil
	default:
		return track.AspectColor
	}
}

package noop

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderpass/backend"
)

// Call is one recorded command.
type Call struct {
	Op   string
	Args []any
}

func (c Call) String() string {
	if len(c.Args) == 0 {
		return c.Op
	}
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = fmt.Sprint(a)
	}
	return c.Op + " " + strings.Join(parts, " ")
}

// CommandBuffer records calls in order.
type CommandBuffer struct {
	Label string
	Calls []Call

	Finished  bool
	Discarded bool
	InPass    bool

	TextureBarriers []backend.TextureBarrier
	BufferBarriers  []backend.BufferBarrier
}

// Ops returns the op names of the recorded calls.
func (cb *CommandBuffer) Ops() []string {
	ops := make([]string, len(cb.Calls))
	for i, c := range cb.Calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many calls of op were recorded.
func (cb *CommandBuffer) Count(op string) int {
	n := 0
	for _, c := range cb.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (cb *CommandBuffer) record(op string, args ...any) {
	if cb.Finished {
		panic("noop: command recorded after Finish")
	}
	cb.Calls = append(cb.Calls, Call{Op: op, Args: args})
}

func (cb *CommandBuffer) BeginRenderPass(desc *backend.PassBegin) error {
	if cb.InPass {
		return fmt.Errorf("noop: render pass already open")
	}
	cb.InPass = true
	cb.record("BeginRenderPass", desc.Label, len(desc.Views), len(desc.ClearValues))
	return nil
}

func (cb *CommandBuffer) EndRenderPass() {
	cb.InPass = false
	cb.record("EndRenderPass")
}

func (cb *CommandBuffer) BindPipeline(p backend.RenderPipeline) {
	cb.record("BindPipeline", p)
}

func (cb *CommandBuffer) BindGroup(layout backend.PipelineLayout, index uint32, group backend.BindGroup, offsets []uint32) {
	cb.record("BindGroup", index, group, offsets)
}

func (cb *CommandBuffer) BindIndexBuffer(buf backend.Buffer, offset uint64, format gputypes.IndexFormat) {
	cb.record("BindIndexBuffer", buf, offset, format)
}

func (cb *CommandBuffer) BindVertexBuffer(slot uint32, buf backend.Buffer, offset uint64) {
	cb.record("BindVertexBuffer", slot, buf, offset)
}

func (cb *CommandBuffer) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	cb.record("SetViewport", x, y, width, height, minDepth, maxDepth)
}

func (cb *CommandBuffer) SetScissor(x, y, width, height uint32) {
	cb.record("SetScissor", x, y, width, height)
}

func (cb *CommandBuffer) SetBlendConstants(color gputypes.Color) {
	cb.record("SetBlendConstants", color)
}

func (cb *CommandBuffer) SetStencilReference(ref uint32) {
	cb.record("SetStencilReference", ref)
}

func (cb *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	cb.record("Draw", vertexCount, instanceCount, firstVertex, firstInstance)
}

func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	cb.record("DrawIndexed", indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (cb *CommandBuffer) DrawIndirect(buf backend.Buffer, offset uint64) {
	cb.record("DrawIndirect", buf, offset)
}

func (cb *CommandBuffer) DrawIndexedIndirect(buf backend.Buffer, offset uint64) {
	cb.record("DrawIndexedIndirect", buf, offset)
}

func (cb *CommandBuffer) PushDebugGroup(label string, color uint32) {
	cb.record("PushDebugGroup", label)
}

func (cb *CommandBuffer) PopDebugGroup() { cb.record("PopDebugGroup") }

func (cb *CommandBuffer) InsertDebugMarker(label string, color uint32) {
	cb.record("InsertDebugMarker", label)
}

func (cb *CommandBuffer) TransitionBuffers(barriers []backend.BufferBarrier) {
	cb.BufferBarriers = append(cb.BufferBarriers, barriers...)
	cb.record("TransitionBuffers", len(barriers))
}

func (cb *CommandBuffer) TransitionTextures(barriers []backend.TextureBarrier) {
	cb.TextureBarriers = append(cb.TextureBarriers, barriers...)
	cb.record("TransitionTextures", len(barriers))
}

func (cb *CommandBuffer) Finish() error {
	if cb.InPass {
		return fmt.Errorf("noop: finish inside a render pass")
	}
	cb.Finished = true
	return nil
}

func (cb *CommandBuffer) Discard() {
	cb.Discarded = true
	cb.InPass = false
}

// Package shadow implements component F: the shadow command buffer. It
// mirrors one recorded command buffer's structure, deciding — per the
// active sampling mode — which recorded commands get a GPU timestamp
// pair, and later builds the resolved structural tree once those
// timestamps come back from the device.
//
// Grounded on the teacher's hal/vulkan/command.go CommandEncoder
// (BeginEncoding/EndEncoding/isRecording flag for the Begin/End/Reset
// state machine); the pre/post/tree-build three-visitor split and the
// sampling-mode-driven query emission have no teacher analogue and are
// new, built to the recording contract this package's callers need.
package shadow

import (
	"sync"

	"github.com/lstalmir/VulkanProfiler-sub001/internal/ids"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/query"
)

// SamplingMode selects timestamp query granularity.
type SamplingMode uint8

const (
	SamplingPerDrawcall SamplingMode = iota
	SamplingPerPipeline
	SamplingPerRenderPass
	SamplingPerFrame
)

// CommandKind classifies one recorded command for attribution and
// sampling-mode decisions.
type CommandKind uint8

const (
	CommandOther CommandKind = iota
	CommandDraw
	CommandDrawIndexed
	CommandDrawIndirect
	CommandDrawIndirectCount
	CommandDrawMeshTasks
	CommandDispatch
	CommandDispatchIndirect
	CommandDispatchRayTracing
	CommandCopy
	CommandClear
	CommandClearAttachment
	CommandBlit
	CommandResolve
	CommandFill
	CommandUpdate
	CommandBuildAccelerationStructure
	CommandBuildMicromap
	CommandBindPipeline
	CommandBeginRenderPass
	CommandEndRenderPass
	CommandBeginSubpass
	CommandEndSubpass
	CommandExecuteSecondaries
	CommandPushDebugLabel
	CommandPopDebugLabel
	CommandInsertDebugLabel
)

// isGPUWork reports whether a command kind performs GPU work that should
// be attributed to a pipeline (application-bound or implicit), per spec's
// implicit-pipeline-attribution list. Debug labels and bind-pipeline never
// qualify: they are structural markers, not device work.
func (k CommandKind) isGPUWork() bool {
	switch k {
	case CommandDraw, CommandDrawIndexed, CommandDrawIndirect, CommandDrawIndirectCount,
		CommandDrawMeshTasks, CommandDispatch, CommandDispatchIndirect, CommandDispatchRayTracing,
		CommandCopy, CommandClear, CommandClearAttachment, CommandBlit,
		CommandResolve, CommandFill, CommandUpdate, CommandBuildAccelerationStructure,
		CommandBuildMicromap, CommandBeginRenderPass, CommandEndRenderPass,
		CommandBeginSubpass, CommandEndSubpass, CommandExecuteSecondaries:
		return true
	default:
		return false
	}
}

// isDebugLabel reports whether a command kind is a push/pop/insert debug
// label event. These never consume a timestamp-query slot but still
// appear in the resolved tree, per spec's "command buffer with only
// debug labels: total_ticks == 0; labels appear in tree" edge case.
func (k CommandKind) isDebugLabel() bool {
	switch k {
	case CommandPushDebugLabel, CommandPopDebugLabel, CommandInsertDebugLabel:
		return true
	default:
		return false
	}
}

// Command is one recorded command, as reported by the interception layer
// pre/post hooks.
type Command struct {
	Kind       CommandKind
	PipelineID ids.Identity // zero if no application-bound pipeline is active
}

// Node is one entry in the recorded sequence: a command with its
// (possibly absent) begin/end timestamp query slots.
type Node struct {
	Kind       CommandKind
	PipelineID ids.Identity // resolved: application pipeline, or an internal one
	BeginSlot  query.Slot
	EndSlot    query.Slot
	IsGroup    bool // true for per_pipeline/per_render_pass synthetic span nodes
}

// ResolvedNode is a Node with its timestamp slots converted to device
// ticks (or marked unmeasured). Children is populated by the tree-build
// visitor (see buildTree): commands nest into pipelines, pipelines into
// subpasses, subpasses into render passes, per invariant I2.
type ResolvedNode struct {
	Kind       CommandKind
	PipelineID ids.Identity
	BeginTicks uint64
	EndTicks   uint64
	Unmeasured bool
	IsGroup    bool
	Children   []ResolvedNode
}

// Dataset is the immutable snapshot data() returns: the structural tree
// with per-node timestamp intervals.
type Dataset struct {
	Nodes []ResolvedNode
}

// InternalPipelines resolves the stable synthetic pipeline identity used
// to attribute GPU work with no application-bound pipeline, keyed by
// drawcall kind per spec ("their hash key is the drawcall type").
type InternalPipelines interface {
	IdentityFor(kind CommandKind) ids.Identity
}

// Buffer is the shadow command buffer for one real command buffer.
//
// Not thread-safe: owned exclusively by the recording thread between
// Begin and End, per spec's concurrency model.
type Buffer struct {
	pool     *query.Pool
	internal InternalPipelines

	mode SamplingMode

	mu        sync.Mutex // guards fields read by submit-time snapshotting
	recording bool
	sequence  []Node

	// openBegin/openKind track the pending begin slot for per_pipeline and
	// per_render_pass modes: the group started at openBegin is still
	// waiting for its closing end timestamp.
	openBegin      query.Slot
	openKind       CommandKind
	openPipeline   ids.Identity
	haveOpen       bool
	renderPassOpen bool
}

// New creates a shadow command buffer over pool, using internal to
// resolve synthetic pipeline identities for implicit GPU work.
func New(pool *query.Pool, internal InternalPipelines, mode SamplingMode) *Buffer {
	return &Buffer{pool: pool, internal: internal, mode: mode, openBegin: query.InvalidSlotID}
}

// SetSamplingMode updates the granularity used by subsequent recordings.
// Per spec's facade contract, configuration setters are expected to be
// serialized by the caller (the facade's mutex); Buffer itself assumes no
// concurrent Begin/PreCommand/PostCommand call is in flight.
func (b *Buffer) SetSamplingMode(mode SamplingMode) {
	b.mode = mode
}

// Begin resets shadow state and acquires a fresh timestamp-query pool
// beginning.
func (b *Buffer) Begin() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pool.Reset()
	b.pool.Begin()
	b.sequence = b.sequence[:0]
	b.recording = true
	b.haveOpen = false
	b.openBegin = query.InvalidSlotID
	b.renderPassOpen = false

	if b.mode == SamplingPerFrame {
		slot := b.pool.Write(0)
		b.sequence = append(b.sequence, Node{Kind: CommandOther, BeginSlot: slot, EndSlot: query.InvalidSlotID})
	}
}

// End finalizes recording: any still-open per_pipeline/per_render_pass
// group gets its trailing end timestamp, and per_frame's single span is
// closed.
func (b *Buffer) End() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closeOpenGroupLocked()

	if b.mode == SamplingPerFrame && len(b.sequence) > 0 {
		last := &b.sequence[len(b.sequence)-1]
		if last.EndSlot == query.InvalidSlotID {
			last.EndSlot = b.pool.Write(0)
		}
	}
	b.recording = false
}

// Recording reports whether the buffer is currently between Begin and End.
func (b *Buffer) Recording() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recording
}

// Reset clears the recorded sequence and resets its timestamp queries
// (flags are accepted for interface symmetry with the graphics API but do
// not change behavior: every reset is a full reset).
func (b *Buffer) Reset(flags uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pool.Reset()
	b.sequence = nil
	b.recording = false
	b.haveOpen = false
	b.openBegin = query.InvalidSlotID
	b.renderPassOpen = false
}

// PreCommand is invoked before a command is actually recorded onto the
// real command buffer. It decides whether a begin timestamp is needed
// under the active sampling mode.
func (b *Buffer) PreCommand(cmd Command) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Debug labels are recorded the same way under every sampling mode:
	// they never allocate a timestamp-query slot, but must still appear
	// in the tree the pre/post/build visitors produce.
	if cmd.Kind.isDebugLabel() {
		b.sequence = append(b.sequence, Node{Kind: cmd.Kind, PipelineID: cmd.PipelineID, BeginSlot: query.InvalidSlotID, EndSlot: query.InvalidSlotID})
		return
	}

	pipeline := cmd.PipelineID
	if pipeline.IsZero() && cmd.Kind.isGPUWork() && b.internal != nil {
		pipeline = b.internal.IdentityFor(cmd.Kind)
	}

	switch b.mode {
	case SamplingPerDrawcall:
		slot := query.InvalidSlotID
		if cmd.Kind.isGPUWork() {
			slot = b.pool.Write(0)
		}
		b.sequence = append(b.sequence, Node{Kind: cmd.Kind, PipelineID: pipeline, BeginSlot: slot, EndSlot: query.InvalidSlotID})

	case SamplingPerPipeline:
		if cmd.Kind == CommandBindPipeline {
			b.closeOpenGroupLocked()
			return // the begin timestamp for the new group is written post-bind
		}
		if !b.haveOpen && cmd.Kind.isGPUWork() {
			// GPU work with no open group (e.g. first command before any
			// BindPipeline): open an implicit group now.
			b.openBegin = b.pool.Write(0)
			b.openKind = cmd.Kind
			b.openPipeline = pipeline
			b.haveOpen = true
		}

	case SamplingPerRenderPass:
		if cmd.Kind == CommandBeginRenderPass {
			b.closeOpenGroupLocked()
			b.openBegin = b.pool.Write(0)
			b.openKind = cmd.Kind
			b.openPipeline = pipeline
			b.haveOpen = true
			b.renderPassOpen = true
		} else if !b.haveOpen && cmd.Kind.isGPUWork() {
			// First command outside any render pass.
			b.openBegin = b.pool.Write(0)
			b.openKind = cmd.Kind
			b.openPipeline = pipeline
			b.haveOpen = true
		}

	case SamplingPerFrame:
		// Only command-buffer begin/end timestamps; nothing per-command.
	}
}

// PostCommand is invoked after a command has been recorded. It decides
// whether an end timestamp is needed.
func (b *Buffer) PostCommand(cmd Command) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cmd.Kind.isDebugLabel() {
		return
	}

	pipeline := cmd.PipelineID
	if pipeline.IsZero() && cmd.Kind.isGPUWork() && b.internal != nil {
		pipeline = b.internal.IdentityFor(cmd.Kind)
	}

	switch b.mode {
	case SamplingPerDrawcall:
		if len(b.sequence) == 0 {
			return
		}
		last := &b.sequence[len(b.sequence)-1]
		if last.BeginSlot != query.InvalidSlotID && last.EndSlot == query.InvalidSlotID {
			last.EndSlot = b.pool.Write(0)
		}

	case SamplingPerPipeline:
		if cmd.Kind == CommandBindPipeline {
			b.openBegin = b.pool.Write(0)
			b.openKind = cmd.Kind
			b.openPipeline = pipeline
			b.haveOpen = true
		}
		if cmd.Kind == CommandEndRenderPass {
			b.closeOpenGroupLocked()
		}

	case SamplingPerRenderPass:
		if cmd.Kind == CommandEndRenderPass {
			b.closeOpenGroupLocked()
			b.renderPassOpen = false
		}

	case SamplingPerFrame:
		// nothing
	}
}

// closeOpenGroupLocked writes the trailing end timestamp for the
// currently open per_pipeline/per_render_pass group, if any, and appends
// the resulting group node to the sequence. Caller must hold b.mu.
func (b *Buffer) closeOpenGroupLocked() {
	if !b.haveOpen {
		return
	}
	end := b.pool.Write(0)
	b.sequence = append(b.sequence, Node{
		Kind:       b.openKind,
		PipelineID: b.openPipeline,
		BeginSlot:  b.openBegin,
		EndSlot:    end,
		IsGroup:    true,
	})
	b.haveOpen = false
	b.openBegin = query.InvalidSlotID
}

// Submit invalidates any previously resolved dataset: the next Data()
// call rebuilds it from queries.
func (b *Buffer) Submit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Nothing to invalidate explicitly: Data() always rebuilds from the
	// current sequence and a fresh ReadAll(); there is no cached Dataset
	// field to stale out before resolution was implemented here.
}

// Data returns an immutable structural-tree snapshot with per-node
// timestamp intervals converted to device ticks. Nodes whose slot failed
// to allocate (InvalidSlotID) or whose timestamp could not be read back
// are marked Unmeasured but still appear, per spec.
func (b *Buffer) Data() Dataset {
	b.mu.Lock()
	seq := append([]Node(nil), b.sequence...)
	b.mu.Unlock()

	ticks, err := b.pool.ReadAll()

	nodes := make([]ResolvedNode, len(seq))
	for i, n := range seq {
		r := ResolvedNode{Kind: n.Kind, PipelineID: n.PipelineID, IsGroup: n.IsGroup}
		r.BeginTicks, r.Unmeasured = resolveSlot(ticks, err, n.BeginSlot)
		var endUnmeasured bool
		r.EndTicks, endUnmeasured = resolveSlot(ticks, err, n.EndSlot)
		r.Unmeasured = r.Unmeasured || endUnmeasured
		nodes[i] = r
	}
	return Dataset{Nodes: buildTree(nodes)}
}

// buildTree is the third visitor: it nests the flat resolved sequence into
// the command -> pipeline -> subpass -> render-pass containment spec.md §3
// and §4.F describe (invariant I2). It runs in three passes, innermost
// scope first, so each pass only has to bracket-match one marker kind.
//
// Nodes already marked IsGroup (emitted by closeOpenGroupLocked under
// per_pipeline/per_render_pass sampling) are pre-aggregated spans, not
// structural markers: every pass treats them as opaque leaves.
func buildTree(nodes []ResolvedNode) []ResolvedNode {
	nodes = groupByPipeline(nodes)
	nodes = bracketGroup(nodes, CommandBeginSubpass, CommandEndSubpass)
	nodes = bracketGroup(nodes, CommandBeginRenderPass, CommandEndRenderPass)
	return nodes
}

// isStructuralBoundary reports whether n ends a run of commands gathered
// under an open CommandBindPipeline group.
func isStructuralBoundary(n ResolvedNode) bool {
	if n.IsGroup {
		return true
	}
	switch n.Kind {
	case CommandBindPipeline, CommandBeginRenderPass, CommandEndRenderPass,
		CommandBeginSubpass, CommandEndSubpass:
		return true
	default:
		return false
	}
}

// groupByPipeline collapses each literal CommandBindPipeline marker (only
// ever recorded under per_drawcall sampling — the other modes already
// collapse a bound pipeline's commands into a single IsGroup span) and the
// run of commands following it, up to the next structural boundary, into
// one container node.
func groupByPipeline(nodes []ResolvedNode) []ResolvedNode {
	out := make([]ResolvedNode, 0, len(nodes))
	i := 0
	for i < len(nodes) {
		n := nodes[i]
		if n.IsGroup || n.Kind != CommandBindPipeline {
			out = append(out, n)
			i++
			continue
		}
		children := []ResolvedNode{n}
		i++
		for i < len(nodes) && !isStructuralBoundary(nodes[i]) {
			children = append(children, nodes[i])
			i++
		}
		out = append(out, containerFrom(CommandBindPipeline, children))
	}
	return out
}

// bracketGroup matches nested beginKind/endKind marker pairs (subpass or
// render-pass scope) and wraps each matched pair's contents, including the
// markers themselves, into one container node.
func bracketGroup(nodes []ResolvedNode, beginKind, endKind CommandKind) []ResolvedNode {
	type frame struct {
		children []ResolvedNode
	}
	var stack []frame
	out := make([]ResolvedNode, 0, len(nodes))

	emit := func(n ResolvedNode) {
		if len(stack) == 0 {
			out = append(out, n)
			return
		}
		top := &stack[len(stack)-1]
		top.children = append(top.children, n)
	}

	for _, n := range nodes {
		switch {
		case !n.IsGroup && n.Kind == beginKind:
			stack = append(stack, frame{children: []ResolvedNode{n}})
		case !n.IsGroup && n.Kind == endKind && len(stack) > 0:
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			top.children = append(top.children, n)
			emit(containerFrom(beginKind, top.children))
		default:
			emit(n)
		}
	}
	// Unmatched opens (malformed recording): flatten rather than drop.
	for _, f := range stack {
		out = append(out, f.children...)
	}
	return out
}

// containerFrom builds a structural container node of the given kind
// around children. Its PipelineID is left zero so accumulatePipelineStats
// does not double-count: the grouped commands still carry their own
// individually measured ticks and pipeline attribution as children.
func containerFrom(kind CommandKind, children []ResolvedNode) ResolvedNode {
	c := ResolvedNode{Kind: kind, Children: children, Unmeasured: true}
	haveBegin := false
	for _, ch := range children {
		if ch.Unmeasured {
			continue
		}
		if !haveBegin || ch.BeginTicks < c.BeginTicks {
			c.BeginTicks = ch.BeginTicks
			haveBegin = true
		}
		if ch.EndTicks > c.EndTicks {
			c.EndTicks = ch.EndTicks
		}
		c.Unmeasured = false
	}
	return c
}

func resolveSlot(ticks []uint64, readErr error, slot query.Slot) (uint64, bool) {
	if slot == query.InvalidSlotID {
		return 0, true
	}
	if readErr != nil || int64(slot) >= int64(len(ticks)) {
		return 0, true
	}
	return ticks[slot], false
}

// Package query implements component B of the profiling engine: per
// command-buffer management of on-device timestamp queries.
//
// A Pool is an append-only sequence of query slots segmented into
// fixed-size internal pools (DefaultSegmentSize slots each). Growth is
// unbounded and segments are never released individually — they are
// reused in place across Reset/Begin cycles, following the growth
// discipline in the teacher's hal/vulkan/memory/allocator.go (append a
// new block, never shrink). Every appended segment has the same fixed
// size: the pool grows by one segment at a time, not by a multiplicative
// factor.
//
// A Pool is not safe for concurrent use: the Vulkan contract already
// guarantees a command buffer is recorded by one thread at a time, so the
// pool backing it needs no internal locking.
package query

// DefaultSegmentSize is the number of query slots held by one internal
// pool before a new one is appended.
const DefaultSegmentSize = 4096

// DefaultAlmostFullThreshold is the fill ratio at which AllocateIfAlmostFull
// pre-allocates a new segment to avoid a mid-record stall.
const DefaultAlmostFullThreshold = 0.85

// Stage identifies the pipeline stage a timestamp is written at. Kept as
// an opaque numeric type so the engine does not need to depend on the
// concrete shader-stage enumeration used by the caller's graphics API.
type Stage uint32

// SegmentHandle is the backend-defined handle for one internal query pool
// (e.g. a VkQueryPool). Device is responsible for giving it meaning.
type SegmentHandle uint64

// Slot identifies one timestamp write, monotonically increasing across
// the whole pool regardless of which segment backs it.
type Slot int64

// InvalidSlotID is returned by Write when the backend could not grow the
// pool; the caller still gets a (structurally valid, numerically
// sentinel) slot so command attribution continues unmeasured rather than
// failing outright, per spec §7 "Resource exhaustion".
const InvalidSlotID Slot = -1

// Device is the backend contract the interception layer provides so the
// pool can create, reset, and read real on-device query objects. This
// mirrors the teacher's hal.Device style of interface-based backend
// injection: the engine never talks to the driver directly, it only
// drives whatever implementation is wired in.
type Device interface {
	// CreateQuerySegment allocates count fresh timestamp query slots on
	// the device and returns an opaque handle to them.
	CreateQuerySegment(count uint32) (SegmentHandle, error)
	// ResetQuerySegment resets every slot in the segment so it can be
	// rewritten by a new recording.
	ResetQuerySegment(h SegmentHandle)
	// ReadQuerySegment reads back count timestamp values from the
	// segment, in device ticks. Must only be called once the command
	// buffer that wrote them has completed execution.
	ReadQuerySegment(h SegmentHandle, count uint32) ([]uint64, error)
}

type segment struct {
	handle   SegmentHandle
	size     uint32
	written  uint32
	resetYet bool
}

// Pool manages the timestamp queries belonging to one command buffer.
type Pool struct {
	dev         Device
	segmentSize uint32
	segments    []segment
	cur         int // index of the segment currently being written
	nextSlot    Slot
}

// New creates a pool backed by dev. segmentSize overrides
// DefaultSegmentSize when non-zero (tests use smaller segments to
// exercise overflow cheaply).
func New(dev Device, segmentSize uint32) *Pool {
	if segmentSize == 0 {
		segmentSize = DefaultSegmentSize
	}
	return &Pool{dev: dev, segmentSize: segmentSize, cur: -1}
}

// Reset resets every internal segment via a GPU command and clears
// write indices, keeping the segments themselves (and their device
// objects) for reuse.
func (p *Pool) Reset() {
	for i := range p.segments {
		p.dev.ResetQuerySegment(p.segments[i].handle)
		p.segments[i].written = 0
	}
	p.cur = -1
	p.nextSlot = 0
}

// Begin marks the start of a new recording. The slot index sequence
// restarts at zero; existing segments are reused starting from the
// first one.
func (p *Pool) Begin() {
	p.nextSlot = 0
	if len(p.segments) > 0 {
		p.cur = 0
	} else {
		p.cur = -1
	}
}

// allocate appends a new internal segment, growing the pool. Returns
// false if the backend refused to create it (resource exhaustion).
func (p *Pool) allocate() bool {
	h, err := p.dev.CreateQuerySegment(p.segmentSize)
	if err != nil {
		return false
	}
	p.segments = append(p.segments, segment{handle: h, size: p.segmentSize})
	p.cur = len(p.segments) - 1
	return true
}

// AllocateIfAlmostFull pre-allocates a new segment when the active one's
// fill ratio is at or above threshold, so Write never has to grow the
// pool mid-command. threshold <= 0 uses DefaultAlmostFullThreshold.
func (p *Pool) AllocateIfAlmostFull(threshold float64) {
	if threshold <= 0 {
		threshold = DefaultAlmostFullThreshold
	}
	if p.cur < 0 {
		p.allocate()
		return
	}
	cur := &p.segments[p.cur]
	if float64(cur.written)/float64(cur.size) >= threshold && p.cur == len(p.segments)-1 {
		// Keep writing into the current segment; Write moves into the
		// pre-allocated one once the current segment is full.
		prev := p.cur
		if p.allocate() {
			p.cur = prev
		}
	}
}

// Write emits a timestamp write at stage, returning the monotonically
// increasing slot id. Advances to (or allocates) the next segment when
// the current one is full. Returns InvalidSlotID if the backend could not
// grow the pool; the caller is expected to mark the associated command
// interval unmeasured but keep it in the structural tree.
func (p *Pool) Write(_ Stage) Slot {
	if p.cur < 0 || p.segments[p.cur].written >= p.segments[p.cur].size {
		if p.cur >= 0 && p.cur < len(p.segments)-1 {
			// A pre-allocated segment already exists (AllocateIfAlmostFull
			// ran earlier): move into it instead of growing again.
			p.cur++
		} else if !p.allocate() {
			return InvalidSlotID
		}
	}
	p.segments[p.cur].written++
	slot := p.nextSlot
	p.nextSlot++
	return slot
}

// ReadAll reads every written slot, in write order, after the owning
// command buffer has finished executing on the device.
func (p *Pool) ReadAll() ([]uint64, error) {
	out := make([]uint64, 0, p.nextSlot)
	for i := range p.segments {
		seg := &p.segments[i]
		if seg.written == 0 {
			continue
		}
		vals, err := p.dev.ReadQuerySegment(seg.handle, seg.written)
		if err != nil {
			return out, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

// Len returns the number of slots written since the last Begin.
func (p *Pool) Len() int {
	return int(p.nextSlot)
}

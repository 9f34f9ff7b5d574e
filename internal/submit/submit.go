// Package submit implements component H: the submit batch recorder. It
// snapshots each queue submission's command-buffer references and
// semaphores under the shared command-buffer registry lock, tagging the
// batch with the submitting thread and a host timestamp for the frame
// aggregator to fold in later.
//
// Grounded on the teacher's core/queue.go (QueueSubmit: validate handles
// via the Hub before accepting a submission) — Recorder.Record plays the
// same "resolve everything up front, under one lock, before doing
// anything with it" role, adapted from ID validation to identity
// snapshotting.
package submit

import (
	"sync"

	"github.com/lstalmir/VulkanProfiler-sub001/internal/ids"
)

// Kind distinguishes which submission entry point the interception layer
// observed; both map into the same Batch shape.
type Kind uint8

const (
	KindLegacySubmit Kind = iota
	KindSubmit2
)

// Info is one submit's resolved references: the command buffers it
// executes, in order, plus the semaphores it waits on and signals.
type Info struct {
	CommandBuffers   []ids.Identity
	WaitSemaphores   []ids.Identity
	SignalSemaphores []ids.Identity
}

// Batch is the recorded snapshot of one vkQueueSubmit(2)-equivalent call.
type Batch struct {
	Queue           ids.Identity
	Kind            Kind
	Submits         []Info
	HostTimestampNs uint64
	ThreadID        uint64
}

// DirtyMarker marks a recorded command buffer as consumed by a
// submission, so the next begin() on it must start a fresh recording.
type DirtyMarker interface {
	MarkDirty(id ids.Identity)
}

// Recorder is the submit batch recorder.
type Recorder struct {
	lock   sync.Locker // the command-buffer registry's reader lock
	dirty  DirtyMarker
	nowNs  func() uint64
	gid    func() uint64 // current OS thread id
}

// New creates a Recorder. lock must be the command-buffer registry's
// RLocker (or an equivalent shared lock), acquired for the duration of
// Record so concurrent Unregister calls cannot race a submission's
// snapshot. nowNs and threadID are injected for testability.
func New(lock sync.Locker, dirty DirtyMarker, nowNs func() uint64, threadID func() uint64) *Recorder {
	return &Recorder{lock: lock, dirty: dirty, nowNs: nowNs, gid: threadID}
}

// Record snapshots one submission as a Batch. infos are the already-
// resolved per-submit command-buffer and semaphore identities; the
// interception layer is responsible for mapping both the legacy
// single-array submit and the richer info-per-array submit2 into this
// same []Info shape before calling Record.
func (r *Recorder) Record(queue ids.Identity, infos []Info, kind Kind) Batch {
	r.lock.Lock()
	defer r.lock.Unlock()

	batch := Batch{
		Queue:           queue,
		Kind:            kind,
		Submits:         append([]Info(nil), infos...),
		HostTimestampNs: r.nowNs(),
		ThreadID:        r.gid(),
	}

	if r.dirty != nil {
		for _, info := range batch.Submits {
			for _, cb := range info.CommandBuffers {
				r.dirty.MarkDirty(cb)
			}
		}
	}
	return batch
}

package stream

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/lstalmir/VulkanProfiler-sub001/internal/counters"
)

// fakeSession is an in-memory Session backed by a slice of pending reports
// fed by the test.
type fakeSession struct {
	mu      sync.Mutex
	pending []RawReport
	closed  bool
}

func (s *fakeSession) push(r RawReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, r)
}

func (s *fakeSession) Poll(capacity int) ([]RawReport, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, false, nil
	}
	n := len(s.pending)
	if n > capacity {
		n = capacity
	}
	out := s.pending[:n]
	s.pending = s.pending[n:]
	return out, false, nil
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

type fakeDriver struct {
	mu       sync.Mutex
	sessions map[int]*fakeSession
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{sessions: make(map[int]*fakeSession)}
}

func (d *fakeDriver) OpenSession(setIndex int, reportBufferSize int) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &fakeSession{}
	d.sessions[setIndex] = s
	return s, nil
}

func (d *fakeDriver) ParseReport(setIndex int, raw []byte) ([]counters.Value, error) {
	return []counters.Value{{Storage: counters.StorageU32, U32: binary.LittleEndian.Uint32(raw)}}, nil
}

func (d *fakeDriver) sessionFor(setIndex int) *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[setIndex]
}

func report(deviceTS, hostTS uint64, payload uint32) RawReport {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, payload)
	return RawReport{DeviceTimestampNs: deviceTS, HostTimestampNs: hostTS, Data: raw}
}

func TestSetActiveSetStartsCollector(t *testing.T) {
	drv := newFakeDriver()
	b := New(drv, 8, time.Hour, time.Millisecond)
	defer b.Stop()

	if err := b.SetActiveSet(0); err != nil {
		t.Fatalf("SetActiveSet() error = %v", err)
	}
	sess := drv.sessionFor(0)
	sess.push(report(100, uint64(time.Now().UnixNano()), 7))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		samples, _ := b.ReadStreamData(0, 200)
		if len(samples) == 1 {
			if samples[0].Values[0].U32 != 7 {
				t.Fatalf("payload = %d, want 7", samples[0].Values[0].U32)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for collector to deliver sample")
}

func TestSetActiveSetClosesPreviousSession(t *testing.T) {
	drv := newFakeDriver()
	b := New(drv, 8, time.Hour, time.Millisecond)
	defer b.Stop()

	if err := b.SetActiveSet(0); err != nil {
		t.Fatal(err)
	}
	first := drv.sessionFor(0)

	if err := b.SetActiveSet(1); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !func() bool { first.mu.Lock(); defer first.mu.Unlock(); return first.closed }() {
		time.Sleep(time.Millisecond)
	}
	first.mu.Lock()
	closed := first.closed
	first.mu.Unlock()
	if !closed {
		t.Fatal("previous session was never closed on SetActiveSet")
	}
}

func TestReadStreamDataRebasesAndConsumes(t *testing.T) {
	b := New(newFakeDriver(), 8, time.Hour, time.Hour)
	b.ring = []Sample{
		{DeviceTimestampNs: 100, Values: []counters.Value{{U32: 1}}},
		{DeviceTimestampNs: 150, Values: []counters.Value{{U32: 2}}},
		{DeviceTimestampNs: 300, Values: []counters.Value{{U32: 3}}},
	}

	samples, complete := b.ReadStreamData(100, 200)
	if len(samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2", len(samples))
	}
	if samples[0].DeviceTimestampNs != 0 || samples[1].DeviceTimestampNs != 50 {
		t.Fatalf("timestamps not rebased: got %d, %d", samples[0].DeviceTimestampNs, samples[1].DeviceTimestampNs)
	}
	if !complete {
		t.Fatal("complete = false, want true: a later sample (300) proves the window is closed")
	}

	// Consumed samples must be gone from the ring.
	remaining, _ := b.ReadStreamData(0, 1000)
	if len(remaining) != 1 || remaining[0].Values[0].U32 != 3 {
		t.Fatalf("expected only the unread sample (300) to remain, got %+v", remaining)
	}
}

func TestReadStreamDataIncompleteWindow(t *testing.T) {
	b := New(newFakeDriver(), 8, time.Hour, time.Hour)
	b.ring = []Sample{
		{DeviceTimestampNs: 100, Values: []counters.Value{{U32: 1}}},
	}

	samples, complete := b.ReadStreamData(0, 1000)
	if len(samples) != 1 {
		t.Fatalf("len(samples) = %d, want 1", len(samples))
	}
	if complete {
		t.Fatal("complete = true, want false: nothing proves the window's right edge has arrived yet")
	}
}

func TestPurgeExpiredDropsOldSamples(t *testing.T) {
	b := New(newFakeDriver(), 8, 10*time.Millisecond, time.Millisecond)
	now := time.Now()
	b.ring = []Sample{
		{DeviceTimestampNs: 1, HostTimestampNs: uint64(now.Add(-time.Hour).UnixNano())},
		{DeviceTimestampNs: 2, HostTimestampNs: uint64(now.UnixNano())},
	}
	b.purgeExpired()
	if len(b.ring) != 1 || b.ring[0].DeviceTimestampNs != 2 {
		t.Fatalf("purgeExpired() left %+v, want only the recent sample", b.ring)
	}
}

func TestSetActiveSetRetainsBufferedSamplesAcrossSwitch(t *testing.T) {
	b := New(newFakeDriver(), 8, time.Hour, time.Millisecond)
	now := uint64(time.Now().UnixNano())
	b.ring = []Sample{
		{DeviceTimestampNs: 100, HostTimestampNs: now, SetIndex: 0, Values: []counters.Value{{U32: 1}}},
		{DeviceTimestampNs: 150, HostTimestampNs: now, SetIndex: 0, Values: []counters.Value{{U32: 2}}},
	}

	drv := newFakeDriver()
	b.drv = drv
	if err := b.SetActiveSet(1); err != nil {
		t.Fatalf("SetActiveSet() error = %v", err)
	}
	defer b.Stop()

	b.ringMu.Lock()
	buffered := append([]Sample(nil), b.ring...)
	b.ringMu.Unlock()
	if len(buffered) != 2 {
		t.Fatalf("ring after switch = %+v, want the 2 pre-switch samples retained", buffered)
	}

	sess := drv.sessionFor(1)
	sess.push(report(200, uint64(time.Now().UnixNano()), 3))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		// ReadStreamData consumes what it returns, so read only once the
		// collector has appended the post-switch sample.
		b.ringMu.Lock()
		n := len(b.ring)
		b.ringMu.Unlock()
		if n == 3 {
			samples, _ := b.ReadStreamData(0, 300)
			if len(samples) != 3 {
				t.Fatalf("len(samples) = %d, want 3", len(samples))
			}
			if samples[0].SetIndex != 0 || samples[1].SetIndex != 0 || samples[2].SetIndex != 1 {
				t.Fatalf("set_index sequence = %d,%d,%d, want 0,0,1 (exactly one transition)",
					samples[0].SetIndex, samples[1].SetIndex, samples[2].SetIndex)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for post-switch sample to arrive")
}

func TestEmptyWindowReturnsComplete(t *testing.T) {
	b := New(newFakeDriver(), 8, time.Hour, time.Hour)
	samples, complete := b.ReadStreamData(50, 50)
	if samples != nil || !complete {
		t.Fatalf("degenerate window: got (%v, %v), want (nil, true)", samples, complete)
	}
}

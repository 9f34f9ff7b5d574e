// Package stream implements the asynchronous, streaming performance
// counter backend (spec §4.C.2): a background collector goroutine drains
// a vendor IO stream and makes samples available for windowed reads keyed
// by device timestamp.
//
// The collector loop is grounded on the teacher's internal/thread.Thread
// (dedicated goroutine, buffered channel, Stop/done shutdown), adapted
// from a call-dispatch thread into a polling collector since the job here
// is "wake up, drain, sleep" rather than "execute submitted closures".
// The ring buffer's drop-oldest/retention-pruning discipline is grounded
// on other_examples/27aec749_DataDog-datadog-agent_..._stream_collection.go.
package stream

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lstalmir/VulkanProfiler-sub001/internal/counters"
)

// discardHandler silently drops every log record; it is the Backend's
// default logger until SetLogger wires in the facade's configured one.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

// DefaultReportBufferSize is the number of raw reports the driver-side IO
// stream buffer is sized for, per spec ("16k raw reports").
const DefaultReportBufferSize = 16 * 1024

// DefaultRetention is how long a sample is kept in the ring before being
// purged, regardless of whether it was ever read.
const DefaultRetention = time.Second

// DefaultPollInterval is how long the collector sleeps between drains
// when fewer than half the buffer's worth of reports arrived.
const DefaultPollInterval = time.Millisecond

// RawReport is one report delivered by the vendor IO stream, as handed to
// the engine before parsing.
type RawReport struct {
	DeviceTimestampNs uint64
	HostTimestampNs   uint64
	Data              []byte
}

// Session is one open IO stream on a concurrent counter group.
type Session interface {
	// Poll drains up to capacity pending reports. dropped is true if the
	// driver discarded older reports to make room (drop-oldest policy).
	Poll(capacity int) (reports []RawReport, dropped bool, err error)
	// Close releases the session.
	Close()
}

// Driver is the vendor-specific contract providing streaming sessions and
// report parsing, mirroring the teacher's hal.Device-style backend
// injection.
type Driver interface {
	OpenSession(setIndex int, reportBufferSize int) (Session, error)
	ParseReport(setIndex int, raw []byte) ([]counters.Value, error)
}

// Sample is one parsed, calibrated counter reading.
type Sample struct {
	DeviceTimestampNs uint64
	HostTimestampNs   uint64
	SetIndex          int
	Values            []counters.Value
}

// Backend is the streaming performance-counter backend.
type Backend struct {
	drv              Driver
	reportBufferSize int
	retention        time.Duration
	pollInterval     time.Duration

	// switchMu serializes SetActiveSet against itself; ringMu guards the
	// ring and the current session/active-set pair so the collector
	// goroutine and readers never race on them.
	switchMu sync.Mutex
	ringMu   sync.Mutex
	ring     []Sample // ascending DeviceTimestampNs
	session  Session
	active   int

	logAtomic atomic.Pointer[slog.Logger]

	done    chan struct{}
	stopped chan struct{}
}

// SetLogger wires in the logger the collector goroutine's warnings are
// routed through. nil restores the silent default. Safe to call
// concurrently with a running collector goroutine.
func (b *Backend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(discardHandler{})
	}
	b.logAtomic.Store(l)
}

func (b *Backend) logger() *slog.Logger {
	if l := b.logAtomic.Load(); l != nil {
		return l
	}
	return slog.New(discardHandler{})
}

// New creates a streaming backend over drv. Zero reportBufferSize,
// retention, or pollInterval fall back to their documented defaults.
func New(drv Driver, reportBufferSize int, retention, pollInterval time.Duration) *Backend {
	if reportBufferSize == 0 {
		reportBufferSize = DefaultReportBufferSize
	}
	if retention == 0 {
		retention = DefaultRetention
	}
	if pollInterval == 0 {
		pollInterval = DefaultPollInterval
	}
	return &Backend{
		drv:              drv,
		reportBufferSize: reportBufferSize,
		retention:        retention,
		pollInterval:     pollInterval,
		active:           -1,
	}
}

// SetActiveSet closes the current stream (if any) and reopens on setIndex,
// starting the collector goroutine if this is the first call.
func (b *Backend) SetActiveSet(setIndex int) error {
	b.switchMu.Lock()
	defer b.switchMu.Unlock()

	sess, err := b.drv.OpenSession(setIndex, b.reportBufferSize)
	if err != nil {
		return err
	}

	b.ringMu.Lock()
	old := b.session
	b.session = sess
	b.active = setIndex
	// The ring is left intact: samples already buffered from the old set
	// are still valid readings and a read spanning the switch must see
	// set_index change exactly once, from old to new, in place.
	b.ringMu.Unlock()

	if old != nil {
		old.Close()
	}

	if b.done == nil {
		b.done = make(chan struct{})
		b.stopped = make(chan struct{})
		go b.run()
	}
	return nil
}

// Stop shuts down the collector goroutine and closes the active session.
func (b *Backend) Stop() {
	b.switchMu.Lock()
	defer b.switchMu.Unlock()

	if b.done == nil {
		return
	}
	close(b.done)
	<-b.stopped
	b.done = nil

	b.ringMu.Lock()
	if b.session != nil {
		b.session.Close()
		b.session = nil
	}
	b.ringMu.Unlock()
}

func (b *Backend) run() {
	defer close(b.stopped)
	for {
		select {
		case <-b.done:
			return
		default:
		}

		n := b.drain()
		b.purgeExpired()

		if n < b.reportBufferSize/2 {
			select {
			case <-time.After(b.pollInterval):
			case <-b.done:
				return
			}
		}
	}
}

// drain pulls whatever reports are pending, parses them, and appends them
// to the ring. Returns the number of reports drained.
func (b *Backend) drain() int {
	b.ringMu.Lock()
	sess := b.session
	active := b.active
	b.ringMu.Unlock()
	if sess == nil {
		return 0
	}

	reports, dropped, err := sess.Poll(b.reportBufferSize)
	if err != nil {
		b.logger().Warn("counters/stream: poll failed", "error", err)
		return 0
	}
	if dropped {
		b.logger().Warn("counters/stream: driver dropped reports under backpressure")
	}
	if len(reports) == 0 {
		return 0
	}

	samples := make([]Sample, 0, len(reports))
	for _, r := range reports {
		vals, err := b.drv.ParseReport(active, r.Data)
		if err != nil {
			b.logger().Warn("counters/stream: parse report failed", "error", err)
			continue
		}
		samples = append(samples, Sample{
			DeviceTimestampNs: r.DeviceTimestampNs,
			HostTimestampNs:   r.HostTimestampNs,
			SetIndex:          active,
			Values:            vals,
		})
	}

	b.ringMu.Lock()
	b.ring = append(b.ring, samples...)
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i].DeviceTimestampNs < b.ring[j].DeviceTimestampNs
	})
	b.ringMu.Unlock()

	return len(reports)
}

func (b *Backend) purgeExpired() {
	cutoff := uint64(time.Now().Add(-b.retention).UnixNano())

	b.ringMu.Lock()
	defer b.ringMu.Unlock()
	i := 0
	for ; i < len(b.ring); i++ {
		if b.ring[i].HostTimestampNs >= cutoff {
			break
		}
	}
	if i > 0 {
		b.ring = b.ring[i:]
	}
}

// ReadStreamData returns every sample with device timestamp in
// [beginDeviceTS, endDeviceTS), rebased so beginDeviceTS becomes zero, and
// removes them from the ring. complete reports whether the collector has
// already delivered a sample at or past endDeviceTS (i.e. the window's
// right edge is known-complete, not merely "nothing arrived yet").
func (b *Backend) ReadStreamData(beginDeviceTS, endDeviceTS uint64) (samples []Sample, complete bool) {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()

	if beginDeviceTS >= endDeviceTS {
		return nil, true
	}

	lo := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i].DeviceTimestampNs >= beginDeviceTS
	})
	hi := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i].DeviceTimestampNs >= endDeviceTS
	})

	if lo < hi {
		samples = make([]Sample, hi-lo)
		for i, s := range b.ring[lo:hi] {
			s.DeviceTimestampNs -= beginDeviceTS
			samples[i] = s
		}
	}

	complete = hi < len(b.ring) || (len(b.ring) > 0 && b.ring[len(b.ring)-1].DeviceTimestampNs >= endDeviceTS)

	// Erase everything up to hi: it has been consumed by this read.
	if hi > 0 {
		b.ring = b.ring[hi:]
	}
	return samples, complete
}

// ActiveSet returns the index of the currently active metric set, or -1.
func (b *Backend) ActiveSet() int {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()
	return b.active
}

// SupportsQueryPoolReuse always returns true for the streaming backend:
// it does not allocate Vulkan query pools at all, per spec.
func (b *Backend) SupportsQueryPoolReuse() bool { return true }

// Package query implements the synchronous, query-pool-based performance
// counter backend (spec §4.C.1): metrics are read back per VkPerformance
// query, not streamed.
package query

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/lstalmir/VulkanProfiler-sub001/internal/counters"
)

// Driver is the vendor-specific contract the interception layer provides.
// It mirrors the teacher's hal.Device style of backend injection: Backend
// never talks to the real driver, it only orchestrates whatever Driver
// implementation is wired in (Intel/KHR performance query extensions).
type Driver interface {
	// DiscoverMetricSets enumerates the counter sets the device exposes.
	DiscoverMetricSets() ([]counters.MetricSet, error)
	// CreateQueryPool creates a performance-query pool sized for size
	// simultaneous queries on queueFamily.
	CreateQueryPool(queueFamily uint32, size uint32) (counters.PoolHandle, error)
	// ConfigureQueue applies the metric set at setIndex to queue. Called
	// once per queue whenever the active set changes.
	ConfigureQueue(queue uint64, setIndex int) error
	// SupportsQueryPoolReuse reports whether pools created under one
	// active set may still be used after switching to another.
	SupportsQueryPoolReuse() bool
}

// Backend is the query-mode performance-counter backend.
//
// Thread safety follows spec §5: the active set is guarded by a
// sync.RWMutex; SetActiveSet (a writer) blocks until in-flight readers
// (ParseReport) finish, but ParseReport itself only ever takes the reader
// lock.
type Backend struct {
	drv Driver

	mu     sync.RWMutex
	sets   []counters.MetricSet
	active int // -1 == none selected
}

// New creates a query-mode backend over drv.
func New(drv Driver) *Backend {
	return &Backend{drv: drv, active: -1}
}

// Initialize discovers counter sets and selects the set named
// defaultName, or the first available set if defaultName is empty or not
// found.
func (b *Backend) Initialize(defaultName string) error {
	sets, err := b.drv.DiscoverMetricSets()
	if err != nil {
		return fmt.Errorf("counters/query: discover metric sets: %w", err)
	}

	b.mu.Lock()
	b.sets = sets
	b.mu.Unlock()

	if len(sets) == 0 {
		return nil
	}

	idx := 0
	if defaultName != "" {
		for i, s := range sets {
			if s.Name == defaultName {
				idx = i
				break
			}
		}
	}
	return b.SetActiveSet(idx)
}

// CreateQueryPool creates a performance-query pool for queueFamily.
func (b *Backend) CreateQueryPool(queueFamily uint32, size uint32) (counters.PoolHandle, error) {
	return b.drv.CreateQueryPool(queueFamily, size)
}

// SetActiveSet acquires the configuration for sets[index] and atomically
// replaces the currently active set.
func (b *Backend) SetActiveSet(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.sets) {
		return counters.ErrUnknownSet
	}
	b.active = index
	return nil
}

// ActiveSet returns the index of the currently active metric set, or -1
// if none is active.
func (b *Backend) ActiveSet() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// QueueConfigure applies the active configuration to queue. No-op if no
// set is active yet.
func (b *Backend) QueueConfigure(queue uint64) error {
	b.mu.RLock()
	idx := b.active
	b.mu.RUnlock()

	if idx < 0 {
		return nil
	}
	return b.drv.ConfigureQueue(queue, idx)
}

// ReportSize returns the number of raw bytes one report for setIndex
// occupies: the sum of each metric's natural storage width.
func (b *Backend) ReportSize(setIndex int) (uint32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if setIndex < 0 || setIndex >= len(b.sets) {
		return 0, counters.ErrUnknownSet
	}
	var size uint32
	for _, m := range b.sets[setIndex].Metrics {
		size += storageWidth(m.Storage)
	}
	return size, nil
}

// ParseReport converts raw driver bytes for setIndex into typed, scaled
// results, applying each metric's unit factor in declaration order. Holds
// only the reader lock, so it never blocks behind a concurrent
// SetActiveSet beyond the time needed to snapshot the active set's
// metric list.
func (b *Backend) ParseReport(setIndex int, raw []byte) ([]counters.Value, error) {
	b.mu.RLock()
	if setIndex < 0 || setIndex >= len(b.sets) {
		b.mu.RUnlock()
		return nil, counters.ErrUnknownSet
	}
	metrics := append([]counters.MetricInfo(nil), b.sets[setIndex].Metrics...)
	b.mu.RUnlock()

	out := make([]counters.Value, len(metrics))
	off := 0
	for i, m := range metrics {
		w := int(storageWidth(m.Storage))
		if off+w > len(raw) {
			return out[:i], fmt.Errorf("counters/query: report truncated at metric %d (%s)", i, m.Name)
		}
		out[i] = decode(m, raw[off:off+w])
		off += w
	}
	return out, nil
}

// SupportsQueryPoolReuse reports whether the vendor driver permits pools
// created for one active set to keep working after a switch.
func (b *Backend) SupportsQueryPoolReuse() bool {
	return b.drv.SupportsQueryPoolReuse()
}

func storageWidth(t counters.StorageType) uint32 {
	switch t {
	case counters.StorageU32, counters.StorageF32:
		return 4
	case counters.StorageU64:
		return 8
	default:
		return 4
	}
}

func decode(m counters.MetricInfo, b []byte) counters.Value {
	scale := m.Unit.Scale()
	switch m.Storage {
	case counters.StorageU64:
		raw := binary.LittleEndian.Uint64(b)
		return counters.Value{Storage: counters.StorageU64, U64: uint64(float64(raw) * scale)}
	case counters.StorageF32:
		bits := binary.LittleEndian.Uint32(b)
		f := math.Float32frombits(bits)
		return counters.Value{Storage: counters.StorageF32, F32: float32(float64(f) * scale)}
	default: // StorageU32, and bool promoted to u32 by the caller
		raw := binary.LittleEndian.Uint32(b)
		return counters.Value{Storage: counters.StorageU32, U32: uint32(float64(raw) * scale)}
	}
}

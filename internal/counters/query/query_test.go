package query

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/lstalmir/VulkanProfiler-sub001/internal/counters"
)

type fakeDriver struct {
	sets        []counters.MetricSet
	discoverErr error
	reuse       bool
	configured  map[uint64]int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		sets: []counters.MetricSet{
			{Name: "default", Metrics: []counters.MetricInfo{
				{Name: "gpu_clock", Storage: counters.StorageU32, Unit: counters.UnitHertz},
				{Name: "busy_pct", Storage: counters.StorageF32, Unit: counters.UnitPercentage},
			}},
			{Name: "memory", Metrics: []counters.MetricInfo{
				{Name: "bytes_read", Storage: counters.StorageU64, Unit: counters.UnitGeneric},
			}},
		},
		configured: make(map[uint64]int),
	}
}

func (d *fakeDriver) DiscoverMetricSets() ([]counters.MetricSet, error) {
	return d.sets, d.discoverErr
}
func (d *fakeDriver) CreateQueryPool(queueFamily, size uint32) (counters.PoolHandle, error) {
	return counters.PoolHandle(1), nil
}
func (d *fakeDriver) ConfigureQueue(queue uint64, setIndex int) error {
	d.configured[queue] = setIndex
	return nil
}
func (d *fakeDriver) SupportsQueryPoolReuse() bool { return d.reuse }

func TestInitializeSelectsDefaultByName(t *testing.T) {
	b := New(newFakeDriver())
	if err := b.Initialize("memory"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if b.ActiveSet() != 1 {
		t.Fatalf("ActiveSet() = %d, want 1 (memory)", b.ActiveSet())
	}
}

func TestInitializeFallsBackToFirst(t *testing.T) {
	b := New(newFakeDriver())
	if err := b.Initialize("does-not-exist"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if b.ActiveSet() != 0 {
		t.Fatalf("ActiveSet() = %d, want 0", b.ActiveSet())
	}
}

func TestQueueConfigureNoopWithoutActiveSet(t *testing.T) {
	b := New(newFakeDriver())
	if err := b.QueueConfigure(7); err != nil {
		t.Fatalf("QueueConfigure() error = %v, want nil no-op", err)
	}
}

func TestParseReportDecodesAndScales(t *testing.T) {
	drv := newFakeDriver()
	b := New(drv)
	if err := b.Initialize("default"); err != nil {
		t.Fatal(err)
	}

	raw := make([]byte, 8)
	binary.LittleEndian.PutUint32(raw[0:4], 1500) // 1500 MHz -> *1e6 Hz
	binary.LittleEndian.PutUint32(raw[4:8], math.Float32bits(42.5))

	vals, err := b.ParseReport(0, raw)
	if err != nil {
		t.Fatalf("ParseReport() error = %v", err)
	}
	if len(vals) != 2 {
		t.Fatalf("len(vals) = %d, want 2", len(vals))
	}
	if vals[0].U32 != 1500*1_000_000 {
		t.Fatalf("gpu_clock = %d, want %d", vals[0].U32, uint32(1500*1_000_000))
	}
	if vals[1].F32 != 42.5 {
		t.Fatalf("busy_pct = %v, want 42.5 (percentage scale is 1x)", vals[1].F32)
	}
}

func TestParseReportTruncated(t *testing.T) {
	b := New(newFakeDriver())
	if err := b.Initialize("default"); err != nil {
		t.Fatal(err)
	}
	_, err := b.ParseReport(0, []byte{1, 2, 3})
	if err == nil {
		t.Fatal("ParseReport() expected error for truncated report")
	}
}

func TestParseReportUnknownSet(t *testing.T) {
	b := New(newFakeDriver())
	if _, err := b.ParseReport(99, nil); !errors.Is(err, counters.ErrUnknownSet) {
		t.Fatalf("ParseReport() error = %v, want ErrUnknownSet", err)
	}
}

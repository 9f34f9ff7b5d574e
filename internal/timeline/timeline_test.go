package timeline

import (
	"errors"
	"testing"
)

type fakeDriver struct {
	supported   []TimeDomain
	calibrate   func(d TimeDomain) (Timestamps, uint64, error)
	waitDevice  func(timeoutNs uint64) error
	waitQueue   func(q, timeoutNs uint64) error
	waitFence   func(f, timeoutNs uint64) error
	calibrateN  int
}

func (d *fakeDriver) SupportedDomains() []TimeDomain { return d.supported }

func (d *fakeDriver) CalibrateTimestamps(domain TimeDomain) (Timestamps, uint64, error) {
	d.calibrateN++
	return d.calibrate(domain)
}

func (d *fakeDriver) WaitDevice(timeoutNs uint64) error { return d.waitDevice(timeoutNs) }
func (d *fakeDriver) WaitQueue(q, timeoutNs uint64) error {
	return d.waitQueue(q, timeoutNs)
}
func (d *fakeDriver) WaitFence(f, timeoutNs uint64) error {
	return d.waitFence(f, timeoutNs)
}

func TestInitializePrefersMonotonicRaw(t *testing.T) {
	var chosen TimeDomain
	drv := &fakeDriver{
		supported: []TimeDomain{TimeDomainDevice, TimeDomainClockMonotonic, TimeDomainClockMonotonicRaw},
		calibrate: func(d TimeDomain) (Timestamps, uint64, error) {
			chosen = d
			return Timestamps{HostNs: 100, DeviceNs: 50}, 10, nil
		},
	}
	s := New(drv)
	if err := s.Initialize(false); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if chosen != TimeDomainClockMonotonicRaw {
		t.Fatalf("chosen domain = %v, want ClockMonotonicRaw", chosen)
	}
	if s.HostDomain() != TimeDomainClockMonotonicRaw {
		t.Fatalf("HostDomain() = %v", s.HostDomain())
	}
	ts := s.CreateTimestamps()
	if ts.HostNs != 100 || ts.DeviceNs != 50 {
		t.Fatalf("CreateTimestamps() = %+v", ts)
	}
}

func TestInitializeNoSupportedDomainReturnsErrUnavailable(t *testing.T) {
	drv := &fakeDriver{supported: nil}
	s := New(drv)
	if err := s.Initialize(false); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Initialize() error = %v, want ErrUnavailable", err)
	}
}

func TestInitializeCapturesCounterBaselineWhenRequested(t *testing.T) {
	drv := &fakeDriver{
		supported: []TimeDomain{TimeDomainDevice},
		calibrate: func(d TimeDomain) (Timestamps, uint64, error) {
			return Timestamps{HostNs: 1, DeviceNs: 2}, 0, nil
		},
	}
	s := New(drv)
	if err := s.Initialize(true); err != nil {
		t.Fatal(err)
	}
	if drv.calibrateN != 2 {
		t.Fatalf("calibrateN = %d, want 2 (t0 + counter t0)", drv.calibrateN)
	}
	ts, ok := s.CounterTimestamps()
	if !ok {
		t.Fatal("CounterTimestamps() ok = false, want true")
	}
	if ts.HostNs != 1 {
		t.Fatalf("CounterTimestamps() = %+v", ts)
	}
}

func TestSyncFailureReturnsZeroTimestamps(t *testing.T) {
	drv := &fakeDriver{
		supported: []TimeDomain{TimeDomainDevice},
		calibrate: func(d TimeDomain) (Timestamps, uint64, error) {
			return Timestamps{HostNs: 1, DeviceNs: 1}, 0, nil
		},
	}
	s := New(drv)
	if err := s.Initialize(false); err != nil {
		t.Fatal(err)
	}

	drv.calibrate = func(d TimeDomain) (Timestamps, uint64, error) {
		return Timestamps{}, 0, errors.New("fake: calibration API unavailable this frame")
	}
	ts := s.Sync()
	if !ts.IsZero() {
		t.Fatalf("Sync() = %+v, want zero value on failure", ts)
	}
}

func TestWaitFencePropagatesTimeout(t *testing.T) {
	drv := &fakeDriver{
		waitFence: func(f, timeoutNs uint64) error { return ErrTimeout },
	}
	s := New(drv)
	if err := s.WaitFence(1, 1000); !errors.Is(err, ErrTimeout) {
		t.Fatalf("WaitFence() error = %v, want ErrTimeout", err)
	}
}

func TestWaitDeviceAndQueueDelegate(t *testing.T) {
	var gotTimeout uint64
	var gotQueue uint64
	drv := &fakeDriver{
		waitDevice: func(timeoutNs uint64) error { gotTimeout = timeoutNs; return nil },
		waitQueue: func(q, timeoutNs uint64) error {
			gotQueue = q
			return nil
		},
	}
	s := New(drv)
	if err := s.WaitDevice(5000); err != nil {
		t.Fatal(err)
	}
	if gotTimeout != 5000 {
		t.Fatalf("WaitDevice timeout = %d, want 5000", gotTimeout)
	}
	if err := s.WaitQueue(42, 1000); err != nil {
		t.Fatal(err)
	}
	if gotQueue != 42 {
		t.Fatalf("WaitQueue queue = %d, want 42", gotQueue)
	}
}

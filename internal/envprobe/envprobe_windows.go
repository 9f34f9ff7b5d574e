//go:build windows

package envprobe

import (
	"golang.org/x/sys/windows/registry"
)

// windowsProbe reads the GPU scheduler's preemption granularity and the
// stable-power-state entitlement from the same registry area the
// Windows display driver publishes its scheduling policy under.
type windowsProbe struct{}

var platformProbe Prober = windowsProbe{}

const gpuSchedulerKeyPath = `SYSTEM\CurrentControlSet\Control\GraphicsDrivers\Scheduler`

func (windowsProbe) PreemptionGranularity() (PreemptionGranularity, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, gpuSchedulerKeyPath, registry.QUERY_VALUE)
	if err != nil {
		return GranularityUnknown, ErrUnsupported
	}
	defer key.Close()

	v, _, err := key.GetIntegerValue("PreemptionGranularity")
	if err != nil {
		return GranularityUnknown, ErrUnsupported
	}
	if v > uint64(GranularityInstructionBoundary) {
		return GranularityUnknown, nil
	}
	return PreemptionGranularity(v), nil
}

func (windowsProbe) SetStableClock(enabled bool) error {
	key, _, err := registry.CreateKey(registry.CURRENT_USER, gpuSchedulerKeyPath, registry.SET_VALUE)
	if err != nil {
		return ErrUnsupported
	}
	defer key.Close()

	var v uint32
	if enabled {
		v = 1
	}
	if err := key.SetDWordValue("StableGpuClock", v); err != nil {
		return ErrUnsupported
	}
	return nil
}

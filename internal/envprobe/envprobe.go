// Package envprobe implements the spec's optional environment-interaction
// surface: best-effort probing of GPU preemption granularity and the
// stable-power-state entitlement toggle. Neither is required for the
// engine to function — per spec.md §6, "the engine may probe... neither
// is required" — so every probe here degrades to ErrUnsupported rather
// than failing engine initialization.
//
// Grounded on the teacher's hal/dx12/device.go, the corpus's only
// consumer of golang.org/x/sys for OS-specific queries (there it is
// windows.CreateEvent/WaitForSingleObject for fence waits; here it is
// registry/affinity queries instead, same dependency, different call).
package envprobe

import "errors"

// ErrUnsupported is returned by every probe on a platform, or build,
// where the underlying OS facility does not exist or was not compiled
// in.
var ErrUnsupported = errors.New("envprobe: unsupported on this platform")

// PreemptionGranularity mirrors the Windows GPU scheduler's
// D3DKMDT_GPU_PREEMPTION_GRANULARITY enumeration ordering; non-Windows
// platforms never produce anything but GranularityUnknown.
type PreemptionGranularity uint8

const (
	GranularityUnknown PreemptionGranularity = iota
	GranularityDMABufferBoundary
	GranularityPrimitiveBoundary
	GranularityTriangleBoundary
	GranularityPixelBoundary
	GranularityInstructionBoundary
)

// Prober is the platform-specific surface; QueryPreemptionGranularity
// and SetStableClock below delegate to the build-tag-selected
// implementation (envprobe_windows.go / envprobe_unix.go).
type Prober interface {
	PreemptionGranularity() (PreemptionGranularity, error)
	SetStableClock(enabled bool) error
}

// QueryPreemptionGranularity reports the coarsest boundary at which the
// OS GPU scheduler may preempt a submitted command buffer, when the
// platform exposes one.
func QueryPreemptionGranularity() (PreemptionGranularity, error) {
	return platformProbe.PreemptionGranularity()
}

// SetStableClock requests (or releases) a stable GPU clock entitlement
// from the OS, so sampled durations are not skewed by dynamic frequency
// scaling. Best-effort: a request that the OS denies is not an engine
// error, callers should log and continue profiling at the variable
// clock rate.
func SetStableClock(enabled bool) error {
	return platformProbe.SetStableClock(enabled)
}

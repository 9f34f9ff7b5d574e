//go:build !windows

package envprobe

import "golang.org/x/sys/unix"

// unixProbe has no standard preemption-granularity or stable-clock
// facility to query across the unix targets this module builds for; it
// exists so the package still compiles and links against
// golang.org/x/sys/unix on non-Windows platforms, matching the
// dependency's presence in the corpus rather than gating it behind a
// Windows-only build tag.
type unixProbe struct{}

var platformProbe Prober = unixProbe{}

func (unixProbe) PreemptionGranularity() (PreemptionGranularity, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return GranularityUnknown, ErrUnsupported
	}
	return GranularityUnknown, ErrUnsupported
}

func (unixProbe) SetStableClock(enabled bool) error {
	return ErrUnsupported
}

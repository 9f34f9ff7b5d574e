// Package counters implements component C of the profiling engine: the
// vendor performance-counter subsystem.
//
// The query and streaming variants are two separate concrete types
// rather than a class hierarchy. They implement no common Go interface
// and expose different method sets. Metric metadata and result types
// live here so both variants (internal/counters/query,
// internal/counters/stream) agree on their shape without importing each
// other.
package counters

import "fmt"

// StorageType is the typed representation a parsed counter value is
// stored as. Strings are rejected at discovery per spec; bool promotes to
// U32 before it ever reaches a Value.
type StorageType uint8

// Storage types.
const (
	StorageU32 StorageType = iota
	StorageU64
	StorageF32
)

// Unit identifies the physical unit a metric is reported in.
type Unit uint8

// Units.
const (
	UnitGeneric Unit = iota
	UnitPercentage
	UnitNanoseconds
	UnitHertz
	UnitCycles
)

// Scale returns the multiplier applied to a raw driver value to bring it
// to the unit's base representation (e.g. MHz -> Hz ×1e6). Units the
// engine does not recognize fall back to generic ×1, per spec.
func (u Unit) Scale() float64 {
	switch u {
	case UnitHertz:
		return 1e6 // driver reports counter clocks in MHz
	case UnitNanoseconds, UnitPercentage, UnitCycles, UnitGeneric:
		return 1
	default:
		return 1
	}
}

// ParseUnit maps a vendor unit string to a Unit, falling back to
// UnitGeneric for anything unrecognized.
func ParseUnit(s string) Unit {
	switch s {
	case "percentage", "percent", "%":
		return UnitPercentage
	case "ns", "nanoseconds":
		return UnitNanoseconds
	case "hz", "Hz", "MHz", "mhz":
		return UnitHertz
	case "cycles":
		return UnitCycles
	default:
		return UnitGeneric
	}
}

// MetricInfo is the metadata the backend exposes for one counter.
type MetricInfo struct {
	Name        string
	Category    string
	Description string
	Storage     StorageType
	Unit        Unit
	UUID        [16]byte
}

// MetricSet is a vendor-defined group of metrics readable together.
type MetricSet struct {
	Name    string
	Metrics []MetricInfo
}

// Value is a single typed, scaled counter result.
type Value struct {
	Storage StorageType
	U32     uint32
	U64     uint64
	F32     float32
}

// Float returns the value as a float64 regardless of its storage type, for
// callers that just want a number (e.g. the overlay/export layer).
func (v Value) Float() float64 {
	switch v.Storage {
	case StorageU32:
		return float64(v.U32)
	case StorageU64:
		return float64(v.U64)
	case StorageF32:
		return float64(v.F32)
	default:
		return 0
	}
}

// PoolHandle is the backend-defined handle for a performance-query pool.
type PoolHandle uint64

// ErrNoActiveSet is returned by operations that require an active metric
// set when none has been selected yet.
var ErrNoActiveSet = fmt.Errorf("counters: no active metric set")

// ErrUnknownSet is returned when a metric-set index is out of range.
var ErrUnknownSet = fmt.Errorf("counters: unknown metric set index")

// Package config implements the engine's layered configuration: built-in
// defaults, overridden by a host-supplied Config struct (itself typically
// parsed by the host from an on-disk config file — this package never
// touches a file directly), overridden in turn by Options passed at
// engine creation, with environment variables (VKPROF_*) applied last
// and winning over everything.
//
// Grounded on the teacher's typed descriptor idiom (descriptor.go's
// BufferDescriptor/TextureDescriptor/... — plain structs with documented
// zero-value behavior, never maps), generalized here to a layered merge
// instead of a single literal.
package config

import (
	"os"
	"strconv"
	"strings"
)

// SamplingMode selects when timestamp queries are emitted around GPU
// work, per spec §3/§4.F.
type SamplingMode string

const (
	SamplingPerDrawcall   SamplingMode = "per_drawcall"
	SamplingPerPipeline   SamplingMode = "per_pipeline"
	SamplingPerRenderPass SamplingMode = "per_render_pass"
	SamplingPerFrame      SamplingMode = "per_frame"
)

// FrameDelimiter selects which event closes a frame, per spec §4.I.
type FrameDelimiter string

const (
	DelimiterPresent FrameDelimiter = "present"
	DelimiterSubmit  FrameDelimiter = "submit"
)

// PerformanceQueryExtension selects which vendor performance-counter
// extension family the engine should prefer, per spec §4.C.
type PerformanceQueryExtension string

const (
	PerformanceQueryOff   PerformanceQueryExtension = "off"
	PerformanceQueryIntel PerformanceQueryExtension = "intel"
	PerformanceQueryKHR   PerformanceQueryExtension = "khr"
)

// Config is the engine's full set of tunables. Zero value is meaningless
// on its own — always obtain one via Default() or Layer(), never a bare
// literal, so every field gets its documented default.
type Config struct {
	SamplingMode                          SamplingMode
	FrameDelimiter                        FrameDelimiter
	EnablePerformanceQueryExt              PerformanceQueryExtension
	EnablePipelineExecutablePropertiesExt bool
	EnableMemoryProfiling                 bool
	EnableRenderPassBeginEndProfiling      bool
	SetStablePowerState                   bool
	EnableThreading                       bool
	DataBufferSize                        uint32
	MinDataBufferSize                     uint32
	DefaultMetricsSet                     string
}

// Default returns the engine's compiled-in defaults.
func Default() Config {
	return Config{
		SamplingMode:               SamplingPerDrawcall,
		FrameDelimiter:             DelimiterPresent,
		EnablePerformanceQueryExt:  PerformanceQueryOff,
		EnableMemoryProfiling:      true,
		DataBufferSize:             1,
		MinDataBufferSize:          1,
	}
}

// Option mutates a Config in place; WithX helpers below return Options so
// callers can pass a variadic list to Layer without constructing an
// intermediate Config of their own.
type Option func(*Config)

func WithSamplingMode(m SamplingMode) Option       { return func(c *Config) { c.SamplingMode = m } }
func WithFrameDelimiter(d FrameDelimiter) Option    { return func(c *Config) { c.FrameDelimiter = d } }
func WithMemoryProfiling(enabled bool) Option       { return func(c *Config) { c.EnableMemoryProfiling = enabled } }
func WithThreading(enabled bool) Option             { return func(c *Config) { c.EnableThreading = enabled } }
func WithDataBufferSize(n uint32) Option            { return func(c *Config) { c.DataBufferSize = n } }

// Layer applies, in order: compiled-in defaults, fileConfig (the zero
// value if the host has no config file), opts, then VKPROF_* environment
// variables — each later layer overriding only the fields it sets.
func Layer(fileConfig *Config, opts ...Option) Config {
	c := Default()
	if fileConfig != nil {
		mergeNonZero(&c, fileConfig)
	}
	for _, opt := range opts {
		opt(&c)
	}
	applyEnv(&c)
	if c.MinDataBufferSize == 0 {
		c.MinDataBufferSize = 1
	}
	if c.DataBufferSize < c.MinDataBufferSize {
		c.DataBufferSize = c.MinDataBufferSize
	}
	return c
}

// mergeNonZero copies every non-zero-valued field of src into dst. A
// host-supplied partial Config (e.g. parsed from a config file that only
// names a few keys) should not stomp defaults for the keys it left unset.
func mergeNonZero(dst, src *Config) {
	if src.SamplingMode != "" {
		dst.SamplingMode = src.SamplingMode
	}
	if src.FrameDelimiter != "" {
		dst.FrameDelimiter = src.FrameDelimiter
	}
	if src.EnablePerformanceQueryExt != "" {
		dst.EnablePerformanceQueryExt = src.EnablePerformanceQueryExt
	}
	if src.EnablePipelineExecutablePropertiesExt {
		dst.EnablePipelineExecutablePropertiesExt = true
	}
	// A plain bool cannot distinguish "unset" from "explicitly false",
	// so bool fields are copied only when true. EnableMemoryProfiling
	// defaults true, so a file Config cannot turn it off; only
	// WithMemoryProfiling(false) or VKPROF_ENABLE_MEMORY_PROFILING can.
	if src.EnableRenderPassBeginEndProfiling {
		dst.EnableRenderPassBeginEndProfiling = true
	}
	if src.SetStablePowerState {
		dst.SetStablePowerState = true
	}
	if src.EnableThreading {
		dst.EnableThreading = true
	}
	if src.DataBufferSize != 0 {
		dst.DataBufferSize = src.DataBufferSize
	}
	if src.MinDataBufferSize != 0 {
		dst.MinDataBufferSize = src.MinDataBufferSize
	}
	if src.DefaultMetricsSet != "" {
		dst.DefaultMetricsSet = src.DefaultMetricsSet
	}
}

// envPrefix is the variable prefix every engine environment override
// shares, matching the teacher's VulkanProfiler lineage naming.
const envPrefix = "VKPROF_"

func applyEnv(c *Config) {
	if v, ok := lookupEnv("SAMPLING_MODE"); ok {
		c.SamplingMode = SamplingMode(v)
	}
	if v, ok := lookupEnv("FRAME_DELIMITER"); ok {
		c.FrameDelimiter = FrameDelimiter(v)
	}
	if v, ok := lookupEnv("ENABLE_PERFORMANCE_QUERY_EXT"); ok {
		c.EnablePerformanceQueryExt = PerformanceQueryExtension(v)
	}
	if v, ok := lookupEnvBool("ENABLE_PIPELINE_EXECUTABLE_PROPERTIES_EXT"); ok {
		c.EnablePipelineExecutablePropertiesExt = v
	}
	if v, ok := lookupEnvBool("ENABLE_MEMORY_PROFILING"); ok {
		c.EnableMemoryProfiling = v
	}
	if v, ok := lookupEnvBool("ENABLE_RENDER_PASS_BEGIN_END_PROFILING"); ok {
		c.EnableRenderPassBeginEndProfiling = v
	}
	if v, ok := lookupEnvBool("SET_STABLE_POWER_STATE"); ok {
		c.SetStablePowerState = v
	}
	if v, ok := lookupEnvBool("ENABLE_THREADING"); ok {
		c.EnableThreading = v
	}
	if v, ok := lookupEnvUint("DATA_BUFFER_SIZE"); ok {
		c.DataBufferSize = v
	}
	if v, ok := lookupEnvUint("MIN_DATA_BUFFER_SIZE"); ok {
		c.MinDataBufferSize = v
	}
	if v, ok := lookupEnv("DEFAULT_METRICS_SET"); ok {
		c.DefaultMetricsSet = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func lookupEnvBool(key string) (bool, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func lookupEnvUint(key string) (uint32, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

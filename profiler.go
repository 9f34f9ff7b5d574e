// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package profiler is the profiling engine's public facade (component J).
// It is the single owner of components A through I (internal/registry,
// internal/query, internal/counters, internal/timeline, internal/memtrack,
// internal/shadow, internal/catalog, internal/submit, internal/aggregator)
// and is the only package an interception layer needs to import: every
// observed graphics-API event is routed through one of the methods here.
//
// Grounded on the teacher's core/hub.go (Hub composing one Registry per
// resource type behind a single owning struct), deliberately WITHOUT
// core/global.go's sync.Once singleton — this engine is a per-device
// owned object, constructed once per device by the interception layer and
// torn down with it, never a package-level global.
package profiler

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lstalmir/VulkanProfiler-sub001/internal/aggregator"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/catalog"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/config"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/counters"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/ids"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/memtrack"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/query"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/registry"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/shadow"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/submit"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/timeline"
)

// topPipelineCount bounds the per-frame top-pipelines breakdown, matching
// the source overlay's fixed-size histogram.
const topPipelineCount = 10

// streamLogger is satisfied by internal/counters/stream.Backend. Checked
// via a type assertion, rather than importing that package directly, since
// CounterSource is backend-agnostic and the query-mode backend has no
// logger to wire.
type streamLogger interface {
	SetLogger(l *slog.Logger)
}

// CounterSource lets the interception layer wire in whichever counter
// backend (internal/counters/query or internal/counters/stream) it
// configured, without the facade needing to know which one is active.
// Collect is called once per resolved frame.
type CounterSource interface {
	Collect(batches []submit.Batch) []counters.Value
}

// Drivers bundles every backend contract the facade's owned components
// need. The interception layer supplies real implementations; tests
// supply fakes.
type Drivers struct {
	Query    query.Device
	Timeline timeline.Driver
	Budget   memtrack.BudgetSource
	Naga     catalog.NagaReflector // nil uses catalog.NewNagaReflector()
	Counters CounterSource         // nil: frames carry no counter values

	// HostClock and ThreadID let the interception layer supply the real
	// wall clock and OS thread id a submit is observed on; nil uses
	// defaultNowNs / defaultThreadID.
	HostClock func() uint64
	ThreadID  func() uint64
}

// Profiler is the profiling engine facade.
type Profiler struct {
	cfgMu sync.Mutex
	cfg   config.Config

	objects  *registry.Registry
	catalog  *catalog.Catalog
	memory   *memtrack.Tracker
	sync     *timeline.Synchronizer
	agg      *aggregator.Aggregator
	recorder *submit.Recorder
	counters CounterSource

	queryDev query.Device
	internal internalPipelineTable

	cbMu     sync.Mutex
	pools    map[ids.Identity]*query.Pool
	shadows  map[ids.Identity]*shadow.Buffer
	dirty    map[ids.Identity]bool
	cmdPools map[ids.Identity][]ids.Identity
	cbOwner  map[ids.Identity]commandBufferOwner

	lastFrameHostNs atomic.Uint64
}

// New creates a Profiler. fileConfig is the host's parsed config file
// (nil if none), opts layer on top of it, and VKPROF_* environment
// variables are applied last — see internal/config.Layer.
func New(drv Drivers, fileConfig *config.Config, opts ...config.Option) *Profiler {
	naga := drv.Naga
	if naga == nil {
		naga = catalog.NewNagaReflector()
	}

	cfg := config.Layer(fileConfig, opts...)

	p := &Profiler{
		cfg:      cfg,
		objects:  registry.New(),
		catalog:  catalog.New(naga),
		memory:   memtrack.New(func() bool { return cfg.EnableMemoryProfiling }, drv.Budget),
		sync:     timeline.New(drv.Timeline),
		counters: drv.Counters,
		queryDev: drv.Query,
		pools:    make(map[ids.Identity]*query.Pool),
		shadows:  make(map[ids.Identity]*shadow.Buffer),
		dirty:    make(map[ids.Identity]bool),
		cmdPools: make(map[ids.Identity][]ids.Identity),
		cbOwner:  make(map[ids.Identity]commandBufferOwner),
	}
	hostClock := drv.HostClock
	if hostClock == nil {
		hostClock = defaultNowNs
	}
	threadIDFn := drv.ThreadID
	if threadIDFn == nil {
		threadIDFn = defaultThreadID
	}
	p.recorder = submit.New(p.objects.RLocker(), p, hostClock, threadIDFn)
	p.agg = aggregator.New(p, cfg.EnableThreading)
	p.agg.SetLogger(Logger())
	if streaming, ok := drv.Counters.(streamLogger); ok {
		streaming.SetLogger(Logger())
	}

	hasStreaming := false // the query-mode backend never needs counter calibration
	if err := p.sync.Initialize(hasStreaming); err != nil {
		Logger().Warn("profiler: timeline calibration unavailable", "error", err)
	}

	return p
}

// Close stops the background aggregation worker (if any), flushing one
// final frame first, per spec's engine-destruction cancellation path.
func (p *Profiler) Close() {
	p.agg.Close()
}

// MarkDirty implements submit.DirtyMarker: a command buffer consumed by a
// submission must be re-Begin'd before it is recorded into again.
func (p *Profiler) MarkDirty(id ids.Identity) {
	p.cbMu.Lock()
	p.dirty[id] = true
	p.cbMu.Unlock()
}

// --- configuration -----------------------------------------------------

func (p *Profiler) withConfig(f func(*config.Config)) {
	p.cfgMu.Lock()
	defer p.cfgMu.Unlock()
	f(&p.cfg)
}

// SetSamplingMode updates the timestamp-query granularity applied to
// newly-begun command buffers; already-recording buffers keep the mode
// they started with. Fails with ErrInvalidConfig for an unrecognized mode.
func (p *Profiler) SetSamplingMode(mode config.SamplingMode) error {
	switch mode {
	case config.SamplingPerDrawcall, config.SamplingPerPipeline, config.SamplingPerRenderPass, config.SamplingPerFrame:
	default:
		return ErrInvalidConfig
	}
	p.withConfig(func(c *config.Config) { c.SamplingMode = mode })
	return nil
}

// SetFrameDelimiter selects whether frames close on present or submit
// events.
func (p *Profiler) SetFrameDelimiter(d config.FrameDelimiter) {
	p.withConfig(func(c *config.Config) { c.FrameDelimiter = d })
}

// SetDataBufferSize resizes the resolved-frame buffer. Fails with
// ErrInvalidConfig for a zero size.
func (p *Profiler) SetDataBufferSize(n uint32) error {
	if n == 0 {
		return ErrInvalidConfig
	}
	p.withConfig(func(c *config.Config) { c.DataBufferSize = n })
	p.agg.SetDataBufferSize(int(n))
	return nil
}

// SetMinDataBufferSize sets the floor SetDataBufferSize clamps to. Fails
// with ErrInvalidConfig for a zero size.
func (p *Profiler) SetMinDataBufferSize(n uint32) error {
	if n == 0 {
		return ErrInvalidConfig
	}
	p.withConfig(func(c *config.Config) { c.MinDataBufferSize = n })
	p.agg.SetMinDataBufferSize(int(n))
	return nil
}

// SetActiveMetricsSet is the facade-level hook for `set_active_metrics_set`;
// the actual set switch happens on whichever CounterSource the host wired
// in, since query-mode and streaming-mode backends expose it differently.
func (p *Profiler) SetActiveMetricsSet(setter func() error) error {
	if setter == nil {
		return nil
	}
	return setter()
}

// Config returns a snapshot of the current configuration.
func (p *Profiler) Config() config.Config {
	p.cfgMu.Lock()
	defer p.cfgMu.Unlock()
	return p.cfg
}

func (p *Profiler) frameDelimiter() config.FrameDelimiter {
	p.cfgMu.Lock()
	defer p.cfgMu.Unlock()
	return p.cfg.FrameDelimiter
}

// DeviceExtensionRequirements realizes `setup_device_create_info`: the
// extension names the host must chain into device creation for the
// currently configured feature set.
//
// Grounded on the teacher's hal.Backend capability-negotiation helpers
// (features/limits declared up front, before device creation).
func DeviceExtensionRequirements(cfg config.Config) []string {
	var exts []string
	switch cfg.EnablePerformanceQueryExt {
	case config.PerformanceQueryIntel:
		exts = append(exts, "VK_INTEL_performance_query")
	case config.PerformanceQueryKHR:
		exts = append(exts, "VK_KHR_performance_query")
	}
	if cfg.EnablePipelineExecutablePropertiesExt {
		exts = append(exts, "VK_KHR_pipeline_executable_properties")
	}
	return exts
}

// --- frame polling -------------------------------------------------------

// PollFrame returns the next resolved frame, if one is buffered.
func (p *Profiler) PollFrame() (aggregator.FrameRecord, bool) {
	return p.agg.Get()
}

// --- metadata enumeration ------------------------------------------------

// ObjectName returns the debug name registered for raw, if any.
func (p *Profiler) ObjectName(kind ids.Kind, raw uint64) (string, bool) {
	return p.objects.Name(kind, raw)
}

// SetObjectName stores a debug-label event's name against id.
func (p *Profiler) SetObjectName(kind ids.Kind, id ids.Identity, name string) {
	p.objects.SetName(kind, id, name)
}

// internalPipelineTable implements shadow.InternalPipelines: every
// drawcall kind that performs GPU work with no application-bound
// pipeline gets one stable synthetic identity, keyed by kind, per spec
// ("their hash key is the drawcall type").
type internalPipelineTable struct{}

func (internalPipelineTable) IdentityFor(kind shadow.CommandKind) ids.Identity {
	// Created stays zero: these are not real objects and never collide
	// with a registry-issued identity, whose Created is always >= 1.
	return ids.Identity{Raw: 1<<63 | uint64(kind), Created: 0}
}

// --- aggregator.Resolver --------------------------------------------------

// Resolve implements aggregator.Resolver: it reads back every shadow
// command buffer referenced by the displaced frame's submit batches,
// folds the results into a top-N pipeline breakdown, and attaches the
// memory and counter snapshots current at the frame boundary.
func (p *Profiler) Resolve(frameIndex uint64, delimiter aggregator.FrameDelimiterKind, batches []submit.Batch) aggregator.FrameRecord {
	ts := p.sync.Sync()
	now := ts.HostNs
	prev := p.lastFrameHostNs.Swap(now)

	var fps float64
	if prev != 0 && now > prev {
		fps = 1e9 / float64(now-prev)
	}

	stats := make(map[ids.Identity]*aggregator.PipelineStat)
	unmeasured := false

	resolvedBatches := make([]aggregator.ResolvedBatch, len(batches))
	for bi, batch := range batches {
		resolvedSubmits := make([]aggregator.ResolvedSubmit, len(batch.Submits))
		for si, info := range batch.Submits {
			cbs := make([]aggregator.ResolvedCommandBuffer, len(info.CommandBuffers))
			for ci, cbID := range info.CommandBuffers {
				p.cbMu.Lock()
				buf := p.shadows[cbID]
				p.cbMu.Unlock()
				if buf == nil {
					unmeasured = true
					cbs[ci] = aggregator.ResolvedCommandBuffer{CommandBuffer: cbID, Unmeasured: true}
					continue
				}
				data := buf.Data()
				accumulatePipelineStats(data.Nodes, stats, &unmeasured)
				cbUnmeasured := treeUnmeasured(data.Nodes)
				cbs[ci] = aggregator.ResolvedCommandBuffer{
					CommandBuffer: cbID,
					Tree:          data.Nodes,
					Unmeasured:    cbUnmeasured,
				}
			}
			resolvedSubmits[si] = aggregator.ResolvedSubmit{
				CommandBuffers:   cbs,
				WaitSemaphores:   info.WaitSemaphores,
				SignalSemaphores: info.SignalSemaphores,
			}
		}
		resolvedBatches[bi] = aggregator.ResolvedBatch{
			Queue:           batch.Queue,
			Kind:            batch.Kind,
			Submits:         resolvedSubmits,
			HostTimestampNs: batch.HostTimestampNs,
			ThreadID:        batch.ThreadID,
		}
	}

	record := aggregator.FrameRecord{
		HostTimestampNs:    now,
		FPS:                fps,
		CalibratedHostNs:   ts.HostNs,
		CalibratedDeviceNs: ts.DeviceNs,
		SubmitBatches:      resolvedBatches,
		TopPipelines:       topPipelines(stats, topPipelineCount),
		Unmeasured:         unmeasured,
	}
	if p.memory != nil {
		record.Memory = p.memory.MemoryData()
	}
	if p.counters != nil {
		record.Counters = p.counters.Collect(batches)
	}
	return record
}

func accumulatePipelineStats(nodes []shadow.ResolvedNode, stats map[ids.Identity]*aggregator.PipelineStat, unmeasured *bool) {
	for _, n := range nodes {
		if n.Unmeasured {
			*unmeasured = true
		}
		if !n.PipelineID.IsZero() && n.EndTicks >= n.BeginTicks {
			s := stats[n.PipelineID]
			if s == nil {
				s = &aggregator.PipelineStat{PipelineID: n.PipelineID}
				stats[n.PipelineID] = s
			}
			s.TotalTicks += n.EndTicks - n.BeginTicks
			s.Invocations++
		}
		accumulatePipelineStats(n.Children, stats, unmeasured)
	}
}

// treeUnmeasured reports whether any node in a resolved command buffer's
// tree failed to produce a timestamp.
func treeUnmeasured(nodes []shadow.ResolvedNode) bool {
	for _, n := range nodes {
		if n.Unmeasured || treeUnmeasured(n.Children) {
			return true
		}
	}
	return false
}

func topPipelines(stats map[ids.Identity]*aggregator.PipelineStat, n int) []aggregator.PipelineStat {
	out := make([]aggregator.PipelineStat, 0, len(stats))
	for _, s := range stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalTicks > out[j].TotalTicks })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// defaultNowNs is the host clock used when the interception layer does
// not supply one via Drivers.HostClock: wall-clock nanoseconds since the
// Unix epoch, which is all the submit recorder needs (ordering submits
// and computing inter-frame deltas), not an absolute time authority.
func defaultNowNs() uint64 {
	return uint64(time.Now().UnixNano())
}

// samplingModeFrom maps the public config.SamplingMode onto
// internal/shadow's own enumeration, so internal/shadow does not need to
// depend on internal/config.
func samplingModeFrom(m config.SamplingMode) shadow.SamplingMode {
	switch m {
	case config.SamplingPerPipeline:
		return shadow.SamplingPerPipeline
	case config.SamplingPerRenderPass:
		return shadow.SamplingPerRenderPass
	case config.SamplingPerFrame:
		return shadow.SamplingPerFrame
	default:
		return shadow.SamplingPerDrawcall
	}
}

// defaultThreadID has no portable meaning in pure Go (goroutines are not
// OS threads); it returns the constant 0 unless the interception layer
// supplies a real OS thread id via Drivers.ThreadID, since only it knows
// which native thread called into the engine.
func defaultThreadID() uint64 {
	return 0
}

// Package catalog implements component G: pipeline, render-pass, and
// shader module metadata bookkeeping, including stage/shader
// fingerprinting used to key aggregated pipeline statistics.
//
// Grounded on the teacher's hal/vulkan/pipeline.go (shader stage
// assembly: each stage carries a module and entry point, mirrored here
// by StageInfo) and hal/vulkan/renderpass.go (RenderPassCache's
// key-by-configuration idiom, mirrored by the subpass/clear counting in
// RegisterRenderPass). Shader fingerprinting uses hash/fnv (32-bit
// FNV-1a) over module bytecode — a stdlib choice, justified in the
// design ledger: hashing raw bytes is exactly what hash/fnv is for, and
// no example repo reaches for a third-party hasher for this job.
package catalog

import (
	"hash/fnv"
	"sync"

	"github.com/lstalmir/VulkanProfiler-sub001/internal/ids"
)

// PipelineKind classifies a pipeline's bind point.
type PipelineKind uint8

const (
	PipelineGraphics PipelineKind = iota
	PipelineCompute
	PipelineRayTracing
)

// ShaderStage identifies one shader stage's role within a pipeline.
type ShaderStage uint8

const (
	StageVertex ShaderStage = iota
	StageFragment
	StageCompute
	StageRaygen
	StageMiss
	StageClosestHit
	StageAnyHit
	StageIntersection
	StageCallable
)

// StageInfo is one pipeline stage's (stage, entrypoint, module)
// assignment, per spec.
type StageInfo struct {
	Stage      ShaderStage
	EntryPoint string
	Module     ids.Identity
}

// ShaderModuleInfo is catalog metadata for one shader module.
type ShaderModuleInfo struct {
	ID            ids.Identity
	Fingerprint   uint32
	DriverUUID    [16]byte
	HasDriverUUID bool

	// EntryPoints is populated by best-effort WGSL reflection (see
	// naga.go) when the interception layer supplies WGSL source instead
	// of opaque bytecode. Empty for binary SPIR-V.
	EntryPoints []ReflectedEntryPoint
}

// ReflectedEntryPoint is one shader entry point discovered via naga
// reflection.
type ReflectedEntryPoint struct {
	Name  string
	Stage ShaderStage
}

// fingerprint32 computes the 32-bit FNV-1a fingerprint of name, per
// spec's entry-point fingerprinting step.
func fingerprint32(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}

// fingerprintBytes computes the 32-bit FNV-1a fingerprint of raw
// bytecode, merged with a driver-supplied identifier when present.
func fingerprintBytes(code []byte, uuid [16]byte, hasUUID bool) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(code)
	fp := h.Sum32()
	if hasUUID {
		h2 := fnv.New32a()
		_, _ = h2.Write(uuid[:])
		fp ^= h2.Sum32()
	}
	return fp
}

// RayTracingShaderGroupMaxima are the per-role maximum stack sizes a
// ray-tracing pipeline's shader groups report, used to compute the
// default pipeline stack size.
type RayTracingShaderGroupMaxima struct {
	RaygenMax       uint32
	ClosestHitMax   uint32
	MissMax         uint32
	IntersectionMax uint32
	AnyHitMax       uint32
	CallableMax     uint32
	MaxRecursionDepth uint32
}

// DefaultStackSize computes the pipeline's default ray-tracing stack
// size, per spec's formula:
//
//	raygen_max + d*max(max(closest_hit, miss)_max, intersection_max + any_hit_max)
//	  + (d-1)*max(closest_hit, miss)_max + 2*callable_max
//
// where d = max(1, max_ray_recursion_depth).
func (m RayTracingShaderGroupMaxima) DefaultStackSize() uint32 {
	d := m.MaxRecursionDepth
	if d < 1 {
		d = 1
	}
	chOrMiss := max32(m.ClosestHitMax, m.MissMax)
	hitGroup := max32(chOrMiss, m.IntersectionMax+m.AnyHitMax)
	return m.RaygenMax + d*hitGroup + (d-1)*chOrMiss + 2*m.CallableMax
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// PipelineInfo is catalog metadata for one pipeline.
type PipelineInfo struct {
	ID          ids.Identity
	Kind        PipelineKind
	Stages      []StageInfo
	Hash        uint32
	StackSize   uint32 // ray-tracing pipelines only
	Executables []ExecutableInfo
}

// ExecutableInfo captures one pipeline-executable's properties and
// optional internal representations, when the
// enable_pipeline_executable_properties_ext feature is on.
type ExecutableInfo struct {
	Name                   string
	Description            string
	SubgroupSize           uint32
	InternalRepresentations [][]byte
}

// RenderPassInfo is catalog metadata for one render pass.
type RenderPassInfo struct {
	ID                 ids.Identity
	SubpassCount       int
	ResolveCount       int // includes depth/stencil resolve; independent depth+stencil resolves count as two
	ColorClearCount    int
	DepthStencilClears int // both aspects clearing on one attachment still counts once
}

// Catalog is the component G store: pipelines, render passes, and shader
// modules, each reader/writer-lock-guarded per spec's registry model.
type Catalog struct {
	naga NagaReflector // nil if naga enrichment is unavailable

	mu        sync.RWMutex
	pipelines map[ids.Identity]PipelineInfo
	passes    map[ids.Identity]RenderPassInfo
	shaders   map[ids.Identity]ShaderModuleInfo
}

// New creates an empty Catalog. naga may be nil to disable WGSL
// reflection enrichment entirely.
func New(naga NagaReflector) *Catalog {
	return &Catalog{
		naga:      naga,
		pipelines: make(map[ids.Identity]PipelineInfo),
		passes:    make(map[ids.Identity]RenderPassInfo),
		shaders:   make(map[ids.Identity]ShaderModuleInfo),
	}
}

// ShaderSource is what the interception layer supplies for one shader
// module: either opaque bytecode (SPIR-V) or WGSL text, never both.
type ShaderSource struct {
	Bytecode   []byte
	WGSL       string
	DriverUUID [16]byte
	HasUUID    bool
}

// RegisterShaderModule fingerprints and catalogs a shader module.
func (c *Catalog) RegisterShaderModule(id ids.Identity, src ShaderSource) ShaderModuleInfo {
	info := ShaderModuleInfo{ID: id, DriverUUID: src.DriverUUID, HasDriverUUID: src.HasUUID}

	if src.WGSL != "" {
		info.Fingerprint = fingerprintBytes([]byte(src.WGSL), src.DriverUUID, src.HasUUID)
		if c.naga != nil {
			if eps, err := c.naga.ReflectEntryPoints(src.WGSL); err == nil {
				info.EntryPoints = eps
			}
		}
	} else {
		info.Fingerprint = fingerprintBytes(src.Bytecode, src.DriverUUID, src.HasUUID)
	}

	c.mu.Lock()
	c.shaders[id] = info
	c.mu.Unlock()
	return info
}

// UnregisterShaderModule removes a shader module from the catalog.
func (c *Catalog) UnregisterShaderModule(id ids.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.shaders, id)
}

// ShaderModule looks up catalog metadata for a shader module.
func (c *Catalog) ShaderModule(id ids.Identity) (ShaderModuleInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.shaders[id]
	return info, ok
}

// RegisterPipeline assigns identity and classifies a pipeline, computing
// each stage's fingerprint.entrypoint ^ module_hash and combining them
// into the pipeline's hash. Combination is order-insensitive (XOR),
// matching the Open Question decision that shader stage order within a
// pipeline must not change its identity.
func (c *Catalog) RegisterPipeline(id ids.Identity, kind PipelineKind, stages []StageInfo, rt RayTracingShaderGroupMaxima) PipelineInfo {
	c.mu.RLock()
	hash := uint32(0)
	for _, st := range stages {
		moduleHash := uint32(0)
		if m, ok := c.shaders[st.Module]; ok {
			moduleHash = m.Fingerprint
		}
		hash ^= fingerprint32(st.EntryPoint) ^ moduleHash
	}
	c.mu.RUnlock()

	info := PipelineInfo{ID: id, Kind: kind, Stages: stages, Hash: hash}
	if kind == PipelineRayTracing {
		info.StackSize = rt.DefaultStackSize()
	}

	c.mu.Lock()
	c.pipelines[id] = info
	c.mu.Unlock()
	return info
}

// UnregisterPipeline removes a pipeline from the catalog.
func (c *Catalog) UnregisterPipeline(id ids.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pipelines, id)
}

// Pipeline looks up catalog metadata for a pipeline.
func (c *Catalog) Pipeline(id ids.Identity) (PipelineInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.pipelines[id]
	return info, ok
}

// SetExecutables attaches captured pipeline-executable properties,
// captured per executable index, when
// enable_pipeline_executable_properties_ext is enabled.
func (c *Catalog) SetExecutables(id ids.Identity, execs []ExecutableInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.pipelines[id]
	if !ok {
		return
	}
	info.Executables = execs
	c.pipelines[id] = info
}

// SubpassDescriptor is one subpass's attachment configuration, as
// reported at render-pass creation.
type SubpassDescriptor struct {
	ColorClears          []bool // one entry per color attachment; true if loadOp == clear
	HasDepthStencil      bool
	DepthClears          bool
	StencilClears        bool
	HasColorResolve      bool
	HasDepthStencilResolve bool
	HasIndependentDepthStencilResolve bool
}

// RegisterRenderPass catalogs a render pass, counting resolves and
// clears per spec §4.G.
func (c *Catalog) RegisterRenderPass(id ids.Identity, subpasses []SubpassDescriptor) RenderPassInfo {
	info := RenderPassInfo{ID: id, SubpassCount: len(subpasses)}
	for _, sp := range subpasses {
		if sp.HasColorResolve {
			info.ResolveCount++
		}
		if sp.HasIndependentDepthStencilResolve {
			info.ResolveCount += 2
		} else if sp.HasDepthStencilResolve {
			info.ResolveCount++
		}
		for _, clears := range sp.ColorClears {
			if clears {
				info.ColorClearCount++
			}
		}
		if sp.HasDepthStencil && (sp.DepthClears || sp.StencilClears) {
			info.DepthStencilClears++
		}
	}

	c.mu.Lock()
	c.passes[id] = info
	c.mu.Unlock()
	return info
}

// UnregisterRenderPass removes a render pass from the catalog.
func (c *Catalog) UnregisterRenderPass(id ids.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.passes, id)
}

// RenderPass looks up catalog metadata for a render pass.
func (c *Catalog) RenderPass(id ids.Identity) (RenderPassInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.passes[id]
	return info, ok
}

// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package profiler

import (
	"github.com/lstalmir/VulkanProfiler-sub001/internal/catalog"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/ids"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/memtrack"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/query"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/shadow"
)

// commandBufferOwner records the pool and level a command buffer was
// allocated with.
type commandBufferOwner struct {
	pool  ids.Identity
	level CommandBufferLevel
}

// RegisterObject handles the plain create events that only need identity
// tracking: instance, device, queue, command pool, query pool. Destroy is
// the symmetric Unregister below.
func (p *Profiler) RegisterObject(kind ids.Kind, raw uint64) ids.Identity {
	return p.objects.Register(kind, raw)
}

// UnregisterObject handles the plain destroy events.
func (p *Profiler) UnregisterObject(kind ids.Kind, raw uint64) {
	p.objects.Unregister(kind, raw)
}

// --- command pools (A + D) ------------------------------------------------

// CommandBufferLevel distinguishes a primary command buffer (submittable
// directly to a queue) from a secondary one (executed only via
// CommandExecuteSecondaries from a primary buffer), per spec §3's
// command-buffer record.
type CommandBufferLevel uint8

const (
	LevelPrimary CommandBufferLevel = iota
	LevelSecondary
)

// CreateCommandPool registers a new command pool, the owner of the
// command buffers allocated from it.
//
// The pool owns its command buffers' records: cmdPools lists every
// command-buffer identity allocated from it, so destroying the pool can
// invalidate every buffer it allocated in one step.
func (p *Profiler) CreateCommandPool(raw uint64) ids.Identity {
	id := p.objects.Register(ids.KindCommandPool, raw)
	p.cbMu.Lock()
	p.cmdPools[id] = nil
	p.cbMu.Unlock()
	return id
}

// DestroyCommandPool unregisters a command pool and invalidates every
// command buffer it owns: their shadow recorders and query pools are
// dropped exactly as if DestroyCommandBuffer had been called on each.
func (p *Profiler) DestroyCommandPool(id ids.Identity, raw uint64) {
	p.objects.Unregister(ids.KindCommandPool, raw)

	p.cbMu.Lock()
	owned := p.cmdPools[id]
	delete(p.cmdPools, id)
	for _, cb := range owned {
		delete(p.pools, cb)
		delete(p.shadows, cb)
		delete(p.dirty, cb)
		delete(p.cbOwner, cb)
	}
	p.cbMu.Unlock()
}

// --- command buffers (A + B + F) -----------------------------------------

// CreateCommandBuffer registers a new command buffer allocated from pool,
// allocating its timestamp query pool (B) and shadow recorder (F). Fails
// with ErrUnknownObject if pool was never created (or was already
// destroyed), per spec §3's "handle, owning pool, level" record.
func (p *Profiler) CreateCommandBuffer(pool ids.Identity, level CommandBufferLevel, raw uint64) (ids.Identity, error) {
	p.cbMu.Lock()
	owned, ok := p.cmdPools[pool]
	if !ok {
		p.cbMu.Unlock()
		return ids.Identity{}, ErrUnknownObject
	}
	p.cbMu.Unlock()

	id := p.objects.Register(ids.KindCommandBuffer, raw)

	mode := samplingModeFrom(p.Config().SamplingMode)
	qpool := query.New(p.queryDev, 0)

	p.cbMu.Lock()
	p.pools[id] = qpool
	p.shadows[id] = shadow.New(qpool, p.internal, mode)
	p.cbOwner[id] = commandBufferOwner{pool: pool, level: level}
	p.cmdPools[pool] = append(owned, id)
	p.cbMu.Unlock()

	return id, nil
}

// CommandBufferPool returns the pool a command buffer was allocated from,
// and the level it was allocated at.
func (p *Profiler) CommandBufferPool(id ids.Identity) (pool ids.Identity, level CommandBufferLevel, ok bool) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	owner, ok := p.cbOwner[id]
	return owner.pool, owner.level, ok
}

// DestroyCommandBuffer unregisters a command buffer and drops its pool
// and shadow recorder. The owning pool's bookkeeping is left to catch up
// lazily: a destroyed buffer's identity simply never resolves again.
func (p *Profiler) DestroyCommandBuffer(id ids.Identity, raw uint64) {
	p.objects.Unregister(ids.KindCommandBuffer, raw)
	p.cbMu.Lock()
	delete(p.pools, id)
	delete(p.shadows, id)
	delete(p.dirty, id)
	delete(p.cbOwner, id)
	p.cbMu.Unlock()
}

// BeginCommandBuffer starts (or restarts, if the buffer was previously
// submitted) recording. Fails with ErrAlreadyRecording if called again
// before a matching End.
func (p *Profiler) BeginCommandBuffer(id ids.Identity) error {
	p.cbMu.Lock()
	buf := p.shadows[id]
	delete(p.dirty, id)
	p.cbMu.Unlock()

	if buf == nil {
		return reportInvariantViolation("begin-unknown-command-buffer", "Begin called on an unregistered command buffer")
	}
	if buf.Recording() {
		return ErrAlreadyRecording
	}
	buf.SetSamplingMode(samplingModeFrom(p.Config().SamplingMode))
	buf.Begin()
	return nil
}

// EndCommandBuffer closes the current recording. Fails with
// ErrNotRecording if the buffer is not between Begin and End.
func (p *Profiler) EndCommandBuffer(id ids.Identity) error {
	buf := p.shadowFor(id)
	if buf == nil {
		return reportInvariantViolation("end-unknown-command-buffer", "End called on an unregistered command buffer")
	}
	if !buf.Recording() {
		return ErrNotRecording
	}
	buf.End()
	return nil
}

// ResetCommandBuffer resets a command buffer's queries for reuse.
func (p *Profiler) ResetCommandBuffer(id ids.Identity, flags uint32) error {
	buf := p.shadowFor(id)
	if buf == nil {
		return reportInvariantViolation("reset-unknown-command-buffer", "Reset called on an unregistered command buffer")
	}
	buf.Reset(flags)
	return nil
}

// RecordCommandPre/RecordCommandPost wrap one recorded command's pre/post
// hooks, per spec's "every recorded command (pre + post)" requirement.
func (p *Profiler) RecordCommandPre(id ids.Identity, cmd shadow.Command) {
	if buf := p.shadowFor(id); buf != nil {
		buf.PreCommand(cmd)
	}
}

func (p *Profiler) RecordCommandPost(id ids.Identity, cmd shadow.Command) {
	if buf := p.shadowFor(id); buf != nil {
		buf.PostCommand(cmd)
	}
}

func (p *Profiler) shadowFor(id ids.Identity) *shadow.Buffer {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	return p.shadows[id]
}


// --- pipelines / shaders / render passes (G) -------------------------------

// CreateShaderModule registers a shader module and fingerprints it.
func (p *Profiler) CreateShaderModule(raw uint64, src catalog.ShaderSource) (ids.Identity, catalog.ShaderModuleInfo) {
	id := p.objects.Register(ids.KindShaderModule, raw)
	info := p.catalog.RegisterShaderModule(id, src)
	return id, info
}

// DestroyShaderModule unregisters a shader module.
func (p *Profiler) DestroyShaderModule(id ids.Identity, raw uint64) {
	p.objects.Unregister(ids.KindShaderModule, raw)
	p.catalog.UnregisterShaderModule(id)
}

// CreatePipeline registers a pipeline and computes its fingerprint/stack
// size.
func (p *Profiler) CreatePipeline(raw uint64, kind catalog.PipelineKind, stages []catalog.StageInfo, rt catalog.RayTracingShaderGroupMaxima) (ids.Identity, catalog.PipelineInfo) {
	id := p.objects.Register(ids.KindPipeline, raw)
	info := p.catalog.RegisterPipeline(id, kind, stages, rt)
	return id, info
}

// DestroyPipeline unregisters a pipeline.
func (p *Profiler) DestroyPipeline(id ids.Identity, raw uint64) {
	p.objects.Unregister(ids.KindPipeline, raw)
	p.catalog.UnregisterPipeline(id)
}

// SetPipelineExecutables attaches VK_KHR_pipeline_executable_properties
// data captured for id, when the extension is enabled.
func (p *Profiler) SetPipelineExecutables(id ids.Identity, execs []catalog.ExecutableInfo) {
	if !p.Config().EnablePipelineExecutablePropertiesExt {
		return
	}
	p.catalog.SetExecutables(id, execs)
}

// CreateRenderPass registers a render pass and counts its clears/resolves.
func (p *Profiler) CreateRenderPass(raw uint64, subpasses []catalog.SubpassDescriptor) (ids.Identity, catalog.RenderPassInfo) {
	id := p.objects.Register(ids.KindRenderPass, raw)
	info := p.catalog.RegisterRenderPass(id, subpasses)
	return id, info
}

// DestroyRenderPass unregisters a render pass.
func (p *Profiler) DestroyRenderPass(id ids.Identity, raw uint64) {
	p.objects.Unregister(ids.KindRenderPass, raw)
	p.catalog.UnregisterRenderPass(id)
}

// --- memory (E) -------------------------------------------------------------

// CreateBuffer/Image/AccelerationStructure/Micromap register the object
// and start memtrack bookkeeping for it; the Bind* calls attach the
// memory range(s) backing it.

func (p *Profiler) CreateBuffer(raw uint64) ids.Identity {
	id := p.objects.Register(ids.KindBuffer, raw)
	p.memory.RegisterBuffer(id)
	return id
}

func (p *Profiler) DestroyBuffer(id ids.Identity, raw uint64) {
	p.objects.Unregister(ids.KindBuffer, raw)
	p.memory.UnregisterBuffer(id)
}

func (p *Profiler) BindBufferMemory(id ids.Identity, seg memtrack.Segment, sparse bool) {
	p.memory.BindBufferMemory(id, seg, sparse)
}

func (p *Profiler) CreateImage(raw uint64) ids.Identity {
	id := p.objects.Register(ids.KindImage, raw)
	p.memory.RegisterImage(id)
	return id
}

func (p *Profiler) DestroyImage(id ids.Identity, raw uint64) {
	p.objects.Unregister(ids.KindImage, raw)
	p.memory.UnregisterImage(id)
}

func (p *Profiler) BindImageMemoryOpaque(id ids.Identity, seg memtrack.Segment) {
	p.memory.BindImageMemoryOpaque(id, seg)
}

func (p *Profiler) BindSparseImageBlock(id ids.Identity, blk memtrack.ImageBlock) {
	p.memory.BindSparseImageBlock(id, blk)
}

func (p *Profiler) CreateAccelerationStructure(raw uint64) ids.Identity {
	id := p.objects.Register(ids.KindAccelerationStructure, raw)
	p.memory.RegisterAccelerationStructure(id)
	return id
}

func (p *Profiler) DestroyAccelerationStructure(id ids.Identity, raw uint64) {
	p.objects.Unregister(ids.KindAccelerationStructure, raw)
	p.memory.UnregisterAccelerationStructure(id)
}

func (p *Profiler) BindAccelerationStructureMemory(id ids.Identity, seg memtrack.Segment) {
	p.memory.BindAccelerationStructureMemory(id, seg)
}

func (p *Profiler) CreateMicromap(raw uint64) ids.Identity {
	id := p.objects.Register(ids.KindMicromap, raw)
	p.memory.RegisterMicromap(id)
	return id
}

func (p *Profiler) DestroyMicromap(id ids.Identity, raw uint64) {
	p.objects.Unregister(ids.KindMicromap, raw)
	p.memory.UnregisterMicromap(id)
}

func (p *Profiler) BindMicromapMemory(id ids.Identity, seg memtrack.Segment) {
	p.memory.BindMicromapMemory(id, seg)
}

// AllocateMemory/FreeMemory track one VkDeviceMemory allocation against
// its heap/type rollups.
func (p *Profiler) AllocateMemory(raw uint64, size uint64, heapIndex, typeIndex uint32) ids.Identity {
	id := p.objects.Register(ids.KindDeviceMemory, raw)
	p.memory.RegisterAllocation(id, memtrack.Allocation{ID: id, Size: size, HeapIndex: heapIndex, TypeIndex: typeIndex})
	return id
}

func (p *Profiler) FreeMemory(id ids.Identity, raw uint64) {
	p.objects.Unregister(ids.KindDeviceMemory, raw)
	p.memory.UnregisterAllocation(id)
}

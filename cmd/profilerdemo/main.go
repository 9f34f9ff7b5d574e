// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Command profilerdemo is a minimal host loop that drives the profiling
// engine end to end: create a device and a command buffer, record a
// drawcall, submit, present, and poll the resolved frame.
//
// It is not the interception layer (that stays out of scope, per spec's
// Non-goals) — it is a smoke-test harness in the spirit of the teacher's
// cmd/vulkan-triangle, with the Vulkan calls replaced by an in-memory
// fake driver so the demo needs no real GPU.
package main

import (
	"fmt"
	"os"

	profiler "github.com/lstalmir/VulkanProfiler-sub001"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/catalog"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/ids"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/memtrack"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/query"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/shadow"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/submit"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/timeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fmt.Println("=== Profiler Demo (fake driver) ===")

	p := profiler.New(profiler.Drivers{
		Query:    &fakeQueryDevice{},
		Timeline: &fakeTimelineDriver{},
		Budget:   &fakeBudget{},
	}, nil)
	defer p.Close()

	fmt.Print("1. Creating device and queue... ")
	device := p.RegisterObject(ids.KindDevice, 1)
	queue := p.RegisterObject(ids.KindQueue, 1)
	fmt.Println("OK", device, queue)

	fmt.Print("2. Creating shader module and pipeline... ")
	_, shaderInfo := p.CreateShaderModule(10, catalog.ShaderSource{Bytecode: []byte("fake-spirv")})
	pipelineID, pipelineInfo := p.CreatePipeline(20, catalog.PipelineGraphics, []catalog.StageInfo{
		{Stage: catalog.StageFragment, EntryPoint: "main"},
	}, catalog.RayTracingShaderGroupMaxima{})
	fmt.Println("OK", shaderInfo.Fingerprint, pipelineInfo.Hash)

	fmt.Print("3. Creating command pool, command buffer, and recording a drawcall... ")
	pool := p.CreateCommandPool(29)
	cb, err := p.CreateCommandBuffer(pool, profiler.LevelPrimary, 30)
	if err != nil {
		return err
	}
	if err := p.BeginCommandBuffer(cb); err != nil {
		return err
	}
	cmd := shadow.Command{Kind: shadow.CommandDraw, PipelineID: pipelineID}
	p.RecordCommandPre(cb, cmd)
	p.RecordCommandPost(cb, cmd)
	if err := p.EndCommandBuffer(cb); err != nil {
		return err
	}
	fmt.Println("OK")

	fmt.Print("4. Submitting and presenting... ")
	p.PreSubmit(queue)
	p.PostSubmit(queue, []submit.Info{{CommandBuffers: []ids.Identity{cb}}}, submit.KindSubmit2)
	p.FinishFrame()
	fmt.Println("OK")

	fmt.Print("5. Polling the resolved frame... ")
	frame, ok := p.PollFrame()
	if !ok {
		return fmt.Errorf("expected a resolved frame, got none")
	}
	fmt.Printf("OK (frame %d, %d pipeline(s), %d submit batch(es))\n",
		frame.Index, len(frame.TopPipelines), len(frame.SubmitBatches))

	if len(frame.SubmitBatches) > 0 && len(frame.SubmitBatches[0].Submits) > 0 {
		cbs := frame.SubmitBatches[0].Submits[0].CommandBuffers
		if len(cbs) > 0 {
			fmt.Printf("   command buffer 0 resolved tree has %d top-level node(s)\n", len(cbs[0].Tree))
		}
	}

	return nil
}

// --- fake drivers ---------------------------------------------------------

type fakeQueryDevice struct{ next uint64 }

func (f *fakeQueryDevice) CreateQuerySegment(count uint32) (query.SegmentHandle, error) {
	f.next++
	return query.SegmentHandle(f.next), nil
}

func (f *fakeQueryDevice) ResetQuerySegment(query.SegmentHandle) {}

func (f *fakeQueryDevice) ReadQuerySegment(h query.SegmentHandle, count uint32) ([]uint64, error) {
	out := make([]uint64, count)
	for i := range out {
		out[i] = uint64(i) * 1000
	}
	return out, nil
}

type fakeTimelineDriver struct{ t uint64 }

func (f *fakeTimelineDriver) SupportedDomains() []timeline.TimeDomain {
	return []timeline.TimeDomain{timeline.TimeDomainClockMonotonicRaw}
}

func (f *fakeTimelineDriver) CalibrateTimestamps(timeline.TimeDomain) (timeline.Timestamps, uint64, error) {
	f.t += 1_000_000
	return timeline.Timestamps{HostNs: f.t, DeviceNs: f.t}, 0, nil
}

func (f *fakeTimelineDriver) WaitDevice(uint64) error           { return nil }
func (f *fakeTimelineDriver) WaitQueue(uint64, uint64) error    { return nil }
func (f *fakeTimelineDriver) WaitFence(uint64, uint64) error    { return nil }

type fakeBudget struct{}

func (fakeBudget) HeapBudget(heapIndex uint32) (uint64, bool) {
	return 256 << 20, false
}

var _ memtrack.BudgetSource = fakeBudget{}

// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package profiler

import (
	"testing"

	"github.com/lstalmir/VulkanProfiler-sub001/internal/catalog"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/config"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/ids"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/query"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/shadow"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/submit"
	"github.com/lstalmir/VulkanProfiler-sub001/internal/timeline"
)

type fakeQueryDevice struct{ next uint64 }

func (f *fakeQueryDevice) CreateQuerySegment(count uint32) (query.SegmentHandle, error) {
	f.next++
	return query.SegmentHandle(f.next), nil
}

func (f *fakeQueryDevice) ResetQuerySegment(query.SegmentHandle) {}

func (f *fakeQueryDevice) ReadQuerySegment(h query.SegmentHandle, count uint32) ([]uint64, error) {
	out := make([]uint64, count)
	for i := range out {
		out[i] = uint64(i+1) * 1000
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

func (f *fakeTimelineDriver) WaitDevice(uint64) error        { return nil }
func (f *fakeTimelineDriver) WaitQueue(uint64, uint64) error { return nil }
func (f *fakeTimelineDriver) WaitFence(uint64, uint64) error { return nil }

type fakeBudget struct{}

func (fakeBudget) HeapBudget(uint32) (uint64, bool) { return 256 << 20, false }

func newTestProfiler(t *testing.T, opts ...config.Option) *Profiler {
	t.Helper()
	clock := uint64(0)
	p := New(Drivers{
		Query:     &fakeQueryDevice{},
		Timeline:  &fakeTimelineDriver{},
		Budget:    fakeBudget{},
		HostClock: func() uint64 { clock++; return clock },
		ThreadID:  func() uint64 { return 7 },
	}, nil, opts...)
	t.Cleanup(p.Close)
	return p
}

func TestNewAppliesDefaultsWithoutFileConfigOrOptions(t *testing.T) {
	p := newTestProfiler(t)
	cfg := p.Config()
	if cfg.SamplingMode != config.SamplingPerDrawcall {
		t.Fatalf("SamplingMode = %v, want SamplingPerDrawcall", cfg.SamplingMode)
	}
	if cfg.DataBufferSize != config.Default().DataBufferSize {
		t.Fatalf("DataBufferSize = %d, want %d", cfg.DataBufferSize, config.Default().DataBufferSize)
	}
}

func TestCommandBufferLifecycleRoundTrip(t *testing.T) {
	p := newTestProfiler(t)

	pool := p.CreateCommandPool(1)
	cb, err := p.CreateCommandBuffer(pool, LevelPrimary, 100)
	if err != nil {
		t.Fatalf("CreateCommandBuffer: %v", err)
	}
	if cb.IsZero() {
		t.Fatal("CreateCommandBuffer returned a zero identity")
	}
	if err := p.BeginCommandBuffer(cb); err != nil {
		t.Fatalf("BeginCommandBuffer: %v", err)
	}
	if err := p.BeginCommandBuffer(cb); err != ErrAlreadyRecording {
		t.Fatalf("BeginCommandBuffer on an already-recording buffer: err = %v, want ErrAlreadyRecording", err)
	}
	if err := p.EndCommandBuffer(cb); err != nil {
		t.Fatalf("EndCommandBuffer: %v", err)
	}
	if err := p.EndCommandBuffer(cb); err != ErrNotRecording {
		t.Fatalf("EndCommandBuffer on a non-recording buffer: err = %v, want ErrNotRecording", err)
	}
	p.DestroyCommandBuffer(cb, 100)

	if err := p.BeginCommandBuffer(cb); err == nil {
		t.Fatal("BeginCommandBuffer on a destroyed command buffer should fail")
	}
}

func TestCreateCommandBufferFailsForUnknownPool(t *testing.T) {
	p := newTestProfiler(t)
	if _, err := p.CreateCommandBuffer(ids.Identity{Raw: 999, Created: 1}, LevelPrimary, 1); err != ErrUnknownObject {
		t.Fatalf("CreateCommandBuffer with unknown pool: err = %v, want ErrUnknownObject", err)
	}
}

func TestDestroyCommandPoolInvalidatesOwnedCommandBuffers(t *testing.T) {
	p := newTestProfiler(t)
	pool := p.CreateCommandPool(1)
	cb, err := p.CreateCommandBuffer(pool, LevelPrimary, 100)
	if err != nil {
		t.Fatalf("CreateCommandBuffer: %v", err)
	}

	p.DestroyCommandPool(pool, 1)

	if err := p.BeginCommandBuffer(cb); err == nil {
		t.Fatal("BeginCommandBuffer on a command buffer owned by a destroyed pool should fail")
	}
}

func TestBeginOnUnknownCommandBufferReportsInvariantViolation(t *testing.T) {
	p := newTestProfiler(t)
	unknown := ids.Identity{Raw: 999, Created: 1}
	if err := p.BeginCommandBuffer(unknown); err == nil {
		t.Fatal("expected an error for an unregistered command buffer")
	}
}

func TestDeviceExtensionRequirementsMapsConfiguredExtensions(t *testing.T) {
	cfg := config.Default()
	if exts := DeviceExtensionRequirements(cfg); len(exts) != 0 {
		t.Fatalf("default config should require no extensions, got %v", exts)
	}

	cfg.EnablePerformanceQueryExt = config.PerformanceQueryKHR
	cfg.EnablePipelineExecutablePropertiesExt = true
	exts := DeviceExtensionRequirements(cfg)
	want := map[string]bool{
		"VK_KHR_performance_query":              true,
		"VK_KHR_pipeline_executable_properties": true,
	}
	if len(exts) != len(want) {
		t.Fatalf("exts = %v, want exactly %v", exts, want)
	}
	for _, e := range exts {
		if !want[e] {
			t.Fatalf("unexpected extension %q", e)
		}
	}

	cfg.EnablePerformanceQueryExt = config.PerformanceQueryIntel
	exts = DeviceExtensionRequirements(cfg)
	found := false
	for _, e := range exts {
		if e == "VK_INTEL_performance_query" {
			found = true
		}
	}
	if !found {
		t.Fatalf("exts = %v, want VK_INTEL_performance_query", exts)
	}
}

func TestFrameDelimiterPresentGatesFinishFrame(t *testing.T) {
	p := newTestProfiler(t, config.WithFrameDelimiter(config.DelimiterPresent))

	queue := p.RegisterObject(ids.KindQueue, 1)
	pool := p.CreateCommandPool(1)
	cb, _ := p.CreateCommandBuffer(pool, LevelPrimary, 1)
	_ = p.BeginCommandBuffer(cb)
	_ = p.EndCommandBuffer(cb)

	p.PreSubmit(queue)
	p.PostSubmit(queue, []submit.Info{{CommandBuffers: []ids.Identity{cb}}}, submit.KindSubmit2)

	if _, ok := p.PollFrame(); ok {
		t.Fatal("PollFrame should have nothing buffered before FinishFrame under the present delimiter")
	}

	p.FinishFrame()

	if _, ok := p.PollFrame(); !ok {
		t.Fatal("expected a resolved frame after FinishFrame")
	}
}

func TestFrameDelimiterSubmitClosesFrameOnPostSubmit(t *testing.T) {
	p := newTestProfiler(t, config.WithFrameDelimiter(config.DelimiterSubmit))

	queue := p.RegisterObject(ids.KindQueue, 1)
	pool := p.CreateCommandPool(1)
	cb, _ := p.CreateCommandBuffer(pool, LevelPrimary, 1)
	_ = p.BeginCommandBuffer(cb)
	_ = p.EndCommandBuffer(cb)

	p.PreSubmit(queue)
	p.PostSubmit(queue, []submit.Info{{CommandBuffers: []ids.Identity{cb}}}, submit.KindSubmit2)

	if _, ok := p.PollFrame(); !ok {
		t.Fatal("expected PostSubmit to have already closed the frame under the submit delimiter")
	}

	// FinishFrame is a no-op in this mode: nothing new should appear.
	p.FinishFrame()
	if _, ok := p.PollFrame(); ok {
		t.Fatal("FinishFrame should not close a frame under the submit delimiter")
	}
}

func TestResolveAccumulatesTopPipelines(t *testing.T) {
	p := newTestProfiler(t)

	queue := p.RegisterObject(ids.KindQueue, 1)
	_, _ = p.CreateShaderModule(10, catalog.ShaderSource{Bytecode: []byte("spirv")})
	pipelineID, _ := p.CreatePipeline(20, catalog.PipelineGraphics, []catalog.StageInfo{
		{Stage: catalog.StageFragment, EntryPoint: "main"},
	}, catalog.RayTracingShaderGroupMaxima{})

	pool := p.CreateCommandPool(1)
	cb, _ := p.CreateCommandBuffer(pool, LevelPrimary, 30)
	_ = p.BeginCommandBuffer(cb)
	cmd := shadow.Command{Kind: shadow.CommandDraw, PipelineID: pipelineID}
	p.RecordCommandPre(cb, cmd)
	p.RecordCommandPost(cb, cmd)
	_ = p.EndCommandBuffer(cb)

	p.PreSubmit(queue)
	p.PostSubmit(queue, []submit.Info{{CommandBuffers: []ids.Identity{cb}}}, submit.KindSubmit2)
	p.FinishFrame()

	frame, ok := p.PollFrame()
	if !ok {
		t.Fatal("expected a resolved frame")
	}
	if len(frame.TopPipelines) != 1 {
		t.Fatalf("TopPipelines = %v, want exactly one entry", frame.TopPipelines)
	}
	if frame.TopPipelines[0].PipelineID != pipelineID {
		t.Fatalf("TopPipelines[0].PipelineID = %v, want %v", frame.TopPipelines[0].PipelineID, pipelineID)
	}
	if frame.TopPipelines[0].Invocations != 1 {
		t.Fatalf("Invocations = %d, want 1", frame.TopPipelines[0].Invocations)
	}
}

func TestResolveComputesFPSFromConsecutiveFrames(t *testing.T) {
	p := newTestProfiler(t)
	queue := p.RegisterObject(ids.KindQueue, 1)

	p.PreSubmit(queue)
	p.PostSubmit(queue, []submit.Info{}, submit.KindSubmit2)
	p.FinishFrame()
	first, ok := p.PollFrame()
	if !ok {
		t.Fatal("expected first resolved frame")
	}
	if first.FPS != 0 {
		t.Fatalf("first frame FPS = %v, want 0 (no previous frame to diff against)", first.FPS)
	}

	p.PreSubmit(queue)
	p.PostSubmit(queue, []submit.Info{}, submit.KindSubmit2)
	p.FinishFrame()
	second, ok := p.PollFrame()
	if !ok {
		t.Fatal("expected second resolved frame")
	}
	if second.FPS <= 0 {
		t.Fatalf("second frame FPS = %v, want > 0", second.FPS)
	}
}

func TestSetDataBufferSizeChangesHowManyFramesAreRetained(t *testing.T) {
	p := newTestProfiler(t)
	if err := p.SetDataBufferSize(2); err != nil {
		t.Fatalf("SetDataBufferSize: %v", err)
	}

	queue := p.RegisterObject(ids.KindQueue, 1)
	for i := 0; i < 3; i++ {
		p.PreSubmit(queue)
		p.PostSubmit(queue, []submit.Info{}, submit.KindSubmit2)
		p.FinishFrame()
	}

	count := 0
	for {
		if _, ok := p.PollFrame(); !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Fatalf("buffered frame count = %d, want 2 (oldest dropped)", count)
	}
}

func TestSamplingModeFromMapsEveryConfigValue(t *testing.T) {
	cases := map[config.SamplingMode]shadow.SamplingMode{
		config.SamplingPerDrawcall:   shadow.SamplingPerDrawcall,
		config.SamplingPerPipeline:   shadow.SamplingPerPipeline,
		config.SamplingPerRenderPass: shadow.SamplingPerRenderPass,
		config.SamplingPerFrame:      shadow.SamplingPerFrame,
		config.SamplingMode("bogus"): shadow.SamplingPerDrawcall,
	}
	for in, want := range cases {
		if got := samplingModeFrom(in); got != want {
			t.Errorf("samplingModeFrom(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestSetSamplingModeRejectsUnrecognizedValue(t *testing.T) {
	p := newTestProfiler(t)
	if err := p.SetSamplingMode(config.SamplingPerPipeline); err != nil {
		t.Fatalf("SetSamplingMode(valid): %v", err)
	}
	if err := p.SetSamplingMode(config.SamplingMode("bogus")); err != ErrInvalidConfig {
		t.Fatalf("SetSamplingMode(bogus): err = %v, want ErrInvalidConfig", err)
	}
}

func TestSetDataBufferSizeRejectsZero(t *testing.T) {
	p := newTestProfiler(t)
	if err := p.SetDataBufferSize(0); err != ErrInvalidConfig {
		t.Fatalf("SetDataBufferSize(0): err = %v, want ErrInvalidConfig", err)
	}
	if err := p.SetMinDataBufferSize(0); err != ErrInvalidConfig {
		t.Fatalf("SetMinDataBufferSize(0): err = %v, want ErrInvalidConfig", err)
	}
}

func TestSetActiveMetricsSetCallsSetterAndPropagatesError(t *testing.T) {
	p := newTestProfiler(t)
	if err := p.SetActiveMetricsSet(nil); err != nil {
		t.Fatalf("nil setter should be a no-op, got %v", err)
	}
	called := false
	if err := p.SetActiveMetricsSet(func() error { called = true; return nil }); err != nil {
		t.Fatalf("SetActiveMetricsSet: %v", err)
	}
	if !called {
		t.Fatal("setter was not invoked")
	}
}

func TestInternalPipelineTableNeverCollidesWithRegistryIdentities(t *testing.T) {
	p := newTestProfiler(t)
	real := p.RegisterObject(ids.KindPipeline, 1)

	var tbl internalPipelineTable
	synthetic := tbl.IdentityFor(shadow.CommandDraw)

	if synthetic == real {
		t.Fatal("synthetic internal-pipeline identity collided with a real registry identity")
	}
	if synthetic.Created != 0 {
		t.Fatalf("synthetic identity Created = %d, want 0", synthetic.Created)
	}
	if real.Created == 0 {
		t.Fatal("registry-issued identity should never have Created == 0")
	}
}

func TestObjectNameRoundTrip(t *testing.T) {
	p := newTestProfiler(t)
	id := p.RegisterObject(ids.KindQueue, 42)
	if _, ok := p.ObjectName(ids.KindQueue, 42); ok {
		t.Fatal("expected no name before SetObjectName")
	}
	p.SetObjectName(ids.KindQueue, id, "graphics-queue")
	name, ok := p.ObjectName(ids.KindQueue, 42)
	if !ok || name != "graphics-queue" {
		t.Fatalf("ObjectName = (%q, %v), want (\"graphics-queue\", true)", name, ok)
	}
}

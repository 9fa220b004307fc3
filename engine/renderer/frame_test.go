package renderer_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/math"
	"github.com/spaghettifunk/anima2d/engine/renderer"
	"github.com/spaghettifunk/anima2d/engine/renderer/batch"
	"github.com/spaghettifunk/anima2d/engine/renderer/headless"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

type oneRegion struct{}

func (oneRegion) Resolve(metadata.TextureHandle, uint64) (metadata.Region, error) {
	return metadata.Region{Rect: math.URect{W: 16, H: 16}, LayerSize: 64}, nil
}

type transition struct {
	slot     int
	from, to renderer.SlotState
}

type harness struct {
	dev         *headless.Device
	pipe        *renderer.Pipeline
	compiler    *batch.Compiler
	transitions []transition
	fatals      []error
}

func newHarness(t *testing.T, framesInFlight, maxInstances int) *harness {
	t.Helper()
	h := &harness{dev: headless.New()}
	ctx, err := renderer.NewContext(h.dev.Backend(), &headless.Window{Width: 640, Height: 480}, renderer.Size{}, renderer.ContextOptions{VSync: true})
	if err != nil {
		t.Fatal(err)
	}
	h.pipe, err = renderer.NewPipeline(ctx, renderer.PipelineOptions{
		FramesInFlight: framesInFlight,
		MaxInstances:   maxInstances,
		Camera:         metadata.Camera{Size: math.Vec2{X: 640, Y: 480}},
		OnFatal:        func(err error) { h.fatals = append(h.fatals, err) },
		OnTransition: func(slot int, from, to renderer.SlotState) {
			h.transitions = append(h.transitions, transition{slot, from, to})
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	h.compiler = batch.NewCompiler(oneRegion{}, batch.Policy{})
	return h
}

func (h *harness) frame(reqs ...metadata.SpriteDrawRequest) renderer.Frame {
	return renderer.Frame{Batches: h.compiler.Compile(reqs, h.pipe.Serial())}
}

func TestPipelineSlotLifecycle(t *testing.T) {
	h := newHarness(t, 2, 16)
	for i := 0; i < 3; i++ {
		if err := h.pipe.Render(h.frame(metadata.SpriteDrawRequest{Texture: 1})); err != nil {
			t.Fatalf("render %d: %v", i, err)
		}
	}

	var want []transition
	for _, slot := range []int{0, 1, 0} {
		want = append(want,
			transition{slot, renderer.SlotIdle, renderer.SlotAcquired},
			transition{slot, renderer.SlotAcquired, renderer.SlotRecorded},
			transition{slot, renderer.SlotRecorded, renderer.SlotSubmitted},
			transition{slot, renderer.SlotSubmitted, renderer.SlotPresented},
			transition{slot, renderer.SlotPresented, renderer.SlotIdle},
		)
	}
	if len(h.transitions) != len(want) {
		t.Fatalf("transitions = %v", h.transitions)
	}
	for i := range want {
		if h.transitions[i] != want[i] {
			t.Fatalf("transition %d = %+v, want %+v", i, h.transitions[i], want[i])
		}
	}
	if got := h.pipe.Serial(); got != 4 {
		t.Fatalf("serial = %d, want 4", got)
	}
	if got := h.pipe.CompletedSerial(); got != 3 {
		t.Fatalf("completed = %d, want 3", got)
	}
}

func TestPipelineRecordsBatchesInOrder(t *testing.T) {
	h := newHarness(t, 2, 16)
	reqs := []metadata.SpriteDrawRequest{
		{Texture: 1, Depth: 0},
		{Texture: 1, Depth: 1, Blend: metadata.BlendAdditive},
		{Texture: 2, Depth: 2, Blend: metadata.BlendAdditive},
		{Texture: 2, Depth: 3},
	}
	if err := h.pipe.Render(h.frame(reqs...)); err != nil {
		t.Fatal(err)
	}
	subs := h.dev.Submissions()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d", len(subs))
	}
	ops := subs[0].Commands
	want := []renderer.Command{
		{Op: renderer.OpBeginPass, Clear: math.Color{}},
		{Op: renderer.OpSetPipeline, Blend: metadata.BlendAlpha},
		{Op: renderer.OpDraw, FirstInstance: 0, InstanceCount: 1},
		{Op: renderer.OpSetPipeline, Blend: metadata.BlendAdditive},
		{Op: renderer.OpDraw, FirstInstance: 1, InstanceCount: 1},
		{Op: renderer.OpDraw, FirstInstance: 2, InstanceCount: 1},
		{Op: renderer.OpSetPipeline, Blend: metadata.BlendAlpha},
		{Op: renderer.OpDraw, FirstInstance: 3, InstanceCount: 1},
		{Op: renderer.OpEndPass},
	}
	if len(ops) != len(want) {
		t.Fatalf("commands = %+v", ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("command %d = %+v, want %+v", i, ops[i], want[i])
		}
	}
	if len(subs[0].Instances) != 4*metadata.InstanceStride || len(subs[0].Camera) != metadata.CameraUniformSize {
		t.Fatalf("uploaded %d instance bytes, %d camera bytes", len(subs[0].Instances), len(subs[0].Camera))
	}
}

func TestPipelineTruncatesToCapacity(t *testing.T) {
	h := newHarness(t, 2, 3)
	reqs := make([]metadata.SpriteDrawRequest, 5)
	for i := range reqs {
		reqs[i] = metadata.SpriteDrawRequest{Texture: 1}
	}
	if err := h.pipe.Render(h.frame(reqs...)); err != nil {
		t.Fatal(err)
	}
	sub := h.dev.Submissions()[0]
	if len(sub.Instances) != 3*metadata.InstanceStride {
		t.Fatalf("instance bytes = %d", len(sub.Instances))
	}
	draws := 0
	for _, c := range sub.Commands {
		if c.Op == renderer.OpDraw {
			draws++
			if c.FirstInstance+c.InstanceCount > 3 {
				t.Fatalf("draw past capacity: %+v", c)
			}
		}
	}
	if draws != 1 || h.pipe.Stats().Truncated != 1 {
		t.Fatalf("draws %d stats %+v", draws, h.pipe.Stats())
	}
}

func TestPipelineWaitsForFences(t *testing.T) {
	h := newHarness(t, 2, 16)
	h.dev.HoldFences(true)

	for i := 0; i < 2; i++ {
		if err := h.pipe.Render(h.frame()); err != nil {
			t.Fatal(err)
		}
	}
	if !h.pipe.InFlight(0) || !h.pipe.InFlight(1) {
		t.Fatal("both slots should be in flight")
	}
	if got := h.pipe.CompletedSerial(); got != 0 {
		t.Fatalf("completed = %d with every frame in flight", got)
	}

	// every slot is busy, the tick is skipped without touching the slot
	for i := 0; i < 3; i++ {
		if err := h.pipe.Render(h.frame()); err != nil {
			t.Fatalf("render while busy: %v", err)
		}
	}
	if n := len(h.dev.Submissions()); n != 2 {
		t.Fatalf("submissions = %d while every slot was busy", n)
	}
	if h.pipe.Stats().Stalled != 3 {
		t.Fatalf("stats = %+v", h.pipe.Stats())
	}

	h.dev.CompleteFrame(0)
	if got := h.pipe.CompletedSerial(); got != 1 {
		t.Fatalf("completed = %d after slot 0 signalled", got)
	}
	if err := h.pipe.Render(h.frame()); err != nil {
		t.Fatal(err)
	}
	if n := len(h.dev.Submissions()); n != 3 {
		t.Fatalf("submissions = %d after slot 0 completed", n)
	}
	if v := h.dev.ReuseViolations(); v != 0 {
		t.Fatalf("instance buffer rewritten in flight %d times", v)
	}
}

func TestPipelineDropsTransientFailures(t *testing.T) {
	tests := []struct {
		op  headless.Op
		err error
	}{
		{headless.OpAcquire, core.ErrSurfaceLost},
		{headless.OpAcquire, core.ErrAcquireTimeout},
		{headless.OpSubmit, core.ErrSurfaceLost},
		{headless.OpPresent, core.ErrSurfaceLost},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d %v", tt.op, tt.err), func(t *testing.T) {
			h := newHarness(t, 2, 16)
			h.dev.FailNext(tt.op, tt.err)

			if err := h.pipe.Render(h.frame()); err != nil {
				t.Fatalf("transient failure surfaced: %v", err)
			}
			for i := 0; i < 2; i++ {
				if h.pipe.SlotState(i) != renderer.SlotIdle {
					t.Fatalf("slot %d left %s", i, h.pipe.SlotState(i))
				}
			}
			if h.pipe.Stats().Dropped != 1 {
				t.Fatalf("stats = %+v", h.pipe.Stats())
			}

			before := len(h.dev.Presentations())
			if err := h.pipe.Render(h.frame()); err != nil {
				t.Fatalf("retry: %v", err)
			}
			if len(h.dev.Presentations()) != before+1 {
				t.Fatal("retry did not present")
			}
			if len(h.fatals) != 0 {
				t.Fatalf("fatal reported for %v", tt.err)
			}
		})
	}
}

func TestPipelinePresentsAtNewSizeAfterResize(t *testing.T) {
	h := newHarness(t, 2, 16)
	if err := h.pipe.Render(h.frame()); err != nil {
		t.Fatal(err)
	}
	h.pipe.Resize(800, 600)
	for i := 0; i < 3; i++ {
		if err := h.pipe.Render(h.frame()); err != nil {
			t.Fatal(err)
		}
	}
	ps := h.dev.Presentations()
	if len(ps) != 4 || ps[0].Size != (renderer.Size{Width: 640, Height: 480}) {
		t.Fatalf("presentations = %+v", ps)
	}
	for _, p := range ps[1:] {
		if p.Size != (renderer.Size{Width: 800, Height: 600}) {
			t.Fatalf("presented %s after resize", p.Size)
		}
	}
}

func TestPipelineDeviceLossMidFrame(t *testing.T) {
	h := newHarness(t, 2, 16)
	h.dev.HoldFences(true)
	if err := h.pipe.Render(h.frame()); err != nil {
		t.Fatal(err)
	}

	h.dev.FailNext(headless.OpSubmit, core.ErrDeviceLost)
	err := h.pipe.Render(h.frame())
	if !core.IsFatal(err) {
		t.Fatalf("render error = %v, want fatal", err)
	}
	if h.pipe.SlotState(1) != renderer.SlotIdle {
		t.Fatalf("slot 1 left %s", h.pipe.SlotState(1))
	}
	if len(h.fatals) != 1 {
		t.Fatalf("fatal reported %d times", len(h.fatals))
	}

	for i := 0; i < 3; i++ {
		if err := h.pipe.Render(h.frame()); !errors.Is(err, core.ErrDeviceLost) {
			t.Fatalf("render after loss: %v", err)
		}
	}
	if len(h.fatals) != 1 {
		t.Fatalf("fatal reported %d times after more renders", len(h.fatals))
	}
	if v := h.dev.ReuseViolations(); v != 0 {
		t.Fatalf("instance buffer reused before fence: %d", v)
	}
	if n := len(h.dev.Submissions()); n != 1 {
		t.Fatalf("submissions = %d", n)
	}

	if err := h.pipe.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !h.dev.Destroyed() {
		t.Fatal("device not released")
	}
}

func TestPipelineCloseWaitsForSubmissions(t *testing.T) {
	h := newHarness(t, 2, 16)
	if err := h.pipe.Render(h.frame()); err != nil {
		t.Fatal(err)
	}
	if err := h.pipe.Close(); err != nil {
		t.Fatal(err)
	}
	if h.pipe.InFlight(0) {
		t.Fatal("slot 0 still in flight after close")
	}
	if err := h.pipe.Render(h.frame()); !errors.Is(err, core.ErrClosed) {
		t.Fatalf("render after close: %v", err)
	}
	if err := h.pipe.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

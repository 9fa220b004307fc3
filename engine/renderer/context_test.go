package renderer_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/renderer"
	"github.com/spaghettifunk/anima2d/engine/renderer/headless"
)

func newContext(t *testing.T, dev *headless.Device, opts renderer.ContextOptions) *renderer.Context {
	t.Helper()
	ctx, err := renderer.NewContext(dev.Backend(), &headless.Window{Width: 1024, Height: 768}, renderer.Size{}, opts)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	if err := ctx.CreateFrameResources(2, 16); err != nil {
		t.Fatalf("CreateFrameResources: %v", err)
	}
	return ctx
}

func TestContextNegotiatesSurface(t *testing.T) {
	tests := []struct {
		name   string
		caps   renderer.SurfaceCapabilities
		vsync  bool
		format renderer.Format
		mode   renderer.PresentMode
	}{
		{
			name: "srgb bgra preferred, vsync",
			caps: renderer.SurfaceCapabilities{
				Formats:      []renderer.Format{renderer.FormatRGBA8Unorm, renderer.FormatBGRA8Srgb},
				PresentModes: []renderer.PresentMode{renderer.PresentModeFifo, renderer.PresentModeMailbox},
			},
			vsync:  true,
			format: renderer.FormatBGRA8Srgb,
			mode:   renderer.PresentModeFifo,
		},
		{
			name: "no vsync takes mailbox",
			caps: renderer.SurfaceCapabilities{
				Formats:      []renderer.Format{renderer.FormatRGBA8Unorm},
				PresentModes: []renderer.PresentMode{renderer.PresentModeImmediate, renderer.PresentModeMailbox, renderer.PresentModeFifo},
			},
			format: renderer.FormatRGBA8Unorm,
			mode:   renderer.PresentModeMailbox,
		},
		{
			name: "no vsync falls back to fifo",
			caps: renderer.SurfaceCapabilities{
				Formats:      []renderer.Format{renderer.FormatRGBA8Srgb},
				PresentModes: []renderer.PresentMode{renderer.PresentModeFifo},
			},
			format: renderer.FormatRGBA8Srgb,
			mode:   renderer.PresentModeFifo,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := headless.New()
			dev.SetCapabilities(tt.caps)
			ctx := newContext(t, dev, renderer.ContextOptions{VSync: tt.vsync})
			st := ctx.State()
			if st.Format != tt.format || st.PresentMode != tt.mode {
				t.Fatalf("state = %s %s, want %s %s", st.Format, st.PresentMode, tt.format, tt.mode)
			}
			if st.Size != (renderer.Size{Width: 1024, Height: 768}) {
				t.Fatalf("size = %s, want window size", st.Size)
			}
		})
	}
}

func TestContextNoFormatIsUnsupported(t *testing.T) {
	dev := headless.New()
	dev.SetCapabilities(renderer.SurfaceCapabilities{})
	_, err := renderer.NewContext(dev.Backend(), nil, renderer.Size{Width: 10, Height: 10}, renderer.ContextOptions{})
	if !errors.Is(err, core.ErrUnsupportedPlatform) {
		t.Fatalf("err = %v, want ErrUnsupportedPlatform", err)
	}
}

func TestResizeNeverYieldsOldDimensions(t *testing.T) {
	dev := headless.New()
	ctx := newContext(t, dev, renderer.ContextOptions{VSync: true})

	sizes := []renderer.Size{{640, 480}, {640, 480}, {1920, 1080}, {300, 200}, {1024, 768}}
	for i, size := range sizes {
		ctx.Resize(size)
		slot := i % 2
		if err := ctx.WaitFrame(slot, 0); err != nil {
			t.Fatalf("wait: %v", err)
		}
		target, err := ctx.Acquire(slot)
		if err != nil {
			t.Fatalf("acquire after resize to %s: %v", size, err)
		}
		if target.Size != size {
			t.Fatalf("target size %s after resize to %s", target.Size, size)
		}
		if err := ctx.Submit(target, &renderer.CommandList{}); err != nil {
			t.Fatalf("submit: %v", err)
		}
		if err := ctx.Present(target); err != nil {
			t.Fatalf("present: %v", err)
		}
	}
	for _, p := range dev.Presentations() {
		if p.Size.Empty() {
			t.Fatalf("presented an empty surface: %+v", p)
		}
	}
}

func TestStaleTargetIsNeverSubmitted(t *testing.T) {
	dev := headless.New()
	ctx := newContext(t, dev, renderer.ContextOptions{})

	target, err := ctx.Acquire(0)
	if err != nil {
		t.Fatal(err)
	}
	ctx.Resize(renderer.Size{Width: 800, Height: 600})

	err = ctx.Submit(target, &renderer.CommandList{})
	if !errors.Is(err, core.ErrStaleTarget) {
		t.Fatalf("submit of stale target: %v", err)
	}
	if !strings.Contains(err.Error(), target.ID) {
		t.Fatalf("error %q does not name frame %s", err, target.ID)
	}
	if n := len(dev.Submissions()); n != 0 {
		t.Fatalf("device saw %d submissions", n)
	}

	fresh, err := ctx.Acquire(0)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Size != (renderer.Size{Width: 800, Height: 600}) {
		t.Fatalf("fresh target size %s", fresh.Size)
	}
	if fresh.ID == "" || fresh.ID == target.ID {
		t.Fatalf("frame ids %q and %q", target.ID, fresh.ID)
	}
}

func TestSurfaceLostReconfiguresOnRetry(t *testing.T) {
	dev := headless.New()
	ctx := newContext(t, dev, renderer.ContextOptions{})
	before := len(dev.Configurations())

	dev.FailNext(headless.OpAcquire, core.ErrSurfaceLost)
	if _, err := ctx.Acquire(0); !errors.Is(err, core.ErrSurfaceLost) || !core.IsTransient(err) {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := ctx.Acquire(0); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := len(dev.Configurations()); got != before+1 {
		t.Fatalf("configurations = %d, want %d", got, before+1)
	}
}

func TestZeroSizeSuspendsAcquire(t *testing.T) {
	dev := headless.New()
	ctx := newContext(t, dev, renderer.ContextOptions{})
	ctx.Resize(renderer.Size{})
	if _, err := ctx.Acquire(0); !errors.Is(err, core.ErrSurfaceSuspended) {
		t.Fatalf("acquire while minimized: %v", err)
	}
	ctx.Resize(renderer.Size{Width: 320, Height: 240})
	target, err := ctx.Acquire(0)
	if err != nil {
		t.Fatalf("acquire after restore: %v", err)
	}
	if target.Size.Width != 320 {
		t.Fatalf("size %s", target.Size)
	}
}

func TestDeviceLossIsSticky(t *testing.T) {
	dev := headless.New()
	ctx := newContext(t, dev, renderer.ContextOptions{})
	dev.FailNext(headless.OpAcquire, core.ErrDeviceLost)

	if _, err := ctx.Acquire(0); !core.IsFatal(err) {
		t.Fatalf("acquire: %v", err)
	}
	if ctx.Lost() == nil {
		t.Fatal("context does not report the loss")
	}
	if _, err := ctx.Acquire(1); !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("second acquire: %v", err)
	}
	if err := ctx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !dev.Destroyed() {
		t.Fatal("device not destroyed on close")
	}
}

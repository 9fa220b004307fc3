package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/math"
)

type ContextOptions struct {
	VSync          bool
	AcquireTimeout time.Duration
	// Formats in order of preference. Empty means sRGB BGRA8, sRGB
	// RGBA8, then the unorm variants.
	PreferredFormats []Format
}

// FrameTarget is one acquired swapchain image. It is only valid for the
// surface configuration it was acquired under.
type FrameTarget struct {
	ID     string
	Slot   int
	Image  uint32
	Size   Size
	Format Format

	generation uint64
	submitted  bool
}

func (t *FrameTarget) Generation() uint64 {
	return t.generation
}

// Context owns the device and the presentable surface. Like the rest of
// the renderer it is driven from the render goroutine only.
type Context struct {
	device Device
	window Window
	opts   ContextOptions
	caps   SurfaceCapabilities
	state  SurfaceState

	requested  Size
	generation uint64
	configured uint64
	dirty      bool

	lost   error
	closed bool
}

// NewContext opens a device through backend and configures the surface
// at preferred, or at the window framebuffer size when preferred is empty.
func NewContext(backend Backend, window Window, preferred Size, opts ContextOptions) (*Context, error) {
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = time.Second
	}
	device, err := backend.Open(window)
	if err != nil {
		core.LogError("failed to open render device: %s", err)
		return nil, err
	}

	if preferred.Empty() && window != nil {
		w, h := window.GetFramebufferSize()
		preferred = Size{Width: uint32(w), Height: uint32(h)}
	}

	c := &Context{
		device:     device,
		window:     window,
		opts:       opts,
		requested:  preferred,
		generation: 1,
	}

	caps, err := device.Capabilities()
	if err != nil {
		_ = device.Destroy()
		return nil, err
	}
	c.caps = caps
	c.state = SurfaceState{
		Size:        preferred,
		Format:      chooseFormat(caps.Formats, opts.PreferredFormats),
		PresentMode: choosePresentMode(caps.PresentModes, opts.VSync),
	}
	if c.state.Format == FormatUndefined {
		_ = device.Destroy()
		return nil, fmt.Errorf("no presentable surface format: %w", core.ErrUnsupportedPlatform)
	}

	if !preferred.Empty() {
		if err := c.reconfigure(); err != nil {
			_ = device.Destroy()
			return nil, err
		}
	}
	core.LogInfo("Surface configured: %s %s %s", c.state.Size, c.state.Format, c.state.PresentMode)
	return c, nil
}

func chooseFormat(supported, preferred []Format) Format {
	if len(preferred) == 0 {
		preferred = []Format{FormatBGRA8Srgb, FormatRGBA8Srgb, FormatBGRA8Unorm, FormatRGBA8Unorm}
	}
	for _, want := range preferred {
		for _, f := range supported {
			if f == want {
				return f
			}
		}
	}
	if len(supported) > 0 {
		return supported[0]
	}
	return FormatUndefined
}

func choosePresentMode(supported []PresentMode, vsync bool) PresentMode {
	if vsync {
		return PresentModeFifo
	}
	for _, want := range []PresentMode{PresentModeMailbox, PresentModeImmediate} {
		for _, m := range supported {
			if m == want {
				return m
			}
		}
	}
	return PresentModeFifo
}

// guard turns the first device loss into a sticky terminal error.
func (c *Context) guard(err error) error {
	if err != nil && errors.Is(err, core.ErrDeviceLost) && c.lost == nil {
		c.lost = err
		core.LogError("render device lost: %s", err)
	}
	return err
}

func (c *Context) usable() error {
	if c.lost != nil {
		return c.lost
	}
	if c.closed {
		return fmt.Errorf("render context: %w", core.ErrClosed)
	}
	return nil
}

func (c *Context) reconfigure() error {
	size := c.requested
	if max := c.caps.MaxSize; !max.Empty() {
		size.Width = math.Min(size.Width, max.Width)
		size.Height = math.Min(size.Height, max.Height)
	}
	next := c.state
	next.Size = size
	if err := c.guard(c.device.Configure(next)); err != nil {
		return err
	}
	c.state = next
	c.configured = c.generation
	c.dirty = false
	core.LogDebug("Surface reconfigured to %s (generation %d)", size, c.generation)
	return nil
}

// Resize records the new framebuffer size. Targets acquired before the
// call become stale; the surface is reconfigured on the next Acquire.
func (c *Context) Resize(size Size) {
	if size == c.requested {
		return
	}
	c.requested = size
	c.generation++
	core.LogDebug("Surface resize requested: %s", size)
}

// Reconfigure forces a surface rebuild at the current requested size.
func (c *Context) Reconfigure() error {
	if err := c.usable(); err != nil {
		return err
	}
	if c.requested.Empty() {
		return core.ErrSurfaceSuspended
	}
	return c.reconfigure()
}

// Acquire returns the next swapchain image for slot. ErrSurfaceLost and
// ErrAcquireTimeout are transient; the surface is rebuilt on the next try.
func (c *Context) Acquire(slot int) (*FrameTarget, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	if c.requested.Empty() {
		return nil, core.ErrSurfaceSuspended
	}
	if c.dirty || c.configured != c.generation {
		if err := c.reconfigure(); err != nil {
			return nil, err
		}
	}

	image, err := c.device.Acquire(slot, c.opts.AcquireTimeout)
	if err != nil {
		if errors.Is(err, core.ErrSurfaceLost) {
			c.dirty = true
		}
		return nil, c.guard(err)
	}
	return &FrameTarget{
		ID:         uuid.New().String(),
		Slot:       slot,
		Image:      image,
		Size:       c.state.Size,
		Format:     c.state.Format,
		generation: c.generation,
	}, nil
}

// Submit hands the recorded commands for target to the queue. Targets
// from an older surface configuration are rejected with ErrStaleTarget
// and never reach the device.
func (c *Context) Submit(target *FrameTarget, cmds *CommandList) error {
	if err := c.usable(); err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("submit: %w", core.ErrStaleTarget)
	}
	if target.generation != c.generation {
		return fmt.Errorf("submit of frame %s from surface generation %d, now %d: %w",
			target.ID, target.generation, c.generation, core.ErrStaleTarget)
	}
	if err := c.guard(c.device.Submit(target.Slot, target.Image, cmds)); err != nil {
		return err
	}
	target.submitted = true
	return nil
}

func (c *Context) Present(target *FrameTarget) error {
	if err := c.usable(); err != nil {
		return err
	}
	if target == nil || !target.submitted {
		return fmt.Errorf("present of an unsubmitted frame target: %w", core.ErrStaleTarget)
	}
	if target.generation != c.generation {
		return fmt.Errorf("present of frame %s from surface generation %d, now %d: %w",
			target.ID, target.generation, c.generation, core.ErrStaleTarget)
	}
	err := c.device.Present(target.Slot, target.Image)
	if errors.Is(err, core.ErrSurfaceLost) {
		c.dirty = true
	}
	return c.guard(err)
}

// Abandon drops an acquired target that will never be presented. The
// swapchain is rebuilt before the next acquire so the image is not lost.
func (c *Context) Abandon(target *FrameTarget) {
	if target == nil || target.submitted {
		return
	}
	c.dirty = true
}

func (c *Context) WaitFrame(slot int, timeout time.Duration) error {
	if err := c.usable(); err != nil {
		return err
	}
	return c.guard(c.device.WaitFrame(slot, timeout))
}

func (c *Context) FrameDone(slot int) bool {
	if c.lost != nil || c.closed {
		return false
	}
	return c.device.FrameDone(slot)
}

func (c *Context) CreateFrameResources(slots, instanceCapacity int) error {
	if err := c.usable(); err != nil {
		return err
	}
	return c.guard(c.device.CreateFrameResources(slots, instanceCapacity))
}

func (c *Context) WriteFrame(slot int, camera, instances []byte) error {
	if err := c.usable(); err != nil {
		return err
	}
	return c.guard(c.device.WriteFrame(slot, camera, instances))
}

// CreateTextureArray and WriteTexture make the context an atlas uploader.
func (c *Context) CreateTextureArray(size, layers uint32) error {
	if err := c.usable(); err != nil {
		return err
	}
	return c.guard(c.device.CreateTextureArray(size, layers))
}

func (c *Context) WriteTexture(layer uint32, rect math.URect, rgba []byte) error {
	if err := c.usable(); err != nil {
		return err
	}
	return c.guard(c.device.WriteTexture(layer, rect, rgba))
}

func (c *Context) State() SurfaceState {
	return c.state
}

// RequestedSize is the latest size passed to Resize.
func (c *Context) RequestedSize() Size {
	return c.requested
}

func (c *Context) Generation() uint64 {
	return c.generation
}

// Lost returns the device loss error, if any.
func (c *Context) Lost() error {
	return c.lost
}

// Close waits for the device to go idle and releases it. After a device
// loss there is nothing left to wait for.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.lost == nil {
		if err := c.device.WaitIdle(); err != nil {
			core.LogWarn("device wait idle failed: %s", err)
		}
	}
	return c.device.Destroy()
}

package renderer

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/anima2d/engine/math"
)

type Size struct {
	Width  uint32
	Height uint32
}

func (s Size) Empty() bool {
	return s.Width == 0 || s.Height == 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

type Format uint8

const (
	FormatUndefined Format = iota
	FormatBGRA8Srgb
	FormatBGRA8Unorm
	FormatRGBA8Srgb
	FormatRGBA8Unorm
)

func (f Format) String() string {
	switch f {
	case FormatBGRA8Srgb:
		return "bgra8-srgb"
	case FormatBGRA8Unorm:
		return "bgra8-unorm"
	case FormatRGBA8Srgb:
		return "rgba8-srgb"
	case FormatRGBA8Unorm:
		return "rgba8-unorm"
	}
	return "undefined"
}

type PresentMode uint8

const (
	// PresentModeFifo waits for vblank. Every device supports it.
	PresentModeFifo PresentMode = iota
	PresentModeFifoRelaxed
	PresentModeMailbox
	PresentModeImmediate
)

func (p PresentMode) String() string {
	switch p {
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo-relaxed"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeImmediate:
		return "immediate"
	}
	return "unknown"
}

// SurfaceState is the configuration the presentable surface currently has.
type SurfaceState struct {
	Size        Size
	Format      Format
	PresentMode PresentMode
}

type SurfaceCapabilities struct {
	Formats      []Format
	PresentModes []PresentMode
	// zero means no limit
	MaxSize Size
}

// Window is the part of the platform window the context needs.
type Window interface {
	GetFramebufferSize() (width, height int)
}

// Backend opens a device bound to a window surface.
type Backend interface {
	Open(window Window) (Device, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(window Window) (Device, error)

func (f BackendFunc) Open(window Window) (Device, error) {
	return f(window)
}

// Device is a GPU backend. Slots index per frame-in-flight resources:
// the acquire semaphore, the command buffer, the fence and the
// instance/uniform buffers. Errors wrap the sentinels in engine/core.
type Device interface {
	Capabilities() (SurfaceCapabilities, error)
	// Configure (re)creates the swapchain. Every image acquired before
	// the call is abandoned.
	Configure(state SurfaceState) error
	Acquire(slot int, timeout time.Duration) (image uint32, err error)
	// Submit queues cmds and arms the slot's fence.
	Submit(slot int, image uint32, cmds *CommandList) error
	Present(slot int, image uint32) error
	// WaitFrame blocks until the slot's last submission completes.
	WaitFrame(slot int, timeout time.Duration) error
	FrameDone(slot int) bool

	CreateFrameResources(slots int, instanceCapacity int) error
	// WriteFrame copies the camera uniform and the instance records into
	// the slot's buffers. The slot must not be in flight.
	WriteFrame(slot int, camera []byte, instances []byte) error

	CreateTextureArray(size, layers uint32) error
	WriteTexture(layer uint32, rect math.URect, rgba []byte) error

	WaitIdle() error
	Destroy() error
}

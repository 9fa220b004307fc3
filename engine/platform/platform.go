package platform

import (
	"runtime"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/input"
	"github.com/spaghettifunk/anima2d/engine/renderer"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns the glfw window and queues its events for the input
// bridge. It is an input.Source.
type Platform struct {
	Window *glfw.Window
	events input.Queue
}

func New() (*Platform, error) {
	return &Platform{
		Window: nil,
	}, nil
}

func (p *Platform) Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetMouseButtonCallback(p.mouseButtonCallback)
	p.Window.SetCursorPosCallback(p.cursorPosCallback)
	p.Window.SetScrollCallback(p.scrollCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	core.LogInfo("Window %q created (%dx%d)", applicationName, width, height)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages runs the glfw callbacks for everything that happened
// since the last call. Drain hands the resulting events to the bridge.
func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

func (p *Platform) Drain() []input.Event {
	return p.events.Drain()
}

// RenderWindow is the window the renderer draws into. It is nil before
// Startup.
func (p *Platform) RenderWindow() renderer.Window {
	if p.Window == nil {
		return nil
	}
	return p.Window
}

func Sleep(d time.Duration) {
	time.Sleep(d)
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action == glfw.Repeat {
		return
	}
	code, ok := translateKey(key)
	if !ok {
		return
	}
	p.events.Push(input.Event{Type: input.EventKey, Key: code, Pressed: action == glfw.Press})
}

func (p *Platform) mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	var b input.Button
	switch button {
	case glfw.MouseButtonLeft:
		b = input.BUTTON_LEFT
	case glfw.MouseButtonRight:
		b = input.BUTTON_RIGHT
	case glfw.MouseButtonMiddle:
		b = input.BUTTON_MIDDLE
	default:
		return
	}
	p.events.Push(input.Event{Type: input.EventButton, Button: b, Pressed: action == glfw.Press})
}

func (p *Platform) cursorPosCallback(w *glfw.Window, xpos, ypos float64) {
	p.events.Push(input.Event{Type: input.EventPointerMove, X: float32(xpos), Y: float32(ypos)})
}

func (p *Platform) scrollCallback(w *glfw.Window, xoff, yoff float64) {
	p.events.Push(input.Event{Type: input.EventScroll, ScrollX: float32(xoff), ScrollY: float32(yoff)})
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.events.Push(input.Event{Type: input.EventResize, Width: uint32(width), Height: uint32(height)})
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.events.Push(input.Event{Type: input.EventClose})
}

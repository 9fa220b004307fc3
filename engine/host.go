package engine

import (
	"github.com/spaghettifunk/anima2d/engine/audio"
	"github.com/spaghettifunk/anima2d/engine/input"
	"github.com/spaghettifunk/anima2d/engine/renderer"
	"github.com/spaghettifunk/anima2d/engine/renderer/headless"
)

// Host is the windowing side of the engine. platform.Platform is the
// glfw implementation.
type Host interface {
	input.Source
	Startup(name string, x, y, width, height uint32) error
	// PumpMessages collects pending window events for the next Drain.
	PumpMessages()
	RenderWindow() renderer.Window
	Shutdown() error
}

// headlessHost is used with the headless backend. Nothing opens a
// window, events are only what is pushed onto Events.
type headlessHost struct {
	Events input.Queue
	window headless.Window
}

func (h *headlessHost) Startup(name string, x, y, width, height uint32) error {
	h.window = headless.Window{Width: int(width), Height: int(height)}
	return nil
}

func (h *headlessHost) PumpMessages() {}

func (h *headlessHost) Drain() []input.Event { return h.Events.Drain() }

func (h *headlessHost) RenderWindow() renderer.Window { return &h.window }

func (h *headlessHost) Shutdown() error { return nil }

type Option func(*Engine)

// WithHost replaces the glfw platform.
func WithHost(h Host) Option {
	return func(e *Engine) { e.host = h }
}

// WithBackend replaces the backend selected by renderer.backend.
func WithBackend(b renderer.Backend) Option {
	return func(e *Engine) { e.backend = b }
}

// WithMixer replaces the mixer selected by audio.enabled.
func WithMixer(m audio.Mixer) Option {
	return func(e *Engine) { e.mixer = m }
}

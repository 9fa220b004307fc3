// Package input turns raw platform events into one immutable snapshot
// per tick.
package input

import (
	"sync"

	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/math"
)

type EventType uint8

const (
	EventKey EventType = iota
	EventButton
	EventPointerMove
	EventScroll
	EventResize
	EventClose
)

// Event is one raw platform event. Only the fields of its Type are set.
type Event struct {
	Type    EventType
	Key     KeyCode
	Button  Button
	Pressed bool
	X, Y    float32
	ScrollX float32
	ScrollY float32
	Width   uint32
	Height  uint32
}

// Source is the platform side of the bridge. Drain returns every event
// queued since the previous call.
type Source interface {
	Drain() []Event
}

// Resizer receives framebuffer size changes before the snapshot that
// reports them is returned.
type Resizer interface {
	Resize(width, height uint32)
}

type ResizeFunc func(width, height uint32)

func (f ResizeFunc) Resize(width, height uint32) { f(width, height) }

const maxKeys = 256

// Snapshot is the input state of one tick. It is never modified after
// Poll returns it.
type Snapshot struct {
	keys         [maxKeys]bool
	keysPressed  [maxKeys]bool
	keysReleased [maxKeys]bool

	buttons         [BUTTON_MAX_BUTTONS]bool
	buttonsPressed  [BUTTON_MAX_BUTTONS]bool
	buttonsReleased [BUTTON_MAX_BUTTONS]bool

	pointer math.Vec2
	scroll  math.Vec2

	resized bool
	width   uint32
	height  uint32

	closeRequested bool
}

func (s *Snapshot) KeyDown(k KeyCode) bool { return int(k) < maxKeys && s.keys[k] }

// KeyPressed reports a press during this tick, including a press that
// was released again before the tick ended.
func (s *Snapshot) KeyPressed(k KeyCode) bool  { return int(k) < maxKeys && s.keysPressed[k] }
func (s *Snapshot) KeyReleased(k KeyCode) bool { return int(k) < maxKeys && s.keysReleased[k] }

func (s *Snapshot) ButtonDown(b Button) bool {
	return b < BUTTON_MAX_BUTTONS && s.buttons[b]
}

func (s *Snapshot) ButtonPressed(b Button) bool {
	return b < BUTTON_MAX_BUTTONS && s.buttonsPressed[b]
}

func (s *Snapshot) ButtonReleased(b Button) bool {
	return b < BUTTON_MAX_BUTTONS && s.buttonsReleased[b]
}

func (s *Snapshot) Pointer() math.Vec2 { return s.pointer }

// Scroll is the wheel movement accumulated over the tick.
func (s *Snapshot) Scroll() math.Vec2 { return s.scroll }

// Resized reports whether the framebuffer size changed this tick.
func (s *Snapshot) Resized() bool { return s.resized }

func (s *Snapshot) Size() (uint32, uint32) { return s.width, s.height }

func (s *Snapshot) CloseRequested() bool { return s.closeRequested }

// Bridge drains a Source once per tick. It is driven from the main
// goroutine only.
type Bridge struct {
	src      Source
	resizers []Resizer

	keys    [maxKeys]bool
	buttons [BUTTON_MAX_BUTTONS]bool
	pointer math.Vec2
	width   uint32
	height  uint32
	quit    bool
}

func NewBridge(src Source, width, height uint32, resizers ...Resizer) *Bridge {
	return &Bridge{
		src:      src,
		resizers: resizers,
		width:    width,
		height:   height,
	}
}

func (b *Bridge) AddResizer(r Resizer) {
	b.resizers = append(b.resizers, r)
}

// Poll drains all pending events into a new snapshot. Pointer moves and
// resizes collapse to their latest value; a resize is forwarded to every
// Resizer before Poll returns.
func (b *Bridge) Poll() *Snapshot {
	s := &Snapshot{}
	resized := false
	for _, e := range b.src.Drain() {
		switch e.Type {
		case EventKey:
			if int(e.Key) >= maxKeys {
				core.LogDebug("ignoring key code %d", e.Key)
				continue
			}
			if b.keys[e.Key] == e.Pressed {
				continue
			}
			b.keys[e.Key] = e.Pressed
			if e.Pressed {
				s.keysPressed[e.Key] = true
			} else {
				s.keysReleased[e.Key] = true
			}
		case EventButton:
			if e.Button >= BUTTON_MAX_BUTTONS || b.buttons[e.Button] == e.Pressed {
				continue
			}
			b.buttons[e.Button] = e.Pressed
			if e.Pressed {
				s.buttonsPressed[e.Button] = true
			} else {
				s.buttonsReleased[e.Button] = true
			}
		case EventPointerMove:
			b.pointer = math.Vec2{X: e.X, Y: e.Y}
		case EventScroll:
			s.scroll.X += e.ScrollX
			s.scroll.Y += e.ScrollY
		case EventResize:
			if e.Width != b.width || e.Height != b.height {
				b.width, b.height = e.Width, e.Height
				resized = true
			}
		case EventClose:
			b.quit = true
		}
	}

	if resized {
		core.LogDebug("framebuffer resized to %dx%d", b.width, b.height)
		for _, r := range b.resizers {
			r.Resize(b.width, b.height)
		}
	}

	s.keys = b.keys
	s.buttons = b.buttons
	s.pointer = b.pointer
	s.resized = resized
	s.width, s.height = b.width, b.height
	s.closeRequested = b.quit
	return s
}

// QuitRequested reports whether a close event has been seen. The outer
// loop decides when to stop.
func (b *Bridge) QuitRequested() bool {
	return b.quit
}

func (b *Bridge) RequestQuit() {
	b.quit = true
}

// Queue is a Source fed by Push. It is safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	events []Event
}

func (q *Queue) Push(events ...Event) {
	q.mu.Lock()
	q.events = append(q.events, events...)
	q.mu.Unlock()
}

func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

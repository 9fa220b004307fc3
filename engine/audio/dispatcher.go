// Package audio queues sound cues from the render goroutine and plays
// them on a mixer goroutine. The render side never waits on the mixer.
package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima2d/engine/containers"
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

type Cue = metadata.AudioCue

// Mixer plays cues. Its methods run on the dispatcher goroutine only.
// Stop silences every instance of a sound, StopInstance only the cue
// queued under id.
type Mixer interface {
	Play(cue Cue) error
	Stop(name string) error
	StopInstance(id string) error
}

// stopRequest names either a sound or one cue instance.
type stopRequest struct {
	name string
	id   string
}

type Stats struct {
	Submitted uint64
	// Queued cues displaced by newer ones, or dropped at shutdown.
	Dropped uint64
	Played  uint64
	Failed  uint64
}

type Dispatcher struct {
	mu       sync.Mutex
	queue    *containers.RingQueue[Cue]
	stops    []stopRequest
	bindings map[string]Cue
	stats    Stats
	closed   bool

	mixer   Mixer
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

func NewDispatcher(mixer Mixer, capacity int) (*Dispatcher, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("audio queue capacity must be positive, got %d: %w", capacity, core.ErrInvalidConfig)
	}
	if mixer == nil {
		mixer = NullMixer{}
	}
	return &Dispatcher{
		queue:    containers.NewRingQueue[Cue](capacity),
		bindings: make(map[string]Cue),
		mixer:    mixer,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the mixer goroutine. Without it cues only move when
// Pump is called.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	d.wg.Add(1)
	go d.run()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
			d.Pump()
		}
	}
}

// Submit queues cue and returns its instance id. When the queue is full
// the oldest non-looping cue is dropped to make room; if every queued
// cue loops, ErrAudioQueueFull is returned and nothing changes.
func (d *Dispatcher) Submit(cue Cue) (string, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", fmt.Errorf("audio dispatcher: %w", core.ErrClosed)
	}
	if d.queue.IsFull() {
		dropped, ok := d.queue.RemoveFirst(func(c Cue) bool { return !c.Loop })
		if !ok {
			d.mu.Unlock()
			return "", fmt.Errorf("cue %q: %d looping cues queued: %w", cue.Name, d.queue.Len(), core.ErrAudioQueueFull)
		}
		d.stats.Dropped++
		core.LogDebug("audio queue full, dropped cue %q", dropped.Name)
	}
	cue.InstanceID = uuid.New().String()
	if err := d.queue.Enqueue(cue); err != nil {
		d.mu.Unlock()
		return "", err
	}
	d.stats.Submitted++
	d.mu.Unlock()

	d.signal()
	return cue.InstanceID, nil
}

// Stop asks the mixer to silence every playing instance of name.
func (d *Dispatcher) Stop(name string) error {
	return d.requestStop(stopRequest{name: name})
}

// StopInstance silences the single cue Submit returned id for. A cue
// that is still queued is removed before it reaches the mixer.
func (d *Dispatcher) StopInstance(id string) error {
	if id == "" {
		return nil
	}
	return d.requestStop(stopRequest{id: id})
}

func (d *Dispatcher) requestStop(r stopRequest) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("audio dispatcher: %w", core.ErrClosed)
	}
	if r.id != "" {
		if _, ok := d.queue.RemoveFirst(func(c Cue) bool { return c.InstanceID == r.id }); ok {
			d.mu.Unlock()
			return nil
		}
	}
	d.stops = append(d.stops, r)
	d.mu.Unlock()
	d.signal()
	return nil
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Bind maps a gameplay event to the cue Trigger submits for it.
func (d *Dispatcher) Bind(event string, cue Cue) {
	d.mu.Lock()
	d.bindings[event] = cue
	d.mu.Unlock()
}

// Trigger submits the cue bound to event. Unbound events are ignored.
func (d *Dispatcher) Trigger(event string) error {
	d.mu.Lock()
	cue, ok := d.bindings[event]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := d.Submit(cue)
	return err
}

// Dispatch submits the packet cues and then the cues bound to its
// events. Exhaustion is logged, not returned, so one noisy frame cannot
// stall the loop.
func (d *Dispatcher) Dispatch(cues []Cue, events []string) {
	for _, c := range cues {
		if _, err := d.Submit(c); err != nil && !errors.Is(err, core.ErrClosed) {
			core.LogWarn("audio cue %q not queued: %s", c.Name, err)
		}
	}
	for _, e := range events {
		if err := d.Trigger(e); err != nil && !errors.Is(err, core.ErrClosed) {
			core.LogWarn("audio event %q not queued: %s", e, err)
		}
	}
}

// Pump hands everything queued so far to the mixer on the calling
// goroutine.
func (d *Dispatcher) Pump() {
	d.mu.Lock()
	stops := d.stops
	d.stops = nil
	cues := d.queue.Items()
	d.queue.Clear()
	d.mu.Unlock()

	var played, failed uint64
	for _, r := range stops {
		if r.id != "" {
			if err := d.mixer.StopInstance(r.id); err != nil {
				core.LogWarn("failed to stop cue %s: %s", r.id, err)
			}
			continue
		}
		if err := d.mixer.Stop(r.name); err != nil {
			core.LogWarn("failed to stop sound %q: %s", r.name, err)
		}
	}
	for _, c := range cues {
		if err := d.mixer.Play(c); err != nil {
			failed++
			core.LogWarn("failed to play sound %q: %s", c.Name, err)
			continue
		}
		played++
	}

	d.mu.Lock()
	d.stats.Played += played
	d.stats.Failed += failed
	d.mu.Unlock()
}

// Pending is the number of queued cues.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Len()
}

func (d *Dispatcher) Capacity() int {
	return d.queue.Cap()
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Close stops the mixer goroutine. Cues still queued are dropped.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	pending := d.queue.Len()
	d.stats.Dropped += uint64(pending)
	d.queue.Clear()
	d.stops = nil
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()
	if pending > 0 {
		core.LogDebug("audio dispatcher closed, %d cues dropped", pending)
	}
	return nil
}

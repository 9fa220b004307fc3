package audio

import (
	"sync"

	"github.com/spaghettifunk/anima2d/engine/core"
)

// NullMixer discards every cue. It is used when audio is disabled.
type NullMixer struct{}

func (NullMixer) Play(c Cue) error {
	core.LogDebug("audio disabled, cue %q ignored", c.Name)
	return nil
}

func (NullMixer) Stop(string) error { return nil }

func (NullMixer) StopInstance(string) error { return nil }

// RecordingMixer keeps every call, for tests and headless runs. Hold,
// when set, is received from before each Play returns.
type RecordingMixer struct {
	mu     sync.Mutex
	played []Cue
	stops  []string
	ids    []string
	Hold   chan struct{}
}

func (m *RecordingMixer) Play(c Cue) error {
	if m.Hold != nil {
		<-m.Hold
	}
	m.mu.Lock()
	m.played = append(m.played, c)
	m.mu.Unlock()
	return nil
}

func (m *RecordingMixer) Stop(name string) error {
	m.mu.Lock()
	m.stops = append(m.stops, name)
	m.mu.Unlock()
	return nil
}

func (m *RecordingMixer) StopInstance(id string) error {
	m.mu.Lock()
	m.ids = append(m.ids, id)
	m.mu.Unlock()
	return nil
}

func (m *RecordingMixer) Played() []Cue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Cue(nil), m.played...)
}

func (m *RecordingMixer) Stopped() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.stops...)
}

func (m *RecordingMixer) StoppedInstances() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ids...)
}

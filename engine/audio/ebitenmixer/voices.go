package ebitenmixer

import (
	"github.com/google/uuid"
	engineaudio "github.com/spaghettifunk/anima2d/engine/audio"
	"github.com/spaghettifunk/anima2d/engine/core"
)

// player is the part of *audio.Player the mixer drives.
type player interface {
	IsPlaying() bool
	Pause()
	Close() error
}

type voice struct {
	name   string
	player player
}

// voices are the started players by cue instance id.
type voices map[string]voice

func (v voices) add(c engineaudio.Cue, p player) {
	id := c.InstanceID
	if id == "" {
		// cues played without the dispatcher still need a key
		id = uuid.New().String()
	}
	if old, ok := v[id]; ok {
		v.release(id, old)
	}
	v[id] = voice{name: c.Name, player: p}
}

func (v voices) stop(id string) bool {
	vc, ok := v[id]
	if !ok {
		return false
	}
	vc.player.Pause()
	v.release(id, vc)
	return true
}

func (v voices) stopNamed(name string) int {
	n := 0
	for id, vc := range v {
		if vc.name == name {
			v.stop(id)
			n++
		}
	}
	return n
}

func (v voices) stopAll() {
	for id := range v {
		v.stop(id)
	}
}

// reap closes players that finished on their own.
func (v voices) reap() {
	for id, vc := range v {
		if !vc.player.IsPlaying() {
			v.release(id, vc)
		}
	}
}

func (v voices) release(id string, vc voice) {
	if err := vc.player.Close(); err != nil {
		core.LogWarn("closing player for %q: %s", vc.name, err)
	}
	delete(v, id)
}

package ebitenmixer

import (
	"testing"

	engineaudio "github.com/spaghettifunk/anima2d/engine/audio"
)

type fakePlayer struct {
	playing bool
	paused  bool
	closed  bool
}

func (p *fakePlayer) IsPlaying() bool { return p.playing && !p.paused }
func (p *fakePlayer) Pause()          { p.paused = true }
func (p *fakePlayer) Close() error {
	p.closed = true
	return nil
}

func TestStopInstanceLeavesOtherVoices(t *testing.T) {
	v := voices{}
	first := &fakePlayer{playing: true}
	second := &fakePlayer{playing: true}
	v.add(engineaudio.Cue{Name: "engine", InstanceID: "a"}, first)
	v.add(engineaudio.Cue{Name: "engine", InstanceID: "b"}, second)

	if !v.stop("a") {
		t.Fatal("instance a not found")
	}
	if !first.paused || !first.closed {
		t.Fatalf("first player %+v", first)
	}
	if second.paused || second.closed {
		t.Fatalf("second player stopped with the first: %+v", second)
	}
	if v.stop("a") {
		t.Fatal("instance a stopped twice")
	}
	if len(v) != 1 {
		t.Fatalf("%d voices left, want 1", len(v))
	}
}

func TestStopNamedAndReap(t *testing.T) {
	v := voices{}
	shot1 := &fakePlayer{playing: true}
	shot2 := &fakePlayer{playing: true}
	music := &fakePlayer{playing: true}
	done := &fakePlayer{}
	v.add(engineaudio.Cue{Name: "shot", InstanceID: "1"}, shot1)
	v.add(engineaudio.Cue{Name: "shot", InstanceID: "2"}, shot2)
	v.add(engineaudio.Cue{Name: "music", InstanceID: "3"}, music)
	v.add(engineaudio.Cue{Name: "hit"}, done)

	if n := v.stopNamed("shot"); n != 2 {
		t.Fatalf("stopped %d shots, want 2", n)
	}
	v.reap()
	if !done.closed {
		t.Fatal("finished player not released")
	}
	if len(v) != 1 || music.closed {
		t.Fatalf("voices %v, music %+v", v, music)
	}
	v.stopAll()
	if len(v) != 0 || !music.closed {
		t.Fatal("stopAll left players behind")
	}
}

func TestGain(t *testing.T) {
	tests := []struct {
		volume float32
		want   float64
	}{
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{3, 1},
		{-1, 0},
	}
	for _, tt := range tests {
		if got := gain(engineaudio.Cue{Volume: tt.volume}); got != tt.want {
			t.Errorf("gain(%v) = %v, want %v", tt.volume, got, tt.want)
		}
	}
}

// Package ebitenmixer plays audio cues through the ebiten audio context.
package ebitenmixer

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
	engineaudio "github.com/spaghettifunk/anima2d/engine/audio"
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/math"
)

// Mixer decodes sounds from a directory on first use and keeps them in
// memory as 16 bit stereo PCM at the context sample rate.
type Mixer struct {
	ctx     *audio.Context
	dir     string
	sounds  map[string][]byte
	playing voices
}

func New(sampleRate int, soundDir string) *Mixer {
	return &Mixer{
		ctx:     audio.NewContext(sampleRate),
		dir:     soundDir,
		sounds:  make(map[string][]byte),
		playing: make(voices),
	}
}

func (m *Mixer) load(name string) ([]byte, error) {
	if pcm, ok := m.sounds[name]; ok {
		return pcm, nil
	}
	for _, ext := range []string{".wav", ".ogg"} {
		path := filepath.Join(m.dir, name+ext)
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		pcm, err := m.decode(f, ext)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		m.sounds[name] = pcm
		core.LogDebug("Sound %q loaded (%d bytes of PCM)", name, len(pcm))
		return pcm, nil
	}
	return nil, fmt.Errorf("no sound named %q in %s", name, m.dir)
}

func (m *Mixer) decode(r io.Reader, ext string) ([]byte, error) {
	var stream io.Reader
	var err error
	switch strings.ToLower(ext) {
	case ".wav":
		stream, err = wav.DecodeWithSampleRate(m.ctx.SampleRate(), r)
	case ".ogg":
		stream, err = vorbis.DecodeWithSampleRate(m.ctx.SampleRate(), r)
	default:
		return nil, fmt.Errorf("unsupported sound format %q", ext)
	}
	if err != nil {
		return nil, err
	}
	return io.ReadAll(stream)
}

// Play starts a new player for the cue, tracked under its instance id.
// Finished players are released here as well.
func (m *Mixer) Play(c engineaudio.Cue) error {
	pcm, err := m.load(c.Name)
	if err != nil {
		return err
	}
	m.reap()

	var src io.Reader = bytes.NewReader(pcm)
	if c.Loop {
		src = audio.NewInfiniteLoop(bytes.NewReader(pcm), int64(len(pcm)))
	}
	if c.Pan != 0 {
		src = newPanReader(src, c.Pan)
	}
	p, err := m.ctx.NewPlayer(src)
	if err != nil {
		return err
	}
	p.SetVolume(gain(c))
	p.Play()
	m.playing.add(c, p)
	return nil
}

func (m *Mixer) Stop(name string) error {
	m.playing.stopNamed(name)
	return nil
}

func (m *Mixer) StopInstance(id string) error {
	m.playing.stop(id)
	return nil
}

func (m *Mixer) reap() {
	m.playing.reap()
}

// Close stops every player.
func (m *Mixer) Close() error {
	m.playing.stopAll()
	return nil
}

// gain maps the cue volume to the player volume. Zero is silent.
func gain(c engineaudio.Cue) float64 {
	return float64(math.Clamp(c.Volume, 0, 1))
}

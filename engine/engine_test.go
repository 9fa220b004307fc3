package engine

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima2d/engine/assets"
	"github.com/spaghettifunk/anima2d/engine/assets/loaders"
	"github.com/spaghettifunk/anima2d/engine/audio"
	"github.com/spaghettifunk/anima2d/engine/config"
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/input"
	"github.com/spaghettifunk/anima2d/engine/math"
	"github.com/spaghettifunk/anima2d/engine/renderer"
	"github.com/spaghettifunk/anima2d/engine/renderer/headless"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

// scriptedHost hands out one batch of events per PumpMessages call.
type scriptedHost struct {
	headlessHost
	steps [][]input.Event
	pumps int
}

func (h *scriptedHost) PumpMessages() {
	if h.pumps < len(h.steps) {
		h.Events.Push(h.steps[h.pumps]...)
	}
	h.pumps++
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Renderer.Backend = "headless"
	cfg.Renderer.VSync = true
	cfg.Atlas.LayerSize = 64
	cfg.Atlas.MaxLayers = 1
	cfg.Audio.Enabled = false
	cfg.Assets.Dir = t.TempDir()
	cfg.Assets.HotReload = false
	return cfg
}

func solidImage(w, h uint32, v byte) metadata.Image {
	px := make([]byte, w*h*4)
	for i := range px {
		px[i] = v
	}
	return metadata.Image{Width: w, Height: h, Format: metadata.PixelFormatRGBA8, Pixels: px}
}

func newTestEngine(t *testing.T, g *Game, host Host) (*Engine, *headless.Device) {
	t.Helper()
	dev := headless.New()
	e, err := New(g, testConfig(t), WithBackend(dev.Backend()), WithHost(host), WithMixer(&audio.RecordingMixer{}))
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize: %s", err)
	}
	t.Cleanup(func() { e.Shutdown() })
	return e, dev
}

func countDraws(cmds []renderer.Command) int {
	n := 0
	for _, c := range cmds {
		if c.Op == renderer.OpDraw {
			n += int(c.InstanceCount)
		}
	}
	return n
}

func TestEngineRunsTicksUntilQuit(t *testing.T) {
	g := &Game{}
	var tex *Texture
	ticks := 0
	g.FnInitialize = func() error {
		var err error
		tex, err = g.Systems.Textures.Add("player", solidImage(8, 8, 255))
		return err
	}
	g.FnUpdate = func(dt float64, in *input.Snapshot) error {
		ticks++
		if ticks == 3 {
			g.Systems.Quit()
		}
		return nil
	}
	g.FnRender = func(p *metadata.RenderPacket, dt float64) error {
		p.Draw(metadata.SpriteDrawRequest{Texture: tex.Handle, Position: math.Vec2{X: 10, Y: 10}})
		p.Draw(metadata.SpriteDrawRequest{Texture: tex.Handle, Position: math.Vec2{X: 20, Y: 10}, Depth: 1})
		return nil
	}

	e, dev := newTestEngine(t, g, &scriptedHost{})
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %s", err)
	}
	if ticks != 3 {
		t.Fatalf("game updated %d times, want 3", ticks)
	}
	subs := dev.Submissions()
	if len(subs) != 3 {
		t.Fatalf("%d submissions, want 3", len(subs))
	}
	for i, s := range subs {
		if got := countDraws(s.Commands); got != 2 {
			t.Errorf("submission %d drew %d instances, want 2", i, got)
		}
	}
	if len(dev.Presentations()) != 3 {
		t.Errorf("%d presentations, want 3", len(dev.Presentations()))
	}
	if e.Metrics().Dropped() != 0 {
		t.Errorf("%d frames dropped", e.Metrics().Dropped())
	}
}

func TestEngineStopsOnCloseRequest(t *testing.T) {
	g := &Game{}
	ticks := 0
	g.FnUpdate = func(float64, *input.Snapshot) error {
		ticks++
		return nil
	}
	host := &scriptedHost{steps: [][]input.Event{nil, {{Type: input.EventClose}}}}
	e, dev := newTestEngine(t, g, host)
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %s", err)
	}
	if ticks != 1 || len(dev.Submissions()) != 1 {
		t.Fatalf("ticks %d submissions %d, want 1 and 1", ticks, len(dev.Submissions()))
	}
}

func TestEngineSuspendsWhileMinimized(t *testing.T) {
	g := &Game{}
	var sizes [][2]uint32
	ticks := 0
	g.FnUpdate = func(float64, *input.Snapshot) error {
		ticks++
		return nil
	}
	g.FnOnResize = func(w, h uint32) error {
		sizes = append(sizes, [2]uint32{w, h})
		return nil
	}
	host := &scriptedHost{steps: [][]input.Event{
		{{Type: input.EventResize, Width: 0, Height: 0}},
		nil,
		{{Type: input.EventResize, Width: 640, Height: 480}},
		{{Type: input.EventClose}},
	}}
	e, dev := newTestEngine(t, g, host)
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %s", err)
	}
	if ticks != 1 {
		t.Fatalf("game updated %d times while mostly minimized, want 1", ticks)
	}
	subs := dev.Submissions()
	if len(subs) != 1 || subs[0].Size != (renderer.Size{Width: 640, Height: 480}) {
		t.Fatalf("submissions %+v, want one at 640x480", subs)
	}
	// the initial size, then the restore
	if len(sizes) != 2 || sizes[1] != [2]uint32{640, 480} {
		t.Fatalf("resize callbacks %v", sizes)
	}
}

func TestEngineReturnsDeviceLoss(t *testing.T) {
	g := &Game{}
	ticks := 0
	var dev *headless.Device
	g.FnUpdate = func(float64, *input.Snapshot) error {
		ticks++
		if ticks == 2 {
			dev.LoseDevice()
		}
		return nil
	}
	var e *Engine
	e, dev = newTestEngine(t, g, &scriptedHost{})
	err := e.Run()
	if !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("Run returned %v, want device lost", err)
	}
	if ticks != 2 || len(dev.Submissions()) != 1 {
		t.Fatalf("ticks %d submissions %d", ticks, len(dev.Submissions()))
	}
	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown after device loss: %s", err)
	}
}

func TestEngineDispatchesPacketAudio(t *testing.T) {
	g := &Game{}
	g.FnInitialize = func() error {
		g.Systems.Audio.Bind("hit", audio.Cue{Name: "hit", Volume: 1})
		return nil
	}
	g.FnUpdate = func(float64, *input.Snapshot) error {
		g.Systems.Quit()
		return nil
	}
	g.FnRender = func(p *metadata.RenderPacket, dt float64) error {
		p.Play(audio.Cue{Name: "shot", Volume: 0.5})
		p.Emit("hit")
		p.Emit("unbound")
		return nil
	}
	mixer := &audio.RecordingMixer{}
	dev := headless.New()
	e, err := New(g, testConfig(t), WithBackend(dev.Backend()), WithHost(&scriptedHost{}), WithMixer(mixer))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	st := e.Systems().Audio.Stats()
	if st.Submitted != 2 {
		t.Fatalf("submitted %d cues, want 2", st.Submitted)
	}
	if err := e.Shutdown(); err != nil {
		t.Fatal(err)
	}
}

func TestTextureSystemReload(t *testing.T) {
	g := &Game{}
	e, _ := newTestEngine(t, g, &scriptedHost{})
	ts := e.Systems().Textures

	tex, err := ts.Add("crate", solidImage(8, 8, 10))
	if err != nil {
		t.Fatal(err)
	}
	old := tex.Handle

	reloads := []assets.Reload{
		{Name: "crate", Type: loaders.ResourceTypeImage, Resource: &loaders.Resource{Data: solidImage(16, 8, 20)}},
		{Name: "font", Type: loaders.ResourceTypeFont, Err: errors.New("not mine")},
		{Name: "unknown", Type: loaders.ResourceTypeImage, Resource: &loaders.Resource{Data: solidImage(4, 4, 0)}},
	}
	rest := ts.Apply(reloads)
	if len(rest) != 1 || rest[0].Name != "font" {
		t.Fatalf("unhandled reloads %+v", rest)
	}
	if got, _ := ts.Get("crate"); got != tex {
		t.Fatal("reload replaced the texture pointer")
	}
	if tex.Handle == old || tex.Width != 16 {
		t.Fatalf("texture not updated: %+v", tex)
	}
	if _, err := e.Atlas().Resolve(old, 1); !errors.Is(err, core.ErrStaleHandle) {
		t.Fatalf("old handle resolved: %v", err)
	}

	// a failed reload keeps the current copy
	ts.Apply([]assets.Reload{{Name: "crate", Type: loaders.ResourceTypeImage, Err: errors.New("truncated png")}})
	if _, err := e.Atlas().Resolve(tex.Handle, 1); err != nil {
		t.Fatalf("texture lost after failed reload: %s", err)
	}

	if err := ts.Release("crate"); err != nil {
		t.Fatal(err)
	}
	if _, ok := ts.Get("crate"); ok {
		t.Fatal("released texture still registered")
	}
	if err := ts.Release("crate"); !errors.Is(err, assets.ErrAssetNotFound) {
		t.Fatalf("second release: %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Renderer.MaxFramesInFlight = 0
	if _, err := New(&Game{}, cfg); !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("New returned %v", err)
	}
	if _, err := New(nil, nil); !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("New(nil) returned %v", err)
	}
}

func TestShadersLoadThroughAssetManager(t *testing.T) {
	cfg := testConfig(t)
	spv := make([]byte, 8)
	binary.LittleEndian.PutUint32(spv, 0x07230203)
	binary.LittleEndian.PutUint32(spv[4:], 42)
	if err := os.MkdirAll(filepath.Join(cfg.Assets.Dir, "shaders"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Assets.Dir, "shaders", "sprite.vert.spv"), spv, 0o644); err != nil {
		t.Fatal(err)
	}

	e, err := New(&Game{}, cfg, WithBackend(headless.New().Backend()), WithHost(&scriptedHost{}), WithMixer(&audio.RecordingMixer{}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.loadShader("sprite.vert"); !errors.Is(err, assets.ErrAssetNotFound) {
		t.Fatalf("shader before Initialize: %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Shutdown() })

	code, err := e.loadShader("sprite.vert")
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != 2 || code[1] != 42 {
		t.Fatalf("code = %v", code)
	}
	if info, ok := e.assetManager.Info("sprite.vert", loaders.ResourceTypeShader); !ok || !info.Loaded {
		t.Fatalf("shader not tracked for reload: %+v", info)
	}
}

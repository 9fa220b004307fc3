package testbed

import (
	"fmt"

	"github.com/spaghettifunk/anima2d/engine"
	"github.com/spaghettifunk/anima2d/engine/animation"
	"github.com/spaghettifunk/anima2d/engine/audio"
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/input"
	"github.com/spaghettifunk/anima2d/engine/math"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
	"github.com/spaghettifunk/anima2d/engine/text"
	"github.com/tanema/gween/ease"
)

const (
	spriteSheetName = "spritesheet"
	hudFontName     = "hud"
	ambienceName    = "ambience"
	sheetSize       = 256
	sheetCells      = 4
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	world *world
	sheet *engine.Texture
	hud   *text.Face
	// fades the HUD in after startup
	hudFade  *animation.Tween
	hudAlpha float32
	flash    *animation.ColorTween
	tint     math.Color
	events   []string
	// instance id of the playing ambience loop, empty while muted
	ambience string
	width    uint32
	height   uint32
}

func NewTestGame(app *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: app,
			State:             &gameState{tint: math.White},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.Systems == nil {
		return fmt.Errorf("the engine is not yet initialized with all the systems")
	}
	state := g.State.(*gameState)

	sheet, err := g.Systems.Textures.Acquire(spriteSheetName)
	if err != nil {
		core.LogWarn("no sprite sheet found, using a generated one: %s", err)
		sheet, err = g.Systems.Textures.Add(spriteSheetName, generatedSheet(sheetSize, sheetCells))
		if err != nil {
			return err
		}
	}
	state.sheet = sheet
	state.world = newWorld(animation.NewGrid(sheet.Width, sheet.Height, sheetCells, sheetCells))

	// the HUD is optional
	if face, err := g.Systems.Fonts.Acquire(hudFontName); err == nil {
		state.hud = face
		state.hudFade = animation.NewTween(0, 1, 1, ease.InOutQuad)
	} else {
		core.LogInfo("HUD disabled: %s", err)
	}

	g.Systems.Audio.Bind(eventShot, audio.Cue{Name: "shot", Volume: 0.6})
	g.Systems.Audio.Bind(eventHit, audio.Cue{Name: "hit", Volume: 1})
	return g.toggleAmbience(state)
}

// toggleAmbience starts the background loop, or stops the instance
// started last time.
func (g *TestGame) toggleAmbience(state *gameState) error {
	if state.ambience != "" {
		err := g.Systems.Audio.StopInstance(state.ambience)
		state.ambience = ""
		return err
	}
	id, err := g.Systems.Audio.Submit(audio.Cue{Name: ambienceName, Volume: 0.3, Loop: true})
	if err != nil {
		return err
	}
	state.ambience = id
	return nil
}

func (g *TestGame) Update(deltaTime float64, in *input.Snapshot) error {
	state := g.State.(*gameState)

	if in.KeyPressed(input.KEY_ESCAPE) {
		core.LogInfo("Escape pressed, quitting.")
		g.Systems.Quit()
		return nil
	}

	if in.KeyPressed(input.KEY_M) {
		if err := g.toggleAmbience(state); err != nil {
			core.LogWarn("ambience toggle failed: %s", err)
		}
	}

	c := controls{
		leftPressed:   in.KeyPressed(input.KEY_LEFT),
		leftReleased:  in.KeyReleased(input.KEY_LEFT),
		rightPressed:  in.KeyPressed(input.KEY_RIGHT),
		rightReleased: in.KeyReleased(input.KEY_RIGHT),
	}
	state.events = append(state.events[:0], state.world.step(c, deltaTime)...)

	for _, e := range state.events {
		if e == eventHit {
			state.flash = animation.NewColorTween(math.NewColor(1, 0.2, 0.2, 1), math.White, 0.3, ease.OutQuad)
		}
	}
	if state.hudFade != nil {
		var done bool
		state.hudAlpha, done = state.hudFade.Update(float32(deltaTime))
		if done {
			state.hudFade = nil
		}
	}
	if state.flash != nil {
		var done bool
		state.tint, done = state.flash.Update(float32(deltaTime))
		if done {
			state.flash = nil
		}
	}
	return nil
}

func (g *TestGame) Render(packet *metadata.RenderPacket, deltaTime float64) error {
	state := g.State.(*gameState)

	state.world.draw(packet, state.sheet.Handle, state.tint)
	for _, e := range state.events {
		packet.Emit(e)
	}

	if state.hud != nil {
		label := fmt.Sprintf("HITS %d", state.world.hits)
		packet.Sprites = state.hud.Layout(packet.Sprites, label, math.NewVec2(16, 752), text.Style{
			Tint:  math.White.WithAlpha(state.hudAlpha),
			Depth: 10,
		})
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	core.LogDebug("TestGame resized to %dx%d", width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	if state.world != nil {
		core.LogInfo("TestGame shutting down after %d hits", state.world.hits)
	}
	return nil
}

// generatedSheet draws a cells x cells grid of flat coloured squares,
// used when no sprite sheet is on disk.
func generatedSheet(size, cells uint32) metadata.Image {
	palette := [][4]byte{
		{80, 200, 120, 255},
		{240, 200, 60, 255},
		{60, 140, 240, 255},
		{200, 80, 200, 255},
		{250, 120, 40, 255},
		{220, 40, 60, 255},
		{180, 30, 50, 255},
		{120, 120, 120, 255},
	}
	cell := size / cells
	px := make([]byte, size*size*4)
	for y := uint32(0); y < size; y++ {
		for x := uint32(0); x < size; x++ {
			i := (y/cell)*cells + x/cell
			c := palette[int(i)%len(palette)]
			// one pixel dark border per cell
			if x%cell == 0 || y%cell == 0 || x%cell == cell-1 || y%cell == cell-1 {
				c = [4]byte{0, 0, 0, 255}
			}
			copy(px[(y*size+x)*4:], c[:])
		}
	}
	return metadata.Image{
		Name:   spriteSheetName,
		Width:  size,
		Height: size,
		Format: metadata.PixelFormatRGBA8,
		Pixels: px,
	}
}

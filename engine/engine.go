package engine

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/anima2d/engine/assets"
	"github.com/spaghettifunk/anima2d/engine/audio"
	"github.com/spaghettifunk/anima2d/engine/audio/ebitenmixer"
	"github.com/spaghettifunk/anima2d/engine/config"
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/input"
	"github.com/spaghettifunk/anima2d/engine/math"
	"github.com/spaghettifunk/anima2d/engine/platform"
	"github.com/spaghettifunk/anima2d/engine/renderer"
	"github.com/spaghettifunk/anima2d/engine/renderer/atlas"
	"github.com/spaghettifunk/anima2d/engine/renderer/batch"
	"github.com/spaghettifunk/anima2d/engine/renderer/headless"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
	"github.com/spaghettifunk/anima2d/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// suspended windows are polled at this rate until restored
const suspendedPollInterval = 16 * time.Millisecond

// Systems is what the game reaches the engine through.
type Systems struct {
	Textures *TextureSystem
	Fonts    *FontSystem
	Audio    *audio.Dispatcher
	Assets   *assets.Manager
	Metrics  *core.Metrics

	engine *Engine
}

// Quit ends the loop after the current tick.
func (s *Systems) Quit() {
	s.engine.Quit()
}

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *config.Config
	isRunning    bool
	isSuspended  bool

	host         Host
	backend      renderer.Backend
	mixer        audio.Mixer
	assetManager *assets.Manager
	atlas        *atlas.Manager
	compiler     *batch.Compiler
	pipeline     *renderer.Pipeline
	dispatcher   *audio.Dispatcher
	bridge       *input.Bridge
	systems      *Systems

	packet   metadata.RenderPacket
	width    uint32
	height   uint32
	clock    *core.Clock
	metrics  *core.Metrics
	lastTime float64
	fatal    error
	// set by Quit, which may run on any goroutine
	quit atomic.Bool
}

// New prepares an engine for g. A nil cfg uses config.Default. Nothing
// is opened until Initialize.
func New(g *Game, cfg *config.Config, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("engine needs a game: %w", core.ErrInvalidConfig)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = NewApplicationConfig(cfg)
	}

	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        g.ApplicationConfig.StartWidth,
		height:       g.ApplicationConfig.StartHeight,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.currentStage = EngineStageBooting
	if e.host == nil {
		if cfg.Renderer.Backend == "headless" {
			e.host = &headlessHost{}
		} else {
			p, err := platform.New()
			if err != nil {
				core.LogError(err.Error())
				return nil, err
			}
			e.host = p
		}
	}
	if e.backend == nil {
		switch cfg.Renderer.Backend {
		case "headless":
			e.backend = headless.New().Backend()
		default:
			e.backend = vulkan.New(vulkan.Options{
				AppName:    g.ApplicationConfig.Name,
				ShaderDir:  cfg.Renderer.ShaderDir,
				Shaders:    e.loadShader,
				Validation: cfg.Renderer.Validation,
			})
		}
	}
	if e.mixer == nil {
		if cfg.Audio.Enabled {
			e.mixer = ebitenmixer.New(cfg.Audio.SampleRate, cfg.Audio.SoundDir)
		} else {
			e.mixer = audio.NullMixer{}
		}
	}
	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageBootComplete {
		return fmt.Errorf("engine cannot initialize from stage %d", e.currentStage)
	}
	e.currentStage = EngineStageInitializing
	app := e.gameInstance.ApplicationConfig
	cfg := e.config

	if err := e.host.Startup(app.Name, app.StartPosX, app.StartPosY, app.StartWidth, app.StartHeight); err != nil {
		return err
	}

	ctx, err := renderer.NewContext(e.backend, e.host.RenderWindow(), renderer.Size{Width: e.width, Height: e.height}, renderer.ContextOptions{
		VSync:          cfg.Renderer.VSync,
		AcquireTimeout: cfg.Renderer.AcquireTimeout.Duration,
	})
	if err != nil {
		core.LogError("failed to create the render context: %s", err)
		return err
	}
	e.pipeline, err = renderer.NewPipeline(ctx, renderer.PipelineOptions{
		FramesInFlight: cfg.Renderer.MaxFramesInFlight,
		MaxInstances:   cfg.Renderer.MaxSprites,
		FenceTimeout:   cfg.Renderer.FenceTimeout.Duration,
		Clear:          math.Color{W: 1},
		Camera: metadata.Camera{
			Size: math.Vec2{X: cfg.Renderer.CameraWidth, Y: cfg.Renderer.CameraHeight},
		},
		OnFatal: func(err error) { e.fatal = err },
	})
	if err != nil {
		ctx.Close()
		return err
	}

	e.atlas, err = atlas.New(ctx, atlas.Options{
		LayerSize: cfg.Atlas.LayerSize,
		MaxLayers: cfg.Atlas.MaxLayers,
		Padding:   cfg.Atlas.Padding,
	})
	if err != nil {
		return err
	}
	e.compiler = batch.NewCompiler(e.atlas, batch.Policy{})

	e.assetManager, err = assets.NewManager(cfg.Assets.Dir, assets.Options{
		Workers:   cfg.Assets.Workers,
		HotReload: cfg.Assets.HotReload,
	})
	if err != nil {
		core.LogError("failed to index assets in %s: %s", cfg.Assets.Dir, err)
		return err
	}

	e.dispatcher, err = audio.NewDispatcher(e.mixer, cfg.Audio.MaxQueuedCues)
	if err != nil {
		return err
	}
	e.dispatcher.Start()

	e.bridge = input.NewBridge(e.host, e.width, e.height, e.pipeline, input.ResizeFunc(e.onResized))

	e.systems = &Systems{
		Textures: NewTextureSystem(e.assetManager, e.atlas),
		Fonts:    NewFontSystem(e.assetManager, e.atlas),
		Audio:    e.dispatcher,
		Assets:   e.assetManager,
		Metrics:  e.metrics,
		engine:   e,
	}
	e.gameInstance.Systems = e.systems

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Run ticks until the window closes, the game quits or the renderer
// fails. Only the fatal render error is returned.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine is not initialized")
	}
	e.currentStage = EngineStageRunning
	e.isRunning = true

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		if err := e.tick(); err != nil {
			e.isRunning = false
			return err
		}
		if e.quit.Load() {
			core.LogInfo("Quit requested, shutting down.")
			e.isRunning = false
		}
	}
	return nil
}

// tick runs poll → update → render → dispatch → compile → submit →
// reclaim once.
func (e *Engine) tick() error {
	e.host.PumpMessages()
	snapshot := e.bridge.Poll()
	if e.bridge.QuitRequested() {
		core.LogInfo("Window closed, shutting down.")
		e.isRunning = false
		return nil
	}
	if e.isSuspended {
		platform.Sleep(suspendedPollInterval)
		return nil
	}

	e.clock.Update()
	currentTime := e.clock.Elapsed()
	delta := currentTime - e.lastTime
	e.lastTime = currentTime
	frameStart := time.Now()

	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta, snapshot); err != nil {
			core.LogError("Game update failed, shutting down: %s", err)
			return err
		}
	}

	e.packet.Reset()
	e.packet.DeltaTime = delta
	if e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(&e.packet, delta); err != nil {
			core.LogError("Game render failed, shutting down: %s", err)
			return err
		}
	}

	e.dispatcher.Dispatch(e.packet.Cues, e.packet.Events)

	result := e.compiler.Compile(e.packet.Sprites, e.pipeline.Serial())
	if n := len(result.Rejected); n > 0 {
		core.LogDebug("%d sprites rejected this frame, first: %s", n, result.Rejected[0].Err)
	}

	submitted := e.pipeline.Stats().Submitted
	if err := e.pipeline.Render(renderer.Frame{
		Batches: result,
		Camera:  e.packet.Camera,
		Clear:   e.packet.Clear,
	}); err != nil {
		return err
	}
	if e.fatal != nil {
		return e.fatal
	}
	if e.pipeline.Stats().Submitted == submitted {
		e.metrics.FrameDropped()
	}

	e.atlas.Reclaim(e.pipeline.CompletedSerial())

	reloads := e.assetManager.Poll()
	if len(reloads) > 0 {
		reloads = e.systems.Textures.Apply(reloads)
		reloads = e.systems.Fonts.Apply(reloads)
		for _, r := range reloads {
			core.LogDebug("asset %s (%s) changed, nothing to reload", r.Name, r.Type)
		}
	}

	frameElapsed := time.Since(frameStart)
	e.metrics.Update(frameElapsed.Seconds())
	if !e.config.Renderer.VSync {
		// Without vsync the loop gives the rest of the frame back to the OS.
		if remaining := targetFrameTime - frameElapsed; remaining > time.Millisecond {
			platform.Sleep(remaining - time.Millisecond)
		}
	}
	return nil
}

const targetFrameTime = time.Second / 60

// Quit ends Run after the current tick. It is safe to call from any
// goroutine.
func (e *Engine) Quit() {
	e.quit.Store(true)
}

// Shutdown releases everything Initialize created, in reverse order. It
// is safe after a failed Initialize.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	var errs []error
	if e.gameInstance.FnShutdown != nil && e.systems != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.dispatcher != nil {
		errs = append(errs, e.dispatcher.Close())
	}
	if c, ok := e.mixer.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if e.assetManager != nil {
		errs = append(errs, e.assetManager.Close())
	}
	if e.pipeline != nil {
		errs = append(errs, e.pipeline.Close())
	}
	if e.host != nil {
		errs = append(errs, e.host.Shutdown())
	}
	err := errors.Join(errs...)
	if err != nil {
		core.LogError("shutdown: %s", err)
	}
	return err
}

// GetFramebufferSize returns the width and height (in this order) of
// the application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Systems() *Systems {
	return e.systems
}

func (e *Engine) Pipeline() *renderer.Pipeline {
	return e.pipeline
}

func (e *Engine) Atlas() *atlas.Manager {
	return e.atlas
}

func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

// onResized runs from the input bridge after the pipeline saw the new
// size.
func (e *Engine) onResized(width, height uint32) {
	if width == e.width && height == e.height {
		return
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
		e.clock.Update()
		e.lastTime = e.clock.Elapsed()
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
}

// loadShader reads SPIR-V through the asset manager, so shaders under
// the asset directory are found by name like any other asset.
func (e *Engine) loadShader(name string) ([]uint32, error) {
	if e.assetManager == nil {
		return nil, fmt.Errorf("shader %s requested before the asset manager: %w", name, assets.ErrAssetNotFound)
	}
	return e.assetManager.LoadShader(name)
}

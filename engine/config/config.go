package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima2d/engine/core"
)

const DefaultFile = "anima2d.toml"

type Config struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Atlas    AtlasConfig    `toml:"atlas"`
	Audio    AudioConfig    `toml:"audio"`
	Assets   AssetsConfig   `toml:"assets"`
	Log      LogConfig      `toml:"log"`
}

type WindowConfig struct {
	Title  string `toml:"title"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RendererConfig struct {
	// vulkan or headless
	Backend           string   `toml:"backend"`
	MaxFramesInFlight int      `toml:"max_frames_in_flight"`
	VSync             bool     `toml:"vsync"`
	MaxSprites        int      `toml:"max_sprites"`
	FenceTimeout      Duration `toml:"fence_timeout"`
	AcquireTimeout    Duration `toml:"acquire_timeout"`
	ShaderDir         string   `toml:"shader_dir"`
	Validation        bool     `toml:"validation"`
	// world space camera, independent of the window size
	CameraWidth  float32 `toml:"camera_width"`
	CameraHeight float32 `toml:"camera_height"`
}

type AtlasConfig struct {
	LayerSize uint32 `toml:"layer_size"`
	MaxLayers uint32 `toml:"max_layers"`
	Padding   uint32 `toml:"padding"`
}

type AudioConfig struct {
	Enabled       bool   `toml:"enabled"`
	MaxQueuedCues int    `toml:"max_queued_cues"`
	SampleRate    int    `toml:"sample_rate"`
	SoundDir      string `toml:"sound_dir"`
}

type AssetsConfig struct {
	Dir       string `toml:"dir"`
	HotReload bool   `toml:"hot_reload"`
	Workers   int    `toml:"workers"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Duration decodes TOML strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "Anima 2D",
			X:      100,
			Y:      100,
			Width:  1024,
			Height: 768,
		},
		Renderer: RendererConfig{
			Backend:           "vulkan",
			MaxFramesInFlight: 2,
			VSync:             true,
			MaxSprites:        1000,
			FenceTimeout:      Duration{time.Second},
			AcquireTimeout:    Duration{time.Second},
			ShaderDir:         "assets/shaders",
			CameraWidth:       1024,
			CameraHeight:      768,
		},
		Atlas: AtlasConfig{
			LayerSize: 1024,
			MaxLayers: 4,
			Padding:   1,
		},
		Audio: AudioConfig{
			Enabled:       true,
			MaxQueuedCues: 64,
			SampleRate:    44100,
			SoundDir:      "assets/sounds",
		},
		Assets: AssetsConfig{
			Dir:       "assets",
			HotReload: true,
			Workers:   2,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Parse decodes data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("%w: line %d column %d: %s", core.ErrInvalidConfig, row, col, derr.Error())
		}
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		core.LogDebug("config file %s not found, using defaults", path)
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", core.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return invalid("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	}
	switch c.Renderer.Backend {
	case "vulkan", "headless":
	default:
		return invalid("unknown renderer backend %q", c.Renderer.Backend)
	}
	if c.Renderer.MaxFramesInFlight < 1 || c.Renderer.MaxFramesInFlight > 3 {
		return invalid("max_frames_in_flight must be between 1 and 3, got %d", c.Renderer.MaxFramesInFlight)
	}
	if c.Renderer.MaxSprites < 1 {
		return invalid("max_sprites must be positive")
	}
	if c.Renderer.CameraWidth <= 0 || c.Renderer.CameraHeight <= 0 {
		return invalid("camera size must be positive")
	}
	if c.Atlas.LayerSize < 16 || c.Atlas.LayerSize&(c.Atlas.LayerSize-1) != 0 {
		return invalid("atlas layer_size must be a power of two >= 16, got %d", c.Atlas.LayerSize)
	}
	if c.Atlas.MaxLayers < 1 {
		return invalid("atlas max_layers must be positive")
	}
	if c.Audio.MaxQueuedCues < 1 {
		return invalid("audio max_queued_cues must be positive")
	}
	if c.Audio.SampleRate <= 0 {
		return invalid("audio sample_rate must be positive")
	}
	if c.Assets.Workers < 1 {
		return invalid("assets workers must be positive")
	}
	if _, err := core.ParseLogLevel(c.Log.Level); err != nil {
		return invalid("%s", err)
	}
	return nil
}

// LogLevel returns the parsed log level, assuming Validate passed.
func (c *Config) LogLevel() core.LogLevel {
	l, _ := core.ParseLogLevel(c.Log.Level)
	return l
}

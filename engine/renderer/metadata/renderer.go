package metadata

import (
	"github.com/spaghettifunk/anima2d/engine/math"
)

/** @brief Colour blending applied by a pipeline variant. */
type BlendMode uint8

const (
	/** @brief Straight alpha: src*a + dst*(1-a). */
	BlendAlpha BlendMode = iota
	/** @brief Additive: src*a + dst. */
	BlendAdditive
	/** @brief Premultiplied alpha: src + dst*(1-a). */
	BlendPremultiplied
	/** @brief No blending, src replaces dst. */
	BlendOpaque
	BlendModeCount
)

func (b BlendMode) String() string {
	switch b {
	case BlendAlpha:
		return "alpha"
	case BlendAdditive:
		return "additive"
	case BlendPremultiplied:
		return "premultiplied"
	case BlendOpaque:
		return "opaque"
	}
	return "unknown"
}

/** @brief Whether a batch tests against the depth value of earlier sprites. */
type DepthTest uint8

const (
	DepthTestOff DepthTest = iota
	DepthTestLessEqual
	DepthTestCount
)

/**
 * @brief One sprite to draw this frame. Built by game code, read-only to
 * the renderer, never kept past the frame.
 */
type SpriteDrawRequest struct {
	/** @brief World position of the origin point. */
	Position math.Vec2
	/** @brief Rotation in radians around the origin. */
	Rotation float32
	/** @brief World size of the sprite. A zero size uses the source rect size. */
	Size math.Vec2
	/** @brief Origin in units of the sprite size, {0.5, 0.5} is the centre. */
	Origin  math.Vec2
	Texture TextureHandle
	/** @brief Pixel rect inside the loaded image. Zero selects the whole image. */
	Source math.URect
	/** @brief Multiplied with the sampled colour. The zero colour is treated as white. */
	Tint      math.Color
	Depth     float32
	Blend     BlendMode
	DepthTest DepthTest
	/** @brief Mirrors the source rect horizontally. */
	FlipX bool
	FlipY bool
}

/**
 * @brief World space camera uploaded once per frame.
 * Matches the std140 layout of the sprite vertex shader uniform.
 */
type Camera struct {
	Position math.Vec2
	Size     math.Vec2
}

const CameraUniformSize = 16

/** @brief Bytes per instance record in the instance buffer. */
const InstanceStride = 64

/** @brief A sound to play. Transient message to the mixer. */
type AudioCue struct {
	/** @brief Sound bank name. */
	Name string
	/** @brief Linear gain in [0, 1]. Zero is silent, values outside are clamped. */
	Volume float32
	/** @brief Stereo position in [-1, 1], 0 is centred. */
	Pan  float32
	Loop bool
	/** @brief Set by the dispatcher when queued, used to stop this one cue. */
	InstanceID string
}

/**
 * @brief Everything the game hands to the renderer and the audio
 * dispatcher for one tick.
 */
type RenderPacket struct {
	DeltaTime float64
	Sprites   []SpriteDrawRequest
	Cues      []AudioCue
	/** @brief Gameplay event names, resolved to cues through the audio bindings. */
	Events []string
	Camera *Camera
	Clear  *math.Color
}

// Reset empties the packet, keeping the backing arrays.
func (p *RenderPacket) Reset() {
	p.Sprites = p.Sprites[:0]
	p.Cues = p.Cues[:0]
	p.Events = p.Events[:0]
	p.Camera = nil
	p.Clear = nil
}

func (p *RenderPacket) Draw(r SpriteDrawRequest) {
	p.Sprites = append(p.Sprites, r)
}

func (p *RenderPacket) Play(c AudioCue) {
	p.Cues = append(p.Cues, c)
}

func (p *RenderPacket) Emit(event string) {
	p.Events = append(p.Events, event)
}

package metadata

import (
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/math"
)

/**
 * @brief Opaque reference to an image resident in the texture atlas.
 * The zero value is never valid. Evicting the image makes every copy of
 * the handle stale.
 */
type TextureHandle core.ID

const InvalidTextureHandle TextureHandle = 0

func (h TextureHandle) String() string {
	return core.ID(h).String()
}

/**
 * @brief A live rectangle inside one layer of the atlas texture array.
 */
type Region struct {
	/** @brief Index of the texture array layer. */
	Layer uint32
	/** @brief Pixel rectangle inside the layer. */
	Rect math.URect
	/** @brief Size of the layer, needed to turn pixels into UVs. */
	LayerSize uint32
}

// UV returns the normalized u, v, width, height of sub, a rectangle in
// image-local pixels. A zero sub selects the whole region.
func (r Region) UV(sub math.URect) [4]float32 {
	if sub.Empty() {
		sub = math.URect{W: r.Rect.W, H: r.Rect.H}
	}
	s := float32(r.LayerSize)
	return [4]float32{
		float32(r.Rect.X+sub.X) / s,
		float32(r.Rect.Y+sub.Y) / s,
		float32(sub.W) / s,
		float32(sub.H) / s,
	}
}

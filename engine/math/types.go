package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief An RGBA colour with components in [0, 1]. */
type Color Vec4

var (
	White = Color{1, 1, 1, 1}
	Black = Color{0, 0, 0, 1}
)

/**
 * @brief An axis aligned rectangle. X/Y is the minimum corner.
 */
type Rect struct {
	X, Y, W, H float32
}

/**
 * @brief An integer rectangle, used for pixel regions inside textures.
 */
type URect struct {
	X, Y, W, H uint32
}

/**
 * @brief A 2D affine transform stored as the first two rows of a 3x3
 * matrix, column-major: | A C E |
 *                       | B D F |
 */
type Affine2D struct {
	A, B, C, D, E, F float32
}

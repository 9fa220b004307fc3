package metadata

import "fmt"

/** @brief Channel layout of decoded pixel data. */
type PixelFormat uint8

const (
	PixelFormatUnknown PixelFormat = iota
	/** @brief 4 bytes per pixel, red first. This is the atlas storage format. */
	PixelFormatRGBA8
	PixelFormatBGRA8
	PixelFormatRGB8
	PixelFormatGray8
	PixelFormatGrayAlpha8
	/** @brief 16 bit channels. Decoders produce it, the atlas does not take it. */
	PixelFormatRGBA16
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatRGBA8:
		return "rgba8"
	case PixelFormatBGRA8:
		return "bgra8"
	case PixelFormatRGB8:
		return "rgb8"
	case PixelFormatGray8:
		return "gray8"
	case PixelFormatGrayAlpha8:
		return "gray-alpha8"
	case PixelFormatRGBA16:
		return "rgba16"
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// BytesPerPixel returns 0 for unknown formats.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case PixelFormatRGBA8, PixelFormatBGRA8:
		return 4
	case PixelFormatRGB8:
		return 3
	case PixelFormatGray8:
		return 1
	case PixelFormatGrayAlpha8:
		return 2
	case PixelFormatRGBA16:
		return 8
	}
	return 0
}

/**
 * @brief Decoded image handed to the atlas by the asset loaders.
 * Rows are tightly packed, top row first.
 */
type Image struct {
	/** @brief Optional name, used in log lines. */
	Name   string
	Width  uint32
	Height uint32
	Format PixelFormat
	Pixels []uint8
}

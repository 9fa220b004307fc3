package atlas

import (
	"fmt"

	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

// toRGBA converts img to tightly packed RGBA8, the layout of the texture
// array. RGBA8 input is returned as is.
func toRGBA(img metadata.Image) ([]byte, error) {
	if img.Width == 0 || img.Height == 0 {
		return nil, fmt.Errorf("image %q is empty (%dx%d): %w", img.Name, img.Width, img.Height, core.ErrUnsupportedFormat)
	}
	bpp := img.Format.BytesPerPixel()
	switch img.Format {
	case metadata.PixelFormatRGBA8, metadata.PixelFormatBGRA8, metadata.PixelFormatRGB8,
		metadata.PixelFormatGray8, metadata.PixelFormatGrayAlpha8:
	default:
		return nil, fmt.Errorf("image %q has format %s: %w", img.Name, img.Format, core.ErrUnsupportedFormat)
	}
	pixels := int(img.Width) * int(img.Height)
	if len(img.Pixels) < pixels*bpp {
		return nil, fmt.Errorf("image %q has %d bytes, %dx%d %s needs %d: %w",
			img.Name, len(img.Pixels), img.Width, img.Height, img.Format, pixels*bpp, core.ErrUnsupportedFormat)
	}

	src := img.Pixels
	if img.Format == metadata.PixelFormatRGBA8 {
		return src[:pixels*4], nil
	}

	out := make([]byte, pixels*4)
	for i := 0; i < pixels; i++ {
		d := out[i*4 : i*4+4]
		switch img.Format {
		case metadata.PixelFormatBGRA8:
			s := src[i*4 : i*4+4]
			d[0], d[1], d[2], d[3] = s[2], s[1], s[0], s[3]
		case metadata.PixelFormatRGB8:
			s := src[i*3 : i*3+3]
			d[0], d[1], d[2], d[3] = s[0], s[1], s[2], 0xff
		case metadata.PixelFormatGray8:
			g := src[i]
			d[0], d[1], d[2], d[3] = g, g, g, 0xff
		case metadata.PixelFormatGrayAlpha8:
			g, a := src[i*2], src[i*2+1]
			d[0], d[1], d[2], d[3] = g, g, g, a
		}
	}
	return out, nil
}

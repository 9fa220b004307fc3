package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

// ImageLoader decodes png, jpeg, bmp and webp files. Gray images stay
// single channel, everything else is converted to straight alpha RGBA8.
type ImageLoader struct {
	FlipY bool
}

func (il *ImageLoader) Load(path string) (*Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	img := il.convert(src)
	img.Name = nameOf(path)

	return &Resource{
		Name:     img.Name,
		FullPath: path,
		Type:     ResourceTypeImage,
		DataSize: uint64(len(img.Pixels)),
		Data:     img,
	}, nil
}

func (il *ImageLoader) convert(src image.Image) metadata.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	var out metadata.Image
	switch s := src.(type) {
	case *image.Gray:
		g := image.NewGray(image.Rect(0, 0, w, h))
		draw.Draw(g, g.Bounds(), s, b.Min, draw.Src)
		out = metadata.Image{Format: metadata.PixelFormatGray8, Pixels: g.Pix}
	default:
		n := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(n, n.Bounds(), src, b.Min, draw.Src)
		out = metadata.Image{Format: metadata.PixelFormatRGBA8, Pixels: n.Pix}
	}
	out.Width, out.Height = uint32(w), uint32(h)
	if il.FlipY {
		flipRows(out.Pixels, w*out.Format.BytesPerPixel(), h)
	}
	return out
}

func flipRows(pix []uint8, stride, rows int) {
	tmp := make([]uint8, stride)
	for top, bottom := 0, rows-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := pix[top*stride : (top+1)*stride]
		b := pix[bottom*stride : (bottom+1)*stride]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}

// nameOf is the asset name of a file: its base name without extension.
func nameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

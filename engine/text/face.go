// Package text lays out bitmap font strings as sprite draw requests.
package text

import (
	"fmt"
	"unicode/utf8"

	"github.com/spaghettifunk/anima2d/engine/assets/loaders"
	"github.com/spaghettifunk/anima2d/engine/math"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

type glyph struct {
	source   math.URect
	xOffset  float32
	yOffset  float32
	xAdvance float32
	page     int
}

type kernPair struct {
	first, second rune
}

// Face is a bitmap font whose pages are resident in the atlas.
type Face struct {
	Name       string
	LineHeight float32
	Base       float32

	glyphs  map[rune]glyph
	kerning map[kernPair]float32
	pages   []metadata.TextureHandle
}

// Style controls how Layout turns glyphs into sprites.
type Style struct {
	// Scale of 0 draws at the font's pixel size.
	Scale float32
	Tint  math.Color
	Depth float32
	Blend metadata.BlendMode
}

const fallback = '?'

// NewFace binds data to pages, the atlas handles of data.Pages in order.
func NewFace(data *loaders.FontData, pages []metadata.TextureHandle) (*Face, error) {
	if len(pages) != len(data.Pages) {
		return nil, fmt.Errorf("font %s has %d pages, got %d handles", data.Face, len(data.Pages), len(pages))
	}
	pageIndex := make(map[int]int, len(data.Pages))
	for i, p := range data.Pages {
		pageIndex[p.ID] = i
	}

	f := &Face{
		Name:       data.Face,
		LineHeight: float32(data.LineHeight),
		Base:       float32(data.Base),
		glyphs:     make(map[rune]glyph, len(data.Glyphs)),
		kerning:    make(map[kernPair]float32, len(data.Kernings)),
		pages:      pages,
	}
	for _, g := range data.Glyphs {
		page, ok := pageIndex[g.Page]
		if !ok {
			return nil, fmt.Errorf("font %s: glyph %q on unknown page %d", data.Face, g.Codepoint, g.Page)
		}
		f.glyphs[g.Codepoint] = glyph{
			source:   math.URect{X: uint32(g.X), Y: uint32(g.Y), W: uint32(g.Width), H: uint32(g.Height)},
			xOffset:  float32(g.XOffset),
			yOffset:  float32(g.YOffset),
			xAdvance: float32(g.XAdvance),
			page:     page,
		}
	}
	for _, k := range data.Kernings {
		f.kerning[kernPair{k.First, k.Second}] = float32(k.Amount)
	}
	return f, nil
}

func (f *Face) lookup(r rune) (glyph, bool) {
	if g, ok := f.glyphs[r]; ok {
		return g, true
	}
	g, ok := f.glyphs[fallback]
	return g, ok
}

// Layout appends one request per visible glyph of s to dst. pos is the
// top left corner of the first line, y grows upwards and each newline
// moves down by the line height.
func (f *Face) Layout(dst []metadata.SpriteDrawRequest, s string, pos math.Vec2, style Style) []metadata.SpriteDrawRequest {
	scale := style.Scale
	if scale == 0 {
		scale = 1
	}
	pen := pos
	prev := utf8.RuneError
	for _, r := range s {
		if r == '\n' {
			pen.X = pos.X
			pen.Y -= f.LineHeight * scale
			prev = utf8.RuneError
			continue
		}
		g, ok := f.lookup(r)
		if !ok {
			continue
		}
		pen.X += f.kerning[kernPair{prev, r}] * scale
		prev = r

		if !g.source.Empty() {
			w, h := float32(g.source.W)*scale, float32(g.source.H)*scale
			dst = append(dst, metadata.SpriteDrawRequest{
				Position: math.Vec2{
					X: pen.X + g.xOffset*scale,
					Y: pen.Y - g.yOffset*scale - h,
				},
				Size:    math.Vec2{X: w, Y: h},
				Texture: f.pages[g.page],
				Source:  g.source,
				Tint:    style.Tint,
				Depth:   style.Depth,
				Blend:   style.Blend,
			})
		}
		pen.X += g.xAdvance * scale
	}
	return dst
}

// Measure returns the width of the widest line and the height of all
// lines of s at scale 1.
func (f *Face) Measure(s string) math.Vec2 {
	var width, line float32
	lines := 1
	prev := utf8.RuneError
	for _, r := range s {
		if r == '\n' {
			width = math.Max(width, line)
			line = 0
			lines++
			prev = utf8.RuneError
			continue
		}
		g, ok := f.lookup(r)
		if !ok {
			continue
		}
		line += f.kerning[kernPair{prev, r}] + g.xAdvance
		prev = r
	}
	return math.Vec2{X: math.Max(width, line), Y: float32(lines) * f.LineHeight}
}

// Pages returns the atlas handles the face draws from.
func (f *Face) Pages() []metadata.TextureHandle {
	return f.pages
}

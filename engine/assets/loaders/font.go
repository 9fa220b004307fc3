package loaders

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/fzipp/bmfont"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

type FontGlyph struct {
	Codepoint        rune
	X, Y             uint16
	Width, Height    uint16
	XOffset, YOffset int16
	XAdvance         int16
	Page             int
}

type FontKerning struct {
	First, Second rune
	Amount        int16
}

type FontPage struct {
	ID    int
	File  string
	Image metadata.Image
}

// FontData is a parsed AngelCode bitmap font with its page images.
type FontData struct {
	Face       string
	Size       int
	LineHeight int
	Base       int
	ScaleW     int
	ScaleH     int
	Glyphs     []FontGlyph
	Kernings   []FontKerning
	Pages      []FontPage
}

// BitmapFontLoader reads .fnt descriptors. Page images are resolved
// relative to the descriptor and decoded with Images.
type BitmapFontLoader struct {
	Images ImageLoader
}

func (fl *BitmapFontLoader) Load(path string) (*Resource, error) {
	font, err := bmfont.Load(path)
	if err != nil {
		return nil, fmt.Errorf("bitmap font %s: %w", path, err)
	}
	d := font.Descriptor

	out := &FontData{
		Face:       d.Info.Face,
		Size:       int(d.Info.Size),
		LineHeight: int(d.Common.LineHeight),
		Base:       int(d.Common.Base),
		ScaleW:     int(d.Common.ScaleW),
		ScaleH:     int(d.Common.ScaleH),
		Glyphs:     make([]FontGlyph, 0, len(d.Chars)),
		Kernings:   make([]FontKerning, 0, len(d.Kerning)),
		Pages:      make([]FontPage, 0, len(d.Pages)),
	}

	var size uint64
	dir := filepath.Dir(path)
	for _, p := range d.Pages {
		res, err := fl.Images.Load(filepath.Join(dir, p.File))
		if err != nil {
			return nil, fmt.Errorf("bitmap font %s page %d: %w", path, p.ID, err)
		}
		out.Pages = append(out.Pages, FontPage{ID: int(p.ID), File: p.File, Image: res.Data.(metadata.Image)})
		size += res.DataSize
	}
	for _, g := range d.Chars {
		out.Glyphs = append(out.Glyphs, FontGlyph{
			Codepoint: rune(g.ID),
			X:         uint16(g.X),
			Y:         uint16(g.Y),
			Width:     uint16(g.Width),
			Height:    uint16(g.Height),
			XOffset:   int16(g.XOffset),
			YOffset:   int16(g.YOffset),
			XAdvance:  int16(g.XAdvance),
			Page:      int(g.Page),
		})
	}
	for pair, k := range d.Kerning {
		out.Kernings = append(out.Kernings, FontKerning{
			First:  rune(pair.First),
			Second: rune(pair.Second),
			Amount: int16(k.Amount),
		})
	}

	// maps iterate in random order
	sort.Slice(out.Pages, func(i, j int) bool { return out.Pages[i].ID < out.Pages[j].ID })
	sort.Slice(out.Glyphs, func(i, j int) bool { return out.Glyphs[i].Codepoint < out.Glyphs[j].Codepoint })
	sort.Slice(out.Kernings, func(i, j int) bool {
		a, b := out.Kernings[i], out.Kernings[j]
		if a.First != b.First {
			return a.First < b.First
		}
		return a.Second < b.Second
	})

	return &Resource{
		Name:     nameOf(path),
		FullPath: path,
		Type:     ResourceTypeFont,
		DataSize: size,
		Data:     out,
	}, nil
}

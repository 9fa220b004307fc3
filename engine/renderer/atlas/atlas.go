// Package atlas keeps decoded images resident in one GPU texture array
// and hands out generation-tagged handles to them.
package atlas

import (
	"fmt"

	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/math"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

// Uploader is the GPU side of the atlas. The render context implements it.
type Uploader interface {
	CreateTextureArray(size, layers uint32) error
	WriteTexture(layer uint32, rect math.URect, rgba []byte) error
}

type Options struct {
	// Width and height of every layer, in pixels.
	LayerSize uint32
	MaxLayers uint32
	// Empty pixels kept right and below each image against sampling bleed.
	Padding uint32
}

type Stats struct {
	Live    int
	Pending int
	Layers  int
}

type entry struct {
	handle  metadata.TextureHandle
	name    string
	region  metadata.Region
	cell    math.URect
	lastUse uint64
}

// retired cells wait until no in-flight frame can still sample them.
type retired struct {
	layer   uint32
	cell    math.URect
	lastUse uint64
}

type Manager struct {
	up       Uploader
	opts     Options
	ids      *core.Identifiers
	entries  map[uint32]*entry
	layers   []*layer
	occupied []int
	pending  []retired
}

func New(up Uploader, opts Options) (*Manager, error) {
	if opts.LayerSize == 0 || opts.MaxLayers == 0 {
		return nil, fmt.Errorf("atlas needs a layer size and at least one layer: %w", core.ErrInvalidConfig)
	}
	if err := up.CreateTextureArray(opts.LayerSize, opts.MaxLayers); err != nil {
		core.LogError("failed to create atlas texture array: %s", err)
		return nil, err
	}
	core.LogDebug("Atlas created: %d layers of %dx%d", opts.MaxLayers, opts.LayerSize, opts.LayerSize)
	return &Manager{
		up:      up,
		opts:    opts,
		ids:     core.NewIdentifiers(64),
		entries: make(map[uint32]*entry),
	}, nil
}

// Load packs img into the first layer with room, opening a new layer
// when none fits. On any error the atlas is left as it was.
func (m *Manager) Load(img metadata.Image) (metadata.TextureHandle, error) {
	rgba, err := toRGBA(img)
	if err != nil {
		return metadata.InvalidTextureHandle, err
	}
	size := m.opts.LayerSize
	if img.Width > size || img.Height > size {
		return metadata.InvalidTextureHandle, fmt.Errorf("image %q (%dx%d) is larger than an atlas layer (%d): %w",
			img.Name, img.Width, img.Height, size, core.ErrOutOfAtlasSpace)
	}
	cellW := math.Min(img.Width+m.opts.Padding, size)
	cellH := math.Min(img.Height+m.opts.Padding, size)

	index, cell, undo, ok := m.place(cellW, cellH)
	if !ok {
		return metadata.InvalidTextureHandle, fmt.Errorf("no room for %q (%dx%d) in %d layers: %w",
			img.Name, img.Width, img.Height, m.opts.MaxLayers, core.ErrOutOfAtlasSpace)
	}

	rect := math.URect{X: cell.X, Y: cell.Y, W: img.Width, H: img.Height}
	if err := m.up.WriteTexture(index, rect, rgba); err != nil {
		undo()
		return metadata.InvalidTextureHandle, fmt.Errorf("upload of %q: %w", img.Name, err)
	}

	id := m.ids.Acquire()
	m.entries[id.Index()] = &entry{
		handle: metadata.TextureHandle(id),
		name:   img.Name,
		region: metadata.Region{
			Layer:     index,
			Rect:      rect,
			LayerSize: size,
		},
		cell: cell,
	}
	m.occupied[index]++
	return metadata.TextureHandle(id), nil
}

// place finds a cell and returns a func that undoes the allocation.
func (m *Manager) place(w, h uint32) (uint32, math.URect, func(), bool) {
	for i, l := range m.layers {
		saved := l.save()
		if cell, ok := l.alloc(w, h); ok {
			return uint32(i), cell, func() { l.restore(saved) }, true
		}
	}
	if uint32(len(m.layers)) >= m.opts.MaxLayers {
		return 0, math.URect{}, nil, false
	}
	l := newLayer(m.opts.LayerSize)
	cell, ok := l.alloc(w, h)
	if !ok {
		return 0, math.URect{}, nil, false
	}
	m.layers = append(m.layers, l)
	m.occupied = append(m.occupied, 0)
	core.LogDebug("Atlas layer %d opened", len(m.layers)-1)
	return uint32(len(m.layers) - 1), cell, func() {
		m.layers = m.layers[:len(m.layers)-1]
		m.occupied = m.occupied[:len(m.occupied)-1]
	}, true
}

func (m *Manager) lookup(h metadata.TextureHandle) (*entry, error) {
	id := core.ID(h)
	if !m.ids.Alive(id) {
		return nil, fmt.Errorf("texture %s: %w", h, core.ErrStaleHandle)
	}
	return m.entries[id.Index()], nil
}

func (m *Manager) Region(h metadata.TextureHandle) (metadata.Region, error) {
	e, err := m.lookup(h)
	if err != nil {
		return metadata.Region{}, err
	}
	return e.region, nil
}

// Resolve is Region for a draw in frame serial. The slot cannot be
// reclaimed until that frame has completed.
func (m *Manager) Resolve(h metadata.TextureHandle, serial uint64) (metadata.Region, error) {
	e, err := m.lookup(h)
	if err != nil {
		return metadata.Region{}, err
	}
	if serial > e.lastUse {
		e.lastUse = serial
	}
	return e.region, nil
}

// Evict invalidates h at once. Its pixels stay reserved until Reclaim is
// called with a completed serial at or past the last frame that used it.
func (m *Manager) Evict(h metadata.TextureHandle) error {
	e, err := m.lookup(h)
	if err != nil {
		return err
	}
	id := core.ID(h)
	if err := m.ids.Release(id); err != nil {
		return err
	}
	delete(m.entries, id.Index())
	m.pending = append(m.pending, retired{
		layer:   e.region.Layer,
		cell:    e.cell,
		lastUse: e.lastUse,
	})
	core.LogDebug("Atlas evicted %q (%s), last used in frame %d", e.name, h, e.lastUse)
	return nil
}

// Reclaim frees retired cells whose last use is at or before completed,
// the newest frame serial the GPU has finished. It returns the number
// of cells freed.
func (m *Manager) Reclaim(completed uint64) int {
	freed := 0
	kept := m.pending[:0]
	for _, r := range m.pending {
		if r.lastUse > completed {
			kept = append(kept, r)
			continue
		}
		m.occupied[r.layer]--
		m.layers[r.layer].release(r.cell, m.occupied[r.layer])
		freed++
	}
	m.pending = kept
	return freed
}

// Replace loads img and evicts h, returning the handle of the new copy.
// Draws that still carry h are rejected as stale from here on.
func (m *Manager) Replace(h metadata.TextureHandle, img metadata.Image) (metadata.TextureHandle, error) {
	if _, err := m.lookup(h); err != nil {
		return metadata.InvalidTextureHandle, err
	}
	nh, err := m.Load(img)
	if err != nil {
		return metadata.InvalidTextureHandle, err
	}
	if err := m.Evict(h); err != nil {
		return metadata.InvalidTextureHandle, err
	}
	return nh, nil
}

// Regions returns every live region by handle.
func (m *Manager) Regions() map[metadata.TextureHandle]metadata.Region {
	out := make(map[metadata.TextureHandle]metadata.Region, len(m.entries))
	for _, e := range m.entries {
		out[e.handle] = e.region
	}
	return out
}

func (m *Manager) Stats() Stats {
	return Stats{
		Live:    len(m.entries),
		Pending: len(m.pending),
		Layers:  len(m.layers),
	}
}

func (m *Manager) LayerSize() uint32 {
	return m.opts.LayerSize
}

package engine

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima2d/engine/assets"
	"github.com/spaghettifunk/anima2d/engine/assets/loaders"
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/renderer/atlas"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
	"github.com/spaghettifunk/anima2d/engine/text"
)

// Texture is an image resident in the atlas. The pointer stays valid
// across hot reloads, Handle is updated in place.
type Texture struct {
	Name   string
	Handle metadata.TextureHandle
	Width  uint32
	Height uint32
}

// TextureSystem loads images by asset name into the atlas.
type TextureSystem struct {
	assetManager *assets.Manager
	atlas        *atlas.Manager
	// Hashtable for texture lookups.
	registeredTextures map[string]*Texture
}

func NewTextureSystem(am *assets.Manager, at *atlas.Manager) *TextureSystem {
	return &TextureSystem{
		assetManager:       am,
		atlas:              at,
		registeredTextures: make(map[string]*Texture),
	}
}

// Acquire returns the texture for name, loading it on first use.
func (ts *TextureSystem) Acquire(name string) (*Texture, error) {
	if t, ok := ts.registeredTextures[name]; ok {
		return t, nil
	}
	img, err := ts.assetManager.LoadImage(name)
	if err != nil {
		core.LogError("failed to load texture %s: %s", name, err)
		return nil, err
	}
	return ts.Add(name, img)
}

// AcquireAll decodes the missing names on the asset worker pool, then
// uploads them in order.
func (ts *TextureSystem) AcquireAll(names ...string) ([]*Texture, error) {
	var missing []string
	for _, n := range names {
		if _, ok := ts.registeredTextures[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		imgs, err := ts.assetManager.LoadImages(missing...)
		if err != nil {
			return nil, err
		}
		for i, img := range imgs {
			if _, err := ts.Add(missing[i], img); err != nil {
				return nil, err
			}
		}
	}
	out := make([]*Texture, len(names))
	for i, n := range names {
		out[i] = ts.registeredTextures[n]
	}
	return out, nil
}

// Add uploads img under name, replacing any texture already registered
// with that name.
func (ts *TextureSystem) Add(name string, img metadata.Image) (*Texture, error) {
	if img.Name == "" {
		img.Name = name
	}
	if t, ok := ts.registeredTextures[name]; ok {
		return t, ts.replace(t, img)
	}
	h, err := ts.atlas.Load(img)
	if err != nil {
		return nil, fmt.Errorf("texture %s: %w", name, err)
	}
	t := &Texture{Name: name, Handle: h, Width: img.Width, Height: img.Height}
	ts.registeredTextures[name] = t
	return t, nil
}

func (ts *TextureSystem) replace(t *Texture, img metadata.Image) error {
	h, err := ts.atlas.Replace(t.Handle, img)
	if err != nil {
		return fmt.Errorf("texture %s: %w", t.Name, err)
	}
	t.Handle = h
	t.Width, t.Height = img.Width, img.Height
	return nil
}

func (ts *TextureSystem) Get(name string) (*Texture, bool) {
	t, ok := ts.registeredTextures[name]
	return t, ok
}

// Release evicts name from the atlas. Draws that still carry its handle
// are rejected as stale.
func (ts *TextureSystem) Release(name string) error {
	t, ok := ts.registeredTextures[name]
	if !ok {
		return fmt.Errorf("texture %s: %w", name, assets.ErrAssetNotFound)
	}
	delete(ts.registeredTextures, name)
	err := ts.atlas.Evict(t.Handle)
	t.Handle = metadata.InvalidTextureHandle
	return err
}

// Apply swaps in reloaded images. Reloads of other asset types are
// returned untouched.
func (ts *TextureSystem) Apply(reloads []assets.Reload) []assets.Reload {
	rest := reloads[:0]
	for _, r := range reloads {
		if r.Type != loaders.ResourceTypeImage {
			rest = append(rest, r)
			continue
		}
		t, ok := ts.registeredTextures[r.Name]
		if !ok {
			continue
		}
		if r.Err != nil {
			core.LogWarn("reload of texture %s failed, keeping the old copy: %s", r.Name, r.Err)
			continue
		}
		img := r.Resource.Data.(metadata.Image)
		img.Name = r.Name
		if err := ts.replace(t, img); err != nil {
			core.LogWarn("reload of texture %s not applied: %s", r.Name, err)
			continue
		}
		core.LogDebug("texture %s reloaded (%dx%d)", r.Name, img.Width, img.Height)
	}
	return rest
}

// FontSystem keeps bitmap font faces with their pages in the atlas.
type FontSystem struct {
	assetManager *assets.Manager
	atlas        *atlas.Manager
	fonts        map[string]*text.Face
}

func NewFontSystem(am *assets.Manager, at *atlas.Manager) *FontSystem {
	return &FontSystem{
		assetManager: am,
		atlas:        at,
		fonts:        make(map[string]*text.Face),
	}
}

// Acquire returns the face for the font asset name. The pointer stays
// valid across hot reloads.
func (fs *FontSystem) Acquire(name string) (*text.Face, error) {
	if f, ok := fs.fonts[name]; ok {
		return f, nil
	}
	data, err := fs.assetManager.LoadFont(name)
	if err != nil {
		core.LogError("failed to load bitmap font %s: %s", name, err)
		return nil, err
	}
	f, err := fs.build(name, data)
	if err != nil {
		return nil, err
	}
	fs.fonts[name] = f
	return f, nil
}

func (fs *FontSystem) build(name string, data *loaders.FontData) (*text.Face, error) {
	pages := make([]metadata.TextureHandle, 0, len(data.Pages))
	for _, p := range data.Pages {
		img := p.Image
		img.Name = fmt.Sprintf("%s/%s", name, p.File)
		h, err := fs.atlas.Load(img)
		if err != nil {
			fs.evict(pages)
			return nil, fmt.Errorf("font %s page %d: %w", name, p.ID, err)
		}
		pages = append(pages, h)
	}
	f, err := text.NewFace(data, pages)
	if err != nil {
		fs.evict(pages)
		return nil, err
	}
	return f, nil
}

func (fs *FontSystem) evict(pages []metadata.TextureHandle) error {
	var errs []error
	for _, h := range pages {
		errs = append(errs, fs.atlas.Evict(h))
	}
	return errors.Join(errs...)
}

func (fs *FontSystem) Release(name string) error {
	f, ok := fs.fonts[name]
	if !ok {
		return fmt.Errorf("font %s: %w", name, assets.ErrAssetNotFound)
	}
	delete(fs.fonts, name)
	return fs.evict(f.Pages())
}

// Apply rebuilds reloaded fonts in place and returns the other reloads.
func (fs *FontSystem) Apply(reloads []assets.Reload) []assets.Reload {
	rest := reloads[:0]
	for _, r := range reloads {
		if r.Type != loaders.ResourceTypeFont {
			rest = append(rest, r)
			continue
		}
		old, ok := fs.fonts[r.Name]
		if !ok {
			continue
		}
		if r.Err != nil {
			core.LogWarn("reload of font %s failed, keeping the old face: %s", r.Name, r.Err)
			continue
		}
		f, err := fs.build(r.Name, r.Resource.Data.(*loaders.FontData))
		if err != nil {
			core.LogWarn("reload of font %s not applied: %s", r.Name, err)
			continue
		}
		if err := fs.evict(old.Pages()); err != nil {
			core.LogWarn("font %s: %s", r.Name, err)
		}
		*old = *f
		core.LogDebug("font %s reloaded", r.Name)
	}
	return rest
}

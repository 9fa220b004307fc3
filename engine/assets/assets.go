// Package assets indexes an asset directory, decodes images, fonts and
// shaders on a worker pool and reports files changed on disk.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima2d/engine/assets/loaders"
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

var ErrAssetNotFound = errors.New("asset not found")

type AssetInfo struct {
	Path       string
	Type       loaders.ResourceType
	LastLoaded time.Time
	// only loaded assets are reloaded when they change
	Loaded bool

	// reloads finish out of order on the pool, older ones are dropped
	requested, applied uint64
}

// Reload is a loaded asset that changed on disk.
type Reload struct {
	Name     string
	Type     loaders.ResourceType
	Resource *loaders.Resource
	Err      error
}

type assetKey struct {
	name string
	typ  loaders.ResourceType
}

type Options struct {
	Workers   int
	HotReload bool
	FlipY     bool
}

type Manager struct {
	dir     string
	assets  map[assetKey]*AssetInfo
	loaders map[loaders.ResourceType]loaders.Loader
	jobs    *JobSystem

	mutex   sync.RWMutex
	pending []Reload

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
}

// NewManager indexes every file under dir. With HotReload set it keeps
// watching dir and its subdirectories until Close.
func NewManager(dir string, opts Options) (*Manager, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	jobs, err := NewJobSystem(opts.Workers, opts.Workers*4)
	if err != nil {
		return nil, err
	}
	am := &Manager{
		dir:     dir,
		assets:  make(map[assetKey]*AssetInfo),
		loaders: make(map[loaders.ResourceType]loaders.Loader),
		jobs:    jobs,
		done:    make(chan struct{}),
	}
	images := loaders.ImageLoader{FlipY: opts.FlipY}
	am.registerLoader(loaders.ResourceTypeImage, &images)
	am.registerLoader(loaders.ResourceTypeFont, &loaders.BitmapFontLoader{Images: images})
	am.registerLoader(loaders.ResourceTypeShader, &loaders.ShaderLoader{})

	if opts.HotReload {
		am.fsnotify, err = fsnotify.NewWatcher()
		if err != nil {
			jobs.Shutdown()
			return nil, err
		}
	}
	if err := am.watchRecursive(dir); err != nil {
		am.Close()
		return nil, err
	}
	if am.fsnotify != nil {
		am.wg.Add(1)
		go am.start()
	}
	core.LogDebug("asset manager indexed %d files under %s", am.Len(), dir)
	return am, nil
}

func (am *Manager) registerLoader(t loaders.ResourceType, l loaders.Loader) {
	am.loaders[t] = l
}

// Len is the number of indexed assets.
func (am *Manager) Len() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// Info returns the index entry for name.
func (am *Manager) Info(name string, t loaders.ResourceType) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[assetKey{name, t}]
	if !ok {
		return AssetInfo{}, false
	}
	return *info, true
}

// Load decodes name with the loader registered for t and marks it for
// hot reload. name is either an indexed asset name or a path relative
// to the asset directory.
func (am *Manager) Load(name string, t loaders.ResourceType) (*loaders.Resource, error) {
	loader, ok := am.loaders[t]
	if !ok {
		return nil, fmt.Errorf("no loader registered for asset type %s", t)
	}
	path, key, err := am.resolve(name, t)
	if err != nil {
		return nil, err
	}
	res, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	res.Name = key.name

	am.mutex.Lock()
	info, ok := am.assets[key]
	if !ok {
		info = &AssetInfo{Path: path, Type: t}
		am.assets[key] = info
	}
	info.Loaded = true
	info.LastLoaded = time.Now()
	am.mutex.Unlock()
	return res, nil
}

func (am *Manager) resolve(name string, t loaders.ResourceType) (string, assetKey, error) {
	key := assetKey{name, t}
	am.mutex.RLock()
	info, ok := am.assets[key]
	am.mutex.RUnlock()
	if ok {
		return info.Path, key, nil
	}
	path := filepath.Join(am.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", key, fmt.Errorf("%w: %s %s", ErrAssetNotFound, t, name)
	}
	if determineAssetType(path) != t {
		return "", key, fmt.Errorf("%w: %s is not a %s", ErrAssetNotFound, name, t)
	}
	return path, assetKey{nameOf(path), t}, nil
}

func (am *Manager) LoadImage(name string) (metadata.Image, error) {
	res, err := am.Load(name, loaders.ResourceTypeImage)
	if err != nil {
		return metadata.Image{}, err
	}
	return res.Data.(metadata.Image), nil
}

func (am *Manager) LoadFont(name string) (*loaders.FontData, error) {
	res, err := am.Load(name, loaders.ResourceTypeFont)
	if err != nil {
		return nil, err
	}
	return res.Data.(*loaders.FontData), nil
}

func (am *Manager) LoadShader(name string) ([]uint32, error) {
	res, err := am.Load(name, loaders.ResourceTypeShader)
	if err != nil {
		return nil, err
	}
	return res.Data.([]uint32), nil
}

// LoadImages decodes names on the worker pool. Results keep the order
// of names. The first error is returned after every job has finished.
func (am *Manager) LoadImages(names ...string) ([]metadata.Image, error) {
	out := make([]metadata.Image, len(names))
	errs := make([]error, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		err := am.jobs.Submit(JobTask{
			Name: name,
			Run: func() error {
				out[i], errs[i] = am.LoadImage(name)
				return errs[i]
			},
			OnComplete: func(error) { wg.Done() },
		})
		if err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()
	return out, errors.Join(errs...)
}

// Poll returns the reloads finished since the last call. Several writes
// to one file between polls are reported once.
func (am *Manager) Poll() []Reload {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	out := am.pending
	am.pending = nil
	return out
}

func (am *Manager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name); err != nil {
						core.LogWarn("asset watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if key, seq := am.handleFileEvent(e.Name); seq > 0 {
					am.reload(key, e.Name, seq)
				}
			}
			if e.Op&fsnotify.Remove != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			return
		}
	}
}

func (am *Manager) reload(key assetKey, path string, seq uint64) {
	loader := am.loaders[key.typ]
	var res *loaders.Resource
	err := am.jobs.Submit(JobTask{
		Name: path,
		Run: func() error {
			var err error
			res, err = loader.Load(path)
			return err
		},
		OnComplete: func(err error) {
			if res != nil {
				res.Name = key.name
			}
			am.queueReload(Reload{Name: key.name, Type: key.typ, Resource: res, Err: err}, seq)
		},
	})
	if err != nil {
		core.LogDebug("dropping reload of %s: %s", path, err)
	}
}

func (am *Manager) queueReload(r Reload, seq uint64) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if info, ok := am.assets[assetKey{r.Name, r.Type}]; ok {
		if seq < info.applied {
			return
		}
		info.applied = seq
		if r.Err == nil {
			info.LastLoaded = time.Now()
		}
	}
	for i := range am.pending {
		if am.pending[i].Name == r.Name && am.pending[i].Type == r.Type {
			am.pending[i] = r
			return
		}
	}
	am.pending = append(am.pending, r)
}

// watchRecursive indexes every file under path and, when watching,
// adds each directory to the watch list. Files created before the
// directory watch lands are picked up by the walk.
func (am *Manager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if am.fsnotify != nil {
				return am.fsnotify.Add(walkPath)
			}
			return nil
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// handleFileEvent indexes path. For an asset loaded before it returns
// the sequence number of the reload to run, otherwise 0.
func (am *Manager) handleFileEvent(path string) (assetKey, uint64) {
	assetType := determineAssetType(path)
	if assetType == loaders.ResourceTypeNone {
		return assetKey{}, 0
	}
	key := assetKey{nameOf(path), assetType}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	info, ok := am.assets[key]
	if !ok {
		am.assets[key] = &AssetInfo{Path: path, Type: assetType}
		return key, 0
	}
	info.Path = path
	if !info.Loaded {
		return key, 0
	}
	info.requested++
	return key, info.requested
}

func (am *Manager) removeAsset(path string) {
	key := assetKey{nameOf(path), determineAssetType(path)}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if info, ok := am.assets[key]; ok && info.Path == path {
		delete(am.assets, key)
	}
}

// Close stops the watcher and waits for queued loads.
func (am *Manager) Close() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	var err error
	if am.fsnotify != nil {
		err = am.fsnotify.Close()
	}
	am.wg.Wait()
	am.jobs.Shutdown()
	return err
}

func determineAssetType(path string) loaders.ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".webp":
		return loaders.ResourceTypeImage
	case ".fnt":
		return loaders.ResourceTypeFont
	case ".spv":
		return loaders.ResourceTypeShader
	default:
		return loaders.ResourceTypeNone
	}
}

func nameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

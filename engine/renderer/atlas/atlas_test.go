package atlas

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/math"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

type write struct {
	layer uint32
	rect  math.URect
	rgba  []byte
}

type fakeUploader struct {
	size, layers uint32
	writes       []write
	failNext     error
}

func (f *fakeUploader) CreateTextureArray(size, layers uint32) error {
	f.size, f.layers = size, layers
	return nil
}

func (f *fakeUploader) WriteTexture(layer uint32, rect math.URect, rgba []byte) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.writes = append(f.writes, write{layer, rect, append([]byte(nil), rgba...)})
	return nil
}

func solid(name string, w, h uint32) metadata.Image {
	return metadata.Image{
		Name:   name,
		Width:  w,
		Height: h,
		Format: metadata.PixelFormatRGBA8,
		Pixels: make([]byte, int(w)*int(h)*4),
	}
}

func newManager(t *testing.T, size, layers uint32) (*Manager, *fakeUploader) {
	t.Helper()
	up := &fakeUploader{}
	m, err := New(up, Options{LayerSize: size, MaxLayers: layers})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if up.size != size || up.layers != layers {
		t.Fatalf("texture array %dx%d, want %dx%d", up.size, up.layers, size, layers)
	}
	return m, up
}

func assertNoOverlap(t *testing.T, m *Manager) {
	t.Helper()
	type placed struct {
		h metadata.TextureHandle
		r metadata.Region
	}
	var all []placed
	for h, r := range m.Regions() {
		if r.Rect.X+r.Rect.W > r.LayerSize || r.Rect.Y+r.Rect.H > r.LayerSize {
			t.Fatalf("region %+v of %s leaves its layer", r, h)
		}
		all = append(all, placed{h, r})
	}
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			a, b := all[i], all[j]
			if a.r.Layer == b.r.Layer && a.r.Rect.Intersects(b.r.Rect) {
				t.Fatalf("%s %+v overlaps %s %+v", a.h, a.r.Rect, b.h, b.r.Rect)
			}
		}
	}
}

func TestLoadTwoImagesIntoEmptyAtlas(t *testing.T) {
	m, up := newManager(t, 256, 1)

	big, err := m.Load(solid("big", 64, 64))
	if err != nil {
		t.Fatalf("load 64x64: %v", err)
	}
	small, err := m.Load(solid("small", 32, 32))
	if err != nil {
		t.Fatalf("load 32x32: %v", err)
	}
	if big == small {
		t.Fatal("handles are equal")
	}
	rb, _ := m.Region(big)
	rs, _ := m.Region(small)
	if rb.Rect.W != 64 || rs.Rect.W != 32 {
		t.Fatalf("regions %+v %+v", rb, rs)
	}
	if rb.Layer == rs.Layer && rb.Rect.Intersects(rs.Rect) {
		t.Fatalf("regions overlap: %+v %+v", rb.Rect, rs.Rect)
	}
	if len(up.writes) != 2 {
		t.Fatalf("uploads = %d, want 2", len(up.writes))
	}
}

func TestEvictedHandleIsStale(t *testing.T) {
	m, _ := newManager(t, 128, 1)
	h, err := m.Load(solid("a", 16, 16))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Resolve(h, 1); err != nil {
		t.Fatal(err)
	}
	if err := m.Evict(h); err != nil {
		t.Fatalf("evict: %v", err)
	}

	if _, err := m.Region(h); !errors.Is(err, core.ErrStaleHandle) {
		t.Fatalf("Region after evict: %v", err)
	}
	if _, err := m.Resolve(h, 2); !errors.Is(err, core.ErrStaleHandle) {
		t.Fatalf("Resolve after evict: %v", err)
	}
	if err := m.Evict(h); !errors.Is(err, core.ErrStaleHandle) {
		t.Fatalf("double evict: %v", err)
	}

	// the next load reuses the slot index under a new generation
	h2, err := m.Load(solid("b", 16, 16))
	if err != nil {
		t.Fatal(err)
	}
	if core.ID(h2).Index() == core.ID(h).Index() && h2 == h {
		t.Fatal("new handle equals the evicted one")
	}
	if _, err := m.Region(h); !errors.Is(err, core.ErrStaleHandle) {
		t.Fatalf("old handle revived: %v", err)
	}
}

func TestEvictedCellWaitsForCompletedFrames(t *testing.T) {
	// one layer that fits exactly one 64x64 image
	m, _ := newManager(t, 64, 1)
	h, err := m.Load(solid("a", 64, 64))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Resolve(h, 5); err != nil {
		t.Fatal(err)
	}
	if err := m.Evict(h); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Load(solid("b", 64, 64)); !errors.Is(err, core.ErrOutOfAtlasSpace) {
		t.Fatalf("load while frame 5 may still sample the cell: %v", err)
	}
	if n := m.Reclaim(4); n != 0 {
		t.Fatalf("reclaimed %d cells before frame 5 completed", n)
	}
	if n := m.Reclaim(5); n != 1 {
		t.Fatalf("reclaimed %d cells after frame 5, want 1", n)
	}
	if _, err := m.Load(solid("b", 64, 64)); err != nil {
		t.Fatalf("load after reclaim: %v", err)
	}
}

func TestOutOfSpaceLeavesSlotsUnchanged(t *testing.T) {
	m, up := newManager(t, 128, 2)
	for i := 0; i < 8; i++ {
		if _, err := m.Load(solid(fmt.Sprintf("tile%d", i), 64, 64)); err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
	}
	before := m.Regions()
	writes := len(up.writes)

	for _, img := range []metadata.Image{solid("extra", 64, 64), solid("huge", 256, 16)} {
		if _, err := m.Load(img); !errors.Is(err, core.ErrOutOfAtlasSpace) {
			t.Fatalf("load %s into a full atlas: %v", img.Name, err)
		}
	}
	if !reflect.DeepEqual(before, m.Regions()) {
		t.Fatal("regions changed after a failed load")
	}
	if len(up.writes) != writes {
		t.Fatal("failed load uploaded pixels")
	}
	if st := m.Stats(); st.Live != 8 || st.Layers != 2 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestFailedUploadRollsBack(t *testing.T) {
	m, up := newManager(t, 64, 1)
	up.failNext = errors.New("staging buffer exhausted")
	if _, err := m.Load(solid("a", 64, 64)); err == nil {
		t.Fatal("expected upload error")
	}
	if _, err := m.Load(solid("a", 64, 64)); err != nil {
		t.Fatalf("load after rollback: %v", err)
	}
}

func TestUnsupportedFormats(t *testing.T) {
	m, _ := newManager(t, 64, 1)
	tests := []metadata.Image{
		{Name: "16 bit", Width: 2, Height: 2, Format: metadata.PixelFormatRGBA16, Pixels: make([]byte, 32)},
		{Name: "unknown", Width: 2, Height: 2, Format: metadata.PixelFormatUnknown, Pixels: make([]byte, 16)},
		{Name: "short", Width: 4, Height: 4, Format: metadata.PixelFormatRGBA8, Pixels: make([]byte, 10)},
		{Name: "empty", Format: metadata.PixelFormatRGBA8},
	}
	for _, img := range tests {
		t.Run(img.Name, func(t *testing.T) {
			if _, err := m.Load(img); !errors.Is(err, core.ErrUnsupportedFormat) {
				t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
			}
		})
	}
	if st := m.Stats(); st.Live != 0 || st.Layers != 0 {
		t.Fatalf("stats after rejected loads: %+v", st)
	}
}

func TestFormatConversion(t *testing.T) {
	tests := []struct {
		format metadata.PixelFormat
		in     []byte
		want   []byte
	}{
		{metadata.PixelFormatBGRA8, []byte{1, 2, 3, 4}, []byte{3, 2, 1, 4}},
		{metadata.PixelFormatRGB8, []byte{1, 2, 3}, []byte{1, 2, 3, 255}},
		{metadata.PixelFormatGray8, []byte{9}, []byte{9, 9, 9, 255}},
		{metadata.PixelFormatGrayAlpha8, []byte{9, 7}, []byte{9, 9, 9, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			got, err := toRGBA(metadata.Image{Width: 1, Height: 1, Format: tt.format, Pixels: tt.in})
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRandomLoadEvictNeverOverlaps(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	up := &fakeUploader{}
	m, err := New(up, Options{LayerSize: 256, MaxLayers: 3, Padding: 1})
	if err != nil {
		t.Fatal(err)
	}
	var live []metadata.TextureHandle
	serial := uint64(0)
	for step := 0; step < 2000; step++ {
		serial++
		switch op := rng.Intn(10); {
		case op < 6:
			w, h := uint32(rng.Intn(90)+1), uint32(rng.Intn(90)+1)
			handle, err := m.Load(solid("r", w, h))
			if err != nil {
				if !errors.Is(err, core.ErrOutOfAtlasSpace) {
					t.Fatalf("step %d: %v", step, err)
				}
				continue
			}
			live = append(live, handle)
		case op < 9 && len(live) > 0:
			i := rng.Intn(len(live))
			if _, err := m.Resolve(live[i], serial); err != nil {
				t.Fatalf("step %d resolve: %v", step, err)
			}
			if err := m.Evict(live[i]); err != nil {
				t.Fatalf("step %d evict: %v", step, err)
			}
			live = append(live[:i], live[i+1:]...)
		default:
			// frames two behind are done
			if serial > 2 {
				m.Reclaim(serial - 2)
			}
		}
		assertNoOverlap(t, m)
	}
	if got := len(m.Regions()); got != len(live) {
		t.Fatalf("live regions = %d, tracked = %d", got, len(live))
	}
}

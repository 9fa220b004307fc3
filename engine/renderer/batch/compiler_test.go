package batch_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/math"
	"github.com/spaghettifunk/anima2d/engine/renderer/atlas"
	"github.com/spaghettifunk/anima2d/engine/renderer/batch"
	"github.com/spaghettifunk/anima2d/engine/renderer/headless"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

// regions resolves handle n to a 32x32 region on layer n-1.
type regions map[metadata.TextureHandle]metadata.Region

func (r regions) Resolve(h metadata.TextureHandle, _ uint64) (metadata.Region, error) {
	reg, ok := r[h]
	if !ok {
		return metadata.Region{}, core.ErrStaleHandle
	}
	return reg, nil
}

func fixedRegions(n int) regions {
	r := regions{}
	for i := 1; i <= n; i++ {
		r[metadata.TextureHandle(i)] = metadata.Region{
			Layer:     uint32(i - 1),
			Rect:      math.URect{X: 0, Y: 0, W: 32, H: 32},
			LayerSize: 256,
		}
	}
	return r
}

func sprite(tex int, depth float32) metadata.SpriteDrawRequest {
	return metadata.SpriteDrawRequest{Texture: metadata.TextureHandle(tex), Depth: depth}
}

// flatten concatenates the batch request lists.
func flatten(res *batch.Result) []int {
	var out []int
	for _, b := range res.Batches {
		if int(b.Count) != len(b.Requests) {
			panic("batch count does not match its requests")
		}
		out = append(out, b.Requests...)
	}
	return out
}

func TestCompileStability(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	policies := []batch.Policy{
		{Order: batch.DepthAscending, TieBreak: batch.TieBreakTexture},
		{Order: batch.DepthAscending, TieBreak: batch.TieBreakSubmission},
		{Order: batch.DepthDescending, TieBreak: batch.TieBreakTexture},
	}
	for round := 0; round < 200; round++ {
		depths := rng.Intn(5) + 1
		textures := rng.Intn(5) + 1
		reqs := make([]metadata.SpriteDrawRequest, rng.Intn(64))
		for i := range reqs {
			reqs[i] = sprite(rng.Intn(textures)+1, float32(rng.Intn(depths)))
			reqs[i].Blend = metadata.BlendMode(rng.Intn(2))
		}
		for _, p := range policies {
			c := batch.NewCompiler(fixedRegions(textures), p)
			res := c.Compile(reqs, 1)
			order := flatten(res)
			if len(order) != len(reqs) || res.Count != len(reqs) {
				t.Fatalf("round %d %+v: compiled %d of %d", round, p, len(order), len(reqs))
			}

			lastOf := map[[2]float32]int{}
			for n, i := range order {
				k := [2]float32{reqs[i].Depth, float32(reqs[i].Texture)}
				if prev, ok := lastOf[k]; ok && prev > i {
					t.Fatalf("round %d %+v: request %d drawn after %d with the same depth and texture", round, p, prev, i)
				}
				lastOf[k] = i
				if n == 0 {
					continue
				}
				a, b := reqs[order[n-1]].Depth, reqs[i].Depth
				if (p.Order == batch.DepthAscending && a > b) || (p.Order == batch.DepthDescending && a < b) {
					t.Fatalf("round %d %+v: depth %v drawn before %v", round, p, a, b)
				}
			}
		}
	}
}

func TestCompileMergesAndSplits(t *testing.T) {
	tests := []struct {
		name    string
		reqs    []metadata.SpriteDrawRequest
		batches []uint32
	}{
		{
			name:    "same texture merges",
			reqs:    []metadata.SpriteDrawRequest{sprite(1, 0), sprite(1, 0), sprite(1, 0)},
			batches: []uint32{3},
		},
		{
			name:    "texture change splits",
			reqs:    []metadata.SpriteDrawRequest{sprite(1, 0), sprite(2, 0), sprite(1, 0)},
			batches: []uint32{2, 1},
		},
		{
			name: "blend change splits",
			reqs: []metadata.SpriteDrawRequest{
				sprite(1, 0),
				{Texture: 1, Blend: metadata.BlendAdditive},
				sprite(1, 0),
			},
			batches: []uint32{1, 1, 1},
		},
		{
			name: "depth test change splits",
			reqs: []metadata.SpriteDrawRequest{
				sprite(1, 0),
				{Texture: 1, DepthTest: metadata.DepthTestLessEqual},
			},
			batches: []uint32{1, 1},
		},
		{
			name:    "depth change on one texture still merges",
			reqs:    []metadata.SpriteDrawRequest{sprite(1, 2), sprite(1, 1), sprite(1, 0)},
			batches: []uint32{3},
		},
		{
			name: "empty frame",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := batch.NewCompiler(fixedRegions(2), batch.Policy{})
			res := c.Compile(tt.reqs, 1)
			if len(res.Batches) != len(tt.batches) {
				t.Fatalf("batches = %d, want %d", len(res.Batches), len(tt.batches))
			}
			first := uint32(0)
			for i, b := range res.Batches {
				if b.Count != tt.batches[i] || b.FirstInstance != first {
					t.Fatalf("batch %d = first %d count %d, want first %d count %d", i, b.FirstInstance, b.Count, first, tt.batches[i])
				}
				first += b.Count
			}
			if len(res.Instances) != int(first)*metadata.InstanceStride {
				t.Fatalf("instance bytes = %d", len(res.Instances))
			}
		})
	}
}

func TestTieBreakSubmissionKeepsPainterOrder(t *testing.T) {
	reqs := []metadata.SpriteDrawRequest{sprite(2, 0), sprite(1, 0), sprite(2, 0)}

	byTexture := batch.NewCompiler(fixedRegions(2), batch.Policy{TieBreak: batch.TieBreakTexture})
	if got := flatten(byTexture.Compile(reqs, 1)); got[0] != 1 {
		t.Fatalf("texture tie break order = %v", got)
	}

	painter := batch.NewCompiler(fixedRegions(2), batch.Policy{TieBreak: batch.TieBreakSubmission})
	res := painter.Compile(reqs, 1)
	got := flatten(res)
	for i, want := range []int{0, 1, 2} {
		if got[i] != want {
			t.Fatalf("submission tie break order = %v", got)
		}
	}
	if len(res.Batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(res.Batches))
	}
}

func TestAtlasScenarioDepthOrder(t *testing.T) {
	dev := headless.New()
	m, err := atlas.New(dev, atlas.Options{LayerSize: 256, MaxLayers: 1})
	if err != nil {
		t.Fatal(err)
	}
	img := func(w, h uint32) metadata.Image {
		return metadata.Image{Width: w, Height: h, Format: metadata.PixelFormatRGBA8, Pixels: make([]byte, w*h*4)}
	}
	big, err := m.Load(img(64, 64))
	if err != nil {
		t.Fatal(err)
	}
	small, err := m.Load(img(32, 32))
	if err != nil {
		t.Fatal(err)
	}

	reqs := []metadata.SpriteDrawRequest{
		{Texture: small, Depth: 1},
		{Texture: big, Depth: 0},
	}
	res := batch.NewCompiler(m, batch.Policy{}).Compile(reqs, 1)
	if len(res.Batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(res.Batches))
	}
	if res.Batches[0].Texture != big || res.Batches[0].Depth != 0 {
		t.Fatalf("first batch %+v, want the depth 0 sprite", res.Batches[0])
	}
	if res.Batches[1].Texture != small || res.Batches[1].Depth != 1 {
		t.Fatalf("second batch %+v, want the depth 1 sprite", res.Batches[1])
	}

	desc := batch.NewCompiler(m, batch.Policy{Order: batch.DepthDescending}).Compile(reqs, 1)
	if desc.Batches[0].Texture != small {
		t.Fatalf("descending order drew %s first", desc.Batches[0].Texture)
	}
}

func TestEvictedHandleFailsOnlyThatDraw(t *testing.T) {
	dev := headless.New()
	m, err := atlas.New(dev, atlas.Options{LayerSize: 128, MaxLayers: 1})
	if err != nil {
		t.Fatal(err)
	}
	img := metadata.Image{Width: 8, Height: 8, Format: metadata.PixelFormatRGBA8, Pixels: make([]byte, 256)}
	keep, _ := m.Load(img)
	gone, _ := m.Load(img)
	if err := m.Evict(gone); err != nil {
		t.Fatal(err)
	}

	reqs := []metadata.SpriteDrawRequest{{Texture: keep}, {Texture: gone}, {Texture: keep}}
	res := batch.NewCompiler(m, batch.Policy{}).Compile(reqs, 3)
	if len(res.Rejected) != 1 || res.Rejected[0].Index != 1 {
		t.Fatalf("rejected = %+v", res.Rejected)
	}
	if !errors.Is(res.Rejected[0].Err, core.ErrStaleHandle) {
		t.Fatalf("rejection error = %v", res.Rejected[0].Err)
	}
	if res.Count != 2 || len(res.Batches) != 1 {
		t.Fatalf("count %d batches %d", res.Count, len(res.Batches))
	}
	for _, i := range res.Batches[0].Requests {
		if reqs[i].Texture == gone {
			t.Fatal("evicted handle was drawn")
		}
	}
}

func TestInvalidRequestsAreRejected(t *testing.T) {
	tests := []struct {
		name string
		req  metadata.SpriteDrawRequest
		want error
	}{
		{"unknown handle", sprite(9, 0), core.ErrStaleHandle},
		{"zero handle", sprite(0, 0), core.ErrStaleHandle},
		{"source outside image", metadata.SpriteDrawRequest{Texture: 1, Source: math.URect{X: 16, W: 32, H: 8}}, core.ErrInvalidDraw},
		{"source offset wraps", metadata.SpriteDrawRequest{Texture: 1, Source: math.URect{X: 0xFFFFFFF0, W: 0x20, H: 8}}, core.ErrInvalidDraw},
		{"source height wraps", metadata.SpriteDrawRequest{Texture: 1, Source: math.URect{Y: 0xFFFFFFFF, W: 8, H: 2}}, core.ErrInvalidDraw},
		{"source wider than image", metadata.SpriteDrawRequest{Texture: 1, Source: math.URect{W: 33, H: 8}}, core.ErrInvalidDraw},
		{"unknown blend", metadata.SpriteDrawRequest{Texture: 1, Blend: metadata.BlendModeCount}, core.ErrInvalidDraw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := batch.NewCompiler(fixedRegions(1), batch.Policy{}).Compile([]metadata.SpriteDrawRequest{tt.req}, 1)
			if len(res.Rejected) != 1 || !errors.Is(res.Rejected[0].Err, tt.want) {
				t.Fatalf("rejected = %+v, want %v", res.Rejected, tt.want)
			}
			if res.Count != 0 || len(res.Batches) != 0 {
				t.Fatal("rejected request was compiled")
			}
		})
	}
}

func TestInstanceEncoding(t *testing.T) {
	reg := regions{1: {Layer: 2, Rect: math.URect{X: 64, Y: 128, W: 64, H: 64}, LayerSize: 256}}
	reqs := []metadata.SpriteDrawRequest{
		{
			Texture:  1,
			Position: math.Vec2{X: 100, Y: 50},
			Source:   math.URect{X: 0, Y: 0, W: 32, H: 32},
		},
		{
			Texture: 1,
			Size:    math.Vec2{X: 10, Y: 20},
			Tint:    math.Color{X: 1, Y: 0, Z: 0, W: 0.5},
			Depth:   4,
			FlipX:   true,
		},
	}
	res := batch.NewCompiler(reg, batch.Policy{TieBreak: batch.TieBreakSubmission}).Compile(reqs, 1)
	if res.Count != 2 {
		t.Fatalf("count = %d", res.Count)
	}

	a := batch.Decode(res.Instances, 0)
	if a.Layer != 2 {
		t.Fatalf("layer = %d", a.Layer)
	}
	if a.Affine != (math.Affine2D{A: 32, D: 32, E: 100, F: 50}) {
		t.Fatalf("affine = %+v, want 32x32 at (100, 50)", a.Affine)
	}
	if a.UV != [4]float32{0.25, 0.5, 0.125, 0.125} {
		t.Fatalf("uv = %v", a.UV)
	}
	if a.Tint != math.White {
		t.Fatalf("zero tint encoded as %v", a.Tint)
	}

	b := batch.Decode(res.Instances, 1)
	if b.Affine.A != 10 || b.Affine.D != 20 {
		t.Fatalf("explicit size ignored: %+v", b.Affine)
	}
	if b.UV != [4]float32{0.5, 0.5, -0.25, 0.25} {
		t.Fatalf("flipped uv = %v", b.UV)
	}
	if b.Tint != (math.Color{X: 1, W: 0.5}) {
		t.Fatalf("tint = %v", b.Tint)
	}
	if a.Depth != 0 || b.Depth != 4 {
		t.Fatalf("depths = %v %v", a.Depth, b.Depth)
	}
}

func TestCompileResetsBetweenFrames(t *testing.T) {
	c := batch.NewCompiler(fixedRegions(2), batch.Policy{})
	c.Compile([]metadata.SpriteDrawRequest{sprite(1, 0), sprite(2, 0), sprite(9, 0)}, 1)
	res := c.Compile([]metadata.SpriteDrawRequest{sprite(2, 0)}, 2)
	if res.Count != 1 || len(res.Batches) != 1 || len(res.Rejected) != 0 {
		t.Fatalf("second frame = %d instances %d batches %d rejected", res.Count, len(res.Batches), len(res.Rejected))
	}
	if len(res.Instances) != metadata.InstanceStride {
		t.Fatalf("instance bytes = %d", len(res.Instances))
	}
}

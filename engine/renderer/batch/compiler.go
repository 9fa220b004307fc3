// Package batch turns a frame's sprite draw requests into ordered,
// mergeable batches and the instance buffer they draw from. It makes no
// GPU calls.
package batch

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

// Resolver maps a texture handle to its atlas region for the frame with
// the given serial. The atlas manager implements it.
type Resolver interface {
	Resolve(h metadata.TextureHandle, serial uint64) (metadata.Region, error)
}

type Order uint8

const (
	// DepthAscending draws lower depth first, so higher depth ends on top.
	DepthAscending Order = iota
	DepthDescending
)

type TieBreak uint8

const (
	// TieBreakTexture groups equal-depth requests by texture to save
	// batches. Requests on the same texture keep submission order.
	TieBreakTexture TieBreak = iota
	// TieBreakSubmission keeps submission order for every equal-depth
	// request, whatever the texture.
	TieBreakSubmission
)

type Policy struct {
	Order    Order
	TieBreak TieBreak
}

// Batch is a run of instances drawn with one pipeline and texture binding.
type Batch struct {
	Texture       metadata.TextureHandle
	Layer         uint32
	Blend         metadata.BlendMode
	DepthTest     metadata.DepthTest
	Depth         float32
	FirstInstance uint32
	Count         uint32
	// Requests holds indices into the compiled request slice, in draw order.
	Requests []int
}

// Rejection is a request that was left out of the frame.
type Rejection struct {
	Index int
	Err   error
}

// Result is valid until the next Compile on the same Compiler.
type Result struct {
	Batches []Batch
	// Instances holds Count records of metadata.InstanceStride bytes.
	Instances []byte
	Count     int
	Rejected  []Rejection
}

type key struct {
	texture   metadata.TextureHandle
	blend     metadata.BlendMode
	depthTest metadata.DepthTest
}

func keyOf(r *metadata.SpriteDrawRequest) key {
	return key{texture: r.Texture, blend: r.Blend, depthTest: r.DepthTest}
}

type Compiler struct {
	resolver Resolver
	policy   Policy

	order     []int
	regions   []metadata.Region
	valid     []bool
	instances []byte
	result    Result
}

func NewCompiler(resolver Resolver, policy Policy) *Compiler {
	return &Compiler{resolver: resolver, policy: policy}
}

func (c *Compiler) Policy() Policy {
	return c.policy
}

func (c *Compiler) SetPolicy(p Policy) {
	c.policy = p
}

// Compile sorts, validates and expands reqs for the frame with the given
// serial. Requests that fail to resolve are reported in Rejected and the
// rest of the frame is compiled without them.
func (c *Compiler) Compile(reqs []metadata.SpriteDrawRequest, serial uint64) *Result {
	res := &c.result
	res.Batches = res.Batches[:0]
	res.Rejected = res.Rejected[:0]
	res.Count = 0

	c.order = c.order[:0]
	c.regions = slices.Grow(c.regions[:0], len(reqs))[:len(reqs)]
	c.valid = slices.Grow(c.valid[:0], len(reqs))[:len(reqs)]

	for i := range reqs {
		r := &reqs[i]
		region, err := c.validate(r, serial)
		if err != nil {
			c.valid[i] = false
			res.Rejected = append(res.Rejected, Rejection{Index: i, Err: err})
			core.LogDebug("draw %d rejected: %s", i, err)
			continue
		}
		c.regions[i] = region
		c.valid[i] = true
		c.order = append(c.order, i)
	}

	slices.SortStableFunc(c.order, func(a, b int) int {
		return c.compare(&reqs[a], &reqs[b])
	})

	need := len(c.order) * metadata.InstanceStride
	if cap(c.instances) < need {
		c.instances = make([]byte, need)
	}
	c.instances = c.instances[:need]

	for n, i := range c.order {
		r := &reqs[i]
		encode(c.instances[n*metadata.InstanceStride:], r, c.regions[i])

		k := keyOf(r)
		if last := len(res.Batches) - 1; last >= 0 {
			b := &res.Batches[last]
			if (key{b.Texture, b.Blend, b.DepthTest}) == k {
				b.Count++
				b.Requests = c.order[int(b.FirstInstance) : n+1]
				continue
			}
		}
		res.Batches = append(res.Batches, Batch{
			Texture:       r.Texture,
			Layer:         c.regions[i].Layer,
			Blend:         r.Blend,
			DepthTest:     r.DepthTest,
			Depth:         r.Depth,
			FirstInstance: uint32(n),
			Count:         1,
			Requests:      c.order[n : n+1],
		})
	}

	res.Instances = c.instances
	res.Count = len(c.order)
	return res
}

func (c *Compiler) compare(a, b *metadata.SpriteDrawRequest) int {
	d := cmp.Compare(a.Depth, b.Depth)
	if c.policy.Order == DepthDescending {
		d = -d
	}
	if d != 0 || c.policy.TieBreak == TieBreakSubmission {
		return d
	}
	return cmp.Compare(a.Texture, b.Texture)
}

func (c *Compiler) validate(r *metadata.SpriteDrawRequest, serial uint64) (metadata.Region, error) {
	if r.Blend >= metadata.BlendModeCount || r.DepthTest >= metadata.DepthTestCount {
		return metadata.Region{}, fmt.Errorf("blend %d depth test %d: %w", r.Blend, r.DepthTest, core.ErrInvalidDraw)
	}
	region, err := c.resolver.Resolve(r.Texture, serial)
	if err != nil {
		return metadata.Region{}, err
	}
	src := r.Source
	if !src.Empty() && (!fits(src.X, src.W, region.Rect.W) || !fits(src.Y, src.H, region.Rect.H)) {
		return metadata.Region{}, fmt.Errorf("source %+v outside %dx%d image %s: %w",
			src, region.Rect.W, region.Rect.H, r.Texture, core.ErrInvalidDraw)
	}
	return region, nil
}

// fits reports whether [off, off+size) lies inside [0, limit) without
// computing off+size.
func fits(off, size, limit uint32) bool {
	return size <= limit && off <= limit-size
}

package animation

import (
	"github.com/spaghettifunk/anima2d/engine/math"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// Tween eases one value. Update returns the current value and whether
// the tween has finished.
type Tween struct {
	t    *gween.Tween
	done bool
	last float32
}

func NewTween(from, to, duration float32, fn ease.TweenFunc) *Tween {
	if fn == nil {
		fn = ease.Linear
	}
	return &Tween{t: gween.New(from, to, duration, fn), last: from}
}

func (t *Tween) Update(dt float32) (float32, bool) {
	if t.done {
		return t.last, true
	}
	t.last, t.done = t.t.Update(dt)
	return t.last, t.done
}

func (t *Tween) Done() bool { return t.done }

func (t *Tween) Reset() {
	t.t.Reset()
	t.done = false
}

// Vec2Tween eases both components of a position or size.
type Vec2Tween struct {
	x, y *Tween
}

func NewVec2Tween(from, to math.Vec2, duration float32, fn ease.TweenFunc) *Vec2Tween {
	return &Vec2Tween{
		x: NewTween(from.X, to.X, duration, fn),
		y: NewTween(from.Y, to.Y, duration, fn),
	}
}

func (t *Vec2Tween) Update(dt float32) (math.Vec2, bool) {
	x, dx := t.x.Update(dt)
	y, dy := t.y.Update(dt)
	return math.Vec2{X: x, Y: y}, dx && dy
}

// ColorTween eases a tint, used for hit flashes and fades.
type ColorTween struct {
	c [4]*Tween
}

func NewColorTween(from, to math.Color, duration float32, fn ease.TweenFunc) *ColorTween {
	return &ColorTween{c: [4]*Tween{
		NewTween(from.X, to.X, duration, fn),
		NewTween(from.Y, to.Y, duration, fn),
		NewTween(from.Z, to.Z, duration, fn),
		NewTween(from.W, to.W, duration, fn),
	}}
}

func (t *ColorTween) Update(dt float32) (math.Color, bool) {
	var v [4]float32
	done := true
	for i, c := range t.c {
		var d bool
		v[i], d = c.Update(dt)
		done = done && d
	}
	return math.Color{X: v[0], Y: v[1], Z: v[2], W: v[3]}, done
}

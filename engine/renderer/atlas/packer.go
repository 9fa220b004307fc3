package atlas

import (
	"github.com/spaghettifunk/anima2d/engine/math"
)

type shelf struct {
	y      uint32
	height uint32
	x      uint32
}

// layer packs cells into one square texture layer. Cells are placed on
// shelves (rows) with a running x cursor; rectangles handed back through
// release are reused first, split guillotine style.
type layer struct {
	size    uint32
	shelves []shelf
	nextY   uint32
	free    []math.URect
}

func newLayer(size uint32) *layer {
	return &layer{size: size}
}

func (l *layer) alloc(w, h uint32) (math.URect, bool) {
	if w == 0 || h == 0 || w > l.size || h > l.size {
		return math.URect{}, false
	}
	if r, ok := l.allocFree(w, h); ok {
		return r, true
	}

	// first shelf tall enough with room left on the row
	for i := range l.shelves {
		s := &l.shelves[i]
		if h <= s.height && s.x+w <= l.size {
			r := math.URect{X: s.x, Y: s.y, W: w, H: h}
			s.x += w
			return r, true
		}
	}

	if l.nextY+h > l.size {
		return math.URect{}, false
	}
	l.shelves = append(l.shelves, shelf{y: l.nextY, height: h, x: w})
	r := math.URect{X: 0, Y: l.nextY, W: w, H: h}
	l.nextY += h
	return r, true
}

// allocFree takes the smallest free rectangle that fits.
func (l *layer) allocFree(w, h uint32) (math.URect, bool) {
	best := -1
	for i, f := range l.free {
		if f.W < w || f.H < h {
			continue
		}
		if best < 0 || f.Area() < l.free[best].Area() {
			best = i
		}
	}
	if best < 0 {
		return math.URect{}, false
	}
	f := l.free[best]
	l.free = append(l.free[:best], l.free[best+1:]...)

	// split along the longer leftover edge
	if f.W-w > f.H-h {
		l.addFree(math.URect{X: f.X + w, Y: f.Y, W: f.W - w, H: f.H})
		l.addFree(math.URect{X: f.X, Y: f.Y + h, W: w, H: f.H - h})
	} else {
		l.addFree(math.URect{X: f.X + w, Y: f.Y, W: f.W - w, H: h})
		l.addFree(math.URect{X: f.X, Y: f.Y + h, W: f.W, H: f.H - h})
	}
	return math.URect{X: f.X, Y: f.Y, W: w, H: h}, true
}

func (l *layer) addFree(r math.URect) {
	if r.Empty() {
		return
	}
	l.free = append(l.free, r)
}

// release hands a cell back. When every cell is free the layer resets.
func (l *layer) release(r math.URect, liveCells int) {
	if liveCells == 0 {
		l.shelves = l.shelves[:0]
		l.free = l.free[:0]
		l.nextY = 0
		return
	}
	l.addFree(r)
}

// snapshot captures the packer so a failed load can be rolled back.
type layerState struct {
	shelves []shelf
	nextY   uint32
	free    []math.URect
}

func (l *layer) save() layerState {
	return layerState{
		shelves: append([]shelf(nil), l.shelves...),
		nextY:   l.nextY,
		free:    append([]math.URect(nil), l.free...),
	}
}

func (l *layer) restore(s layerState) {
	l.shelves = s.shelves
	l.nextY = s.nextY
	l.free = s.free
}

// Package animation steps sprite sheet clips and tweens once per tick
// and reports the gameplay events they cross.
package animation

import (
	"github.com/spaghettifunk/anima2d/engine/math"
)

// Grid cuts a sprite sheet into equally sized cells, numbered row by row.
type Grid struct {
	Columns, Rows uint32
	CellW, CellH  uint32
}

// NewGrid divides a width x height sheet into columns x rows cells.
func NewGrid(width, height, columns, rows uint32) Grid {
	if columns == 0 || rows == 0 {
		return Grid{}
	}
	return Grid{Columns: columns, Rows: rows, CellW: width / columns, CellH: height / rows}
}

// Cell returns the source rect of frame i. Indices wrap around the sheet.
func (g Grid) Cell(i int) math.URect {
	n := int(g.Columns * g.Rows)
	if n == 0 {
		return math.URect{}
	}
	i = ((i % n) + n) % n
	col, row := uint32(i)%g.Columns, uint32(i)/g.Columns
	return math.URect{X: col * g.CellW, Y: row * g.CellH, W: g.CellW, H: g.CellH}
}

func (g Grid) Len() int {
	return int(g.Columns * g.Rows)
}

// Clip is a named frame sequence. Events maps a frame index to the
// gameplay event fired when the clip enters that frame.
type Clip struct {
	Name          string
	Frames        []int
	FrameDuration float64
	Loop          bool
	Events        map[int]string
}

// Player plays one clip at a time.
type Player struct {
	clip     *Clip
	frame    int
	elapsed  float64
	finished bool
	pending  []string
	out      []string
}

func NewPlayer(clip *Clip) *Player {
	p := &Player{}
	p.Play(clip)
	return p
}

// Play switches to clip from its first frame. The first frame's event,
// if any, is reported by the next Update.
func (p *Player) Play(clip *Clip) {
	p.clip = clip
	p.frame = 0
	p.elapsed = 0
	p.finished = clip == nil || len(clip.Frames) == 0
	p.pending = p.pending[:0]
	if !p.finished {
		if ev, ok := clip.Events[0]; ok {
			p.pending = append(p.pending, ev)
		}
	}
}

// Update advances by dt seconds and returns the events of every frame
// entered, in order. The slice is reused by the next call.
func (p *Player) Update(dt float64) []string {
	p.out = append(p.out[:0], p.pending...)
	p.pending = p.pending[:0]
	if p.finished || p.clip.FrameDuration <= 0 {
		return p.out
	}
	p.elapsed += dt
	for p.elapsed >= p.clip.FrameDuration {
		p.elapsed -= p.clip.FrameDuration
		next := p.frame + 1
		if next >= len(p.clip.Frames) {
			if !p.clip.Loop {
				p.finished = true
				p.elapsed = 0
				break
			}
			next = 0
		}
		p.frame = next
		if ev, ok := p.clip.Events[next]; ok {
			p.out = append(p.out, ev)
		}
	}
	return p.out
}

// Index is the sheet cell of the current frame.
func (p *Player) Index() int {
	if p.clip == nil || len(p.clip.Frames) == 0 {
		return 0
	}
	return p.clip.Frames[p.frame]
}

func (p *Player) Frame() int { return p.frame }

func (p *Player) Finished() bool { return p.finished }

func (p *Player) Clip() *Clip { return p.clip }

package renderer

import (
	"github.com/spaghettifunk/anima2d/engine/math"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

type CommandOp uint8

const (
	OpBeginPass CommandOp = iota
	OpSetPipeline
	OpDraw
	OpEndPass
)

type Command struct {
	Op    CommandOp
	Clear math.Color

	Blend     metadata.BlendMode
	DepthTest metadata.DepthTest

	FirstInstance uint32
	InstanceCount uint32
}

// CommandList is a backend neutral recording of one frame. Devices
// replay it into their native command buffers on Submit.
type CommandList struct {
	Commands []Command
}

func (l *CommandList) Reset() {
	l.Commands = l.Commands[:0]
}

func (l *CommandList) BeginPass(clear math.Color) {
	l.Commands = append(l.Commands, Command{Op: OpBeginPass, Clear: clear})
}

func (l *CommandList) SetPipeline(blend metadata.BlendMode, depth metadata.DepthTest) {
	l.Commands = append(l.Commands, Command{Op: OpSetPipeline, Blend: blend, DepthTest: depth})
}

func (l *CommandList) Draw(first, count uint32) {
	l.Commands = append(l.Commands, Command{Op: OpDraw, FirstInstance: first, InstanceCount: count})
}

func (l *CommandList) EndPass() {
	l.Commands = append(l.Commands, Command{Op: OpEndPass})
}

// Draws returns the draw commands in recording order.
func (l *CommandList) Draws() []Command {
	var out []Command
	for _, c := range l.Commands {
		if c.Op == OpDraw {
			out = append(out, c)
		}
	}
	return out
}

// Clone copies the list so a backend can keep it past the frame.
func (l *CommandList) Clone() *CommandList {
	c := &CommandList{Commands: make([]Command, len(l.Commands))}
	copy(c.Commands, l.Commands)
	return c
}

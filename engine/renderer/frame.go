package renderer

import (
	"encoding/binary"
	"errors"
	"fmt"
	stdmath "math"
	"time"

	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/math"
	"github.com/spaghettifunk/anima2d/engine/renderer/batch"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

/** @brief Lifecycle of one frame-in-flight slot. */
type SlotState uint8

const (
	SlotIdle SlotState = iota
	SlotAcquired
	SlotRecorded
	SlotSubmitted
	SlotPresented
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotAcquired:
		return "acquired"
	case SlotRecorded:
		return "recorded"
	case SlotSubmitted:
		return "submitted"
	case SlotPresented:
		return "presented"
	}
	return "unknown"
}

type PipelineOptions struct {
	FramesInFlight int
	// Instances beyond this are cut from the end of the frame.
	MaxInstances int
	FenceTimeout time.Duration
	Clear        math.Color
	Camera       metadata.Camera
	// OnFatal is called once, with the error that stopped the pipeline.
	OnFatal func(error)
	// OnTransition observes every slot state change.
	OnTransition func(slot int, from, to SlotState)
}

// Frame is what the pipeline draws in one tick. A nil Camera or Clear
// falls back to the pipeline options.
type Frame struct {
	Batches *batch.Result
	Camera  *metadata.Camera
	Clear   *math.Color
}

type PipelineStats struct {
	Submitted uint64
	Dropped   uint64
	// Ticks where the next slot was still owned by the GPU.
	Stalled   uint64
	Truncated uint64
}

type frameSlot struct {
	state    SlotState
	inFlight bool
	serial   uint64
	target   *FrameTarget
	cmds     CommandList
}

// Pipeline runs acquire, upload, record, submit and present over a ring
// of frame-in-flight slots. A slot is only rewritten after the GPU has
// signalled its previous submission.
type Pipeline struct {
	ctx     *Context
	opts    PipelineOptions
	slots   []frameSlot
	current int
	// serial of the next frame to be submitted
	serial uint64
	camera [metadata.CameraUniformSize]byte
	stats  PipelineStats
	fatal  error
	closed bool
}

func NewPipeline(ctx *Context, opts PipelineOptions) (*Pipeline, error) {
	if opts.FramesInFlight <= 0 {
		opts.FramesInFlight = 2
	}
	if opts.MaxInstances <= 0 {
		return nil, fmt.Errorf("pipeline needs room for at least one instance: %w", core.ErrInvalidConfig)
	}
	if opts.FenceTimeout <= 0 {
		opts.FenceTimeout = time.Second
	}
	if err := ctx.CreateFrameResources(opts.FramesInFlight, opts.MaxInstances); err != nil {
		core.LogError("failed to create frame resources: %s", err)
		return nil, err
	}
	core.LogDebug("Frame pipeline created with %d frames in flight, %d instances each", opts.FramesInFlight, opts.MaxInstances)
	return &Pipeline{
		ctx:    ctx,
		opts:   opts,
		slots:  make([]frameSlot, opts.FramesInFlight),
		serial: 1,
	}, nil
}

func (p *Pipeline) transition(i int, to SlotState) {
	s := &p.slots[i]
	from := s.state
	s.state = to
	if p.opts.OnTransition != nil {
		p.opts.OnTransition(i, from, to)
	}
}

// Render draws one frame. Transient surface trouble drops the frame and
// returns nil; the next call retries. Only fatal errors are returned,
// and once one is returned every later call returns it too.
func (p *Pipeline) Render(f Frame) error {
	if p.fatal != nil {
		return p.fatal
	}
	if p.closed {
		return core.ErrClosed
	}

	i := p.current
	s := &p.slots[i]

	if s.inFlight {
		if err := p.ctx.WaitFrame(i, p.opts.FenceTimeout); err != nil {
			if core.IsTransient(err) {
				p.stats.Stalled++
				core.LogWarn("frame slot %d still busy, skipping this tick: %s", i, err)
				return nil
			}
			return p.fail(i, err)
		}
		s.inFlight = false
	}

	target, err := p.ctx.Acquire(i)
	if err != nil {
		return p.fail(i, err)
	}
	s.target = target
	p.transition(i, SlotAcquired)

	var instances []byte
	var batches []batch.Batch
	if f.Batches != nil {
		instances = f.Batches.Instances[:f.Batches.Count*metadata.InstanceStride]
		batches = f.Batches.Batches
		if f.Batches.Count > p.opts.MaxInstances {
			p.stats.Truncated++
			core.LogWarn("frame has %d sprites, drawing the first %d", f.Batches.Count, p.opts.MaxInstances)
			instances = instances[:p.opts.MaxInstances*metadata.InstanceStride]
		}
	}

	cam := p.opts.Camera
	if f.Camera != nil {
		cam = *f.Camera
	}
	encodeCamera(p.camera[:], cam)
	if err := p.ctx.WriteFrame(i, p.camera[:], instances); err != nil {
		return p.fail(i, err)
	}

	clear := p.opts.Clear
	if f.Clear != nil {
		clear = *f.Clear
	}
	p.record(&s.cmds, batches, uint32(len(instances)/metadata.InstanceStride), clear)
	p.transition(i, SlotRecorded)

	if err := p.ctx.Submit(target, &s.cmds); err != nil {
		return p.fail(i, err)
	}
	s.inFlight = true
	s.serial = p.serial
	p.serial++
	p.stats.Submitted++
	p.transition(i, SlotSubmitted)

	if err := p.ctx.Present(target); err != nil {
		return p.fail(i, err)
	}
	p.transition(i, SlotPresented)
	p.transition(i, SlotIdle)
	s.target = nil
	p.current = (i + 1) % len(p.slots)
	return nil
}

// record writes the batches into cmds in compiler order, switching
// pipelines only when blend or depth test change. Instances at or past
// limit are not drawn.
func (p *Pipeline) record(cmds *CommandList, batches []batch.Batch, limit uint32, clear math.Color) {
	cmds.Reset()
	cmds.BeginPass(clear)
	bound := false
	var blend metadata.BlendMode
	var depth metadata.DepthTest
	for _, b := range batches {
		if b.FirstInstance >= limit {
			break
		}
		count := b.Count
		if b.FirstInstance+count > limit {
			count = limit - b.FirstInstance
		}
		if !bound || b.Blend != blend || b.DepthTest != depth {
			cmds.SetPipeline(b.Blend, b.DepthTest)
			blend, depth, bound = b.Blend, b.DepthTest, true
		}
		cmds.Draw(b.FirstInstance, count)
	}
	cmds.EndPass()
}

// fail puts slot i back to idle. A target that never reached the queue
// is abandoned so the swapchain gives its image back.
func (p *Pipeline) fail(i int, err error) error {
	s := &p.slots[i]
	if s.target != nil && !s.target.submitted {
		p.ctx.Abandon(s.target)
	}
	submitted := s.target != nil && s.target.submitted
	frame := "none"
	if s.target != nil {
		frame = s.target.ID
	}
	s.target = nil
	if s.state != SlotIdle {
		p.transition(i, SlotIdle)
	}
	if submitted {
		// the GPU owns the slot until its fence signals
		p.current = (i + 1) % len(p.slots)
	}

	if core.IsFatal(err) {
		p.fatal = fmt.Errorf("render pipeline stopped: %w", err)
		core.LogError("%s", p.fatal)
		if p.opts.OnFatal != nil {
			p.opts.OnFatal(p.fatal)
		}
		return p.fatal
	}

	p.stats.Dropped++
	switch {
	case errors.Is(err, core.ErrSurfaceSuspended):
		core.LogDebug("surface suspended, frame skipped")
	case core.IsTransient(err):
		core.LogWarn("frame %s dropped on slot %d: %s", frame, i, err)
	default:
		core.LogError("frame %s dropped on slot %d: %s", frame, i, err)
	}
	return nil
}

// Resize forwards a new framebuffer size to the context. Frames acquired
// before it are dropped instead of submitted.
func (p *Pipeline) Resize(width, height uint32) {
	p.ctx.Resize(Size{Width: width, Height: height})
}

// Serial is the serial the next submitted frame will carry.
func (p *Pipeline) Serial() uint64 {
	return p.serial
}

// CompletedSerial is the newest serial the GPU is known to be finished
// with. Every frame at or below it has completed.
func (p *Pipeline) CompletedSerial() uint64 {
	done := p.serial - 1
	for i := range p.slots {
		s := &p.slots[i]
		if s.inFlight && !p.ctx.FrameDone(i) && s.serial-1 < done {
			done = s.serial - 1
		}
	}
	return done
}

func (p *Pipeline) SlotState(i int) SlotState {
	return p.slots[i].state
}

// InFlight reports whether slot i has a submission the pipeline has not
// yet waited on.
func (p *Pipeline) InFlight(i int) bool {
	return p.slots[i].inFlight
}

func (p *Pipeline) Stats() PipelineStats {
	return p.stats
}

func (p *Pipeline) Err() error {
	return p.fatal
}

func (p *Pipeline) Context() *Context {
	return p.ctx
}

// Close waits for every outstanding submission and releases the device.
func (p *Pipeline) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.ctx.Lost() == nil {
		for i := range p.slots {
			if !p.slots[i].inFlight {
				continue
			}
			if err := p.ctx.WaitFrame(i, p.opts.FenceTimeout); err != nil {
				core.LogWarn("slot %d did not complete before shutdown: %s", i, err)
			}
			p.slots[i].inFlight = false
		}
	}
	return p.ctx.Close()
}

func encodeCamera(dst []byte, c metadata.Camera) {
	for i, f := range [4]float32{c.Position.X, c.Position.Y, c.Size.X, c.Size.Y} {
		binary.LittleEndian.PutUint32(dst[i*4:], stdmath.Float32bits(f))
	}
}

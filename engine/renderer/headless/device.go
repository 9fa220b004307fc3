// Package headless is a software render device. It keeps swapchain,
// fence and buffer state in memory, records everything it is asked to
// do and can inject faults, so the frame pipeline can run without a GPU.
package headless

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/math"
	"github.com/spaghettifunk/anima2d/engine/renderer"
)

type Op uint8

const (
	OpConfigure Op = iota
	OpAcquire
	OpSubmit
	OpPresent
	OpWaitFrame
	OpWriteFrame
	OpWriteTexture
)

type Submission struct {
	Slot      int
	Image     uint32
	Size      renderer.Size
	Commands  []renderer.Command
	Instances []byte
	Camera    []byte
}

type Presentation struct {
	Slot  int
	Image uint32
	Size  renderer.Size
	// index into Submissions
	Submission int
}

type frameSlot struct {
	submitted bool
	signaled  bool
	camera    []byte
	instances []byte
}

// Device implements renderer.Device in memory.
type Device struct {
	mu sync.Mutex

	caps       renderer.SurfaceCapabilities
	imageCount uint32
	nextImage  uint32

	state       renderer.SurfaceState
	configures  []renderer.SurfaceState
	acquired    map[uint32]bool
	slots       []frameSlot
	capacity    int
	holdFences  bool
	faults      map[Op][]error
	lost        bool
	destroyed   bool
	violations  int
	submissions []Submission
	presents    []Presentation

	layerSize uint32
	layers    [][]byte
}

func New() *Device {
	return &Device{
		caps: renderer.SurfaceCapabilities{
			Formats:      []renderer.Format{renderer.FormatBGRA8Srgb, renderer.FormatBGRA8Unorm},
			PresentModes: []renderer.PresentMode{renderer.PresentModeFifo, renderer.PresentModeMailbox},
		},
		imageCount: 3,
		acquired:   make(map[uint32]bool),
		faults:     make(map[Op][]error),
	}
}

// Backend returns a renderer.Backend that always opens d.
func (d *Device) Backend() renderer.Backend {
	return renderer.BackendFunc(func(renderer.Window) (renderer.Device, error) {
		return d, nil
	})
}

// SetCapabilities replaces what the device advertises. Call before
// opening a context.
func (d *Device) SetCapabilities(caps renderer.SurfaceCapabilities) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps = caps
}

// HoldFences keeps submitted frames in flight until CompleteFrame or
// CompleteAll. By default frames complete as soon as they are submitted.
func (d *Device) HoldFences(hold bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.holdFences = hold
}

func (d *Device) CompleteFrame(slot int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot < len(d.slots) && d.slots[slot].submitted {
		d.slots[slot].signaled = true
	}
}

func (d *Device) CompleteAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.slots {
		if d.slots[i].submitted {
			d.slots[i].signaled = true
		}
	}
}

// FailNext makes the next call of op return err. Calls queue up.
func (d *Device) FailNext(op Op, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[op] = append(d.faults[op], err)
}

// LoseDevice makes every following call fail with core.ErrDeviceLost.
func (d *Device) LoseDevice() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
}

func (d *Device) fault(op Op) error {
	if d.lost {
		return fmt.Errorf("headless: %w", core.ErrDeviceLost)
	}
	if d.destroyed {
		return fmt.Errorf("headless: %w", core.ErrClosed)
	}
	if q := d.faults[op]; len(q) > 0 {
		err := q[0]
		d.faults[op] = q[1:]
		if err == core.ErrDeviceLost {
			d.lost = true
		}
		return err
	}
	return nil
}

func (d *Device) Capabilities() (renderer.SurfaceCapabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return renderer.SurfaceCapabilities{}, core.ErrDeviceLost
	}
	return d.caps, nil
}

func (d *Device) Configure(state renderer.SurfaceState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fault(OpConfigure); err != nil {
		return err
	}
	d.state = state
	d.configures = append(d.configures, state)
	d.acquired = make(map[uint32]bool)
	return nil
}

func (d *Device) Acquire(slot int, timeout time.Duration) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fault(OpAcquire); err != nil {
		return 0, err
	}
	if d.state.Size.Empty() {
		return 0, core.ErrSurfaceLost
	}
	for i := uint32(0); i < d.imageCount; i++ {
		img := (d.nextImage + i) % d.imageCount
		if !d.acquired[img] {
			d.acquired[img] = true
			d.nextImage = (img + 1) % d.imageCount
			return img, nil
		}
	}
	return 0, core.ErrAcquireTimeout
}

func (d *Device) checkSlot(slot int) error {
	if slot < 0 || slot >= len(d.slots) {
		return fmt.Errorf("headless: slot %d out of range (%d slots)", slot, len(d.slots))
	}
	return nil
}

func (d *Device) Submit(slot int, image uint32, cmds *renderer.CommandList) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fault(OpSubmit); err != nil {
		return err
	}
	if err := d.checkSlot(slot); err != nil {
		return err
	}
	if !d.acquired[image] {
		return fmt.Errorf("headless: submit of image %d that was not acquired", image)
	}
	s := &d.slots[slot]
	s.submitted = true
	s.signaled = !d.holdFences
	sub := Submission{
		Slot:      slot,
		Image:     image,
		Size:      d.state.Size,
		Instances: append([]byte(nil), s.instances...),
		Camera:    append([]byte(nil), s.camera...),
	}
	if cmds != nil {
		sub.Commands = cmds.Clone().Commands
	}
	d.submissions = append(d.submissions, sub)
	return nil
}

func (d *Device) Present(slot int, image uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fault(OpPresent); err != nil {
		delete(d.acquired, image)
		return err
	}
	if !d.acquired[image] {
		return fmt.Errorf("headless: present of image %d that was not acquired", image)
	}
	delete(d.acquired, image)
	d.presents = append(d.presents, Presentation{
		Slot:       slot,
		Image:      image,
		Size:       d.state.Size,
		Submission: len(d.submissions) - 1,
	})
	return nil
}

func (d *Device) WaitFrame(slot int, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fault(OpWaitFrame); err != nil {
		return err
	}
	if err := d.checkSlot(slot); err != nil {
		return err
	}
	s := d.slots[slot]
	if s.submitted && !s.signaled {
		// a held fence never signals on its own, report the timeout
		// right away instead of sleeping
		return fmt.Errorf("headless slot %d: %w", slot, core.ErrFenceTimeout)
	}
	return nil
}

func (d *Device) FrameDone(slot int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost || slot < 0 || slot >= len(d.slots) {
		return false
	}
	s := d.slots[slot]
	return !s.submitted || s.signaled
}

func (d *Device) CreateFrameResources(slots int, instanceCapacity int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return core.ErrDeviceLost
	}
	d.slots = make([]frameSlot, slots)
	d.capacity = instanceCapacity
	return nil
}

func (d *Device) WriteFrame(slot int, camera []byte, instances []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fault(OpWriteFrame); err != nil {
		return err
	}
	if err := d.checkSlot(slot); err != nil {
		return err
	}
	s := &d.slots[slot]
	if s.submitted && !s.signaled {
		d.violations++
	}
	s.camera = append(s.camera[:0], camera...)
	s.instances = append(s.instances[:0], instances...)
	return nil
}

func (d *Device) CreateTextureArray(size, layers uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return core.ErrDeviceLost
	}
	d.layerSize = size
	d.layers = make([][]byte, layers)
	for i := range d.layers {
		d.layers[i] = make([]byte, int(size)*int(size)*4)
	}
	return nil
}

func (d *Device) WriteTexture(layer uint32, rect math.URect, rgba []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fault(OpWriteTexture); err != nil {
		return err
	}
	if int(layer) >= len(d.layers) {
		return fmt.Errorf("headless: texture layer %d out of range", layer)
	}
	if rect.X+rect.W > d.layerSize || rect.Y+rect.H > d.layerSize {
		return fmt.Errorf("headless: texture write %+v outside %d layer", rect, d.layerSize)
	}
	if len(rgba) < int(rect.W)*int(rect.H)*4 {
		return fmt.Errorf("headless: short texture write, %d bytes for %dx%d", len(rgba), rect.W, rect.H)
	}
	dst := d.layers[layer]
	row := int(rect.W) * 4
	for y := 0; y < int(rect.H); y++ {
		off := ((int(rect.Y)+y)*int(d.layerSize) + int(rect.X)) * 4
		copy(dst[off:off+row], rgba[y*row:(y+1)*row])
	}
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return core.ErrDeviceLost
	}
	for i := range d.slots {
		if d.slots[i].submitted {
			d.slots[i].signaled = true
		}
	}
	return nil
}

func (d *Device) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = true
	return nil
}

// Inspection helpers for tests.

func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.submissions...)
}

func (d *Device) Presentations() []Presentation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Presentation(nil), d.presents...)
}

func (d *Device) Configurations() []renderer.SurfaceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]renderer.SurfaceState(nil), d.configures...)
}

// ReuseViolations counts frame writes into a slot whose previous
// submission had not completed.
func (d *Device) ReuseViolations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.violations
}

func (d *Device) InFlight(slot int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot < 0 || slot >= len(d.slots) {
		return false
	}
	return d.slots[slot].submitted && !d.slots[slot].signaled
}

func (d *Device) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

// Pixel reads one RGBA texel of the texture array.
func (d *Device) Pixel(layer, x, y uint32) [4]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var px [4]byte
	if int(layer) >= len(d.layers) || x >= d.layerSize || y >= d.layerSize {
		return px
	}
	off := (int(y)*int(d.layerSize) + int(x)) * 4
	copy(px[:], d.layers[layer][off:off+4])
	return px
}

// Window is a fixed size stand-in for a platform window.
type Window struct {
	Width, Height int
}

func (w *Window) GetFramebufferSize() (int, int) {
	return w.Width, w.Height
}

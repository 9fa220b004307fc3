package engine

import (
	"github.com/spaghettifunk/anima2d/engine/input"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	// Systems is set by the engine before FnInitialize runs.
	Systems      *Systems
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func() error
type Update func(deltaTime float64, in *input.Snapshot) error

// Render appends the sprites, cues and events of this tick to packet.
// The packet is reset before every call.
type Render func(packet *metadata.RenderPacket, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error

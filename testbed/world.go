package testbed

import (
	"github.com/spaghettifunk/anima2d/engine/animation"
	"github.com/spaghettifunk/anima2d/engine/math"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

// Sprite sheet cells, 4x4 grid numbered row by row.
const (
	cellPlayerRight = 0
	cellPlayerLeft  = 2
	cellProjectile  = 4
	cellEnemy       = 5
)

const (
	spriteSize      = 64
	playerSpeed     = 6
	enemySpeed      = 6
	enemyCooldown   = 20
	spawnJitter     = 20
	projectileDepth = 2
)

const (
	eventShot = "enemy.shot"
	eventHit  = "player.hit"
)

type player struct {
	pos         math.Vec2
	velocity    math.Vec2
	facingRight bool
}

func (p *player) bounds() math.Rect {
	return math.NewRect(p.pos.X, p.pos.Y, spriteSize, spriteSize)
}

type enemy struct {
	pos      math.Vec2
	cooldown int
	idle     *animation.Player
}

type projectile struct {
	pos      math.Vec2
	velocity math.Vec2
	dead     bool
}

func (p *projectile) bounds() math.Rect {
	return math.NewRect(p.pos.X, p.pos.Y, spriteSize, spriteSize)
}

// controls are the arrow key edges of one tick.
type controls struct {
	leftPressed, leftReleased   bool
	rightPressed, rightReleased bool
}

// world is the demo game state. One step is one tick; speeds are in
// world units per tick.
type world struct {
	player      player
	enemy       enemy
	projectiles []projectile
	hits        int
	grid        animation.Grid
}

func newWorld(grid animation.Grid) *world {
	return &world{
		player: player{pos: math.NewVec2(400, 100), facingRight: true},
		enemy: enemy{
			pos:      math.NewVec2(450, 650),
			cooldown: enemyCooldown,
			idle: animation.NewPlayer(&animation.Clip{
				Name:          "enemy.idle",
				Frames:        []int{cellEnemy, cellEnemy + 1},
				FrameDuration: 0.4,
				Loop:          true,
			}),
		},
		grid: grid,
	}
}

// step advances the world and returns the gameplay events it produced.
func (w *world) step(in controls, dt float64) []string {
	var events []string

	if in.rightPressed {
		w.player.velocity.X += playerSpeed
	}
	if in.leftPressed {
		w.player.velocity.X -= playerSpeed
	}
	if in.rightReleased {
		w.player.velocity.X -= playerSpeed
	}
	if in.leftReleased {
		w.player.velocity.X += playerSpeed
	}
	switch {
	case w.player.velocity.X > 0:
		w.player.pos.X += playerSpeed
		w.player.facingRight = true
	case w.player.velocity.X < 0:
		w.player.pos.X -= playerSpeed
		w.player.facingRight = false
	}

	events = append(events, w.enemy.idle.Update(dt)...)
	if w.enemy.cooldown > 0 {
		w.enemy.cooldown--
	} else {
		w.enemy.cooldown = enemyCooldown
		w.spawnProjectile()
		events = append(events, eventShot)
	}

	hitBox := w.player.bounds()
	for i := range w.projectiles {
		p := &w.projectiles[i]
		p.pos = p.pos.Add(p.velocity)
		if p.pos.Y < 0 {
			p.dead = true
			continue
		}
		if p.bounds().Overlaps(hitBox) {
			p.dead = true
			w.hits++
			events = append(events, eventHit)
		}
	}
	alive := w.projectiles[:0]
	for _, p := range w.projectiles {
		if !p.dead {
			alive = append(alive, p)
		}
	}
	w.projectiles = alive
	return events
}

func (w *world) spawnProjectile() {
	angle := math.FRandomInRange(11*math.K_PI/8, 13*math.K_PI/8)
	pos := math.NewVec2(w.enemy.pos.X+float32(math.RandomInRange(-spawnJitter, spawnJitter)), w.enemy.pos.Y)
	w.projectiles = append(w.projectiles, projectile{
		pos:      pos,
		velocity: math.FromAngle(angle, enemySpeed),
	})
}

// draw appends the world sprites to p. tint colours the player.
func (w *world) draw(p *metadata.RenderPacket, sheet metadata.TextureHandle, tint math.Color) {
	size := math.NewVec2(spriteSize, spriteSize)
	cell := cellPlayerRight
	if !w.player.facingRight {
		cell = cellPlayerLeft
	}
	p.Draw(metadata.SpriteDrawRequest{
		Position: w.player.pos,
		Size:     size,
		Texture:  sheet,
		Source:   w.grid.Cell(cell),
		Tint:     tint,
		Depth:    1,
	})
	p.Draw(metadata.SpriteDrawRequest{
		Position: w.enemy.pos,
		Size:     size,
		Texture:  sheet,
		Source:   w.grid.Cell(w.enemy.idle.Index()),
		Depth:    1,
	})
	for _, pr := range w.projectiles {
		p.Draw(metadata.SpriteDrawRequest{
			Position: pr.pos,
			Size:     size,
			Texture:  sheet,
			Source:   w.grid.Cell(cellProjectile),
			Depth:    projectileDepth,
			Blend:    metadata.BlendAdditive,
		})
	}
}

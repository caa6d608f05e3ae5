// Package entity implements animated game entities (players, monsters, NPCs).
package entity

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/animation"
	"github.com/Faultbox/midgard-anim/internal/logger"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Type represents the type of entity.
type Type uint8

const (
	TypePlayer Type = iota
	TypeMonster
	TypeNPC
)

func (t Type) String() string {
	switch t {
	case TypePlayer:
		return "player"
	case TypeMonster:
		return "monster"
	case TypeNPC:
		return "npc"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// AnimSlot names the animations an entity keeps loaded.
type AnimSlot int

const (
	AnimWait AnimSlot = iota
	AnimWalk
	AnimWalk2
	AnimWalk3
	AnimRun
	AnimRun2
	AnimRun3
	AnimAction
	AnimHit
	AnimDie
	NumAnimSlots
)

// NumLayers is the number of independent playback layers per entity.
const NumLayers = 4

// Entity is an animated object in the world. It implements
// animation.Owner for its own layers and animation.Holder for reloads.
type Entity struct {
	ID   uint32
	Type Type
	Name string
	Pos  math.Vec3

	// TimeFrozen stops every layer's clock.
	TimeFrozen bool

	Anims     [NumAnimSlots]animation.Handle
	AnimPaths [NumAnimSlots]string
	Layers    [NumLayers]animation.PlaybackState

	// Root motion accumulated by the current clip, and at its last end
	Move     math.Vec3
	LastMove math.Vec3

	Clock        int64 // ms of simulated time
	LastAnimTime int64 // Clock when the pose was last latched for blending

	Footsteps     int
	ClipsFinished int

	// OnFootstep is called for every footstep frame; optional.
	OnFootstep func(e *Entity, pos math.Vec3)
}

var (
	_ animation.Owner  = (*Entity)(nil)
	_ animation.Holder = (*Entity)(nil)
)

// NewEntity creates a new entity.
func NewEntity(id uint32, entityType Type) *Entity {
	e := &Entity{
		ID:   id,
		Type: entityType,
	}
	for i := range e.Layers {
		e.Layers[i] = animation.NewPlaybackState()
	}
	return e
}

// SetPosition sets the entity position.
func (e *Entity) SetPosition(x, y, z float32) {
	e.Pos = math.Vec3{X: x, Y: y, Z: z}
}

// Position returns the entity position.
func (e *Entity) Position() math.Vec3 {
	return e.Pos
}

// Frozen reports whether the entity's clock is stopped.
func (e *Entity) Frozen() bool {
	return e.TimeFrozen
}

// IsPlayer reports whether this is the local player.
func (e *Entity) IsPlayer() bool {
	return e.Type == TypePlayer
}

// IsLocomotion reports whether h is one of the walk or run slots.
func (e *Entity) IsLocomotion(h animation.Handle) bool {
	if !h.Valid() {
		return false
	}
	for s := AnimWalk; s <= AnimRun3; s++ {
		if e.Anims[s] == h {
			return true
		}
	}
	return false
}

// ClipFinished settles root motion when the base layer's clip ends.
func (e *Entity) ClipFinished(h animation.Handle) {
	e.ClipsFinished++
	if e.IsPlayer() || h != e.Layers[0].Current {
		return
	}
	e.Move = math.Vec3Zero
	e.LastMove = math.Vec3Zero
}

// LatchBlend records the blend start time if any layer is playing. The
// first transition only marks LastAnimTime as set, so there is no blend
// into the first clip an entity ever plays.
func (e *Entity) LatchBlend() {
	if e.LastAnimTime == 0 {
		e.LastAnimTime = 1
		return
	}
	for i := range e.Layers {
		if e.Layers[i].Current.Valid() {
			e.LastAnimTime = e.Clock
			return
		}
	}
}

// Footstep counts the step and forwards it to OnFootstep.
func (e *Entity) Footstep(pos math.Vec3) {
	e.Footsteps++
	if e.OnFootstep != nil {
		e.OnFootstep(e, pos)
	}
}

// LoadAnim loads path into slot, releasing whatever the slot held.
func (e *Entity) LoadAnim(c *animation.Cache, slot AnimSlot, path string) error {
	if slot < 0 || slot >= NumAnimSlots {
		return fmt.Errorf("entity %d: anim slot %d out of range", e.ID, slot)
	}

	h, err := c.Load(path)
	if err != nil {
		return fmt.Errorf("entity %d: %w", e.ID, err)
	}

	c.Release(e.Anims[slot])
	e.Anims[slot] = h
	e.AnimPaths[slot] = path
	return nil
}

// Play starts the animation in slot on layer with extra flags.
func (e *Entity) Play(c *animation.Cache, layer int, slot AnimSlot, flags animation.Flags) {
	if layer < 0 || layer >= NumLayers || slot < 0 || slot >= NumAnimSlots {
		return
	}
	s := &e.Layers[layer]
	c.Play(s, e.Anims[slot])
	s.Flags |= flags
}

// Queue makes slot follow the current clip on layer.
func (e *Entity) Queue(c *animation.Cache, layer int, slot AnimSlot, flags animation.Flags) {
	if layer < 0 || layer >= NumLayers || slot < 0 || slot >= NumAnimSlots {
		return
	}
	c.Queue(&e.Layers[layer], e.Anims[slot], flags)
}

// Update advances every layer by deltaMs.
func (e *Entity) Update(c *animation.Cache, deltaMs int64) {
	if !e.TimeFrozen {
		e.Clock += deltaMs
	}
	for i := range e.Layers {
		c.Advance(&e.Layers[i], deltaMs, e)
	}
}

// DropAnimations releases every loaded animation and empties all layers.
// Slot paths are kept so Reacquire can load them again.
func (e *Entity) DropAnimations(c *animation.Cache) {
	for i := range e.Layers {
		e.Layers[i].Clear()
	}
	for s := range e.Anims {
		c.Release(e.Anims[s])
		e.Anims[s] = animation.Handle{}
	}
}

// Reacquire loads every slot that has a path but no live handle.
func (e *Entity) Reacquire(c *animation.Cache) error {
	var failed int
	for s, p := range e.AnimPaths {
		if p == "" || c.Get(e.Anims[s]) != nil {
			continue
		}
		h, err := c.Load(p)
		if err != nil {
			failed++
			logger.Warn("animation not reacquired",
				zap.Uint32("entity", e.ID), zap.String("path", p), zap.Error(err))
			continue
		}
		e.Anims[s] = h
	}
	if failed > 0 {
		return fmt.Errorf("entity %d: %d animations not reacquired", e.ID, failed)
	}
	return nil
}

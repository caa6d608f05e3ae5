package entity

import (
	"fmt"
	"math/rand/v2"
	"os"
	"testing"

	"github.com/Faultbox/midgard-anim/internal/animation"
	"github.com/Faultbox/midgard-anim/pkg/formats"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

type memFiles map[string][]byte

func (m memFiles) ReadFile(path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, os.ErrNotExist)
	}
	return data, nil
}

// buildClip encodes a one second clip whose keyframe at 500ms has flag.
func buildClip(t *testing.T, flag int32) []byte {
	t.Helper()
	tea := &formats.TEA{
		Header: formats.TEAHeader{
			Version:       formats.TEAMinVersion,
			FrameCount:    24,
			KeyframeCount: 3,
		},
		Keyframes: []formats.TEAKeyframe{
			{Frame: 0, Move: 1},
			{Frame: 12, Flag: flag},
			{Frame: 24, Move: 1, Translate: [3]float32{0, 0, 50}},
		},
	}
	data, err := formats.EncodeTEA(tea)
	if err != nil {
		t.Fatalf("EncodeTEA failed: %v", err)
	}
	return data
}

func newTestWorld(t *testing.T) (*Manager, memFiles) {
	t.Helper()
	files := memFiles{
		"anim/idle.tea": buildClip(t, 0),
		"anim/walk.tea": buildClip(t, animation.FlagFootstep),
		"anim/hit.tea":  buildClip(t, 0),
	}
	c := animation.NewCache(files, animation.WithRand(rand.New(rand.NewPCG(3, 4))))
	return NewManager(c), files
}

func TestEntityOwner(t *testing.T) {
	e := NewEntity(1, TypeNPC)
	e.SetPosition(1, 2, 3)

	if e.Position() != (math.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("Position = %+v", e.Position())
	}
	if e.IsPlayer() {
		t.Error("NPC reported as player")
	}
	if e.Frozen() {
		t.Error("new entity frozen")
	}
	for i, l := range e.Layers {
		if l.LastFrame != -1 {
			t.Errorf("layer %d LastFrame = %d, want -1", i, l.LastFrame)
		}
	}
	if TypeMonster.String() != "monster" {
		t.Errorf("TypeMonster.String() = %q", TypeMonster.String())
	}
}

func TestWalkLoopsAndSteps(t *testing.T) {
	m, _ := newTestWorld(t)
	c := m.Cache()

	npc := NewEntity(7, TypeNPC)
	npc.SetPosition(10, 0, 10)
	var stepsAt []math.Vec3
	npc.OnFootstep = func(_ *Entity, pos math.Vec3) { stepsAt = append(stepsAt, pos) }
	m.Add(npc)

	if err := npc.LoadAnim(c, AnimWalk, "anim/walk.tea"); err != nil {
		t.Fatalf("LoadAnim failed: %v", err)
	}
	if !npc.IsLocomotion(npc.Anims[AnimWalk]) {
		t.Fatal("walk slot not recognized as locomotion")
	}

	npc.Play(c, 0, AnimWalk, 0)
	npc.Move = math.Vec3{Z: 25}

	// First tick lands on keyframe 0, the second crosses the footstep
	m.Update(100)
	m.Update(500)
	if npc.Footsteps != 1 || len(stepsAt) != 1 || stepsAt[0] != npc.Pos {
		t.Errorf("footsteps = %d at %v, want 1 at %+v", npc.Footsteps, stepsAt, npc.Pos)
	}

	// Past the end: walk loops without a loop flag and settles root motion
	m.Update(600)
	l := &npc.Layers[0]
	if l.Ended() || l.Elapsed != 200 {
		t.Errorf("Ended = %v, Elapsed = %d, want looping at 200", l.Ended(), l.Elapsed)
	}
	if npc.ClipsFinished != 1 {
		t.Errorf("ClipsFinished = %d, want 1", npc.ClipsFinished)
	}
	if !npc.Move.IsZero() || !npc.LastMove.IsZero() {
		t.Error("root motion not reset at clip end")
	}
	if npc.Clock != 1200 {
		t.Errorf("Clock = %d, want 1200", npc.Clock)
	}
}

func TestPlayerKeepsRootMotionAndSilentSteps(t *testing.T) {
	m, _ := newTestWorld(t)
	c := m.Cache()

	p := NewEntity(1, TypePlayer)
	m.SetPlayer(p)
	p.LoadAnim(c, AnimWalk, "anim/walk.tea")
	p.Play(c, 0, AnimWalk, 0)
	p.Move = math.Vec3{X: 5}

	m.Update(100)
	m.Update(500)
	m.Update(600)

	if p.Footsteps != 0 {
		t.Errorf("player footsteps = %d, want 0", p.Footsteps)
	}
	if p.Move.X != 5 {
		t.Error("player root motion reset")
	}
	if m.Player() != p {
		t.Error("Player() mismatch")
	}
}

func TestQueuedAction(t *testing.T) {
	m, _ := newTestWorld(t)
	c := m.Cache()

	e := NewEntity(2, TypeMonster)
	m.Add(e)
	e.LoadAnim(c, AnimHit, "anim/hit.tea")
	e.LoadAnim(c, AnimWait, "anim/idle.tea")

	e.Play(c, 0, AnimHit, 0)
	e.Queue(c, 0, AnimWait, animation.FlagLoop)

	m.Update(400)
	m.Update(700)

	l := &e.Layers[0]
	if l.Current != e.Anims[AnimWait] {
		t.Fatal("queued idle did not take over")
	}
	if l.Elapsed != 100 || !l.Flags.Has(animation.FlagLoop) {
		t.Errorf("Elapsed = %d, Flags = %b", l.Elapsed, l.Flags)
	}
	if e.LastAnimTime != 1 {
		t.Errorf("LastAnimTime = %d, want 1 after the first transition", e.LastAnimTime)
	}
}

func TestLatchBlend(t *testing.T) {
	m, _ := newTestWorld(t)
	c := m.Cache()

	e := NewEntity(4, TypeNPC)
	e.LoadAnim(c, AnimWait, "anim/idle.tea")
	e.Clock = 800

	e.LatchBlend()
	if e.LastAnimTime != 1 {
		t.Fatalf("first latch: LastAnimTime = %d, want 1", e.LastAnimTime)
	}

	// nothing playing: the mark stays
	e.LatchBlend()
	if e.LastAnimTime != 1 {
		t.Errorf("idle latch: LastAnimTime = %d, want 1", e.LastAnimTime)
	}

	e.Play(c, 0, AnimWait, animation.FlagLoop)
	e.LatchBlend()
	if e.LastAnimTime != 800 {
		t.Errorf("LastAnimTime = %d, want 800", e.LastAnimTime)
	}
}

func TestFrozenEntity(t *testing.T) {
	m, _ := newTestWorld(t)
	c := m.Cache()

	e := NewEntity(3, TypeNPC)
	m.Add(e)
	e.LoadAnim(c, AnimWait, "anim/idle.tea")
	e.Play(c, 0, AnimWait, 0)
	e.TimeFrozen = true

	m.Update(300)

	if e.Layers[0].Elapsed != 0 || e.Clock != 0 {
		t.Errorf("frozen entity advanced: Elapsed = %d, Clock = %d", e.Layers[0].Elapsed, e.Clock)
	}
}

func TestLoadAnimErrors(t *testing.T) {
	m, _ := newTestWorld(t)
	e := NewEntity(4, TypeNPC)

	if err := e.LoadAnim(m.Cache(), NumAnimSlots, "anim/idle.tea"); err == nil {
		t.Error("expected error for bad slot")
	}
	if err := e.LoadAnim(m.Cache(), AnimWait, "anim/missing.tea"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadAnimReplacesSlot(t *testing.T) {
	m, _ := newTestWorld(t)
	c := m.Cache()
	e := NewEntity(5, TypeNPC)

	e.LoadAnim(c, AnimWait, "anim/idle.tea")
	first := e.Anims[AnimWait]
	e.LoadAnim(c, AnimWait, "anim/hit.tea")

	if got := c.Get(first).Locks; got != 0 {
		t.Errorf("previous animation Locks = %d, want 0", got)
	}
	if n := c.PurgeUnused(); n != 1 {
		t.Errorf("PurgeUnused = %d, want 1", n)
	}
}

func TestReloadAnimations(t *testing.T) {
	m, files := newTestWorld(t)
	c := m.Cache()

	e := NewEntity(6, TypeNPC)
	m.Add(e)
	e.LoadAnim(c, AnimWait, "anim/idle.tea")
	e.Play(c, 0, AnimWait, animation.FlagLoop)
	m.Update(300)
	old := e.Anims[AnimWait]

	files["anim/idle.tea"] = buildClip(t, 1)
	if err := m.ReloadAnimations(); err != nil {
		t.Fatalf("ReloadAnimations failed: %v", err)
	}

	if c.Get(old) != nil {
		t.Error("old handle survived reload")
	}
	if e.Layers[0].Current.Valid() || e.Layers[0].Elapsed != 0 {
		t.Error("layer not emptied by reload")
	}
	a := c.Get(e.Anims[AnimWait])
	if a == nil {
		t.Fatal("slot not reacquired")
	}
	if a.Alternates[0].Keyframes[1].Flag != 1 {
		t.Error("reacquired animation is not the reloaded one")
	}
}

func TestManagerRemoveReleases(t *testing.T) {
	m, _ := newTestWorld(t)
	c := m.Cache()

	e := NewEntity(8, TypeNPC)
	m.Add(e)
	e.LoadAnim(c, AnimWait, "anim/idle.tea")
	h := e.Anims[AnimWait]

	m.Remove(8)
	if m.Get(8) != nil || m.Count() != 0 {
		t.Error("entity not removed")
	}
	if got := c.Get(h).Locks; got != 0 {
		t.Errorf("Locks = %d after Remove, want 0", got)
	}

	m.Add(NewEntity(9, TypeMonster))
	m.Add(NewEntity(10, TypeNPC))
	if m.CountByType(TypeMonster) != 1 {
		t.Errorf("CountByType = %d", m.CountByType(TypeMonster))
	}
	m.ClearAll()
	if m.Count() != 0 {
		t.Error("ClearAll left entities")
	}
}

package animation

import (
	"fmt"
	"math/rand/v2"
	"os"
	"testing"

	"github.com/Faultbox/midgard-anim/pkg/formats"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// memFiles is an in-memory FileReader that remembers what was forgotten.
type memFiles struct {
	files     map[string][]byte
	forgotten []string
	reads     int
}

func newMemFiles() *memFiles {
	return &memFiles{files: make(map[string][]byte)}
}

func (m *memFiles) ReadFile(path string) ([]byte, error) {
	m.reads++
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, os.ErrNotExist)
	}
	return data, nil
}

func (m *memFiles) Forget(path string) {
	m.forgotten = append(m.forgotten, path)
}

// fakeAudio records every call made by the cache and playback.
type fakeAudio struct {
	names    []string
	freed    []SampleID
	played   []SampleID
	at       []*math.Vec3
	created  []string
	disabled bool
}

func (a *fakeAudio) LoadSample(path string) SampleID {
	a.names = append(a.names, path)
	return SampleID(len(a.names) - 1)
}

func (a *fakeAudio) FreeSample(id SampleID) {
	a.freed = append(a.freed, id)
}

func (a *fakeAudio) PlaySample(id SampleID, pos *math.Vec3) {
	a.played = append(a.played, id)
	a.at = append(a.at, pos)
}

func (a *fakeAudio) SampleName(id SampleID) string {
	if id < 0 || int(id) >= len(a.names) {
		return ""
	}
	return a.names[id]
}

func (a *fakeAudio) CreateSample(name string) SampleID {
	a.created = append(a.created, name)
	return a.LoadSample(name)
}

func (a *fakeAudio) Enabled() bool {
	return !a.disabled
}

// fakeOwner is a playback Owner that records hook calls.
type fakeOwner struct {
	pos        math.Vec3
	frozen     bool
	player     bool
	locomotion map[Handle]bool
	finished   []Handle
	latched    int
	footsteps  []math.Vec3
}

func (o *fakeOwner) Position() math.Vec3 { return o.pos }
func (o *fakeOwner) Frozen() bool { return o.frozen }
func (o *fakeOwner) IsPlayer() bool { return o.player }
func (o *fakeOwner) IsLocomotion(h Handle) bool { return o.locomotion[h] }
func (o *fakeOwner) ClipFinished(h Handle) { o.finished = append(o.finished, h) }
func (o *fakeOwner) LatchBlend() { o.latched++ }
func (o *fakeOwner) Footstep(pos math.Vec3) { o.footsteps = append(o.footsteps, pos) }

// testKey describes one keyframe for buildTEA.
type testKey struct {
	frame  int32
	move   *[3]float32
	rotate *[4]float32 // X, Y, Z, W
	flag   int32
	sample string
}

// buildTEA encodes a version 2015 TEA with the given total frame count.
func buildTEA(t *testing.T, frames int32, groups int32, keys []testKey) []byte {
	t.Helper()

	tea := &formats.TEA{
		Header: formats.TEAHeader{
			Identity:      "test",
			Version:       formats.TEAExtendedVersion,
			Name:          "test",
			FrameCount:    frames,
			GroupCount:    groups,
			KeyframeCount: int32(len(keys)),
		},
	}

	for _, k := range keys {
		kf := formats.TEAKeyframe{
			Frame:  k.frame,
			Flag:   k.flag,
			Groups: make([]formats.TEAGroupAnim, groups),
		}
		for g := range kf.Groups {
			kf.Groups[g].Quaternion = [4]float32{0, 0, 0, 1}
		}
		if k.move != nil {
			kf.Move = 1
			kf.Translate = *k.move
		}
		if k.rotate != nil {
			kf.Orient = 1
			kf.Rotate = *k.rotate
		}
		if k.sample != "" {
			kf.Sample = &formats.TEASample{Name: k.sample}
		}
		tea.Keyframes = append(tea.Keyframes, kf)
	}

	data, err := formats.EncodeTEA(tea)
	if err != nil {
		t.Fatalf("EncodeTEA failed: %v", err)
	}
	return data
}

// simpleTEA is a one second clip with keyframes at 0, 500 and 1000 ms.
func simpleTEA(t *testing.T) []byte {
	t.Helper()
	return buildTEA(t, 24, 1, []testKey{
		{frame: 0, move: &[3]float32{0, 0, 0}},
		{frame: 12},
		{frame: 24, move: &[3]float32{10, 0, 0}},
	})
}

func seededRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

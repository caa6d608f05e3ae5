// Package animation loads keyframe animations into a reference-counted cache
// and advances per-entity playback state.
package animation

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/logger"
	"github.com/Faultbox/midgard-anim/pkg/formats"
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// SourceFrameRate is the frame rate TEA frame numbers are authored at.
const SourceFrameRate = 24

// FlagFootstep is the keyframe event flag that requests a footstep sound.
const FlagFootstep = 9

// SampleID identifies a sound sample owned by the audio system.
type SampleID int32

// NoSample marks a keyframe without a sound.
const NoSample SampleID = -1

// SampleLoader resolves embedded sample names while decoding.
type SampleLoader interface {
	LoadSample(path string) SampleID
}

// Audio is the sound system as seen by the animation cache and playback.
type Audio interface {
	SampleLoader
	FreeSample(id SampleID)
	// PlaySample plays id at pos, or without position when pos is nil.
	PlaySample(id SampleID, pos *math.Vec3)
	SampleName(id SampleID) string
	// CreateSample registers a sample by name, used when restoring sessions.
	CreateSample(name string) SampleID
	Enabled() bool
}

// Keyframe is one decoded keyframe.
type Keyframe struct {
	Frame     int32   // source frame number
	Time      float32 // ms from track start
	Translate math.Vec3
	Rotate    math.Quat
	Sample    SampleID
	Flag      int32 // event flag, FlagFootstep for steps
	Master    bool

	// Authored markers. All true once gaps are filled.
	HasTranslate bool
	HasRotate    bool
}

// GroupTransform is a bone group's local transform at one keyframe.
type GroupTransform struct {
	Key       int32
	Rotate    math.Quat
	Translate math.Vec3
	Scale     math.Vec3
}

// IsVoid reports whether the transform leaves the group untouched.
func (g *GroupTransform) IsVoid() bool {
	return g.Rotate.IsIdentity() && g.Translate.IsZero() && g.Scale.IsZero()
}

// Track is a decoded animation clip.
type Track struct {
	Path       string
	FrameCount int
	GroupCount int
	Keyframes  []Keyframe
	Groups     []GroupTransform // len(Keyframes) * GroupCount, keyframe-major
	VoidGroups []bool           // per group, identity for the whole clip
	Duration   float32          // ms, at least 1
	Checksum   uint64           // xxhash of the source bytes
}

// Group returns the transform of group g at keyframe k.
func (t *Track) Group(k, g int) *GroupTransform {
	return &t.Groups[k*t.GroupCount+g]
}

// LastTranslate returns the translation of the final keyframe, or zero
// for an empty track.
func (t *Track) LastTranslate() math.Vec3 {
	if t == nil || len(t.Keyframes) == 0 {
		return math.Vec3Zero
	}
	return t.Keyframes[len(t.Keyframes)-1].Translate
}

// Root interpolates the root translation and rotation between keyframe
// frame and the one after it. Frames past the end hold the last keyframe.
func (t *Track) Root(frame int, fraction float32) (math.Vec3, math.Quat) {
	n := len(t.Keyframes)
	if n == 0 {
		return math.Vec3Zero, math.QuatIdentity()
	}
	if frame < 0 {
		frame, fraction = 0, 0
	}
	if frame >= n-1 {
		last := &t.Keyframes[n-1]
		return last.Translate, last.Rotate
	}

	a, b := &t.Keyframes[frame], &t.Keyframes[frame+1]
	return a.Translate.Lerp(b.Translate, fraction), a.Rotate.Slerp(b.Rotate, fraction)
}

// frameTime converts a source frame count to milliseconds.
func frameTime(frames int32) float32 {
	return float32(int64(frames)*1000) / SourceFrameRate
}

// Decode parses raw TEA bytes into a gap-filled track. Embedded sample
// names are resolved through samples, which may be nil.
func Decode(data []byte, path string, samples SampleLoader) (*Track, error) {
	logger.Debug("loading animation file", zap.String("path", path))

	tea, err := formats.ParseTEA(data)
	if err != nil {
		logger.Error("invalid animation file", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	h := tea.Header
	logger.Debug("TEA header",
		zap.String("identity", h.Identity),
		zap.Uint32("version", h.Version),
		zap.Int32("frames", h.FrameCount),
		zap.Int32("groups", h.GroupCount),
		zap.Int32("keyframes", h.KeyframeCount))

	t := &Track{
		Path:       path,
		FrameCount: int(h.FrameCount),
		GroupCount: int(h.GroupCount),
		Keyframes:  make([]Keyframe, len(tea.Keyframes)),
		Groups:     make([]GroupTransform, len(tea.Keyframes)*int(h.GroupCount)),
		VoidGroups: make([]bool, h.GroupCount),
		Checksum:   xxhash.Sum64(data),
	}

	var authored float32
	for i := range tea.Keyframes {
		src := &tea.Keyframes[i]
		kf := &t.Keyframes[i]

		kf.Frame = src.Frame
		kf.Time = frameTime(src.Frame)
		kf.Flag = src.Flag
		kf.Master = src.Master != 0
		kf.HasTranslate = src.HasTranslate()
		kf.HasRotate = src.HasRotate()
		kf.Rotate = math.QuatIdentity()
		kf.Sample = NoSample
		authored += kf.Time

		if kf.HasTranslate {
			kf.Translate = math.Vec3{X: src.Translate[0], Y: src.Translate[1], Z: src.Translate[2]}
		}
		if kf.HasRotate {
			kf.Rotate = quatFromArray(src.Rotate)
		}

		for j, g := range src.Groups {
			*t.Group(i, j) = GroupTransform{
				Key:       g.Key,
				Rotate:    quatFromArray(g.Quaternion),
				Translate: math.Vec3{X: g.Translate[0], Y: g.Translate[1], Z: g.Translate[2]},
				Scale:     math.Vec3{X: g.Zoom[0], Y: g.Zoom[1], Z: g.Zoom[2]},
			}
		}

		if src.Sample != nil && samples != nil {
			kf.Sample = samples.LoadSample(src.Sample.Name)
		}
	}

	FillGaps(t)
	markVoidGroups(t)

	// The declared frame count wins over the sum of keyframe times
	t.Duration = frameTime(h.FrameCount)
	if t.Duration < 1 {
		t.Duration = 1
	}

	logger.Debug("animation decoded",
		zap.String("path", path),
		zap.Float32("seconds", t.Duration/1000),
		zap.Float32("authoredMs", authored))

	return t, nil
}

// markVoidGroups flags groups whose transform is identity on every keyframe.
func markVoidGroups(t *Track) {
	for g := 0; g < t.GroupCount; g++ {
		void := true
		for k := range t.Keyframes {
			if !t.Group(k, g).IsVoid() {
				void = false
				break
			}
		}
		t.VoidGroups[g] = void
	}
}

func quatFromArray(q [4]float32) math.Quat {
	return math.Quat{X: q[0], Y: q[1], Z: q[2], W: q[3]}
}

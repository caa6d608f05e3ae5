package animation

import (
	"github.com/Faultbox/midgard-anim/pkg/math"
)

// Flags control how a playback layer advances.
type Flags uint32

const (
	FlagPaused    Flags = 1 << iota // clock stopped
	FlagLoop                        // wrap at the end of the clip
	FlagReverse                     // play from the end
	FlagExControl                   // Elapsed is driven by the caller
	FlagForcePlay                   // play even when the owner would not
	FlagStopEnd                     // hold the last frame
	FlagAnimEnd                     // clip ended during the last tick
)

// Has reports whether every bit of x is set.
func (f Flags) Has(x Flags) bool {
	return f&x == x
}

// PlaybackState is one animation layer of an entity. The handles are
// borrowed: the entity holds the locks.
type PlaybackState struct {
	Current   Handle
	Next      Handle // takes over when Current ends
	Elapsed   int64  // ms into Current
	AltIdx    int
	LastFrame int // -1 before the first evaluated frame
	Flags     Flags
	NextFlags Flags // applied when Next takes over

	// Result of the last Advance: Frame and Frame+1 bound the current time,
	// Fraction is the position between them.
	Frame    int
	Fraction float32
}

// NewPlaybackState returns an empty layer.
func NewPlaybackState() PlaybackState {
	return PlaybackState{LastFrame: -1}
}

// Clear empties the layer.
func (s *PlaybackState) Clear() {
	*s = NewPlaybackState()
}

// Reset rewinds the current clip and clears the per-clip flags.
func (s *PlaybackState) Reset() {
	if s == nil {
		return
	}
	s.Elapsed = 0
	s.LastFrame = -1
	s.Flags &^= FlagPaused | FlagAnimEnd | FlagLoop | FlagForcePlay
}

// Ended reports whether the clip reached its end on the last tick.
func (s *PlaybackState) Ended() bool {
	return s.Flags.Has(FlagAnimEnd)
}

// Owner is the entity a layer belongs to. All hooks are optional in the
// sense that Advance accepts a nil Owner.
type Owner interface {
	Position() math.Vec3
	// Frozen reports whether the entity's clock is stopped.
	Frozen() bool
	IsPlayer() bool
	// IsLocomotion reports whether h is one of the entity's walk or run
	// clips, which always loop.
	IsLocomotion(h Handle) bool
	// ClipFinished is called whenever h plays to its end, looping or not.
	ClipFinished(h Handle)
	// LatchBlend records the current pose for smoothing into the next clip.
	LatchBlend()
	Footstep(pos math.Vec3)
}

// Play starts h on s from the beginning, choosing a different alternate
// than the one that played last when possible.
func (c *Cache) Play(s *PlaybackState, h Handle) {
	if s == nil {
		return
	}
	a := c.Get(h)
	if a == nil {
		return
	}
	s.Current = h
	s.AltIdx = c.PickAlternate(h, s.AltIdx)
	if s.AltIdx >= len(a.Alternates) {
		s.AltIdx = 0
	}
	s.Reset()
}

// Queue makes next take over with flags once the current clip ends.
func (c *Cache) Queue(s *PlaybackState, next Handle, flags Flags) {
	if s == nil {
		return
	}
	s.Next = next
	s.NextFlags = flags
}

// Advance moves s forward by deltaMs, handles looping and queued clips, and
// resolves the keyframe pair for the new time. Sounds and footsteps of every
// keyframe crossed are fired in order. owner may be nil.
func (c *Cache) Advance(s *PlaybackState, deltaMs int64, owner Owner) {
	if s == nil {
		return
	}
	a := c.Get(s.Current)
	if a == nil {
		return
	}

	if s.Flags.Has(FlagPaused) || (owner != nil && owner.Frozen()) {
		deltaMs = 0
	}

	if s.AltIdx < 0 || s.AltIdx >= len(a.Alternates) {
		s.AltIdx = 0
	}

	if !s.Flags.Has(FlagExControl) {
		s.Elapsed += deltaMs
	}

	s.Flags &^= FlagAnimEnd

	duration := a.Alternates[s.AltIdx].Duration
	if s.Flags.Has(FlagStopEnd) && float32(s.Elapsed) > duration {
		s.Elapsed = int64(duration)
	}

	looping := s.Flags.Has(FlagLoop) || (owner != nil && owner.IsLocomotion(s.Current))

	if float32(s.Elapsed) > duration {
		lost := s.Elapsed - int64(duration)
		hasNext := c.Get(s.Next) != nil

		switch {
		case hasNext:
			c.takeNext(s, lost, owner)
		case looping:
			s.Elapsed %= int64(duration)
			if owner != nil {
				owner.ClipFinished(s.Current)
			}
		default:
			s.Flags |= FlagAnimEnd
			s.Elapsed = int64(duration)
		}
	}

	c.resolveFrame(s, deltaMs, owner)
}

// takeNext switches s to its queued clip, carrying over the lost time.
func (c *Cache) takeNext(s *PlaybackState, lost int64, owner Owner) {
	if owner != nil {
		owner.ClipFinished(s.Current)
		owner.LatchBlend()
	}

	s.Current = s.Next
	s.AltIdx = c.PickAlternate(s.Next, s.AltIdx)
	s.Next = Handle{}
	s.Reset()
	s.Elapsed = lost
	s.Flags = s.NextFlags &^ FlagAnimEnd
}

// RootPose returns the root transform s currently shows. ok is false when
// s plays nothing.
func (c *Cache) RootPose(s *PlaybackState) (pos math.Vec3, rot math.Quat, ok bool) {
	if s == nil {
		return pos, rot, false
	}
	t := c.Track(s.Current, s.AltIdx)
	if t == nil {
		return pos, rot, false
	}
	pos, rot = t.Root(s.Frame, s.Fraction)
	return pos, rot, true
}

// resolveFrame finds the keyframe pair around the playback time and fires
// the side effects of newly reached keyframes.
func (c *Cache) resolveFrame(s *PlaybackState, deltaMs int64, owner Owner) {
	t := c.Track(s.Current, s.AltIdx)
	if t == nil {
		return
	}

	var tim int64
	if s.Flags.Has(FlagReverse) {
		tim = int64(t.Duration - float32(s.Elapsed))
	} else {
		tim = s.Elapsed
	}

	n := len(t.Keyframes)
	s.Frame = n - 2
	s.Fraction = 1

	for i := 1; i < n; i++ {
		tcf := int64(t.Keyframes[i-1].Time)
		tnf := int64(t.Keyframes[i].Time)

		// Zero-length span, nothing sensible to resolve
		if tcf == tnf {
			return
		}

		if (tim >= tcf && tim < tnf) || (i == n-1 && tim == tnf) {
			fr := i - 1

			if !s.Flags.Has(FlagAnimEnd) && deltaMs != 0 && s.LastFrame != fr {
				c.fireFrames(s, t, fr, owner)
			}

			s.LastFrame = fr
			s.Frame = fr
			s.Fraction = float32(tim-tcf) / float32(tnf-tcf)
			return
		}
	}
}

// fireFrames plays the sounds and footsteps from the frame after LastFrame
// up to fr. Going backwards, or on the first evaluation, only fr fires.
func (c *Cache) fireFrames(s *PlaybackState, t *Track, fr int, owner Owner) {
	from := fr
	if s.LastFrame != -1 && s.LastFrame < fr {
		from = s.LastFrame + 1
	}

	var pos *math.Vec3
	if owner != nil {
		p := owner.Position()
		pos = &p
	}

	for n := from; n <= fr; n++ {
		kf := &t.Keyframes[n]

		if kf.Sample != NoSample && c.audio != nil {
			c.audio.PlaySample(kf.Sample, pos)
		}

		if kf.Flag == FlagFootstep && owner != nil && !owner.IsPlayer() {
			owner.Footstep(*pos)
		}
	}
}

package animation

import (
	"testing"

	"github.com/Faultbox/midgard-anim/pkg/math"
)

func gapTrack(times []float32) *Track {
	t := &Track{Keyframes: make([]Keyframe, len(times))}
	for i, tm := range times {
		t.Keyframes[i] = Keyframe{Time: tm, Rotate: math.QuatIdentity(), Sample: NoSample}
	}
	return t
}

func TestFillGapsTranslation(t *testing.T) {
	track := gapTrack([]float32{0, 10, 20})
	track.Keyframes[0].Translate = math.Vec3{}
	track.Keyframes[0].HasTranslate = true
	track.Keyframes[2].Translate = math.Vec3{X: 10}
	track.Keyframes[2].HasTranslate = true

	FillGaps(track)

	if got := track.Keyframes[1].Translate; got != (math.Vec3{X: 5}) {
		t.Errorf("Translate at t=10 = %+v, want (5,0,0)", got)
	}
}

func TestFillGapsUnevenSpans(t *testing.T) {
	track := gapTrack([]float32{0, 10, 40})
	track.Keyframes[0].HasTranslate = true
	track.Keyframes[2].Translate = math.Vec3{X: 8}
	track.Keyframes[2].HasTranslate = true

	FillGaps(track)

	// a quarter of the way from 0 to 40
	if got := track.Keyframes[1].Translate.X; got != 2 {
		t.Errorf("Translate.X = %v, want 2", got)
	}
}

func TestFillGapsRotationNotNormalized(t *testing.T) {
	track := gapTrack([]float32{0, 10, 20})
	track.Keyframes[0].Rotate = math.Quat{W: 1}
	track.Keyframes[0].HasRotate = true
	track.Keyframes[2].Rotate = math.Quat{X: 1}
	track.Keyframes[2].HasRotate = true

	FillGaps(track)

	want := math.Quat{X: 0.5, W: 0.5}
	if got := track.Keyframes[1].Rotate; got != want {
		t.Errorf("Rotate = %+v, want %+v", got, want)
	}
}

func TestFillGapsBoundaries(t *testing.T) {
	track := gapTrack([]float32{0, 10, 20, 30})
	track.Keyframes[1].Translate = math.Vec3{X: 1}
	track.Keyframes[1].HasTranslate = true
	track.Keyframes[2].Translate = math.Vec3{X: 2}
	track.Keyframes[2].HasTranslate = true

	FillGaps(track)

	if got := track.Keyframes[0].Translate; !got.IsZero() {
		t.Errorf("first keyframe Translate = %+v, want zero", got)
	}
	if got := track.Keyframes[3].Translate; !got.IsZero() {
		t.Errorf("last keyframe Translate = %+v, want zero", got)
	}
	if got := track.Keyframes[0].Rotate; !got.IsIdentity() {
		t.Errorf("first keyframe Rotate = %+v, want identity", got)
	}

	for i, kf := range track.Keyframes {
		if !kf.HasTranslate || !kf.HasRotate {
			t.Errorf("keyframe %d not marked resolved", i)
		}
	}
}

func TestFillGapsSkipsUnauthoredNeighbors(t *testing.T) {
	track := gapTrack([]float32{0, 10, 20, 30, 40})
	track.Keyframes[0].HasTranslate = true
	track.Keyframes[4].Translate = math.Vec3{Y: 40}
	track.Keyframes[4].HasTranslate = true

	FillGaps(track)

	for i, want := range []float32{0, 10, 20, 30, 40} {
		if got := track.Keyframes[i].Translate.Y; got != want {
			t.Errorf("keyframe %d Translate.Y = %v, want %v", i, got, want)
		}
	}
}

package animation

// FillGaps gives every keyframe a translation and rotation by blending the
// nearest authored neighbors on each side, weighted by time distance.
// Keyframes with no authored neighbor on one side keep their default.
// Rotations are blended per component and left unnormalized.
// Afterwards every keyframe is marked as authored.
func FillGaps(t *Track) {
	kfs := t.Keyframes

	hasTranslate := func(k *Keyframe) bool { return k.HasTranslate }
	hasRotate := func(k *Keyframe) bool { return k.HasRotate }

	for i := range kfs {
		if !kfs[i].HasTranslate {
			if prev, next, ok := authoredNeighbors(kfs, i, hasTranslate); ok {
				r1, r2 := spanWeights(kfs, prev, i, next)
				kfs[i].Translate = kfs[next].Translate.Scale(r1).Add(kfs[prev].Translate.Scale(r2))
			}
		}

		if !kfs[i].HasRotate {
			if prev, next, ok := authoredNeighbors(kfs, i, hasRotate); ok {
				r1, r2 := spanWeights(kfs, prev, i, next)
				kfs[i].Rotate = kfs[next].Rotate.Blend(r1, kfs[prev].Rotate, r2)
			}
		}
	}

	for i := range kfs {
		kfs[i].HasTranslate = true
		kfs[i].HasRotate = true
	}
}

// authoredNeighbors finds the closest keyframes before and after i for which
// authored reports true.
func authoredNeighbors(kfs []Keyframe, i int, authored func(*Keyframe) bool) (prev, next int, ok bool) {
	prev = i - 1
	for prev >= 0 && !authored(&kfs[prev]) {
		prev--
	}
	next = i + 1
	for next < len(kfs) && !authored(&kfs[next]) {
		next++
	}
	return prev, next, prev >= 0 && next < len(kfs)
}

// spanWeights returns the normalized time spans prev->i and i->next.
// The span to prev weights the next value and vice versa.
func spanWeights(kfs []Keyframe, prev, i, next int) (r1, r2 float32) {
	r1 = kfs[i].Time - kfs[prev].Time
	r2 = kfs[next].Time - kfs[i].Time
	total := r1 + r2
	if total <= 0 {
		// Coincident keyframes: hold the earlier value
		return 0, 1
	}
	return r1 / total, r2 / total
}

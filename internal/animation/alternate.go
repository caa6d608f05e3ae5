package animation

import (
	"math/rand/v2"
	"path"
	"strconv"
	"strings"
)

// altWeights gives the first alternate the highest odds; ranks past the
// end of the table share the last weight.
var altWeights = [...]int{100, 20, 15, 12, 8, 6, 5, 4, 3, 2, 2, 1, 1, 1, 1}

func altWeight(rank int) int {
	if rank >= len(altWeights) {
		rank = len(altWeights) - 1
	}
	return altWeights[rank]
}

// pickAlternate draws a weighted random index in [0, n) that differs from
// exclude when n > 1. Each candidate gets its own draw, and passes repeat
// until one is accepted.
func pickAlternate(rng *rand.Rand, n, exclude int) int {
	if n <= 1 {
		return 0
	}

	total := 0
	for i := 0; i < n; i++ {
		total += altWeight(i)
	}

	for {
		for i := 0; i < n; i++ {
			r := rng.Float32() * float32(total)
			if r < float32(altWeight(i)) && i != exclude {
				return i
			}
		}
	}
}

// AlternatePath returns the path of the n-th variant of p by appending n to
// the base name, keeping the extension: "anims/walk.tea" -> "anims/walk2.tea".
func AlternatePath(p string, n int) string {
	ext := path.Ext(p)
	return strings.TrimSuffix(p, ext) + strconv.Itoa(n) + ext
}

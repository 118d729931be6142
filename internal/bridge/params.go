package bridge

import (
	"math/rand"

	"ltxd/pkg/types"
)

// materializeParameters pins down everything the wire command needs that the
// caller may have left open: width/height snapped down to multiples of 64 and
// a concrete seed. The returned seed is what gets echoed back in the result.
func materializeParameters(p types.GenerationParameters) (types.GenerationParameters, int64) {
	p.Width = snap64(p.Width)
	p.Height = snap64(p.Height)
	var seed int64
	if p.Seed != nil {
		seed = *p.Seed
	} else {
		seed = int64(rand.Int31())
	}
	p.Seed = &seed
	return p, seed
}

// snap64 floors v to a multiple of 64; the model's latent grid requires it.
func snap64(v int) int {
	if v < 0 {
		return 0
	}
	return v / 64 * 64
}

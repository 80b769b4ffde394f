// Package schedule implements round-robin speaker selection over a shuffled
// speaking order. The functions are pure so the engine can hold the only
// mutable cursor state and tests stay deterministic.
package schedule

import (
	"math/rand"
	"time"
)

// Next returns the speaker at the cursor and the advanced cursor position
// (modulo the order length). ok is false when the order is empty, in which
// case nothing is scheduled.
//
// The order may have grown since the cursor was last advanced; an appended
// participant sits at the tail and is reached once the cursor wraps around
// to its position. Removal of participants is not supported.
func Next(order []string, cursor int) (speaker string, next int, ok bool) {
	n := len(order)
	if n == 0 {
		return "", 0, false
	}
	cursor %= n
	return order[cursor], (cursor + 1) % n, true
}

// Shuffle returns an unbiased Fisher-Yates permutation of ids without
// mutating the input. A nil rng falls back to a time-seeded source; tests
// pass a fixed-seed rand.Rand for reproducible orders.
func Shuffle(rng *rand.Rand, ids []string) []string {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	out := make([]string, len(ids))
	copy(out, ids)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Package jitter adds bounded randomness to retry backoff so that many
// channels reconnecting to a recovering server do not retry in lockstep.
// Grounded on original_source/util/random.h's random_range, which
// channel_impl.cc's retry path was built to use upstream of spec.md's
// distillation (see SPEC_FULL.md §13).
package jitter

import "math/rand"

// Backoff returns base plus up to 20% of base as extra random delay, both
// expressed in whatever unit base is in (this module always uses
// milliseconds).
func Backoff(base int) int {
	if base <= 0 {
		return 0
	}
	extra := base / 5
	if extra <= 0 {
		return base
	}
	return base + rand.Intn(extra+1)
}

// Package gid exposes goroutine identity for the thread-affinity checks the
// RPC channel and worker need. Go has no public, supported way to read the
// current goroutine's id; github.com/petermattis/goid provides the same
// technique (parsing the runtime's per-g state) every project that needs
// this ends up reimplementing, so we depend on it instead of rolling our
// own.
package gid

import "github.com/petermattis/goid"

// Current returns the id of the calling goroutine.
func Current() int64 {
	return goid.Get()
}

// Guard records the goroutine that created it and lets later code assert
// every subsequent call still runs on that same goroutine. It is the Go
// analogue of the source's pthread_self() comparison in channel_impl.cc.
type Guard struct {
	owner int64
}

// NewGuard captures the calling goroutine as the owner.
func NewGuard() Guard {
	return Guard{owner: goid.Get()}
}

// Owned reports whether the calling goroutine is the owner.
func (g Guard) Owned() bool {
	return goid.Get() == g.owner
}

// OwnerID returns the captured owner goroutine id, for diagnostics.
func (g Guard) OwnerID() int64 {
	return g.owner
}

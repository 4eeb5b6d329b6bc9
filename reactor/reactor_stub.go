//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for platforms without an epoll-equivalent wired up.
// The teacher's separate Windows IOCP reactor never got past a partial,
// unintegrated sketch (overlapped I/O needs matching support throughout
// the transport layer, which is out of scope here); rather than keep a
// half-finished second implementation around, unsupported platforms all
// land on this stub until someone wires up IOCP or kqueue for real.

package reactor

import "errors"

// NewReactor returns an error for platforms other than Linux.
func NewReactor() (Reactor, error) {
	return nil, errors.New("reactor: this platform is not supported")
}

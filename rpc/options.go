// File: rpc/options.go
// Author: momentics <momentics@gmail.com>
//
// Plain option structs with Default*() constructors, mirroring
// original_source/rpc/channel.h's ChannelOptions constructor and the
// teacher's server/server.go DefaultConfig() shape. No flag/config library
// is wired (SPEC_FULL.md §11) — argument parsing is out of scope.

package rpc

import (
	"time"

	"github.com/momentics/qrpc/codec"
)

// ChannelOptions configures a Channel's socket and timing behavior
// (spec.md §6).
type ChannelOptions struct {
	KernelRecvBuf int
	KernelSendBuf int

	UserRecvLowWatermark  int
	UserRecvHighWatermark int
	UserSendLowWatermark  int
	UserSendHighWatermark int

	ConnectTimeout    time.Duration
	RetryInterval     time.Duration
	HeartbeatInterval time.Duration // 0 disables heartbeats.
}

// DefaultChannelOptions returns the defaults spec.md §6 lists.
func DefaultChannelOptions() ChannelOptions {
	return ChannelOptions{
		KernelRecvBuf:         16 * 1024,
		KernelSendBuf:         16 * 1024,
		UserRecvLowWatermark:  32 * 1024,
		UserRecvHighWatermark: 1024 * 1024,
		UserSendLowWatermark:  32 * 1024,
		UserSendHighWatermark: 1024 * 1024,
		ConnectTimeout:        5000 * time.Millisecond,
		RetryInterval:         1000 * time.Millisecond,
		HeartbeatInterval:     600000 * time.Millisecond,
	}
}

// ServerOptions configures a Server's listeners and worker pool
// (spec.md §6).
type ServerOptions struct {
	KeepAlive      time.Duration
	WorkerCount    int
	ListenBacklog  int
	InitHook       func(*Worker)
	ExitHook       func(*Worker)
}

// DefaultServerOptions returns the defaults spec.md §6 lists.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		KeepAlive:     3600 * time.Second,
		WorkerCount:   8,
		ListenBacklog: 1024,
	}
}

// ControllerOptions configures a single call's timeout and compression
// (spec.md §6).
type ControllerOptions struct {
	RPCTimeout  time.Duration
	Compression codec.Kind
}

// DefaultControllerOptions returns the defaults spec.md §6 lists.
func DefaultControllerOptions() ControllerOptions {
	return ControllerOptions{
		RPCTimeout:  1000 * time.Millisecond,
		Compression: codec.None,
	}
}

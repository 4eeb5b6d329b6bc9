// Package rpc implements the client/server connection state machines, the
// per-channel request multiplexer, the worker pool, and the service
// registry described by spec.md §4.3–§4.7: everything layered on top of
// the transport and codec packages to deliver request/response RPC over
// TCP.
package rpc

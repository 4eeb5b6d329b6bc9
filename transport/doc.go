// Package transport implements the nonblocking frame-oriented connection
// base shared by client and server connections: a fixed-size header
// codec wired to the wire package, a compression pass wired to the codec
// package, and the read/write state machines from spec.md §4.2.
//
// Grounded on the teacher's transport/netconn.go (a thin pool-backed
// net.Conn wrapper) and internal/transport/transport_linux.go (raw
// nonblocking socket creation via golang.org/x/sys/unix), generalized
// from a single-shot send/recv transport into the Read/Parse/Wait and
// Write/Wait state machines the RPC framer needs.
package transport

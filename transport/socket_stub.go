//go:build !linux
// +build !linux

// File: transport/socket_stub.go
// Author: momentics <momentics@gmail.com>
//
// Non-Linux platforms: consistent with reactor.NewReactor's own stub,
// raw nonblocking socket support is not wired up here. Overlapped I/O
// on Windows or a BSD kqueue backend would each need their own framer
// integration; out of scope for this module (see DESIGN.md).

package transport

import "errors"

var errUnsupportedPlatform = errors.New("transport: this platform is not supported")

type SocketOptions struct {
	RecvBufBytes int
	SendBufBytes int
}

func DialNonblocking(host string, port int, opts SocketOptions) (fd int, inProgress bool, err error) {
	return -1, false, errUnsupportedPlatform
}

func ConnectError(fd int) error {
	return errUnsupportedPlatform
}

func ListenNonblocking(host string, port int, backlog int) (fd int, err error) {
	return -1, errUnsupportedPlatform
}

func AcceptNonblocking(listenFD int, opts SocketOptions) (fd int, err error) {
	return -1, errUnsupportedPlatform
}

func CloseFD(fd int) error { return nil }

func sysRead(fd int, buf []byte) (int, error)  { return 0, errUnsupportedPlatform }
func sysWrite(fd int, buf []byte) (int, error) { return 0, errUnsupportedPlatform }
func sysClose(fd int) error                    { return nil }

func isWouldBlock(err error) bool { return false }

func LocalRemoteAddrs(fd int) (local, remote string) { return "", "" }

func ListenerPort(fd int) (int, error) { return 0, errUnsupportedPlatform }

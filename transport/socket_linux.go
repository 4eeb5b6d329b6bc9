//go:build linux
// +build linux

// File: transport/socket_linux.go
// Author: momentics <momentics@gmail.com>
//
// Nonblocking TCP socket creation. Grounded on
// internal/transport/transport_linux.go's unix.Socket + SOCK_NONBLOCK +
// TCP_NODELAY pattern from the teacher repo.

package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// resolveTimeout bounds the DNS lookup DialNonblocking/ListenNonblocking
// perform for a hostname endpoint, matching spec.md §5's bounded-resolver
// requirement.
const resolveTimeout = 5 * time.Second

func resolveIP(host string) (net.IP, error) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return nil, fmt.Errorf("transport: resolve %s: %w", host, err)
	}
	return addrs[0].IP, nil
}

// SocketOptions carries the kernel-level buffer sizing spec.md §6's
// channel options expose.
type SocketOptions struct {
	RecvBufBytes int
	SendBufBytes int
}

// DialNonblocking resolves host:port, creates a nonblocking TCP socket,
// applies opts, and starts an asynchronous connect. It returns the raw
// fd immediately; the caller (rpc.ClientConn) learns the outcome via
// write-readiness on the reactor, per spec.md §4.3.
func DialNonblocking(host string, port int, opts SocketOptions) (fd int, inProgress bool, err error) {
	ip, err := resolveIP(host)
	if err != nil {
		return -1, false, err
	}
	domain := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := ip.To4(); ip4 != nil {
		var a unix.SockaddrInet4
		copy(a.Addr[:], ip4)
		a.Port = port
		sa = &a
	} else {
		domain = unix.AF_INET6
		var a unix.SockaddrInet6
		copy(a.Addr[:], ip.To16())
		a.Port = port
		sa = &a
	}

	fd, err = unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, false, fmt.Errorf("transport: socket: %w", err)
	}
	if err := applySocketOptions(fd, opts); err != nil {
		unix.Close(fd)
		return -1, false, err
	}

	err = unix.Connect(fd, sa)
	if err == nil {
		return fd, false, nil
	}
	if err == unix.EINPROGRESS {
		return fd, true, nil
	}
	unix.Close(fd)
	return -1, false, fmt.Errorf("transport: connect: %w", err)
}

// ConnectError returns the pending error on a socket whose nonblocking
// connect just became writable (spec.md §4.3, "query socket error").
func ConnectError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

func applySocketOptions(fd int, opts SocketOptions) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return fmt.Errorf("transport: TCP_NODELAY: %w", err)
	}
	if opts.RecvBufBytes > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, opts.RecvBufBytes)
	}
	if opts.SendBufBytes > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, opts.SendBufBytes)
	}
	return nil
}

// ListenNonblocking creates a nonblocking, SO_REUSEADDR listening socket
// bound to host:port with the given backlog (spec.md §4.6).
func ListenNonblocking(host string, port int, backlog int) (fd int, err error) {
	var ip net.IP
	if host != "" {
		resolved, err := resolveIP(host)
		if err != nil {
			return -1, err
		}
		ip = resolved
	}

	domain := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := ip.To4(); ip == nil || ip4 != nil {
		var a unix.SockaddrInet4
		if ip4 != nil {
			copy(a.Addr[:], ip4)
		}
		a.Port = port
		sa = &a
	} else {
		domain = unix.AF_INET6
		var a unix.SockaddrInet6
		copy(a.Addr[:], ip.To16())
		a.Port = port
		sa = &a
	}

	fd, err = unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("transport: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("transport: SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("transport: bind: %w", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("transport: listen: %w", err)
	}
	return fd, nil
}

// AcceptNonblocking accepts one pending connection from a listening fd,
// returning a nonblocking client fd with TCP_NODELAY already applied.
func AcceptNonblocking(listenFD int, opts SocketOptions) (fd int, err error) {
	fd, _, err = unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, err
	}
	if err := applySocketOptions(fd, opts); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// CloseFD closes a raw descriptor obtained from DialNonblocking,
// ListenNonblocking, or AcceptNonblocking before it has been handed to a
// Framer (which owns the close afterward).
func CloseFD(fd int) error { return unix.Close(fd) }

func sysRead(fd int, buf []byte) (int, error)  { return unix.Read(fd, buf) }
func sysWrite(fd int, buf []byte) (int, error) { return unix.Write(fd, buf) }
func sysClose(fd int) error                    { return unix.Close(fd) }

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// LocalRemoteAddrs returns fd's local and remote socket addresses in
// host:port form, best-effort (an unresolvable address comes back empty
// rather than as an error, since callers only use this for logging and
// Controller.LocalAddr/RemoteAddr).
func LocalRemoteAddrs(fd int) (local, remote string) {
	if sa, err := unix.Getsockname(fd); err == nil {
		local = sockaddrString(sa)
	}
	if sa, err := unix.Getpeername(fd); err == nil {
		remote = sockaddrString(sa)
	}
	return local, remote
}

// ListenerPort returns the port a listening fd is actually bound to,
// useful when ListenNonblocking was called with port 0 (let the kernel
// pick an ephemeral one).
func ListenerPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return a.Port, nil
	case *unix.SockaddrInet6:
		return a.Port, nil
	default:
		return 0, fmt.Errorf("transport: unexpected sockaddr type %T", sa)
	}
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%s:%d", net.IP(a.Addr[:]).String(), a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("%s:%d", net.IP(a.Addr[:]).String(), a.Port)
	default:
		return ""
	}
}

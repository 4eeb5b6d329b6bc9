// File: rpc/clientconn.go
// Author: momentics <momentics@gmail.com>
//
// ClientConn is the client-side framer specialization of spec.md §4.3: a
// tagged-union connection state plus the single timer that state permits,
// implemented as described in SPEC_FULL.md §4.3 instead of the source's
// boolean flag soup.

package rpc

import (
	"time"

	"github.com/momentics/qrpc/codec"
	"github.com/momentics/qrpc/internal/jitter"
	"github.com/momentics/qrpc/reactor"
	"github.com/momentics/qrpc/transport"
	"github.com/momentics/qrpc/wire"
	"go.uber.org/zap"
)

type connState int

const (
	csIdle connState = iota
	csConnecting
	csConnected
)

// ClientConn owns exactly one of a pending connect attempt or a live
// Framer at any time, plus at most one armed timer (spec.md §4.3).
type ClientConn struct {
	channel *Channel
	react   reactor.Reactor
	codec   *codec.Compressor

	state  connState
	fd     int
	framer *transport.Framer

	timerID    reactor.TimerID
	timerArmed bool

	localAddr, remoteAddr string
}

func newClientConn(ch *Channel) *ClientConn {
	return &ClientConn{
		channel: ch,
		react:   ch.worker.react,
		codec:   ch.codec,
		state:   csIdle,
	}
}

// start kicks off the first connect attempt. A fresh ClientConn is
// created and started every time a fault forces a reconnect
// (spec.md §4.4, "Fault handling").
func (c *ClientConn) start() {
	c.attemptConnect()
}

func (c *ClientConn) attemptConnect() {
	opts := c.channel.opts
	fd, inProgress, err := transport.DialNonblocking(c.channel.host, c.channel.port, transport.SocketOptions{
		RecvBufBytes: opts.KernelRecvBuf,
		SendBufBytes: opts.KernelSendBuf,
	})
	if err != nil {
		Logger.Warn("rpc: connect failed", zap.Error(err), zap.String("host", c.channel.host), zap.Int("port", c.channel.port))
		c.armIdleTimer()
		return
	}
	c.fd = fd
	if !inProgress {
		c.onConnected()
		return
	}
	c.state = csConnecting
	c.armWatchTimer()
	c.react.Register(fd, reactor.Write, func(fd int, readable, writable, errored bool) {
		if c.state != csConnecting {
			return
		}
		if errored || writable {
			c.checkConnectOutcome()
		}
	})
}

func (c *ClientConn) checkConnectOutcome() {
	err := transport.ConnectError(c.fd)
	c.react.Unregister(c.fd)
	if err != nil {
		Logger.Warn("rpc: connect failed", zap.Error(err))
		transport.CloseFD(c.fd)
		c.armIdleTimer()
		return
	}
	c.onConnected()
}

func (c *ClientConn) onConnected() {
	c.cancelTimer()
	c.state = csConnected
	c.localAddr, c.remoteAddr = transport.LocalRemoteAddrs(c.fd)
	c.framer = transport.NewFramer(c.fd, c.react, c.codec, c)
	if err := c.framer.Start(); err != nil {
		Logger.Error("rpc: framer start failed", zap.Error(err))
		c.armIdleTimer()
		return
	}
	c.channel.onConnected(c)
	if c.channel.opts.HeartbeatInterval > 0 {
		c.armHeartbeatTimer()
	}
	// A reconnect may leave messages already sitting in the send queue;
	// give the framer an immediate chance to start draining them.
	c.framer.RequestWrite()
}

func (c *ClientConn) cancelTimer() {
	if c.timerArmed {
		c.react.CancelTimer(c.timerID)
		c.timerArmed = false
	}
}

func (c *ClientConn) arm(d time.Duration, cb func()) {
	c.cancelTimer()
	c.timerID = c.react.ArmTimer(d, cb)
	c.timerArmed = true
}

func (c *ClientConn) armIdleTimer() {
	c.state = csIdle
	ms := jitter.Backoff(int(c.channel.opts.RetryInterval.Milliseconds()))
	c.arm(time.Duration(ms)*time.Millisecond, c.attemptConnect)
}

func (c *ClientConn) armWatchTimer() {
	c.arm(c.channel.opts.ConnectTimeout, func() {
		c.react.Unregister(c.fd)
		transport.CloseFD(c.fd)
		c.armIdleTimer()
	})
}

func (c *ClientConn) armHeartbeatTimer() {
	c.arm(c.channel.opts.HeartbeatInterval, func() {
		c.channel.sendHeartbeat()
		c.armHeartbeatTimer()
	})
}

// RequestWrite forwards to the live Framer, if any; a no-op while
// Idle/Connecting (the send queue simply waits for Connected).
func (c *ClientConn) RequestWrite() {
	if c.framer != nil {
		c.framer.RequestWrite()
	}
}

// Close tears the connection down without invoking Fault — used when the
// channel itself initiates the close (Channel.Close).
func (c *ClientConn) Close() {
	c.cancelTimer()
	switch c.state {
	case csConnecting:
		c.react.Unregister(c.fd)
		transport.CloseFD(c.fd)
	case csConnected:
		c.framer.Close()
	}
	c.state = csIdle
}

// RecvDone implements transport.FrameSink.
func (c *ClientConn) RecvDone(meta wire.Meta, data []byte) {
	c.channel.onRecvDone(meta, data)
}

// SendNext implements transport.FrameSink.
func (c *ClientConn) SendNext() (wire.Meta, []byte, codec.Kind, bool) {
	return c.channel.sendNext()
}

// SendDone implements transport.FrameSink.
func (c *ClientConn) SendDone() {
	c.channel.sendDone()
}

// Fault implements transport.FrameSink: the framer is already closed by
// the time this runs (spec.md §4.2). The channel destroys and recreates
// the connection from scratch (spec.md §4.4, "Fault handling").
func (c *ClientConn) Fault(err error) {
	c.cancelTimer()
	Logger.Warn("rpc: client connection fault", zap.Error(err), zap.String("host", c.channel.host))
	c.channel.onConnFault(err)
}

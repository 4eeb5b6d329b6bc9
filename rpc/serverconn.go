// File: rpc/serverconn.go
// Author: momentics <momentics@gmail.com>
//
// ServerConn is the framer specialization of spec.md §4.5: it turns
// inbound frames into dispatched ServerMessages and drains completed
// responses back out, tracking a per-connection idle timeout.

package rpc

import (
	"container/list"
	"errors"

	"github.com/momentics/qrpc/codec"
	"github.com/momentics/qrpc/pool"
	"github.com/momentics/qrpc/reactor"
	"github.com/momentics/qrpc/transport"
	"github.com/momentics/qrpc/wire"
	"go.uber.org/zap"
)

var errUnknownService = errors.New("rpc: unknown service in request")

// ServerConn lives entirely on the worker that accepted it. recvQueue
// holds messages dispatched into the service layer but not yet finished;
// sendQueue holds finished responses waiting to be written
// (spec.md §4.5).
type ServerConn struct {
	worker *Worker
	fd     int
	framer *transport.Framer
	codec  *codec.Compressor

	recvQueue   map[uint64]*ServerMessage
	sendQueue   *list.List // of *ServerMessage
	currentSend *ServerMessage

	idleTimer reactor.TimerID
	idleArmed bool

	localAddr, remoteAddr string

	msgPool *pool.SyncPool[*ServerMessage]
	closed  bool
}

func newServerConn(w *Worker, fd int) *ServerConn {
	return &ServerConn{
		worker:    w,
		fd:        fd,
		codec:     w.codec,
		recvQueue: make(map[uint64]*ServerMessage),
		sendQueue: list.New(),
		msgPool:   pool.NewSyncPool(func() *ServerMessage { return &ServerMessage{} }),
	}
}

func (c *ServerConn) start() {
	c.localAddr, c.remoteAddr = transport.LocalRemoteAddrs(c.fd)
	c.framer = transport.NewFramer(c.fd, c.worker.react, c.codec, c)
	if err := c.framer.Start(); err != nil {
		Logger.Error("rpc: server framer start failed", zap.Error(err))
		c.teardown()
		return
	}
	c.armIdleTimer()
}

// armIdleTimer resets the one-shot keep-alive timer: spec.md §4.5 calls
// for it to reset on every request received AND every response finished
// writing.
func (c *ServerConn) armIdleTimer() {
	if c.idleArmed {
		c.worker.react.CancelTimer(c.idleTimer)
	}
	d := c.worker.server.opts.KeepAlive
	if d <= 0 {
		c.idleArmed = false
		return
	}
	c.idleTimer = c.worker.react.ArmTimer(d, func() {
		Logger.Debug("rpc: server connection idle timeout", zap.String("remote", c.remoteAddr))
		c.Close()
	})
	c.idleArmed = true
}

// RecvDone implements transport.FrameSink.
func (c *ServerConn) RecvDone(meta wire.Meta, data []byte) {
	c.armIdleTimer()
	if meta.Cancel {
		c.handleCancel(meta.Sequence)
		return
	}

	svc, ok := c.worker.server.registry.Lookup(meta.Service)
	if !ok {
		Logger.Warn("rpc: unknown service, closing connection", zap.String("service", meta.Service))
		c.framer.Abort(errUnknownService)
		return
	}

	msg := c.msgPool.Get()
	msg.reset()
	msg.Seq = meta.Sequence
	msg.Service = meta.Service
	msg.Method = meta.Method
	msg.Request = data
	msg.Compression = codec.Kind(meta.CompType)
	msg.Svc = svc
	msg.Conn = c
	msg.Controller = &ServerController{conn: c, msg: msg}

	c.recvQueue[msg.Seq] = msg
	svc.Dispatch(meta.Method, data, msg.Controller)
}

// handleCancel implements spec.md §4.5 step 1: locate the message by
// sequence in the receive queue (still dispatched) and mark it canceled;
// idempotent, and silently ignored if the response has already moved to
// the send queue.
func (c *ServerConn) handleCancel(seq uint64) {
	if msg, ok := c.recvQueue[seq]; ok {
		msg.canceled = true
	}
}

// SendNext implements transport.FrameSink.
func (c *ServerConn) SendNext() (wire.Meta, []byte, codec.Kind, bool) {
	if c.currentSend == nil {
		front := c.sendQueue.Front()
		if front == nil {
			return wire.Meta{}, nil, codec.None, false
		}
		c.currentSend = front.Value.(*ServerMessage)
	}
	msg := c.currentSend
	meta := wire.Meta{Sequence: msg.Seq, CompType: uint8(msg.Compression)}
	if msg.code != CodeOk {
		meta.HasCode = true
		meta.Code = uint32(msg.code)
		meta.ErrorText = msg.errorText
	}
	return meta, msg.Response, msg.Compression, true
}

// SendDone implements transport.FrameSink.
func (c *ServerConn) SendDone() {
	if front := c.sendQueue.Front(); front != nil {
		c.sendQueue.Remove(front)
	}
	msg := c.currentSend
	c.currentSend = nil
	if msg == nil {
		return
	}
	c.armIdleTimer()
	c.msgPool.Put(msg)
}

// finishMessage is ServerController.Finish's landing point: move the
// message from the receive queue to the send queue, re-arming write
// readiness if the queue was empty (spec.md §4.5, "When the done-closure
// fires"). If the connection has already closed, the message is simply
// released — the framer is already torn down.
func (c *ServerConn) finishMessage(msg *ServerMessage, response []byte, code Code, text string) {
	delete(c.recvQueue, msg.Seq)
	if c.closed {
		c.msgPool.Put(msg)
		c.maybeRelease()
		return
	}
	if msg.canceled {
		// The peer may still want a reply, but it is no longer waiting on
		// this sequence in any way this layer can observe; transmit it
		// anyway per spec.md §4.5's "may or may not deliver a response".
	}
	msg.Response = response
	msg.code = code
	msg.errorText = text

	wasIdle := c.sendQueue.Len() == 0 && c.currentSend == nil
	c.sendQueue.PushBack(msg)
	if wasIdle {
		c.framer.RequestWrite()
	}
}

// Fault implements transport.FrameSink: the framer has already closed the
// socket.
func (c *ServerConn) Fault(err error) {
	Logger.Warn("rpc: server connection fault", zap.Error(err), zap.String("remote", c.remoteAddr))
	c.teardown()
}

// Close tears the connection down from the server's side (idle timeout,
// or worker shutdown during Server.Stop). An unknown-service protocol
// violation takes the Framer.Abort → Fault path instead.
func (c *ServerConn) Close() {
	if c.framer != nil {
		c.framer.Close()
	}
	c.teardown()
}

func (c *ServerConn) teardown() {
	if c.closed {
		return
	}
	c.closed = true
	if c.idleArmed {
		c.worker.react.CancelTimer(c.idleTimer)
		c.idleArmed = false
	}
	c.sendQueue.Init()
	c.currentSend = nil
	for _, msg := range c.recvQueue {
		msg.canceled = true
	}
	c.maybeRelease()
}

// maybeRelease drops this connection from the worker's live set once it
// is closed and has no message still executing in the service layer
// (spec.md §4.5, "Close semantics").
func (c *ServerConn) maybeRelease() {
	if c.closed && len(c.recvQueue) == 0 {
		c.worker.removeConn(c)
	}
}

// File: rpc/channel.go
// Author: momentics <momentics@gmail.com>
//
// Channel is the client-side multiplexer of spec.md §4.4: a FIFO send
// queue, a single current-send slot, and a by-sequence receive queue —
// the arena-plus-identifier pattern SPEC_FULL.md §4.4 names, avoiding the
// back-pointer gymnastics of the original source's reconnect path.

package rpc

import (
	"container/list"
	"sort"
	"time"

	"github.com/momentics/qrpc/codec"
	"github.com/momentics/qrpc/internal/gid"
	"github.com/momentics/qrpc/wire"
	"go.uber.org/zap"
)

// Channel is bound to the goroutine that created it; every public
// operation fails with ErrWrongThread if invoked elsewhere
// (spec.md §4.4 invariant (a)).
type Channel struct {
	opts  ChannelOptions
	host  string
	port  int
	codec *codec.Compressor
	guard gid.Guard

	worker *Worker

	sequence uint64

	sendQueue   *list.List // of *ClientMessage
	currentSend *ClientMessage
	recvQueue   map[uint64]*ClientMessage

	conn *ClientConn

	heartbeatInFlight bool
	closed            bool
}

// NewChannel creates a channel bound to the calling goroutine, issuing
// calls against host:port and scheduling its reactor work on w.
func NewChannel(w *Worker, host string, port int, opts ChannelOptions) *Channel {
	guard := gid.NewGuard()
	return &Channel{
		opts:      opts,
		host:      host,
		port:      port,
		codec:     codec.Global().Acquire(guard.OwnerID()),
		guard:     guard,
		worker:    w,
		sendQueue: list.New(),
		recvQueue: make(map[uint64]*ClientMessage),
	}
}

// Open installs the client connection and starts the connect/retry cycle.
func (ch *Channel) Open() error {
	if !ch.guard.Owned() {
		return ErrWrongThread
	}
	if ch.conn != nil {
		return ErrInvalidState
	}
	ch.conn = newClientConn(ch)
	ch.conn.start()
	return nil
}

// Close cancels all outstanding calls and drops the connection.
func (ch *Channel) Close() error {
	if !ch.guard.Owned() {
		return ErrWrongThread
	}
	ch.cancelAll()
	if ch.conn != nil {
		ch.conn.Close()
		ch.conn = nil
	}
	ch.closed = true
	codec.Global().Release(ch.guard.OwnerID())
	return nil
}

// Cancel cancels all outstanding calls but keeps the channel open.
func (ch *Channel) Cancel() error {
	if !ch.guard.Owned() {
		return ErrWrongThread
	}
	ch.cancelAll()
	return nil
}

func (ch *Channel) cancelAll() {
	for e := ch.sendQueue.Front(); e != nil; {
		next := e.Next()
		msg := e.Value.(*ClientMessage)
		ch.sendQueue.Remove(e)
		ch.finishWith(msg, CodeCanceled, "")
		e = next
	}
	if ch.currentSend != nil {
		ch.finishWith(ch.currentSend, CodeCanceled, "")
	}
	for seq, msg := range ch.recvQueue {
		delete(ch.recvQueue, seq)
		ch.finishWith(msg, CodeCanceled, "")
	}
}

// CallMethod enqueues a new client message (spec.md §4.4's
// call_method algorithm).
func (ch *Channel) CallMethod(service, method string, ctrl *Controller, request []byte, response *[]byte, completion func()) error {
	if !ch.guard.Owned() {
		return ErrWrongThread
	}
	if request == nil || method == "" {
		return ErrBadArgument
	}
	ch.sequence++
	msg := &ClientMessage{
		Seq:         ch.sequence,
		Service:     service,
		Method:      method,
		Request:     request,
		Response:    response,
		Completion:  completion,
		Channel:     ch,
		Controller:  ctrl,
		Compression: ctrl.opts.Compression,
	}
	ctrl.attach(msg)

	wasIdle := ch.sendQueue.Len() == 0 && ch.currentSend == nil
	ch.sendQueue.PushBack(msg)
	if wasIdle && ch.conn != nil {
		ch.conn.RequestWrite()
	}
	ch.armMessageTimer(msg, ctrl.opts.RPCTimeout)
	return nil
}

func (ch *Channel) armMessageTimer(msg *ClientMessage, d time.Duration) {
	if d <= 0 {
		return
	}
	msg.timerID = ch.worker.react.ArmTimer(d, func() { ch.onMessageTimeout(msg) })
	msg.timerArmed = true
}

func (ch *Channel) cancelMessageTimer(msg *ClientMessage) {
	if msg.timerArmed {
		ch.worker.react.CancelTimer(msg.timerID)
		msg.timerArmed = false
	}
}

func (ch *Channel) onMessageTimeout(msg *ClientMessage) {
	if msg.finished {
		return
	}
	ch.removeFromQueues(msg)
	ch.finishWith(msg, CodeTimeout, "")
}

// removeFromQueues detaches msg from whichever of {send queue, current-send
// slot, receive queue} holds it. A message in the current-send slot during
// a partial write cannot be detached mid-write; marking it finished (done
// by the caller) is enough — sendDone discards it on its next visit
// (spec.md §4.4, "Cancellation").
func (ch *Channel) removeFromQueues(msg *ClientMessage) {
	if ch.currentSend == msg {
		return
	}
	for e := ch.sendQueue.Front(); e != nil; e = e.Next() {
		if e.Value.(*ClientMessage) == msg {
			ch.sendQueue.Remove(e)
			return
		}
	}
	delete(ch.recvQueue, msg.Seq)
}

func (ch *Channel) finishWith(msg *ClientMessage, code Code, text string) {
	if msg.finished {
		return
	}
	msg.finished = true
	ch.cancelMessageTimer(msg)
	if msg.Controller != nil {
		msg.Controller.stampError(code, text)
		msg.Controller.detach()
	}
	if msg.Completion != nil {
		msg.Completion()
	}
}

// startCancel implements Controller.StartCancel's channel-side half
// (spec.md §5, "Cancellation semantics").
func (ch *Channel) startCancel(msg *ClientMessage) error {
	if !ch.guard.Owned() {
		return ErrWrongThread
	}
	if msg.finished {
		return nil
	}
	ch.removeFromQueues(msg)
	ch.finishWith(msg, CodeCanceled, "")
	ch.sendCancelNotice(msg.Seq)
	return nil
}

// sendCancelNotice best-effort transmits a cancel frame for seq. It is
// represented as a synthetic, already-finished ClientMessage so it flows
// through the ordinary send path and sendDone discards it on completion
// instead of appending it to the receive queue.
func (ch *Channel) sendCancelNotice(seq uint64) {
	if ch.conn == nil {
		return
	}
	notice := &ClientMessage{Seq: seq, Cancel: true, finished: true}
	wasIdle := ch.sendQueue.Len() == 0 && ch.currentSend == nil
	ch.sendQueue.PushBack(notice)
	if wasIdle {
		ch.conn.RequestWrite()
	}
}

// sendNext implements ClientConn's half of transport.FrameSink.SendNext
// (spec.md §4.4, "Delivery notification from framer").
func (ch *Channel) sendNext() (wire.Meta, []byte, codec.Kind, bool) {
	if ch.currentSend == nil {
		front := ch.sendQueue.Front()
		if front == nil {
			return wire.Meta{}, nil, codec.None, false
		}
		ch.currentSend = front.Value.(*ClientMessage)
	}
	msg := ch.currentSend
	meta := wire.Meta{
		Sequence: msg.Seq,
		Service:  msg.Service,
		Method:   msg.Method,
		Cancel:   msg.Cancel,
		CompType: uint8(msg.Compression),
	}
	return meta, msg.Request, msg.Compression, true
}

func (ch *Channel) sendDone() {
	if front := ch.sendQueue.Front(); front != nil {
		ch.sendQueue.Remove(front)
	}
	msg := ch.currentSend
	ch.currentSend = nil
	if msg == nil || msg.finished {
		return
	}
	ch.recvQueue[msg.Seq] = msg
}

// onRecvDone implements ClientConn's half of transport.FrameSink.RecvDone
// (spec.md §4.4, "Delivery of incoming frame").
func (ch *Channel) onRecvDone(meta wire.Meta, data []byte) {
	msg, ok := ch.recvQueue[meta.Sequence]
	if !ok {
		Logger.Debug("rpc: late or unknown response dropped", zap.Uint64("seq", meta.Sequence))
		return
	}
	delete(ch.recvQueue, meta.Sequence)
	ch.cancelMessageTimer(msg)

	code := CodeOk
	text := ""
	if meta.HasCode && meta.Code != uint32(CodeOk) {
		code = Code(meta.Code)
		text = meta.ErrorText
	} else if msg.Response != nil {
		*msg.Response = data
	}
	ch.finish(msg, code, text)
}

func (ch *Channel) finish(msg *ClientMessage, code Code, text string) {
	if msg.finished {
		return
	}
	msg.finished = true
	if msg.Controller != nil {
		if ch.conn != nil {
			msg.Controller.stampAddrs(ch.conn.localAddr, ch.conn.remoteAddr)
		}
		msg.Controller.stampError(code, text)
		msg.Controller.detach()
	}
	if msg.Completion != nil {
		msg.Completion()
	}
}

func (ch *Channel) onConnected(c *ClientConn) {
	Logger.Info("rpc: channel connected", zap.String("host", ch.host), zap.Int("port", ch.port))
}

// onConnFault implements spec.md §4.4's fault-handling algorithm: the
// in-flight receive-queue messages are re-prepended to the send queue in
// their original order, and a brand-new ClientConn re-runs connect/retry.
func (ch *Channel) onConnFault(err error) {
	// sendNext leaves the current-send message at the head of the send
	// queue, so an unfinished one is resent from there; a finished one is
	// dropped.
	if ch.currentSend != nil && ch.currentSend.finished {
		if front := ch.sendQueue.Front(); front != nil && front.Value.(*ClientMessage) == ch.currentSend {
			ch.sendQueue.Remove(front)
		}
	}
	ch.currentSend = nil

	inFlight := make([]*ClientMessage, 0, len(ch.recvQueue))
	for _, msg := range ch.recvQueue {
		inFlight = append(inFlight, msg)
	}
	sort.Slice(inFlight, func(i, j int) bool { return inFlight[i].Seq < inFlight[j].Seq })
	ch.recvQueue = make(map[uint64]*ClientMessage)
	for i := len(inFlight) - 1; i >= 0; i-- {
		ch.sendQueue.PushFront(inFlight[i])
	}

	if ch.closed {
		return
	}
	ch.conn = newClientConn(ch)
	ch.conn.start()
}

// sendHeartbeat issues the builtin status RPC used as an idle probe,
// suppressed while any real traffic is present (spec.md §4.4,
// "Heartbeat").
func (ch *Channel) sendHeartbeat() {
	if ch.sendQueue.Len() > 0 || ch.currentSend != nil || len(ch.recvQueue) > 0 || ch.heartbeatInFlight {
		return
	}
	ch.heartbeatInFlight = true
	ctrl := NewController(DefaultControllerOptions())
	req := []byte("ping")
	var resp []byte
	ch.CallMethod("status", "Ping", ctrl, req, &resp, func() {
		ch.heartbeatInFlight = false
		if ctrl.Failed() {
			Logger.Debug("rpc: heartbeat failed", zap.String("err", ctrl.ErrorText()))
		}
	})
}

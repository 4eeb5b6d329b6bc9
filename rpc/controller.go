// File: rpc/controller.go
// Author: momentics <momentics@gmail.com>
//
// Controller is the client-side per-call handle (timeout/compression
// options in, result code/addresses out); ServerController is its
// server-side counterpart, the "done-closure" spec.md §4.5 describes.

package rpc

import "sync"

// Controller carries one call's options in and its outcome out. A fresh
// Controller must be created for every call_method; it is attached to the
// client message for its duration and detached once the message finishes
// (spec.md §4.4, "finish").
type Controller struct {
	opts ControllerOptions

	mu         sync.Mutex
	code       Code
	errorText  string
	localAddr  string
	remoteAddr string
	msg        *ClientMessage
}

// NewController returns a Controller configured with opts.
func NewController(opts ControllerOptions) *Controller {
	return &Controller{opts: opts, code: CodeOk}
}

// Failed reports whether the call finished with a non-Ok code. Safe to
// call only after the completion has run.
func (c *Controller) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code != CodeOk
}

// Code returns the call's result code, valid once the completion has run.
func (c *Controller) Code() Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// ErrorText returns the call's error text, if any.
func (c *Controller) ErrorText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorText
}

// LocalAddr returns the local socket address the call was sent from.
func (c *Controller) LocalAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localAddr
}

// RemoteAddr returns the remote socket address the call was sent to.
func (c *Controller) RemoteAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteAddr
}

// StartCancel cancels the call this controller is currently attached to,
// if any. Safe to call even after the call has already finished, and from
// any goroutine that can legally touch the owning channel (i.e. the
// channel's own goroutine — StartCancel does not bypass WrongThread).
func (c *Controller) StartCancel() error {
	c.mu.Lock()
	msg := c.msg
	c.mu.Unlock()
	if msg == nil {
		return nil
	}
	return msg.Channel.startCancel(msg)
}

func (c *Controller) attach(msg *ClientMessage) {
	c.mu.Lock()
	c.msg = msg
	c.mu.Unlock()
}

func (c *Controller) detach() {
	c.mu.Lock()
	c.msg = nil
	c.mu.Unlock()
}

func (c *Controller) stampError(code Code, text string) {
	c.mu.Lock()
	c.code = code
	c.errorText = text
	c.mu.Unlock()
}

func (c *Controller) stampAddrs(local, remote string) {
	c.mu.Lock()
	c.localAddr, c.remoteAddr = local, remote
	c.mu.Unlock()
}

// ServerController is the done-closure handle a Service.Dispatch
// implementation uses to report a result, matching spec.md §4.5's
// "controller" and §3's "done-closure" fields on the server message.
type ServerController struct {
	conn *ServerConn
	msg  *ServerMessage

	mu        sync.Mutex
	code      Code
	errorText string
	done      bool
}

// Fail marks the call as having failed with code and an optional error
// text; it does not finish the call — the handler must still call Finish.
func (c *ServerController) Fail(code Code, text string) {
	c.mu.Lock()
	c.code = code
	c.errorText = text
	c.mu.Unlock()
}

// Canceled reports whether the peer has asked to cancel this call. A
// handler MAY check this to skip unnecessary work; it is not required to.
func (c *ServerController) Canceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msg.canceled
}

// Finish delivers response (ignored if Fail was already called) and
// releases the server message. It MUST run on the worker goroutine that
// dispatched the call (spec.md §10, server handler thread affinity); a
// handler that needs another goroutine must return through Worker.Post.
func (c *ServerController) Finish(response []byte) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	code, text := c.code, c.errorText
	c.mu.Unlock()

	if !c.conn.worker.guard.Owned() {
		Logger.DPanic("rpc: server completion fired off its owning worker goroutine")
		return
	}
	c.conn.finishMessage(c.msg, response, code, text)
}

// File: rpc/message.go
// Author: momentics <momentics@gmail.com>
//
// ClientMessage and ServerMessage are the arena-plus-identifier entities
// spec.md §3 and §9 describe: indexed by sequence within their owning
// channel/connection rather than chased by pointer.

package rpc

import (
	"github.com/momentics/qrpc/codec"
	"github.com/momentics/qrpc/reactor"
)

// ClientMessage records one outgoing call (spec.md §3).
type ClientMessage struct {
	Seq         uint64
	Service     string
	Method      string
	Request     []byte
	Response    *[]byte
	Compression codec.Kind
	Cancel      bool // true only for a synthetic best-effort cancel notice.

	Completion func()
	Channel    *Channel
	Controller *Controller

	timerID    reactor.TimerID
	timerArmed bool
	finished   bool
}

// ServerMessage records one inbound call (spec.md §3).
type ServerMessage struct {
	Seq      uint64
	Service  string
	Method   string
	Request  []byte
	Response []byte

	// Compression is the codec kind the request's meta named (spec.md §3's
	// "compression identifier"); SendNext echoes it back on the response.
	Compression codec.Kind

	Svc        Service
	Controller *ServerController
	Conn       *ServerConn

	code      Code
	errorText string
	canceled  bool
	finished  bool
}

func (m *ServerMessage) reset() {
	*m = ServerMessage{}
}

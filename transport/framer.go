// File: transport/framer.go
// Author: momentics <momentics@gmail.com>
//
// Framer multiplexes the read and write state machines spec.md §4.2
// describes over one nonblocking socket, handing decoded frames upward
// through a FrameSink and pulling outgoing frames from it on demand.

package transport

import (
	"errors"
	"io"

	"github.com/momentics/qrpc/codec"
	"github.com/momentics/qrpc/pool"
	"github.com/momentics/qrpc/reactor"
	"github.com/momentics/qrpc/wire"
)

// maxReadDoublings bounds how many times handleReadable may grow the
// receive buffer within a single readiness callback, defeating a
// slow-drip sender that would otherwise force unbounded allocation
// before any frame completes (spec.md §4.2, §5 "Backpressure").
const maxReadDoublings = 4

// initialReadBufSize is the size handed out by readBufPool; every Framer
// starts here and grows its own buffer independently once a connection
// needs more (readBufPool only ever recycles unbuffered, freshly-closed
// connections back to their starting size).
const initialReadBufSize = 4096

var readBufPool = pool.NewBytePool(initialReadBufSize)

// FrameSink receives decoded frames and supplies outgoing ones. It is
// implemented by rpc.ClientConn and rpc.ServerConn; all methods run on
// the worker goroutine that owns the Framer.
type FrameSink interface {
	// RecvDone delivers one fully decoded frame.
	RecvDone(meta wire.Meta, data []byte)
	// SendNext returns the next frame to transmit, or ok=false if the
	// send queue is currently empty. The Framer does not consider the
	// message sent until SendDone is called for it.
	SendNext() (meta wire.Meta, data []byte, kind codec.Kind, ok bool)
	// SendDone reports that the frame most recently returned by
	// SendNext has been fully written.
	SendDone()
	// Fault reports a fatal transport error; the Framer is already
	// closed by the time this is called.
	Fault(err error)
}

// Framer owns a single nonblocking socket and drives FrameSink with
// decoded frames and write opportunities.
type Framer struct {
	fd    int
	react reactor.Reactor
	codec *codec.Compressor
	sink  FrameSink

	readBuf []byte
	readLen int

	sendAssembleBuf []byte
	writeBuf        []byte
	writeOff        int
	writeArmed      bool

	closed bool
}

// NewFramer wraps fd (already connected/accepted and nonblocking) with
// a Framer. Start must be called to begin receiving readiness callbacks.
func NewFramer(fd int, react reactor.Reactor, c *codec.Compressor, sink FrameSink) *Framer {
	return &Framer{fd: fd, react: react, codec: c, sink: sink}
}

// Start registers the framer's fd with the reactor for read readiness.
// Write readiness is armed on demand by RequestWrite.
func (f *Framer) Start() error {
	return f.react.Register(f.fd, reactor.Read, func(fd int, readable, writable, errored bool) {
		if errored {
			f.fault(errors.New("transport: socket error"))
			return
		}
		if readable {
			f.handleReadable()
		}
		if f.closed {
			return
		}
		if writable {
			f.trySend()
		}
	})
}

// RequestWrite asks the framer to attempt a send now, e.g. because the
// owner's send queue just became non-empty (spec.md §4.4 step 2).
func (f *Framer) RequestWrite() {
	if f.closed {
		return
	}
	f.trySend()
}

// Close tears the connection down without notifying sink.Fault — used
// when the owner initiates the close itself (e.g. Channel.close).
func (f *Framer) Close() {
	if f.closed {
		return
	}
	f.closed = true
	f.react.Unregister(f.fd)
	sysClose(f.fd)
	f.releaseReadBuf()
}

// releaseReadBuf returns readBuf to the pool if it never grew past its
// starting size; a grown buffer is simply dropped, since pool.BytePool
// only recycles slices matching the size it was built for.
func (f *Framer) releaseReadBuf() {
	if cap(f.readBuf) == initialReadBufSize {
		readBufPool.PutBuffer(f.readBuf[:initialReadBufSize])
	}
	f.readBuf = nil
}

// FD exposes the raw descriptor the Framer was built on.
func (f *Framer) FD() int { return f.fd }

// Abort force-closes the connection and reports err to the sink as a
// fault, the same path a read/write error takes internally. Used by
// rpc.ServerConn to convert a protocol violation (e.g. an unknown
// service) into the ordinary fault-handling path.
func (f *Framer) Abort(err error) {
	f.fault(err)
}

func (f *Framer) fault(err error) {
	if f.closed {
		return
	}
	f.closed = true
	f.react.Unregister(f.fd)
	sysClose(f.fd)
	f.releaseReadBuf()
	f.sink.Fault(err)
}

// handleReadable implements the Read/Parse/Wait cycle of spec.md §4.2.
func (f *Framer) handleReadable() {
	if f.readBuf == nil {
		f.readBuf = readBufPool.GetBuffer()
		f.readLen = 0
	}
	doublings := 0
	for {
		avail := len(f.readBuf) - f.readLen
		if avail == 0 {
			if doublings >= maxReadDoublings {
				break
			}
			f.readBuf = append(f.readBuf, make([]byte, len(f.readBuf))...)
			doublings++
			continue
		}
		n, err := sysRead(f.fd, f.readBuf[f.readLen:])
		if n > 0 {
			f.readLen += n
		}
		if err != nil {
			if isWouldBlock(err) {
				break
			}
			f.fault(err)
			return
		}
		if n == 0 {
			f.fault(io.EOF)
			return
		}
		if n < avail {
			break
		}
	}
	f.parse()
}

// parse consumes as many complete frames as readBuf holds, per spec.md
// §4.2's Parse state, and compacts the buffer afterward.
func (f *Framer) parse() {
	off := 0
	for {
		remaining := f.readLen - off
		if remaining < wire.HeaderSize {
			break
		}
		hdr, err := wire.DecodeHeader(f.readBuf[off : off+wire.HeaderSize])
		if err != nil {
			f.fault(err)
			return
		}
		total := wire.HeaderSize + int(hdr.PayloadLen)
		if remaining < total {
			break
		}
		body := f.readBuf[off+wire.HeaderSize : off+total]
		meta, data, err := f.decodeFrame(hdr, body)
		if err != nil {
			f.fault(err)
			return
		}
		off += total
		f.sink.RecvDone(meta, data)
		if f.closed {
			return
		}
	}
	if off > 0 {
		copy(f.readBuf, f.readBuf[off:f.readLen])
		f.readLen -= off
	}
}

func (f *Framer) decodeFrame(hdr wire.Header, body []byte) (wire.Meta, []byte, error) {
	expected := int(hdr.MetaLen) + int(hdr.DataLen)
	raw := f.codec.ExpandBufferCache(expected)
	kind := codec.Kind(hdr.Comp)
	n, status := f.codec.Decompress(kind, body, raw, expected)
	if status != codec.Ok || n != expected {
		return wire.Meta{}, nil, errors.New("transport: frame decompress failed")
	}
	meta, err := wire.DecodeMeta(raw[:hdr.MetaLen])
	if err != nil {
		return wire.Meta{}, nil, err
	}
	data := make([]byte, hdr.DataLen)
	copy(data, raw[hdr.MetaLen:])
	return meta, data, nil
}

// trySend implements the Write/Wait cycle of spec.md §4.2: keep pulling
// and writing frames until the sink has nothing more or the socket
// blocks.
func (f *Framer) trySend() {
	for {
		if f.writeBuf == nil {
			meta, data, kind, ok := f.sink.SendNext()
			if !ok {
				f.disableWrite()
				return
			}
			body, err := f.encodeFrame(meta, data, kind)
			if err != nil {
				f.fault(err)
				return
			}
			f.writeBuf = body
			f.writeOff = 0
		}

		n, err := sysWrite(f.fd, f.writeBuf[f.writeOff:])
		if n > 0 {
			f.writeOff += n
		}
		if err != nil {
			if isWouldBlock(err) {
				f.enableWrite()
				return
			}
			f.fault(err)
			return
		}
		if f.writeOff >= len(f.writeBuf) {
			f.writeBuf = nil
			f.sink.SendDone()
			if f.closed {
				return
			}
			continue
		}
	}
}

func (f *Framer) encodeFrame(meta wire.Meta, data []byte, kind codec.Kind) ([]byte, error) {
	metaLen := meta.EncodedLen()
	raw := f.codec.ExpandBufferCache(metaLen + len(data))
	if _, err := meta.Encode(raw[:metaLen]); err != nil {
		return nil, err
	}
	copy(raw[metaLen:], data)

	bound := codec.MaxCompressedLen(kind, len(raw))
	for {
		need := wire.HeaderSize + bound
		if cap(f.sendAssembleBuf) < need {
			newCap := cap(f.sendAssembleBuf)
			if newCap == 0 {
				newCap = 4096
			}
			for newCap < need {
				newCap *= 2
			}
			f.sendAssembleBuf = make([]byte, newCap)
		}
		body := f.sendAssembleBuf[:need]

		n, status, used := f.codec.Compress(kind, raw, body[wire.HeaderSize:])
		if status == codec.BufferTooSmall {
			bound *= 2
			continue
		}
		if status != codec.Ok {
			return nil, errors.New("transport: frame compress failed")
		}

		hdr := wire.Header{
			PayloadLen: uint32(n),
			DataLen:    uint32(len(data)),
			MetaLen:    uint16(metaLen),
			Comp:       uint8(used),
		}
		if err := hdr.Validate(); err != nil {
			return nil, err
		}
		hdr.Encode(body[:wire.HeaderSize])
		return body[:wire.HeaderSize+n], nil
	}
}

// enableWrite/disableWrite implement spec.md §4.2's readiness-arming
// rule: toggle the interest set with a single Rearm call whenever the
// framer flips between "nothing to send" and "something to send".
func (f *Framer) enableWrite() {
	if f.writeArmed {
		return
	}
	f.writeArmed = true
	f.react.Rearm(f.fd, reactor.Read|reactor.Write)
}

func (f *Framer) disableWrite() {
	if !f.writeArmed {
		return
	}
	f.writeArmed = false
	f.react.Rearm(f.fd, reactor.Read)
}

// Package wire implements the bit-exact frame header and the meta codec
// described in spec.md §6. Grounded on the teacher's protocol/frame.go for
// the general shape of a hand-rolled binary header encode/decode, and on
// original_source/rpc/connection.cc's Encode/Decode (the NetHeader struct
// and its htons/htonl/ntohs/ntohl dance) for the exact field layout this
// package reproduces with encoding/binary instead.
package wire

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the fixed 11-byte frame header: payload length (4),
// data length (4), meta length (2), compression id (1).
const HeaderSize = 11

// MaxMetaLen is the largest meta length a frame may declare.
const MaxMetaLen = 65535

// MaxDataLen is the largest data length a frame may declare.
const MaxDataLen = (1 << 31) - 65535

// MaxPayloadLen is the largest payload length a frame may declare.
const MaxPayloadLen = 1 << 31

// ErrFrameTooLarge is returned by Decode when a declared field exceeds its
// bound (spec.md §8, "frame bounds"); the connection must be closed.
var ErrFrameTooLarge = errors.New("wire: frame exceeds declared bounds")

// ErrTruncatedHeader is returned when fewer than HeaderSize bytes are
// available to parse.
var ErrTruncatedHeader = errors.New("wire: truncated frame header")

// Header is the fixed 11-byte frame header (spec.md §6).
type Header struct {
	PayloadLen uint32
	DataLen    uint32
	MetaLen    uint16
	Comp       uint8
}

// Validate enforces the three bound invariants spec.md §3 and §8 require.
func (h Header) Validate() error {
	if h.MetaLen > MaxMetaLen {
		return ErrFrameTooLarge
	}
	if h.DataLen > MaxDataLen {
		return ErrFrameTooLarge
	}
	if h.PayloadLen > MaxPayloadLen {
		return ErrFrameTooLarge
	}
	return nil
}

// Encode writes the header into dst, which must be at least HeaderSize
// bytes. It returns HeaderSize.
func (h Header) Encode(dst []byte) int {
	binary.BigEndian.PutUint32(dst[0:4], h.PayloadLen)
	binary.BigEndian.PutUint32(dst[4:8], h.DataLen)
	binary.BigEndian.PutUint16(dst[8:10], h.MetaLen)
	dst[10] = h.Comp
	return HeaderSize
}

// DecodeHeader parses a Header from the first HeaderSize bytes of src.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, ErrTruncatedHeader
	}
	h := Header{
		PayloadLen: binary.BigEndian.Uint32(src[0:4]),
		DataLen:    binary.BigEndian.Uint32(src[4:8]),
		MetaLen:    binary.BigEndian.Uint16(src[8:10]),
		Comp:       src[10],
	}
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

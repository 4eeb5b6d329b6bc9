package wire

import (
	"encoding/binary"
	"errors"
)

// Meta is the schema-encoded descriptor carried in every frame (spec.md
// §3, §6). The IDL toolchain that would normally generate this encoding is
// out of scope (spec.md §1); this package ships a small, fixed,
// length-prefixed encoding local to this module instead.
type Meta struct {
	Sequence   uint64
	Service    string
	Method     string
	CompType   uint8
	Cancel     bool
	Code       uint32
	ErrorText  string
	HasCode    bool // distinguishes "code 0 present" from "no code field at all"
}

const (
	metaFlagCancel    = 1 << 0
	metaFlagHasCode   = 1 << 1
	metaFlagHasErrMsg = 1 << 2
)

var (
	// ErrMetaTooLarge is returned by Encode when the encoded meta would
	// exceed MaxMetaLen.
	ErrMetaTooLarge = errors.New("wire: meta exceeds max meta length")
	// ErrMetaMalformed is returned by DecodeMeta on truncated or
	// inconsistent input.
	ErrMetaMalformed = errors.New("wire: malformed meta")
)

// EncodedLen returns the exact number of bytes Encode will write.
func (m Meta) EncodedLen() int {
	// sequence(8) + flags(1) + compType(1) + code(4) +
	// len-prefixed service/method/error_text (2-byte length each).
	n := 8 + 1 + 1 + 4
	n += 2 + len(m.Service)
	n += 2 + len(m.Method)
	n += 2 + len(m.ErrorText)
	return n
}

// Encode serializes m into dst, which must be at least EncodedLen() bytes.
// It returns the number of bytes written, or ErrMetaTooLarge if the result
// would not fit in a frame's 16-bit meta length field.
func (m Meta) Encode(dst []byte) (int, error) {
	total := m.EncodedLen()
	if total > MaxMetaLen {
		return 0, ErrMetaTooLarge
	}
	if len(dst) < total {
		return 0, errors.New("wire: dst too small for meta")
	}

	off := 0
	binary.BigEndian.PutUint64(dst[off:], m.Sequence)
	off += 8

	var flags uint8
	if m.Cancel {
		flags |= metaFlagCancel
	}
	if m.HasCode {
		flags |= metaFlagHasCode
	}
	if m.ErrorText != "" {
		flags |= metaFlagHasErrMsg
	}
	dst[off] = flags
	off++

	dst[off] = m.CompType
	off++

	binary.BigEndian.PutUint32(dst[off:], m.Code)
	off += 4

	off += putLenPrefixed(dst[off:], m.Service)
	off += putLenPrefixed(dst[off:], m.Method)
	off += putLenPrefixed(dst[off:], m.ErrorText)

	return off, nil
}

func putLenPrefixed(dst []byte, s string) int {
	binary.BigEndian.PutUint16(dst[0:2], uint16(len(s)))
	copy(dst[2:], s)
	return 2 + len(s)
}

func getLenPrefixed(src []byte) (string, int, error) {
	if len(src) < 2 {
		return "", 0, ErrMetaMalformed
	}
	l := int(binary.BigEndian.Uint16(src[0:2]))
	if len(src) < 2+l {
		return "", 0, ErrMetaMalformed
	}
	return string(src[2 : 2+l]), 2 + l, nil
}

// DecodeMeta parses a Meta from src. src must contain exactly the meta
// bytes (the framer slices it out using the frame header's meta length).
func DecodeMeta(src []byte) (Meta, error) {
	if len(src) < 14 {
		return Meta{}, ErrMetaMalformed
	}
	var m Meta
	off := 0
	m.Sequence = binary.BigEndian.Uint64(src[off:])
	off += 8

	flags := src[off]
	off++
	m.Cancel = flags&metaFlagCancel != 0
	m.HasCode = flags&metaFlagHasCode != 0
	hasErrMsg := flags&metaFlagHasErrMsg != 0

	m.CompType = src[off]
	off++

	m.Code = binary.BigEndian.Uint32(src[off:])
	off += 4

	svc, n, err := getLenPrefixed(src[off:])
	if err != nil {
		return Meta{}, err
	}
	m.Service = svc
	off += n

	method, n, err := getLenPrefixed(src[off:])
	if err != nil {
		return Meta{}, err
	}
	m.Method = method
	off += n

	errText, n, err := getLenPrefixed(src[off:])
	if err != nil {
		return Meta{}, err
	}
	if hasErrMsg {
		m.ErrorText = errText
	}
	off += n

	return m, nil
}

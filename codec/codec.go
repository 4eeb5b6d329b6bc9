// Package codec implements the compression pipeline: a per-owner scratch
// buffer plus an algorithm selector over identity, deflate, LZ4, and Snappy.
// Grounded on original_source/rpc/compressor.{h,cc} (Compressor,
// ExpandBufferCache, Compress/Uncompress with a resize-and-retry contract)
// and, for the scratch-buffer growth discipline, on the teacher's
// pool/bytepool.go (a growable reusable []byte holder).
package codec

import (
	"bytes"
	"compress/flate"
	"io"

	"github.com/golang/snappy"
	lz4 "github.com/pierrec/lz4/v4"
)

// Kind identifies a compression algorithm. Values match the wire's
// compression id (spec.md §6).
type Kind uint8

const (
	None    Kind = 0
	Deflate Kind = 1
	LZ4     Kind = 2
	Snappy  Kind = 3
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Deflate:
		return "deflate"
	case LZ4:
		return "lz4"
	case Snappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// Status mirrors original_source/rpc/compressor.h's CompressionStatus.
type Status int

const (
	Ok Status = iota
	InvalidInput
	BufferTooSmall
)

// Threshold below which compression is always skipped, regardless of the
// kind requested by the caller (spec.md §4.1).
const Threshold = 256

// Compressor carries the growable scratch buffer used both as an
// uncompressed-staging area on send and a decoded-staging area on receive.
// It is never shared across goroutines directly — ownership is brokered by
// Registry.
type Compressor struct {
	scratch []byte
}

// NewCompressor returns an empty Compressor; the scratch buffer grows
// lazily.
func NewCompressor() *Compressor {
	return &Compressor{}
}

// ExpandBufferCache returns a scratch buffer of at least n bytes, doubling
// capacity as needed and never shrinking — same contract as the source's
// method of the same name.
func (c *Compressor) ExpandBufferCache(n int) []byte {
	if cap(c.scratch) < n {
		newCap := cap(c.scratch)
		if newCap == 0 {
			newCap = 4096
		}
		for newCap < n {
			newCap *= 2
		}
		c.scratch = make([]byte, newCap)
	}
	return c.scratch[:n]
}

// Compress writes the compressed form of in into out, returning the number
// of bytes written and the kind actually used. usedKind can differ from
// kind when the input is below Threshold, or when an algorithm reports the
// data as incompressible and falls back to storing it verbatim (LZ4's
// block API signals this by returning n == 0) — in both cases usedKind is
// None and the caller must record that in the frame, not the kind it asked
// for. On BufferTooSmall the caller is expected to grow out and retry, per
// spec.md §4.1.
func (c *Compressor) Compress(kind Kind, in, out []byte) (n int, status Status, usedKind Kind) {
	if len(in) < Threshold {
		kind = None
	}
	switch kind {
	case None:
		if len(out) < len(in) {
			return 0, BufferTooSmall, None
		}
		copy(out, in)
		return len(in), Ok, None
	case Deflate:
		n, status = c.compressDeflate(in, out)
		return n, status, Deflate
	case LZ4:
		n, status, fellBack := c.compressLZ4(in, out)
		if fellBack {
			return n, status, None
		}
		return n, status, LZ4
	case Snappy:
		n, status = c.compressSnappy(in, out)
		return n, status, Snappy
	default:
		return 0, InvalidInput, kind
	}
}

// MaxCompressedLen returns the worst-case output size Compress needs for
// kind against an input of length n — callers sizing their own output
// buffer ahead of Compress (rather than growing on BufferTooSmall one
// doubling at a time) must use this, not len(in), since every algorithm
// but None can expand incompressible input.
func MaxCompressedLen(kind Kind, n int) int {
	switch kind {
	case LZ4:
		return lz4.CompressBlockBound(n)
	case Snappy:
		return snappy.MaxEncodedLen(n)
	case Deflate:
		// compress/flate exposes no bound of its own; this is zlib's
		// compressBound formula, which covers deflate's stored-block
		// fallback for incompressible input.
		return n + (n >> 12) + (n >> 14) + (n >> 25) + 13
	default:
		return n
	}
}

// Decompress expands in into out, which must be exactly expectedLen bytes.
func (c *Compressor) Decompress(kind Kind, in, out []byte, expectedLen int) (n int, status Status) {
	if len(out) < expectedLen {
		return 0, BufferTooSmall
	}
	out = out[:expectedLen]
	switch kind {
	case None:
		if len(in) != expectedLen {
			return 0, InvalidInput
		}
		copy(out, in)
		return expectedLen, Ok
	case Deflate:
		return decompressDeflate(in, out)
	case LZ4:
		return decompressLZ4(in, out)
	case Snappy:
		return decompressSnappy(in, out)
	default:
		return 0, InvalidInput
	}
}

func (c *Compressor) compressDeflate(in, out []byte) (int, Status) {
	var buf bytes.Buffer
	buf.Grow(len(in))
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return 0, InvalidInput
	}
	if _, err := w.Write(in); err != nil {
		return 0, InvalidInput
	}
	if err := w.Close(); err != nil {
		return 0, InvalidInput
	}
	if buf.Len() > len(out) {
		return 0, BufferTooSmall
	}
	n := copy(out, buf.Bytes())
	return n, Ok
}

func decompressDeflate(in, out []byte) (int, Status) {
	r := flate.NewReader(bytes.NewReader(in))
	defer r.Close()
	n, err := io.ReadFull(r, out)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, InvalidInput
	}
	if n != len(out) {
		return 0, InvalidInput
	}
	return n, Ok
}

func (c *Compressor) compressLZ4(in, out []byte) (n int, status Status, fellBack bool) {
	bound := lz4.CompressBlockBound(len(in))
	if bound > len(out) {
		return 0, BufferTooSmall, false
	}
	var comp lz4.Compressor
	n, err := comp.CompressBlock(in, out)
	if err != nil {
		return 0, InvalidInput, false
	}
	if n == 0 && len(in) > 0 {
		// Incompressible input: lz4 signals this by returning n == 0.
		// Store verbatim and tell the caller to record kind None instead.
		if len(out) < len(in) {
			return 0, BufferTooSmall, false
		}
		copy(out, in)
		return len(in), Ok, true
	}
	return n, Ok, false
}

func decompressLZ4(in, out []byte) (int, Status) {
	n, err := lz4.UncompressBlock(in, out)
	if err != nil {
		return 0, InvalidInput
	}
	if n != len(out) {
		return 0, InvalidInput
	}
	return n, Ok
}

func (c *Compressor) compressSnappy(in, out []byte) (int, Status) {
	bound := snappy.MaxEncodedLen(len(in))
	if bound < 0 {
		return 0, InvalidInput
	}
	if bound > len(out) {
		return 0, BufferTooSmall
	}
	enc := snappy.Encode(out, in)
	return len(enc), Ok
}

func decompressSnappy(in, out []byte) (int, Status) {
	dl, err := snappy.DecodedLen(in)
	if err != nil {
		return 0, InvalidInput
	}
	if dl != len(out) {
		return 0, InvalidInput
	}
	dec, err := snappy.Decode(out, in)
	if err != nil {
		return 0, InvalidInput
	}
	return len(dec), Ok
}

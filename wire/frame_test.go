package wire

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{PayloadLen: 0, DataLen: 0, MetaLen: 0, Comp: 0},
		{PayloadLen: 1234, DataLen: 1000, MetaLen: 234, Comp: 3},
		{PayloadLen: MaxPayloadLen, DataLen: MaxDataLen, MetaLen: MaxMetaLen, Comp: 2},
	}
	for _, h := range cases {
		buf := make([]byte, HeaderSize)
		n := h.Encode(buf)
		if n != HeaderSize {
			t.Fatalf("Encode returned %d, want %d", n, HeaderSize)
		}
		got, err := DecodeHeader(buf)
		if err != nil {
			t.Fatalf("DecodeHeader: %v", err)
		}
		if got != h {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
		}
	}
}

func TestHeaderBounds(t *testing.T) {
	// MetaLen is a uint16 already capped at MaxMetaLen by its width, so
	// overflow is only reachable for DataLen and PayloadLen here.
	bad := make([]byte, HeaderSize)
	h := Header{PayloadLen: MaxPayloadLen + 1, DataLen: 0, MetaLen: 0, Comp: 0}
	h.Encode(bad)
	if _, err := DecodeHeader(bad); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}

	bad2 := make([]byte, HeaderSize)
	h2 := Header{PayloadLen: 0, DataLen: MaxDataLen + 1, MetaLen: 0, Comp: 0}
	h2.Encode(bad2)
	if _, err := DecodeHeader(bad2); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge for data len, got %v", err)
	}
}

func TestDecodeHeaderTruncated(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, HeaderSize-1)); err != ErrTruncatedHeader {
		t.Fatalf("expected ErrTruncatedHeader, got %v", err)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	cases := []Meta{
		{Sequence: 1, Service: "Echo", Method: "Call", CompType: 0},
		{Sequence: 42, Service: "svc", Method: "m", CompType: 3, Cancel: true},
		{Sequence: 7, HasCode: true, Code: 9, ErrorText: "timeout"},
		{Sequence: 0, Service: "", Method: "", ErrorText: ""},
	}
	for _, m := range cases {
		buf := make([]byte, m.EncodedLen())
		n, err := m.Encode(buf)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if n != len(buf) {
			t.Fatalf("Encode returned %d, want %d", n, len(buf))
		}
		got, err := DecodeMeta(buf)
		if err != nil {
			t.Fatalf("DecodeMeta: %v", err)
		}
		if got != m {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
		}
	}
}

func TestMetaTooLarge(t *testing.T) {
	m := Meta{Service: string(bytes.Repeat([]byte("x"), MaxMetaLen))}
	buf := make([]byte, m.EncodedLen())
	if _, err := m.Encode(buf); err != ErrMetaTooLarge {
		t.Fatalf("expected ErrMetaTooLarge, got %v", err)
	}
}

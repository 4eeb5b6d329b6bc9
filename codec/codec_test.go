package codec

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, kind Kind, size int) {
	t.Helper()
	in := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), (size/44)+1)[:size]

	c := NewCompressor()
	dst := make([]byte, 0)
	for {
		n, status, used := c.Compress(kind, in, dst)
		if status == BufferTooSmall {
			if len(dst) == 0 {
				dst = make([]byte, 64)
			} else {
				dst = make([]byte, len(dst)*2)
			}
			continue
		}
		if status != Ok {
			t.Fatalf("compress failed: status=%v", status)
		}
		compressed := dst[:n]

		out := make([]byte, 0)
		for {
			dn, dstatus := c.Decompress(used, compressed, out, len(in))
			if dstatus == BufferTooSmall {
				out = make([]byte, len(in))
				continue
			}
			if dstatus != Ok {
				t.Fatalf("decompress failed: status=%v", dstatus)
			}
			if !bytes.Equal(out[:dn], in) {
				t.Fatalf("round trip mismatch for kind=%v size=%d", kind, size)
			}
			return
		}
	}
}

func TestRoundTripAllKinds(t *testing.T) {
	sizes := []int{0, 1, 100, 255, 256, 257, 4096, 100000}
	for _, kind := range []Kind{None, Deflate, LZ4, Snappy} {
		for _, sz := range sizes {
			roundTrip(t, kind, sz)
		}
	}
}

func TestBelowThresholdAlwaysNone(t *testing.T) {
	c := NewCompressor()
	in := bytes.Repeat([]byte("x"), Threshold-1)
	dst := make([]byte, len(in))
	_, status, used := c.Compress(Snappy, in, dst)
	if status != Ok {
		t.Fatalf("unexpected status: %v", status)
	}
	if used != None {
		t.Fatalf("expected fallback to None below threshold, got %v", used)
	}
}

func TestRegistryRefCounting(t *testing.T) {
	r := NewRegistry()
	c1 := r.Acquire("t1")
	c2 := r.Acquire("t1")
	if c1 != c2 {
		t.Fatal("expected same compressor for same key")
	}
	r.Release("t1")
	c3 := r.Acquire("t1")
	if c3 != c1 {
		t.Fatal("compressor should survive while refs remain")
	}
	r.Release("t1")
	r.Release("t1")
	// Now fully released; a new acquisition gets a fresh compressor.
	c4 := r.Acquire("t1")
	if c4 == c1 {
		t.Fatal("expected a fresh compressor after full release")
	}
}

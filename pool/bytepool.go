// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import "sync"

// BytePool recycles fixed-size byte slices via a sync.Pool. The framer
// uses one for its initial read buffer to avoid allocating a fresh buffer
// for every connection it drains.
type BytePool struct {
	size int
	pool sync.Pool
}

// NewBytePool creates a pool that hands out slices of size bytes.
func NewBytePool(size int) *BytePool {
	bp := &BytePool{size: size}
	bp.pool.New = func() any {
		return make([]byte, bp.size)
	}
	return bp
}

// GetBuffer returns a buffer from the pool, or a fresh one if empty.
func (b *BytePool) GetBuffer() []byte {
	return b.pool.Get().([]byte)
}

// PutBuffer returns buf to the pool. buf must have been obtained from
// GetBuffer (or be the same length) or it is silently dropped.
func (b *BytePool) PutBuffer(buf []byte) {
	if len(buf) != b.size {
		return
	}
	b.pool.Put(buf)
}

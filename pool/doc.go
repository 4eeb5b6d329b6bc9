// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer and object pooling used by the RPC core's framer and message
// arenas. Trimmed from the original NUMA-aware buffer layer down to the
// two primitives the core actually needs: a sync.Pool-backed byte pool
// for the framer's read buffers, and a generic object pool for server
// messages.
package pool

package rpcwire

import (
	"os"
	"sync/atomic"
	"time"
)

// xidCounter is seeded once at process start from the current time and pid
// so that two processes started at the same instant don't race to the same
// starting XID, then incremented atomically for every call this process
// issues across every connection. XID uniqueness only needs to hold within
// a connection's in-flight window (spec property P1), but a process-wide
// monotonic counter trivially satisfies that and is cheaper than per-
// connection bookkeeping.
var xidCounter uint32

func init() {
	seed := uint32(time.Now().UnixNano()) ^ (uint32(os.Getpid()) << 16)
	atomic.StoreUint32(&xidCounter, seed)
}

// NextXID returns the next process-wide unique RPC transaction ID.
func NextXID() uint32 {
	return atomic.AddUint32(&xidCounter, 1)
}

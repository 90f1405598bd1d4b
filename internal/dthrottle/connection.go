package dthrottle

import (
	"net"
	"sync"
	"sync/atomic"
)

// connID identifies one accepted connection for the lifetime of the
// process. The original keys its client table by the FLClientReader
// pointer itself (throttleapp.h's _client_readers, a
// hash_map<FLClientReader*, ...>); Go has no stable pointer-identity hash
// of that kind, so this repo hands out a monotonically increasing id at
// accept time instead.
type connID uint64

var nextConnID atomic.Uint64

func newConnID() connID {
	return connID(nextConnID.Add(1))
}

// connection holds everything the dispatcher needs to track one accepted
// socket: the net.Conn itself, its line-framing state, and which
// transport it arrived on (for per-transport metrics).
type connection struct {
	id        connID
	conn      net.Conn
	transport string
	reader    *LineReader
}

// connTable is a registry of live connections, grounded on
// throttleapp.h's _client_readers map. Unlike the original it is safe
// for concurrent use: accept loops register connections, each
// connection's own goroutine deregisters it, and Snapshot (used by the admin
// /debug/connections endpoint) may be called concurrently from an HTTP
// handler goroutine.
type connTable struct {
	mu    sync.Mutex
	conns map[connID]*connection
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[connID]*connection)}
}

func (t *connTable) add(c *connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c.id] = c
}

func (t *connTable) remove(id connID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, id)
}

// Len reports the number of currently tracked connections.
func (t *connTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// Snapshot returns, per transport, the number of live connections.
func (t *connTable) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := make(map[string]int)
	for _, c := range t.conns {
		counts[c.transport]++
	}
	return counts
}

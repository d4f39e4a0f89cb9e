package supervisor

import (
	"net"
	"sync"
)

// Registry is the live-socket registry: every accepted connection is
// inserted at accept and removed at worker exit; on shutdown every
// remaining entry is force-closed. gokrazy/rsync's daemon keeps a shared
// mutex-guarded list for exactly this; here it's a map keyed by the
// connection itself rather than a raw socket handle, since Go exposes
// net.Conn rather than an integer descriptor.
type Registry struct {
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[net.Conn]struct{})}
}

// Add inserts conn into the registry at accept time.
func (r *Registry) Add(conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn] = struct{}{}
}

// Remove deletes conn from the registry; called by the worker on exit,
// regardless of how it exited.
func (r *Registry) Remove(conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, conn)
}

// CloseAll closes every live connection. Workers blocked on a read get an
// error from it and unwind.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conn := range r.conns {
		conn.Close()
	}
}

// Len reports the number of live connections, used only for logging/tests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

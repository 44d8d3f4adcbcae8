// File: internal/registry/registry.go
// Package registry owns the per-connection state, keyed by fd.
// License: Apache-2.0

package registry

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nisseweb/nisse/api"
	"github.com/nisseweb/nisse/internal/concurrency"
)

// Phase is the coarse lifecycle position of a connection.
type Phase int32

const (
	Accepting Phase = iota
	Running
	SuspendedRead
	SuspendedWrite
	Closing
)

// Connection is the state owned by the registry for one fd. Entries are
// stored behind pointers so a reference stays valid without holding the
// registry mutex, as long as the holder rules out a concurrent Remove; the
// orchestrator guarantees that by removing a running connection only on the
// reactor thread after the coroutine's final Remove yield.
type Connection struct {
	Fd     int
	Stream api.Stream
	Work   *concurrency.Coroutine

	// Release returns the descriptor to the kernel. It runs when the entry
	// is destroyed, after the reactor interest is gone; for a normal removal
	// that is on the reactor thread, so the fd number cannot be reused while
	// erase requests for it are still queued.
	Release func()

	phase atomic.Int32
}

// NewConnection wraps a freshly accepted stream. The coroutine is attached
// by the orchestrator once its body closure exists.
func NewConnection(fd int, stream api.Stream) *Connection {
	return &Connection{Fd: fd, Stream: stream}
}

func (c *Connection) Phase() Phase {
	return Phase(c.phase.Load())
}

func (c *Connection) SetPhase(p Phase) {
	c.phase.Store(int32(p))
}

// Registry maps fds to their owned connection state under one mutex with
// short critical sections.
type Registry struct {
	mu     sync.Mutex
	conns  map[int]*Connection
	logger *zap.Logger
}

func New(logger *zap.Logger) *Registry {
	return &Registry{
		conns:  make(map[int]*Connection),
		logger: logger.Named("Registry"),
	}
}

// Insert stores conn under its fd and returns the stable reference. An
// entry left over from an earlier connection on a reused fd is replaced.
func (r *Registry) Insert(conn *Connection) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.conns[conn.Fd]; ok {
		r.logger.Warn("replacing stale connection", zap.Int("fd", conn.Fd))
		if old.Work != nil {
			old.Work.Drop()
		}
	}
	r.conns[conn.Fd] = conn
	return conn
}

// Reference returns the stable reference for fd if present.
func (r *Registry) Reference(fd int) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[fd]
	return conn, ok
}

// Remove destroys the entry for fd: the coroutine is released and the
// stream (and with it the descriptor) is closed.
func (r *Registry) Remove(fd int) {
	r.mu.Lock()
	conn, ok := r.conns[fd]
	delete(r.conns, fd)
	r.mu.Unlock()

	if !ok {
		return
	}
	destroy(conn)
}

func destroy(conn *Connection) {
	conn.SetPhase(Closing)
	if conn.Work != nil {
		conn.Work.Drop()
	}
	conn.Stream.Close()
	if conn.Release != nil {
		conn.Release()
	}
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Drain empties the registry at shutdown, dropping each coroutine and
// closing each stream.
func (r *Registry) Drain() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[int]*Connection)
	r.mu.Unlock()

	for _, conn := range conns {
		destroy(conn)
	}
}

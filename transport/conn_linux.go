//go:build linux

// File: transport/conn_linux.go
// Package transport - nonblocking socket with would-block yield hooks.
// License: Apache-2.0

package transport

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/nisseweb/nisse/api"
)

// Conn is a nonblocking TCP socket. A read or write that would block
// invokes the registered yield hook; the hook suspends the enclosing
// coroutine and reports whether to retry once resumed. With no hook
// installed a would-block surfaces as an error.
//
// Conn implements net.Conn so crypto/tls can sit on top of it; the TLS
// record layer then blocks-by-yielding without ever observing EAGAIN.
type Conn struct {
	fd       int
	closed   bool // soft-closed via shutdown
	released bool // fd returned to the kernel
	reset    bool // peer reset or EOF observed

	readYield  api.YieldHook
	writeYield api.YieldHook

	local  net.Addr
	remote net.Addr
}

// NewConn adopts an already nonblocking descriptor.
func NewConn(fd int) *Conn {
	return &Conn{
		fd:     fd,
		local:  sockName(fd, unix.Getsockname),
		remote: sockName(fd, unix.Getpeername),
	}
}

func (c *Conn) Fd() int { return c.fd }

// Closed reports that no more data will move: the peer reset or the
// connection was shut down.
func (c *Conn) Closed() bool { return c.closed || c.released || c.reset }

func (c *Conn) SetReadYield(h api.YieldHook)  { c.readYield = h }
func (c *Conn) SetWriteYield(h api.YieldHook) { c.writeYield = h }

// Read fills p, suspending through the read yield hook whenever the socket
// has no data. EOF and ECONNRESET both end the stream without error.
func (c *Conn) Read(p []byte) (int, error) {
	for {
		if c.Closed() {
			return 0, io.EOF
		}
		n, err := unix.Read(c.fd, p)
		switch err {
		case nil:
			if n <= 0 {
				c.reset = true
				return 0, io.EOF
			}
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if c.readYield != nil && c.readYield() {
				continue
			}
			return 0, errors.Wrap(err, "read would block")
		case unix.ECONNRESET:
			c.reset = true
			return 0, io.EOF
		default:
			return 0, errors.Wrap(err, "read")
		}
	}
}

// Write sends all of p, suspending through the write yield hook whenever
// the socket buffer is full. A peer reset silently closes the stream; the
// write still reports full success so the caller's buffered writer does not
// latch an error for a condition the protocol treats as a normal close.
func (c *Conn) Write(p []byte) (int, error) {
	sent := 0
	for sent < len(p) {
		if c.Closed() {
			return len(p), nil
		}
		n, err := unix.Write(c.fd, p[sent:])
		switch err {
		case nil:
			sent += n
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if c.writeYield != nil && c.writeYield() {
				continue
			}
			return sent, errors.Wrap(err, "write would block")
		case unix.ECONNRESET, unix.EPIPE:
			c.reset = true
			return len(p), nil
		default:
			return sent, errors.Wrap(err, "write")
		}
	}
	return sent, nil
}

// Close ends the connection but keeps the descriptor allocated: releasing
// the fd here would let the kernel hand the same number to a new connection
// while this one's deferred registry/reactor erase is still queued. The
// reactor thread calls Release once the erase runs.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	unix.Shutdown(c.fd, unix.SHUT_RDWR)
	return nil
}

// Release returns the descriptor to the kernel. Idempotent.
func (c *Conn) Release() error {
	c.closed = true
	if c.released {
		return nil
	}
	c.released = true
	return unix.Close(c.fd)
}

func (c *Conn) LocalAddr() net.Addr  { return c.local }
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

// Deadlines are meaningless here: blocking is realized by coroutine
// suspension, not by timers.
func (c *Conn) SetDeadline(time.Time) error      { return nil }
func (c *Conn) SetReadDeadline(time.Time) error  { return nil }
func (c *Conn) SetWriteDeadline(time.Time) error { return nil }

func sockName(fd int, get func(int) (unix.Sockaddr, error)) net.Addr {
	sa, err := get(fd)
	if err != nil {
		return &net.TCPAddr{}
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}
	default:
		return &net.TCPAddr{}
	}
}

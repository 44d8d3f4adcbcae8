//go:build linux

// File: transport/listener_linux.go
// Package transport - nonblocking listening socket.
// License: Apache-2.0

package transport

import (
	"crypto/tls"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrNoPendingConn reports an accept attempt with nothing queued; the
// caller re-arms read interest and waits for the next readiness.
var ErrNoPendingConn = errors.New("no pending connection")

// Listener is the nonblocking listening socket. When a TLS configuration is
// attached, every accepted conn is wrapped in a server-side TLS session.
type Listener struct {
	fd      int
	port    int
	tlsConf *tls.Config
}

// Listen binds and listens on port on all interfaces.
func Listen(port int, tlsConf *tls.Config) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "socket")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "setsockopt SO_REUSEADDR")
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "bind port %d", port)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "listen")
	}

	// Recover the port the kernel picked when asked for 0.
	bound := port
	if sa, err := unix.Getsockname(fd); err == nil {
		if in4, ok := sa.(*unix.SockaddrInet4); ok {
			bound = in4.Port
		}
	}

	return &Listener{fd: fd, port: bound, tlsConf: tlsConf}, nil
}

func (l *Listener) Fd() int   { return l.fd }
func (l *Listener) Port() int { return l.port }

// Accept takes one pending connection, nonblocking. ErrNoPendingConn means
// the readiness was already consumed.
func (l *Listener) Accept() (*Conn, error) {
	for {
		nfd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch err {
		case nil:
			unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			return NewConn(nfd), nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return nil, ErrNoPendingConn
		default:
			return nil, errors.Wrap(err, "accept4")
		}
	}
}

// NewStream builds the connection's Stream, layering TLS when configured.
func (l *Listener) NewStream(conn *Conn, readBuf, writeBuf int) *Stream {
	if l.tlsConf == nil {
		return NewStream(conn, nil, readBuf, writeBuf)
	}
	return NewStream(conn, tls.Server(conn, l.tlsConf), readBuf, writeBuf)
}

func (l *Listener) Close() error {
	if l.fd < 0 {
		return nil
	}
	fd := l.fd
	l.fd = -1
	return unix.Close(fd)
}

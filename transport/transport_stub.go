//go:build !linux

// File: transport/transport_stub.go
// Package transport - stub for platforms without the nonblocking socket
// layer. The buffered Stream itself is portable; only the raw socket and
// listener need a platform backend.
// License: Apache-2.0

package transport

import (
	"crypto/tls"

	"github.com/pkg/errors"

	"github.com/nisseweb/nisse/api"
)

var ErrNoPendingConn = errors.New("no pending connection")

type Conn struct{}

func NewConn(int) *Conn { return &Conn{} }

func (c *Conn) Fd() int                       { return -1 }
func (c *Conn) Closed() bool                  { return true }
func (c *Conn) SetReadYield(api.YieldHook)    {}
func (c *Conn) SetWriteYield(api.YieldHook)   {}
func (c *Conn) Read([]byte) (int, error)      { return 0, api.ErrNotSupported }
func (c *Conn) Write([]byte) (int, error)     { return 0, api.ErrNotSupported }
func (c *Conn) Close() error                  { return nil }
func (c *Conn) Release() error                { return nil }

type Listener struct{}

func Listen(int, *tls.Config) (*Listener, error) { return nil, api.ErrNotSupported }

func (l *Listener) Fd() int                                  { return -1 }
func (l *Listener) Port() int                                { return 0 }
func (l *Listener) Accept() (*Conn, error)                   { return nil, api.ErrNotSupported }
func (l *Listener) NewStream(*Conn, int, int) *Stream        { return nil }
func (l *Listener) Close() error                             { return nil }

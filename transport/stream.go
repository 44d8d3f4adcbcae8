// File: transport/stream.go
// Package transport - buffered line-oriented stream over a yielding conn.
// License: Apache-2.0

package transport

import (
	"bufio"
	"io"

	"github.com/nisseweb/nisse/api"
)

// YieldConn is the raw byte channel beneath a Stream: a plain nonblocking
// socket or anything layered over one (the TLS session), plus the
// would-block hook registration that realizes coroutine suspension.
type YieldConn interface {
	io.ReadWriteCloser
	SetReadYield(api.YieldHook)
	SetWriteYield(api.YieldHook)
	Closed() bool
}

const (
	defaultReadBufferSize  = 4 << 10
	defaultWriteBufferSize = 4 << 10
)

// Stream implements api.Stream. Failures latch: a read error, peer reset or
// hard write error flips the stream into a failed state in which reads
// return empty, writes are dropped and HasData reports false.
type Stream struct {
	conn YieldConn
	rw   io.ReadWriter // conn itself, or the TLS session over it
	br   *bufio.Reader
	bw   *bufio.Writer

	open bool
	eof  bool
	werr error
}

// NewStream buffers rw. rw is the conn itself for plaintext or the TLS
// session wrapping it; hooks always go to the conn.
func NewStream(conn YieldConn, rw io.ReadWriter, readBuf, writeBuf int) *Stream {
	if rw == nil {
		rw = conn
	}
	if readBuf <= 0 {
		readBuf = defaultReadBufferSize
	}
	if writeBuf <= 0 {
		writeBuf = defaultWriteBufferSize
	}
	return &Stream{
		conn: conn,
		rw:   rw,
		br:   bufio.NewReaderSize(rw, readBuf),
		bw:   bufio.NewWriterSize(rw, writeBuf),
		open: true,
	}
}

func (s *Stream) GetNextLine() string {
	if !s.usable() {
		return ""
	}
	line, err := s.br.ReadString('\n')
	if err != nil {
		s.eof = true
	}
	return line
}

func (s *Stream) Ignore(n int) {
	if n <= 0 || !s.usable() {
		return
	}
	if _, err := io.CopyN(io.Discard, s.br, int64(n)); err != nil {
		s.eof = true
	}
}

func (s *Stream) SendMessage(msg []byte) {
	if !s.usable() {
		return
	}
	if _, err := s.bw.Write(msg); err != nil {
		s.werr = err
	}
}

func (s *Stream) Sync() {
	if !s.open {
		return
	}
	if err := s.bw.Flush(); err != nil && s.werr == nil {
		s.werr = err
	}
}

func (s *Stream) HasData() bool {
	return s.usable()
}

func (s *Stream) IsOpen() bool {
	return s.open
}

// Close flushes what it can and closes the conn; the descriptor itself stays
// allocated until the conn's owner releases it. The yield hooks
// are cleared first so a final flush can never suspend: Close may run on
// the reactor thread during teardown, where there is no coroutine to
// suspend into.
func (s *Stream) Close() {
	if !s.open {
		return
	}
	s.open = false
	s.conn.SetReadYield(nil)
	s.conn.SetWriteYield(nil)
	s.bw.Flush()
	if closer, ok := s.rw.(io.Closer); ok && s.rw != io.ReadWriter(s.conn) {
		closer.Close() // TLS close_notify, best effort
	}
	s.conn.Close()
}

func (s *Stream) SetReadYield(h api.YieldHook)  { s.conn.SetReadYield(h) }
func (s *Stream) SetWriteYield(h api.YieldHook) { s.conn.SetWriteYield(h) }

func (s *Stream) usable() bool {
	return s.open && !s.eof && s.werr == nil && !s.conn.Closed()
}

var _ api.Stream = (*Stream)(nil)

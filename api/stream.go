// File: api/stream.go
// Package api defines the byte-stream contract consumed by the HTTP engine.
// License: Apache-2.0

package api

// YieldHook is installed on a Stream and invoked when an underlying read or
// write would block. The hook is expected to suspend the enclosing coroutine
// and report, once resumed, whether the I/O call should be retried.
type YieldHook func() bool

// Stream is a synchronous byte channel with line-oriented reads and buffered
// writes. Errors latch: once a read fails or the peer resets, HasData
// reports false and further operations become no-ops, mirroring the failed
// state of an iostream-style channel.
type Stream interface {
	// GetNextLine returns the next "\r\n"-terminated line including its
	// terminator, or whatever remains on EOF.
	GetNextLine() string

	// Ignore discards exactly n bytes, reading as required.
	Ignore(n int)

	// SendMessage appends msg to the write buffer.
	SendMessage(msg []byte)

	// Sync flushes buffered writes to the peer.
	Sync()

	// HasData reports whether the stream is open and has not failed.
	HasData() bool

	// IsOpen reports whether Close has not been called.
	IsOpen() bool

	// Close flushes and closes the underlying connection. Idempotent.
	Close()

	// SetReadYield installs the hook invoked when a read would block.
	SetReadYield(h YieldHook)

	// SetWriteYield installs the hook invoked when a write would block.
	SetWriteYield(h YieldHook)
}

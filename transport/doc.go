// Package transport implements the byte-stream layer between the HTTP
// engine and the kernel: a nonblocking socket Conn whose reads and writes
// invoke pluggable would-block yield hooks, an optional TLS wrap, the
// buffered line-oriented Stream, and the listening socket.
package transport

// Package protocol implements the HTTP/1.1 GET subset served by nisse: the
// request parser, the status lifecycle, content-root path resolution and the
// static-file responder. All I/O goes through api.Stream, so every read and
// write is a potential coroutine suspension point.
package protocol

// Package reactor provides the one-shot readiness reactor that multiplexes
// all connections on a single poll thread. The Linux backend is epoll with
// EPOLLONESHOT; other platforms get a stub constructor.
package reactor

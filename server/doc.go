// Package server wires the pieces into the web server: the listening
// socket, the reactor, the job queue and the connection registry. It owns
// the lifecycle from startup through graceful shutdown.
package server

// Package api defines the narrow contracts shared between the reactor, the
// job queue, the per-connection coroutines and the transport layer. Concrete
// implementations live in their own packages; everything that crosses a
// package boundary is expressed here.
package api

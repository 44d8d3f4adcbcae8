// File: api/errors.go
// Package api defines the error values shared across the library.
// License: Apache-2.0

package api

import "github.com/pkg/errors"

var (
	// ErrNotRegistered reports a reactor operation on an unknown fd.
	ErrNotRegistered = errors.New("fd is not registered")

	// ErrAlreadyArmed reports a duplicate Register for an armed direction.
	ErrAlreadyArmed = errors.New("fd is already armed for this direction")

	// ErrReactorFault reports an unrecoverable poll failure; Run wraps the
	// underlying cause around this value.
	ErrReactorFault = errors.New("reactor fault")

	// ErrQueueClosed reports a Submit after shutdown began.
	ErrQueueClosed = errors.New("job queue is closed")

	// ErrNotSupported reports a subsystem missing on this platform.
	ErrNotSupported = errors.New("not supported on this platform")
)

// File: reactor/reactor.go
// Package reactor selects the platform backend.
// License: Apache-2.0

package reactor

import (
	"go.uber.org/zap"

	"github.com/nisseweb/nisse/api"
)

// New returns the readiness reactor for this platform.
func New(logger *zap.Logger) (api.Reactor, error) {
	return newReactor(logger)
}

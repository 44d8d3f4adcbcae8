//go:build !linux

// File: reactor/reactor_stub.go
// Package reactor - stub for platforms without an epoll backend.
// License: Apache-2.0

package reactor

import (
	"go.uber.org/zap"

	"github.com/nisseweb/nisse/api"
)

func newReactor(_ *zap.Logger) (api.Reactor, error) {
	return nil, api.ErrNotSupported
}

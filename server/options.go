// File: server/options.go
// Package server - functional options.
// License: Apache-2.0

package server

import "go.uber.org/zap"

// Option customizes server initialization.
type Option func(*WebServer)

// WithLogger replaces the default logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *WebServer) {
		s.logger = logger
	}
}

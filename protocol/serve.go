// File: protocol/serve.go
// Package protocol - per-connection request/response loop.
// License: Apache-2.0

package protocol

import (
	"go.uber.org/zap"

	"github.com/nisseweb/nisse/api"
)

// Serve runs the blocking-style request loop for one connection. The peer
// may pipeline back-to-back requests, so the loop keeps going while the
// stream is healthy. A non-200 response poisons whatever else is on the
// stream, so the connection is closed, which ends the loop.
func Serve(stream api.Stream, contentRoot string, logger *zap.Logger) {
	for stream.HasData() {
		request := ReadRequest(stream, logger)
		response := NewResponse(request)
		response.Send(stream, contentRoot, logger)

		if !response.Valid() {
			stream.Close()
		}
	}
}

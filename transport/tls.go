// File: transport/tls.go
// Package transport - TLS context loading.
// License: Apache-2.0

package transport

import (
	"crypto/tls"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	certFileName = "fullchain.pem"
	keyFileName  = "privkey.pem"
)

// LoadTLSConfig builds the server TLS context from a certificate directory
// holding fullchain.pem and privkey.pem.
func LoadTLSConfig(certDir string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(
		filepath.Join(certDir, certFileName),
		filepath.Join(certDir, keyFileName),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "load certificate from %s", certDir)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

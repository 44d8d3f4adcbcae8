// File: cmd/nisse/main.go
// The nisse static-file server.
// License: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nisseweb/nisse/internal/logging"
	"github.com/nisseweb/nisse/server"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: nisse [-config <file>] [-v] <port> <documentRoot> [<tlsCertDir>]\n")
	os.Exit(1)
}

func main() {
	configPath := flag.String("config", "", "optional YAML configuration file")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 && len(args) != 3 {
		usage()
	}

	level := zapcore.InfoLevel
	if *verbose {
		level = zapcore.DebugLevel
	}
	logger := logging.New(level)
	defer logger.Sync()

	cfg := server.DefaultConfig()
	if *configPath != "" {
		loaded, err := server.LoadConfig(*configPath)
		if err != nil {
			logger.Error("bad config", zap.Error(err))
			os.Exit(1)
		}
		cfg = loaded
	}

	port, err := strconv.Atoi(args[0])
	if err != nil || port < 0 || port > 65535 {
		usage()
	}
	cfg.Port = port
	cfg.DocumentRoot = args[1]
	if len(args) == 3 {
		cfg.CertDir = args[2]
	}

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}

	if err := srv.Run(); err != nil {
		logger.Error("server failed", zap.Error(err))
		os.Exit(1)
	}
}

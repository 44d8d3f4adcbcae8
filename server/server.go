// File: server/server.go
// Package server - the connection dispatch core.
// License: Apache-2.0

package server

import (
	"crypto/tls"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/nisseweb/nisse/api"
	"github.com/nisseweb/nisse/internal/concurrency"
	"github.com/nisseweb/nisse/internal/logging"
	"github.com/nisseweb/nisse/internal/registry"
	"github.com/nisseweb/nisse/protocol"
	"github.com/nisseweb/nisse/reactor"
	"github.com/nisseweb/nisse/transport"
)

// WebServer glues readiness notifications, coroutine resumption and work
// scheduling together. The reactor thread only ever submits jobs; all
// request work runs on the job queue's workers.
type WebServer struct {
	cfg         *Config
	logger      *zap.Logger
	contentRoot string

	listener *transport.Listener
	reactor  api.Reactor
	jobs     *concurrency.JobQueue
	registry *registry.Registry

	quit chan struct{}

	accepted atomic.Int64
	removed  atomic.Int64
}

// New builds the server: listening socket (TLS-wrapped when a certificate
// directory is configured), reactor, worker pool and registry.
func New(cfg *Config, opts ...Option) (*WebServer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &WebServer{
		cfg:    cfg,
		logger: logging.New(zapcore.InfoLevel),
		quit:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}

	root, err := canonicalRoot(cfg.DocumentRoot)
	if err != nil {
		return nil, err
	}
	s.contentRoot = root

	var tlsConf *tls.Config
	if cfg.CertDir != "" {
		tlsConf, err = transport.LoadTLSConfig(cfg.CertDir)
		if err != nil {
			return nil, err
		}
	}

	s.listener, err = transport.Listen(cfg.Port, tlsConf)
	if err != nil {
		return nil, err
	}

	s.reactor, err = reactor.New(s.logger)
	if err != nil {
		s.listener.Close()
		return nil, err
	}

	s.jobs = concurrency.NewJobQueue(cfg.Workers, s.logger)
	s.registry = registry.New(s.logger)

	return s, nil
}

// Port reports the bound listening port.
func (s *WebServer) Port() int {
	return s.listener.Port()
}

// Run blocks until Stop or a signal, dispatching connections. It tears the
// server down before returning.
func (s *WebServer) Run() error {
	s.logger.Info("listening",
		zap.Int("port", s.listener.Port()),
		zap.String("root", s.contentRoot),
		zap.Bool("tls", s.cfg.CertDir != ""),
		zap.Int("workers", s.cfg.Workers))

	if err := s.reactor.Register(s.listener.Fd(), api.Read, s.acceptReady); err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		defer close(s.quit)
		return s.reactor.Run()
	})
	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sig)
		select {
		case received := <-sig:
			s.logger.Info("signal received", zap.String("signal", received.String()))
			s.reactor.Stop()
		case <-s.quit:
		}
		return nil
	})
	err := g.Wait()

	s.teardown()
	return err
}

// Stop initiates a graceful shutdown: the reactor drains, then the job
// queue, then the registry is emptied.
func (s *WebServer) Stop() {
	s.reactor.Stop()
}

// Stats implements api.Control.
func (s *WebServer) Stats() map[string]int64 {
	return map[string]int64{
		"accepted":      s.accepted.Load(),
		"removed":       s.removed.Load(),
		"active":        int64(s.registry.Len()),
		"jobs_executed": s.jobs.Executed(),
	}
}

func (s *WebServer) teardown() {
	s.jobs.Shutdown()
	s.registry.Drain()
	s.listener.Close()
	s.logger.Info("stopped", zap.Any("stats", s.Stats()))
}

// acceptReady runs on the reactor thread when the listening fd is readable:
// O(1), submit and return.
func (s *WebServer) acceptReady(int) {
	if err := s.jobs.Submit(s.acceptConnection); err != nil {
		s.logger.Debug("accept dropped, queue closed")
	}
}

// acceptConnection runs on a worker: it takes one pending connection,
// installs it in the registry with a fresh coroutine, arms read interest on
// its fd and re-arms the listening fd.
func (s *WebServer) acceptConnection() {
	conn, err := s.listener.Accept()
	if err != nil {
		if errors.Is(err, transport.ErrNoPendingConn) {
			s.restoreListener()
			return
		}
		// The listening socket goes away during shutdown; anything else is
		// worth logging before waiting for the next readiness.
		s.logger.Warn("accept failed", zap.Error(err))
		s.restoreListener()
		return
	}

	fd := conn.Fd()
	stream := s.listener.NewStream(conn, s.cfg.ReadBufferSize, s.cfg.WriteBufferSize)

	c := registry.NewConnection(fd, stream)
	c.Work = concurrency.NewCoroutine(fd, s.connectionBody(c, stream))
	c.Release = func() { conn.Release() }
	c.SetPhase(registry.Accepting)
	s.registry.Insert(c)
	s.accepted.Add(1)

	if err := s.reactor.Register(fd, api.Read, s.connectionReady); err != nil {
		s.logger.Warn("register failed", zap.Int("fd", fd), zap.Error(err))
		s.registry.Remove(fd)
	}

	s.restoreListener()
	s.logger.Debug("connection accepted", zap.Int("fd", fd))
}

func (s *WebServer) restoreListener() {
	if err := s.reactor.Restore(s.listener.Fd(), api.Read); err != nil {
		s.logger.Debug("listener restore failed", zap.Error(err))
	}
}

// connectionBody is the coroutine: blocking-style HTTP code whose stream
// suspends with (direction, fd) whenever the socket would block.
func (s *WebServer) connectionBody(c *registry.Connection, stream api.Stream) concurrency.Body {
	fd := c.Fd
	return func(y *concurrency.Yield) {
		stream.SetReadYield(func() bool {
			c.SetPhase(registry.SuspendedRead)
			y.Do(api.YieldAction{State: api.RestoreRead, Fd: fd})
			c.SetPhase(registry.Running)
			return true
		})
		stream.SetWriteYield(func() bool {
			c.SetPhase(registry.SuspendedWrite)
			y.Do(api.YieldAction{State: api.RestoreWrite, Fd: fd})
			c.SetPhase(registry.Running)
			return true
		})

		c.SetPhase(registry.Running)
		protocol.Serve(stream, s.contentRoot, s.logger.Named("Http"))
		y.Do(api.YieldAction{State: api.Remove, Fd: fd})
	}
}

// connectionReady runs on the reactor thread when a connection fd fires.
func (s *WebServer) connectionReady(fd int) {
	if err := s.jobs.Submit(func() { s.resumeConnection(fd) }); err != nil {
		s.logger.Debug("resume dropped, queue closed", zap.Int("fd", fd))
	}
}

// resumeConnection runs on a worker: it resumes the coroutine and
// translates the yielded action into a re-arm or a deferred removal.
func (s *WebServer) resumeConnection(fd int) {
	c, ok := s.registry.Reference(fd)
	if !ok {
		return
	}

	action := c.Work.Resume()
	switch action.State {
	case api.RestoreRead:
		if err := s.reactor.Restore(fd, api.Read); err != nil {
			s.logger.Warn("restore read failed", zap.Int("fd", fd), zap.Error(err))
		}
	case api.RestoreWrite:
		if err := s.reactor.Restore(fd, api.Write); err != nil {
			s.logger.Warn("restore write failed", zap.Int("fd", fd), zap.Error(err))
		}
	case api.Remove:
		// The coroutine must not destroy itself: the erase runs on the
		// reactor thread once this resume cycle is over. No interest is
		// armed anymore, so nothing can fire in between.
		c.SetPhase(registry.Closing)
		s.reactor.Defer(func() {
			s.reactor.Unregister(fd)
			s.registry.Remove(fd)
			s.removed.Add(1)
		})
		s.logger.Debug("connection finished", zap.Int("fd", fd))
	}
}

func canonicalRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", errors.Wrapf(err, "resolve document root %s", root)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.Wrapf(err, "resolve document root %s", root)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", errors.Wrapf(err, "stat document root %s", root)
	}
	if !info.IsDir() {
		return "", errors.Errorf("document root %s is not a directory", root)
	}
	return resolved, nil
}

var _ api.Control = (*WebServer)(nil)

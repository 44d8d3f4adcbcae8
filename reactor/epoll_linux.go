//go:build linux

// File: reactor/epoll_linux.go
// Package reactor - Linux epoll implementation with one-shot interests.
// License: Apache-2.0

package reactor

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/nisseweb/nisse/api"
)

const maxEvents = 128

// registration tracks the handler and arm state for one fd. At most one
// direction is armed at any instant.
type registration struct {
	handler api.Handler
	dir     api.Direction
	armed   bool
}

type epollReactor struct {
	epfd   int
	wakeFd int
	logger *zap.Logger

	mu       sync.Mutex
	regs     map[int]*registration
	deferred *queue.Queue
	stopped  bool
	closed   bool
}

func newReactor(logger *zap.Logger) (api.Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll_create1")
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, errors.Wrap(err, "eventfd")
	}

	// The wake fd is the only persistent (non one-shot) interest; it breaks
	// EpollWait for Stop and Defer.
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		unix.Close(wakeFd)
		unix.Close(epfd)
		return nil, errors.Wrap(err, "epoll_ctl add wake fd")
	}

	return &epollReactor{
		epfd:     epfd,
		wakeFd:   wakeFd,
		logger:   logger.Named("Reactor"),
		regs:     make(map[int]*registration),
		deferred: queue.New(),
	}, nil
}

func dirEvents(dir api.Direction) uint32 {
	if dir == api.Write {
		return unix.EPOLLOUT | unix.EPOLLONESHOT
	}
	return unix.EPOLLIN | unix.EPOLLONESHOT
}

func (r *epollReactor) Register(fd int, dir api.Direction, h api.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	op := unix.EPOLL_CTL_ADD
	if reg, ok := r.regs[fd]; ok {
		if reg.armed && reg.dir == dir {
			return api.ErrAlreadyArmed
		}
		op = unix.EPOLL_CTL_MOD
	}

	ev := unix.EpollEvent{Events: dirEvents(dir), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, op, fd, &ev); err != nil {
		return errors.Wrapf(err, "epoll_ctl arm fd %d", fd)
	}
	r.regs[fd] = &registration{handler: h, dir: dir, armed: true}
	return nil
}

func (r *epollReactor) Restore(fd int, dir api.Direction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.regs[fd]
	if !ok {
		return api.ErrNotRegistered
	}
	if reg.armed && reg.dir == dir {
		return nil
	}

	ev := unix.EpollEvent{Events: dirEvents(dir), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return errors.Wrapf(err, "epoll_ctl restore fd %d", fd)
	}
	reg.dir = dir
	reg.armed = true
	return nil
}

func (r *epollReactor) Unregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.regs[fd]; !ok {
		return nil
	}
	delete(r.regs, fd)
	// The fd may already be closed, which removed it from the set for us.
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.ENOENT && err != unix.EBADF {
		return errors.Wrapf(err, "epoll_ctl del fd %d", fd)
	}
	return nil
}

func (r *epollReactor) Defer(fn func()) {
	r.mu.Lock()
	r.deferred.Add(fn)
	r.mu.Unlock()
	r.wake()
}

func (r *epollReactor) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.wake()
}

func (r *epollReactor) wake() {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}
	var one = [8]byte{1}
	if _, err := unix.Write(r.wakeFd, one[:]); err != nil && err != unix.EAGAIN {
		r.logger.Warn("wake write failed", zap.Error(err))
	}
}

// Run is the reactor thread: it dispatches ready fds, consuming each one-shot
// arm before invoking its handler, and drains the deferred queue between
// dispatch cycles.
func (r *epollReactor) Run() error {
	defer r.close()

	events := make([]unix.EpollEvent, maxEvents)
	for {
		r.runDeferred()

		r.mu.Lock()
		stopped := r.stopped
		r.mu.Unlock()
		if stopped {
			r.runDeferred()
			return nil
		}

		n, err := unix.EpollWait(r.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrapf(api.ErrReactorFault, "epoll_wait: %v", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == r.wakeFd {
				r.drainWake()
				continue
			}
			r.dispatch(fd)
		}
	}
}

// dispatch consumes the arm and invokes the handler on the reactor thread.
// A fired event whose registration is gone or disarmed is stale and dropped.
func (r *epollReactor) dispatch(fd int) {
	r.mu.Lock()
	reg, ok := r.regs[fd]
	if !ok || !reg.armed {
		r.mu.Unlock()
		return
	}
	reg.armed = false
	h := reg.handler
	r.mu.Unlock()

	h(fd)
}

func (r *epollReactor) runDeferred() {
	for {
		r.mu.Lock()
		if r.deferred.Length() == 0 {
			r.mu.Unlock()
			return
		}
		fn := r.deferred.Remove().(func())
		r.mu.Unlock()

		fn()
	}
}

func (r *epollReactor) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(r.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

func (r *epollReactor) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	unix.Close(r.wakeFd)
	unix.Close(r.epfd)
}

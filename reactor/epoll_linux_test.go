//go:build linux

package reactor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/nisseweb/nisse/api"
	"github.com/nisseweb/nisse/reactor"
)

func startReactor(t *testing.T) (api.Reactor, chan error) {
	t.Helper()
	r, err := reactor.New(zap.NewNop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Run() }()
	return r, done
}

func stopReactor(t *testing.T, r api.Reactor, done chan error) {
	t.Helper()
	r.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reactor did not stop")
	}
}

func pipePair(t *testing.T) (int, int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	return fds[0], fds[1]
}

func TestReactorDispatchesOncePerArm(t *testing.T) {
	r, done := startReactor(t)
	rd, wr := pipePair(t)
	defer unix.Close(rd)
	defer unix.Close(wr)

	fired := make(chan int, 8)
	require.NoError(t, r.Register(rd, api.Read, func(fd int) { fired <- fd }))

	_, err := unix.Write(wr, []byte("x"))
	require.NoError(t, err)

	select {
	case fd := <-fired:
		assert.Equal(t, rd, fd)
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not fire")
	}

	// One-shot: more data without a re-arm must not fire again.
	_, err = unix.Write(wr, []byte("y"))
	require.NoError(t, err)
	select {
	case <-fired:
		t.Fatal("handler fired twice for one arm")
	case <-time.After(100 * time.Millisecond):
	}

	// Re-arm: pending readable data fires immediately.
	require.NoError(t, r.Restore(rd, api.Read))
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not fire after restore")
	}

	stopReactor(t, r, done)
}

func TestReactorRestoreUnknownFd(t *testing.T) {
	r, done := startReactor(t)

	err := r.Restore(12345, api.Read)
	assert.ErrorIs(t, err, api.ErrNotRegistered)

	stopReactor(t, r, done)
}

func TestReactorRegisterArmedDuplicate(t *testing.T) {
	r, done := startReactor(t)
	rd, wr := pipePair(t)
	defer unix.Close(rd)
	defer unix.Close(wr)

	require.NoError(t, r.Register(rd, api.Read, func(int) {}))
	err := r.Register(rd, api.Read, func(int) {})
	assert.ErrorIs(t, err, api.ErrAlreadyArmed)

	stopReactor(t, r, done)
}

func TestReactorRestoreIdempotentWhileArmed(t *testing.T) {
	r, done := startReactor(t)
	rd, wr := pipePair(t)
	defer unix.Close(rd)
	defer unix.Close(wr)

	require.NoError(t, r.Register(rd, api.Read, func(int) {}))
	assert.NoError(t, r.Restore(rd, api.Read))
	assert.NoError(t, r.Restore(rd, api.Read))

	stopReactor(t, r, done)
}

func TestReactorWriteInterest(t *testing.T) {
	r, done := startReactor(t)
	rd, wr := pipePair(t)
	defer unix.Close(rd)
	defer unix.Close(wr)

	fired := make(chan struct{}, 1)
	// An empty pipe is immediately writable.
	require.NoError(t, r.Register(wr, api.Write, func(int) { fired <- struct{}{} }))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("write readiness did not fire")
	}

	stopReactor(t, r, done)
}

func TestReactorDeferRunsOnReactorThread(t *testing.T) {
	r, done := startReactor(t)

	ran := make(chan struct{})
	r.Defer(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("deferred task did not run")
	}

	stopReactor(t, r, done)
}

func TestReactorDeferredOrderIsFIFO(t *testing.T) {
	r, done := startReactor(t)

	order := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		r.Defer(func() { order <- i })
	}

	for want := 0; want < 3; want++ {
		select {
		case got := <-order:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatal("deferred task did not run")
		}
	}

	stopReactor(t, r, done)
}

func TestReactorUnregisterStopsDispatch(t *testing.T) {
	r, done := startReactor(t)
	rd, wr := pipePair(t)
	defer unix.Close(rd)
	defer unix.Close(wr)

	fired := make(chan struct{}, 1)
	require.NoError(t, r.Register(rd, api.Read, func(int) { fired <- struct{}{} }))
	require.NoError(t, r.Unregister(rd))

	_, err := unix.Write(wr, []byte("x"))
	require.NoError(t, err)

	select {
	case <-fired:
		t.Fatal("unregistered fd dispatched")
	case <-time.After(100 * time.Millisecond):
	}

	stopReactor(t, r, done)
}

func TestReactorRunsWithNoInterests(t *testing.T) {
	r, done := startReactor(t)
	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("reactor returned early: %v", err)
	default:
	}
	stopReactor(t, r, done)
}

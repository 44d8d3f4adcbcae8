//go:build linux

package transport_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/nisseweb/nisse/transport"
)

// socketPair returns two connected nonblocking stream sockets.
func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	return fds[0], fds[1]
}

func TestConnReadInvokesYieldHookOnWouldBlock(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)

	conn := transport.NewConn(local)
	defer conn.Release()

	hookCalls := 0
	conn.SetReadYield(func() bool {
		hookCalls++
		// Simulate readiness arriving while suspended.
		_, err := unix.Write(peer, []byte("data"))
		require.NoError(t, err)
		return true
	})

	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "data", string(buf[:n]))
	assert.Equal(t, 1, hookCalls)
}

func TestConnReadWithoutHookReturnsError(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)

	conn := transport.NewConn(local)
	defer conn.Release()

	_, err := conn.Read(make([]byte, 16))
	assert.Error(t, err)
}

func TestConnReadEOF(t *testing.T) {
	local, peer := socketPair(t)

	conn := transport.NewConn(local)
	defer conn.Release()

	require.NoError(t, unix.Close(peer))
	_, err := conn.Read(make([]byte, 16))
	assert.Equal(t, io.EOF, err)
	assert.True(t, conn.Closed())
}

func TestConnWriteHookRetriesUntilDrained(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)

	// Shrink the send buffer so a large write hits EAGAIN.
	require.NoError(t, unix.SetsockoptInt(local, unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))

	conn := transport.NewConn(local)
	defer conn.Release()

	drained := make([]byte, 0, 1<<20)
	conn.SetWriteYield(func() bool {
		// The peer consumes while we are "suspended".
		chunk := make([]byte, 64*1024)
		for {
			n, err := unix.Read(peer, chunk)
			if n > 0 {
				drained = append(drained, chunk[:n]...)
			}
			if err != nil || n <= 0 {
				return true
			}
		}
	})

	payload := make([]byte, 1<<20)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := conn.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	// Collect whatever is still in flight.
	chunk := make([]byte, 64*1024)
	for {
		n, err := unix.Read(peer, chunk)
		if n > 0 {
			drained = append(drained, chunk[:n]...)
		}
		if err != nil || n <= 0 {
			break
		}
	}
	assert.Equal(t, payload, drained)
}

func TestConnWriteAfterPeerCloseIsSilent(t *testing.T) {
	local, peer := socketPair(t)

	conn := transport.NewConn(local)
	defer conn.Release()

	require.NoError(t, unix.Close(peer))

	// The first write may succeed into the kernel buffer; keep writing
	// until the reset is observed. Every call must report full success.
	payload := []byte("into a closed peer")
	for i := 0; i < 64 && !conn.Closed(); i++ {
		n, err := conn.Write(payload)
		require.NoError(t, err)
		require.Equal(t, len(payload), n)
	}
	assert.True(t, conn.Closed(), "peer reset must latch the closed state")
}

func TestConnCloseThenReleaseIdempotent(t *testing.T) {
	local, peer := socketPair(t)
	defer unix.Close(peer)

	conn := transport.NewConn(local)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.True(t, conn.Closed())

	require.NoError(t, conn.Release())
	require.NoError(t, conn.Release())
}

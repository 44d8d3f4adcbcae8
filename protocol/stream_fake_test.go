package protocol

import (
	"bytes"
	"io"

	"github.com/nisseweb/nisse/api"
)

// fakeStream drives the engine from an in-memory buffer. HasData mirrors
// the latched-failure contract, with "bytes remaining" standing in for the
// open socket.
type fakeStream struct {
	in     bytes.Buffer
	out    bytes.Buffer
	eof    bool
	closed bool
}

func newFakeStream(input string) *fakeStream {
	f := &fakeStream{}
	f.in.WriteString(input)
	return f
}

func (f *fakeStream) GetNextLine() string {
	if f.closed || f.eof {
		return ""
	}
	line, err := f.in.ReadString('\n')
	if err != nil {
		f.eof = true
	}
	return line
}

func (f *fakeStream) Ignore(n int) {
	if f.closed || f.eof || n <= 0 {
		return
	}
	if _, err := io.CopyN(io.Discard, &f.in, int64(n)); err != nil {
		f.eof = true
	}
}

func (f *fakeStream) SendMessage(msg []byte) {
	if f.closed || f.eof {
		return
	}
	f.out.Write(msg)
}

func (f *fakeStream) Sync() {}

func (f *fakeStream) HasData() bool {
	return !f.closed && !f.eof && f.in.Len() > 0
}

func (f *fakeStream) IsOpen() bool { return !f.closed }

func (f *fakeStream) Close() { f.closed = true }

func (f *fakeStream) SetReadYield(api.YieldHook)  {}
func (f *fakeStream) SetWriteYield(api.YieldHook) {}

var _ api.Stream = (*fakeStream)(nil)

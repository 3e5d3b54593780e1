package chat

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport. Inbound chunks are queued with
// feed, every Write shows up as one string on written, and hangup makes the
// next read return io.EOF.
type fakeTransport struct {
	in      chan []byte
	written chan string
	closed  chan struct{}
	pending []byte

	mu            sync.Mutex
	readDeadline  time.Time
	writeDeadline time.Time
	failWrites    bool
	stallWrites   bool
	closeOnce     sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:      make(chan []byte, 16),
		written: make(chan string, 64),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	if len(f.pending) > 0 {
		n := copy(p, f.pending)
		f.pending = f.pending[n:]
		return n, nil
	}

	f.mu.Lock()
	dl := f.readDeadline
	f.mu.Unlock()

	var timeout <-chan time.Time
	if !dl.IsZero() {
		timer := time.NewTimer(time.Until(dl))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case b, ok := <-f.in:
		if !ok {
			return 0, io.EOF
		}
		n := copy(p, b)
		f.pending = b[n:]
		return n, nil
	case <-f.closed:
		return 0, net.ErrClosed
	case <-timeout:
		return 0, os.ErrDeadlineExceeded
	}
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	fail, stall, dl := f.failWrites, f.stallWrites, f.writeDeadline
	f.mu.Unlock()
	if fail {
		return 0, errors.New("broken pipe")
	}
	if stall {
		// A peer that never drains its socket: block until the deadline.
		var timeout <-chan time.Time
		if !dl.IsZero() {
			timer := time.NewTimer(time.Until(dl))
			defer timer.Stop()
			timeout = timer.C
		}
		select {
		case <-f.closed:
			return 0, net.ErrClosed
		case <-timeout:
			return 0, os.ErrDeadlineExceeded
		}
	}
	select {
	case <-f.closed:
		return 0, net.ErrClosed
	default:
	}
	f.written <- string(p)
	return len(p), nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (f *fakeTransport) SetReadDeadline(t time.Time) error {
	f.mu.Lock()
	f.readDeadline = t
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) SetWriteDeadline(t time.Time) error {
	f.mu.Lock()
	f.writeDeadline = t
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) feed(s string) { f.in <- []byte(s) }

func (f *fakeTransport) hangup() { close(f.in) }

func (f *fakeTransport) breakWrites() {
	f.mu.Lock()
	f.failWrites = true
	f.mu.Unlock()
}

func (f *fakeTransport) stall() {
	f.mu.Lock()
	f.stallWrites = true
	f.mu.Unlock()
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func expectWrite(t *testing.T, f *fakeTransport, want string) {
	t.Helper()
	select {
	case got := <-f.written:
		require.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func expectSilence(t *testing.T, f *fakeTransport) {
	t.Helper()
	select {
	case got := <-f.written:
		t.Fatalf("unexpected write %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestRegistry() (*Registry, *Broadcaster) {
	reg := NewRegistry(nil)
	return reg, NewBroadcaster(reg, 4, nil)
}

// activeSession skips the wire handshake: it names the session and registers it.
func activeSession(t *testing.T, reg *Registry, name string) (*Session, *fakeTransport) {
	t.Helper()
	return activeSessionWithConfig(t, reg, name, DefaultConfig())
}

func activeSessionWithConfig(t *testing.T, reg *Registry, name string, cfg Config) (*Session, *fakeTransport) {
	t.Helper()
	f := newFakeTransport()
	s := NewSession(f, cfg)
	s.beginHandshake()
	require.NoError(t, s.SetName(name))
	_, err := reg.Register(s)
	require.NoError(t, err)
	return s, f
}

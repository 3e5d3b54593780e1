package chat

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	readChunkSize = 4096
	// How long ReadNonblocking waits before reporting NoData. A deadline of
	// exactly now makes net.Conn fail before looking at buffered bytes.
	nonblockingWindow = time.Millisecond
)

// Session is one client connection plus its identity and buffers.
//
// mu guards everything except chunk, which only the owning goroutine touches
// (the handshake, then the worker). Reads from the transport happen without mu
// held so that broadcasts from other sessions can write to this one while its
// owner is blocked waiting for input.
type Session struct {
	mu       sync.Mutex
	id       uint64
	name     string
	state    State
	readBuf  []byte
	writeBuf []byte

	conn      Transport
	addr      string
	cfg       Config
	chunk     []byte
	closeOnce sync.Once
}

func NewSession(conn Transport, cfg Config) *Session {
	cfg = cfg.sanitize()
	addr := ""
	if ra := conn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	return &Session{
		state: StateConnecting,
		conn:  conn,
		addr:  addr,
		cfg:   cfg,
		chunk: make([]byte, readChunkSize),
	}
}

func (s *Session) ID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PeerAddr is the remote address captured when the session was created.
func (s *Session) PeerAddr() string {
	return s.addr
}

// SetName assigns the display name. It may be called once, during the
// handshake.
func (s *Session) SetName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateHandshaking {
		return ErrNotHandshaking
	}
	if s.name != "" {
		return ErrNameAlreadySet
	}
	s.name = name
	return nil
}

func (s *Session) FillWriteBuffer(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fillLocked(p)
}

func (s *Session) FlushWriteBuffer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// Send queues p and flushes it in one critical section, so concurrent senders
// never interleave partial frames.
func (s *Session) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if err := s.fillLocked(p); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *Session) ClearWriteBuffer() {
	s.mu.Lock()
	s.writeBuf = s.writeBuf[:0]
	s.mu.Unlock()
}

func (s *Session) ClearReadBuffer() {
	s.mu.Lock()
	s.readBuf = s.readBuf[:0]
	s.mu.Unlock()
}

func (s *Session) fillLocked(p []byte) error {
	if len(s.writeBuf)+len(p) > s.cfg.MaxWriteBuffer {
		return ErrWriteBufferFull
	}
	s.writeBuf = append(s.writeBuf, p...)
	return nil
}

func (s *Session) flushLocked() error {
	if len(s.writeBuf) == 0 {
		return nil
	}
	err := writeFull(s.conn, s.writeBuf, s.cfg.WriteTimeout)
	s.writeBuf = s.writeBuf[:0]
	if err != nil {
		s.state = StateClosed
		s.closeTransport()
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// ReadBlocking waits for input and appends it to the read buffer. It returns
// the number of bytes read; 0 means the peer is gone and err says why.
func (s *Session) ReadBlocking() (int, error) {
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return 0, &TransportError{Op: "read", Err: err}
	}
	return s.read()
}

// ReadNonblocking is ReadBlocking without the wait: when nothing is pending it
// returns NoData and a nil error.
func (s *Session) ReadNonblocking() (int, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(nonblockingWindow)); err != nil {
		return 0, &TransportError{Op: "read", Err: err}
	}
	n, err := s.read()
	if n == 0 && errors.Is(err, os.ErrDeadlineExceeded) {
		return NoData, nil
	}
	return n, err
}

func (s *Session) read() (int, error) {
	n, err := s.conn.Read(s.chunk)
	if n > 0 {
		s.mu.Lock()
		s.readBuf = append(s.readBuf, s.chunk[:n]...)
		s.mu.Unlock()
		return n, nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return 0, err
	}
	return 0, &TransportError{Op: "read", Err: err}
}

// NextLine removes the next complete line from the read buffer and returns it
// without its terminator. A partial line longer than MaxLineLength is cut at
// the last rune boundary within the limit so the buffer stays bounded.
func (s *Session) NextLine() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := bytes.IndexByte(s.readBuf, '\n')
	if i < 0 {
		if len(s.readBuf) <= s.cfg.MaxLineLength {
			return "", false
		}
		i = s.cfg.MaxLineLength
		for i > 0 && !utf8.RuneStart(s.readBuf[i]) {
			i--
		}
		if i == 0 {
			i = s.cfg.MaxLineLength
		}
		line := string(s.readBuf[:i])
		s.consumeLocked(i)
		return line, true
	}

	line := string(bytes.TrimRight(s.readBuf[:i], "\r"))
	s.consumeLocked(i + 1)
	return line, true
}

// TakeRemainder empties the read buffer and returns what was left in it, an
// unterminated partial line, without any trailing carriage return.
func (s *Session) TakeRemainder() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rest := string(bytes.TrimRight(s.readBuf, "\r"))
	s.readBuf = s.readBuf[:0]
	return rest
}

func (s *Session) consumeLocked(n int) {
	rest := copy(s.readBuf, s.readBuf[n:])
	s.readBuf = s.readBuf[:rest]
}

func (s *Session) beginHandshake() {
	s.mu.Lock()
	if s.state == StateConnecting {
		s.state = StateHandshaking
	}
	s.mu.Unlock()
}

func (s *Session) activate(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateHandshaking {
		return ErrNotHandshaking
	}
	s.id = id
	s.state = StateActive
	return nil
}

// Close marks the session Closed and closes the transport. Safe to call more
// than once and from any goroutine; a blocked read or write returns promptly.
func (s *Session) Close() error {
	err := s.closeTransport()
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	return err
}

func (s *Session) closeTransport() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

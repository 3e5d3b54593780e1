package chat

import (
	"io"
	"net"
	"time"
)

// Transport is the socket a Session owns. net.Conn satisfies it.
type Transport interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

type State int

const (
	StateConnecting State = iota
	StateHandshaking
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// NoData is returned by ReadNonblocking when nothing was available. It is
// distinct from 0, which means the peer went away.
const NoData = -1

// Wire protocol.
const (
	GreetingPrompt    = "Welcome to the server, what will your username be? "
	InvalidNamePrompt = "That is not a valid username. What will your username be? "
	NameAccepted      = "Username is valid, joining session\n"
)

var (
	ErrInvalidName     = errorString("invalid_name")
	ErrNotHandshaking  = errorString("session_not_handshaking")
	ErrNameAlreadySet  = errorString("name_already_set")
	ErrWriteBufferFull = errorString("write_buffer_full")
	ErrSessionClosed   = errorString("session_closed")
)

type errorString string

func (e errorString) Error() string { return string(e) }

// TransportError wraps a failed read or write on the underlying socket.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

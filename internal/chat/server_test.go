package chat

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	srv := NewServer(cfg, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readExactly reads len(want) bytes and compares them; prompts have no
// trailing newline so line-based reading does not work here.
func readExactly(t *testing.T, conn net.Conn, want string) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, len(want))
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, want, string(buf))
}

func send(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	_, err := io.WriteString(conn, line)
	require.NoError(t, err)
}

func TestServer_EndToEnd(t *testing.T) {
	srv := startTestServer(t)

	alice := dial(t, srv)
	readExactly(t, alice, GreetingPrompt)
	send(t, alice, "alice\n")
	readExactly(t, alice, NameAccepted)
	require.Eventually(t, func() bool { return srv.Registry().Len() == 1 }, time.Second, 10*time.Millisecond)

	bob := dial(t, srv)
	readExactly(t, bob, GreetingPrompt)
	send(t, bob, "bob\n")
	readExactly(t, bob, InvalidNamePrompt)
	send(t, bob, "bobby\n")
	readExactly(t, bob, NameAccepted)
	readExactly(t, alice, "bobby has joined\n")

	send(t, bob, "hi alice\r\n")
	readExactly(t, alice, "bobby: hi alice\n")

	send(t, alice, "hi bobby\n")
	readExactly(t, bob, "alice: hi bobby\n")

	require.NoError(t, bob.Close())
	readExactly(t, alice, "bobby has left\n")
	require.Eventually(t, func() bool { return srv.Registry().Len() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"alice"}, srv.Registry().Names())
}

func TestServer_DisconnectDuringHandshake(t *testing.T) {
	srv := startTestServer(t)

	conn := dial(t, srv)
	readExactly(t, conn, GreetingPrompt)
	require.NoError(t, conn.Close())

	// Give the handler a moment; nothing should ever be registered.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, srv.Registry().Len())
}

func TestServer_StopClosesSessions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	srv := NewServer(cfg, nil)
	require.NoError(t, srv.Start())

	conn := dial(t, srv)
	readExactly(t, conn, GreetingPrompt)
	send(t, conn, "carol\n")
	readExactly(t, conn, NameAccepted)
	require.Eventually(t, func() bool { return srv.Registry().Len() == 1 }, time.Second, 10*time.Millisecond)

	srv.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	require.Eventually(t, func() bool { return srv.Registry().Len() == 0 }, time.Second, 10*time.Millisecond)
}

package chat

import (
	"io"
	"time"
)

// writeFull writes all of p under a deadline so a stalled peer cannot hold
// the session lock for longer than timeout.
func writeFull(conn Transport, p []byte, timeout time.Duration) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	for len(p) > 0 {
		n, err := conn.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

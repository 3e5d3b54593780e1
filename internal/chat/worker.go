package chat

// RunWorker is the read loop for one registered session. Each complete line
// is broadcast as "<name>: <line>" to everyone else. When the read fails for
// any reason the session is removed, its departure is announced and the
// session is closed. It returns the error that ended the loop.
func RunWorker(s *Session, reg *Registry, b *Broadcaster) error {
	id, name := s.ID(), s.Name()
	prefix := name + ": "

	for {
		// Lines that arrived together with the name are drained before the
		// first read.
		for {
			line, ok := s.NextLine()
			if !ok {
				break
			}
			if line == "" {
				continue
			}
			MessagesTotal.WithLabelValues("chat").Inc()
			b.Broadcast([]byte(prefix+line+"\n"), id)
		}
		s.ClearWriteBuffer()

		if n, err := s.ReadBlocking(); n == 0 {
			// A last line the peer never terminated still counts as input.
			if rest := s.TakeRemainder(); rest != "" {
				MessagesTotal.WithLabelValues("chat").Inc()
				b.Broadcast([]byte(prefix+rest+"\n"), id)
			}
			reg.Remove(id)
			MessagesTotal.WithLabelValues("leave").Inc()
			b.Broadcast([]byte(name+" has left\n"), id)
			_ = s.Close()
			return err
		}
	}
}

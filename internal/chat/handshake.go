package chat

import (
	"strings"
	"unicode/utf8"
)

// Names must be strictly longer than minNameLen and strictly shorter than
// maxNameLen characters once trimmed.
const (
	minNameLen = 4
	maxNameLen = 25
)

func validateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n <= minNameLen || n >= maxNameLen {
		return "", ErrInvalidName
	}
	return name, nil
}

// Handshake prompts for a display name until a valid one arrives, then
// registers the session and announces it to everyone else. If the client
// disconnects first the session is closed, never registered, and the read
// error is returned.
func Handshake(s *Session, reg *Registry, b *Broadcaster) error {
	s.beginHandshake()
	if err := s.Send([]byte(GreetingPrompt)); err != nil {
		_ = s.Close()
		return err
	}

	for {
		line, ok := s.NextLine()
		if !ok {
			if n, err := s.ReadBlocking(); n == 0 {
				_ = s.Close()
				return err
			}
			continue
		}

		name, err := validateName(line)
		if err != nil {
			reg.logger.Debug("rejected name", "addr", s.PeerAddr(), "length", utf8.RuneCountInString(strings.TrimSpace(line)))
			if err := s.Send([]byte(InvalidNamePrompt)); err != nil {
				_ = s.Close()
				return err
			}
			continue
		}

		if err := s.Send([]byte(NameAccepted)); err != nil {
			_ = s.Close()
			return err
		}
		if err := s.SetName(name); err != nil {
			_ = s.Close()
			return err
		}
		id, err := reg.Register(s)
		if err != nil {
			_ = s.Close()
			return err
		}

		MessagesTotal.WithLabelValues("join").Inc()
		b.Broadcast([]byte(name+" has joined\n"), id)
		return nil
	}
}

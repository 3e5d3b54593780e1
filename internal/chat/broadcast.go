package chat

import (
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Broadcaster fans a message out to every registered session but its origin.
type Broadcaster struct {
	reg    *Registry
	limit  int
	logger *slog.Logger
}

func NewBroadcaster(reg *Registry, concurrency int, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = defaultBroadcastConcurrency
	}
	return &Broadcaster{reg: reg, limit: concurrency, logger: logger}
}

// Broadcast delivers msg verbatim to every Active session except origin, at
// most once each and without retries. Each destination is written from its
// own goroutine; a destination whose write fails is closed and left for its
// worker to reap while the others still get the message. A message that does
// not fit a destination's write buffer is dropped for that destination only.
// Broadcast returns once every delivery has finished, which keeps messages
// from one origin in order at each destination.
func (b *Broadcaster) Broadcast(msg []byte, origin uint64) {
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(b.limit)
	b.reg.ForEachExcept(origin, func(s *Session) {
		g.Go(func() error {
			b.deliver(s, msg)
			return nil
		})
	})
	_ = g.Wait()

	BroadcastDuration.Observe(time.Since(start).Seconds())
}

func (b *Broadcaster) deliver(s *Session, msg []byte) {
	err := s.Send(msg)
	switch {
	case err == nil:
	case errors.Is(err, ErrSessionClosed):
		// Closed after the registry walk; its worker is already on the way out.
	case errors.Is(err, ErrWriteBufferFull):
		b.logger.Warn("message dropped", "id", s.ID(), "addr", s.PeerAddr(), "size", len(msg))
	default:
		DeliveryFailures.Inc()
		b.logger.Warn("delivery failed", "id", s.ID(), "addr", s.PeerAddr(), "error", err)
		_ = s.Close()
	}
}

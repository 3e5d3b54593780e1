package chat

import (
	"errors"
	"io"
	"log/slog"
	"net"
)

type Server struct {
	cfg      Config
	logger   *slog.Logger
	reg      *Registry
	bc       *Broadcaster
	listener net.Listener
}

func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.sanitize()
	reg := NewRegistry(logger)
	return &Server{
		cfg:    cfg,
		logger: logger,
		reg:    reg,
		bc:     NewBroadcaster(reg, cfg.BroadcastConcurrency, logger),
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go s.acceptLoop(ln)

	s.logger.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Registry() *Registry {
	return s.reg
}

// Stop closes the listener and every registered session. In-flight
// handshakes end when their client goes away.
func (s *Server) Stop() {
	s.logger.Info("shutting down")

	if s.listener != nil {
		s.listener.Close()
	}
	s.reg.CloseAll()

	s.logger.Info("shutdown complete")
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.logger.Info("client connected", "addr", conn.RemoteAddr().String())

		go s.HandleSession(NewSession(conn, s.cfg))
	}
}

// HandleSession runs the handshake and then the worker for one connection.
func (s *Server) HandleSession(sess *Session) {
	if err := Handshake(sess, s.reg, s.bc); err != nil {
		s.logger.Info("handshake aborted", "addr", sess.PeerAddr(), "error", err)
		return
	}

	err := RunWorker(sess, s.reg, s.bc)
	if err != nil && !errors.Is(err, io.EOF) {
		s.logger.Info("client disconnected", "id", sess.ID(), "name", sess.Name(), "error", err)
		return
	}
	s.logger.Info("client disconnected", "id", sess.ID(), "name", sess.Name())
}

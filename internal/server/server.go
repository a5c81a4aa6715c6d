// Package server accepts framed TCP and WebSocket clients on one port and
// hands each connection to a chat hub.
package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/omochice/framed-duplex/internal/chat"
	"github.com/omochice/framed-duplex/internal/transport/tcp"
	"github.com/omochice/framed-duplex/internal/transport/ws"
	"github.com/omochice/framed-duplex/pkg/duplex"
)

// WebSocketPath is the only path accepted for WebSocket upgrades.
const WebSocketPath = "/ws"

const detectTimeout = 10 * time.Second

// Server represents a chat server handling both TCP and WebSocket clients
// on a single listener.
type Server struct {
	address  string
	hub      *chat.Hub
	cfg      duplex.Config
	log      zerolog.Logger
	listener net.Listener

	mu      sync.Mutex
	pending map[net.Conn]struct{}

	quit chan struct{}
	wg   sync.WaitGroup
}

// New creates a server listening on address. Accepted connections join hub.
func New(address string, hub *chat.Hub, cfg duplex.Config, logger zerolog.Logger) *Server {
	return &Server{
		address: address,
		hub:     hub,
		cfg:     cfg,
		log:     logger.With().Str("component", "server").Logger(),
		pending: make(map[net.Conn]struct{}),
		quit:    make(chan struct{}),
	}
}

// Start listens and serves until Stop.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	s.log.Info().Str("addr", listener.Addr().String()).Msg("server started (TCP and WebSocket)")
	return nil
}

// Serve accepts connections until Stop. It returns nil after Stop.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Warn().Err(err).Msg("failed to accept connection")
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// Stop stops accepting, drops connections still being detected and releases
// every hub member.
func (s *Server) Stop() {
	s.mu.Lock()
	close(s.quit)
	for conn := range s.pending {
		conn.Close()
	}
	s.mu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()
	s.hub.Close()
	s.log.Info().Msg("server stopped")
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()

	ch, proto, err := s.accept(conn)
	s.untrack(conn)
	if err != nil {
		log.Debug().Err(err).Msg("connection dropped before serving")
		conn.Close()
		return
	}

	select {
	case <-s.quit:
		ch.Close()
		return
	default:
	}

	dc := duplex.New(ch, duplex.Options{Config: s.cfg, Logger: &log})
	s.hub.Serve(dc, conn.RemoteAddr().String())
	log.Debug().Stringer("protocol", proto).Str("conn", dc.ID()).Msg("client connected")
}

// accept detects the protocol and builds the matching channel.
func (s *Server) accept(conn net.Conn) (duplex.Channel, protocolType, error) {
	if err := conn.SetReadDeadline(time.Now().Add(detectTimeout)); err != nil {
		return nil, protocolTCP, err
	}
	proto, bc, err := detectProtocol(conn)
	if err != nil {
		return nil, proto, fmt.Errorf("detect protocol: %w", err)
	}

	var ch duplex.Channel
	switch proto {
	case protocolHTTP:
		sc, err := ws.Upgrade(bc, WebSocketPath)
		if err != nil {
			return nil, proto, err
		}
		ch = sc
	default:
		ch = tcp.Wrap(bc)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, proto, err
	}
	return ch, proto, nil
}

// track records conn until its protocol is known. It reports false once
// Stop has begun.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.quit:
		return false
	default:
	}
	s.pending[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, conn)
}

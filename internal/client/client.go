// Package client implements the chat client over one duplex connection.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/omochice/framed-duplex/internal/transport/tcp"
	"github.com/omochice/framed-duplex/internal/transport/ws"
	"github.com/omochice/framed-duplex/pkg/duplex"
	"github.com/omochice/framed-duplex/pkg/protocol"
)

// Client defines the interface for chat clients.
type Client interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	SendMessage(content string) error
	Join() error
	Leave() error
	Messages() <-chan protocol.Message
}

// Transports accepted by Options.Transport.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

var errNotConnected = errors.New("not connected to server")

// Options configures a Session.
type Options struct {
	// Address is host:port, or a ws:// or wss:// URL for WebSocket.
	Address   string
	Transport string
	Username  string
	Config    duplex.Config
	Logger    zerolog.Logger
}

// Session is a Client speaking framed protocol messages over TCP or
// WebSocket.
type Session struct {
	opts     Options
	messages chan protocol.Message
	done     chan struct{}

	mu     sync.RWMutex
	conn   *duplex.Conn
	cancel context.CancelFunc
}

var _ Client = (*Session)(nil)

// New creates a new Session.
func New(opts Options) *Session {
	opts.Config = opts.Config.WithDefaults()
	if opts.Transport == "" {
		opts.Transport = TransportTCP
	}
	return &Session{
		opts:     opts,
		messages: make(chan protocol.Message, 10),
		done:     make(chan struct{}),
	}
}

// Connect establishes the connection and starts receiving.
func (s *Session) Connect() error {
	ch, err := s.channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := ch.Open(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	logger := s.opts.Logger.With().Str("user", s.opts.Username).Logger()
	conn := duplex.New(ch, duplex.Options{Config: s.opts.Config, Logger: &logger})
	conn.SetDelegate(duplex.DelegateFuncs{
		OnReadClosed: func(*duplex.Conn) {
			logger.Debug().Msg("server closed the stream")
		},
	})

	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.mu.Unlock()

	s.receive(conn)
	return conn.Open()
}

// Disconnect releases the connection. Messages is closed once the pending
// receive has been failed.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn, cancel := s.conn, s.cancel
	s.conn, s.cancel = nil, nil
	s.mu.Unlock()

	if conn == nil {
		return
	}
	close(s.done)
	conn.Release()
	cancel()
}

// IsConnected returns whether the client is connected
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// SendMessage sends a text message to the server
func (s *Session) SendMessage(content string) error {
	return s.send(protocol.Message{
		Type:    protocol.MessageTypeText,
		Sender:  s.opts.Username,
		Content: content,
	})
}

// Join sends a join message to the server
func (s *Session) Join() error {
	return s.send(protocol.Message{Type: protocol.MessageTypeJoin, Sender: s.opts.Username})
}

// Leave sends a leave message to the server
func (s *Session) Leave() error {
	return s.send(protocol.Message{Type: protocol.MessageTypeLeave, Sender: s.opts.Username})
}

// Messages returns the channel for receiving messages. It is closed when the
// server stops sending or the session ends.
func (s *Session) Messages() <-chan protocol.Message {
	return s.messages
}

func (s *Session) send(msg protocol.Message) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return errNotConnected
	}

	data, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := conn.SendWait(context.Background(), data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// receive chains receives until one fails, then closes messages. Handing a
// message to the consumer happens off the connection's executor, and the next
// receive is queued only once the consumer has taken it.
func (s *Session) receive(conn *duplex.Conn) {
	conn.Receive(func(data []byte, err error) {
		if err != nil {
			if !errors.Is(err, duplex.ErrConnectionClosed) && !errors.Is(err, duplex.ErrDeallocated) {
				s.opts.Logger.Warn().Err(err).Msg("error reading from server")
			}
			close(s.messages)
			return
		}

		var msg protocol.Message
		if err := msg.Decode(data); err != nil {
			s.opts.Logger.Warn().Err(err).Msg("failed to decode message")
			s.receive(conn)
			return
		}
		go func() {
			select {
			case s.messages <- msg:
			case <-s.done:
			}
			s.receive(conn)
		}()
	})
}

func (s *Session) channel() (duplex.Channel, error) {
	switch s.opts.Transport {
	case TransportTCP:
		host, portStr, err := net.SplitHostPort(s.opts.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", s.opts.Address, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid port in %q: %w", s.opts.Address, err)
		}
		return tcp.Dial(host, port, s.opts.Config.DialTimeout), nil
	case TransportWebSocket:
		return ws.Dial(WebSocketURL(s.opts.Address), s.opts.Config.DialTimeout), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", s.opts.Transport)
	}
}

// WebSocketURL turns host:port into the server's WebSocket URL. URLs pass
// through unchanged.
func WebSocketURL(address string) string {
	if strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://") {
		return address
	}
	return "ws://" + address + "/ws"
}

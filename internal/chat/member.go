package chat

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omochice/framed-duplex/pkg/duplex"
	"github.com/omochice/framed-duplex/pkg/protocol"
)

// Member is one connection served by a Hub.
type Member struct {
	id         string
	remoteAddr string
	hub        *Hub
	conn       *duplex.Conn
	reg        *duplex.Registration
	log        zerolog.Logger

	mu       sync.RWMutex
	username string
}

func newMember(h *Hub, conn *duplex.Conn, remoteAddr string) *Member {
	id := uuid.NewString()
	return &Member{
		id:         id,
		remoteAddr: remoteAddr,
		hub:        h,
		conn:       conn,
		log: h.log.With().
			Str("member", id).
			Str("conn", conn.ID()).
			Logger(),
	}
}

// ID returns the member's hub identifier.
func (m *Member) ID() string {
	return m.id
}

// Username returns the name from the member's join message, if any.
func (m *Member) Username() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.username
}

// ReadClosed removes the member once its peer stops sending. Queued
// broadcasts still go out before the write side closes.
func (m *Member) ReadClosed(*duplex.Conn) {
	m.leave()
	m.conn.CloseWrite()
}

// WriteClosed implements duplex.Delegate.
func (m *Member) WriteClosed(*duplex.Conn) {}

// receive keeps one receive pending for as long as the read side is open.
func (m *Member) receive() {
	m.conn.Receive(func(data []byte, err error) {
		if err != nil {
			m.log.Debug().Err(err).Msg("receive ended")
			return
		}
		m.handle(data)
		m.receive()
	})
}

func (m *Member) handle(data []byte) {
	var msg protocol.Message
	if err := msg.Decode(data); err != nil {
		m.log.Warn().Err(err).Msg("failed to decode message")
		return
	}

	switch msg.Type {
	case protocol.MessageTypeJoin:
		m.mu.Lock()
		m.username = msg.Sender
		m.mu.Unlock()
		m.log.Info().Str("user", msg.Sender).Msg("user joined")
		m.hub.Broadcast(data, m)
	case protocol.MessageTypeLeave:
		m.log.Info().Str("user", msg.Sender).Msg("user left")
		m.hub.Broadcast(data, m)
		m.conn.CloseRead()
	case protocol.MessageTypeText:
		m.log.Debug().Str("user", msg.Sender).Int("bytes", len(msg.Content)).Msg("message")
		m.hub.Broadcast(data, m)
	}
}

func (m *Member) send(data []byte) {
	m.conn.Send(data, func(err error) {
		if err != nil {
			m.log.Debug().Err(err).Msg("broadcast dropped")
		}
	})
}

func (m *Member) leave() {
	if m.hub.unregister(m) {
		m.log.Debug().Str("user", m.Username()).Msg("member left hub")
	}
}

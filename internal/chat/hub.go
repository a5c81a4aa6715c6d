// Package chat provides the chat domain shared by every transport. Members
// are duplex connections; the hub relays their messages to each other.
package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/omochice/framed-duplex/pkg/duplex"
)

// Hub manages all connected members and handles broadcast.
// TCP and WebSocket members share a single Hub.
type Hub struct {
	members map[string]*Member
	mu      sync.RWMutex
	log     zerolog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		members: make(map[string]*Member),
		log:     logger.With().Str("component", "hub").Logger(),
	}
}

// Serve adds conn to the hub and opens it. conn must not be opened yet. The
// member leaves when its peer stops sending or the connection fails.
func (h *Hub) Serve(conn *duplex.Conn, remoteAddr string) *Member {
	m := newMember(h, conn, remoteAddr)
	m.reg = conn.SetDelegate(m)
	h.register(m)
	m.receive()
	if err := conn.Open(); err != nil {
		h.log.Error().Err(err).Str("member", m.id).Msg("open member connection")
	}
	return m
}

// Broadcast queues data on every member except from. from may be nil.
func (h *Hub) Broadcast(data []byte, from *Member) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, m := range h.members {
		if m != from {
			m.send(data)
		}
	}
}

// ClientCount returns number of connected members.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// Usernames returns the names members joined with. Members that have not
// joined yet are left out.
func (h *Hub) Usernames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.members))
	for _, m := range h.members {
		if name := m.Username(); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Close releases every member connection.
func (h *Hub) Close() {
	h.mu.Lock()
	members := h.members
	h.members = make(map[string]*Member)
	h.mu.Unlock()

	for _, m := range members {
		m.reg.Revoke()
		m.conn.Release()
	}
}

func (h *Hub) register(m *Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.members[m.id] = m
	h.log.Debug().Str("member", m.id).Str("remote", m.remoteAddr).Msg("member registered")
}

func (h *Hub) unregister(m *Member) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.members[m.id]; !ok {
		return false
	}
	delete(h.members, m.id)
	h.log.Debug().Str("member", m.id).Msg("member unregistered")
	return true
}

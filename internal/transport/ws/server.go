// Package ws carries a duplex byte stream over WebSocket binary messages.
// Message boundaries on the WebSocket side carry no meaning; framing is done
// by the duplex connection above.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ServerChannel is the server end of a WebSocket connection upgraded with
// gobwas/ws.
type ServerChannel struct {
	conn net.Conn

	readBuffer    []byte
	readBufferPos int
	readMu        sync.Mutex

	writeMu     sync.Mutex
	writeClosed bool
}

// Upgrade performs the WebSocket handshake on conn and returns the server
// channel. conn must not have been read past the start of the HTTP request.
// A non-empty path rejects requests for any other URI with 404.
func Upgrade(conn net.Conn, path string) (*ServerChannel, error) {
	u := ws.Upgrader{}
	if path != "" {
		u.OnRequest = func(uri []byte) error {
			if string(uri) != path {
				return ws.RejectConnectionError(ws.RejectionStatus(http.StatusNotFound))
			}
			return nil
		}
	}
	if _, err := u.Upgrade(conn); err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return &ServerChannel{conn: conn}, nil
}

// Open is a no-op; the handshake already happened in Upgrade.
func (c *ServerChannel) Open(context.Context) error {
	return nil
}

// Read returns bytes of the next client binary message, buffering what does
// not fit in p. A client close frame reads as io.EOF.
func (c *ServerChannel) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.readBufferPos < len(c.readBuffer) {
		n := copy(p, c.readBuffer[c.readBufferPos:])
		c.readBufferPos += n
		if c.readBufferPos >= len(c.readBuffer) {
			c.readBuffer = nil
			c.readBufferPos = 0
		}
		return n, nil
	}

	data, err := wsutil.ReadClientBinary(c.conn)
	if err != nil {
		var closed wsutil.ClosedError
		if errors.As(err, &closed) {
			return 0, io.EOF
		}
		return 0, err
	}

	n := copy(p, data)
	if n < len(data) {
		c.readBuffer = data[n:]
		c.readBufferPos = 0
	}
	return n, nil
}

// Write sends p as one binary message.
func (c *ServerChannel) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeClosed {
		return 0, net.ErrClosed
	}
	if err := wsutil.WriteServerBinary(c.conn, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// CloseRead unblocks a pending Read by expiring the read deadline. WebSocket
// has no read-side shutdown to send to the peer.
func (c *ServerChannel) CloseRead() error {
	return c.conn.SetReadDeadline(time.Now())
}

// CloseWrite sends a close frame; the client reads it as end of stream.
func (c *ServerChannel) CloseWrite() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeClosed {
		return nil
	}
	c.writeClosed = true
	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	return wsutil.WriteServerMessage(c.conn, ws.OpClose, body)
}

// Close sends a close frame if needed and closes the connection.
func (c *ServerChannel) Close() error {
	_ = c.CloseWrite()
	return c.conn.Close()
}

// RemoteAddr returns the client address.
func (c *ServerChannel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

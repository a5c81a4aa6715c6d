package ws

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

var errNotConnected = errors.New("ws: not connected")

// ClientChannel dials a WebSocket URL with nhooyr.io/websocket and exposes
// the binary message stream as bytes.
//
// The library has no half close. Reads go through a pump goroutine so that
// CloseRead can unblock a waiting Read while writes carry on, and the
// connection itself closes once both halves are closed.
type ClientChannel struct {
	url     string
	timeout time.Duration

	chunks   chan chunk
	readDone chan struct{}
	pumpOnce sync.Once
	pending  []byte
	readErr  error

	mu          sync.Mutex
	conn        net.Conn
	readClosed  bool
	writeClosed bool
	closed      bool
}

type chunk struct {
	data []byte
	err  error
}

const clientReadSize = 32 * 1024

// Dial returns a channel connecting to url (ws:// or wss://) on Open. A zero
// timeout leaves the handshake bounded only by the Open context.
func Dial(url string, timeout time.Duration) *ClientChannel {
	return &ClientChannel{
		url:      url,
		timeout:  timeout,
		chunks:   make(chan chunk),
		readDone: make(chan struct{}),
	}
}

// Open performs the handshake unless it already happened. The connection
// lives until ctx is done or the channel is closed.
func (c *ClientChannel) Open(ctx context.Context) error {
	if c.current() != nil {
		return nil
	}

	dialCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	wsConn, _, err := websocket.Dial(dialCtx, c.url, nil)
	if err != nil {
		return err
	}
	conn := websocket.NetConn(ctx, wsConn, websocket.MessageBinary)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return net.ErrClosed
	}
	c.conn = conn
	return nil
}

// Read returns bytes from the current message. Only one Read may run at a
// time.
func (c *ClientChannel) Read(p []byte) (int, error) {
	select {
	case <-c.readDone:
		return 0, net.ErrClosed
	default:
	}
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	if c.readErr != nil {
		return 0, c.readErr
	}

	conn := c.current()
	if conn == nil {
		return 0, errNotConnected
	}
	c.pumpOnce.Do(func() { go c.pump(conn) })

	select {
	case ck := <-c.chunks:
		n := copy(p, ck.data)
		c.pending = ck.data[n:]
		if ck.err != nil {
			c.readErr = ck.err
			if n == 0 {
				return 0, ck.err
			}
		}
		return n, nil
	case <-c.readDone:
		return 0, net.ErrClosed
	}
}

func (c *ClientChannel) pump(conn net.Conn) {
	for {
		buf := make([]byte, clientReadSize)
		n, err := conn.Read(buf)
		select {
		case c.chunks <- chunk{data: buf[:n], err: err}:
		case <-c.readDone:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *ClientChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	conn, writeClosed := c.conn, c.writeClosed
	c.mu.Unlock()
	if writeClosed {
		return 0, net.ErrClosed
	}
	if conn == nil {
		return 0, errNotConnected
	}
	return conn.Write(p)
}

// CloseRead stops reading: a waiting Read returns net.ErrClosed and data the
// server sends afterwards is dropped.
func (c *ClientChannel) CloseRead() error {
	c.mu.Lock()
	if c.readClosed {
		c.mu.Unlock()
		return nil
	}
	c.readClosed = true
	close(c.readDone)
	both := c.writeClosed
	c.mu.Unlock()

	if both {
		return c.Close()
	}
	return nil
}

// CloseWrite rejects later writes. The server sees the end of the stream
// only once the read half is closed too.
func (c *ClientChannel) CloseWrite() error {
	c.mu.Lock()
	if c.writeClosed {
		c.mu.Unlock()
		return nil
	}
	c.writeClosed = true
	both := c.readClosed
	c.mu.Unlock()

	if both {
		return c.Close()
	}
	return nil
}

// Close runs the WebSocket close handshake.
func (c *ClientChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if !c.readClosed {
		c.readClosed = true
		close(c.readDone)
	}
	c.writeClosed = true
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// RemoteAddr returns the dial URL.
func (c *ClientChannel) RemoteAddr() string {
	return c.url
}

func (c *ClientChannel) current() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Package tcp provides the host/port duplex channel and the adapter for
// accepted connections.
package tcp

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"
)

var errNotConnected = errors.New("tcp: not connected")

type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// Channel adapts a net.Conn to the duplex channel contract. It either dials
// on Open or wraps a connection that is already established.
type Channel struct {
	address string
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// Dial returns a channel that resolves and connects to host:port on Open.
// A zero timeout means no limit beyond the Open context.
func Dial(host string, port int, timeout time.Duration) *Channel {
	return &Channel{
		address: net.JoinHostPort(host, strconv.Itoa(port)),
		timeout: timeout,
	}
}

// Wrap adapts an established connection. Open is a no-op for it.
func Wrap(conn net.Conn) *Channel {
	return &Channel{conn: conn}
}

// Open dials the remote address if the channel has no connection yet.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return net.ErrClosed
	}
	c.conn = conn
	return nil
}

func (c *Channel) Read(p []byte) (int, error) {
	conn := c.current()
	if conn == nil {
		return 0, errNotConnected
	}
	return conn.Read(p)
}

func (c *Channel) Write(p []byte) (int, error) {
	conn := c.current()
	if conn == nil {
		return 0, errNotConnected
	}
	return conn.Write(p)
}

// CloseRead shuts down the read half when the connection supports it.
func (c *Channel) CloseRead() error {
	if hc, ok := c.current().(halfCloser); ok {
		return hc.CloseRead()
	}
	return nil
}

// CloseWrite shuts down the write half when the connection supports it; the
// peer then reads EOF.
func (c *Channel) CloseWrite() error {
	if hc, ok := c.current().(halfCloser); ok {
		return hc.CloseWrite()
	}
	return nil
}

// Close closes the connection.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// RemoteAddr returns the peer address, or the dial target before Open.
func (c *Channel) RemoteAddr() string {
	if conn := c.current(); conn != nil {
		return conn.RemoteAddr().String()
	}
	return c.address
}

func (c *Channel) current() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

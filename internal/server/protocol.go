package server

import (
	"bufio"
	"bytes"
	"net"
)

type protocolType int

const (
	protocolTCP protocolType = iota
	protocolHTTP
)

func (p protocolType) String() string {
	if p == protocolHTTP {
		return "ws"
	}
	return "tcp"
}

var httpMethods = [][]byte{
	[]byte("GET "),
	[]byte("POST"),
	[]byte("PUT "),
	[]byte("HEAD"),
	[]byte("OPTI"),
	[]byte("PATC"),
	[]byte("DELE"),
	[]byte("CONN"),
}

// detectProtocol peeks at the first bytes to determine protocol type.
// A framed TCP client opens with a 4-byte big-endian length; no valid header
// under the default limit spells an HTTP method.
func detectProtocol(conn net.Conn) (protocolType, *bufferedConn, error) {
	reader := bufio.NewReader(conn)
	bc := &bufferedConn{Conn: conn, reader: reader}

	peek, err := reader.Peek(4)
	if err != nil {
		return protocolTCP, bc, err
	}
	for _, m := range httpMethods {
		if bytes.HasPrefix(peek, m) {
			return protocolHTTP, bc, nil
		}
	}
	return protocolTCP, bc, nil
}

type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// bufferedConn wraps a net.Conn with a bufio.Reader to preserve peeked data.
// It keeps the half close of the underlying connection reachable.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (bc *bufferedConn) Read(p []byte) (int, error) {
	return bc.reader.Read(p)
}

func (bc *bufferedConn) CloseRead() error {
	if hc, ok := bc.Conn.(halfCloser); ok {
		return hc.CloseRead()
	}
	return nil
}

func (bc *bufferedConn) CloseWrite() error {
	if hc, ok := bc.Conn.(halfCloser); ok {
		return hc.CloseWrite()
	}
	return nil
}

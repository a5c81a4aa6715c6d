package duplex

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/omochice/framed-duplex/pkg/frame"
)

// Channel is the raw byte transport under a Conn.
//
// Read returns io.EOF once the peer stops sending. A Conn issues at most one
// Read and one Write at a time and keeps a Read outstanding while the read
// side is open. CloseRead must unblock a blocked Read, and Close must unblock
// both directions. A Conn calls CloseWrite with a Write still blocked only
// when it is about to call Close.
type Channel interface {
	Open(ctx context.Context) error
	io.Reader
	io.Writer
	CloseRead() error
	CloseWrite() error
	Close() error
}

// Executor runs posted functions one at a time, in post order. Post must not
// block.
type Executor interface {
	Post(fn func())
}

// Config tunes a connection.
type Config struct {
	// MaxFrameSize bounds messages in both directions.
	MaxFrameSize uint32
	// ReadBufferSize is the size of a single channel read.
	ReadBufferSize int
	// DialTimeout bounds connecting in Dial.
	DialTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxFrameSize:   frame.DefaultMaxPayload,
		ReadBufferSize: 32 * 1024,
		DialTimeout:    5 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = d.MaxFrameSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = d.DialTimeout
	}
	return c
}

// Options are fixed when a Conn is built. The zero value is usable.
type Options struct {
	// Executor delivers completions and notifications. Nil creates a private
	// serial queue.
	Executor Executor
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
	Config Config
}

// Package stream adapts a pair of half-duplex byte primitives into one
// duplex channel.
package stream

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Opener is implemented by primitives that must be opened before use.
type Opener interface {
	Open(ctx context.Context) error
}

// Channel reads from one primitive and writes to the other.
type Channel struct {
	in  io.ReadCloser
	out io.WriteCloser

	closeIn  sync.Once
	closeOut sync.Once
	inErr    error
	outErr   error
}

// New pairs in and out. Neither is used until Open.
func New(in io.ReadCloser, out io.WriteCloser) *Channel {
	return &Channel{in: in, out: out}
}

// Open opens both primitives when they need it.
func (c *Channel) Open(ctx context.Context) error {
	if o, ok := c.in.(Opener); ok {
		if err := o.Open(ctx); err != nil {
			return err
		}
	}
	if o, ok := c.out.(Opener); ok {
		if err := o.Open(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) Read(p []byte) (int, error) {
	return c.in.Read(p)
}

func (c *Channel) Write(p []byte) (int, error) {
	return c.out.Write(p)
}

// CloseRead closes the input primitive.
func (c *Channel) CloseRead() error {
	c.closeIn.Do(func() { c.inErr = c.in.Close() })
	return c.inErr
}

// CloseWrite closes the output primitive.
func (c *Channel) CloseWrite() error {
	c.closeOut.Do(func() { c.outErr = c.out.Close() })
	return c.outErr
}

// Close closes both primitives.
func (c *Channel) Close() error {
	return errors.Join(c.CloseRead(), c.CloseWrite())
}

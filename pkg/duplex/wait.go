package duplex

import "context"

// SendWait sends msg and blocks until its completion fires or ctx is done.
// Giving up on ctx does not withdraw the send; it stays queued.
func (c *Conn) SendWait(ctx context.Context, msg []byte) error {
	done := make(chan error, 1)
	c.Send(msg, func(err error) { done <- err })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReceiveWait blocks for the next message. If ctx ends first the receive
// stays queued and its message is dropped when it arrives.
func (c *Conn) ReceiveWait(ctx context.Context) ([]byte, error) {
	type result struct {
		msg []byte
		err error
	}
	done := make(chan result, 1)
	c.Receive(func(msg []byte, err error) { done <- result{msg, err} })
	select {
	case r := <-done:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

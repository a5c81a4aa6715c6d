package duplex

import "sync/atomic"

// Delegate observes the half-close state of a Conn. Each method fires at most
// once per Conn, on its Executor, whether the close was asked for locally or
// caused by the channel. A notification can arrive while no operation is
// pending.
type Delegate interface {
	ReadClosed(c *Conn)
	WriteClosed(c *Conn)
}

// DelegateFuncs adapts plain functions to Delegate. Nil fields are skipped.
type DelegateFuncs struct {
	OnReadClosed  func(c *Conn)
	OnWriteClosed func(c *Conn)
}

func (f DelegateFuncs) ReadClosed(c *Conn) {
	if f.OnReadClosed != nil {
		f.OnReadClosed(c)
	}
}

func (f DelegateFuncs) WriteClosed(c *Conn) {
	if f.OnWriteClosed != nil {
		f.OnWriteClosed(c)
	}
}

// Registration ties a Delegate to a Conn until revoked.
type Registration struct {
	delegate atomic.Pointer[Delegate]
}

func newRegistration(d Delegate) *Registration {
	r := &Registration{}
	r.delegate.Store(&d)
	return r
}

// Revoke stops notifications and drops the Conn's reference to the
// delegate. It is safe to call from any goroutine, more than once, and on a
// nil Registration.
func (r *Registration) Revoke() {
	if r == nil {
		return
	}
	r.delegate.Store(nil)
}

func (r *Registration) get() Delegate {
	if r == nil {
		return nil
	}
	if d := r.delegate.Load(); d != nil {
		return *d
	}
	return nil
}

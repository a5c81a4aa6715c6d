package duplex

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/omochice/framed-duplex/internal/observability"
	"github.com/omochice/framed-duplex/internal/opqueue"
	"github.com/omochice/framed-duplex/internal/serial"
	"github.com/omochice/framed-duplex/pkg/frame"
)

// Conn is a framed duplex connection over a Channel.
type Conn struct {
	id   string
	ch   Channel
	exec Executor
	cfg  Config
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	opened atomic.Bool
	state  atomic.Int32

	// Everything below is confined to exec.
	dec      *frame.Decoder
	sends    opqueue.Queue[struct{}]
	recvs    opqueue.Queue[[]byte]
	delegate *Registration

	started  bool
	released bool
	failErr  error
	eof      bool

	readReq  chan struct{}
	writeReq chan []byte
	reading  bool
	writing  bool

	readClosing   bool
	readClosed    bool
	readNotified  bool
	writeClosing  bool
	writeClosed   bool
	writeNotified bool
	channelClosed bool
}

// New builds a Conn over ch. ch must not be opened yet; call Open once the
// delegate is set.
func New(ch Channel, opts Options) *Conn {
	id := uuid.NewString()
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("conn", id).Logger()

	exec := opts.Executor
	if exec == nil {
		exec = serial.New(logger)
	}
	cfg := opts.Config.WithDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:     id,
		ch:     ch,
		exec:   exec,
		cfg:    cfg,
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
		dec:    frame.NewDecoder(cfg.MaxFrameSize),
	}
	c.state.Store(int32(StateOpen))
	return c
}

// ID returns the identifier used in this connection's log lines.
func (c *Conn) ID() string {
	return c.id
}

// State returns a snapshot of the connection state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// SetDelegate registers d for half-close notifications, replacing any
// previous delegate. The returned Registration revokes it. Passing nil
// removes the current delegate.
func (c *Conn) SetDelegate(d Delegate) *Registration {
	var reg *Registration
	if d != nil {
		reg = newRegistration(d)
	}
	c.exec.Post(func() {
		if c.released {
			return
		}
		c.delegate = reg
	})
	return reg
}

// Open starts opening the channel in the background. It may be called only
// once. Failing to open is reported like any fatal channel error.
func (c *Conn) Open() error {
	if !c.opened.CompareAndSwap(false, true) {
		return ErrAlreadyOpen
	}
	go func() {
		err := c.ch.Open(c.ctx)
		c.exec.Post(func() { c.onOpen(err) })
	}()
	return nil
}

// Send queues msg. done, if not nil, runs once the whole frame has been
// handed to the channel, or with the error that prevented it. msg may be
// reused as soon as Send returns.
func (c *Conn) Send(msg []byte, done func(err error)) {
	var cb func(struct{}, error)
	if done != nil {
		cb = func(_ struct{}, err error) {
			c.call("send completion", func() { done(err) })
		}
	}

	tooLarge := uint64(len(msg)) > uint64(c.cfg.MaxFrameSize)
	var payload []byte
	if !tooLarge {
		payload = frame.Encode(msg)
	}
	op := opqueue.New(payload, cb)

	c.exec.Post(func() {
		if tooLarge && !c.sends.Closed() {
			op.Resolve(struct{}{}, ErrMessageTooLarge)
			return
		}
		if c.sends.Enqueue(op) {
			c.driveSend()
		}
	})
}

// Receive queues a request for the next message. done runs once with the
// message or the error that ended the wait.
func (c *Conn) Receive(done func(msg []byte, err error)) {
	var cb func([]byte, error)
	if done != nil {
		cb = func(msg []byte, err error) {
			c.call("receive completion", func() { done(msg, err) })
		}
	}
	op := opqueue.New(nil, cb)

	c.exec.Post(func() {
		if c.recvs.Enqueue(op) {
			c.driveReceive()
		}
	})
}

// CloseRead stops the read direction. A receive already decoding a frame
// gets to finish; every other pending or later receive fails with
// ErrConnectionClosed. Sending is unaffected.
func (c *Conn) CloseRead() {
	c.exec.Post(c.closeRead)
}

// CloseWrite stops the write direction once the sends already queued are
// written. Later sends fail with ErrConnectionClosed. Receiving is unaffected.
func (c *Conn) CloseWrite() {
	c.exec.Post(c.closeWrite)
}

// Release tears the connection down at once. Pending operations fail with
// ErrDeallocated, the channel is closed and the delegate is dropped without
// being notified.
func (c *Conn) Release() {
	c.exec.Post(c.release)
}

func (c *Conn) onOpen(err error) {
	if c.released || c.failErr != nil {
		if err == nil {
			_ = c.ch.Close()
		}
		return
	}
	if err != nil {
		c.fail(&TransportError{Op: "open", Err: err})
		return
	}

	c.started = true
	observability.ConnectionOpened()
	c.log.Debug().Msg("channel open")

	if c.readClosed {
		c.closeChannelRead()
	} else {
		c.readReq = make(chan struct{}, 1)
		go c.readLoop(c.readReq)
	}
	if c.writeClosed {
		c.closeChannelWrite()
	} else {
		c.writeReq = make(chan []byte, 1)
		go c.writeLoop(c.writeReq)
	}
	if c.closeChannelIfDone() {
		return
	}

	c.driveReceive()
	c.driveSend()
}

func (c *Conn) readLoop(reqs <-chan struct{}) {
	buf := make([]byte, c.cfg.ReadBufferSize)
	for range reqs {
		n, err := c.ch.Read(buf)
		data := bytes.Clone(buf[:n])
		c.exec.Post(func() { c.onRead(data, err) })
		if err != nil {
			return
		}
	}
}

func (c *Conn) writeLoop(reqs <-chan []byte) {
	for p := range reqs {
		n, err := c.ch.Write(p)
		c.exec.Post(func() { c.onWrite(n, err) })
		if err != nil {
			return
		}
	}
}

func (c *Conn) driveReceive() {
	if c.readClosed {
		return
	}

	delivered := 0
	err := c.recvs.Drive(func(*opqueue.Operation[[]byte]) ([]byte, bool, error) {
		if c.readClosing && delivered > 0 {
			return nil, false, nil
		}
		msg, ok, err := c.dec.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		delivered++
		observability.RecordFrame(observability.DirectionIn)
		return msg, true, nil
	})
	if err != nil {
		c.fail(&FramingError{Err: err})
		return
	}

	switch {
	case c.readClosing && (delivered > 0 || !c.dec.Partial()):
		c.finishRead(ErrConnectionClosed)
	case c.eof && c.dec.Buffered() == 0:
		c.finishRead(ErrConnectionClosed)
	default:
		c.readMore()
	}
}

// readMore keeps one channel read in flight while the read side is open, so
// EOF and read errors surface with no receive pending. Reading pauses once a
// whole maximum-size frame is buffered.
func (c *Conn) readMore() {
	if !c.started || c.reading || c.eof || c.readClosed {
		return
	}
	if uint64(c.dec.Buffered()) >= uint64(c.cfg.MaxFrameSize)+frame.HeaderLen {
		return
	}
	c.reading = true
	c.readReq <- struct{}{}
}

func (c *Conn) onRead(data []byte, err error) {
	c.reading = false
	if c.readClosed {
		return
	}
	if len(data) > 0 {
		observability.RecordBytes(observability.DirectionIn, len(data))
		if ferr := c.dec.Write(data); ferr != nil {
			c.fail(&FramingError{Err: ferr})
			return
		}
	}

	switch {
	case err == nil:
		c.driveReceive()
	case errors.Is(err, io.EOF):
		if c.dec.Partial() {
			c.fail(&FramingError{Err: c.dec.Close()})
			return
		}
		c.log.Debug().Int("buffered", c.dec.Buffered()).Msg("peer finished sending")
		c.eof = true
		c.driveReceive()
	default:
		c.fail(&TransportError{Op: "read", Err: err})
	}
}

func (c *Conn) driveSend() {
	if c.writeClosed {
		return
	}

	// The step never fails.
	_ = c.sends.Drive(func(op *opqueue.Operation[struct{}]) (struct{}, bool, error) {
		if op.Offset >= len(op.Payload) {
			observability.RecordFrame(observability.DirectionOut)
			return struct{}{}, true, nil
		}
		if c.started && !c.writing {
			c.writing = true
			c.writeReq <- op.Remaining()
		}
		return struct{}{}, false, nil
	})

	if c.writeClosing && c.sends.Len() == 0 {
		c.finishWrite()
	}
}

func (c *Conn) onWrite(n int, err error) {
	c.writing = false
	if c.writeClosed {
		return
	}
	observability.RecordBytes(observability.DirectionOut, n)
	if head := c.sends.Head(); head != nil {
		head.Offset += n
	}

	switch {
	case err != nil:
		c.fail(&TransportError{Op: "write", Err: err})
	case n == 0:
		c.fail(&TransportError{Op: "write", Err: io.ErrShortWrite})
	default:
		c.driveSend()
	}
}

func (c *Conn) closeRead() {
	if c.readClosed || c.readClosing {
		return
	}
	c.recvs.Close(ErrConnectionClosed)
	if c.recvs.Len() > 0 && c.dec.Partial() {
		c.readClosing = true
		c.log.Debug().Msg("read close waits for the frame in flight")
		return
	}
	c.finishRead(ErrConnectionClosed)
}

func (c *Conn) finishRead(err error) {
	if c.readClosed {
		return
	}
	c.readClosed = true
	c.readClosing = false
	c.updateState()
	c.recvs.Close(ErrConnectionClosed)
	c.recvs.FailAll(err)
	c.closeChannelRead()
	c.log.Debug().Msg("read side closed")

	c.notifyReadClosed()
	c.closeChannelIfDone()
}

func (c *Conn) closeWrite() {
	if c.writeClosed || c.writeClosing {
		return
	}
	c.writeClosing = true
	c.sends.Close(ErrConnectionClosed)
	if c.sends.Len() == 0 {
		c.finishWrite()
	}
}

func (c *Conn) finishWrite() {
	if c.writeClosed {
		return
	}
	c.writeClosed = true
	c.writeClosing = false
	c.updateState()
	c.sends.Close(ErrConnectionClosed)
	c.closeChannelWrite()
	c.log.Debug().Msg("write side closed")

	c.notifyWriteClosed()
	c.closeChannelIfDone()
}

// fail fans err out to every pending operation and closes both sides.
func (c *Conn) fail(err error) {
	if c.failErr != nil || c.released {
		return
	}
	c.failErr = err
	c.log.Warn().Err(err).Msg("connection failed")
	observability.RecordFailure(failureKind(err))

	c.sends.Close(err)
	c.recvs.Close(err)
	readOpen, writeOpen := !c.readClosed, !c.writeClosed
	c.readClosed, c.readClosing = true, false
	c.writeClosed, c.writeClosing = true, false
	c.updateState()

	c.sends.FailAll(err)
	c.recvs.FailAll(err)
	if readOpen {
		c.closeChannelRead()
	}
	if writeOpen {
		c.closeChannelWrite()
	}

	c.notifyReadClosed()
	c.notifyWriteClosed()
	c.closeChannelIfDone()
}

func (c *Conn) release() {
	if c.released {
		return
	}
	c.released = true
	c.delegate = nil
	c.log.Debug().Msg("released")

	c.sends.Close(ErrDeallocated)
	c.recvs.Close(ErrDeallocated)
	readOpen, writeOpen := !c.readClosed, !c.writeClosed
	c.readClosed, c.readClosing = true, false
	c.writeClosed, c.writeClosing = true, false
	c.updateState()

	c.sends.FailAll(ErrDeallocated)
	c.recvs.FailAll(ErrDeallocated)
	if readOpen {
		c.closeChannelRead()
	}
	if writeOpen {
		c.closeChannelWrite()
	}
	if !c.closeChannelIfDone() && !c.opened.Load() {
		// Never opened; onOpen will not run to close it.
		c.channelClosed = true
		if err := c.ch.Close(); err != nil {
			c.log.Debug().Err(err).Msg("channel close")
		}
	}
	c.cancel()
}

func (c *Conn) closeChannelRead() {
	if !c.started {
		return
	}
	if c.readReq != nil {
		close(c.readReq)
		c.readReq = nil
	}
	if err := c.ch.CloseRead(); err != nil {
		c.log.Debug().Err(err).Msg("channel close read")
	}
}

func (c *Conn) closeChannelWrite() {
	if !c.started {
		return
	}
	if c.writeReq != nil {
		close(c.writeReq)
		c.writeReq = nil
	}
	if err := c.ch.CloseWrite(); err != nil {
		c.log.Debug().Err(err).Msg("channel close write")
	}
}

// closeChannelIfDone closes the channel once both sides are closed and
// reports whether it did.
func (c *Conn) closeChannelIfDone() bool {
	if !c.started || c.channelClosed || !c.readClosed || !c.writeClosed {
		return false
	}
	c.channelClosed = true
	if err := c.ch.Close(); err != nil {
		c.log.Debug().Err(err).Msg("channel close")
	}
	observability.ConnectionClosed()
	c.log.Debug().Msg("channel closed")
	return true
}

func (c *Conn) updateState() {
	s := StateOpen
	switch {
	case c.failErr != nil:
		s = StateFailed
	case c.readClosed && c.writeClosed:
		s = StateBothHalfClosed
	case c.readClosed:
		s = StateReadHalfClosed
	case c.writeClosed:
		s = StateWriteHalfClosed
	}
	c.state.Store(int32(s))
}

func (c *Conn) notifyReadClosed() {
	if c.readNotified {
		return
	}
	c.readNotified = true
	if d := c.delegate.get(); d != nil {
		c.call("ReadClosed", func() { d.ReadClosed(c) })
	}
}

func (c *Conn) notifyWriteClosed() {
	if c.writeNotified {
		return
	}
	c.writeNotified = true
	if d := c.delegate.get(); d != nil {
		c.call("WriteClosed", func() { d.WriteClosed(c) })
	}
}

// call runs caller code, logging a panic instead of unwinding the state
// machine.
func (c *Conn) call(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("callback", what).Msg("callback panicked")
		}
	}()
	fn()
}

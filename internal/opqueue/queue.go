// Package opqueue holds the per-direction FIFO of pending transport
// operations. Every enqueued operation is resolved exactly once.
//
// A Queue is not synchronized; its owner confines it to a single serial
// context.
package opqueue

// Operation is one pending request. Payload and Offset are free for the
// driver to track partial progress (bytes written so far, for instance).
type Operation[R any] struct {
	Payload []byte
	Offset  int

	done  func(R, error)
	fired bool
}

// New returns an operation that reports its outcome to done. done may be nil.
func New[R any](payload []byte, done func(R, error)) *Operation[R] {
	return &Operation[R]{Payload: payload, done: done}
}

// Resolve fires the completion. Only the first call has any effect; it
// reports whether this call fired.
func (op *Operation[R]) Resolve(result R, err error) bool {
	if op.fired {
		return false
	}
	op.fired = true
	if op.done != nil {
		if err != nil {
			var zero R
			op.done(zero, err)
		} else {
			op.done(result, nil)
		}
	}
	return true
}

// Resolved reports whether the operation has fired.
func (op *Operation[R]) Resolved() bool {
	return op.fired
}

// Remaining returns the unprocessed part of Payload.
func (op *Operation[R]) Remaining() []byte {
	return op.Payload[op.Offset:]
}

// Queue is a FIFO of operations for one direction.
type Queue[R any] struct {
	ops    []*Operation[R]
	reject error
}

// Enqueue appends op, or resolves it with the close error when the queue no
// longer accepts work. It reports whether op was queued.
func (q *Queue[R]) Enqueue(op *Operation[R]) bool {
	if q.reject != nil {
		var zero R
		op.Resolve(zero, q.reject)
		return false
	}
	q.ops = append(q.ops, op)
	return true
}

// Head returns the oldest pending operation, or nil.
func (q *Queue[R]) Head() *Operation[R] {
	if len(q.ops) == 0 {
		return nil
	}
	return q.ops[0]
}

// Len returns the number of pending operations.
func (q *Queue[R]) Len() int {
	return len(q.ops)
}

// Drive makes progress on the head only. step is called with the head until
// it reports not done; each done head is resolved with its result and
// removed. A step error stops driving and is returned untouched, leaving the
// head queued.
func (q *Queue[R]) Drive(step func(op *Operation[R]) (R, bool, error)) error {
	for len(q.ops) > 0 {
		head := q.ops[0]
		res, done, err := step(head)
		if err != nil {
			return err
		}
		if !done {
			return nil
		}
		q.pop()
		head.Resolve(res, nil)
	}
	return nil
}

// FailAll resolves every pending operation with err, oldest first, and
// empties the queue.
func (q *Queue[R]) FailAll(err error) {
	ops := q.ops
	q.ops = nil
	var zero R
	for _, op := range ops {
		op.Resolve(zero, err)
	}
}

// Close makes later Enqueue calls fail with err. Pending operations are left
// alone. Closing again replaces the error.
func (q *Queue[R]) Close(err error) {
	q.reject = err
}

// Closed reports whether the queue rejects new operations.
func (q *Queue[R]) Closed() bool {
	return q.reject != nil
}

func (q *Queue[R]) pop() {
	q.ops[0] = nil
	q.ops = q.ops[1:]
	if len(q.ops) == 0 {
		q.ops = nil
	}
}

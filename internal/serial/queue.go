// Package serial provides a strictly ordered task queue used as the callback
// context of a duplex connection.
package serial

import (
	"sync"

	"github.com/rs/zerolog"
)

// Queue runs posted tasks one at a time, in post order. Post never blocks.
// A runner goroutine exists only while tasks are pending.
type Queue struct {
	mu      sync.Mutex
	tasks   []func()
	running bool
	idle    *sync.Cond
	log     zerolog.Logger
}

// New creates an empty queue. Panics raised by tasks are logged to logger and
// do not stop the queue.
func New(logger zerolog.Logger) *Queue {
	q := &Queue{log: logger}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Post appends fn to the queue.
func (q *Queue) Post(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	if !q.running {
		q.running = true
		go q.run()
	}
	q.mu.Unlock()
}

// Wait blocks until every task posted so far, and any task they post, has run.
func (q *Queue) Wait() {
	q.mu.Lock()
	for q.running {
		q.idle.Wait()
	}
	q.mu.Unlock()
}

func (q *Queue) run() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			q.tasks = nil
			q.idle.Broadcast()
			q.mu.Unlock()
			return
		}
		fn := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.call(fn)
	}
}

func (q *Queue) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Msg("serial task panicked")
		}
	}()
	fn()
}

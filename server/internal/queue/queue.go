package queue

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// idleLinger is how long the processing goroutine waits for new input before
// exiting. The next Enqueue or Complete starts a fresh one.
const idleLinger = 50 * time.Millisecond

// Func processes one input item, calling emit for every result it produces,
// in order. emit must not be retained after Func returns. A non-nil error is
// fatal for the queue.
type Func[I, R any] func(item I, emit func(R)) error

// ProcessingError is the terminal entry of a queue whose Func failed.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string {
	return "processing failed: " + e.Err.Error()
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Queue is an ordered single-pass producer/consumer queue with a replayable
// result log. It is safe for concurrent use.
type Queue[I, R any] struct {
	process Func[I, R]
	wake    *WaitHandle

	mu        sync.Mutex
	pending   []I
	completed bool // no more input accepted
	running   bool // a processing goroutine is live
	results   []R
	terminal  bool  // terminal entry appended; results never change again
	err       error // terminal failure, nil on normal completion
	notify    chan struct{}
	done      chan struct{}
	cursors   map[*Cursor[I, R]]struct{}
}

// New creates a Queue. Processing runs on a goroutine started by Enqueue or
// Complete, which exits when the queue terminates or stays idle, so an
// abandoned queue holds no goroutine and can be collected.
func New[I, R any](process Func[I, R]) *Queue[I, R] {
	return &Queue[I, R]{
		process: process,
		wake:    NewWaitHandle(),
		notify:  make(chan struct{}),
		done:    make(chan struct{}),
		cursors: make(map[*Cursor[I, R]]struct{}),
	}
}

// Enqueue appends item to the pending input and wakes the processing loop.
// It never blocks. It reports false, dropping item, when the queue no longer
// accepts input because Complete was called or processing failed.
func (q *Queue[I, R]) Enqueue(item I) bool {
	q.mu.Lock()
	if q.completed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, item)
	q.startLocked()
	q.mu.Unlock()

	q.wake.Resume()
	return true
}

// Complete marks the end of input. Pending items are still processed, then
// the terminal entry is appended. Calling Complete more than once has no
// further effect.
func (q *Queue[I, R]) Complete() {
	q.mu.Lock()
	if q.completed {
		q.mu.Unlock()
		return
	}
	q.completed = true
	q.startLocked()
	q.mu.Unlock()

	q.wake.Resume()
}

// Results returns a new cursor positioned at the start of the result log.
func (q *Queue[I, R]) Results() *Cursor[I, R] {
	c := &Cursor[I, R]{q: q}
	q.mu.Lock()
	q.cursors[c] = struct{}{}
	q.mu.Unlock()
	return c
}

// Processed returns a copy of the non-terminal entries currently in the log.
// It does not move any cursor.
func (q *Queue[I, R]) Processed() []R {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]R, len(q.results))
	copy(out, q.results)
	return out
}

// Consumers returns the number of cursors that have not yet observed the
// terminal entry or been closed.
func (q *Queue[I, R]) Consumers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cursors)
}

// Done is closed once the terminal entry has been appended.
func (q *Queue[I, R]) Done() <-chan struct{} { return q.done }

// Err returns the terminal failure, or nil if the queue has not failed.
func (q *Queue[I, R]) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// --- processing loop --------------------------------------------------------

// startLocked starts the processing goroutine unless one is live. q.mu must
// be held.
func (q *Queue[I, R]) startLocked() {
	if q.running || q.terminal {
		return
	}
	q.running = true
	go q.run()
}

func (q *Queue[I, R]) run() {
	for {
		item, ok, finished := q.next()
		switch {
		case finished:
			q.terminate(nil)
			return
		case ok:
			if err := q.safeProcess(item); err != nil {
				q.terminate(&ProcessingError{Err: err})
				return
			}
		case q.idle():
			return
		}
	}
}

// idle parks on the wait handle for up to idleLinger. It reports true, with
// the goroutine marked stopped, when no input or completion arrived.
func (q *Queue[I, R]) idle() bool {
	ctx, cancel := context.WithTimeout(context.Background(), idleLinger)
	err := q.wake.Wait(ctx)
	cancel()
	if err == nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) > 0 || q.completed {
		return false
	}
	q.running = false
	return true
}

// next pops the oldest pending item. finished reports that input is complete
// and fully drained.
func (q *Queue[I, R]) next() (item I, ok, finished bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) > 0 {
		item = q.pending[0]
		var zero I
		q.pending[0] = zero
		q.pending = q.pending[1:]
		return item, true, false
	}
	return item, false, q.completed
}

func (q *Queue[I, R]) safeProcess(item I) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return q.process(item, q.append)
}

// append adds r to the log and wakes every cursor waiting at the live edge.
func (q *Queue[I, R]) append(r R) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.terminal {
		return
	}
	q.results = append(q.results, r)
	close(q.notify)
	q.notify = make(chan struct{})
}

func (q *Queue[I, R]) terminate(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.terminal = true
	q.completed = true
	q.running = false
	q.err = err
	q.pending = nil
	close(q.notify)
	close(q.done)
}

// --- cursors ----------------------------------------------------------------

// Cursor is one consumer's read position into a queue's result log.
type Cursor[I, R any] struct {
	q        *Queue[I, R]
	pos      int
	finished bool
}

// Next returns the next result. At the live edge it blocks until a new result
// or the terminal entry is appended, or ctx is done.
//
// The terminal entry is reported exactly once: io.EOF on normal completion,
// or the *ProcessingError that stopped the queue. After that, and after
// Close, Next returns io.EOF.
func (c *Cursor[I, R]) Next(ctx context.Context) (R, error) {
	var zero R
	for {
		c.q.mu.Lock()
		if c.finished {
			c.q.mu.Unlock()
			return zero, io.EOF
		}
		if c.pos < len(c.q.results) {
			r := c.q.results[c.pos]
			c.pos++
			c.q.mu.Unlock()
			return r, nil
		}
		if c.q.terminal {
			c.finished = true
			delete(c.q.cursors, c)
			err := c.q.err
			c.q.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return zero, err
		}
		wait := c.q.notify
		c.q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close detaches the cursor from the queue.
func (c *Cursor[I, R]) Close() {
	c.q.mu.Lock()
	c.finished = true
	delete(c.q.cursors, c)
	c.q.mu.Unlock()
}

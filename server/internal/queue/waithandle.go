package queue

import "context"

// WaitHandle is a re-armable single-shot signal. Resume releases the next
// (or the currently blocked) Wait; any number of Resume calls made while
// nobody waits collapse into a single release.
//
// A WaitHandle starts in the suspended state.
type WaitHandle struct {
	ch chan struct{}
}

// NewWaitHandle returns a suspended WaitHandle.
func NewWaitHandle() *WaitHandle {
	return &WaitHandle{ch: make(chan struct{}, 1)}
}

// Resume unblocks an outstanding Wait, or lets the next Wait return
// immediately. It never blocks.
func (w *WaitHandle) Resume() {
	select {
	case w.ch <- struct{}{}:
	default:
		// already signalled
	}
}

// Wait blocks until Resume has been called since the previous Wait returned,
// then re-arms the handle. It returns ctx.Err() if ctx is done first.
func (w *WaitHandle) Wait(ctx context.Context) error {
	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

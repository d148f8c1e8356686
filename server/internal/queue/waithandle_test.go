package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

// expectSuspended fails if wait returns within d.
func expectSuspended(t *testing.T, w *WaitHandle, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if err := w.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait: got %v, want DeadlineExceeded (suspended)", err)
	}
}

func TestWaitHandle_StartsSuspended(t *testing.T) {
	expectSuspended(t, NewWaitHandle(), 10*time.Millisecond)
}

func TestWaitHandle_ResumeReleasesWaiter(t *testing.T) {
	w := NewWaitHandle()
	released := make(chan error, 1)
	go func() { released <- w.Wait(context.Background()) }()

	time.Sleep(5 * time.Millisecond)
	w.Resume()

	select {
	case err := <-released:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait was not released by Resume")
	}
}

func TestWaitHandle_ResumeBeforeWaitIsNotLost(t *testing.T) {
	w := NewWaitHandle()
	w.Resume()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := w.Wait(ctx); err != nil {
		t.Fatalf("Wait after early Resume: %v", err)
	}
}

func TestWaitHandle_RearmsAfterRelease(t *testing.T) {
	w := NewWaitHandle()
	w.Resume()
	if err := w.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	expectSuspended(t, w, 10*time.Millisecond)
}

func TestWaitHandle_MultipleResumesCollapse(t *testing.T) {
	w := NewWaitHandle()
	w.Resume()
	w.Resume()
	w.Resume()

	if err := w.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	expectSuspended(t, w, 10*time.Millisecond)
}

func TestWaitHandle_ContextCancel(t *testing.T) {
	w := NewWaitHandle()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait: got %v, want Canceled", err)
	}
}

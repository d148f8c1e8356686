// Package queue implements the ordered, replayable, multicast processing
// queue at the center of every live stream.
//
// A Queue[I, R] accepts inputs with Enqueue and drives them one at a time,
// strictly in enqueue order, through an injected Func on a single background
// goroutine. That goroutine is started on demand and exits after a short idle
// period, so a queue that is never completed pins no goroutine once its owner
// drops it. Every value the Func emits is appended to an in-memory result
// log that is never trimmed; the queue has no expiry of its own, the owner
// decides when to drop it.
//
// Results returns a Cursor: an independent read position that first replays
// the log from the start and then follows live appends. Each cursor observes
// exactly one terminal signal:
//
//   - io.EOF once Complete was called and all pending input was drained
//   - a *ProcessingError if the Func failed; the queue stops processing and
//     every present and future cursor sees the same failure
//
// WaitHandle is the park/unpark primitive the processing goroutine sleeps on
// while it lingers without input.
package queue

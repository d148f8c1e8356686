package ingest

import (
	"errors"
	"log/slog"

	"github.com/sc2cc/sc2cc/server/internal/stream"
)

// Lookup resolves stream ids. *store.Store implements it.
type Lookup interface {
	Lookup(id string) (*stream.Source, error)
}

// FrameObserver counts dispatched frames. metrics.Metrics implements it.
type FrameObserver interface {
	FrameReceived(channel, kind string, err error)
}

// Dispatcher routes frames received on one kind of channel to their streams.
// It is safe for concurrent use.
type Dispatcher struct {
	streams Lookup
	channel string
	obs     FrameObserver
}

// NewDispatcher creates a Dispatcher. channel names the transport ("ws",
// "grpc") in logs and metrics. obs may be nil.
func NewDispatcher(streams Lookup, channel string, obs FrameObserver) *Dispatcher {
	return &Dispatcher{streams: streams, channel: channel, obs: obs}
}

// Dispatch decodes b and applies it to its stream. The returned Frame carries
// whatever could be decoded, so the caller can address an error reply.
// Unknown ids and malformed frames or chunks are *stream.ValidationError.
func (d *Dispatcher) Dispatch(b []byte) (Frame, error) {
	f, err := ParseFrame(b)
	if err == nil {
		err = d.apply(f)
	}
	if d.obs != nil {
		d.obs.FrameReceived(d.channel, f.Kind(), err)
	}
	if err != nil {
		slog.Debug("ingest: frame rejected", "channel", d.channel, "stream_id", f.StreamID, "err", err)
	}
	return f, err
}

func (d *Dispatcher) apply(f Frame) error {
	src, err := d.streams.Lookup(f.StreamID)
	if errors.Is(err, stream.ErrNotFound) {
		return &stream.ValidationError{Channel: -1, Msg: "stream source not found: " + f.StreamID, Err: err}
	}
	if err != nil {
		return err
	}
	if f.End() {
		src.Complete()
		return nil
	}
	return src.Add(f.Payload)
}

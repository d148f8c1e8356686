package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sc2cc/sc2cc/server/internal/encoder"
	"github.com/sc2cc/sc2cc/server/internal/ingest"
	"github.com/sc2cc/sc2cc/server/internal/store"
	"github.com/sc2cc/sc2cc/server/internal/stream"
)

type frameCount struct {
	mu   sync.Mutex
	seen map[string]int
}

func (c *frameCount) FrameReceived(channel, kind string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen == nil {
		c.seen = map[string]int{}
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.seen[channel+"/"+kind+"/"+result]++
}

func newStore() *store.Store {
	f := encoder.NewFactory(encoder.Params{ContentType: encoder.ContentTypeL16, Channels: 1, SampleRate: 8000}, nil)
	return store.New(store.Config{MaxSize: 10}, f, nil)
}

func frame(t *testing.T, id string, payload []byte) []byte {
	t.Helper()
	b, err := ingest.EncodeFrame(id, payload)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	return b
}

func TestParseFrame(t *testing.T) {
	id := strings.Repeat("a", ingest.IDLen)
	f, err := ingest.ParseFrame([]byte(id + "xyz"))
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.StreamID != id || string(f.Payload) != "xyz" || f.End() || f.Kind() != "data" {
		t.Errorf("got %+v", f)
	}

	f, err = ingest.ParseFrame([]byte(id))
	if err != nil || !f.End() || f.Kind() != "end" {
		t.Errorf("end frame: got (%+v, %v)", f, err)
	}

	if _, err := ingest.ParseFrame([]byte("short")); !stream.IsValidation(err) {
		t.Errorf("short frame: got %v, want ValidationError", err)
	}
}

func TestEncodeFrame_RejectsBadID(t *testing.T) {
	if _, err := ingest.EncodeFrame("abc", nil); err == nil {
		t.Error("EncodeFrame with short id: want error")
	}
}

func TestDispatch_DataThenEnd(t *testing.T) {
	st := newStore()
	src, err := st.Create(encoder.Params{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	obs := &frameCount{}
	d := ingest.NewDispatcher(st, "ws", obs)

	chunk := encoder.JoinChannels([][]float32{{0.5, -0.5}})
	if _, err := d.Dispatch(frame(t, src.ID, chunk)); err != nil {
		t.Fatalf("Dispatch data: %v", err)
	}
	if _, err := d.Dispatch(frame(t, src.ID, nil)); err != nil {
		t.Fatalf("Dispatch end: %v", err)
	}

	select {
	case <-src.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not complete after end frame")
	}
	if st := src.Stats(); st.ChunkCount != 1 || st.TotalBytes != 4 || !st.Completed {
		t.Errorf("Stats: got %+v", st)
	}
	if obs.seen["ws/data/ok"] != 1 || obs.seen["ws/end/ok"] != 1 {
		t.Errorf("observer: got %v", obs.seen)
	}
}

func TestDispatch_UnknownStream(t *testing.T) {
	d := ingest.NewDispatcher(newStore(), "grpc", nil)
	id := "00000000-0000-0000-0000-000000000000"

	f, err := d.Dispatch(frame(t, id, []byte{0, 0, 0, 0}))
	if !stream.IsValidation(err) || !errors.Is(err, stream.ErrNotFound) {
		t.Fatalf("got %v, want ValidationError wrapping ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "stream source not found: "+id) {
		t.Errorf("message: got %q", err.Error())
	}

	var r ingest.Reply
	if err := json.Unmarshal(ingest.ErrorReply(f, err), &r); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if r.StreamID != id || r.Error == "" {
		t.Errorf("reply: got %+v", r)
	}
}

func TestDispatch_InvalidChunkKeepsStreamUsable(t *testing.T) {
	st := newStore()
	src, _ := st.Create(encoder.Params{Channels: 2})
	obs := &frameCount{}
	d := ingest.NewDispatcher(st, "ws", obs)

	bad := encoder.JoinChannels([][]float32{{0.5}, {1.1}})
	_, err := d.Dispatch(frame(t, src.ID, bad))
	var v *stream.ValidationError
	if !errors.As(err, &v) || v.Channel != 1 {
		t.Fatalf("got %v, want ValidationError citing channel 1", err)
	}

	good := encoder.JoinChannels([][]float32{{0.5}, {0.25}})
	if _, err := d.Dispatch(frame(t, src.ID, good)); err != nil {
		t.Fatalf("valid chunk after rejected one: %v", err)
	}
	if obs.seen["ws/data/error"] != 1 || obs.seen["ws/data/ok"] != 1 {
		t.Errorf("observer: got %v", obs.seen)
	}
}

func TestDispatch_DoesNotWaitForEncoder(t *testing.T) {
	release := make(chan struct{})
	f := encoder.NewFactory(encoder.Params{ContentType: "slow", Channels: 1, SampleRate: 1}, nil)
	f.Register("slow", func(encoder.Params) (stream.Encoder, error) {
		return stream.EncoderFunc(func(chunk []byte, emit func([]byte)) error {
			<-release
			emit(chunk)
			return nil
		}), nil
	})
	st := store.New(store.Config{}, f, nil)
	src, err := st.Create(encoder.Params{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer close(release)

	d := ingest.NewDispatcher(st, "ws", nil)
	b := frame(t, src.ID, []byte{1, 2, 3, 4})
	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			_, _ = d.Dispatch(b)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on the encoder")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := src.Consume().Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("output before encoder released: got %v", err)
	}
}

package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/sc2cc/sc2cc/server/internal/stream"
)

// IDLen is the length of the stream id prefix of every frame.
const IDLen = 36

// Frame is one decoded ingestion frame.
type Frame struct {
	StreamID string
	Payload  []byte
}

// End reports whether the frame marks the end of its stream.
func (f Frame) End() bool { return len(f.Payload) == 0 }

// Kind is "end" for end-of-stream frames and "data" otherwise.
func (f Frame) Kind() string {
	if f.End() {
		return "end"
	}
	return "data"
}

// ParseFrame splits b into id and payload. Payload aliases b.
func ParseFrame(b []byte) (Frame, error) {
	if len(b) < IDLen {
		return Frame{}, stream.Invalid("frame too short: %d bytes, need at least %d", len(b), IDLen)
	}
	return Frame{StreamID: string(b[:IDLen]), Payload: b[IDLen:]}, nil
}

// EncodeFrame builds the frame for id and payload. An empty payload encodes
// the end-of-stream marker.
func EncodeFrame(id string, payload []byte) ([]byte, error) {
	if len(id) != IDLen {
		return nil, fmt.Errorf("stream id %q: want %d bytes, got %d", id, IDLen, len(id))
	}
	b := make([]byte, IDLen+len(payload))
	copy(b, id)
	copy(b[IDLen:], payload)
	return b, nil
}

// Reply is the message sent back to the sender of a rejected frame.
type Reply struct {
	StreamID string `json:"stream_id,omitempty"`
	Error    string `json:"error"`
}

// ErrorReply encodes the Reply for a frame rejected with err.
func ErrorReply(f Frame, err error) []byte {
	b, _ := json.Marshal(Reply{StreamID: f.StreamID, Error: err.Error()})
	return b
}

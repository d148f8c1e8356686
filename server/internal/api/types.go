package api

import "github.com/sc2cc/sc2cc/server/internal/metrics"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Streams      int               `json:"streams"`
	ContentTypes []string          `json:"content_types,omitempty"`
	Metrics      *metrics.Snapshot `json:"metrics,omitempty"`
}

// CreateStreamRequest is the optional body of POST /api/v1/streams. Omitted
// fields take the server's encoder defaults.
type CreateStreamRequest struct {
	ContentType string `json:"content_type"`
	Channels    int    `json:"channels"`
	SampleRate  int    `json:"sample_rate"`
}

// StreamResponse is returned by stream creation and upload.
type StreamResponse struct {
	ID          string `json:"id"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"` // path of the encoded byte stream
}

// PlayRequest is the body of POST /api/v1/cast/play. Exactly one of
// StreamID and MediaURL must be set.
type PlayRequest struct {
	DeviceID    string `json:"device_id"`
	StreamID    string `json:"stream_id,omitempty"`
	MediaURL    string `json:"media_url,omitempty"`
	ContentType string `json:"content_type,omitempty"` // with MediaURL only
	Title       string `json:"title,omitempty"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// Package uploader streams audio from the agent to sc2cc-server.
//
// Create calls POST /api/v1/streams with the configured stream parameters.
// Send wraps each planar float32 PCM chunk in an ingestion frame (36-byte
// stream id, then the payload) and writes it as a binary websocket message
// to /api/v1/streams/ws. Complete sends the empty-payload frame that ends the
// stream. Stream does all three for an io.Reader.
//
// Frames that cannot be written are kept in a bounded buffer (oldest dropped
// first) and flushed in order after reconnecting. Reconnects use truncated
// exponential backoff (250ms to 15s, ±25% jitter) and stop after
// max_attempts consecutive failures. A 401 from the server is not retried.
//
// Error replies from the server (unknown stream, invalid samples) do not
// close the connection; they are logged and available from Rejected.
package uploader

// Package ws implements the websocket ingestion channel.
//
// Each connection carries frames for any number of streams (see package
// ingest). Clients send binary messages only; the server answers rejected
// frames with a JSON text message and keeps the connection open:
//
//	{"stream_id": "<id>", "error": "stream source not found: <id>"}
//
// Frames are dispatched in the order they are read, which preserves chunk
// order per stream. Dispatch does not wait for encoding. An optional
// per-connection rate limit applies back-pressure by delaying reads.
//
// Hub.Run(ctx) blocks until ctx is cancelled, then closes every connection.
// The upgrader accepts all origins; the server mounts the hub behind the
// API-key middleware at /api/v1/streams/ws.
package ws

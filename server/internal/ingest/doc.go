// Package ingest implements the binary ingestion framing shared by the
// websocket and gRPC channels.
//
// Frame layout:
//
//	bytes [0, 36)   stream id, the textual UUID returned by stream creation
//	bytes [36, n)   raw planar PCM chunk; empty means end of stream
//
// A Dispatcher routes each frame to Source.Add or Source.Complete. Adding only
// validates and enqueues the chunk, so dispatch never waits for the encoder.
// Rejected frames produce a Reply for the sender and leave the channel open.
package ingest

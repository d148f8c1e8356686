// Package receiver implements the gRPC ingestion service, the second
// transport for ingestion frames next to the websocket hub.
//
// Service sc2cc.ingest.v1.Ingest has one bidirectional streaming method,
// Frames. Messages are not protobuf: the "raw" codec passes bytes through, so
// every client message is exactly one ingestion frame (see package ingest)
// and every server message is a JSON ingest.Reply for a rejected frame.
// Clients select the codec with the content subtype "raw"; OpenFrames does
// this.
//
// Authentication is enforced upstream by the stream interceptor from package
// auth, so the receiver itself only dispatches.
package receiver

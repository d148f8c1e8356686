// Package api implements the HTTP surface of sc2cc-server.
//
// New(opts) returns an http.Handler that serves:
//
//	GET    /api/v1/health              server version, live stream count, metrics summary
//	POST   /api/v1/streams             create a stream; body is an optional CreateStreamRequest
//	POST   /api/v1/streams/upload      multipart "file" of planar float32 PCM as one completed stream
//	GET    /api/v1/streams/ws          websocket ingestion (binary frames, see package ingest)
//	GET    /api/v1/streams/{id}        the encoded bytes, replayed then followed live
//	GET    /api/v1/streams/{id}/stats  chunk count, bytes, completion, last access
//	DELETE /api/v1/streams/{id}        evict a stream
//	GET    /api/v1/cast/devices        devices known to the cast bridge
//	POST   /api/v1/cast/play           point a device at a stream or an arbitrary URL
//	GET    /metrics                    Prometheus exposition
//
// Mutating routes, websocket ingestion and the cast routes sit behind the
// configured Authorizer. Stream bytes and stats stay open so cast devices can
// fetch them without credentials.
//
// Errors are JSON {"error": "..."}: validation failures are 400, unknown
// streams or devices 404, a missing cast bridge 503.
package api

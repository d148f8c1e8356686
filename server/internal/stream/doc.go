// Package stream defines a single live audio stream (Source) and the narrow
// Encoder contract it is built around.
//
// A Source owns one queue.Queue of raw chunks to encoded chunks. Producers
// call Add and Complete; consumers call Consume (or Reader for an io.Reader
// view) and each get an independent, replaying sequence of the encoded
// output. Every Add, Complete and delivered chunk refreshes the source's
// last-access time, which the store uses for LRU and staleness eviction.
//
// Errors:
//
//	*ValidationError       malformed input, rejected before it reaches the encoder
//	ErrNotFound            unknown or evicted stream id (returned by lookups)
//	ErrCompleted           Add after Complete
//	*queue.ProcessingError terminal failure of the encoder, seen by every consumer
package stream

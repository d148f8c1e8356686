// Package store is the registry of live audio streams.
//
// Streams are created with an encoder from an injected factory and looked up
// by their generated id. The store bounds memory by evicting streams:
//
//   - capacity: only the MaxSize most recently accessed streams are kept
//   - staleness: streams not accessed for longer than StaleAfter are dropped
//
// Both rules are applied in one cleanup pass, which Run performs on a timer
// and Create performs whenever the store has reached MaxSize. Eviction only
// removes the registry entry; consumers already holding a *stream.Source keep
// reading from it.
package store

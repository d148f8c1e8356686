package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sc2cc/sc2cc/server/internal/encoder"
	"github.com/sc2cc/sc2cc/server/internal/stream"
)

// Eviction reasons reported to the Observer.
const (
	ReasonCapacity = "capacity"
	ReasonStale    = "stale"
)

const defaultCleanupInterval = time.Minute

// Config holds the eviction limits.
type Config struct {
	MaxSize         int           // <= 0 means unbounded
	StaleAfter      time.Duration // <= 0 disables staleness eviction
	CleanupInterval time.Duration // period of Run; defaults to one minute
}

// EncoderFactory builds the encoder for a new stream and returns the
// resolved parameters. *encoder.Factory implements it.
type EncoderFactory interface {
	New(p encoder.Params) (stream.Encoder, encoder.Params, error)
}

// Observer receives registry events. metrics.Metrics implements it.
type Observer interface {
	StreamCreated()
	StreamsEvicted(reason string, n int)
}

type entry struct {
	src *stream.Source
	seq uint64 // insertion order, breaks recency ties
}

// Store is a thread-safe registry of stream sources keyed by id.
type Store struct {
	factory  EncoderFactory
	obs      Observer
	interval time.Duration

	mu         sync.RWMutex
	data       map[string]*entry
	seq        uint64
	maxSize    int
	staleAfter time.Duration

	now   func() time.Time // injectable for deterministic tests
	newID func() string
}

// New creates a Store. obs may be nil.
func New(cfg Config, factory EncoderFactory, obs Observer) *Store {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	return &Store{
		factory:    factory,
		obs:        obs,
		interval:   interval,
		data:       make(map[string]*entry),
		maxSize:    cfg.MaxSize,
		staleAfter: cfg.StaleAfter,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Create builds a new stream for p under a fresh id. Invalid encoder
// parameters are returned as *stream.ValidationError.
func (s *Store) Create(p encoder.Params) (*stream.Source, error) {
	enc, resolved, err := s.factory.New(p)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	src := stream.New(s.newID(), resolved.ContentType, enc, s.now)
	s.seq++
	s.data[src.ID] = &entry{src: src, seq: s.seq}
	var capacity, stale int
	if s.maxSize > 0 && len(s.data) >= s.maxSize {
		capacity, stale = s.cleanupLocked()
	}
	s.mu.Unlock()

	slog.Info("store: stream created", "stream_id", src.ID, "content_type", src.ContentType)
	if s.obs != nil {
		s.obs.StreamCreated()
	}
	s.report(capacity, stale)
	return src, nil
}

// Get returns the stream with the given id. It does not count as an access.
func (s *Store) Get(id string) (*stream.Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[id]
	if !ok {
		return nil, false
	}
	return e.src, true
}

// Lookup is Get returning stream.ErrNotFound for unknown ids.
func (s *Store) Lookup(id string) (*stream.Source, error) {
	src, ok := s.Get(id)
	if !ok {
		return nil, stream.ErrNotFound
	}
	return src, nil
}

// Count returns the number of registered streams.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes id from the registry. It reports whether an entry was
// removed; evicting an absent id is a no-op.
func (s *Store) Evict(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return false
	}
	delete(s.data, id)
	return true
}

// SetLimits replaces MaxSize and StaleAfter. They apply from the next
// cleanup pass.
func (s *Store) SetLimits(maxSize int, staleAfter time.Duration) {
	s.mu.Lock()
	s.maxSize = maxSize
	s.staleAfter = staleAfter
	s.mu.Unlock()
}

// Cleanup runs one eviction pass and returns the number of streams removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	capacity, stale := s.cleanupLocked()
	s.mu.Unlock()
	s.report(capacity, stale)
	return capacity + stale
}

// cleanupLocked ranks streams by last access, most recent first, and removes
// every stream ranked at or beyond maxSize or idle for longer than
// staleAfter. A stream removed for both reasons counts as capacity.
//
// Equal access times rank the most recently created stream first, so on a
// coarse clock the capacity victim is the oldest stream, never the one just
// created. This replaces "insertion order" tie-breaking, which would evict
// the newcomer.
func (s *Store) cleanupLocked() (capacity, stale int) {
	now := s.now()
	type ranked struct {
		id   string
		last time.Time
		seq  uint64
	}
	all := make([]ranked, 0, len(s.data))
	for id, e := range s.data {
		all = append(all, ranked{id: id, last: e.src.LastAccessed(), seq: e.seq})
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].last.Equal(all[j].last) {
			return all[i].last.After(all[j].last)
		}
		return all[i].seq > all[j].seq
	})

	for rank, r := range all {
		switch {
		case s.maxSize > 0 && rank >= s.maxSize:
			capacity++
		case s.staleAfter > 0 && now.Sub(r.last) > s.staleAfter:
			stale++
		default:
			continue
		}
		delete(s.data, r.id)
	}
	return capacity, stale
}

func (s *Store) report(capacity, stale int) {
	if capacity+stale == 0 {
		return
	}
	slog.Info("store: evicted streams", "capacity", capacity, "stale", stale, "remaining", s.Count())
	if s.obs == nil {
		return
	}
	if capacity > 0 {
		s.obs.StreamsEvicted(ReasonCapacity, capacity)
	}
	if stale > 0 {
		s.obs.StreamsEvicted(ReasonStale, stale)
	}
}

// Run starts the periodic cleanup loop. It blocks until ctx is cancelled;
// stopping it does not evict anything.
func (s *Store) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Cleanup()
		}
	}
}

package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sc2cc/sc2cc/server/internal/queue"
)

// Encoder turns one raw chunk into zero or more encoded chunks, calling emit
// for each in order. A returned error is fatal for the stream.
type Encoder interface {
	Encode(chunk []byte, emit func([]byte)) error
}

// EncoderFunc adapts a plain function to Encoder.
type EncoderFunc func(chunk []byte, emit func([]byte)) error

func (f EncoderFunc) Encode(chunk []byte, emit func([]byte)) error { return f(chunk, emit) }

// Validator is implemented by encoders that can reject a chunk up front.
// Source.Add runs it synchronously so the caller sees validation errors
// instead of the stream failing later.
type Validator interface {
	Validate(chunk []byte) error
}

// Source is one logical audio stream.
type Source struct {
	ID          string
	ContentType string
	CreatedAt   time.Time

	enc   Encoder
	queue *queue.Queue[[]byte, []byte]
	now   func() time.Time

	mu           sync.Mutex
	lastAccessed time.Time
	completed    bool
}

// New creates a Source and starts its processing goroutine. now may be nil,
// in which case time.Now is used.
func New(id, contentType string, enc Encoder, now func() time.Time) *Source {
	if now == nil {
		now = time.Now
	}
	t := now()
	return &Source{
		ID:           id,
		ContentType:  contentType,
		CreatedAt:    t,
		enc:          enc,
		queue:        queue.New[[]byte, []byte](enc.Encode),
		now:          now,
		lastAccessed: t,
	}
}

// Add queues a raw chunk for encoding and returns without waiting for it.
// The caller must not modify chunk afterwards.
func (s *Source) Add(chunk []byte) error {
	s.touch()
	if v, ok := s.enc.(Validator); ok {
		if err := v.Validate(chunk); err != nil {
			return err
		}
	}

	s.mu.Lock()
	done := s.completed
	s.mu.Unlock()
	if done {
		return ErrCompleted
	}

	if !s.queue.Enqueue(chunk) {
		if err := s.queue.Err(); err != nil {
			return fmt.Errorf("stream %s: %w", s.ID, err)
		}
		return ErrCompleted
	}
	return nil
}

// Complete signals the end of input. It is idempotent.
func (s *Source) Complete() {
	s.touch()
	s.mu.Lock()
	s.completed = true
	s.mu.Unlock()
	s.queue.Complete()
}

// Completed reports whether Complete has been called.
func (s *Source) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// LastAccessed returns the time of the latest Add, Complete or delivered chunk.
func (s *Source) LastAccessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessed
}

// Done is closed once all input has been encoded, or encoding failed.
func (s *Source) Done() <-chan struct{} { return s.queue.Done() }

// Err returns the encoder failure that terminated the stream, if any.
func (s *Source) Err() error { return s.queue.Err() }

func (s *Source) touch() {
	t := s.now()
	s.mu.Lock()
	if t.After(s.lastAccessed) {
		s.lastAccessed = t
	}
	s.mu.Unlock()
}

// Stats is a point-in-time summary of a Source. Computing it has no effect on
// consumers or on the last-access time.
type Stats struct {
	ChunkCount     int       `json:"chunk_count"`
	TotalBytes     int       `json:"total_bytes"`
	Completed      bool      `json:"completed"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	ContentType    string    `json:"content_type"`
	Consumers      int       `json:"consumers"`
}

// Stats returns the current Stats.
func (s *Source) Stats() Stats {
	chunks := s.queue.Processed()
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		ChunkCount:     len(chunks),
		TotalBytes:     total,
		Completed:      s.completed,
		LastAccessedAt: s.lastAccessed,
		ContentType:    s.ContentType,
		Consumers:      s.queue.Consumers(),
	}
}

// Consume returns a new independent consumer of the encoded output, starting
// from the first chunk.
func (s *Source) Consume() *Consumer {
	return &Consumer{src: s, cur: s.queue.Results()}
}

// Consumer reads the encoded output of a Source.
type Consumer struct {
	src *Source
	cur *queue.Cursor[[]byte, []byte]
}

// Next returns the next encoded chunk, blocking at the live edge. It returns
// io.EOF once the stream has completed, or a *queue.ProcessingError once if
// encoding failed. Each delivered chunk refreshes the source's last-access
// time.
func (c *Consumer) Next(ctx context.Context) ([]byte, error) {
	b, err := c.cur.Next(ctx)
	if err != nil {
		return nil, err
	}
	c.src.touch()
	return b, nil
}

// Close detaches the consumer.
func (c *Consumer) Close() { c.cur.Close() }

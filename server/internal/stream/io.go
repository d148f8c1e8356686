package stream

import (
	"context"
	"io"
)

// Reader returns an io.ReadCloser over the encoded output. Reads block at the
// live edge until more output arrives, the stream ends (io.EOF) or ctx is
// done.
func (s *Source) Reader(ctx context.Context) io.ReadCloser {
	return &reader{ctx: ctx, c: s.Consume()}
}

type reader struct {
	ctx context.Context
	c   *Consumer
	buf []byte
	err error
}

func (r *reader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		b, err := r.c.Next(r.ctx)
		if err != nil {
			r.err = err
			continue
		}
		r.buf = b
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *reader) Close() error {
	r.c.Close()
	if r.err == nil {
		r.err = io.ErrClosedPipe
	}
	return nil
}

// Writer returns an io.WriteCloser that adds each Write as one raw chunk and
// completes the stream on Close.
func (s *Source) Writer() io.WriteCloser {
	return &writer{s: s}
}

type writer struct {
	s *Source
}

func (w *writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)
	if err := w.s.Add(chunk); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *writer) Close() error {
	w.s.Complete()
	return nil
}

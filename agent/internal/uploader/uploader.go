package uploader

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sc2cc/sc2cc/agent/internal/config"
)

const (
	createPath     = "/api/v1/streams"
	wsPath         = "/api/v1/streams/ws"
	idLen          = 36
	requestTimeout = 15 * time.Second
	writeTimeout   = 10 * time.Second
	closeWait      = 2 * time.Second
)

var (
	// ErrUnauthorized is returned when the server rejects the API key. It is
	// not retried.
	ErrUnauthorized = errors.New("uploader: unauthorized")

	errNoStream = errors.New("uploader: no stream created")
)

// Reply is an error message sent back by the server for a rejected frame.
type Reply struct {
	StreamID string `json:"stream_id,omitempty"`
	Error    string `json:"error"`
}

// Uploader creates one stream on sc2cc-server and feeds it frames over the
// websocket ingestion channel. Frames produced while the server is
// unreachable are buffered (oldest dropped past BufferSize) and flushed in
// order on reconnect.
//
// Create, Send, Complete, Stream and Close must be called from one goroutine.
type Uploader struct {
	cfg    config.AgentConfig
	client *http.Client
	dialer *websocket.Dialer
	wait   func(ctx context.Context, d time.Duration) error // injectable for tests

	id       string
	pending  [][]byte
	dropped  int
	conn     *websocket.Conn
	readDone chan struct{}

	mu       sync.Mutex
	rejected []Reply
}

// New creates an Uploader for cfg. No connection is made until Create.
func New(cfg config.AgentConfig) *Uploader {
	tlsCfg := &tls.Config{InsecureSkipVerify: cfg.TLS.InsecureSkipVerify} //nolint:gosec
	return &Uploader{
		cfg: cfg,
		client: &http.Client{
			Timeout:   requestTimeout,
			Transport: &http.Transport{TLSClientConfig: tlsCfg, Proxy: http.ProxyFromEnvironment},
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: requestTimeout,
			TLSClientConfig:  tlsCfg,
			Proxy:            http.ProxyFromEnvironment,
		},
		wait: sleepCtx,
	}
}

// ID returns the id of the created stream, or "" before Create.
func (u *Uploader) ID() string { return u.id }

// Dropped returns the number of frames discarded because the buffer was full.
func (u *Uploader) Dropped() int { return u.dropped }

// Rejected returns the error replies received so far.
func (u *Uploader) Rejected() []Reply {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Reply(nil), u.rejected...)
}

// Create asks the server for a new stream with the configured parameters and
// returns its id.
func (u *Uploader) Create(ctx context.Context) (string, error) {
	body, err := json.Marshal(u.cfg.Stream)
	if err != nil {
		return "", fmt.Errorf("uploader: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.base()+createPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("uploader: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	u.authorize(req.Header)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploader: create stream: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		ID          string `json:"id"`
		ContentType string `json:"content_type"`
		URL         string `json:"url"`
		Error       string `json:"error"`
	}
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", ErrUnauthorized
	case resp.StatusCode/100 != 2:
		msg := out.Error
		if msg == "" {
			msg = resp.Status
		}
		return "", fmt.Errorf("uploader: create stream: %s", msg)
	case decodeErr != nil:
		return "", fmt.Errorf("uploader: decode response: %w", decodeErr)
	case len(out.ID) != idLen:
		return "", fmt.Errorf("uploader: server returned malformed stream id %q", out.ID)
	}

	u.id = out.ID
	slog.Info("uploader: stream created",
		"stream_id", out.ID,
		"content_type", out.ContentType,
		"url", u.base()+out.URL)
	return out.ID, nil
}

// Send queues chunk as a data frame and flushes everything pending.
func (u *Uploader) Send(ctx context.Context, chunk []byte) error {
	if u.id == "" {
		return errNoStream
	}
	if len(chunk) == 0 {
		return nil // an empty payload would end the stream
	}
	u.push(frame(u.id, chunk))
	return u.flush(ctx)
}

// Complete sends the end-of-stream frame and closes the connection.
func (u *Uploader) Complete(ctx context.Context) error {
	if u.id == "" {
		return errNoStream
	}
	u.push(frame(u.id, nil))
	if err := u.flush(ctx); err != nil {
		return err
	}
	slog.Info("uploader: stream completed", "stream_id", u.id, "dropped", u.dropped)
	return u.Close()
}

// Stream creates the stream if needed, sends r in frames of
// cfg.FrameBytes() bytes and completes the stream at EOF. A trailing
// partial frame is sent when it holds whole samples for every channel.
func (u *Uploader) Stream(ctx context.Context, r io.Reader) error {
	if u.id == "" {
		if _, err := u.Create(ctx); err != nil {
			return err
		}
	}
	sampleBytes := u.cfg.Stream.Channels * 4
	buf := make([]byte, u.cfg.FrameBytes())
	for {
		n, err := io.ReadFull(r, buf)
		if rem := n % sampleBytes; rem != 0 {
			slog.Warn("uploader: discarding incomplete trailing samples", "bytes", rem)
			n -= rem
		}
		if n > 0 {
			if sendErr := u.Send(ctx, buf[:n]); sendErr != nil {
				return sendErr
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return u.Complete(ctx)
		default:
			return fmt.Errorf("uploader: read input: %w", err)
		}
	}
}

// Close closes the websocket connection, if any, after a normal close
// handshake. Pending frames stay buffered.
func (u *Uploader) Close() error {
	if u.conn == nil {
		return nil
	}
	conn, done := u.conn, u.readDone
	u.conn = nil

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	select {
	case <-done:
	case <-time.After(closeWait):
	}
	conn.Close()
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

// push appends f to the pending buffer, dropping the oldest frame when full.
func (u *Uploader) push(f []byte) {
	if len(u.pending) >= u.cfg.BufferSize {
		u.pending[0] = nil
		u.pending = u.pending[1:]
		u.dropped++
		slog.Warn("uploader: buffer full, dropped oldest frame",
			"stream_id", u.id, "buffer_cap", u.cfg.BufferSize)
	}
	u.pending = append(u.pending, f)
}

// flush writes pending frames in order, reconnecting with backoff. It gives
// up after cfg.MaxAttempts consecutive failures.
func (u *Uploader) flush(ctx context.Context) error {
	bo := newBackoff()
	failures := 0
	fail := func(err error) error {
		failures++
		if failures >= u.cfg.MaxAttempts {
			return fmt.Errorf("uploader: giving up after %d attempts: %w", failures, err)
		}
		wait := bo.next()
		slog.Warn("uploader: send failed, will retry",
			"url", u.wsURL(), "err", err, "retry_in", wait, "pending", len(u.pending))
		return u.wait(ctx, wait)
	}

	for len(u.pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if u.conn != nil && u.broken() {
			u.drop()
		}
		if u.conn == nil {
			if err := u.connect(ctx); err != nil {
				if errors.Is(err, ErrUnauthorized) {
					return err
				}
				if err := fail(err); err != nil {
					return err
				}
				continue
			}
		}

		u.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
		if err := u.conn.WriteMessage(websocket.BinaryMessage, u.pending[0]); err != nil {
			u.drop()
			if err := fail(err); err != nil {
				return err
			}
			continue
		}
		u.pending[0] = nil
		u.pending = u.pending[1:]
		failures = 0
		bo.reset()
	}
	return nil
}

func (u *Uploader) connect(ctx context.Context) error {
	hdr := http.Header{}
	u.authorize(hdr)
	conn, resp, err := u.dialer.DialContext(ctx, u.wsURL(), hdr)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized {
				return ErrUnauthorized
			}
			return fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial: %w", err)
	}
	u.conn = conn
	u.readDone = make(chan struct{})
	go u.readPump(conn, u.readDone)
	slog.Info("uploader: connected", "url", u.wsURL())
	return nil
}

// broken reports whether the read side of the current connection has ended.
func (u *Uploader) broken() bool {
	select {
	case <-u.readDone:
		return true
	default:
		return false
	}
}

func (u *Uploader) drop() {
	u.conn.Close()
	u.conn = nil
}

// readPump records error replies. It also keeps control frames (pings)
// flowing, which gorilla only handles while reading.
func (u *Uploader) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("uploader: connection closed", "err", err)
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		var r Reply
		if err := json.Unmarshal(msg, &r); err != nil {
			slog.Warn("uploader: unreadable server message", "err", err)
			continue
		}
		slog.Warn("uploader: server rejected frame", "stream_id", r.StreamID, "err", r.Error)
		u.mu.Lock()
		u.rejected = append(u.rejected, r)
		u.mu.Unlock()
	}
}

func (u *Uploader) authorize(h http.Header) {
	if u.cfg.ServerAuth.Mode != "apikey" {
		return
	}
	if key := u.cfg.ServerAuth.Key(); key != "" {
		h.Set(u.cfg.ServerAuth.EffectiveHeader(), key)
	}
}

func (u *Uploader) base() string {
	return strings.TrimRight(u.cfg.ServerURL, "/")
}

// wsURL derives the ingestion URL from the HTTP base URL.
func (u *Uploader) wsURL() string {
	p, err := url.Parse(u.base())
	if err != nil {
		return u.base() + wsPath
	}
	if p.Scheme == "https" {
		p.Scheme = "wss"
	} else {
		p.Scheme = "ws"
	}
	p.Path = strings.TrimRight(p.Path, "/") + wsPath
	return p.String()
}

// frame builds an ingestion frame: the 36-byte stream id then the payload.
func frame(id string, payload []byte) []byte {
	b := make([]byte, 0, len(id)+len(payload))
	b = append(b, id...)
	return append(b, payload...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sc2cc/sc2cc/agent/internal/config"
)

const testID = "00000000-0000-0000-0000-000000000001"

// fakeServer implements the two endpoints the uploader uses.
type fakeServer struct {
	srv *httptest.Server

	mu        sync.Mutex
	frames    [][]byte
	dials     int
	refuse    int // upgrades still to refuse with 503
	status    int // status of every refused upgrade
	apiKey    string
	createReq map[string]interface{}
	createErr string

	got chan []byte
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{status: http.StatusServiceUnavailable, got: make(chan []byte, 64)}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/streams", fs.create)
	mux.HandleFunc("/api/v1/streams/ws", fs.ingest)
	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) create(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	fs.apiKey = r.Header.Get("x-api-key")
	json.NewDecoder(r.Body).Decode(&fs.createReq) //nolint:errcheck
	createErr := fs.createErr
	fs.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if createErr != "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": createErr}) //nolint:errcheck
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
		"id": testID, "content_type": "audio/L16", "url": "/api/v1/streams/" + testID,
	})
}

func (fs *fakeServer) ingest(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	fs.dials++
	refuse := fs.refuse > 0
	if refuse {
		fs.refuse--
	}
	status := fs.status
	fs.mu.Unlock()
	if refuse {
		http.Error(w, "not now", status)
		return
	}

	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.frames = append(fs.frames, msg)
		fs.mu.Unlock()
		if bytes.HasSuffix(msg, []byte("bad!")) {
			reply, _ := json.Marshal(Reply{StreamID: testID, Error: "invalid chunk"})
			conn.WriteMessage(websocket.TextMessage, reply) //nolint:errcheck
		}
		fs.got <- msg
	}
}

func (fs *fakeServer) dialCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.dials
}

func (fs *fakeServer) next(t *testing.T) []byte {
	t.Helper()
	select {
	case f := <-fs.got:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func newUploader(fs *fakeServer, mod func(*config.AgentConfig)) *Uploader {
	cfg := config.Defaults().Agent
	cfg.ServerURL = fs.srv.URL
	cfg.Stream = config.StreamConfig{ContentType: "audio/L16", Channels: 1, SampleRate: 8000}
	cfg.ChunkSamples = 2
	cfg.MaxAttempts = 3
	if mod != nil {
		mod(&cfg)
	}
	u := New(cfg)
	u.wait = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return u
}

func TestCreate_SendsParamsAndKey(t *testing.T) {
	t.Setenv("SC2CC_TEST_KEY", "s3cret")
	fs := newFakeServer(t)
	u := newUploader(fs, func(c *config.AgentConfig) {
		c.ServerAuth = config.AuthConfig{Mode: "apikey", KeyEnv: "SC2CC_TEST_KEY"}
	})

	id, err := u.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != testID || u.ID() != testID {
		t.Errorf("id: got %q", id)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.apiKey != "s3cret" {
		t.Errorf("api key header: got %q", fs.apiKey)
	}
	if fs.createReq["content_type"] != "audio/L16" || fs.createReq["channels"] != float64(1) {
		t.Errorf("request body: got %v", fs.createReq)
	}
}

func TestCreate_ServerError(t *testing.T) {
	fs := newFakeServer(t)
	fs.createErr = `unsupported content type "audio/ogg"`
	u := newUploader(fs, nil)

	_, err := u.Create(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unsupported content type") {
		t.Fatalf("got %v, want server message", err)
	}
	if u.ID() != "" {
		t.Errorf("id set after failure: %q", u.ID())
	}
}

func TestSend_BeforeCreate(t *testing.T) {
	u := newUploader(newFakeServer(t), nil)
	if err := u.Send(context.Background(), []byte{0, 0, 0, 0}); !errors.Is(err, errNoStream) {
		t.Errorf("got %v, want errNoStream", err)
	}
}

func TestStream_FramesAndEnd(t *testing.T) {
	fs := newFakeServer(t)
	u := newUploader(fs, nil) // 1 channel, 2 samples: 8-byte frames

	input := bytes.Repeat([]byte{1}, 20)
	if err := u.Stream(context.Background(), bytes.NewReader(input)); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	wantPayload := []int{8, 8, 4, 0}
	for i, n := range wantPayload {
		f := fs.next(t)
		if !bytes.HasPrefix(f, []byte(testID)) {
			t.Fatalf("frame %d: missing stream id prefix", i)
		}
		if got := len(f) - idLen; got != n {
			t.Errorf("frame %d: payload %d bytes, want %d", i, got, n)
		}
	}
}

func TestStream_DiscardsIncompleteSamples(t *testing.T) {
	fs := newFakeServer(t)
	u := newUploader(fs, func(c *config.AgentConfig) { c.Stream.Channels = 2 }) // 16-byte frames

	if err := u.Stream(context.Background(), bytes.NewReader(make([]byte, 16+10))); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got := len(fs.next(t)) - idLen; got != 16 {
		t.Errorf("first frame: got %d bytes", got)
	}
	// 10 trailing bytes hold one whole 8-byte sample pair.
	if got := len(fs.next(t)) - idLen; got != 8 {
		t.Errorf("trailing frame: got %d bytes, want 8", got)
	}
	if got := len(fs.next(t)) - idLen; got != 0 {
		t.Errorf("end frame: got %d bytes", got)
	}
}

func TestSend_ReconnectsAfterRefusals(t *testing.T) {
	fs := newFakeServer(t)
	fs.refuse = 2
	u := newUploader(fs, nil)
	if _, err := u.Create(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := u.Send(context.Background(), []byte("abcd")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := fs.next(t); string(got[idLen:]) != "abcd" {
		t.Errorf("payload: got %q", got[idLen:])
	}
	if fs.dialCount() != 3 {
		t.Errorf("dials: got %d, want 3", fs.dialCount())
	}
	u.Close() //nolint:errcheck
}

func TestSend_GivesUpAndKeepsFrames(t *testing.T) {
	fs := newFakeServer(t)
	fs.refuse = 100
	u := newUploader(fs, nil)
	if _, err := u.Create(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := u.Send(context.Background(), []byte("abcd"))
	if err == nil || !strings.Contains(err.Error(), "giving up after 3 attempts") {
		t.Fatalf("got %v", err)
	}
	if len(u.pending) != 1 {
		t.Errorf("pending: got %d, want the frame kept", len(u.pending))
	}

	// Once the server is back the buffered frame goes first.
	fs.mu.Lock()
	fs.refuse = 0
	fs.mu.Unlock()
	if err := u.Send(context.Background(), []byte("efgh")); err != nil {
		t.Fatalf("Send after recovery: %v", err)
	}
	if got := fs.next(t); string(got[idLen:]) != "abcd" {
		t.Errorf("first delivered: got %q", got[idLen:])
	}
	if got := fs.next(t); string(got[idLen:]) != "efgh" {
		t.Errorf("second delivered: got %q", got[idLen:])
	}
	u.Close() //nolint:errcheck
}

func TestSend_UnauthorizedNotRetried(t *testing.T) {
	fs := newFakeServer(t)
	fs.refuse = 100
	fs.status = http.StatusUnauthorized
	u := newUploader(fs, nil)
	if _, err := u.Create(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := u.Send(context.Background(), []byte("abcd")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	if fs.dialCount() != 1 {
		t.Errorf("dials: got %d, want 1", fs.dialCount())
	}
}

func TestComplete_CollectsRejections(t *testing.T) {
	fs := newFakeServer(t)
	u := newUploader(fs, nil)
	if _, err := u.Create(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := u.Send(context.Background(), []byte("bad!")); err != nil {
		t.Fatal(err)
	}
	if err := u.Complete(context.Background()); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	rej := u.Rejected()
	if len(rej) != 1 || rej[0].Error != "invalid chunk" || rej[0].StreamID != testID {
		t.Errorf("rejected: got %+v", rej)
	}
}

func TestWSURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:3001":     "ws://localhost:3001/api/v1/streams/ws",
		"https://cast.example.com/": "wss://cast.example.com/api/v1/streams/ws",
		"http://host/prefix":        "ws://host/prefix/api/v1/streams/ws",
	}
	for in, want := range cases {
		u := New(config.AgentConfig{ServerURL: in})
		if got := u.wsURL(); got != want {
			t.Errorf("wsURL(%q): got %q, want %q", in, got, want)
		}
	}
}

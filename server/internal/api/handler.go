package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sc2cc/sc2cc/server/internal/auth"
	"github.com/sc2cc/sc2cc/server/internal/cast"
	"github.com/sc2cc/sc2cc/server/internal/encoder"
	"github.com/sc2cc/sc2cc/server/internal/metrics"
	"github.com/sc2cc/sc2cc/server/internal/store"
	"github.com/sc2cc/sc2cc/server/internal/stream"
)

const streamsPath = "/api/v1/streams/"

// Caster is the device/casting collaborator. *cast.Client implements it.
type Caster interface {
	ListDevices(ctx context.Context) ([]cast.Device, error)
	Play(ctx context.Context, deviceID string, m cast.Media) (json.RawMessage, error)
}

// Options wires the handler to the rest of the server. Store is required;
// nil Ingest, Caster, Metrics or Stats disable the corresponding routes or
// fields.
type Options struct {
	Store          *store.Store
	Encoders       *encoder.Factory
	Ingest         http.Handler // websocket ingestion hub
	Caster         Caster
	Auth           auth.Authorizer
	Metrics        http.Handler
	Stats          func() (metrics.Snapshot, error)
	PublicURL      string
	MaxUploadBytes int64
	Version        string
}

// Handler is the HTTP handler for all /api/v1/* endpoints and /metrics.
type Handler struct {
	opts Options
	mux  *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(opts Options) http.Handler {
	if opts.Auth == nil {
		opts.Auth = auth.APIKey{Mode: auth.ModeNone}
	}
	h := &Handler{opts: opts, mux: http.NewServeMux()}
	protect := func(f http.HandlerFunc) http.Handler { return auth.Middleware(opts.Auth, f) }

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.Handle("/api/v1/streams", protect(h.createStream))
	h.mux.Handle("/api/v1/streams/upload", protect(h.upload))
	h.mux.HandleFunc(streamsPath, h.streamRoutes) // subtree: {id}, {id}/stats
	if opts.Ingest != nil {
		h.mux.Handle("/api/v1/streams/ws", auth.Middleware(opts.Auth, opts.Ingest))
	}
	if opts.Caster != nil {
		h.mux.Handle("/api/v1/cast/devices", protect(h.devices))
		h.mux.Handle("/api/v1/cast/play", protect(h.play))
	}
	if opts.Metrics != nil {
		h.mux.Handle("/metrics", opts.Metrics)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := HealthResponse{
		Status:  "ok",
		Version: h.opts.Version,
		Streams: h.opts.Store.Count(),
	}
	if h.opts.Encoders != nil {
		resp.ContentTypes = h.opts.Encoders.ContentTypes()
	}
	if h.opts.Stats != nil {
		if s, err := h.opts.Stats(); err == nil {
			resp.Metrics = &s
		} else {
			slog.Warn("api: metrics snapshot failed", "err", err)
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// createStream handles POST /api/v1/streams.
func (h *Handler) createStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req CreateStreamRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	src, err := h.create(req)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, toStreamResponse(src))
}

// upload handles POST /api/v1/streams/upload: a multipart "file" of raw
// planar PCM becomes one chunk of a new, completed stream.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := h.opts.MaxUploadBytes
	if limit <= 0 {
		limit = 32 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20)) // room for multipart overhead
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonErr(w, http.StatusRequestEntityTooLarge, "upload exceeds "+strconv.FormatInt(limit, 10)+" bytes")
			return
		}
		jsonErr(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "missing form file \"file\"")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}
	if int64(len(data)) > limit {
		jsonErr(w, http.StatusRequestEntityTooLarge, "upload exceeds "+strconv.FormatInt(limit, 10)+" bytes")
		return
	}

	req := CreateStreamRequest{ContentType: r.FormValue("content_type")}
	if req.ContentType == "" && strings.HasPrefix(hdr.Header.Get("Content-Type"), "audio/") {
		req.ContentType = hdr.Header.Get("Content-Type")
	}
	if req.Channels, err = formInt(r, "channels"); err != nil {
		writeErr(w, err)
		return
	}
	if req.SampleRate, err = formInt(r, "sample_rate"); err != nil {
		writeErr(w, err)
		return
	}

	src, err := h.create(req)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := src.Writer()
	if _, err := out.Write(data); err != nil {
		h.opts.Store.Evict(src.ID)
		writeErr(w, err)
		return
	}
	out.Close() //nolint:errcheck

	slog.Info("api: upload accepted", "stream_id", src.ID, "bytes", len(data))
	jsonResp(w, http.StatusCreated, toStreamResponse(src))
}

// streamRoutes dispatches GET /api/v1/streams/{id}, GET
// /api/v1/streams/{id}/stats and DELETE /api/v1/streams/{id}.
func (h *Handler) streamRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, streamsPath)
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		jsonErr(w, http.StatusNotFound, "stream id required")
		return
	}

	switch {
	case sub == "stats" && r.Method == http.MethodGet:
		h.stats(w, id)
	case sub == "" && r.Method == http.MethodGet:
		h.serveStream(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		auth.Middleware(h.opts.Auth, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.evict(w, id)
		})).ServeHTTP(w, r)
	case sub == "" || sub == "stats":
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) stats(w http.ResponseWriter, id string) {
	src, err := h.opts.Store.Lookup(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, src.Stats())
}

func (h *Handler) evict(w http.ResponseWriter, id string) {
	if !h.opts.Store.Evict(id) {
		writeErr(w, stream.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// serveStream writes the encoded output of a stream as it is produced,
// replaying what already exists first. The response ends when the stream
// completes or the client goes away.
func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request, id string) {
	src, err := h.opts.Store.Lookup(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	c := src.Consume()
	defer c.Close()

	w.Header().Set("Content-Type", src.ContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		chunk, err := c.Next(r.Context())
		switch {
		case errors.Is(err, io.EOF):
			return
		case err != nil && r.Context().Err() != nil:
			return
		case err != nil:
			slog.Error("api: stream failed mid-response", "stream_id", id, "err", err)
			// Abort so the client sees a truncated body, not a clean end.
			panic(http.ErrAbortHandler)
		}
		if _, err := w.Write(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// devices returns GET /api/v1/cast/devices.
func (h *Handler) devices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	devs, err := h.opts.Caster.ListDevices(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, devs)
}

// play handles POST /api/v1/cast/play.
func (h *Handler) play(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req PlayRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		jsonErr(w, http.StatusBadRequest, "device_id is required")
		return
	}
	if (req.StreamID == "") == (req.MediaURL == "") {
		jsonErr(w, http.StatusBadRequest, "exactly one of stream_id and media_url is required")
		return
	}

	m := cast.Media{
		ContentID:   req.MediaURL,
		ContentType: req.ContentType,
		StreamType:  cast.StreamTypeBuffered,
		Title:       req.Title,
	}
	if req.StreamID != "" {
		src, err := h.opts.Store.Lookup(req.StreamID)
		if err != nil {
			writeErr(w, err)
			return
		}
		m.ContentID = h.baseURL(r) + streamsPath + src.ID
		m.ContentType = src.ContentType
		m.StreamType = cast.StreamTypeLive
	}
	if m.ContentType == "" {
		m.ContentType = "audio/mpeg"
	}

	status, err := h.opts.Caster.Play(r.Context(), req.DeviceID, m)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if len(status) == 0 {
		status = json.RawMessage("{}")
	}
	w.Write(status) //nolint:errcheck
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) create(req CreateStreamRequest) (*stream.Source, error) {
	return h.opts.Store.Create(encoder.Params{
		ContentType: req.ContentType,
		Channels:    req.Channels,
		SampleRate:  req.SampleRate,
	})
}

// baseURL is the configured public URL or the one the request came in on.
func (h *Handler) baseURL(r *http.Request) string {
	if h.opts.PublicURL != "" {
		return strings.TrimRight(h.opts.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}

func toStreamResponse(src *stream.Source) StreamResponse {
	return StreamResponse{ID: src.ID, ContentType: src.ContentType, URL: streamsPath + src.ID}
}

func formInt(r *http.Request, key string) (int, error) {
	v := r.FormValue(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, stream.Invalid("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// writeErr maps the error taxonomy onto HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case stream.IsValidation(err):
		jsonErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, stream.ErrNotFound):
		jsonErr(w, http.StatusNotFound, "stream not found")
	case errors.Is(err, cast.ErrDeviceNotFound):
		jsonErr(w, http.StatusNotFound, "cast device not found")
	case errors.Is(err, cast.ErrNotConfigured):
		jsonErr(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("api: request failed", "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
	}
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

package encoder

import (
	"sort"
	"strings"
	"sync"

	"github.com/sc2cc/sc2cc/server/internal/stream"
)

// Params selects and configures an encoder. Zero fields take the factory
// defaults.
type Params struct {
	ContentType string `json:"content_type,omitempty" yaml:"content_type"`
	Channels    int    `json:"channels,omitempty"     yaml:"channels"`
	SampleRate  int    `json:"sample_rate,omitempty"  yaml:"sample_rate"`
}

const (
	maxChannels   = 8
	maxSampleRate = 384000
)

// Constructor builds an encoder for fully resolved Params.
type Constructor func(p Params) (stream.Encoder, error)

// Observer receives encoder activity. metrics.Metrics implements it.
type Observer interface {
	ChunkEncoded(bytes int)
	EncodeFailed()
}

type registration struct {
	contentType string
	ctor        Constructor
}

// Factory builds encoders by content type.
type Factory struct {
	defaults Params
	obs      Observer

	mu    sync.RWMutex
	ctors map[string]registration // keyed by lower-cased content type
}

// NewFactory returns a Factory with the WAV and L16 encoders registered.
// obs may be nil.
func NewFactory(defaults Params, obs Observer) *Factory {
	f := &Factory{
		defaults: defaults,
		obs:      obs,
		ctors:    make(map[string]registration),
	}
	f.Register(ContentTypeWAV, NewWAV)
	f.Register(ContentTypeL16, NewL16)
	return f
}

// Register adds or replaces the constructor for contentType.
func (f *Factory) Register(contentType string, c Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctors[strings.ToLower(contentType)] = registration{contentType: contentType, ctor: c}
}

// ContentTypes lists the registered content types, sorted.
func (f *Factory) ContentTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.ctors))
	for _, r := range f.ctors {
		out = append(out, r.contentType)
	}
	sort.Strings(out)
	return out
}

// New resolves p against the defaults and builds an encoder. It returns the
// resolved Params. Unsupported content types and out-of-range parameters are
// *stream.ValidationError.
func (f *Factory) New(p Params) (stream.Encoder, Params, error) {
	if p.ContentType == "" {
		p.ContentType = f.defaults.ContentType
	}
	if p.Channels == 0 {
		p.Channels = f.defaults.Channels
	}
	if p.SampleRate == 0 {
		p.SampleRate = f.defaults.SampleRate
	}
	if p.Channels < 1 || p.Channels > maxChannels {
		return nil, p, stream.Invalid("channels must be between 1 and %d, got %d", maxChannels, p.Channels)
	}
	if p.SampleRate < 1 || p.SampleRate > maxSampleRate {
		return nil, p, stream.Invalid("sample_rate must be between 1 and %d, got %d", maxSampleRate, p.SampleRate)
	}

	f.mu.RLock()
	r, ok := f.ctors[strings.ToLower(strings.TrimSpace(p.ContentType))]
	f.mu.RUnlock()
	if !ok {
		return nil, p, stream.Invalid("unsupported content type %q", p.ContentType)
	}
	p.ContentType = r.contentType

	enc, err := r.ctor(p)
	if err != nil {
		return nil, p, &stream.ValidationError{Channel: -1, Msg: "cannot create " + p.ContentType + " encoder", Err: err}
	}
	if f.obs != nil {
		enc = &instrumented{inner: enc, obs: f.obs}
	}
	return enc, p, nil
}

// instrumented reports every encoded chunk and failure to an Observer.
type instrumented struct {
	inner stream.Encoder
	obs   Observer
}

func (e *instrumented) Validate(chunk []byte) error {
	if v, ok := e.inner.(stream.Validator); ok {
		return v.Validate(chunk)
	}
	return nil
}

func (e *instrumented) Encode(chunk []byte, emit func([]byte)) error {
	err := e.inner.Encode(chunk, func(b []byte) {
		e.obs.ChunkEncoded(len(b))
		emit(b)
	})
	if err != nil {
		e.obs.EncodeFailed()
	}
	return err
}

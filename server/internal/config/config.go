package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort        = 3001
	DefaultGRPCPort        = 50051
	DefaultLogLevel        = "info"
	DefaultMaxStreams      = 64
	DefaultStaleAfter      = 30 * time.Minute
	DefaultCleanupInterval = time.Minute
	DefaultBurst           = 64
	DefaultMaxUploadBytes  = 32 << 20
	DefaultContentType     = "audio/wav"
	DefaultChannels        = 2
	DefaultSampleRate      = 44100
	DefaultBridgeURLEnv    = "CAST_BRIDGE_URL"
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort serves the REST API, websocket ingestion and /metrics.
	HTTPPort int `yaml:"http_port"`

	// GRPCPort serves gRPC ingestion. 0 disables the gRPC listener.
	GRPCPort int `yaml:"grpc_port"`

	// LogLevel is one of debug | info | warn | error. Reloaded live.
	LogLevel string `yaml:"log_level"`

	// PublicURL is the externally reachable base URL of this server, used to
	// build the media URL handed to cast devices. Defaults to the request host.
	PublicURL string `yaml:"public_url"`

	Auth    AuthConfig    `yaml:"auth"`
	Store   StoreConfig   `yaml:"store"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Encoder EncoderConfig `yaml:"encoder"`
	Cast    CastConfig    `yaml:"cast"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header (and gRPC metadata key) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// StoreConfig bounds the number and lifetime of streams held in memory.
type StoreConfig struct {
	// MaxSize is the number of streams kept; least recently accessed go first.
	MaxSize int `yaml:"max_size"`

	// StaleAfter evicts streams not accessed for this long. 0 disables it.
	StaleAfter time.Duration `yaml:"stale_after"`

	// CleanupInterval is the period of the eviction pass.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// IngestConfig limits the ingestion channels and uploads.
type IngestConfig struct {
	// FramesPerSecond limits each websocket connection. 0 means unlimited.
	FramesPerSecond float64 `yaml:"frames_per_second"`
	Burst           int     `yaml:"burst"`

	// MaxUploadBytes bounds POST /api/v1/streams/upload.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// EncoderConfig holds the defaults for streams created without parameters.
type EncoderConfig struct {
	ContentType string `yaml:"content_type"`
	Channels    int    `yaml:"channels"`
	SampleRate  int    `yaml:"sample_rate"`
}

// CastConfig locates the cast bridge.
type CastConfig struct {
	// BridgeURLEnv names the environment variable holding the bridge base URL.
	BridgeURLEnv string `yaml:"bridge_url_env"`
}

// BridgeURL returns the bridge URL resolved from the environment.
func (c CastConfig) BridgeURL() string {
	if c.BridgeURLEnv == "" {
		return ""
	}
	return os.Getenv(c.BridgeURLEnv)
}

// Level parses LogLevel. Validation guarantees it is one of the known names.
func (s ServerConfig) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values. The server
// runs on it when no config file is given.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
			LogLevel: DefaultLogLevel,
			Auth: AuthConfig{
				Mode: "none",
			},
			Store: StoreConfig{
				MaxSize:         DefaultMaxStreams,
				StaleAfter:      DefaultStaleAfter,
				CleanupInterval: DefaultCleanupInterval,
			},
			Ingest: IngestConfig{
				Burst:          DefaultBurst,
				MaxUploadBytes: DefaultMaxUploadBytes,
			},
			Encoder: EncoderConfig{
				ContentType: DefaultContentType,
				Channels:    DefaultChannels,
				SampleRate:  DefaultSampleRate,
			},
			Cast: CastConfig{
				BridgeURLEnv: DefaultBridgeURLEnv,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.GRPCPort < 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", s.GRPCPort)
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Auth.Mode == "apikey" && s.Auth.KeyEnv == "" {
		return fmt.Errorf("server.auth.key_env is required when auth.mode is apikey")
	}
	if s.Store.MaxSize <= 0 {
		return fmt.Errorf("server.store.max_size must be positive")
	}
	if s.Store.StaleAfter < 0 {
		return fmt.Errorf("server.store.stale_after must not be negative")
	}
	if s.Store.CleanupInterval <= 0 {
		return fmt.Errorf("server.store.cleanup_interval must be positive")
	}
	if s.Ingest.FramesPerSecond < 0 {
		return fmt.Errorf("server.ingest.frames_per_second must not be negative")
	}
	if s.Ingest.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.ingest.max_upload_bytes must be positive")
	}
	if s.Encoder.Channels <= 0 || s.Encoder.SampleRate <= 0 {
		return fmt.Errorf("server.encoder.channels and sample_rate must be positive")
	}
	return nil
}

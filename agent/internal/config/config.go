package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultServerURL    = "http://localhost:3001"
	DefaultLogLevel     = "info"
	DefaultContentType  = "audio/wav"
	DefaultChannels     = 2
	DefaultSampleRate   = 44100
	DefaultChunkSamples = 4096
	DefaultBufferSize   = 256
	DefaultMaxAttempts  = 8
)

// Config is the top-level agent configuration. The `server:` key of a shared
// config.yaml is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerURL is the HTTP base URL of sc2cc-server. The websocket URL is
	// derived from it (http -> ws, https -> wss).
	ServerURL string `yaml:"server_url"`

	// LogLevel is one of debug | info | warn | error. Reloaded live.
	LogLevel string `yaml:"log_level"`

	// Stream holds the parameters of the stream the agent creates.
	Stream StreamConfig `yaml:"stream"`

	// ChunkSamples is the number of samples per channel in each frame.
	ChunkSamples int `yaml:"chunk_samples"`

	// BufferSize is the maximum number of frames held in memory while the
	// server is unreachable. The oldest frame is dropped when it overflows.
	BufferSize int `yaml:"buffer_size"`

	// MaxAttempts bounds consecutive failed connection attempts.
	MaxAttempts int `yaml:"max_attempts"`

	// ServerAuth configures how the agent authenticates to sc2cc-server.
	ServerAuth AuthConfig `yaml:"server_auth"`

	TLS TLSConfig `yaml:"tls"`
}

// StreamConfig mirrors the body of POST /api/v1/streams.
type StreamConfig struct {
	ContentType string `yaml:"content_type" json:"content_type"`
	Channels    int    `yaml:"channels" json:"channels"`
	SampleRate  int    `yaml:"sample_rate" json:"sample_rate"`
}

// AuthConfig specifies how the agent presents its API key.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header name to send the key in. Defaults to x-api-key.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// TLSConfig holds TLS dial options for https/wss server URLs.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// FrameBytes is the payload size of a full frame.
func (a AgentConfig) FrameBytes() int {
	return a.ChunkSamples * a.Stream.Channels * 4
}

// Level parses LogLevel.
func (a AgentConfig) Level() slog.Level {
	switch strings.ToLower(a.LogLevel) {
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

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			ServerURL: DefaultServerURL,
			LogLevel:  DefaultLogLevel,
			Stream: StreamConfig{
				ContentType: DefaultContentType,
				Channels:    DefaultChannels,
				SampleRate:  DefaultSampleRate,
			},
			ChunkSamples: DefaultChunkSamples,
			BufferSize:   DefaultBufferSize,
			MaxAttempts:  DefaultMaxAttempts,
		},
	}
}

// Validate checks required fields and structural constraints. The agent
// binary also calls it after applying command-line overrides.
func Validate(cfg *Config) error {
	a := cfg.Agent
	u, err := url.Parse(a.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("agent.server_url %q must be an http(s) URL", a.ServerURL)
	}
	switch strings.ToLower(a.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("agent.log_level %q unknown: want debug|info|warn|error", a.LogLevel)
	}
	if a.Stream.Channels <= 0 {
		return fmt.Errorf("agent.stream.channels must be positive")
	}
	if a.Stream.SampleRate <= 0 {
		return fmt.Errorf("agent.stream.sample_rate must be positive")
	}
	if a.ChunkSamples <= 0 {
		return fmt.Errorf("agent.chunk_samples must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if a.MaxAttempts <= 0 {
		return fmt.Errorf("agent.max_attempts must be positive")
	}
	switch a.ServerAuth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("agent.server_auth.mode %q unknown: want apikey|none", a.ServerAuth.Mode)
	}
	if a.ServerAuth.Mode == "apikey" && a.ServerAuth.KeyEnv == "" {
		return fmt.Errorf("agent.server_auth.key_env is required when mode is apikey")
	}
	return nil
}

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// Server section absent; only the agent's keys are present.
	p := writeConfig(t, `agent:
  server_url: "http://localhost:3001"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != DefaultHTTPPort || s.GRPCPort != DefaultGRPCPort {
		t.Errorf("ports: got %d/%d, want %d/%d", s.HTTPPort, s.GRPCPort, DefaultHTTPPort, DefaultGRPCPort)
	}
	if s.Store.MaxSize != DefaultMaxStreams || s.Store.StaleAfter != DefaultStaleAfter {
		t.Errorf("store: got %+v", s.Store)
	}
	if s.Encoder.ContentType != DefaultContentType || s.Encoder.Channels != 2 || s.Encoder.SampleRate != 44100 {
		t.Errorf("encoder: got %+v", s.Encoder)
	}
	if s.Ingest.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Errorf("max_upload_bytes: got %d", s.Ingest.MaxUploadBytes)
	}
	if s.Level() != slog.LevelInfo {
		t.Errorf("Level: got %v, want info", s.Level())
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9091
  grpc_port: 0
  log_level: debug
  public_url: https://cast.example.com
  auth:
    mode: apikey
    key_env: MY_KEY
    header: x-sc2cc-key
  store:
    max_size: 3
    stale_after: 10m
    cleanup_interval: 30s
  ingest:
    frames_per_second: 50
    burst: 10
    max_upload_bytes: 1024
  encoder:
    content_type: audio/L16
    channels: 1
    sample_rate: 16000
  cast:
    bridge_url_env: BRIDGE
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != 9091 || s.GRPCPort != 0 {
		t.Errorf("ports: got %d/%d", s.HTTPPort, s.GRPCPort)
	}
	if s.Level() != slog.LevelDebug {
		t.Errorf("Level: got %v, want debug", s.Level())
	}
	if s.Auth.EffectiveHeader() != "x-sc2cc-key" {
		t.Errorf("header: got %q", s.Auth.EffectiveHeader())
	}
	if s.Store.MaxSize != 3 || s.Store.StaleAfter != 10*time.Minute || s.Store.CleanupInterval != 30*time.Second {
		t.Errorf("store: got %+v", s.Store)
	}
	if s.Ingest.FramesPerSecond != 50 || s.Ingest.Burst != 10 || s.Ingest.MaxUploadBytes != 1024 {
		t.Errorf("ingest: got %+v", s.Ingest)
	}
	if s.Encoder.ContentType != "audio/L16" || s.Encoder.SampleRate != 16000 {
		t.Errorf("encoder: got %+v", s.Encoder)
	}
	if s.Cast.BridgeURLEnv != "BRIDGE" || s.PublicURL != "https://cast.example.com" {
		t.Errorf("cast/public_url: got %+v / %q", s.Cast, s.PublicURL)
	}
}

func TestLoad_EnvResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	t.Setenv("TEST_BRIDGE", "http://bridge:8009")
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TEST_SERVER_KEY
  cast:
    bridge_url_env: TEST_BRIDGE
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "supersecret" {
		t.Errorf("Key(): got %q, want supersecret", k)
	}
	if u := cfg.Server.Cast.BridgeURL(); u != "http://bridge:8009" {
		t.Errorf("BridgeURL(): got %q", u)
	}
	if h := cfg.Server.Auth.EffectiveHeader(); h != "x-api-key" {
		t.Errorf("EffectiveHeader: got %q, want x-api-key", h)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"http port", "server:\n  http_port: 70000\n", "http_port"},
		{"grpc port", "server:\n  grpc_port: -1\n", "grpc_port"},
		{"log level", "server:\n  log_level: loud\n", "log_level"},
		{"auth mode", "server:\n  auth:\n    mode: oauth2\n", "auth.mode"},
		{"apikey without env", "server:\n  auth:\n    mode: apikey\n", "key_env"},
		{"max size", "server:\n  store:\n    max_size: 0\n", "max_size"},
		{"stale after", "server:\n  store:\n    stale_after: -1s\n", "stale_after"},
		{"cleanup interval", "server:\n  store:\n    cleanup_interval: 0s\n", "cleanup_interval"},
		{"frames per second", "server:\n  ingest:\n    frames_per_second: -2\n", "frames_per_second"},
		{"upload size", "server:\n  ingest:\n    max_upload_bytes: 0\n", "max_upload_bytes"},
		{"channels", "server:\n  encoder:\n    channels: -1\n", "channels"},
		{"yaml", "server: [\n", "parse yaml"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("got %v, want error mentioning %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	p := writeConfig(t, "server:\n  log_level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *Config, 16)
	errc := make(chan error, 1)
	go func() { errc <- Watch(ctx, p, sendLatest(changes)) }()

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(p, []byte("server:\n  log_level: debug\n  store:\n    max_size: 5\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	// A truncate-then-write can surface as two events; wait for the final one.
	deadline := time.After(3 * time.Second)
	for done := false; !done; {
		select {
		case c := <-changes:
			done = c.Server.LogLevel == "debug" && c.Server.Store.MaxSize == 5
		case <-deadline:
			t.Fatal("Watch did not report the change")
		}
	}

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Watch: %v", err)
	}
}

// sendLatest forwards configs without ever blocking the watcher.
func sendLatest(ch chan *Config) func(*Config) {
	return func(c *Config) {
		select {
		case ch <- c:
		default:
		}
	}
}

func TestWatch_ReloadsOnAtomicRename(t *testing.T) {
	p := writeConfig(t, "server:\n  log_level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *Config, 16)
	errc := make(chan error, 1)
	go func() { errc <- Watch(ctx, p, sendLatest(changes)) }()

	time.Sleep(50 * time.Millisecond)
	tmp := filepath.Join(filepath.Dir(p), ".config.yaml.swp")
	if err := os.WriteFile(tmp, []byte("server:\n  log_level: warn\n"), 0o600); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		t.Fatalf("rename: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for done := false; !done; {
		select {
		case c := <-changes:
			done = c.Server.LogLevel == "warn"
		case <-deadline:
			t.Fatal("Watch missed a rename-over save")
		}
	}

	// The watch survives the replaced inode.
	if err := os.WriteFile(p, []byte("server:\n  log_level: error\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	deadline = time.After(3 * time.Second)
	for done := false; !done; {
		select {
		case c := <-changes:
			done = c.Server.LogLevel == "error"
		case <-deadline:
			t.Fatal("Watch stopped after the rename")
		}
	}

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Watch: %v", err)
	}
}

// Package config loads and watches the agent configuration file.
//
// Top-level types:
//   - Config{Agent}: the `agent:` tree of config.yaml
//   - AgentConfig: server_url, log_level, stream, chunk_samples, buffer_size,
//     max_attempts, server_auth, tls
//   - StreamConfig: content_type, channels, sample_rate of the created stream
//   - AuthConfig: mode (apikey|none), header, key_env; Key() resolves the key
//     from the environment
//
// Load(path) reads the YAML file, applies Defaults(), then validates.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. The agent applies log_level live.
package config

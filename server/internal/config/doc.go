// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - HTTPPort           port for the REST API, websocket ingestion and /metrics (default 3001)
//   - GRPCPort           port for gRPC ingestion, 0 disables it (default 50051)
//   - LogLevel           debug | info | warn | error (default info)
//   - PublicURL          base URL handed to cast devices
//   - Auth.Mode          "apikey" or "none"
//   - Auth.KeyEnv        environment variable holding the expected API key
//   - Auth.Header        HTTP header / gRPC metadata name (default "x-api-key")
//   - Store.*            max_size (64), stale_after (30m), cleanup_interval (1m)
//   - Ingest.*           frames_per_second (0 = unlimited), burst, max_upload_bytes
//   - Encoder.*          defaults for new streams (audio/wav, 2 channels, 44100 Hz)
//   - Cast.BridgeURLEnv  environment variable holding the cast bridge URL
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) reloads the file on every write; the server
// applies LogLevel and the store limits without a restart.
package config

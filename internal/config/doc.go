// Package config loads the gateway configuration from an optional YAML
// file, then applies environment overrides.
//
// Config fields:
//   - Server.HTTPPort — port for the HTTP API and WebSocket hub (default 8800)
//   - Topics          — the closed set of broadcast topics, fixed at startup
//   - Upstream.*      — base URL and request timeout per collaborator
//     (conversation, tts, stt, monitoring)
//
// Environment overrides: GATEWAY_PORT, CONVERSATION_HTTP, TTS_HTTP,
// STT_HTTP, MONITORING_HTTP.
//
// Load(path) applies defaults before unmarshalling, then validates. An
// empty path skips the file and uses defaults + environment only.
// Watch(ctx, path, onChange) hot-reloads the file; only upstream targets
// may change at runtime — the topic registry never does.
package config

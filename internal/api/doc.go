// Package api exposes the gateway's HTTP surface.
//
// Routes:
//   - GET  /health                        — topic list and subscriber counts
//   - POST /publish                       — broadcast one event to a topic
//   - POST /chat                          — full conversation turn
//   - POST /stt                           — audio transcription proxy
//   - GET  /services/status               — all collaborator service states
//   - GET  /services/{id}/status          — one service state
//   - POST /services/{id}/start|stop|restart
//   - GET  /ws                            — WebSocket pub/sub endpoint
//   - GET  /metrics                       — Prometheus text exposition
//
// Validation failures (unparseable body, missing required field) return
// 422; an unknown topic on /publish returns 400; upstream collaborator
// failures surface as 502, or 504 on timeout. Error bodies are always
// {"error": "..."}.
package api

// Package orchestrate sequences the gateway's calls to its external
// collaborators.
//
// Chat runs the full conversation turn: conversation service → TTS
// service → fan-out of the utterance/emotion/audio event trio onto the
// bus. The broadcasts only happen after both upstream calls succeed, so
// either the complete trio is published or nothing is.
//
// Transcribe proxies audio uploads to the STT service. The Services*
// methods proxy service lifecycle calls to the monitoring service and
// publish service-status events around them so WebSocket clients see
// start/stop progress without polling.
//
// Upstream targets are hot-reloadable via SetUpstreams.
package orchestrate

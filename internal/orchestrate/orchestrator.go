package orchestrate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/bus"
	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/config"
	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/metrics"
)

// errSynthesisRefused marks a TTS reply that came back 2xx but with ok=false.
var errSynthesisRefused = errors.New("synthesis refused")

// ErrServiceNotFound reports a service id unknown to the monitoring service.
var ErrServiceNotFound = errors.New("service not found")

// UpstreamError reports a failed call to an external collaborator.
type UpstreamError struct {
	// Service is the collaborator name: conversation, tts, stt, monitoring.
	Service string

	// Status is the HTTP status the collaborator returned, 0 on a
	// transport-level failure.
	Status int

	// Timeout marks a call that exceeded its configured deadline.
	Timeout bool

	Err error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s service timed out", e.Service)
	case e.Status != 0:
		return fmt.Sprintf("%s service returned HTTP %d", e.Service, e.Status)
	default:
		return fmt.Sprintf("%s service unreachable: %v", e.Service, e.Err)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Orchestrator drives the gateway's upstream calls and publishes the
// resulting events onto the bus.
type Orchestrator struct {
	bus    *bus.Bus
	rec    *metrics.Recorder
	client *http.Client

	mu       sync.RWMutex
	upstream config.UpstreamConfig
}

// New creates an Orchestrator targeting the given collaborators.
// Per-request deadlines come from each target's configured timeout, so the
// shared client itself carries none.
func New(b *bus.Bus, rec *metrics.Recorder, up config.UpstreamConfig) *Orchestrator {
	return &Orchestrator{
		bus:      b,
		rec:      rec,
		client:   &http.Client{},
		upstream: up,
	}
}

// SetUpstreams swaps the collaborator targets. Used by config hot reload;
// in-flight requests keep the targets they started with.
func (o *Orchestrator) SetUpstreams(up config.UpstreamConfig) {
	o.mu.Lock()
	o.upstream = up
	o.mu.Unlock()
}

func (o *Orchestrator) upstreams() config.UpstreamConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.upstream
}

// postJSON sends body as JSON to target.URL+path within target's timeout
// and decodes the response into out (skipped when out is nil).
func (o *Orchestrator) postJSON(ctx context.Context, service string, target config.Target, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("orchestrate: marshal %s request: %w", service, err)
	}
	return o.do(ctx, service, target, http.MethodPost, path, "application/json", bytes.NewReader(payload), out)
}

// getJSON fetches target.URL+path within target's timeout and decodes the
// response into out.
func (o *Orchestrator) getJSON(ctx context.Context, service string, target config.Target, path string, out any) error {
	return o.do(ctx, service, target, http.MethodGet, path, "", nil, out)
}

func (o *Orchestrator) do(ctx context.Context, service string, target config.Target, method, path, contentType string, body io.Reader, out any) error {
	ctx, cancel := context.WithTimeout(ctx, target.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target.URL+path, body)
	if err != nil {
		return &UpstreamError{Service: service, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return &UpstreamError{
			Service: service,
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &UpstreamError{Service: service, Status: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Service: service, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// publish fires one event at the bus, tolerating the topic being absent
// from a customized registry.
func (o *Orchestrator) publish(topic string, data any) {
	if _, err := o.bus.Publish(topic, data); err != nil {
		// Only possible with a config that trimmed the default topic set.
		return
	}
}

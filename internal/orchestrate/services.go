package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// The gateway never manages processes itself — that is the monitoring
// service's job. These proxies add one thing: service-status events on the
// bus, so WebSocket clients follow start/stop progress without polling.

// ServicesStatus returns the status of every registered service.
func (o *Orchestrator) ServicesStatus(ctx context.Context) (json.RawMessage, error) {
	up := o.upstreams()
	var out json.RawMessage
	if err := o.getJSON(ctx, "monitoring", up.Monitoring, "/api/services/status", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ServiceStatus returns the status of one service, or ErrServiceNotFound.
func (o *Orchestrator) ServiceStatus(ctx context.Context, id string) (json.RawMessage, error) {
	up := o.upstreams()
	var all map[string]json.RawMessage
	if err := o.getJSON(ctx, "monitoring", up.Monitoring, "/api/services/status", &all); err != nil {
		return nil, err
	}
	entry, ok := all[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrServiceNotFound, id)
	}
	return json.Marshal(map[string]json.RawMessage{id: entry})
}

// serviceResult is the slice of the monitoring service's reply the gateway
// inspects to classify the outcome of a lifecycle action.
type serviceResult struct {
	Status string          `json:"status"`
	Raw    json.RawMessage `json:"-"`
}

// StartService starts a service via the monitoring collaborator,
// publishing service-status events around the call.
func (o *Orchestrator) StartService(ctx context.Context, id string) (json.RawMessage, error) {
	o.publish("service-status", map[string]any{"id": id, "action": "starting"})

	result, err := o.serviceAction(ctx, id, "start")
	if err != nil {
		o.publish("service-status", map[string]any{"id": id, "action": "start_failed"})
		return nil, err
	}

	action := "start_failed"
	if result.Status == "online" {
		action = "started"
	}
	o.publish("service-status", map[string]any{"id": id, "action": action, "detail": result.Raw})
	return result.Raw, nil
}

// StopService stops a service via the monitoring collaborator.
func (o *Orchestrator) StopService(ctx context.Context, id string) (json.RawMessage, error) {
	o.publish("service-status", map[string]any{"id": id, "action": "stopping"})

	result, err := o.serviceAction(ctx, id, "stop")
	if err != nil {
		return nil, err
	}

	o.publish("service-status", map[string]any{"id": id, "action": "stopped", "detail": result.Raw})
	return result.Raw, nil
}

// RestartService stops (ignoring an already-stopped error) and restarts a
// service.
func (o *Orchestrator) RestartService(ctx context.Context, id string) (json.RawMessage, error) {
	o.publish("service-status", map[string]any{"id": id, "action": "restarting"})

	// Already stopped or stop refused — restart proceeds regardless.
	o.serviceAction(ctx, id, "stop") //nolint:errcheck

	result, err := o.serviceAction(ctx, id, "start")
	if err != nil {
		o.publish("service-status", map[string]any{"id": id, "action": "restart_failed"})
		return nil, err
	}

	action := "restart_failed"
	if result.Status == "online" {
		action = "started"
	}
	o.publish("service-status", map[string]any{"id": id, "action": action, "detail": result.Raw})
	return result.Raw, nil
}

// serviceAction POSTs one lifecycle verb to the monitoring service and
// keeps both the parsed status and the raw body for event payloads.
func (o *Orchestrator) serviceAction(ctx context.Context, id, verb string) (*serviceResult, error) {
	up := o.upstreams()
	var raw json.RawMessage
	path := fmt.Sprintf("/api/services/%s/%s", id, verb)
	if err := o.do(ctx, "monitoring", up.Monitoring, http.MethodPost, path, "", nil, &raw); err != nil {
		return nil, err
	}

	result := &serviceResult{Raw: raw}
	// A non-object reply keeps the raw body; status stays unknown.
	_ = json.Unmarshal(raw, result)
	return result, nil
}

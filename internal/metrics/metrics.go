package metrics

import (
	"net/http"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Recorder accumulates gateway counters. All Inc/Add/Dec methods are
// no-ops on a nil receiver.
type Recorder struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	broadcastsTotal   atomic.Int64
	deliveredTotal    atomic.Int64
	prunedTotal       atomic.Int64
	publishRejected   atomic.Int64
	chatRequests      atomic.Int64
	chatFailures      atomic.Int64
}

// New creates an empty Recorder.
func New() *Recorder {
	return &Recorder{}
}

// ConnOpened records a WebSocket session start.
func (r *Recorder) ConnOpened() {
	if r == nil {
		return
	}
	r.connectionsActive.Add(1)
	r.connectionsTotal.Add(1)
}

// ConnClosed records a WebSocket session end.
func (r *Recorder) ConnClosed() {
	if r == nil {
		return
	}
	r.connectionsActive.Add(-1)
}

// Broadcast records one broadcast with its delivered and pruned counts.
func (r *Recorder) Broadcast(delivered, pruned int) {
	if r == nil {
		return
	}
	r.broadcastsTotal.Add(1)
	r.deliveredTotal.Add(int64(delivered))
	r.prunedTotal.Add(int64(pruned))
}

// PublishRejected records a publish refused for an unknown topic.
func (r *Recorder) PublishRejected() {
	if r == nil {
		return
	}
	r.publishRejected.Add(1)
}

// ChatRequest records one /chat invocation; failed marks upstream failure.
func (r *Recorder) ChatRequest(failed bool) {
	if r == nil {
		return
	}
	r.chatRequests.Add(1)
	if failed {
		r.chatFailures.Add(1)
	}
}

// Handler serves the current counters as a Prometheus text exposition.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		format := expfmt.NewFormat(expfmt.TypeTextPlain)
		w.Header().Set("Content-Type", string(format))

		enc := expfmt.NewEncoder(w, format)
		for _, mf := range r.families() {
			if err := enc.Encode(mf); err != nil {
				return
			}
		}
	})
}

func (r *Recorder) families() []*dto.MetricFamily {
	return []*dto.MetricFamily{
		gauge("gateway_ws_connections_active",
			"Currently open WebSocket sessions.",
			float64(r.connectionsActive.Load())),
		counter("gateway_ws_connections_total",
			"WebSocket sessions accepted since start.",
			float64(r.connectionsTotal.Load())),
		counter("gateway_broadcasts_total",
			"Broadcast operations performed.",
			float64(r.broadcastsTotal.Load())),
		counter("gateway_events_delivered_total",
			"Events delivered to live subscribers.",
			float64(r.deliveredTotal.Load())),
		counter("gateway_subscribers_pruned_total",
			"Dead subscribers removed during broadcast.",
			float64(r.prunedTotal.Load())),
		counter("gateway_publish_rejected_total",
			"Publish requests refused for an unknown topic.",
			float64(r.publishRejected.Load())),
		counter("gateway_chat_requests_total",
			"Chat orchestrations started.",
			float64(r.chatRequests.Load())),
		counter("gateway_chat_failures_total",
			"Chat orchestrations failed on an upstream call.",
			float64(r.chatFailures.Load())),
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{
			{Counter: &dto.Counter{Value: proto.Float64(v)}},
		},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{
			{Gauge: &dto.Gauge{Value: proto.Float64(v)}},
		},
	}
}

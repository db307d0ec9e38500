package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/common/expfmt"
)

func scrape(t *testing.T, rec *Recorder) map[string]float64 {
	t.Helper()
	rr := httptest.NewRecorder()
	rec.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(rr.Body)
	if err != nil {
		t.Fatalf("parse exposition: %v (body: %s)", err, rr.Body.String())
	}

	out := make(map[string]float64, len(mfs))
	for name, mf := range mfs {
		for _, m := range mf.GetMetric() {
			switch {
			case m.Counter != nil:
				out[name] = m.Counter.GetValue()
			case m.Gauge != nil:
				out[name] = m.Gauge.GetValue()
			}
		}
	}
	return out
}

func TestHandler_FreshRecorderExposesZeros(t *testing.T) {
	vals := scrape(t, New())
	for _, name := range []string{
		"gateway_ws_connections_active",
		"gateway_broadcasts_total",
		"gateway_chat_requests_total",
	} {
		v, ok := vals[name]
		if !ok {
			t.Errorf("metric %s missing", name)
		}
		if v != 0 {
			t.Errorf("%s = %v, want 0", name, v)
		}
	}
}

func TestHandler_CountersFollowEvents(t *testing.T) {
	rec := New()
	rec.ConnOpened()
	rec.ConnOpened()
	rec.ConnClosed()
	rec.Broadcast(2, 1)
	rec.PublishRejected()
	rec.ChatRequest(false)
	rec.ChatRequest(true)

	vals := scrape(t, rec)
	want := map[string]float64{
		"gateway_ws_connections_active":    1,
		"gateway_ws_connections_total":     2,
		"gateway_broadcasts_total":         1,
		"gateway_events_delivered_total":   2,
		"gateway_subscribers_pruned_total": 1,
		"gateway_publish_rejected_total":   1,
		"gateway_chat_requests_total":      2,
		"gateway_chat_failures_total":      1,
	}
	for name, w := range want {
		if vals[name] != w {
			t.Errorf("%s = %v, want %v", name, vals[name], w)
		}
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.ConnOpened()
	rec.ConnClosed()
	rec.Broadcast(1, 0)
	rec.PublishRejected()
	rec.ChatRequest(true)
}

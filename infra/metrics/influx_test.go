package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/busalloc/core/metrics"
)

type bodyRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (b *bodyRecorder) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.bodies = append(b.bodies, strings.TrimSpace(string(data)))
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (b *bodyRecorder) all() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.bodies...)
}

func line(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordDecision(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	now := time.Now()
	ev := coremetrics.DecisionEvent{
		DecisionID: "DEC-1",
		StopID:     "F001",
		Status:     "auto_approved",
		Success:    true,
		Requests:   5,
		Latency:    1500 * time.Millisecond,
		Time:       now,
	}
	if err := sink.RecordDecision(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("decision").
		AddTag("decision_id", "DEC-1").
		AddTag("stop_id", "F001").
		AddTag("status", "auto_approved").
		AddTag("success", "true").
		AddField("requests", 5).
		AddField("latency_ms", 1500.0).
		SetTime(now)
	if got := rec.all(); len(got) != 1 || got[0] != line(p) {
		t.Errorf("unexpected bodies: %#v", got)
	}
}

func TestInfluxSink_RecordReallocation(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	now := time.Now()
	ev := coremetrics.ReallocationEvent{
		DecisionID:  "DEC-1",
		RequestID:   "REQ-1",
		StopID:      "F001",
		BusID:       "B003",
		FromRouteID: "R002",
		ToRouteID:   "R001",
		ExecutedBy:  "agent",
		Time:        now,
	}
	if err := sink.RecordReallocation(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("reallocation").
		AddTag("decision_id", "DEC-1").
		AddTag("stop_id", "F001").
		AddTag("bus_id", "B003").
		AddTag("executed_by", "agent").
		AddField("from_route_id", "R002").
		AddField("to_route_id", "R001").
		AddField("request_id", "REQ-1").
		SetTime(now)
	if got := rec.all(); len(got) != 1 || got[0] != line(p) {
		t.Errorf("bodies: %#v", got)
	}
}

func TestInfluxSink_RecordPassAndExpiry(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	now := time.Now()
	if err := sink.RecordPass(coremetrics.PassEvent{Pending: 7, Groups: 2, Duration: 20 * time.Millisecond, Time: now}); err != nil {
		t.Fatalf("record pass: %v", err)
	}
	if err := sink.RecordExpiry(coremetrics.ExpiryEvent{Count: 3, Time: now}); err != nil {
		t.Fatalf("record expiry: %v", err)
	}
	pass := write.NewPointWithMeasurement("batch_pass").
		AddTag("skipped", "false").
		AddField("pending", 7).
		AddField("groups", 2).
		AddField("duration_ms", 20.0).
		SetTime(now)
	exp := fmt.Sprintf("request_expiry removed=3i %d", now.UnixNano())
	got := rec.all()
	if len(got) != 2 || got[0] != line(pass) || got[1] != exp {
		t.Errorf("bodies: %#v", got)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}

package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/busalloc/core/metrics"
	"github.com/kilianp07/busalloc/infra/logger"
)

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes engine events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordDecision writes one oracle decision.
func (s *InfluxSink) RecordDecision(ev coremetrics.DecisionEvent) error {
	p := write.NewPointWithMeasurement("decision").
		AddTag("decision_id", ev.DecisionID).
		AddTag("stop_id", ev.StopID).
		AddTag("status", ev.Status).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("requests", ev.Requests).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordReallocation writes a bus move.
func (s *InfluxSink) RecordReallocation(ev coremetrics.ReallocationEvent) error {
	p := write.NewPointWithMeasurement("reallocation").
		AddTag("decision_id", ev.DecisionID).
		AddTag("stop_id", ev.StopID).
		AddTag("bus_id", ev.BusID).
		AddTag("executed_by", ev.ExecutedBy).
		AddField("from_route_id", ev.FromRouteID).
		AddField("to_route_id", ev.ToRouteID)
	if ev.RequestID != "" {
		p = p.AddField("request_id", ev.RequestID)
	}
	return s.write(p.SetTime(ev.Time))
}

// RecordExpiry writes the size of an expiry sweep.
func (s *InfluxSink) RecordExpiry(ev coremetrics.ExpiryEvent) error {
	return s.write(write.NewPointWithMeasurement("request_expiry").
		AddField("removed", ev.Count).
		SetTime(ev.Time))
}

// RecordPass writes a batch pass summary.
func (s *InfluxSink) RecordPass(ev coremetrics.PassEvent) error {
	return s.write(write.NewPointWithMeasurement("batch_pass").
		AddTag("skipped", strconv.FormatBool(ev.Skipped)).
		AddField("pending", ev.Pending).
		AddField("groups", ev.Groups).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time))
}

// RecordReview writes a staff verdict.
func (s *InfluxSink) RecordReview(ev coremetrics.ReviewEvent) error {
	return s.write(write.NewPointWithMeasurement("decision_review").
		AddTag("decision_id", ev.DecisionID).
		AddTag("approved", strconv.FormatBool(ev.Approved)).
		AddField("reviewer", ev.Reviewer).
		SetTime(ev.Time))
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

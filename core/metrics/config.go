package metrics

import "github.com/kilianp07/busalloc/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks" koanf:"sinks"`
	// PrometheusAddr is where /metrics is served when non-empty.
	PrometheusAddr string `json:"prometheus_addr" koanf:"prometheus_addr"`
}

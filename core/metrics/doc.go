// Package metrics defines the sinks that record what the allocation engine
// does. A sink must implement MetricsSink and may implement any of the
// optional recorder interfaces. NewMultiSink fans out to several sinks and the
// factory helpers build one from configuration.
package metrics

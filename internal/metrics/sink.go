// Package metrics delivers scalar training and evaluation metrics to a
// monitoring sink. The sink is a single-writer resource: opened once at
// pipeline construction, written from the pipeline thread only, and closed
// once at teardown.
package metrics

// Sink receives scalar metric events keyed by name and step.
type Sink interface {
	// RecordScalar records one scalar value for a metric name at a step
	// (global update count for training metrics, epoch for evaluation).
	RecordScalar(name string, value float64, step int64) error

	// Close flushes and releases the sink. Safe to call more than once.
	Close() error
}

// NopSink discards all events. Used when no metrics sink is configured.
type NopSink struct{}

// RecordScalar implements Sink.
func (NopSink) RecordScalar(string, float64, int64) error { return nil }

// Close implements Sink.
func (NopSink) Close() error { return nil }

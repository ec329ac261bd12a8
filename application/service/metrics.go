package service

import "time"

// IndexerMetrics receives indexer events. Implementations must be safe for
// concurrent use.
type IndexerMetrics interface {
	Received(n int)
	Indexed()
	Duplicate()
	Failed(stage string)
	DeadLettered(reason string)
	Observe(d time.Duration)
	Backoff(d time.Duration)
}

// NoopMetrics discards all events.
type NoopMetrics struct{}

// Received implements IndexerMetrics.
func (NoopMetrics) Received(int) {}

// Indexed implements IndexerMetrics.
func (NoopMetrics) Indexed() {}

// Duplicate implements IndexerMetrics.
func (NoopMetrics) Duplicate() {}

// Failed implements IndexerMetrics.
func (NoopMetrics) Failed(string) {}

// DeadLettered implements IndexerMetrics.
func (NoopMetrics) DeadLettered(string) {}

// Observe implements IndexerMetrics.
func (NoopMetrics) Observe(time.Duration) {}

// Backoff implements IndexerMetrics.
func (NoopMetrics) Backoff(time.Duration) {}

var _ IndexerMetrics = NoopMetrics{}

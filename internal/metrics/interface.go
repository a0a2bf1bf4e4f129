package metrics

import (
	"context"
	"time"
)

// Metric names as they appear on the wire.
const (
	MetricRPM       = "fan_controller_rpm"
	MetricProbeTemp = "fan_controller_temp"
	MetricBoardTemp = "fan_controller_cpu_temp"
)

// Tags are string key/value pairs attached to a sample.
type Tags map[string]string

// Sample is one published value.
type Sample struct {
	Timestamp time.Time
	Name      string
	Value     float64
	Tags      Tags
}

// Publisher delivers samples to a sink. Implementations must be safe for use
// by a single loop goroutine; Fanout calls them sequentially.
type Publisher interface {
	Publish(ctx context.Context, s Sample) error
}

// HistoryRepository defines the interface for local sample storage
type HistoryRepository interface {
	Record(s *Sample) error
	Close() error
}

// RateSource is the tachometer side of the metrics loop.
type RateSource interface {
	DrainAndEstimate() float64
	CurrentRate() float64
}

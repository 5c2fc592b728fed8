package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "waypoint"

// Metrics holds all Waypoint metric instruments.
type Metrics struct {
	Heartbeats       metric.Int64Counter
	StaleTransitions metric.Int64Counter
	EventsAppended   metric.Int64Counter
	Resumes          metric.Int64Counter
	Reconstructions  metric.Int64Counter
	ConfidenceScore  metric.Int64Histogram
	ResumeDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Heartbeats, err = meter.Int64Counter("waypoint.heartbeats",
		metric.WithDescription("Number of heartbeats received"))
	if err != nil {
		return nil, err
	}

	m.StaleTransitions, err = meter.Int64Counter("waypoint.instances.stale",
		metric.WithDescription("Number of active-to-stale transitions observed"))
	if err != nil {
		return nil, err
	}

	m.EventsAppended, err = meter.Int64Counter("waypoint.events.appended",
		metric.WithDescription("Number of events appended to the log"))
	if err != nil {
		return nil, err
	}

	m.Resumes, err = meter.Int64Counter("waypoint.resumes",
		metric.WithDescription("Number of resume calls by outcome"))
	if err != nil {
		return nil, err
	}

	m.Reconstructions, err = meter.Int64Counter("waypoint.reconstructions",
		metric.WithDescription("Number of reconstructions by source"))
	if err != nil {
		return nil, err
	}

	m.ConfidenceScore, err = meter.Int64Histogram("waypoint.resume.confidence",
		metric.WithDescription("Confidence score of resumed reconstructions"))
	if err != nil {
		return nil, err
	}

	m.ResumeDuration, err = meter.Float64Histogram("waypoint.resume.duration_seconds",
		metric.WithDescription("Resume call duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

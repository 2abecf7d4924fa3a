package debug

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/groundswell-ai/groundswell/pkg/node"
)

func statusAttr(s node.Status) attribute.KeyValue {
	return attribute.String("status", string(s))
}

func eventTypeAttr(t node.EventType) attribute.KeyValue {
	return attribute.String("event_type", string(t))
}

// WithMeter wires an OpenTelemetry meter into the debugger: a
// per-status observable gauge reporting GetStats() at each collection
// pass, and a monotonic counter of every event observed, by event type.
// This is in-process only (a metric.Meter backed by an sdk/metric
// ManualReader, say) — never a Prometheus HTTP exporter, which would
// require opening a network listener.
func WithMeter(meter metric.Meter) Option {
	return func(d *TreeDebugger) {
		d.metrics = newMetricsRecorder(meter, d)
	}
}

type metricsRecorder struct {
	eventsTotal metric.Int64Counter
}

func newMetricsRecorder(meter metric.Meter, d *TreeDebugger) *metricsRecorder {
	eventsTotal, _ := meter.Int64Counter(
		"groundswell.debugger.events",
		metric.WithDescription("workflow tree events observed by the debugger"),
	)

	gauge, _ := meter.Int64ObservableGauge(
		"groundswell.debugger.nodes",
		metric.WithDescription("current node count by status"),
	)
	if gauge != nil {
		_, _ = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			stats := d.GetStats()
			for status, count := range stats.ByStatus {
				o.ObserveInt64(gauge, int64(count), metric.WithAttributes(
					statusAttr(status),
				))
			}
			return nil
		}, gauge)
	}

	return &metricsRecorder{eventsTotal: eventsTotal}
}

func (m *metricsRecorder) observe(e node.Event) {
	if m == nil || m.eventsTotal == nil {
		return
	}
	m.eventsTotal.Add(context.Background(), 1, metric.WithAttributes(
		eventTypeAttr(e.Type),
	))
}

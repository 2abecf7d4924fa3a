package workflow

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer returns the configured tracer for this workflow's tree, or a
// no-op tracer when none was configured. This is strictly additive
// instrumentation: a nil Config.Tracer never changes core semantics,
// only whether spans are recorded.
func (w *Workflow) tracer() trace.Tracer {
	root := w.root()
	if root.cfg != nil && root.cfg.Tracer != nil {
		return root.cfg.Tracer
	}
	return trace.NewNoopTracerProvider().Tracer("groundswell")
}

// startSpan opens a span named name on this workflow's tracer, tagged
// with the workflow id and name, and returns an end function the
// caller must defer.
func (w *Workflow) startSpan(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := w.tracer().Start(ctx, name, trace.WithAttributes(
		attribute.String("groundswell.workflow_id", w.ID()),
		attribute.String("groundswell.workflow_name", w.Name()),
	))
	return ctx, func() { span.End() }
}

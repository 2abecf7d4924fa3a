package workflow

import (
	"context"
	"time"

	"github.com/groundswell-ai/groundswell/pkg/execctx"
)

// StepOptions configures a single Step call. Step does not read
// Metadata: it is not attached to the stepStart/stepEnd events or to
// any other event.
type StepOptions struct {
	Metadata map[string]any
}

// Step runs fn as a single instrumented unit of work owned by owner:
// it emits stepStart before fn runs and stepEnd (with elapsed
// duration) after, establishes the ambient ExecutionContext fn and
// anything it calls can read via execctx.Get, and opens a tracing span
// when the tree has a tracer configured. Step is a free function
// taking its owner explicitly — Go has no decorators, so this is the
// higher-order-function form of "wrap this unit of work".
func Step(ctx context.Context, owner *Workflow, name string, opts StepOptions, fn func(context.Context) (any, error)) (any, error) {
	owner.EmitEvent(Event{Type: EventStepStart, Node: owner.node, Step: name})

	ctx, endSpan := owner.startSpan(ctx, "step:"+name)
	defer endSpan()

	ev := execctx.Value{
		WorkflowNode: owner.node,
		EmitEvent:    owner.EmitEvent,
		WorkflowID:   owner.ID(),
	}
	if owner.parent != nil {
		ev.ParentWorkflowID = owner.parent.ID()
		ev.HasParent = true
	}

	start := time.Now()
	result, err := execctx.Run(ctx, ev, fn)
	duration := time.Since(start).Milliseconds()

	owner.EmitEvent(Event{Type: EventStepEnd, Node: owner.node, Step: name, Duration: duration})
	if err != nil {
		owner.EmitEvent(Event{Type: EventError, Node: owner.node, Err: err, Step: name})
		return nil, owner.wrapError(err)
	}
	return result, nil
}

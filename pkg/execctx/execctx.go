// Package execctx implements the ambient ExecutionContext store (C3):
// a value threaded through context.Context rather than a runtime-
// global async-local, per the design notes' explicit preference.
// context.Context already propagates transparently across every await
// point in Go (goroutine boundaries excepted, which the core never
// crosses for a single logical call chain), so it is the correct
// idiom here rather than a stdlib fallback.
package execctx

import (
	"context"

	"github.com/groundswell-ai/groundswell/pkg/node"
	"github.com/groundswell-ai/groundswell/pkg/wferrors"
)

type ctxKey struct{}

// Value is the ambient context payload available inside a running
// step: the node the step is scoped to, a function to emit events up
// the tree, the owning workflow's id, and its parent's id if any.
type Value struct {
	WorkflowNode     *node.Node
	EmitEvent        func(node.Event)
	WorkflowID       string
	ParentWorkflowID string
	HasParent        bool
}

// Run establishes v as the ambient context for fn and everything fn
// awaits transitively, then calls fn. On unwind — normal return or
// panic propagation — the previous context (possibly none) is
// restored exactly, since context.WithValue never mutates its parent.
func Run[T any](ctx context.Context, v Value, fn func(ctx context.Context) (T, error)) (T, error) {
	return fn(context.WithValue(ctx, ctxKey{}, v))
}

// Get returns the current ExecutionContext value, if any.
func Get(ctx context.Context) (Value, bool) {
	v, ok := ctx.Value(ctxKey{}).(Value)
	return v, ok
}

// Require returns the current ExecutionContext value or a
// wferrors.ContextMissing error naming opName.
func Require(ctx context.Context, opName string) (Value, error) {
	v, ok := Get(ctx)
	if !ok {
		return Value{}, &wferrors.ContextMissing{Operation: opName}
	}
	return v, nil
}

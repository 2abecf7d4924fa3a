package workflow

import (
	"context"
	"sync"

	"github.com/groundswell-ai/groundswell/pkg/wferrors"
)

// TaskOptions configures a single Task call.
type TaskOptions struct {
	// Concurrent runs every child at once (settle-all, never
	// fail-fast). The zero value is false: children run one after
	// another, in list order, still letting every child run to its own
	// completion regardless of an earlier one's failure.
	Concurrent bool

	// MergeStrategy overrides the owning tree's Config.MergeStrategy
	// for this call only.
	MergeStrategy *wferrors.MergeStrategy
}

type taskResult struct {
	index int
	value any
	err   *wferrors.WorkflowError
}

// Task runs every child to settle-all completion: every child is given
// the chance to finish (success or failure) before Task returns, and
// no sibling is ever cancelled because another one failed. Children
// with no parent yet are auto-attached under owner first (the
// duck-typed "workflow-shaped value" auto-attach from spec.md §4.7 is
// unnecessary here — children already arrive as *Workflow, which Go's
// static typing already guarantees is workflow-shaped).
//
// With opts.Concurrent, every child runs on its own goroutine
// (mirroring the teacher's executeParallel/emitAsync fan-out — a
// sync.WaitGroup plus a buffered result channel, not errgroup, which
// is never directly imported anywhere in the corpus this module draws
// its dependency stack from); otherwise children run one after another
// in list order.
//
// Per-child failures are each reported as their own error event. What
// Task then returns depends on opts.MergeStrategy (or the owner's
// Config.MergeStrategy, checked in that order): disabled or absent,
// Task returns the first failure in child-list order unchanged —
// fail-fast-observable but without cancelling siblings; enabled, Task
// merges every failure (via the strategy's Combine, or
// wferrors.DefaultMerge when Combine is nil) into one aggregate
// WorkflowError, reports it as one more error event, and returns that.
func Task(ctx context.Context, owner *Workflow, name string, opts TaskOptions, children []*Workflow) ([]any, error) {
	owner.EmitEvent(Event{Type: EventTaskStart, Node: owner.node, Task: name})

	ctx, endSpan := owner.startSpan(ctx, "task:"+name)
	defer endSpan()

	for _, child := range children {
		if child.Parent() == nil {
			_ = owner.AttachChild(child)
		}
	}

	results := make([]any, len(children))
	failures := make([]*wferrors.WorkflowError, 0)

	if len(children) > 0 {
		var ordered []*taskResult
		if opts.Concurrent {
			ordered = runChildrenConcurrently(ctx, children)
		} else {
			ordered = runChildrenSequentially(ctx, children)
		}
		for i, r := range ordered {
			results[i] = r.value
			if r.err != nil {
				failures = append(failures, r.err)
				owner.EmitEvent(Event{Type: EventError, Node: owner.node, Task: name, Err: r.err, ChildID: children[i].ID()})
			}
		}
	}

	var taskErr error
	if len(failures) > 0 {
		strategy := effectiveMergeStrategy(owner, opts)
		if strategy != nil && strategy.Enabled {
			merged := mergeFailures(strategy, failures, name, len(children))
			owner.EmitEvent(Event{Type: EventError, Node: owner.node, Task: name, Err: merged})
			taskErr = merged
		} else {
			// errorMergeStrategy disabled or absent: rethrow the first
			// rejection's reason, in child-list order, without
			// cancelling any sibling.
			taskErr = failures[0]
		}
	}

	owner.EmitEvent(Event{Type: EventTaskEnd, Node: owner.node, Task: name})
	return results, taskErr
}

func runChildrenConcurrently(ctx context.Context, children []*Workflow) []*taskResult {
	resultsCh := make(chan taskResult, len(children))
	var wg sync.WaitGroup
	wg.Add(len(children))

	for i, child := range children {
		go func(i int, child *Workflow) {
			defer wg.Done()
			value, err := child.Run(ctx)
			resultsCh <- taskResult{index: i, value: value, err: asWorkflowError(child, err)}
		}(i, child)
	}

	wg.Wait()
	close(resultsCh)

	ordered := make([]*taskResult, len(children))
	for r := range resultsCh {
		r := r
		ordered[r.index] = &r
	}
	return ordered
}

func runChildrenSequentially(ctx context.Context, children []*Workflow) []*taskResult {
	ordered := make([]*taskResult, len(children))
	for i, child := range children {
		value, err := child.Run(ctx)
		ordered[i] = &taskResult{index: i, value: value, err: asWorkflowError(child, err)}
	}
	return ordered
}

func asWorkflowError(child *Workflow, err error) *wferrors.WorkflowError {
	if err == nil {
		return nil
	}
	var wfErr *wferrors.WorkflowError
	if wferrors.As(err, &wfErr) {
		return wfErr
	}
	return wferrors.New(child.ID(), err.Error(), err, nil, nil)
}

func effectiveMergeStrategy(owner *Workflow, opts TaskOptions) *wferrors.MergeStrategy {
	if opts.MergeStrategy != nil {
		return opts.MergeStrategy
	}
	if owner.cfg != nil {
		return owner.cfg.MergeStrategy
	}
	return nil
}

func mergeFailures(strategy *wferrors.MergeStrategy, failures []*wferrors.WorkflowError, name string, total int) *wferrors.WorkflowError {
	if strategy.Combine != nil {
		return strategy.Combine(failures)
	}
	return wferrors.DefaultMerge(failures, name, total)
}

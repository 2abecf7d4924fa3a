package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/groundswell-ai/groundswell/pkg/collab"
	"github.com/groundswell-ai/groundswell/pkg/debug"
	"github.com/groundswell-ai/groundswell/pkg/node"
	"github.com/groundswell-ai/groundswell/pkg/reflection"
	"github.com/groundswell-ai/groundswell/pkg/wferrors"
)

// Context is what a functional workflow's Executor receives: a handle
// scoped to the workflow it is running inside, letting the executor
// run instrumented steps, spawn child workflows, and inspect the tree.
type Context interface {
	// Step wraps fn in a fresh child node named name (or
	// "name (retry k)" on a reflection-driven retry), establishing the
	// ambient ExecutionContext for the duration and applying
	// reflection-guided retry if the owner's Config.Reflection is set
	// and enabled.
	Step(ctx context.Context, name string, opts StepOptions, fn func(context.Context) (any, error)) (any, error)

	// SpawnWorkflow constructs and attaches a child functional workflow
	// under the owner (inheriting the owner's Config unless cfg is
	// non-nil), awaits its Run, and returns the value.
	SpawnWorkflow(ctx context.Context, name string, cfg *Config, executor Executor) (any, error)

	// ReplaceLastPromptResult finds the most recently completed child
	// node, logs the revision, runs agent.Prompt(newPrompt) inside a
	// fresh sibling "revision:<id>" node, and returns its response.
	ReplaceLastPromptResult(ctx context.Context, newPrompt collab.Prompt, agent collab.Agent) (collab.Response, error)

	// EventTree returns the tree-wide read-only index.
	EventTree() *EventTreeHandle

	// Owner returns the workflow this context is scoped to.
	Owner() *Workflow
}

type workflowContext struct {
	owner *Workflow
}

func newContext(owner *Workflow) Context {
	return &workflowContext{owner: owner}
}

func (c *workflowContext) Owner() *Workflow { return c.owner }

func (c *workflowContext) reflector() *reflection.Manager {
	if c.owner.cfg == nil {
		return nil
	}
	return c.owner.cfg.Reflection
}

// Step runs fn inside a fresh child *Workflow of the owner, named name
// on the first attempt. If reflection is enabled on the owner, a
// failed attempt is offered to the reflection manager; a retry it
// grants runs fn again inside another fresh child named
// "name (retry k)", and a subsequent success marks the reflection
// attempt that authorized it as successful.
func (c *workflowContext) Step(ctx context.Context, name string, opts StepOptions, fn func(context.Context) (any, error)) (any, error) {
	reflector := c.reflector()
	if reflector == nil || !reflector.IsEnabled() {
		return runStepNode(ctx, c.owner, name, opts, fn)
	}

	stepName := name
	attempt := 0
	for {
		attempt++
		result, err := runStepNode(ctx, c.owner, stepName, opts, fn)
		if err == nil {
			if attempt > 1 {
				reflector.MarkLastReflectionSuccessful(true)
			}
			return result, nil
		}

		c.owner.EmitEvent(Event{Type: EventReflectionStart, Node: c.owner.node, Step: stepName, ReflectionAttempt: attempt})
		shouldRetry, reflectErr := reflector.Reflect(ctx, c.owner.node.StateSnapshot, err, stepName)
		c.owner.EmitEvent(Event{Type: EventReflectionEnd, Node: c.owner.node, Step: stepName, ReflectionAttempt: attempt, ShouldRetry: shouldRetry})

		if reflectErr != nil {
			// The reflection manager's own failure never supersedes the
			// step's original failure; it is only worth logging.
			c.owner.Logger().Error((&wferrors.ReflectionTransientError{Cause: reflectErr}).Error(), nil)
			return nil, err
		}
		if !shouldRetry {
			return nil, err
		}

		stepName = fmt.Sprintf("%s (retry %d)", name, attempt)
	}
}

// runStepNode creates a fresh child workflow of owner named name,
// drives it through running -> completed/failed around a single call
// to Step, and returns fn's result. Each call (including each
// reflection retry) produces its own node in the tree, per the
// functional context's step contract.
func runStepNode(ctx context.Context, owner *Workflow, name string, opts StepOptions, fn func(context.Context) (any, error)) (any, error) {
	stepWF, err := New(name, owner)
	if err != nil {
		return nil, err
	}
	if err := stepWF.SetStatus(StatusRunning); err != nil {
		return nil, err
	}

	result, err := Step(ctx, stepWF, name, opts, fn)
	if err != nil {
		_ = stepWF.SetStatus(StatusFailed)
		return nil, err
	}
	_ = stepWF.SetStatus(StatusCompleted)
	return result, nil
}

func (c *workflowContext) SpawnWorkflow(ctx context.Context, name string, cfg *Config, executor Executor) (any, error) {
	effectiveCfg := cfg
	if effectiveCfg == nil {
		effectiveCfg = c.owner.cfg
	}
	child, err := NewFunctional(name, c.owner, effectiveCfg, executor)
	if err != nil {
		return nil, err
	}

	result, runErr := child.Run(ctx)

	root := c.owner.root()
	c.owner.EventTree().Rebuild(root.node)

	return result, runErr
}

// mostRecentCompletedChild returns the owner's most recently attached
// child whose status is completed, or nil if none qualifies.
func (c *workflowContext) mostRecentCompletedChild() *Workflow {
	children := c.owner.Children()
	for i := len(children) - 1; i >= 0; i-- {
		if children[i].GetStatus() == StatusCompleted {
			return children[i]
		}
	}
	return nil
}

func (c *workflowContext) ReplaceLastPromptResult(ctx context.Context, newPrompt collab.Prompt, agent collab.Agent) (collab.Response, error) {
	target := c.mostRecentCompletedChild()
	if target == nil {
		return collab.Response{}, &wferrors.WorkflowError{Message: "no completed child node to revise", WorkflowID: c.owner.ID()}
	}

	revisionID := newPrompt.ID()
	target.Logger().Info("revising prior result", map[string]any{"revisionId": revisionID})

	revisionName := "revision:" + revisionID
	revisionWF, err := New(revisionName, c.owner)
	if err != nil {
		return collab.Response{}, err
	}
	if err := revisionWF.SetStatus(StatusRunning); err != nil {
		return collab.Response{}, err
	}

	raw, err := Step(ctx, revisionWF, revisionName, StepOptions{}, func(ctx context.Context) (any, error) {
		return agent.Prompt(ctx, newPrompt)
	})
	if err != nil {
		_ = revisionWF.SetStatus(StatusFailed)
		return collab.Response{}, err
	}
	_ = revisionWF.SetStatus(StatusCompleted)

	response, _ := raw.(collab.Response)
	return response, nil
}

func (c *workflowContext) EventTree() *EventTreeHandle {
	return c.owner.EventTree()
}

// EventTreeHandle is a read-only index over the tree, sharing its
// incremental-maintenance logic with debug.TreeDebugger via
// debug.Index: attach and detach update it in O(k) in the affected
// subtree, while SpawnWorkflow calls Rebuild, which re-walks the whole
// tree.
type EventTreeHandle struct {
	mu  sync.Mutex
	idx *debug.Index
}

func newEventTreeHandle(root *node.Node) *EventTreeHandle {
	return &EventTreeHandle{idx: debug.NewIndex(root)}
}

// GetNode returns the node for id, if indexed.
func (h *EventTreeHandle) GetNode(id string) (*node.Node, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.idx.Get(id)
}

// GetChildren returns id's direct children, if indexed.
func (h *EventTreeHandle) GetChildren(id string) ([]*node.Node, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.idx.Children(id)
}

// GetAncestors returns id's ancestor chain, closest first.
func (h *EventTreeHandle) GetAncestors(id string) ([]*node.Node, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.idx.Ancestors(id)
}

// Rebuild fully re-walks root, discarding the prior index. Used after
// structural changes a caller doesn't want to replay incrementally
// (e.g. after spawning a child workflow, or restoring a tree from a
// snapshot).
func (h *EventTreeHandle) Rebuild(root *node.Node) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.idx.Rebuild(root)
}

// ToJSON renders the current root's subtree as JSON, in the node
// package's own field shape.
func (h *EventTreeHandle) ToJSON() ([]byte, error) {
	h.mu.Lock()
	root := h.idx.Root()
	h.mu.Unlock()
	return json.Marshal(root)
}

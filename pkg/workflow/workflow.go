// Package workflow implements the hierarchical workflow tree (C6), the
// step/task instrumentation that wraps work done inside it (C7), and
// the functional WorkflowContext executors run against (C8). A
// Workflow always carries a mirrored *node.Node: the Workflow is the
// live, mutable object a caller drives; the Node is the immutable-
// shape projection every observer, the debugger, and WorkflowError
// snapshots actually read.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/groundswell-ai/groundswell/internal/gslog"
	"github.com/groundswell-ai/groundswell/pkg/debug"
	"github.com/groundswell-ai/groundswell/pkg/id"
	"github.com/groundswell-ai/groundswell/pkg/node"
	"github.com/groundswell-ai/groundswell/pkg/reflection"
	"github.com/groundswell-ai/groundswell/pkg/wferrors"
)

// Observer and Event are re-exported from pkg/node so callers never
// need to import it directly.
type (
	Observer  = node.Observer
	Event     = node.Event
	EventType = node.EventType
	LogEntry  = node.LogEntry
)

// Re-export the EventType constants for the same reason.
const (
	EventStepStart       = node.EventStepStart
	EventStepEnd         = node.EventStepEnd
	EventTaskStart       = node.EventTaskStart
	EventTaskEnd         = node.EventTaskEnd
	EventChildAttached   = node.EventChildAttached
	EventChildDetached   = node.EventChildDetached
	EventStateSnapshot   = node.EventStateSnapshot
	EventTreeUpdated     = node.EventTreeUpdated
	EventError           = node.EventError
	EventAgentPromptStart = node.EventAgentPromptStart
	EventAgentPromptEnd   = node.EventAgentPromptEnd
	EventToolInvocation   = node.EventToolInvocation
	EventReflectionStart  = node.EventReflectionStart
	EventReflectionEnd    = node.EventReflectionEnd
	EventCacheHit         = node.EventCacheHit
	EventCacheMiss        = node.EventCacheMiss
)

// Executor is the body of a functional workflow: it receives the
// ambient context and a Context handle scoped to the workflow it is
// running inside.
type Executor func(ctx context.Context, wc Context) (any, error)

// Config configures optional ambient behavior for a workflow tree.
// Every field is optional; the zero Config disables all of it.
type Config struct {
	Log           *gslog.Config
	Tracer        trace.Tracer
	Reflection    *reflection.Manager
	MergeStrategy *wferrors.MergeStrategy
}

// Workflow is the live, mutable tree node a caller constructs and
// drives. Its shape is mirrored into an immutable *node.Node, which is
// what every Observer, the TreeDebugger, and WorkflowError snapshots
// actually read.
type Workflow struct {
	node     *node.Node
	parent   *Workflow
	children []*Workflow

	cfg      *Config
	executor Executor
	logger   *gslog.Logger

	// observersMu guards observers; only ever populated on the root,
	// since AddObserver rejects non-root receivers. This, and the tree
	// index in the debugger, are the only two genuinely shared-by-tree
	// structures — everything else on Workflow/Node is touched only
	// from the single logical thread of control that owns that
	// subtree.
	observersMu sync.Mutex
	observers   []Observer

	eventTree *EventTreeHandle
}

// New constructs a workflow named name, attached under parent (nil for
// a root). It carries no executor: callers drive it directly with
// Step/Task.
func New(name string, parent *Workflow) (*Workflow, error) {
	return newWorkflow(name, parent, nil, nil)
}

// NewFunctional constructs a workflow whose Run calls executor with a
// Context scoped to it. executor is supplied as a parameter rather
// than via subclassing, since Go has no inheritance — this is the
// direct generalization of a config+executor constructor.
func NewFunctional(name string, parent *Workflow, cfg *Config, executor Executor) (*Workflow, error) {
	if executor == nil {
		return nil, fmt.Errorf("groundswell: NewFunctional requires a non-nil executor")
	}
	return newWorkflow(name, parent, cfg, executor)
}

func newWorkflow(name string, parent *Workflow, cfg *Config, executor Executor) (*Workflow, error) {
	// An empty name defaults to "workflow"; a whitespace-only name is
	// rejected rather than defaulted.
	if name != "" && strings.TrimSpace(name) == "" {
		return nil, &wferrors.NameInvalid{Name: name, Reason: "name is empty after trimming"}
	}
	validName, err := node.ValidateName(name, "workflow")
	if err != nil {
		return nil, &wferrors.NameInvalid{Name: name, Reason: err.Error()}
	}

	n := node.New(id.NewPrefixed("wf"), validName)
	w := &Workflow{node: n, cfg: cfg}
	w.logger = gslog.New(n, w, sinkFromConfig(cfg))
	w.executor = executor

	if parent != nil {
		if err := parent.AttachChild(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func sinkFromConfig(cfg *Config) *slog.Logger {
	if cfg == nil || cfg.Log == nil {
		return nil
	}
	return gslog.NewSink(cfg.Log)
}

// ID returns the workflow's unique identifier.
func (w *Workflow) ID() string { return w.node.ID }

// Name returns the workflow's validated name.
func (w *Workflow) Name() string { return w.node.Name }

// GetStatus returns the workflow's current lifecycle status.
func (w *Workflow) GetStatus() Status { return w.node.Status }

// Node returns the immutable-shape projection mirroring this
// workflow. Callers must treat it as read-only.
func (w *Workflow) Node() *node.Node { return w.node }

// Parent returns the parent workflow, or nil for a root.
func (w *Workflow) Parent() *Workflow { return w.parent }

// Children returns this workflow's direct children, in attachment
// order. The returned slice is a copy safe to range over while the
// tree mutates concurrently elsewhere.
func (w *Workflow) Children() []*Workflow {
	out := make([]*Workflow, len(w.children))
	copy(out, w.children)
	return out
}

// Logger returns the Logger scoped to this workflow's node.
func (w *Workflow) Logger() *gslog.Logger { return w.logger }

// root walks the parent chain to the tree root.
func (w *Workflow) root() *Workflow {
	r := w
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// IsDescendantOf reports whether w is a (possibly indirect) descendant
// of ancestor.
func (w *Workflow) IsDescendantOf(ancestor *Workflow) bool {
	for p := w.parent; p != nil; p = p.parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// AttachChild attaches child to w, guarding against self-attach,
// re-attaching an already-attached child, and cycles.
func (w *Workflow) AttachChild(child *Workflow) error {
	if child == w {
		return &wferrors.TreeConstraintViolation{Reason: "a workflow cannot be attached to itself"}
	}
	if child.parent != nil {
		return &wferrors.TreeConstraintViolation{Reason: fmt.Sprintf("workflow %s is already attached to a parent; detach it first", child.ID())}
	}
	if w.IsDescendantOf(child) || w == child {
		return &wferrors.CycleDetected{WorkflowID: child.ID()}
	}

	child.parent = w
	w.children = append(w.children, child)

	child.node.Parent = w.node
	w.node.Children = append(w.node.Children, child.node)

	w.EmitEvent(Event{Type: EventChildAttached, Node: w.node, ParentID: w.ID(), Child: child.node, ChildID: child.ID()})
	w.root().EmitEvent(Event{Type: EventTreeUpdated, Node: w.root().node, Root: w.root().node})
	w.root().insertIntoEventTree(child.node)
	return nil
}

// DetachChild removes child from w's children, if present.
func (w *Workflow) DetachChild(child *Workflow) error {
	idx := -1
	for i, c := range w.children {
		if c == child {
			idx = i
			break
		}
	}
	if idx == -1 {
		return &wferrors.TreeConstraintViolation{Reason: fmt.Sprintf("workflow %s is not a child of %s", child.ID(), w.ID())}
	}

	w.children = append(w.children[:idx], w.children[idx+1:]...)
	nodeChildren := w.node.Children
	for i, c := range nodeChildren {
		if c == child.node {
			w.node.Children = append(nodeChildren[:i], nodeChildren[i+1:]...)
			break
		}
	}
	child.parent = nil
	child.node.Parent = nil

	w.EmitEvent(Event{Type: EventChildDetached, Node: w.node, ParentID: w.ID(), ChildID: child.ID()})
	w.root().EmitEvent(Event{Type: EventTreeUpdated, Node: w.root().node, Root: w.root().node})
	w.root().removeFromEventTree(child.ID())
	return nil
}

// insertIntoEventTree keeps a lazily-built EventTreeHandle in sync
// with attach operations that happen after it was first requested.
func (w *Workflow) insertIntoEventTree(n *node.Node) {
	if w.eventTree == nil {
		return
	}
	w.eventTree.mu.Lock()
	defer w.eventTree.mu.Unlock()
	w.eventTree.idx.InsertSubtree(n)
}

func (w *Workflow) removeFromEventTree(id string) {
	if w.eventTree == nil {
		return
	}
	w.eventTree.mu.Lock()
	defer w.eventTree.mu.Unlock()
	w.eventTree.idx.RemoveSubtree(id)
}

// SetStatus transitions the workflow to status, rejecting illegal
// transitions (e.g. completed -> running).
func (w *Workflow) SetStatus(status Status) error {
	if err := validTransition(w.node.Status, status); err != nil {
		return err
	}
	w.node.Status = status
	w.root().EmitEvent(Event{Type: EventTreeUpdated, Node: w.node, Root: w.root().node})
	return nil
}

// AddObserver registers obs to receive every event fanned out from
// this tree. Only the root may accept observers — the invariant spec's
// §6 requires, since a non-root's events propagate to the root anyway.
func (w *Workflow) AddObserver(obs Observer) error {
	if w.parent != nil {
		return &wferrors.TreeConstraintViolation{Reason: "observers may only be added to a root workflow"}
	}
	w.observersMu.Lock()
	defer w.observersMu.Unlock()
	w.observers = append(w.observers, obs)
	return nil
}

// ObserversForLog satisfies gslog's dispatcher interface: the Logger
// fans log entries out to the same observer set EmitEvent uses.
func (w *Workflow) ObserversForLog() []node.Observer {
	return w.root().snapshotObservers()
}

func (w *Workflow) snapshotObservers() []Observer {
	w.observersMu.Lock()
	defer w.observersMu.Unlock()
	out := make([]Observer, len(w.observers))
	copy(out, w.observers)
	return out
}

// EmitEvent appends e to this workflow's node and fans it out to every
// observer on the root. A panicking observer is isolated: the rest
// still receive the event and the failure is logged, never re-raised.
func (w *Workflow) EmitEvent(e Event) {
	if e.Node == nil {
		e.Node = w.node
	}
	w.node.AppendEvent(e)

	for _, obs := range w.root().snapshotObservers() {
		deliverEvent(obs, e, w.logger)
	}
}

func deliverEvent(obs Observer, e Event, logger *gslog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			failure := &wferrors.ObserverDeliveryError{Method: "OnEvent", Cause: panicAsError(r)}
			if logger != nil {
				logger.Error(failure.Error(), nil)
			}
		}
	}()
	obs.OnEvent(e)

	switch e.Type {
	case EventStateSnapshot:
		deliverStateUpdated(obs, e.Node, logger)
	case EventTreeUpdated:
		deliverTreeChanged(obs, e.Root, logger)
	}
}

func deliverStateUpdated(obs Observer, n *node.Node, logger *gslog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			failure := &wferrors.ObserverDeliveryError{Method: "OnStateUpdated", Cause: panicAsError(r)}
			if logger != nil {
				logger.Error(failure.Error(), nil)
			}
		}
	}()
	obs.OnStateUpdated(n)
}

func deliverTreeChanged(obs Observer, root *node.Node, logger *gslog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			failure := &wferrors.ObserverDeliveryError{Method: "OnTreeChanged", Cause: panicAsError(r)}
			if logger != nil {
				logger.Error(failure.Error(), nil)
			}
		}
	}()
	obs.OnTreeChanged(root)
}

func panicAsError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}

// SnapshotState captures v's tagged fields into the node's state
// snapshot and emits a stateSnapshot event.
func (w *Workflow) SnapshotState(v any) {
	w.node.StateSnapshot = node.CaptureState(v)
	w.node.HasSnapshot = true
	w.EmitEvent(Event{Type: EventStateSnapshot, Node: w.node})
}

// EventTree returns the root's EventTreeHandle, building it on first
// use.
func (w *Workflow) EventTree() *EventTreeHandle {
	root := w.root()
	if root.eventTree == nil {
		root.eventTree = newEventTreeHandle(root.node)
	}
	return root.eventTree
}

// Debugger returns a debug.TreeDebugger rooted at this workflow's
// node, for callers that want incremental ASCII-tree rendering without
// going through a full Observer registration. Most callers instead
// register one via AddObserver so it is kept live automatically.
func (w *Workflow) Debugger(opts ...debug.Option) *debug.TreeDebugger {
	return debug.New(w.node, opts...)
}

// Run executes a functional workflow's executor, transitioning through
// running -> completed/failed. Calling Run on a non-functional
// workflow (constructed with New, not NewFunctional) is an error.
func (w *Workflow) Run(ctx context.Context) (any, error) {
	if w.executor == nil {
		return nil, fmt.Errorf("groundswell: workflow %s has no executor (construct with NewFunctional to use Run)", w.ID())
	}

	if err := w.SetStatus(StatusRunning); err != nil {
		return nil, err
	}

	ctx, end := w.startSpan(ctx, "workflow.run")
	defer end()

	wc := newContext(w)
	result, err := w.executor(ctx, wc)
	if err != nil {
		w.EmitEvent(Event{Type: EventError, Node: w.node, Err: err})
		_ = w.SetStatus(StatusFailed)
		return nil, w.wrapError(err)
	}

	_ = w.SetStatus(StatusCompleted)
	return result, nil
}

// wrapError materializes a *wferrors.WorkflowError carrying a copy of
// this workflow's current state and logs, unless err already is one.
func (w *Workflow) wrapError(err error) error {
	var existing *wferrors.WorkflowError
	if wferrors.As(err, &existing) {
		return existing
	}
	return wferrors.New(w.ID(), err.Error(), err, maps.Clone(w.node.StateSnapshot), toLogViews(w.node.CopyLogs()))
}

func toLogViews(entries []node.LogEntry) []wferrors.LogEntryView {
	out := make([]wferrors.LogEntryView, len(entries))
	for i, e := range entries {
		out[i] = wferrors.LogEntryView{
			ID:           e.ID,
			WorkflowID:   e.WorkflowID,
			TimestampMs:  e.TimestampMs,
			Level:        string(e.Level),
			Message:      e.Message,
			Data:         e.Data,
			ParentLogID:  e.ParentLogID,
			HasParentLog: e.HasParentLog,
		}
	}
	return out
}

// Package wferrors defines the error taxonomy shared across the
// workflow core: the WorkflowError shape carried by every step/task
// failure, the tree/context integrity errors that are always fatal to
// the caller, and the default concurrent-failure merger.
package wferrors

import (
	"errors"
	"fmt"
)

// WorkflowError is the error shape every step and task boundary
// materializes on failure. State and Logs are copies taken at the
// moment of failure, never live references.
type WorkflowError struct {
	Message    string
	Original   error
	WorkflowID string
	Stack      string
	State      map[string]any
	Logs       []LogEntryView
}

// LogEntryView is the minimal copy of a node.LogEntry this package
// needs, avoiding an import cycle with pkg/node.
type LogEntryView struct {
	ID           string
	WorkflowID   string
	TimestampMs  int64
	Level        string
	Message      string
	Data         map[string]any
	ParentLogID  string
	HasParentLog bool
}

func (e *WorkflowError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Original)
	}
	return e.Message
}

// Unwrap exposes the original error for errors.Is / errors.As.
func (e *WorkflowError) Unwrap() error {
	return e.Original
}

// SafeMessage returns a message safe for end-user display, stripping
// the wrapped original error's detail (which may embed tool output,
// prompts, or file paths) while keeping the workflow identity.
func (e *WorkflowError) SafeMessage() string {
	return fmt.Sprintf("workflow %s failed: %s", e.WorkflowID, e.Message)
}

// New builds a WorkflowError with the given message and cause.
func New(workflowID, message string, cause error, state map[string]any, logs []LogEntryView) *WorkflowError {
	return &WorkflowError{
		Message:    message,
		Original:   cause,
		WorkflowID: workflowID,
		State:      state,
		Logs:       logs,
	}
}

// TreeConstraintViolation is raised by attach/detach operations that
// would break tree invariants (self-attach, cycle, duplicate child,
// re-parent without detach, observer added on a non-root).
type TreeConstraintViolation struct {
	Reason string
}

func (e *TreeConstraintViolation) Error() string {
	return "tree constraint violation: " + e.Reason
}

// CycleDetected is raised when a parent-chain walk observes a cycle.
type CycleDetected struct {
	WorkflowID string
}

func (e *CycleDetected) Error() string {
	return fmt.Sprintf("cycle detected while walking parent chain from workflow %s", e.WorkflowID)
}

// ContextMissing is raised when an operation that requires an ambient
// ExecutionContext is invoked outside a workflow step.
type ContextMissing struct {
	Operation string
}

func (e *ContextMissing) Error() string {
	return fmt.Sprintf("execution context missing for operation %q", e.Operation)
}

// NameInvalid is raised by workflow construction when the supplied
// name is empty, whitespace-only, or exceeds the length limit.
type NameInvalid struct {
	Name   string
	Reason string
}

func (e *NameInvalid) Error() string {
	return fmt.Sprintf("invalid workflow name %q: %s", e.Name, e.Reason)
}

// ObserverDeliveryError records that an observer callback failed.
// Core code recovers from this error; it is surfaced only via the
// logger, never re-raised to the caller.
type ObserverDeliveryError struct {
	Method string
	Cause  error
}

func (e *ObserverDeliveryError) Error() string {
	return fmt.Sprintf("observer %s delivery failed: %v", e.Method, e.Cause)
}

func (e *ObserverDeliveryError) Unwrap() error {
	return e.Cause
}

// LoggerDeliveryError records that an onLog callback failed. The
// logger recovers from this locally and never re-enters observers.
type LoggerDeliveryError struct {
	Cause error
}

func (e *LoggerDeliveryError) Error() string {
	return fmt.Sprintf("log observer delivery failed: %v", e.Cause)
}

func (e *LoggerDeliveryError) Unwrap() error {
	return e.Cause
}

// ReflectionTransientError wraps a failure from the reflection
// manager's own Reflect call. The original step error, not this one,
// is what propagates to the caller; this type exists so callers can
// tell the two apart in logs.
type ReflectionTransientError struct {
	Cause error
}

func (e *ReflectionTransientError) Error() string {
	return fmt.Sprintf("reflection failed: %v", e.Cause)
}

func (e *ReflectionTransientError) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's tree matches target. Thin
// wrapper kept for call-site symmetry with errors.As below.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree matching target's type.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// MergeStrategy controls how a Task combines concurrent child
// failures into a single WorkflowError.
type MergeStrategy struct {
	Enabled       bool
	MaxMergeDepth int
	Combine       func(failures []*WorkflowError) *WorkflowError
}

// DefaultMerge implements the default aggregation: message
// "k of n concurrent child workflows failed in task '<task>'",
// Original records the structured failure set, and Logs is the
// concatenation of every failing child's logs in the order the
// children were returned.
func DefaultMerge(failures []*WorkflowError, taskName string, total int) *WorkflowError {
	failedIDs := make([]string, 0, len(failures))
	logs := make([]LogEntryView, 0)
	for _, f := range failures {
		failedIDs = append(failedIDs, f.WorkflowID)
		logs = append(logs, f.Logs...)
	}

	return &WorkflowError{
		Message: fmt.Sprintf("%d of %d concurrent child workflows failed in task '%s'", len(failures), total, taskName),
		Original: &TaskAggregateError{
			Errors:           failures,
			TotalChildren:    total,
			FailedChildren:   len(failures),
			FailedWorkflowID: failedIDs,
		},
		Logs: logs,
	}
}

// TaskAggregateError is the Original payload of a default-merged
// WorkflowError, carrying the full per-child failure detail.
type TaskAggregateError struct {
	Errors           []*WorkflowError
	TotalChildren    int
	FailedChildren   int
	FailedWorkflowID []string
}

func (e *TaskAggregateError) Error() string {
	return fmt.Sprintf("%d of %d concurrent child workflows failed", e.FailedChildren, e.TotalChildren)
}

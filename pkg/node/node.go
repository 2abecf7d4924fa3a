// Package node defines the immutable-shape data projection of a live
// workflow: Node, LogEntry, Event, and the observed-state capture used
// to snapshot a workflow's tagged fields into a Node.
package node

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a Node/Workflow.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Glyph returns the single-character status glyph used by the tree
// debugger's ASCII renderer. The mapping is byte-exact and part of the
// stable output contract.
func (s Status) Glyph() string {
	switch s {
	case StatusIdle:
		return "○"
	case StatusRunning:
		return "◐"
	case StatusCompleted:
		return "✓"
	case StatusFailed:
		return "✗"
	case StatusCancelled:
		return "⊘"
	default:
		return "?"
	}
}

// MaxNameLength is the maximum allowed length for a trimmed node name.
const MaxNameLength = 100

// ValidateName trims name and checks it against the non-empty,
// length-bounded invariant from the data model. An empty input
// defaults to fallback (the stable class/type identifier the spec
// calls for when no name is given).
func ValidateName(name, fallback string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		trimmed = strings.TrimSpace(fallback)
	}
	if trimmed == "" {
		return "", fmt.Errorf("name invalid: empty after trimming, and no fallback supplied")
	}
	if len(trimmed) > MaxNameLength {
		return "", fmt.Errorf("name invalid: %q exceeds %d characters", trimmed, MaxNameLength)
	}
	return trimmed, nil
}

// LogEntry is a single, append-only log record attached to a Node.
type LogEntry struct {
	ID            string
	WorkflowID    string
	TimestampMs   int64
	Level         LogLevel
	Message       string
	Data          map[string]any
	ParentLogID   string
	HasParentLog  bool
}

// LogLevel enumerates the log severities the Logger emits.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// EventType enumerates the WorkflowEvent tagged-union variants.
type EventType string

const (
	EventStepStart        EventType = "stepStart"
	EventStepEnd           EventType = "stepEnd"
	EventTaskStart         EventType = "taskStart"
	EventTaskEnd           EventType = "taskEnd"
	EventChildAttached     EventType = "childAttached"
	EventChildDetached     EventType = "childDetached"
	EventStateSnapshot     EventType = "stateSnapshot"
	EventTreeUpdated       EventType = "treeUpdated"
	EventError             EventType = "error"
	EventAgentPromptStart  EventType = "agentPromptStart"
	EventAgentPromptEnd    EventType = "agentPromptEnd"
	EventToolInvocation    EventType = "toolInvocation"
	EventReflectionStart   EventType = "reflectionStart"
	EventReflectionEnd     EventType = "reflectionEnd"
	EventCacheHit          EventType = "cacheHit"
	EventCacheMiss         EventType = "cacheMiss"
)

// Event is the tagged union of everything the core emits up the tree.
// Every variant carries Type and the originating Node; type-specific
// payload lives in the named optional fields below (unused fields are
// left at their zero value for a given Type).
type Event struct {
	Type EventType
	Node *Node

	// stepStart / stepEnd
	Step     string
	Duration int64 // milliseconds, stepEnd only

	// taskStart / taskEnd
	Task string

	// childAttached / childDetached
	ParentID string
	Child    *Node
	ChildID  string

	// treeUpdated
	Root *Node

	// error
	Err error

	// agentPromptStart / agentPromptEnd
	AgentID      string
	AgentName    string
	PromptID     string
	TokenUsage   *TokenUsage
	PromptResult any

	// toolInvocation
	ToolName   string
	ToolInput  any
	ToolOutput any

	// reflectionStart / reflectionEnd
	ReflectionLevel   string
	ReflectionAttempt int
	ShouldRetry       bool

	// cacheHit / cacheMiss
	CacheKey string
}

// TokenUsage is the optional payload of agentPromptEnd.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Observer is the public contract to instrumentation. onLog must not
// throw/panic; the others may, and the core isolates them.
type Observer interface {
	OnLog(entry LogEntry)
	OnEvent(event Event)
	OnStateUpdated(n *Node)
	OnTreeChanged(root *Node)
}

// Node is the immutable-shape projection of a live Workflow.
type Node struct {
	ID             string
	Name           string
	Parent         *Node
	Children       []*Node
	Status         Status
	Logs           []LogEntry
	Events         []Event
	StateSnapshot  map[string]any
	HasSnapshot    bool
}

// New creates a root-shaped Node. Parent/child wiring is the
// responsibility of the owning Workflow.
func New(id, name string) *Node {
	return &Node{
		ID:     id,
		Name:   name,
		Status: StatusIdle,
	}
}

// AppendLog appends entry to n.Logs. Never reorders prior entries.
func (n *Node) AppendLog(entry LogEntry) {
	n.Logs = append(n.Logs, entry)
}

// AppendEvent appends e to n.Events.
func (n *Node) AppendEvent(e Event) {
	n.Events = append(n.Events, e)
}

// CopyLogs returns an independent copy of n.Logs, safe to embed in a
// WorkflowError without aliasing future appends.
func (n *Node) CopyLogs() []LogEntry {
	out := make([]LogEntry, len(n.Logs))
	copy(out, n.Logs)
	return out
}

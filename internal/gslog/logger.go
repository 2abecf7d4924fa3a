// Package gslog implements the hierarchical Logger (C4): every entry
// is appended to the owning node and fanned out to observers, with an
// optional structured slog sink for human/machine-readable output,
// built the way the teacher's internal/log package builds one
// (Config{Level, Format, Output, AddSource}, FromEnv()).
package gslog

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/groundswell-ai/groundswell/pkg/id"
	"github.com/groundswell-ai/groundswell/pkg/node"
	"github.com/groundswell-ai/groundswell/pkg/wferrors"
)

// Standard field keys used when a slog sink is attached, mirroring
// the teacher's RunIDKey/StepIDKey convention for this domain.
const (
	WorkflowIDKey  = "workflow_id"
	ParentLogIDKey = "parent_log_id"
	LevelKey       = "level"
)

// Format is the slog sink's output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config configures the optional structured sink.
type Config struct {
	Level     string // debug, info, warn, error. Default: info.
	Format    Format // Default: json.
	Output    io.Writer
	AddSource bool
}

// DefaultConfig returns sensible defaults, matching the teacher's
// DefaultConfig shape.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// FromEnv builds a Config from GROUNDSWELL_LOG_LEVEL / GROUNDSWELL_LOG_FORMAT,
// following the same precedence rules as the teacher's internal/log.FromEnv.
func FromEnv() *Config {
	cfg := DefaultConfig()
	if level := os.Getenv("GROUNDSWELL_LOG_LEVEL"); level != "" {
		cfg.Level = strings.ToLower(level)
	}
	if format := os.Getenv("GROUNDSWELL_LOG_FORMAT"); format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}
	return cfg
}

func newSlogLogger(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: cfg.AddSource}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// dispatcher is the subset of the tree the Logger needs to fan log
// entries out to observers, satisfied by *workflow.Workflow. Kept
// narrow here to avoid an import cycle (pkg/workflow imports gslog,
// not the reverse).
type dispatcher interface {
	ObserversForLog() []node.Observer
}

// Logger appends LogEntry records to a node and fans them out to the
// owning workflow's observers, with an optional slog sink.
type Logger struct {
	n            *node.Node
	dispatch     dispatcher
	sink         *slog.Logger
	parentLogID  string
	hasParentLog bool
}

// New creates a Logger scoped to n, fanning entries out through
// dispatch. sink may be nil (no structured output, observer fan-out
// only).
func New(n *node.Node, dispatch dispatcher, sink *slog.Logger) *Logger {
	return &Logger{n: n, dispatch: dispatch, sink: sink}
}

// Child returns a logger that stamps parentLogID on every entry it
// emits, sharing this logger's node, dispatcher, and sink.
func (l *Logger) Child(parentLogID string) *Logger {
	return &Logger{
		n:            l.n,
		dispatch:     l.dispatch,
		sink:         l.sink,
		parentLogID:  parentLogID,
		hasParentLog: true,
	}
}

// ChildMeta is the general form of Child, accepting the parent log id
// via a meta struct for call sites that build it conditionally.
type ChildMeta struct {
	ParentLogID string
}

// ChildFromMeta returns Child(meta.ParentLogID).
func (l *Logger) ChildFromMeta(meta ChildMeta) *Logger {
	return l.Child(meta.ParentLogID)
}

func (l *Logger) Debug(message string, data map[string]any) { l.emit(node.LevelDebug, message, data) }
func (l *Logger) Info(message string, data map[string]any)  { l.emit(node.LevelInfo, message, data) }
func (l *Logger) Warn(message string, data map[string]any)  { l.emit(node.LevelWarn, message, data) }
func (l *Logger) Error(message string, data map[string]any) { l.emit(node.LevelError, message, data) }

func (l *Logger) emit(level node.LogLevel, message string, data map[string]any) {
	entry := node.LogEntry{
		ID:           id.NewPrefixed("log"),
		WorkflowID:   l.workflowID(),
		TimestampMs:  time.Now().UnixMilli(),
		Level:        level,
		Message:      message,
		Data:         data,
		ParentLogID:  l.parentLogID,
		HasParentLog: l.hasParentLog,
	}

	l.n.AppendLog(entry)
	l.dispatchToObservers(entry)
	l.writeSink(entry)
}

func (l *Logger) workflowID() string {
	if l.n == nil {
		return ""
	}
	return l.n.ID
}

// dispatchToObservers delivers entry to every observer's OnLog. If an
// OnLog callback panics, a local error LogEntry describing the
// failure is appended directly — bypassing observer dispatch again —
// to prevent infinite recursion.
func (l *Logger) dispatchToObservers(entry node.LogEntry) {
	if l.dispatch == nil {
		return
	}
	for _, obs := range l.dispatch.ObserversForLog() {
		l.deliverSafely(obs, entry)
	}
}

func (l *Logger) deliverSafely(obs node.Observer, entry node.LogEntry) {
	defer func() {
		if r := recover(); r != nil {
			failure := &wferrors.LoggerDeliveryError{Cause: panicToError(r)}
			l.n.AppendLog(node.LogEntry{
				ID:          id.NewPrefixed("log"),
				WorkflowID:  l.workflowID(),
				TimestampMs: time.Now().UnixMilli(),
				Level:       node.LevelError,
				Message:     failure.Error(),
			})
		}
	}()
	obs.OnLog(entry)
}

func (l *Logger) writeSink(entry node.LogEntry) {
	if l.sink == nil {
		return
	}
	attrs := make([]slog.Attr, 0, len(entry.Data)+2)
	attrs = append(attrs, slog.String(WorkflowIDKey, entry.WorkflowID))
	if entry.HasParentLog {
		attrs = append(attrs, slog.String(ParentLogIDKey, entry.ParentLogID))
	}
	for k, v := range entry.Data {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.sink.LogAttrs(nil, slogLevel(entry.Level), entry.Message, attrs...)
}

func slogLevel(l node.LogLevel) slog.Level {
	switch l {
	case node.LevelDebug:
		return slog.LevelDebug
	case node.LevelWarn:
		return slog.LevelWarn
	case node.LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &genericPanic{value: r}
}

type genericPanic struct {
	value any
}

func (e *genericPanic) Error() string {
	if s, ok := e.value.(string); ok {
		return s
	}
	return "non-error panic in onLog observer"
}

// NewSink is a convenience constructor exposed for callers that want
// the structured sink without going through Config/FromEnv.
func NewSink(cfg *Config) *slog.Logger {
	return newSlogLogger(cfg)
}

// Package reflection implements the bounded-retry reflection manager
// (C9): after a step fails, it decides — once per failed attempt,
// while the attempt budget remains — whether the caller should retry,
// optionally gated by an expr-lang trigger expression evaluated
// against the current observed state and optionally paced by a
// token-bucket rate limiter, so a reflecting agent cannot retry in a
// tight, unbounded loop. Every decision is recorded into an ordered,
// queryable history.
package reflection

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"golang.org/x/time/rate"
)

// Config configures a Manager.
type Config struct {
	// Enabled turns reflection on at all. A disabled Manager's Reflect
	// always reports shouldRetry=false and records no history.
	Enabled bool

	// MaxAttempts bounds how many reflection attempts Reflect will
	// allow before refusing further retries.
	MaxAttempts int

	// TriggerExpr, if non-empty, is an expr-lang boolean expression
	// evaluated against the observed state before each attempt; a
	// false result refuses the retry, and that refused attempt is still
	// recorded in History and counts against MaxAttempts. An empty
	// expression always triggers.
	TriggerExpr string

	// RateLimit, if non-nil, paces reflection attempts process-wide —
	// shared across every Manager built with the same *rate.Limiter.
	RateLimit *rate.Limiter

	// Level classifies what a reflection attempt operates on —
	// "workflow", "agent", or "prompt" — and is recorded verbatim on
	// each HistoryEntry. Defaults to "workflow".
	Level string
}

// HistoryEntry records a single reflect decision: the level it was
// taken at, its attempt number, why the trigger expression did or
// didn't fire, the prompt/step identifier being reconsidered, the
// failure that triggered it, and whether the subsequent retry (if any)
// went on to succeed.
type HistoryEntry struct {
	Level         string
	Attempt       int
	TriggerReason string
	Prompt        string
	Response      any
	Successful    bool
}

// Manager drives bounded reflect decisions and keeps their history.
type Manager struct {
	mu          sync.Mutex
	enabled     bool
	maxAttempts int
	level       string
	program     *vm.Program
	limiter     *rate.Limiter
	history     []HistoryEntry
}

// New builds a Manager from cfg, compiling the trigger expression (if
// any) once up front.
func New(cfg Config) (*Manager, error) {
	level := cfg.Level
	if level == "" {
		level = "workflow"
	}
	m := &Manager{
		enabled:     cfg.Enabled,
		maxAttempts: cfg.MaxAttempts,
		level:       level,
		limiter:     cfg.RateLimit,
	}
	if cfg.TriggerExpr != "" {
		program, err := expr.Compile(cfg.TriggerExpr,
			expr.Env(map[string]any{}),
			expr.AllowUndefinedVariables(),
			expr.AsBool(),
		)
		if err != nil {
			return nil, err
		}
		m.program = program
	}
	return m, nil
}

// IsEnabled reports whether reflection is active at all.
func (m *Manager) IsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// GetMaxAttempts returns the configured attempt budget.
func (m *Manager) GetMaxAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxAttempts
}

// shouldReflect evaluates the trigger expression against state. With
// no configured expression, every attempt triggers.
func (m *Manager) shouldReflect(state map[string]any) (bool, error) {
	if m.program == nil {
		return true, nil
	}
	if state == nil {
		state = map[string]any{}
	}
	out, err := expr.Run(m.program, state)
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}

// wait blocks until the rate limiter admits another attempt, if one is
// configured; otherwise it returns immediately.
func (m *Manager) wait(ctx context.Context) error {
	if m.limiter == nil {
		return nil
	}
	return m.limiter.Wait(ctx)
}

// Reflect is a single reflection decision, triggered only from within
// a step that caught failure while the attempt budget remains. It
// reports whether the caller should retry, records the attempt into
// History, and is paced by the rate limiter and gated by the trigger
// expression when configured.
//
// A disabled Manager always returns (false, nil) and records nothing.
// If Reflect itself fails (trigger expression error, rate limiter
// context cancellation), the caller must re-raise the original step
// failure unchanged, not this error — Reflect's error exists only so
// the caller can log it.
func (m *Manager) Reflect(ctx context.Context, state map[string]any, failure error, prompt string) (bool, error) {
	if !m.IsEnabled() {
		return false, nil
	}

	m.mu.Lock()
	attempt := len(m.history) + 1
	maxAttempts := m.maxAttempts
	m.mu.Unlock()

	if attempt > maxAttempts {
		return false, nil
	}

	ok, err := m.shouldReflect(state)
	if err != nil {
		return false, err
	}

	triggerReason := "no trigger expression: always reflects"
	if m.program != nil {
		if ok {
			triggerReason = "trigger expression matched"
		} else {
			triggerReason = "trigger expression did not match"
		}
	}

	if ok {
		if err := m.wait(ctx); err != nil {
			return false, err
		}
	}

	m.mu.Lock()
	m.history = append(m.history, HistoryEntry{
		Level:         m.level,
		Attempt:       attempt,
		TriggerReason: triggerReason,
		Prompt:        prompt,
		Response:      failure,
		Successful:    false,
	})
	m.mu.Unlock()

	return ok, nil
}

// MarkLastReflectionSuccessful records whether the retry following the
// most recently recorded reflection attempt resolved the underlying
// failure. A no-op if no attempt has been recorded yet.
func (m *Manager) MarkLastReflectionSuccessful(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return
	}
	m.history[len(m.history)-1].Successful = ok
}

// LastSuccessful reports whether the most recently recorded reflection
// attempt was marked successful. False if no attempt has been
// recorded.
func (m *Manager) LastSuccessful() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return false
	}
	return m.history[len(m.history)-1].Successful
}

// History returns a defensive copy of every reflection attempt
// recorded so far, oldest first.
func (m *Manager) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}

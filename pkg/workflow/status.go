package workflow

import (
	"fmt"

	"github.com/groundswell-ai/groundswell/pkg/node"
)

// Re-exported so callers only ever need to import pkg/workflow for the
// public surface; node stays an internal projection type.
type Status = node.Status

const (
	StatusIdle      = node.StatusIdle
	StatusRunning   = node.StatusRunning
	StatusCompleted = node.StatusCompleted
	StatusFailed    = node.StatusFailed
	StatusCancelled = node.StatusCancelled
)

// transitions enumerates every legal (from, to) status edge. idle may
// only begin running; running resolves to exactly one terminal state;
// terminal states are final.
var transitions = map[node.Status]map[node.Status]bool{
	StatusIdle: {
		StatusRunning: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

func validTransition(from, to node.Status) error {
	next, ok := transitions[from]
	if !ok || !next[to] {
		return fmt.Errorf("invalid status transition: %s -> %s", from, to)
	}
	return nil
}

// Package id generates collision-resistant identifiers for workflow
// nodes, log entries, and events.
package id

import (
	"github.com/google/uuid"
)

// New returns a globally unique, time-ordered identifier sufficient
// within a single process run. It is a UUIDv7: a monotonically
// increasing millisecond timestamp followed by random bits, which
// gives both collision resistance and a stable sort order for debug
// output without any extra bookkeeping.
func New() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewPrefixed returns New() prefixed with prefix and an underscore,
// e.g. NewPrefixed("node") -> "node_0191a2.....".
func NewPrefixed(prefix string) string {
	return prefix + "_" + New()
}

package node_test

import (
	"testing"

	"github.com/groundswell-ai/groundswell/pkg/node"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	t.Run("trims and accepts", func(t *testing.T) {
		n, err := node.ValidateName("  hello  ", "fallback")
		require.NoError(t, err)
		require.Equal(t, "hello", n)
	})

	t.Run("falls back on empty", func(t *testing.T) {
		n, err := node.ValidateName("   ", "MyWorkflow")
		require.NoError(t, err)
		require.Equal(t, "MyWorkflow", n)
	})

	t.Run("rejects empty with no fallback", func(t *testing.T) {
		_, err := node.ValidateName("   ", "")
		require.Error(t, err)
	})

	t.Run("rejects overlong", func(t *testing.T) {
		long := make([]byte, node.MaxNameLength+1)
		for i := range long {
			long[i] = 'a'
		}
		_, err := node.ValidateName(string(long), "")
		require.Error(t, err)
	})
}

func TestStatusGlyphs(t *testing.T) {
	cases := map[node.Status]string{
		node.StatusIdle:      "○",
		node.StatusRunning:   "◐",
		node.StatusCompleted: "✓",
		node.StatusFailed:    "✗",
		node.StatusCancelled: "⊘",
	}
	for status, glyph := range cases {
		require.Equal(t, glyph, status.Glyph())
	}
}

func TestAppendLogAndCopyLogs(t *testing.T) {
	n := node.New("n1", "root")
	n.AppendLog(node.LogEntry{ID: "l1", Message: "hi"})
	cp := n.CopyLogs()
	require.Len(t, cp, 1)

	n.AppendLog(node.LogEntry{ID: "l2", Message: "bye"})
	require.Len(t, cp, 1, "copy must not alias future appends")
	require.Len(t, n.Logs, 2)
}

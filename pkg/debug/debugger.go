package debug

import (
	"fmt"
	"strings"

	"github.com/groundswell-ai/groundswell/pkg/node"
)

// TreeDebugger is a node.Observer that maintains an incrementally
// updated index of the whole tree and renders it on demand, without
// ever walking the full tree on an attach/detach/status-change event.
type TreeDebugger struct {
	idx     *Index
	metrics *metricsRecorder
}

// Option configures a TreeDebugger at construction time.
type Option func(*TreeDebugger)

// New returns a TreeDebugger watching root. root may be nil if the
// debugger is attached before the first workflow exists; the first
// treeUpdated/OnTreeChanged call will populate it.
func New(root *node.Node, opts ...Option) *TreeDebugger {
	d := &TreeDebugger{idx: NewIndex(root)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnLog is a no-op: the debugger surfaces logs via GetTree, not a
// separate log stream.
func (d *TreeDebugger) OnLog(node.LogEntry) {}

// OnEvent updates the index for the topology-changing event types and
// records metrics for every event. Every update here is O(k) in the size
// of the affected subtree, never O(n) in the whole tree.
func (d *TreeDebugger) OnEvent(e node.Event) {
	switch e.Type {
	case node.EventChildAttached:
		d.idx.InsertSubtree(e.Child)
	case node.EventChildDetached:
		d.idx.RemoveSubtree(e.ChildID)
	case node.EventTreeUpdated:
		d.idx.SetRoot(e.Root)
	}
	if d.metrics != nil {
		d.metrics.observe(e)
	}
}

// OnStateUpdated is a no-op: the index shares node pointers with the
// live tree, so a state snapshot on an already-indexed node is visible
// without any action here.
func (d *TreeDebugger) OnStateUpdated(*node.Node) {}

// OnTreeChanged updates only the root reference, mirroring
// treeUpdated. It must never trigger a full Rebuild.
func (d *TreeDebugger) OnTreeChanged(root *node.Node) {
	d.idx.SetRoot(root)
}

// Stats summarizes the current tree by status.
type Stats struct {
	TotalNodes int
	ByStatus   map[node.Status]int
}

// GetStats walks the current index (not the live tree) to total nodes
// by status.
func (d *TreeDebugger) GetStats() Stats {
	stats := Stats{ByStatus: make(map[node.Status]int)}
	for _, n := range d.idx.All() {
		stats.TotalNodes++
		stats.ByStatus[n.Status]++
	}
	return stats
}

// GetTree returns the current root and the cumulative logs of every
// indexed node, in preorder.
func (d *TreeDebugger) GetTree() (*node.Node, []node.LogEntry) {
	root := d.idx.Root()
	var logs []node.LogEntry
	var walk func(n *node.Node)
	walk = func(n *node.Node) {
		if n == nil {
			return
		}
		logs = append(logs, n.Logs...)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return root, logs
}

// Get returns the indexed node for id, if present.
func (d *TreeDebugger) Get(id string) (*node.Node, bool) {
	return d.idx.Get(id)
}

// ToTreeString renders the current tree as an ASCII diagram: one line
// per node, depth-first in attachment order, with a status glyph and
// (when available) the most recent step duration.
func (d *TreeDebugger) ToTreeString() string {
	root := d.idx.Root()
	if root == nil {
		return ""
	}
	var b strings.Builder
	renderNode(&b, root, "", true, true)
	return b.String()
}

func renderNode(b *strings.Builder, n *node.Node, prefix string, isLast, isRoot bool) {
	if isRoot {
		fmt.Fprintf(b, "%s %s%s\n", n.Name, n.Status.Glyph(), durationSuffix(n))
	} else {
		connector := "├─ "
		if isLast {
			connector = "└─ "
		}
		fmt.Fprintf(b, "%s%s%s %s%s\n", prefix, connector, n.Name, n.Status.Glyph(), durationSuffix(n))
	}

	childPrefix := prefix
	if !isRoot {
		if isLast {
			childPrefix += "   "
		} else {
			childPrefix += "│  "
		}
	}

	for i, c := range n.Children {
		renderNode(b, c, childPrefix, i == len(n.Children)-1, false)
	}
}

func durationSuffix(n *node.Node) string {
	for i := len(n.Events) - 1; i >= 0; i-- {
		if n.Events[i].Type == node.EventStepEnd {
			return fmt.Sprintf(" (%dms)", n.Events[i].Duration)
		}
	}
	return ""
}

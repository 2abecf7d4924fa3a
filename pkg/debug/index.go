// Package debug implements the TreeDebugger observer (C10): an
// incrementally-maintained id->node index plus ASCII tree rendering
// and aggregate stats. Index is the shared incremental-maintenance
// core, used both by TreeDebugger and by the workflow package's
// EventTreeHandle, so the O(k) walk logic for attach/detach lives in
// exactly one place.
package debug

import "github.com/groundswell-ai/groundswell/pkg/node"

// Index maintains an id -> *node.Node map and a root reference. It
// stores the same *node.Node pointers the live workflow tree uses, so
// status/log/event mutations on those nodes are visible through the
// index without any copying or re-sync step.
type Index struct {
	root  *node.Node
	byID  map[string]*node.Node
}

// NewIndex builds an Index over the subtree rooted at root (root may
// be nil for an empty index).
func NewIndex(root *node.Node) *Index {
	idx := &Index{byID: make(map[string]*node.Node)}
	if root != nil {
		idx.Rebuild(root)
	}
	return idx
}

// Rebuild discards the current map and walks root's subtree fully,
// re-inserting every node. O(n) in the size of the whole tree — used
// only where the spec explicitly allows a full rebuild (EventTreeHandle
// construction/Rebuild), never from TreeDebugger's observer callbacks.
func (idx *Index) Rebuild(root *node.Node) {
	idx.root = root
	idx.byID = make(map[string]*node.Node)
	if root != nil {
		idx.insertSubtree(root)
	}
}

// InsertSubtree walks n and all of its descendants once, inserting
// each into the map. O(k) in the size of the inserted subtree — this
// is what childAttached uses, never a full Rebuild.
func (idx *Index) InsertSubtree(n *node.Node) {
	if n == nil {
		return
	}
	idx.insertSubtree(n)
}

func (idx *Index) insertSubtree(n *node.Node) {
	idx.byID[n.ID] = n
	for _, c := range n.Children {
		idx.insertSubtree(c)
	}
}

// RemoveSubtree removes id and every descendant reachable from it at
// the time of the call, via BFS. O(k) in the size of the removed
// subtree. Guards against the node already being absent (a no-op).
func (idx *Index) RemoveSubtree(id string) {
	start, ok := idx.byID[id]
	if !ok {
		return
	}

	queue := []*node.Node{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		delete(idx.byID, n.ID)
		queue = append(queue, n.Children...)
	}
}

// SetRoot updates only the root reference; it never rebuilds the map.
// Used for treeUpdated / onTreeChanged, which change status, not
// topology.
func (idx *Index) SetRoot(root *node.Node) {
	idx.root = root
}

// Root returns the current root, or nil if the index is empty.
func (idx *Index) Root() *node.Node {
	return idx.root
}

// Get returns the node for id, if present.
func (idx *Index) Get(id string) (*node.Node, bool) {
	n, ok := idx.byID[id]
	return n, ok
}

// Children returns id's direct children, if id is present.
func (idx *Index) Children(id string) ([]*node.Node, bool) {
	n, ok := idx.byID[id]
	if !ok {
		return nil, false
	}
	return n.Children, true
}

// Ancestors returns id's ancestor chain, closest first, if id is
// present.
func (idx *Index) Ancestors(id string) ([]*node.Node, bool) {
	n, ok := idx.byID[id]
	if !ok {
		return nil, false
	}
	var out []*node.Node
	for p := n.Parent; p != nil; p = p.Parent {
		out = append(out, p)
	}
	return out, true
}

// Len returns the number of nodes currently indexed. This is the
// ground truth the "nodeMap equals nodes reachable from root"
// property is checked against.
func (idx *Index) Len() int {
	return len(idx.byID)
}

// All returns every indexed node, in unspecified order.
func (idx *Index) All() []*node.Node {
	out := make([]*node.Node, 0, len(idx.byID))
	for _, n := range idx.byID {
		out = append(out, n)
	}
	return out
}

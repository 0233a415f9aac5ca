package state

// FirstOrder is the order given to the first node of a conversion.
const FirstOrder = 1000

// LayerNode is one node of the destination layer tree. A node is owned by exactly one
// parent (or is a root) and is attached once, when it is created.
type LayerNode struct {
	ID               int
	Order            int
	Enabled          bool
	Expanded         bool
	Opacity          *float64
	Children         []*LayerNode
	ExcludedChildIDs []int
}

// LayerTree builds the layer forest of one conversion. It owns the order counter and
// an index from catalog id to node, so lookups never walk the tree.
type LayerTree struct {
	roots []*LayerNode
	byID  map[int]*LayerNode
	next  int
}

// NewLayerTree returns an empty tree whose first node gets FirstOrder.
func NewLayerTree() *LayerTree {
	return &LayerTree{
		byID: make(map[int]*LayerNode),
		next: FirstOrder,
	}
}

// Node returns the node created for a catalog id.
func (t *LayerTree) Node(id int) (*LayerNode, bool) {
	n, ok := t.byID[id]
	return n, ok
}

// AddRoot creates a top-level node. An id that already has a node is returned as is.
func (t *LayerTree) AddRoot(id int, enabled bool) *LayerNode {
	if n, ok := t.byID[id]; ok {
		return n
	}
	n := t.newNode(id, enabled)
	t.roots = append(t.roots, n)
	return n
}

// AddChild creates a node under parent. An id that already has a node is returned as is.
func (t *LayerTree) AddChild(parent *LayerNode, id int, enabled bool) *LayerNode {
	if parent == nil {
		return t.AddRoot(id, enabled)
	}
	if n, ok := t.byID[id]; ok {
		return n
	}
	n := t.newNode(id, enabled)
	parent.Children = append(parent.Children, n)
	return n
}

// Roots returns the top-level nodes in creation order.
func (t *LayerTree) Roots() []*LayerNode {
	return t.roots
}

// Len returns the number of nodes in the tree.
func (t *LayerTree) Len() int {
	return len(t.byID)
}

func (t *LayerTree) newNode(id int, enabled bool) *LayerNode {
	n := &LayerNode{
		ID:               id,
		Order:            t.next,
		Enabled:          enabled,
		Expanded:         true,
		Children:         []*LayerNode{},
		ExcludedChildIDs: []int{},
	}
	t.next++
	t.byID[id] = n
	return n
}

// Walk visits nodes depth first, parents before children.
func Walk(nodes []*LayerNode, fn func(*LayerNode)) {
	for _, n := range nodes {
		fn(n)
		Walk(n.Children, fn)
	}
}

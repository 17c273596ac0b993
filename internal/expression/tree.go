package expression

import (
	"isaac/internal/driver"
	"isaac/internal/ierrors"
	"isaac/internal/numeric"
	"isaac/internal/tuple"
)

// Tree is a flat, arena-backed expression. Edges are node indices rather
// than pointers: concatenating two sub-trees is an append plus an index
// rebase, never a deep copy of node objects (design note in spec.md §9).
type Tree struct {
	Nodes   []Node
	Root    int
	Context driver.Context
}

// Leaf builds a single-node Tree from n, which must not itself be a
// composite referencing indices outside of a Tree (use Compose for that).
func Leaf(ctx driver.Context, n Node) Tree {
	return Tree{Nodes: []Node{n}, Root: 0, Context: ctx}
}

// Shape returns the result shape cached at the root.
func (t Tree) Shape() tuple.Tuple { return t.Nodes[t.Root].Shape }

// Dtype returns the result dtype cached at the root.
func (t Tree) Dtype() numeric.Type { return t.Nodes[t.Root].Dtype }

// At returns the node at index i.
func (t Tree) At(i int) Node { return t.Nodes[i] }

// rebase returns a copy of nodes with every composite's LHS/RHS child
// index shifted by delta; used when splicing a sub-tree into a larger
// arena so its internal edges keep pointing at the right nodes.
func rebase(nodes []Node, delta int) []Node {
	out := make([]Node, len(nodes))
	copy(out, nodes)
	for i := range out {
		if out[i].Kind == KindComposite {
			if out[i].LHS >= 0 {
				out[i].LHS += delta
			}
			if out[i].RHS >= 0 {
				out[i].RHS += delta
			}
		}
	}
	return out
}

// compose is the single concatenation primitive behind the four
// overloaded composers named in spec §4.1: it appends left's nodes, then
// right's nodes rebased by len(left), then a new composite root pointing
// at the two old roots.
func compose(ctx driver.Context, left []Node, leftRoot int, right []Node, rightRoot int, op Token, dtype numeric.Type, shape tuple.Tuple) (Tree, error) {
	if len(right) > 0 {
		right = rebase(right, len(left))
		rightRoot += len(left)
	} else {
		rightRoot = -1 // INVALID placeholder for unary ops
	}

	nodes := make([]Node, 0, len(left)+len(right)+1)
	nodes = append(nodes, left...)
	nodes = append(nodes, right...)
	root := Node{
		Kind: KindComposite, Dtype: dtype, Shape: shape,
		LHS: leftRoot, RHS: rightRoot, Op: op,
	}
	nodes = append(nodes, root)
	rootIdx := len(nodes) - 1

	if err := checkTopological(nodes, rootIdx); err != nil {
		return Tree{}, err
	}
	return Tree{Nodes: nodes, Root: rootIdx, Context: ctx}, nil
}

// checkTopological enforces invariant 1 of spec §3: every composite
// node's lhs/rhs indices are strictly less than its own index.
func checkTopological(nodes []Node, root int) error {
	n := nodes[root]
	if n.Kind != KindComposite {
		return nil
	}
	if n.LHS >= root || (n.RHS >= 0 && n.RHS >= root) {
		return ierrors.New(ierrors.SemanticError,
			"composite node %d has a non-topological child (lhs=%d rhs=%d)", root, n.LHS, n.RHS)
	}
	return nil
}

// ComposeNodeNode builds `node op node`. Pass Invalid() for rhs to build a
// unary operator.
func ComposeNodeNode(ctx driver.Context, lhs Node, op Token, rhs Node, dtype numeric.Type, shape tuple.Tuple) (Tree, error) {
	var right []Node
	if rhs.Kind != KindInvalid {
		right = []Node{rhs}
	}
	return compose(ctx, []Node{lhs}, 0, right, 0, op, dtype, shape)
}

// ComposeTreeNode builds `tree op node`.
func ComposeTreeNode(lhs Tree, op Token, rhs Node, dtype numeric.Type, shape tuple.Tuple) (Tree, error) {
	var right []Node
	if rhs.Kind != KindInvalid {
		right = []Node{rhs}
	}
	return compose(lhs.Context, lhs.Nodes, lhs.Root, right, 0, op, dtype, shape)
}

// ComposeNodeTree builds `node op tree`.
func ComposeNodeTree(lhs Node, op Token, rhs Tree, dtype numeric.Type, shape tuple.Tuple) (Tree, error) {
	return compose(rhs.Context, []Node{lhs}, 0, rhs.Nodes, rhs.Root, op, dtype, shape)
}

// ComposeTreeTree builds `tree op tree`.
func ComposeTreeTree(lhs Tree, op Token, rhs Tree, dtype numeric.Type, shape tuple.Tuple) (Tree, error) {
	return compose(lhs.Context, lhs.Nodes, lhs.Root, rhs.Nodes, rhs.Root, op, dtype, shape)
}

// Unary builds a composite with an INVALID right operand, used for
// negate/minus, casts, transcendental functions, and access modifiers.
func Unary(t Tree, op Token, dtype numeric.Type, shape tuple.Tuple) (Tree, error) {
	return compose(t.Context, t.Nodes, t.Root, nil, 0, op, dtype, shape)
}

// Dump renders the tree with github.com/kr/pretty for debug logging.
func (t Tree) Dump() string {
	return prettyDump(t)
}

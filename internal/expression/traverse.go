package expression

// Visitor is called once per visited node index during a traversal.
type Visitor func(idx int, n Node)

// Predicate decides, for a composite node, whether the traversal should
// recurse into its children. A nil Predicate always recurses; the
// symbolic extractor passes a predicate that stops at access-modifier
// boundaries (spec §4.1 "Traversal").
type Predicate func(idx int, n Node) bool

// DFS walks t in post-order (children before parent) starting at root,
// honoring pred to decide whether to recurse into a composite's children.
func (t Tree) DFS(root int, pred Predicate, visit Visitor) {
	t.dfsPost(root, pred, visit, make(map[int]bool))
}

func (t Tree) dfsPost(idx int, pred Predicate, visit Visitor, seen map[int]bool) {
	if idx < 0 || seen[idx] {
		return
	}
	seen[idx] = true
	n := t.Nodes[idx]
	if n.Kind == KindComposite && (pred == nil || pred(idx, n)) {
		t.dfsPost(n.LHS, pred, visit, seen)
		if n.RHS >= 0 {
			t.dfsPost(n.RHS, pred, visit, seen)
		}
	}
	visit(idx, n)
}

// DFSPre walks t in pre-order (parent before children).
func (t Tree) DFSPre(root int, pred Predicate, visit Visitor) {
	t.dfsPre(root, pred, visit, make(map[int]bool))
}

func (t Tree) dfsPre(idx int, pred Predicate, visit Visitor, seen map[int]bool) {
	if idx < 0 || seen[idx] {
		return
	}
	seen[idx] = true
	n := t.Nodes[idx]
	visit(idx, n)
	if n.Kind == KindComposite && (pred == nil || pred(idx, n)) {
		t.dfsPre(n.LHS, pred, visit, seen)
		if n.RHS >= 0 {
			t.dfsPre(n.RHS, pred, visit, seen)
		}
	}
}

// BFS walks t breadth-first starting at root.
func (t Tree) BFS(root int, pred Predicate, visit Visitor) {
	if root < 0 {
		return
	}
	seen := map[int]bool{root: true}
	queue := []int{root}
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		n := t.Nodes[idx]
		visit(idx, n)
		if n.Kind == KindComposite && (pred == nil || pred(idx, n)) {
			if n.LHS >= 0 && !seen[n.LHS] {
				seen[n.LHS] = true
				queue = append(queue, n.LHS)
			}
			if n.RHS >= 0 && !seen[n.RHS] {
				seen[n.RHS] = true
				queue = append(queue, n.RHS)
			}
		}
	}
}

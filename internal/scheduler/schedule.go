package scheduler

import (
	"isaac/internal/expression"
	"isaac/internal/ierrors"
)

// Plan is the scheduler's output: the root kernel Kind, the ordered,
// deduplicated set of node indices that must be materialized to
// temporaries before the root can be evaluated, and a grouping of those
// breakpoints into independent batches (supplemented feature, see
// SPEC_FULL.md §6.1, grounded on original_source/lib/scheduling/heft.cpp)
// that share no buffer and may be dispatched back-to-back on one queue
// without an intervening dependency.
type Plan struct {
	Tree        expression.Tree
	RootKind    Kind
	Breakpoints []int

	// IndependentGroups partitions Breakpoints into batches whose
	// sub-trees touch disjoint sets of DENSE_ARRAY buffer ids. Grouping
	// never reorders across Breakpoints' discovery order within or across
	// groups — multi-queue execution remains a Non-goal (spec.md §7); this
	// is bookkeeping only, and no other package in the module reads it.
	IndependentGroups [][]int
}

type scheduler struct {
	tree       expression.Tree
	kind       map[int]Kind
	breakSet   map[int]bool
	breakOrder []int
}

// Schedule classifies tree's root and returns the materialization plan.
func Schedule(tree expression.Tree) (*Plan, error) {
	s := &scheduler{
		tree:     tree,
		kind:     make(map[int]Kind),
		breakSet: make(map[int]bool),
	}
	rootKind, err := s.classify(tree.Root, false)
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		Tree:        tree,
		RootKind:    rootKind,
		Breakpoints: s.breakOrder,
	}
	plan.IndependentGroups = groupIndependent(tree, s.breakOrder)
	return plan, nil
}

func defaultElementwiseKind(shape interface{ NumNonUnit() int }) Kind {
	if shape.NumNonUnit() <= 1 {
		return KindElementwise1D
	}
	return KindElementwise2D
}

func (s *scheduler) markBreakpoint(idx int) {
	if idx < 0 || s.breakSet[idx] {
		return
	}
	s.breakSet[idx] = true
	s.breakOrder = append(s.breakOrder, idx)
}

// classify returns the Kind that would result from evaluating the
// sub-tree rooted at idx in place (no breakpoint at idx itself).
// isAssignRHS is true exactly when idx is the direct right operand of an
// ASSIGN composite (spec §4.2 rule 5).
func (s *scheduler) classify(idx int, isAssignRHS bool) (Kind, error) {
	if k, ok := s.kind[idx]; ok {
		return k, nil
	}
	n := s.tree.At(idx)
	var k Kind
	var err error
	switch n.Kind {
	case expression.KindDenseArray:
		k = defaultElementwiseKind(n.Shape)
	case expression.KindValueScalar, expression.KindInvalid:
		k = KindElementwise1D
	case expression.KindComposite:
		k, err = s.classifyComposite(idx, n, isAssignRHS)
	}
	if err != nil {
		return 0, err
	}
	s.kind[idx] = k
	return k, nil
}

func (s *scheduler) classifyComposite(idx int, n expression.Node, isAssignRHS bool) (Kind, error) {
	switch n.Op.Family {
	case expression.FamilyMatrixProduct:
		// Rule 1: both operands must be materialized buffers.
		s.forceDenseOperand(n.LHS)
		s.forceDenseOperand(n.RHS)
		return matrixProductKind(n.Op.Type), nil

	case expression.FamilyReduce, expression.FamilyReduceRows, expression.FamilyReduceColumns:
		childKind, err := s.classify(n.LHS, false)
		if err != nil {
			return 0, err
		}
		if !elementwiseCompatible(childKind) {
			s.markBreakpoint(n.LHS)
		}
		return reduceKind(n.Op.Family), nil

	case expression.FamilyUnaryArithmetic:
		if n.Op.IsAccessModifier() {
			return s.classifyAccessModifier(idx, n)
		}
		return s.classify(n.LHS, false)

	case expression.FamilyBinaryArithmetic:
		if n.Op.IsAssignment() {
			return s.classifyAssignment(idx, n)
		}
		return s.classifyArithmetic(n)
	}
	return 0, ierrors.New(ierrors.OperationNotSupported, "scheduler: unrecognized token family %d", n.Op.Family)
}

// forceDenseOperand materializes idx unless it is already a direct
// DENSE_ARRAY leaf (or the INVALID placeholder standing in for a
// just-materialized temporary).
func (s *scheduler) forceDenseOperand(idx int) {
	if idx < 0 {
		return
	}
	if s.tree.At(idx).Kind == expression.KindDenseArray {
		return
	}
	s.markBreakpoint(idx)
}

func (s *scheduler) classifyAccessModifier(idx int, n expression.Node) (Kind, error) {
	childKind, err := s.classify(n.LHS, false)
	if err != nil {
		return 0, err
	}
	if n.Op.Type == expression.TypeReshape && !elementwiseCompatible(childKind) {
		// Rule 3: reshape is only representable on a contiguous producer.
		s.markBreakpoint(n.LHS)
		return defaultElementwiseKind(n.Shape), nil
	}
	return childKind, nil
}

func (s *scheduler) classifyAssignment(idx int, n expression.Node) (Kind, error) {
	rhs := s.tree.At(n.RHS)
	if rhs.Kind == expression.KindComposite && rhs.Op.Family == expression.FamilyMatrixProduct {
		// Rule 5: assigning a direct matrix-product sub-expression becomes
		// one matrix-product kernel writing to the destination, no
		// temporary. Only the matmul's own operands are forced dense.
		s.forceDenseOperand(rhs.LHS)
		s.forceDenseOperand(rhs.RHS)
		return matrixProductKind(rhs.Op.Type), nil
	}
	return s.classify(n.RHS, true)
}

func (s *scheduler) classifyArithmetic(n expression.Node) (Kind, error) {
	lhsKind, err := s.classify(n.LHS, false)
	if err != nil {
		return 0, err
	}
	var rhsKind Kind
	hasRHS := n.RHS >= 0
	if hasRHS {
		rhsKind, err = s.classify(n.RHS, false)
		if err != nil {
			return 0, err
		}
	}

	// Rule 5 (continued): a matrix-product operand anywhere other than
	// the direct RHS of an assignment must be materialized.
	if lhsKind.IsMatrixProduct() {
		s.markBreakpoint(n.LHS)
		lhsKind = defaultElementwiseKind(n.Shape)
	}
	if hasRHS && rhsKind.IsMatrixProduct() {
		s.markBreakpoint(n.RHS)
		rhsKind = defaultElementwiseKind(n.Shape)
	}
	if !hasRHS {
		return lhsKind, nil
	}

	// Rule 4: fuse when kinds agree, or one side is element-wise and the
	// other a compatible reduction; otherwise materialize the non-fusable
	// side.
	if lhsKind == rhsKind {
		return lhsKind, nil
	}
	lhsEW, rhsEW := isElementwise(lhsKind), isElementwise(rhsKind)
	switch {
	case lhsEW && rhsKind.IsReduction():
		s.markBreakpoint(n.RHS)
	case rhsEW && lhsKind.IsReduction():
		s.markBreakpoint(n.LHS)
	case lhsEW && rhsEW:
		// both element-wise but different rank (1D vs 2D): no breakpoint
		// needed, the wider (2D) kind wins per rule 6.
	default:
		// Two incompatible reductions, or a reduction meeting another
		// reduction of different axis: materialize the lesser-ranked side.
		if rank[lhsKind] >= rank[rhsKind] {
			s.markBreakpoint(n.RHS)
		} else {
			s.markBreakpoint(n.LHS)
		}
	}
	return Greater(lhsKind, rhsKind), nil
}

func isElementwise(k Kind) bool {
	return k == KindElementwise1D || k == KindElementwise2D
}

// elementwiseCompatible reports whether a child's kind can sit directly
// beneath a reduction or a reshape without materialization.
func elementwiseCompatible(k Kind) bool {
	return isElementwise(k)
}

func matrixProductKind(t expression.Type) Kind {
	switch t {
	case expression.TypeMatrixProductNN:
		return KindMatrixProductNN
	case expression.TypeMatrixProductNT:
		return KindMatrixProductNT
	case expression.TypeMatrixProductTN:
		return KindMatrixProductTN
	default:
		return KindMatrixProductTT
	}
}

func reduceKind(f expression.Family) Kind {
	switch f {
	case expression.FamilyReduce:
		return KindReduce1D
	case expression.FamilyReduceRows:
		return KindReduce2DRows
	default:
		return KindReduce2DCols
	}
}

// groupIndependent partitions breakpoints into batches that reference
// disjoint sets of buffer ids, preserving discovery order both within and
// across groups.
func groupIndependent(tree expression.Tree, breakpoints []int) [][]int {
	var groups [][]int
	var groupBufs []map[string]bool

	bufsOf := func(idx int) map[string]bool {
		bufs := make(map[string]bool)
		tree.DFS(idx, nil, func(_ int, n expression.Node) {
			if n.Kind == expression.KindDenseArray && n.Buffer != nil {
				bufs[n.Buffer.ID().String()] = true
			}
		})
		return bufs
	}

	for _, bp := range breakpoints {
		bufs := bufsOf(bp)
		placed := false
		for gi, gb := range groupBufs {
			if !intersects(gb, bufs) {
				groups[gi] = append(groups[gi], bp)
				for b := range bufs {
					gb[b] = true
				}
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []int{bp})
			groupBufs = append(groupBufs, bufs)
		}
	}
	return groups
}

func intersects(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}

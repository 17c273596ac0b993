package symbolic

import (
	"fmt"

	"isaac/internal/expression"
	"isaac/internal/tuple"
)

// Table is the result of one annotation pass: one Object per tree node,
// plus the orderings the code-generation layer needs to bind kernel
// arguments in the fixed sequence spec §4.3 describes ("Common enqueue
// argument order").
type Table struct {
	Objects map[int]*Object

	// BufferOrder lists, in DFS-annotation (discovery) order, the node
	// indices of every DENSE_ARRAY leaf bound as a kernel argument. A
	// buffer read more than once appears once, at its first discovery.
	BufferOrder []int
	// ScalarOrder lists, in discovery order, the node indices of every
	// VALUE_SCALAR leaf.
	ScalarOrder []int
	// ReshapeOrder lists, in discovery order, the node indices of every
	// `reshape` access-modifier node (each contributes new/old stride
	// arguments per spec §4.3 normative argument order).
	ReshapeOrder []int

	// AssigneeIndex is the node index of the DENSE_ARRAY being written by
	// this annotation unit's top-level ASSIGN, or -1 if the unit has none
	// (a bare reduction/matmul root materializing straight into a
	// scheduler-allocated temporary supplies that buffer out of band via
	// EnqueueArgs instead).
	AssigneeIndex int

	Binder *Binder
}

// Annotate performs the single DFS that builds exactly one symbolic
// Object per node (spec §4.1 "Symbolic annotation").
func Annotate(tree expression.Tree) *Table {
	t := &Table{Objects: make(map[int]*Object), Binder: NewBinder(), AssigneeIndex: -1}
	seenBuffer := make(map[string]bool)
	seenScalar := make(map[int]bool)

	var visit func(idx int)
	visited := make(map[int]bool)
	visit = func(idx int) {
		if idx < 0 || visited[idx] {
			return
		}
		visited[idx] = true
		n := tree.At(idx)
		switch n.Kind {
		case expression.KindValueScalar:
			t.annotateScalar(idx, n)
			if !seenScalar[idx] {
				seenScalar[idx] = true
				t.ScalarOrder = append(t.ScalarOrder, idx)
			}
		case expression.KindDenseArray:
			isWrite := isAssignedAt(tree, idx)
			t.annotateBuffer(idx, n, isWrite)
			// Leaves that share a Binder slot (the same buffer read twice)
			// are declared and bound once, under the first leaf's index.
			if pointer := t.Objects[idx].Attrs["pointer"]; !seenBuffer[pointer] {
				seenBuffer[pointer] = true
				t.BufferOrder = append(t.BufferOrder, idx)
			}
			if isWrite {
				t.AssigneeIndex = idx
			}
		case expression.KindComposite:
			// Access modifiers stop normal recursion semantics in the
			// sense that their evaluate() re-maps onto the child rather
			// than combining two evaluated operands, but the child still
			// needs its own Object, so we always recurse here.
			visit(n.LHS)
			if n.RHS >= 0 {
				visit(n.RHS)
			}
			t.annotateComposite(tree, idx, n)
			if n.Op.Type == expression.TypeReshape {
				t.ReshapeOrder = append(t.ReshapeOrder, idx)
			}
		}
	}
	visit(tree.Root)
	return t
}

// isAssignedAt reports whether the node at idx is the direct left operand
// of an ASSIGN composite anywhere in the tree; used to route it through
// Binder.Assignee instead of Binder.Bound.
func isAssignedAt(tree expression.Tree, idx int) bool {
	assigned := false
	tree.DFS(tree.Root, nil, func(i int, n expression.Node) {
		if n.Kind == expression.KindComposite && n.Op.IsAssignment() && n.LHS == idx {
			assigned = true
		}
	})
	return assigned
}

func (t *Table) annotateScalar(idx int, n expression.Node) {
	id := t.Binder.HostScalar()
	o := NewObject("object", "leaf", "host_scalar")
	name := fmt.Sprintf("s%d", id)
	o.SetAttr("name", name).SetAttr("scalartype", n.Dtype.String())
	o.AddLambda(fmt.Sprintf("value() : %s", name))
	t.Objects[idx] = o
}

func (t *Table) annotateBuffer(idx int, n expression.Node, isWrite bool) {
	var id int
	if isWrite {
		id = t.Binder.Assignee(n.Buffer.ID())
	} else {
		id = t.Binder.Bound(n.Buffer.ID())
	}
	o := NewObject("object", "leaf", "buffer")
	pointer := fmt.Sprintf("p%d", id)
	start := fmt.Sprintf("start%d", id)
	o.SetAttr("name", pointer).SetAttr("pointer", pointer).SetAttr("start", start).
		SetAttr("scalartype", n.Dtype.String())

	nonUnit := n.Shape.NonUnitAxes()
	incNames := make([]string, n.Shape.Size())
	for _, axis := range nonUnit {
		inc := fmt.Sprintf("inc%d_%d", axis, id)
		incNames[axis] = inc
		o.SetAttr(fmt.Sprintf("inc%d", axis), inc)
	}

	switch n.Shape.Size() {
	case 0:
		o.AddLambda("at() : #pointer[#start]")
	case 1:
		if incNames[0] != "" {
			o.AddLambda("at(i) : #pointer[#start + (i)*#inc0]")
		} else {
			o.AddLambda("at(i) : #pointer[#start]")
		}
	default:
		terms := "#start"
		if incNames[0] != "" {
			terms += " + (i)*#inc0"
		}
		if incNames[1] != "" {
			terms += " + (j)*#inc1"
		}
		o.AddLambda(fmt.Sprintf("at(i,j) : #pointer[%s]", terms))
	}
	t.Objects[idx] = o
}

func (t *Table) annotateComposite(tree expression.Tree, idx int, n expression.Node) {
	switch n.Op.Family {
	case expression.FamilyUnaryArithmetic:
		if n.Op.IsAccessModifier() {
			t.annotateAccessModifier(tree, idx, n)
			return
		}
		t.annotateUnary(idx, n)
	case expression.FamilyBinaryArithmetic:
		t.annotateBinary(idx, n)
	case expression.FamilyReduce, expression.FamilyReduceRows, expression.FamilyReduceColumns:
		t.annotateReduction(idx, n)
	case expression.FamilyMatrixProduct:
		t.annotateMatrixProduct(idx, n)
	}
}

func (t *Table) annotateUnary(idx int, n expression.Node) {
	o := NewObject("object", "node", "operator")
	child := t.Objects[n.LHS]
	lhsAt, _ := child.Evaluate("at", accessorArgs(child)...)
	var text string
	if n.Op.IsCast() {
		text = fmt.Sprintf("(%s)(%s)", n.Dtype.String(), lhsAt)
	} else if spelling := n.Op.CSpelling(); n.Op.IsFunction() {
		text = fmt.Sprintf("%s(%s)", spelling, lhsAt)
	} else if n.Op.Type == expression.TypeMinus {
		text = fmt.Sprintf("(-%s)", lhsAt)
	} else {
		text = lhsAt
	}
	o.AddLambda(fmt.Sprintf("at(i,j) : %s", text))
	o.AddLambda(fmt.Sprintf("at(i) : %s", text))
	t.Objects[idx] = o
}

func (t *Table) annotateBinary(idx int, n expression.Node) {
	o := NewObject("object", "node", "operator")
	lhs, rhs := t.Objects[n.LHS], t.Objects[n.RHS]
	lhsAt, _ := lhs.Evaluate("at", accessorArgs(lhs)...)
	rhsAt, _ := rhs.Evaluate("at", accessorArgs(rhs)...)
	var text string
	if n.Op.IsAssignment() {
		text = fmt.Sprintf("%s = %s", lhsAt, rhsAt)
	} else if n.Op.IsFunction() {
		text = fmt.Sprintf("%s(%s, %s)", n.Op.CSpelling(), lhsAt, rhsAt)
	} else {
		text = fmt.Sprintf("(%s %s %s)", lhsAt, n.Op.CSpelling(), rhsAt)
	}
	o.AddLambda(fmt.Sprintf("at(i,j) : %s", text))
	o.AddLambda(fmt.Sprintf("at(i) : %s", text))
	t.Objects[idx] = o
}

// accessorArgs returns plausible index-variable names ("i","j") for an
// object's registered at() lambda arity, used when one object's
// evaluation must splice in a child's access expression at compose time
// rather than at final code emission (emission re-derives the real loop
// variable names; this is only used for the shared textual form).
func accessorArgs(o *Object) []string {
	for _, l := range o.Lambdas["at"] {
		return l.Params
	}
	return nil
}

func (t *Table) annotateReduction(idx int, n expression.Node) {
	o := NewObject("object", "node", "reduction")
	id := fmt.Sprintf("%d", idx)
	o.SetAttr("name", "acc"+id).SetAttr("scalartype", n.Dtype.String())
	t.Objects[idx] = o
}

func (t *Table) annotateMatrixProduct(idx int, n expression.Node) {
	o := NewObject("object", "node", "matrix_product")
	o.SetAttr("name", fmt.Sprintf("mp%d", idx)).SetAttr("scalartype", n.Dtype.String())
	t.Objects[idx] = o
}

// annotateAccessModifier builds the index-rewriting wrapper for
// `reshape`, `trans`, `diag_vector`, `diag_matrix`: it re-maps at(i,j) or
// at(i) onto the child's access pattern rather than combining two
// evaluated operands (spec §4.1).
func (t *Table) annotateAccessModifier(tree expression.Tree, idx int, n expression.Node) {
	o := NewObject("object", "node", "access_modifier")
	child := t.Objects[n.LHS]
	childShape := tree.At(n.LHS).Shape

	switch n.Op.Type {
	case expression.TypeTrans:
		// at(i,j) on the transposed view is at(j,i) on the child.
		if childAt, ok := child.lambdaFor("at", 2); ok {
			body, _ := childAt.Expand(childAt.Params[1], childAt.Params[0])
			o.AddLambda(fmt.Sprintf("at(%s,%s) : %s", childAt.Params[0], childAt.Params[1], body))
		}
	case expression.TypeReshape:
		// Linearize the new (i,j,...) index against the new shape, then
		// re-split it against the child's (old) shape; both stride sets
		// are bound as explicit kernel arguments in ReshapeOrder (spec
		// §4.3 normative argument order: new_stride_axis_i for each
		// non-unit axis of new_shape, then old_stride_axis_i for each
		// non-unit axis of old_shape).
		o.SetAttr("new_shape", n.Shape.String()).SetAttr("old_shape", childShape.String())
		if body, ok := reshapeAccess(idx, n.Shape, childShape, child, "i"); ok {
			o.AddLambda(fmt.Sprintf("at(i) : %s", body))
		}
		if body, ok := reshapeAccess(idx, n.Shape, childShape, child, "i", "j"); ok {
			o.AddLambda(fmt.Sprintf("at(i,j) : %s", body))
		}
	case expression.TypeDiagVector:
		// diag_vector(M): a 1D view reading the diagonal of a 2D matrix.
		if childAt, ok := child.lambdaFor("at", 2); ok {
			body, _ := childAt.Expand("i", "i")
			o.AddLambda(fmt.Sprintf("at(i) : %s", body))
		}
	case expression.TypeDiagMatrix:
		// diag_matrix(v): a 2D view that is v[i] on the diagonal, 0 off it.
		if childAt, ok := child.lambdaFor("at", 1); ok {
			body, _ := childAt.Expand("i")
			o.AddLambda(fmt.Sprintf("at(i,j) : ((i)==(j) ? (%s) : 0)", body))
		}
	}
	t.Objects[idx] = o
}

// reshapeAccess builds the C text for reshape's at(args...) overload: it
// linearizes args against newShape's row-major strides (the bound
// new_stride_axis_i arguments), re-splits that flat position against
// oldShape's row-major strides (the bound old_stride_axis_i arguments)
// to get one index expression per old axis, and evaluates child's own
// accessor with those (so child's real memory layout, buffer or nested
// expression, still does the final addressing).
func reshapeAccess(reshapeIdx int, newShape, oldShape tuple.Tuple, child *Object, args ...string) (string, bool) {
	newAxes := newShape.NonUnitAxes()
	if len(args) != len(newAxes) {
		return "", false
	}
	linear := "0"
	for k, axis := range newAxes {
		linear = fmt.Sprintf("(%s) + (%s)*new_stride%d_%d", linear, args[k], axis, reshapeIdx)
	}

	oldAxes := oldShape.NonUnitAxes()
	oldArgs := make([]string, len(oldAxes))
	for k, axis := range oldAxes {
		oldArgs[k] = fmt.Sprintf("(((%s)/old_stride%d_%d) %% %d)", linear, axis, reshapeIdx, oldShape[axis])
	}

	l, ok := child.lambdaFor("at", len(oldArgs))
	if !ok {
		return "", false
	}
	body, err := l.Expand(oldArgs...)
	if err != nil {
		return "", false
	}
	return body, true
}

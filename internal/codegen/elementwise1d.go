package codegen

import (
	"context"
	"fmt"
	"strings"

	"isaac/internal/driver"
	"isaac/internal/expression"
	"isaac/internal/ierrors"
	"isaac/internal/symbolic"
)

// FetchPolicy selects how a 1D/2D element-wise template's work-items walk
// the index space (spec §4.3.1). Numbering matches the profile database's
// encoding (spec §6 "fetch-policy encoded as 0=LOCAL, 1=GLOBAL_STRIDED,
// 2=GLOBAL_CONTIGUOUS") so a loaded profile's integer plugs straight in.
type FetchPolicy uint8

const (
	FetchLocal FetchPolicy = iota
	FetchGlobalStrided
	FetchGlobalContiguous
)

// ElementwiseOneD is the §4.3.1 template.
type ElementwiseOneD struct {
	VWidth     int
	GroupSize  int
	NumGroups  int
	FetchPolicy FetchPolicy
}

func (t ElementwiseOneD) IsInvalid(tree expression.Tree, dev driver.DeviceInfo) error {
	if t.FetchPolicy == FetchLocal {
		return ierrors.New(ierrors.CodeGenerationError, "elementwise-1d: FETCH_LOCAL is invalid")
	}
	if err := universalLimits(t.LMemUsage(tree, dev), dev, t.VWidth); err != nil {
		return err
	}
	return workGroupSize(dev, t.GroupSize)
}

func (t ElementwiseOneD) InputSizes(tree expression.Tree) []int64 {
	return []int64{tree.Shape().Product()}
}

func (t ElementwiseOneD) LMemUsage(tree expression.Tree, dev driver.DeviceInfo) int64 { return 0 }
func (t ElementwiseOneD) RegistersUsage(tree expression.Tree) int                     { return t.VWidth }
func (t ElementwiseOneD) TemporaryWorkspace(tree expression.Tree) int64               { return 0 }

// vectorBlock emits assigns unrolled over t.VWidth lanes, each lane's
// accessor offset from base by its lane number (spec §4.3.1 "vector load
// of vwidth elements ... evaluate the node's expansion with the leaf
// accessor rewritten to the lane's component").
func vectorBlock(body *strings.Builder, table *symbolic.Table, tree expression.Tree, vwidth int, base string) {
	for lane := 0; lane < vwidth; lane++ {
		idx := base
		if lane > 0 {
			idx = fmt.Sprintf("(%s)+%d", base, lane)
		}
		for _, a := range assignmentStatements(table, tree, idx) {
			fmt.Fprintf(body, "    %s;\n", a)
		}
	}
}

func (t ElementwiseOneD) Generate(b driver.Backend, table *symbolic.Table, tree expression.Tree, suffix string) (string, []string) {
	name := "elementwise1d_" + suffix

	var body strings.Builder
	fmt.Fprintf(&body, "$KERNEL %s($SIZE_T N%s) {\n", name, argDeclList(table, tree))
	switch t.FetchPolicy {
	case FetchGlobalContiguous:
		body.WriteString("  $SIZE_T gid = $GROUP_ID_0;\n")
		body.WriteString("  $SIZE_T chunk = (N + $GLOBAL_SIZE_0 - 1) / $GLOBAL_SIZE_0;\n")
		body.WriteString("  $SIZE_T start = gid*chunk;\n")
		body.WriteString("  $SIZE_T end = start+chunk < N ? start+chunk : N;\n")
		fmt.Fprintf(&body, "  $SIZE_T i = start;\n  for (; i + %d <= end; i += %d) {\n", t.VWidth, t.VWidth)
		vectorBlock(&body, table, tree, t.VWidth, "i")
		body.WriteString("  }\n")
		body.WriteString("  for (; i < end; i++) {\n")
		vectorBlock(&body, table, tree, 1, "i")
		body.WriteString("  }\n")
	default: // FetchGlobalStrided
		fmt.Fprintf(&body, "  $SIZE_T gid = $GROUP_ID_0*%d + $LOCAL_IDX_0;\n", t.GroupSize)
		fmt.Fprintf(&body, "  for ($SIZE_T i = gid*%d; i + %d <= N; i += $GLOBAL_SIZE_0*%d) {\n", t.VWidth, t.VWidth, t.VWidth)
		vectorBlock(&body, table, tree, t.VWidth, "i")
		body.WriteString("  }\n")
		if t.VWidth > 1 {
			body.WriteString("  if (gid == 0) {\n")
			fmt.Fprintf(&body, "    for ($SIZE_T i = (N/%d)*%d; i < N; i++) {\n", t.VWidth, t.VWidth)
			vectorBlock(&body, table, tree, 1, "i")
			body.WriteString("    }\n")
			body.WriteString("  }\n")
		}
	}
	body.WriteString("}\n")
	return substitute(body.String(), b), []string{name}
}

func (t ElementwiseOneD) Enqueue(ctx context.Context, program driver.Program, suffix string, a EnqueueArgs) (driver.Event, error) {
	name := "elementwise1d_" + suffix
	k, err := program.Kernel(name)
	if err != nil {
		return nil, err
	}
	sizes := t.InputSizes(a.Tree)
	if _, err := bindCommonArgs(k, sizes, nil, a); err != nil {
		return nil, err
	}
	rng := driver.NDRange1D(int64(t.GroupSize*t.NumGroups), int64(t.GroupSize))
	return a.Queue.Enqueue(ctx, k, rng, a.Deps)
}

// assignmentStatements walks tree collecting the C statement text for
// every ASSIGN composite reachable without crossing another ASSIGN,
// evaluated with the given accessor argument name(s) (spec §4.3.1 "for
// each assignment node ... evaluate the node's expansion").
func assignmentStatements(table *symbolic.Table, tree expression.Tree, idxArgs ...string) []string {
	var stmts []string
	seen := make(map[int]bool)
	tree.DFS(tree.Root, nil, func(idx int, n expression.Node) {
		if seen[idx] || n.Kind != expression.KindComposite || !n.Op.IsAssignment() {
			return
		}
		seen[idx] = true
		obj := table.Objects[idx]
		if obj == nil {
			return
		}
		if text, ok := obj.Evaluate("at", idxArgs...); ok {
			stmts = append(stmts, text)
		}
	})
	return stmts
}

// argDeclList renders the declaration-side parameter list for every
// bound buffer, host scalar, and reshape stride in Table order, used only
// for generated-source readability; binding itself happens positionally
// in bindCommonArgs and must stay in exact sync with this rendering.
func argDeclList(table *symbolic.Table, tree expression.Tree) string {
	var sb strings.Builder
	for _, bufIdx := range table.BufferOrder {
		n := tree.At(bufIdx)
		obj := table.Objects[bufIdx]
		pointer := obj.Attrs["pointer"]
		start := obj.Attrs["start"]
		fmt.Fprintf(&sb, ", $GLOBAL %s *%s, $SIZE_T %s", n.Dtype.String(), pointer, start)
		for _, axis := range n.Shape.NonUnitAxes() {
			if inc, ok := obj.Attrs[fmt.Sprintf("inc%d", axis)]; ok {
				fmt.Fprintf(&sb, ", $SIZE_T %s", inc)
			}
		}
	}
	for _, scalarIdx := range table.ScalarOrder {
		n := tree.At(scalarIdx)
		obj := table.Objects[scalarIdx]
		fmt.Fprintf(&sb, ", %s %s", n.Dtype.String(), obj.Attrs["name"])
	}
	for _, reshapeIdx := range table.ReshapeOrder {
		newShape := tree.At(reshapeIdx).Shape
		oldShape := tree.At(tree.At(reshapeIdx).LHS).Shape
		for _, axis := range newShape.NonUnitAxes() {
			fmt.Fprintf(&sb, ", $SIZE_T new_stride%d_%d", axis, reshapeIdx)
		}
		for _, axis := range oldShape.NonUnitAxes() {
			fmt.Fprintf(&sb, ", $SIZE_T old_stride%d_%d", axis, reshapeIdx)
		}
	}
	return sb.String()
}

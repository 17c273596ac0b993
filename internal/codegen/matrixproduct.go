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

// MatrixProduct is the §4.3.5 template: a cooperative-tiling GEMM kernel
// computing C = alpha*A*B + beta*C, with A/B possibly read transposed
// depending on which of the four MatMulVariant tokens the tree carries.
// The expression model here has no node that fuses an explicit scalar
// multiply into a matrix product, so Alpha/Beta are fixed at the values
// the spec's plain `dst = A@B` assignment implies (1, 0); the fields
// exist so a future fused-axpy-like node has somewhere to plug in.
type MatrixProduct struct {
	VWidth         int
	LS0, LS1       int
	KL             int
	Depth          int
	MS, KS, NS     int
	LFetch0, LFetch1 int
	Alpha, Beta    float64
}

func (t MatrixProduct) variant(tree expression.Tree) expression.Type {
	return tree.At(tree.Root).Op.Type
}

func (t MatrixProduct) transA(tree expression.Tree) bool {
	v := t.variant(tree)
	return v == expression.TypeMatrixProductTN || v == expression.TypeMatrixProductTT
}

func (t MatrixProduct) transB(tree expression.Tree) bool {
	v := t.variant(tree)
	return v == expression.TypeMatrixProductNT || v == expression.TypeMatrixProductTT
}

func (t MatrixProduct) mL() int { return t.MS * t.LS0 }
func (t MatrixProduct) nL() int { return t.NS * t.LS1 }

func (t MatrixProduct) IsInvalid(tree expression.Tree, dev driver.DeviceInfo) error {
	if t.MS%t.VWidth != 0 {
		return ierrors.New(ierrors.CodeGenerationError, "matrix-product: mS %% vwidth must be 0, got mS=%d vwidth=%d", t.MS, t.VWidth)
	}
	if t.NS%t.VWidth != 0 {
		return ierrors.New(ierrors.CodeGenerationError, "matrix-product: nS %% vwidth must be 0, got nS=%d vwidth=%d", t.NS, t.VWidth)
	}
	if t.mL() > 256 {
		return ierrors.New(ierrors.CodeGenerationError, "matrix-product: mL=%d exceeds 256", t.mL())
	}
	if t.nL() > 256 {
		return ierrors.New(ierrors.CodeGenerationError, "matrix-product: nL=%d exceeds 256", t.nL())
	}
	if t.KS >= t.KL {
		return ierrors.New(ierrors.CodeGenerationError, "matrix-product: kS=%d must be < kL=%d", t.KS, t.KL)
	}
	if t.LFetch0*t.LFetch1 != t.LS0*t.LS1 {
		return ierrors.New(ierrors.CodeGenerationError, "matrix-product: lfetch0*lfetch1 (%d) must equal ls0*ls1 (%d)",
			t.LFetch0*t.LFetch1, t.LS0*t.LS1)
	}
	fetchLanes := t.LFetch0 * t.LFetch1
	if (t.mL()*t.KL)%fetchLanes != 0 || (t.KL*t.nL())%fetchLanes != 0 {
		return ierrors.New(ierrors.CodeGenerationError, "matrix-product: local-fetch lanes %d do not evenly tile (mL,kL)=(%d,%d) and (kL,nL)=(%d,%d)",
			fetchLanes, t.mL(), t.KL, t.KL, t.nL())
	}
	return universalLimits(t.LMemUsage(tree, dev), dev, t.VWidth)
}

func (t MatrixProduct) InputSizes(tree expression.Tree) []int64 {
	shape := tree.Shape()
	kdim := t.innerDim(tree)
	return []int64{shape.Front(), kdim, shape.Back()}
}

func (t MatrixProduct) innerDim(tree expression.Tree) int64 {
	lhsShape := tree.At(tree.At(tree.Root).LHS).Shape
	if t.transA(tree) {
		return lhsShape.Front()
	}
	return lhsShape.Back()
}

// LMemUsage is the combined footprint of the cooperatively-fetched A and
// B tiles: mL*kL + kL*nL elements (spec §4.3.5's local-memory tiling
// step), at the tree's element size.
func (t MatrixProduct) LMemUsage(tree expression.Tree, dev driver.DeviceInfo) int64 {
	elemSize := int64(tree.Dtype().Size())
	return (int64(t.mL())*int64(t.KL) + int64(t.KL)*int64(t.nL())) * elemSize
}

func (t MatrixProduct) RegistersUsage(tree expression.Tree) int { return t.MS * t.NS }

// TemporaryWorkspace is M*N*depth*size_of(dtype) when depth > 1, to hold
// the per-depth-slice partial products before the reduce pass sums them.
func (t MatrixProduct) TemporaryWorkspace(tree expression.Tree) int64 {
	if t.Depth <= 1 {
		return 0
	}
	shape := tree.Shape()
	return shape.Front() * shape.Back() * int64(t.Depth) * int64(tree.Dtype().Size())
}

func (t MatrixProduct) Generate(b driver.Backend, table *symbolic.Table, tree expression.Tree, suffix string) (string, []string) {
	root := tree.At(tree.Root)
	lhsObj := table.Objects[root.LHS]
	rhsObj := table.Objects[root.RHS]
	transA, transB := t.transA(tree), t.transB(tree)
	dtype := tree.Dtype().String()
	prodName := "matmul_prod_" + suffix
	reduceName := "matmul_reduce_" + suffix

	aAt := func(m, k string) string {
		if transA {
			text, _ := lhsObj.Evaluate("at", k, m)
			return text
		}
		text, _ := lhsObj.Evaluate("at", m, k)
		return text
	}
	bAt := func(k, n string) string {
		if transB {
			text, _ := rhsObj.Evaluate("at", n, k)
			return text
		}
		text, _ := rhsObj.Evaluate("at", k, n)
		return text
	}

	split := t.Depth > 1
	var sb strings.Builder
	outArg := ""
	if split {
		outArg = fmt.Sprintf(", $GLOBAL %s *partial", dtype)
	}
	// outArg (the depth-split workspace) is declared right after the size
	// args, matching bindCommonArgs' fixed bind order (sizes, workspace,
	// then the buffer/scalar/reshape args argDeclList emits).
	fmt.Fprintf(&sb, "$KERNEL %s($SIZE_T M, $SIZE_T K, $SIZE_T N%s%s) {\n",
		prodName, outArg, argDeclList(table, tree))
	fmt.Fprintf(&sb, "  $LOCAL %s Alocal[%d][%d];\n", dtype, t.mL(), t.KL)
	fmt.Fprintf(&sb, "  $LOCAL %s Blocal[%d][%d];\n", dtype, t.KL, t.nL())
	fmt.Fprintf(&sb, "  %s acc[%d][%d];\n", dtype, t.MS, t.NS)
	sb.WriteString("  for (int ii = 0; ii < " + fmt.Sprint(t.MS) + "; ii++)\n")
	sb.WriteString("    for (int jj = 0; jj < " + fmt.Sprint(t.NS) + "; jj++)\n")
	sb.WriteString("      acc[ii][jj] = 0;\n")

	sb.WriteString("  $SIZE_T tileM = $GROUP_ID_0*" + fmt.Sprint(t.mL()) + ";\n")
	sb.WriteString("  $SIZE_T tileN = $GROUP_ID_1*" + fmt.Sprint(t.nL()) + ";\n")
	if split {
		fmt.Fprintf(&sb, "  $SIZE_T depthStride = (K + %d - 1) / %d;\n", t.Depth, t.Depth)
		sb.WriteString("  $SIZE_T kBegin = $GROUP_ID_2*depthStride;\n")
		sb.WriteString("  $SIZE_T kEnd = kBegin+depthStride < K ? kBegin+depthStride : K;\n")
	} else {
		sb.WriteString("  $SIZE_T kBegin = 0;\n  $SIZE_T kEnd = K;\n")
	}

	fmt.Fprintf(&sb, "  for ($SIZE_T k0 = kBegin; k0 < kEnd; k0 += %d) {\n", t.KL)
	// Cooperative fetch: every lane in the work-group participates,
	// striding by the total lane count so (mL,kL) and (kL,nL) tiles are
	// covered regardless of lfetch shape (spec §4.3.5 step 1).
	lanes := t.LFetch0 * t.LFetch1
	fmt.Fprintf(&sb, "    $SIZE_T lane = $LOCAL_IDX_1*%d + $LOCAL_IDX_0;\n", t.LS0)
	fmt.Fprintf(&sb, "    for ($SIZE_T idx = lane; idx < %d; idx += %d) {\n", t.mL()*t.KL, lanes)
	fmt.Fprintf(&sb, "      $SIZE_T li = idx / %d, lk = idx %% %d;\n", t.KL, t.KL)
	sb.WriteString("      $SIZE_T gm = tileM+li, gk = k0+lk;\n")
	fmt.Fprintf(&sb, "      Alocal[li][lk] = (gm < M && gk < K) ? %s : 0;\n", aAt("gm", "gk"))
	sb.WriteString("    }\n")
	fmt.Fprintf(&sb, "    for ($SIZE_T idx = lane; idx < %d; idx += %d) {\n", t.KL*t.nL(), lanes)
	fmt.Fprintf(&sb, "      $SIZE_T lk = idx / %d, lj = idx %% %d;\n", t.nL(), t.nL())
	sb.WriteString("      $SIZE_T gk = k0+lk, gn = tileN+lj;\n")
	fmt.Fprintf(&sb, "      Blocal[lk][lj] = (gk < K && gn < N) ? %s : 0;\n", bAt("gk", "gn"))
	sb.WriteString("    }\n")
	sb.WriteString("    $LOCAL_BARRIER;\n")

	fmt.Fprintf(&sb, "    for ($SIZE_T kk = 0; kk < %d; kk += %d) {\n", t.KL, t.KS)
	fmt.Fprintf(&sb, "      for (int kkk = 0; kkk < %d; kkk++) {\n", t.KS)
	fmt.Fprintf(&sb, "        for (int ii = 0; ii < %d; ii++) {\n", t.MS)
	fmt.Fprintf(&sb, "          %s a = Alocal[$LOCAL_IDX_0*%d+ii][kk+kkk];\n", dtype, t.MS)
	fmt.Fprintf(&sb, "          for (int jj = 0; jj < %d; jj++) {\n", t.NS)
	fmt.Fprintf(&sb, "            acc[ii][jj] = $MAD(a, Blocal[kk+kkk][$LOCAL_IDX_1*%d+jj], acc[ii][jj]);\n", t.NS)
	sb.WriteString("          }\n        }\n      }\n    }\n")
	sb.WriteString("    $LOCAL_BARRIER;\n  }\n")

	sb.WriteString("  for (int ii = 0; ii < " + fmt.Sprint(t.MS) + "; ii++) {\n")
	sb.WriteString("    for (int jj = 0; jj < " + fmt.Sprint(t.NS) + "; jj++) {\n")
	sb.WriteString("      $SIZE_T gm = tileM + $LOCAL_IDX_0*" + fmt.Sprint(t.MS) + " + ii;\n")
	sb.WriteString("      $SIZE_T gn = tileN + $LOCAL_IDX_1*" + fmt.Sprint(t.NS) + " + jj;\n")
	sb.WriteString("      if (gm < M && gn < N) {\n")
	if split {
		fmt.Fprintf(&sb, "        partial[(gm*N+gn)*%d + $GROUP_ID_2] = %g*acc[ii][jj];\n", t.Depth, t.Alpha)
	} else {
		dest := destinationExprAt(table, "gm", "gn")
		fmt.Fprintf(&sb, "        %s = %g*acc[ii][jj] + %g*(%s);\n", dest, t.Alpha, t.Beta, dest)
	}
	sb.WriteString("      }\n    }\n  }\n}\n")

	kernelNames := []string{prodName}
	if split {
		fmt.Fprintf(&sb, "$KERNEL %s($SIZE_T M, $SIZE_T N, $GLOBAL %s *partial%s) {\n",
			reduceName, dtype, assigneeDecl(table, tree))
		sb.WriteString("  for ($SIZE_T gm = $LOCAL_IDX_0 + $GROUP_ID_0*$GLOBAL_SIZE_0; gm < M; gm += $GLOBAL_SIZE_0) {\n")
		sb.WriteString("    for ($SIZE_T gn = $LOCAL_IDX_1 + $GROUP_ID_1*$GLOBAL_SIZE_1; gn < N; gn += $GLOBAL_SIZE_1) {\n")
		fmt.Fprintf(&sb, "      %s sum = 0;\n", dtype)
		fmt.Fprintf(&sb, "      for (int d = 0; d < %d; d++) sum += partial[(gm*N+gn)*%d + d];\n", t.Depth, t.Depth)
		dest := destinationExprAt(table, "gm", "gn")
		fmt.Fprintf(&sb, "      %s = sum + %g*(%s);\n", dest, t.Beta, dest)
		sb.WriteString("    }\n  }\n}\n")
		kernelNames = append(kernelNames, reduceName)
	}

	return substitute(sb.String(), b), kernelNames
}

func (t MatrixProduct) Enqueue(ctx context.Context, program driver.Program, suffix string, a EnqueueArgs) (driver.Event, error) {
	prod, err := program.Kernel("matmul_prod_" + suffix)
	if err != nil {
		return nil, err
	}
	sizes := t.InputSizes(a.Tree)
	var workspace driver.Buffer
	if t.Depth > 1 {
		workspace = a.Workspace.Buffer()
	}
	if _, err := bindCommonArgs(prod, sizes, workspace, a); err != nil {
		return nil, err
	}
	ng2 := int64(t.Depth)
	if ng2 < 1 {
		ng2 = 1
	}
	rng := driver.NDRange3D(
		numGroups0(sizes[0], t.mL())*int64(t.LS0),
		numGroups1(sizes[2], t.nL())*int64(t.LS1),
		ng2,
		int64(t.LS0), int64(t.LS1), 1,
	)
	prodEvt, err := a.Queue.Enqueue(ctx, prod, rng, a.Deps)
	if err != nil {
		return nil, err
	}
	if t.Depth <= 1 {
		return prodEvt, nil
	}

	reduce, err := program.Kernel("matmul_reduce_" + suffix)
	if err != nil {
		return nil, err
	}
	// matmul_reduce only declares M, N, partial, and the assignee buffer
	// (it writes its own destination directly, per Generate's
	// assigneeDecl) — bind exactly that, not the full bound-buffer list
	// bindCommonArgs would reach for.
	if err := reduce.SetSizeArg(0, sizes[0]); err != nil {
		return nil, err
	}
	if err := reduce.SetSizeArg(1, sizes[2]); err != nil {
		return nil, err
	}
	if err := reduce.SetBufferArg(2, a.Workspace.Buffer()); err != nil {
		return nil, err
	}
	if _, err := bindAssigneeArg(reduce, 3, a); err != nil {
		return nil, err
	}
	reduceRng := driver.NDRange2D(int64(t.LS0), int64(t.LS1), int64(t.LS0), int64(t.LS1))
	return a.Queue.Enqueue(ctx, reduce, reduceRng, []driver.Event{prodEvt})
}

func numGroups0(m int64, mL int) int64 {
	if mL <= 0 {
		return 1
	}
	return (m + int64(mL) - 1) / int64(mL)
}

func numGroups1(n int64, nL int) int64 {
	if nL <= 0 {
		return 1
	}
	return (n + int64(nL) - 1) / int64(nL)
}

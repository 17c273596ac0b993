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

// ElementwiseTwoD is the §4.3.2 template: a doubly-nested fetch-driven
// loop over (i,j), otherwise identical in structure to ElementwiseOneD.
type ElementwiseTwoD struct {
	VWidth      int
	LS0, LS1    int
	NG0, NG1    int
	FetchPolicy FetchPolicy
}

func (t ElementwiseTwoD) IsInvalid(tree expression.Tree, dev driver.DeviceInfo) error {
	if t.VWidth != 1 {
		return ierrors.New(ierrors.CodeGenerationError, "elementwise-2d: vwidth must be 1, got %d", t.VWidth)
	}
	if t.FetchPolicy == FetchLocal {
		return ierrors.New(ierrors.CodeGenerationError, "elementwise-2d: FETCH_LOCAL is invalid")
	}
	if err := universalLimits(t.LMemUsage(tree, dev), dev, t.VWidth); err != nil {
		return err
	}
	return workGroupSize(dev, t.LS0*t.LS1)
}

func (t ElementwiseTwoD) InputSizes(tree expression.Tree) []int64 {
	shape := tree.Shape()
	return []int64{shape.Front(), shape.Back()}
}

func (t ElementwiseTwoD) LMemUsage(tree expression.Tree, dev driver.DeviceInfo) int64 { return 0 }
func (t ElementwiseTwoD) RegistersUsage(tree expression.Tree) int                     { return 1 }
func (t ElementwiseTwoD) TemporaryWorkspace(tree expression.Tree) int64               { return 0 }

func (t ElementwiseTwoD) Generate(b driver.Backend, table *symbolic.Table, tree expression.Tree, suffix string) (string, []string) {
	name := "elementwise2d_" + suffix
	assigns := assignmentStatements(table, tree, "i", "j")

	var body strings.Builder
	fmt.Fprintf(&body, "$KERNEL %s($SIZE_T M, $SIZE_T N%s) {\n", name, argDeclList(table, tree))
	body.WriteString("  for ($SIZE_T i = $LOCAL_IDX_0; i < M; i += $GLOBAL_SIZE_0) {\n")
	body.WriteString("    for ($SIZE_T j = $LOCAL_IDX_1; j < N; j += $GLOBAL_SIZE_1) {\n")
	for _, a := range assigns {
		fmt.Fprintf(&body, "      %s;\n", a)
	}
	body.WriteString("    }\n")
	body.WriteString("  }\n")
	body.WriteString("}\n")
	return substitute(body.String(), b), []string{name}
}

func (t ElementwiseTwoD) Enqueue(ctx context.Context, program driver.Program, suffix string, a EnqueueArgs) (driver.Event, error) {
	name := "elementwise2d_" + suffix
	k, err := program.Kernel(name)
	if err != nil {
		return nil, err
	}
	sizes := t.InputSizes(a.Tree)
	if _, err := bindCommonArgs(k, sizes, nil, a); err != nil {
		return nil, err
	}
	rng := driver.NDRange2D(int64(t.LS0*t.NG0), int64(t.LS1*t.NG1), int64(t.LS0), int64(t.LS1))
	return a.Queue.Enqueue(ctx, k, rng, a.Deps)
}

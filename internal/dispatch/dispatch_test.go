package dispatch_test

import (
	"context"
	"testing"

	"isaac/internal/codegen"
	"isaac/internal/dispatch"
	"isaac/internal/driver"
	"isaac/internal/driver/simulate"
	"isaac/internal/expression"
	"isaac/internal/forest"
	"isaac/internal/ierrors"
	"isaac/internal/numeric"
	"isaac/internal/scheduler"
	"isaac/internal/symbolic"
	"isaac/internal/tuple"
)

// fakeTemplate is a minimal codegen.Template stand-in used to exercise
// Dispatcher.Execute/selectCandidate without a real kernel-source
// backend: Enqueue just records the call on the queue's history and
// reports a caller-controlled elapsed time, so tuning has a
// deterministic winner to find.
type fakeTemplate struct {
	name      string
	workspace int64 // bytes
	invalid   bool
}

func (f fakeTemplate) IsInvalid(tree expression.Tree, dev driver.DeviceInfo) error {
	if f.invalid {
		return ierrors.New(ierrors.CodeGenerationError, "fakeTemplate %s marked invalid", f.name)
	}
	return nil
}
func (f fakeTemplate) InputSizes(tree expression.Tree) []int64                     { return []int64{tree.Shape().Product()} }
func (f fakeTemplate) LMemUsage(tree expression.Tree, dev driver.DeviceInfo) int64  { return 0 }
func (f fakeTemplate) RegistersUsage(tree expression.Tree) int                      { return 0 }
func (f fakeTemplate) TemporaryWorkspace(tree expression.Tree) int64                { return f.workspace }

func (f fakeTemplate) Generate(b driver.Backend, table *symbolic.Table, tree expression.Tree, suffix string) (string, []string) {
	return "// " + f.name + "\n", []string{f.name + suffix}
}

func (f fakeTemplate) Enqueue(ctx context.Context, program driver.Program, suffix string, args codegen.EnqueueArgs) (driver.Event, error) {
	k, err := program.Kernel(f.name + suffix)
	if err != nil {
		return nil, err
	}
	return args.Queue.Enqueue(ctx, k, driver.NDRange1D(1, 1), args.Deps)
}

func newTestContext(t *testing.T) driver.Context {
	t.Helper()
	dev := simulate.NewDevice(driver.OpenCLLike)
	ctx, err := dev.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx
}

func denseLeaf(t *testing.T, ctx driver.Context, shape tuple.Tuple, dtype numeric.Type) expression.Tree {
	t.Helper()
	buf, err := ctx.Alloc(shape.Product() * int64(dtype.Size()))
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	stride := make(tuple.Tuple, len(shape))
	acc := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		stride[i] = acc
		acc *= shape[i]
	}
	node := expression.DenseArray(dtype, shape, stride, 0, buf)
	return expression.Leaf(ctx, node)
}

// historian is satisfied by simulate's unexported queue type, whose
// History method is exported; asserting to this local interface lets
// tests inspect recorded launches without simulate exporting the
// concrete type.
type historian interface {
	History() []simulate.Launch
}

func newEnv(t *testing.T, ctx driver.Context) dispatch.EnqueueEnv {
	t.Helper()
	q, err := ctx.NewQueue()
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	return dispatch.EnqueueEnv{Queue: q, Workspace: ctx.Workspace()}
}

func queueHistory(t *testing.T, q driver.CommandQueue) []simulate.Launch {
	t.Helper()
	h, ok := q.(historian)
	if !ok {
		t.Fatal("queue does not implement historian")
	}
	return h.History()
}

func addTree(t *testing.T, ctx driver.Context) expression.Tree {
	t.Helper()
	a := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)
	b := denseLeaf(t, ctx, tuple.Of(4, 4), numeric.Float32)
	sum, err := expression.Add(a, b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return sum
}

func TestExecuteDefaultPicksFirstCandidate(t *testing.T) {
	ctx := newTestContext(t)
	tree := addTree(t, ctx)
	env := newEnv(t, ctx)

	d := dispatch.New(driver.OpenCLLike, nil)
	d.Register(scheduler.KindElementwise2D, "float32", dispatch.Entry{
		Candidates: []codegen.Template{fakeTemplate{name: "ew_a"}, fakeTemplate{name: "ew_b"}},
	})

	dev := driver.DeviceInfo{DeviceType: "simulated", Vendor: "isaac-sim", Architecture: "generic"}
	instr, err := d.Execute(context.Background(), scheduler.KindElementwise2D, "float32", tree, dev, env, dispatch.DefaultOptions())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if instr == nil || instr.Event == nil {
		t.Fatal("Execute returned a nil instruction or event on success")
	}

	history := queueHistory(t, env.Queue)
	if len(history) != 1 || history[0].Kernel != "ew_a0" {
		t.Fatalf("History = %+v, want one launch of ew_a0", history)
	}
}

func TestExecuteUnknownEntryErrors(t *testing.T) {
	ctx := newTestContext(t)
	tree := addTree(t, ctx)
	env := newEnv(t, ctx)

	d := dispatch.New(driver.OpenCLLike, nil)
	dev := driver.DeviceInfo{}
	if _, err := d.Execute(context.Background(), scheduler.KindElementwise2D, "float32", tree, dev, env, dispatch.DefaultOptions()); err == nil {
		t.Fatal("Execute against an unregistered (kind, dtype) should error")
	}
}

func TestExecuteLabelBypassesEverythingElse(t *testing.T) {
	ctx := newTestContext(t)
	tree := addTree(t, ctx)
	env := newEnv(t, ctx)

	d := dispatch.New(driver.OpenCLLike, nil)
	d.Register(scheduler.KindElementwise2D, "float32", dispatch.Entry{
		Candidates: []codegen.Template{fakeTemplate{name: "ew_a"}, fakeTemplate{name: "ew_b"}},
	})

	dev := driver.DeviceInfo{DeviceType: "simulated", Vendor: "isaac-sim", Architecture: "generic"}
	opts := dispatch.Options{Label: 1}
	if _, err := d.Execute(context.Background(), scheduler.KindElementwise2D, "float32", tree, dev, env, opts); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	history := queueHistory(t, env.Queue)
	if len(history) != 1 || history[0].Kernel != "ew_b1" {
		t.Fatalf("History = %+v, want one launch of ew_b1 (the labeled candidate)", history)
	}
}

func TestExecuteTuningRecordsWinnerInOverrideMap(t *testing.T) {
	ctx := newTestContext(t)
	tree := addTree(t, ctx)
	env := newEnv(t, ctx)

	d := dispatch.New(driver.OpenCLLike, nil)
	d.Register(scheduler.KindElementwise2D, "float32", dispatch.Entry{
		Candidates: []codegen.Template{fakeTemplate{name: "ew_a"}, fakeTemplate{name: "ew_b"}},
	})

	dev := driver.DeviceInfo{DeviceType: "simulated", Vendor: "isaac-sim", Architecture: "generic"}
	opts := dispatch.Options{Label: -1, Tune: true}
	if _, err := d.Execute(context.Background(), scheduler.KindElementwise2D, "float32", tree, dev, env, opts); err != nil {
		t.Fatalf("Execute with Tune: %v", err)
	}

	// A second call with Tune left off must reuse the recorded override
	// rather than falling through to the zero-index default by luck.
	before := len(queueHistory(t, env.Queue))
	if _, err := d.Execute(context.Background(), scheduler.KindElementwise2D, "float32", tree, dev, env, dispatch.DefaultOptions()); err != nil {
		t.Fatalf("Execute reusing override: %v", err)
	}
	history := queueHistory(t, env.Queue)
	if len(history) != before+1 {
		t.Fatalf("expected exactly one more launch, got %d new", len(history)-before)
	}
}

func TestExecuteWorkspaceCeilingRejectsOversizedCandidate(t *testing.T) {
	ctx := newTestContext(t)
	tree := addTree(t, ctx)
	env := newEnv(t, ctx)

	d := dispatch.New(driver.OpenCLLike, nil)
	// 4-byte float32 elements; workspace reports bytes, so this is
	// 2_000_000 elements, over WorkspaceCeiling's 1_000_000.
	d.Register(scheduler.KindElementwise2D, "float32", dispatch.Entry{
		Candidates: []codegen.Template{fakeTemplate{name: "ew_huge", workspace: 8_000_000}},
	})

	dev := driver.DeviceInfo{DeviceType: "simulated", Vendor: "isaac-sim", Architecture: "generic"}
	if _, err := d.Execute(context.Background(), scheduler.KindElementwise2D, "float32", tree, dev, env, dispatch.DefaultOptions()); err == nil {
		t.Fatal("Execute should reject a default candidate whose workspace exceeds the element ceiling")
	}
}

func TestExecuteDefaultSkipsInvalidCandidate(t *testing.T) {
	ctx := newTestContext(t)
	tree := addTree(t, ctx)
	env := newEnv(t, ctx)

	d := dispatch.New(driver.OpenCLLike, nil)
	d.Register(scheduler.KindElementwise2D, "float32", dispatch.Entry{
		Candidates: []codegen.Template{
			fakeTemplate{name: "ew_bad", invalid: true},
			fakeTemplate{name: "ew_good"},
		},
	})

	dev := driver.DeviceInfo{DeviceType: "simulated", Vendor: "isaac-sim", Architecture: "generic"}
	if _, err := d.Execute(context.Background(), scheduler.KindElementwise2D, "float32", tree, dev, env, dispatch.DefaultOptions()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	history := queueHistory(t, env.Queue)
	if len(history) != 1 || history[0].Kernel != "ew_good1" {
		t.Fatalf("History = %+v, want the default path to skip the invalid candidate and pick ew_good1", history)
	}
}

func TestExecuteAllInvalidCandidatesErrors(t *testing.T) {
	ctx := newTestContext(t)
	tree := addTree(t, ctx)
	env := newEnv(t, ctx)

	d := dispatch.New(driver.OpenCLLike, nil)
	d.Register(scheduler.KindElementwise2D, "float32", dispatch.Entry{
		Candidates: []codegen.Template{fakeTemplate{name: "ew_bad", invalid: true}},
	})

	dev := driver.DeviceInfo{DeviceType: "simulated", Vendor: "isaac-sim", Architecture: "generic"}
	if _, err := d.Execute(context.Background(), scheduler.KindElementwise2D, "float32", tree, dev, env, dispatch.DefaultOptions()); err == nil {
		t.Fatal("Execute should error when every registered candidate is invalid")
	}
}

func TestExecuteLabelOfInvalidCandidateErrors(t *testing.T) {
	ctx := newTestContext(t)
	tree := addTree(t, ctx)
	env := newEnv(t, ctx)

	d := dispatch.New(driver.OpenCLLike, nil)
	d.Register(scheduler.KindElementwise2D, "float32", dispatch.Entry{
		Candidates: []codegen.Template{fakeTemplate{name: "ew_bad", invalid: true}},
	})

	dev := driver.DeviceInfo{DeviceType: "simulated", Vendor: "isaac-sim", Architecture: "generic"}
	opts := dispatch.Options{Label: 0}
	if _, err := d.Execute(context.Background(), scheduler.KindElementwise2D, "float32", tree, dev, env, opts); err == nil {
		t.Fatal("Execute should reject an explicitly labeled candidate that fails IsInvalid")
	}
}

func TestExecutePredictorSkipsOversizedCandidates(t *testing.T) {
	ctx := newTestContext(t)
	tree := addTree(t, ctx)
	env := newEnv(t, ctx)

	d := dispatch.New(driver.OpenCLLike, nil)
	// Candidate 0 is ranked first by the predictor but exceeds the
	// ceiling; candidate 1 fits and should be chosen instead.
	d.Register(scheduler.KindElementwise2D, "float32", dispatch.Entry{
		Candidates: []codegen.Template{
			fakeTemplate{name: "ew_huge", workspace: 8_000_000},
			fakeTemplate{name: "ew_fits", workspace: 16},
		},
		Predictor: &forest.Forest{
			Trees:        []forest.Tree{{Nodes: []forest.Node{{Left: -1, Right: -1, Probabilities: []float64{0.9, 0.1}}}}},
			FeatureWidth: 1,
		},
	})

	dev := driver.DeviceInfo{DeviceType: "simulated", Vendor: "isaac-sim", Architecture: "generic"}
	if _, err := d.Execute(context.Background(), scheduler.KindElementwise2D, "float32", tree, dev, env, dispatch.DefaultOptions()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	history := queueHistory(t, env.Queue)
	if len(history) != 1 || history[0].Kernel != "ew_fits1" {
		t.Fatalf("History = %+v, want the predictor to fall through to ew_fits1", history)
	}
}

func TestExecutePredictorSkipsInvalidCandidates(t *testing.T) {
	ctx := newTestContext(t)
	tree := addTree(t, ctx)
	env := newEnv(t, ctx)

	d := dispatch.New(driver.OpenCLLike, nil)
	// Candidate 0 is ranked first by the predictor but fails IsInvalid;
	// candidate 1 is valid and should be chosen instead.
	d.Register(scheduler.KindElementwise2D, "float32", dispatch.Entry{
		Candidates: []codegen.Template{
			fakeTemplate{name: "ew_bad", invalid: true},
			fakeTemplate{name: "ew_good"},
		},
		Predictor: &forest.Forest{
			Trees:        []forest.Tree{{Nodes: []forest.Node{{Left: -1, Right: -1, Probabilities: []float64{0.9, 0.1}}}}},
			FeatureWidth: 1,
		},
	})

	dev := driver.DeviceInfo{DeviceType: "simulated", Vendor: "isaac-sim", Architecture: "generic"}
	if _, err := d.Execute(context.Background(), scheduler.KindElementwise2D, "float32", tree, dev, env, dispatch.DefaultOptions()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	history := queueHistory(t, env.Queue)
	if len(history) != 1 || history[0].Kernel != "ew_good1" {
		t.Fatalf("History = %+v, want the predictor to fall through to ew_good1", history)
	}
}

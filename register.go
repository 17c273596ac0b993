package isaac

import (
	"isaac/internal/codegen"
	"isaac/internal/dispatch"
	"isaac/internal/driver"
	"isaac/internal/ierrors"
	"isaac/internal/profile"
	"isaac/internal/scheduler"
)

// templateKinds lists every (scheduler.Kind, constructor) pair Register
// walks, in the lattice order scheduler.Kind declares them.
var templateKinds = []struct {
	kind        scheduler.Kind
	newTemplate func(params []int64) (codegen.Template, error)
}{
	{scheduler.KindElementwise1D, newElementwiseOneD},
	{scheduler.KindElementwise2D, newElementwiseTwoD},
	{scheduler.KindReduce1D, newReduceOneD},
	{scheduler.KindReduce2DRows, newReduceTwoD},
	{scheduler.KindReduce2DCols, newReduceTwoD},
	{scheduler.KindMatrixProductNN, newMatrixProduct},
	{scheduler.KindMatrixProductNT, newMatrixProduct},
	{scheduler.KindMatrixProductTN, newMatrixProduct},
	{scheduler.KindMatrixProductTT, newMatrixProduct},
}

// dtypes lists the element types the built-in and override profile
// tables carry entries for (spec §6).
var dtypes = []string{"float32", "float64"}

// Register builds every (kind, dtype) dispatch.Entry the profile
// database has candidates for and installs them on d. Missing entries
// are skipped rather than erroring: a device profile is never required
// to cover every kind, only the ones a caller's trees actually use.
func Register(d *dispatch.Dispatcher, profiles *profile.Database, dev driver.DeviceInfo) error {
	for _, tk := range templateKinds {
		for _, dtype := range dtypes {
			entry, ok := profiles.Lookup(dev, tk.kind, dtype)
			if !ok || len(entry.Profiles) == 0 {
				continue
			}
			candidates := make([]codegen.Template, 0, len(entry.Profiles))
			for _, params := range entry.Profiles {
				tmpl, err := tk.newTemplate(params)
				if err != nil {
					return ierrors.Wrap(ierrors.RuntimeError, err,
						"isaac: building %s/%s candidate", tk.kind, dtype)
				}
				candidates = append(candidates, tmpl)
			}
			d.Register(tk.kind, dtype, dispatch.Entry{
				Candidates: candidates,
				Predictor:  entry.Predictor,
			})
		}
	}
	return nil
}

func wantParams(name string, params []int64, n int) error {
	if len(params) != n {
		return ierrors.New(ierrors.RuntimeError,
			"isaac: %s profile wants %d parameters, got %d", name, n, len(params))
	}
	return nil
}

func newElementwiseOneD(p []int64) (codegen.Template, error) {
	if err := wantParams("elementwise-1d", p, 4); err != nil {
		return nil, err
	}
	return codegen.ElementwiseOneD{
		VWidth: int(p[0]), GroupSize: int(p[1]), NumGroups: int(p[2]),
		FetchPolicy: codegen.FetchPolicy(p[3]),
	}, nil
}

func newElementwiseTwoD(p []int64) (codegen.Template, error) {
	if err := wantParams("elementwise-2d", p, 6); err != nil {
		return nil, err
	}
	return codegen.ElementwiseTwoD{
		VWidth: int(p[0]), LS0: int(p[1]), LS1: int(p[2]), NG0: int(p[3]), NG1: int(p[4]),
		FetchPolicy: codegen.FetchPolicy(p[5]),
	}, nil
}

func newReduceOneD(p []int64) (codegen.Template, error) {
	if err := wantParams("reduce-1d", p, 4); err != nil {
		return nil, err
	}
	return codegen.ReduceOneD{
		VWidth: int(p[0]), GroupSize: int(p[1]), NumGroups: int(p[2]),
		FetchPolicy: codegen.FetchPolicy(p[3]),
	}, nil
}

func newReduceTwoD(p []int64) (codegen.Template, error) {
	if err := wantParams("reduce-2d", p, 6); err != nil {
		return nil, err
	}
	return codegen.ReduceTwoD{
		VWidth: int(p[0]), LS0: int(p[1]), LS1: int(p[2]),
		NG0: int(p[3]), NG1: int(p[4]), FetchPolicy: codegen.FetchPolicy(p[5]),
	}, nil
}

// newMatrixProduct builds a MatrixProduct candidate with the profile's 10
// tiling parameters; Alpha/Beta are fixed at 1/0, the values a plain
// `dst = A@B` assignment implies (see codegen.MatrixProduct's doc).
func newMatrixProduct(p []int64) (codegen.Template, error) {
	if err := wantParams("matrix-product", p, 10); err != nil {
		return nil, err
	}
	return codegen.MatrixProduct{
		VWidth: int(p[0]), LS0: int(p[1]), LS1: int(p[2]),
		KL: int(p[3]), Depth: int(p[4]),
		MS: int(p[5]), KS: int(p[6]), NS: int(p[7]),
		LFetch0: int(p[8]), LFetch1: int(p[9]),
		Alpha: 1, Beta: 0,
	}, nil
}

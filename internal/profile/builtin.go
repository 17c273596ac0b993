package profile

// builtin is the table shipped with the binary: conservative,
// known-safe parameter tuples for a generic discrete GPU and a generic
// CPU device, one entry per (kind, dtype). These are starting points
// for the tuning path to improve on (spec §4.4 step 3), not claims of
// optimality for any particular card.
//
// Profile tuples are positional constructor arguments for the matching
// codegen.Template, in the field order that template's struct declares
// them (VWidth, GroupSize, NumGroups, FetchPolicy for elementwise-1d;
// and so on). Keeping them as plain []int64 rather than typed structs
// lets the same JSON override format describe any template kind without
// a per-kind schema.
var builtin = map[string]deviceProfile{
	"generic|generic|gpu": {
		"elementwise-1d": {
			"float32": {Profiles: [][]int64{{4, 128, 256, 2}}},
			"float64": {Profiles: [][]int64{{2, 128, 256, 2}}},
		},
		"elementwise-2d": {
			"float32": {Profiles: [][]int64{{1, 32, 8, 16, 16, 2}}},
			"float64": {Profiles: [][]int64{{1, 32, 8, 16, 16, 2}}},
		},
		"reduce-1d": {
			"float32": {Profiles: [][]int64{{4, 256, 64, 2}}},
			"float64": {Profiles: [][]int64{{2, 256, 64, 2}}},
		},
		"reduce-2d-rows": {
			"float32": {Profiles: [][]int64{{4, 32, 8, 1, 8, 2}}},
			"float64": {Profiles: [][]int64{{2, 32, 8, 1, 8, 2}}},
		},
		"reduce-2d-cols": {
			"float32": {Profiles: [][]int64{{4, 8, 32, 8, 1, 2}}},
			"float64": {Profiles: [][]int64{{2, 8, 32, 8, 1, 2}}},
		},
		// lfetch0*lfetch1 must equal ls0*ls1 (16*16=256); 16x16 cooperative
		// fetch lanes evenly tile both (mL,kL) and (kL,nL) for these tile
		// sizes (spec §4.3.5).
		"matrix-product-nn": {
			"float32": {Profiles: [][]int64{{4, 16, 16, 16, 1, 4, 4, 4, 16, 16}}},
			"float64": {Profiles: [][]int64{{2, 16, 16, 16, 1, 2, 4, 2, 16, 16}}},
		},
		"matrix-product-nt": {
			"float32": {Profiles: [][]int64{{4, 16, 16, 16, 1, 4, 4, 4, 16, 16}}},
			"float64": {Profiles: [][]int64{{2, 16, 16, 16, 1, 2, 4, 2, 16, 16}}},
		},
		"matrix-product-tn": {
			"float32": {Profiles: [][]int64{{4, 16, 16, 16, 1, 4, 4, 4, 16, 16}}},
			"float64": {Profiles: [][]int64{{2, 16, 16, 16, 1, 2, 4, 2, 16, 16}}},
		},
		"matrix-product-tt": {
			"float32": {Profiles: [][]int64{{4, 16, 16, 16, 1, 4, 4, 4, 16, 16}}},
			"float64": {Profiles: [][]int64{{2, 16, 16, 16, 1, 2, 4, 2, 16, 16}}},
		},
	},
	"generic|generic|cpu": {
		"elementwise-1d": {
			"float32": {Profiles: [][]int64{{1, 1, 8, 1}}},
			"float64": {Profiles: [][]int64{{1, 1, 8, 1}}},
		},
		"reduce-1d": {
			"float32": {Profiles: [][]int64{{1, 1, 8, 1}}},
			"float64": {Profiles: [][]int64{{1, 1, 8, 1}}},
		},
	},
}

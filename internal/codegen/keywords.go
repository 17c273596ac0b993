// Package codegen implements the five kernel-template families of spec
// §4.3: element-wise 1D/2D, 1D reduction, 2D (row/column) reduction, and
// matrix product. Each template emits a function body in one shared
// C-dialect; keywords.go is the single place backend-specific spellings
// are substituted in, so no template file ever special-cases a Backend
// directly (spec.md §9 "Two backends, one emitter").
package codegen

import (
	"strings"

	"isaac/internal/driver"
)

// keywords holds the backend-specific spelling for every token a template
// may emit. Substitution is a single pass of strings.Replacer per
// Backend, built once and reused.
type keywords struct {
	kernel       string
	global       string
	local        string
	localIdx0    string
	localIdx1    string
	globalSize0  string
	globalSize1  string
	groupID0     string
	groupID1     string
	groupID2     string
	localBarrier string
	sizeT        string
	mad          string
}

var openCLKeywords = keywords{
	kernel:       "__kernel void",
	global:       "__global",
	local:        "__local",
	localIdx0:    "get_local_id(0)",
	localIdx1:    "get_local_id(1)",
	globalSize0:  "get_global_size(0)",
	globalSize1:  "get_global_size(1)",
	groupID0:     "get_group_id(0)",
	groupID1:     "get_group_id(1)",
	groupID2:     "get_group_id(2)",
	localBarrier: "barrier(CLK_LOCAL_MEM_FENCE)",
	sizeT:        "uint",
	mad:          "fma",
}

var cudaKeywords = keywords{
	kernel:       "extern \"C\" __global__ void",
	global:       "",
	local:        "__shared__",
	localIdx0:    "threadIdx.x",
	localIdx1:    "threadIdx.y",
	globalSize0:  "(gridDim.x*blockDim.x)",
	globalSize1:  "(gridDim.y*blockDim.y)",
	groupID0:     "blockIdx.x",
	groupID1:     "blockIdx.y",
	groupID2:     "blockIdx.z",
	localBarrier: "__syncthreads()",
	sizeT:        "unsigned int",
	mad:          "fmaf",
}

func keywordsFor(b driver.Backend) keywords {
	if b == driver.CUDALike {
		return cudaKeywords
	}
	return openCLKeywords
}

// substitute rewrites every `$TOKEN` in src to b's spelling.
func substitute(src string, b driver.Backend) string {
	k := keywordsFor(b)
	r := strings.NewReplacer(
		"$KERNEL", k.kernel,
		"$GLOBAL", k.global,
		"$LOCAL_IDX_0", k.localIdx0,
		"$LOCAL_IDX_1", k.localIdx1,
		"$GLOBAL_SIZE_0", k.globalSize0,
		"$GLOBAL_SIZE_1", k.globalSize1,
		"$GROUP_ID_0", k.groupID0,
		"$GROUP_ID_1", k.groupID1,
		"$GROUP_ID_2", k.groupID2,
		"$LOCAL_BARRIER", k.localBarrier,
		"$SIZE_T", k.sizeT,
		"$MAD", k.mad,
		"$LOCAL", k.local,
	)
	return r.Replace(src)
}

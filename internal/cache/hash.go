// Package cache implements the program cache of spec §4.5: a structural
// hash of an expression tree that is identity across relabelings of
// disjoint buffer ids, and a per-queue cache mapping that hash to a
// compiled driver.Program.
package cache

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"isaac/internal/expression"
	"isaac/internal/numeric"
)

var dtypeChar = [...]byte{
	numeric.Invalid: '?',
	numeric.Int8:    'c', numeric.Uint8: 'C',
	numeric.Int16: 's', numeric.Uint16: 'S',
	numeric.Int32: 'i', numeric.Uint32: 'I',
	numeric.Int64: 'l', numeric.Uint64: 'L',
	numeric.Float32: 'f', numeric.Float64: 'd',
}

func charFor(t numeric.Type) byte {
	if int(t) >= len(dtypeChar) {
		return '?'
	}
	return dtypeChar[t]
}

// Hash returns tree's structural key: one DFS that appends, per node, a
// shape/stride/dtype/binder-id fingerprint for DENSE_ARRAY leaves and a
// family/type code for composites. Two expressions over differently
// numbered but structurally identical buffers hash identically, because
// a buffer's id is assigned by first discovery within this DFS rather
// than read off any caller-supplied identity.
func Hash(tree expression.Tree) string {
	var sb strings.Builder
	ids := make(map[uuid.UUID]int)
	tree.DFS(tree.Root, nil, func(idx int, n expression.Node) {
		switch n.Kind {
		case expression.KindDenseArray:
			for _, dim := range n.Shape {
				if dim > 1 {
					sb.WriteByte('n')
				} else {
					sb.WriteByte('1')
				}
			}
			if len(n.Stride) > 0 && n.Stride[0] > 1 {
				sb.WriteByte('s')
			}
			sb.WriteByte(charFor(n.Dtype))
			sb.WriteString(strconv.Itoa(bufferID(ids, n)))
		case expression.KindComposite:
			sb.WriteString(strconv.Itoa(int(n.Op.Family)))
			sb.WriteByte(':')
			sb.WriteString(strconv.Itoa(int(n.Op.Type)))
			sb.WriteByte(';')
		}
	})
	return sb.String()
}

// bufferID assigns a buffer its first-discovery sequential id within one
// Hash call (spec §4.5: "buffers keep the first id they were assigned to
// in the tree, so two structurally identical expressions over different
// arrays map to the same cached program").
func bufferID(ids map[uuid.UUID]int, n expression.Node) int {
	var key uuid.UUID
	if n.Buffer != nil {
		key = n.Buffer.ID()
	}
	if id, ok := ids[key]; ok {
		return id
	}
	id := len(ids)
	ids[key] = id
	return id
}

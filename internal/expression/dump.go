package expression

import (
	"fmt"
	"strings"

	"github.com/kr/pretty"
)

// dumpNode is the shape handed to kr/pretty for one tree node; it omits
// the live driver.Buffer handle (pretty would otherwise try to walk an
// opaque interface) in favor of a short identity string.
type dumpNode struct {
	Index  int
	Kind   string
	Dtype  string
	Shape  string
	LHS    int
	RHS    int
	Op     string
	Buffer string
}

func kindName(k NodeKind) string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindValueScalar:
		return "scalar"
	case KindDenseArray:
		return "array"
	case KindComposite:
		return "composite"
	default:
		return "?"
	}
}

// prettyDump renders every node of t via github.com/kr/pretty, used by
// Tree.Dump.
func prettyDump(t Tree) string {
	rows := make([]dumpNode, len(t.Nodes))
	for i, n := range t.Nodes {
		row := dumpNode{
			Index: i, Kind: kindName(n.Kind),
			Dtype: n.Dtype.String(), Shape: n.Shape.String(),
			LHS: n.LHS, RHS: n.RHS,
		}
		if n.Kind == KindComposite {
			row.Op = fmt.Sprintf("family=%d type=%d", n.Op.Family, n.Op.Type)
		}
		if n.Kind == KindDenseArray && n.Buffer != nil {
			row.Buffer = fmt.Sprintf("%v", n.Buffer.ID())
		}
		rows[i] = row
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "tree (root=%d):\n", t.Root)
	for _, r := range rows {
		fmt.Fprintf(&sb, "  %# v\n", pretty.Formatter(r))
	}
	return sb.String()
}

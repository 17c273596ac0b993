package symbolic

import (
	"fmt"
	"regexp"
	"strings"
)

// Lambda is a named, parameterized string rewrite rule carried on an
// Object, e.g. `at(i,j) : #pointer[#start + (i)*#inc0 + (j)*#inc1]`
// (spec §3 "Symbolic object"). Name is the callable form ("at"), Params
// the formal argument names ("i","j"), and Body the template text that
// still contains both lambda-params and #attribute placeholders.
type Lambda struct {
	Name   string
	Params []string
	Body   string
}

// NewLambda parses the `name(params) : body` spelling used throughout
// the design notes (spec.md §9).
func NewLambda(spec string) Lambda {
	parts := strings.SplitN(spec, ":", 2)
	head := strings.TrimSpace(parts[0])
	body := ""
	if len(parts) == 2 {
		body = strings.TrimSpace(parts[1])
	}
	open := strings.Index(head, "(")
	close := strings.LastIndex(head, ")")
	name := head
	var params []string
	if open >= 0 && close > open {
		name = strings.TrimSpace(head[:open])
		for _, p := range strings.Split(head[open+1:close], ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				params = append(params, p)
			}
		}
	}
	return Lambda{Name: name, Params: params, Body: body}
}

// Expand substitutes args for l's formal parameters in Body, by exact
// token match (parameters are simple identifiers, never regex-special).
func (l Lambda) Expand(args ...string) (string, error) {
	if len(args) != len(l.Params) {
		return "", fmt.Errorf("symbolic: lambda %q expects %d args, got %d", l.Name, len(l.Params), len(args))
	}
	out := l.Body
	for i, p := range l.Params {
		out = wordReplace(out, p, args[i])
	}
	return out, nil
}

var identBoundary = regexp.MustCompile(`[A-Za-z0-9_]`)

// wordReplace replaces whole-word occurrences of name in s with value,
// so that a parameter named "i" does not also rewrite inside "imag".
func wordReplace(s, name, value string) string {
	var sb strings.Builder
	i := 0
	for i < len(s) {
		idx := strings.Index(s[i:], name)
		if idx < 0 {
			sb.WriteString(s[i:])
			break
		}
		start := i + idx
		end := start + len(name)
		beforeOK := start == 0 || !identBoundary.MatchString(string(s[start-1]))
		afterOK := end == len(s) || !identBoundary.MatchString(string(s[end]))
		sb.WriteString(s[i:start])
		if beforeOK && afterOK {
			sb.WriteString(value)
		} else {
			sb.WriteString(name)
		}
		i = end
	}
	return sb.String()
}

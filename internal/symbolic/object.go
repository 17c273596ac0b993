// Package symbolic implements the annotation pass of spec §4.1: wrapping
// every expression-tree node in a symbolic Object that carries a name, a
// small attribute bag, and a set of named "lambda" rewrite rules used
// during code emission (spec.md §9 "Symbolic layer as macro expansion").
package symbolic

import (
	"strings"
)

// Object is the symbolic wrapper built once per tree node during
// annotation. Inherits lists the inheritance tags the original C++
// class hierarchy encoded as virtual dispatch (e.g. {"object","leaf",
// "buffer"}); here it is just a slice checked with Is, since Go has no
// class hierarchy to mirror.
type Object struct {
	Inherits []string
	Attrs    map[string]string
	// Lambdas is keyed by callable name; a name may have more than one
	// registered overload distinguished by arity (e.g. a buffer exposes
	// both `at(i)` and `at(i,j)` so 1D and 2D templates can each call the
	// accessor with the argument count their loop nest produces).
	Lambdas map[string][]Lambda
}

// NewObject returns an Object tagged with the given inheritance chain.
func NewObject(inherits ...string) *Object {
	return &Object{
		Inherits: inherits,
		Attrs:    make(map[string]string),
		Lambdas:  make(map[string][]Lambda),
	}
}

// Is reports whether tag appears in o's inheritance chain.
func (o *Object) Is(tag string) bool {
	for _, t := range o.Inherits {
		if t == tag {
			return true
		}
	}
	return false
}

// SetAttr records a named attribute, later substituted for `#name` during
// Process.
func (o *Object) SetAttr(name, value string) *Object {
	o.Attrs[name] = value
	return o
}

// HasAttr reports whether name was recorded.
func (o *Object) HasAttr(name string) bool {
	_, ok := o.Attrs[name]
	return ok
}

// AddLambda registers a rewrite rule under its callable name. A second
// registration with the same arity replaces the first; a different arity
// is kept alongside it as a distinct overload.
func (o *Object) AddLambda(spec string) *Object {
	l := NewLambda(spec)
	overloads := o.Lambdas[l.Name]
	for i, existing := range overloads {
		if len(existing.Params) == len(l.Params) {
			overloads[i] = l
			o.Lambdas[l.Name] = overloads
			return o
		}
	}
	o.Lambdas[l.Name] = append(overloads, l)
	return o
}

// lambdaFor selects the overload of name matching argc arguments.
func (o *Object) lambdaFor(name string, argc int) (Lambda, bool) {
	for _, l := range o.Lambdas[name] {
		if len(l.Params) == argc {
			return l, true
		}
	}
	return Lambda{}, false
}

// Process expands #attribute references and lambda calls in text until a
// fixpoint is reached, implementing the macro-expansion contract spec.md
// §9 describes. Lambda calls are written `name(arg0, arg1)`; arguments
// may themselves be arbitrary text (often an accessor expression built by
// a child object), not just identifiers.
func (o *Object) Process(text string) string {
	for {
		next := o.expandOnce(text)
		if next == text {
			return next
		}
		text = next
	}
}

func (o *Object) expandOnce(text string) string {
	text = expandAttrs(text, o.Attrs)
	text = expandLambdaCalls(text, o.Lambdas)
	return text
}

func expandAttrs(text string, attrs map[string]string) string {
	if len(attrs) == 0 || !strings.Contains(text, "#") {
		return text
	}
	var sb strings.Builder
	i := 0
	for i < len(text) {
		if text[i] != '#' {
			sb.WriteByte(text[i])
			i++
			continue
		}
		j := i + 1
		for j < len(text) && isIdentByte(text[j]) {
			j++
		}
		name := text[i+1 : j]
		if v, ok := attrs[name]; ok {
			sb.WriteString(v)
		} else {
			sb.WriteString(text[i:j])
		}
		i = j
	}
	return sb.String()
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// expandLambdaCalls finds `name(args)` calls for every registered lambda
// name and replaces them with the matching-arity overload's expanded
// body. Nested calls are handled by repeated application (Process calls
// this until fixpoint).
func expandLambdaCalls(text string, lambdas map[string][]Lambda) string {
	for name, overloads := range lambdas {
		text = expandCallsOf(text, name, overloads)
	}
	return text
}

func expandCallsOf(text, name string, overloads []Lambda) string {
	var sb strings.Builder
	i := 0
	for i < len(text) {
		idx := strings.Index(text[i:], name+"(")
		if idx < 0 {
			sb.WriteString(text[i:])
			break
		}
		start := i + idx
		// require a word boundary before the call so "at(" doesn't match
		// inside "flat(".
		if start > 0 && isIdentByte(text[start-1]) {
			sb.WriteString(text[i : start+len(name)+1])
			i = start + len(name) + 1
			continue
		}
		openParen := start + len(name)
		close, ok := matchParen(text, openParen)
		if !ok {
			sb.WriteString(text[i:])
			break
		}
		argsText := text[openParen+1 : close]
		args := splitTopLevel(argsText)
		sb.WriteString(text[i:start])
		if l, ok := overloadFor(overloads, len(args)); ok {
			if expanded, err := l.Expand(args...); err == nil {
				sb.WriteString(expanded)
			} else {
				sb.WriteString(text[start : close+1])
			}
		} else {
			sb.WriteString(text[start : close+1])
		}
		i = close + 1
	}
	return sb.String()
}

func overloadFor(overloads []Lambda, argc int) (Lambda, bool) {
	for _, l := range overloads {
		if len(l.Params) == argc {
			return l, true
		}
	}
	return Lambda{}, false
}

// matchParen returns the index of the ")" matching the "(" at open.
func matchParen(text string, open int) (int, bool) {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return -1, false
}

// splitTopLevel splits s on commas that are not nested inside parens.
func splitTopLevel(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	depth := 0
	start := 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(s[start:]))
	return out
}

// Evaluate selects the lambda named by the requesting accessor (e.g.
// "at") and expands it with the given arguments, returning the spelling
// appropriate for o's inheritance chain. Objects with no matching lambda
// return ok=false so a caller can fall back to a default.
func (o *Object) Evaluate(accessor string, args ...string) (string, bool) {
	l, ok := o.lambdaFor(accessor, len(args))
	if !ok {
		return "", false
	}
	out, err := l.Expand(args...)
	if err != nil {
		return "", false
	}
	return o.Process(out), true
}

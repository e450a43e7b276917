package resolver

import (
	"regexp"
	"strings"
)

// Scope is the prefix of a placeholder, before the first dot.
type Scope string

const (
	ScopeFunction    Scope = "function"
	ScopePrev        Scope = "prev"
	ScopeRequest     Scope = "request"
	ScopeInputs      Scope = "inputs"
	ScopeEnvironment Scope = "environment"
)

var placeholderPattern = regexp.MustCompile(`\{\$([^}]+)\}`)

// Placeholder is one {$scope.path} occurrence.
type Placeholder struct {
	Raw   string
	Scope Scope
	Path  string
}

type segment struct {
	literal     string
	placeholder *Placeholder
}

// Template is a string split into literal text and placeholders.
type Template struct {
	segments []segment
}

// Parse splits s into segments. Placeholders with an unknown scope are
// kept as literal text.
func Parse(s string) *Template {
	t := &Template{}
	last := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(s, -1) {
		if loc[0] > last {
			t.segments = append(t.segments, segment{literal: s[last:loc[0]]})
		}
		raw := s[loc[0]:loc[1]]
		if p := newPlaceholder(raw, s[loc[2]:loc[3]]); p != nil {
			t.segments = append(t.segments, segment{placeholder: p})
		} else {
			t.segments = append(t.segments, segment{literal: raw})
		}
		last = loc[1]
	}
	if last < len(s) {
		t.segments = append(t.segments, segment{literal: s[last:]})
	}
	return t
}

func newPlaceholder(raw, expr string) *Placeholder {
	prefix, path, _ := strings.Cut(expr, ".")
	scope := Scope(prefix)
	switch scope {
	case ScopeFunction, ScopePrev, ScopeRequest, ScopeInputs, ScopeEnvironment:
		return &Placeholder{Raw: raw, Scope: scope, Path: path}
	default:
		return nil
	}
}

// Placeholders returns the recognized placeholders in order.
func (t *Template) Placeholders() []Placeholder {
	var out []Placeholder
	for _, seg := range t.segments {
		if seg.placeholder != nil {
			out = append(out, *seg.placeholder)
		}
	}
	return out
}

func (t *Template) HasPlaceholders() bool {
	for _, seg := range t.segments {
		if seg.placeholder != nil {
			return true
		}
	}
	return false
}

// single returns the placeholder when the template is exactly one
// placeholder with no surrounding text.
func (t *Template) single() *Placeholder {
	if len(t.segments) == 1 {
		return t.segments[0].placeholder
	}
	return nil
}

// LooksLikePlaceholder reports whether s still starts with placeholder
// syntax, i.e. it is raw template text.
func LooksLikePlaceholder(s string) bool {
	return strings.HasPrefix(s, "{$")
}

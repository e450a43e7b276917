package resolver

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/callspec/packages/builtin"
	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
)

// WarnFunc is a function type for handling warnings
type WarnFunc func(format string, args ...any)

// Scopes carries the values each placeholder scope resolves against.
type Scopes struct {
	Inputs      map[string]any
	Request     any
	Previous    map[string]*plan.Request
	Environment map[string]any
}

// ResolutionError means a request could not be rebuilt after substitution.
type ResolutionError struct {
	RequestID string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving request %q: %v", e.RequestID, e.Err)
}

func (e *ResolutionError) Cause() error  { return e.Err }
func (e *ResolutionError) Unwrap() error { return e.Err }

type Resolver struct {
	mu       sync.RWMutex
	funcs    *builtin.Registry
	warnFunc WarnFunc
}

func NewResolver() *Resolver {
	return &Resolver{
		funcs: builtin.NewRegistry(),
	}
}

// NewResolverWithFunctions uses a caller-supplied function table.
func NewResolverWithFunctions(funcs *builtin.Registry) *Resolver {
	return &Resolver{funcs: funcs}
}

// SetWarnFunc sets a function to be called when a lookup fails
func (r *Resolver) SetWarnFunc(fn WarnFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnFunc = fn
}

func (r *Resolver) warn(format string, args ...any) {
	r.mu.RLock()
	fn := r.warnFunc
	r.mu.RUnlock()
	if fn != nil {
		fn(format, args...)
	}
}

func (r *Resolver) Functions() *builtin.Registry {
	return r.funcs
}

// Resolve returns a copy of value with every placeholder of an enabled
// scope replaced. Maps and slices are walked recursively; unresolved
// placeholders are left as they are.
func (r *Resolver) Resolve(value any, scopes *Scopes, enabled ...Scope) any {
	if scopes == nil {
		scopes = &Scopes{}
	}
	return r.walk(value, scopes, scopeSet(enabled))
}

// ResolveString substitutes placeholders inside a single string. Values
// are always rendered as text.
func (r *Resolver) ResolveString(input string, scopes *Scopes, enabled ...Scope) string {
	if scopes == nil {
		scopes = &Scopes{}
	}
	return r.render(Parse(input), scopes, scopeSet(enabled))
}

// ResolveRequest resolves every field of req and rebuilds the request.
// The input is not modified.
func (r *Resolver) ResolveRequest(req *plan.Request, scopes *Scopes, enabled ...Scope) (*plan.Request, error) {
	tree, err := ToTree(req)
	if err != nil {
		return nil, &ResolutionError{RequestID: req.ID, Err: err}
	}
	resolved := r.Resolve(tree, scopes, enabled...)

	data, err := json.Marshal(resolved)
	if err != nil {
		return nil, &ResolutionError{RequestID: req.ID, Err: err}
	}
	out := &plan.Request{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, &ResolutionError{RequestID: req.ID, Err: errors.Wrap(err, "substituted value does not fit the request")}
	}
	out.Appended = nil
	return out, nil
}

// ToTree converts a request into its generic JSON tree, without outcome.
func ToTree(req *plan.Request) (map[string]any, error) {
	shallow := *req
	shallow.Appended = nil
	data, err := json.Marshal(&shallow)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

type enabledScopes map[Scope]bool

func scopeSet(scopes []Scope) enabledScopes {
	set := make(enabledScopes, len(scopes))
	for _, s := range scopes {
		set[s] = true
	}
	return set
}

func (r *Resolver) walk(value any, scopes *Scopes, enabled enabledScopes) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[r.render(Parse(k), scopes, enabled)] = r.walk(item, scopes, enabled)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = r.walk(item, scopes, enabled)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, item := range v {
			out[k] = r.render(Parse(item), scopes, enabled)
		}
		return out
	case string:
		t := Parse(v)
		if !t.HasPlaceholders() {
			return v
		}
		if p := t.single(); p != nil && enabled[p.Scope] {
			if resolved, ok := r.lookup(p, scopes); ok {
				if isComposite(resolved) {
					return resolved
				}
				return format(resolved)
			}
			return v
		}
		return r.render(t, scopes, enabled)
	default:
		return value
	}
}

func (r *Resolver) render(t *Template, scopes *Scopes, enabled enabledScopes) string {
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.placeholder == nil {
			b.WriteString(seg.literal)
			continue
		}
		p := seg.placeholder
		if !enabled[p.Scope] {
			b.WriteString(p.Raw)
			continue
		}
		if v, ok := r.lookup(p, scopes); ok {
			b.WriteString(format(v))
		} else {
			b.WriteString(p.Raw)
		}
	}
	return b.String()
}

func (r *Resolver) lookup(p *Placeholder, scopes *Scopes) (any, bool) {
	switch p.Scope {
	case ScopeFunction:
		return r.funcs.Call(p.Path, &builtin.Context{Inputs: scopes.Inputs, Request: scopes.Request})

	case ScopePrev:
		id, rest, _ := strings.Cut(p.Path, ".")
		prev, ok := scopes.Previous[id]
		if !ok || prev == nil || prev.Appended == nil {
			r.warn("%s not found", p.Raw)
			return nil, false
		}
		v, ok := navigate(prev.Appended, rest)
		if !ok {
			r.warn("%s not found", p.Raw)
		}
		return v, ok

	case ScopeRequest:
		v, ok := navigate(scopes.Request, p.Path)
		if !ok {
			return nil, false
		}
		if s, isString := v.(string); isString && LooksLikePlaceholder(s) {
			return nil, false
		}
		return v, true

	case ScopeInputs:
		v, ok := scopes.Inputs[p.Path]
		if !ok || v == nil {
			return nil, false
		}
		return v, true

	case ScopeEnvironment:
		return navigate(scopes.Environment, p.Path)
	}
	return nil, false
}

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// convertBracketNotation converts array bracket notation to gjson dot notation
// e.g., "[0].id" -> "0.id", "items[0].tags[1]" -> "items.0.tags.1"
func convertBracketNotation(path string) string {
	result := bracketIndex.ReplaceAllString(path, ".$1")
	return strings.TrimPrefix(result, ".")
}

// navigate looks path up inside root. Missing and null values are not found.
func navigate(root any, path string) (any, bool) {
	if root == nil {
		return nil, false
	}
	if path == "" {
		return root, true
	}
	data, err := json.Marshal(root)
	if err != nil {
		return nil, false
	}
	result := gjson.GetBytes(data, convertBracketNotation(path))
	if !result.Exists() || result.Type == gjson.Null {
		return nil, false
	}
	return result.Value(), true
}

func isComposite(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// format renders a resolved value as template text.
func format(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}

var pathParamPattern = regexp.MustCompile(`\{([^}]+)\}`)

// ResolvePath replaces {param} segments of an operation path with the
// matching parameter. Unresolved segments stay literal.
func ResolvePath(operationPath string, params map[string]any) string {
	return pathParamPattern.ReplaceAllStringFunc(operationPath, func(match string) string {
		name := match[1 : len(match)-1]
		v, ok := params[name]
		if !ok || v == nil {
			return match
		}
		s := format(v)
		if s == "" {
			return match
		}
		return s
	})
}

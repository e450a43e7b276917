package sandbox

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// AssertionError is a failed expectation.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	return e.Message
}

// Expect starts a chai style expectation on actual. Chain words (to, be,
// have, deep) are aliases of the same object; not negates.
func Expect(actual any) any {
	chain := expectation(actual, false)
	chain["not"] = expectation(actual, true)
	return chain
}

func expectation(actual any, negate bool) map[string]any {
	verb := func(s string) string {
		if negate {
			return "not " + s
		}
		return s
	}
	check := func(pass bool, format string, args ...any) (any, error) {
		if pass != negate {
			return true, nil
		}
		return nil, &AssertionError{Message: fmt.Sprintf(format, args...)}
	}

	chain := map[string]any{}
	chain["equal"] = func(expected any) (any, error) {
		return check(equal(actual, expected), "expected %s to %s %s", inspect(actual), verb("equal"), inspect(expected))
	}
	chain["eql"] = func(expected any) (any, error) {
		return check(equal(actual, expected), "expected %s to %s %s", inspect(actual), verb("deeply equal"), inspect(expected))
	}
	chain["include"] = func(needle any) (any, error) {
		return check(includes(actual, needle), "expected %s to %s %s", inspect(actual), verb("include"), inspect(needle))
	}
	chain["above"] = func(n any) (any, error) {
		a, b, err := numbers(actual, n)
		if err != nil {
			return nil, err
		}
		return check(a > b, "expected %s to %s %s", inspect(actual), verb("be above"), inspect(n))
	}
	chain["below"] = func(n any) (any, error) {
		a, b, err := numbers(actual, n)
		if err != nil {
			return nil, err
		}
		return check(a < b, "expected %s to %s %s", inspect(actual), verb("be below"), inspect(n))
	}
	chain["oneOf"] = func(list any) (any, error) {
		found := false
		for _, item := range toSlice(list) {
			if equal(actual, item) {
				found = true
				break
			}
		}
		return check(found, "expected %s to %s %s", inspect(actual), verb("be one of"), inspect(list))
	}
	chain["property"] = func(name any, value ...any) (any, error) {
		key := fmt.Sprint(name)
		obj, isMap := normalize(actual).(map[string]any)
		v, ok := obj[key]
		if !isMap || !ok || len(value) == 0 {
			return check(isMap && ok, "expected %s to %s %s", inspect(actual), verb("have property"), inspect(key))
		}
		return check(equal(v, value[0]), "expected %s to %s %s of %s, but got %s", inspect(actual), verb("have property"), inspect(key), inspect(value[0]), inspect(v))
	}
	chain["lengthOf"] = func(n any) (any, error) {
		length, ok := lengthOf(actual)
		if !ok {
			return nil, &AssertionError{Message: fmt.Sprintf("expected %s to have a length", inspect(actual))}
		}
		want, isNum := toFloat(n)
		return check(isNum && float64(length) == want, "expected %s to %s %s but got %d", inspect(actual), verb("have a length of"), inspect(n), length)
	}
	typeCheck := func(typ any) (any, error) {
		want := strings.ToLower(fmt.Sprint(typ))
		return check(typeOf(actual) == want, "expected %s to %s %s", inspect(actual), verb("be a"), want)
	}
	chain["a"] = typeCheck
	chain["an"] = typeCheck

	for _, word := range []string{"to", "be", "been", "is", "that", "which", "and", "has", "have", "with", "at", "of", "same", "does"} {
		chain[word] = chain
	}
	chain["deep"] = map[string]any{"equal": chain["eql"]}
	return chain
}

func equal(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// normalize converts numbers to float64 and typed collections to the
// generic JSON shapes so values from different sources compare.
func normalize(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	switch val := v.(type) {
	case nil, string, bool:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct, reflect.Ptr:
		data, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return v
		}
		return normalize(generic)
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func numbers(a, b any) (float64, float64, error) {
	x, ok := toFloat(a)
	if !ok {
		return 0, 0, &AssertionError{Message: fmt.Sprintf("expected %s to be a number", inspect(a))}
	}
	y, ok := toFloat(b)
	if !ok {
		return 0, 0, &AssertionError{Message: fmt.Sprintf("expected %s to be a number", inspect(b))}
	}
	return x, y, nil
}

func toSlice(v any) []any {
	if s, ok := normalize(v).([]any); ok {
		return s
	}
	return nil
}

func includes(haystack, needle any) bool {
	switch h := normalize(haystack).(type) {
	case string:
		return strings.Contains(h, fmt.Sprint(needle))
	case []any:
		for _, item := range h {
			if equal(item, needle) {
				return true
			}
		}
	case map[string]any:
		subset, ok := normalize(needle).(map[string]any)
		if !ok {
			return false
		}
		for k, v := range subset {
			if hv, exists := h[k]; !exists || !equal(hv, v) {
				return false
			}
		}
		return true
	}
	return false
}

func lengthOf(v any) (int, bool) {
	switch val := normalize(v).(type) {
	case string:
		return len([]rune(val)), true
	case []any:
		return len(val), true
	case map[string]any:
		return len(val), true
	}
	return 0, false
}

func typeOf(v any) string {
	switch normalize(v).(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return "unknown"
}

// inspect renders a value for messages: strings single quoted, the rest
// as JSON.
func inspect(v any) string {
	switch val := normalize(v).(type) {
	case nil:
		return "null"
	case string:
		return "'" + val + "'"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

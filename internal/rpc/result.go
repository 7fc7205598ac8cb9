package rpc

import (
	"encoding/json"
	"math"
	"strconv"
)

// Result is a decoded response object. Numbers may arrive as any Go numeric
// type (float64 after a JSON or protobuf Struct round trip).
type Result map[string]any

// Int64 returns the integer under key, or 0.
func (r Result) Int64(key string) int64 {
	n, _ := AsInt64(r[key])
	return n
}

// Float64 returns the number under key, or 0.
func (r Result) Float64(key string) float64 {
	f, _ := AsFloat64(r[key])
	return f
}

// String returns the string under key, or "".
func (r Result) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		if n, ok := AsInt64(v); ok {
			return strconv.FormatInt(n, 10)
		}
		return ""
	}
}

// Map returns the nested object under key, or nil.
func (r Result) Map(key string) Result {
	m, _ := AsResult(r[key])
	return m
}

// Items flattens a WebAPI array under key. WebAPI wraps arrays as
// [{item: [...]}] or [{item: {...}}]; both shapes and a plain list of objects
// yield the same flat slice. Null and non-object elements are dropped.
func (r Result) Items(key string) []Result {
	var out []Result
	for _, el := range asList(r[key]) {
		m, ok := AsResult(el)
		if !ok {
			continue
		}
		inner, wrapped := m["item"]
		if !wrapped {
			out = append(out, m)
			continue
		}
		if one, ok := AsResult(inner); ok {
			out = append(out, one)
			continue
		}
		for _, x := range asList(inner) {
			if xm, ok := AsResult(x); ok {
				out = append(out, xm)
			}
		}
	}
	return out
}

// AsResult converts an object value to Result.
func AsResult(v any) (Result, bool) {
	switch m := v.(type) {
	case Result:
		return m, m != nil
	case map[string]any:
		return Result(m), m != nil
	default:
		return nil, false
	}
}

func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []Result:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out
	case []map[string]any:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out
	case nil:
		return nil
	default:
		if _, ok := AsResult(v); ok {
			return []any{v}
		}
		return nil
	}
}

// AsInt64 converts a numeric or numeric-string value to int64.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// AsFloat64 converts a numeric or numeric-string value to float64.
func AsFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		i, ok := AsInt64(v)
		return float64(i), ok
	}
}

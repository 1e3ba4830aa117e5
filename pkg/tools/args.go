package tools

import (
	"encoding/json"
)

// Args are the validated arguments of a tool call, with defaults applied.
// Accessors return the zero value for absent or mistyped entries; the schema
// check has already rejected those for declared parameters.
type Args map[string]any

// Has reports whether name was supplied or defaulted.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// String returns a string argument.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns an integer argument.
func (a Args) Int(name string) int {
	f, _ := toFloat64(a[name])
	return int(f)
}

// Bool returns a boolean argument.
func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// Object returns an object argument.
func (a Args) Object(name string) map[string]any {
	m, _ := a[name].(map[string]any)
	return m
}

// Objects returns an array of objects.
func (a Args) Objects(name string) []map[string]any {
	switch v := a[name].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, len(v))
		for i, e := range v {
			out[i], _ = e.(map[string]any)
		}
		return out
	}
	return nil
}

// Strings returns an array of strings.
func (a Args) Strings(name string) []string {
	switch v := a[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, len(v))
		for i, e := range v {
			out[i], _ = e.(string)
		}
		return out
	}
	return nil
}

// Vector returns an array of numbers as float32.
func (a Args) Vector(name string) []float32 {
	return toVector(a[name])
}

// Vectors returns an array of number arrays.
func (a Args) Vectors(name string) [][]float32 {
	switch v := a[name].(type) {
	case [][]float32:
		return v
	case []any:
		out := make([][]float32, len(v))
		for i, e := range v {
			out[i] = toVector(e)
		}
		return out
	case [][]float64:
		out := make([][]float32, len(v))
		for i, e := range v {
			out[i] = toVector(e)
		}
		return out
	}
	return nil
}

// Len returns the length of an array argument.
func (a Args) Len(name string) int {
	switch v := a[name].(type) {
	case []any:
		return len(v)
	case []string:
		return len(v)
	case []map[string]any:
		return len(v)
	case [][]float32:
		return len(v)
	case [][]float64:
		return len(v)
	}
	return 0
}

func toVector(v any) []float32 {
	switch v := v.(type) {
	case []float32:
		return v
	case []float64:
		out := make([]float32, len(v))
		for i, x := range v {
			out[i] = float32(x)
		}
		return out
	case []any:
		out := make([]float32, len(v))
		for i, e := range v {
			f, _ := toFloat64(e)
			out[i] = float32(f)
		}
		return out
	}
	return nil
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

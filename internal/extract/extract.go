// Package extract reads values out of a driver's parsed record data using a
// small JSONPath-like expression: dot-separated keys, numeric array
// indices, and a "[*]" wildcard for scanning every element, naming where a
// value lives inside whatever shape a driver produced.
package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// segment is one dot-separated piece of a path, optionally carrying an
// array subscript.
type segment struct {
	key      string
	indexed  bool
	wildcard bool
	index    int
}

// Parse splits a path expression into its segments. A bare segment
// ("title") selects a map key; "authors[0]" additionally selects an
// element; "authors[*]" marks the segment for fan-out in All.
func Parse(path string) []segment {
	var segs []segment
	for _, raw := range splitUnbracketed(path) {
		seg := segment{key: raw}
		if open := strings.IndexByte(raw, '['); open != -1 {
			seg.key = raw[:open]
			inner := raw[open+1 : len(raw)-1]
			if inner == "*" {
				seg.wildcard = true
				seg.indexed = true
			} else if n, err := strconv.Atoi(inner); err == nil {
				seg.indexed = true
				seg.index = n
			}
		}
		segs = append(segs, seg)
	}
	return segs
}

// splitUnbracketed splits on '.' but treats the contents of a [...] bracket
// as atomic, so "items[2].name" splits into "items[2]" and "name" rather
// than being confused by punctuation inside the brackets (there is none
// today, but the bracket is kept opaque on principle).
func splitUnbracketed(path string) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	for _, r := range path {
		switch r {
		case '[':
			depth++
			cur.WriteRune(r)
		case ']':
			depth--
			cur.WriteRune(r)
		case '.':
			if depth == 0 {
				if cur.Len() > 0 {
					parts = append(parts, cur.String())
					cur.Reset()
				}
				continue
			}
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// Value resolves path against data and returns the single value found,
// taking the first element whenever a wildcard segment is encountered. It
// returns (nil, nil) for a path that is well-formed but absent in data.
func Value(data any, path string) (any, error) {
	if path == "" {
		return data, nil
	}

	current := data
	for _, seg := range Parse(path) {
		next, err := step(current, seg)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}
		current = next
	}
	return current, nil
}

// String resolves path and renders the result as a string, or returns ok=false
// if the path resolved to nothing.
func String(data any, path string) (string, bool, error) {
	v, err := Value(data, path)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return Stringify(v), true, nil
}

// All resolves path against data, fanning out at every wildcard segment, and
// returns every leaf value reached.
func All(data any, path string) ([]any, error) {
	if path == "" {
		return []any{data}, nil
	}

	results := []any{data}
	for _, seg := range Parse(path) {
		var next []any
		for _, cur := range results {
			if cur == nil {
				continue
			}
			if seg.wildcard {
				if arr, ok := toSlice(keyed(cur, seg.key)); ok {
					next = append(next, arr...)
				}
				continue
			}
			v, err := step(cur, seg)
			if err != nil || v == nil {
				continue
			}
			next = append(next, v)
		}
		results = next
	}
	return results, nil
}

func step(data any, seg segment) (any, error) {
	value := keyed(data, seg.key)
	if seg.key != "" {
		if value == nil {
			if !hasKey(data, seg.key) {
				return nil, nil
			}
		}
	}

	if seg.wildcard {
		arr, ok := toSlice(value)
		if !ok || len(arr) == 0 {
			return nil, nil
		}
		return arr[0], nil
	}
	if seg.indexed && !seg.wildcard {
		arr, ok := toSlice(value)
		if !ok {
			return nil, fmt.Errorf("extract: expected array at %q, got %T", seg.key, value)
		}
		if seg.index < 0 || seg.index >= len(arr) {
			return nil, nil
		}
		return arr[seg.index], nil
	}
	return value, nil
}

func keyed(data any, key string) any {
	if key == "" {
		return data
	}
	switch m := data.(type) {
	case map[string]any:
		return m[key]
	case map[string]string:
		return m[key]
	default:
		return nil
	}
}

func hasKey(data any, key string) bool {
	switch m := data.(type) {
	case map[string]any:
		_, ok := m[key]
		return ok
	case map[string]string:
		_, ok := m[key]
		return ok
	default:
		return false
	}
}

func toSlice(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []string:
		out := make([]any, len(arr))
		for i, s := range arr {
			out[i] = s
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(arr))
		for i, m := range arr {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}

// Stringify renders any extracted leaf value as a string; complex values
// fall back to their JSON encoding.
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// FromJSON decodes raw JSON into the map shape Value/All operate over.
func FromJSON(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("extract: decode json: %w", err)
	}
	return m, nil
}

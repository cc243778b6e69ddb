// Package fingerprint computes a deterministic content hash for a record's
// parsed data, used to decide whether re-harvesting a known record actually
// changed anything worth re-normalizing and re-indexing.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Of returns the SHA256 hex digest of data's canonical JSON form: object
// keys sorted, whitespace-free, arrays compared element-by-element in
// their original order. Equal content always yields equal digests
// regardless of the source map's key iteration order.
func Of(data map[string]any) string {
	sum := sha256.Sum256([]byte(canonicalize(data)))
	return hex.EncodeToString(sum[:])
}

// OfJSON decodes raw and fingerprints it.
func OfJSON(raw []byte) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	return Of(m), nil
}

// Changed reports whether two fingerprints differ.
func Changed(previous, current string) bool {
	return previous != current
}

func canonicalize(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

func canonicalizeMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []byte
	out = append(out, '{')
	for i, k := range keys {
		if i > 0 {
			out = append(out, ',')
		}
		keyJSON, _ := json.Marshal(k)
		out = append(out, keyJSON...)
		out = append(out, ':')
		out = append(out, canonicalize(m[k])...)
	}
	out = append(out, '}')
	return string(out)
}

func canonicalizeSlice(arr []any) string {
	var out []byte
	out = append(out, '[')
	for i, v := range arr {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, canonicalize(v)...)
	}
	out = append(out, ']')
	return string(out)
}

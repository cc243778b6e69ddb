// Package fieldmapper implements the Field Mapper: per-source mapping
// files that translate extracted record values into the keyed document
// fields Solr indexes, following the same ordered-entries-with-fallback
// shape as the reference repository's normalizer registry and the
// Lotus-style field action pipeline, restated over this system's
// `{field}_mapping` configuration files.
package fieldmapper

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/Ramsey-B/recordmanager/internal/rmerror"
)

// EntryType selects how a mapping file's entries are interpreted.
type EntryType string

const (
	// Normal performs an exact lookup of the source value, falling back to Default.
	Normal EntryType = "normal"
	// Regexp tries patterns in file order and returns the first match's substitution.
	Regexp EntryType = "regexp"
	// RegexpMulti is like Regexp but every matching pattern contributes a value.
	RegexpMulti EntryType = "regexp-multi"
	// Hierarchy marks one level of a multi-file hierarchical mapping; each
	// level file is itself parsed as a Normal exact-lookup table.
	Hierarchy EntryType = "hierarchy"
)

// patternEntry is one regexp-type mapping line: pattern plus its substitution template.
type patternEntry struct {
	re      *regexp.Regexp
	replace string
}

// Mapping is one field's compiled configuration: an exact-match table (for
// Normal) or an ordered pattern list (for Regexp/RegexpMulti), plus the
// three fallback slots a mapping file may declare.
type Mapping struct {
	Field    string
	Type     EntryType
	Exact    map[string]string
	Patterns []patternEntry

	Default     string
	HasDefault  bool
	Empty       string
	HasEmpty    bool
	EmptyArray  []string
	HasEmptyArr bool
}

// Parse reads a newline-delimited `key = value` mapping file. Lines
// missing the " = " separator fail with rmerror.ErrConfig (MalformedMapping).
func Parse(field string, entryType EntryType, r io.Reader) (*Mapping, error) {
	m := &Mapping{
		Field: field,
		Type:  entryType,
		Exact: make(map[string]string),
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "##")) {
			continue
		}

		idx := strings.Index(line, " = ")
		if idx == -1 {
			return nil, fmt.Errorf("%w: line %d: missing \" = \" separator", rmerror.ErrConfig, lineNo)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+3:])

		switch key {
		case "##default":
			m.Default, m.HasDefault = value, true
			continue
		case "##empty":
			m.Empty, m.HasEmpty = value, true
			continue
		case "##emptyarray":
			m.EmptyArray = append(m.EmptyArray, value)
			m.HasEmptyArr = true
			continue
		}

		key = strings.TrimSuffix(key, "[]")

		if entryType == Normal || entryType == Hierarchy {
			m.Exact[key] = value
			continue
		}

		pattern, err := regexp.Compile(key)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad pattern %q: %v", rmerror.ErrConfig, lineNo, key, err)
		}
		m.Patterns = append(m.Patterns, patternEntry{re: pattern, replace: value})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", rmerror.ErrConfig, err)
	}
	return m, nil
}

// Apply maps a single source value through m, returning (mapped, ok).
// ok is false when no entry, default, or empty fallback produced a value,
// meaning the field should be left untouched per the mapper's contract.
func (m *Mapping) Apply(value string) (string, bool) {
	if value == "" {
		if m.HasEmpty {
			return m.Empty, true
		}
		return "", false
	}

	switch m.Type {
	case Normal, Hierarchy:
		if mapped, ok := m.Exact[value]; ok {
			return mapped, true
		}
		if m.HasDefault {
			return m.Default, true
		}
		return "", false
	case Regexp:
		for _, p := range m.Patterns {
			if p.re.MatchString(value) {
				return p.re.ReplaceAllString(value, p.replace), true
			}
		}
		if m.HasDefault {
			return m.Default, true
		}
		return "", false
	default:
		return "", false
	}
}

// ApplyMulti maps a single source value through an entry-type RegexpMulti
// mapping, returning every matching pattern's substitution.
func (m *Mapping) ApplyMulti(value string) []string {
	if value == "" {
		if m.HasEmptyArr {
			return append([]string(nil), m.EmptyArray...)
		}
		return nil
	}

	var out []string
	for _, p := range m.Patterns {
		if p.re.MatchString(value) {
			out = append(out, p.re.ReplaceAllString(value, p.replace))
		}
	}
	return out
}

// ApplyArray maps every element of values through m, element-wise,
// de-duplicating the results while preserving first-seen order.
func (m *Mapping) ApplyArray(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string

	add := func(v string) {
		if _, ok := seen[v]; ok || v == "" {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	if len(values) == 0 {
		if m.Type == RegexpMulti {
			for _, v := range m.ApplyMulti("") {
				add(v)
			}
		} else if mapped, ok := m.Apply(""); ok {
			add(mapped)
		}
		return out
	}

	for _, v := range values {
		if m.Type == RegexpMulti {
			for _, mapped := range m.ApplyMulti(v) {
				add(mapped)
			}
			continue
		}
		if mapped, ok := m.Apply(v); ok {
			add(mapped)
		}
	}
	return out
}

// ApplyHierarchy maps an ordered sequence of level values independently
// (level i through the i-th per-index mapping, supplied as levelMappings)
// and returns every cumulative "/"-joined prefix path in order: levels
// ["A1", "2"] mapped to ["A", "2"] yields []string{"A", "A/2"}. An empty or
// unmapped level truncates the hierarchy at that point rather than
// continuing past the gap.
func ApplyHierarchy(levels []string, levelMappings []*Mapping) []string {
	var parts, out []string
	for i, value := range levels {
		var mapping *Mapping
		if i < len(levelMappings) {
			mapping = levelMappings[i]
		}

		mapped := value
		if mapping != nil {
			var ok bool
			mapped, ok = mapping.Apply(value)
			if !ok {
				break
			}
		}
		if mapped == "" {
			break
		}

		parts = append(parts, mapped)
		out = append(out, strings.Join(parts, "/"))
	}
	return out
}

package config

import (
	"bufio"
	"io"
	"strings"

	"github.com/Ramsey-B/recordmanager/internal/rmerror"
)

// iniSection is one `[Name]` block's ordered key/value pairs. Repeated keys
// (a source's several `{field}_mapping[]` lines) are preserved in order.
type iniSection struct {
	name    string
	entries []iniEntry
}

type iniEntry struct {
	key, value string
}

// Get returns the last value set for key, following the INI convention that
// a later line overrides an earlier one for a scalar setting.
func (s iniSection) Get(key string) (string, bool) {
	val, ok := "", false
	for _, e := range s.entries {
		if e.key == key {
			val, ok = e.value, true
		}
	}
	return val, ok
}

// GetAll returns every value set for key in file order, for keys a source
// declares repeatedly (e.g. several mapping file entries for one field).
func (s iniSection) GetAll(key string) []string {
	var out []string
	for _, e := range s.entries {
		if e.key == key {
			out = append(out, e.value)
		}
	}
	return out
}

// parseINI reads the narrow INI-like grammar the spec's config files use:
// `[Section]` headers, `key = value` entries, `;` or `#` full-line comments, blank
// lines ignored. There is no library in the retrieval pack for this format
// (see DESIGN.md), so this hand-rolls exactly the grammar spec.md names.
func parseINI(r io.Reader) ([]iniSection, error) {
	var sections []iniSection
	var current *iniSection

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			sections = append(sections, iniSection{name: strings.TrimSpace(line[1 : len(line)-1])})
			current = &sections[len(sections)-1]
			continue
		}

		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, rmerror.ConfigErrorf("malformed config line %d: missing '='", lineNo)
		}
		if current == nil {
			return nil, rmerror.ConfigErrorf("config line %d precedes any [Section] header", lineNo)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		current.entries = append(current.entries, iniEntry{key: key, value: value})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sections, nil
}

// section returns the named section, or an empty one if absent (sections
// like [AuthorityEnrichment] are optional).
func section(sections []iniSection, name string) iniSection {
	for _, s := range sections {
		if s.name == name {
			return s
		}
	}
	return iniSection{name: name}
}

package fieldmapper

import "strings"

// Set is a source's full field-mapping configuration: one compiled Mapping
// per configured field name, plus any fields configured for hierarchical
// (multi-level, cumulative-output) mapping.
type Set struct {
	byField          map[string]*Mapping
	hierarchyByField map[string][]*Mapping
}

// NewSet builds a Set from already-parsed mappings.
func NewSet(mappings ...*Mapping) *Set {
	s := &Set{byField: make(map[string]*Mapping, len(mappings))}
	for _, m := range mappings {
		s.byField[m.Field] = m
	}
	return s
}

// AddHierarchy registers field as a hierarchical mapping over levelMappings,
// one Mapping per hierarchy level in order.
func (s *Set) AddHierarchy(field string, levelMappings []*Mapping) {
	if s.hierarchyByField == nil {
		s.hierarchyByField = make(map[string][]*Mapping)
	}
	s.hierarchyByField[field] = levelMappings
}

// MapValues implements the `mapValues(source, doc)` operation: for every
// configured field present in doc, apply its mapping and write the result
// into out. Fields with no configured mapping, or whose mapping produced no
// value and has no fallback, are left untouched (absent from out).
func (s *Set) MapValues(doc map[string]any) map[string][]string {
	out := make(map[string][]string)

	for field, mapping := range s.byField {
		raw, present := doc[field]
		if !present {
			continue
		}

		switch v := raw.(type) {
		case []string:
			if mapped := mapping.ApplyArray(v); mapped != nil {
				out[field] = mapped
			}
		case string:
			if mapped, ok := mapping.Apply(v); ok {
				out[field] = []string{mapped}
			} else if mapping.Type == RegexpMulti {
				if multi := mapping.ApplyMulti(v); multi != nil {
					out[field] = multi
				}
			}
		}
	}

	for field, levelMappings := range s.hierarchyByField {
		raw, present := doc[field]
		if !present {
			continue
		}
		if mapped := s.applyHierarchyField(raw, levelMappings); mapped != nil {
			out[field] = mapped
		}
	}

	return out
}

// applyHierarchyField maps raw (a "/"-joined path, or an array of them)
// through levelMappings, de-duplicating across inputs while preserving
// first-seen order of each cumulative prefix.
func (s *Set) applyHierarchyField(raw any, levelMappings []*Mapping) []string {
	var paths []string
	switch v := raw.(type) {
	case string:
		paths = []string{v}
	case []string:
		paths = v
	default:
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, path := range paths {
		levels := strings.Split(path, "/")
		for _, mapped := range ApplyHierarchy(levels, levelMappings) {
			if _, ok := seen[mapped]; ok {
				continue
			}
			seen[mapped] = struct{}{}
			out = append(out, mapped)
		}
	}
	return out
}

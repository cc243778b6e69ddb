package solrupdate

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/Ramsey-B/recordmanager/internal/dedup"
	"github.com/Ramsey-B/recordmanager/internal/store"
)

// sortByComponentSuffix orders component parts by their trailing numeric
// suffix, the same stable ordering the Dedup Engine's co-dedup matching
// uses, so a host's merged document lists its parts in a predictable order.
func sortByComponentSuffix(parts []store.Record) {
	sort.SliceStable(parts, func(i, j int) bool {
		ni, oki := dedup.ComponentSuffix(parts[i].ID)
		nj, okj := dedup.ComponentSuffix(parts[j].ID)
		if oki && okj {
			return ni < nj
		}
		return parts[i].ID < parts[j].ID
	})
}

// appendUnique appends vals to existing, preserving first-seen order and
// skipping values already present.
func appendUnique(existing []string, vals ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[v] = struct{}{}
	}
	for _, v := range vals {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		existing = append(existing, v)
	}
	return existing
}

// toAnyMap adapts a driver/combine-stage document to the map[string]any
// shape fieldmapper.Set.MapValues expects.
func toAnyMap(doc map[string][]string) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// dropEmptyValues removes empty strings from every field and deletes any
// field left with no values at all.
func dropEmptyValues(doc map[string][]string) {
	for field, vals := range doc {
		kept := vals[:0]
		for _, v := range vals {
			if v != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			delete(doc, field)
		} else {
			doc[field] = kept
		}
	}
}

// setDefault fills field with value unless already present (e.g. supplied
// by the driver or Field Mapper) or value is itself empty.
func setDefault(doc map[string][]string, field, value string) {
	if value == "" {
		return
	}
	if _, ok := doc[field]; ok {
		return
	}
	doc[field] = []string{value}
}

// alreadyHierarchical matches a building value already in the exploded
// "{level}/..." form, so a driver that produces hierarchy-encoded values
// directly is never re-exploded.
var alreadyHierarchical = regexp.MustCompile(`^\d+/`)

// explodeBuilding turns a mapped, cumulative-path `building` sequence (each
// value the full path to that hierarchy level, as the Field Mapper's
// hierarchical mapping type produces) into the ordered "0/inst",
// "1/inst/lvl1", ... sequence Solr's building facet expects. A no-op if
// building is absent/empty or already in that exploded form.
func explodeBuilding(doc map[string][]string, institution string) {
	vals, ok := doc["building"]
	if !ok || len(vals) == 0 {
		return
	}
	for _, v := range vals {
		if alreadyHierarchical.MatchString(v) {
			return
		}
	}
	if institution == "" {
		institution = "Inst"
	}

	out := make([]string, 0, len(vals)+1)
	out = append(out, "0/"+institution)
	for i, v := range vals {
		out = append(out, fmt.Sprintf("%d/%s/%s", i+1, institution, v))
	}
	doc["building"] = out
}

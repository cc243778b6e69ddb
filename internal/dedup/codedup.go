package dedup

import (
	"sort"

	"github.com/Ramsey-B/recordmanager/internal/driver"
)

// MatchComponentSequences implements component-part co-dedup: when host H
// is merged into a group with host H' from another source, their component
// parts are ordered by the numeric suffix of their ids and grouped only if
// the full sequences align — same length, pairwise match under the same
// predicate used for top-level records. A partial alignment leaves every
// component part unduplicated rather than guessing a partial pairing.
func (e *Engine) MatchComponentSequences(a, b []ComponentPart) [][2]string {
	orderedA := orderByIDSuffix(a)
	orderedB := orderByIDSuffix(b)

	if len(orderedA) == 0 || len(orderedA) != len(orderedB) {
		return nil
	}

	pairs := make([][2]string, 0, len(orderedA))
	for i := range orderedA {
		if !e.isMatch(orderedA[i].Features, orderedB[i].Features) {
			return nil
		}
		pairs = append(pairs, [2]string{orderedA[i].ID, orderedB[i].ID})
	}
	return pairs
}

// ComponentPart pairs a component record's id with its decoded dedup features.
type ComponentPart struct {
	ID       string
	Features driver.Features
}

func orderByIDSuffix(parts []ComponentPart) []ComponentPart {
	out := make([]ComponentPart, len(parts))
	copy(out, parts)
	sort.SliceStable(out, func(i, j int) bool {
		si, hasI := ComponentSuffix(out[i].ID)
		sj, hasJ := ComponentSuffix(out[j].ID)
		if hasI && hasJ {
			return si < sj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

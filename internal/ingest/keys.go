package ingest

import (
	"strings"

	"github.com/Ramsey-B/recordmanager/internal/driver"
	"github.com/Ramsey-B/recordmanager/internal/normalize"
)

// titleKeyPrefix concatenates leading words of title until either 3 words
// of length > 3 are seen or 25 significant characters have accumulated,
// then normalizes the result: lowercase, diacritics stripped, punctuation
// and control characters removed, whitespace collapsed.
func titleKeyPrefix(title string) string {
	words := strings.Fields(title)
	var chosen []string
	longWords := 0
	chars := 0

	for _, w := range words {
		chosen = append(chosen, w)
		chars += len(w)
		if len(w) > 3 {
			longWords++
		}
		if longWords >= 3 || chars >= 25 {
			break
		}
	}

	prefix := strings.Join(chosen, " ")
	prefix = normalize.StripDiacritics(prefix)
	prefix = normalize.Lowercase(prefix)
	prefix = normalize.RemovePunctuation(prefix)
	prefix = stripControl(prefix)
	return normalize.CollapseSpaces(prefix)
}

func stripControl(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 0x20 && r != 0x7f {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// blockingKeys derives title_keys and isbn_keys from a driver's dedup
// features; it produces no id_keys.
func blockingKeys(f driver.Features) (titleKeys, isbnKeys []string) {
	if f.Title != "" {
		titleKeys = []string{titleKeyPrefix(f.Title)}
	}
	for _, raw := range f.ISBNs {
		if key, ok := normalizeISBN(raw); ok {
			isbnKeys = append(isbnKeys, key)
		}
	}
	return titleKeys, isbnKeys
}

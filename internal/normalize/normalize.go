// Package normalize implements RecordManager's named field transforms:
// functions applied to extracted metadata values before they are written
// into match-index keys or the stored normalized_data document, following
// the same registry-of-named-functions convention as the reference
// repository's field normalizers, extended with diacritic stripping via
// golang.org/x/text since nothing in the registry covered it.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Func normalizes a single string value.
type Func func(string) string

var registry = make(map[string]Func)

func init() {
	Register("lowercase", Lowercase)
	Register("uppercase", Uppercase)
	Register("trim", Trim)
	Register("remove_whitespace", RemoveWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("alphanumeric", Alphanumeric)
	Register("digits_only", DigitsOnly)
	Register("strip_diacritics", StripDiacritics)
	Register("title_key", TitleKey)
	Register("isbn_key", ISBNKey)
	Register("collapse_spaces", CollapseSpaces)
}

// Register adds a named normalizer, overwriting any existing one of the
// same name (mapping files may register source-specific variants).
func Register(name string, fn Func) {
	registry[name] = fn
}

// Get retrieves a normalizer by name.
func Get(name string) (Func, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to value; an unknown name passes value
// through unchanged rather than erroring, matching the reference
// registry's permissive behavior for forward-compatible mapping files.
func Apply(value, name string) string {
	fn, ok := registry[name]
	if !ok {
		return value
	}
	return fn(value)
}

// Chain applies a sequence of named normalizers in order.
func Chain(value string, names ...string) string {
	for _, name := range names {
		value = Apply(value, name)
	}
	return value
}

// Lowercase converts value to lowercase.
func Lowercase(s string) string { return strings.ToLower(s) }

// Uppercase converts value to uppercase.
func Uppercase(s string) string { return strings.ToUpper(s) }

// Trim removes leading and trailing whitespace.
func Trim(s string) string { return strings.TrimSpace(s) }

// RemoveWhitespace strips every whitespace rune.
func RemoveWhitespace(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CollapseSpaces reduces runs of whitespace to a single space and trims the ends.
func CollapseSpaces(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// RemovePunctuation strips every punctuation rune.
func RemovePunctuation(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Alphanumeric keeps only letters and digits.
func Alphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DigitsOnly keeps only digit characters.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripDiacritics transliterates accented Latin characters to their
// unaccented form (e.g. "Müller" -> "Muller"), so title/author matching
// is not defeated by a source's choice of diacritic encoding.
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// ISBNKey normalizes an ISBN for exact-match comparison: strips hyphens
// and whitespace and uppercases any trailing check-digit "x".
func ISBNKey(s string) string {
	s = DigitsOnlyKeepX(s)
	return strings.ToUpper(s)
}

// DigitsOnlyKeepX keeps digits and the ISBN-10 check character X/x.
func DigitsOnlyKeepX(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == 'x' || r == 'X' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// titleStopwords are leading articles dropped before computing a blocking key.
var titleStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {},
}

// TitleKey derives a blocking key from a title: strip diacritics and
// punctuation, lowercase, drop a single leading article, and collapse
// whitespace. Two titles differing only by punctuation, case, diacritics,
// or a leading article yield the same key.
func TitleKey(s string) string {
	s = StripDiacritics(s)
	s = Lowercase(s)
	s = RemovePunctuation(s)
	s = CollapseSpaces(s)

	fields := strings.Fields(s)
	if len(fields) > 1 {
		if _, isStopword := titleStopwords[fields[0]]; isStopword {
			fields = fields[1:]
		}
	}
	return strings.Join(fields, " ")
}

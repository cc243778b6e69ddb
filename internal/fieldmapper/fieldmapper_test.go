package fieldmapper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_NormalWithDefault(t *testing.T) {
	src := "book = Book\njournal = Serial\n##default = Unknown\n"
	m, err := Parse("format", Normal, strings.NewReader(src))
	require.NoError(t, err)

	mapped, ok := m.Apply("book")
	require.True(t, ok)
	assert.Equal(t, "Book", mapped)

	mapped, ok = m.Apply("magazine")
	require.True(t, ok)
	assert.Equal(t, "Unknown", mapped)
}

func TestParse_MissingSeparatorFails(t *testing.T) {
	_, err := Parse("format", Normal, strings.NewReader("book Book\n"))
	require.Error(t, err)
}

func TestRegexp_FirstMatchWins(t *testing.T) {
	src := "^ebook.*$ = Electronic\n^book.*$ = Print\n"
	m, err := Parse("format", Regexp, strings.NewReader(src))
	require.NoError(t, err)

	mapped, ok := m.Apply("ebook-v2")
	require.True(t, ok)
	assert.Equal(t, "Electronic", mapped)
}

func TestRegexpMulti_EveryMatchContributes(t *testing.T) {
	src := "fiction = Fiction\nya = Young Adult\n"
	m, err := Parse("genre", RegexpMulti, strings.NewReader(src))
	require.NoError(t, err)

	values := m.ApplyMulti("fiction-ya-crossover")
	assert.ElementsMatch(t, []string{"Fiction-ya-crossover", "fiction-Young Adult-crossover"}, values)
}

func TestApplyArray_DeduplicatesPreservingOrder(t *testing.T) {
	src := "a = X\nb = X\nc = Y\n"
	m, err := Parse("tag", Normal, strings.NewReader(src))
	require.NoError(t, err)

	out := m.ApplyArray([]string{"a", "b", "c"})
	assert.Equal(t, []string{"X", "Y"}, out)
}

func TestApplyHierarchy_TruncatesOnEmptyLevel(t *testing.T) {
	got := ApplyHierarchy([]string{"Fiction", "", "Mystery"}, nil)
	assert.Equal(t, []string{"Fiction"}, got)
}

func TestApplyHierarchy_CumulativeMultiValuedOutput(t *testing.T) {
	level0, err := Parse("building", Hierarchy, strings.NewReader("A1 = A\n"))
	require.NoError(t, err)
	level1, err := Parse("building", Hierarchy, strings.NewReader("2 = 2\n"))
	require.NoError(t, err)

	got := ApplyHierarchy([]string{"A1", "2"}, []*Mapping{level0, level1})
	assert.Equal(t, []string{"A", "A/2"}, got)
}

func TestSet_MapValues(t *testing.T) {
	formatMapping, err := Parse("format", Normal, strings.NewReader("book = Book\n"))
	require.NoError(t, err)
	set := NewSet(formatMapping)

	out := set.MapValues(map[string]any{"format": "book", "untracked": "x"})
	assert.Equal(t, []string{"Book"}, out["format"])
	_, present := out["untracked"]
	assert.False(t, present)
}

package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleKey(t *testing.T) {
	cases := []struct {
		name string
		a, b string
	}{
		{"case and punctuation", "The Great Gatsby!", "the great gatsby"},
		{"diacritics", "Über den Fluss", "uber den fluss"},
		{"leading article", "A Tale of Two Cities", "tale of two cities"},
		{"extra whitespace", "Moby   Dick", "moby dick"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, TitleKey(tc.b), TitleKey(tc.a))
		})
	}
}

func TestISBNKey(t *testing.T) {
	assert.Equal(t, "043942089X", ISBNKey("0-439-42089-x"))
	assert.Equal(t, "9780439420891", ISBNKey("978-0-439-42089-1"))
}

func TestChain(t *testing.T) {
	got := Chain("  HELLO, World!  ", "trim", "lowercase", "remove_punctuation")
	assert.Equal(t, "hello world", got)
}

func TestApply_UnknownNormalizerPassesThrough(t *testing.T) {
	assert.Equal(t, "unchanged", Apply("unchanged", "not_a_real_normalizer"))
}

func TestStripDiacritics(t *testing.T) {
	assert.Equal(t, "Muller", StripDiacritics("Müller"))
	assert.Equal(t, "cafe", StripDiacritics("café"))
}

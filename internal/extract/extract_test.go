package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_SimplePath(t *testing.T) {
	data := map[string]any{
		"name": "Moby Dick",
		"author": map[string]any{
			"family": "Melville",
		},
	}

	v, err := Value(data, "author.family")
	require.NoError(t, err)
	assert.Equal(t, "Melville", v)
}

func TestValue_ArrayIndex(t *testing.T) {
	data := map[string]any{
		"authors": []any{"Melville", "Hawthorne"},
	}

	v, err := Value(data, "authors[0]")
	require.NoError(t, err)
	assert.Equal(t, "Melville", v)

	v, err = Value(data, "authors[5]")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestAll_Wildcard(t *testing.T) {
	data := map[string]any{
		"identifiers": []any{
			map[string]any{"type": "isbn", "value": "123"},
			map[string]any{"type": "issn", "value": "456"},
		},
	}

	values, err := All(data, "identifiers[*].value")
	require.NoError(t, err)
	assert.Equal(t, []any{"123", "456"}, values)
}

func TestString(t *testing.T) {
	data := map[string]any{"count": float64(3)}

	s, ok, err := String(data, "count")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3", s)

	_, ok, err = String(data, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValue_MissingKeyReturnsNilNotError(t *testing.T) {
	data := map[string]any{"title": "x"}

	v, err := Value(data, "subtitle")
	require.NoError(t, err)
	assert.Nil(t, v)
}

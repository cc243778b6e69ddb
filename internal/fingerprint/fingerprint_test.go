package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"title": "Dune", "year": float64(1965)}
	b := map[string]any{"year": float64(1965), "title": "Dune"}

	assert.Equal(t, Of(a), Of(b))
}

func TestOf_DetectsChange(t *testing.T) {
	a := map[string]any{"title": "Dune"}
	b := map[string]any{"title": "Dune Messiah"}

	assert.True(t, Changed(Of(a), Of(b)))
}

func TestOf_NestedArraysOrderSensitive(t *testing.T) {
	a := map[string]any{"authors": []any{"Herbert", "Anderson"}}
	b := map[string]any{"authors": []any{"Anderson", "Herbert"}}

	assert.NotEqual(t, Of(a), Of(b))
}

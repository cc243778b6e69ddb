package enrich

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorityEnricher_AppendsFetchedValue(t *testing.T) {
	e, srv, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Name for " + id))
	})

	a := NewAuthorityEnricher(e, "viaf", srv.URL+"/", "author_viaf_id", "author_viaf_label", nil)
	doc := map[string][]string{"author_viaf_id": {"123"}}

	err := a.Enrich(t.Context(), "src", nil, doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name for 123"}, doc["author_viaf_label"])
}

func TestAuthorityEnricher_NoSourceValuesIsNoop(t *testing.T) {
	e, _, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not fetch when SourceField is empty")
	})

	a := NewAuthorityEnricher(e, "viaf", "http://unused/", "author_viaf_id", "author_viaf_label", nil)
	doc := map[string][]string{}

	require.NoError(t, a.Enrich(t.Context(), "src", nil, doc))
	assert.NotContains(t, doc, "author_viaf_label")
}

func TestAuthorityEnricher_NotFoundIsSkippedNotFailed(t *testing.T) {
	e, srv, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	a := NewAuthorityEnricher(e, "viaf", srv.URL+"/", "author_viaf_id", "author_viaf_label", nil)
	doc := map[string][]string{"author_viaf_id": {"missing"}}

	require.NoError(t, a.Enrich(t.Context(), "src", nil, doc))
	assert.NotContains(t, doc, "author_viaf_label")
}

func TestAuthorityEnricher_TransformOverridesRawBody(t *testing.T) {
	e, srv, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("raw,parts"))
	})

	a := NewAuthorityEnricher(e, "viaf", srv.URL+"/", "author_viaf_id", "author_viaf_label", func(body []byte) ([]string, error) {
		return strings.Split(string(body), ","), nil
	})
	doc := map[string][]string{"author_viaf_id": {"123"}}

	require.NoError(t, a.Enrich(t.Context(), "src", nil, doc))
	assert.Equal(t, []string{"raw", "parts"}, doc["author_viaf_label"])
}

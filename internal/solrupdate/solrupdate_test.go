package solrupdate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/recordmanager/internal/httpx"
	"github.com/Ramsey-B/recordmanager/internal/solr"
	"github.com/Ramsey-B/recordmanager/internal/store"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func forwardPayload(id, title, author string, isbns []string, extraFields map[string][]string) string {
	body := map[string]any{"id": id, "title": title, "author": author, "isbns": isbns, "fields": extraFields}
	encoded, _ := json.Marshal(body)
	return string(encoded)
}

func TestExplodeBuilding_MatchesMappedHierarchyExample(t *testing.T) {
	doc := map[string][]string{"building": {"A", "A/2"}}
	explodeBuilding(doc, "Inst")
	assert.Equal(t, []string{"0/Inst", "1/Inst/A", "2/Inst/A/2"}, doc["building"])
}

func TestExplodeBuilding_NoopWhenAlreadyHierarchical(t *testing.T) {
	doc := map[string][]string{"building": {"0/Inst", "1/Inst/A"}}
	explodeBuilding(doc, "Inst")
	assert.Equal(t, []string{"0/Inst", "1/Inst/A"}, doc["building"])
}

func TestExplodeBuilding_NoopWhenAbsent(t *testing.T) {
	doc := map[string][]string{}
	explodeBuilding(doc, "Inst")
	assert.NotContains(t, doc, "building")
}

func TestDropEmptyValues_RemovesEmptyStringsAndEmptyFields(t *testing.T) {
	doc := map[string][]string{
		"title_t":  {"Dune"},
		"author_t": {""},
		"subject":  {"", "SciFi", ""},
	}
	dropEmptyValues(doc)
	assert.Equal(t, []string{"Dune"}, doc["title_t"])
	assert.NotContains(t, doc, "author_t")
	assert.Equal(t, []string{"SciFi"}, doc["subject"])
}

func TestAppendUnique_PreservesFirstSeenOrderAndSkipsDuplicates(t *testing.T) {
	got := appendUnique([]string{"a", "b"}, "b", "c", "a")
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSetDefault_SkipsWhenAlreadyPresentOrValueEmpty(t *testing.T) {
	doc := map[string][]string{"institution": {"Existing"}}
	setDefault(doc, "institution", "Fallback")
	assert.Equal(t, []string{"Existing"}, doc["institution"])

	setDefault(doc, "collection", "")
	assert.NotContains(t, doc, "collection")

	setDefault(doc, "recordtype", "Book")
	assert.Equal(t, []string{"Book"}, doc["recordtype"])
}

func TestParameterHash_StableForSameScopeAndDistinctAcrossScopes(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := parameterHash(RunOptions{SourceFilter: "src1", FromDate: from})
	b := parameterHash(RunOptions{SourceFilter: "src1", FromDate: from})
	c := parameterHash(RunOptions{SourceFilter: "src2", FromDate: from})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestBuildPlainDoc_ReconstructsDriverAndSetsDefaults(t *testing.T) {
	rec := &store.Record{
		ID:           "plain.1",
		SourceID:     "src1",
		Format:       "forward",
		OriginalData: forwardPayload("m1", "Dune", "Herbert, Frank", []string{"9780441013593"}, nil),
	}
	sc := SourceConfig{Institution: "MyLib", RecordType: "Book", Collection: "main"}
	p := &Pipeline{}

	doc, err := p.buildPlainDoc(context.Background(), rec, sc)
	require.NoError(t, err)

	assert.Equal(t, []string{"plain.1"}, doc["id"])
	assert.Equal(t, []string{"Dune"}, doc["title_t"])
	assert.Equal(t, []string{"MyLib"}, doc["institution"])
	assert.Equal(t, []string{"Book"}, doc["recordtype"])
	assert.Equal(t, []string{"main"}, doc["collection"])
	assert.NotEmpty(t, doc["first_indexed"])
	assert.NotEmpty(t, doc["last_indexed"])
}

func TestBuildGroupDoc_UnionsMultiValuedAndFirstNonEmptyForSingleValued(t *testing.T) {
	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	members := []store.Record{
		{
			ID: "g.m2", SourceID: "src2", Format: "forward", Created: later,
			OriginalData: forwardPayload("m2", "Dune (alt)", "Other Author", []string{"222"},
				map[string][]string{"subject_facet": {"Fiction"}}),
		},
		{
			ID: "g.m1", SourceID: "src1", Format: "forward", Created: earlier,
			OriginalData: forwardPayload("m1", "Dune", "Herbert, Frank", []string{"111"},
				map[string][]string{"subject_facet": {"SciFi"}}),
		},
	}
	sources := map[string]SourceConfig{
		"src1": {Institution: "Inst1", MultiValuedFields: map[string]bool{"subject_facet": true, "isbn_t": true}},
		"src2": {Institution: "Inst2", MultiValuedFields: map[string]bool{"subject_facet": true, "isbn_t": true}},
	}
	p := &Pipeline{}

	doc, err := p.buildGroupDoc(context.Background(), "grp.1", members, sources)
	require.NoError(t, err)

	assert.Equal(t, []string{"grp.1"}, doc["id"])
	assert.Equal(t, []string{"true"}, doc["merged_boolean"])
	assert.ElementsMatch(t, []string{"SciFi", "Fiction"}, doc["subject_facet"])
	assert.ElementsMatch(t, []string{"111", "222"}, doc["isbn_t"])
	// title_t is single-valued (not listed in MultiValuedFields): first non-empty
	// by Created order wins, i.e. the earlier member (m1)'s value.
	assert.Equal(t, []string{"Dune"}, doc["title_t"])
	assert.Equal(t, []string{"Inst1"}, doc["institution"])
}

func TestBuildGroupDoc_ErrorsWhenNoMemberHasConfiguredSource(t *testing.T) {
	members := []store.Record{{ID: "g.m1", SourceID: "unconfigured", Format: "forward", OriginalData: forwardPayload("m1", "t", "a", nil, nil)}}
	p := &Pipeline{}
	_, err := p.buildGroupDoc(context.Background(), "grp.1", members, map[string]SourceConfig{})
	assert.Error(t, err)
}

func newSolrTestClient(t *testing.T, handler http.HandlerFunc) (*solr.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	hc := httpx.New(httpx.DefaultConfig(), testLogger())
	client := solr.New(hc, solr.Config{UpdateURL: srv.URL, SelectURL: srv.URL}, testLogger())
	return client, srv
}

func TestBatcherFlush_PostsBufferedDocsThenCommits(t *testing.T) {
	var bodies []string
	client, _ := newSolrTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(buf))
		w.WriteHeader(http.StatusOK)
	})

	p := &Pipeline{solr: client, cfg: DefaultConfig()}
	b := newBatcher(p, RunOptions{})

	added, diff, err := b.add(context.Background(), map[string][]string{"id": {"rec.1"}})
	require.NoError(t, err)
	assert.True(t, added)
	assert.False(t, diff)

	require.NoError(t, b.flush(context.Background()))
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], "rec.1")
	assert.Contains(t, bodies[1], "commit")
}

func TestBatcherDelete_PostsDeleteEnvelope(t *testing.T) {
	var body string
	client, _ := newSolrTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		body = string(buf)
		w.WriteHeader(http.StatusOK)
	})

	p := &Pipeline{solr: client, cfg: DefaultConfig()}
	b := newBatcher(p, RunOptions{})
	require.NoError(t, b.delete(context.Background(), "gone.1"))
	assert.Contains(t, body, `"id":"gone.1"`)
}

func TestBatcherDumpPrefix_WritesFilesInsteadOfPosting(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "batch")

	p := &Pipeline{cfg: DefaultConfig()}
	b := newBatcher(p, RunOptions{DumpPrefix: prefix})

	added, _, err := b.add(context.Background(), map[string][]string{"id": {"rec.1"}})
	require.NoError(t, err)
	assert.True(t, added)
	require.NoError(t, b.flush(context.Background()))

	entries, err := filepath.Glob(prefix + ".*.json")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	contents, err := os.ReadFile(entries[0])
	require.NoError(t, err)
	assert.Contains(t, string(contents), "rec.1")
}

func TestBatcherCompare_ReportsDiffAgainstIndexedDoc(t *testing.T) {
	client, _ := newSolrTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"response":{"docs":[{"id":"rec.1","title_t":"Old Title","_version_":123}]}}`))
	})
	p := &Pipeline{solr: client}
	b := newBatcher(p, RunOptions{Compare: true})

	added, diff, err := b.add(context.Background(), map[string][]string{"id": {"rec.1"}, "title_t": {"New Title"}})
	require.NoError(t, err)
	assert.False(t, added)
	assert.True(t, diff)
}

func TestBatcherCompare_NoDiffWhenIndexedMatchesComputed(t *testing.T) {
	client, _ := newSolrTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"response":{"docs":[{"id":"rec.1","title_t":["Same Title"],"_version_":123}]}}`))
	})
	p := &Pipeline{solr: client}
	b := newBatcher(p, RunOptions{Compare: true})

	_, diff, err := b.add(context.Background(), map[string][]string{"id": {"rec.1"}, "title_t": {"Same Title"}})
	require.NoError(t, err)
	assert.False(t, diff)
}

func TestDocEqualsIndexed_IgnoresVersionField(t *testing.T) {
	computed := map[string][]string{"title_t": {"Dune"}}
	indexed := map[string]any{"title_t": "Dune", "_version_": int64(42)}
	assert.True(t, docEqualsIndexed(computed, indexed))
}

func TestNormalizeSolrValue_FlattensArraysAndScalars(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, normalizeSolrValue([]any{"a", "b"}))
	assert.Equal(t, []string{"42"}, normalizeSolrValue(42))
	assert.Nil(t, normalizeSolrValue(nil))
}

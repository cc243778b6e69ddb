package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/recordmanager/internal/driver"
	"github.com/Ramsey-B/recordmanager/internal/httpx"
	"github.com/Ramsey-B/recordmanager/internal/store"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeCache struct {
	entries map[string]*store.URICacheEntry
	puts    int
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]*store.URICacheEntry{}} }

func (f *fakeCache) Get(ctx context.Context, id string) (*store.URICacheEntry, error) {
	return f.entries[id], nil
}

func (f *fakeCache) Put(ctx context.Context, entry *store.URICacheEntry) error {
	f.puts++
	f.entries[entry.ID] = entry
	return nil
}

type fakeEnricher struct {
	field, value string
	err          error
}

func (f *fakeEnricher) Enrich(ctx context.Context, sourceID string, d driver.Driver, doc map[string][]string) error {
	if f.err != nil {
		return f.err
	}
	doc[f.field] = []string{f.value}
	return nil
}

func TestRun_AppliesEnrichersInOrder(t *testing.T) {
	e := &Engine{logger: testLogger()}
	doc := map[string][]string{}
	err := e.Run(t.Context(), "src", nil, doc, []Enricher{
		&fakeEnricher{field: "a", value: "1"},
		&fakeEnricher{field: "b", value: "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, doc["a"])
	assert.Equal(t, []string{"2"}, doc["b"])
}

func TestRun_StopsOnFirstError(t *testing.T) {
	e := &Engine{logger: testLogger()}
	doc := map[string][]string{}
	boom := assert.AnError
	err := e.Run(t.Context(), "src", nil, doc, []Enricher{
		&fakeEnricher{field: "a", err: boom},
		&fakeEnricher{field: "b", value: "2"},
	})
	require.ErrorIs(t, err, boom)
	assert.NotContains(t, doc, "b")
}

func TestDefaultConfig_OneDayExpiration(t *testing.T) {
	assert.Equal(t, 24*time.Hour, DefaultConfig().CacheExpiration)
}

func newTestEngine(t *testing.T, handler http.HandlerFunc) (*Engine, *httptest.Server, *fakeCache) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cache := newFakeCache()
	hc := httpx.New(httpx.DefaultConfig(), testLogger())
	return New(cache, hc, DefaultConfig(), testLogger()), srv, cache
}

func TestFetchAuthority_CacheMissFetchesAndCaches(t *testing.T) {
	calls := 0
	e, srv, cache := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("authority body"))
	})

	body, err := e.FetchAuthority(t.Context(), "auth-1", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "authority body", string(body))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, cache.puts)
}

func TestFetchAuthority_FreshCacheHitSkipsFetch(t *testing.T) {
	calls := 0
	e, srv, cache := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("fresh fetch"))
	})
	cache.entries["auth-1"] = &store.URICacheEntry{ID: "auth-1", Body: "cached body", Timestamp: time.Now().UTC()}

	body, err := e.FetchAuthority(t.Context(), "auth-1", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "cached body", string(body))
	assert.Equal(t, 0, calls)
}

func TestFetchAuthority_ExpiredCacheEntryRefetches(t *testing.T) {
	calls := 0
	e, srv, cache := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("refetched"))
	})
	cache.entries["auth-1"] = &store.URICacheEntry{
		ID: "auth-1", Body: "stale body", Timestamp: time.Now().UTC().Add(-48 * time.Hour),
	}

	body, err := e.FetchAuthority(t.Context(), "auth-1", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "refetched", string(body))
	assert.Equal(t, 1, calls)
}

func TestFetchAuthority_404IsParseError(t *testing.T) {
	e, srv, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := e.FetchAuthority(t.Context(), "auth-1", srv.URL)
	require.Error(t, err)
}

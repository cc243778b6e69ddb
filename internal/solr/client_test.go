package solr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/recordmanager/internal/httpx"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	cfg := httpx.DefaultConfig()
	cfg.MaxTries = 1
	hc := httpx.New(cfg, testLogger())
	return New(hc, Config{UpdateURL: srv.URL}, testLogger()), srv
}

func TestAdd_PostsJSONArray(t *testing.T) {
	var gotBody []map[string]any
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	err := client.Add(t.Context(), []map[string]any{{"id": "a.1", "title": "One"}})
	require.NoError(t, err)
	assert.Equal(t, "a.1", gotBody[0]["id"])
}

func TestAdd_EmptyDocsSkipsRequest(t *testing.T) {
	called := false
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	require.NoError(t, client.Add(t.Context(), nil))
	assert.False(t, called)
}

func TestDeleteByID_PostsDeleteEnvelope(t *testing.T) {
	var gotBody deleteEnvelope
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	require.NoError(t, client.DeleteByID(t.Context(), "a.1"))
	assert.Equal(t, "a.1", gotBody.Delete.ID)
	assert.Empty(t, gotBody.Delete.Query)
}

func TestDeleteByQuery_PostsQueryEnvelope(t *testing.T) {
	var gotBody deleteEnvelope
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	require.NoError(t, client.DeleteByQuery(t.Context(), "id:a.*"))
	assert.Equal(t, "id:a.*", gotBody.Delete.Query)
}

func TestCommit_PostsCommitEnvelope(t *testing.T) {
	var gotBody map[string]any
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	require.NoError(t, client.Commit(t.Context()))
	assert.Contains(t, gotBody, "commit")
}

func TestOptimize_PostsOptimizeEnvelope(t *testing.T) {
	var gotBody map[string]any
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	require.NoError(t, client.Optimize(t.Context()))
	assert.Contains(t, gotBody, "optimize")
}

func TestPost_NonSuccessStatusIncludesBody(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("core unavailable"))
	})
	defer srv.Close()

	err := client.Commit(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "core unavailable")
}

func TestUsernameSet_SendsBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	var ok bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, ok = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hc := httpx.New(httpx.DefaultConfig(), testLogger())
	client := New(hc, Config{UpdateURL: srv.URL, Username: "solr", Password: "secret"}, testLogger())

	require.NoError(t, client.Commit(t.Context()))
	assert.True(t, ok)
	assert.Equal(t, "solr", gotUser)
	assert.Equal(t, "secret", gotPass)
}

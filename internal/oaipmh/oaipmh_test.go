package oaipmh

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/recordmanager/internal/httpx"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

const listRecordsBody = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH>
  <ListRecords>
    <record>
      <header>
        <identifier>oai:example.org:1</identifier>
        <datestamp>2026-01-01T00:00:00Z</datestamp>
      </header>
      <metadata><dc:title xmlns:dc="http://purl.org/dc/elements/1.1/">Dune</dc:title></metadata>
    </record>
    <record>
      <header status="deleted">
        <identifier>oai:example.org:2</identifier>
        <datestamp>2026-01-01T00:00:00Z</datestamp>
      </header>
    </record>
    <resumptionToken completeListSize="2" cursor="0">abc123</resumptionToken>
  </ListRecords>
</OAI-PMH>`

const noRecordsMatchBody = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH><error code="noRecordsMatch">no records match</error></OAI-PMH>`

func newTestFetcher(t *testing.T, handler http.HandlerFunc) (*Fetcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	hc := httpx.New(httpx.DefaultConfig(), testLogger())
	f := NewFetcher(hc, Config{Endpoint: srv.URL, MetadataPrefix: "oai_dc"}, testLogger())
	return f, srv
}

func TestFetchPage_ParsesEntriesAndResumptionToken(t *testing.T) {
	var gotQuery string
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(listRecordsBody))
	})

	page, err := f.FetchPage(t.Context(), time.Time{}, time.Time{}, "")
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)

	assert.Equal(t, "oai:example.org:1", page.Entries[0].OAIID)
	assert.False(t, page.Entries[0].Deleted)
	assert.Contains(t, string(page.Entries[0].Payload), "Dune")

	assert.Equal(t, "oai:example.org:2", page.Entries[1].OAIID)
	assert.True(t, page.Entries[1].Deleted)

	assert.Equal(t, "abc123", page.NextToken)
	assert.True(t, page.HasMore)
	assert.Contains(t, gotQuery, "verb=ListRecords")
	assert.Contains(t, gotQuery, "metadataPrefix=oai_dc")
}

func TestFetchPage_ResumptionTokenRequestOmitsMetadataPrefix(t *testing.T) {
	var gotQuery string
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<OAI-PMH><ListRecords></ListRecords></OAI-PMH>`))
	})

	_, err := f.FetchPage(t.Context(), time.Time{}, time.Time{}, "abc123")
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "resumptionToken=abc123")
	assert.NotContains(t, gotQuery, "metadataPrefix")
}

func TestFetchPage_NoRecordsMatchIsEmptyNotError(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(noRecordsMatchBody))
	})

	page, err := f.FetchPage(t.Context(), time.Time{}, time.Time{}, "")
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.False(t, page.HasMore)
}

func TestFetchPage_OtherErrorCodeFails(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<OAI-PMH><error code="badArgument">missing verb</error></OAI-PMH>`))
	})

	_, err := f.FetchPage(t.Context(), time.Time{}, time.Time{}, "")
	require.Error(t, err)
}

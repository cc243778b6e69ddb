// Package enrich implements the Enrichment step: per-document enrichers run
// after a driver's toSolrArray and after the Field Mapper, each free to
// mutate the document in place. The common authority-lookup pattern —
// cache-first, HTTP-GET-on-miss — is provided as FetchAuthority so
// individual Enrichers don't each reimplement the cache/retry dance.
package enrich

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/recordmanager/internal/driver"
	"github.com/Ramsey-B/recordmanager/internal/httpx"
	"github.com/Ramsey-B/recordmanager/internal/rmerror"
	"github.com/Ramsey-B/recordmanager/internal/store"
	"github.com/Ramsey-B/recordmanager/internal/telemetry"
)

// Enricher mutates doc given the source a record came from and the driver
// that produced it; it may fetch outside data (typically via FetchAuthority)
// and add, replace, or remove fields.
type Enricher interface {
	Enrich(ctx context.Context, sourceID string, d driver.Driver, doc map[string][]string) error
}

// Config carries the recordmanager.ini [Enrichment]/[AuthorityEnrichment]
// settings this package needs.
type Config struct {
	CacheExpiration time.Duration
}

// DefaultConfig returns a one-day cache expiration.
func DefaultConfig() Config {
	return Config{CacheExpiration: 24 * time.Hour}
}

// URICache is the subset of store.URICacheRepository FetchAuthority needs.
type URICache interface {
	Get(ctx context.Context, id string) (*store.URICacheEntry, error)
	Put(ctx context.Context, entry *store.URICacheEntry) error
}

// Engine runs a document through every configured Enricher in order and
// provides the shared URI-cache-first authority fetch.
type Engine struct {
	cache  URICache
	http   *httpx.Client
	cfg    Config
	logger ectologger.Logger
}

// New constructs an Engine.
func New(cache URICache, http *httpx.Client, cfg Config, logger ectologger.Logger) *Engine {
	return &Engine{cache: cache, http: http, cfg: cfg, logger: logger}
}

// Run applies enrichers in order, stopping at the first error.
func (e *Engine) Run(ctx context.Context, sourceID string, d driver.Driver, doc map[string][]string, enrichers []Enricher) error {
	ctx, span := telemetry.StartSpan(ctx, "enrich.Engine.Run")
	defer span.End()

	for _, enricher := range enrichers {
		if err := enricher.Enrich(ctx, sourceID, d, doc); err != nil {
			return err
		}
	}
	return nil
}

// FetchAuthority implements the cache-first, GET-on-miss authority lookup
// spec.md §4.8 describes: a URI Cache hit younger than CacheExpiration is
// returned as-is; otherwise url is fetched with retry (internal/httpx),
// the result is persisted (duplicate-key races ignored), and its body is
// returned. A non-ignored non-404 error fails the enrichment.
func (e *Engine) FetchAuthority(ctx context.Context, id, url string) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, "enrich.Engine.FetchAuthority")
	defer span.End()

	cached, err := e.cache.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cached != nil && !cached.Expired(time.Now().UTC(), e.cfg.CacheExpiration) {
		return []byte(cached.Body), nil
	}

	resp, err := e.http.Get(ctx, url, nil)
	if err != nil {
		return nil, rmerror.TransientNetworkf("fetch authority %s: %v", id, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: authority %s not found at %s", rmerror.ErrParse, id, url)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, rmerror.TransientNetworkf("fetch authority %s: status %d", id, resp.StatusCode)
	}

	entry := &store.URICacheEntry{ID: id, URL: url, Body: string(resp.Body), Timestamp: time.Now().UTC()}
	if err := e.cache.Put(ctx, entry); err != nil {
		return nil, err
	}

	return resp.Body, nil
}

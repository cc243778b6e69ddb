// Package solr implements the thin JSON-over-HTTP wire client the Merge &
// Solr Update Pipeline sends documents through: add, delete-by-id,
// delete-by-query, commit, and optimize, each a single POST of a small JSON
// envelope to the configured update endpoint.
package solr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/recordmanager/internal/httpx"
)

// Config carries the per-deployment Solr connection settings from the
// recordmanager.ini [Solr] section.
type Config struct {
	UpdateURL string
	SelectURL string // optional; only needed by Get (the Update Pipeline's compare mode)
	Username  string // optional; basic auth is used when both are set
	Password  string
}

// Client posts update envelopes to a Solr core's JSON update endpoint.
type Client struct {
	http   *httpx.Client
	cfg    Config
	logger ectologger.Logger
}

// New constructs a Client over an already-configured httpx.Client.
func New(http *httpx.Client, cfg Config, logger ectologger.Logger) *Client {
	return &Client{http: http, cfg: cfg, logger: logger}
}

// deleteEnvelope is the delete-by-id/delete-by-query JSON shape.
type deleteEnvelope struct {
	Delete deleteBody `json:"delete"`
}

type deleteBody struct {
	ID    string `json:"id,omitempty"`
	Query string `json:"query,omitempty"`
}

// Add posts docs, each a keyed field map produced by a driver's
// toSolrArray/mergeComponentParts combination, as a single JSON array.
func (c *Client) Add(ctx context.Context, docs []map[string]any) error {
	if len(docs) == 0 {
		return nil
	}
	return c.post(ctx, docs)
}

// DeleteByID issues a Solr delete for a single document id.
func (c *Client) DeleteByID(ctx context.Context, id string) error {
	return c.post(ctx, deleteEnvelope{Delete: deleteBody{ID: id}})
}

// DeleteByQuery issues a Solr delete-by-query, used by deleteDataSource to
// remove every document whose id starts with a source's idPrefix.
func (c *Client) DeleteByQuery(ctx context.Context, query string) error {
	return c.post(ctx, deleteEnvelope{Delete: deleteBody{Query: query}})
}

// Commit issues an explicit commit.
func (c *Client) Commit(ctx context.Context) error {
	return c.post(ctx, map[string]any{"commit": map[string]any{}})
}

// Optimize issues a Solr optimize, typically run once at the end of a full
// reindex via `manage --func=optimizesolr`.
func (c *Client) Optimize(ctx context.Context) error {
	return c.post(ctx, map[string]any{"optimize": map[string]any{}})
}

// selectResponse is the subset of a Solr /select JSON response Get needs.
type selectResponse struct {
	Response struct {
		Docs []map[string]any `json:"docs"`
	} `json:"response"`
}

// Get fetches the currently-indexed document for id from Config.SelectURL,
// used only by the Update Pipeline's compare mode to diff against what it
// is about to write. Returns (nil, false, nil) if no document is indexed.
func (c *Client) Get(ctx context.Context, id string) (map[string]any, bool, error) {
	if c.cfg.SelectURL == "" {
		return nil, false, fmt.Errorf("solr: compare mode requires Config.SelectURL")
	}

	url := fmt.Sprintf("%s?q=id:%s&wt=json", c.cfg.SelectURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("solr: build select request: %w", err)
	}
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, false, fmt.Errorf("solr: select request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("solr: select endpoint returned %d: %s", resp.StatusCode, string(resp.Body))
	}

	var parsed selectResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, false, fmt.Errorf("solr: parse select response: %w", err)
	}
	if len(parsed.Response.Docs) == 0 {
		return nil, false, nil
	}
	return parsed.Response.Docs[0], true, nil
}

func (c *Client) post(ctx context.Context, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("solr: marshal update body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UpdateURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("solr: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("solr: update request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("solr: update endpoint returned %d: %s", resp.StatusCode, string(resp.Body))
	}
	return nil
}

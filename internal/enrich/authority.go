package enrich

import (
	"context"
	"errors"

	"github.com/Ramsey-B/recordmanager/internal/driver"
	"github.com/Ramsey-B/recordmanager/internal/rmerror"
)

// AuthorityEnricher is the authority-lookup pattern FetchAuthority supports:
// for each value of SourceField (an authority identifier, e.g. a VIAF id),
// fetch BaseURL+id, transform the response body, and append the result to
// TargetField. Missing authorities (a 404 from FetchAuthority) are skipped
// rather than failing the whole document.
type AuthorityEnricher struct {
	Name        string
	BaseURL     string
	SourceField string
	TargetField string
	// Transform converts a fetched authority record body into the document
	// values it contributes; a nil Transform appends the raw body unchanged.
	Transform func(body []byte) ([]string, error)

	engine *Engine
}

// NewAuthorityEnricher builds an AuthorityEnricher bound to engine's cache
// and HTTP client, for the [AuthorityEnrichment] baseURLs settings describe.
func NewAuthorityEnricher(engine *Engine, name, baseURL, sourceField, targetField string, transform func(body []byte) ([]string, error)) *AuthorityEnricher {
	return &AuthorityEnricher{
		Name:        name,
		BaseURL:     baseURL,
		SourceField: sourceField,
		TargetField: targetField,
		Transform:   transform,
		engine:      engine,
	}
}

// Enrich fetches and appends an authority value for every id in SourceField.
func (a *AuthorityEnricher) Enrich(ctx context.Context, sourceID string, d driver.Driver, doc map[string][]string) error {
	ids := doc[a.SourceField]
	if len(ids) == 0 {
		return nil
	}

	for _, id := range ids {
		body, err := a.engine.FetchAuthority(ctx, a.Name+":"+id, a.BaseURL+id)
		if err != nil {
			if errors.Is(err, rmerror.ErrParse) {
				continue // authority not found; leave TargetField as-is
			}
			return err
		}

		values := []string{string(body)}
		if a.Transform != nil {
			values, err = a.Transform(body)
			if err != nil {
				return err
			}
		}
		doc[a.TargetField] = append(doc[a.TargetField], values...)
	}
	return nil
}

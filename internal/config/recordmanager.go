package config

import (
	"os"
	"strconv"
	"time"

	"github.com/Ramsey-B/recordmanager/internal/enrich"
	"github.com/Ramsey-B/recordmanager/internal/solr"
)

// SiteSettings is the recordmanager.ini [Site] section: deployment-wide
// identity and defaults that don't belong to any one subsystem.
type SiteSettings struct {
	Institution string
	URL         string
}

// RecordManagerSettings is recordmanager.ini fully parsed: one struct per
// section, each handed directly to the package that owns that concern.
type RecordManagerSettings struct {
	Site      SiteSettings
	Solr      solr.Config
	Enrich    enrich.Config
	Authority AuthoritySettings
}

// AuthoritySettings is the [AuthorityEnrichment] section: the base URL an
// authority lookup enricher fetches from, keyed by authority name (e.g.
// "viaf", "lcnaf").
type AuthoritySettings struct {
	BaseURLs map[string]string
}

// LoadRecordManagerIni reads recordmanager.ini's Site, Solr, Enrichment, and
// AuthorityEnrichment sections. Database/HTTP tuning lives in Config (env
// vars) rather than in recordmanager.ini.
func LoadRecordManagerIni(path string) (*RecordManagerSettings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sections, err := parseINI(f)
	if err != nil {
		return nil, err
	}

	site := section(sections, "Site")
	settings := &RecordManagerSettings{
		Site: SiteSettings{},
	}
	settings.Site.Institution, _ = site.Get("institution")
	settings.Site.URL, _ = site.Get("url")

	solrSection := section(sections, "Solr")
	settings.Solr.UpdateURL, _ = solrSection.Get("url")
	settings.Solr.SelectURL, _ = solrSection.Get("search_url")
	if settings.Solr.SelectURL == "" {
		settings.Solr.SelectURL = settings.Solr.UpdateURL
	}
	settings.Solr.Username, _ = solrSection.Get("username")
	settings.Solr.Password, _ = solrSection.Get("password")

	enrichSection := section(sections, "Enrichment")
	settings.Enrich = enrich.DefaultConfig()
	if raw, ok := enrichSection.Get("cache_expiration_seconds"); ok {
		if secs, err := strconv.Atoi(raw); err == nil {
			settings.Enrich.CacheExpiration = time.Duration(secs) * time.Second
		}
	}

	authoritySection := section(sections, "AuthorityEnrichment")
	urls := make(map[string]string)
	for _, e := range authoritySection.entries {
		urls[e.key] = e.value
	}
	settings.Authority = AuthoritySettings{BaseURLs: urls}

	return settings, nil
}

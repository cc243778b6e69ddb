package driver

import (
	"encoding/json"
	"fmt"
	"strings"
)

func init() {
	Register("forward", newForwardDriver)
}

// forwardRecord is the "forward" format: a source that already delivers
// JSON shaped close to what Solr wants, needing little more than field
// renaming and key extraction. Used by sources whose upstream API emits
// structured JSON rather than bibliographic XML.
type forwardRecord struct {
	ID              string   `json:"id"`
	HostID          string   `json:"host_id"`
	LinkID          string   `json:"link_id"`
	Title           string   `json:"title"`
	Author          string   `json:"author"`
	ISBNs           []string `json:"isbns"`
	ISSNs           []string `json:"issns"`
	Format          string   `json:"format"`
	Year            int      `json:"year"`
	Pages           int      `json:"pages"`
	SeriesISSN      string   `json:"series_issn"`
	SeriesNumbering string   `json:"series_numbering"`
	Fields          map[string][]string `json:"fields"`
}

type forwardDriver struct {
	rec forwardRecord
}

func newForwardDriver(data []byte, oaiID, sourceID string) (Driver, error) {
	var rec forwardRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("forward driver: parse: %w", err)
	}
	if rec.Fields == nil {
		rec.Fields = map[string][]string{}
	}
	return &forwardDriver{rec: rec}, nil
}

func (d *forwardDriver) ID() string { return d.rec.ID }

func (d *forwardDriver) Serialize() ([]byte, error) {
	return json.Marshal(d.rec)
}

func (d *forwardDriver) Normalize() Driver {
	d.rec.Title = strings.TrimSpace(d.rec.Title)
	d.rec.Author = strings.TrimSpace(d.rec.Author)
	return d
}

func (d *forwardDriver) HostRecordID() string { return d.rec.HostID }

func (d *forwardDriver) LinkingID() string { return d.rec.LinkID }

func (d *forwardDriver) Features() Features {
	return Features{
		Title:              d.rec.Title,
		MainAuthor:         d.rec.Author,
		ISBNs:              d.rec.ISBNs,
		ISSNs:              d.rec.ISSNs,
		Format:             firstNonEmpty(d.rec.Format, "forward"),
		PublicationYear:    d.rec.Year,
		HasPublicationYear: d.rec.Year != 0,
		PageCount:          d.rec.Pages,
		HasPageCount:       d.rec.Pages != 0,
		SeriesISSN:         d.rec.SeriesISSN,
		SeriesNumbering:    d.rec.SeriesNumbering,
	}
}

func (d *forwardDriver) ToSolrArray() (map[string][]string, error) {
	doc := map[string][]string{
		"title_t":  {d.rec.Title},
		"author_t": {d.rec.Author},
		"isbn_t":   d.rec.ISBNs,
		"issn_t":   d.rec.ISSNs,
	}
	for k, v := range d.rec.Fields {
		doc[k] = v
	}
	return doc, nil
}

func (d *forwardDriver) MergeComponentParts(components []Driver) (int, error) {
	merged := 0
	for _, c := range components {
		fd, ok := c.(*forwardDriver)
		if !ok {
			continue
		}
		d.rec.Fields["component_titles"] = append(d.rec.Fields["component_titles"], fd.rec.Title)
		merged++
	}
	return merged, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

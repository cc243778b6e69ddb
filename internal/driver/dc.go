package driver

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

func init() {
	Register("dc", newDCDriver)
}

// dcRecord is the Dublin Core wire shape: an unordered bag of repeatable
// elements in the dc: namespace, the only structure OAI-PMH's oai_dc
// metadata format guarantees.
type dcRecord struct {
	XMLName     xml.Name `xml:"dc"`
	Title       []string `xml:"title"`
	Creator     []string `xml:"creator"`
	Subject     []string `xml:"subject"`
	Description []string `xml:"description"`
	Publisher   []string `xml:"publisher"`
	Date        []string `xml:"date"`
	Type        []string `xml:"type"`
	Format      []string `xml:"format"`
	Identifier  []string `xml:"identifier"`
	Source      []string `xml:"source"`
	Language    []string `xml:"language"`
	Relation    []string `xml:"relation"`
}

// dcDriver implements Driver over a parsed Dublin Core record.
type dcDriver struct {
	rec      dcRecord
	oaiID    string
	sourceID string
}

func newDCDriver(data []byte, oaiID, sourceID string) (Driver, error) {
	var rec dcRecord
	if err := xml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("dc driver: parse: %w", err)
	}
	return &dcDriver{rec: rec, oaiID: oaiID, sourceID: sourceID}, nil
}

func (d *dcDriver) ID() string {
	for _, id := range d.rec.Identifier {
		if !strings.HasPrefix(id, "http://") && !strings.HasPrefix(id, "https://") {
			return id
		}
	}
	return ""
}

func (d *dcDriver) Serialize() ([]byte, error) {
	return json.Marshal(d.rec)
}

func (d *dcDriver) Normalize() Driver {
	d.rec.Title = normalizeStrings(d.rec.Title)
	d.rec.Creator = normalizeStrings(d.rec.Creator)
	d.rec.Subject = normalizeStrings(d.rec.Subject)
	d.rec.Publisher = normalizeStrings(d.rec.Publisher)
	d.rec.Identifier = normalizeStrings(d.rec.Identifier)
	d.rec.Format = normalizeStrings(d.rec.Format)
	sort.Strings(d.rec.Subject)
	return d
}

func normalizeStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (d *dcDriver) HostRecordID() string {
	for _, rel := range d.rec.Relation {
		if strings.HasPrefix(rel, "isPartOf:") {
			return strings.TrimPrefix(rel, "isPartOf:")
		}
	}
	return ""
}

func (d *dcDriver) LinkingID() string {
	return d.oaiID
}

func (d *dcDriver) Features() Features {
	f := Features{
		Format: firstOr(d.rec.Type, "unknown"),
	}
	if len(d.rec.Title) > 0 {
		f.Title = d.rec.Title[0]
	}
	if len(d.rec.Creator) > 0 {
		f.MainAuthor = d.rec.Creator[0]
	}
	for _, id := range d.rec.Identifier {
		switch {
		case looksLikeISBN(id):
			f.ISBNs = append(f.ISBNs, id)
		case looksLikeISSN(id):
			f.ISSNs = append(f.ISSNs, id)
		}
	}
	for _, date := range d.rec.Date {
		if year, err := strconv.Atoi(date[:minInt(4, len(date))]); err == nil {
			f.PublicationYear = year
			f.HasPublicationYear = true
			break
		}
	}
	return f
}

func (d *dcDriver) ToSolrArray() (map[string][]string, error) {
	doc := map[string][]string{
		"title_t":       d.rec.Title,
		"author_t":      d.rec.Creator,
		"subject_t":     d.rec.Subject,
		"description_t": d.rec.Description,
		"publisher_t":   d.rec.Publisher,
		"date_t":        d.rec.Date,
		"type_t":        d.rec.Type,
		"format_t":      d.rec.Format,
		"identifier_t":  d.rec.Identifier,
		"language_t":    d.rec.Language,
	}
	return doc, nil
}

func (d *dcDriver) MergeComponentParts(components []Driver) (int, error) {
	merged := 0
	for _, c := range components {
		cd, ok := c.(*dcDriver)
		if !ok {
			continue
		}
		d.rec.Relation = append(d.rec.Relation, cd.LinkingID())
		merged++
	}
	return merged, nil
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func looksLikeISBN(s string) bool {
	digits := onlyDigitsAndX(s)
	return len(digits) == 10 || len(digits) == 13
}

func looksLikeISSN(s string) bool {
	digits := onlyDigitsAndX(s)
	return len(digits) == 8
}

func onlyDigitsAndX(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == 'x' || r == 'X' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

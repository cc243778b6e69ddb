// datasources.go parses datasources.ini: one `[sourceId]` section per
// configured data source, keyed exactly as spec.md §6 names its fields.
package config

import (
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Ramsey-B/recordmanager/internal/rmerror"
)

// DataSource is one datasources.ini section, the raw per-source settings;
// callers (harvest/import/export/manage subcommands) translate the subset
// they need into the concrete SourceConfig shape of the package they drive
// (ingest.SourceConfig, solrupdate.SourceConfig, ...).
type DataSource struct {
	ID             string `validate:"required"`
	URL            string
	Format         string `validate:"required"`
	Institution    string
	Type           string `validate:"omitempty,oneof=oai-pmh sierra sfx metalib metalib_export"` // incremental source kind
	IDPrefix       string `validate:"required"`
	RecordXPath    string
	OAIIDXPath     string
	ComponentParts string

	Dedup                        bool
	PreTransformation            string
	Normalization                string
	SolrTransformation           string
	RecordSplitter               string
	IndexMergedParts             bool
	NonInheritedFields           []string
	PrependParentTitleWithUnitID bool
	KeepMissingHierarchyMembers  bool
	Deletions                    string `validate:"omitempty,oneof=list_identifiers full_reharvest"`

	DriverParams          map[string]string
	MultiValuedFields     []string            // field_mapping entries whose values combine by union across a merged group
	MappingFiles          map[string][]string // field -> ordered mapping filenames ({field}_mapping[])
	HierarchyMappingFiles map[string][]string // field -> ordered per-level mapping filenames ({field}_hierarchy_mapping[])
}

// LoadDataSources reads datasources.ini into a map keyed by source id.
func LoadDataSources(path string) (map[string]DataSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sections, err := parseINI(f)
	if err != nil {
		return nil, err
	}

	out := make(map[string]DataSource, len(sections))
	for _, s := range sections {
		ds := DataSource{
			ID:                    s.name,
			DriverParams:          make(map[string]string),
			MappingFiles:          make(map[string][]string),
			HierarchyMappingFiles: make(map[string][]string),
		}
		ds.URL, _ = s.Get("url")
		ds.Format, _ = s.Get("format")
		ds.Institution, _ = s.Get("institution")
		ds.Type, _ = s.Get("type")
		ds.IDPrefix, _ = s.Get("idPrefix")
		ds.RecordXPath, _ = s.Get("recordXPath")
		ds.OAIIDXPath, _ = s.Get("oaiIDXPath")
		ds.ComponentParts, _ = s.Get("componentParts")
		ds.Dedup = getBool(s, "dedup")
		ds.PreTransformation, _ = s.Get("preTransformation")
		ds.Normalization, _ = s.Get("normalization")
		ds.SolrTransformation, _ = s.Get("solrTransformation")
		ds.RecordSplitter, _ = s.Get("recordSplitter")
		ds.IndexMergedParts = getBool(s, "indexMergedParts")
		ds.PrependParentTitleWithUnitID = getBool(s, "prepend_parent_title_with_unitid")
		ds.KeepMissingHierarchyMembers = getBool(s, "keepMissingHierarchyMembers")
		ds.Deletions, _ = s.Get("deletions")

		if raw, ok := s.Get("non_inherited_fields"); ok {
			ds.NonInheritedFields = splitCSV(raw)
		}
		if raw, ok := s.Get("multi_valued_fields"); ok {
			ds.MultiValuedFields = splitCSV(raw)
		}

		for _, e := range s.entries {
			if rest, ok := strings.CutPrefix(e.key, "driverParam."); ok {
				ds.DriverParams[rest] = e.value
				continue
			}
			if field, ok := strings.CutSuffix(e.key, "_hierarchy_mapping[]"); ok {
				ds.HierarchyMappingFiles[field] = append(ds.HierarchyMappingFiles[field], e.value)
				continue
			}
			if field, ok := strings.CutSuffix(e.key, "_mapping"); ok {
				ds.MappingFiles[field] = append(ds.MappingFiles[field], e.value)
				continue
			}
			if field, ok := strings.CutSuffix(e.key, "_mapping[]"); ok {
				ds.MappingFiles[field] = append(ds.MappingFiles[field], e.value)
			}
		}

		if err := validateDataSource(ds); err != nil {
			return nil, err
		}
		out[ds.ID] = ds
	}
	return out, nil
}

func getBool(s iniSection, key string) bool {
	raw, ok := s.Get(key)
	if !ok {
		return false
	}
	b, _ := strconv.ParseBool(raw)
	return b
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Search returns the ids of sources whose id matches pattern, sorted, for
// the `datasources --search=REGEXP` command.
func Search(sources map[string]DataSource, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, rmerror.ConfigErrorf("invalid search pattern %q: %v", pattern, err)
	}
	var matched []string
	for id := range sources {
		if re.MatchString(id) {
			matched = append(matched, id)
		}
	}
	sort.Strings(matched)
	return matched, nil
}

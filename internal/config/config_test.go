package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestParseINI_SectionsAndEntries(t *testing.T) {
	sections, err := parseINI(strings.NewReader("; comment\n[Site]\ninstitution = MyLib\nurl = https://example.org\n\n[Solr]\nurl = https://solr.example.org/update\n"))
	require.NoError(t, err)
	require.Len(t, sections, 2)

	site := section(sections, "Site")
	inst, ok := site.Get("institution")
	assert.True(t, ok)
	assert.Equal(t, "MyLib", inst)

	solr := section(sections, "Solr")
	url, ok := solr.Get("url")
	assert.True(t, ok)
	assert.Equal(t, "https://solr.example.org/update", url)
}

func TestParseINI_MissingEqualsIsConfigError(t *testing.T) {
	_, err := parseINI(strings.NewReader("[Site]\nnotakeyvalue\n"))
	assert.Error(t, err)
}

func TestParseINI_EntryBeforeSectionIsConfigError(t *testing.T) {
	_, err := parseINI(strings.NewReader("institution = MyLib\n"))
	assert.Error(t, err)
}

func TestSection_GetAllPreservesOrder(t *testing.T) {
	sections, err := parseINI(strings.NewReader("[src1]\ntitle_mapping[] = a.properties\ntitle_mapping[] = b.properties\n"))
	require.NoError(t, err)
	got := section(sections, "src1").GetAll("title_mapping[]")
	assert.Equal(t, []string{"a.properties", "b.properties"}, got)
}

func TestLoadDataSources_ParsesKnownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "datasources.ini", `[src1]
url = https://oai.example.org/oai
format = dc
institution = MyLib
type = oai-pmh
idPrefix = src1
dedup = true
indexMergedParts = true
non_inherited_fields = building,collection
driverParam.namespace = oai_dc
title_mapping[] = title.properties
title_mapping[] = title_fallback.properties:regexp
`)

	sources, err := LoadDataSources(path)
	require.NoError(t, err)
	require.Contains(t, sources, "src1")

	src := sources["src1"]
	assert.Equal(t, "dc", src.Format)
	assert.True(t, src.Dedup)
	assert.True(t, src.IndexMergedParts)
	assert.Equal(t, []string{"building", "collection"}, src.NonInheritedFields)
	assert.Equal(t, "oai_dc", src.DriverParams["namespace"])
	assert.Equal(t, []string{"title.properties", "title_fallback.properties:regexp"}, src.MappingFiles["title"])
}

func TestLoadDataSources_MissingIDPrefixIsConfigError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "datasources.ini", "[src1]\nformat = dc\n")
	_, err := LoadDataSources(path)
	assert.Error(t, err)
}

func TestSearch_MatchesByRegexpAndSorts(t *testing.T) {
	sources := map[string]DataSource{"alpha": {}, "beta": {}, "alphabeta": {}}
	matched, err := Search(sources, "^alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "alphabeta"}, matched)
}

func TestSearch_InvalidPatternIsConfigError(t *testing.T) {
	_, err := Search(map[string]DataSource{}, "(unclosed")
	assert.Error(t, err)
}

func TestLoadFieldMapper_BuildsSetFromMappingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "title.properties", "Dune = Dune: The Classic Novel\n##default = Untitled\n")

	ds := DataSource{ID: "src1", MappingFiles: map[string][]string{"title": {"title.properties"}}}
	set, err := LoadFieldMapper(dir, ds)
	require.NoError(t, err)

	mapped := set.MapValues(map[string]any{"title": []string{"Dune"}})
	assert.Equal(t, []string{"Dune: The Classic Novel"}, mapped["title"])
}

func TestLoadFieldMapper_UnknownTypeIsConfigError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "title.properties", "a = b\n")
	ds := DataSource{ID: "src1", MappingFiles: map[string][]string{"title": {"title.properties:bogus"}}}
	_, err := LoadFieldMapper(dir, ds)
	assert.Error(t, err)
}

// TestLoadFieldMapper_HierarchyProducesCumulativeMultiValuedOutput exercises
// scenario 4's `building = ["A1/2"]` mapping hierarchy end to end: per-level
// mapping files produce a cumulative, multi-valued "building" output.
func TestLoadFieldMapper_HierarchyProducesCumulativeMultiValuedOutput(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "building-level0.properties", "A1 = A\n")
	writeFile(t, dir, "building-level1.properties", "2 = 2\n")

	ds := DataSource{
		ID:                    "src1",
		MappingFiles:          map[string][]string{},
		HierarchyMappingFiles: map[string][]string{"building": {"building-level0.properties", "building-level1.properties"}},
	}
	set, err := LoadFieldMapper(dir, ds)
	require.NoError(t, err)

	mapped := set.MapValues(map[string]any{"building": []string{"A1/2"}})
	assert.Equal(t, []string{"A", "A/2"}, mapped["building"])
}

func TestLoadRecordManagerIni_ParsesSolrAndAuthoritySections(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "recordmanager.ini", `[Site]
institution = MyLib

[Solr]
url = https://solr.example.org/update
search_url = https://solr.example.org/select

[AuthorityEnrichment]
viaf = https://viaf.org/viaf/
`)

	settings, err := LoadRecordManagerIni(path)
	require.NoError(t, err)
	assert.Equal(t, "MyLib", settings.Site.Institution)
	assert.Equal(t, "https://solr.example.org/update", settings.Solr.UpdateURL)
	assert.Equal(t, "https://solr.example.org/select", settings.Solr.SelectURL)
	assert.Equal(t, "https://viaf.org/viaf/", settings.Authority.BaseURLs["viaf"])
}

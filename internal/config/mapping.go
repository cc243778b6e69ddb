package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Ramsey-B/recordmanager/internal/fieldmapper"
	"github.com/Ramsey-B/recordmanager/internal/rmerror"
)

// LoadFieldMapper builds the fieldmapper.Set a source's `{field}_mapping[]`
// and `{field}_hierarchy_mapping[]` entries describe. A `_mapping[]` entry is
// `filename` or `filename:type`, type being one of normal (default), regexp,
// regexp-multi. A `_hierarchy_mapping[]` entry is always a plain filename,
// one per hierarchy level in order, each parsed as an exact-lookup table.
// Filenames are resolved relative to mappingDir.
func LoadFieldMapper(mappingDir string, ds DataSource) (*fieldmapper.Set, error) {
	var mappings []*fieldmapper.Mapping
	for field, entries := range ds.MappingFiles {
		for _, entry := range entries {
			filename, entryType := entry, fieldmapper.Normal
			if name, typ, ok := strings.Cut(entry, ":"); ok {
				filename = name
				switch typ {
				case "regexp":
					entryType = fieldmapper.Regexp
				case "regexp-multi":
					entryType = fieldmapper.RegexpMulti
				case "normal":
					entryType = fieldmapper.Normal
				default:
					return nil, rmerror.ConfigErrorf("source %q field %q: unknown mapping type %q", ds.ID, field, typ)
				}
			}

			m, err := loadMappingFile(mappingDir, ds.ID, field, filename, entryType)
			if err != nil {
				return nil, err
			}
			mappings = append(mappings, m)
		}
	}

	set := fieldmapper.NewSet(mappings...)
	for field, filenames := range ds.HierarchyMappingFiles {
		levels := make([]*fieldmapper.Mapping, 0, len(filenames))
		for _, filename := range filenames {
			m, err := loadMappingFile(mappingDir, ds.ID, field, filename, fieldmapper.Hierarchy)
			if err != nil {
				return nil, err
			}
			levels = append(levels, m)
		}
		set.AddHierarchy(field, levels)
	}
	return set, nil
}

func loadMappingFile(mappingDir, sourceID, field, filename string, entryType fieldmapper.EntryType) (*fieldmapper.Mapping, error) {
	path := filepath.Join(mappingDir, filename)
	f, err := os.Open(path)
	if err != nil {
		return nil, rmerror.ConfigErrorf("source %q field %q: open mapping file %s: %v", sourceID, field, path, err)
	}
	defer f.Close()

	m, err := fieldmapper.Parse(field, entryType, f)
	if err != nil {
		return nil, rmerror.ConfigErrorf("source %q field %q: parse mapping file %s: %v", sourceID, field, path, err)
	}
	return m, nil
}

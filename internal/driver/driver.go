// Package driver implements the per-format Record Driver contract: pure
// operations over (format, data, oaiId, sourceId) that let the rest of the
// pipeline treat Dublin Core, MARC-ish "forward" payloads, and any other
// source format identically once a Driver has parsed them.
package driver

import (
	"fmt"
	"sync"

	"github.com/Ramsey-B/recordmanager/internal/rmerror"
)

// Features are the dedup-relevant values a Driver can read off a parsed
// record, used by the matching predicate and by blocking-key computation.
type Features struct {
	Title              string
	MainAuthor         string
	ISBNs              []string
	ISSNs              []string
	Format             string
	PublicationYear    int
	HasPublicationYear bool
	PageCount          int
	HasPageCount       bool
	SeriesISSN         string
	SeriesNumbering    string
}

// Driver is a parsed record in one source format. All operations are pure
// over the data the driver was constructed with.
type Driver interface {
	// ID returns the local identifier, or "" if the format carries none.
	ID() string
	// Serialize returns the canonical payload for storage.
	Serialize() ([]byte, error)
	// Normalize performs in-place cleanup per format rules and returns the receiver.
	Normalize() Driver
	// HostRecordID returns the host this record is a component part of, or "".
	HostRecordID() string
	// LinkingID returns the id other records use to reference this one.
	LinkingID() string
	// Features returns the dedup-relevant values extracted from this record.
	Features() Features
	// ToSolrArray returns the keyed document fields for Solr indexing;
	// multi-valued fields are ordered string sequences.
	ToSolrArray() (map[string][]string, error)
	// MergeComponentParts folds components into this host document and
	// returns the number of parts merged.
	MergeComponentParts(components []Driver) (int, error)
}

// Factory constructs a Driver from raw format-specific data.
type Factory func(data []byte, oaiID, sourceID string) (Driver, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register installs the factory for format, overwriting any prior one
// (a datasources.ini "driverParams" override may want to rebind a format
// to a parameterized factory closure).
func Register(format string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[format] = factory
}

// New constructs a Driver for format, returning rmerror.ErrUnsupportedFormat
// if no factory has been registered.
func New(format string, data []byte, oaiID, sourceID string) (Driver, error) {
	mu.RLock()
	factory, ok := registry[format]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", rmerror.ErrUnsupportedFormat, format)
	}
	return factory(data, oaiID, sourceID)
}

// Supported reports whether format has a registered factory.
func Supported(format string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[format]
	return ok
}

// Package store implements the Record Store: durable collections for
// records, dedup groups, state entries, the URI cache, and transient queue
// collections, all Postgres-backed via sqlx/sqlbuilder following the
// reference repository's repository-per-collection convention.
package store

import (
	"time"
)

// Record is one incoming metadata item at any point in its lifecycle
// (raw -> normalized -> dedup-keyed -> clustered -> indexed).
type Record struct {
	ID             string    `db:"id"`
	SourceID       string    `db:"source_id"`
	OAIID          string    `db:"oai_id"`
	Format         string    `db:"format"`
	OriginalData   string    `db:"original_data"`
	NormalizedData string    `db:"normalized_data"`
	LinkingID      string    `db:"linking_id"`
	HostRecordID   string    `db:"host_record_id"`
	MainID         string    `db:"main_id"`
	Deleted        bool      `db:"deleted"`
	UpdateNeeded   bool      `db:"update_needed"`
	DedupID        *string   `db:"dedup_id"`
	TitleKeys      []string  `db:"title_keys"`
	ISBNKeys       []string  `db:"isbn_keys"`
	IDKeys         []string  `db:"id_keys"`
	FeaturesJSON   string    `db:"features_json"` // driver.Features snapshot, for pairwise matching without re-parsing the source payload
	Created        time.Time `db:"created"`
	Updated        time.Time `db:"updated"`
	Date           time.Time `db:"date"`
	Mark           bool      `db:"mark"`
}

// IsComponentPart reports whether this record is a component part of a host
// record, per the spec's "never a direct dedup-group member" invariant.
func (r *Record) IsComponentPart() bool {
	return r.HostRecordID != ""
}

// Payload returns the data to treat as the record's content: normalized_data
// when it differs from original_data, or original_data when normalization
// produced no change (the storage-optimized "" sentinel).
func (r *Record) Payload() string {
	if r.NormalizedData == "" {
		return r.OriginalData
	}
	return r.NormalizedData
}

// DedupGroup is an equivalence class of Record ids believed to describe the
// same resource across sources.
type DedupGroup struct {
	ID      string    `db:"id"`
	IDs     []string  `db:"ids"`
	Deleted bool      `db:"deleted"`
	Changed bool      `db:"changed"`
	Updated time.Time `db:"updated"`
}

// HasSource reports whether any member of the group belongs to sourceID,
// using the supplied lookup of record id -> source id.
func (g *DedupGroup) HasSource(sourceID string, sourceOf map[string]string) bool {
	for _, id := range g.IDs {
		if sourceOf[id] == sourceID {
			return true
		}
	}
	return false
}

// DistinctSourceCount returns the number of distinct source_ids represented
// among the group's member ids, used to enforce the 2-source minimum.
func (g *DedupGroup) DistinctSourceCount(sourceOf map[string]string) int {
	seen := make(map[string]struct{}, len(g.IDs))
	for _, id := range g.IDs {
		if src, ok := sourceOf[id]; ok {
			seen[src] = struct{}{}
		}
	}
	return len(seen)
}

// StateEntry is an opaque key/value pair, used for "Last Harvest Date {source}",
// "Last Index Update {source}", and "Last Deletion Processing Time {source}".
type StateEntry struct {
	Key     string    `db:"key"`
	Value   string    `db:"value"`
	Updated time.Time `db:"updated"`
}

// URICacheEntry caches an HTTP fetch result keyed by an opaque id (typically
// an authority URI); TTL is enforced by readers, not by the store.
type URICacheEntry struct {
	ID        string    `db:"id"`
	Timestamp time.Time `db:"timestamp"`
	URL       string    `db:"url"`
	Headers   string    `db:"headers"` // serialized map[string]string
	Body      string    `db:"body"`
}

// Expired reports whether the cache entry is older than maxAge relative to now.
func (e *URICacheEntry) Expired(now time.Time, maxAge time.Duration) bool {
	return now.Sub(e.Timestamp) >= maxAge
}

// QueueStatus is the lifecycle stage of a QueueCollection.
type QueueStatus string

const (
	QueueStatusBuilding  QueueStatus = "building"  // tmp_* : still being populated
	QueueStatusFinalized QueueStatus = "finalized" // renamed to its final name on commit
)

// QueueCollection is a transient, per-update-run set of record/group ids,
// named by a parameter hash and date range.
type QueueCollection struct {
	Name           string      `db:"name"`     // tmp_mr_record_{hash} or mr_record_{hash}_{fromDate}_{lastRecordTime}
	Hash           string      `db:"hash"`     // stable parameter hash
	Status         QueueStatus `db:"status"`
	FromDate       time.Time   `db:"from_date"`
	LastRecordTime time.Time   `db:"last_record_time"`
	Created        time.Time   `db:"created"`
}

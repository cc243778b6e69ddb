package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/recordmanager/internal/rmerror"
	"github.com/Ramsey-B/recordmanager/internal/telemetry"
)

// recordColumns lists the allowlisted, indexable columns of the records
// table; a column name outside this set is rejected with an error rather
// than being interpolated into the query text.
var recordColumns = map[string]struct{}{
	"id": {}, "source_id": {}, "oai_id": {}, "format": {}, "linking_id": {},
	"host_record_id": {}, "main_id": {}, "deleted": {}, "update_needed": {},
	"dedup_id": {}, "created": {}, "updated": {}, "date": {}, "mark": {},
	"title_keys": {}, "isbn_keys": {}, "id_keys": {},
}

// RecordRepository persists Record rows.
type RecordRepository struct {
	db     DB
	logger ectologger.Logger
}

// NewRecordRepository constructs a RecordRepository over db.
func NewRecordRepository(db DB, logger ectologger.Logger) *RecordRepository {
	return &RecordRepository{db: db, logger: logger}
}

// Upsert inserts r or, on a conflicting id (a sub-payload re-harvested
// under the same driver-derived identity), updates the mutable fields in
// place. The conflict target is the primary key, not (source_id, oai_id):
// a single oai_id can legitimately expand into several sub-records via a
// configured record splitter, each with its own driver-derived id.
// On success rec.ID is set to the resulting row's id.
func (r *RecordRepository) Upsert(ctx context.Context, rec *Record) error {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.Upsert")
	defer span.End()

	query := `
		INSERT INTO records (
			id, source_id, oai_id, format, original_data, normalized_data,
			linking_id, host_record_id, main_id, deleted, update_needed,
			dedup_id, title_keys, isbn_keys, id_keys, features_json, created, updated, date, mark
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now(), now(), $17, $18
		)
		ON CONFLICT (id) DO UPDATE SET
			format = EXCLUDED.format,
			original_data = EXCLUDED.original_data,
			normalized_data = EXCLUDED.normalized_data,
			linking_id = EXCLUDED.linking_id,
			host_record_id = EXCLUDED.host_record_id,
			main_id = EXCLUDED.main_id,
			deleted = EXCLUDED.deleted,
			update_needed = EXCLUDED.update_needed,
			title_keys = EXCLUDED.title_keys,
			isbn_keys = EXCLUDED.isbn_keys,
			id_keys = EXCLUDED.id_keys,
			features_json = EXCLUDED.features_json,
			updated = now(),
			date = EXCLUDED.date,
			mark = EXCLUDED.mark
		RETURNING id`

	row := struct {
		ID string `db:"id"`
	}{}
	err := r.db.GetContext(ctx, &row, r.db.Rebind(query),
		rec.ID, rec.SourceID, rec.OAIID, rec.Format, rec.OriginalData, rec.NormalizedData,
		rec.LinkingID, rec.HostRecordID, rec.MainID, rec.Deleted, rec.UpdateNeeded,
		rec.DedupID, pq.Array(rec.TitleKeys), pq.Array(rec.ISBNKeys), pq.Array(rec.IDKeys), rec.FeaturesJSON,
		rec.Date, rec.Mark,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: record %s/%s", rmerror.ErrDuplicateKey, rec.SourceID, rec.OAIID)
		}
		return fmt.Errorf("upsert record: %w", err)
	}
	rec.ID = row.ID
	return nil
}

// GetBySourceAndOAIID looks up the first record matching a source/oai_id
// pair. Single-part sources have at most one; for multi-part sources
// prefer ListBySourceAndOAIID.
func (r *RecordRepository) GetBySourceAndOAIID(ctx context.Context, sourceID, oaiID string) (*Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.GetBySourceAndOAIID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("records").
		Where(sb.Equal("source_id", sourceID), sb.Equal("oai_id", oaiID)).
		Limit(1)
	query, args := sb.Build()

	var rec Record
	if err := r.db.GetContext(ctx, &rec, r.db.Rebind(query), args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &rec, nil
}

// ListBySourceAndOAIID returns every record sharing a source/oai_id pair,
// since a configured record splitter can expand one oai_id into several
// sub-records. Used by the deletion-by-oai_id step of storeRecord.
func (r *RecordRepository) ListBySourceAndOAIID(ctx context.Context, sourceID, oaiID string) ([]Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.ListBySourceAndOAIID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("records").
		Where(sb.Equal("source_id", sourceID), sb.Equal("oai_id", oaiID))
	query, args := sb.Build()

	var recs []Record
	if err := r.db.SelectContext(ctx, &recs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list records by source/oai_id: %w", err)
	}
	return recs, nil
}

// GetByID looks up a record by primary key.
func (r *RecordRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("records").Where(sb.Equal("id", id)).Limit(1)
	query, args := sb.Build()

	var rec Record
	if err := r.db.GetContext(ctx, &rec, r.db.Rebind(query), args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get record by id: %w", err)
	}
	return &rec, nil
}

// ListByHostRecordID returns the component-part records attached to a host.
func (r *RecordRepository) ListByHostRecordID(ctx context.Context, hostRecordID string) ([]Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.ListByHostRecordID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("records").Where(sb.Equal("host_record_id", hostRecordID))
	query, args := sb.Build()

	var recs []Record
	if err := r.db.SelectContext(ctx, &recs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list records by host: %w", err)
	}
	return recs, nil
}

// ListByMainID returns every record descending from mainID, the ultimate
// top-level ancestor of a hierarchy - unlike ListByHostRecordID this also
// reaches grandchildren and deeper descendants, not just direct children.
func (r *RecordRepository) ListByMainID(ctx context.Context, mainID string) ([]Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.ListByMainID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("records").Where(sb.Equal("main_id", mainID))
	query, args := sb.Build()

	var recs []Record
	if err := r.db.SelectContext(ctx, &recs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list records by main id: %w", err)
	}
	return recs, nil
}

// ListBySource returns every non-deleted record for sourceID, used by the
// full-set (MetaLib-style) diff and by `manage --func=markdeleted`.
func (r *RecordRepository) ListBySource(ctx context.Context, sourceID string) ([]Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.ListBySource")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("records").
		Where(sb.Equal("source_id", sourceID), sb.Equal("deleted", false))
	query, args := sb.Build()

	var recs []Record
	if err := r.db.SelectContext(ctx, &recs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list records by source: %w", err)
	}
	return recs, nil
}

// ListAllBySource returns every record for sourceID regardless of deleted
// status, used by deleteDataSource to find dedup groups a retired source's
// records still belong to even after those records were marked deleted.
func (r *RecordRepository) ListAllBySource(ctx context.Context, sourceID string) ([]Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.ListAllBySource")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("records").Where(sb.Equal("source_id", sourceID))
	query, args := sb.Build()

	var recs []Record
	if err := r.db.SelectContext(ctx, &recs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list all records by source: %w", err)
	}
	return recs, nil
}

// DefaultIteratePageSize is the page size Iterate uses when the caller
// doesn't override it, per spec.
const DefaultIteratePageSize = 1000

// Iterate performs a restartable, id-ordered paged scan over sourceID's
// records ("" scans every source), invoking fn once per page in ascending
// id order. Each page requests `id > lastId` rather than an offset, so a
// scan interrupted after page N and restarted from the last id it
// observed picks up exactly where it left off and stays correct against
// concurrent inserts/updates that don't touch ids already returned.
// fn receives pages, not individual records, so a caller can batch its own
// downstream work (e.g. one Solr request per page) instead of one per row.
func (r *RecordRepository) Iterate(ctx context.Context, sourceID string, pageSize int, fn func([]Record) error) error {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.Iterate")
	defer span.End()

	if pageSize <= 0 {
		pageSize = DefaultIteratePageSize
	}

	lastID := ""
	for {
		sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
		sb.Select("*").From("records")
		conds := []string{}
		if sourceID != "" {
			conds = append(conds, sb.Equal("source_id", sourceID))
		}
		if lastID != "" {
			conds = append(conds, sb.GreaterThan("id", lastID))
		}
		if len(conds) > 0 {
			sb.Where(conds...)
		}
		sb.OrderBy("id").Asc().Limit(pageSize)
		query, args := sb.Build()

		var page []Record
		if err := r.db.SelectContext(ctx, &page, r.db.Rebind(query), args...); err != nil {
			return fmt.Errorf("iterate records: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}

		lastID = page[len(page)-1].ID
		if len(page) < pageSize {
			return nil
		}
	}
}

// ListCandidatesByKey returns non-deleted, non-component-part records whose
// title_keys, isbn_keys, or id_keys arrays overlap the supplied key set,
// excluding excludeSourceID (a record never matches within its own source).
// This is the blocking step of candidate generation: it trades recall at
// the array-overlap boundary for an index-backed, sublinear lookup.
func (r *RecordRepository) ListCandidatesByKey(ctx context.Context, column string, keys []string, excludeSourceID string) ([]Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.ListCandidatesByKey")
	defer span.End()

	if _, ok := recordColumns[column]; !ok {
		return nil, fmt.Errorf("list candidates: %w: column %q not indexable", rmerror.ErrInvariantViolation, column)
	}

	query := fmt.Sprintf(`
		SELECT * FROM records
		WHERE %s && $1
		  AND deleted = false
		  AND host_record_id = ''
		  AND source_id <> $2`, column)

	var recs []Record
	if err := r.db.SelectContext(ctx, &recs, r.db.Rebind(query), pq.Array(keys), excludeSourceID); err != nil {
		return nil, fmt.Errorf("list candidates by key: %w", err)
	}
	return recs, nil
}

// MarkDirtyByHostRecordID flips update_needed for the host record
// hostRecordID itself and for every record attached to it, win-or-lose on
// the historical `$hostId`/`$hostID` case variance: callers always pass the
// canonical host record id and the host plus every component part under it
// is marked, with no conditional spelling checks.
func (r *RecordRepository) MarkDirtyByHostRecordID(ctx context.Context, hostRecordID string) error {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.MarkDirtyByHostRecordID")
	defer span.End()

	query := `UPDATE records SET update_needed = true, updated = now() WHERE host_record_id = $1 OR id = $1`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), hostRecordID)
	if err != nil {
		return fmt.Errorf("mark host dirty: %w", err)
	}
	return nil
}

// SetDedupID attaches a record to a dedup group.
func (r *RecordRepository) SetDedupID(ctx context.Context, recordID, dedupID string) error {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.SetDedupID")
	defer span.End()

	query := `UPDATE records SET dedup_id = $2, updated = now() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), recordID, dedupID)
	if err != nil {
		return fmt.Errorf("set dedup id: %w", err)
	}
	return nil
}

// MarkDeleted soft-deletes a record.
func (r *RecordRepository) MarkDeleted(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.MarkDeleted")
	defer span.End()

	query := `UPDATE records SET deleted = true, update_needed = true, updated = now() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), id)
	if err != nil {
		return fmt.Errorf("mark record deleted: %w", err)
	}
	return nil
}

// ClearUpdateNeeded resets the dirty bit once the dedup engine has settled
// a record, or when ingestion deletes one.
func (r *RecordRepository) ClearUpdateNeeded(ctx context.Context, id string) error {
	query := `UPDATE records SET update_needed = false WHERE id = $1`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), id)
	if err != nil {
		return fmt.Errorf("clear update_needed: %w", err)
	}
	return nil
}

// ClearMarksBySource resets the mark flag on every non-deleted record of
// sourceID, the pre-pass of the ListIdentifiers deletion-reconciliation mode.
func (r *RecordRepository) ClearMarksBySource(ctx context.Context, sourceID string) error {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.ClearMarksBySource")
	defer span.End()

	query := `UPDATE records SET mark = false WHERE source_id = $1 AND deleted = false`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), sourceID)
	if err != nil {
		return fmt.Errorf("clear marks: %w", err)
	}
	return nil
}

// MarkSeenByOAIID sets the mark flag on every record matching sourceID and
// oaiID, used while iterating a ListIdentifiers response.
func (r *RecordRepository) MarkSeenByOAIID(ctx context.Context, sourceID, oaiID string) error {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.MarkSeenByOAIID")
	defer span.End()

	query := `UPDATE records SET mark = true WHERE source_id = $1 AND oai_id = $2`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), sourceID, oaiID)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// DeleteUnmarked soft-deletes every non-deleted, unmarked record of
// sourceID, the sweep step of the ListIdentifiers deletion-reconciliation
// mode. Returns the number of records affected.
func (r *RecordRepository) DeleteUnmarked(ctx context.Context, sourceID string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.DeleteUnmarked")
	defer span.End()

	query := `
		UPDATE records SET deleted = true, update_needed = true, updated = now()
		WHERE source_id = $1 AND deleted = false AND mark = false`
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), sourceID)
	if err != nil {
		return 0, fmt.Errorf("delete unmarked: %w", err)
	}
	return result.RowsAffected()
}

// DeleteStale soft-deletes every non-deleted record of sourceID whose
// updated timestamp precedes threshold, the sweep step of the full-reharvest
// deletion-reconciliation mode. Returns the number of records affected.
func (r *RecordRepository) DeleteStale(ctx context.Context, sourceID string, threshold time.Time) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.DeleteStale")
	defer span.End()

	query := `
		UPDATE records SET deleted = true, update_needed = true, updated = now()
		WHERE source_id = $1 AND deleted = false AND updated < $2`
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), sourceID, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete stale: %w", err)
	}
	return result.RowsAffected()
}

// ListForSolrScan returns records matching the Merge & Solr Update
// Pipeline's plain-record scan: updated at or after fromDate, update_needed
// false (settled, not awaiting a dedup decision), optionally restricted to
// sourceID. Component parts are not filtered out here; callers skip them.
// Deduped records reach the pipeline instead via
// GroupRepository.ListChangedSince.
func (r *RecordRepository) ListForSolrScan(ctx context.Context, sourceID string, fromDate time.Time) ([]Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.ListForSolrScan")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("records").
		Where(sb.GreaterEqualThan("updated", fromDate), sb.Equal("update_needed", false))
	if sourceID != "" {
		sb.Where(sb.Equal("source_id", sourceID))
	}
	query, args := sb.Build()

	var recs []Record
	if err := r.db.SelectContext(ctx, &recs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list records for solr scan: %w", err)
	}
	return recs, nil
}

// ListByIDs returns every record matching ids, in no particular order; used
// to load a dedup group's member records for merged-document assembly.
func (r *RecordRepository) ListByIDs(ctx context.Context, ids []string) ([]Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.ListByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT * FROM records WHERE id = ANY($1)`
	var recs []Record
	if err := r.db.SelectContext(ctx, &recs, r.db.Rebind(query), pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list records by ids: %w", err)
	}
	return recs, nil
}

// ListUpdateNeeded returns every non-deleted record with update_needed set,
// optionally restricted to sourceID ("" scans every source). This is the
// work queue `manage --func=deduplicate` and `--func=renormalize` drain:
// records land here via StoreRecord's fingerprint check or
// MarkDirtyByHostRecordID, and stay here until the batch processor clears
// the flag.
func (r *RecordRepository) ListUpdateNeeded(ctx context.Context, sourceID string) ([]Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.ListUpdateNeeded")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("records").
		Where(sb.Equal("update_needed", true), sb.Equal("deleted", false))
	if sourceID != "" {
		sb.Where(sb.Equal("source_id", sourceID))
	}
	query, args := sb.Build()

	var recs []Record
	if err := r.db.SelectContext(ctx, &recs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list update-needed records: %w", err)
	}
	return recs, nil
}

// CountBySource returns the non-deleted record count for sourceID ("" counts
// every source), backing `manage --func=count`.
func (r *RecordRepository) CountBySource(ctx context.Context, sourceID string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.RecordRepository.CountBySource")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("count(*)").From("records").Where(sb.Equal("deleted", false))
	if sourceID != "" {
		sb.Where(sb.Equal("source_id", sourceID))
	}
	query, args := sb.Build()

	var count int64
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("count records by source: %w", err)
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

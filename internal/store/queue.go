package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/recordmanager/internal/telemetry"
)

// QueueRepository manages the transient per-update-run collections that let
// a Solr update run resume where a previous run with the same parameters
// left off, keyed by a stable hash of those parameters.
type QueueRepository struct {
	db     DB
	logger ectologger.Logger
}

// NewQueueRepository constructs a QueueRepository over db.
func NewQueueRepository(db DB, logger ectologger.Logger) *QueueRepository {
	return &QueueRepository{db: db, logger: logger}
}

// FindReusable returns a finalized collection matching hash whose
// [FromDate, LastRecordTime] window can be extended by the caller, or nil
// if none exists (a fresh one must be built from scratch).
func (r *QueueRepository) FindReusable(ctx context.Context, hash string) (*QueueCollection, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.QueueRepository.FindReusable")
	defer span.End()

	query := `
		SELECT * FROM queue_collections
		WHERE hash = $1 AND status = $2
		ORDER BY created DESC LIMIT 1`
	var qc QueueCollection
	if err := r.db.GetContext(ctx, &qc, r.db.Rebind(query), hash, QueueStatusFinalized); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find reusable queue: %w", err)
	}
	return &qc, nil
}

// BeginBuild creates a new tmp_ collection in the building state.
func (r *QueueRepository) BeginBuild(ctx context.Context, name, hash string, fromDate time.Time) (*QueueCollection, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.QueueRepository.BeginBuild")
	defer span.End()

	query := `
		INSERT INTO queue_collections (name, hash, status, from_date, last_record_time, created)
		VALUES ($1, $2, $3, $4, $4, now())
		RETURNING *`
	var qc QueueCollection
	if err := r.db.GetContext(ctx, &qc, r.db.Rebind(query), name, hash, QueueStatusBuilding, fromDate); err != nil {
		return nil, fmt.Errorf("begin queue build: %w", err)
	}
	return &qc, nil
}

// AddMembers appends member ids (record or group ids) to a building collection.
func (r *QueueRepository) AddMembers(ctx context.Context, collectionName string, memberIDs []string) error {
	ctx, span := telemetry.StartSpan(ctx, "store.QueueRepository.AddMembers")
	defer span.End()

	query := `
		INSERT INTO queue_members (collection_name, member_id)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), collectionName, pq.Array(memberIDs))
	if err != nil {
		return fmt.Errorf("add queue members: %w", err)
	}
	return nil
}

// Finalize renames a tmp_ collection to its permanent, date-windowed name
// and marks it finalized so later runs can discover and extend it.
func (r *QueueRepository) Finalize(ctx context.Context, tmpName, finalName string, lastRecordTime time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "store.QueueRepository.Finalize")
	defer span.End()

	query := `
		UPDATE queue_collections
		SET name = $2, status = $3, last_record_time = $4
		WHERE name = $1`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), tmpName, finalName, QueueStatusFinalized, lastRecordTime)
	if err != nil {
		return fmt.Errorf("finalize queue: %w", err)
	}

	renameMembers := `UPDATE queue_members SET collection_name = $2 WHERE collection_name = $1`
	_, err = r.db.ExecContext(ctx, r.db.Rebind(renameMembers), tmpName, finalName)
	if err != nil {
		return fmt.Errorf("rename queue members: %w", err)
	}
	return nil
}

// PruneOlderThan drops every collection (and its members) created before
// cutoff, whatever its status, the 7-day queue-collection lifecycle sweep.
func (r *QueueRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.QueueRepository.PruneOlderThan")
	defer span.End()

	deleteMembers := `
		DELETE FROM queue_members
		WHERE collection_name IN (SELECT name FROM queue_collections WHERE created < $1)`
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(deleteMembers), cutoff); err != nil {
		return 0, fmt.Errorf("prune queue members: %w", err)
	}

	query := `DELETE FROM queue_collections WHERE created < $1`
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune queue collections: %w", err)
	}
	return result.RowsAffected()
}

// Members returns every member id of a collection.
func (r *QueueRepository) Members(ctx context.Context, collectionName string) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.QueueRepository.Members")
	defer span.End()

	var ids []string
	query := `SELECT member_id FROM queue_members WHERE collection_name = $1`
	if err := r.db.SelectContext(ctx, &ids, r.db.Rebind(query), collectionName); err != nil {
		return nil, fmt.Errorf("list queue members: %w", err)
	}
	return ids, nil
}

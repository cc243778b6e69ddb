package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/recordmanager/internal/telemetry"
)

// GroupRepository persists DedupGroup rows.
type GroupRepository struct {
	db     DB
	logger ectologger.Logger
}

// NewGroupRepository constructs a GroupRepository over db.
func NewGroupRepository(db DB, logger ectologger.Logger) *GroupRepository {
	return &GroupRepository{db: db, logger: logger}
}

// Create inserts a new group and returns its id.
func (r *GroupRepository) Create(ctx context.Context, ids []string) (*DedupGroup, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.GroupRepository.Create")
	defer span.End()

	query := `
		INSERT INTO dedup_groups (id, ids, deleted, changed, updated)
		VALUES (gen_random_uuid(), $1, false, true, now())
		RETURNING id, ids, deleted, changed, updated`

	var g DedupGroup
	if err := r.db.GetContext(ctx, &g, r.db.Rebind(query), pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return &g, nil
}

// GetByID looks up a group by primary key.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*DedupGroup, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.GroupRepository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("*").From("dedup_groups").Where(sb.Equal("id", id)).Limit(1)
	query, args := sb.Build()

	var g DedupGroup
	if err := r.db.GetContext(ctx, &g, r.db.Rebind(query), args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}

// SetMembers replaces a group's member id list and marks it changed so it
// is picked up on the next Solr scan.
func (r *GroupRepository) SetMembers(ctx context.Context, groupID string, ids []string) error {
	ctx, span := telemetry.StartSpan(ctx, "store.GroupRepository.SetMembers")
	defer span.End()

	query := `UPDATE dedup_groups SET ids = $2, changed = true, updated = now() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), groupID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("set group members: %w", err)
	}
	return nil
}

// MarkDeleted soft-deletes a group once its membership collapses below the
// 2-distinct-source minimum.
func (r *GroupRepository) MarkDeleted(ctx context.Context, groupID string) error {
	ctx, span := telemetry.StartSpan(ctx, "store.GroupRepository.MarkDeleted")
	defer span.End()

	query := `UPDATE dedup_groups SET deleted = true, changed = true, updated = now() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), groupID)
	if err != nil {
		return fmt.Errorf("mark group deleted: %w", err)
	}
	return nil
}

// ClearChanged resets the changed bit once a group has been delivered to Solr.
func (r *GroupRepository) ClearChanged(ctx context.Context, groupID string) error {
	query := `UPDATE dedup_groups SET changed = false WHERE id = $1`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), groupID)
	if err != nil {
		return fmt.Errorf("clear group changed: %w", err)
	}
	return nil
}

// ListAll returns every non-deleted dedup group, used by `manage
// --func=checkdedup` to walk the whole table rather than just the
// Solr-update scan's pending-change subset.
func (r *GroupRepository) ListAll(ctx context.Context) ([]DedupGroup, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.GroupRepository.ListAll")
	defer span.End()

	query := `SELECT * FROM dedup_groups WHERE deleted = false ORDER BY id ASC`
	var groups []DedupGroup
	if err := r.db.SelectContext(ctx, &groups, r.db.Rebind(query)); err != nil {
		return nil, fmt.Errorf("list all groups: %w", err)
	}
	return groups, nil
}

// ListChangedSince returns groups changed at or after fromDate, used by the
// Solr update scan to find work for a given parameter hash's time window.
func (r *GroupRepository) ListChangedSince(ctx context.Context, fromDate sql.NullTime) ([]DedupGroup, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.GroupRepository.ListChangedSince")
	defer span.End()

	query := `SELECT * FROM dedup_groups WHERE changed = true AND updated >= $1 ORDER BY updated ASC`
	var groups []DedupGroup
	if err := r.db.SelectContext(ctx, &groups, r.db.Rebind(query), fromDate); err != nil {
		return nil, fmt.Errorf("list changed groups: %w", err)
	}
	return groups, nil
}

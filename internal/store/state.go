package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/recordmanager/internal/telemetry"
)

// StateRepository persists opaque key/value StateEntry rows: harvest
// watermarks, last-index-update times, and last-deletion-processing times,
// one row per key.
type StateRepository struct {
	db     DB
	logger ectologger.Logger
}

// NewStateRepository constructs a StateRepository over db.
func NewStateRepository(db DB, logger ectologger.Logger) *StateRepository {
	return &StateRepository{db: db, logger: logger}
}

// Get returns the value for key, or ("", false) if unset.
func (r *StateRepository) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.StateRepository.Get")
	defer span.End()

	var entry StateEntry
	query := `SELECT * FROM state_entries WHERE key = $1`
	if err := r.db.GetContext(ctx, &entry, r.db.Rebind(query), key); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get state entry: %w", err)
	}
	return entry.Value, true, nil
}

// Set upserts the value for key.
func (r *StateRepository) Set(ctx context.Context, key, value string) error {
	ctx, span := telemetry.StartSpan(ctx, "store.StateRepository.Set")
	defer span.End()

	query := `
		INSERT INTO state_entries (key, value, updated)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated = now()`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), key, value)
	if err != nil {
		return fmt.Errorf("set state entry: %w", err)
	}
	return nil
}

// HarvestDateKey is the well-known state key for a source's last harvest watermark.
func HarvestDateKey(sourceID string) string { return "Last Harvest Date " + sourceID }

// IndexUpdateKey is the well-known state key for a source's last Solr update time.
func IndexUpdateKey(sourceID string) string { return "Last Index Update " + sourceID }

// DeletionProcessingKey is the well-known state key for a source's last
// deletion-reconciliation run time.
func DeletionProcessingKey(sourceID string) string { return "Last Deletion Processing Time " + sourceID }

// ResumptionTokenKey is the well-known state key for a source's pending
// harvest resumption token.
func ResumptionTokenKey(sourceID string) string { return "Resumption Token " + sourceID }

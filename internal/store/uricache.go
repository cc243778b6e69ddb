package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/recordmanager/internal/telemetry"
)

// URICacheRepository persists URICacheEntry rows.
type URICacheRepository struct {
	db     DB
	logger ectologger.Logger
}

// NewURICacheRepository constructs a URICacheRepository over db.
func NewURICacheRepository(db DB, logger ectologger.Logger) *URICacheRepository {
	return &URICacheRepository{db: db, logger: logger}
}

// Get returns the cached entry for id, or nil if absent.
func (r *URICacheRepository) Get(ctx context.Context, id string) (*URICacheEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.URICacheRepository.Get")
	defer span.End()

	var entry URICacheEntry
	query := `SELECT * FROM uri_cache WHERE id = $1`
	if err := r.db.GetContext(ctx, &entry, r.db.Rebind(query), id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get uri cache entry: %w", err)
	}
	return &entry, nil
}

// Put inserts a fresh cache entry, replacing any existing one. Duplicate-key
// races from concurrent enrichment of the same id are tolerated, not
// surfaced: whichever writer loses simply reuses the winner's entry.
func (r *URICacheRepository) Put(ctx context.Context, entry *URICacheEntry) error {
	ctx, span := telemetry.StartSpan(ctx, "store.URICacheRepository.Put")
	defer span.End()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO uri_cache (id, timestamp, url, headers, body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			timestamp = EXCLUDED.timestamp, url = EXCLUDED.url,
			headers = EXCLUDED.headers, body = EXCLUDED.body`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), entry.ID, entry.Timestamp, entry.URL, entry.Headers, entry.Body)
	if err != nil && !isUniqueViolation(err) {
		return fmt.Errorf("put uri cache entry: %w", err)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithField("id", entry.ID).Debug("uri cache duplicate key ignored")
	}
	return nil
}

// DeleteExpired removes entries older than maxAge relative to now, used by
// housekeeping; the store itself never enforces TTL on Get.
func (r *URICacheRepository) DeleteExpired(ctx context.Context, now time.Time, maxAge time.Duration) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.URICacheRepository.DeleteExpired")
	defer span.End()

	cutoff := now.Add(-maxAge)
	query := `DELETE FROM uri_cache WHERE timestamp < $1`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired uri cache entries: %w", err)
	}
	return res.RowsAffected()
}

package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/recordmanager/internal/store"
)

func getTestRecordsDB(t *testing.T) *sqlx.DB {
	db := getTestLockerDB(t)
	sqlxDB := sqlx.NewDb(db, "postgres")
	migrations := store.NewMigrationService(zapadapter.NewZapEctoLogger(getTestLogger(), nil), &store.MigrationConfig{
		MigrationFolderPath: "../../db/migrations",
	})
	require.NoError(t, migrations.Migrate(db, "recordmanager"))
	return sqlxDB
}

// TestRecordRepository_IterateIsRestartable verifies that iterating with a
// small page size, starting the next call from the last id the previous
// call observed, yields every pre-existing record exactly once - the
// pagination round-trip property.
func TestRecordRepository_IterateIsRestartable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Postgres-backed integration test in short mode")
	}

	db := getTestRecordsDB(t)
	defer db.Close()

	logger := zapadapter.NewZapEctoLogger(getTestLogger(), nil)
	repo := store.NewRecordRepository(store.NewDatabaseInstance(db, logger), logger)
	ctx := context.Background()

	const sourceID = "iterate-test-source"
	const total = 9
	for i := 0; i < total; i++ {
		rec := &store.Record{
			ID:       fmt.Sprintf("iterate-test-%02d", i),
			SourceID: sourceID,
			Format:   "dc",
		}
		require.NoError(t, repo.Upsert(ctx, rec))
	}

	seen := make(map[string]bool, total)
	err := repo.Iterate(ctx, sourceID, 4, func(page []store.Record) error {
		require.LessOrEqual(t, len(page), 4)
		for _, rec := range page {
			require.False(t, seen[rec.ID], "record %s observed twice", rec.ID)
			seen[rec.ID] = true
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, total)
}

// TestRecordRepository_IterateEmptySource verifies Iterate returns cleanly
// with no pages when the source has no records.
func TestRecordRepository_IterateEmptySource(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Postgres-backed integration test in short mode")
	}

	db := getTestRecordsDB(t)
	defer db.Close()

	logger := zapadapter.NewZapEctoLogger(getTestLogger(), nil)
	repo := store.NewRecordRepository(store.NewDatabaseInstance(db, logger), logger)
	ctx := context.Background()

	calls := 0
	err := repo.Iterate(ctx, "no-such-source", 4, func(page []store.Record) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, calls)
}

package store_test

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/Gobusters/ectologger/zapadapter"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/recordmanager/internal/store"
)

func getTestLockerDB(t *testing.T) *sql.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "recordmanager"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(context.Background()), "test database must be reachable")

	return db
}

func getTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// TestLocker_ExclusiveAcquire verifies that a second Acquire for the same
// key fails with ErrLockNotAcquired while the first holder is still live,
// and succeeds again once the first lock is released.
func TestLocker_ExclusiveAcquire(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping advisory-lock integration test in short mode")
	}

	db := getTestLockerDB(t)
	defer db.Close()

	logger := zapadapter.NewZapEctoLogger(getTestLogger(), nil)
	locker := store.NewLocker(db, logger)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "harvest:test-source")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "harvest:test-source")
	require.ErrorIs(t, err, store.ErrLockNotAcquired)

	require.NoError(t, first.Release(ctx))

	second, err := locker.Acquire(ctx, "harvest:test-source")
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

// TestLocker_WithLockRunsAndReleases verifies WithLock runs fn exactly once
// while holding the lock, and releases it afterward so a following Acquire
// succeeds.
func TestLocker_WithLockRunsAndReleases(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping advisory-lock integration test in short mode")
	}

	db := getTestLockerDB(t)
	defer db.Close()

	logger := zapadapter.NewZapEctoLogger(getTestLogger(), nil)
	locker := store.NewLocker(db, logger)
	ctx := context.Background()

	ran := false
	err := locker.WithLock(ctx, "harvest:with-lock-source", func() error {
		ran = true
		_, acquireErr := locker.Acquire(ctx, "harvest:with-lock-source")
		require.ErrorIs(t, acquireErr, store.ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	again, err := locker.Acquire(ctx, "harvest:with-lock-source")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

// TestLocker_DistinctKeysDoNotBlock verifies two different keys can be held
// concurrently without contending for the same advisory lock slot.
func TestLocker_DistinctKeysDoNotBlock(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping advisory-lock integration test in short mode")
	}

	db := getTestLockerDB(t)
	defer db.Close()

	logger := zapadapter.NewZapEctoLogger(getTestLogger(), nil)
	locker := store.NewLocker(db, logger)
	ctx := context.Background()

	a, err := locker.Acquire(ctx, "harvest:source-a")
	require.NoError(t, err)
	defer a.Release(ctx)

	b, err := locker.Acquire(ctx, "harvest:source-b")
	require.NoError(t, err)
	defer b.Release(ctx)
}

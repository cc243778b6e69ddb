package dedup

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/recordmanager/internal/driver"
	"github.com/Ramsey-B/recordmanager/internal/store"
)

func getTestEngineDB(t *testing.T) *sqlx.DB {
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
	rawDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, rawDB.PingContext(context.Background()), "test database must be reachable")

	zapLogger, _ := zap.NewDevelopment()
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)
	migrations := store.NewMigrationService(logger, &store.MigrationConfig{
		MigrationFolderPath: "../../db/migrations",
	})
	require.NoError(t, migrations.Migrate(rawDB, "recordmanager"))

	return sqlx.NewDb(rawDB, "postgres")
}

func newTestEngine(t *testing.T) (*Engine, *sqlx.DB) {
	db := getTestEngineDB(t)
	zapLogger, _ := zap.NewDevelopment()
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)
	instance := store.NewDatabaseInstance(db, logger)
	records := store.NewRecordRepository(instance, logger)
	groups := store.NewGroupRepository(instance, logger)
	return New(records, groups, logger, DefaultConfig()), db
}

func mustFeaturesJSON(t *testing.T, f driver.Features) string {
	data, err := json.Marshal(f)
	require.NoError(t, err)
	return string(data)
}

// TestProcessRecord_RejectsCandidateWhoseGroupAlreadyHasSameSource verifies
// that a dirty record skips past a matching candidate whose group already
// holds a member from the record's own source, and keeps searching rather
// than merging into that group.
func TestProcessRecord_RejectsCandidateWhoseGroupAlreadyHasSameSource(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Postgres-backed integration test in short mode")
	}

	e, db := newTestEngine(t)
	defer db.Close()
	ctx := context.Background()

	features := driver.Features{Title: "Dune", Format: "book", MainAuthor: "Herbert, Frank", ISBNs: []string{"111"}}
	featuresJSON := mustFeaturesJSON(t, features)

	a := &store.Record{ID: "same-source-a", SourceID: "source-a", Format: "book", FeaturesJSON: featuresJSON, TitleKeys: []string{"dune"}}
	b := &store.Record{ID: "same-source-b", SourceID: "source-a", Format: "book", FeaturesJSON: featuresJSON, TitleKeys: []string{"dune"}}
	c := &store.Record{ID: "same-source-c", SourceID: "source-c", Format: "book", FeaturesJSON: featuresJSON, TitleKeys: []string{"dune"}}
	require.NoError(t, e.records.Upsert(ctx, a))
	require.NoError(t, e.records.Upsert(ctx, b))
	require.NoError(t, e.records.Upsert(ctx, c))

	// a and c merge into a fresh group first.
	_, err := e.ProcessRecord(ctx, a)
	require.NoError(t, err)
	_, err = e.ProcessRecord(ctx, c)
	require.NoError(t, err)

	reloadedA, err := e.records.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, reloadedA.DedupID)

	// b shares a's source, so it must not be allowed to join the same group
	// even though it matches a and c on every blocking/pairwise criterion.
	bGroupID, err := e.ProcessRecord(ctx, b)
	require.NoError(t, err)
	require.Empty(t, bGroupID)

	reloadedB, err := e.records.GetByID(ctx, b.ID)
	require.NoError(t, err)
	require.Nil(t, reloadedB.DedupID)
}

// TestProcessRecord_MergesComponentPartsOfMatchedHosts verifies that once
// two hosts from different sources merge, their component parts - matched
// pairwise in id-suffix order - are merged as well.
func TestProcessRecord_MergesComponentPartsOfMatchedHosts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Postgres-backed integration test in short mode")
	}

	e, db := newTestEngine(t)
	defer db.Close()
	ctx := context.Background()

	hostFeatures := driver.Features{Title: "Journal Issue 1", Format: "serial", MainAuthor: "Editors, The", ISBNs: []string{"222"}}
	hostA := &store.Record{ID: "host-a", SourceID: "source-a", Format: "serial", FeaturesJSON: mustFeaturesJSON(t, hostFeatures), TitleKeys: []string{"journal issue 1"}}
	hostB := &store.Record{ID: "host-b", SourceID: "source-b", Format: "serial", FeaturesJSON: mustFeaturesJSON(t, hostFeatures), TitleKeys: []string{"journal issue 1"}}
	require.NoError(t, e.records.Upsert(ctx, hostA))
	require.NoError(t, e.records.Upsert(ctx, hostB))

	partFeatures := driver.Features{Title: "Article One", Format: "article", MainAuthor: "Writer, A"}
	childA := &store.Record{ID: "host-a.1", SourceID: "source-a", Format: "article", HostRecordID: "host-a", FeaturesJSON: mustFeaturesJSON(t, partFeatures)}
	childB := &store.Record{ID: "host-b.1", SourceID: "source-b", Format: "article", HostRecordID: "host-b", FeaturesJSON: mustFeaturesJSON(t, partFeatures)}
	require.NoError(t, e.records.Upsert(ctx, childA))
	require.NoError(t, e.records.Upsert(ctx, childB))

	_, err := e.ProcessRecord(ctx, hostA)
	require.NoError(t, err)

	// Reload hostB, as ProcessDirty would via ListUpdateNeeded, so its
	// dedup_id reflects the merge hostA's pass already performed.
	reloadedHostB, err := e.records.GetByID(ctx, hostB.ID)
	require.NoError(t, err)
	_, err = e.ProcessRecord(ctx, reloadedHostB)
	require.NoError(t, err)

	reloadedChildA, err := e.records.GetByID(ctx, childA.ID)
	require.NoError(t, err)
	reloadedChildB, err := e.records.GetByID(ctx, childB.ID)
	require.NoError(t, err)

	require.NotNil(t, reloadedChildA.DedupID)
	require.NotNil(t, reloadedChildB.DedupID)
	require.Equal(t, *reloadedChildA.DedupID, *reloadedChildB.DedupID)
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Ramsey-B/recordmanager/internal/config"
	"github.com/Ramsey-B/recordmanager/internal/dedup"
	"github.com/Ramsey-B/recordmanager/internal/enrich"
	"github.com/Ramsey-B/recordmanager/internal/events"
	"github.com/Ramsey-B/recordmanager/internal/harvest"
	"github.com/Ramsey-B/recordmanager/internal/httpx"
	"github.com/Ramsey-B/recordmanager/internal/ingest"
	"github.com/Ramsey-B/recordmanager/internal/solr"
	"github.com/Ramsey-B/recordmanager/internal/solrupdate"
	"github.com/Ramsey-B/recordmanager/internal/store"

	_ "github.com/Ramsey-B/recordmanager/internal/driver" // registers the dc/forward format drivers via init()
)

// app is the process's fully wired dependency graph: one database
// connection shared by every repository, the domain engines built over
// it, and the parsed recordmanager.ini/datasources.ini settings every
// subcommand reads from. Grounded on the reference repository's
// stem/pkg/startup dependency-ordered construction, simplified to the
// straight-line order a one-shot CLI command needs (open DB, migrate,
// construct repositories, construct engines) rather than a long-running
// server's named, retried dependency graph.
type app struct {
	cfg       *config.Config
	rm        *config.RecordManagerSettings
	sources   map[string]config.DataSource
	logger    ectologger.Logger
	zapLogger *zap.Logger

	db *sqlx.DB

	records  *store.RecordRepository
	groups   *store.GroupRepository
	queue    *store.QueueRepository
	state    *store.StateRepository
	uriCache *store.URICacheRepository
	locker   *store.Locker

	httpClient *httpx.Client
	solr       *solr.Client
	enrich     *enrich.Engine
	dedup      *dedup.Engine
	ingest     *ingest.Engine
	harvester  *harvest.Harvester
	solrUpdate *solrupdate.Pipeline
	events     *events.Publisher
}

// newApp opens the database, runs pending migrations, and constructs every
// repository and engine subcommands need.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, zapLogger, err := newLogger(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	rm, err := config.LoadRecordManagerIni(cfg.RecordManagerIniPath)
	if err != nil {
		return nil, fmt.Errorf("load recordmanager.ini: %w", err)
	}
	sources, err := config.LoadDataSources(cfg.DataSourcesIniPath)
	if err != nil {
		return nil, fmt.Errorf("load datasources.ini: %w", err)
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode)
	db, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	migrations := store.NewMigrationService(logger, &store.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(db.DB, cfg.DatabaseName); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	dbInstance := store.NewDatabaseInstance(db, logger)

	records := store.NewRecordRepository(dbInstance, logger)
	groups := store.NewGroupRepository(dbInstance, logger)
	queue := store.NewQueueRepository(dbInstance, logger)
	state := store.NewStateRepository(dbInstance, logger)
	uriCache := store.NewURICacheRepository(dbInstance, logger)
	locker := store.NewLocker(db.DB, logger)

	httpCfg := httpx.DefaultConfig()
	httpCfg.Timeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	httpCfg.MaxTries = cfg.HTTPMaxRetries
	httpCfg.RetryWait = time.Duration(cfg.HTTPRetryWaitSeconds) * time.Second
	httpCfg.MaxBackoff = time.Duration(cfg.HTTPMaxBackoffSeconds) * time.Second
	httpCfg.RateLimitPerSecond = cfg.HTTPRateLimitPerSec
	httpCfg.RateLimitBurst = cfg.HTTPRateLimitBurst
	httpClient := httpx.New(httpCfg, logger)

	solrClient := solr.New(httpClient, rm.Solr, logger)
	enrichEngine := enrich.New(uriCache, httpClient, rm.Enrich, logger)
	dedupEngine := dedup.New(records, groups, logger, dedup.DefaultConfig())
	ingestEngine := ingest.New(records, dedupEngine, logger)
	harvester := harvest.New(ingestEngine, state, records, logger, harvest.DefaultConfig())
	solrUpdatePipeline := solrupdate.New(records, groups, queue, state, solrClient, enrichEngine, solrupdate.DefaultConfig(), logger)

	var publisher *events.Publisher
	if cfg.KafkaEnabled {
		pubCfg := events.DefaultPublisherConfig()
		pubCfg.Brokers = cfg.KafkaBrokers
		pubCfg.Topic = cfg.KafkaTopic
		pubCfg.BatchSize = cfg.KafkaBatchSize
		pubCfg.BatchTimeout = time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond
		pubCfg.RequiredAcks = cfg.KafkaRequiredAcks
		pubCfg.Compression = cfg.KafkaCompression
		publisher = events.NewPublisher(pubCfg, logger)
	}

	return &app{
		cfg:        cfg,
		rm:         rm,
		sources:    sources,
		logger:     logger,
		zapLogger:  zapLogger,
		db:         db,
		records:    records,
		groups:     groups,
		queue:      queue,
		state:      state,
		uriCache:   uriCache,
		locker:     locker,
		httpClient: httpClient,
		solr:       solrClient,
		enrich:     enrichEngine,
		dedup:      dedupEngine,
		ingest:     ingestEngine,
		harvester:  harvester,
		solrUpdate: solrUpdatePipeline,
		events:     publisher,
	}, nil
}

// close releases the database connection and flushes the event publisher
// and logger, in the reverse of construction order.
func (a *app) close() {
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.logger.WithError(err).Warn("failed to close event publisher")
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Warn("failed to close database connection")
	}
	_ = a.zapLogger.Sync()
}

// publish is a fire-and-forget wrapper: a failed completion-event publish
// never fails the subcommand it reports on, since the event stream is a
// downstream convenience, not part of this system's own consistency model.
func (a *app) publish(ctx context.Context, event events.Event) {
	if a.events == nil {
		return
	}
	if err := a.events.Publish(ctx, event); err != nil {
		a.logger.WithContext(ctx).WithError(err).Warn("failed to publish completion event")
	}
}

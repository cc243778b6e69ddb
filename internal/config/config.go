// Package config loads RecordManager's process-level configuration (the
// environment-driven connection/timeout settings every subcommand needs)
// and the INI-like recordmanager.ini/datasources.ini/mapping files described
// in the external-interfaces contract: per-source settings, Field Mapper
// mapping files, and the Solr/Enrichment sections. The env-tag struct shape
// and ectoenv loading convention follow the reference repository's own
// config package; the INI parser is hand-rolled (justified in DESIGN.md —
// no INI library appears anywhere in the retrieval pack).
package config

import (
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"
)

// Config is the top-level process configuration, populated from the
// environment via Load.
type Config struct {
	LogLevel   string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs bool   `env:"PRETTY_LOGS" env-default:"false"`

	RecordManagerIniPath string `env:"RECORDMANAGER_INI" env-default:"recordmanager.ini"`
	DataSourcesIniPath   string `env:"DATASOURCES_INI" env-default:"datasources.ini"`
	MappingDir           string `env:"MAPPING_DIR" env-default:"mappings"`

	// PostgreSQL (Record Store)
	DatabaseDriver              string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                string        `env:"DB_HOST" env-default:""`
	DatabasePort                string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword            string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                string        `env:"DB_NAME" env-default:"recordmanager"`
	DatabaseSSLMode             string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/migrations"`
	DatabaseMigrationVersion    int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce      int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool        `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`
	StartupMaxAttempts          int           `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// HTTP client (harvest fetches, enrichment lookups, Solr POSTs)
	HTTPTimeoutSeconds    int     `env:"HTTP_TIMEOUT_SECONDS" env-default:"30"`
	HTTPMaxRetries        int     `env:"HTTP_MAX_RETRIES" env-default:"5"`
	HTTPRetryWaitSeconds  int     `env:"HTTP_RETRY_WAIT_SECONDS" env-default:"1"`
	HTTPMaxBackoffSeconds int     `env:"HTTP_MAX_BACKOFF_SECONDS" env-default:"30"`
	HTTPRateLimitPerSec   float64 `env:"HTTP_RATE_LIMIT_PER_SECOND" env-default:"0"`
	HTTPRateLimitBurst    int     `env:"HTTP_RATE_LIMIT_BURST" env-default:"1"`

	// Kafka (optional completion-event publisher, internal/events)
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaTopic        string   `env:"KAFKA_TOPIC" env-default:"recordmanager-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"1000"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`
}

// Load reads Config from the environment, applying env-default tags for
// anything unset; a .env file in the working directory is loaded first
// (silently ignored if absent) so local runs don't need exported vars.
func Load() (*Config, error) {
	_ = godotenv.Load() // best-effort; missing .env is not an error

	cfg := &Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

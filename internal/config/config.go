package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// 保存先の種類
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Configはアプリ全体の設定
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	GoEnv    string `env:"GO_ENV" envDefault:"prod"` // dev/prod
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// postgres / memory
	Store string `env:"CATALOG_STORE" envDefault:"postgres"`

	// 書き込み/読み取りストア。空なら POSTGRES_* から組み立てる
	WriteDatabaseURL string `env:"WRITE_DATABASE_URL"`
	ReadDatabaseURL  string `env:"READ_DATABASE_URL"`

	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"postgres"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"catalog"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	DBMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`

	JWTSecret string `env:"JWT_SECRET"` // JWT署名シークレット

	DispatchWorkers     int           `env:"DISPATCH_WORKERS" envDefault:"4"`
	DispatchQueueBuffer int           `env:"DISPATCH_QUEUE_BUFFER" envDefault:"256"`
	OutboxPollInterval  time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxBatchSize     int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	BulkImportChunkSize int           `env:"BULK_IMPORT_CHUNK_SIZE" envDefault:"500"`

	// 空なら active は IsAvailable だけで数える
	ActivePriceThreshold string `env:"CATALOG_ACTIVE_PRICE_THRESHOLD"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Loadは環境変数
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.Store {
	case StorePostgres, StoreMemory:
	default:
		return Config{}, fmt.Errorf("CATALOG_STORE must be %q or %q", StorePostgres, StoreMemory)
	}
	if cfg.DispatchWorkers < 1 {
		return Config{}, fmt.Errorf("DISPATCH_WORKERS must be >= 1")
	}
	if cfg.OutboxBatchSize < 1 {
		return Config{}, fmt.Errorf("OUTBOX_BATCH_SIZE must be >= 1")
	}
	if cfg.BulkImportChunkSize < 1 {
		return Config{}, fmt.Errorf("BULK_IMPORT_CHUNK_SIZE must be >= 1")
	}
	if cfg.OutboxPollInterval <= 0 {
		return Config{}, fmt.Errorf("OUTBOX_POLL_INTERVAL must be > 0")
	}
	if _, err := cfg.ActiveThreshold(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) IsDev() bool {
	return c.GoEnv == "dev"
}

// 書き込みストアのDSN
func (c Config) WriteDSN() string {
	if c.WriteDatabaseURL != "" {
		return c.WriteDatabaseURL
	}
	return c.postgresDSN()
}

// 読み取りストアのDSN。未指定なら書き込みと同じサーバー
func (c Config) ReadDSN() string {
	if c.ReadDatabaseURL != "" {
		return c.ReadDatabaseURL
	}
	return c.WriteDSN()
}

func (c Config) postgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

func (c Config) ActiveThreshold() (*decimal.Decimal, error) {
	raw := strings.TrimSpace(c.ActivePriceThreshold)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("CATALOG_ACTIVE_PRICE_THRESHOLD must be a decimal: %w", err)
	}
	return &d, nil
}

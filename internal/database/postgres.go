package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// Config holds database configuration
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Enabled reports whether a database is configured
func (c Config) Enabled() bool {
	return c.Host != ""
}

// DSN renders the lib/pq connection string
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.Database, sslMode)
}

// Postgres represents a PostgreSQL connection
type Postgres struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgres opens a PostgreSQL connection pool
func NewPostgres(cfg Config, logger *zap.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Postgres{db: db, logger: logger}, nil
}

// Wrap uses an existing handle, as tests do with sqlmock
func Wrap(db *sql.DB, logger *zap.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

// DB returns the underlying handle for the stores built on it
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// Close closes the database connection
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping verifies the database connection
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// schema is applied in order by CreateTables
var schema = []string{
	`CREATE TABLE IF NOT EXISTS retention_policies (
		id UUID PRIMARY KEY,
		scope VARCHAR(1024),
		format VARCHAR(64) NOT NULL,
		retention_days INTEGER NOT NULL,
		max_files INTEGER NOT NULL DEFAULT 0,
		max_size_bytes BIGINT NOT NULL DEFAULT 0,
		priority VARCHAR(16) NOT NULL DEFAULT 'medium',
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS legal_holds (
		id UUID PRIMARY KEY,
		scope VARCHAR(1024),
		prefix VARCHAR(1024) NOT NULL,
		reason TEXT NOT NULL,
		case_number VARCHAR(255),
		created_by VARCHAR(255) NOT NULL,
		expires_at TIMESTAMP,
		released_at TIMESTAMP,
		status VARCHAR(16) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS artifact_accesses (
		id BIGSERIAL PRIMARY KEY,
		scope VARCHAR(1024) NOT NULL,
		artifact_path VARCHAR(1024) NOT NULL,
		accessed_at TIMESTAMP NOT NULL,
		requester VARCHAR(255)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_artifact_accesses_path
		ON artifact_accesses (scope, artifact_path, accessed_at DESC)`,
	`CREATE TABLE IF NOT EXISTS cleanup_log (
		id UUID PRIMARY KEY,
		scope VARCHAR(1024) NOT NULL,
		artifact_path VARCHAR(1024) NOT NULL,
		action VARCHAR(16) NOT NULL,
		space_saved_bytes BIGINT NOT NULL,
		reasoning TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		executed_at TIMESTAMP NOT NULL
	)`,
}

// CreateTables creates the necessary database tables
func (p *Postgres) CreateTables(ctx context.Context) error {
	for _, query := range schema {
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	p.logger.Info("database schema ready", zap.Int("statements", len(schema)))
	return nil
}

package usage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/FairForge/reclaimer/internal/intelligence"
	"go.uber.org/zap"
)

// PostgresStore reads access history from the artifact_accesses table
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore creates a usage store over an open database
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Record inserts one access
func (s *PostgresStore) Record(ctx context.Context, scope string, rec intelligence.UsageRecord) error {
	query := `
		INSERT INTO artifact_accesses (scope, artifact_path, accessed_at, requester)
		VALUES ($1, $2, $3, $4)
	`
	var requester sql.NullString
	if rec.Requester != "" {
		requester = sql.NullString{String: rec.Requester, Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, query, scope, rec.ArtifactPath, rec.AccessedAt, requester); err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}
	return nil
}

// QueryAccesses returns the accesses of one artifact, newest first
func (s *PostgresStore) QueryAccesses(ctx context.Context, path, scope string) ([]intelligence.UsageRecord, error) {
	query := `
		SELECT artifact_path, accessed_at, requester
		FROM artifact_accesses
		WHERE scope = $1 AND artifact_path = $2
		ORDER BY accessed_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, scope, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query accesses for %s: %w", path, err)
	}
	defer func() { _ = rows.Close() }()

	records := []intelligence.UsageRecord{}
	for rows.Next() {
		var rec intelligence.UsageRecord
		var requester sql.NullString
		if err := rows.Scan(&rec.ArtifactPath, &rec.AccessedAt, &requester); err != nil {
			return nil, fmt.Errorf("failed to scan access: %w", err)
		}
		rec.Requester = requester.String
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query accesses for %s: %w", path, err)
	}

	s.logger.Debug("queried artifact accesses",
		zap.String("scope", scope),
		zap.String("path", path),
		zap.Int("count", len(records)))

	return records, nil
}

package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/FairForge/reclaimer/internal/retention"
	"github.com/google/uuid"
)

// PostgresLog writes cleanup entries to the cleanup_log table
type PostgresLog struct {
	db *sql.DB
}

// NewPostgresLog creates a new Postgres-backed log
func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

// Append inserts one entry
func (s *PostgresLog) Append(ctx context.Context, entry retention.CleanupLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `
		INSERT INTO cleanup_log (
			id, scope, artifact_path, action, space_saved_bytes,
			reasoning, confidence, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Scope,
		entry.ArtifactPath,
		string(entry.Action),
		entry.SpaceSavedBytes,
		entry.Reasoning,
		entry.Confidence,
		entry.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cleanup log entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries for a scope
func (s *PostgresLog) Recent(ctx context.Context, scope string, limit int) ([]retention.CleanupLogEntry, error) {
	limit = clampLimit(limit)

	query := `
		SELECT id, scope, artifact_path, action, space_saved_bytes,
		       reasoning, confidence, executed_at
		FROM cleanup_log
		WHERE scope = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("query cleanup log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []retention.CleanupLogEntry{}
	for rows.Next() {
		var e retention.CleanupLogEntry
		var action string
		if err := rows.Scan(&e.ID, &e.Scope, &e.ArtifactPath, &action,
			&e.SpaceSavedBytes, &e.Reasoning, &e.Confidence, &e.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan cleanup log entry: %w", err)
		}
		e.Action = retention.Action(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

package retention

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PolicyService manages retention policies stored in Postgres
type PolicyService struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPolicyService creates a new policy service. A nil db keeps the service
// usable for validation only.
func NewPolicyService(db *sql.DB, logger *zap.Logger) *PolicyService {
	return &PolicyService{
		db:     db,
		logger: logger,
	}
}

// CreatePolicy validates and stores a new retention policy
func (s *PolicyService) CreatePolicy(ctx context.Context, policy *RetentionPolicy) (*RetentionPolicy, error) {
	policy.Format = NormalizeFormat(policy.Format)
	if policy.Priority == "" {
		policy.Priority = PriorityMedium
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	policy.ID = uuid.New()
	policy.CreatedAt = time.Now()
	policy.UpdatedAt = policy.CreatedAt

	if s.db != nil {
		query := `
			INSERT INTO retention_policies
			(id, scope, format, retention_days, max_files, max_size_bytes,
			 priority, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		_, err := s.db.ExecContext(ctx, query,
			policy.ID, sqlNullString(policy.Scope), policy.Format,
			policy.RetentionDays, policy.MaxFiles, policy.MaxSizeBytes,
			string(policy.Priority), policy.CreatedAt, policy.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to create policy: %w", err)
		}

		s.logger.Info("created retention policy",
			zap.String("policy_id", policy.ID.String()),
			zap.String("format", policy.Format),
			zap.String("scope", policy.Scope))
	}

	return policy, nil
}

// Policies lists the policies that apply to a scope, scope-specific first
func (s *PolicyService) Policies(ctx context.Context, scope string) ([]RetentionPolicy, error) {
	policies := []RetentionPolicy{}

	if s.db == nil {
		return policies, nil
	}

	query := `
		SELECT id, scope, format, retention_days, max_files, max_size_bytes,
		       priority, created_at, updated_at
		FROM retention_policies
		WHERE scope IS NULL OR $1 LIKE scope || '%'
		ORDER BY
		  CASE WHEN scope IS NOT NULL THEN 1 ELSE 2 END,
		  created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var policy RetentionPolicy
		var policyScope sql.NullString
		var priority string

		err := rows.Scan(
			&policy.ID, &policyScope, &policy.Format, &policy.RetentionDays,
			&policy.MaxFiles, &policy.MaxSizeBytes, &priority,
			&policy.CreatedAt, &policy.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}

		policy.Scope = policyScope.String
		policy.Priority = Priority(priority)
		policies = append(policies, policy)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}

	return policies, nil
}

// DeletePolicy deletes a retention policy
func (s *PolicyService) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	if s.db == nil {
		return fmt.Errorf("database not configured")
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM retention_policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("policy not found: %s", id)
	}

	s.logger.Info("deleted retention policy",
		zap.String("policy_id", id.String()))

	return nil
}

// Helper function for nullable strings
func sqlNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

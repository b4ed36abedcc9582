package retention

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HoldService manages legal holds on artifact prefixes. Holds live in
// Postgres when a database is configured and in memory otherwise.
type HoldService struct {
	db     *sql.DB
	logger *zap.Logger

	mu    sync.RWMutex
	holds map[uuid.UUID]*LegalHold
}

// NewHoldService creates a new hold service
func NewHoldService(db *sql.DB, logger *zap.Logger) *HoldService {
	return &HoldService{
		db:     db,
		logger: logger,
		holds:  make(map[uuid.UUID]*LegalHold),
	}
}

// CreateHold creates a new legal hold
func (s *HoldService) CreateHold(ctx context.Context, hold *LegalHold) (*LegalHold, error) {
	if hold.Prefix == "" {
		return nil, fmt.Errorf("prefix required")
	}
	if hold.Reason == "" {
		return nil, fmt.Errorf("reason required")
	}
	if hold.CreatedBy == "" {
		return nil, fmt.Errorf("created by required")
	}

	hold.ID = uuid.New()
	hold.Status = HoldStatusActive
	hold.CreatedAt = time.Now()

	if s.db == nil {
		s.mu.Lock()
		s.holds[hold.ID] = hold
		s.mu.Unlock()
		return hold, nil
	}

	query := `
		INSERT INTO legal_holds
		(id, scope, prefix, reason, case_number, created_by, expires_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		hold.ID, sqlNullString(hold.Scope), hold.Prefix, hold.Reason,
		sqlNullString(hold.CaseNumber), hold.CreatedBy, hold.ExpiresAt,
		hold.Status, hold.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create hold: %w", err)
	}

	s.logger.Info("created legal hold",
		zap.String("hold_id", hold.ID.String()),
		zap.String("prefix", hold.Prefix),
		zap.String("reason", hold.Reason))

	return hold, nil
}

// ReleaseHold releases a legal hold
func (s *HoldService) ReleaseHold(ctx context.Context, holdID uuid.UUID) error {
	now := time.Now()

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		hold, ok := s.holds[holdID]
		if !ok || hold.Status != HoldStatusActive {
			return fmt.Errorf("hold not found or already released: %s", holdID)
		}
		hold.Status = HoldStatusReleased
		hold.ReleasedAt = &now
		return nil
	}

	query := `
		UPDATE legal_holds
		SET status = $1, released_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := s.db.ExecContext(ctx, query,
		HoldStatusReleased, now, holdID, HoldStatusActive)
	if err != nil {
		return fmt.Errorf("failed to release hold: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("hold not found or already released: %s", holdID)
	}

	s.logger.Info("released legal hold",
		zap.String("hold_id", holdID.String()))

	return nil
}

// ActiveHolds lists the holds that can apply to a scope
func (s *HoldService) ActiveHolds(ctx context.Context, scope string) ([]*LegalHold, error) {
	holds := []*LegalHold{}

	if s.db == nil {
		now := time.Now()
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, h := range s.holds {
			if h.Status == HoldStatusActive && (h.Scope == "" || h.Scope == scope) &&
				(h.ExpiresAt == nil || h.ExpiresAt.After(now)) {
				holds = append(holds, h)
			}
		}
		return holds, nil
	}

	query := `
		SELECT id, scope, prefix, reason, case_number, created_by,
		       expires_at, released_at, status, created_at
		FROM legal_holds
		WHERE status = $1
		AND (scope IS NULL OR scope = $2)
		AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, HoldStatusActive, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list holds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var hold LegalHold
		var holdScope, caseNumber sql.NullString
		var expiresAt, releasedAt sql.NullTime

		err := rows.Scan(
			&hold.ID, &holdScope, &hold.Prefix, &hold.Reason, &caseNumber,
			&hold.CreatedBy, &expiresAt, &releasedAt, &hold.Status, &hold.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hold: %w", err)
		}

		hold.Scope = holdScope.String
		hold.CaseNumber = caseNumber.String
		if expiresAt.Valid {
			hold.ExpiresAt = &expiresAt.Time
		}
		if releasedAt.Valid {
			hold.ReleasedAt = &releasedAt.Time
		}

		holds = append(holds, &hold)
	}

	return holds, rows.Err()
}

// ExpireHolds marks expired holds as expired
func (s *HoldService) ExpireHolds(ctx context.Context) (int, error) {
	if s.db == nil {
		now := time.Now()
		s.mu.Lock()
		defer s.mu.Unlock()
		n := 0
		for _, h := range s.holds {
			if h.Status == HoldStatusActive && h.ExpiresAt != nil && !h.ExpiresAt.After(now) {
				h.Status = HoldStatusExpired
				n++
			}
		}
		return n, nil
	}

	query := `
		UPDATE legal_holds
		SET status = $1
		WHERE status = $2
		AND expires_at IS NOT NULL
		AND expires_at <= NOW()
	`

	result, err := s.db.ExecContext(ctx, query, HoldStatusExpired, HoldStatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to expire holds: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		s.logger.Info("expired legal holds", zap.Int64("count", rows))
	}

	return int(rows), nil
}

// FindHold returns the first hold covering a path, or nil
func FindHold(holds []*LegalHold, scope, path string, now time.Time) *LegalHold {
	for _, h := range holds {
		if h.Covers(scope, path, now) {
			return h
		}
	}
	return nil
}

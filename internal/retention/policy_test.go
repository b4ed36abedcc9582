package retention

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPolicyService_CreatePolicy(t *testing.T) {
	t.Run("normalizes and validates without a database", func(t *testing.T) {
		service := NewPolicyService(nil, zap.NewNop())

		created, err := service.CreatePolicy(context.Background(), &RetentionPolicy{
			Format:        ".CSV",
			RetentionDays: 30,
		})

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, created.ID)
		assert.Equal(t, "csv", created.Format)
		assert.Equal(t, PriorityMedium, created.Priority)
		assert.False(t, created.CreatedAt.IsZero())
	})

	t.Run("rejects non-positive retention", func(t *testing.T) {
		service := NewPolicyService(nil, zap.NewNop())

		_, err := service.CreatePolicy(context.Background(), &RetentionPolicy{
			Format:        "pdf",
			RetentionDays: 0,
		})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "retention days must be positive")
	})

	t.Run("rejects unknown priority", func(t *testing.T) {
		service := NewPolicyService(nil, zap.NewNop())

		_, err := service.CreatePolicy(context.Background(), &RetentionPolicy{
			Format:        "pdf",
			RetentionDays: 10,
			Priority:      "urgent",
		})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid priority")
	})

	t.Run("inserts into postgres", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectExec("INSERT INTO retention_policies").
			WithArgs(sqlmock.AnyArg(), "reports/acme", "xlsx", 60, 100, int64(0),
				"high", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		service := NewPolicyService(db, zap.NewNop())
		_, err = service.CreatePolicy(context.Background(), &RetentionPolicy{
			Format:        "xlsx",
			RetentionDays: 60,
			MaxFiles:      100,
			Priority:      PriorityHigh,
			Scope:         "reports/acme",
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPolicyService_Policies(t *testing.T) {
	t.Run("empty without a database", func(t *testing.T) {
		service := NewPolicyService(nil, zap.NewNop())

		policies, err := service.Policies(context.Background(), "reports/acme")

		require.NoError(t, err)
		assert.Empty(t, policies)
	})

	t.Run("scans scoped and global rows", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		now := time.Now()
		rows := sqlmock.NewRows([]string{
			"id", "scope", "format", "retention_days", "max_files", "max_size_bytes",
			"priority", "created_at", "updated_at",
		}).
			AddRow(uuid.New().String(), "reports/acme", "csv", 30, 0, int64(0), "high", now, now).
			AddRow(uuid.New().String(), nil, "*", 90, 0, int64(1<<30), "low", now, now)

		mock.ExpectQuery("SELECT (.+) FROM retention_policies").
			WithArgs("reports/acme").
			WillReturnRows(rows)

		service := NewPolicyService(db, zap.NewNop())
		policies, err := service.Policies(context.Background(), "reports/acme")

		require.NoError(t, err)
		require.Len(t, policies, 2)
		assert.Equal(t, "reports/acme", policies[0].Scope)
		assert.Equal(t, PriorityHigh, policies[0].Priority)
		assert.Empty(t, policies[1].Scope)
		assert.Equal(t, int64(1<<30), policies[1].MaxSizeBytes)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps query failures", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectQuery("SELECT (.+) FROM retention_policies").
			WillReturnError(assert.AnError)

		service := NewPolicyService(db, zap.NewNop())
		_, err = service.Policies(context.Background(), "reports/acme")

		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestPolicyService_DeletePolicy(t *testing.T) {
	t.Run("requires a database", func(t *testing.T) {
		service := NewPolicyService(nil, zap.NewNop())

		err := service.DeletePolicy(context.Background(), uuid.New())

		assert.Error(t, err)
	})

	t.Run("reports missing policy", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		id := uuid.New()
		mock.ExpectExec("DELETE FROM retention_policies").
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 0))

		service := NewPolicyService(db, zap.NewNop())
		err = service.DeletePolicy(context.Background(), id)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "policy not found")
	})
}

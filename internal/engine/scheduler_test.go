package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/FairForge/reclaimer/internal/retention"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingExpirer struct {
	calls int
	err   error
}

func (c *countingExpirer) ExpireHolds(context.Context) (int, error) {
	c.calls++
	return 0, c.err
}

func TestScheduler_RunOnce(t *testing.T) {
	store := newMemStore()
	store.add("reports/acme/old.csv", 100, daysAgo(200))
	store.add("reports/globex/old.csv", 100, daysAgo(200))

	e := newTestEngine(store, newUsage(t, "", nil))
	expirer := &countingExpirer{err: errors.New("db down")}
	source := retention.StaticSource{csvPolicy}

	s := NewScheduler(e, source, expirer, ScheduleConfig{
		Scopes: []string{"reports/acme/", "reports/globex/"},
		DryRun: true,
	}, zap.NewNop())

	runs := s.RunOnce(context.Background())
	require.Len(t, runs, 2)
	assert.Equal(t, "reports/acme/", runs[0].Scope)
	assert.Equal(t, retention.ActionDelete, runs[1].Recommendations[0].Action)
	assert.Equal(t, 1, expirer.calls, "expiry failures do not stop the cycle")
	assert.Equal(t, 0, store.mutated())
}

func TestScheduler_StartStop(t *testing.T) {
	e := newTestEngine(newMemStore(), newUsage(t, "", nil))

	t.Run("no schedule is a no-op", func(t *testing.T) {
		s := NewScheduler(e, retention.StaticSource{}, nil, ScheduleConfig{}, zap.NewNop())
		require.NoError(t, s.Start(context.Background()))
		assert.False(t, s.IsRunning())
		assert.Nil(t, s.NextRun())
	})

	t.Run("invalid expression", func(t *testing.T) {
		s := NewScheduler(e, retention.StaticSource{}, nil, ScheduleConfig{Cron: "every day", Scopes: []string{"x/"}}, zap.NewNop())
		assert.Error(t, s.Start(context.Background()))
	})

	t.Run("missing scopes", func(t *testing.T) {
		s := NewScheduler(e, retention.StaticSource{}, nil, ScheduleConfig{Cron: "0 3 * * *"}, zap.NewNop())
		assert.Error(t, s.Start(context.Background()))
	})

	t.Run("runs until stopped", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s := NewScheduler(e, retention.StaticSource{}, nil, ScheduleConfig{Cron: "0 3 * * *", Scopes: []string{"x/"}}, zap.NewNop())
		require.NoError(t, s.Start(ctx))
		assert.True(t, s.IsRunning())
		require.NotNil(t, s.NextRun())
		assert.Equal(t, 3, s.NextRun().Hour())

		s.Stop()
		assert.False(t, s.IsRunning())
	})
}

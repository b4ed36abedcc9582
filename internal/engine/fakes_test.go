package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FairForge/reclaimer/internal/advisory"
	"github.com/FairForge/reclaimer/internal/drivers"
	"github.com/FairForge/reclaimer/internal/intelligence"
	"github.com/FairForge/reclaimer/internal/retention"
	"github.com/FairForge/reclaimer/internal/usage"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n float64) time.Time {
	return now.Add(-time.Duration(n * float64(24*time.Hour)))
}

func fixedClock() time.Time { return now }

type memObject struct {
	data        []byte
	modified    time.Time
	class       string
	protectedAt *time.Time
}

// memStore is an in-memory ObjectStore with failure injection
type memStore struct {
	mu        sync.Mutex
	objects   map[string]*memObject
	listErr   error
	headErr   map[string]error
	mutateErr map[string]error
	mutations int
}

func newMemStore() *memStore {
	return &memStore{
		objects:   make(map[string]*memObject),
		headErr:   make(map[string]error),
		mutateErr: make(map[string]error),
	}
}

func (m *memStore) add(p string, size int, modified time.Time) {
	m.objects[p] = &memObject{
		data:     bytes.Repeat([]byte("r"), size),
		modified: modified,
		class:    "STANDARD",
	}
}

func (m *memStore) object(p string) *memObject {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[p]
}

func (m *memStore) mutated() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutations
}

func (m *memStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memStore) Head(_ context.Context, p string) (drivers.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.headErr[p]; err != nil {
		return drivers.ObjectInfo{}, err
	}
	obj, ok := m.objects[p]
	if !ok {
		return drivers.ObjectInfo{}, drivers.ErrNotFound
	}
	return drivers.ObjectInfo{
		Path:           p,
		SizeBytes:      int64(len(obj.data)),
		LastModifiedAt: obj.modified,
		StorageClass:   obj.class,
		ProtectedAt:    obj.protectedAt,
	}, nil
}

func (m *memStore) Get(_ context.Context, p string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[p]
	if !ok {
		return nil, drivers.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *memStore) Put(_ context.Context, p string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.mutateErr[p]; err != nil {
		return err
	}
	m.mutations++
	m.objects[p] = &memObject{data: data, modified: now, class: "STANDARD"}
	return nil
}

func (m *memStore) mutate(p string, fn func(obj *memObject)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.mutateErr[p]; err != nil {
		return err
	}
	obj, ok := m.objects[p]
	if !ok {
		return drivers.ErrNotFound
	}
	m.mutations++
	fn(obj)
	return nil
}

func (m *memStore) Delete(_ context.Context, p string) error {
	if err := m.mutate(p, func(*memObject) {}); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, p)
	m.mu.Unlock()
	return nil
}

func (m *memStore) Archive(_ context.Context, p string) error {
	return m.mutate(p, func(obj *memObject) { obj.class = "GLACIER_IR" })
}

func (m *memStore) Restore(_ context.Context, p string) error {
	return m.mutate(p, func(obj *memObject) { obj.class = "STANDARD" })
}

func (m *memStore) Protect(_ context.Context, p string, at time.Time) error {
	return m.mutate(p, func(obj *memObject) { obj.protectedAt = &at })
}

var _ drivers.ObjectStore = (*memStore)(nil)

// countingUsage wraps a usage store and counts queries
type countingUsage struct {
	usage.Store
	mu      sync.Mutex
	queries []string
	failOn  map[string]error
	onQuery func()
}

func (c *countingUsage) QueryAccesses(ctx context.Context, p, scope string) ([]intelligence.UsageRecord, error) {
	c.mu.Lock()
	c.queries = append(c.queries, p)
	err := c.failOn[p]
	hook := c.onQuery
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return c.Store.QueryAccesses(ctx, p, scope)
}

func (c *countingUsage) queried(p string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range c.queries {
		if q == p {
			return true
		}
	}
	return false
}

func newUsage(t *testing.T, scope string, accesses map[string][]time.Time) *countingUsage {
	t.Helper()
	store := usage.NewMemoryStore()
	for p, times := range accesses {
		for _, at := range times {
			require.NoError(t, store.Record(context.Background(), scope, intelligence.UsageRecord{
				ArtifactPath: p,
				AccessedAt:   at,
			}))
		}
	}
	return &countingUsage{Store: store, failOn: map[string]error{}}
}

// stubOracle answers per path
type stubOracle struct {
	mu       sync.Mutex
	opinions map[string]*retention.AdvisoryOpinion
	err      error
	insights *retention.Insights
	briefs   []advisory.ArtifactBrief
}

func (s *stubOracle) AdviseArtifact(_ context.Context, brief advisory.ArtifactBrief) (*retention.AdvisoryOpinion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.briefs = append(s.briefs, brief)
	if s.err != nil {
		return nil, s.err
	}
	if op, ok := s.opinions[brief.Path]; ok {
		return op, nil
	}
	return &retention.AdvisoryOpinion{Action: brief.DeterministicAction, Confidence: 0.5, Reasoning: "agree"}, nil
}

func (s *stubOracle) SummarizeRun(_ context.Context, _ advisory.RunSummary) (*retention.Insights, error) {
	if s.insights == nil {
		return nil, errors.New("no insights")
	}
	return s.insights, nil
}

func (s *stubOracle) advised() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.briefs)
}

type failingHolds struct{}

func (failingHolds) ActiveHolds(context.Context, string) ([]*retention.LegalHold, error) {
	return nil, errors.New("connection refused")
}

package usage

import (
	"context"
	"sort"
	"sync"

	"github.com/FairForge/reclaimer/internal/intelligence"
)

// Store answers access-history queries for artifacts
type Store interface {
	// QueryAccesses returns the accesses of one artifact, newest first.
	QueryAccesses(ctx context.Context, path, scope string) ([]intelligence.UsageRecord, error)
}

// MemoryStore keeps access records in memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]intelligence.UsageRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]intelligence.UsageRecord),
	}
}

func memoryKey(scope, path string) string {
	return scope + "\x00" + path
}

// Record appends one access for an artifact in a scope
func (m *MemoryStore) Record(ctx context.Context, scope string, rec intelligence.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(scope, rec.ArtifactPath)
	m.records[key] = append(m.records[key], rec)
	return nil
}

// QueryAccesses returns a copy of the recorded accesses, newest first
func (m *MemoryStore) QueryAccesses(ctx context.Context, path, scope string) ([]intelligence.UsageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := append([]intelligence.UsageRecord(nil), m.records[memoryKey(scope, path)]...)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AccessedAt.After(out[j].AccessedAt)
	})
	return out, nil
}

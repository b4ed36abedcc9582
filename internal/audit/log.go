package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/FairForge/reclaimer/internal/retention"
)

// Log is the append-only record of executed cleanup actions
type Log interface {
	Append(ctx context.Context, entry retention.CleanupLogEntry) error
}

// History reads back the newest entries for a scope
type History interface {
	Recent(ctx context.Context, scope string, limit int) ([]retention.CleanupLogEntry, error)
}

// MemoryLog keeps entries in memory
type MemoryLog struct {
	mu      sync.Mutex
	entries []retention.CleanupLogEntry
}

// NewMemoryLog creates an empty in-memory log
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append records one entry
func (l *MemoryLog) Append(ctx context.Context, entry retention.CleanupLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Entries returns a copy of everything appended so far
func (l *MemoryLog) Entries() []retention.CleanupLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]retention.CleanupLogEntry(nil), l.entries...)
}

// Recent returns the newest entries for a scope, newest first
func (l *MemoryLog) Recent(ctx context.Context, scope string, limit int) ([]retention.CleanupLogEntry, error) {
	limit = clampLimit(limit)

	l.mu.Lock()
	entries := []retention.CleanupLogEntry{}
	for _, e := range l.entries {
		if e.Scope == scope {
			entries = append(entries, e)
		}
	}
	l.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ExecutedAt.After(entries[j].ExecutedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

var (
	_ History = (*MemoryLog)(nil)
	_ History = (*PostgresLog)(nil)
)

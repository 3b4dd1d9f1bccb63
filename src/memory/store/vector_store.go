package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anamnesis-ai/anamnesis/src/memory/model"
	"github.com/google/uuid"
)

// ErrDimensionMismatch rejects entries whose embedding length does not
// match the store dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// SearchResult pairs an entry with its similarity score for one query.
type SearchResult struct {
	Entry model.MemoryEntry
	Score float64
}

// Stats is a point-in-time snapshot of store contents and usage.
type Stats struct {
	TotalEntries  int            `json:"total_entries"`
	EntriesByKind map[string]int `json:"entries_by_kind"`
	Dimension     int            `json:"dimension"`
	TotalQueries  int64          `json:"total_queries"`
}

// VectorStore is an in-memory exact-similarity index. Every embedding must
// match the fixed store dimension; similarity is exact cosine over all
// candidates. Safe for concurrent use.
type VectorStore struct {
	mu        sync.RWMutex
	dimension int
	entries   []model.MemoryEntry
	queries   atomic.Int64
}

// NewVectorStore creates an empty store for vectors of the given dimension.
func NewVectorStore(dimension int) *VectorStore {
	return &VectorStore{dimension: dimension}
}

// Add inserts an entry. Entries whose embedding length differs from the
// store dimension are rejected with ErrDimensionMismatch.
func (s *VectorStore) Add(entry model.MemoryEntry) error {
	if len(entry.Embedding) != s.dimension {
		return fmt.Errorf("add %q: got %d dims, store has %d: %w",
			entry.ID, len(entry.Embedding), s.dimension, ErrDimensionMismatch)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Search returns the topK entries most similar to query, scored by cosine
// similarity, descending. Ties keep insertion order.
func (s *VectorStore) Search(query []float32, topK int) []SearchResult {
	s.queries.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rank(query, topK, nil)
}

// SearchByType is Search restricted to entries whose kind variant matches.
func (s *VectorStore) SearchByType(query []float32, topK int, kind model.MemoryKind) []SearchResult {
	s.queries.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rank(query, topK, func(e model.MemoryEntry) bool {
		return e.Kind.SameKind(kind)
	})
}

// rank scores entries under the read lock held by the caller.
func (s *VectorStore) rank(query []float32, topK int, keep func(model.MemoryEntry) bool) []SearchResult {
	if topK <= 0 {
		return nil
	}
	results := make([]SearchResult, 0, len(s.entries))
	for _, entry := range s.entries {
		if keep != nil && !keep(entry) {
			continue
		}
		results = append(results, SearchResult{
			Entry: entry,
			Score: model.CosineSimilarity(query, entry.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Get returns the entry with the given id.
func (s *VectorStore) Get(id uuid.UUID) (model.MemoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return model.MemoryEntry{}, false
}

// GetByType returns all entries whose kind variant matches, in insertion order.
func (s *VectorStore) GetByType(kind model.MemoryKind) []model.MemoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.MemoryEntry
	for _, entry := range s.entries {
		if entry.Kind.SameKind(kind) {
			out = append(out, entry)
		}
	}
	return out
}

// All returns a copy of every entry in insertion order.
func (s *VectorStore) All() []model.MemoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.MemoryEntry(nil), s.entries...)
}

// CleanupOld removes entries created at or before cutoff and returns how
// many were removed.
func (s *VectorStore) CleanupOld(cutoff time.Time) int {
	return s.removeIf(func(e model.MemoryEntry) bool {
		return !e.CreatedAt.After(cutoff)
	})
}

// ClearByType removes every entry whose kind variant matches and returns
// how many were removed.
func (s *VectorStore) ClearByType(kind model.MemoryKind) int {
	return s.removeIf(func(e model.MemoryEntry) bool {
		return e.Kind.SameKind(kind)
	})
}

// ClearSession removes every episodic entry belonging to one session.
func (s *VectorStore) ClearSession(sessionID uuid.UUID) int {
	return s.removeIf(func(e model.MemoryEntry) bool {
		return e.Kind.Kind == model.KindEpisodic && e.Kind.SessionID == sessionID
	})
}

// Remove deletes the entry with the given id.
func (s *VectorStore) Remove(id uuid.UUID) bool {
	return s.removeIf(func(e model.MemoryEntry) bool { return e.ID == id }) > 0
}

func (s *VectorStore) removeIf(drop func(model.MemoryEntry) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	removed := 0
	for _, entry := range s.entries {
		if drop(entry) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	s.entries = kept
	return removed
}

// Clear removes everything. Query statistics survive.
func (s *VectorStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Len returns the number of stored entries.
func (s *VectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dimension returns the fixed embedding dimension.
func (s *VectorStore) Dimension() int { return s.dimension }

// Stats snapshots entry counts per kind and the query counter.
func (s *VectorStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byKind := make(map[string]int)
	for _, entry := range s.entries {
		byKind[entry.Kind.Kind.String()]++
	}
	return Stats{
		TotalEntries:  len(s.entries),
		EntriesByKind: byKind,
		Dimension:     s.dimension,
		TotalQueries:  s.queries.Load(),
	}
}

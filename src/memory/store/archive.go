package store

import (
	"context"

	"github.com/anamnesis-ai/anamnesis/src/memory/model"
	"github.com/google/uuid"
)

// EntryArchive mirrors memory entries into a durable backend. The in-memory
// VectorStore stays authoritative for search; an archive is an operator
// convenience for inspection and recovery. All methods must tolerate being
// called on a nil receiver.
type EntryArchive interface {
	ArchiveEntry(ctx context.Context, entry model.MemoryEntry) error
	DeleteSessionEntries(ctx context.Context, sessionID uuid.UUID) error
	Close(ctx context.Context) error
}

// GraphArchive mirrors concepts and their relationships into a durable
// graph backend.
type GraphArchive interface {
	ArchiveConcept(ctx context.Context, concept model.Concept) error
	ArchiveTriple(ctx context.Context, triple model.Triple) error
	RemoveConcept(ctx context.Context, id uuid.UUID) error
	Close(ctx context.Context) error
}

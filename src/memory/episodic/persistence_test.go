package episodic

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/anamnesis-ai/anamnesis/src/memory/embed"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()
	p, err := NewPersistence(t.TempDir())
	if err != nil {
		t.Fatalf("NewPersistence: %v", err)
	}
	return p
}

func TestEmbeddingsHeaderLayout(t *testing.T) {
	m := NewManager(embed.NewDummyEmbedder(384), "assistant")
	ctx := context.Background()
	if err := m.AddExchange(ctx, "first question", "first answer"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}
	if err := m.AddExchange(ctx, "second question", "second answer"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}

	p := newTestPersistence(t)
	if err := p.Save(m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(p.Dir(), embeddingsFile))
	if err != nil {
		t.Fatalf("read embeddings file: %v", err)
	}
	var header embeddingsHeader
	header.unmarshal(content[:headerSize])

	want := embeddingsHeader{
		Version:      1,
		EmbeddingDim: 384,
		Num:          2,
		IndexOffset:  32,
		DataOffset:   96,
	}
	if header != want {
		t.Fatalf("header = %+v, want %+v", header, want)
	}
	if wantLen := headerSize + 2*indexSize + 2*384*4; len(content) != wantLen {
		t.Fatalf("file length = %d, want %d", len(content), wantLen)
	}
}

func TestEmbeddingIndexRoundTrip(t *testing.T) {
	idx := embeddingIndex{
		SessionID: uuid.New(),
		Turn:      7,
		Offset:    1536,
		Length:    384,
	}
	var got embeddingIndex
	got.unmarshal(idx.marshal())
	if got != idx {
		t.Fatalf("index = %+v, want %+v", got, idx)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	embedder := embed.NewDummyEmbedder(8)
	m := NewManager(embedder, "assistant")
	ctx := context.Background()

	if err := m.AddExchange(ctx, "what is Go?", "a language"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}
	if err := m.AddExchange(ctx, "who made it?", "Google"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}
	firstID := m.CurrentSession().ID
	m.StartNewSession("assistant")
	if err := m.AddExchange(ctx, "hello again", "welcome back"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}

	type turnKey struct {
		session uuid.UUID
		turn    int
	}
	saved := make(map[turnKey][]float32)
	for _, entry := range m.Store().All() {
		saved[turnKey{entry.Kind.SessionID, entry.Kind.Turn}] = entry.Embedding
	}

	p := newTestPersistence(t)
	if err := p.Save(m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := p.Load(embedder, "assistant")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	history := loaded.SessionHistory()
	if len(history) != 2 {
		t.Fatalf("loaded %d sessions, want 2", len(history))
	}
	first, ok := history[firstID]
	if !ok {
		t.Fatalf("first session missing from history")
	}
	if first.TurnCount() != 2 || first.Turns[0].User != "what is Go?" {
		t.Fatalf("first session turns = %+v", first.Turns)
	}

	if loaded.Store().Len() != len(saved) {
		t.Fatalf("loaded %d embeddings, want %d", loaded.Store().Len(), len(saved))
	}
	for _, entry := range loaded.Store().All() {
		want, ok := saved[turnKey{entry.Kind.SessionID, entry.Kind.Turn}]
		if !ok {
			t.Fatalf("unexpected entry for session %s turn %d", entry.Kind.SessionID, entry.Kind.Turn)
		}
		for i := range want {
			if entry.Embedding[i] != want[i] {
				t.Fatalf("embedding mismatch at %d for turn %d", i, entry.Kind.Turn)
			}
		}
		if entry.Metadata["user_query"] == "" || entry.Metadata["user_query"] == "unknown" {
			t.Fatalf("turn text not rejoined: %q", entry.Metadata["user_query"])
		}
	}
}

func TestLoadMissingArchive(t *testing.T) {
	p := newTestPersistence(t)
	m, err := p.Load(embed.NewDummyEmbedder(8), "assistant")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Store().Len() != 0 || len(m.SessionHistory()) != 0 {
		t.Fatalf("fresh manager expected, got %d entries, %d sessions",
			m.Store().Len(), len(m.SessionHistory()))
	}
}

func TestLoadCorruptSessions(t *testing.T) {
	p := newTestPersistence(t)
	if err := os.WriteFile(filepath.Join(p.Dir(), sessionsFile), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := p.Load(embed.NewDummyEmbedder(8), "assistant"); err == nil {
		t.Fatalf("expected error for corrupt sessions file")
	}
}

func TestLoadUndersizedEmbeddingsFile(t *testing.T) {
	m := NewManager(embed.NewDummyEmbedder(8), "assistant")
	if err := m.AddExchange(context.Background(), "hi", "hello"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}
	p := newTestPersistence(t)
	if err := p.Save(m); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(p.Dir(), embeddingsFile), []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := p.Load(embed.NewDummyEmbedder(8), "assistant"); err == nil {
		t.Fatalf("expected error for undersized embeddings file")
	}
}

func TestLoadTruncatedDataSkipsRecords(t *testing.T) {
	m := NewManager(embed.NewDummyEmbedder(8), "assistant")
	if err := m.AddExchange(context.Background(), "hi", "hello"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}
	p := newTestPersistence(t)
	if err := p.Save(m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(p.Dir(), embeddingsFile)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	// Keep the header and index but drop the packed float data.
	if err := os.WriteFile(path, content[:headerSize+indexSize], 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, err := p.Load(embed.NewDummyEmbedder(8), "assistant")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Store().Len() != 0 {
		t.Fatalf("truncated record restored: %d entries", loaded.Store().Len())
	}
	if len(loaded.SessionHistory()) != 1 {
		t.Fatalf("session text should survive without embeddings")
	}
}

func TestCleanupOldRewritesArchive(t *testing.T) {
	m := NewManager(embed.NewDummyEmbedder(8), "assistant")
	if err := m.AddExchange(context.Background(), "stale talk", "ok"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}
	staleID := m.CurrentSession().ID
	m.StartNewSession("assistant")

	stale := m.history[staleID]
	stale.UpdatedAt = time.Now().UTC().Add(-30 * 24 * time.Hour)
	m.history[staleID] = stale

	p := newTestPersistence(t)
	if err := p.Save(m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	removed, err := p.CleanupOld(7 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupOld: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	loaded, err := p.Load(embed.NewDummyEmbedder(8), "assistant")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := loaded.SessionHistory()[staleID]; ok {
		t.Fatalf("stale session survived cleanup")
	}
}

func TestMetadataAfterSave(t *testing.T) {
	m := NewManager(embed.NewDummyEmbedder(16), "assistant")
	if err := m.AddExchange(context.Background(), "hi", "hello"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}
	p := newTestPersistence(t)
	if err := p.Save(m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	meta, err := p.Metadata()
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta.Version != sessionsVersion {
		t.Fatalf("version = %q", meta.Version)
	}
	if meta.SessionCount != 1 || meta.TotalTurns != 1 || meta.EmbeddingDim != 16 {
		t.Fatalf("metadata = %+v", meta)
	}
}

package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anamnesis-ai/anamnesis/src/memory/model"
	"github.com/google/uuid"
	json "github.com/alpkeskin/gotoon"
)

// PostgresStore mirrors memory entries into Postgres + pgvector. It is an
// EntryArchive, not a search index: the in-memory store remains the exact
// similarity authority.
type PostgresStore struct {
	DB *pgxpool.Pool
}

var _ EntryArchive = (*PostgresStore)(nil)

// NewPostgresStore connects to Postgres with the given connection string.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_entries (
    id UUID PRIMARY KEY,
    kind TEXT NOT NULL,
    session_id UUID,
    turn INTEGER,
    category TEXT,
    content TEXT NOT NULL,
    metadata JSONB,
    embedding VECTOR,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS memory_entries_kind_idx ON memory_entries (kind);
CREATE INDEX IF NOT EXISTS memory_entries_session_idx ON memory_entries (session_id);
`

// CreateSchema ensures the pgvector extension and mirror table exist.
func (ps *PostgresStore) CreateSchema(ctx context.Context) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	if _, err := ps.DB.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create postgres schema: %w", err)
	}
	return nil
}

// ArchiveEntry upserts an entry row keyed by its id.
func (ps *PostgresStore) ArchiveEntry(ctx context.Context, entry model.MemoryEntry) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("encode entry metadata: %w", err)
	}
	var sessionID any
	var turn any
	var category any
	switch entry.Kind.Kind {
	case model.KindEpisodic:
		sessionID = entry.Kind.SessionID
		turn = entry.Kind.Turn
	case model.KindSemantic:
		category = entry.Kind.Category
	}
	_, err = ps.DB.Exec(ctx, `
                INSERT INTO memory_entries (id, kind, session_id, turn, category, content, metadata, embedding, created_at)
                VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::vector, $9)
                ON CONFLICT (id) DO UPDATE SET
                        content = EXCLUDED.content,
                        metadata = EXCLUDED.metadata,
                        embedding = EXCLUDED.embedding;
        `, entry.ID, entry.Kind.Kind.String(), sessionID, turn, category,
		entry.Text, string(metadataJSON), encodeVector(entry.Embedding), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("archive entry %s: %w", entry.ID, err)
	}
	return nil
}

// DeleteSessionEntries removes every mirrored row for a session.
func (ps *PostgresStore) DeleteSessionEntries(ctx context.Context, sessionID uuid.UUID) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	_, err := ps.DB.Exec(ctx, `DELETE FROM memory_entries WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session %s entries: %w", sessionID, err)
	}
	return nil
}

// SearchArchived queries the mirror by pgvector distance. Useful for
// offline inspection against large archives.
func (ps *PostgresStore) SearchArchived(ctx context.Context, query []float32, limit int) ([]model.MemoryEntry, error) {
	if ps == nil || ps.DB == nil {
		return nil, nil
	}
	rows, err := ps.DB.Query(ctx, `
        SELECT id, content, embedding::text, created_at
        FROM memory_entries
        ORDER BY embedding <-> $1::vector
        LIMIT $2;
        `, encodeVector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search archived entries: %w", err)
	}
	defer rows.Close()

	var entries []model.MemoryEntry
	for rows.Next() {
		var entry model.MemoryEntry
		var embeddingText string
		if err := rows.Scan(&entry.ID, &entry.Text, &embeddingText, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Embedding = decodeVector(embeddingText)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Close releases the connection pool.
func (ps *PostgresStore) Close(context.Context) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	ps.DB.Close()
	return nil
}

func encodeVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func decodeVector(text string) []float32 {
	text = strings.Trim(text, "[]")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := strings.Split(text, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			continue
		}
		vec = append(vec, float32(f))
	}
	return vec
}

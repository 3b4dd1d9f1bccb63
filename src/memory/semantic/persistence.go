package semantic

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/anamnesis-ai/anamnesis/src/concurrent"
	"github.com/anamnesis-ai/anamnesis/src/memory/embed"
	"github.com/anamnesis-ai/anamnesis/src/memory/model"
	"github.com/anamnesis-ai/anamnesis/src/memory/persist"
	json "github.com/alpkeskin/gotoon"
)

const (
	conceptsFile = "semantic_memory.json"
	graphFile    = "knowledge_graph.json"

	conceptsVersion = "1.0"

	// reembedConcurrency bounds parallel embedding calls on load. The
	// embedder is required to be safe for concurrent use.
	reembedConcurrency = 8
)

// conceptDocument is the on-disk shape of semantic_memory.json. Embeddings
// are never serialized, they are rebuilt from text on load.
type conceptDocument struct {
	Version       string          `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	LastSaved     time.Time       `json:"last_saved_at"`
	TotalConcepts int             `json:"total_concepts"`
	Concepts      []model.Concept `json:"concepts"`
}

// graphDocument is the on-disk shape of knowledge_graph.json. Only the
// triples are stored; indexes are rebuilt on load.
type graphDocument struct {
	Version string         `json:"version"`
	SavedAt time.Time      `json:"saved_at"`
	Triples []model.Triple `json:"triples"`
}

// Persistence reads and writes the semantic archive: a concepts document
// and a knowledge graph document under one directory.
type Persistence struct {
	dir    string
	logger *log.Logger
}

// NewPersistence prepares an archive rooted at dir.
func NewPersistence(dir string) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory directory %s: %w", dir, err)
	}
	return &Persistence{
		dir:    dir,
		logger: log.New(os.Stderr, "[semantic/persist] ", log.LstdFlags),
	}, nil
}

// WithLogger overrides the persistence logger.
func (p *Persistence) WithLogger(logger *log.Logger) *Persistence {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Dir returns the archive directory.
func (p *Persistence) Dir() string { return p.dir }

func (p *Persistence) conceptsPath() string { return filepath.Join(p.dir, conceptsFile) }
func (p *Persistence) graphPath() string    { return filepath.Join(p.dir, graphFile) }

// Save writes the manager's concepts and knowledge graph. Both files are
// written to a temp name and renamed.
func (p *Persistence) Save(m *Manager) error {
	concepts := m.Concepts()
	now := time.Now().UTC()

	doc := conceptDocument{
		Version:       conceptsVersion,
		CreatedAt:     now,
		LastSaved:     now,
		TotalConcepts: len(concepts),
		Concepts:      concepts,
	}
	conceptsJSON, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize concepts: %w", err)
	}
	if err := persist.WriteFileAtomic(p.conceptsPath(), conceptsJSON, 0o644); err != nil {
		return fmt.Errorf("write concepts file: %w", err)
	}

	if err := p.saveGraph(m); err != nil {
		return err
	}
	p.logger.Printf("saved %d concepts to %s", len(concepts), p.dir)
	return nil
}

func (p *Persistence) saveGraph(m *Manager) error {
	m.mu.Lock()
	triples := m.graph.Triples()
	m.mu.Unlock()

	doc := graphDocument{
		Version: conceptsVersion,
		SavedAt: time.Now().UTC(),
		Triples: triples,
	}
	graphJSON, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize knowledge graph: %w", err)
	}
	if err := persist.WriteFileAtomic(p.graphPath(), graphJSON, 0o644); err != nil {
		return fmt.Errorf("write knowledge graph file: %w", err)
	}
	p.logger.Printf("saved %d triples", len(triples))
	return nil
}

// Load rebuilds a manager from the archive. Embeddings are regenerated
// from concept text with bounded parallelism. A missing archive yields an
// empty manager; a corrupt one is a hard error.
func (p *Persistence) Load(ctx context.Context, embedder embed.Embedder) (*Manager, error) {
	m := NewManager(embedder)

	content, err := os.ReadFile(p.conceptsPath())
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read concepts file: %w", err)
	}

	var doc conceptDocument
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("deserialize concepts: %w", err)
	}

	embeddings, err := concurrent.ParallelMap(ctx, doc.Concepts, func(c model.Concept) ([]float32, error) {
		return embedder.Embed(ctx, c.Text)
	}, reembedConcurrency)
	if err != nil {
		return nil, fmt.Errorf("re-embed concepts: %w", err)
	}

	for i, concept := range doc.Concepts {
		concept.Embedding = embeddings[i]
		m.concepts[concept.ID] = concept
		m.categoryIndex[concept.Category] = append(m.categoryIndex[concept.Category], concept.ID)
	}

	if err := p.loadGraph(m); err != nil {
		return nil, err
	}
	p.logger.Printf("loaded %d concepts, %d triples from %s",
		len(doc.Concepts), m.graph.Len(), p.dir)
	return m, nil
}

func (p *Persistence) loadGraph(m *Manager) error {
	content, err := os.ReadFile(p.graphPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read knowledge graph file: %w", err)
	}

	var doc graphDocument
	if err := json.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("deserialize knowledge graph: %w", err)
	}
	m.graph.Replace(doc.Triples)
	return nil
}

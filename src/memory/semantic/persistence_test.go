package semantic

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anamnesis-ai/anamnesis/src/memory/model"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()
	p, err := NewPersistence(t.TempDir())
	if err != nil {
		t.Fatalf("NewPersistence: %v", err)
	}
	return p
}

func TestSemanticSaveLoadRoundTrip(t *testing.T) {
	stub := newStubEmbedder(8)
	stub.set("user prefers tea", []float32{1, 0, 0, 0, 0, 0, 0, 0})
	stub.set("user speaks french", []float32{0, 1, 0, 0, 0, 0, 0, 0})
	m := NewManager(stub)
	ctx := context.Background()

	tea, err := m.AddConcept(ctx, "user prefers tea", model.CategoryPreferences, "s1", 0.8)
	if err != nil {
		t.Fatalf("AddConcept: %v", err)
	}
	french, err := m.AddConcept(ctx, "user speaks french", model.CategoryFacts, "s1", 0.9)
	if err != nil {
		t.Fatalf("AddConcept: %v", err)
	}
	if _, err := m.AddRelation(ctx, tea.ID, "relates_to", french.ID, 0.7); err != nil {
		t.Fatalf("AddRelation: %v", err)
	}

	p := newTestPersistence(t)
	if err := p.Save(m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := p.Load(ctx, stub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Count() != 2 {
		t.Fatalf("loaded %d concepts", loaded.Count())
	}

	got, ok := loaded.Get(tea.ID)
	if !ok {
		t.Fatalf("concept %s missing after load", tea.ID)
	}
	if got.Text != "user prefers tea" || got.Confidence != 0.8 || got.Category != model.CategoryPreferences {
		t.Fatalf("concept = %+v", got)
	}
	if len(got.Embedding) != 8 || got.Embedding[0] != 1 {
		t.Fatalf("embedding not rebuilt: %v", got.Embedding)
	}

	if byCat := loaded.ConceptsByCategory(model.CategoryFacts); len(byCat) != 1 || byCat[0].ID != french.ID {
		t.Fatalf("category index not rebuilt: %+v", byCat)
	}

	if stats := loaded.GraphStats(); stats.Triples != 1 {
		t.Fatalf("graph = %+v", stats)
	}
	related := loaded.FindRelatedConcepts(tea.ID)
	if len(related) != 1 || related[0].OtherID != french.ID || related[0].Predicate != "relates_to" {
		t.Fatalf("related = %+v", related)
	}
}

func TestSemanticConceptsFileOmitsEmbeddings(t *testing.T) {
	stub := newStubEmbedder(4)
	stub.set("no vectors on disk", []float32{1, 0, 0, 0})
	m := NewManager(stub)
	if _, err := m.AddConcept(context.Background(), "no vectors on disk", model.CategoryGeneral, "test", 0.5); err != nil {
		t.Fatalf("AddConcept: %v", err)
	}
	p := newTestPersistence(t)
	if err := p.Save(m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(p.Dir(), conceptsFile))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(content) == "" {
		t.Fatalf("empty concepts file")
	}
	if strings.Contains(string(content), "mbedding") {
		t.Fatalf("embeddings leaked into JSON archive")
	}
}

func TestSemanticLoadMissingArchive(t *testing.T) {
	p := newTestPersistence(t)
	m, err := p.Load(context.Background(), newStubEmbedder(8))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Count() != 0 || m.GraphStats().Triples != 0 {
		t.Fatalf("expected empty manager")
	}
}

func TestSemanticLoadCorruptArchive(t *testing.T) {
	p := newTestPersistence(t)
	if err := os.WriteFile(filepath.Join(p.Dir(), conceptsFile), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := p.Load(context.Background(), newStubEmbedder(8)); err == nil {
		t.Fatalf("expected error for corrupt concepts file")
	}
}

func TestParseExtractionFences(t *testing.T) {
	concepts, err := parseExtraction("```json\n[{\"text\": \"user likes go\", \"category\": \"preferences\", \"confidence\": 0.8}]\n```")
	if err != nil {
		t.Fatalf("parseExtraction: %v", err)
	}
	if len(concepts) != 1 || concepts[0].Text != "user likes go" || concepts[0].Confidence != 0.8 {
		t.Fatalf("concepts = %+v", concepts)
	}

	empty, err := parseExtraction("[]")
	if err != nil {
		t.Fatalf("parseExtraction: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("empty array parsed as %+v", empty)
	}
}

func TestExtractRelationsFromText(t *testing.T) {
	m := NewManager(newStubEmbedder(16))
	ctx := context.Background()

	added, err := m.ExtractRelationsFromText(ctx, "alice likes pizza", "s1")
	if err != nil {
		t.Fatalf("ExtractRelationsFromText: %v", err)
	}
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	if m.Count() != 2 {
		t.Fatalf("count = %d, want 2", m.Count())
	}

	triples := m.Graph().FindByPredicate("likes")
	if len(triples) != 1 {
		t.Fatalf("triples = %+v", triples)
	}
	subject, _ := m.Get(triples[0].Subject)
	object, _ := m.Get(triples[0].Object)
	if subject.Text != "alice" || object.Text != "pizza" {
		t.Fatalf("relation endpoints = %q -> %q", subject.Text, object.Text)
	}
	if subject.Category != model.CategoryGeneral {
		t.Fatalf("pattern endpoint category = %v", subject.Category)
	}
	if triples[0].Confidence != relationConfidence {
		t.Fatalf("relation confidence = %v", triples[0].Confidence)
	}
}

type fixedExtractor struct {
	out []ExtractedConcept
}

func (f *fixedExtractor) Extract(context.Context, string, string, string) ([]ExtractedConcept, error) {
	return f.out, nil
}

func TestExtractFromDialogue(t *testing.T) {
	stub := newStubEmbedder(16)
	m := NewManager(stub).WithExtractor(&fixedExtractor{out: []ExtractedConcept{
		{Text: "user codes in go", Category: "skills", Confidence: 0.8},
		{Text: "   ", Category: "facts", Confidence: 0.9},
		{Text: "user drinks mate", Category: "nonsense", Confidence: 0.6},
	}})

	stored, err := m.ExtractFromDialogue(context.Background(), "I code in Go", "Nice!", "s1")
	if err != nil {
		t.Fatalf("ExtractFromDialogue: %v", err)
	}
	if stored != 2 {
		t.Fatalf("stored = %d, want 2", stored)
	}
	if got := m.ConceptsByCategory(model.CategorySkills); len(got) != 1 {
		t.Fatalf("skills index = %+v", got)
	}
	// Unknown category names fall back to general.
	if got := m.ConceptsByCategory(model.CategoryGeneral); len(got) != 1 {
		t.Fatalf("general index = %+v", got)
	}
}

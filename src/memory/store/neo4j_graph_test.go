package store

import (
	"context"
	"strings"
	"testing"

	"github.com/anamnesis-ai/anamnesis/src/memory/model"
	"github.com/google/uuid"
)

type fakeNeo4jDriver struct {
	queries []string
	params  []map[string]any
	rows    []map[string]any
	closed  bool
}

func (d *fakeNeo4jDriver) NewSession(context.Context, Neo4jSessionConfig) (neo4jSession, error) {
	return &fakeNeo4jSession{driver: d}, nil
}

func (d *fakeNeo4jDriver) Close(context.Context) error {
	d.closed = true
	return nil
}

type fakeNeo4jSession struct {
	driver *fakeNeo4jDriver
}

func (s *fakeNeo4jSession) Run(_ context.Context, query string, params map[string]any) (neo4jResult, error) {
	s.driver.queries = append(s.driver.queries, query)
	s.driver.params = append(s.driver.params, params)
	return &fakeNeo4jResult{rows: s.driver.rows}, nil
}

func (s *fakeNeo4jSession) Close(context.Context) error { return nil }

type fakeNeo4jResult struct {
	rows []map[string]any
	pos  int
}

func (r *fakeNeo4jResult) Next(context.Context) bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeNeo4jResult) Record() neo4jRecord {
	return fakeNeo4jRecord(r.rows[r.pos-1])
}

func (r *fakeNeo4jResult) Err() error                  { return nil }
func (r *fakeNeo4jResult) Close(context.Context) error { return nil }

type fakeNeo4jRecord map[string]any

func (r fakeNeo4jRecord) Get(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

func TestNeo4jGraphArchiveConcept(t *testing.T) {
	driver := &fakeNeo4jDriver{}
	graph, err := NewNeo4jGraph(driver, "memories")
	if err != nil {
		t.Fatalf("NewNeo4jGraph: %v", err)
	}

	concept := model.NewConcept("likes tea", model.CategoryPreferences, "manual", 0.8)
	if err := graph.ArchiveConcept(context.Background(), concept); err != nil {
		t.Fatalf("ArchiveConcept: %v", err)
	}
	if len(driver.queries) != 1 || !strings.Contains(driver.queries[0], "MERGE (c:Concept") {
		t.Fatalf("unexpected queries: %v", driver.queries)
	}
	if driver.params[0]["id"] != concept.ID.String() {
		t.Fatalf("concept id not passed: %v", driver.params[0])
	}
}

func TestNeo4jGraphNeighbors(t *testing.T) {
	otherID := uuid.New()
	driver := &fakeNeo4jDriver{rows: []map[string]any{{
		"id":         otherID.String(),
		"text":       "green tea",
		"predicate":  "likes",
		"confidence": 0.7,
	}}}
	graph, err := NewNeo4jGraph(driver, "")
	if err != nil {
		t.Fatalf("NewNeo4jGraph: %v", err)
	}

	neighbors, err := graph.Neighbors(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(neighbors) != 1 {
		t.Fatalf("got %d neighbors", len(neighbors))
	}
	n := neighbors[0]
	if n.ID != otherID || n.Text != "green tea" || n.Predicate != "likes" || n.Confidence != 0.7 {
		t.Fatalf("neighbor mismatch: %+v", n)
	}
}

func TestNeo4jGraphRemoveConceptAndClose(t *testing.T) {
	driver := &fakeNeo4jDriver{}
	graph, err := NewNeo4jGraph(driver, "")
	if err != nil {
		t.Fatalf("NewNeo4jGraph: %v", err)
	}
	if err := graph.RemoveConcept(context.Background(), uuid.New()); err != nil {
		t.Fatalf("RemoveConcept: %v", err)
	}
	if !strings.Contains(driver.queries[0], "DETACH DELETE") {
		t.Fatalf("expected detach delete, got %q", driver.queries[0])
	}
	if err := graph.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !driver.closed {
		t.Fatalf("driver not closed")
	}
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anamnesis-ai/anamnesis/src/memory/model"
	"github.com/google/uuid"
)

// Neo4jAccessMode controls whether a session is opened for read or write.
type Neo4jAccessMode string

const (
	AccessModeWrite Neo4jAccessMode = "write"
	AccessModeRead  Neo4jAccessMode = "read"
)

// Neo4jSessionConfig mirrors the subset of driver session configuration we use.
type Neo4jSessionConfig struct {
	AccessMode   Neo4jAccessMode
	DatabaseName string
}

// neo4jDriver abstracts the driver capabilities the graph archive needs so
// tests can supply fakes without the real driver package (which sits behind
// the neo4j build tag).
type neo4jDriver interface {
	NewSession(ctx context.Context, config Neo4jSessionConfig) (neo4jSession, error)
	Close(ctx context.Context) error
}

type neo4jSession interface {
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Close(ctx context.Context) error
}

type neo4jResult interface {
	Next(ctx context.Context) bool
	Record() neo4jRecord
	Err() error
	Close(ctx context.Context) error
}

type neo4jRecord interface {
	Get(key string) (any, bool)
}

// ErrNeo4jUnavailable is returned when graph operations run without a driver.
var ErrNeo4jUnavailable = errors.New("neo4j driver not configured")

// Neo4jGraph mirrors concepts and triples into a Neo4j database. Like the
// other archives it is a durable mirror; the in-process knowledge graph
// stays authoritative for traversal.
type Neo4jGraph struct {
	driver   neo4jDriver
	database string
}

var _ GraphArchive = (*Neo4jGraph)(nil)

// NewNeo4jGraph builds a graph archive over a wrapped driver.
func NewNeo4jGraph(driver neo4jDriver, database string) (*Neo4jGraph, error) {
	if driver == nil {
		return nil, errors.New("neo4j driver is nil")
	}
	return &Neo4jGraph{driver: driver, database: database}, nil
}

const (
	neo4jUpsertConceptCypher = `
MERGE (c:Concept {id: $id})
SET c.text = $text,
    c.category = $category,
    c.confidence = $confidence,
    c.source = $source,
    c.usage_count = $usage_count,
    c.created_at = $created_at,
    c.updated_at = $updated_at`

	neo4jUpsertTripleCypher = `
MATCH (s:Concept {id: $subject}), (o:Concept {id: $object})
MERGE (s)-[r:RELATES {id: $id}]->(o)
SET r.predicate = $predicate,
    r.confidence = $confidence,
    r.created_at = $created_at`

	neo4jRemoveConceptCypher = `
MATCH (c:Concept {id: $id})
DETACH DELETE c`

	neo4jNeighborsCypher = `
MATCH (c:Concept {id: $id})-[r:RELATES]-(other:Concept)
RETURN other.id AS id, other.text AS text, r.predicate AS predicate, r.confidence AS confidence`
)

// CreateSchema ensures uniqueness of Concept ids.
func (g *Neo4jGraph) CreateSchema(ctx context.Context) error {
	if g == nil || g.driver == nil {
		return ErrNeo4jUnavailable
	}
	return g.run(ctx, "CREATE CONSTRAINT IF NOT EXISTS FOR (c:Concept) REQUIRE c.id IS UNIQUE", nil)
}

// ArchiveConcept upserts a Concept node.
func (g *Neo4jGraph) ArchiveConcept(ctx context.Context, concept model.Concept) error {
	if g == nil || g.driver == nil {
		return nil
	}
	return g.run(ctx, neo4jUpsertConceptCypher, map[string]any{
		"id":          concept.ID.String(),
		"text":        concept.Text,
		"category":    concept.Category.String(),
		"confidence":  concept.Confidence,
		"source":      concept.Source,
		"usage_count": concept.UsageCount,
		"created_at":  concept.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":  concept.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// ArchiveTriple upserts a relationship between two mirrored concepts.
func (g *Neo4jGraph) ArchiveTriple(ctx context.Context, triple model.Triple) error {
	if g == nil || g.driver == nil {
		return nil
	}
	return g.run(ctx, neo4jUpsertTripleCypher, map[string]any{
		"id":         triple.ID.String(),
		"subject":    triple.Subject.String(),
		"object":     triple.Object.String(),
		"predicate":  triple.Predicate,
		"confidence": triple.Confidence,
		"created_at": triple.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// RemoveConcept deletes the node and all attached relationships.
func (g *Neo4jGraph) RemoveConcept(ctx context.Context, id uuid.UUID) error {
	if g == nil || g.driver == nil {
		return nil
	}
	return g.run(ctx, neo4jRemoveConceptCypher, map[string]any{"id": id.String()})
}

// Neighbor is one related concept row returned from the mirror.
type Neighbor struct {
	ID         uuid.UUID
	Text       string
	Predicate  string
	Confidence float64
}

// Neighbors queries the mirrored neighborhood of a concept.
func (g *Neo4jGraph) Neighbors(ctx context.Context, id uuid.UUID) ([]Neighbor, error) {
	if g == nil || g.driver == nil {
		return nil, ErrNeo4jUnavailable
	}
	session, err := g.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: g.database})
	if err != nil {
		return nil, fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)

	res, err := session.Run(ctx, neo4jNeighborsCypher, map[string]any{"id": id.String()})
	if err != nil {
		return nil, fmt.Errorf("neo4j neighbors: %w", err)
	}
	defer res.Close(ctx)

	var neighbors []Neighbor
	for res.Next(ctx) {
		rec := res.Record()
		if rec == nil {
			continue
		}
		var n Neighbor
		if raw, ok := rec.Get("id"); ok {
			if parsed, err := uuid.Parse(toString(raw)); err == nil {
				n.ID = parsed
			}
		}
		if raw, ok := rec.Get("text"); ok {
			n.Text = toString(raw)
		}
		if raw, ok := rec.Get("predicate"); ok {
			n.Predicate = toString(raw)
		}
		if raw, ok := rec.Get("confidence"); ok {
			n.Confidence = toFloat64(raw)
		}
		neighbors = append(neighbors, n)
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return neighbors, nil
}

// Close releases the underlying driver.
func (g *Neo4jGraph) Close(ctx context.Context) error {
	if g == nil || g.driver == nil {
		return nil
	}
	return g.driver.Close(ctx)
}

func (g *Neo4jGraph) run(ctx context.Context, query string, params map[string]any) error {
	session, err := g.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: g.database})
	if err != nil {
		return fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)

	res, err := session.Run(ctx, query, params)
	if err != nil {
		return fmt.Errorf("neo4j run: %w", err)
	}
	if res != nil {
		_ = res.Close(ctx)
	}
	return nil
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toFloat64(v any) float64 {
	switch value := v.(type) {
	case float64:
		return value
	case float32:
		return float64(value)
	case int64:
		return float64(value)
	case int:
		return float64(value)
	}
	return 0
}

package semantic

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/anamnesis-ai/anamnesis/src/memory/model"
)

// ErrConceptNotFound is returned when a relation endpoint does not exist.
var ErrConceptNotFound = errors.New("concept not found")

// Relation is one edge seen from a concept: the node on the other end, the
// predicate, and the triple's decayed confidence.
type Relation struct {
	OtherID    uuid.UUID
	Predicate  string
	Confidence float64
}

// GraphStats reports knowledge graph size.
type GraphStats struct {
	Triples    int `json:"triples"`
	Predicates int `json:"predicates"`
}

// Graph stores subject-predicate-object triples with three independent
// indexes so lookup is direct in any direction. Predicates are open
// strings; endpoint validation happens at the manager. Not safe for
// concurrent use on its own, the owning manager serializes access.
type Graph struct {
	triples     map[uuid.UUID]model.Triple
	bySubject   map[uuid.UUID][]uuid.UUID
	byObject    map[uuid.UUID][]uuid.UUID
	byPredicate map[string][]uuid.UUID
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		triples:     make(map[uuid.UUID]model.Triple),
		bySubject:   make(map[uuid.UUID][]uuid.UUID),
		byObject:    make(map[uuid.UUID][]uuid.UUID),
		byPredicate: make(map[string][]uuid.UUID),
	}
}

// AddTriple inserts a triple and indexes it. Returns the triple id.
func (g *Graph) AddTriple(triple model.Triple) uuid.UUID {
	g.triples[triple.ID] = triple
	g.bySubject[triple.Subject] = append(g.bySubject[triple.Subject], triple.ID)
	g.byObject[triple.Object] = append(g.byObject[triple.Object], triple.ID)
	g.byPredicate[triple.Predicate] = append(g.byPredicate[triple.Predicate], triple.ID)
	return triple.ID
}

// Get returns a triple by id.
func (g *Graph) Get(id uuid.UUID) (model.Triple, bool) {
	triple, ok := g.triples[id]
	return triple, ok
}

// Len reports the number of stored triples.
func (g *Graph) Len() int { return len(g.triples) }

func (g *Graph) collect(ids []uuid.UUID) []model.Triple {
	out := make([]model.Triple, 0, len(ids))
	for _, id := range ids {
		if triple, ok := g.triples[id]; ok {
			out = append(out, triple)
		}
	}
	return out
}

// FindBySubject lists triples whose subject is the given concept.
func (g *Graph) FindBySubject(conceptID uuid.UUID) []model.Triple {
	return g.collect(g.bySubject[conceptID])
}

// FindByObject lists triples whose object is the given concept.
func (g *Graph) FindByObject(conceptID uuid.UUID) []model.Triple {
	return g.collect(g.byObject[conceptID])
}

// FindByPredicate lists triples carrying the given predicate.
func (g *Graph) FindByPredicate(predicate string) []model.Triple {
	return g.collect(g.byPredicate[predicate])
}

// Related returns the union of outgoing and incoming edges of a concept,
// each with the triple's confidence decayed on a 90-day half-life.
func (g *Graph) Related(conceptID uuid.UUID) []Relation {
	now := time.Now().UTC()
	var relations []Relation
	for _, triple := range g.FindBySubject(conceptID) {
		relations = append(relations, Relation{
			OtherID:    triple.Object,
			Predicate:  triple.Predicate,
			Confidence: triple.EffectiveConfidence(now),
		})
	}
	for _, triple := range g.FindByObject(conceptID) {
		relations = append(relations, Relation{
			OtherID:    triple.Subject,
			Predicate:  triple.Predicate,
			Confidence: triple.EffectiveConfidence(now),
		})
	}
	return relations
}

// neighbors returns the distinct concepts adjacent to a node, ignoring
// edge direction.
func (g *Graph) neighbors(conceptID uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, tripleID := range g.bySubject[conceptID] {
		if triple, ok := g.triples[tripleID]; ok && !seen[triple.Object] {
			seen[triple.Object] = true
			out = append(out, triple.Object)
		}
	}
	for _, tripleID := range g.byObject[conceptID] {
		if triple, ok := g.triples[tripleID]; ok && !seen[triple.Subject] {
			seen[triple.Subject] = true
			out = append(out, triple.Subject)
		}
	}
	return out
}

// Paths finds every simple path between two concepts up to maxDepth hops,
// breadth-first over the undirected adjacency.
func (g *Graph) Paths(from, to uuid.UUID, maxDepth int) [][]uuid.UUID {
	if maxDepth <= 0 {
		return nil
	}
	var found [][]uuid.UUID
	queue := [][]uuid.UUID{{from}}
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		last := path[len(path)-1]

		if last == to && len(path) > 1 {
			found = append(found, path)
			continue
		}
		if len(path)-1 >= maxDepth {
			continue
		}
		for _, next := range g.neighbors(last) {
			if containsID(path, next) {
				continue
			}
			extended := make([]uuid.UUID, len(path), len(path)+1)
			copy(extended, path)
			queue = append(queue, append(extended, next))
		}
	}
	return found
}

// RemoveConceptTriples deletes every triple referencing the concept and
// returns how many were removed.
func (g *Graph) RemoveConceptTriples(conceptID uuid.UUID) int {
	doomed := make(map[uuid.UUID]bool)
	for _, tripleID := range g.bySubject[conceptID] {
		doomed[tripleID] = true
	}
	for _, tripleID := range g.byObject[conceptID] {
		doomed[tripleID] = true
	}
	for tripleID := range doomed {
		g.removeTriple(tripleID)
	}
	return len(doomed)
}

func (g *Graph) removeTriple(id uuid.UUID) {
	triple, ok := g.triples[id]
	if !ok {
		return
	}
	delete(g.triples, id)
	if rest := withoutID(g.bySubject[triple.Subject], id); len(rest) > 0 {
		g.bySubject[triple.Subject] = rest
	} else {
		delete(g.bySubject, triple.Subject)
	}
	if rest := withoutID(g.byObject[triple.Object], id); len(rest) > 0 {
		g.byObject[triple.Object] = rest
	} else {
		delete(g.byObject, triple.Object)
	}
	if rest := withoutID(g.byPredicate[triple.Predicate], id); len(rest) > 0 {
		g.byPredicate[triple.Predicate] = rest
	} else {
		delete(g.byPredicate, triple.Predicate)
	}
}

func withoutID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Triples returns a snapshot of every stored triple.
func (g *Graph) Triples() []model.Triple {
	out := make([]model.Triple, 0, len(g.triples))
	for _, triple := range g.triples {
		out = append(out, triple)
	}
	return out
}

// Replace swaps the graph contents for the given triples, rebuilding all
// indexes. Used on load.
func (g *Graph) Replace(triples []model.Triple) {
	g.triples = make(map[uuid.UUID]model.Triple, len(triples))
	g.bySubject = make(map[uuid.UUID][]uuid.UUID)
	g.byObject = make(map[uuid.UUID][]uuid.UUID)
	g.byPredicate = make(map[string][]uuid.UUID)
	for _, triple := range triples {
		g.AddTriple(triple)
	}
}

// Stats reports graph size.
func (g *Graph) Stats() GraphStats {
	return GraphStats{Triples: len(g.triples), Predicates: len(g.byPredicate)}
}

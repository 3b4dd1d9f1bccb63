package memory

import (
	embedpkg "github.com/anamnesis-ai/anamnesis/src/memory/embed"
	episodicpkg "github.com/anamnesis-ai/anamnesis/src/memory/episodic"
	"github.com/anamnesis-ai/anamnesis/src/memory/model"
	persistpkg "github.com/anamnesis-ai/anamnesis/src/memory/persist"
	semanticpkg "github.com/anamnesis-ai/anamnesis/src/memory/semantic"
	storepkg "github.com/anamnesis-ai/anamnesis/src/memory/store"
)

// Type aliases so callers can work against a single package.
type (
	MemoryEntry = model.MemoryEntry
	MemoryKind  = model.MemoryKind
	Session     = model.Session
	Turn        = model.Turn
	Concept     = model.Concept
	Category    = model.Category
	Triple      = model.Triple
	DecayParams = model.DecayParams

	VectorStore  = storepkg.VectorStore
	SearchResult = storepkg.SearchResult
	StoreStats   = storepkg.Stats
	EntryArchive = storepkg.EntryArchive
	GraphArchive = storepkg.GraphArchive

	EpisodicManager     = episodicpkg.Manager
	EpisodicPersistence = episodicpkg.Persistence
	EpisodicStats       = episodicpkg.Stats
	SessionAnalysis     = episodicpkg.SessionAnalysis

	SemanticManager     = semanticpkg.Manager
	SemanticPersistence = semanticpkg.Persistence
	ScoredConcept       = semanticpkg.ScoredConcept
	KnowledgeGraph      = semanticpkg.Graph
	Relation            = semanticpkg.Relation
	ConceptExtractor    = semanticpkg.ConceptExtractor
	DecayStats          = semanticpkg.DecayStats
	GraphStats          = semanticpkg.GraphStats

	Embedder      = embedpkg.Embedder
	DummyEmbedder = embedpkg.DummyEmbedder

	AutoSaver = persistpkg.AutoSaver
	Metadata  = persistpkg.Metadata
)

const (
	CategoryFacts       = model.CategoryFacts
	CategoryRules       = model.CategoryRules
	CategoryPreferences = model.CategoryPreferences
	CategorySkills      = model.CategorySkills
	CategoryGoals       = model.CategoryGoals
	CategoryGeneral     = model.CategoryGeneral
)

var (
	ErrDimensionMismatch = storepkg.ErrDimensionMismatch
	ErrUnknownCategory   = model.ErrUnknownCategory
	ErrConceptNotFound   = semanticpkg.ErrConceptNotFound

	NewMemoryEntry      = model.NewMemoryEntry
	NewConcept          = model.NewConcept
	NewTriple           = model.NewTriple
	CosineSimilarity    = model.CosineSimilarity
	ParseCategory       = model.ParseCategory
	Categories          = model.Categories
	DecayParamsFor      = model.DecayParamsFor
	NewVectorStore      = storepkg.NewVectorStore
	NewEpisodicManager  = episodicpkg.NewManager
	NewSemanticManager  = semanticpkg.NewManager
	NewDummyEmbedder    = embedpkg.NewDummyEmbedder
	AutoEmbedder        = embedpkg.AutoEmbedder
	NewLLMExtractor     = semanticpkg.NewLLMExtractor
	NewAutoSaver        = persistpkg.NewAutoSaver
	WriteFileAtomic     = persistpkg.WriteFileAtomic
)

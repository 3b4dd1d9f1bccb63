package embed

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
)

// Embedder is a pluggable text-embedding provider. Implementations must be
// safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dim() int
}

// ErrNotSupported is returned by providers that do not offer embeddings.
var ErrNotSupported = errors.New("embeddings not supported by this provider")

// DefaultDim is the dimension of the dummy fallback embedder.
const DefaultDim = 768

// ---------- Dummy (fallback) ----------

// DummyEmbedder hashes bytes into a fixed-size vector. Deterministic, cheap,
// and good enough for tests and offline runs.
type DummyEmbedder struct {
	dim int
}

func NewDummyEmbedder(dim int) DummyEmbedder {
	if dim <= 0 {
		dim = DefaultDim
	}
	return DummyEmbedder{dim: dim}
}

func (d DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DummyEmbedding(text, d.Dim()), nil
}

func (d DummyEmbedder) Dim() int {
	if d.dim <= 0 {
		return DefaultDim
	}
	return d.dim
}

// DummyEmbedding folds the text bytes into a dim-sized vector.
func DummyEmbedding(text string, dim int) []float32 {
	if dim <= 0 {
		dim = DefaultDim
	}
	vec := make([]float32, dim)
	for i, ch := range []byte(text) {
		vec[i%dim] += float32(ch) / 255.0
	}
	return vec
}

// AutoEmbedder chooses a provider from env:
// ANAMNESIS_EMBED_PROVIDER=openai|google|gemini|ollama|voyage|fastembed
// ANAMNESIS_EMBED_MODEL=<model string>
// Unset or failed providers fall back to the dummy embedder.
func AutoEmbedder() Embedder {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("ANAMNESIS_EMBED_PROVIDER")))
	model := strings.TrimSpace(os.Getenv("ANAMNESIS_EMBED_MODEL"))

	switch provider {
	case "openai":
		if e, err := NewOpenAIEmbedder(model); err == nil {
			return e
		}
	case "google", "gemini", "vertex", "vertexai":
		if e, err := NewGeminiEmbedder(model); err == nil {
			return e
		}
	case "ollama":
		if e, err := NewOllamaEmbedder(model); err == nil {
			return e
		}
	case "voyage", "claude", "anthropic":
		if e, err := NewVoyageEmbedder(model); err == nil {
			return e
		}
	case "fastembed":
		if opts := defaultFastEmbedOptions(); opts != nil {
			if e, err := NewFastEmbedder(context.Background(), opts); err == nil {
				return e
			}
		}
	}

	log.Printf("AutoEmbedder: falling back to DummyEmbedder")
	return NewDummyEmbedder(DefaultDim)
}

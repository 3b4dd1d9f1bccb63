//go:build !fastembed

package embed

import (
	"context"
	"fmt"
)

// Options configures the fastembed provider. Only meaningful when built
// with -tags fastembed.
type Options struct {
	Model     string
	CacheDir  string
	MaxLength int
	BatchSize int
}

type FastEmbedder struct{}

func defaultFastEmbedOptions() *Options { return nil }

func NewFastEmbedder(ctx context.Context, opt *Options) (Embedder, error) {
	return nil, fmt.Errorf("fastembed support not included; rebuild with -tags fastembed")
}

func (FastEmbedder) Close() error { return nil }

func (FastEmbedder) Dim() int { return 0 }

func (FastEmbedder) Embed(ctx context.Context, q string) ([]float32, error) {
	return nil, fmt.Errorf("fastembed support not included")
}

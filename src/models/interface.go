package models

import "context"

// Generator is a single-turn text generation surface. The memory substrate
// uses it only for concept extraction prompts; callers own prompt content.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

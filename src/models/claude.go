package models

import (
	"context"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeLLM implements Generator over Anthropic's Messages API.
type ClaudeLLM struct {
	Client *anthropic.Client
	Model  string
}

// NewClaudeLLM constructs a client. It reads ANTHROPIC_API_KEY from the env.
func NewClaudeLLM(model string) *ClaudeLLM {
	key := os.Getenv("ANTHROPIC_API_KEY")
	cl := anthropic.NewClient(
		anthropicopt.WithAPIKey(key),
	)
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &ClaudeLLM{Client: &cl, Model: model}
}

func (a *ClaudeLLM) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	msg, err := a.Client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String(), nil
}

var _ Generator = (*ClaudeLLM)(nil)

package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// OllamaLLM talks to a local Ollama daemon.
type OllamaLLM struct {
	Client *ollama.Client
	Model  string
}

func NewOllamaLLM(model string) (*OllamaLLM, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}
	httpClient := &http.Client{Timeout: 120 * time.Second}
	return &OllamaLLM{
		Client: ollama.NewClient(u, httpClient),
		Model:  model,
	}, nil
}

func (o *OllamaLLM) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	req := &ollama.GenerateRequest{
		Model:  o.Model,
		Prompt: prompt,
	}
	if maxTokens > 0 {
		req.Options = map[string]any{"num_predict": maxTokens}
	}

	var text strings.Builder
	if err := o.Client.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
		if gr.Response != "" {
			text.WriteString(gr.Response)
		}
		return nil
	}); err != nil {
		return "", err
	}
	return text.String(), nil
}

var _ Generator = (*OllamaLLM)(nil)

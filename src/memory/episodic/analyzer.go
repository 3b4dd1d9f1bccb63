package episodic

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/anamnesis-ai/anamnesis/src/memory/model"
	"github.com/anamnesis-ai/anamnesis/src/models"
	json "github.com/alpkeskin/gotoon"
)

// SessionAnalysis is an LLM-derived summary of the recent conversation.
type SessionAnalysis struct {
	Summary        string   `json:"summary"`
	KeyTopics      []string `json:"key_topics"`
	EmotionalState float64  `json:"emotional_state"`
	LastTopic      string   `json:"last_topic"`
	TurnCount      int      `json:"turn_count"`
}

// AnalyzeForContext summarizes the last maxTurns exchanges of the current
// session through the generator: a short summary, key topics, an estimated
// emotional state in [0,1], and the topic of the latest question.
func (m *Manager) AnalyzeForContext(ctx context.Context, gen models.Generator, maxTurns int) (SessionAnalysis, error) {
	m.mu.Lock()
	turns := append([]model.Turn(nil), m.current.LastTurns(maxTurns)...)
	m.mu.Unlock()

	analysis := SessionAnalysis{TurnCount: len(turns), EmotionalState: 0.5}
	if len(turns) == 0 {
		return analysis, nil
	}

	summary, err := summarizeTurns(ctx, gen, turns)
	if err != nil {
		return analysis, fmt.Errorf("summarize session: %w", err)
	}
	analysis.Summary = summary

	topics, err := extractTopics(ctx, gen, turns)
	if err != nil {
		return analysis, fmt.Errorf("extract topics: %w", err)
	}
	analysis.KeyTopics = topics

	state, err := analyzeEmotion(ctx, gen, turns)
	if err != nil {
		return analysis, fmt.Errorf("analyze emotions: %w", err)
	}
	analysis.EmotionalState = state

	lastTopic, err := extractLastTopic(ctx, gen, turns)
	if err != nil {
		return analysis, fmt.Errorf("extract last topic: %w", err)
	}
	analysis.LastTopic = lastTopic
	return analysis, nil
}

func joinTurns(turns []model.Turn, sep string) string {
	parts := make([]string, len(turns))
	for i, t := range turns {
		parts[i] = t.CombinedText()
	}
	return strings.Join(parts, sep)
}

func summarizeTurns(ctx context.Context, gen models.Generator, turns []model.Turn) (string, error) {
	prompt := fmt.Sprintf(
		"You analyze dialogues. Describe in 2-3 sentences what this conversation was about.\n\nDialogue:\n%s\n\nSummary:",
		joinTurns(turns, "\n"))
	out, err := gen.Generate(ctx, prompt, 300)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func extractTopics(ctx context.Context, gen models.Generator, turns []model.Turn) ([]string, error) {
	prompt := fmt.Sprintf(
		"Extract the key topics of this dialogue. Return only a JSON array of strings, "+
			"for example: [\"topic1\", \"topic2\"]. At most 5 topics, 1-2 words each.\n\nDialogue:\n%s\n\nTopics:",
		joinTurns(turns, "\n---\n"))
	out, err := gen.Generate(ctx, prompt, 200)
	if err != nil {
		return nil, err
	}
	return parseTopicList(out)
}

// parseTopicList tolerates code fences and missing brackets around the array.
func parseTopicList(response string) ([]string, error) {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var topics []string
	if err := json.Unmarshal([]byte(cleaned), &topics); err == nil {
		return topics, nil
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(cleaned, "["), "]")
	if err := json.Unmarshal([]byte("["+inner+"]"), &topics); err != nil {
		return nil, fmt.Errorf("parse topics %q: %w", response, err)
	}
	return topics, nil
}

func analyzeEmotion(ctx context.Context, gen models.Generator, turns []model.Turn) (float64, error) {
	prompt := fmt.Sprintf(
		"Rate the user's emotional state in this dialogue. Return only a number from 0.0 "+
			"(negative) to 1.0 (positive).\n\nDialogue:\n%s\n\nNumber:",
		joinTurns(turns, "\n---\n"))
	out, err := gen.Generate(ctx, prompt, 50)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse emotional state %q: %w", out, err)
	}
	return model.ClampConfidence(value), nil
}

func extractLastTopic(ctx context.Context, gen models.Generator, turns []model.Turn) (string, error) {
	last := turns[len(turns)-1]
	prompt := fmt.Sprintf(
		"Name the topic of the user's last question in 1-2 words.\nQuestion: %s\n\nTopic:",
		last.User)
	out, err := gen.Generate(ctx, prompt, 50)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

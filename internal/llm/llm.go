// Package llm talks to text-generation backends used to structure and
// reconcile lyrics.
package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Request is one generation call.
type Request struct {
	System string
	Prompt string
	// Schema, when set, asks the backend for JSON matching this JSON schema.
	Schema map[string]any
}

// Generator is implemented by every backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Model() string
}

// New picks a backend by provider name ("gemini" or "ollama").
func New(provider, baseURL, apiKey, model string) (Generator, error) {
	switch strings.ToLower(provider) {
	case "gemini", "":
		if apiKey == "" {
			return nil, fmt.Errorf("gemini: GEMINI_API_KEY not set")
		}
		return NewGeminiClient(baseURL, apiKey, model), nil
	case "ollama":
		return NewOllamaClient(baseURL, model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

// LyricSchema describes the array of {text, startTime} objects every
// lyric prompt asks for.
var LyricSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "A single, meaningful line of the song lyrics, suitable for display.",
			},
			"startTime": map[string]any{
				"type":        "number",
				"description": "The time in seconds when this lyric line should start appearing.",
			},
		},
		"required": []string{"text", "startTime"},
	},
}

// CleanJSON strips common LLM artifacts around a JSON payload:
// leaked think blocks, markdown code fences and leading prose.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)

	// Strip thinking tags (reasoning models leak these)
	if idx := strings.Index(s, "</think>"); idx >= 0 {
		s = strings.TrimSpace(s[idx+len("</think>"):])
	}

	// Strip ```json ... ``` fences
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	// Drop preambles like "Here is the JSON:" before the payload
	if i := strings.IndexAny(s, "[{"); i > 0 {
		s = s[i:]
	}
	return strings.TrimSpace(s)
}

// Truncate shortens s to at most n bytes plus an ellipsis, cutting on a
// rune boundary so multi-byte text stays valid UTF-8.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

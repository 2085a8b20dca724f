package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// OllamaClient talks to a local Ollama API.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClient creates an Ollama client.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // first call loads the model
		},
	}
}

// generateRequest is the Ollama /api/generate request body.
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Format  any            `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// generateResponse is the Ollama /api/generate response.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Available checks if Ollama is reachable.
func (c *OllamaClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == 200
}

// Generate sends a prompt with a system message and returns the response text.
func (c *OllamaClient) Generate(ctx context.Context, r Request) (string, error) {
	body := generateRequest{
		Model:  c.model,
		Prompt: r.Prompt,
		System: r.System,
		Stream: false,
		Options: map[string]any{
			"temperature": 0.2, // timing output should be stable, not creative
			"top_p":       0.9,
		},
	}
	if r.Schema != nil {
		body.Format = r.Schema
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	return strings.TrimSpace(result.Response), nil
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// WaitForReady polls Ollama until it responds or ctx expires.
func (c *OllamaClient) WaitForReady(ctx context.Context) bool {
	if c.Available(ctx) {
		return true
	}
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if c.Available(ctx) {
				log.Printf("Ollama ready (model: %s)", c.model)
				return true
			}
		}
	}
}

package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	// Dialect names the target engine so the model emits matching SQL and
	// placeholder syntax (e.g. "sqlite" uses ?, "postgres" uses $1).
	Dialect string
}

// OpenAITranslator generates query plans through an OpenAI-compatible chat
// completions endpoint.
type OpenAITranslator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	dialect     string
	client      *http.Client
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	dialect := strings.TrimSpace(cfg.Dialect)
	if dialect == "" {
		dialect = "sqlite"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAITranslator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		dialect:     dialect,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Command, error) {
	body, err := json.Marshal(t.buildPayload(req))
	if err != nil {
		return Command{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Command{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Command{}, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Command{}, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Command{}, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Command{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Command{}, fmt.Errorf("empty chat completion choices")
	}

	return ParseCommand(parsed.Choices[0].Message.Content)
}

func (t *OpenAITranslator) buildPayload(req Request) map[string]any {
	systemPrompt := fmt.Sprintf(
		"You translate user requests into parameterized %s SQL. "+
			"Reply with ONLY a JSON object, no markdown, of the shape "+
			`{"tool":"execute_sql","queries":[{"sql":"...","params":[],"operation":"SELECT|INSERT|UPDATE|DELETE"}],"explanation":"...","isBulk":false}.`,
		t.dialect,
	)
	userPrompt := fmt.Sprintf(
		"Database schema:\n%s\n\nUser request:\n%s\n\nRules:\n"+
			"- Use positional placeholders for every user-supplied value; never inline literals from the request.\n"+
			"- Declare the operation of each query truthfully.\n"+
			"- Set isBulk true only when several statements must succeed or fail together.\n"+
			"- Use only tables and columns from the schema.",
		req.SchemaText,
		strings.TrimSpace(req.Message),
	)

	return map[string]any{
		"model": t.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": t.temperature,
	}
}

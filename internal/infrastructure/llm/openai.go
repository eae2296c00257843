package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsforge/internal/config"
	"newsforge/internal/ports"
	"newsforge/internal/ratelimit"
)

const limiterKey = "openai"

const systemPrompt = `You score content for a personalized newsletter.
For every item in the user's JSON array, judge relevance to the given
interests (0.0-1.0), intrinsic quality (0.0-1.0), and write a one-sentence
summary. Respond with a JSON array of objects {"relevance": number,
"quality": number, "summary": string}, one per input item, same order, and
nothing else.`

// Client implements ports.Analyzer backed by OpenAI-compatible chat
// completion APIs.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

var _ ports.Analyzer = (*Client)(nil)

// NewClient builds an analyzer from configuration.
func NewClient(cfg config.OpenAIConfig, limiter *ratelimit.Limiter) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: limiter,
	}
}

type analysisItem struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}

type analysisResult struct {
	Relevance float64 `json:"relevance"`
	Quality   float64 `json:"quality"`
	Summary   string  `json:"summary"`
}

// Analyze scores one batch of items against the interests. The request is
// deterministic in shape, so retrying it is safe.
func (c *Client) Analyze(ctx context.Context, batch []ports.AnalysisInput, interests []string) ([]ports.Analysis, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return nil, fmt.Errorf("openai client misconfigured")
	}
	if err := c.limiter.Acquire(limiterKey); err != nil {
		return nil, err
	}

	items := make([]analysisItem, len(batch))
	for i, input := range batch {
		items[i] = analysisItem{ID: input.ID, Title: input.Title, Excerpt: input.Excerpt}
	}
	userPayload, err := json.Marshal(map[string]any{
		"interests": interests,
		"items":     items,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal analysis payload: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"temperature": 0,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": string(userPayload)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyze batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("openai error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("completion has no choices")
	}

	var results []analysisResult
	content := stripFences(completion.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &results); err != nil {
		return nil, fmt.Errorf("parse analysis content: %w", err)
	}

	analyses := make([]ports.Analysis, len(results))
	for i, r := range results {
		analyses[i] = ports.Analysis{
			Relevance: r.Relevance,
			Quality:   r.Quality,
			Summary:   r.Summary,
		}
	}
	return analyses, nil
}

// stripFences removes a surrounding markdown code fence, which models add
// despite instructions.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

package sources

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
	"newsforge/internal/domain"
	"newsforge/internal/ports"
	"newsforge/internal/ratelimit"
)

const extractorKind = "extractor"

const maxExcerptLen = 600

// Extractor turns configured seed URLs into content items by running them
// through a Firecrawl-style full-text extraction service.
type Extractor struct {
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *ratelimit.Limiter
}

var _ ports.Source = (*Extractor)(nil)

// NewExtractor wires the full-text extraction source.
func NewExtractor(cfg config.ExtractorConfig, limiter *ratelimit.Limiter, client *http.Client) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Extractor{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   client,
		limiter:  limiter,
	}
}

// Kind identifies the adapter inside the registry.
func (e *Extractor) Kind() string { return extractorKind }

// Fetch extracts every seed URL listed in the source params. A failing
// seed ends the fetch; items extracted before the failure are still
// returned.
func (e *Extractor) Fetch(ctx context.Context, query domain.SourceQuery) ([]domain.ContentItem, error) {
	seeds := splitSeeds(query.Params["urls"])
	if len(seeds) == 0 {
		return nil, fmt.Errorf("source %s: missing urls param", query.SourceID)
	}

	var items []domain.ContentItem
	for _, seed := range seeds {
		if len(items) >= query.MaxItems {
			break
		}
		if err := e.limiter.Acquire(extractorKind); err != nil {
			return items, err
		}

		item, err := e.scrape(ctx, seed, query.SourceID)
		if err != nil {
			return items, fmt.Errorf("extract %s: %w", seed, err)
		}
		items = append(items, item)
	}

	return items, nil
}

func (e *Extractor) scrape(ctx context.Context, seed, sourceID string) (domain.ContentItem, error) {
	body, err := json.Marshal(map[string]any{
		"url":     seed,
		"formats": []string{"markdown"},
	})
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/v1/scrape", bytes.NewReader(body))
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.ContentItem{}, fmt.Errorf("extractor returned %s: %s", resp.Status, payload)
	}

	var payload struct {
		Data struct {
			Markdown string `json:"markdown"`
			Metadata struct {
				Title     string `json:"title"`
				SourceURL string `json:"sourceURL"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.ContentItem{}, fmt.Errorf("decode response: %w", err)
	}

	title := payload.Data.Metadata.Title
	if title == "" {
		title = seed
	}

	return domain.ContentItem{
		SourceID: sourceID,
		Kind:     extractorKind,
		URL:      seed,
		Title:    title,
		Excerpt:  truncate(payload.Data.Markdown, maxExcerptLen),
		Metadata: map[string]string{"extracted": "true"},
	}, nil
}

func splitSeeds(raw string) []string {
	var seeds []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			seeds = append(seeds, trimmed)
		}
	}
	return seeds
}

func truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

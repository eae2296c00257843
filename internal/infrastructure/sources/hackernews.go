package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"newsforge/internal/config"
	"newsforge/internal/domain"
	"newsforge/internal/ports"
	"newsforge/internal/ratelimit"
)

const hackerNewsKind = "hackernews"

// HackerNews collects forum stories per interest via the Algolia search
// API.
type HackerNews struct {
	endpoint string
	client   *http.Client
	limiter  *ratelimit.Limiter
}

var _ ports.Source = (*HackerNews)(nil)

// NewHackerNews wires the forum/posts source.
func NewHackerNews(cfg config.HackerNewsConfig, limiter *ratelimit.Limiter, client *http.Client) *HackerNews {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HackerNews{endpoint: cfg.Endpoint, client: client, limiter: limiter}
}

// Kind identifies the adapter inside the registry.
func (h *HackerNews) Kind() string { return hackerNewsKind }

// Fetch searches stories per interest until the item budget is spent.
func (h *HackerNews) Fetch(ctx context.Context, query domain.SourceQuery) ([]domain.ContentItem, error) {
	var items []domain.ContentItem

	for _, interest := range query.Interests {
		if len(items) >= query.MaxItems {
			break
		}
		if err := h.limiter.Acquire(hackerNewsKind); err != nil {
			return items, err
		}

		hits, err := h.search(ctx, interest, query.MaxItems-len(items))
		if err != nil {
			return items, fmt.Errorf("search %q: %w", interest, err)
		}
		for _, hit := range hits {
			storyURL := hit.URL
			if storyURL == "" {
				storyURL = "https://news.ycombinator.com/item?id=" + hit.ObjectID
			}
			items = append(items, domain.ContentItem{
				SourceID:    query.SourceID,
				Kind:        hackerNewsKind,
				URL:         storyURL,
				Title:       hit.Title,
				Excerpt:     hit.StoryText,
				PublishedAt: hit.CreatedAt,
				Metadata: map[string]string{
					"points":   strconv.Itoa(hit.Points),
					"comments": strconv.Itoa(hit.NumComments),
					"author":   hit.Author,
					"interest": interest,
				},
			})
		}
	}

	return items, nil
}

type hackerNewsHit struct {
	ObjectID    string    `json:"objectID"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	StoryText   string    `json:"story_text"`
	Author      string    `json:"author"`
	Points      int       `json:"points"`
	NumComments int       `json:"num_comments"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *HackerNews) search(ctx context.Context, interest string, limit int) ([]hackerNewsHit, error) {
	endpoint := fmt.Sprintf("%s/search?query=%s&tags=story&hitsPerPage=%d",
		h.endpoint, url.QueryEscape(interest), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("hackernews returned %s: %s", resp.Status, body)
	}

	var payload struct {
		Hits []hackerNewsHit `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return payload.Hits, nil
}

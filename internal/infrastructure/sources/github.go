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

const githubKind = "github"

// GitHub collects repository activity matching the user's interests via
// the repository search API.
type GitHub struct {
	endpoint string
	token    string
	client   *http.Client
	limiter  *ratelimit.Limiter
}

var _ ports.Source = (*GitHub)(nil)

// NewGitHub wires the repository-activity source.
func NewGitHub(cfg config.GitHubConfig, limiter *ratelimit.Limiter, client *http.Client) *GitHub {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &GitHub{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		client:   client,
		limiter:  limiter,
	}
}

// Kind identifies the adapter inside the registry.
func (g *GitHub) Kind() string { return githubKind }

// Fetch searches repositories per interest until the item budget is spent.
// Partial results accompany any error.
func (g *GitHub) Fetch(ctx context.Context, query domain.SourceQuery) ([]domain.ContentItem, error) {
	var items []domain.ContentItem

	for _, interest := range query.Interests {
		if len(items) >= query.MaxItems {
			break
		}
		if err := g.limiter.Acquire(githubKind); err != nil {
			return items, err
		}

		page, err := g.search(ctx, interest, query.MaxItems-len(items))
		if err != nil {
			return items, fmt.Errorf("search %q: %w", interest, err)
		}
		for _, repo := range page {
			items = append(items, domain.ContentItem{
				SourceID:    query.SourceID,
				Kind:        githubKind,
				URL:         repo.HTMLURL,
				Title:       repo.FullName,
				Excerpt:     repo.Description,
				PublishedAt: repo.PushedAt,
				Metadata: map[string]string{
					"stars":    strconv.Itoa(repo.Stars),
					"language": repo.Language,
					"interest": interest,
				},
			})
		}
	}

	return items, nil
}

type githubRepo struct {
	FullName    string    `json:"full_name"`
	HTMLURL     string    `json:"html_url"`
	Description string    `json:"description"`
	PushedAt    time.Time `json:"pushed_at"`
	Stars       int       `json:"stargazers_count"`
	Language    string    `json:"language"`
}

func (g *GitHub) search(ctx context.Context, interest string, limit int) ([]githubRepo, error) {
	endpoint := fmt.Sprintf("%s/search/repositories?q=%s&sort=stars&order=desc&per_page=%d",
		g.endpoint, url.QueryEscape(interest), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("github returned %s: %s", resp.Status, body)
	}

	var payload struct {
		Items []githubRepo `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return payload.Items, nil
}

package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newsforge/internal/domain"
	"newsforge/internal/ports"
	"newsforge/internal/ratelimit"
)

const trendingKind = "trending"

// Default selectors fit common listing markup; per-source params override
// them for sites with different structure.
const (
	defaultItemSelector  = "article"
	defaultTitleSelector = "h2"
	defaultLinkSelector  = "a"
)

// Trending scrapes a configured trending-stories page and extracts entries
// with goquery.
type Trending struct {
	client  *http.Client
	limiter *ratelimit.Limiter
}

var _ ports.Source = (*Trending)(nil)

// NewTrending wires the trending-stories scraper.
func NewTrending(limiter *ratelimit.Limiter, client *http.Client) *Trending {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Trending{client: client, limiter: limiter}
}

// Kind identifies the adapter inside the registry.
func (t *Trending) Kind() string { return trendingKind }

// Fetch scrapes the page configured in the source params.
func (t *Trending) Fetch(ctx context.Context, query domain.SourceQuery) ([]domain.ContentItem, error) {
	pageURL := query.Params["url"]
	if pageURL == "" {
		return nil, fmt.Errorf("source %s: missing url param", query.SourceID)
	}

	if err := t.limiter.Acquire(trendingKind); err != nil {
		return nil, err
	}

	doc, err := t.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	items := t.extractItems(doc, pageURL, query)
	return items, nil
}

func (t *Trending) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "newsforge/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trending page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (t *Trending) extractItems(doc *goquery.Document, pageURL string, query domain.SourceQuery) []domain.ContentItem {
	itemSel := paramOr(query.Params, "itemSelector", defaultItemSelector)
	titleSel := paramOr(query.Params, "titleSelector", defaultTitleSelector)
	linkSel := paramOr(query.Params, "linkSelector", defaultLinkSelector)

	base, _ := url.Parse(pageURL)

	var items []domain.ContentItem
	doc.Find(itemSel).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if len(items) >= query.MaxItems {
			return false
		}

		title := strings.TrimSpace(sel.Find(titleSel).First().Text())
		href, _ := sel.Find(linkSel).First().Attr("href")
		if title == "" || href == "" {
			return true
		}
		if base != nil {
			if resolved, err := base.Parse(href); err == nil {
				href = resolved.String()
			}
		}

		excerpt := strings.TrimSpace(sel.Find("p").First().Text())

		items = append(items, domain.ContentItem{
			SourceID: query.SourceID,
			Kind:     trendingKind,
			URL:      href,
			Title:    title,
			Excerpt:  excerpt,
			Metadata: map[string]string{"page": pageURL},
		})
		return true
	})

	return items
}

func paramOr(params map[string]string, key, fallback string) string {
	if v := params[key]; v != "" {
		return v
	}
	return fallback
}

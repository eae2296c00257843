package collect

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"newsforge/internal/domain"
)

// Collector fans out one fetch task per configured source, waits for every
// task to reach a terminal state, and merges the results. A slow or broken
// source never blocks or fails the stage: its failure is returned as an
// ErrorRecord next to whatever the other sources produced.
type Collector struct {
	registry      *Registry
	sourceTimeout time.Duration
	maxItems      int
	logger        *slog.Logger
}

// NewCollector wires the source registry with stage-level bounds.
func NewCollector(registry *Registry, sourceTimeout time.Duration, maxItems int, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		registry:      registry,
		sourceTimeout: sourceTimeout,
		maxItems:      maxItems,
		logger:        logger,
	}
}

type fetchResult struct {
	sourceID string
	items    []domain.ContentItem
	err      error
}

// Collect runs all configured sources concurrently and returns the
// deduplicated union plus per-source error records. An empty union is a
// valid result, not an error; the curator decides what that means.
func (c *Collector) Collect(ctx context.Context, profile *domain.UserProfile) ([]domain.ContentItem, []domain.ErrorRecord) {
	results := make([]fetchResult, len(profile.Sources))

	var g errgroup.Group
	for i, spec := range profile.Sources {
		i, spec := i, spec
		g.Go(func() error {
			results[i] = c.fetchOne(ctx, profile, spec)
			return nil
		})
	}
	// Barrier: no stage after collection starts before every task is done.
	_ = g.Wait()

	var records []domain.ErrorRecord
	seen := map[string]struct{}{}
	var merged []domain.ContentItem

	// Merge in profile order so source priority decides duplicate survival.
	for _, res := range results {
		if res.err != nil {
			records = append(records, errorRecord(res.sourceID, res.err))
		}
		for _, item := range res.items {
			key := NormalizeURL(item.URL)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, item)
		}
	}

	c.logger.Info("collection finished",
		"sources", len(profile.Sources),
		"items", len(merged),
		"errors", len(records))

	return merged, records
}

func (c *Collector) fetchOne(ctx context.Context, profile *domain.UserProfile, spec domain.SourceSpec) fetchResult {
	sourceID := spec.EffectiveID()

	source, err := c.registry.Resolve(spec.Kind)
	if err != nil {
		return fetchResult{sourceID: sourceID, err: err}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.sourceTimeout)
	defer cancel()

	query := domain.SourceQuery{
		SourceID:  sourceID,
		Interests: profile.Interests,
		MaxItems:  c.maxItems,
		Params:    spec.Params,
	}

	items, err := source.Fetch(fetchCtx, query)
	for i := range items {
		if items[i].SourceID == "" {
			items[i].SourceID = sourceID
		}
		if items[i].Kind == "" {
			items[i].Kind = spec.Kind
		}
	}

	if err != nil {
		c.logger.Warn("source fetch failed",
			"source", sourceID, "partial_items", len(items), "error", err)
	} else {
		c.logger.Debug("source fetch done", "source", sourceID, "items", len(items))
	}

	return fetchResult{sourceID: sourceID, items: items, err: err}
}

func errorRecord(sourceID string, err error) domain.ErrorRecord {
	kind := domain.ErrKindSource
	var rle *domain.RateLimitedError
	switch {
	case errors.As(err, &rle):
		kind = domain.ErrKindRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		kind = domain.ErrKindTimeout
	}
	return domain.ErrorRecord{
		Stage:       domain.StageCollecting,
		Kind:        kind,
		Message:     sourceID + ": " + err.Error(),
		Recoverable: true,
		OccurredAt:  time.Now().UTC(),
	}
}

// NormalizeURL reduces a URL to its deduplication key: lowercase host
// without www, path without trailing slash, tracking params and fragment
// stripped.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")

	path := strings.TrimSuffix(u.Path, "/")

	query := u.Query()
	for param := range query {
		if strings.HasPrefix(param, "utm_") || param == "ref" {
			query.Del(param)
		}
	}

	normalized := host + path
	if encoded := query.Encode(); encoded != "" {
		normalized += "?" + encoded
	}
	return normalized
}

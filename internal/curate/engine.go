package curate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"newsforge/internal/domain"
	"newsforge/internal/ports"
)

// Config declares the curation thresholds and analysis bounds.
type Config struct {
	BatchSize           int
	AnalysisRetries     int
	AnalysisBackoff     time.Duration
	MinCompositeScore   float64
	DefaultQualityFloor float64
}

// Engine scores, filters, ranks, and truncates collected items into a
// bounded newsletter structure.
type Engine struct {
	analyzer ports.Analyzer
	cfg      Config
	logger   *slog.Logger
	sleep    func(time.Duration)
}

// NewEngine wires the AI analyzer with the curation policy.
func NewEngine(analyzer ports.Analyzer, cfg Config, logger *slog.Logger) *Engine {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger,
		sleep:    time.Sleep,
	}
}

// Curate produces the newsletter structure for the given items. Failed
// analysis batches are dropped and reported as error records unless every
// batch fails, which is fatal. Zero surviving items yields
// domain.ErrInsufficientContent rather than an empty structure.
func (e *Engine) Curate(ctx context.Context, items []domain.ContentItem, profile *domain.UserProfile) (*domain.Newsletter, []domain.ErrorRecord, error) {
	if len(items) == 0 {
		return nil, nil, domain.ErrInsufficientContent
	}

	scored, records, err := e.analyzeAll(ctx, items, profile.Interests)
	if err != nil {
		return nil, records, err
	}

	survivors := e.filter(scored, profile)
	e.logger.Info("curation filtering done",
		"analyzed", len(scored), "survivors", len(survivors))

	if len(survivors) == 0 {
		return nil, records, domain.ErrInsufficientContent
	}

	newsletter := e.compose(survivors, profile)
	return newsletter, records, nil
}

func (e *Engine) analyzeAll(ctx context.Context, items []domain.ContentItem, interests []string) ([]domain.ScoredItem, []domain.ErrorRecord, error) {
	var (
		scored       []domain.ScoredItem
		records      []domain.ErrorRecord
		batchCount   int
		failedCount  int
		lastBatchErr error
	)

	for start := 0; start < len(items); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]
		batchCount++

		analyses, err := e.analyzeBatch(ctx, batch, interests)
		if err != nil {
			failedCount++
			lastBatchErr = err
			records = append(records, domain.ErrorRecord{
				Stage:       domain.StageCurating,
				Kind:        domain.ErrKindAnalysis,
				Message:     fmt.Sprintf("batch %d (%d items) dropped: %v", batchCount, len(batch), err),
				Recoverable: true,
				OccurredAt:  time.Now().UTC(),
			})
			continue
		}

		for i, item := range batch {
			scored = append(scored, domain.ScoredItem{
				Item:      item,
				Relevance: clamp01(analyses[i].Relevance),
				Quality:   clamp01(analyses[i].Quality),
				Composite: domain.CompositeScore(clamp01(analyses[i].Relevance), clamp01(analyses[i].Quality)),
				Summary:   analyses[i].Summary,
			})
		}
	}

	if failedCount == batchCount {
		return nil, records, &domain.AnalysisError{Batches: batchCount, Err: lastBatchErr}
	}
	return scored, records, nil
}

// analyzeBatch retries a failed analysis call with exponential backoff up
// to the configured budget. Retries reuse the identical request; the
// analyzer contract makes that idempotent.
func (e *Engine) analyzeBatch(ctx context.Context, batch []domain.ContentItem, interests []string) ([]ports.Analysis, error) {
	inputs := make([]ports.AnalysisInput, len(batch))
	for i, item := range batch {
		inputs[i] = ports.AnalysisInput{
			ID:      item.SourceID + "/" + item.URL,
			Title:   item.Title,
			Excerpt: item.Excerpt,
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.AnalysisRetries; attempt++ {
		if attempt > 0 {
			e.sleep(e.cfg.AnalysisBackoff << (attempt - 1))
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		analyses, err := e.analyzer.Analyze(ctx, inputs, interests)
		if err == nil && len(analyses) != len(inputs) {
			err = fmt.Errorf("analyzer returned %d results for %d inputs", len(analyses), len(inputs))
		}
		if err == nil {
			return analyses, nil
		}

		lastErr = err
		e.logger.Warn("analysis attempt failed",
			"attempt", attempt+1, "batch_size", len(batch), "error", err)
	}
	return nil, lastErr
}

// filter applies the two declared floors: the hard composite floor is a
// closed bound (exactly MinCompositeScore survives), and the quality floor
// comes from the profile when set, otherwise the configured default.
func (e *Engine) filter(scored []domain.ScoredItem, profile *domain.UserProfile) []domain.ScoredItem {
	floor := profile.QualityFloor
	if floor <= 0 {
		floor = e.cfg.DefaultQualityFloor
	}

	var survivors []domain.ScoredItem
	for _, item := range scored {
		if item.Composite < e.cfg.MinCompositeScore {
			continue
		}
		if item.Quality < floor {
			continue
		}
		survivors = append(survivors, item)
	}
	return survivors
}

func (e *Engine) compose(survivors []domain.ScoredItem, profile *domain.UserProfile) *domain.Newsletter {
	priority := profile.SourcePriority()

	grouped := map[string][]domain.ScoredItem{}
	for _, item := range survivors {
		key := sectionKey(item.Item.Kind)
		grouped[key] = append(grouped[key], item)
	}

	for key := range grouped {
		sortItems(grouped[key], priority)
	}

	quotas := distributeCap(grouped, profile.MaxArticles)

	newsletter := &domain.Newsletter{}
	for _, key := range sectionOrder {
		items := grouped[key]
		quota := quotas[key]
		if quota == 0 || len(items) == 0 {
			continue
		}
		if quota > len(items) {
			quota = len(items)
		}
		def := sectionDefs[key]
		newsletter.Sections = append(newsletter.Sections, domain.Section{
			Title: def.Title,
			Tag:   def.Tag,
			Items: items[:quota],
		})
	}
	return newsletter
}

// sortItems orders by composite score descending, then most recent
// publication, then source priority order, then source ID lexically. The
// chain leaves no ambiguity, so curation is reproducible.
func sortItems(items []domain.ScoredItem, priority map[string]int) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Composite != b.Composite {
			return a.Composite > b.Composite
		}
		if !a.Item.PublishedAt.Equal(b.Item.PublishedAt) {
			return a.Item.PublishedAt.After(b.Item.PublishedAt)
		}
		pa, pb := priorityOf(priority, a.Item.SourceID), priorityOf(priority, b.Item.SourceID)
		if pa != pb {
			return pa < pb
		}
		return a.Item.SourceID < b.Item.SourceID
	})
}

func priorityOf(priority map[string]int, sourceID string) int {
	if p, ok := priority[sourceID]; ok {
		return p
	}
	return len(priority)
}

// distributeCap splits the overall article cap across sections
// proportionally to their surviving-item counts; remainder slots go to
// sections whose best item scores highest.
func distributeCap(grouped map[string][]domain.ScoredItem, limit int) map[string]int {
	total := 0
	for _, items := range grouped {
		total += len(items)
	}
	quotas := map[string]int{}
	if total == 0 || limit <= 0 {
		return quotas
	}
	if total <= limit {
		for key, items := range grouped {
			quotas[key] = len(items)
		}
		return quotas
	}

	assigned := 0
	for key, items := range grouped {
		quotas[key] = limit * len(items) / total
		assigned += quotas[key]
	}

	// Remainder order: sections ranked by top-item composite, the taxonomy
	// order breaking exact score ties.
	var keys []string
	for _, key := range sectionOrder {
		if len(grouped[key]) > 0 {
			keys = append(keys, key)
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return grouped[keys[i]][0].Composite > grouped[keys[j]][0].Composite
	})

	for assigned < limit {
		progressed := false
		for _, key := range keys {
			if assigned == limit {
				break
			}
			if quotas[key] < len(grouped[key]) {
				quotas[key]++
				assigned++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return quotas
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"newsforge/internal/collect"
	"newsforge/internal/curate"
	"newsforge/internal/deliver"
	"newsforge/internal/domain"
	"newsforge/internal/ports"
)

type stubSource struct {
	kind  string
	items []domain.ContentItem
	err   error
	calls int
}

func (s *stubSource) Kind() string { return s.kind }

func (s *stubSource) Fetch(ctx context.Context, query domain.SourceQuery) ([]domain.ContentItem, error) {
	s.calls++
	return s.items, s.err
}

// titleAnalyzer maps item titles to scores; the relevance and quality are
// equal so the composite equals the configured score.
type titleAnalyzer struct {
	scores map[string]float64
	err    error
}

func (a *titleAnalyzer) Analyze(ctx context.Context, batch []ports.AnalysisInput, interests []string) ([]ports.Analysis, error) {
	if a.err != nil {
		return nil, a.err
	}
	out := make([]ports.Analysis, len(batch))
	for i, input := range batch {
		score := a.scores[input.Title]
		out[i] = ports.Analysis{Relevance: score, Quality: score, Summary: "sum"}
	}
	return out, nil
}

type stubRenderer struct {
	err   error
	calls int
}

func (r *stubRenderer) Render(newsletter *domain.Newsletter, profile *domain.UserProfile) (domain.Artifact, error) {
	r.calls++
	if r.err != nil {
		return domain.Artifact{}, r.err
	}
	return domain.Artifact{
		Subject: fmt.Sprintf("%d stories", newsletter.TotalArticles()),
		HTML:    []byte("<html></html>"),
		Text:    []byte("text"),
	}, nil
}

type stubDeliverer struct {
	err   error
	calls int
}

func (d *stubDeliverer) Deliver(ctx context.Context, artifact domain.Artifact, address string) (string, error) {
	d.calls++
	if d.err != nil {
		return "", d.err
	}
	return "msg-1", nil
}

type captureSink struct {
	summaries []domain.RunSummary
	err       error
}

func (s *captureSink) Record(ctx context.Context, summary domain.RunSummary) error {
	s.summaries = append(s.summaries, summary)
	return s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	engine    *Engine
	renderer  *stubRenderer
	deliverer *stubDeliverer
	sink      *captureSink
	sources   []*stubSource
}

func newFixture(sources []*stubSource, analyzer ports.Analyzer, renderer *stubRenderer, deliverer *stubDeliverer) *fixture {
	logger := discardLogger()

	registry := collect.NewRegistry()
	for _, src := range sources {
		registry.Register(src)
	}
	collector := collect.NewCollector(registry, time.Second, 10, logger)

	curator := curate.NewEngine(analyzer, curate.Config{
		BatchSize:           8,
		AnalysisRetries:     0,
		AnalysisBackoff:     time.Millisecond,
		MinCompositeScore:   0.2,
		DefaultQualityFloor: 0.5,
	}, logger)

	dispatcher := deliver.NewDispatcher(deliverer, deliver.Config{
		MaxAttempts: 2,
		BaseBackoff: time.Millisecond,
	}, logger)

	sink := &captureSink{}
	recorder := NewRecorder(sink, logger)

	return &fixture{
		engine:    NewEngine(collector, curator, renderer, dispatcher, recorder, logger),
		renderer:  renderer,
		deliverer: deliverer,
		sink:      sink,
		sources:   sources,
	}
}

func testProfile() *domain.UserProfile {
	return &domain.UserProfile{
		UserID:       "u1",
		Email:        "u1@example.com",
		Interests:    []string{"go", "distributed systems"},
		MaxArticles:  2,
		QualityFloor: 0.1,
		Sources: []domain.SourceSpec{
			{ID: "gh", Kind: "github"},
			{ID: "hn", Kind: "hackernews"},
		},
	}
}

func sourceItems(sourceID, kind string, titles ...string) []domain.ContentItem {
	items := make([]domain.ContentItem, len(titles))
	for i, title := range titles {
		items[i] = domain.ContentItem{
			SourceID:    sourceID,
			Kind:        kind,
			URL:         fmt.Sprintf("https://example.com/%s/%d", sourceID, i),
			Title:       title,
			PublishedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		}
	}
	return items
}

func TestRunCompletesEndToEnd(t *testing.T) {
	t.Parallel()

	sources := []*stubSource{
		{kind: "github", items: sourceItems("gh", "github", "g1", "g2", "g3")},
		{kind: "hackernews", items: sourceItems("hn", "hackernews", "h1", "h2", "h3")},
	}
	analyzer := &titleAnalyzer{scores: map[string]float64{
		"g1": 0.9, "g2": 0.3, "g3": 0.1,
		"h1": 0.8, "h2": 0.25, "h3": 0.05,
	}}

	f := newFixture(sources, analyzer, &stubRenderer{}, &stubDeliverer{})
	state := f.engine.Run(context.Background(), testProfile())

	if state.Outcome != domain.OutcomeCompleted {
		t.Fatalf("expected completed, got %s (abort: %s)", state.Outcome, state.AbortReason)
	}
	if got := state.Curated.TotalArticles(); got != 2 {
		t.Fatalf("article cap not honored: got %d", got)
	}
	if state.Delivery == nil || state.Delivery.Status != domain.DeliverySent {
		t.Fatalf("expected delivery sent, got %+v", state.Delivery)
	}

	if len(f.sink.summaries) != 1 {
		t.Fatalf("expected one analytics record, got %d", len(f.sink.summaries))
	}
	summary := f.sink.summaries[0]
	if summary.ItemsCollected != 6 || summary.ItemsCurated != 2 {
		t.Fatalf("summary counts wrong: %+v", summary)
	}
	if summary.Outcome != domain.OutcomeCompleted {
		t.Fatalf("summary outcome wrong: %s", summary.Outcome)
	}

	for _, stage := range []domain.Stage{
		domain.StageValidating, domain.StageCollecting, domain.StageCurating,
		domain.StageGenerating, domain.StageSending, domain.StageAnalytics,
	} {
		if _, ok := state.Durations[stage]; !ok {
			t.Fatalf("missing duration for stage %s", stage)
		}
	}
}

func TestRunAbortsWhenNothingCollected(t *testing.T) {
	t.Parallel()

	sources := []*stubSource{
		{kind: "github", err: errors.New("api down")},
		{kind: "hackernews"},
	}
	f := newFixture(sources, &titleAnalyzer{}, &stubRenderer{}, &stubDeliverer{})
	state := f.engine.Run(context.Background(), testProfile())

	if state.Outcome != domain.OutcomeAborted {
		t.Fatalf("expected aborted, got %s", state.Outcome)
	}
	if state.AbortReason != domain.AbortInsufficientContent {
		t.Fatalf("expected insufficient_content, got %s", state.AbortReason)
	}
	if f.renderer.calls != 0 || f.deliverer.calls != 0 {
		t.Fatal("aborted run must not render or deliver")
	}

	// Aborted runs are still recorded.
	if len(f.sink.summaries) != 1 {
		t.Fatalf("expected analytics record for aborted run, got %d", len(f.sink.summaries))
	}
	if f.sink.summaries[0].Outcome != domain.OutcomeAborted {
		t.Fatalf("summary outcome wrong: %s", f.sink.summaries[0].Outcome)
	}
	if _, ok := state.Durations[domain.StageCurating]; !ok {
		t.Fatal("curating duration missing for aborted run")
	}
}

func TestRunDeliveryFailureIsNotAbort(t *testing.T) {
	t.Parallel()

	sources := []*stubSource{
		{kind: "github", items: sourceItems("gh", "github", "g1")},
		{kind: "hackernews"},
	}
	analyzer := &titleAnalyzer{scores: map[string]float64{"g1": 0.9}}
	deliverer := &stubDeliverer{err: &domain.DeliveryError{
		Kind:   domain.DeliveryPermanent,
		Detail: "recipient rejected",
	}}

	f := newFixture(sources, analyzer, &stubRenderer{}, deliverer)
	state := f.engine.Run(context.Background(), testProfile())

	if state.Outcome != domain.OutcomeDeliveryFailed {
		t.Fatalf("expected completed_delivery_failed, got %s", state.Outcome)
	}
	if state.AbortReason != "" {
		t.Fatalf("delivery failure is not an abort, got reason %s", state.AbortReason)
	}
	if state.Delivery.Status != domain.DeliveryFailed || state.Delivery.Attempts != 1 {
		t.Fatalf("unexpected delivery outcome: %+v", state.Delivery)
	}
	if len(state.StageErrors[domain.StageSending]) != 1 {
		t.Fatalf("expected one sending error record, got %v", state.StageErrors)
	}
	if f.sink.summaries[0].DeliveryStatus != domain.DeliveryFailed {
		t.Fatalf("summary delivery status wrong: %+v", f.sink.summaries[0])
	}
}

func TestRunRenderFailureAborts(t *testing.T) {
	t.Parallel()

	sources := []*stubSource{
		{kind: "github", items: sourceItems("gh", "github", "g1")},
		{kind: "hackernews"},
	}
	analyzer := &titleAnalyzer{scores: map[string]float64{"g1": 0.9}}
	renderer := &stubRenderer{err: &domain.RenderError{Err: errors.New("template broke")}}

	f := newFixture(sources, analyzer, renderer, &stubDeliverer{})
	state := f.engine.Run(context.Background(), testProfile())

	if state.Outcome != domain.OutcomeAborted || state.AbortReason != domain.AbortRenderFailed {
		t.Fatalf("expected render_failed abort, got %s/%s", state.Outcome, state.AbortReason)
	}
	if f.deliverer.calls != 0 {
		t.Fatal("malformed artifact must never be sent")
	}
	if len(f.sink.summaries) != 1 {
		t.Fatal("render abort must still be recorded")
	}
}

func TestRunAnalysisFailureAborts(t *testing.T) {
	t.Parallel()

	sources := []*stubSource{
		{kind: "github", items: sourceItems("gh", "github", "g1")},
		{kind: "hackernews"},
	}
	analyzer := &titleAnalyzer{err: errors.New("model down")}

	f := newFixture(sources, analyzer, &stubRenderer{}, &stubDeliverer{})
	state := f.engine.Run(context.Background(), testProfile())

	if state.Outcome != domain.OutcomeAborted || state.AbortReason != domain.AbortCurationFailed {
		t.Fatalf("expected curation_failed abort, got %s/%s", state.Outcome, state.AbortReason)
	}
}

func TestRunInvalidProfileAborts(t *testing.T) {
	t.Parallel()

	source := &stubSource{kind: "github", items: sourceItems("gh", "github", "g1")}
	f := newFixture([]*stubSource{source}, &titleAnalyzer{}, &stubRenderer{}, &stubDeliverer{})

	profile := testProfile()
	profile.Email = ""
	state := f.engine.Run(context.Background(), profile)

	if state.Outcome != domain.OutcomeAborted || state.AbortReason != domain.AbortValidationFailed {
		t.Fatalf("expected validation_failed abort, got %s/%s", state.Outcome, state.AbortReason)
	}
	if source.calls != 0 {
		t.Fatal("invalid profile must not reach collection")
	}

	records := state.StageErrors[domain.StageValidating]
	if len(records) != 1 || records[0].Kind != domain.ErrKindValidation {
		t.Fatalf("expected one configuration_error record, got %v", records)
	}
}

func TestValidateProfile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(p *domain.UserProfile)
		valid  bool
	}{
		{"valid", func(p *domain.UserProfile) {}, true},
		{"nil sources", func(p *domain.UserProfile) { p.Sources = nil }, false},
		{"missing user", func(p *domain.UserProfile) { p.UserID = "" }, false},
		{"missing email", func(p *domain.UserProfile) { p.Email = "" }, false},
		{"no interests", func(p *domain.UserProfile) { p.Interests = nil }, false},
		{"zero cap", func(p *domain.UserProfile) { p.MaxArticles = 0 }, false},
		{"kindless source", func(p *domain.UserProfile) { p.Sources[0].Kind = "" }, false},
		{"floor above one", func(p *domain.UserProfile) { p.QualityFloor = 1.5 }, false},
		{"floor at one", func(p *domain.UserProfile) { p.QualityFloor = 1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := testProfile()
			tt.mutate(profile)
			err := validateProfile(profile)
			if tt.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestRecorderSwallowsSinkFailure(t *testing.T) {
	t.Parallel()

	sink := &captureSink{err: errors.New("db unavailable")}
	recorder := NewRecorder(sink, discardLogger())

	state := domain.NewRunState(testProfile(), time.Now())
	state.Outcome = domain.OutcomeCompleted
	recorder.Record(context.Background(), state)

	if len(sink.summaries) != 1 {
		t.Fatalf("sink should have been invoked once, got %d", len(sink.summaries))
	}
}

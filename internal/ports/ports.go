package ports

import (
	"context"
	"time"

	"newsforge/internal/domain"
)

// Source pulls and normalizes content from one upstream provider. Adapters
// catch their own transport, auth, and rate-limit failures: an error return
// accompanies whatever partial items were retrieved, and nothing ever
// panics past this boundary.
type Source interface {
	Kind() string
	Fetch(ctx context.Context, query domain.SourceQuery) ([]domain.ContentItem, error)
}

// AnalysisInput is one item submitted for AI scoring.
type AnalysisInput struct {
	ID      string
	Title   string
	Excerpt string
}

// Analysis holds the scores and summary returned for one input, aligned
// positionally with the submitted batch.
type Analysis struct {
	Relevance float64
	Quality   float64
	Summary   string
}

// Analyzer scores content batches against user interests. Implementations
// must tolerate identical requests being retried.
type Analyzer interface {
	Analyze(ctx context.Context, batch []AnalysisInput, interests []string) ([]Analysis, error)
}

// Renderer turns a curated newsletter into a deliverable artifact.
type Renderer interface {
	Render(newsletter *domain.Newsletter, profile *domain.UserProfile) (domain.Artifact, error)
}

// Deliverer sends one artifact to one address. Failures are reported as
// *domain.DeliveryError so the dispatcher can distinguish transient from
// permanent kinds.
type Deliverer interface {
	Deliver(ctx context.Context, artifact domain.Artifact, address string) (messageID string, err error)
}

// ProfileStore reads user profiles. The store itself is owned elsewhere;
// the core only requires read access.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
}

// AnalyticsSink accepts finalized run summaries. Fire-and-forget from the
// workflow's perspective.
type AnalyticsSink interface {
	Record(ctx context.Context, summary domain.RunSummary) error
}

// Scheduler controls when newsletter runs execute in serve mode.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

package domain

import "time"

// ContentItem is a normalized piece of content produced by a source adapter.
// It is immutable once the adapter returns it.
type ContentItem struct {
	SourceID    string
	Kind        string
	URL         string
	Title       string
	Excerpt     string
	PublishedAt time.Time
	Metadata    map[string]string
}

// ScoredItem wraps a ContentItem with AI analysis results. Re-scoring
// produces a new value; existing ones are never mutated.
type ScoredItem struct {
	Item      ContentItem
	Relevance float64
	Quality   float64
	Composite float64
	Summary   string
}

// Composite weighting is fixed: relevance dominates quality.
const (
	RelevanceWeight = 0.6
	QualityWeight   = 0.4
)

// CompositeScore combines relevance and quality with the declared weights.
func CompositeScore(relevance, quality float64) float64 {
	return RelevanceWeight*relevance + QualityWeight*quality
}

// Section groups scored items under a taxonomy heading.
type Section struct {
	Title string
	Tag   string
	Items []ScoredItem
}

// Newsletter is the curated structure handed to the renderer. The total
// item count never exceeds the user's MaxArticles.
type Newsletter struct {
	Sections []Section
}

// TotalArticles counts items across all sections.
func (n *Newsletter) TotalArticles() int {
	total := 0
	for _, s := range n.Sections {
		total += len(s.Items)
	}
	return total
}

// Artifact is the rendered, deliverable email payload. The workflow treats
// it as opaque and only hands it to the delivery dispatcher.
type Artifact struct {
	Subject string
	HTML    []byte
	Text    []byte
}

// SourceSpec configures one content source for a user. Slice order in the
// profile defines source priority for deduplication.
type SourceSpec struct {
	ID     string            `yaml:"id"`
	Kind   string            `yaml:"kind"`
	Params map[string]string `yaml:"params"`
}

// SourceQuery carries the parameters a source adapter needs for one fetch.
type SourceQuery struct {
	SourceID  string
	Interests []string
	MaxItems  int
	Params    map[string]string
}

// UserProfile is the read-only input owned by the external profile store.
type UserProfile struct {
	UserID       string       `yaml:"userId"`
	Email        string       `yaml:"email"`
	Name         string       `yaml:"name"`
	Timezone     string       `yaml:"timezone"`
	Interests    []string     `yaml:"interests"`
	MaxArticles  int          `yaml:"maxArticles"`
	QualityFloor float64      `yaml:"qualityFloor"`
	Sources      []SourceSpec `yaml:"sources"`
	ScheduleTime string       `yaml:"scheduleTime"`
}

// SourcePriority maps source IDs to their position in the profile, lower
// index meaning higher priority.
func (p *UserProfile) SourcePriority() map[string]int {
	priority := make(map[string]int, len(p.Sources))
	for i, spec := range p.Sources {
		priority[spec.EffectiveID()] = i
	}
	return priority
}

// EffectiveID returns the configured ID, falling back to the kind.
func (s SourceSpec) EffectiveID() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Kind
}

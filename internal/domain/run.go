package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stage identifies one phase of the workflow state machine.
type Stage string

const (
	StageValidating Stage = "validating"
	StageCollecting Stage = "collecting"
	StageCurating   Stage = "curating"
	StageGenerating Stage = "generating"
	StageSending    Stage = "sending"
	StageAnalytics  Stage = "recording_analytics"
	StageComplete   Stage = "complete"
	StageAborted    Stage = "aborted"
)

// Outcome is the terminal result of a run. Three distinct outcomes, never
// collapsed into a boolean.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeDeliveryFailed Outcome = "completed_delivery_failed"
	OutcomeAborted        Outcome = "aborted"
)

// AbortReason distinguishes why a run terminated early.
type AbortReason string

const (
	AbortValidationFailed    AbortReason = "validation_failed"
	AbortInsufficientContent AbortReason = "insufficient_content"
	AbortCurationFailed      AbortReason = "curation_failed"
	AbortRenderFailed        AbortReason = "render_failed"
)

// DeliveryStatus is the final status of the delivery stage.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// DeliveryOutcome records the result of the delivery stage, reflecting the
// last attempt's detail plus the total attempt count.
type DeliveryOutcome struct {
	Attempts          int
	Status            DeliveryStatus
	LastError         string
	ProviderMessageID string
}

// ErrorRecord captures a single stage-level failure for observability.
type ErrorRecord struct {
	Stage       Stage
	Kind        string
	Message     string
	Recoverable bool
	OccurredAt  time.Time
}

// Error record kinds.
const (
	ErrKindValidation  = "configuration_error"
	ErrKindSource      = "source_failure"
	ErrKindRateLimited = "rate_limited"
	ErrKindTimeout     = "timeout"
	ErrKindAnalysis    = "analysis_failure"
	ErrKindRender      = "assembly_failure"
	ErrKindDelivery    = "delivery_failure"
	ErrKindAnalytics   = "analytics_failure"
)

// RunState is the single mutable record threaded through all stages. It is
// owned by the workflow engine; stages mutate only their designated fields
// and never rewind earlier ones.
type RunState struct {
	RunID       string
	Profile     *UserProfile
	RawItems    []ContentItem
	Curated     *Newsletter
	Delivery    *DeliveryOutcome
	StageErrors map[Stage][]ErrorRecord
	Durations   map[Stage]time.Duration
	Stage       Stage
	Outcome     Outcome
	AbortReason AbortReason
	StartedAt   time.Time
	FinishedAt  time.Time
}

// NewRunState initializes a run in the validating stage.
func NewRunState(profile *UserProfile, now time.Time) *RunState {
	return &RunState{
		RunID:       uuid.NewString(),
		Profile:     profile,
		StageErrors: map[Stage][]ErrorRecord{},
		Durations:   map[Stage]time.Duration{},
		Stage:       StageValidating,
		StartedAt:   now,
	}
}

// RecordError appends an error record under its stage.
func (s *RunState) RecordError(rec ErrorRecord) {
	s.StageErrors[rec.Stage] = append(s.StageErrors[rec.Stage], rec)
}

// ErrorCount totals the recorded errors across all stages.
func (s *RunState) ErrorCount() int {
	count := 0
	for _, recs := range s.StageErrors {
		count += len(recs)
	}
	return count
}

// RunSummary is the analytics-facing projection of a finished run.
type RunSummary struct {
	RunID            string
	UserID           string
	Outcome          Outcome
	AbortReason      AbortReason
	ItemsCollected   int
	ItemsCurated     int
	DeliveryStatus   DeliveryStatus
	DeliveryAttempts int
	ErrorCount       int
	StartedAt        time.Time
	FinishedAt       time.Time
	Durations        map[Stage]time.Duration
}

// Summary projects the terminal state into a RunSummary.
func (s *RunState) Summary() RunSummary {
	summary := RunSummary{
		RunID:          s.RunID,
		Outcome:        s.Outcome,
		AbortReason:    s.AbortReason,
		ItemsCollected: len(s.RawItems),
		ErrorCount:     s.ErrorCount(),
		StartedAt:      s.StartedAt,
		FinishedAt:     s.FinishedAt,
		Durations:      s.Durations,
	}
	if s.Profile != nil {
		summary.UserID = s.Profile.UserID
	}
	if s.Curated != nil {
		summary.ItemsCurated = s.Curated.TotalArticles()
	}
	if s.Delivery != nil {
		summary.DeliveryStatus = s.Delivery.Status
		summary.DeliveryAttempts = s.Delivery.Attempts
	}
	return summary
}

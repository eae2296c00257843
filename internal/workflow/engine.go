// Package workflow sequences the six generation stages as an explicit
// state machine over one mutable RunState. Only the engine decides whether
// a run advances, degrades, or aborts.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newsforge/internal/collect"
	"newsforge/internal/curate"
	"newsforge/internal/deliver"
	"newsforge/internal/domain"
	"newsforge/internal/ports"
)

// Engine owns the RunState for the lifetime of a run. Each stage runs to
// completion before control returns here, so the state needs no further
// synchronization.
type Engine struct {
	collector  *collect.Collector
	curator    *curate.Engine
	renderer   ports.Renderer
	dispatcher *deliver.Dispatcher
	recorder   *Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine wires all stage components.
func NewEngine(
	collector *collect.Collector,
	curator *curate.Engine,
	renderer ports.Renderer,
	dispatcher *deliver.Dispatcher,
	recorder *Recorder,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		collector:  collector,
		curator:    curator,
		renderer:   renderer,
		dispatcher: dispatcher,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes the full workflow for one user and returns the terminal
// RunState. The caller always receives a full accounting of what happened,
// even on a degraded or aborted run.
func (e *Engine) Run(ctx context.Context, profile *domain.UserProfile) *domain.RunState {
	state := domain.NewRunState(profile, e.now().UTC())
	logger := e.logger.With("run_id", state.RunID)
	if profile != nil {
		logger = logger.With("user_id", profile.UserID)
	}
	logger.Info("workflow started")

	var artifact domain.Artifact

	for state.Stage != domain.StageComplete && state.Stage != domain.StageAborted {
		stage := state.Stage
		started := e.now()

		switch stage {
		case domain.StageValidating:
			if err := validateProfile(profile); err != nil {
				state.RecordError(domain.ErrorRecord{
					Stage:       stage,
					Kind:        domain.ErrKindValidation,
					Message:     err.Error(),
					Recoverable: false,
					OccurredAt:  e.now().UTC(),
				})
				e.abort(state, domain.AbortValidationFailed)
			} else {
				state.Stage = domain.StageCollecting
			}

		case domain.StageCollecting:
			items, records := e.collector.Collect(ctx, profile)
			state.RawItems = items
			for _, rec := range records {
				state.RecordError(rec)
			}
			// Partial source failure is never fatal; the curator decides
			// whether what remains is enough.
			state.Stage = domain.StageCurating

		case domain.StageCurating:
			newsletter, records, err := e.curator.Curate(ctx, state.RawItems, profile)
			for _, rec := range records {
				state.RecordError(rec)
			}
			switch {
			case errors.Is(err, domain.ErrInsufficientContent):
				e.abort(state, domain.AbortInsufficientContent)
			case err != nil:
				state.RecordError(domain.ErrorRecord{
					Stage:       stage,
					Kind:        domain.ErrKindAnalysis,
					Message:     err.Error(),
					Recoverable: false,
					OccurredAt:  e.now().UTC(),
				})
				e.abort(state, domain.AbortCurationFailed)
			default:
				state.Curated = newsletter
				state.Stage = domain.StageGenerating
			}

		case domain.StageGenerating:
			rendered, err := e.renderer.Render(state.Curated, profile)
			if err != nil {
				state.RecordError(domain.ErrorRecord{
					Stage:       stage,
					Kind:        domain.ErrKindRender,
					Message:     err.Error(),
					Recoverable: false,
					OccurredAt:  e.now().UTC(),
				})
				e.abort(state, domain.AbortRenderFailed)
			} else {
				artifact = rendered
				state.Stage = domain.StageSending
			}

		case domain.StageSending:
			outcome := e.dispatcher.Send(ctx, artifact, profile.Email)
			state.Delivery = outcome
			if outcome.Status == domain.DeliveryFailed {
				state.RecordError(domain.ErrorRecord{
					Stage:       stage,
					Kind:        domain.ErrKindDelivery,
					Message:     outcome.LastError,
					Recoverable: false,
					OccurredAt:  e.now().UTC(),
				})
			}
			// Delivery failure is recorded, not fatal: the workflow still
			// reports what happened.
			state.Stage = domain.StageAnalytics

		case domain.StageAnalytics:
			e.finalize(ctx, state)
			state.Stage = domain.StageComplete
		}

		state.Durations[stage] += e.now().Sub(started)
	}

	logger.Info("workflow finished",
		"outcome", state.Outcome,
		"abort_reason", state.AbortReason,
		"items_collected", len(state.RawItems),
		"errors", state.ErrorCount(),
		"duration", state.FinishedAt.Sub(state.StartedAt))

	return state
}

// abort moves the run to the aborted terminal state. Analytics still runs:
// an aborted run is an outcome worth recording.
func (e *Engine) abort(state *domain.RunState, reason domain.AbortReason) {
	state.AbortReason = reason
	state.Stage = domain.StageAborted
	e.finalize(context.Background(), state)
}

func (e *Engine) finalize(ctx context.Context, state *domain.RunState) {
	state.FinishedAt = e.now().UTC()

	switch {
	case state.Stage == domain.StageAborted:
		state.Outcome = domain.OutcomeAborted
	case state.Delivery != nil && state.Delivery.Status == domain.DeliveryFailed:
		state.Outcome = domain.OutcomeDeliveryFailed
	default:
		state.Outcome = domain.OutcomeCompleted
	}

	if e.recorder != nil {
		e.recorder.Record(ctx, state)
	}
}

func validateProfile(profile *domain.UserProfile) error {
	if profile == nil {
		return &domain.ValidationError{Field: "profile", Reason: "missing"}
	}
	if profile.UserID == "" {
		return &domain.ValidationError{Field: "userId", Reason: "empty"}
	}
	if profile.Email == "" {
		return &domain.ValidationError{Field: "email", Reason: "empty"}
	}
	if len(profile.Interests) == 0 {
		return &domain.ValidationError{Field: "interests", Reason: "at least one interest is required"}
	}
	if profile.MaxArticles < 1 {
		return &domain.ValidationError{Field: "maxArticles", Reason: "must be positive"}
	}
	if len(profile.Sources) == 0 {
		return &domain.ValidationError{Field: "sources", Reason: "at least one source is required"}
	}
	for i, spec := range profile.Sources {
		if spec.Kind == "" {
			return &domain.ValidationError{Field: "sources", Reason: fmt.Sprintf("source %d has no kind", i)}
		}
	}
	if profile.QualityFloor < 0 || profile.QualityFloor > 1 {
		return &domain.ValidationError{Field: "qualityFloor", Reason: "must be within [0,1]"}
	}
	return nil
}


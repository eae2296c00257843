package deliver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"newsforge/internal/domain"
	"newsforge/internal/ports"
)

// Config bounds the sending stage.
type Config struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	AttemptTimeout time.Duration
}

// Dispatcher sends one artifact through the delivery provider with bounded
// retry. Only transient failures are retried; permanent ones terminate the
// stage immediately. The outcome always reflects the last attempt's detail
// plus the total attempt count.
type Dispatcher struct {
	deliverer ports.Deliverer
	cfg       Config
	logger    *slog.Logger
	sleep     func(time.Duration)
}

// NewDispatcher wires the delivery provider with the retry policy.
func NewDispatcher(deliverer ports.Deliverer, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		deliverer: deliverer,
		cfg:       cfg,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// Send attempts delivery until success, a permanent failure, or the retry
// budget runs out.
func (d *Dispatcher) Send(ctx context.Context, artifact domain.Artifact, address string) *domain.DeliveryOutcome {
	outcome := &domain.DeliveryOutcome{Status: domain.DeliveryFailed}

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		outcome.Attempts = attempt

		messageID, err := d.deliverOnce(ctx, artifact, address)
		if err == nil {
			outcome.Status = domain.DeliverySent
			outcome.LastError = ""
			outcome.ProviderMessageID = messageID
			d.logger.Info("delivery succeeded",
				"attempt", attempt, "message_id", messageID)
			return outcome
		}

		outcome.LastError = err.Error()
		d.logger.Warn("delivery attempt failed",
			"attempt", attempt, "max_attempts", d.cfg.MaxAttempts, "error", err)

		if !domain.IsTransientDelivery(err) {
			break
		}
		if ctx.Err() != nil || attempt == d.cfg.MaxAttempts {
			break
		}
		d.sleep(d.backoff(attempt, err))
	}

	return outcome
}

func (d *Dispatcher) deliverOnce(ctx context.Context, artifact domain.Artifact, address string) (string, error) {
	attemptCtx := ctx
	if d.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		defer cancel()
	}
	return d.deliverer.Deliver(attemptCtx, artifact, address)
}

// backoff doubles per attempt; a provider-suggested retry-after wins when
// it is longer.
func (d *Dispatcher) backoff(attempt int, err error) time.Duration {
	wait := d.cfg.BaseBackoff << (attempt - 1)
	var de *domain.DeliveryError
	if errors.As(err, &de) && de.RetryAfter > wait {
		wait = de.RetryAfter
	}
	return wait
}

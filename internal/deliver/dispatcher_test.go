package deliver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"newsforge/internal/domain"
)

type scriptedDeliverer struct {
	responses []error
	calls     int
}

func (s *scriptedDeliverer) Deliver(ctx context.Context, artifact domain.Artifact, address string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	err := s.responses[s.calls]
	s.calls++
	if err != nil {
		return "", err
	}
	return "msg-123", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(deliverer *scriptedDeliverer, maxAttempts int) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(deliverer, Config{
		MaxAttempts: maxAttempts,
		BaseBackoff: 10 * time.Millisecond,
	}, discardLogger())

	var slept []time.Duration
	d.sleep = func(wait time.Duration) { slept = append(slept, wait) }
	return d, &slept
}

func transient(detail string) *domain.DeliveryError {
	return &domain.DeliveryError{Kind: domain.DeliveryTransient, Detail: detail}
}

func permanent(detail string) *domain.DeliveryError {
	return &domain.DeliveryError{Kind: domain.DeliveryPermanent, Detail: detail}
}

func TestSendFirstAttemptSucceeds(t *testing.T) {
	t.Parallel()

	deliverer := &scriptedDeliverer{responses: []error{nil}}
	d, slept := newTestDispatcher(deliverer, 3)

	outcome := d.Send(context.Background(), domain.Artifact{Subject: "s"}, "a@example.com")
	if outcome.Status != domain.DeliverySent {
		t.Fatalf("expected sent, got %s (%s)", outcome.Status, outcome.LastError)
	}
	if outcome.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", outcome.Attempts)
	}
	if outcome.ProviderMessageID != "msg-123" {
		t.Fatalf("message ID not captured: %q", outcome.ProviderMessageID)
	}
	if len(*slept) != 0 {
		t.Fatalf("no backoff expected on first-attempt success: %v", *slept)
	}
}

func TestSendTransientThenSuccess(t *testing.T) {
	t.Parallel()

	deliverer := &scriptedDeliverer{responses: []error{
		transient("503"),
		transient("timeout"),
		nil,
	}}
	d, slept := newTestDispatcher(deliverer, 3)

	outcome := d.Send(context.Background(), domain.Artifact{}, "a@example.com")
	if outcome.Status != domain.DeliverySent {
		t.Fatalf("expected sent after retries, got %s", outcome.Status)
	}
	if outcome.Attempts != 3 {
		t.Fatalf("attempt count must reflect all attempts, got %d", outcome.Attempts)
	}
	if outcome.LastError != "" {
		t.Fatalf("success must clear the last error, got %q", outcome.LastError)
	}
	if diff := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}; len(*slept) != 2 || (*slept)[0] != diff[0] || (*slept)[1] != diff[1] {
		t.Fatalf("expected doubling backoff %v, got %v", diff, *slept)
	}
}

func TestSendPermanentFailureStopsImmediately(t *testing.T) {
	t.Parallel()

	deliverer := &scriptedDeliverer{responses: []error{
		permanent("invalid recipient"),
	}}
	d, slept := newTestDispatcher(deliverer, 3)

	outcome := d.Send(context.Background(), domain.Artifact{}, "bad@")
	if outcome.Status != domain.DeliveryFailed {
		t.Fatalf("expected failed, got %s", outcome.Status)
	}
	if outcome.Attempts != 1 {
		t.Fatalf("permanent failure must not retry, got %d attempts", outcome.Attempts)
	}
	if deliverer.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", deliverer.calls)
	}
	if len(*slept) != 0 {
		t.Fatalf("no backoff expected, got %v", *slept)
	}
	if outcome.LastError == "" {
		t.Fatal("failure detail must be preserved")
	}
}

func TestSendRetryBudgetExhausted(t *testing.T) {
	t.Parallel()

	deliverer := &scriptedDeliverer{responses: []error{
		transient("503"), transient("503"), transient("503"),
	}}
	d, _ := newTestDispatcher(deliverer, 3)

	outcome := d.Send(context.Background(), domain.Artifact{}, "a@example.com")
	if outcome.Status != domain.DeliveryFailed {
		t.Fatalf("expected failed, got %s", outcome.Status)
	}
	if outcome.Attempts != 3 {
		t.Fatalf("expected the full budget spent, got %d", outcome.Attempts)
	}
	if deliverer.calls != 3 {
		t.Fatalf("expected 3 provider calls, got %d", deliverer.calls)
	}
}

func TestSendHonorsRetryAfterWhenLonger(t *testing.T) {
	t.Parallel()

	limited := transient("429")
	limited.RetryAfter = 250 * time.Millisecond
	deliverer := &scriptedDeliverer{responses: []error{limited, nil}}
	d, slept := newTestDispatcher(deliverer, 3)

	outcome := d.Send(context.Background(), domain.Artifact{}, "a@example.com")
	if outcome.Status != domain.DeliverySent {
		t.Fatalf("expected sent, got %s", outcome.Status)
	}
	if len(*slept) != 1 || (*slept)[0] != 250*time.Millisecond {
		t.Fatalf("provider retry-after should win over backoff, got %v", *slept)
	}
}

func TestSendUnknownErrorIsRetried(t *testing.T) {
	t.Parallel()

	deliverer := &scriptedDeliverer{responses: []error{
		errors.New("connection reset"),
		nil,
	}}
	d, _ := newTestDispatcher(deliverer, 3)

	outcome := d.Send(context.Background(), domain.Artifact{}, "a@example.com")
	if outcome.Status != domain.DeliverySent {
		t.Fatalf("unclassified errors should be retried, got %s", outcome.Status)
	}
	if outcome.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", outcome.Attempts)
	}
}

func TestSendStopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	deliverer := &scriptedDeliverer{responses: []error{transient("503"), nil}}
	d, _ := newTestDispatcher(deliverer, 3)
	d.sleep = func(time.Duration) { cancel() }

	outcome := d.Send(ctx, domain.Artifact{}, "a@example.com")
	_ = outcome
	if deliverer.calls > 2 {
		t.Fatalf("cancellation must stop retries, got %d calls", deliverer.calls)
	}
}

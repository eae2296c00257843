package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTickerRunsOnStart(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	sched := NewTickerScheduler(time.Hour, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Start(ctx, func(time.Time) { runs.Add(1) }); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.After(time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("immediate run never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestTickerPeriodicRuns(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	sched := NewTickerScheduler(10*time.Millisecond, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Start(ctx, func(time.Time) { runs.Add(1) }); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.After(time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 2 ticks, got %d", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestTickerStopWithoutStart(t *testing.T) {
	t.Parallel()

	sched := NewTickerScheduler(time.Minute, false)
	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("stop without start must be a no-op: %v", err)
	}
}

func TestTickerNilJob(t *testing.T) {
	t.Parallel()

	sched := NewTickerScheduler(time.Minute, true)
	if err := sched.Start(context.Background(), nil); err != nil {
		t.Fatalf("nil job must be a no-op: %v", err)
	}
}

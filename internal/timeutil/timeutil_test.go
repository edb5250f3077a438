package timeutil_test

import (
	"context"
	"testing"
	"time"

	"github.com/caxtonio/agentcore/internal/timeutil"
)

func TestTestClockSleepAdvancesNowInsteadOfWaiting(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := timeutil.NewTest(start)

	if err := clock.Sleep(context.Background(), 5*time.Minute); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if got := clock.Now(); !got.Equal(start.Add(5 * time.Minute)) {
		t.Errorf("expected clock to advance by the sleep duration, got %v", got)
	}
}

func TestTestClockSleepHonorsCancelledContext(t *testing.T) {
	clock := timeutil.NewTest(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := clock.Sleep(ctx, time.Second); err == nil {
		t.Error("expected Sleep to report the already-cancelled context")
	}
}

func TestTestClockShouldSkipDelaysIsTrue(t *testing.T) {
	clock := timeutil.NewTest(time.Now())
	if !clock.ShouldSkipDelays() {
		t.Error("test clock must report ShouldSkipDelays() == true")
	}
}

func TestProductionClockShouldSkipDelaysIsFalse(t *testing.T) {
	if timeutil.NewProduction().ShouldSkipDelays() {
		t.Error("production clock must report ShouldSkipDelays() == false")
	}
}

func TestProductionClockSleepHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := timeutil.NewProduction().Sleep(ctx, time.Hour)
	if err == nil {
		t.Error("expected Sleep to return once the context deadline passed")
	}
}

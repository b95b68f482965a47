package retention

import (
	"context"
	"testing"
	"time"

	"mercator-hq/tracker/pkg/requestlog/storage"
)

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		days        int
		wantRunning bool
		wantError   bool
	}{
		{name: "valid daily schedule", schedule: "0 3 * * *", days: 30, wantRunning: true},
		{name: "valid hourly schedule", schedule: "0 * * * *", days: 30, wantRunning: true},
		{name: "empty schedule", schedule: "", days: 30},
		{name: "no limits", schedule: "0 3 * * *"},
		{name: "invalid schedule", schedule: "invalid cron", days: 30, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pruner := NewPruner(storage.NewMemoryStore(), &Config{
				PruneSchedule: tt.schedule,
				RetentionDays: tt.days,
			})
			scheduler := pruner.scheduler

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := scheduler.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Errorf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if scheduler.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", scheduler.IsRunning(), tt.wantRunning)
			}

			next := pruner.NextPruning()
			if tt.wantRunning {
				if next == nil {
					t.Fatal("NextPruning() returned nil for running scheduler")
				}
				if !next.After(time.Now()) {
					t.Errorf("NextPruning() = %v, want a future time", next)
				}
			} else if next != nil {
				t.Errorf("NextPruning() = %v, want nil", next)
			}

			scheduler.Stop()
		})
	}
}

// TestScheduler_StopOnCancel tests that canceling the start context stops the scheduler.
func TestScheduler_StopOnCancel(t *testing.T) {
	pruner := NewPruner(storage.NewMemoryStore(), &Config{
		PruneSchedule: "0 3 * * *",
		RetentionDays: 7,
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := pruner.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for pruner.scheduler.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if pruner.scheduler.IsRunning() {
		t.Error("scheduler still running after context cancel")
	}
}

package cli

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"tripsplit/internal/cache"
	"tripsplit/internal/config"
	"tripsplit/internal/core"
)

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := SetupLogger("debug", "json")
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level should be enabled")
	}
	if slog.Default().Handler() != logger.Handler() {
		t.Error("logger should become the slog default")
	}
}

func TestNewSettlementService(t *testing.T) {
	snap := core.Snapshot{
		HomeCurrency: "USD",
		Participants: []core.Participant{{ID: "A"}, {ID: "B"}},
		Expenses: []core.Expense{{
			ID: "e1", PayerID: "A", Amount: core.Money{Minor: 1000}, Currency: "USD",
			Splits: []core.Split{{ParticipantID: "A", ShareType: core.ShareEqual}, {ParticipantID: "B", ShareType: core.ShareEqual}},
		}},
	}

	t.Run("cache registered", func(t *testing.T) {
		caches := cache.NewManager()
		cfg := &config.Config{PlanCacheSize: 10, PlanCacheTTL: time.Nanosecond, ValidateConcurrency: 2}
		svc := NewSettlementService(cfg, caches)

		if _, err := svc.Settle(context.Background(), snap); err != nil {
			t.Fatalf("Settle: %v", err)
		}
		time.Sleep(time.Millisecond)
		if removed := caches.CleanNow(context.Background()); removed != 1 {
			t.Fatalf("expected the expired plan to be cleaned, removed %d", removed)
		}
	})

	t.Run("cache disabled", func(t *testing.T) {
		caches := cache.NewManager()
		svc := NewSettlementService(&config.Config{ValidateConcurrency: 1}, caches)
		if _, err := svc.Settle(context.Background(), snap); err != nil {
			t.Fatalf("Settle: %v", err)
		}
		if removed := caches.CleanNow(context.Background()); removed != 0 {
			t.Fatalf("nothing should be registered, removed %d", removed)
		}
	})
}

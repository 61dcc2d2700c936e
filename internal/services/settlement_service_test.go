package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tripsplit/internal/cache"
	"tripsplit/internal/core"
	"tripsplit/internal/log"
)

func testSnapshot() core.Snapshot {
	eq := func(ids ...string) []core.Split {
		out := make([]core.Split, len(ids))
		for i, id := range ids {
			out[i] = core.Split{ParticipantID: id, ShareType: core.ShareEqual}
		}
		return out
	}
	return core.Snapshot{
		HomeCurrency: "USD",
		Participants: []core.Participant{{ID: "A"}, {ID: "B"}, {ID: "C"}},
		Expenses: []core.Expense{
			{ID: "hotel", PayerID: "A", Amount: core.Money{Minor: 9000}, Currency: "USD", Category: "Accommodation", Splits: eq("A", "B", "C")},
			{ID: "dinner", PayerID: "B", Amount: core.Money{Minor: 6000}, Currency: "USD", Category: "food", Splits: eq("A", "B", "C")},
			{ID: "taxi", PayerID: "C", Amount: core.Money{Minor: 1000}, Currency: "USD", Splits: eq("A", "B", "C")},
		},
	}
}

func TestSettle(t *testing.T) {
	plans := cache.NewLRUCache[Result](10, time.Minute)
	svc := NewSettlementService(plans, 2)
	ctx := context.Background()

	res, err := svc.Settle(ctx, testSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A +90-30-20-3.34, B +60-30-20-3.33, C +10-30-20-3.33
	want := map[string]int64{"A": 3666, "B": 667, "C": -4333}
	for id, v := range want {
		if res.Balances[id].Minor != v {
			t.Fatalf("%s: got %d, want %d", id, res.Balances[id].Minor, v)
		}
	}
	if len(res.Settlements) != 2 {
		t.Fatalf("expected 2 transfers, got %+v", res.Settlements)
	}
	if res.Settlements[0].From != "C" || res.Settlements[0].To != "A" || res.Settlements[0].Amount.Minor != 3666 {
		t.Fatalf("unexpected first transfer %+v", res.Settlements[0])
	}

	// Mutating a returned result must not leak into the cache.
	res.Balances["A"] = core.Money{}
	again, err := svc.Settle(ctx, testSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Balances["A"].Minor != 3666 {
		t.Fatalf("cached result was mutated")
	}
	if st := plans.Stats(); st.Hits != 1 || st.Size != 1 {
		t.Fatalf("unexpected cache stats %+v", st)
	}
}

func TestSettleWithoutCache(t *testing.T) {
	svc := NewSettlementService(nil, 0)
	balances, err := svc.Balances(context.Background(), testSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balances.Sum() != 0 {
		t.Fatalf("balances do not conserve money: %v", balances)
	}
}

func TestValidateReportsEveryInvalidExpense(t *testing.T) {
	snap := testSnapshot()
	snap.Expenses[0].Splits = []core.Split{
		{ParticipantID: "A", ShareType: core.SharePercentage, ShareValue: decimal.NewNullDecimal(decimal.NewFromInt(50))},
		{ParticipantID: "B", ShareType: core.SharePercentage, ShareValue: decimal.NewNullDecimal(decimal.NewFromInt(45))},
	}
	snap.Expenses[2].Splits = nil

	svc := NewSettlementService(nil, 4)
	bad, err := svc.Validate(context.Background(), snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bad) != 2 {
		t.Fatalf("expected 2 invalid expenses, got %+v", bad)
	}
	if bad[0].ExpenseID != "hotel" || !errors.Is(bad[0], core.ErrInvalidSplit) {
		t.Fatalf("unexpected first error %+v", bad[0])
	}
	if bad[1].ExpenseID != "taxi" || !errors.Is(bad[1], core.ErrEmptyParticipantSet) {
		t.Fatalf("unexpected second error %+v", bad[1])
	}
}

func TestValidateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewSettlementService(nil, 1)
	if _, err := svc.Validate(ctx, testSnapshot()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestResolveSplit(t *testing.T) {
	svc := NewSettlementService(nil, 1)
	snap := testSnapshot()
	owed, err := svc.ResolveSplit(context.Background(), "USD", snap.Participants, snap.Expenses[2])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owed[0].Amount.Minor != 334 || owed[1].Amount.Minor != 333 || owed[2].Amount.Minor != 333 {
		t.Fatalf("unexpected split %+v", owed)
	}
}

func TestSummarize(t *testing.T) {
	svc := NewSettlementService(nil, 1)
	budgets := []core.Budget{
		{Category: "accommodation", Planned: core.Money{Minor: 10000}},
		{Category: "food", Planned: core.Money{Minor: 4000}},
		{Category: "transport", Planned: core.Money{}},
	}
	sum, err := svc.Summarize(context.Background(), testSnapshot(), budgets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Total.Minor != 16000 {
		t.Fatalf("total %d", sum.Total.Minor)
	}
	if len(sum.ByCategory) != 3 || sum.ByCategory[0].Name != "accommodation" || sum.ByCategory[2].Name != core.CategoryOther {
		t.Fatalf("unexpected categories %+v", sum.ByCategory)
	}
	if p := sum.ByParticipant[2]; p.ParticipantID != "C" || p.Paid.Minor != 1000 || p.Share.Minor != 5333 || p.Net.Minor != -4333 {
		t.Fatalf("unexpected participant summary %+v", p)
	}

	food := sum.Budget[1]
	if food.Actual.Minor != 6000 || food.Variance.Minor != 2000 || !food.Utilization.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("unexpected food line %+v", food)
	}
	if acc := sum.Budget[0]; !acc.Utilization.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("unexpected accommodation utilization %s", acc.Utilization)
	}
	if !sum.Budget[2].Utilization.IsZero() {
		t.Fatalf("unplanned category must report zero utilization")
	}
	if sum.TotalPlanned.Minor != 14000 || sum.Remaining.Minor != -2000 {
		t.Fatalf("unexpected totals planned=%d remaining=%d", sum.TotalPlanned.Minor, sum.Remaining.Minor)
	}

	huge := []core.Budget{{Category: "food", Planned: core.Money{Minor: core.MaxAmountMinor + 1}}}
	if _, err := svc.Summarize(context.Background(), testSnapshot(), huge); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected out-of-range budget to fail, got %v", err)
	}

	dup := append(budgets, core.Budget{Category: "Food", Planned: core.Money{Minor: 1}})
	if _, err := svc.Summarize(context.Background(), testSnapshot(), dup); !errors.Is(err, core.ErrDuplicateBudget) || !IsInputError(err) {
		t.Fatalf("expected duplicate budget input error, got %v", err)
	}
}

func TestSummarizeNetIncludesPayments(t *testing.T) {
	svc := NewSettlementService(nil, 1)
	ctx := context.Background()
	snap := testSnapshot()
	snap.Payments = []core.Payment{
		{ID: "p1", From: "C", To: "A", Amount: core.Money{Minor: 2000}, Status: core.PaymentCompleted},
		{ID: "p2", From: "C", To: "B", Amount: core.Money{Minor: 500}, Status: core.PaymentPending},
	}

	sum, err := svc.Summarize(ctx, snap, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	balances, err := svc.Balances(ctx, snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range sum.ByParticipant {
		if p.Net != balances[p.ParticipantID] {
			t.Errorf("%s: summary net %d, balance %d", p.ParticipantID, p.Net.Minor, balances[p.ParticipantID].Minor)
		}
	}
	if c := sum.ByParticipant[2]; c.Paid.Minor != 1000 || c.Share.Minor != 5333 || c.Net.Minor != -2333 {
		t.Fatalf("unexpected participant summary %+v", c)
	}
}

func TestSummarizeRejectsBadPayment(t *testing.T) {
	snap := testSnapshot()
	snap.Payments = []core.Payment{{ID: "p1", From: "C", To: "Z", Amount: core.Money{Minor: 1}, Status: core.PaymentCompleted}}
	if _, err := NewSettlementService(nil, 1).Summarize(context.Background(), snap, nil); !errors.Is(err, core.ErrUnknownParticipant) {
		t.Fatalf("expected ErrUnknownParticipant, got %v", err)
	}
}

func TestIsInputError(t *testing.T) {
	if !IsInputError(core.NewInvalidSplit("e", "x")) {
		t.Fatalf("invalid split should be an input error")
	}
	if !IsInputError(fmt.Errorf("expense e1: %w", core.ErrBalanceOverflow)) {
		t.Fatalf("balance overflow should be an input error")
	}
	if IsInputError(errors.New("boom")) {
		t.Fatalf("plain error should not be an input error")
	}
}

func TestSettleLogsCacheHits(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelInfo, Component: log.ComponentApp, Format: "json", Output: &buf})
	ctx := log.NewContext(context.Background(), logger)
	svc := NewSettlementService(cache.NewLRUCache[Result](10, time.Minute), 1)

	for i := 0; i < 2; i++ {
		if _, err := svc.Settle(ctx, testSnapshot()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var cached []bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if rec["msg"] != "Settlement computed" {
			continue
		}
		if rec[log.FieldTransfers] != float64(2) {
			t.Errorf("unexpected transfers in %v", rec)
		}
		cached = append(cached, rec[log.FieldCached] == true)
	}
	if len(cached) != 2 || cached[0] || !cached[1] {
		t.Fatalf("expected a computed then a cached record, got %v", cached)
	}
}

package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"tripsplit/internal/core"
	"tripsplit/internal/settlement"
	"tripsplit/internal/split"
)

// Summarize builds the trip overview: spend by category and by participant,
// and how each budgeted category is tracking. Every expense must resolve.
// Participant nets match Balances, completed payments included.
func (s *SettlementService) Summarize(ctx context.Context, snap core.Snapshot, budgets []core.Budget) (core.TripSummary, error) {
	if err := snap.HomeCurrency.Validate(); err != nil {
		return core.TripSummary{}, fmt.Errorf("home currency %q: %w", snap.HomeCurrency, err)
	}
	idx, err := snap.Index()
	if err != nil {
		return core.TripSummary{}, err
	}
	balances, err := settlement.ComputeBalances(snap)
	if err != nil {
		return core.TripSummary{}, err
	}

	var total core.Money
	byCategory := map[string]core.Money{}
	paid := map[string]core.Money{}
	share := map[string]core.Money{}

	for _, e := range snap.Expenses {
		if err := ctx.Err(); err != nil {
			return core.TripSummary{}, err
		}
		owed, err := split.ResolveExpense(e, idx, snap.HomeCurrency)
		if err != nil {
			return core.TripSummary{}, err
		}
		amount, err := e.HomeAmount(snap.HomeCurrency)
		if err != nil {
			return core.TripSummary{}, fmt.Errorf("expense %s: %w", e.ID, err)
		}
		if total, err = total.CheckedAdd(amount); err != nil {
			return core.TripSummary{}, fmt.Errorf("trip total: %w", err)
		}
		cat := core.NormalizeCategory(e.Category)
		byCategory[cat] = byCategory[cat].Add(amount)
		paid[e.PayerID] = paid[e.PayerID].Add(amount)
		for _, o := range owed {
			share[o.ParticipantID] = share[o.ParticipantID].Add(o.Amount)
		}
	}

	sum := core.TripSummary{HomeCurrency: snap.HomeCurrency, Total: total}

	for name, amount := range byCategory {
		sum.ByCategory = append(sum.ByCategory, core.CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(sum.ByCategory, func(i, j int) bool {
		a, b := sum.ByCategory[i], sum.ByCategory[j]
		if a.Amount.Minor != b.Amount.Minor {
			return a.Amount.Minor > b.Amount.Minor
		}
		return a.Name < b.Name
	})

	for _, p := range snap.Participants {
		sum.ByParticipant = append(sum.ByParticipant, core.ParticipantSummary{
			ParticipantID: p.ID,
			Paid:          paid[p.ID],
			Share:         share[p.ID],
			Net:           balances[p.ID],
		})
	}

	seen := map[string]bool{}
	for _, b := range budgets {
		cat := core.NormalizeCategory(b.Category)
		if seen[cat] {
			return core.TripSummary{}, fmt.Errorf("budget for %s: %w", cat, core.ErrDuplicateBudget)
		}
		seen[cat] = true
		if b.Planned.Minor < 0 || b.Planned.Minor > core.MaxAmountMinor {
			return core.TripSummary{}, fmt.Errorf("budget for %s: %w", cat, core.ErrInvalidAmount)
		}
		actual := byCategory[cat]
		line := core.BudgetLine{
			Category: cat,
			Planned:  b.Planned,
			Actual:   actual,
			Variance: actual.Sub(b.Planned),
		}
		if b.Planned.Minor > 0 {
			line.Utilization = decimal.NewFromInt(actual.Minor).
				Mul(decimal.NewFromInt(100)).
				DivRound(decimal.NewFromInt(b.Planned.Minor), 2)
		}
		sum.Budget = append(sum.Budget, line)
		if sum.TotalPlanned, err = sum.TotalPlanned.CheckedAdd(b.Planned); err != nil {
			return core.TripSummary{}, fmt.Errorf("total budget: %w", err)
		}
	}
	sum.Remaining = sum.TotalPlanned.Sub(total)

	return sum, nil
}

// Package split turns one expense and its split policy into the amount each
// participant owes, in home-currency minor units.
package split

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tripsplit/internal/core"
)

// percentTolerance is how far the percentages of one expense may drift from 100.
var percentTolerance = decimal.RequireFromString("0.01")

var hundred = decimal.NewFromInt(100)

// Input is everything Resolve needs for one expense.
type Input struct {
	ExpenseID string
	// Amount is the expense total in home-currency minor units.
	Amount core.Money
	// Original and Currency describe the expense as entered. Exact shares are
	// expressed in this currency. A zero Original means Amount.
	Original core.Money
	Currency core.Currency
	Splits   []core.Split
	// Weights holds participant weights for weighted splits without an
	// explicit share value. Missing ids weigh 1.
	Weights map[string]decimal.Decimal
}

// Resolve divides in.Amount among in.Splits. The returned rows follow split
// order and always sum to in.Amount exactly.
func Resolve(in Input) ([]core.Owed, error) {
	if len(in.Splits) == 0 {
		return nil, fmt.Errorf("expense %s: %w", in.ExpenseID, core.ErrEmptyParticipantSet)
	}
	if err := in.Amount.Validate(); err != nil {
		return nil, fmt.Errorf("expense %s: %w", in.ExpenseID, err)
	}

	shareType, err := checkSplits(in.ExpenseID, in.Splits)
	if err != nil {
		return nil, err
	}

	var ratios []decimal.Decimal
	switch shareType {
	case core.ShareEqual:
		ratios = equalRatios(len(in.Splits))
	case core.ShareWeighted:
		ratios, err = weightedRatios(in)
	case core.SharePercentage:
		ratios, err = percentageRatios(in)
	case core.ShareExact:
		ratios, err = exactRatios(in)
	}
	if err != nil {
		return nil, err
	}

	amounts := distribute(in.Amount.Minor, ratios)

	owed := make([]core.Owed, len(in.Splits))
	var total int64
	for i, s := range in.Splits {
		owed[i] = core.Owed{ParticipantID: s.ParticipantID, Amount: core.Money{Minor: amounts[i]}}
		total += amounts[i]
	}
	core.AssertConserved("split", in.ExpenseID, total-in.Amount.Minor)
	return owed, nil
}

// ResolveExpense converts e to the home currency and resolves its splits
// against the known participants.
func ResolveExpense(e core.Expense, participants map[string]core.Participant, home core.Currency) ([]core.Owed, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("expense %s: %w", e.ID, err)
	}
	if _, ok := participants[e.PayerID]; !ok {
		return nil, fmt.Errorf("expense %s: payer %s: %w", e.ID, e.PayerID, core.ErrUnknownParticipant)
	}
	if len(e.Splits) == 0 {
		return nil, fmt.Errorf("expense %s: %w", e.ID, core.ErrEmptyParticipantSet)
	}

	weights := make(map[string]decimal.Decimal, len(e.Splits))
	for _, s := range e.Splits {
		p, ok := participants[s.ParticipantID]
		if !ok {
			return nil, core.NewInvalidSplit(e.ID, "unknown participant %q", s.ParticipantID)
		}
		weights[p.ID] = p.EffectiveWeight()
	}

	amount, err := e.HomeAmount(home)
	if err != nil {
		return nil, fmt.Errorf("expense %s: convert to %s: %w", e.ID, home, err)
	}

	cur := e.Currency
	if cur == "" {
		cur = home
	}
	return Resolve(Input{
		ExpenseID: e.ID,
		Amount:    amount,
		Original:  e.Amount,
		Currency:  cur,
		Splits:    e.Splits,
		Weights:   weights,
	})
}

// checkSplits enforces one share type per expense and one split per participant.
func checkSplits(expenseID string, splits []core.Split) (core.ShareType, error) {
	shareType := splits[0].ShareType
	if !shareType.Valid() {
		return "", core.NewInvalidSplit(expenseID, "unknown share type %q", shareType)
	}
	seen := make(map[string]struct{}, len(splits))
	for _, s := range splits {
		if strings.TrimSpace(s.ParticipantID) == "" {
			return "", core.NewInvalidSplit(expenseID, "split without participant")
		}
		if s.ShareType != shareType {
			return "", core.NewInvalidSplit(expenseID, "mixed share types %q and %q", shareType, s.ShareType)
		}
		if _, dup := seen[s.ParticipantID]; dup {
			return "", core.NewInvalidSplit(expenseID, "participant %q listed twice", s.ParticipantID)
		}
		seen[s.ParticipantID] = struct{}{}
		if shareType.NeedsValue() && !s.ShareValue.Valid {
			return "", core.NewInvalidSplit(expenseID, "missing %s share for %q", shareType, s.ParticipantID)
		}
		if s.ShareValue.Valid && s.ShareValue.Decimal.IsNegative() {
			return "", core.NewInvalidSplit(expenseID, "negative share for %q", s.ParticipantID)
		}
	}
	return shareType, nil
}

func equalRatios(n int) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = decimal.NewFromInt(1)
	}
	return out
}

func weightedRatios(in Input) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(in.Splits))
	sum := decimal.Zero
	for i, s := range in.Splits {
		w := decimal.NewFromInt(1)
		if s.ShareValue.Valid {
			w = s.ShareValue.Decimal
		} else if pw, ok := in.Weights[s.ParticipantID]; ok {
			w = pw
		}
		if w.IsNegative() {
			return nil, core.NewInvalidSplit(in.ExpenseID, "negative weight for %q", s.ParticipantID)
		}
		out[i] = w
		sum = sum.Add(w)
	}
	if sum.IsZero() {
		return nil, core.NewInvalidSplit(in.ExpenseID, "weights sum to zero")
	}
	return out, nil
}

func percentageRatios(in Input) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(in.Splits))
	sum := decimal.Zero
	for i, s := range in.Splits {
		p := s.ShareValue.Decimal
		if p.GreaterThan(hundred) {
			return nil, core.NewInvalidSplit(in.ExpenseID, "percentage %s for %q exceeds 100", p, s.ParticipantID)
		}
		out[i] = p
		sum = sum.Add(p)
	}
	if sum.Sub(hundred).Abs().GreaterThan(percentTolerance) {
		return nil, core.NewInvalidSplit(in.ExpenseID, "percentages sum to %s, not 100", sum)
	}
	return out, nil
}

func exactRatios(in Input) ([]decimal.Decimal, error) {
	original := in.Original
	if original.IsZero() {
		original = in.Amount
	}
	cur := in.Currency
	out := make([]decimal.Decimal, len(in.Splits))
	var sum int64
	for i, s := range in.Splits {
		m, err := core.FromDecimal(s.ShareValue.Decimal, cur)
		if err != nil {
			return nil, core.NewInvalidSplit(in.ExpenseID, "exact share for %q out of range", s.ParticipantID)
		}
		out[i] = decimal.NewFromInt(m.Minor)
		sum += m.Minor
	}
	if diff := sum - original.Minor; diff > core.Epsilon || diff < -core.Epsilon {
		return nil, core.NewInvalidSplit(in.ExpenseID, "exact shares sum to %s, expense is %s",
			core.Money{Minor: sum}.Format(cur), original.Format(cur))
	}
	if sum == 0 {
		return nil, core.NewInvalidSplit(in.ExpenseID, "exact shares sum to zero")
	}
	return out, nil
}

// distribute splits total proportionally to ratios. Each row gets the floor of
// its exact share; the leftover minor units go one at a time to the rows with
// a non-zero ratio, in list order. The leftover is always smaller than the
// number of such rows, so a single pass settles it.
func distribute(total int64, ratios []decimal.Decimal) []int64 {
	den := decimal.Zero
	for _, r := range ratios {
		den = den.Add(r)
	}

	amounts := make([]int64, len(ratios))
	a := decimal.NewFromInt(total)
	var assigned int64
	for i, r := range ratios {
		q, _ := a.Mul(r).QuoRem(den, 0)
		amounts[i] = q.IntPart()
		assigned += amounts[i]
	}

	leftover := total - assigned
	for i := 0; i < len(ratios) && leftover > 0; i++ {
		if ratios[i].IsPositive() {
			amounts[i]++
			leftover--
		}
	}
	return amounts
}

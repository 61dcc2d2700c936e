// Package settlement aggregates resolved expenses into net balances and
// produces the transfers that settle them.
//
// Every function here is a pure computation over a caller-supplied snapshot.
// Nothing is cached or shared between calls, so the package is safe for
// concurrent use without locking.
package settlement

import (
	"fmt"
	"sort"

	"tripsplit/internal/core"
	"tripsplit/internal/split"
)

// LedgerEntries returns the signed effect of one expense: the payer is
// credited the full amount and every split participant is debited their
// share. Entries are merged per participant, payer first, then split order.
func LedgerEntries(expenseID, payerID string, amount core.Money, owed []core.Owed) []core.LedgerEntry {
	entries := make([]core.LedgerEntry, 0, len(owed)+1)
	pos := make(map[string]int, len(owed)+1)

	add := func(id string, m core.Money) {
		if i, ok := pos[id]; ok {
			entries[i].Amount = entries[i].Amount.Add(m)
			return
		}
		pos[id] = len(entries)
		entries = append(entries, core.LedgerEntry{ExpenseID: expenseID, ParticipantID: id, Amount: m})
	}

	add(payerID, amount)
	for _, o := range owed {
		add(o.ParticipantID, o.Amount.Neg())
	}
	return entries
}

// ComputeBalances returns every participant's net balance in the snapshot's
// home currency. Completed payments are applied after the expenses.
//
// The first expense that fails to resolve aborts the computation; nothing is
// returned for the others. A balance that would leave the int64 range fails
// with core.ErrBalanceOverflow. A conservation failure panics with
// *core.ConservationViolation.
func ComputeBalances(s core.Snapshot) (core.NetBalance, error) {
	if err := s.HomeCurrency.Validate(); err != nil {
		return nil, fmt.Errorf("home currency %q: %w", s.HomeCurrency, err)
	}
	participants, err := s.Index()
	if err != nil {
		return nil, err
	}

	balances := make(core.NetBalance, len(participants))
	for id := range participants {
		balances[id] = core.Money{}
	}

	for _, e := range s.Expenses {
		owed, err := split.ResolveExpense(e, participants, s.HomeCurrency)
		if err != nil {
			return nil, err
		}
		amount, err := e.HomeAmount(s.HomeCurrency)
		if err != nil {
			return nil, fmt.Errorf("expense %s: %w", e.ID, err)
		}

		var residual int64
		for _, le := range LedgerEntries(e.ID, e.PayerID, amount, owed) {
			b, err := balances[le.ParticipantID].CheckedAdd(le.Amount)
			if err != nil {
				return nil, fmt.Errorf("expense %s: participant %s: %w", e.ID, le.ParticipantID, err)
			}
			balances[le.ParticipantID] = b
			residual += le.Amount.Minor
		}
		core.AssertConserved("ledger", e.ID, residual)
		core.AssertConserved("balances", e.ID, balances.Sum())
	}

	if err := applyPayments(balances, s.Payments); err != nil {
		return nil, err
	}
	core.AssertConserved("payments", "", balances.Sum())
	return balances, nil
}

// applyPayments moves completed payments into balances: the sender has paid
// off part of their debt, the receiver is owed that much less.
func applyPayments(balances core.NetBalance, payments []core.Payment) error {
	for _, p := range payments {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("payment %s: %w", p.ID, err)
		}
		if _, ok := balances[p.From]; !ok {
			return fmt.Errorf("payment %s: sender %s: %w", p.ID, p.From, core.ErrUnknownParticipant)
		}
		if _, ok := balances[p.To]; !ok {
			return fmt.Errorf("payment %s: receiver %s: %w", p.ID, p.To, core.ErrUnknownParticipant)
		}
		if p.Status != core.PaymentCompleted {
			continue
		}
		from, err := balances[p.From].CheckedAdd(p.Amount)
		if err != nil {
			return fmt.Errorf("payment %s: sender %s: %w", p.ID, p.From, err)
		}
		to, err := balances[p.To].CheckedAdd(p.Amount.Neg())
		if err != nil {
			return fmt.Errorf("payment %s: receiver %s: %w", p.ID, p.To, err)
		}
		balances[p.From], balances[p.To] = from, to
	}
	return nil
}

// ComputeSettlement computes balances for s and plans the transfers that
// settle them.
func ComputeSettlement(s core.Snapshot) ([]core.Settlement, error) {
	balances, err := ComputeBalances(s)
	if err != nil {
		return nil, err
	}
	return Plan(balances), nil
}

type party struct {
	id     string
	amount int64 // magnitude still to pay or receive
}

// Plan matches debtors against creditors greedily, largest first. Equal
// amounts are ordered by participant id so the plan is reproducible. The
// plan has at most debtors+creditors-1 transfers.
func Plan(balances core.NetBalance) []core.Settlement {
	var debtors, creditors []party
	for id, b := range balances {
		switch {
		case b.Minor <= -core.Epsilon:
			debtors = append(debtors, party{id: id, amount: -b.Minor})
		case b.Minor >= core.Epsilon:
			creditors = append(creditors, party{id: id, amount: b.Minor})
		}
	}
	byAmount := func(ps []party) func(i, j int) bool {
		return func(i, j int) bool {
			if ps[i].amount != ps[j].amount {
				return ps[i].amount > ps[j].amount
			}
			return ps[i].id < ps[j].id
		}
	}
	sort.Slice(debtors, byAmount(debtors))
	sort.Slice(creditors, byAmount(creditors))

	plan := make([]core.Settlement, 0, max(0, len(debtors)+len(creditors)-1))
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		d, c := &debtors[i], &creditors[j]
		amount := min(d.amount, c.amount)
		if amount >= core.Epsilon {
			plan = append(plan, core.Settlement{From: d.id, To: c.id, Amount: core.Money{Minor: amount}})
		}
		d.amount -= amount
		c.amount -= amount
		if d.amount == 0 {
			i++
		}
		if c.amount == 0 {
			j++
		}
	}
	return plan
}

// Apply returns a copy of balances with every settlement applied.
func Apply(balances core.NetBalance, plan []core.Settlement) core.NetBalance {
	out := balances.Clone()
	for _, s := range plan {
		out[s.From] = out[s.From].Add(s.Amount)
		out[s.To] = out[s.To].Sub(s.Amount)
	}
	return out
}

// Verify reports an error when applying plan leaves any participant more
// than one minor unit away from zero.
func Verify(balances core.NetBalance, plan []core.Settlement) error {
	for _, b := range Apply(balances, plan).Sorted() {
		if b.Amount.Abs().Minor > core.Epsilon {
			return fmt.Errorf("participant %s left with balance %d after settlement", b.ParticipantID, b.Amount.Minor)
		}
	}
	return nil
}

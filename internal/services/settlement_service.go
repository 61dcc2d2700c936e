package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"tripsplit/internal/cache"
	"tripsplit/internal/core"
	"tripsplit/internal/log"
	"tripsplit/internal/settlement"
	"tripsplit/internal/split"
)

// Result is a computed settlement: the balances and the plan that clears them.
type Result struct {
	Balances    core.NetBalance
	Settlements []core.Settlement
}

// ExpenseError ties a validation failure to the expense that caused it.
type ExpenseError struct {
	ExpenseID string
	Err       error
}

func (e ExpenseError) Error() string { return fmt.Sprintf("expense %s: %v", e.ExpenseID, e.Err) }
func (e ExpenseError) Unwrap() error { return e.Err }

// SettlementService fronts the split resolver and settlement engine for the
// HTTP API and the AMQP worker.
type SettlementService struct {
	plans       *cache.LRUCache[Result]
	concurrency int
}

// NewSettlementService creates a service. plans may be nil to disable
// memoization; concurrency bounds batch validation (values below 1 mean 1).
func NewSettlementService(plans *cache.LRUCache[Result], concurrency int) *SettlementService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SettlementService{plans: plans, concurrency: concurrency}
}

// ResolveSplit resolves a single expense against the given participants.
func (s *SettlementService) ResolveSplit(ctx context.Context, home core.Currency, participants []core.Participant, e core.Expense) ([]core.Owed, error) {
	idx, err := core.Snapshot{Participants: participants}.Index()
	if err != nil {
		return nil, err
	}
	owed, err := split.ResolveExpense(e, idx, home)
	if err != nil {
		slog.DebugContext(ctx, "Split rejected", "component", "split", "expense_id", e.ID, "error", err)
		return nil, err
	}
	return owed, nil
}

// Balances returns the net balances of a snapshot.
func (s *SettlementService) Balances(ctx context.Context, snap core.Snapshot) (core.NetBalance, error) {
	res, err := s.Settle(ctx, snap)
	if err != nil {
		return nil, err
	}
	return res.Balances, nil
}

// Settle computes balances and a verified settlement plan, reusing a cached
// result for an identical snapshot.
func (s *SettlementService) Settle(ctx context.Context, snap core.Snapshot) (Result, error) {
	key, err := Fingerprint(snap)
	if err != nil {
		return Result{}, fmt.Errorf("fingerprint snapshot: %w", err)
	}
	if s.plans != nil {
		if res, ok := s.plans.Get(key); ok {
			log.NewStructuredLogger(log.FromContext(ctx)).
				LogSettlementComputed(ctx, string(snap.HomeCurrency), len(snap.Participants), len(snap.Expenses), len(res.Settlements), true)
			return cloneResult(res), nil
		}
	}

	balances, err := settlement.ComputeBalances(snap)
	if err != nil {
		return Result{}, err
	}
	plan := settlement.Plan(balances)
	if err := settlement.Verify(balances, plan); err != nil {
		slog.ErrorContext(ctx, "Settlement plan does not clear balances", "component", "settlement", "error", err)
		return Result{}, fmt.Errorf("verify plan: %w", err)
	}

	res := Result{Balances: balances, Settlements: plan}
	if s.plans != nil {
		s.plans.Set(key, cloneResult(res))
	}
	log.NewStructuredLogger(log.FromContext(ctx)).
		LogSettlementComputed(ctx, string(snap.HomeCurrency), len(snap.Participants), len(snap.Expenses), len(plan), false)
	return res, nil
}

// Validate resolves every expense of the snapshot concurrently and reports
// each one that fails. One bad expense does not stop the others from being
// checked. A non-nil error means the snapshot itself is unusable.
func (s *SettlementService) Validate(ctx context.Context, snap core.Snapshot) ([]ExpenseError, error) {
	if err := snap.HomeCurrency.Validate(); err != nil {
		return nil, fmt.Errorf("home currency %q: %w", snap.HomeCurrency, err)
	}
	idx, err := snap.Index()
	if err != nil {
		return nil, err
	}

	results := make([]error, len(snap.Expenses))
	var (
		panicOnce sync.Once
		panicked  any
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, e := range snap.Expenses {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					panicOnce.Do(func() { panicked = r })
					err = fmt.Errorf("expense %s: panic during validation", e.ID)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			_, results[i] = split.ResolveExpense(e, idx, snap.HomeCurrency)
			return nil
		})
	}
	waitErr := g.Wait()
	if panicked != nil {
		// Conservation failures are fatal; hand them back to the caller's goroutine.
		panic(panicked)
	}
	if waitErr != nil {
		return nil, waitErr
	}

	var out []ExpenseError
	for i, err := range results {
		if err != nil {
			out = append(out, ExpenseError{ExpenseID: snap.Expenses[i].ID, Err: err})
		}
	}
	slog.InfoContext(ctx, "Snapshot validated",
		"component", "split",
		"expenses", len(snap.Expenses),
		"invalid", len(out))
	return out, nil
}

// Fingerprint returns a stable content hash of a snapshot.
func Fingerprint(snap core.Snapshot) (string, error) {
	b, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// IsInputError reports whether err was caused by the caller's data rather
// than by the service.
func IsInputError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidSplit,
		core.ErrInvalidAmount,
		core.ErrBalanceOverflow,
		core.ErrInvalidRate,
		core.ErrInvalidCurrency,
		core.ErrInvalidWeight,
		core.ErrEmptyParticipantID,
		core.ErrDuplicateParticipant,
		core.ErrUnknownParticipant,
		core.ErrEmptyExpenseID,
		core.ErrEmptyParticipantSet,
		core.ErrSelfPayment,
		core.ErrInvalidPaymentStatus,
		core.ErrDuplicateBudget,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func cloneResult(r Result) Result {
	return Result{
		Balances:    r.Balances.Clone(),
		Settlements: append([]core.Settlement(nil), r.Settlements...),
	}
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tripsplit/internal/amqp"
	"tripsplit/internal/core"
	"tripsplit/internal/services"
	"tripsplit/internal/wire"
)

// ResultPublisher sends settlement results back to the requester.
type ResultPublisher interface {
	PublishSettlementResult(ctx context.Context, res *amqp.SettlementResult) error
}

// Settler computes a settlement for a snapshot.
type Settler interface {
	Settle(ctx context.Context, snap core.Snapshot) (services.Result, error)
}

// SettlementWorker answers settlement requests arriving over AMQP.
type SettlementWorker struct {
	settler     Settler
	publisher   ResultPublisher
	defaultHome string
	now         func() time.Time
}

// NewSettlementWorker creates a worker. defaultHome is used for snapshots
// that do not name a home currency.
func NewSettlementWorker(settler Settler, publisher ResultPublisher, defaultHome string) *SettlementWorker {
	return &SettlementWorker{settler: settler, publisher: publisher, defaultHome: defaultHome, now: time.Now}
}

// HandleSettlementRequest computes the plan for one request and publishes
// the result. Bad input is reported in the result rather than retried. A
// conservation failure is logged and the message dropped.
func (w *SettlementWorker) HandleSettlementRequest(ctx context.Context, req *amqp.SettlementRequest) (err error) {
	start := w.now()
	slog.InfoContext(ctx, "Processing settlement request",
		"component", "worker",
		"request_id", req.RequestID,
		"trip_id", req.TripID)

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Settlement computation violated an invariant",
				"component", "worker",
				"request_id", req.RequestID,
				"panic", r)
			err = fmt.Errorf("request %s: %v: %w", req.RequestID, r, amqp.ErrPermanent)
		}
	}()

	res, err := w.settle(ctx, req)
	if err != nil {
		// Computation is deterministic; a retry would fail the same way.
		return fmt.Errorf("request %s: %w: %w", req.RequestID, err, amqp.ErrPermanent)
	}
	if err := w.publisher.PublishSettlementResult(ctx, res); err != nil {
		return fmt.Errorf("publish result for %s: %w", req.RequestID, err)
	}

	slog.InfoContext(ctx, "Settlement request processed",
		"component", "worker",
		"request_id", req.RequestID,
		"transfers", len(res.Settlements),
		"failed", res.Error != "",
		"duration_ms", w.now().Sub(start).Milliseconds())
	return nil
}

// settle fills a result. Caller input problems end up in the result; any
// other error is returned.
func (w *SettlementWorker) settle(ctx context.Context, req *amqp.SettlementRequest) (*amqp.SettlementResult, error) {
	res := &amqp.SettlementResult{
		RequestID:   req.RequestID,
		TripID:      req.TripID,
		Balances:    []wire.Balance{},
		Settlements: []wire.Settlement{},
		Timestamp:   w.now(),
	}

	snap, err := req.Snapshot.WithDefaultHome(w.defaultHome).ToCore()
	if err != nil {
		res.Error = err.Error()
		return res, nil
	}
	out, err := w.settler.Settle(ctx, snap)
	if err != nil {
		if !services.IsInputError(err) {
			return nil, err
		}
		res.Error = err.Error()
		var ise *core.InvalidSplitError
		if errors.As(err, &ise) {
			res.ExpenseID = ise.ExpenseID
		}
		slog.WarnContext(ctx, "Settlement request rejected",
			"component", "worker",
			"request_id", req.RequestID,
			"error", err)
		return res, nil
	}

	res.Balances = wire.FromBalances(out.Balances, snap.HomeCurrency)
	res.Settlements = wire.FromSettlements(out.Settlements, snap.HomeCurrency)
	return res, nil
}

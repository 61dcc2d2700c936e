package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"tripsplit/internal/wire"
)

var ErrMissingRequestID = errors.New("message has no request id")

// SettlementRequest asks the worker to compute balances and a settlement plan
// for one trip snapshot. The snapshot travels in full; the worker keeps no state.
type SettlementRequest struct {
	RequestID string        `json:"requestId"`
	TripID    string        `json:"tripId,omitempty"`
	Snapshot  wire.Snapshot `json:"snapshot"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewSettlementRequest creates a request with a fresh request id.
func NewSettlementRequest(tripID string, snapshot wire.Snapshot) *SettlementRequest {
	return &SettlementRequest{
		RequestID: uuid.NewString(),
		TripID:    tripID,
		Snapshot:  snapshot,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SettlementRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SettlementRequestFromJSON decodes a request, rejecting one without a request id.
func SettlementRequestFromJSON(data []byte) (*SettlementRequest, error) {
	var msg SettlementRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.RequestID == "" {
		return nil, ErrMissingRequestID
	}
	return &msg, nil
}

// SettlementResult answers a SettlementRequest. Error is set, and the amounts
// are empty, when the snapshot could not be settled.
type SettlementResult struct {
	RequestID   string            `json:"requestId"`
	TripID      string            `json:"tripId,omitempty"`
	Balances    []wire.Balance    `json:"balances"`
	Settlements []wire.Settlement `json:"settlements"`
	Error       string            `json:"error,omitempty"`
	ExpenseID   string            `json:"expenseId,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m *SettlementResult) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SettlementResultFromJSON(data []byte) (*SettlementResult, error) {
	var msg SettlementResult
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.RequestID == "" {
		return nil, ErrMissingRequestID
	}
	return &msg, nil
}

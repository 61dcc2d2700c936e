package wire

import (
	"encoding/json"
	"errors"
	"testing"

	"tripsplit/internal/core"
)

const snapshotJSON = `{
  "homeCurrency": "usd",
  "participants": [
    {"id": "A", "name": "Ann"},
    {"id": "B", "weight": "2.5"},
    {"id": "C", "weight": null, "inactive": true}
  ],
  "expenses": [
    {"id": "e1", "payerId": "A", "amount": "100.00", "splits": [
      {"participantId": "A", "shareType": "equal"},
      {"participantId": "B", "shareType": "equal"}
    ]},
    {"id": "e2", "payerId": "B", "amount": "3000", "currency": "jpy", "fxRateToHome": 0.0067, "category": "Food", "splits": [
      {"participantId": "A", "shareType": "percentage", "shareValue": "60"},
      {"participantId": "B", "shareType": "percentage", "shareValue": 40}
    ]}
  ],
  "payments": [
    {"id": "p1", "from": "B", "to": "A", "amount": "10"},
    {"id": "p2", "from": "B", "to": "A", "amount": "5.5", "status": "pending"}
  ]
}`

func TestSnapshotToCore(t *testing.T) {
	var s Snapshot
	if err := json.Unmarshal([]byte(snapshotJSON), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	c, err := s.ToCore()
	if err != nil {
		t.Fatalf("ToCore: %v", err)
	}
	if c.HomeCurrency != "USD" {
		t.Fatalf("home currency %q", c.HomeCurrency)
	}
	if c.Participants[0].Weight.Valid || !c.Participants[1].Weight.Valid || c.Participants[1].Weight.Decimal.String() != "2.5" {
		t.Fatalf("unexpected weights %+v", c.Participants)
	}
	if !c.Participants[2].Inactive {
		t.Fatalf("inactive flag lost")
	}

	e1, e2 := c.Expenses[0], c.Expenses[1]
	if e1.Amount.Minor != 10000 || e1.Currency != "USD" {
		t.Fatalf("unexpected e1 %+v", e1)
	}
	if e2.Amount.Minor != 3000 || e2.Currency != "JPY" || e2.FXRateToHome.String() != "0.0067" {
		t.Fatalf("unexpected e2 %+v", e2)
	}
	if e2.Splits[1].ShareType != core.SharePercentage || e2.Splits[1].ShareValue.Decimal.IntPart() != 40 {
		t.Fatalf("unexpected split %+v", e2.Splits[1])
	}

	if c.Payments[0].Status != core.PaymentCompleted || c.Payments[0].Amount.Minor != 1000 {
		t.Fatalf("unexpected payment %+v", c.Payments[0])
	}
	if c.Payments[1].Status != core.PaymentPending || c.Payments[1].Amount.Minor != 550 {
		t.Fatalf("unexpected payment %+v", c.Payments[1])
	}
}

func TestSnapshotToCoreErrors(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
		want error
	}{
		{"bad home", Snapshot{HomeCurrency: "dollars"}, core.ErrInvalidCurrency},
		{"bad expense currency", Snapshot{HomeCurrency: "USD", Expenses: []Expense{{ID: "e", Amount: "1", Currency: "X1Y"}}}, core.ErrInvalidCurrency},
		{"bad amount", Snapshot{HomeCurrency: "USD", Expenses: []Expense{{ID: "e", Amount: "1.2.3"}}}, core.ErrInvalidAmount},
		{"negative amount", Snapshot{HomeCurrency: "USD", Expenses: []Expense{{ID: "e", Amount: "-4"}}}, core.ErrInvalidAmount},
		{"amount above max", Snapshot{HomeCurrency: "USD", Expenses: []Expense{{ID: "e", Amount: "90000000000000000.00"}}}, core.ErrInvalidAmount},
		{"bad payment", Snapshot{HomeCurrency: "USD", Payments: []Payment{{ID: "p", Amount: "zero"}}}, core.ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.snap.ToCore(); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRenderAmounts(t *testing.T) {
	balances := core.NetBalance{"B": {Minor: -5000}, "A": {Minor: 5000}}
	got := FromBalances(balances, "USD")
	if got[0] != (Balance{ParticipantID: "A", Amount: "50.00"}) || got[1] != (Balance{ParticipantID: "B", Amount: "-50.00"}) {
		t.Fatalf("unexpected balances %+v", got)
	}

	plan := FromSettlements([]core.Settlement{{From: "B", To: "A", Amount: core.Money{Minor: 5000}}}, "USD")
	if plan[0].Amount != "50.00" {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if empty := FromSettlements(nil, "USD"); empty == nil {
		t.Fatalf("empty plan must render as an empty list")
	}

	owed := FromOwed([]core.Owed{{ParticipantID: "A", Amount: core.Money{Minor: 334}}}, "USD")
	if owed[0].Amount != "3.34" {
		t.Fatalf("unexpected owed %+v", owed)
	}
}

func TestBudgetsToCore(t *testing.T) {
	bs, err := BudgetsToCore([]Budget{{Category: "food", Planned: "250"}}, "EUR")
	if err != nil || bs[0].Planned.Minor != 25000 {
		t.Fatalf("unexpected budgets %+v err=%v", bs, err)
	}
	if _, err := BudgetsToCore([]Budget{{Category: "food", Planned: "lots"}}, "EUR"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWithDefaultHome(t *testing.T) {
	if got := (Snapshot{}).WithDefaultHome("EUR").Home(); got != "EUR" {
		t.Fatalf("empty home should default, got %q", got)
	}
	if got := (Snapshot{HomeCurrency: "usd"}).WithDefaultHome("EUR").Home(); got != "USD" {
		t.Fatalf("explicit home must win, got %q", got)
	}
}

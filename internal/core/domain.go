package core

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ShareEqual      ShareType = "equal"
	SharePercentage ShareType = "percentage"
	ShareExact      ShareType = "exact"
	ShareWeighted   ShareType = "weighted"
)

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Epsilon is the settlement tolerance: one minor unit of the home currency.
const Epsilon int64 = 1

type (
	// ShareType names the rule dividing one expense among its participants.
	ShareType string

	// PaymentStatus is the lifecycle state of a recorded payment.
	PaymentStatus string

	Participant struct {
		ID     string
		Name   string
		Weight decimal.NullDecimal // relative share multiplier; unset means 1
		// Inactive participants keep their history but are not expected in new expenses.
		Inactive bool
	}

	Split struct {
		ParticipantID string
		ShareType     ShareType
		ShareValue    decimal.NullDecimal
	}

	Expense struct {
		ID           string
		PayerID      string
		Amount       Money // in Currency
		Currency     Currency
		FXRateToHome decimal.Decimal
		Category     string // informational only
		Note         string
		Splits       []Split
	}

	// Payment is a settlement transfer that already happened (or is planned).
	// Only completed payments move balances.
	Payment struct {
		ID     string
		From   string
		To     string
		Amount Money // home currency
		Status PaymentStatus
	}

	// Snapshot is everything one balance or settlement computation looks at.
	Snapshot struct {
		HomeCurrency Currency
		Participants []Participant
		Expenses     []Expense
		Payments     []Payment
	}

	// Owed is one resolved row of a split: what a participant owes for one expense.
	Owed struct {
		ParticipantID string
		Amount        Money
	}

	// LedgerEntry is the signed effect of one expense on one participant:
	// positive when they are owed money, negative when they owe.
	LedgerEntry struct {
		ExpenseID     string
		ParticipantID string
		Amount        Money
	}

	// Settlement instructs From to pay To the given home-currency amount.
	Settlement struct {
		From   string
		To     string
		Amount Money
	}

	Balance struct {
		ParticipantID string
		Amount        Money
	}

	// NetBalance maps participant id to signed home-currency balance.
	NetBalance map[string]Money
)

// Valid reports whether t is one of the four supported split policies.
func (t ShareType) Valid() bool {
	switch t {
	case ShareEqual, SharePercentage, ShareExact, ShareWeighted:
		return true
	default:
		return false
	}
}

// NeedsValue reports whether splits of this type must carry a share value.
func (t ShareType) NeedsValue() bool {
	return t == SharePercentage || t == ShareExact
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentCancelled:
		return true
	default:
		return false
	}
}

// EffectiveWeight returns the participant weight, defaulting to 1.
func (p Participant) EffectiveWeight() decimal.Decimal {
	if !p.Weight.Valid {
		return decimal.NewFromInt(1)
	}
	return p.Weight.Decimal
}

func (p Participant) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrEmptyParticipantID
	}
	if p.Weight.Valid && p.Weight.Decimal.IsNegative() {
		return ErrInvalidWeight
	}
	return nil
}

// HomeAmount converts the expense amount to the home currency.
func (e Expense) HomeAmount(home Currency) (Money, error) {
	cur := e.Currency
	if cur == "" {
		cur = home
	}
	return ToHome(e.Amount, cur, e.FXRateToHome, home)
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyExpenseID
	}
	if strings.TrimSpace(e.PayerID) == "" {
		return ErrEmptyParticipantID
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Currency != "" {
		if err := e.Currency.Validate(); err != nil {
			return err
		}
	}
	if e.FXRateToHome.IsNegative() {
		return ErrInvalidRate
	}
	return nil
}

func (p Payment) Validate() error {
	if strings.TrimSpace(p.From) == "" || strings.TrimSpace(p.To) == "" {
		return ErrEmptyParticipantID
	}
	if p.From == p.To {
		return ErrSelfPayment
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if !p.Status.Valid() {
		return ErrInvalidPaymentStatus
	}
	return nil
}

// Index returns participants keyed by id, rejecting duplicates and invalid entries.
func (s Snapshot) Index() (map[string]Participant, error) {
	idx := make(map[string]Participant, len(s.Participants))
	for _, p := range s.Participants {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := idx[p.ID]; dup {
			return nil, ErrDuplicateParticipant
		}
		idx[p.ID] = p
	}
	return idx, nil
}

// Sum returns the total of all balances; zero when money is conserved.
func (n NetBalance) Sum() int64 {
	var total int64
	for _, m := range n {
		total += m.Minor
	}
	return total
}

func (n NetBalance) Clone() NetBalance {
	out := make(NetBalance, len(n))
	for k, v := range n {
		out[k] = v
	}
	return out
}

// Sorted returns balances ordered by participant id.
func (n NetBalance) Sorted() []Balance {
	out := make([]Balance, 0, len(n))
	for id, m := range n {
		out = append(out, Balance{ParticipantID: id, Amount: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}

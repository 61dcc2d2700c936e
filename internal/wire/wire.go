// Package wire holds the JSON shapes shared by the HTTP API and the AMQP
// worker. Amounts travel as decimal strings in the scale of their currency
// and are converted to minor units here, before anything is computed.
package wire

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tripsplit/internal/core"
)

type Participant struct {
	ID       string              `json:"id"`
	Name     string              `json:"name,omitempty"`
	Weight   decimal.NullDecimal `json:"weight"`
	Inactive bool                `json:"inactive,omitempty"`
}

type Split struct {
	ParticipantID string              `json:"participantId"`
	ShareType     string              `json:"shareType"`
	ShareValue    decimal.NullDecimal `json:"shareValue"`
}

type Expense struct {
	ID           string          `json:"id"`
	PayerID      string          `json:"payerId"`
	Amount       string          `json:"amount"`
	Currency     string          `json:"currency,omitempty"`
	FXRateToHome decimal.Decimal `json:"fxRateToHome"`
	Category     string          `json:"category,omitempty"`
	Note         string          `json:"note,omitempty"`
	Splits       []Split         `json:"splits"`
}

type Payment struct {
	ID     string `json:"id,omitempty"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Status string `json:"status,omitempty"`
}

type Snapshot struct {
	HomeCurrency string        `json:"homeCurrency"`
	Participants []Participant `json:"participants"`
	Expenses     []Expense     `json:"expenses"`
	Payments     []Payment     `json:"payments,omitempty"`
}

type Budget struct {
	Category string `json:"category"`
	Planned  string `json:"planned"`
}

type Owed struct {
	ParticipantID string `json:"participantId"`
	Amount        string `json:"amount"`
}

type Balance struct {
	ParticipantID string `json:"participantId"`
	Amount        string `json:"amount"`
}

type Settlement struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type CategoryAmount struct {
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

type ParticipantSummary struct {
	ParticipantID string `json:"participantId"`
	Paid          string `json:"paid"`
	Share         string `json:"share"`
	Net           string `json:"net"`
}

type BudgetLine struct {
	Category    string `json:"category"`
	Planned     string `json:"planned"`
	Actual      string `json:"actual"`
	Variance    string `json:"variance"`
	Utilization string `json:"utilization"`
}

type Summary struct {
	HomeCurrency  string               `json:"homeCurrency"`
	Total         string               `json:"total"`
	ByCategory    []CategoryAmount     `json:"byCategory"`
	ByParticipant []ParticipantSummary `json:"byParticipant"`
	Budget        []BudgetLine         `json:"budget,omitempty"`
	TotalPlanned  string               `json:"totalPlanned,omitempty"`
	Remaining     string               `json:"remaining,omitempty"`
}

// Home returns the snapshot's home currency, normalized.
func (s Snapshot) Home() core.Currency {
	return core.NormalizeCurrency(s.HomeCurrency)
}

// WithDefaultHome fills an empty home currency.
func (s Snapshot) WithDefaultHome(home string) Snapshot {
	if s.HomeCurrency == "" {
		s.HomeCurrency = home
	}
	return s
}

// ToCore parses the snapshot into minor-unit domain values.
func (s Snapshot) ToCore() (core.Snapshot, error) {
	home := s.Home()
	if err := home.Validate(); err != nil {
		return core.Snapshot{}, fmt.Errorf("home currency %q: %w", s.HomeCurrency, err)
	}
	out := core.Snapshot{
		HomeCurrency: home,
		Participants: ParticipantsToCore(s.Participants),
	}
	for _, e := range s.Expenses {
		ce, err := e.ToCore(home)
		if err != nil {
			return core.Snapshot{}, err
		}
		out.Expenses = append(out.Expenses, ce)
	}
	for _, p := range s.Payments {
		cp, err := p.ToCore(home)
		if err != nil {
			return core.Snapshot{}, err
		}
		out.Payments = append(out.Payments, cp)
	}
	return out, nil
}

func ParticipantsToCore(ps []Participant) []core.Participant {
	out := make([]core.Participant, len(ps))
	for i, p := range ps {
		out[i] = core.Participant{ID: p.ID, Name: p.Name, Weight: p.Weight, Inactive: p.Inactive}
	}
	return out
}

// ToCore parses an expense. An empty currency means the home currency.
func (e Expense) ToCore(home core.Currency) (core.Expense, error) {
	cur := home
	if e.Currency != "" {
		cur = core.NormalizeCurrency(e.Currency)
		if err := cur.Validate(); err != nil {
			return core.Expense{}, fmt.Errorf("expense %s currency %q: %w", e.ID, e.Currency, err)
		}
	}
	amount, err := core.ParseAmount(e.Amount, cur)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s amount %q: %w", e.ID, e.Amount, err)
	}
	out := core.Expense{
		ID:           e.ID,
		PayerID:      e.PayerID,
		Amount:       amount,
		Currency:     cur,
		FXRateToHome: e.FXRateToHome,
		Category:     e.Category,
		Note:         e.Note,
		Splits:       make([]core.Split, len(e.Splits)),
	}
	for i, s := range e.Splits {
		out.Splits[i] = core.Split{
			ParticipantID: s.ParticipantID,
			ShareType:     core.ShareType(s.ShareType),
			ShareValue:    s.ShareValue,
		}
	}
	return out, nil
}

// ToCore parses a payment in the home currency. An empty status means completed.
func (p Payment) ToCore(home core.Currency) (core.Payment, error) {
	amount, err := core.ParseAmount(p.Amount, home)
	if err != nil {
		return core.Payment{}, fmt.Errorf("payment %s amount %q: %w", p.ID, p.Amount, err)
	}
	status := core.PaymentStatus(p.Status)
	if status == "" {
		status = core.PaymentCompleted
	}
	return core.Payment{ID: p.ID, From: p.From, To: p.To, Amount: amount, Status: status}, nil
}

func BudgetsToCore(bs []Budget, home core.Currency) ([]core.Budget, error) {
	out := make([]core.Budget, 0, len(bs))
	for _, b := range bs {
		planned, err := core.ParseSignedAmount(b.Planned, home)
		if err != nil {
			return nil, fmt.Errorf("budget %s planned %q: %w", b.Category, b.Planned, err)
		}
		out = append(out, core.Budget{Category: b.Category, Planned: planned})
	}
	return out, nil
}

func FromOwed(owed []core.Owed, home core.Currency) []Owed {
	out := make([]Owed, len(owed))
	for i, o := range owed {
		out[i] = Owed{ParticipantID: o.ParticipantID, Amount: o.Amount.Format(home)}
	}
	return out
}

// FromBalances renders balances ordered by participant id.
func FromBalances(n core.NetBalance, home core.Currency) []Balance {
	sorted := n.Sorted()
	out := make([]Balance, len(sorted))
	for i, b := range sorted {
		out[i] = Balance{ParticipantID: b.ParticipantID, Amount: b.Amount.Format(home)}
	}
	return out
}

func FromSettlements(plan []core.Settlement, home core.Currency) []Settlement {
	out := make([]Settlement, len(plan))
	for i, s := range plan {
		out[i] = Settlement{From: s.From, To: s.To, Amount: s.Amount.Format(home)}
	}
	return out
}

func FromSummary(s core.TripSummary) Summary {
	home := s.HomeCurrency
	out := Summary{
		HomeCurrency:  home.String(),
		Total:         s.Total.Format(home),
		ByCategory:    make([]CategoryAmount, len(s.ByCategory)),
		ByParticipant: make([]ParticipantSummary, len(s.ByParticipant)),
	}
	for i, c := range s.ByCategory {
		out.ByCategory[i] = CategoryAmount{Category: c.Name, Amount: c.Amount.Format(home)}
	}
	for i, p := range s.ByParticipant {
		out.ByParticipant[i] = ParticipantSummary{
			ParticipantID: p.ParticipantID,
			Paid:          p.Paid.Format(home),
			Share:         p.Share.Format(home),
			Net:           p.Net.Format(home),
		}
	}
	if len(s.Budget) > 0 {
		for _, b := range s.Budget {
			out.Budget = append(out.Budget, BudgetLine{
				Category:    b.Category,
				Planned:     b.Planned.Format(home),
				Actual:      b.Actual.Format(home),
				Variance:    b.Variance.Format(home),
				Utilization: b.Utilization.StringFixed(2),
			})
		}
		out.TotalPlanned = s.TotalPlanned.Format(home)
		out.Remaining = s.Remaining.Format(home)
	}
	return out
}

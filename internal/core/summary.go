package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Known expense categories. Anything else is reported as-is; empty is CategoryOther.
const (
	CategoryAccommodation = "accommodation"
	CategoryFood          = "food"
	CategoryTransport     = "transport"
	CategoryActivities    = "activities"
	CategoryShopping      = "shopping"
	CategoryOther         = "other"
)

// NormalizeCategory lower-cases a category and maps empty to CategoryOther.
func NormalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return CategoryOther
	}
	return c
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// Budget is the planned home-currency spend for one category.
type Budget struct {
	Category string
	Planned  Money
}

// BudgetLine compares planned against actual spend for one category.
type BudgetLine struct {
	Category    string
	Planned     Money
	Actual      Money
	Variance    Money           // actual - planned
	Utilization decimal.Decimal // percent of planned, zero when nothing planned
}

// ParticipantSummary is what one participant paid and what their share was.
// Net is their balance after completed payments, so it is Paid-Share only
// when no payment involves them.
type ParticipantSummary struct {
	ParticipantID string
	Paid          Money
	Share         Money
	Net           Money
}

// TripSummary is a compact home-currency overview of a snapshot.
type TripSummary struct {
	HomeCurrency  Currency
	Total         Money
	ByCategory    []CategoryAmount
	ByParticipant []ParticipantSummary
	Budget        []BudgetLine
	TotalPlanned  Money
	Remaining     Money
}

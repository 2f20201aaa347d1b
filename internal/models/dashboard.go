package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UpcomingItem is an occurrence flattened with its obligation for list views
type UpcomingItem struct {
	OccurrenceID   uuid.UUID       `json:"occurrence_id"`
	ObligationID   uuid.UUID       `json:"obligation_id"`
	Kind           Kind            `json:"kind"`
	Title          string          `json:"title"`
	DueDate        time.Time       `json:"due_date"`
	Amount         decimal.Decimal `json:"amount"`
	CurrencyCode   string          `json:"currency_code"`
	FormattedValue string          `json:"formatted_amount"`
	Status         string          `json:"due_status"`
}

// CurrencyTotals groups amounts by currency code; amounts in different currencies are never summed
type CurrencyTotals map[string]decimal.Decimal

// Add accumulates amount under code
func (t CurrencyTotals) Add(code string, amount decimal.Decimal) {
	t[code] = t[code].Add(amount)
}

// DashboardSummary is the aggregate view over every obligation
type DashboardSummary struct {
	Upcoming        []UpcomingItem `json:"upcoming"`
	BadgeCount      int            `json:"badge_count"`
	OverdueCount    int            `json:"overdue_count"`
	LoanRemaining   CurrencyTotals `json:"loan_remaining"`
	IncomeUpcoming  CurrencyTotals `json:"income_upcoming"`
	ExpenseUpcoming CurrencyTotals `json:"expense_upcoming"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind tags an obligation as a loan, an income source or a recurring expense
type Kind string

const (
	KindLoan    Kind = "loan"
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// IsValid checks if the kind is known
func (k Kind) IsValid() bool {
	switch k {
	case KindLoan, KindIncome, KindExpense:
		return true
	}
	return false
}

// Frequency is the recurrence unit of an obligation
type Frequency string

const (
	FrequencyOneTime   Frequency = "oneTime"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// IsValid checks if the frequency is known
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyOneTime, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// PeriodsPerYear returns how many periods of this frequency fit into one year
func (f Frequency) PeriodsPerYear() int {
	switch f {
	case FrequencyWeekly:
		return 52
	case FrequencyMonthly:
		return 12
	case FrequencyQuarterly:
		return 4
	default:
		return 1
	}
}

// InterestMode selects how a loan's total payable is derived
type InterestMode string

const (
	InterestNone             InterestMode = "none"
	InterestPercentageAnnual InterestMode = "percentageAnnual"
	InterestFixedTotal       InterestMode = "fixedTotal"
)

// IsValid checks if the interest mode is known
func (m InterestMode) IsValid() bool {
	switch m {
	case InterestNone, InterestPercentageAnnual, InterestFixedTotal:
		return true
	}
	return false
}

// InterestSpec describes loan interest terms. Only meaningful for loans.
type InterestSpec struct {
	Mode        InterestMode     `json:"mode"`
	RatePercent float64          `json:"rate_percent,omitempty"` // annual, percentageAnnual only
	FixedTotal  *decimal.Decimal `json:"fixed_total,omitempty"`  // none/fixedTotal; nil means principal
}

// Equal reports whether two interest specs describe the same terms
func (s InterestSpec) Equal(o InterestSpec) bool {
	if s.Mode != o.Mode || s.RatePercent != o.RatePercent {
		return false
	}
	if (s.FixedTotal == nil) != (o.FixedTotal == nil) {
		return false
	}
	return s.FixedTotal == nil || s.FixedTotal.Equal(*o.FixedTotal)
}

// Obligation is a loan, income source or recurring expense together with its occurrences
type Obligation struct {
	ID           uuid.UUID       `json:"id"`
	Kind         Kind            `json:"kind"`
	Title        string          `json:"title"`
	Notes        string          `json:"notes,omitempty"`
	Amount       decimal.Decimal `json:"amount"` // principal for loans
	CurrencyCode string          `json:"currency_code"`
	Frequency    Frequency       `json:"frequency"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      *time.Time      `json:"end_date,omitempty"`
	PeriodCount  int             `json:"period_count,omitempty"` // loans only
	Interest     InterestSpec    `json:"interest"`

	// Derived by the reconciliation pass, never edited directly
	TotalPayable   decimal.Decimal `json:"total_payable"`
	PeriodicAmount decimal.Decimal `json:"periodic_amount"`
	NextDueDate    *time.Time      `json:"next_due_date,omitempty"`
	TotalSettled   decimal.Decimal `json:"total_settled"`
	RemainingToPay decimal.Decimal `json:"remaining_to_pay"`

	Occurrences []Occurrence `json:"occurrences,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Validate checks user-editable fields
func (o *Obligation) Validate() error {
	if o.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if !o.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, o.Kind)
	}
	if !o.Frequency.IsValid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, o.Frequency)
	}
	if !o.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if len(o.CurrencyCode) != 3 {
		return fmt.Errorf("%w: currency code must have 3 letters", ErrInvalidInput)
	}
	if o.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}
	if o.EndDate != nil && o.EndDate.Before(o.StartDate) {
		return fmt.Errorf("%w: end date is before start date", ErrInvalidInput)
	}
	if o.Kind != KindLoan {
		return nil
	}
	if o.PeriodCount < 0 {
		return fmt.Errorf("%w: period count cannot be negative", ErrInvalidInput)
	}
	if o.Interest.Mode == "" {
		o.Interest.Mode = InterestNone
	}
	if !o.Interest.Mode.IsValid() {
		return fmt.Errorf("%w: unknown interest mode %q", ErrInvalidInput, o.Interest.Mode)
	}
	if o.Interest.RatePercent < 0 || math.IsNaN(o.Interest.RatePercent) || math.IsInf(o.Interest.RatePercent, 0) {
		return fmt.Errorf("%w: interest rate must be a non-negative number", ErrInvalidInput)
	}
	if o.Interest.FixedTotal != nil && o.Interest.FixedTotal.IsNegative() {
		return fmt.Errorf("%w: fixed total cannot be negative", ErrInvalidInput)
	}
	return nil
}

// ScheduleChanged reports whether moving from old to updated requires regenerating occurrences.
// Title, notes and currency are cosmetic.
func ScheduleChanged(old, updated *Obligation) bool {
	if !old.Amount.Equal(updated.Amount) ||
		old.Frequency != updated.Frequency ||
		!old.StartDate.Equal(updated.StartDate) ||
		old.PeriodCount != updated.PeriodCount ||
		!old.Interest.Equal(updated.Interest) {
		return true
	}
	if (old.EndDate == nil) != (updated.EndDate == nil) {
		return true
	}
	return old.EndDate != nil && !old.EndDate.Equal(*updated.EndDate)
}

// ObligationPatch carries a partial update; nil fields are left untouched
type ObligationPatch struct {
	Title        *string          `json:"title"`
	Notes        *string          `json:"notes"`
	Amount       *decimal.Decimal `json:"amount"`
	CurrencyCode *string          `json:"currency_code"`
	Frequency    *Frequency       `json:"frequency"`
	StartDate    *time.Time       `json:"start_date"`
	EndDate      *time.Time       `json:"end_date"`
	ClearEndDate bool             `json:"clear_end_date"`
	PeriodCount  *int             `json:"period_count"`
	Interest     *InterestSpec    `json:"interest"`
}

// Apply copies the set fields of the patch onto o
func (p ObligationPatch) Apply(o *Obligation) {
	if p.Title != nil {
		o.Title = *p.Title
	}
	if p.Notes != nil {
		o.Notes = *p.Notes
	}
	if p.Amount != nil {
		o.Amount = *p.Amount
	}
	if p.CurrencyCode != nil {
		o.CurrencyCode = *p.CurrencyCode
	}
	if p.Frequency != nil {
		o.Frequency = *p.Frequency
	}
	if p.StartDate != nil {
		o.StartDate = *p.StartDate
	}
	if p.ClearEndDate {
		o.EndDate = nil
	} else if p.EndDate != nil {
		end := *p.EndDate
		o.EndDate = &end
	}
	if p.PeriodCount != nil {
		o.PeriodCount = *p.PeriodCount
	}
	if p.Interest != nil {
		o.Interest = *p.Interest
	}
}

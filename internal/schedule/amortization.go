package schedule

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/finance-tracker/internal/models"
)

// LoanInput describes a loan for the calculator. It needs no persisted obligation.
type LoanInput struct {
	Principal   decimal.Decimal     `json:"principal"`
	Interest    models.InterestSpec `json:"interest"`
	PeriodCount int                 `json:"period_count"`
	Frequency   models.Frequency    `json:"frequency"`
	StartDate   time.Time           `json:"start_date"`
}

// Installment is one dated amount of a loan schedule
type Installment struct {
	Period  int             `json:"period"`
	DueDate time.Time       `json:"due_date"`
	Amount  decimal.Decimal `json:"amount"`
}

// LoanSchedule is the calculator result
type LoanSchedule struct {
	TotalPayable   decimal.Decimal `json:"total_payable"`
	PeriodicAmount decimal.Decimal `json:"periodic_amount"`
	Installments   []Installment   `json:"installments"`
}

// Sum adds up all installment amounts
func (s LoanSchedule) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, inst := range s.Installments {
		sum = sum.Add(inst.Amount)
	}
	return sum
}

// LoanInputFrom extracts calculator input from a loan obligation
func LoanInputFrom(o *models.Obligation) LoanInput {
	return LoanInput{
		Principal:   o.Amount,
		Interest:    o.Interest,
		PeriodCount: o.PeriodCount,
		Frequency:   o.Frequency,
		StartDate:   o.StartDate,
	}
}

func degenerate(principal decimal.Decimal) LoanSchedule {
	return LoanSchedule{TotalPayable: principal, PeriodicAmount: principal, Installments: []Installment{}}
}

// TotalPayable resolves the amount owed over the whole loan. The second result is
// false when the computation is not finite.
func TotalPayable(principal decimal.Decimal, interest models.InterestSpec, periodCount int, freq models.Frequency) (decimal.Decimal, bool) {
	switch interest.Mode {
	case models.InterestPercentageAnnual:
		rate := interest.RatePercent
		if math.IsNaN(rate) || math.IsInf(rate, 0) {
			return decimal.Zero, false
		}
		years := float64(periodCount) / float64(freq.PeriodsPerYear())
		interestAmount := principal.InexactFloat64() * (rate / 100) * years
		if math.IsNaN(interestAmount) || math.IsInf(interestAmount, 0) {
			return decimal.Zero, false
		}
		// Exact decimal arithmetic once the inputs are known to be finite.
		yearsDec := decimal.NewFromInt(int64(periodCount)).Div(decimal.NewFromInt(int64(freq.PeriodsPerYear())))
		rateDec := decimal.NewFromFloat(rate).Div(decimal.NewFromInt(100))
		return principal.Add(principal.Mul(rateDec).Mul(yearsDec)).Round(2), true
	default:
		if interest.FixedTotal != nil {
			return *interest.FixedTotal, true
		}
		return principal, true
	}
}

// ComputeLoanSchedule produces the total payable, the per-period amount and the
// dated installments of a loan. Installment 0 is due on the start date and each
// following one is one frequency step later. The per-period amount is rounded to
// cents and the last installment takes whatever remains, so installments always
// sum to the total payable. A non-positive period count, or a total that cannot be
// computed, yields the principal with no installments.
func ComputeLoanSchedule(in LoanInput) LoanSchedule {
	periods := in.PeriodCount
	if in.Frequency == models.FrequencyOneTime && periods > 1 {
		periods = 1
	}
	if periods <= 0 {
		return degenerate(in.Principal)
	}

	total, ok := TotalPayable(in.Principal, in.Interest, periods, in.Frequency)
	if !ok {
		return degenerate(in.Principal)
	}
	periodic := total.DivRound(decimal.NewFromInt(int64(periods)), 2)

	installments := make([]Installment, 0, periods)
	allocated := decimal.Zero
	due := in.StartDate
	anchor := in.StartDate.Day()
	for i := 0; i < periods; i++ {
		if i > 0 {
			next, ok := NextDate(due, in.Frequency, anchor)
			if !ok {
				break
			}
			due = next
		}
		amount := periodic
		if i == periods-1 {
			amount = total.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		if amount.IsNegative() {
			continue
		}
		installments = append(installments, Installment{Period: i + 1, DueDate: due, Amount: amount})
	}

	// Calendar failure cut the series short: the last produced installment absorbs the rest.
	if n := len(installments); n > 0 && n < periods {
		installments[n-1].Amount = installments[n-1].Amount.Add(total.Sub(allocated))
	}

	return LoanSchedule{TotalPayable: total, PeriodicAmount: periodic, Installments: installments}
}

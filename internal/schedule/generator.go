package schedule

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/finance-tracker/internal/models"
)

// Candidate is a dated amount that would become a planned occurrence
type Candidate struct {
	DueDate time.Time
	Amount  decimal.Decimal
}

// Generator materializes obligations into occurrences. It works on the in-memory
// obligation only; persisting the result is the caller's job.
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a generator reading the current time from now
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Candidates computes the full date/amount series for the obligation's current fields.
// Loans also get their total payable and periodic amount set.
func (g *Generator) Candidates(o *models.Obligation) []Candidate {
	if o.Kind == models.KindLoan {
		loan := ComputeLoanSchedule(LoanInputFrom(o))
		o.TotalPayable = loan.TotalPayable
		o.PeriodicAmount = loan.PeriodicAmount
		candidates := make([]Candidate, 0, len(loan.Installments))
		for _, inst := range loan.Installments {
			candidates = append(candidates, Candidate{DueDate: inst.DueDate, Amount: inst.Amount})
		}
		return candidates
	}

	o.PeriodicAmount = o.Amount
	dates := Dates(o.StartDate, o.Frequency, o.EndDate, g.now())
	candidates := make([]Candidate, 0, len(dates))
	for _, d := range dates {
		candidates = append(candidates, Candidate{DueDate: d, Amount: o.Amount})
	}
	return candidates
}

// Generate replaces every occurrence of o with a freshly planned series and returns it.
// It is meant for new obligations, where there is nothing to replace.
func (g *Generator) Generate(o *models.Obligation) []models.Occurrence {
	now := g.now()
	candidates := g.Candidates(o)
	occurrences := make([]models.Occurrence, 0, len(candidates))
	for _, c := range candidates {
		occurrences = append(occurrences, models.NewPlannedOccurrence(o.ID, c.DueDate, c.Amount, now))
	}
	o.Occurrences = occurrences
	o.UpdatedAt = now
	return occurrences
}

// Refresh keeps settled occurrences verbatim, drops every planned one and plans the
// current series again, skipping dates that already carry a settled occurrence.
// It returns the newly planned occurrences and the ids of the dropped ones.
func (g *Generator) Refresh(o *models.Obligation) (created []models.Occurrence, removed []uuid.UUID) {
	now := g.now()

	kept := make([]models.Occurrence, 0, len(o.Occurrences))
	for _, occ := range o.Occurrences {
		if occ.IsSettled() {
			kept = append(kept, occ)
		} else {
			removed = append(removed, occ.ID)
		}
	}

	created = make([]models.Occurrence, 0)
	for _, c := range g.Candidates(o) {
		if onSettledDay(kept, c.DueDate) {
			continue
		}
		created = append(created, models.NewPlannedOccurrence(o.ID, c.DueDate, c.Amount, now))
	}

	o.Occurrences = append(kept, created...)
	SortOccurrences(o.Occurrences)
	o.UpdatedAt = now
	return created, removed
}

// Extend appends planned occurrences after the latest existing one, up to the
// rolling horizon, leaving existing rows untouched. Loans and obligations with
// nothing left to add return nil.
func (g *Generator) Extend(o *models.Obligation) []models.Occurrence {
	if o.Kind == models.KindLoan || o.Frequency == models.FrequencyOneTime {
		return nil
	}
	now := g.now()

	var dates []time.Time
	if len(o.Occurrences) == 0 {
		dates = Dates(o.StartDate, o.Frequency, o.EndDate, now)
	} else {
		last := o.Occurrences[0].DueDate
		for _, occ := range o.Occurrences[1:] {
			if occ.DueDate.After(last) {
				last = occ.DueDate
			}
		}
		dates = DatesAfter(o.StartDate, o.Frequency, o.EndDate, last, now)
	}
	if len(dates) == 0 {
		return nil
	}

	created := make([]models.Occurrence, 0, len(dates))
	for _, d := range dates {
		created = append(created, models.NewPlannedOccurrence(o.ID, d, o.Amount, now))
	}
	o.Occurrences = append(o.Occurrences, created...)
	SortOccurrences(o.Occurrences)
	o.UpdatedAt = now
	return created
}

// SortOccurrences orders occurrences by due date
func SortOccurrences(occurrences []models.Occurrence) {
	sort.SliceStable(occurrences, func(i, j int) bool {
		return occurrences[i].DueDate.Before(occurrences[j].DueDate)
	})
}

func onSettledDay(settled []models.Occurrence, day time.Time) bool {
	for _, occ := range settled {
		if SameDay(occ.DueDate, day) {
			return true
		}
	}
	return false
}

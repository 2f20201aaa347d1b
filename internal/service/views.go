package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/Dan9191/finance-tracker/internal/format"
	"github.com/Dan9191/finance-tracker/internal/models"
	"github.com/Dan9191/finance-tracker/internal/reconcile"
	"github.com/Dan9191/finance-tracker/internal/schedule"
)

// snapshot is every obligation with its derived fields plus the window in effect
type snapshot struct {
	obligations []models.Obligation
	byID        map[uuid.UUID]*models.Obligation
	window      schedule.Window
}

func (s *Service) snapshot(ctx context.Context) (*snapshot, error) {
	obligations, err := s.store.ListObligations(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	snap := &snapshot{
		obligations: obligations,
		byID:        make(map[uuid.UUID]*models.Obligation, len(obligations)),
		window:      schedule.NewWindow(settings.LeadTimeDays),
	}
	for i := range snap.obligations {
		reconcile.Derive(&snap.obligations[i])
		snap.byID[snap.obligations[i].ID] = &snap.obligations[i]
	}
	return snap, nil
}

func (snap *snapshot) occurrences() []models.Occurrence {
	var all []models.Occurrence
	for _, o := range snap.obligations {
		all = append(all, o.Occurrences...)
	}
	return all
}

// Upcoming lists the occurrences inside the upcoming window, soonest first
func (s *Service) Upcoming(ctx context.Context) ([]models.UpcomingItem, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.upcoming(snap), nil
}

func (s *Service) upcoming(snap *snapshot) []models.UpcomingItem {
	now := s.now()
	occurrences := snap.window.FilterUpcoming(snap.occurrences(), now)

	items := make([]models.UpcomingItem, 0, len(occurrences))
	for _, occ := range occurrences {
		o := snap.byID[occ.ObligationID]
		items = append(items, models.UpcomingItem{
			OccurrenceID:   occ.ID,
			ObligationID:   o.ID,
			Kind:           o.Kind,
			Title:          o.Title,
			DueDate:        occ.DueDate,
			Amount:         occ.Amount,
			CurrencyCode:   o.CurrencyCode,
			FormattedValue: format.Money(occ.Amount, o.CurrencyCode),
			Status:         schedule.StatusOf(occ.DueDate, now).String(),
		})
	}
	return items
}

// BadgeCount is the number of upcoming occurrences
func (s *Service) BadgeCount(ctx context.Context) (int, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snap.window.BadgeCount(snap.occurrences(), s.now()), nil
}

// Dashboard aggregates the upcoming window, overdue items and loan balances.
// Totals are kept per currency.
func (s *Service) Dashboard(ctx context.Context) (*models.DashboardSummary, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	summary := &models.DashboardSummary{
		Upcoming:        s.upcoming(snap),
		LoanRemaining:   models.CurrencyTotals{},
		IncomeUpcoming:  models.CurrencyTotals{},
		ExpenseUpcoming: models.CurrencyTotals{},
		GeneratedAt:     now,
	}
	summary.BadgeCount = len(summary.Upcoming)

	for _, o := range snap.obligations {
		if o.Kind == models.KindLoan {
			summary.LoanRemaining.Add(o.CurrencyCode, o.RemainingToPay)
		}
		for _, occ := range o.Occurrences {
			if schedule.IsOccurrenceOverdue(occ, now) {
				summary.OverdueCount++
			}
		}
	}
	for _, item := range summary.Upcoming {
		switch item.Kind {
		case models.KindIncome:
			summary.IncomeUpcoming.Add(item.CurrencyCode, item.Amount)
		case models.KindExpense:
			summary.ExpenseUpcoming.Add(item.CurrencyCode, item.Amount)
		}
	}
	return summary, nil
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/finance-tracker/internal/models"
	"github.com/Dan9191/finance-tracker/internal/reconcile"
	"github.com/Dan9191/finance-tracker/internal/schedule"
)

// normalize clears terms that do not apply to the obligation's kind
func normalize(o *models.Obligation) {
	if o.Kind != models.KindLoan {
		o.PeriodCount = 0
		o.Interest = models.InterestSpec{Mode: models.InterestNone}
		return
	}
	if o.Frequency == models.FrequencyOneTime {
		o.PeriodCount = 1
	}
}

// CreateObligation validates o, plans its occurrences and stores both in one
// transaction. Reminders follow asynchronously.
func (s *Service) CreateObligation(ctx context.Context, o *models.Obligation) (*models.Obligation, error) {
	if o.CurrencyCode == "" {
		settings, err := s.store.GetSettings(ctx)
		if err != nil {
			return nil, err
		}
		o.CurrencyCode = settings.DefaultCurrency
	}
	normalize(o)
	if err := o.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	o.ID = uuid.New()
	o.CreatedAt = now
	s.gen.Generate(o)
	reconcile.Derive(o)

	if err := s.store.CreateObligation(ctx, o); err != nil {
		return nil, err
	}
	s.queue.Trigger()

	s.log.WithFields(logrus.Fields{"obligation_id": o.ID, "kind": o.Kind}).
		Infof("Obligation created with %d occurrences", len(o.Occurrences))
	return o, nil
}

// UpdateObligation applies patch to the obligation. Occurrences are regenerated only
// when a schedule-affecting field changed; settled history is always kept.
func (s *Service) UpdateObligation(ctx context.Context, id uuid.UUID, patch models.ObligationPatch) (*models.Obligation, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	old, err := s.store.GetObligation(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *old
	updated.Occurrences = append([]models.Occurrence(nil), old.Occurrences...)
	patch.Apply(&updated)
	normalize(&updated)
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	entry := s.log.WithField("obligation_id", id)
	if models.ScheduleChanged(old, &updated) {
		created, removed := s.gen.Refresh(&updated)
		reconcile.Derive(&updated)
		if err := s.store.ReplaceSchedule(ctx, &updated, removed, created); err != nil {
			return nil, err
		}
		entry.Infof("Obligation schedule refreshed: %d planned, %d dropped", len(created), len(removed))
	} else {
		updated.UpdatedAt = s.now()
		reconcile.Derive(&updated)
		if err := s.store.UpdateObligation(ctx, &updated); err != nil {
			return nil, err
		}
		entry.Info("Obligation details updated")
	}

	s.queue.Trigger()
	return &updated, nil
}

// DeleteObligation removes an obligation with its occurrences and reminders
func (s *Service) DeleteObligation(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.store.DeleteObligation(ctx, id); err != nil {
		return err
	}
	s.queue.Trigger()

	s.log.WithField("obligation_id", id).Info("Obligation deleted")
	return nil
}

// GetObligation returns an obligation with its occurrences
func (s *Service) GetObligation(ctx context.Context, id uuid.UUID) (*models.Obligation, error) {
	o, err := s.store.GetObligation(ctx, id)
	if err != nil {
		return nil, err
	}
	reconcile.Derive(o)
	return o, nil
}

// ListObligations returns every obligation, or only those of kind when it is set
func (s *Service) ListObligations(ctx context.Context, kind models.Kind) ([]models.Obligation, error) {
	if kind != "" && !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown kind %q", models.ErrInvalidInput, kind)
	}
	all, err := s.store.ListObligations(ctx)
	if err != nil {
		return nil, err
	}

	obligations := make([]models.Obligation, 0, len(all))
	for _, o := range all {
		if kind != "" && o.Kind != kind {
			continue
		}
		reconcile.Derive(&o)
		obligations = append(obligations, o)
	}
	return obligations, nil
}

// SettleOccurrence marks an occurrence paid or received on settledDate, today when nil
func (s *Service) SettleOccurrence(ctx context.Context, id uuid.UUID, settledDate *time.Time) (*models.Occurrence, error) {
	return s.changeOccurrence(ctx, id, func(occ *models.Occurrence, now time.Time) error {
		date := now
		if settledDate != nil {
			date = *settledDate
		}
		occ.Status = models.StatusSettled
		occ.SettledDate = &date
		occ.SnoozeUntil = nil
		return nil
	})
}

// UnsettleOccurrence returns a settled occurrence to planned
func (s *Service) UnsettleOccurrence(ctx context.Context, id uuid.UUID) (*models.Occurrence, error) {
	return s.changeOccurrence(ctx, id, func(occ *models.Occurrence, now time.Time) error {
		occ.Status = models.StatusPlanned
		occ.SettledDate = nil
		return nil
	})
}

// SnoozeOccurrence postpones the reminders of a planned occurrence until the given
// instant. The due date never moves.
func (s *Service) SnoozeOccurrence(ctx context.Context, id uuid.UUID, until time.Time) (*models.Occurrence, error) {
	return s.changeOccurrence(ctx, id, func(occ *models.Occurrence, now time.Time) error {
		if occ.IsSettled() {
			return fmt.Errorf("%w: settled occurrences cannot be snoozed", models.ErrInvalidInput)
		}
		if !until.After(now) {
			return fmt.Errorf("%w: snooze must end in the future", models.ErrInvalidInput)
		}
		occ.SnoozeUntil = &until
		return nil
	})
}

func (s *Service) changeOccurrence(ctx context.Context, id uuid.UUID, change func(occ *models.Occurrence, now time.Time) error) (*models.Occurrence, error) {
	found, err := s.store.GetOccurrence(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(found.ObligationID)
	defer unlock()

	o, err := s.store.GetObligation(ctx, found.ObligationID)
	if err != nil {
		return nil, err
	}
	var occ *models.Occurrence
	for i := range o.Occurrences {
		if o.Occurrences[i].ID == id {
			occ = &o.Occurrences[i]
			break
		}
	}
	if occ == nil {
		return nil, fmt.Errorf("occurrence %s: %w", id, models.ErrNotFound)
	}

	now := s.now()
	if err := change(occ, now); err != nil {
		return nil, err
	}
	occ.UpdatedAt = now
	o.UpdatedAt = now
	reconcile.Derive(o)

	if err := s.store.SaveOccurrence(ctx, o, *occ); err != nil {
		return nil, err
	}
	s.queue.Trigger()

	s.log.WithFields(logrus.Fields{"obligation_id": o.ID, "occurrence_id": id}).
		Infof("Occurrence updated: %s", occ.Status)
	result := *occ
	return &result, nil
}

// ExtendHorizons plans occurrences past the latest existing one for open-ended
// obligations, up to the rolling horizon. Existing rows are never touched. Failures
// are logged per obligation and the pass continues.
func (s *Service) ExtendHorizons(ctx context.Context) (int, error) {
	all, err := s.store.ListObligations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load obligations: %w", err)
	}

	added := 0
	for _, listed := range all {
		if listed.Kind == models.KindLoan || listed.Frequency == models.FrequencyOneTime {
			continue
		}
		n, err := s.extendOne(ctx, listed.ID)
		if err != nil {
			s.log.WithField("obligation_id", listed.ID).Errorf("Failed to extend schedule: %v", err)
			continue
		}
		added += n
	}

	s.queue.Trigger()
	s.log.Infof("Schedule horizons extended: %d occurrences added", added)
	return added, nil
}

func (s *Service) extendOne(ctx context.Context, id uuid.UUID) (int, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	o, err := s.store.GetObligation(ctx, id)
	if err != nil {
		return 0, err
	}
	created := s.gen.Extend(o)
	if len(created) == 0 {
		return 0, nil
	}
	reconcile.Derive(o)
	if err := s.store.ReplaceSchedule(ctx, o, nil, created); err != nil {
		return 0, err
	}
	return len(created), nil
}

// PreviewLoan runs the amortization calculator without persisting anything
func (s *Service) PreviewLoan(ctx context.Context, in schedule.LoanInput) LoanPreview {
	if in.Interest.Mode == "" {
		in.Interest.Mode = models.InterestNone
	}
	preview := LoanPreview{LoanSchedule: schedule.ComputeLoanSchedule(in)}
	if s.rates == nil {
		return preview
	}
	rate, err := s.rates.GetKeyRate(ctx)
	if err != nil {
		s.log.Warnf("Suggested rate unavailable: %v", err)
		return preview
	}
	preview.SuggestedRatePercent = &rate
	return preview
}

// LoanPreview is a calculator result with the optional suggested annual rate
type LoanPreview struct {
	schedule.LoanSchedule
	SuggestedRatePercent *float64 `json:"suggested_rate_percent,omitempty"`
}

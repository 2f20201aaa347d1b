// Package reconcile keeps derived obligation fields, reminders and the badge count
// in line with the occurrence data.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/finance-tracker/internal/models"
	"github.com/Dan9191/finance-tracker/internal/schedule"
)

// Notifier is the reminder dispatcher the reconciler drives
type Notifier interface {
	ScheduleReminder(ctx context.Context, occurrenceID uuid.UUID, fireAt time.Time, label string) error
	CancelReminders(ctx context.Context, occurrenceID uuid.UUID) error
	CancelRemindersFrom(ctx context.Context, occurrenceID uuid.UUID, from time.Time) error
	PendingOccurrenceIDs(ctx context.Context) ([]uuid.UUID, error)
	SetBadgeCount(ctx context.Context, count int) error
}

// Source provides the authoritative occurrence state
type Source interface {
	ListObligations(ctx context.Context) ([]models.Obligation, error)
	GetSettings(ctx context.Context) (*models.Settings, error)
}

// Derive recomputes the next due date and the settled/remaining totals of o from
// its occurrence list
func Derive(o *models.Obligation) {
	o.NextDueDate = nil
	o.TotalSettled = decimal.Zero
	o.RemainingToPay = decimal.Zero
	for i := range o.Occurrences {
		occ := o.Occurrences[i]
		if occ.IsSettled() {
			o.TotalSettled = o.TotalSettled.Add(occ.Amount)
			continue
		}
		o.RemainingToPay = o.RemainingToPay.Add(occ.Amount)
		if o.NextDueDate == nil || occ.DueDate.Before(*o.NextDueDate) {
			due := occ.DueDate
			o.NextDueDate = &due
		}
	}
}

// PlannedReminder is one notification to schedule for an occurrence
type PlannedReminder struct {
	FireAt time.Time
	Label  string
}

// PlanReminders lists the reminders of an upcoming occurrence: an early one
// leadTimeDays before the due date and one on the due date, both at reminderHour.
// A snooze pushes earlier fire times to the snooze instant. Fire times already
// past are dropped.
func PlanReminders(occ models.Occurrence, leadTimeDays, reminderHour int, now time.Time) []PlannedReminder {
	due := schedule.StartOfDay(occ.DueDate.In(now.Location())).Add(time.Duration(reminderHour) * time.Hour)

	candidates := make([]PlannedReminder, 0, 2)
	if leadTimeDays > 0 {
		candidates = append(candidates, PlannedReminder{FireAt: due.AddDate(0, 0, -leadTimeDays), Label: leadLabel(leadTimeDays)})
	}
	candidates = append(candidates, PlannedReminder{FireAt: due, Label: "on due date"})

	reminders := make([]PlannedReminder, 0, len(candidates))
	for _, r := range candidates {
		if occ.SnoozeUntil != nil && r.FireAt.Before(*occ.SnoozeUntil) {
			r.FireAt = *occ.SnoozeUntil
		}
		if r.FireAt.Before(now) {
			continue
		}
		if n := len(reminders); n > 0 && reminders[n-1].FireAt.Equal(r.FireAt) {
			reminders[n-1] = r
			continue
		}
		reminders = append(reminders, r)
	}
	return reminders
}

func leadLabel(days int) string {
	if days == 1 {
		return "1 day before"
	}
	return fmt.Sprintf("%d days before", days)
}

// Reconciler re-synchronizes reminders and the badge count against the occurrences
type Reconciler struct {
	source       Source
	notifier     Notifier
	now          func() time.Time
	reminderHour int
	log          *logrus.Logger
}

// NewReconciler creates a reconciler
func NewReconciler(source Source, notifier Notifier, reminderHour int, now func() time.Time, log *logrus.Logger) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{source: source, notifier: notifier, now: now, reminderHour: reminderHour, log: log}
}

// Resync cancels reminders of occurrences that are no longer upcoming, replaces the
// reminders of upcoming ones and publishes the badge count. Only failures to read
// the occurrence state are returned; dispatcher failures are logged.
func (r *Reconciler) Resync(ctx context.Context) (int, error) {
	obligations, err := r.source.ListObligations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load obligations: %w", err)
	}
	settings, err := r.source.GetSettings(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load settings: %w", err)
	}

	now := r.now()
	window := schedule.NewWindow(settings.LeadTimeDays)

	var all []models.Occurrence
	for _, o := range obligations {
		all = append(all, o.Occurrences...)
	}
	upcoming := window.FilterUpcoming(all, now)

	wanted := make(map[uuid.UUID]struct{}, len(upcoming))
	for _, occ := range upcoming {
		wanted[occ.ID] = struct{}{}
	}

	pending, err := r.notifier.PendingOccurrenceIDs(ctx)
	if err != nil {
		r.log.Warnf("Failed to list pending reminders: %v", err)
	}
	for _, id := range pending {
		if _, ok := wanted[id]; ok {
			continue
		}
		if err := r.notifier.CancelReminders(ctx, id); err != nil {
			r.log.WithField("occurrence_id", id).Warnf("Failed to cancel reminders: %v", err)
		}
	}

	failed := 0
	for _, occ := range upcoming {
		if err := r.replaceReminders(ctx, occ, settings.LeadTimeDays, now); err != nil {
			failed++
			r.log.WithField("occurrence_id", occ.ID).Warnf("Failed to schedule reminders: %v", err)
		}
	}

	count := len(upcoming)
	if err := r.notifier.SetBadgeCount(ctx, count); err != nil {
		r.log.Warnf("Failed to set badge count: %v", err)
	}

	r.log.Infof("Reminders resynced: %d upcoming, %d failed", count, failed)
	return count, nil
}

// replaceReminders re-plans the reminders of an upcoming occurrence. Unsent reminders
// already due are left for the next delivery run, unless a snooze moved them.
func (r *Reconciler) replaceReminders(ctx context.Context, occ models.Occurrence, leadTimeDays int, now time.Time) error {
	var err error
	if occ.SnoozeUntil != nil && occ.SnoozeUntil.After(now) {
		err = r.notifier.CancelReminders(ctx, occ.ID)
	} else {
		err = r.notifier.CancelRemindersFrom(ctx, occ.ID, now)
	}
	if err != nil {
		return err
	}
	for _, rem := range PlanReminders(occ, leadTimeDays, r.reminderHour, now) {
		if err := r.notifier.ScheduleReminder(ctx, occ.ID, rem.FireAt, rem.Label); err != nil {
			return err
		}
	}
	return nil
}

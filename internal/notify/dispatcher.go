// Package notify schedules, cancels and delivers reminders for occurrences and
// holds the badge count.
package notify

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/finance-tracker/internal/models"
)

// ReminderStore persists reminders
type ReminderStore interface {
	InsertReminder(ctx context.Context, r *models.Reminder) error
	DeleteUnsentReminders(ctx context.Context, occurrenceID uuid.UUID) error
	DeleteUnsentRemindersFrom(ctx context.Context, occurrenceID uuid.UUID, from time.Time) error
	PendingReminderOccurrenceIDs(ctx context.Context) ([]uuid.UUID, error)
	DueReminders(ctx context.Context, now time.Time) ([]models.DueReminder, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Dispatcher stores reminders and delivers them by email once they are due
type Dispatcher struct {
	store     ReminderStore
	mailer    Mailer
	recipient string
	now       func() time.Time
	log       *logrus.Logger

	badge atomic.Int64
}

// NewDispatcher creates a dispatcher sending reminders to recipient
func NewDispatcher(store ReminderStore, mailer Mailer, recipient string, now func() time.Time, log *logrus.Logger) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{store: store, mailer: mailer, recipient: recipient, now: now, log: log}
}

// ScheduleReminder records a reminder to fire at fireAt
func (d *Dispatcher) ScheduleReminder(ctx context.Context, occurrenceID uuid.UUID, fireAt time.Time, label string) error {
	return d.store.InsertReminder(ctx, &models.Reminder{
		ID:           uuid.New(),
		OccurrenceID: occurrenceID,
		FireAt:       fireAt,
		Label:        label,
		CreatedAt:    d.now(),
	})
}

// CancelReminders drops the unsent reminders of an occurrence
func (d *Dispatcher) CancelReminders(ctx context.Context, occurrenceID uuid.UUID) error {
	return d.store.DeleteUnsentReminders(ctx, occurrenceID)
}

// CancelRemindersFrom drops the unsent reminders of an occurrence firing at or
// after from, keeping overdue ones for delivery
func (d *Dispatcher) CancelRemindersFrom(ctx context.Context, occurrenceID uuid.UUID, from time.Time) error {
	return d.store.DeleteUnsentRemindersFrom(ctx, occurrenceID, from)
}

// PendingOccurrenceIDs lists occurrences with unsent reminders
func (d *Dispatcher) PendingOccurrenceIDs(ctx context.Context) ([]uuid.UUID, error) {
	return d.store.PendingReminderOccurrenceIDs(ctx)
}

// SetBadgeCount publishes the badge count
func (d *Dispatcher) SetBadgeCount(ctx context.Context, count int) error {
	d.badge.Store(int64(count))
	return nil
}

// BadgeCount returns the last published badge count
func (d *Dispatcher) BadgeCount() int {
	return int(d.badge.Load())
}

// DeliverDue emails every reminder whose fire time has passed. A failed reminder
// stays pending for the next run and does not stop the batch.
func (d *Dispatcher) DeliverDue(ctx context.Context) (int, error) {
	now := d.now()
	due, err := d.store.DueReminders(ctx, now)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, r := range due {
		entry := d.log.WithFields(logrus.Fields{"reminder_id": r.ID, "occurrence_id": r.OccurrenceID})

		subject, body := reminderMessage(r)
		if err := d.mailer.Send(d.recipient, subject, body); err != nil {
			entry.Warnf("Failed to deliver reminder: %v", err)
			continue
		}
		if err := d.store.MarkReminderSent(ctx, r.ID, now); err != nil {
			entry.Errorf("Failed to mark reminder sent: %v", err)
			continue
		}
		sent++
	}
	return sent, nil
}

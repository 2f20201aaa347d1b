package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OccurrenceStatus is the lifecycle state of an occurrence
type OccurrenceStatus string

const (
	StatusPlanned OccurrenceStatus = "planned"
	StatusSettled OccurrenceStatus = "settled" // paid or received
)

// IsValid checks if the status is known
func (s OccurrenceStatus) IsValid() bool {
	return s == StatusPlanned || s == StatusSettled
}

// Occurrence is one dated installment of an obligation: a loan payment, an income
// receipt or an expense due date
type Occurrence struct {
	ID           uuid.UUID        `json:"id"`
	ObligationID uuid.UUID        `json:"obligation_id"`
	DueDate      time.Time        `json:"due_date"`
	Amount       decimal.Decimal  `json:"amount"`
	Status       OccurrenceStatus `json:"status"`
	SettledDate  *time.Time       `json:"settled_date,omitempty"`
	SnoozeUntil  *time.Time       `json:"snooze_until,omitempty"` // reminders only, never shifts DueDate
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// IsSettled returns true if the occurrence was paid or received
func (o Occurrence) IsSettled() bool {
	return o.Status == StatusSettled
}

// NewPlannedOccurrence creates a planned occurrence for the given obligation
func NewPlannedOccurrence(obligationID uuid.UUID, dueDate time.Time, amount decimal.Decimal, now time.Time) Occurrence {
	return Occurrence{
		ID:           uuid.New(),
		ObligationID: obligationID,
		DueDate:      dueDate,
		Amount:       amount,
		Status:       StatusPlanned,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reminder is a pending or delivered notification for one occurrence
type Reminder struct {
	ID           uuid.UUID  `json:"id"`
	OccurrenceID uuid.UUID  `json:"occurrence_id"`
	FireAt       time.Time  `json:"fire_at"`
	Label        string     `json:"label"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DueReminder is a reminder joined with what the message needs to say
type DueReminder struct {
	Reminder
	Title        string
	Kind         Kind
	DueDate      time.Time
	Amount       decimal.Decimal
	CurrencyCode string
}

package models

import (
	"fmt"
	"time"
)

const (
	MinLeadTimeDays = 0
	MaxLeadTimeDays = 7
)

// Settings is the singleton user preference record
type Settings struct {
	LeadTimeDays    int       `json:"lead_time_days"`
	DefaultCurrency string    `json:"default_currency"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks the lead time range and currency code
func (s Settings) Validate() error {
	if s.LeadTimeDays < MinLeadTimeDays || s.LeadTimeDays > MaxLeadTimeDays {
		return fmt.Errorf("%w: lead time must be between %d and %d days", ErrInvalidInput, MinLeadTimeDays, MaxLeadTimeDays)
	}
	if len(s.DefaultCurrency) != 3 {
		return fmt.Errorf("%w: currency code must have 3 letters", ErrInvalidInput)
	}
	return nil
}

package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/Dan9191/finance-tracker/internal/models"
)

// UpcomingWindowDays is the length of the upcoming window for every obligation kind
// and every consumer: lists, dashboard, badge and reminders.
const UpcomingWindowDays = 30

// Window is the temporal policy deciding which occurrences are upcoming
type Window struct {
	LeadTimeDays int
	Days         int
}

// NewWindow returns the shared policy for the given lead time
func NewWindow(leadTimeDays int) Window {
	return Window{LeadTimeDays: leadTimeDays, Days: UpcomingWindowDays}
}

// EarliestRelevant is the later of the early-reminder day and now
func (w Window) EarliestRelevant(dueDate, now time.Time) time.Time {
	early := StartOfDay(dueDate.In(now.Location())).AddDate(0, 0, -w.LeadTimeDays)
	if early.After(now) {
		return early
	}
	return now
}

// IsUpcoming reports whether a planned occurrence is due today or later and its
// earliest relevant date falls inside the window starting today
func (w Window) IsUpcoming(occ models.Occurrence, now time.Time) bool {
	if occ.Status != models.StatusPlanned {
		return false
	}
	today := StartOfDay(now)
	if StartOfDay(occ.DueDate.In(now.Location())).Before(today) {
		return false
	}
	return w.EarliestRelevant(occ.DueDate, now).Before(today.AddDate(0, 0, w.Days))
}

// FilterUpcoming returns the upcoming occurrences sorted by due date
func (w Window) FilterUpcoming(occurrences []models.Occurrence, now time.Time) []models.Occurrence {
	upcoming := make([]models.Occurrence, 0)
	for _, occ := range occurrences {
		if w.IsUpcoming(occ, now) {
			upcoming = append(upcoming, occ)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].DueDate.Before(upcoming[j].DueDate)
	})
	return upcoming
}

// BadgeCount is the number of upcoming occurrences
func (w Window) BadgeCount(occurrences []models.Occurrence, now time.Time) int {
	return len(w.FilterUpcoming(occurrences, now))
}

// IsOverdue reports whether dueDate's calendar day is strictly before now's.
// Time of day is never compared.
func IsOverdue(dueDate, now time.Time) bool {
	return StartOfDay(dueDate.In(now.Location())).Before(StartOfDay(now))
}

// IsOccurrenceOverdue is IsOverdue restricted to planned occurrences
func IsOccurrenceOverdue(occ models.Occurrence, now time.Time) bool {
	return occ.Status == models.StatusPlanned && IsOverdue(occ.DueDate, now)
}

// DueKind classifies a due date relative to today
type DueKind string

const (
	DueOverdue  DueKind = "overdue"
	DueToday    DueKind = "dueToday"
	DueTomorrow DueKind = "dueTomorrow"
	DueInDays   DueKind = "dueInDays"
)

// DueStatus is a due date's distance from today. Days is set for overdue and dueInDays.
type DueStatus struct {
	Kind DueKind `json:"kind"`
	Days int     `json:"days,omitempty"`
}

// String renders the status for labels and reminder texts
func (s DueStatus) String() string {
	switch s.Kind {
	case DueOverdue:
		if s.Days == 1 {
			return "overdue by 1 day"
		}
		return fmt.Sprintf("overdue by %d days", s.Days)
	case DueToday:
		return "due today"
	case DueTomorrow:
		return "due tomorrow"
	default:
		return fmt.Sprintf("due in %d days", s.Days)
	}
}

// StatusOf classifies dueDate against now by calendar days
func StatusOf(dueDate, now time.Time) DueStatus {
	days := DaysBetween(now, dueDate)
	switch {
	case days < 0:
		return DueStatus{Kind: DueOverdue, Days: -days}
	case days == 0:
		return DueStatus{Kind: DueToday}
	case days == 1:
		return DueStatus{Kind: DueTomorrow}
	default:
		return DueStatus{Kind: DueInDays, Days: days}
	}
}

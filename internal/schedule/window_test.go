package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/finance-tracker/internal/models"
)

func planned(due time.Time) models.Occurrence {
	return models.Occurrence{ID: uuid.New(), DueDate: due, Amount: dec("10"), Status: models.StatusPlanned}
}

func TestIsOverdue(t *testing.T) {
	morning := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	lateNight := time.Date(2025, time.March, 10, 23, 59, 0, 0, time.UTC)

	assert.False(t, IsOverdue(time.Date(2025, time.March, 10, 23, 0, 0, 0, time.UTC), morning))
	assert.False(t, IsOverdue(time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), lateNight))
	assert.True(t, IsOverdue(time.Date(2025, time.March, 9, 0, 1, 0, 0, time.UTC), morning))
	assert.True(t, IsOverdue(time.Date(2025, time.March, 9, 0, 1, 0, 0, time.UTC), time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)))
	assert.False(t, IsOverdue(time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC), lateNight))

	t.Run("settled occurrences are never overdue", func(t *testing.T) {
		occ := planned(date(2025, time.March, 1))
		occ.Status = models.StatusSettled
		assert.False(t, IsOccurrenceOverdue(occ, morning))
		assert.True(t, IsOccurrenceOverdue(planned(date(2025, time.March, 1)), morning))
	})
}

func TestStatusOf(t *testing.T) {
	now := time.Date(2025, time.March, 10, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		due  time.Time
		want DueStatus
		text string
	}{
		{date(2025, time.March, 7), DueStatus{Kind: DueOverdue, Days: 3}, "overdue by 3 days"},
		{date(2025, time.March, 9), DueStatus{Kind: DueOverdue, Days: 1}, "overdue by 1 day"},
		{time.Date(2025, time.March, 10, 23, 0, 0, 0, time.UTC), DueStatus{Kind: DueToday}, "due today"},
		{date(2025, time.March, 11), DueStatus{Kind: DueTomorrow}, "due tomorrow"},
		{date(2025, time.March, 15), DueStatus{Kind: DueInDays, Days: 5}, "due in 5 days"},
	}

	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			got := StatusOf(tc.due, now)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.text, got.String())
		})
	}
}

func TestWindow_IsUpcoming(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	w := NewWindow(3)

	tests := []struct {
		name string
		occ  models.Occurrence
		want bool
	}{
		{"due today", planned(date(2025, time.March, 10)), true},
		{"due yesterday", planned(date(2025, time.March, 9)), false},
		{"inside window", planned(date(2025, time.April, 8)), true},
		{"lead time pulls into window", planned(date(2025, time.April, 11)), true},
		{"beyond lead time", planned(date(2025, time.April, 12)), false},
		{"settled", func() models.Occurrence {
			occ := planned(date(2025, time.March, 12))
			occ.Status = models.StatusSettled
			return occ
		}(), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, w.IsUpcoming(tc.occ, now))
		})
	}

	t.Run("zero lead time", func(t *testing.T) {
		w := NewWindow(0)
		assert.True(t, w.IsUpcoming(planned(date(2025, time.April, 8)), now))
		assert.False(t, w.IsUpcoming(planned(date(2025, time.April, 9)), now))
	})
}

func TestWindow_FilterUpcomingSortedAndMatchesBadge(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	var occurrences []models.Occurrence
	for i := -10; i < 60; i += 3 {
		occ := planned(date(2025, time.March, 10).AddDate(0, 0, i))
		if i%2 == 0 {
			occ.Status = models.StatusSettled
		}
		occurrences = append(occurrences, occ)
	}
	// Reverse so sorting is actually exercised.
	for i, j := 0, len(occurrences)-1; i < j; i, j = i+1, j-1 {
		occurrences[i], occurrences[j] = occurrences[j], occurrences[i]
	}

	for lead := models.MinLeadTimeDays; lead <= models.MaxLeadTimeDays; lead++ {
		w := NewWindow(lead)
		upcoming := w.FilterUpcoming(occurrences, now)
		require.NotEmpty(t, upcoming)
		assert.Equal(t, len(upcoming), w.BadgeCount(occurrences, now))
		for i := 1; i < len(upcoming); i++ {
			assert.False(t, upcoming[i].DueDate.Before(upcoming[i-1].DueDate))
		}
		for _, occ := range upcoming {
			assert.Equal(t, models.StatusPlanned, occ.Status)
		}
	}
}

func TestWindow_EarliestRelevant(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	w := NewWindow(5)

	assert.Equal(t, date(2025, time.March, 15), w.EarliestRelevant(date(2025, time.March, 20), now))
	assert.Equal(t, now, w.EarliestRelevant(date(2025, time.March, 12), now))
}

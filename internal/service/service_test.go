package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/finance-tracker/internal/config"
	"github.com/Dan9191/finance-tracker/internal/models"
	"github.com/Dan9191/finance-tracker/internal/schedule"
)

type replaceCall struct {
	removed  []uuid.UUID
	inserted []models.Occurrence
}

type fakeStore struct {
	mu          sync.Mutex
	obligations map[uuid.UUID]*models.Obligation
	settings    models.Settings
	users       map[string]*models.User
	replaced    []replaceCall
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		obligations: map[uuid.UUID]*models.Obligation{},
		settings:    models.Settings{LeadTimeDays: 1, DefaultCurrency: "EUR"},
		users:       map[string]*models.User{},
	}
}

func clone(o *models.Obligation) *models.Obligation {
	c := *o
	c.Occurrences = append([]models.Occurrence(nil), o.Occurrences...)
	return &c
}

func (s *fakeStore) CreateObligation(ctx context.Context, o *models.Obligation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obligations[o.ID] = clone(o)
	return nil
}

func (s *fakeStore) UpdateObligation(ctx context.Context, o *models.Obligation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obligations[o.ID] = clone(o)
	return nil
}

func (s *fakeStore) ReplaceSchedule(ctx context.Context, o *models.Obligation, removeIDs []uuid.UUID, insert []models.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaced = append(s.replaced, replaceCall{removed: removeIDs, inserted: insert})
	s.obligations[o.ID] = clone(o)
	return nil
}

func (s *fakeStore) GetObligation(ctx context.Context, id uuid.UUID) (*models.Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.obligations[id]
	if !ok {
		return nil, fmt.Errorf("obligation %s: %w", id, models.ErrNotFound)
	}
	return clone(o), nil
}

func (s *fakeStore) ListObligations(ctx context.Context) ([]models.Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Obligation
	for _, o := range s.obligations {
		out = append(out, *clone(o))
	}
	return out, nil
}

func (s *fakeStore) DeleteObligation(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.obligations[id]; !ok {
		return fmt.Errorf("obligation %s: %w", id, models.ErrNotFound)
	}
	delete(s.obligations, id)
	return nil
}

func (s *fakeStore) GetOccurrence(ctx context.Context, id uuid.UUID) (*models.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.obligations {
		for _, occ := range o.Occurrences {
			if occ.ID == id {
				found := occ
				return &found, nil
			}
		}
	}
	return nil, fmt.Errorf("occurrence %s: %w", id, models.ErrNotFound)
}

func (s *fakeStore) SaveOccurrence(ctx context.Context, o *models.Obligation, occ models.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obligations[o.ID] = clone(o)
	return nil
}

func (s *fakeStore) GetSettings(ctx context.Context) (*models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings := s.settings
	return &settings, nil
}

func (s *fakeStore) SaveSettings(ctx context.Context, settings *models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = *settings
	return nil
}

func (s *fakeStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return fmt.Errorf("user %s: %w", user.Email, models.ErrConflict)
	}
	s.users[user.Email] = user
	return nil
}

func (s *fakeStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", email, models.ErrNotFound)
	}
	return user, nil
}

type countingQueue struct {
	mu    sync.Mutex
	count int
}

func (q *countingQueue) Trigger() {
	q.mu.Lock()
	q.count++
	q.mu.Unlock()
}

func (q *countingQueue) triggers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

type fakeRates struct {
	rate float64
	err  error
}

func (r fakeRates) GetKeyRate(ctx context.Context) (float64, error) {
	return r.rate, r.err
}

type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time { return c.t }

type fixture struct {
	svc   *Service
	store *fakeStore
	queue *countingQueue
	clock *clock
}

func newFixture(rates RateProvider) *fixture {
	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{
		store: newFakeStore(),
		queue: &countingQueue{},
		clock: &clock{t: time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)},
	}
	f.svc = NewService(f.store, f.queue, rates, &config.Config{JWTSecret: "test-secret"}, f.clock.Now, log)
	return f
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func rent() *models.Obligation {
	end := date(2025, time.June, 11)
	return &models.Obligation{
		Kind:         models.KindExpense,
		Title:        "Rent",
		Amount:       dec("112"),
		CurrencyCode: "USD",
		Frequency:    models.FrequencyMonthly,
		StartDate:    date(2025, time.March, 11),
		EndDate:      &end,
	}
}

func carLoan() *models.Obligation {
	return &models.Obligation{
		Kind:         models.KindLoan,
		Title:        "Car",
		Amount:       dec("1200"),
		CurrencyCode: "USD",
		Frequency:    models.FrequencyMonthly,
		StartDate:    date(2025, time.January, 15),
		PeriodCount:  12,
		Interest:     models.InterestSpec{Mode: models.InterestPercentageAnnual, RatePercent: 12},
	}
}

func TestCreateObligation(t *testing.T) {
	ctx := context.Background()

	t.Run("expense plans dated occurrences", func(t *testing.T) {
		f := newFixture(nil)
		o, err := f.svc.CreateObligation(ctx, rent())
		require.NoError(t, err)

		require.Len(t, o.Occurrences, 4)
		assert.Equal(t, date(2025, time.March, 11), o.Occurrences[0].DueDate)
		assert.Equal(t, date(2025, time.June, 11), o.Occurrences[3].DueDate)
		require.NotNil(t, o.NextDueDate)
		assert.Equal(t, date(2025, time.March, 11), *o.NextDueDate)
		assert.True(t, o.RemainingToPay.Equal(dec("448")))
		assert.Equal(t, 1, f.queue.triggers())

		stored, err := f.store.GetObligation(ctx, o.ID)
		require.NoError(t, err)
		assert.Len(t, stored.Occurrences, 4)
	})

	t.Run("loan materializes its amortization schedule", func(t *testing.T) {
		f := newFixture(nil)
		o, err := f.svc.CreateObligation(ctx, carLoan())
		require.NoError(t, err)

		assert.True(t, o.TotalPayable.Equal(dec("1344")))
		assert.True(t, o.PeriodicAmount.Equal(dec("112")))
		require.Len(t, o.Occurrences, 12)
		assert.Equal(t, date(2025, time.January, 15), o.Occurrences[0].DueDate)

		sum := decimal.Zero
		for _, occ := range o.Occurrences {
			sum = sum.Add(occ.Amount)
		}
		assert.True(t, sum.Equal(o.TotalPayable))
	})

	t.Run("invalid input is rejected before storing", func(t *testing.T) {
		f := newFixture(nil)
		bad := rent()
		bad.Title = ""
		_, err := f.svc.CreateObligation(ctx, bad)
		require.ErrorIs(t, err, models.ErrInvalidInput)
		assert.Empty(t, f.store.obligations)
		assert.Zero(t, f.queue.triggers())
	})

	t.Run("missing currency falls back to settings", func(t *testing.T) {
		f := newFixture(nil)
		o := rent()
		o.CurrencyCode = ""
		created, err := f.svc.CreateObligation(ctx, o)
		require.NoError(t, err)
		assert.Equal(t, "EUR", created.CurrencyCode)
	})

	t.Run("one-time loan is a single installment", func(t *testing.T) {
		f := newFixture(nil)
		o := carLoan()
		o.Frequency = models.FrequencyOneTime
		created, err := f.svc.CreateObligation(ctx, o)
		require.NoError(t, err)
		assert.Equal(t, 1, created.PeriodCount)
		assert.Len(t, created.Occurrences, 1)
	})
}

func TestUpdateObligation(t *testing.T) {
	ctx := context.Background()

	t.Run("cosmetic change keeps occurrences", func(t *testing.T) {
		f := newFixture(nil)
		o, err := f.svc.CreateObligation(ctx, rent())
		require.NoError(t, err)
		before := o.Occurrences[0].ID

		title := "Flat rent"
		updated, err := f.svc.UpdateObligation(ctx, o.ID, models.ObligationPatch{Title: &title})
		require.NoError(t, err)

		assert.Equal(t, "Flat rent", updated.Title)
		assert.Equal(t, before, updated.Occurrences[0].ID)
		assert.Empty(t, f.store.replaced)
		assert.Equal(t, 2, f.queue.triggers())
	})

	t.Run("amount change refreshes and keeps settled history", func(t *testing.T) {
		f := newFixture(nil)
		o, err := f.svc.CreateObligation(ctx, rent())
		require.NoError(t, err)
		settledID := o.Occurrences[0].ID
		_, err = f.svc.SettleOccurrence(ctx, settledID, nil)
		require.NoError(t, err)

		amount := dec("150")
		updated, err := f.svc.UpdateObligation(ctx, o.ID, models.ObligationPatch{Amount: &amount})
		require.NoError(t, err)

		require.Len(t, updated.Occurrences, 4)
		assert.Equal(t, settledID, updated.Occurrences[0].ID)
		assert.True(t, updated.Occurrences[0].Amount.Equal(dec("112")))
		for _, occ := range updated.Occurrences[1:] {
			assert.True(t, occ.Amount.Equal(dec("150")))
			assert.Equal(t, models.StatusPlanned, occ.Status)
		}
		assert.True(t, updated.TotalSettled.Equal(dec("112")))
		assert.True(t, updated.RemainingToPay.Equal(dec("450")))

		require.Len(t, f.store.replaced, 1)
		assert.Len(t, f.store.replaced[0].removed, 3)
		assert.Len(t, f.store.replaced[0].inserted, 3)
	})

	t.Run("invalid patch leaves the record untouched", func(t *testing.T) {
		f := newFixture(nil)
		o, err := f.svc.CreateObligation(ctx, rent())
		require.NoError(t, err)

		negative := dec("-5")
		_, err = f.svc.UpdateObligation(ctx, o.ID, models.ObligationPatch{Amount: &negative})
		require.ErrorIs(t, err, models.ErrInvalidInput)

		stored, err := f.store.GetObligation(ctx, o.ID)
		require.NoError(t, err)
		assert.True(t, stored.Amount.Equal(dec("112")))
	})

	t.Run("unknown obligation", func(t *testing.T) {
		f := newFixture(nil)
		title := "x"
		_, err := f.svc.UpdateObligation(ctx, uuid.New(), models.ObligationPatch{Title: &title})
		require.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestDeleteAndListObligations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	expense, err := f.svc.CreateObligation(ctx, rent())
	require.NoError(t, err)
	_, err = f.svc.CreateObligation(ctx, carLoan())
	require.NoError(t, err)

	loans, err := f.svc.ListObligations(ctx, models.KindLoan)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, "Car", loans[0].Title)

	_, err = f.svc.ListObligations(ctx, models.Kind("savings"))
	require.ErrorIs(t, err, models.ErrInvalidInput)

	require.NoError(t, f.svc.DeleteObligation(ctx, expense.ID))
	all, err := f.svc.ListObligations(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.ErrorIs(t, f.svc.DeleteObligation(ctx, expense.ID), models.ErrNotFound)
}

func TestOccurrenceTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)
	o, err := f.svc.CreateObligation(ctx, rent())
	require.NoError(t, err)
	id := o.Occurrences[0].ID

	settled, err := f.svc.SettleOccurrence(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSettled, settled.Status)
	require.NotNil(t, settled.SettledDate)
	assert.Equal(t, f.clock.t, *settled.SettledDate)

	stored, err := f.svc.GetObligation(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalSettled.Equal(dec("112")))
	assert.Equal(t, date(2025, time.April, 11), *stored.NextDueDate)

	_, err = f.svc.SnoozeOccurrence(ctx, id, f.clock.t.Add(time.Hour))
	require.ErrorIs(t, err, models.ErrInvalidInput)

	planned, err := f.svc.UnsettleOccurrence(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlanned, planned.Status)
	assert.Nil(t, planned.SettledDate)

	_, err = f.svc.SnoozeOccurrence(ctx, id, f.clock.t.Add(-time.Hour))
	require.ErrorIs(t, err, models.ErrInvalidInput)

	until := f.clock.t.Add(6 * time.Hour)
	snoozed, err := f.svc.SnoozeOccurrence(ctx, id, until)
	require.NoError(t, err)
	require.NotNil(t, snoozed.SnoozeUntil)
	assert.Equal(t, until, *snoozed.SnoozeUntil)
	assert.Equal(t, date(2025, time.March, 11), snoozed.DueDate)

	_, err = f.svc.SettleOccurrence(ctx, uuid.New(), nil)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpcomingAndDashboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	_, err := f.svc.CreateObligation(ctx, rent())
	require.NoError(t, err)
	_, err = f.svc.CreateObligation(ctx, carLoan())
	require.NoError(t, err)
	_, err = f.svc.CreateObligation(ctx, &models.Obligation{
		Kind:         models.KindIncome,
		Title:        "Bonus",
		Amount:       dec("2000"),
		CurrencyCode: "EUR",
		Frequency:    models.FrequencyOneTime,
		StartDate:    date(2025, time.March, 20),
	})
	require.NoError(t, err)

	upcoming, err := f.svc.Upcoming(ctx)
	require.NoError(t, err)
	require.Len(t, upcoming, 3)
	assert.Equal(t, "Rent", upcoming[0].Title)
	assert.Equal(t, "due tomorrow", upcoming[0].Status)
	assert.Equal(t, "$ 112.00", upcoming[0].FormattedValue)
	assert.Equal(t, "Car", upcoming[1].Title)
	assert.Equal(t, "Bonus", upcoming[2].Title)

	badge, err := f.svc.BadgeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(upcoming), badge)

	summary, err := f.svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.BadgeCount)
	assert.Equal(t, 2, summary.OverdueCount)
	assert.True(t, summary.LoanRemaining["USD"].Equal(dec("1344")))
	assert.True(t, summary.IncomeUpcoming["EUR"].Equal(dec("2000")))
	assert.True(t, summary.ExpenseUpcoming["USD"].Equal(dec("112")))
	assert.NotContains(t, summary.IncomeUpcoming, "USD")
}

func TestExtendHorizons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	open := rent()
	open.EndDate = nil
	o, err := f.svc.CreateObligation(ctx, open)
	require.NoError(t, err)
	require.Len(t, o.Occurrences, 12)
	_, err = f.svc.CreateObligation(ctx, carLoan())
	require.NoError(t, err)

	f.clock.t = time.Date(2025, time.May, 10, 0, 30, 0, 0, time.UTC)
	added, err := f.svc.ExtendHorizons(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	require.Len(t, f.store.replaced, 1)
	assert.Empty(t, f.store.replaced[0].removed)

	stored, err := f.store.GetObligation(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, stored.Occurrences, 14)
	assert.Equal(t, o.Occurrences[0].ID, stored.Occurrences[0].ID)
	assert.Equal(t, date(2026, time.April, 11), stored.Occurrences[13].DueDate)

	again, err := f.svc.ExtendHorizons(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestPreviewLoan(t *testing.T) {
	in := schedule.LoanInput{
		Principal:   dec("1200"),
		Interest:    models.InterestSpec{Mode: models.InterestPercentageAnnual, RatePercent: 12},
		PeriodCount: 12,
		Frequency:   models.FrequencyMonthly,
		StartDate:   date(2025, time.January, 15),
	}

	t.Run("with suggested rate", func(t *testing.T) {
		f := newFixture(fakeRates{rate: 21})
		preview := f.svc.PreviewLoan(context.Background(), in)
		assert.True(t, preview.TotalPayable.Equal(dec("1344")))
		assert.Len(t, preview.Installments, 12)
		require.NotNil(t, preview.SuggestedRatePercent)
		assert.Equal(t, 21.0, *preview.SuggestedRatePercent)
	})

	t.Run("rate failure does not fail the preview", func(t *testing.T) {
		f := newFixture(fakeRates{err: errors.New("timeout")})
		preview := f.svc.PreviewLoan(context.Background(), in)
		assert.True(t, preview.PeriodicAmount.Equal(dec("112")))
		assert.Nil(t, preview.SuggestedRatePercent)
	})
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	user, err := f.svc.Register(ctx, "owner", "owner@example.com", "supersecret")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.NotEqual(t, "supersecret", user.PasswordHash)

	_, err = f.svc.Register(ctx, "owner", "owner@example.com", "supersecret")
	require.ErrorIs(t, err, models.ErrConflict)
	_, err = f.svc.Register(ctx, "owner", "other@example.com", "short")
	require.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = f.svc.Register(ctx, "owner", "not-an-email", "supersecret")
	require.ErrorIs(t, err, models.ErrInvalidInput)

	token, err := f.svc.Login(ctx, "owner@example.com", "supersecret")
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	}, jwt.WithTimeFunc(f.clock.Now))
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)

	_, err = f.svc.Login(ctx, "owner@example.com", "wrong-password")
	require.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = f.svc.Login(ctx, "nobody@example.com", "supersecret")
	require.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	saved, err := f.svc.UpdateSettings(ctx, models.Settings{LeadTimeDays: 1, DefaultCurrency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, f.clock.t, saved.UpdatedAt)
	assert.Zero(t, f.queue.triggers())

	_, err = f.svc.UpdateSettings(ctx, models.Settings{LeadTimeDays: 3, DefaultCurrency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.queue.triggers())

	_, err = f.svc.UpdateSettings(ctx, models.Settings{LeadTimeDays: 8, DefaultCurrency: "USD"})
	require.ErrorIs(t, err, models.ErrInvalidInput)

	current, err := f.svc.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, current.LeadTimeDays)
}

func TestKeyedMutex(t *testing.T) {
	locks := newKeyedMutex()
	id := uuid.New()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(id)
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, locks.locks)
}

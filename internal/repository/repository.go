package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/finance-tracker/internal/models"
)

// Repository provides database operations
type Repository struct {
	db       *sql.DB
	defaults models.Settings
}

// NewRepository initializes a new repository. defaults seed the settings row on first access.
func NewRepository(db *sql.DB, defaults models.Settings) *Repository {
	return &Repository{db: db, defaults: defaults}
}

// EnsureSchema creates the tracker tables if they do not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// --- Obligations ---

const obligationColumns = `id, kind, title, notes, amount, currency_code, frequency, start_date, end_date,
	period_count, interest_mode, interest_rate, interest_fixed_total, total_payable, periodic_amount,
	next_due_date, total_settled, remaining_to_pay, created_at, updated_at`

func scanObligation(row scanner) (*models.Obligation, error) {
	o := &models.Obligation{}
	var endDate, nextDue sql.NullTime
	var fixedTotal decimal.NullDecimal
	err := row.Scan(&o.ID, &o.Kind, &o.Title, &o.Notes, &o.Amount, &o.CurrencyCode, &o.Frequency,
		&o.StartDate, &endDate, &o.PeriodCount, &o.Interest.Mode, &o.Interest.RatePercent, &fixedTotal,
		&o.TotalPayable, &o.PeriodicAmount, &nextDue, &o.TotalSettled, &o.RemainingToPay,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.EndDate = timePtr(endDate)
	o.NextDueDate = timePtr(nextDue)
	if fixedTotal.Valid {
		v := fixedTotal.Decimal
		o.Interest.FixedTotal = &v
	}
	return o, nil
}

func fixedTotalArg(o *models.Obligation) decimal.NullDecimal {
	if o.Interest.FixedTotal == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *o.Interest.FixedTotal, Valid: true}
}

func insertObligation(ctx context.Context, tx *sql.Tx, o *models.Obligation) error {
	query := `
		INSERT INTO tracker.obligations (` + obligationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
	_, err := tx.ExecContext(ctx, query, o.ID, o.Kind, o.Title, o.Notes, o.Amount, o.CurrencyCode, o.Frequency,
		o.StartDate, nullTime(o.EndDate), o.PeriodCount, o.Interest.Mode, o.Interest.RatePercent, fixedTotalArg(o),
		o.TotalPayable, o.PeriodicAmount, nullTime(o.NextDueDate), o.TotalSettled, o.RemainingToPay,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create obligation: %w", err)
	}
	return nil
}

func updateObligation(ctx context.Context, tx *sql.Tx, o *models.Obligation) error {
	query := `
		UPDATE tracker.obligations
		SET title = $2, notes = $3, amount = $4, currency_code = $5, frequency = $6, start_date = $7,
			end_date = $8, period_count = $9, interest_mode = $10, interest_rate = $11,
			interest_fixed_total = $12, total_payable = $13, periodic_amount = $14, next_due_date = $15,
			total_settled = $16, remaining_to_pay = $17, updated_at = $18
		WHERE id = $1`
	res, err := tx.ExecContext(ctx, query, o.ID, o.Title, o.Notes, o.Amount, o.CurrencyCode, o.Frequency,
		o.StartDate, nullTime(o.EndDate), o.PeriodCount, o.Interest.Mode, o.Interest.RatePercent,
		fixedTotalArg(o), o.TotalPayable, o.PeriodicAmount, nullTime(o.NextDueDate), o.TotalSettled,
		o.RemainingToPay, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update obligation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("obligation %s: %w", o.ID, models.ErrNotFound)
	}
	return nil
}

func insertOccurrences(ctx context.Context, tx *sql.Tx, occurrences []models.Occurrence) error {
	query := `
		INSERT INTO tracker.occurrences
			(id, obligation_id, due_date, amount, status, settled_date, snooze_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, occ := range occurrences {
		_, err := tx.ExecContext(ctx, query, occ.ID, occ.ObligationID, occ.DueDate, occ.Amount, occ.Status,
			nullTime(occ.SettledDate), nullTime(occ.SnoozeUntil), occ.CreatedAt, occ.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create occurrence: %w", err)
		}
	}
	return nil
}

// CreateObligation stores a new obligation and its occurrences in one transaction
func (r *Repository) CreateObligation(ctx context.Context, o *models.Obligation) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertObligation(ctx, tx, o); err != nil {
			return err
		}
		return insertOccurrences(ctx, tx, o.Occurrences)
	})
}

// UpdateObligation stores the obligation row without touching occurrences
func (r *Repository) UpdateObligation(ctx context.Context, o *models.Obligation) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return updateObligation(ctx, tx, o)
	})
}

// ReplaceSchedule updates the obligation row, deletes the removed occurrences and
// inserts the new ones as a single unit
func (r *Repository) ReplaceSchedule(ctx context.Context, o *models.Obligation, removeIDs []uuid.UUID, insert []models.Occurrence) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateObligation(ctx, tx, o); err != nil {
			return err
		}
		if len(removeIDs) > 0 {
			query := `DELETE FROM tracker.occurrences WHERE obligation_id = $1 AND id = ANY($2)`
			if _, err := tx.ExecContext(ctx, query, o.ID, pq.Array(uuidStrings(removeIDs))); err != nil {
				return fmt.Errorf("failed to delete occurrences: %w", err)
			}
		}
		return insertOccurrences(ctx, tx, insert)
	})
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// GetObligation retrieves an obligation with its occurrences ordered by due date
func (r *Repository) GetObligation(ctx context.Context, id uuid.UUID) (*models.Obligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM tracker.obligations WHERE id = $1`
	o, err := scanObligation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("obligation %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find obligation: %w", err)
	}

	occurrences, err := r.queryOccurrences(ctx, `WHERE obligation_id = $1`, id)
	if err != nil {
		return nil, err
	}
	o.Occurrences = occurrences
	return o, nil
}

// ListObligations retrieves every obligation with its occurrences
func (r *Repository) ListObligations(ctx context.Context) ([]models.Obligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM tracker.obligations ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list obligations: %w", err)
	}
	defer rows.Close()

	var obligations []models.Obligation
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan obligation: %w", err)
		}
		index[o.ID] = len(obligations)
		obligations = append(obligations, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list obligations: %w", err)
	}

	occurrences, err := r.queryOccurrences(ctx, ``)
	if err != nil {
		return nil, err
	}
	for _, occ := range occurrences {
		if i, ok := index[occ.ObligationID]; ok {
			obligations[i].Occurrences = append(obligations[i].Occurrences, occ)
		}
	}
	return obligations, nil
}

// DeleteObligation removes an obligation; occurrences and reminders cascade
func (r *Repository) DeleteObligation(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tracker.obligations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete obligation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("obligation %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// --- Occurrences ---

const occurrenceColumns = `id, obligation_id, due_date, amount, status, settled_date, snooze_until, created_at, updated_at`

func scanOccurrence(row scanner) (*models.Occurrence, error) {
	occ := &models.Occurrence{}
	var settled, snooze sql.NullTime
	err := row.Scan(&occ.ID, &occ.ObligationID, &occ.DueDate, &occ.Amount, &occ.Status, &settled, &snooze,
		&occ.CreatedAt, &occ.UpdatedAt)
	if err != nil {
		return nil, err
	}
	occ.SettledDate = timePtr(settled)
	occ.SnoozeUntil = timePtr(snooze)
	return occ, nil
}

func (r *Repository) queryOccurrences(ctx context.Context, where string, args ...any) ([]models.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM tracker.occurrences ` + where + ` ORDER BY due_date`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list occurrences: %w", err)
	}
	defer rows.Close()

	occurrences := make([]models.Occurrence, 0)
	for rows.Next() {
		occ, err := scanOccurrence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan occurrence: %w", err)
		}
		occurrences = append(occurrences, *occ)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list occurrences: %w", err)
	}
	return occurrences, nil
}

// GetOccurrence retrieves a single occurrence
func (r *Repository) GetOccurrence(ctx context.Context, id uuid.UUID) (*models.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM tracker.occurrences WHERE id = $1`
	occ, err := scanOccurrence(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("occurrence %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find occurrence: %w", err)
	}
	return occ, nil
}

// SaveOccurrence stores a settle/unsettle/snooze change together with the owning
// obligation's derived fields
func (r *Repository) SaveOccurrence(ctx context.Context, o *models.Obligation, occ models.Occurrence) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE tracker.occurrences
			SET status = $2, settled_date = $3, snooze_until = $4, updated_at = $5
			WHERE id = $1`
		res, err := tx.ExecContext(ctx, query, occ.ID, occ.Status, nullTime(occ.SettledDate), nullTime(occ.SnoozeUntil), occ.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update occurrence: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("occurrence %s: %w", occ.ID, models.ErrNotFound)
		}
		return updateObligation(ctx, tx, o)
	})
}

// --- Settings ---

// GetSettings returns the settings row, creating it with defaults on first access
func (r *Repository) GetSettings(ctx context.Context) (*models.Settings, error) {
	s := &models.Settings{}
	query := `SELECT lead_time_days, default_currency, updated_at FROM tracker.settings WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&s.LeadTimeDays, &s.DefaultCurrency, &s.UpdatedAt)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	defaults := r.defaults
	defaults.UpdatedAt = time.Now()
	insert := `
		INSERT INTO tracker.settings (id, lead_time_days, default_currency, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, defaults.LeadTimeDays, defaults.DefaultCurrency, defaults.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create settings: %w", err)
	}
	return &defaults, nil
}

// SaveSettings overwrites the settings row
func (r *Repository) SaveSettings(ctx context.Context, s *models.Settings) error {
	query := `
		INSERT INTO tracker.settings (id, lead_time_days, default_currency, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET lead_time_days = EXCLUDED.lead_time_days, default_currency = EXCLUDED.default_currency,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, s.LeadTimeDays, s.DefaultCurrency, s.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// --- Users ---

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO tracker.users (id, username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("user %s: %w", user.Email, models.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.UpdatedAt = user.CreatedAt
	return nil
}

// FindUserByEmail retrieves a user by email
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, username, email, password_hash, created_at, updated_at
		FROM tracker.users
		WHERE email = $1`
	err := r.db.QueryRowContext(ctx, query, email).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", email, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// --- Reminders ---

// InsertReminder stores a pending reminder
func (r *Repository) InsertReminder(ctx context.Context, rem *models.Reminder) error {
	query := `
		INSERT INTO tracker.reminders (id, occurrence_id, fire_at, label, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, rem.ID, rem.OccurrenceID, rem.FireAt, rem.Label, rem.CreatedAt); err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

// DeleteUnsentReminders removes pending reminders of an occurrence
func (r *Repository) DeleteUnsentReminders(ctx context.Context, occurrenceID uuid.UUID) error {
	query := `DELETE FROM tracker.reminders WHERE occurrence_id = $1 AND sent_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, occurrenceID); err != nil {
		return fmt.Errorf("failed to delete reminders: %w", err)
	}
	return nil
}

// DeleteUnsentRemindersFrom removes pending reminders of an occurrence that fire at
// or after from
func (r *Repository) DeleteUnsentRemindersFrom(ctx context.Context, occurrenceID uuid.UUID, from time.Time) error {
	query := `DELETE FROM tracker.reminders WHERE occurrence_id = $1 AND sent_at IS NULL AND fire_at >= $2`
	if _, err := r.db.ExecContext(ctx, query, occurrenceID, from); err != nil {
		return fmt.Errorf("failed to delete reminders: %w", err)
	}
	return nil
}

// PendingReminderOccurrenceIDs lists occurrences that still have unsent reminders
func (r *Repository) PendingReminderOccurrenceIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT occurrence_id FROM tracker.reminders WHERE sent_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reminders: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DueReminders lists unsent reminders whose fire time has passed, with the details
// the message needs
func (r *Repository) DueReminders(ctx context.Context, now time.Time) ([]models.DueReminder, error) {
	query := `
		SELECT r.id, r.occurrence_id, r.fire_at, r.label, r.created_at,
			o.title, o.kind, o.currency_code, occ.due_date, occ.amount
		FROM tracker.reminders r
		JOIN tracker.occurrences occ ON occ.id = r.occurrence_id
		JOIN tracker.obligations o ON o.id = occ.obligation_id
		WHERE r.sent_at IS NULL AND r.fire_at <= $1 AND occ.status = 'planned'
		ORDER BY r.fire_at`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	defer rows.Close()

	var due []models.DueReminder
	for rows.Next() {
		var d models.DueReminder
		err := rows.Scan(&d.ID, &d.OccurrenceID, &d.FireAt, &d.Label, &d.CreatedAt,
			&d.Title, &d.Kind, &d.CurrencyCode, &d.DueDate, &d.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

// MarkReminderSent records delivery of a reminder
func (r *Repository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE tracker.reminders SET sent_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dan9191/finance-tracker/internal/config"
	"github.com/Dan9191/finance-tracker/internal/models"
	"github.com/Dan9191/finance-tracker/internal/schedule"
)

const minPasswordLength = 8

// Store is the record store the service persists to
type Store interface {
	CreateObligation(ctx context.Context, o *models.Obligation) error
	UpdateObligation(ctx context.Context, o *models.Obligation) error
	ReplaceSchedule(ctx context.Context, o *models.Obligation, removeIDs []uuid.UUID, insert []models.Occurrence) error
	GetObligation(ctx context.Context, id uuid.UUID) (*models.Obligation, error)
	ListObligations(ctx context.Context) ([]models.Obligation, error)
	DeleteObligation(ctx context.Context, id uuid.UUID) error

	GetOccurrence(ctx context.Context, id uuid.UUID) (*models.Occurrence, error)
	SaveOccurrence(ctx context.Context, o *models.Obligation, occ models.Occurrence) error

	GetSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, s *models.Settings) error

	CreateUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// ResyncQueue accepts requests to re-synchronize reminders after a commit
type ResyncQueue interface {
	Trigger()
}

// RateProvider supplies the suggested annual rate for loan previews
type RateProvider interface {
	GetKeyRate(ctx context.Context) (float64, error)
}

// Service handles business logic
type Service struct {
	store  Store
	queue  ResyncQueue
	rates  RateProvider
	gen    *schedule.Generator
	locks  *keyedMutex
	now    func() time.Time
	log    *logrus.Logger
	config *config.Config
}

// NewService initializes a new service. rates may be nil, in which case loan
// previews carry no suggested rate.
func NewService(store Store, queue ResyncQueue, rates RateProvider, cfg *config.Config, now func() time.Time, log *logrus.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:  store,
		queue:  queue,
		rates:  rates,
		gen:    schedule.NewGenerator(now),
		locks:  newKeyedMutex(),
		now:    now,
		log:    log,
		config: cfg,
	}
}

// Register creates a new user with hashed password
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", models.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", models.ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must have at least %d characters", models.ErrInvalidInput, minPasswordLength)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    s.now(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Infof("User registered: %s", user.Email)
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return "", models.ErrUnauthorized
	}
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", models.ErrUnauthorized
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user.ID.String(),
		IssuedAt:  jwt.NewNumericDate(s.now()),
		ExpiresAt: jwt.NewNumericDate(s.now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User logged in: %s", user.Email)
	return tokenString, nil
}

// GetSettings returns the current settings
func (s *Service) GetSettings(ctx context.Context) (*models.Settings, error) {
	return s.store.GetSettings(ctx)
}

// UpdateSettings validates and stores settings. A lead time change moves every
// early reminder, so it triggers a resync.
func (s *Service) UpdateSettings(ctx context.Context, settings models.Settings) (*models.Settings, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	current, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	settings.UpdatedAt = s.now()
	if err := s.store.SaveSettings(ctx, &settings); err != nil {
		return nil, err
	}
	if current.LeadTimeDays != settings.LeadTimeDays {
		s.queue.Trigger()
	}

	s.log.Infof("Settings updated: lead time %d days, currency %s", settings.LeadTimeDays, settings.DefaultCurrency)
	return &settings, nil
}

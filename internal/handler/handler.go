package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/finance-tracker/internal/models"
	"github.com/Dan9191/finance-tracker/internal/schedule"
	"github.com/Dan9191/finance-tracker/internal/service"
)

// Service is the business API the handlers expose
type Service interface {
	Register(ctx context.Context, username, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, error)

	CreateObligation(ctx context.Context, o *models.Obligation) (*models.Obligation, error)
	UpdateObligation(ctx context.Context, id uuid.UUID, patch models.ObligationPatch) (*models.Obligation, error)
	DeleteObligation(ctx context.Context, id uuid.UUID) error
	GetObligation(ctx context.Context, id uuid.UUID) (*models.Obligation, error)
	ListObligations(ctx context.Context, kind models.Kind) ([]models.Obligation, error)

	SettleOccurrence(ctx context.Context, id uuid.UUID, settledDate *time.Time) (*models.Occurrence, error)
	UnsettleOccurrence(ctx context.Context, id uuid.UUID) (*models.Occurrence, error)
	SnoozeOccurrence(ctx context.Context, id uuid.UUID, until time.Time) (*models.Occurrence, error)

	PreviewLoan(ctx context.Context, in schedule.LoanInput) service.LoanPreview
	Upcoming(ctx context.Context) ([]models.UpcomingItem, error)
	BadgeCount(ctx context.Context) (int, error)
	Dashboard(ctx context.Context) (*models.DashboardSummary, error)

	GetSettings(ctx context.Context) (*models.Settings, error)
	UpdateSettings(ctx context.Context, settings models.Settings) (*models.Settings, error)
}

// KeyRateSource provides the suggested annual loan rate
type KeyRateSource interface {
	GetKeyRate(ctx context.Context) (float64, error)
}

type Handler struct {
	svc   Service
	rates KeyRateSource
	log   *logrus.Logger
}

func NewHandler(svc Service, rates KeyRateSource, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, rates: rates, log: log}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Errorf("Failed to encode response: %v", err)
	}
}

// writeError maps domain errors to status codes; anything unexpected is logged and
// reported as a 500 without details
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.log.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Errorf("Request failed: %v", err)
		message = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(models.ErrInvalidInput, err)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, errors.Join(models.ErrInvalidInput, err)
	}
	return id, nil
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	user, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, user)
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// KeyRate returns the suggested annual rate
func (h *Handler) KeyRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.rates.GetKeyRate(r.Context())
	if err != nil {
		h.log.Warnf("Failed to get key rate: %v", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "key rate unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]float64{"key_rate": rate})
}

func (h *Handler) CreateObligation(w http.ResponseWriter, r *http.Request) {
	var o models.Obligation
	if err := decode(r, &o); err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.svc.CreateObligation(r.Context(), &o)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) ListObligations(w http.ResponseWriter, r *http.Request) {
	obligations, err := h.svc.ListObligations(r.Context(), models.Kind(r.URL.Query().Get("kind")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, obligations)
}

func (h *Handler) GetObligation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.svc.GetObligation(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

func (h *Handler) UpdateObligation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var patch models.ObligationPatch
	if err := decode(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.svc.UpdateObligation(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

func (h *Handler) DeleteObligation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteObligation(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SettleOccurrence marks an occurrence settled. The body is optional.
func (h *Handler) SettleOccurrence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req struct {
		SettledDate *time.Time `json:"settled_date"`
	}
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	occ, err := h.svc.SettleOccurrence(r.Context(), id, req.SettledDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, occ)
}

func (h *Handler) UnsettleOccurrence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	occ, err := h.svc.UnsettleOccurrence(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, occ)
}

func (h *Handler) SnoozeOccurrence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req struct {
		Until time.Time `json:"until"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	occ, err := h.svc.SnoozeOccurrence(r.Context(), id, req.Until)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, occ)
}

// Calculator previews a loan schedule without saving it
func (h *Handler) Calculator(w http.ResponseWriter, r *http.Request) {
	var in schedule.LoanInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.svc.PreviewLoan(r.Context(), in))
}

func (h *Handler) Upcoming(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Upcoming(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, items)
}

func (h *Handler) Badge(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.BadgeCount(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"badge_count": count})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Dashboard(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.GetSettings(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.Settings
	if err := decode(r, &settings); err != nil {
		h.writeError(w, r, err)
		return
	}
	saved, err := h.svc.UpdateSettings(r.Context(), settings)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, saved)
}

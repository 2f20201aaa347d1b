package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter registers the public routes and the protected API behind auth
func NewRouter(h *Handler, auth mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()

	// Public routes
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/key-rate", h.KeyRate).Methods(http.MethodGet)

	// Protected routes
	api := r.PathPrefix("/").Subrouter()
	api.Use(auth)
	api.HandleFunc("/obligations", h.CreateObligation).Methods(http.MethodPost)
	api.HandleFunc("/obligations", h.ListObligations).Methods(http.MethodGet)
	api.HandleFunc("/obligations/{id}", h.GetObligation).Methods(http.MethodGet)
	api.HandleFunc("/obligations/{id}", h.UpdateObligation).Methods(http.MethodPatch)
	api.HandleFunc("/obligations/{id}", h.DeleteObligation).Methods(http.MethodDelete)
	api.HandleFunc("/occurrences/{id}/settle", h.SettleOccurrence).Methods(http.MethodPost)
	api.HandleFunc("/occurrences/{id}/unsettle", h.UnsettleOccurrence).Methods(http.MethodPost)
	api.HandleFunc("/occurrences/{id}/snooze", h.SnoozeOccurrence).Methods(http.MethodPost)
	api.HandleFunc("/calculator", h.Calculator).Methods(http.MethodPost)
	api.HandleFunc("/upcoming", h.Upcoming).Methods(http.MethodGet)
	api.HandleFunc("/badge", h.Badge).Methods(http.MethodGet)
	api.HandleFunc("/dashboard", h.Dashboard).Methods(http.MethodGet)
	api.HandleFunc("/settings", h.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", h.UpdateSettings).Methods(http.MethodPut)

	return r
}

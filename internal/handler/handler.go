// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/openclub/event-registration/internal/model"
)

// Registrar is what the registration endpoint needs from the service layer.
type Registrar interface {
	Register(ctx context.Context, req model.RegisterRequest) (*model.RegistrationOutcome, error)
}

// EventProvider is what the event endpoints need from the service layer.
type EventProvider interface {
	CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error)
}

// API holds all HTTP handlers for the registration service.
type API struct {
	registrar Registrar
	events    EventProvider
	validate  *validator.Validate
}

// NewAPI constructs an API.
func NewAPI(registrar Registrar, events EventProvider) *API {
	return &API{
		registrar: registrar,
		events:    events,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.Response{Status: "error", Message: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// validationMessage turns the first validator failure into a user-facing
// message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "Age" && (fe.Tag() == "gte" || fe.Tag() == "required"):
		return "you must be at least 18 years old to register"
	case fe.Tag() == "required":
		return fmt.Sprintf("%s is required", jsonField(fe.Field()))
	case fe.Tag() == "email":
		return "email must be a valid email address"
	case fe.Tag() == "max":
		return fmt.Sprintf("%s is too long", jsonField(fe.Field()))
	case fe.Tag() == "gt", fe.Tag() == "gte":
		return fmt.Sprintf("%s must be at least %s", jsonField(fe.Field()), fe.Param())
	case fe.Tag() == "lte":
		return fmt.Sprintf("%s must be at most %s", jsonField(fe.Field()), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", jsonField(fe.Field()))
}

// jsonField lowercases the leading rune so messages reference the JSON name
// (firstName, not FirstName).
func jsonField(name string) string {
	if name == "" {
		return name
	}
	return string(name[0]|0x20) + name[1:]
}

// businessRejection reports whether err is an expected, user-facing outcome
// rather than a system failure.
func businessRejection(err error) bool {
	return errors.Is(err, model.ErrAlreadyRegistered) ||
		errors.Is(err, model.ErrMissingFields) ||
		errors.Is(err, model.ErrAtCapacity) ||
		errors.Is(err, model.ErrUnderage) ||
		errors.Is(err, model.ErrEventNotFound)
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// Register handles POST /api/v1/register.
func (h *API) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	outcome, err := h.registrar.Register(r.Context(), req)
	if err != nil {
		switch {
		case businessRejection(err):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, model.ErrConflict):
			writeError(w, http.StatusServiceUnavailable, "registration is busy, please try again")
		default:
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, model.Response{
		Status:  "success",
		Message: "Successfully registered for " + outcome.Event.Title,
		Data: map[string]string{
			"registrationId": outcome.Registration.ID,
			"eventTitle":     outcome.Event.Title,
		},
	})
}

// CreateEvent handles POST /api/v1/events.
func (h *API) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	event, err := h.events.CreateEvent(r.Context(), req)
	if err != nil {
		if errors.Is(err, model.ErrDuplicateTitle) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /api/v1/events.
func (h *API) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /api/v1/events/{id}.
func (h *API) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.events.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// ListRegistrations handles GET /api/v1/events/{id}/registrations.
func (h *API) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	regs, err := h.events.ListRegistrations(r.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list registrations")
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// HealthCheck handles GET /api/v1/health.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"message":   "Server is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// NotFound is the fallback for unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Route not found")
}

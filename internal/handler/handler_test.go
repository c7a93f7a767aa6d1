package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclub/event-registration/internal/model"
)

type stubRegistrar struct {
	outcome *model.RegistrationOutcome
	err     error
	gotReq  model.RegisterRequest
}

func (s *stubRegistrar) Register(ctx context.Context, req model.RegisterRequest) (*model.RegistrationOutcome, error) {
	s.gotReq = req
	return s.outcome, s.err
}

type stubEvents struct {
	event  *model.Event
	events []model.Event
	regs   []model.Registration
	err    error
}

func (s *stubEvents) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	return s.event, s.err
}

func (s *stubEvents) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.events, s.err
}

func (s *stubEvents) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return s.event, s.err
}

func (s *stubEvents) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	return s.regs, s.err
}

func postJSON(t *testing.T, h http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) model.Response {
	t.Helper()
	var resp model.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func validRegisterBody() map[string]any {
	return map[string]any{
		"firstName":  "Ada",
		"lastName":   "Lovelace",
		"age":        30,
		"email":      "ada@example.com",
		"eventTitle": "Launch",
	}
}

func TestRegisterSuccess(t *testing.T) {
	registrar := &stubRegistrar{
		outcome: &model.RegistrationOutcome{
			Registration: &model.Registration{ID: "reg-1"},
			Person:       &model.Person{Email: "ada@example.com"},
			Event:        &model.Event{Title: "Launch"},
		},
	}
	api := NewAPI(registrar, &stubEvents{})

	rec := postJSON(t, api.Register, "/api/v1/register", validRegisterBody())

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "success", resp.Status)
	assert.Contains(t, resp.Message, "Launch")
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "reg-1", data["registrationId"])
	assert.Equal(t, "Launch", data["eventTitle"])
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]any)
		wantMsg string
	}{
		{
			name:    "missing email",
			mutate:  func(b map[string]any) { delete(b, "email") },
			wantMsg: "email is required",
		},
		{
			name:    "malformed email",
			mutate:  func(b map[string]any) { b["email"] = "not-an-email" },
			wantMsg: "valid email",
		},
		{
			name:    "underage",
			mutate:  func(b map[string]any) { b["age"] = 17 },
			wantMsg: "at least 18",
		},
		{
			name:    "missing event title",
			mutate:  func(b map[string]any) { delete(b, "eventTitle") },
			wantMsg: "eventTitle is required",
		},
		{
			name:    "missing first name",
			mutate:  func(b map[string]any) { delete(b, "firstName") },
			wantMsg: "firstName is required",
		},
	}

	registrar := &stubRegistrar{err: fmt.Errorf("should not be called")}
	api := NewAPI(registrar, &stubEvents{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validRegisterBody()
			tt.mutate(body)
			rec := postJSON(t, api.Register, "/api/v1/register", body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeResponse(t, rec)
			assert.Equal(t, "error", resp.Status)
			assert.Contains(t, resp.Message, tt.wantMsg)
		})
	}
}

func TestRegisterErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"already registered", model.ErrAlreadyRegistered, http.StatusBadRequest, "already registered"},
		{"at capacity", model.ErrAtCapacity, http.StatusBadRequest, "full capacity"},
		{"event not found", model.ErrEventNotFound, http.StatusBadRequest, "event not found"},
		{"missing fields", model.ErrMissingFields, http.StatusBadRequest, "required"},
		{"conflict", fmt.Errorf("retries exhausted: %w", model.ErrConflict), http.StatusServiceUnavailable, "try again"},
		{"unexpected", fmt.Errorf("pq: connection refused"), http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := NewAPI(&stubRegistrar{err: tt.err}, &stubEvents{})
			rec := postJSON(t, api.Register, "/api/v1/register", validRegisterBody())

			require.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeResponse(t, rec)
			assert.Equal(t, "error", resp.Status)
			assert.Contains(t, resp.Message, tt.wantMsg)
		})
	}
}

func TestRegisterRejectsUnknownFields(t *testing.T) {
	api := NewAPI(&stubRegistrar{}, &stubEvents{})
	body := validRegisterBody()
	body["admin"] = true
	rec := postJSON(t, api.Register, "/api/v1/register", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateEventDuplicateTitle(t *testing.T) {
	api := NewAPI(&stubRegistrar{}, &stubEvents{err: model.ErrDuplicateTitle})
	rec := postJSON(t, api.CreateEvent, "/api/v1/events", map[string]any{
		"title":    "Launch",
		"date":     time.Now().Add(time.Hour).Format(time.RFC3339),
		"location": "Main hall",
		"capacity": 50,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateEventValidation(t *testing.T) {
	api := NewAPI(&stubRegistrar{}, &stubEvents{})
	rec := postJSON(t, api.CreateEvent, "/api/v1/events", map[string]any{
		"title":    "Launch",
		"date":     time.Now().Format(time.RFC3339),
		"location": "Main hall",
		"capacity": 0,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEventNotFound(t *testing.T) {
	api := NewAPI(&stubRegistrar{}, &stubEvents{err: model.ErrNotFound})

	r := chi.NewRouter()
	r.Get("/api/v1/events/{id}", api.GetEvent)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "error", resp.Status)
}

func TestListEventsEmptyArray(t *testing.T) {
	api := NewAPI(&stubRegistrar{}, &stubEvents{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	rec := httptest.NewRecorder()
	api.ListEvents(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestHealthCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "OK", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestNotFoundEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	NotFound(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "Route not found", resp.Message)
}
